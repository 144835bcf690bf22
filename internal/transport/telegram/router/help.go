package router

import (
	"html"
	"strings"
)

// HelpText renders the command list in HTML parse mode. Owner-only
// commands are marked with a lock.
func (m *CommandManager) HelpText() string {
	lines := []string{
		"📚 <b>Commands</b>",
		"",
	}
	for _, c := range m.Commands() {
		prefix := "• "
		if c.Access == AccessOwnerOnly {
			prefix = "• 🔒 "
		}
		usage := strings.TrimSpace(c.Usage)
		if usage == "" {
			usage = "/" + c.Name
		}
		line := prefix + "<code>" + html.EscapeString(usage) + "</code>"
		if d := trimDesc(c.Description); d != "" {
			line += "\n   " + html.EscapeString(d)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
