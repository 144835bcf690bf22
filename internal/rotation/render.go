package rotation

import (
	"html"
	"strings"
	"time"
)

const (
	PlaceholderLinks  = "{links_list}"
	PlaceholderInvite = "{invite_link}"

	// FailureNotice stands in for the links when no source produced one.
	FailureNotice = "⚠️ Invite links are temporarily unavailable."
)

// Render substitutes the placeholders of tpl with the successful results.
// Every occurrence is replaced; a template without placeholders is returned
// unchanged. Failed sources are omitted from the list.
func Render(tpl string, results []LinkResult) string {
	lines := make([]string, 0, len(results))
	first := ""
	for _, r := range results {
		if !r.OK() {
			continue
		}
		if first == "" {
			first = html.EscapeString(r.Link.Token)
		}
		lines = append(lines, formatLine(r.Source, r.Link.Token))
	}

	list := strings.Join(lines, "\n")
	if len(lines) == 0 {
		list = FailureNotice
		first = FailureNotice
	}
	// Single pass: text inside the substituted list is never re-scanned.
	return strings.NewReplacer(PlaceholderLinks, list, PlaceholderInvite, first).Replace(tpl)
}

// formatLine shows an aliased source as plain text and an unaliased one as
// code so the raw identifier stays readable.
func formatLine(src SourceChat, token string) string {
	tok := html.EscapeString(token)
	if a := strings.TrimSpace(src.Alias); a != "" {
		return html.EscapeString(a) + ": " + tok
	}
	return "<code>" + html.EscapeString(src.ID) + "</code>: " + tok
}

// Preview renders tpl with dummy links for the operator.
func Preview(tpl string) string {
	now := time.Now()
	dummy := func(src SourceChat, token string) LinkResult {
		return LinkResult{Source: src, Link: &GeneratedLink{Source: src, Token: token, CreatedAt: now}}
	}
	return Render(tpl, []LinkResult{
		dummy(SourceChat{ID: "@dummy_channel", Alias: "My Channel Alias"}, "t.me/joinchat/ALIASLINK"),
		dummy(SourceChat{ID: "@dummy_source_id"}, "t.me/joinchat/IDLINK"),
	})
}
