package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"linkguard/internal/rotation"
	"linkguard/internal/transport/telegram/router"
	"linkguard/pkg/tgui"
)

func (h *Handlers) handleStart(ctx context.Context, req *router.Request) error {
	if !req.IsOwner {
		return replyText(ctx, req, privateText)
	}
	return h.handleHelp(ctx, req)
}

func (h *Handlers) handleHelp(ctx context.Context, req *router.Request) error {
	text := "📚 <b>Commands</b>"
	if h.help != nil {
		text = h.help()
	}
	return reply(ctx, req, tgui.New().HTML(tgui.Raw(text)).Build())
}

func (h *Handlers) handleSetChannels(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 2 {
		return usageErr(ctx, req, `/set_channels <target> <source[:"Alias"]>...`)
	}
	target := req.Args[0]
	sources := make([]rotation.SourceChat, 0, len(req.Args)-1)
	for _, tok := range req.Args[1:] {
		sources = append(sources, parseSource(tok))
	}
	if err := h.settings.SetChannels(target, sources); err != nil {
		return failErr(ctx, req, err)
	}

	b := tgui.New().Title("✅", "Channels updated").
		KVH("Target", tgui.Code(target)).
		Line("Sources:")
	for _, s := range h.settings.Snapshot().Sources {
		b.HTML(sourceLine(s))
	}
	return reply(ctx, req, b.Build())
}

func (h *Handlers) handleSetTimer(ctx context.Context, req *router.Request) error {
	n, ok := positiveArg(req.Args)
	if !ok {
		return usageErr(ctx, req, "/set_timer <minutes>")
	}
	if err := h.settings.SetInterval(n); err != nil {
		return failErr(ctx, req, err)
	}
	return replyText(ctx, req, fmt.Sprintf("⏰ Timer set to %d minutes", n))
}

func (h *Handlers) handleSetLimit(ctx context.Context, req *router.Request) error {
	n, ok := positiveArg(req.Args)
	if !ok {
		return usageErr(ctx, req, "/set_limit <users>")
	}
	if err := h.settings.SetLimit(n); err != nil {
		return failErr(ctx, req, err)
	}
	return replyText(ctx, req, fmt.Sprintf("👥 User limit set to %d", n))
}

func (h *Handlers) handleSetTemplate(ctx context.Context, req *router.Request) error {
	tpl := strings.TrimSpace(req.RawArgs)
	if tpl == "" {
		return usageErr(ctx, req, "/set_template <html>")
	}
	if err := h.settings.SetTemplate(tpl); err != nil {
		return failErr(ctx, req, err)
	}
	b := tgui.New().Title("📝", "Template updated")
	if !strings.Contains(tpl, rotation.PlaceholderLinks) && !strings.Contains(tpl, rotation.PlaceholderInvite) {
		b.Line("⚠️ No {links_list} or {invite_link} placeholder: links will not appear.")
	}
	b.Blank().HTML(tgui.B("Preview:")).HTML(tgui.Raw(rotation.Preview(tpl)))
	return reply(ctx, req, b.Build())
}

func (h *Handlers) handlePreview(ctx context.Context, req *router.Request) error {
	tpl := h.settings.Snapshot().Template
	return reply(ctx, req, tgui.New().HTML(tgui.Raw(rotation.Preview(tpl))).Build())
}

func (h *Handlers) handleStartPosting(ctx context.Context, req *router.Request) error {
	rep, err := h.rot.Start(ctx)
	if errors.Is(err, rotation.ErrAlreadyRunning) {
		return replyText(ctx, req, "⚠️ Auto-posting is already running")
	}
	if err != nil {
		return failErr(ctx, req, err)
	}
	_ = h.settings.SetAutostart(true)
	b := tgui.New().Line("🔄 Auto-posting activated!").HTML(cycleLine(rep))
	return reply(ctx, req, b.Build())
}

func (h *Handlers) handleStopPosting(ctx context.Context, req *router.Request) error {
	if err := h.rot.Stop(); err != nil {
		if errors.Is(err, rotation.ErrNotRunning) {
			return replyText(ctx, req, "❌ No active posting job")
		}
		return failErr(ctx, req, err)
	}
	_ = h.settings.SetAutostart(false)
	return replyText(ctx, req, "⏹️ Auto-posting stopped")
}

func (h *Handlers) handleToggleMode(ctx context.Context, req *router.Request) error {
	mode, err := h.settings.ToggleUpdateMode()
	if err != nil {
		return failErr(ctx, req, err)
	}
	b := tgui.New().KVH("🔄 Update mode", tgui.Code(strings.ToUpper(string(mode))))
	if mode == rotation.ModeEdit {
		b.Line("EDIT: the existing announcement is edited in place.")
	} else {
		b.Line("REPLACE: the old announcement is deleted and a new one is posted.")
	}
	return reply(ctx, req, b.Build())
}

func (h *Handlers) handleGetConfig(ctx context.Context, req *router.Request) error {
	return reply(ctx, req, formatConfig(h.settings.Snapshot(), h.rot.Status()))
}

func (h *Handlers) handleStatus(ctx context.Context, req *router.Request) error {
	return reply(ctx, req, formatStatus(h.rot.Status()))
}

func (h *Handlers) handleHistory(ctx context.Context, req *router.Request) error {
	n := clampPositiveIntArg(req.Args, 5, 20)
	return reply(ctx, req, formatHistory(h.rot.History(n)))
}

func usageErr(ctx context.Context, req *router.Request, usage string) error {
	_ = reply(ctx, req, tgui.New().HTML(tgui.Raw("❌ Usage: "+tgui.Code(usage).String())).Build())
	return errors.New("bad usage")
}

func failErr(ctx context.Context, req *router.Request, err error) error {
	_ = replyText(ctx, req, "❌ "+err.Error())
	return err
}

// parseSource splits `id:Alias` (quotes already stripped by the tokenizer).
func parseSource(tok string) rotation.SourceChat {
	id, alias, _ := strings.Cut(tok, ":")
	return rotation.SourceChat{ID: strings.TrimSpace(id), Alias: strings.Trim(strings.TrimSpace(alias), `"'`)}
}

func positiveArg(args []string) (int, bool) {
	if len(args) != 1 {
		return 0, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func clampPositiveIntArg(args []string, def, maxN int) int {
	if len(args) == 0 {
		return def
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return def
	}
	return min(n, maxN)
}
