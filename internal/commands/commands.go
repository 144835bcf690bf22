// Package commands implements the operator chat commands that configure and
// drive the rotation engine.
package commands

import (
	"context"
	"strings"
	"time"

	"linkguard/internal/eventbus"
	"linkguard/internal/rotation"
	"linkguard/internal/settings"
	"linkguard/internal/transport/telegram/router"
	"linkguard/pkg/logx"
	"linkguard/pkg/tgui"
)

// EventCommand is published after every owner command with a CommandEvent.
const EventCommand = "command.exec"

const (
	defaultTimeout = 30 * time.Second
	startTimeout   = 3 * time.Minute

	privateText = "🔒 This bot is privately managed. Contact owner for assistance."
)

// Rotator is the scheduler surface the commands drive.
type Rotator interface {
	Start(ctx context.Context) (rotation.CycleReport, error)
	Stop() error
	Status() rotation.Status
	History(n int) []rotation.CycleReport
}

// CommandEvent describes an executed owner command for auditing.
type CommandEvent struct {
	At      time.Time
	ActorID int64
	ChatID  int64
	Command string
	Args    string
	OK      bool
	Err     string
	Took    time.Duration
}

type Handlers struct {
	settings *settings.Store
	rot      Rotator
	bus      eventbus.Bus
	log      logx.Logger

	// help renders the command list; set by the app after registration.
	help func() string
}

func New(st *settings.Store, rot Rotator, bus eventbus.Bus, log logx.Logger) *Handlers {
	return &Handlers{settings: st, rot: rot, bus: bus, log: log.With(logx.String("comp", "commands"))}
}

// SetHelp installs the help renderer (usually CommandManager.HelpText).
func (h *Handlers) SetHelp(fn func() string) { h.help = fn }

func (h *Handlers) Commands() []router.Command {
	owner := func(c router.Command) router.Command {
		c.Access = router.AccessOwnerOnly
		if c.Timeout == 0 {
			c.Timeout = defaultTimeout
		}
		c.Handle = h.audited(c.Handle)
		return c
	}
	return []router.Command{
		{
			Name:        "start",
			Description: "show help",
			Usage:       "/start",
			Access:      router.AccessEveryone,
			Timeout:     defaultTimeout,
			Handle:      h.handleStart,
		},
		owner(router.Command{
			Name:        "help",
			Description: "list commands",
			Usage:       "/help",
			Handle:      h.handleHelp,
		}),
		owner(router.Command{
			Name:        "set_channels",
			Aliases:     []string{"channels"},
			Description: "set target and source chats",
			Usage:       `/set_channels <target> <source[:"Alias"]>...`,
			Handle:      h.handleSetChannels,
		}),
		owner(router.Command{
			Name:        "set_timer",
			Aliases:     []string{"timer"},
			Description: "set rotation interval in minutes",
			Usage:       "/set_timer <minutes>",
			Handle:      h.handleSetTimer,
		}),
		owner(router.Command{
			Name:        "set_limit",
			Aliases:     []string{"limit"},
			Description: "set max joins per invite link",
			Usage:       "/set_limit <users>",
			Handle:      h.handleSetLimit,
		}),
		owner(router.Command{
			Name:        "set_template",
			Aliases:     []string{"template"},
			Description: "set announcement template ({links_list}, {invite_link})",
			Usage:       "/set_template <html>",
			Handle:      h.handleSetTemplate,
		}),
		owner(router.Command{
			Name:        "preview",
			Description: "render the current template with dummy links",
			Usage:       "/preview",
			Handle:      h.handlePreview,
		}),
		owner(router.Command{
			Name:        "start_posting",
			Aliases:     []string{"go"},
			Description: "start rotating links",
			Usage:       "/start_posting",
			Timeout:     startTimeout,
			Handle:      h.handleStartPosting,
		}),
		owner(router.Command{
			Name:        "stop_posting",
			Aliases:     []string{"halt"},
			Description: "stop rotating links",
			Usage:       "/stop_posting",
			Handle:      h.handleStopPosting,
		}),
		owner(router.Command{
			Name:        "toggle_update_mode",
			Aliases:     []string{"mode"},
			Description: "switch between edit and replace",
			Usage:       "/toggle_update_mode",
			Handle:      h.handleToggleMode,
		}),
		owner(router.Command{
			Name:        "get_config",
			Aliases:     []string{"config"},
			Description: "show current settings",
			Usage:       "/get_config",
			Handle:      h.handleGetConfig,
		}),
		owner(router.Command{
			Name:        "status",
			Description: "show rotation status",
			Usage:       "/status",
			Handle:      h.handleStatus,
		}),
		owner(router.Command{
			Name:        "history",
			Description: "show recent cycles",
			Usage:       "/history [count]",
			Handle:      h.handleHistory,
		}),
	}
}

// audited publishes a CommandEvent after the handler returns.
func (h *Handlers) audited(next router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		start := time.Now()
		err := next(ctx, req)
		if h.bus == nil {
			return err
		}
		ev := CommandEvent{
			At:      start,
			ActorID: req.FromID,
			ChatID:  req.Chat.ChatID,
			Command: req.Command,
			Args:    tgui.TruncRunes(strings.TrimSpace(req.RawArgs), 200),
			OK:      err == nil,
			Took:    time.Since(start),
		}
		if err != nil {
			ev.Err = err.Error()
		}
		h.bus.Publish(eventbus.Event{Type: EventCommand, Time: start, Data: ev})
		return err
	}
}

func reply(ctx context.Context, req *router.Request, msg tgui.Message) error {
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func replyText(ctx context.Context, req *router.Request, text string) error {
	return reply(ctx, req, tgui.New().Line(text).Build())
}
