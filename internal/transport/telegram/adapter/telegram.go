package adapter

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	rtsup "linkguard/internal/runtime/supervisor"
	kit "linkguard/internal/transport"
	logx "linkguard/pkg/logx"
)

// Adapter is the telebot-backed Telegram client. It serves both the
// operator side (updates, replies) and the channel side (invite links and
// announcement messages addressed by @username or numeric ID).
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns adapter internal goroutines (poll loop, drop logger, stop watcher).
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower than the poll loop.
	droppedUpdates uint64

	chatMu sync.Mutex
	chats  map[string]int64 // @username -> chat id

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 20
	}
	a := &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		chats:   map[string]int64{},
	}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				ThreadID:     m.ThreadID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				IsGroup:      m.Chat.Type != tele.ChatPrivate,
			},
		})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		// adapter errors should not take down the whole app
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// Start blocks until Stop; restart it if it returns while still running.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping")
	sup.Cancel()
	go a.bot.Stop()

	// Keep shutdown snappy even if getUpdates long-poll is still waiting.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.limiter.Wait(ctx)
}

// resolveChat maps "@username", "-100…" or plain digits to a numeric chat ID.
// Usernames are looked up once and cached.
func (a *Adapter) resolveChat(ctx context.Context, chat string) (*tele.Chat, error) {
	chat = strings.TrimSpace(chat)
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		return &tele.Chat{ID: id}, nil
	}
	a.chatMu.Lock()
	id, ok := a.chats[chat]
	a.chatMu.Unlock()
	if ok {
		return &tele.Chat{ID: id}, nil
	}
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	c, err := a.bot.ChatByUsername(chat)
	if err != nil {
		return nil, err
	}
	a.chatMu.Lock()
	a.chats[chat] = c.ID
	a.chatMu.Unlock()
	return c, nil
}

// ---- channel side ----

// CreateInviteLink mints an invite link that expires after ttl and admits at most userLimit members.
func (a *Adapter) CreateInviteLink(ctx context.Context, chat string, ttl time.Duration, userLimit int) (string, error) {
	to, err := a.resolveChat(ctx, chat)
	if err != nil {
		return "", wrapErr("create_invite_link", chat, err)
	}
	if err := a.wait(ctx); err != nil {
		return "", wrapErr("create_invite_link", chat, err)
	}
	link, err := a.bot.CreateInviteLink(to, &tele.ChatInviteLink{
		ExpireUnixtime: time.Now().Add(ttl).Unix(),
		MemberLimit:    userLimit,
	})
	if err != nil {
		return "", wrapErr("create_invite_link", chat, err)
	}
	return link.InviteLink, nil
}

// SendMessage posts an HTML message without link previews and returns its ID.
func (a *Adapter) SendMessage(ctx context.Context, chat, html string) (int, error) {
	to, err := a.resolveChat(ctx, chat)
	if err != nil {
		return 0, wrapErr("send", chat, err)
	}
	if err := a.wait(ctx); err != nil {
		return 0, wrapErr("send", chat, err)
	}
	msg, err := a.bot.Send(to, html, &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true})
	if err != nil {
		return 0, wrapErr("send", chat, err)
	}
	return msg.ID, nil
}

// EditMessage replaces the text of a previously sent message. An edit with
// identical content is treated as success.
func (a *Adapter) EditMessage(ctx context.Context, chat string, messageID int, html string) error {
	to, err := a.resolveChat(ctx, chat)
	if err != nil {
		return wrapErr("edit", chat, err)
	}
	if err := a.wait(ctx); err != nil {
		return wrapErr("edit", chat, err)
	}
	ref := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: to.ID}
	_, err = a.bot.Edit(ref, html, &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true})
	if err != nil && !notModified(err) {
		return wrapErr("edit", chat, err)
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, chat string, messageID int) error {
	to, err := a.resolveChat(ctx, chat)
	if err != nil {
		return wrapErr("delete", chat, err)
	}
	if err := a.wait(ctx); err != nil {
		return wrapErr("delete", chat, err)
	}
	if err := a.bot.Delete(tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: to.ID}); err != nil {
		return wrapErr("delete", chat, err)
	}
	return nil
}

// ---- operator side ----

const telegramTextLimit = 4000

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries and (best-effort) avoids splitting inside HTML tags when ParseMode is HTML.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func (a *Adapter) sendOpts(opt *kit.SendOptions, threadID int) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              threadID,
	}
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range splitTelegramText(text, telegramTextLimit, opt.ParseMode) {
		if err := a.wait(ctx); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, a.sendOpts(opt, to.ThreadID))
		if err != nil {
			return first, wrapErr("send", strconv.FormatInt(to.ChatID, 10), err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	if err := a.wait(ctx); err != nil {
		return err
	}
	m := tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
	if _, err := a.bot.Edit(m, chunks[0], a.sendOpts(opt, 0)); err != nil && !notModified(err) {
		return wrapErr("edit", strconv.FormatInt(ref.ChatID, 10), err)
	}
	// Overflow goes out as new messages.
	for _, chunk := range chunks[1:] {
		if _, err := a.SendText(ctx, kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}, chunk, opt); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMenuCommands updates Telegram's /menu command list (setMyCommands).
// It only performs a network call when the command list changes.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" || len(list) >= 100 {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(d))
		h.Write([]byte{0})
		list = append(list, tele.Command{Text: c.Command, Description: d})
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := a.wait(ctx); err != nil {
		return err
	}
	if err := a.bot.SetCommands(list); err != nil {
		return wrapErr("set_commands", "", err)
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}
