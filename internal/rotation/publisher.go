package rotation

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	kit "linkguard/internal/transport"
	"linkguard/pkg/logx"
)

const (
	defaultPublishRetries   = 3
	defaultPublishRetryBase = time.Second
	maxPublishRetryWait     = 30 * time.Second
)

// PublishReport describes what Publish did to the target chat.
type PublishReport struct {
	Action   Action
	Attempts int
	// EditErr is set when an edit failed and Publish fell back to sending.
	EditErr error
	// DeleteErr is the ignored error of removing the previous message.
	DeleteErr error
}

// Publisher applies the update mode against the target chat.
type Publisher struct {
	client    ChannelClient
	log       logx.Logger
	retries   int
	retryBase time.Duration
	now       func() time.Time
}

type PublisherOptions struct {
	// Retries is the number of extra send attempts on rate limit or
	// transient errors. Negative disables retries.
	Retries   int
	RetryBase time.Duration
}

func NewPublisher(client ChannelClient, opts PublisherOptions, log logx.Logger) *Publisher {
	if opts.Retries == 0 {
		opts.Retries = defaultPublishRetries
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultPublishRetryBase
	}
	return &Publisher{
		client:    client,
		log:       log,
		retries:   opts.Retries,
		retryBase: opts.RetryBase,
		now:       time.Now,
	}
}

// Publish renders the announcement and brings the target chat up to date.
//
// In edit mode the previous message is edited in place; if it is gone the
// announcement is sent fresh, and any other edit failure deletes it (best
// effort) before sending. In replace mode, or when the target changed, the
// previous message is deleted (errors ignored) and a new one is sent.
// On a failed send the returned state equals prev.
func (p *Publisher) Publish(ctx context.Context, cfg Config, results []LinkResult, prev PublishState) (PublishState, PublishReport, error) {
	body := Render(cfg.Template, results)
	var rep PublishReport

	prevChat := prev.LastChat
	if prevChat == "" {
		prevChat = cfg.Target
	}
	hasPrev := prev.LastMessageID != 0
	action := ActionSent

	switch {
	case hasPrev && cfg.UpdateMode == ModeEdit && prevChat == cfg.Target:
		err := p.client.EditMessage(ctx, cfg.Target, prev.LastMessageID, body)
		rep.Attempts++
		if err == nil {
			rep.Action = ActionEdited
			return PublishState{
				LastMessageID:   prev.LastMessageID,
				LastChat:        cfg.Target,
				LastPublishedAt: p.now(),
			}, rep, nil
		}
		rep.EditErr = err
		if kit.KindOf(err) == kit.KindNotFound {
			p.log.Info("announcement gone, sending new one",
				logx.String("target", cfg.Target),
				logx.Int("message_id", prev.LastMessageID),
			)
		} else {
			p.log.Warn("edit failed, replacing announcement",
				logx.String("target", cfg.Target),
				logx.Int("message_id", prev.LastMessageID),
				logx.Err(err),
			)
			rep.DeleteErr = p.deletePrevious(ctx, prevChat, prev.LastMessageID)
			action = ActionReplaced
		}
	case hasPrev:
		rep.DeleteErr = p.deletePrevious(ctx, prevChat, prev.LastMessageID)
		action = ActionReplaced
	}

	id, attempts, err := p.send(ctx, cfg.Target, body)
	rep.Attempts += attempts
	if err != nil {
		return prev, rep, &PublishError{Op: OpSend, Err: err}
	}
	rep.Action = action
	return PublishState{
		LastMessageID:   id,
		LastChat:        cfg.Target,
		LastPublishedAt: p.now(),
	}, rep, nil
}

func (p *Publisher) deletePrevious(ctx context.Context, chat string, id int) error {
	err := p.client.DeleteMessage(ctx, chat, id)
	if err != nil && kit.KindOf(err) != kit.KindNotFound {
		p.log.Warn("delete previous announcement failed",
			logx.String("chat", chat),
			logx.Int("message_id", id),
			logx.Err(err),
		)
	}
	return err
}

func (p *Publisher) send(ctx context.Context, target, body string) (int, int, error) {
	var (
		attempts int
		lastErr  error
	)
	op := func() (int, error) {
		attempts++
		id, err := p.client.SendMessage(ctx, target, body)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !kit.KindOf(err).Retryable() {
			return 0, backoff.Permanent(err)
		}
		if wait := kit.RetryAfterOf(err); wait > 0 {
			secs := int(wait / time.Second)
			if secs < 1 {
				secs = 1
			}
			return 0, backoff.RetryAfter(secs)
		}
		return 0, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retryBase
	b.MaxInterval = max(maxPublishRetryWait, p.retryBase)

	id, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.retries+1)),
		backoff.WithNotify(func(err error, d time.Duration) {
			p.log.Warn("send announcement retry",
				logx.String("target", target),
				logx.Duration("wait", d),
				logx.Err(err),
			)
		}),
	)
	if err != nil {
		if lastErr != nil {
			return 0, attempts, lastErr
		}
		return 0, attempts, err
	}
	return id, attempts, nil
}
