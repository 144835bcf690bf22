package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"linkguard/internal/eventbus"
	"linkguard/internal/rotation"
	rtsup "linkguard/internal/runtime/supervisor"
	kit "linkguard/internal/transport"
	"linkguard/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Service delivers owner alerts: queue + single worker + rate limit +
// retry + dedup. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus

	cfg     Config
	limiter *rate.Limiter
	owners  []int64

	queue chan Alert
	sup   *rtsup.Supervisor

	dmu     sync.Mutex
	dedup   map[string]time.Time // key -> suppress until
	failing bool
	now     func() time.Time
}

func New(cfg Config, adapter kit.Adapter, owners []int64, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	return &Service{
		log:     log.With(logx.String("comp", "notifier")),
		adapter: adapter,
		bus:     bus,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		owners:  append([]int64(nil), owners...),
		dedup:   map[string]time.Time{},
		now:     time.Now,
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// SetOwners replaces the alert recipients (config hot reload).
func (s *Service) SetOwners(ids []int64) {
	cp := append([]int64(nil), ids...)
	s.mu.Lock()
	s.owners = cp
	s.mu.Unlock()
}

// Start runs the delivery worker and the cycle watcher until ctx is done
// or Stop is called. It is a no-op when disabled or already started.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if !s.cfg.Enabled || s.queue != nil {
		s.mu.Unlock()
		return
	}
	q := make(chan Alert, s.cfg.QueueSize)
	s.queue = q
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("notifier.worker", func(c context.Context) error {
		s.workerLoop(c, q)
		return nil
	}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))

	if s.bus != nil {
		events, unsub := s.bus.Subscribe(32, rotation.EventCycle)
		sup.Go0("notifier.watch", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					if rep, ok := e.Data.(rotation.CycleReport); ok {
						s.OnCycle(rep)
					}
				}
			}
		})
	}
}

// Stop cancels the worker; queued alerts that were not sent are dropped.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.queue = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

// OnCycle turns a cycle report into an alert, if it warrants one.
func (s *Service) OnCycle(rep rotation.CycleReport) {
	s.dmu.Lock()
	wasFailing := s.failing
	s.failing = isFailure(rep.Outcome)
	if wasFailing && !s.failing {
		// Next failure alerts immediately.
		s.dedup = map[string]time.Time{}
	}
	s.dmu.Unlock()

	a, ok := alertFor(rep, wasFailing)
	if !ok {
		return
	}
	if err := s.Notify(a); err != nil && !errors.Is(err, ErrDisabled) {
		s.log.Warn("alert dropped", logx.String("key", a.Key), logx.Err(err))
	}
}

// Notify enqueues a for delivery. Alerts whose key was sent within the
// dedup window are silently suppressed.
func (s *Service) Notify(a Alert) error {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	q := s.queue
	window := s.cfg.DedupWindow
	s.mu.Unlock()
	if !enabled {
		return ErrDisabled
	}
	if q == nil {
		return ErrStopped
	}
	if !s.dedupAllow(a.Key, window) {
		return nil
	}
	select {
	case q <- a:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) dedupAllow(key string, window time.Duration) bool {
	if key == "" || window <= 0 {
		return true
	}
	now := s.now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)
	return true
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Alert) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-q:
			s.deliver(ctx, a)
		}
	}
}

func (s *Service) deliver(ctx context.Context, a Alert) {
	s.mu.Lock()
	owners := append([]int64(nil), s.owners...)
	retries := s.cfg.RetryMax
	base := s.cfg.RetryBase
	s.mu.Unlock()

	var errs []error
	for _, id := range owners {
		if err := s.limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = base
		_, err := backoff.Retry(ctx, func() (kit.MessageRef, error) {
			ref, err := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: id}, a.Text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
			if err != nil && !kit.KindOf(err).Retryable() {
				return ref, backoff.Permanent(err)
			}
			return ref, err
		}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(retries+1)))
		if err != nil {
			errs = append(errs, err)
		}
	}

	ev := SentEvent{Key: a.Key, Owners: len(owners), At: s.now()}
	if err := errors.Join(errs...); err != nil {
		ev.Error = err.Error()
		s.log.Warn("alert delivery failed", logx.String("key", a.Key), logx.Err(err))
	} else {
		s.log.Debug("alert sent", logx.String("key", a.Key), logx.Int("owners", len(owners)))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: EventSent, Time: ev.At, Data: ev})
	}
}
