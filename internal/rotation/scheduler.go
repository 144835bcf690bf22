package rotation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"linkguard/internal/eventbus"
	"linkguard/pkg/logx"
)

// EventCycle is published on the bus after every cycle with a CycleReport.
const EventCycle = "rotation.cycle"

const (
	defaultCycleTimeout = 2 * time.Minute
	defaultHistorySize  = 50
)

// ConfigSource yields the current rotation settings.
type ConfigSource interface {
	Snapshot() Config
}

// StateSaver persists the publish state after each successful publish.
type StateSaver interface {
	SavePublishState(ctx context.Context, st PublishState) error
}

type SchedulerOptions struct {
	Trigger      Trigger
	Bus          eventbus.Bus
	State        StateSaver
	CycleTimeout time.Duration
	HistorySize  int
	Logger       logx.Logger
}

// Scheduler runs rotation cycles while started. At most one cycle is in
// flight; a tick that finds one running is skipped.
type Scheduler struct {
	src  ConfigSource
	gen  *Generator
	pub  *Publisher
	trig Trigger
	bus  eventbus.Bus
	save StateSaver
	log  logx.Logger
	now  func() time.Time

	cycleTimeout time.Duration
	historySize  int

	cycleMu sync.Mutex

	mu       sync.Mutex
	status   JobStatus
	runGen   uint64
	interval time.Duration
	disarm   func()
	state    PublishState
	history  []CycleReport // newest last

	cycles  atomic.Uint64
	skipped atomic.Uint64
}

func NewScheduler(src ConfigSource, gen *Generator, pub *Publisher, opts SchedulerOptions) *Scheduler {
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = defaultCycleTimeout
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = defaultHistorySize
	}
	if opts.Trigger == nil {
		opts.Trigger = NewCronTrigger(opts.Logger)
	}
	return &Scheduler{
		src:          src,
		gen:          gen,
		pub:          pub,
		trig:         opts.Trigger,
		bus:          opts.Bus,
		save:         opts.State,
		log:          opts.Logger.With(logx.String("comp", "rotation")),
		now:          time.Now,
		cycleTimeout: opts.CycleTimeout,
		historySize:  opts.HistorySize,
	}
}

// Start validates the current settings, runs the first cycle immediately
// and then arms the periodic trigger. The first cycle's report is returned
// even when it failed; only config and state errors abort Start.
func (s *Scheduler) Start(ctx context.Context) (CycleReport, error) {
	cfg := s.src.Snapshot()
	if err := cfg.Validate(); err != nil {
		return CycleReport{}, err
	}

	s.mu.Lock()
	if s.status == JobRunning {
		s.mu.Unlock()
		return CycleReport{}, ErrAlreadyRunning
	}
	s.status = JobRunning
	s.runGen++
	gen := s.runGen
	s.mu.Unlock()

	s.log.Info("rotation started",
		logx.String("target", cfg.Target),
		logx.Int("sources", len(cfg.Sources)),
		logx.Int("interval_min", cfg.IntervalMinutes),
	)

	s.cycleMu.Lock()
	rep := s.cycleLocked(ctx, TriggerStart)
	s.cycleMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != JobRunning || s.runGen != gen {
		// Stopped while the first cycle ran.
		return rep, nil
	}
	// Read under mu so a concurrent Reconfigure cannot interleave.
	interval := s.src.Snapshot().Interval()
	disarm, err := s.trig.Arm(interval, s.tick)
	if err != nil {
		s.status = JobStopped
		return rep, err
	}
	s.disarm = disarm
	s.interval = interval
	return rep, nil
}

// Stop disarms the trigger. A cycle already in flight finishes and is
// recorded.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.status != JobRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.status = JobStopped
	s.runGen++
	disarm := s.disarm
	s.disarm = nil
	s.interval = 0
	s.mu.Unlock()

	if disarm != nil {
		disarm()
	}
	s.log.Info("rotation stopped")
	return nil
}

// Reconfigure re-arms the trigger when the interval changed while running.
// Every other setting is picked up by the next cycle's snapshot.
//
// Listener calls may arrive out of order, so the interval is taken from the
// current snapshot rather than the argument.
func (s *Scheduler) Reconfigure(_, _ Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv := s.src.Snapshot().Interval()
	if iv <= 0 {
		return
	}
	if s.status != JobRunning || s.disarm == nil || iv == s.interval {
		return
	}
	s.disarm()
	s.disarm = nil
	disarm, err := s.trig.Arm(iv, s.tick)
	if err != nil {
		s.log.Error("re-arm trigger failed", logx.Duration("interval", iv), logx.Err(err))
		return
	}
	s.disarm = disarm
	s.interval = iv
	s.log.Info("rotation interval changed", logx.Duration("interval", iv))
}

// Restore seeds the publish state (e.g. from storage) before the first Start.
func (s *Scheduler) Restore(st PublishState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == JobRunning {
		return
	}
	s.state = st
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == JobRunning
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Job:      s.status,
		Interval: s.interval,
		Cycles:   s.cycles.Load(),
		Skipped:  s.skipped.Load(),
		State:    s.state,
	}
	if n := len(s.history); n > 0 {
		last := s.history[n-1]
		st.Last = &last
	}
	return st
}

// History returns up to n reports, newest first (all if n <= 0).
func (s *Scheduler) History(n int) []CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]CycleReport, 0, n)
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.history[i])
	}
	return out
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	running := s.status == JobRunning
	s.mu.Unlock()
	if !running {
		return
	}
	if !s.cycleMu.TryLock() {
		s.skipped.Add(1)
		s.log.Warn("previous cycle still running, tick skipped")
		return
	}
	defer s.cycleMu.Unlock()
	s.cycleLocked(context.Background(), TriggerTick)
}

// cycleLocked runs one cycle. Caller holds cycleMu.
func (s *Scheduler) cycleLocked(parent context.Context, trig TriggerKind) CycleReport {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cycleTimeout)
	defer cancel()

	rep := CycleReport{ID: uuid.NewString(), Trigger: trig, StartedAt: s.now()}
	cfg := s.src.Snapshot()
	if err := cfg.Validate(); err != nil {
		rep.Outcome = OutcomeConfigInvalid
		rep.Err = err
		s.finish(&rep)
		return rep
	}

	results := s.gen.GenerateAll(ctx, cfg.Sources, cfg.IntervalMinutes, cfg.UserLimit)
	for _, r := range results {
		if r.OK() {
			rep.Generated++
			continue
		}
		rep.Failed++
		rep.Failures = append(rep.Failures, SourceFailure{
			Source: r.Source,
			Kind:   r.Err.Kind,
			Reason: r.Err.Err.Error(),
		})
	}

	s.mu.Lock()
	prev := s.state
	s.mu.Unlock()

	next, prep, err := s.pub.Publish(ctx, cfg, results, prev)
	rep.Action = prep.Action
	switch {
	case err != nil:
		rep.Outcome = OutcomePublishFailed
		rep.Err = err
	default:
		rep.MessageID = next.LastMessageID
		s.mu.Lock()
		s.state = next
		s.mu.Unlock()
		s.persist(ctx, next)
		switch {
		case rep.Failed == 0:
			rep.Outcome = OutcomeSuccess
		case rep.Generated == 0:
			rep.Outcome = OutcomeTotalFailure
			rep.Err = errors.New("no invite link could be generated")
		default:
			rep.Outcome = OutcomePartial
		}
	}
	s.finish(&rep)
	return rep
}

func (s *Scheduler) persist(ctx context.Context, st PublishState) {
	if s.save == nil {
		return
	}
	if err := s.save.SavePublishState(ctx, st); err != nil {
		s.log.Warn("save publish state failed", logx.Err(err))
	}
}

// finish stamps rep as finished and records it.
func (s *Scheduler) finish(rep *CycleReport) {
	rep.FinishedAt = s.now()
	s.cycles.Add(1)

	s.mu.Lock()
	s.history = append(s.history, *rep)
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
	s.mu.Unlock()

	fields := []logx.Field{
		logx.String("cycle", rep.ID),
		logx.String("trigger", string(rep.Trigger)),
		logx.String("outcome", string(rep.Outcome)),
		logx.Int("generated", rep.Generated),
		logx.Int("failed", rep.Failed),
		logx.Int("message_id", rep.MessageID),
		logx.Duration("took", rep.Duration()),
	}
	switch rep.Outcome {
	case OutcomeSuccess:
		s.log.Info("cycle done", fields...)
	case OutcomePartial:
		s.log.Warn("cycle partial", fields...)
	default:
		s.log.Error("cycle failed", append(fields, logx.Err(rep.Err))...)
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: EventCycle, Time: rep.FinishedAt, Data: *rep})
	}
}
