package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"linkguard/internal/eventbus"
	"linkguard/internal/rotation"
	kit "linkguard/internal/transport"
	"linkguard/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  map[int64][]string
	calls int
	err   error
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                      { return nil }
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	if f.sent == nil {
		f.sent = map[int64][]string{}
	}
	f.sent[to.ChatID] = append(f.sent[to.ChatID], text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: f.calls}, nil
}

func startService(t *testing.T, cfg Config, ad *fakeAdapter) (*Service, eventbus.Bus, <-chan eventbus.Event) {
	t.Helper()
	bus := eventbus.New()
	sent, unsub := bus.Subscribe(16, EventSent)
	t.Cleanup(unsub)
	s := New(cfg, ad, []int64{1, 2}, logx.Nop(), bus)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s.Start(ctx)
	return s, bus, sent
}

func waitSent(t *testing.T, ch <-chan eventbus.Event) SentEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e.Data.(SentEvent)
	case <-time.After(2 * time.Second):
		t.Fatal("alert not delivered")
		return SentEvent{}
	}
}

func TestAlertFor(t *testing.T) {
	t.Parallel()
	total := rotation.CycleReport{
		Outcome:  rotation.OutcomeTotalFailure,
		Failures: []rotation.SourceFailure{{Source: rotation.SourceChat{ID: "@a"}, Reason: "bot <kicked>"}},
	}
	a, ok := alertFor(total, false)
	if !ok || a.Key != "cycle.total_failure" || !strings.Contains(a.Text, "<code>@a</code>: bot &lt;kicked&gt;") {
		t.Fatalf("alert %+v", a)
	}
	if _, ok := alertFor(rotation.CycleReport{Outcome: rotation.OutcomeSuccess}, false); ok {
		t.Fatal("healthy cycle should not alert")
	}
	if a, ok := alertFor(rotation.CycleReport{Outcome: rotation.OutcomePartial}, true); !ok || a.Key != "cycle.recovered" {
		t.Fatalf("recovery alert %+v", a)
	}
	pub := rotation.CycleReport{Outcome: rotation.OutcomePublishFailed, Err: errors.New("publish send: forbidden")}
	if a, ok := alertFor(pub, false); !ok || !strings.Contains(a.Text, "forbidden") {
		t.Fatalf("publish alert %+v", a)
	}
}

func TestOnCycleAlertsEveryOwnerAndDedups(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s, _, sent := startService(t, Config{Enabled: true, RatePerSec: 100, DedupWindow: time.Hour}, ad)

	fail := rotation.CycleReport{Outcome: rotation.OutcomeTotalFailure}
	s.OnCycle(fail)
	ev := waitSent(t, sent)
	if ev.Key != "cycle.total_failure" || ev.Owners != 2 || ev.Error != "" {
		t.Fatalf("event %+v", ev)
	}

	s.OnCycle(fail) // suppressed
	s.OnCycle(rotation.CycleReport{Outcome: rotation.OutcomeSuccess})
	if ev := waitSent(t, sent); ev.Key != "cycle.recovered" {
		t.Fatalf("want recovery, got %+v", ev)
	}

	s.OnCycle(fail) // dedup reset by recovery
	if ev := waitSent(t, sent); ev.Key != "cycle.total_failure" {
		t.Fatalf("want failure after recovery, got %+v", ev)
	}

	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.sent[1]) != 3 || len(ad.sent[2]) != 3 {
		t.Fatalf("sent %v", ad.sent)
	}
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{err: &kit.Error{Kind: kit.KindPermissionDenied, Op: "send", Err: errors.New("blocked")}}
	s, _, sent := startService(t, Config{Enabled: true, RatePerSec: 100, RetryMax: 3, RetryBase: time.Millisecond}, ad)
	s.SetOwners([]int64{1})

	if err := s.Notify(Alert{Key: "k", Text: "x"}); err != nil {
		t.Fatal(err)
	}
	if ev := waitSent(t, sent); ev.Error == "" {
		t.Fatal("delivery error not reported")
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if ad.calls != 1 {
		t.Fatalf("calls %d", ad.calls)
	}
}

func TestDisabledAndStopped(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &fakeAdapter{}, nil, logx.Nop(), nil)
	if err := s.Notify(Alert{Key: "k"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("want ErrDisabled, got %v", err)
	}
	s = New(Config{Enabled: true}, &fakeAdapter{}, nil, logx.Nop(), nil)
	if err := s.Notify(Alert{Key: "k"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("want ErrStopped, got %v", err)
	}
}
