package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	kit "linkguard/internal/transport"
)

type call struct {
	Op    string
	Chat  string
	ID    int
	Body  string
	TTL   time.Duration
	Limit int
}

// fakeClient is an in-memory ChannelClient. Behavior hooks are optional.
type fakeClient struct {
	mu     sync.Mutex
	calls  []call
	nextID int

	inviteErr map[string]error
	// block, if set, is waited on by CreateInviteLink.
	block   chan struct{}
	waiting atomic.Int32

	editErr   error
	deleteErr error
	sendErrs  []error // consumed one per SendMessage call
}

func newFakeClient() *fakeClient {
	return &fakeClient{nextID: 100, inviteErr: map[string]error{}}
}

func (f *fakeClient) CreateInviteLink(ctx context.Context, chat string, ttl time.Duration, limit int) (string, error) {
	if f.block != nil {
		f.waiting.Add(1)
		defer f.waiting.Add(-1)
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Op: "invite", Chat: chat, TTL: ttl, Limit: limit})
	if err := f.inviteErr[chat]; err != nil {
		return "", err
	}
	return "https://t.me/+" + chat, nil
}

func (f *fakeClient) SendMessage(_ context.Context, chat, html string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Op: "send", Chat: chat, Body: html})
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeClient) EditMessage(_ context.Context, chat string, id int, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Op: "edit", Chat: chat, ID: id, Body: html})
	return f.editErr
}

func (f *fakeClient) DeleteMessage(_ context.Context, chat string, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Op: "delete", Chat: chat, ID: id})
	return f.deleteErr
}

func (f *fakeClient) ops(kind string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if kind == "" || c.Op == kind {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeClient) opSeq() string {
	var s string
	for _, c := range f.ops("") {
		if c.Op == "invite" {
			continue
		}
		if s != "" {
			s += ","
		}
		s += c.Op
	}
	return s
}

func kitErr(kind kit.ErrorKind, op string) error {
	return &kit.Error{Kind: kind, Op: op, Err: errors.New(kind.String())}
}

// fakeTrigger records arm calls; Fire runs the armed func synchronously.
type fakeTrigger struct {
	mu       sync.Mutex
	fn       func()
	armed    []time.Duration
	disarmed int
	armErr   error
}

func (t *fakeTrigger) Arm(every time.Duration, fn func()) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armErr != nil {
		return nil, t.armErr
	}
	t.fn = fn
	t.armed = append(t.armed, every)
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.fn = nil
		t.disarmed++
	}, nil
}

func (t *fakeTrigger) Fire() bool {
	t.mu.Lock()
	fn := t.fn
	t.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

func (t *fakeTrigger) Armed() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.armed...)
}

type staticSource struct {
	mu  sync.Mutex
	cfg Config
}

func (s *staticSource) Snapshot() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone()
}

func (s *staticSource) Set(fn func(*Config)) (old, next Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old = s.cfg.Clone()
	fn(&s.cfg)
	return old, s.cfg.Clone()
}

type memSaver struct {
	mu     sync.Mutex
	states []PublishState
}

func (m *memSaver) SavePublishState(_ context.Context, st PublishState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, st)
	return nil
}

func testConfig(mode UpdateMode, sources ...string) Config {
	cfg := Config{
		Target:          "@target",
		IntervalMinutes: 5,
		UserLimit:       1,
		Template:        "Links:\n{links_list}",
		UpdateMode:      mode,
	}
	for i, id := range sources {
		cfg.Sources = append(cfg.Sources, SourceChat{ID: id, Alias: fmt.Sprintf("S%d", i+1)})
	}
	return cfg
}
