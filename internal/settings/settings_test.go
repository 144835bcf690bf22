package settings

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"linkguard/internal/rotation"
	"linkguard/internal/storage"
	"linkguard/pkg/logx"
)

func seed() rotation.Config {
	return rotation.Config{
		IntervalMinutes: 5,
		UserLimit:       1,
		Template:        "<b>Secure Access</b>:\n{links_list}",
		UpdateMode:      rotation.ModeReplace,
	}
}

func openFileStore(t *testing.T, dir string) storage.Store {
	t.Helper()
	kv, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "linkguard")}, logx.Nop())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestSettersValidate(t *testing.T) {
	t.Parallel()
	s := New(seed(), nil, logx.Nop())
	tests := []struct {
		name string
		err  error
	}{
		{"interval", s.SetInterval(0)},
		{"limit", s.SetLimit(-1)},
		{"template", s.SetTemplate("   ")},
		{"mode", s.SetUpdateMode("append")},
		{"target", s.SetChannels("target", []rotation.SourceChat{{ID: "@a"}})},
		{"no sources", s.SetChannels("@t", nil)},
		{"bad source", s.SetChannels("@t", []rotation.SourceChat{{ID: "a"}})},
		{"dup source", s.SetChannels("@t", []rotation.SourceChat{{ID: "@a"}, {ID: "@a", Alias: "x"}})},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, rotation.ErrConfigInvalid) {
			t.Fatalf("%s: want ErrConfigInvalid, got %v", tt.name, tt.err)
		}
	}
	if got := s.Snapshot(); got.IntervalMinutes != 5 || got.UserLimit != 1 || got.Target != "" {
		t.Fatalf("rejected updates leaked into settings: %+v", got)
	}
}

func TestSetChannelsTrimsAndCommits(t *testing.T) {
	t.Parallel()
	s := New(seed(), nil, logx.Nop())
	err := s.SetChannels(" @target ", []rotation.SourceChat{{ID: " -1001 ", Alias: " Main "}, {ID: "@b"}})
	if err != nil {
		t.Fatalf("set channels: %v", err)
	}
	got := s.Snapshot()
	if got.Target != "@target" || got.Sources[0].ID != "-1001" || got.Sources[0].Alias != "Main" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("snapshot should be runnable: %v", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	s := New(seed(), nil, logx.Nop())
	_ = s.SetChannels("@t", []rotation.SourceChat{{ID: "@a"}})
	snap := s.Snapshot()
	snap.Sources[0].ID = "@mutated"
	if s.Snapshot().Sources[0].ID != "@a" {
		t.Fatal("snapshot aliases internal state")
	}
}

func TestToggleUpdateMode(t *testing.T) {
	t.Parallel()
	s := New(seed(), nil, logx.Nop())
	m, err := s.ToggleUpdateMode()
	if err != nil || m != rotation.ModeEdit {
		t.Fatalf("toggle: %q %v", m, err)
	}
	m, _ = s.ToggleUpdateMode()
	if m != rotation.ModeReplace || s.Snapshot().UpdateMode != rotation.ModeReplace {
		t.Fatalf("toggle back: %q", m)
	}
}

func TestListenersSeeOldAndNew(t *testing.T) {
	t.Parallel()
	s := New(seed(), nil, logx.Nop())
	var (
		mu    sync.Mutex
		calls [][2]int
	)
	s.OnChange(func(old, next rotation.Config) {
		// Reading back must not deadlock.
		_ = s.Snapshot()
		mu.Lock()
		calls = append(calls, [2]int{old.IntervalMinutes, next.IntervalMinutes})
		mu.Unlock()
	})
	if err := s.SetInterval(10); err != nil {
		t.Fatal(err)
	}
	_ = s.SetInterval(0)
	_ = s.SetAutostart(false) // unchanged, no notification

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 || calls[0] != [2]int{5, 10} {
		t.Fatalf("calls %v", calls)
	}
}

func TestPersistAndLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	kv := openFileStore(t, dir)

	s := New(seed(), kv, logx.Nop())
	if err := s.SetChannels("@t", []rotation.SourceChat{{ID: "@a", Alias: "A"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetInterval(15); err != nil {
		t.Fatal(err)
	}
	st := rotation.PublishState{LastMessageID: 9, LastChat: "@t"}
	if err := s.SavePublishState(context.Background(), st); err != nil {
		t.Fatal(err)
	}

	fresh := New(seed(), kv, logx.Nop())
	ok, err := fresh.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("load: %v %v", ok, err)
	}
	got := fresh.Snapshot()
	if got.IntervalMinutes != 15 || got.Target != "@t" || got.Sources[0].Alias != "A" {
		t.Fatalf("loaded %+v", got)
	}
	gotState, ok, err := fresh.LoadPublishState(context.Background())
	if err != nil || !ok || gotState.LastMessageID != 9 {
		t.Fatalf("state %+v %v %v", gotState, ok, err)
	}
}

func TestLoadWithoutStorage(t *testing.T) {
	t.Parallel()
	s := New(seed(), nil, logx.Nop())
	ok, err := s.Load(context.Background())
	if ok || err != nil {
		t.Fatalf("load: %v %v", ok, err)
	}
	if err := s.SavePublishState(context.Background(), rotation.PublishState{LastMessageID: 1}); err != nil {
		t.Fatalf("save without storage: %v", err)
	}
}
