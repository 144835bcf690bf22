package app

import (
	"errors"
	"strings"
	"testing"
	"time"

	"linkguard/internal/commands"
	"linkguard/internal/config"
	"linkguard/internal/eventbus"
	"linkguard/internal/rotation"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		storage *config.StorageConfig
		enabled bool
		driver  string
		wantErr bool
	}{
		{"nil", nil, false, "", false},
		{"none", &config.StorageConfig{Driver: "none"}, false, "", false},
		{"file default path", &config.StorageConfig{Driver: "file"}, true, "file", false},
		{"sqlite", &config.StorageConfig{Driver: "SQLite", Path: "x.db"}, true, "sqlite", false},
		{"sqlite without path", &config.StorageConfig{Driver: "sqlite"}, false, "", true},
		{"bad busy timeout", &config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "soon"}, false, "", true},
		{"unknown", &config.StorageConfig{Driver: "redis"}, false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sc, enabled, err := mapStorageConfig(&config.Config{Storage: tt.storage})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if enabled != tt.enabled || sc.Driver != tt.driver {
				t.Fatalf("got %+v enabled=%v", sc, enabled)
			}
		})
	}
}

func TestMapRotationSeedAppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Rotation: config.RotationConfig{
		Target:     " @target ",
		Sources:    []config.SourceConfig{{ID: "-1001", Alias: " Main "}},
		UpdateMode: "EDIT",
	}}
	got := mapRotationSeed(cfg)
	if got.Target != "@target" || got.IntervalMinutes != 5 || got.UserLimit != 1 {
		t.Fatalf("seed %+v", got)
	}
	if got.UpdateMode != rotation.ModeEdit || got.Sources[0].Alias != "Main" {
		t.Fatalf("seed %+v", got)
	}
	if got.Template != config.DefaultTemplate {
		t.Fatalf("template %q", got.Template)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("seed should validate: %v", err)
	}
}

func TestMapRuntimeDefaults(t *testing.T) {
	t.Parallel()
	rt, err := mapRuntime(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if rt.cycleTimeout != 2*time.Minute || rt.retryBase != time.Second {
		t.Fatalf("runtime %+v", rt)
	}
	if _, err := mapRuntime(&config.Config{Runtime: config.RuntimeConfig{CycleTimeout: "x"}}); err == nil {
		t.Fatal("bad duration accepted")
	}
}

func TestGroupLogChat(t *testing.T) {
	t.Parallel()
	if id, ok := groupLogChat(&config.Config{Telegram: config.TelegramConfig{GroupLog: " -1009 "}}); !ok || id != -1009 {
		t.Fatalf("got %d %v", id, ok)
	}
	if _, ok := groupLogChat(&config.Config{Telegram: config.TelegramConfig{GroupLog: "@logs"}}); ok {
		t.Fatal("usernames are not supported for the log sink")
	}
}

func TestAuditEntryFromCycle(t *testing.T) {
	t.Parallel()
	now := time.Now()
	rep := rotation.CycleReport{
		ID:         "c1",
		Trigger:    rotation.TriggerTick,
		StartedAt:  now,
		FinishedAt: now.Add(1500 * time.Millisecond),
		Outcome:    rotation.OutcomePartial,
		Generated:  1,
		Failed:     1,
		Failures:   []rotation.SourceFailure{{Source: rotation.SourceChat{ID: "@x"}, Reason: "chat not found"}},
		MessageID:  77,
		Action:     rotation.ActionReplaced,
	}
	ae, ok := auditEntry(eventbus.Event{Type: rotation.EventCycle, Data: rep})
	if !ok {
		t.Fatal("cycle not audited")
	}
	if ae.Kind != "cycle" || ae.Action != "partial" || ae.OK != 1 || ae.Fail != 1 || ae.Target != "77" || ae.TookMS != 1500 {
		t.Fatalf("entry %+v", ae)
	}
	if !strings.Contains(ae.MetaJSON, `"chat not found"`) || !strings.Contains(ae.MetaJSON, `"replaced"`) {
		t.Fatalf("meta %s", ae.MetaJSON)
	}
}

func TestAuditEntryFromCommand(t *testing.T) {
	t.Parallel()
	ev := commands.CommandEvent{At: time.Now(), ActorID: 42, ChatID: 7, Command: "set_timer", Args: "0", Err: errors.New("bad usage").Error()}
	ae, ok := auditEntry(eventbus.Event{Type: commands.EventCommand, Data: ev})
	if !ok || ae.Kind != "command" || ae.Fail != 1 || ae.OK != 0 || ae.ActorID != 42 || ae.Action != "set_timer" {
		t.Fatalf("entry %+v", ae)
	}
	if _, ok := auditEntry(eventbus.Event{Type: "other", Data: 1}); ok {
		t.Fatal("unknown events must be skipped")
	}
}

func TestMapAlertsConfig(t *testing.T) {
	t.Parallel()
	off := false
	tests := []struct {
		name    string
		in      config.AlertsConfig
		enabled bool
		window  time.Duration
		retries int
		wantErr bool
	}{
		{"defaults", config.AlertsConfig{}, true, 30 * time.Minute, 2, false},
		{"disabled", config.AlertsConfig{Enabled: &off}, false, 30 * time.Minute, 2, false},
		{"custom", config.AlertsConfig{DedupWindow: "5m", RetryMax: 4}, true, 5 * time.Minute, 4, false},
		{"bad window", config.AlertsConfig{DedupWindow: "often"}, false, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := mapAlertsConfig(&config.Config{Alerts: tt.in})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if tt.wantErr {
				return
			}
			if got.Enabled != tt.enabled || got.DedupWindow != tt.window || got.RetryMax != tt.retries {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestMapDebugConfigTrims(t *testing.T) {
	t.Parallel()
	got := mapDebugConfig(&config.Config{Debug: config.DebugConfig{
		Enabled: true,
		Addr:    " 127.0.0.1:7070 ",
		Token:   " tok ",
		Pprof:   true,
	}})
	if !got.Enabled || got.Addr != "127.0.0.1:7070" || got.Token != "tok" || !got.Pprof {
		t.Fatalf("got %+v", got)
	}
}
