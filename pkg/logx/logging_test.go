package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.raw, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()
	line := `{"level":"warn","time":"x","message":"cycle partial","failed":1}`
	got := formatTelegramJSON([]byte(line))
	if !strings.HasPrefix(got, "[WARN] cycle partial") {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if !strings.Contains(got, "- failed=1") {
		t.Fatalf("missing field: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time should be omitted: %q", got)
	}
}

func TestFormatTelegramJSONSortsFields(t *testing.T) {
	t.Parallel()
	line := `{"level":"error","message":"cycle failed","outcome":"publish_failed","cycle":"c1","caller":"scheduler.go:1"}`
	want := "[ERROR] cycle failed\n- caller=scheduler.go:1\n- cycle=c1\n- outcome=publish_failed"
	if got := formatTelegramJSON([]byte(line)); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTelegramSinkFiltersLevelAndTarget(t *testing.T) {
	t.Parallel()
	sink := newTelegramSink(nil)
	sink.configure(TelegramConfig{Enabled: true, RatePerSec: 100})
	line := []byte(`{"level":"warn","message":"x"}`)

	// No sender and no target: nothing is queued.
	_, _ = sink.WriteLevel(zerolog.WarnLevel, line)
	sink.setTarget(-100, 0)
	_, _ = sink.WriteLevel(zerolog.WarnLevel, line)
	if n := len(sink.queue); n != 0 {
		t.Fatalf("queued %d without a running worker", n)
	}

	sink.cancel = func() {}
	_, _ = sink.WriteLevel(zerolog.InfoLevel, line)
	if n := len(sink.queue); n != 0 {
		t.Fatalf("info line queued below min level")
	}
	_, _ = sink.WriteLevel(zerolog.ErrorLevel, line)
	if n := len(sink.queue); n != 1 {
		t.Fatalf("queue = %d, want 1", n)
	}
	if it := <-sink.queue; it.to.ChatID != -100 || !strings.HasPrefix(it.msg, "[WARN] x") {
		t.Fatalf("item %+v", it)
	}
}

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "rotation"))
	log.Info("cycle done", Int("generated", 2))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if m["comp"] != "rotation" || m["generated"] != float64(2) || m["message"] != "cycle done" {
		t.Fatalf("unexpected log line: %v", m)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("nothing happens")
}
