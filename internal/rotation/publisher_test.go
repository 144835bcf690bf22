package rotation

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	kit "linkguard/internal/transport"
	"linkguard/pkg/logx"
)

func newTestPublisher(fc *fakeClient, retries int) *Publisher {
	return NewPublisher(fc, PublisherOptions{Retries: retries, RetryBase: time.Millisecond}, logx.Nop())
}

func allOK(cfg Config) []LinkResult {
	out := make([]LinkResult, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		out = append(out, okResult(s.ID, s.Alias, "tok-"+s.ID))
	}
	return out
}

func TestPublishFirstSend(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	p := newTestPublisher(fc, -1)
	cfg := testConfig(ModeEdit, "@a")

	st, rep, err := p.Publish(context.Background(), cfg, allOK(cfg), PublishState{})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if rep.Action != ActionSent || fc.opSeq() != "send" {
		t.Fatalf("action=%s ops=%s", rep.Action, fc.opSeq())
	}
	if st.LastMessageID != 101 || st.LastChat != "@target" || st.LastPublishedAt.IsZero() {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestPublishReplaceDeletesThenSends(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	fc.deleteErr = kitErr(kit.KindPermissionDenied, "delete")
	p := newTestPublisher(fc, -1)
	cfg := testConfig(ModeReplace, "@a")

	st, rep, err := p.Publish(context.Background(), cfg, allOK(cfg), PublishState{LastMessageID: 7, LastChat: "@target"})
	if err != nil {
		t.Fatalf("delete errors must be ignored: %v", err)
	}
	if fc.opSeq() != "delete,send" || rep.Action != ActionReplaced {
		t.Fatalf("ops=%s action=%s", fc.opSeq(), rep.Action)
	}
	if del := fc.ops("delete")[0]; del.ID != 7 {
		t.Fatalf("deleted wrong message: %+v", del)
	}
	if st.LastMessageID == 7 {
		t.Fatal("state must point at the new message")
	}
}

func TestPublishDeleteFailureIsWarned(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	fc.deleteErr = kitErr(kit.KindPermissionDenied, "delete")
	var buf bytes.Buffer
	p := NewPublisher(fc, PublisherOptions{Retries: -1}, logx.NewWriter(&buf, "info"))
	cfg := testConfig(ModeReplace, "@a")

	if _, _, err := p.Publish(context.Background(), cfg, allOK(cfg), PublishState{LastMessageID: 7, LastChat: "@target"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, "delete previous announcement failed") {
		t.Fatalf("delete failure not logged at warn: %q", out)
	}
}

func TestPublishEditInPlace(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	p := newTestPublisher(fc, -1)
	cfg := testConfig(ModeEdit, "@a")

	st, rep, err := p.Publish(context.Background(), cfg, allOK(cfg), PublishState{LastMessageID: 7})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fc.opSeq() != "edit" || rep.Action != ActionEdited || st.LastMessageID != 7 {
		t.Fatalf("ops=%s action=%s state=%+v", fc.opSeq(), rep.Action, st)
	}
	if body := fc.ops("edit")[0].Body; body != "Links:\nS1: tok-@a" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestPublishEditFallbacks(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		editErr error
		wantOps string
		action  Action
	}{
		{"message gone", kitErr(kit.KindNotFound, "edit"), "edit,send", ActionSent},
		{"other failure", kitErr(kit.KindPermissionDenied, "edit"), "edit,delete,send", ActionReplaced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fc := newFakeClient()
			fc.editErr = tt.editErr
			p := newTestPublisher(fc, -1)
			cfg := testConfig(ModeEdit, "@a")

			st, rep, err := p.Publish(context.Background(), cfg, allOK(cfg), PublishState{LastMessageID: 7})
			if err != nil {
				t.Fatalf("publish: %v", err)
			}
			if fc.opSeq() != tt.wantOps || rep.Action != tt.action {
				t.Fatalf("ops=%s action=%s", fc.opSeq(), rep.Action)
			}
			if rep.EditErr == nil || st.LastMessageID == 7 {
				t.Fatalf("rep=%+v state=%+v", rep, st)
			}
		})
	}
}

func TestPublishTargetChangedDeletesInOldChat(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	p := newTestPublisher(fc, -1)
	cfg := testConfig(ModeEdit, "@a")

	st, _, err := p.Publish(context.Background(), cfg, allOK(cfg), PublishState{LastMessageID: 7, LastChat: "@old"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fc.opSeq() != "delete,send" {
		t.Fatalf("ops=%s", fc.opSeq())
	}
	if del := fc.ops("delete")[0]; del.Chat != "@old" {
		t.Fatalf("deleted in %s", del.Chat)
	}
	if st.LastChat != "@target" {
		t.Fatalf("state chat %s", st.LastChat)
	}
}

func TestPublishSendFailureKeepsState(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	fc.sendErrs = []error{kitErr(kit.KindPermissionDenied, "send")}
	p := newTestPublisher(fc, 3)
	cfg := testConfig(ModeReplace, "@a")
	prev := PublishState{LastMessageID: 7, LastChat: "@target"}

	st, rep, err := p.Publish(context.Background(), cfg, allOK(cfg), prev)
	var pe *PublishError
	if !errors.As(err, &pe) || pe.Op != OpSend {
		t.Fatalf("want PublishError{send}, got %v", err)
	}
	if kit.KindOf(err) != kit.KindPermissionDenied {
		t.Fatalf("kind lost: %v", err)
	}
	if st != prev {
		t.Fatalf("state changed: %+v", st)
	}
	if rep.Attempts != 1 {
		t.Fatalf("permission errors must not be retried, attempts=%d", rep.Attempts)
	}
}

func TestPublishRetriesTransientSend(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	fc.sendErrs = []error{kitErr(kit.KindTransient, "send"), kitErr(kit.KindTransient, "send"), nil}
	p := newTestPublisher(fc, 3)
	cfg := testConfig(ModeReplace, "@a")

	st, rep, err := p.Publish(context.Background(), cfg, allOK(cfg), PublishState{})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if rep.Attempts != 3 || st.LastMessageID == 0 {
		t.Fatalf("attempts=%d state=%+v", rep.Attempts, st)
	}
}

func TestPublishRetriesExhausted(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	fc.sendErrs = []error{kitErr(kit.KindTransient, "send"), kitErr(kit.KindTransient, "send")}
	p := newTestPublisher(fc, 1)
	cfg := testConfig(ModeReplace, "@a")

	_, rep, err := p.Publish(context.Background(), cfg, allOK(cfg), PublishState{})
	if kit.KindOf(err) != kit.KindTransient {
		t.Fatalf("want transient error, got %v", err)
	}
	if rep.Attempts != 2 {
		t.Fatalf("attempts=%d", rep.Attempts)
	}
}
