package app

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"linkguard/internal/commands"
	"linkguard/internal/eventbus"
	"linkguard/internal/rotation"
	"linkguard/internal/storage"
	"linkguard/pkg/logx"
)

// auditEntry maps a bus event to a storage row. ok is false for events
// that are not audited.
func auditEntry(e eventbus.Event) (storage.AuditEntry, bool) {
	switch d := e.Data.(type) {
	case rotation.CycleReport:
		meta := map[string]any{
			"cycle":   d.ID,
			"trigger": d.Trigger,
			"outcome": d.Outcome,
		}
		if len(d.Failures) > 0 {
			meta["failures"] = d.Failures
		}
		if d.Action != rotation.ActionNone {
			meta["action"] = d.Action
		}
		raw, _ := json.Marshal(meta)
		return storage.AuditEntry{
			At:       d.StartedAt,
			Kind:     "cycle",
			Action:   string(d.Outcome),
			Target:   itoaNonZero(d.MessageID),
			OK:       d.Generated,
			Fail:     d.Failed,
			Error:    d.ErrText(),
			TookMS:   d.Duration().Milliseconds(),
			MetaJSON: string(raw),
		}, true
	case commands.CommandEvent:
		ae := storage.AuditEntry{
			At:      d.At,
			Kind:    "command",
			ActorID: d.ActorID,
			ChatID:  d.ChatID,
			Action:  d.Command,
			Target:  d.Args,
			Error:   d.Err,
			TookMS:  d.Took.Milliseconds(),
		}
		if d.OK {
			ae.OK = 1
		} else {
			ae.Fail = 1
		}
		return ae, true
	default:
		return storage.AuditEntry{}, false
	}
}

func itoaNonZero(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// runAuditRecorder persists cycle and command events until ctx is done.
func runAuditRecorder(ctx context.Context, bus eventbus.Bus, st storage.Store, log logx.Logger) {
	events, unsub := bus.Subscribe(128, rotation.EventCycle, commands.EventCommand)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			ae, ok := auditEntry(e)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := st.AppendAudit(wctx, ae); err != nil {
				log.Warn("audit append failed", logx.String("kind", ae.Kind), logx.Err(err))
			}
			cancel()
		}
	}
}
