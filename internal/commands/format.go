package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"linkguard/internal/rotation"
	"linkguard/pkg/tgui"
)

const tsLayout = "2006-01-02 15:04:05"

func sourceLine(s rotation.SourceChat) tgui.H {
	if a := strings.TrimSpace(s.Alias); a != "" {
		return tgui.JoinH(" ", tgui.Raw("•"), tgui.Code(s.ID), tgui.Esc("("+a+")"))
	}
	return tgui.JoinH(" ", tgui.Raw("•"), tgui.Code(s.ID))
}

func formatConfig(cfg rotation.Config, st rotation.Status) tgui.Message {
	b := tgui.New().Title("⚙️", "Current configuration")
	if cfg.Target == "" {
		b.KV("Target", "not set")
	} else {
		b.KVH("Target", tgui.Code(cfg.Target))
	}
	if len(cfg.Sources) == 0 {
		b.KV("Sources", "none")
	} else {
		b.Line("Sources:")
		for _, s := range cfg.Sources {
			b.HTML(sourceLine(s))
		}
	}
	b.KV("Timer", fmt.Sprintf("%d minutes", cfg.IntervalMinutes)).
		KV("User limit", strconv.Itoa(cfg.UserLimit)).
		KV("Update mode", strings.ToUpper(string(cfg.UpdateMode))).
		KV("Job", st.Job.String())
	if st.State.LastMessageID != 0 {
		b.KV("Last message", strconv.Itoa(st.State.LastMessageID))
	}
	b.Blank().
		HTML(tgui.B("Template:")).
		HTML(tgui.Code(tgui.TruncRunes(cfg.Template, 1500)))
	return b.Build()
}

func formatStatus(st rotation.Status) tgui.Message {
	emoji := "⏹️"
	if st.Job == rotation.JobRunning {
		emoji = "🟢"
	}
	b := tgui.New().Title(emoji, "Rotation "+st.Job.String())
	if st.Interval > 0 {
		b.KV("Interval", st.Interval.String())
	}
	b.KV("Cycles", strconv.FormatUint(st.Cycles, 10)).
		KV("Skipped ticks", strconv.FormatUint(st.Skipped, 10))
	if st.State.LastMessageID != 0 {
		b.KV("Announcement", fmt.Sprintf("#%d in %s", st.State.LastMessageID, st.State.LastChat)).
			KV("Published", st.State.LastPublishedAt.Format(tsLayout))
	}
	if st.Last != nil {
		b.Blank().HTML(cycleLine(*st.Last))
	}
	return b.Build()
}

func formatHistory(reps []rotation.CycleReport) tgui.Message {
	if len(reps) == 0 {
		return tgui.New().Line("📜 No cycles yet").Build()
	}
	b := tgui.New().Title("📜", fmt.Sprintf("Last %d cycles", len(reps)))
	for i, r := range reps {
		b.HTML(tgui.Raw(strconv.Itoa(i+1) + ". " + cycleLine(r).String()))
	}
	return b.Build()
}

func outcomeEmoji(o rotation.Outcome) string {
	switch o {
	case rotation.OutcomeSuccess:
		return "✅"
	case rotation.OutcomePartial:
		return "⚠️"
	default:
		return "❌"
	}
}

// cycleLine renders one report as a compact HTML line plus failure details.
func cycleLine(r rotation.CycleReport) tgui.H {
	head := fmt.Sprintf("%s %s %s: %d ok, %d failed",
		outcomeEmoji(r.Outcome),
		r.StartedAt.Format(tsLayout),
		r.Outcome,
		r.Generated,
		r.Failed,
	)
	if r.Action != rotation.ActionNone {
		head += fmt.Sprintf(", %s #%d", r.Action, r.MessageID)
	}
	head += " (" + r.Duration().Round(time.Millisecond).String() + ")"
	parts := []tgui.H{tgui.Esc(head)}
	for _, f := range r.Failures {
		parts = append(parts, tgui.JoinH(" ", tgui.Raw("   ↳"), tgui.Code(f.Source.ID), tgui.Esc(tgui.TruncRunes(f.Reason, 120))))
	}
	if r.Outcome == rotation.OutcomePublishFailed || r.Outcome == rotation.OutcomeConfigInvalid {
		parts = append(parts, tgui.Esc("   ↳ "+tgui.TruncRunes(r.ErrText(), 200)))
	}
	return tgui.JoinH("\n", parts...)
}
