package notifier

import (
	"fmt"
	"html"
	"strings"

	"linkguard/internal/rotation"
)

// alertFor maps a cycle report to an alert. failing tells whether the
// previous report was a failure; it drives the recovery alert.
func alertFor(rep rotation.CycleReport, failing bool) (Alert, bool) {
	switch rep.Outcome {
	case rotation.OutcomeTotalFailure:
		var b strings.Builder
		b.WriteString("🚨 <b>No invite link could be generated</b>\n")
		b.WriteString("A failure notice was published instead.")
		for _, f := range rep.Failures {
			fmt.Fprintf(&b, "\n• <code>%s</code>: %s", html.EscapeString(f.Source.ID), html.EscapeString(f.Reason))
		}
		return Alert{Key: "cycle.total_failure", Text: b.String()}, true
	case rotation.OutcomePublishFailed:
		return Alert{
			Key:  "cycle.publish_failed",
			Text: "🚨 <b>Announcement could not be posted</b>\n" + html.EscapeString(rep.ErrText()),
		}, true
	case rotation.OutcomeConfigInvalid:
		return Alert{
			Key:  "cycle.config_invalid",
			Text: "⚠️ <b>Rotation skipped</b>\n" + html.EscapeString(rep.ErrText()),
		}, true
	case rotation.OutcomeSuccess, rotation.OutcomePartial:
		if failing {
			return Alert{Key: "cycle.recovered", Text: "✅ <b>Rotation recovered</b>"}, true
		}
	}
	return Alert{}, false
}

func isFailure(o rotation.Outcome) bool {
	switch o {
	case rotation.OutcomeTotalFailure, rotation.OutcomePublishFailed, rotation.OutcomeConfigInvalid:
		return true
	}
	return false
}
