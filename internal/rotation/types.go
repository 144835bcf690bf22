package rotation

import (
	"fmt"
	"strings"
	"time"

	kit "linkguard/internal/transport"
)

// SourceChat is a chat invite links are minted for. Identity is ID; Alias
// only changes how the link is displayed.
type SourceChat struct {
	ID    string `json:"id"`
	Alias string `json:"alias,omitempty"`
}

// Display is the alias, or the ID if no alias is set.
func (s SourceChat) Display() string {
	if a := strings.TrimSpace(s.Alias); a != "" {
		return a
	}
	return s.ID
}

type UpdateMode string

const (
	ModeEdit    UpdateMode = "edit"
	ModeReplace UpdateMode = "replace"
)

// ParseUpdateMode accepts "edit" or "replace" in any case.
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch m := UpdateMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeEdit, ModeReplace:
		return m, nil
	default:
		return "", fmt.Errorf("%w: update mode %q (want edit|replace)", ErrConfigInvalid, s)
	}
}

// Toggle returns the other mode.
func (m UpdateMode) Toggle() UpdateMode {
	if m == ModeEdit {
		return ModeReplace
	}
	return ModeEdit
}

// Config is the rotation settings snapshot a cycle runs with. It is passed
// by value; use Clone before handing it to code that may keep it.
type Config struct {
	Target          string       `json:"target"`
	Sources         []SourceChat `json:"sources"`
	IntervalMinutes int          `json:"interval_minutes"`
	UserLimit       int          `json:"user_limit"`
	Template        string       `json:"template"`
	UpdateMode      UpdateMode   `json:"update_mode"`
	// Autostart resumes rotation at boot.
	Autostart bool `json:"autostart"`
}

func (c Config) Clone() Config {
	c.Sources = append([]SourceChat(nil), c.Sources...)
	return c
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Validate reports whether the scheduler may run with c.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Target) == "":
		return fmt.Errorf("%w: target chat is not set", ErrConfigInvalid)
	case !ValidChatID(c.Target):
		return fmt.Errorf("%w: invalid target chat %q", ErrConfigInvalid, c.Target)
	case len(c.Sources) == 0:
		return fmt.Errorf("%w: no source chats configured", ErrConfigInvalid)
	}
	for _, s := range c.Sources {
		if !ValidChatID(s.ID) {
			return fmt.Errorf("%w: invalid source chat %q", ErrConfigInvalid, s.ID)
		}
	}
	if c.IntervalMinutes < 1 {
		return fmt.Errorf("%w: interval must be >= 1 minute", ErrConfigInvalid)
	}
	if c.UserLimit < 1 {
		return fmt.Errorf("%w: user limit must be >= 1", ErrConfigInvalid)
	}
	if strings.TrimSpace(c.Template) == "" {
		return fmt.Errorf("%w: template is empty", ErrConfigInvalid)
	}
	if c.UpdateMode != ModeEdit && c.UpdateMode != ModeReplace {
		return fmt.Errorf("%w: update mode %q", ErrConfigInvalid, c.UpdateMode)
	}
	return nil
}

// ValidChatID accepts @usernames, negative numeric IDs (-100…) and plain digits.
func ValidChatID(id string) bool {
	switch {
	case strings.HasPrefix(id, "@"):
		name := id[1:]
		if name == "" {
			return false
		}
		for _, r := range name {
			if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
				return false
			}
		}
		return true
	case strings.HasPrefix(id, "-"):
		return isDigits(id[1:])
	default:
		return isDigits(id)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// GeneratedLink is one freshly minted invite token. Never reused across cycles.
type GeneratedLink struct {
	Source    SourceChat
	Token     string
	CreatedAt time.Time
}

// LinkResult is the per-source outcome of generation; exactly one of Link
// and Err is set.
type LinkResult struct {
	Source SourceChat
	Link   *GeneratedLink
	Err    *GenerationError
}

func (r LinkResult) OK() bool { return r.Link != nil }

// PublishState tracks the live announcement. LastMessageID 0 means none.
type PublishState struct {
	LastMessageID   int       `json:"last_message_id"`
	LastChat        string    `json:"last_chat,omitempty"`
	LastPublishedAt time.Time `json:"last_published_at"`
}

type JobStatus int

const (
	JobStopped JobStatus = iota
	JobRunning
)

func (s JobStatus) String() string {
	if s == JobRunning {
		return "running"
	}
	return "stopped"
}

type TriggerKind string

const (
	TriggerStart TriggerKind = "start"
	TriggerTick  TriggerKind = "tick"
)

type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomePartial       Outcome = "partial"
	OutcomeTotalFailure  Outcome = "total_failure"
	OutcomePublishFailed Outcome = "publish_failed"
	OutcomeConfigInvalid Outcome = "config_invalid"
)

type Action string

const (
	ActionNone     Action = ""
	ActionEdited   Action = "edited"
	ActionSent     Action = "sent"
	ActionReplaced Action = "replaced"
)

type SourceFailure struct {
	Source SourceChat    `json:"source"`
	Kind   kit.ErrorKind `json:"-"`
	Reason string        `json:"reason"`
}

// CycleReport summarizes one generate-then-publish run.
type CycleReport struct {
	ID         string          `json:"id"`
	Trigger    TriggerKind     `json:"trigger"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Outcome    Outcome         `json:"outcome"`
	Generated  int             `json:"generated"`
	Failed     int             `json:"failed"`
	Failures   []SourceFailure `json:"failures,omitempty"`
	MessageID  int             `json:"message_id,omitempty"`
	Action     Action          `json:"action,omitempty"`
	Err        error           `json:"-"`
}

func (r CycleReport) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// ErrText is Err's message, or "" if the cycle had no cycle-level error.
func (r CycleReport) ErrText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Status is the operator-facing view of the scheduler.
type Status struct {
	Job      JobStatus
	Interval time.Duration
	Cycles   uint64
	Skipped  uint64
	State    PublishState
	Last     *CycleReport
}
