package notifier

import "time"

// Config controls the alert pipeline.
type Config struct {
	Enabled     bool
	QueueSize   int
	RatePerSec  int
	RetryMax    int
	RetryBase   time.Duration
	DedupWindow time.Duration
}

// Alert is one owner notification. Text is HTML.
type Alert struct {
	Key  string
	Text string
}

// EventSent is published on the bus after an alert was delivered (or failed).
const EventSent = "notifier.sent"

// SentEvent describes a delivery attempt.
type SentEvent struct {
	Key    string    `json:"key"`
	Owners int       `json:"owners"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}
