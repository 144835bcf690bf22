package adapter

import "time"

// Config configures the Telegram adapter.
type Config struct {
	Token       string
	PollTimeout time.Duration

	// RatePerSec throttles outgoing Bot API calls (0 = 20/s).
	RatePerSec int
}
