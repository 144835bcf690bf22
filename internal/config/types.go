package config

// Config is the on-disk bot configuration (JSON or YAML).
//
// Secrets may be left out of the file and supplied through the environment
// (see EnvOverrides).
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Rotation seeds the settings store on first boot. Once an operator has
	// changed settings through commands (and storage is enabled), the stored
	// snapshot wins over this block.
	Rotation RotationConfig `json:"rotation"`
	Runtime  RuntimeConfig  `json:"runtime"`
	Alerts   AlertsConfig   `json:"alerts"`
	Debug    DebugConfig    `json:"debug"`

	Storage *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// RatePerSec throttles outgoing Bot API calls. 0 uses the default (20).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RotationConfig holds the initial rotation settings.
//
// Zero values fall back to the defaults in DefaultRotation.
type RotationConfig struct {
	Target          string         `json:"target,omitempty"`
	Sources         []SourceConfig `json:"sources,omitempty"`
	IntervalMinutes int            `json:"interval_minutes,omitempty"`
	UserLimit       int            `json:"user_limit,omitempty"`
	Template        string         `json:"template,omitempty"`
	// UpdateMode is "edit" or "replace".
	UpdateMode string `json:"update_mode,omitempty"`
	Autostart  bool   `json:"autostart,omitempty"`
}

type SourceConfig struct {
	ID    string `json:"id"`
	Alias string `json:"alias,omitempty"`
}

// RuntimeConfig tunes the rotation engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - cycle_timeout: "2m"
//   - generate_concurrency: 4
//   - publish_retries: 3
//   - publish_retry_base: "1s"
//   - history_size: 50
type RuntimeConfig struct {
	CycleTimeout        string `json:"cycle_timeout,omitempty"`
	GenerateConcurrency int    `json:"generate_concurrency,omitempty"`
	PublishRetries      int    `json:"publish_retries,omitempty"`
	PublishRetryBase    string `json:"publish_retry_base,omitempty"`
	HistorySize         int    `json:"history_size,omitempty"`
}

// AlertsConfig controls owner direct messages about failed cycles.
//
// Defaults: enabled, dedup_window "30m", rate_per_sec 1, retry_max 2.
type AlertsConfig struct {
	// Enabled defaults to true when omitted.
	Enabled     *bool  `json:"enabled,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	RetryMax    int    `json:"retry_max,omitempty"`
}

// DebugConfig controls the local HTTP endpoint (/healthz, /status and
// optionally /debug/pprof/). Applied live on reload.
//
// Binding to a non-loopback address requires a token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:6060"
	Token   string `json:"token,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./linkguard_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Rotation defaults.
const (
	DefaultIntervalMinutes = 5
	DefaultUserLimit       = 1
	DefaultTemplate        = "<b>Secure Access</b>:\n{links_list}"
	DefaultUpdateMode      = "replace"
)

// DefaultRotation returns r with zero fields replaced by defaults.
func DefaultRotation(r RotationConfig) RotationConfig {
	if r.IntervalMinutes <= 0 {
		r.IntervalMinutes = DefaultIntervalMinutes
	}
	if r.UserLimit <= 0 {
		r.UserLimit = DefaultUserLimit
	}
	if r.Template == "" {
		r.Template = DefaultTemplate
	}
	if r.UpdateMode == "" {
		r.UpdateMode = DefaultUpdateMode
	}
	return r
}
