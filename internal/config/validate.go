package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var ErrInvalid = errors.New("invalid config")

// Validate checks fields that would otherwise fail late at runtime.
// Rotation targets are only checked for shape; the settings store
// validates them fully.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil", ErrInvalid)
	}
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add("telegram.token: required (or set BOT_TOKEN)")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.Telegram.RatePerSec < 0 {
		add("telegram.rate_per_sec: must be >= 0")
	}

	r := cfg.Rotation
	if r.IntervalMinutes < 0 {
		add("rotation.interval_minutes: must be >= 1")
	}
	if r.UserLimit < 0 {
		add("rotation.user_limit: must be >= 1")
	}
	switch strings.ToLower(strings.TrimSpace(r.UpdateMode)) {
	case "", "edit", "replace":
	default:
		add("rotation.update_mode: %q (want edit|replace)", r.UpdateMode)
	}
	for i, s := range r.Sources {
		if strings.TrimSpace(s.ID) == "" {
			add("rotation.sources[%d].id: required", i)
		}
	}

	rt := cfg.Runtime
	if _, err := ParseDurationField("runtime.cycle_timeout", rt.CycleTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("runtime.publish_retry_base", rt.PublishRetryBase); err != nil {
		errs = append(errs, err)
	}
	if rt.GenerateConcurrency < 0 || rt.PublishRetries < 0 || rt.HistorySize < 0 {
		add("runtime: counts must be >= 0")
	}

	if _, err := ParseDurationField("alerts.dedup_window", cfg.Alerts.DedupWindow); err != nil {
		errs = append(errs, err)
	}
	if cfg.Alerts.RatePerSec < 0 || cfg.Alerts.RetryMax < 0 {
		add("alerts: counts must be >= 0")
	}

	if d := cfg.Debug; d.Enabled && strings.TrimSpace(d.Addr) != "" {
		if _, _, err := net.SplitHostPort(d.Addr); err != nil {
			add("debug.addr: %v", err)
		}
	}
	if cfg.Debug.MutexProfileFraction < 0 || cfg.Debug.BlockProfileRate < 0 {
		add("debug: profile rates must be >= 0")
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			add("storage.driver: %q (want file|sqlite)", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
