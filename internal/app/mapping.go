package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"linkguard/internal/config"
	"linkguard/internal/notifier"
	"linkguard/internal/observability/debughttp"
	"linkguard/internal/rotation"
	"linkguard/internal/storage"
	"linkguard/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = "./linkguard_store"
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// groupLogChat parses telegram.group_log. Only numeric chat IDs are
// supported for the log sink.
func groupLogChat(cfg *config.Config) (int64, bool) {
	s := strings.TrimSpace(cfg.Telegram.GroupLog)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// mapRotationSeed converts the config file block into the settings seed.
func mapRotationSeed(cfg *config.Config) rotation.Config {
	r := config.DefaultRotation(cfg.Rotation)
	out := rotation.Config{
		Target:          strings.TrimSpace(r.Target),
		IntervalMinutes: r.IntervalMinutes,
		UserLimit:       r.UserLimit,
		Template:        r.Template,
		UpdateMode:      rotation.UpdateMode(strings.ToLower(strings.TrimSpace(r.UpdateMode))),
		Autostart:       r.Autostart,
	}
	for _, s := range r.Sources {
		out.Sources = append(out.Sources, rotation.SourceChat{
			ID:    strings.TrimSpace(s.ID),
			Alias: strings.TrimSpace(s.Alias),
		})
	}
	return out
}

type runtimeSettings struct {
	cycleTimeout time.Duration
	concurrency  int
	retries      int
	retryBase    time.Duration
	historySize  int
}

func mapRuntime(cfg *config.Config) (runtimeSettings, error) {
	rt := cfg.Runtime
	cycleTimeout, err := config.ParseDurationOrDefault("runtime.cycle_timeout", rt.CycleTimeout, 2*time.Minute)
	if err != nil {
		return runtimeSettings{}, err
	}
	retryBase, err := config.ParseDurationOrDefault("runtime.publish_retry_base", rt.PublishRetryBase, time.Second)
	if err != nil {
		return runtimeSettings{}, err
	}
	return runtimeSettings{
		cycleTimeout: cycleTimeout,
		concurrency:  rt.GenerateConcurrency,
		retries:      rt.PublishRetries,
		retryBase:    retryBase,
		historySize:  rt.HistorySize,
	}, nil
}

func mapAlertsConfig(cfg *config.Config) (notifier.Config, error) {
	a := cfg.Alerts
	window, err := config.ParseDurationOrDefault("alerts.dedup_window", a.DedupWindow, 30*time.Minute)
	if err != nil {
		return notifier.Config{}, err
	}
	retries := a.RetryMax
	if retries == 0 {
		retries = 2
	}
	return notifier.Config{
		Enabled:     a.Enabled == nil || *a.Enabled,
		RatePerSec:  a.RatePerSec,
		RetryMax:    retries,
		DedupWindow: window,
	}, nil
}

func mapDebugConfig(cfg *config.Config) debughttp.Config {
	d := cfg.Debug
	return debughttp.Config{
		Enabled:              d.Enabled,
		Addr:                 strings.TrimSpace(d.Addr),
		Token:                strings.TrimSpace(d.Token),
		Pprof:                d.Pprof,
		MutexProfileFraction: d.MutexProfileFraction,
		BlockProfileRate:     d.BlockProfileRate,
	}
}
