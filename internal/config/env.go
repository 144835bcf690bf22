package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvOverrides are settings read from the process environment (and an
// optional .env file). Non-empty values win over the config file.
type EnvOverrides struct {
	ConfigPath string `env:"LINKGUARD_CONFIG" envDefault:"./config.yaml"`
	Token      string `env:"BOT_TOKEN"`
	OwnerID    int64  `env:"OWNER_ID"`
	GroupLog   string `env:"LINKGUARD_GROUP_LOG"`
	LogLevel   string `env:"LINKGUARD_LOG_LEVEL"`

	StorageDriver string `env:"LINKGUARD_STORAGE_DRIVER"`
	StoragePath   string `env:"LINKGUARD_STORAGE_PATH"`
}

// LoadEnv loads .env (if present) and parses EnvOverrides.
func LoadEnv() (EnvOverrides, error) {
	_ = godotenv.Load()
	var ov EnvOverrides
	if err := env.Parse(&ov); err != nil {
		return EnvOverrides{}, fmt.Errorf("parse env: %w", err)
	}
	return ov, nil
}

// Apply overlays non-empty overrides onto cfg.
func (ov EnvOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if s := strings.TrimSpace(ov.Token); s != "" {
		cfg.Telegram.Token = s
	}
	if ov.OwnerID != 0 && !containsID(cfg.Telegram.OwnerUserIDs, ov.OwnerID) {
		cfg.Telegram.OwnerUserIDs = append(cfg.Telegram.OwnerUserIDs, ov.OwnerID)
	}
	if s := strings.TrimSpace(ov.GroupLog); s != "" {
		cfg.Telegram.GroupLog = s
	}
	if s := strings.TrimSpace(ov.LogLevel); s != "" {
		cfg.Logging.Level = s
	}
	if s := strings.TrimSpace(ov.StorageDriver); s != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{}
		}
		cfg.Storage.Driver = s
	}
	if s := strings.TrimSpace(ov.StoragePath); s != "" && cfg.Storage != nil {
		cfg.Storage.Path = s
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
