package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Load reads the process config file and applies env overrides on top.
// A missing file is not an error: defaults are used (the bot credential must
// then come from the environment).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if derr := DecodeStrictFile(path, b, cfg); derr != nil {
				return nil, fmt.Errorf("config %s: %w", path, derr)
			}
		case os.IsNotExist(err):
			// fall through to defaults + env
		default:
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 5050
	}
	if strings.TrimSpace(cfg.Locale) == "" {
		cfg.Locale = "en_US"
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BOT_ACCESS_TOKEN"); v != "" {
		cfg.Webex.Token = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("LOCALE"); v != "" {
		cfg.Locale = v
	}
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
