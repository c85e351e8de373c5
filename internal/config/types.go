package config

// Config is the process configuration. It is loaded once at startup; the
// policy document (who may broadcast where) lives in its own files and is
// re-read per event, see internal/policy.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
	Webex     WebexConfig     `json:"webex"`
	Policy    PolicyFiles     `json:"policy"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Webhooks  WebhooksConfig  `json:"webhooks"`
	Journal   JournalConfig   `json:"journal"`

	// Locale selects the string table; overridable with the LOCALE env var.
	Locale string `json:"locale,omitempty"`
}

type ServerConfig struct {
	Port int `json:"port"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// WebexConfig configures the platform client. Token is normally supplied via
// the BOT_ACCESS_TOKEN env var rather than the file.
type WebexConfig struct {
	Token   string `json:"token,omitempty"`
	BaseURL string `json:"base_url,omitempty"`

	// Timeout is a Go duration string (e.g. "10s", "1m").
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// PolicyFiles points at the policy documents. DefaultFile replaces the
// built-in defaults; OverrideFile wins section-for-section over them.
type PolicyFiles struct {
	DefaultFile  string `json:"default_file,omitempty"`
	OverrideFile string `json:"override_file,omitempty"`

	// Watch enables eager validation of edited policy files. Handlers still
	// re-read the files per event regardless.
	Watch bool `json:"watch,omitempty"`
}

type BroadcastConfig struct {
	Workers    int `json:"workers,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// WebhooksConfig controls subscription reconciliation. TargetURL is only
// needed for cron-driven resyncs; the GET /webhook trigger derives the target
// from the request itself.
type WebhooksConfig struct {
	TargetURL  string `json:"target_url,omitempty"`
	ResyncCron string `json:"resync_cron,omitempty"`
}

// JournalConfig configures the optional write-only delivery journal.
// Driver "" or "none" disables it.
type JournalConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Defaults returns the configuration used when no config file is present.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: 5050},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Broadcast: BroadcastConfig{Workers: 10, RatePerSec: 10},
		Locale:    "en_US",
	}
}
