// Package policy decides whether a sender, destination, or new membership is
// permitted. The predicates are pure; the document they evaluate is re-read
// from disk on every event, so edits take effect without a restart.
package policy

import (
	"os"
	"strings"

	"broadcastbot/internal/config"
	"broadcastbot/pkg/logx"
)

// Config is the declarative policy document. Field names in files follow the
// original deployment format (bots_own_org etc.) for drop-in compatibility.
type Config struct {
	Source      SourceConfig      `json:"source"`
	Destination DestinationConfig `json:"destination"`
	Membership  MembershipConfig  `json:"membership"`
}

type SourceConfig struct {
	RestrictToBotOrg     bool     `json:"bots_own_org"`
	RestrictToSenderList bool     `json:"from_sender_list"`
	SenderList           []string `json:"sender_list"`
}

type DestinationConfig struct {
	RestrictToBotOrg    bool `json:"bots_own_org"`
	RestrictToSenderOrg bool `json:"senders_own_org"`
}

type MembershipConfig struct {
	RestrictToBotOrg bool `json:"bots_own_org"`
}

// InSenderList reports whether email is on the source allow-list.
func (s SourceConfig) InSenderList(email string) bool {
	for _, e := range s.SenderList {
		if strings.EqualFold(strings.TrimSpace(e), email) {
			return true
		}
	}
	return false
}

// DefaultConfig mirrors the built-in defaults of the original deployment.
func DefaultConfig() Config {
	return Config{
		Source:      SourceConfig{RestrictToBotOrg: true},
		Destination: DestinationConfig{RestrictToSenderOrg: true},
		Membership:  MembershipConfig{},
	}
}

// overrideDoc is the override file shape: each present section replaces the
// corresponding section wholesale (top-level key-for-key merge).
type overrideDoc struct {
	Source      *SourceConfig      `json:"source"`
	Destination *DestinationConfig `json:"destination"`
	Membership  *MembershipConfig  `json:"membership"`
}

// Loader reads the policy document. Load never fails: any unreadable or
// malformed file degrades to the layer below it and is logged.
type Loader struct {
	defaultFile  string
	overrideFile string
	log          logx.Logger
}

func NewLoader(files config.PolicyFiles, log logx.Logger) *Loader {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loader{
		defaultFile:  files.DefaultFile,
		overrideFile: files.OverrideFile,
		log:          log,
	}
}

// Load assembles the effective policy: built-in defaults, replaced by the
// default file when readable, then override file sections on top.
func (l *Loader) Load() Config {
	cfg := DefaultConfig()

	if l.defaultFile != "" {
		var fileCfg Config
		if err := readDoc(l.defaultFile, &fileCfg); err != nil {
			l.log.Warn("default policy file unusable, using built-in defaults",
				logx.String("path", l.defaultFile), logx.Err(err))
		} else {
			cfg = fileCfg
		}
	}

	overridePath := l.overrideFile
	if v := os.Getenv("CONFIG_FILE"); v != "" {
		overridePath = v
	}
	if overridePath != "" {
		var over overrideDoc
		if err := readDoc(overridePath, &over); err != nil {
			l.log.Warn("override policy file unusable, ignored",
				logx.String("path", overridePath), logx.Err(err))
		} else {
			if over.Source != nil {
				cfg.Source = *over.Source
			}
			if over.Destination != nil {
				cfg.Destination = *over.Destination
			}
			if over.Membership != nil {
				cfg.Membership = *over.Membership
			}
		}
	}

	return cfg
}

func readDoc(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return config.DecodeStrictFile(path, b, out)
}
