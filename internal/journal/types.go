// Package journal is an optional write-only record of handled events and
// per-room delivery outcomes. It is never consulted for decisions; every
// relay decision is recomputed per event from live platform queries.
package journal

import (
	"context"
	"errors"
	"strings"
	"time"

	"broadcastbot/pkg/logx"
)

var ErrDisabled = errors.New("journal disabled")

// Store is the persistence API used by the router and the dispatcher.
type Store interface {
	AppendEvent(ctx context.Context, e EventEntry) error
	AppendDelivery(ctx context.Context, e DeliveryEntry) error
	Close() error
}

// Config configures the journal.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver string
	Path   string
}

// EventEntry records one classified webhook event.
type EventEntry struct {
	At         time.Time
	Resource   string
	Event      string
	ResourceID string
	ActorID    string
	Outcome    string
}

// DeliveryEntry records one per-room send outcome.
type DeliveryEntry struct {
	At      time.Time
	EventID string
	RoomID  string
	Error   string
}

// Open initializes the configured store.
// It returns (nil, nil) if the journal is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown journal driver: " + driver)
	}
}
