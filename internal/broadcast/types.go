package broadcast

import (
	"broadcastbot/internal/compose"
)

type Config struct {
	Workers    int // concurrent sends per batch; default 10
	RatePerSec int // platform send rate limit; default 10
}

// Result summarizes one fan-out batch. Partial failure is terminal: failed
// destinations are recorded, never retried as a batch.
type Result struct {
	Total    int
	Sent     int
	Failed   int
	Failures []string // room ids
}

type target struct {
	roomID  string
	payload compose.Payload
}
