// Package attachment fetches a remote attachment with bounded
// retry-on-not-ready and classifies it for sending.
package attachment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"broadcastbot/internal/webex"
	"broadcastbot/pkg/logx"
)

// MaxFetchAttempts bounds the retry-on-not-ready loop.
const MaxFetchAttempts = 10

// CardPlaceholderMarkdown replaces the message body when a parsed form is
// sent as a card.
const CardPlaceholderMarkdown = "Form attached"

// ErrNotReady is returned once the retry bound is exhausted.
var ErrNotReady = errors.New("attachment: content not ready after retry bound")

// Fetcher performs one probe+fetch round (see webex.Client.FetchFile).
type Fetcher interface {
	FetchFile(ctx context.Context, url string) (*webex.FileFetch, error)
}

// Resolved is an attachment ready to send. Card is set only for well-formed
// JSON content; File is always populated so a rejected card can fall back to
// a plain file send.
type Resolved struct {
	Card *webex.CardAttachment
	File webex.File
}

type Resolver struct {
	fetcher Fetcher
	log     logx.Logger

	// sleep is swappable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewResolver(f Fetcher, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{fetcher: f, log: log, sleep: sleepCtx}
}

// Resolve fetches url, honoring the platform's Retry-After backoff up to
// MaxFetchAttempts times.
func (r *Resolver) Resolve(ctx context.Context, url string) (*Resolved, error) {
	for attempt := 1; attempt <= MaxFetchAttempts; attempt++ {
		ff, err := r.fetcher.FetchFile(ctx, url)
		if err != nil {
			return nil, err
		}
		if ff.RetryAfter > 0 {
			r.log.Info("attachment not ready",
				logx.String("url", url),
				logx.Int("attempt", attempt),
				logx.Duration("retry_after", ff.RetryAfter),
			)
			if attempt == MaxFetchAttempts {
				break
			}
			if err := r.sleep(ctx, ff.RetryAfter); err != nil {
				return nil, err
			}
			continue
		}
		return r.classify(ff), nil
	}
	return nil, fmt.Errorf("%w (%d attempts): %s", ErrNotReady, MaxFetchAttempts, url)
}

func (r *Resolver) classify(ff *webex.FileFetch) *Resolved {
	res := &Resolved{
		File: webex.File{Name: ff.Name, ContentType: ff.ContentType, Data: ff.Data},
	}
	if ff.ContentType != "application/json" {
		return res
	}

	var form any
	if err := json.Unmarshal(ff.Data, &form); err != nil {
		r.log.Error("JSON attachment does not parse, sending as plain file",
			logx.String("file", ff.Name), logx.Err(err))
		return res
	}
	card := webex.WrapCard(form)
	res.Card = &card
	r.log.Debug("JSON attachment wrapped as card", logx.String("file", ff.Name))
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
