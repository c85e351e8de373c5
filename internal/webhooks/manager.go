// Package webhooks reconciles the platform's registered webhook
// subscriptions against the declarative desired set.
package webhooks

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"broadcastbot/internal/metrics"
	"broadcastbot/internal/webex"
	"broadcastbot/pkg/logx"
)

// API is the remote webhook-subscription surface.
type API interface {
	ListWebhooks(ctx context.Context) ([]webex.Webhook, error)
	CreateWebhook(ctx context.Context, w webex.Webhook) (*webex.Webhook, error)
	DeleteWebhook(ctx context.Context, id string) error
}

// desired is the fixed subscription table. Reconcile deletes everything and
// recreates exactly this set; no incremental diffing, so the registered set
// deterministically matches the table after every run.
var desired = []struct{ Resource, Event string }{
	{"messages", "created"},
	{"memberships", "created"},
	{"memberships", "deleted"},
	{"memberships", "updated"},
	{"rooms", "updated"},
}

const reconcileWorkers = 10

type Manager struct {
	api API
	log logx.Logger
}

func New(api API, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{api: api, log: log}
}

// SecureScheme rewrites an http scheme to https; every other scheme passes
// through unchanged.
func SecureScheme(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	return u.String()
}

// Reconcile replaces all of the bot's registered subscriptions with the
// desired set pointed at targetURL's host. Deletions are best-effort;
// the call succeeds only if every creation succeeded (already-created
// subscriptions are not rolled back on a later failure).
func (m *Manager) Reconcile(ctx context.Context, targetURL string) error {
	u, err := url.Parse(SecureScheme(targetURL))
	if err != nil {
		return fmt.Errorf("webhooks: bad target url %q: %w", targetURL, err)
	}
	target := u.Scheme + "://" + u.Host + "/webhook"
	m.log.Debug("reconciling webhooks", logx.String("target", target))

	existing, err := m.api.ListWebhooks(ctx)
	if err != nil {
		metrics.Reconciles.WithLabelValues("error").Inc()
		return fmt.Errorf("webhooks: list failed: %w", err)
	}

	// Phase 1: delete everything currently registered, best-effort.
	runPool(len(existing), func(i int) {
		wh := existing[i]
		if err := m.api.DeleteWebhook(ctx, wh.ID); err != nil {
			m.log.Error("webhook delete failed", logx.String("id", wh.ID), logx.Err(err))
			return
		}
		m.log.Debug("webhook deleted", logx.String("id", wh.ID),
			logx.String("resource", wh.Resource), logx.String("event", wh.Event))
	})

	// Phase 2: create the full desired set.
	var (
		mu       sync.Mutex
		firstErr error
	)
	runPool(len(desired), func(i int) {
		d := desired[i]
		wh := webex.Webhook{
			Name:      fmt.Sprintf("Webhook for event %q on resource %q", d.Event, d.Resource),
			Resource:  d.Resource,
			Event:     d.Event,
			TargetURL: target,
		}
		created, err := m.api.CreateWebhook(ctx, wh)
		if err != nil {
			m.log.Error("webhook create failed",
				logx.String("resource", d.Resource), logx.String("event", d.Event), logx.Err(err))
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			return
		}
		m.log.Debug("webhook created", logx.String("id", created.ID),
			logx.String("resource", d.Resource), logx.String("event", d.Event))
	})

	if firstErr != nil {
		metrics.Reconciles.WithLabelValues("failed").Inc()
		return fmt.Errorf("webhooks: create failed: %w", firstErr)
	}
	metrics.Reconciles.WithLabelValues("ok").Inc()
	m.log.Info("webhooks reconciled", logx.Int("deleted", len(existing)), logx.Int("created", len(desired)))
	return nil
}

// runPool executes fn(0..n-1) on a bounded worker pool and waits for all of
// them (join barrier).
func runPool(n int, fn func(i int)) {
	if n == 0 {
		return
	}
	workers := reconcileWorkers
	if workers > n {
		workers = n
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}
