package webhooks

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"broadcastbot/pkg/logx"
)

// ScheduleResync registers a periodic reconciliation against a fixed public
// URL. Useful when the hosting platform occasionally drops registrations.
// Returns nil when spec or targetURL is empty (feature off).
func (m *Manager) ScheduleResync(spec, targetURL string) (*cron.Cron, error) {
	if strings.TrimSpace(spec) == "" || strings.TrimSpace(targetURL) == "" {
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := m.Reconcile(ctx, targetURL); err != nil {
			m.log.Warn("scheduled webhook resync failed", logx.Err(err))
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	m.log.Info("webhook resync scheduled", logx.String("cron", spec), logx.String("target", targetURL))
	return c, nil
}
