// Package app wires the relay together and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"broadcastbot/internal/attachment"
	"broadcastbot/internal/broadcast"
	"broadcastbot/internal/config"
	"broadcastbot/internal/journal"
	"broadcastbot/internal/locale"
	"broadcastbot/internal/policy"
	"broadcastbot/internal/router"
	"broadcastbot/internal/server"
	"broadcastbot/internal/webex"
	"broadcastbot/internal/webhooks"
	"broadcastbot/pkg/logx"
)

type App struct {
	cfg  *config.Config
	logs *logx.Service
	log  logx.Logger

	client   *webex.Client
	store    journal.Store
	policies *policy.Loader
	whmgr    *webhooks.Manager
	srv      *server.Server

	resync      *cron.Cron
	watchCancel context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	if !locale.Known(cfg.Locale) {
		log.Warn("unknown locale, falling back", logx.String("locale", cfg.Locale))
		cfg.Locale = locale.Default
	}

	timeout, err := config.ParseDurationField("webex.timeout", cfg.Webex.Timeout)
	if err != nil {
		logs.Close()
		return nil, err
	}
	client, err := webex.New(webex.Config{
		Token:      cfg.Webex.Token,
		BaseURL:    cfg.Webex.BaseURL,
		Timeout:    timeout,
		RatePerSec: cfg.Webex.RatePerSec,
	}, logs.Logger().With(logx.String("comp", "webex")))
	if err != nil {
		logs.Close()
		return nil, err
	}

	store, err := journal.Open(journal.Config{
		Driver: cfg.Journal.Driver,
		Path:   cfg.Journal.Path,
	}, logs.Logger().With(logx.String("comp", "journal")))
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("journal: %w", err)
	}

	policies := policy.NewLoader(cfg.Policy, logs.Logger().With(logx.String("comp", "policy")))
	resolver := attachment.NewResolver(client, logs.Logger().With(logx.String("comp", "attachment")))
	dispatcher := broadcast.New(broadcast.Config{
		Workers:    cfg.Broadcast.Workers,
		RatePerSec: cfg.Broadcast.RatePerSec,
	}, client, store, logs.Logger().With(logx.String("comp", "broadcast")))
	whmgr := webhooks.New(client, logs.Logger().With(logx.String("comp", "webhooks")))
	events := router.New(client, dispatcher, resolver, policies, cfg.Locale, store,
		logs.Logger().With(logx.String("comp", "router")))
	srv := server.New(cfg.Server.Port, events, whmgr, client,
		logs.Logger().With(logx.String("comp", "http")))

	return &App{
		cfg:      cfg,
		logs:     logs,
		log:      log,
		client:   client,
		store:    store,
		policies: policies,
		whmgr:    whmgr,
		srv:      srv,
	}, nil
}

// Start brings the relay up: credential sanity check, policy watcher,
// scheduled webhook resync, HTTP listener. The returned channel reports a
// fatal listener error.
func (a *App) Start(ctx context.Context) (<-chan error, error) {
	a.checkCredential(ctx)

	if a.cfg.Policy.Watch {
		wctx, cancel := context.WithCancel(ctx)
		a.watchCancel = cancel
		go func() {
			if err := a.policies.Watch(wctx); err != nil {
				a.log.Warn("policy watcher exited", logx.Err(err))
			}
		}()
	}

	resync, err := a.whmgr.ScheduleResync(a.cfg.Webhooks.ResyncCron, a.cfg.Webhooks.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("webhooks.resync_cron: %w", err)
	}
	a.resync = resync

	errCh := a.srv.Start()

	// Best effort; ignored outside a systemd unit.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	a.log.Info("relay started", logx.Int("port", a.cfg.Server.Port), logx.String("locale", a.cfg.Locale))
	return errCh, nil
}

// checkCredential verifies the token belongs to a bot account. A failure is
// logged, not fatal: the platform may be temporarily unreachable.
func (a *App) checkCredential(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	me, err := a.client.Me(cctx)
	if err != nil {
		a.log.Warn("bot identity not verifiable at startup", logx.Err(err))
		return
	}
	email := me.Email()
	if !strings.Contains(email, "@sparkbot.io") && !strings.Contains(email, "@webex.bot") {
		a.log.Error("access token does not belong to a bot account; review the credential",
			logx.String("email", email))
		return
	}
	a.log.Info("bot identity verified",
		logx.String("name", me.DisplayName), logx.String("email", email))
}

func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
	}
	if a.resync != nil {
		a.resync.Stop()
	}
	err := a.srv.Shutdown(ctx)
	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("relay stopped")
	_ = a.logs.Close()
	return err
}
