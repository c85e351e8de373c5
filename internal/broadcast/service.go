// Package broadcast fans a composed message out to every eligible room the
// bot is currently a member of.
package broadcast

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"broadcastbot/internal/attachment"
	"broadcastbot/internal/compose"
	"broadcastbot/internal/journal"
	"broadcastbot/internal/metrics"
	"broadcastbot/internal/policy"
	"broadcastbot/internal/webex"
	"broadcastbot/pkg/logx"
)

// Platform is the remote API slice the dispatcher needs.
type Platform interface {
	ListMemberships(ctx context.Context) ([]webex.Membership, error)
	GetRoom(ctx context.Context, id string) (*webex.Room, error)
	CreateMessage(ctx context.Context, m webex.OutMessage) (*webex.Message, error)
	CreateMessageFile(ctx context.Context, roomID, markdown string, f webex.File) (*webex.Message, error)
}

type Dispatcher struct {
	cfg      Config
	platform Platform
	log      logx.Logger
	store    journal.Store // may be nil

	mu      sync.Mutex
	limiter *rate.Limiter
}

func New(cfg Config, platform Platform, store journal.Store, log logx.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:      cfg,
		platform: platform,
		log:      log,
		store:    store,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Broadcast re-enumerates the bot's memberships, applies the destination
// policy per room, and sends the matching payload variant to every permitted
// room concurrently. It returns after every send has finished, success or
// failure (join barrier); ordering between destinations is not guaranteed.
func (d *Dispatcher) Broadcast(ctx context.Context, eventID string, group, direct compose.Payload, sender, bot *webex.Person, cfg policy.Config) (*Result, error) {
	start := time.Now()

	memberships, err := d.platform.ListMemberships(ctx)
	if err != nil {
		return nil, err
	}

	var targets []target
	for _, m := range memberships {
		var payload compose.Payload
		switch m.RoomType {
		case webex.RoomTypeGroup:
			payload = group
		case webex.RoomTypeDirect:
			payload = direct
		default:
			d.log.Debug("skipping membership with unknown room type",
				logx.String("room_id", m.RoomID), logx.String("room_type", m.RoomType))
			continue
		}
		if !policy.DestinationAllowed(ctx, d.platform, m.RoomID, sender, bot, cfg, d.log) {
			d.log.Debug("destination blocked by policy", logx.String("room_id", m.RoomID))
			continue
		}
		targets = append(targets, target{roomID: m.RoomID, payload: payload})
	}

	res := &Result{Total: len(targets)}
	if len(targets) == 0 {
		d.log.Info("broadcast matched no destinations", logx.String("event_id", eventID))
		return res, nil
	}

	workers := d.cfg.Workers
	if workers > len(targets) {
		workers = len(targets)
	}

	jobs := make(chan target)
	var (
		resMu sync.Mutex
		wg    sync.WaitGroup
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.log.Error("panic in broadcast worker",
						logx.Int("worker", idx), logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			for t := range jobs {
				err := d.sendOne(ctx, t)
				d.record(ctx, eventID, t.roomID, err)
				resMu.Lock()
				if err != nil {
					res.Failed++
					res.Failures = append(res.Failures, t.roomID)
				} else {
					res.Sent++
				}
				resMu.Unlock()
			}
		}()
	}
	for _, t := range targets {
		jobs <- t
	}
	close(jobs)
	wg.Wait()

	fields := []logx.Field{
		logx.String("event_id", eventID),
		logx.Int("total", res.Total),
		logx.Int("failed", res.Failed),
		logx.Duration("took", time.Since(start)),
	}
	if res.Failed > 0 {
		d.log.Warn("broadcast finished with failures", fields...)
	} else {
		d.log.Info("broadcast finished", fields...)
	}
	return res, nil
}

// sendOne delivers to a single room: card payloads fall back to a plain file
// send exactly once if the platform rejects the card.
func (d *Dispatcher) sendOne(ctx context.Context, t target) error {
	d.mu.Lock()
	lim := d.limiter
	d.mu.Unlock()
	if err := lim.Wait(ctx); err != nil {
		return err
	}

	att := t.payload.Attachment
	if att == nil {
		_, err := d.platform.CreateMessage(ctx, webex.OutMessage{
			RoomID:   t.roomID,
			Markdown: t.payload.Markdown,
		})
		return err
	}

	if att.Card != nil {
		_, err := d.platform.CreateMessage(ctx, webex.OutMessage{
			RoomID:      t.roomID,
			Markdown:    attachment.CardPlaceholderMarkdown,
			Attachments: []webex.CardAttachment{*att.Card},
		})
		if err == nil {
			return nil
		}
		d.log.Error("card send rejected, falling back to file",
			logx.String("room_id", t.roomID), logx.Err(err))
	}

	_, err := d.platform.CreateMessageFile(ctx, t.roomID, t.payload.Markdown, att.File)
	return err
}

func (d *Dispatcher) record(ctx context.Context, eventID, roomID string, sendErr error) {
	if sendErr != nil {
		metrics.SendsFailed.Inc()
		d.log.Warn("send failed", logx.String("room_id", roomID), logx.Err(sendErr))
	} else {
		metrics.SendsOK.Inc()
	}
	if d.store == nil {
		return
	}
	e := journal.DeliveryEntry{
		At:      time.Now(),
		EventID: eventID,
		RoomID:  roomID,
	}
	if sendErr != nil {
		e.Error = sendErr.Error()
	}
	if err := d.store.AppendDelivery(ctx, e); err != nil {
		d.log.Debug("journal append failed", logx.Err(err))
	}
}
