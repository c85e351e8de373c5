// Package router classifies inbound webhook payloads and drives the relay
// pipeline. All state is per-event; nothing persists between deliveries.
package router

import (
	"context"
	"time"

	"broadcastbot/internal/attachment"
	"broadcastbot/internal/broadcast"
	"broadcastbot/internal/compose"
	"broadcastbot/internal/journal"
	"broadcastbot/internal/locale"
	"broadcastbot/internal/metrics"
	"broadcastbot/internal/policy"
	"broadcastbot/internal/webex"
	"broadcastbot/pkg/logx"
)

// Event is the webhook envelope the platform POSTs.
type Event struct {
	Resource string    `json:"resource"`
	Event    string    `json:"event"`
	ActorID  string    `json:"actorId"`
	Data     EventData `json:"data"`
}

type EventData struct {
	ID          string `json:"id"`
	RoomID      string `json:"roomId"`
	RoomType    string `json:"roomType"`
	PersonID    string `json:"personId"`
	PersonEmail string `json:"personEmail"`
}

// Action is the classification outcome for one event.
type Action string

const (
	ActionReplicate  Action = "replicate"
	ActionMembership Action = "membership-check"
	ActionLogOnly    Action = "log-only"
	ActionIgnore     Action = "ignore"
)

// Classify maps a webhook envelope onto the pipeline action. Self-authored
// messages are decided later (the bot identity is fetched per event).
func Classify(ev *Event) Action {
	switch ev.Resource {
	case "messages":
		if ev.Event == "created" {
			return ActionReplicate
		}
	case "memberships":
		switch ev.Event {
		case "created":
			return ActionMembership
		case "deleted", "updated":
			return ActionLogOnly
		}
	}
	return ActionIgnore
}

// Platform is the remote API slice the router needs.
type Platform interface {
	Me(ctx context.Context) (*webex.Person, error)
	GetPerson(ctx context.Context, id string) (*webex.Person, error)
	GetMessage(ctx context.Context, id string) (*webex.Message, error)
	GetRoom(ctx context.Context, id string) (*webex.Room, error)
	GetOrganization(ctx context.Context, id string) (*webex.Organization, error)
	CreateMessage(ctx context.Context, m webex.OutMessage) (*webex.Message, error)
	DeleteMembership(ctx context.Context, id string) error
}

// Broadcaster dispatches the composed payloads (see broadcast.Dispatcher).
type Broadcaster interface {
	Broadcast(ctx context.Context, eventID string, group, direct compose.Payload, sender, bot *webex.Person, cfg policy.Config) (*broadcast.Result, error)
}

// Resolver fetches and classifies an attachment (see attachment.Resolver).
type Resolver interface {
	Resolve(ctx context.Context, url string) (*attachment.Resolved, error)
}

type Router struct {
	platform    Platform
	broadcaster Broadcaster
	resolver    Resolver
	policies    *policy.Loader
	localeCode  string
	store       journal.Store // may be nil
	log         logx.Logger
}

func New(platform Platform, b Broadcaster, r Resolver, policies *policy.Loader, localeCode string, store journal.Store, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		platform:    platform,
		broadcaster: b,
		resolver:    r,
		policies:    policies,
		localeCode:  localeCode,
		store:       store,
		log:         log,
	}
}

// HandleEvent runs one webhook event to completion. It never returns an
// error to the HTTP layer; every outcome is terminal and logged.
func (r *Router) HandleEvent(ctx context.Context, ev *Event) {
	metrics.EventsReceived.WithLabelValues(ev.Resource, ev.Event).Inc()

	var outcome string
	switch Classify(ev) {
	case ActionReplicate:
		outcome = r.handleMessageCreated(ctx, ev)
	case ActionMembership:
		outcome = r.handleMembershipCreated(ctx, ev)
	case ActionLogOnly:
		outcome = r.logMembershipChange(ctx, ev)
	default:
		r.log.Debug("ignoring webhook event",
			logx.String("resource", ev.Resource), logx.String("event", ev.Event))
		outcome = "ignored"
	}
	r.journalEvent(ctx, ev, outcome)
}

func (r *Router) handleMessageCreated(ctx context.Context, ev *Event) string {
	bot, err := r.platform.Me(ctx)
	if err != nil {
		r.log.Error("bot identity lookup failed", logx.Err(err))
		return "error"
	}
	if ev.Data.PersonEmail == bot.Email() || ev.Data.PersonID == bot.ID {
		// Never re-broadcast the bot's own posts; that loops forever.
		r.log.Debug("own message suppressed", logx.String("message_id", ev.Data.ID))
		return "self-suppressed"
	}

	msg, err := r.platform.GetMessage(ctx, ev.Data.ID)
	if err != nil {
		r.log.Error("message fetch failed", logx.String("message_id", ev.Data.ID), logx.Err(err))
		return "error"
	}
	sender, err := r.platform.GetPerson(ctx, msg.PersonID)
	if err != nil {
		r.log.Error("sender fetch failed", logx.String("person_id", msg.PersonID), logx.Err(err))
		return "error"
	}

	cfg := r.policies.Load()
	if !policy.SenderAllowed(sender, bot, cfg) {
		r.log.Debug("sender blocked by policy, broadcast not allowed",
			logx.String("sender", sender.Email()))
		return "sender-blocked"
	}

	// The platform allows a single attachment per reply; only the first
	// inbound attachment is ever considered.
	var att *attachment.Resolved
	if len(msg.Files) > 0 {
		att, err = r.resolver.Resolve(ctx, msg.Files[0])
		if err != nil {
			// Degraded mode: relay the text without the attachment rather
			// than failing the whole broadcast.
			r.log.Warn("attachment unavailable, relaying without it",
				logx.String("url", msg.Files[0]), logx.Err(err))
			att = nil
		}
	}

	group, direct := compose.Build(msg, sender, att, locale.Pick(r.localeCode))
	res, err := r.broadcaster.Broadcast(ctx, ev.Data.ID, group, direct, sender, bot, cfg)
	if err != nil {
		r.log.Error("broadcast failed", logx.String("message_id", ev.Data.ID), logx.Err(err))
		return "error"
	}
	r.log.Info("message replicated",
		logx.String("message_id", ev.Data.ID),
		logx.Int("sent", res.Sent), logx.Int("failed", res.Failed))
	return "replicated"
}

func (r *Router) logMembershipChange(ctx context.Context, ev *Event) string {
	actor, err := r.platform.GetPerson(ctx, ev.ActorID)
	if err != nil {
		r.log.Warn("membership change by unknown actor",
			logx.String("event", ev.Event), logx.String("room_id", ev.Data.RoomID), logx.Err(err))
		return "logged"
	}
	r.log.Info("membership changed",
		logx.String("event", ev.Event),
		logx.String("actor", actor.DisplayName),
		logx.String("actor_email", actor.Email()),
		logx.String("room_id", ev.Data.RoomID))
	return "logged"
}

func (r *Router) journalEvent(ctx context.Context, ev *Event, outcome string) {
	if r.store == nil {
		return
	}
	err := r.store.AppendEvent(ctx, journal.EventEntry{
		At:         time.Now(),
		Resource:   ev.Resource,
		Event:      ev.Event,
		ResourceID: ev.Data.ID,
		ActorID:    ev.ActorID,
		Outcome:    outcome,
	})
	if err != nil {
		r.log.Debug("journal append failed", logx.Err(err))
	}
}
