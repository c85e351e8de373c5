package router

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"broadcastbot/internal/locale"
	"broadcastbot/internal/policy"
	"broadcastbot/internal/webex"
	"broadcastbot/pkg/logx"
)

var roomURIRe = regexp.MustCompile(`ciscospark:.*/([^/]+)`)

// handleMembershipCreated runs the membership state machine: an allowed
// announcement-only room asks the actor for moderator promotion over DM; a
// disallowed room gets an explanatory post followed by self-removal.
func (r *Router) handleMembershipCreated(ctx context.Context, ev *Event) string {
	actor, err := r.platform.GetPerson(ctx, ev.ActorID)
	if err != nil {
		r.log.Warn("membership actor lookup failed", logx.String("actor_id", ev.ActorID), logx.Err(err))
	} else {
		r.log.Info("added to a room",
			logx.String("actor", actor.DisplayName),
			logx.String("actor_email", actor.Email()),
			logx.String("room_id", ev.Data.RoomID))
	}

	room, err := r.platform.GetRoom(ctx, ev.Data.RoomID)
	if err != nil {
		r.log.Error("room fetch failed", logx.String("room_id", ev.Data.RoomID), logx.Err(err))
		return "error"
	}
	bot, err := r.platform.Me(ctx)
	if err != nil {
		r.log.Error("bot identity lookup failed", logx.Err(err))
		return "error"
	}

	cfg := r.policies.Load()
	loc := locale.Pick(r.localeCode)

	if !policy.MembershipAllowed(room, bot, cfg) {
		return r.leaveRoom(ctx, ev, room, bot, loc)
	}

	if room.IsAnnouncementOnly {
		// The bot cannot post in announcement mode until promoted.
		link := roomDeepLink(room.ID)
		ask := fmt.Sprintf(loc.SpaceModerated, room.Title, link)
		if _, err := r.platform.CreateMessage(ctx, webex.OutMessage{
			ToPersonID: ev.ActorID,
			Markdown:   ask,
		}); err != nil {
			r.log.Error("moderation ask failed", logx.String("actor_id", ev.ActorID), logx.Err(err))
			return "error"
		}
		r.log.Debug("asked actor for moderator promotion", logx.String("room_id", room.ID))
		return "moderation-asked"
	}

	return "accepted"
}

func (r *Router) leaveRoom(ctx context.Context, ev *Event, room *webex.Room, bot *webex.Person, loc locale.Strings) string {
	orgName := bot.OrgID
	if org, err := r.platform.GetOrganization(ctx, bot.OrgID); err == nil {
		orgName = org.DisplayName
	}

	notice := fmt.Sprintf(loc.OutsideOrg, orgName)
	if _, err := r.platform.CreateMessage(ctx, webex.OutMessage{
		RoomID:   room.ID,
		Markdown: notice,
	}); err != nil {
		r.log.Error("policy notice failed", logx.String("room_id", room.ID), logx.Err(err))
	}
	if err := r.platform.DeleteMembership(ctx, ev.Data.ID); err != nil {
		r.log.Error("self-removal failed", logx.String("membership_id", ev.Data.ID), logx.Err(err))
		return "error"
	}
	r.log.Info("left disallowed room", logx.String("room_id", room.ID))
	return "self-removed"
}

// roomDeepLink builds the client deep link for a room. Room ids are base64
// resource URIs ending in the room UUID; if the id does not decode, the raw
// id is used so the message still renders.
func roomDeepLink(roomID string) string {
	decoded, err := decodeBase64Loose(roomID)
	if err == nil {
		if m := roomURIRe.FindStringSubmatch(decoded); m != nil {
			return "webexteams://im?space=" + m[1]
		}
	}
	return "webexteams://im?space=" + roomID
}

func decodeBase64Loose(s string) (string, error) {
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
