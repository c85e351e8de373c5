package policy

import (
	"context"

	"broadcastbot/internal/webex"
	"broadcastbot/pkg/logx"
)

// RoomFetcher is the single remote query destination checks may perform.
type RoomFetcher interface {
	GetRoom(ctx context.Context, id string) (*webex.Room, error)
}

// SenderAllowed reports whether the sender may trigger a broadcast.
//
// Enabled restrictions combine with logical AND: turning a flag on can only
// narrow permission, never widen it.
func SenderAllowed(sender, bot *webex.Person, cfg Config) bool {
	result := true
	if cfg.Source.RestrictToBotOrg {
		result = sender.OrgID == bot.OrgID
	}
	if cfg.Source.RestrictToSenderList {
		result = result && cfg.Source.InSenderList(sender.Email())
	}
	return result
}

// DestinationAllowed reports whether a broadcast may be delivered to roomID.
// A blocked sender blocks every destination. Room lookups fail closed: if the
// room cannot be fetched the destination is skipped, not errored.
func DestinationAllowed(ctx context.Context, rooms RoomFetcher, roomID string, sender, bot *webex.Person, cfg Config, log logx.Logger) bool {
	result := SenderAllowed(sender, bot, cfg)
	if !result {
		return false
	}
	if !cfg.Destination.RestrictToBotOrg && !cfg.Destination.RestrictToSenderOrg {
		return result
	}

	room, err := rooms.GetRoom(ctx, roomID)
	if err != nil {
		if !log.IsZero() {
			log.Warn("destination room lookup failed, blocking", logx.String("room_id", roomID), logx.Err(err))
		}
		return false
	}
	if cfg.Destination.RestrictToBotOrg {
		result = room.OwnerOrgID == bot.OrgID
	}
	if cfg.Destination.RestrictToSenderOrg {
		result = result && room.OwnerOrgID == sender.OrgID
	}
	return result
}

// MembershipAllowed reports whether the bot may stay in a room it was just
// added to.
func MembershipAllowed(room *webex.Room, bot *webex.Person, cfg Config) bool {
	if cfg.Membership.RestrictToBotOrg {
		return room.OwnerOrgID == bot.OrgID
	}
	return true
}
