package webex

import "time"

// Room types as reported by the platform.
const (
	RoomTypeDirect = "direct"
	RoomTypeGroup  = "group"
)

// DefaultAvatarURL substitutes for bot accounts without an avatar.
const DefaultAvatarURL = "http://bit.ly/SparkBot-512x512"

// AdaptiveCardContentType is the attachment content type for platform cards.
const AdaptiveCardContentType = "application/vnd.microsoft.card.adaptive"

// Person is the bot itself or a message sender. Sourced from the platform,
// immutable per request, never persisted.
type Person struct {
	ID          string   `json:"id"`
	Emails      []string `json:"emails"`
	DisplayName string   `json:"displayName"`
	OrgID       string   `json:"orgId"`
	Avatar      string   `json:"avatar,omitempty"`
}

// Email returns the person's primary email address.
func (p Person) Email() string {
	if len(p.Emails) == 0 {
		return ""
	}
	return p.Emails[0]
}

// Room is a conversation the bot is a member of. The platform reports the
// owning organization in "ownerId".
type Room struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	Type               string `json:"type"`
	OwnerOrgID         string `json:"ownerId"`
	IsAnnouncementOnly bool   `json:"isAnnouncementOnly"`
}

// Membership is one entry per room the bot belongs to.
type Membership struct {
	ID       string `json:"id"`
	RoomID   string `json:"roomId"`
	RoomType string `json:"roomType"`
	PersonID string `json:"personId"`
}

// Message is an inbound message fetched by id after a webhook notification.
type Message struct {
	ID          string   `json:"id"`
	RoomID      string   `json:"roomId"`
	PersonID    string   `json:"personId"`
	PersonEmail string   `json:"personEmail"`
	Text        string   `json:"text,omitempty"`
	HTML        string   `json:"html,omitempty"`
	Markdown    string   `json:"markdown,omitempty"`
	Files       []string `json:"files,omitempty"`
}

// Organization is the administrative tenant a person or room belongs to.
type Organization struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Webhook is a registered subscription as the platform reports it.
type Webhook struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Resource  string `json:"resource"`
	Event     string `json:"event"`
	TargetURL string `json:"targetUrl"`
}

// CardAttachment wraps parsed JSON as a platform card. Mutually exclusive
// with a file attachment on one send.
type CardAttachment struct {
	ContentType string `json:"contentType"`
	Content     any    `json:"content"`
}

// WrapCard builds the card envelope for an already-parsed form.
func WrapCard(form any) CardAttachment {
	return CardAttachment{ContentType: AdaptiveCardContentType, Content: form}
}

// OutMessage is the JSON-body variant of a message create. Exactly one of
// RoomID/ToPersonID addresses the message; Files and Attachments must never
// be set together.
type OutMessage struct {
	RoomID      string           `json:"roomId,omitempty"`
	ToPersonID  string           `json:"toPersonId,omitempty"`
	Markdown    string           `json:"markdown,omitempty"`
	Files       []string         `json:"files,omitempty"`
	Attachments []CardAttachment `json:"attachments,omitempty"`
}

// File is a raw attachment uploaded with a message (multipart variant).
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileFetch is the outcome of one attachment probe+fetch round.
// RetryAfter > 0 means the content is not ready yet; no other field is set.
type FileFetch struct {
	RetryAfter  time.Duration
	Name        string
	ContentType string
	Data        []byte
}
