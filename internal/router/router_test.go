package router

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"broadcastbot/internal/attachment"
	"broadcastbot/internal/broadcast"
	"broadcastbot/internal/compose"
	"broadcastbot/internal/config"
	"broadcastbot/internal/policy"
	"broadcastbot/internal/webex"
	"broadcastbot/pkg/logx"
)

var (
	botPerson    = &webex.Person{ID: "bot-id", Emails: []string{"relay@webex.bot"}, DisplayName: "Relay", OrgID: "org-a"}
	senderPerson = &webex.Person{ID: "alice-id", Emails: []string{"alice@example.com"}, DisplayName: "Alice", OrgID: "org-a"}
)

type fakePlatform struct {
	bot      *webex.Person
	people   map[string]*webex.Person
	messages map[string]*webex.Message
	rooms    map[string]*webex.Room
	orgs     map[string]*webex.Organization

	sent    []webex.OutMessage
	removed []string
}

func newPlatform() *fakePlatform {
	return &fakePlatform{
		bot:      botPerson,
		people:   map[string]*webex.Person{"alice-id": senderPerson},
		messages: map[string]*webex.Message{},
		rooms:    map[string]*webex.Room{},
		orgs:     map[string]*webex.Organization{"org-a": {ID: "org-a", DisplayName: "Example Corp"}},
	}
}

func (f *fakePlatform) Me(_ context.Context) (*webex.Person, error) { return f.bot, nil }

func (f *fakePlatform) GetPerson(_ context.Context, id string) (*webex.Person, error) {
	if p, ok := f.people[id]; ok {
		return p, nil
	}
	return nil, errors.New("person not found")
}

func (f *fakePlatform) GetMessage(_ context.Context, id string) (*webex.Message, error) {
	if m, ok := f.messages[id]; ok {
		return m, nil
	}
	return nil, errors.New("message not found")
}

func (f *fakePlatform) GetRoom(_ context.Context, id string) (*webex.Room, error) {
	if r, ok := f.rooms[id]; ok {
		return r, nil
	}
	return nil, errors.New("room not found")
}

func (f *fakePlatform) GetOrganization(_ context.Context, id string) (*webex.Organization, error) {
	if o, ok := f.orgs[id]; ok {
		return o, nil
	}
	return nil, errors.New("org not found")
}

func (f *fakePlatform) CreateMessage(_ context.Context, m webex.OutMessage) (*webex.Message, error) {
	f.sent = append(f.sent, m)
	return &webex.Message{ID: "sent"}, nil
}

func (f *fakePlatform) DeleteMembership(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return nil
}

type fakeBroadcaster struct {
	calls  int
	group  compose.Payload
	direct compose.Payload
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, _ string, group, direct compose.Payload, _, _ *webex.Person, _ policy.Config) (*broadcast.Result, error) {
	f.calls++
	f.group, f.direct = group, direct
	return &broadcast.Result{Total: 2, Sent: 2}, nil
}

type fakeResolver struct {
	calls int
	res   *attachment.Resolved
	err   error
}

func (f *fakeResolver) Resolve(_ context.Context, _ string) (*attachment.Resolved, error) {
	f.calls++
	return f.res, f.err
}

func loaderWithPolicy(t *testing.T, doc string) *policy.Loader {
	t.Helper()
	files := config.PolicyFiles{}
	if doc != "" {
		path := filepath.Join(t.TempDir(), "policy.json")
		if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
			t.Fatalf("write policy: %v", err)
		}
		files.DefaultFile = path
	}
	return policy.NewLoader(files, logx.Nop())
}

const openPolicy = `{"source":{},"destination":{},"membership":{}}`

func newRouter(p *fakePlatform, b *fakeBroadcaster, res *fakeResolver, pol *policy.Loader) *Router {
	return New(p, b, res, pol, "en_US", nil, logx.Nop())
}

func TestClassify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		resource, event string
		want            Action
	}{
		{"messages", "created", ActionReplicate},
		{"messages", "deleted", ActionIgnore},
		{"memberships", "created", ActionMembership},
		{"memberships", "deleted", ActionLogOnly},
		{"memberships", "updated", ActionLogOnly},
		{"rooms", "updated", ActionIgnore},
		{"attachmentActions", "created", ActionIgnore},
	}
	for _, c := range cases {
		got := Classify(&Event{Resource: c.resource, Event: c.event})
		if got != c.want {
			t.Errorf("Classify(%s/%s) = %q, want %q", c.resource, c.event, got, c.want)
		}
	}
}

func TestOwnMessageSuppressed(t *testing.T) {
	t.Parallel()
	p := newPlatform()
	b := &fakeBroadcaster{}
	r := newRouter(p, b, &fakeResolver{}, loaderWithPolicy(t, openPolicy))

	r.HandleEvent(context.Background(), &Event{
		Resource: "messages", Event: "created",
		Data: EventData{ID: "m1", PersonEmail: "relay@webex.bot"},
	})
	if b.calls != 0 {
		t.Fatal("the bot's own message must never be re-broadcast")
	}

	r.HandleEvent(context.Background(), &Event{
		Resource: "messages", Event: "created",
		Data: EventData{ID: "m1", PersonID: "bot-id"},
	})
	if b.calls != 0 {
		t.Fatal("suppression must also match on person id")
	}
}

func TestMessageReplicated(t *testing.T) {
	t.Parallel()
	p := newPlatform()
	p.messages["m1"] = &webex.Message{
		ID: "m1", PersonID: "alice-id",
		HTML: `<p><spark-mention data-object-type="person" data-object-id="bot-id">Relay</spark-mention> hello all</p>`,
	}
	b := &fakeBroadcaster{}
	res := &fakeResolver{}
	r := newRouter(p, b, res, loaderWithPolicy(t, openPolicy))

	r.HandleEvent(context.Background(), &Event{
		Resource: "messages", Event: "created",
		Data: EventData{ID: "m1", PersonID: "alice-id", PersonEmail: "alice@example.com"},
	})

	if b.calls != 1 {
		t.Fatalf("broadcast calls = %d, want 1", b.calls)
	}
	if res.calls != 0 {
		t.Fatal("no attachment on the message, resolver must not run")
	}
	if !strings.Contains(b.group.Markdown, "<@personId:alice-id>") {
		t.Fatalf("group variant missing mention prefix: %q", b.group.Markdown)
	}
	if strings.Contains(b.group.Markdown, "spark-mention") {
		t.Fatalf("mention markup leaked into relay body: %q", b.group.Markdown)
	}
	if !strings.Contains(b.direct.Markdown, "Alice (alice@example.com)") {
		t.Fatalf("direct variant missing sender identity: %q", b.direct.Markdown)
	}
}

func TestSenderBlockedByPolicy(t *testing.T) {
	t.Parallel()
	p := newPlatform()
	outsider := &webex.Person{ID: "bob-id", Emails: []string{"bob@other.com"}, OrgID: "org-b"}
	p.people["bob-id"] = outsider
	p.messages["m1"] = &webex.Message{ID: "m1", PersonID: "bob-id", Text: "hi"}
	b := &fakeBroadcaster{}
	// built-in defaults restrict the source to the bot's org
	r := newRouter(p, b, &fakeResolver{}, loaderWithPolicy(t, ""))

	r.HandleEvent(context.Background(), &Event{
		Resource: "messages", Event: "created",
		Data: EventData{ID: "m1", PersonID: "bob-id", PersonEmail: "bob@other.com"},
	})
	if b.calls != 0 {
		t.Fatal("out-of-org sender must be blocked by the default policy")
	}
}

func TestAttachmentFailureDegradesToTextOnly(t *testing.T) {
	t.Parallel()
	p := newPlatform()
	p.messages["m1"] = &webex.Message{
		ID: "m1", PersonID: "alice-id", Text: "report attached",
		Files: []string{"https://files.example.com/c1", "https://files.example.com/c2"},
	}
	b := &fakeBroadcaster{}
	res := &fakeResolver{err: attachment.ErrNotReady}
	r := newRouter(p, b, res, loaderWithPolicy(t, openPolicy))

	r.HandleEvent(context.Background(), &Event{
		Resource: "messages", Event: "created",
		Data: EventData{ID: "m1", PersonID: "alice-id"},
	})

	if res.calls != 1 {
		t.Fatalf("resolver calls = %d, want 1 (first file only)", res.calls)
	}
	if b.calls != 1 {
		t.Fatal("the text must still be relayed when the attachment is unavailable")
	}
	if b.group.Attachment != nil {
		t.Fatal("exhausted attachment must not be attached")
	}
}

func TestMembershipDisallowedLeavesRoom(t *testing.T) {
	t.Parallel()
	p := newPlatform()
	p.rooms["r1"] = &webex.Room{ID: "r1", Title: "Other Org Space", OwnerOrgID: "org-b"}
	pol := loaderWithPolicy(t, `{"source":{},"destination":{},"membership":{"bots_own_org":true}}`)
	r := newRouter(p, &fakeBroadcaster{}, &fakeResolver{}, pol)

	r.HandleEvent(context.Background(), &Event{
		Resource: "memberships", Event: "created", ActorID: "alice-id",
		Data: EventData{ID: "membership-1", RoomID: "r1"},
	})

	if len(p.sent) != 1 {
		t.Fatalf("sent %d messages, want the policy notice", len(p.sent))
	}
	if p.sent[0].RoomID != "r1" || !strings.Contains(p.sent[0].Markdown, "Example Corp") {
		t.Fatalf("unexpected notice: %+v", p.sent[0])
	}
	if len(p.removed) != 1 || p.removed[0] != "membership-1" {
		t.Fatalf("membership not removed: %v", p.removed)
	}
}

func TestAnnouncementRoomAsksActorOverDM(t *testing.T) {
	t.Parallel()
	p := newPlatform()
	// base64 of "ciscospark://us/ROOM/room-uuid-1"
	roomID := "Y2lzY29zcGFyazovL3VzL1JPT00vcm9vbS11dWlkLTE"
	p.rooms[roomID] = &webex.Room{
		ID: roomID, Title: "All Hands", OwnerOrgID: "org-a", IsAnnouncementOnly: true,
	}
	r := newRouter(p, &fakeBroadcaster{}, &fakeResolver{}, loaderWithPolicy(t, openPolicy))

	r.HandleEvent(context.Background(), &Event{
		Resource: "memberships", Event: "created", ActorID: "alice-id",
		Data: EventData{ID: "membership-1", RoomID: roomID},
	})

	if len(p.removed) != 0 {
		t.Fatal("allowed room must not be left")
	}
	if len(p.sent) != 1 {
		t.Fatalf("sent %d messages, want the moderation ask", len(p.sent))
	}
	dm := p.sent[0]
	if dm.ToPersonID != "alice-id" || dm.RoomID != "" {
		t.Fatalf("ask must go to the actor over DM: %+v", dm)
	}
	if !strings.Contains(dm.Markdown, "webexteams://im?space=room-uuid-1") {
		t.Fatalf("ask missing deep link: %q", dm.Markdown)
	}
}

func TestOrdinaryAllowedRoomIsQuiet(t *testing.T) {
	t.Parallel()
	p := newPlatform()
	p.rooms["r1"] = &webex.Room{ID: "r1", Title: "Team", OwnerOrgID: "org-a"}
	r := newRouter(p, &fakeBroadcaster{}, &fakeResolver{}, loaderWithPolicy(t, openPolicy))

	r.HandleEvent(context.Background(), &Event{
		Resource: "memberships", Event: "created", ActorID: "alice-id",
		Data: EventData{ID: "membership-1", RoomID: "r1"},
	})

	if len(p.sent) != 0 || len(p.removed) != 0 {
		t.Fatal("an allowed non-announcement room needs no reaction")
	}
}

func TestRoomDeepLinkFallsBackToRawID(t *testing.T) {
	t.Parallel()
	if got := roomDeepLink("!!not-base64!!"); got != "webexteams://im?space=!!not-base64!!" {
		t.Fatalf("roomDeepLink fallback = %q", got)
	}
}
