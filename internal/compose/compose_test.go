package compose

import (
	"strings"
	"testing"

	"broadcastbot/internal/locale"
	"broadcastbot/internal/webex"
)

func TestBodyStripsMentionMarkup(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  webex.Message
		want string
	}{
		{
			name: "mention stripped",
			msg:  webex.Message{HTML: `<spark-mention data-object-type="person" data-object-id="x">Bot</spark-mention> hello there`},
			want: "hello there",
		},
		{
			name: "two mentions stripped",
			msg:  webex.Message{HTML: `<spark-mention id="a">Bot</spark-mention> hi <spark-mention id="b">You</spark-mention> there`},
			want: "hi there",
		},
		{
			name: "plain html untouched",
			msg:  webex.Message{HTML: "<strong>hi</strong>"},
			want: "<strong>hi</strong>",
		},
		{
			name: "text fallback",
			msg:  webex.Message{Text: "plain"},
			want: "plain",
		},
		{
			name: "empty fallback",
			msg:  webex.Message{},
			want: "",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Body(&tt.msg); got != tt.want {
				t.Fatalf("Body = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildVariants(t *testing.T) {
	t.Parallel()
	sender := &webex.Person{
		ID:          "sender-id",
		DisplayName: "Alice",
		Emails:      []string{"alice@example.com"},
	}
	msg := &webex.Message{Text: "hello"}

	group, direct := Build(msg, sender, nil, locale.Pick("en_US"))

	if !strings.Contains(group.Markdown, "<@personId:sender-id>") {
		t.Fatalf("group variant missing mention reference: %q", group.Markdown)
	}
	if !strings.Contains(group.Markdown, "hello") {
		t.Fatalf("group variant missing body: %q", group.Markdown)
	}
	if !strings.Contains(direct.Markdown, "Alice") || !strings.Contains(direct.Markdown, "alice@example.com") {
		t.Fatalf("direct variant missing sender identity: %q", direct.Markdown)
	}
	if group.Attachment != nil || direct.Attachment != nil {
		t.Fatal("no attachment expected")
	}
}
