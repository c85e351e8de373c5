// Package compose builds outbound payloads from an inbound message.
package compose

import (
	"fmt"
	"regexp"

	"broadcastbot/internal/attachment"
	"broadcastbot/internal/locale"
	"broadcastbot/internal/webex"
)

// The platform renders @-mentions into spark-mention elements; re-sending
// them verbatim would double-render, so they are stripped before reuse.
var sparkMentionRE = regexp.MustCompile(`(?s)<spark-mention.*?</spark-mention>\s*`)

// Payload is one composed outbound message. Attachment is nil when the
// inbound message carried none (or resolution was exhausted).
type Payload struct {
	Markdown   string
	Attachment *attachment.Resolved
}

// Build produces the two relay variants: the group form (@-mention prefix)
// and the direct form (display name + email prefix). Both share the same
// attachment.
func Build(msg *webex.Message, sender *webex.Person, att *attachment.Resolved, loc locale.Strings) (group, direct Payload) {
	body := Body(msg)
	group = Payload{
		Markdown:   fmt.Sprintf(loc.MessageFromMention, sender.ID, body),
		Attachment: att,
	}
	direct = Payload{
		Markdown:   fmt.Sprintf(loc.MessageFromDirect, sender.DisplayName, sender.Email(), body),
		Attachment: att,
	}
	return group, direct
}

// Body picks the reusable message body: rendered HTML with mention markup
// stripped, else plain text, else empty.
func Body(msg *webex.Message) string {
	if msg.HTML != "" {
		return sparkMentionRE.ReplaceAllString(msg.HTML, "")
	}
	return msg.Text
}
