// Package locale holds the user-visible string tables.
package locale

// Strings are the format templates for everything the bot posts.
type Strings struct {
	// MessageFromMention prefixes a group-room relay: personId, body.
	MessageFromMention string
	// MessageFromDirect prefixes a direct relay: display name, email, body.
	MessageFromDirect string
	// SpaceModerated asks the actor for moderator promotion: title, deep link.
	SpaceModerated string
	// OutsideOrg explains a policy-based self-removal: org display name.
	OutsideOrg string
}

const Default = "en_US"

var locales = map[string]Strings{
	"en_US": {
		MessageFromMention: "Message from <@personId:%s>:  \n\n%s",
		MessageFromDirect:  "Message from %s (%s):  \n\n%s",
		SpaceModerated:     "Space [%s](%s) is **Announcement only**, please make sure I am a moderator",
		OutsideOrg:         "I am allowed to communicate only in Spaces owned by **%s**",
	},
	"cs_CZ": {
		MessageFromMention: "Zpráva od <@personId:%s>:  \n\n%s",
		MessageFromDirect:  "Zpráva od %s (%s):  \n\n%s",
		SpaceModerated:     "Prostor [%s](%s) je v **režimu oznamování**, přidejte mě, prosím, mezi moderátory",
		OutsideOrg:         "Mám dovoleno komunikovat pouze v Prostorech vlastněných **%s**",
	},
}

// Pick returns the table for code, falling back to the default locale for
// unknown or empty values.
func Pick(code string) Strings {
	if s, ok := locales[code]; ok {
		return s
	}
	return locales[Default]
}

// Known reports whether code has a string table.
func Known(code string) bool {
	_, ok := locales[code]
	return ok
}
