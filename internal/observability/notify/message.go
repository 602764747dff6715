package notify

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/target/refresh-orchestrator/internal/domain/model"
)

// Message is the channel-neutral content of a run notification.
type Message struct {
	Subject string
	Body    string
	Link    string
}

// Compose builds the message for n. baseURL is the web app root used for links; an unusable
// base URL leaves Link empty.
func Compose(n model.RunNotification, baseURL string) Message {
	owner := Possessive(TitleCase(n.OrganizationName))
	switch n.Outcome {
	case model.RunOutcomeTimedOut:
		subject := "A scheduled refresh of " + owner + " MGraph has timed out"
		return Message{
			Subject: subject,
			Body:    subject + ". Its queries did not all finish within an hour; check the refresh job settings.",
			Link:    joinLink(baseURL, "settings", "refresh-jobs"),
		}
	default:
		subject := owner + " MGraph has refreshed!"
		return Message{
			Subject: subject,
			Body:    subject + " Every scheduled query finished.",
			Link:    joinLink(baseURL, n.OrganizationName),
		}
	}
}

// TitleCase upper-cases the first letter of each space separated word.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Possessive appends 's, or only ' when the name already ends in s.
func Possessive(name string) string {
	if name == "" {
		return "Your organization's"
	}
	if strings.HasSuffix(strings.ToLower(name), "s") {
		return name + "'"
	}
	return name + "'s"
}

func joinLink(baseURL string, elems ...string) string {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	link, err := url.JoinPath(u.String(), elems...)
	if err != nil {
		return ""
	}
	return link
}
