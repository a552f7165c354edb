package moderation

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// A tag marker is '#' followed by at least one letter, digit or underscore,
// at the start of the caption or after whitespace.
var tagPattern = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_]+)`)

// Promo is the advertisement appended to published posts.
type Promo struct {
	Phrases []string
	URL     string
}

func Tags(caption string) []string {
	matches := tagPattern.FindAllStringSubmatch(caption, -1)
	if len(matches) == 0 {
		return nil
	}

	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, m[1])
	}

	return tags
}

func HasTag(caption string) bool {
	return tagPattern.MatchString(caption)
}

// ComposePublishCaption builds the HTML caption of a channel post: author,
// original caption, a link back to the bot and one promo phrase picked
// with pick(len(phrases)).
func ComposePublishCaption(displayName, caption, botUsername string, promo Promo, pick func(n int) int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "👤 <b>%s</b>\n\n%s", html.EscapeString(displayName), html.EscapeString(caption))

	if botUsername != "" {
		fmt.Fprintf(&b, "\n\n<a href=\"https://t.me/%s\">Предложить арт</a>", html.EscapeString(botUsername))
	}

	if len(promo.Phrases) > 0 && promo.URL != "" {
		i := pick(len(promo.Phrases))
		if i < 0 || i >= len(promo.Phrases) {
			i = 0
		}

		fmt.Fprintf(&b, "\n\n<a href=\"%s\">%s</a>", html.EscapeString(promo.URL), html.EscapeString(promo.Phrases[i]))
	}

	return b.String()
}

func reviewCaption(suggestionID, submitterID int64, displayName, caption string) string {
	return fmt.Sprintf("Предложение #%d от <a href=\"tg://user?id=%d\">%s</a>:\n\n%s",
		suggestionID, submitterID, html.EscapeString(displayName), html.EscapeString(caption))
}
