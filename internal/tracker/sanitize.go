package tracker

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Sanitize strips markup from the free-text fields a browser controls.
// URLs and referrers keep their query strings; only tags are removed.
func Sanitize(e *Event) {
	for _, f := range []**string{
		&e.Group, &e.URL, &e.Referrer, &e.PopupID,
		&e.UserAgent, &e.Language, &e.Platform, &e.Timezone, &e.Vendor,
	} {
		if *f == nil {
			continue
		}
		*f = optString(clean(**f))
	}
	e.Name = clean(e.Name)
	e.UUID = clean(e.UUID)
}

func clean(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}
	// bluemonday escapes entities; undo that so "&" in a query string survives
	return html.UnescapeString(strict.Sanitize(s))
}
