package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/yudduy/cma-analysis/internal/tracker"
)

// Writes a synthetic tracker feed (one JSON event per line) covering two
// randomization versions and three groups. Pipe it to a file and point
// FEED_URL at it, or POST the lines to the collector.
func main() {
	visitors := flag.Int("visitors", 300, "visitors per version")
	bots := flag.Int("bots", 10, "crawler visitors per version")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	enc := json.NewEncoder(out)

	g := &generator{rng: rng, clock: time.Now().UTC().Add(-21 * 24 * time.Hour)}
	for v, marker := range []string{"", "group_v2"} {
		if marker != "" {
			g.emit(enc, tracker.RawEvent{UUID: "system", Event: marker})
		}
		for i := 0; i < *visitors+*bots; i++ {
			g.visitor(enc, fmt.Sprint(1+rng.Intn(3)), i >= *visitors, v)
		}
	}
}

var (
	referrers = []string{
		"", "https://www.google.com/", "https://duckduckgo.com/", "https://www.facebook.com/",
		"https://t.co/abc", "https://www.reddit.com/r/privacy", "https://news.ycombinator.com/",
		"https://www.linkedin.com/feed/", "https://mail.google.com/",
	}
	pages     = []string{"https://checkmyads.org/", "https://checkmyads.org/about/", "https://checkmyads.org/news/", "https://checkmyads.org/donate/"}
	platforms = []string{"MacIntel", "Win32", "Linux x86_64", "iPhone"}
	languages = []string{"en-US", "en-GB", "fr-FR", "de-DE"}
	timezones = []string{"America/New_York", "America/Los_Angeles", "Europe/London", "Europe/Paris"}
	vendors   = []string{"Google Inc.", "Apple Computer, Inc.", ""}
	screens   = [][2]float64{{390, 844}, {1280, 800}, {1440, 900}, {1920, 1080}, {2560, 1440}}
	popups    = map[string]string{"1": "4217", "2": "4221", "3": "4223"}
)

const (
	browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_3) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15"
	crawlerUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

type generator struct {
	rng   *rand.Rand
	clock time.Time
}

func (g *generator) pick(xs []string) string {
	return xs[g.rng.Intn(len(xs))]
}

func (g *generator) emit(enc *json.Encoder, e tracker.RawEvent) {
	g.clock = g.clock.Add(time.Duration(1+g.rng.Intn(90)) * time.Second)
	e.Timestamp = tracker.Timestamp{Time: g.clock}
	_ = enc.Encode(e)
}

// visitor emits the sessions of one visitor. Later versions get a slightly
// higher signup rate for the treatment groups so the tests have something
// to find.
func (g *generator) visitor(enc *json.Encoder, group string, bot bool, version int) {
	id := uuid.NewString()
	ua := browserUA
	if bot {
		ua = crawlerUA
	}
	screen := screens[g.rng.Intn(len(screens))]
	browser := &tracker.RawBrowserInfo{
		UserAgent:    ua,
		Language:     g.pick(languages),
		Platform:     g.pick(platforms),
		ScreenWidth:  &screen[0],
		ScreenHeight: &screen[1],
		WindowWidth:  ptr(screen[0] - float64(g.rng.Intn(200))),
		WindowHeight: ptr(screen[1] - float64(80+g.rng.Intn(200))),
		Timezone:     g.pick(timezones),
		Vendor:       g.pick(vendors),
	}

	signupRate := 0.05
	if group != "3" {
		signupRate += 0.03 * float64(version+1)
	}

	sessions := 1 + g.rng.Intn(3)
	for s := 1; s <= sessions; s++ {
		count := float64(s)
		g.emit(enc, tracker.RawEvent{UUID: id, Event: tracker.EventSessionStart, Data: &tracker.RawData{
			Group:        tracker.FlexString(group),
			SessionCount: &count,
			BrowserInfo:  browser,
		}})
		if ref := g.pick(referrers); ref != "" {
			g.emit(enc, tracker.RawEvent{UUID: id, Event: tracker.EventReferral, Data: &tracker.RawData{Referrer: ref}})
		}
		views := 1 + g.rng.Intn(4)
		for p := 0; p < views; p++ {
			g.emit(enc, tracker.RawEvent{UUID: id, Event: tracker.EventPageView, Data: &tracker.RawData{URL: g.pick(pages)}})
		}
		if g.rng.Float64() < 0.6 {
			g.emit(enc, tracker.RawEvent{UUID: id, Event: tracker.EventPopupView, Data: &tracker.RawData{PopupID: tracker.FlexString(popups[group])}})
		}
		if !bot && g.rng.Float64() < signupRate {
			g.emit(enc, tracker.RawEvent{UUID: id, Event: tracker.EventNewsletterSignup})
		}
		if !bot && g.rng.Float64() < 0.01 {
			g.emit(enc, tracker.RawEvent{UUID: id, Event: tracker.EventDonation})
		}
		g.clock = g.clock.Add(time.Duration(1+g.rng.Intn(15)) * time.Minute)
	}
}

func ptr(f float64) *float64 { return &f }
