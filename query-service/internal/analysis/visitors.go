package analysis

import (
	"sort"
	"strings"
	"time"

	"github.com/yudduy/cma-analysis/internal/tracker"
)

const HomepageURL = "https://checkmyads.org/"

// Visitor is the per-uuid aggregate within one randomization version.
type Visitor struct {
	UUID  string `json:"uuid"`
	Group string `json:"random_group"`

	Sessions          int `json:"num_sessions"`
	PageViews         int `json:"num_page_views"`
	PopupViews        int `json:"num_popup_views"`
	Referrals         int `json:"num_referral"`
	NewsletterSignups int `json:"num_newsletter_signup"`
	Donations         int `json:"num_donation"`

	FirstSessionStart   *time.Time `json:"first_session_start_time"`
	AverageSessionStart *time.Time `json:"average_session_start_time"`
	LastSessionStart    *time.Time `json:"last_session_start_time"`

	HomepagePct *float64 `json:"homepage_pct"`

	ViewAbout       int `json:"view_about"`
	ViewNews        int `json:"view_news"`
	ViewDonate      int `json:"view_donate"`
	ViewGoogleTrial int `json:"view_google_trial"`
	ViewShop        int `json:"view_shop"`

	ReferralGoogle               int `json:"referral_google"`
	ReferralPCGamer              int `json:"referral_pcgamer"`
	ReferralGlobalPrivacyControl int `json:"referral_globalprivacycontrol"`
	ReferralDuckDuckGo           int `json:"referral_duckduckgo"`
}

type visitorAcc struct {
	v            *Visitor
	sessionSecs  []float64
	homepageHits int
}

// Visitors aggregates records of one version per uuid, sorted by uuid.
func Visitors(records []Record) []Visitor {
	accs := make(map[string]*visitorAcc)
	var order []string

	for _, r := range records {
		acc, ok := accs[r.UUID]
		if !ok {
			acc = &visitorAcc{v: &Visitor{UUID: r.UUID, Group: r.RandomGroup}}
			accs[r.UUID] = acc
			order = append(order, r.UUID)
		}
		acc.add(r)
	}

	sort.Strings(order)
	out := make([]Visitor, 0, len(order))
	for _, id := range order {
		out = append(out, accs[id].finish())
	}
	return out
}

func (a *visitorAcc) add(r Record) {
	v := a.v
	switch r.Name {
	case tracker.EventSessionStart:
		v.Sessions++
		if r.Timestamp != nil {
			ts := r.Timestamp.UTC()
			a.sessionSecs = append(a.sessionSecs, float64(ts.UnixNano())/1e9)
			if v.FirstSessionStart == nil || ts.Before(*v.FirstSessionStart) {
				v.FirstSessionStart = &ts
			}
			if v.LastSessionStart == nil || ts.After(*v.LastSessionStart) {
				last := ts
				v.LastSessionStart = &last
			}
		}
	case tracker.EventPageView:
		v.PageViews++
	case tracker.EventPopupView:
		v.PopupViews++
	case tracker.EventReferral:
		v.Referrals++
	case tracker.EventNewsletterSignup:
		v.NewsletterSignups++
	case tracker.EventDonation:
		v.Donations++
	}

	if tracker.Str(r.URL) == HomepageURL {
		a.homepageHits++
	}
	if url := strings.ToLower(tracker.Str(r.URL)); url != "" {
		setFlag(&v.ViewAbout, url, "checkmyads.org/about")
		setFlag(&v.ViewNews, url, "checkmyads.org/news")
		setFlag(&v.ViewDonate, url, "checkmyads.org/donate")
		setFlag(&v.ViewGoogleTrial, url, "checkmyads.org/google")
		setFlag(&v.ViewShop, url, "checkmyads.org/shop")
	}
	if ref := strings.ToLower(tracker.Str(r.Referrer)); ref != "" {
		setFlag(&v.ReferralGoogle, ref, "google")
		setFlag(&v.ReferralPCGamer, ref, "pcgamer")
		setFlag(&v.ReferralGlobalPrivacyControl, ref, "globalprivacycontrol")
		setFlag(&v.ReferralDuckDuckGo, ref, "duckduckgo")
	}
}

func setFlag(flag *int, s, keyword string) {
	if strings.Contains(s, keyword) {
		*flag = 1
	}
}

func (a *visitorAcc) finish() Visitor {
	v := *a.v
	if len(a.sessionSecs) > 0 {
		var sum float64
		for _, s := range a.sessionSecs {
			sum += s
		}
		avg := secondsToTime(sum / float64(len(a.sessionSecs)))
		v.AverageSessionStart = &avg
	}
	if v.PageViews > 0 {
		pct := float64(a.homepageHits) / float64(v.PageViews)
		v.HomepagePct = &pct
	}
	return v
}

func secondsToTime(s float64) time.Time {
	whole := int64(s)
	nanos := int64((s - float64(whole)) * 1e9)
	return time.Unix(whole, nanos).UTC().Round(time.Millisecond)
}

// visitorGroups returns the distinct random groups of the visitors, sorted.
func visitorGroups(visitors []Visitor) []string {
	seen := make(map[string]bool)
	var groups []string
	for _, v := range visitors {
		if !seen[v.Group] {
			seen[v.Group] = true
			groups = append(groups, v.Group)
		}
	}
	sortGroups(groups)
	return groups
}

func byGroup(visitors []Visitor) map[string][]Visitor {
	out := make(map[string][]Visitor)
	for _, v := range visitors {
		out[v.Group] = append(out[v.Group], v)
	}
	return out
}
