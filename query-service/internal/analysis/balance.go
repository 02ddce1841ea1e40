package analysis

import (
	"math"
	"strings"
	"time"
)

// metric extracts one numeric characteristic of a visitor. ok is false for
// a missing value.
type metric struct {
	name     string
	datetime bool
	value    func(v Visitor) (float64, bool)
}

func count(f func(v Visitor) int) func(Visitor) (float64, bool) {
	return func(v Visitor) (float64, bool) { return float64(f(v)), true }
}

func epoch(f func(v Visitor) *time.Time) func(Visitor) (float64, bool) {
	return func(v Visitor) (float64, bool) {
		t := f(v)
		if t == nil {
			return 0, false
		}
		return float64(t.Unix()), true
	}
}

var balanceMetrics = []metric{
	{name: "num_sessions", value: count(func(v Visitor) int { return v.Sessions })},
	{name: "num_page_views", value: count(func(v Visitor) int { return v.PageViews })},
	{name: "num_popup_views", value: count(func(v Visitor) int { return v.PopupViews })},
	{name: "num_referral", value: count(func(v Visitor) int { return v.Referrals })},
	{name: "num_newsletter_signup", value: count(func(v Visitor) int { return v.NewsletterSignups })},
	{name: "num_donation", value: count(func(v Visitor) int { return v.Donations })},
	{name: "first_session_start_time", datetime: true, value: epoch(func(v Visitor) *time.Time { return v.FirstSessionStart })},
	{name: "average_session_start_time", datetime: true, value: epoch(func(v Visitor) *time.Time { return v.AverageSessionStart })},
	{name: "last_session_start_time", datetime: true, value: epoch(func(v Visitor) *time.Time { return v.LastSessionStart })},
	{name: "homepage_pct", value: func(v Visitor) (float64, bool) {
		if v.HomepagePct == nil {
			return 0, false
		}
		return *v.HomepagePct, true
	}},
	{name: "view_about", value: count(func(v Visitor) int { return v.ViewAbout })},
	{name: "view_news", value: count(func(v Visitor) int { return v.ViewNews })},
	{name: "view_donate", value: count(func(v Visitor) int { return v.ViewDonate })},
	{name: "view_google_trial", value: count(func(v Visitor) int { return v.ViewGoogleTrial })},
	{name: "view_shop", value: count(func(v Visitor) int { return v.ViewShop })},
	{name: "referral_google", value: count(func(v Visitor) int { return v.ReferralGoogle })},
	{name: "referral_pcgamer", value: count(func(v Visitor) int { return v.ReferralPCGamer })},
	{name: "referral_globalprivacycontrol", value: count(func(v Visitor) int { return v.ReferralGlobalPrivacyControl })},
	{name: "referral_duckduckgo", value: count(func(v Visitor) int { return v.ReferralDuckDuckGo })},
}

// BalanceSummary is one group's mean and SD for a characteristic. Datetime
// characteristics carry MeanTime and SDDays instead of Mean and SD.
type BalanceSummary struct {
	Group    string     `json:"random_group"`
	N        int        `json:"n"`
	Mean     *float64   `json:"mean,omitempty"`
	SD       *float64   `json:"sd,omitempty"`
	MeanTime *time.Time `json:"mean_time,omitempty"`
	SDDays   *float64   `json:"sd_days,omitempty"`
}

type BalancePValue struct {
	GroupA string   `json:"group_1"`
	GroupB string   `json:"group_2"`
	P      *float64 `json:"p_value"`
}

type BalanceMetric struct {
	Metric   string           `json:"characteristic"`
	Label    string           `json:"label"`
	Datetime bool             `json:"datetime"`
	Summary  []BalanceSummary `json:"summary"`
	PValues  []BalancePValue  `json:"p_values"`
}

// Balance compares every visitor characteristic across random groups.
// Missing values are omitted per characteristic.
func Balance(visitors []Visitor) []BalanceMetric {
	grouped := byGroup(visitors)
	groups := visitorGroups(visitors)

	out := make([]BalanceMetric, 0, len(balanceMetrics))
	for _, m := range balanceMetrics {
		bm := BalanceMetric{
			Metric:   m.name,
			Label:    strings.ReplaceAll(m.name, "_", " "),
			Datetime: m.datetime,
		}

		values := make(map[string][]float64, len(groups))
		for _, g := range groups {
			var xs []float64
			for _, v := range grouped[g] {
				if x, ok := m.value(v); ok {
					xs = append(xs, x)
				}
			}
			values[g] = xs
			bm.Summary = append(bm.Summary, summarize(g, xs, m.datetime))
		}

		for _, p := range pairs(groups) {
			pv := BalancePValue{GroupA: p.a, GroupB: p.b}
			if w, ok := WelchTest(values[p.a], values[p.b]); ok {
				r := round(w.P, 4)
				pv.P = &r
			}
			bm.PValues = append(bm.PValues, pv)
		}
		out = append(out, bm)
	}
	return out
}

func summarize(group string, xs []float64, datetime bool) BalanceSummary {
	s := BalanceSummary{Group: group, N: len(xs)}
	if len(xs) == 0 {
		return s
	}
	m := mean(xs)
	sd := sampleSD(xs)
	if !datetime {
		r := round(m, 3)
		s.Mean = &r
		s.SD = roundPtr(sd, 3)
		return s
	}
	sec, frac := math.Modf(m)
	t := time.Unix(int64(sec), int64(frac*1e9)).UTC().Truncate(time.Second)
	s.MeanTime = &t
	if sd != nil {
		days := round(*sd/86400, 3)
		s.SDDays = &days
	}
	return s
}
