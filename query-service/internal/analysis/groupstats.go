package analysis

import (
	"fmt"
	"sort"

	"github.com/yudduy/cma-analysis/internal/tracker"
)

type GroupCount struct {
	Group string `json:"random_group"`
	Count int    `json:"count"`
}

// UsersPerGroup counts unique visitors per random group.
func UsersPerGroup(visitors []Visitor) []GroupCount {
	groups := byGroup(visitors)
	out := make([]GroupCount, 0, len(groups))
	for _, g := range visitorGroups(visitors) {
		out = append(out, GroupCount{Group: g, Count: len(groups[g])})
	}
	return out
}

var popupVersions = map[string]string{
	"4217": "1 (Worthiness)",
	"4221": "2 (Numbers)",
	"4223": "3 (Control)",
}

// PopupLabel names a popup id; unmapped ids are shown as-is.
func PopupLabel(id *string) string {
	if id == nil || *id == "" {
		return "Unknown"
	}
	if label, ok := popupVersions[*id]; ok {
		return label
	}
	return *id
}

type PopupCount struct {
	Group string `json:"random_group"`
	Popup string `json:"popup_version"`
	Count int    `json:"count"`
}

// Popups counts popup_view events per (random group, popup version).
func Popups(records []Record) []PopupCount {
	type key struct{ group, popup string }
	counts := make(map[key]int)
	for _, r := range records {
		if r.Name != tracker.EventPopupView {
			continue
		}
		counts[key{r.RandomGroup, PopupLabel(r.PopupID)}]++
	}

	out := make([]PopupCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, PopupCount{Group: k.group, Popup: k.popup, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return lessGroup(out[i].Group, out[j].Group)
		}
		return out[i].Popup < out[j].Popup
	})
	return out
}

type NewsletterGroup struct {
	Group        string   `json:"random_group"`
	TotalUsers   int      `json:"total_users"`
	AvgSignups   float64  `json:"avg_signups"`
	StdDev       *float64 `json:"std_dev"`
	TotalSignups int      `json:"total_signups"`
}

// TTest is a pairwise Welch comparison. T and P are nil when undefined.
type TTest struct {
	Comparison string   `json:"comparison"`
	GroupA     string   `json:"group_a"`
	GroupB     string   `json:"group_b"`
	T          *float64 `json:"t_statistic"`
	P          *float64 `json:"p_value"`
}

type Newsletter struct {
	Groups         []NewsletterGroup `json:"groups"`
	Tests          []TTest           `json:"tests"`
	TotalUsers     int               `json:"total_users"`
	TotalSignups   int               `json:"total_signups"`
	ConversionRate float64           `json:"conversion_rate"`
}

func AnalyzeNewsletter(visitors []Visitor) Newsletter {
	var n Newsletter
	grouped := byGroup(visitors)
	groups := visitorGroups(visitors)

	for _, g := range groups {
		signups := signupsOf(grouped[g])
		total := 0
		for _, s := range signups {
			total += int(s)
		}
		n.Groups = append(n.Groups, NewsletterGroup{
			Group:        g,
			TotalUsers:   len(signups),
			AvgSignups:   round(mean(signups), 3),
			StdDev:       roundPtr(sampleSD(signups), 3),
			TotalSignups: total,
		})
		n.TotalUsers += len(signups)
		n.TotalSignups += total
	}

	for _, p := range pairs(groups) {
		n.Tests = append(n.Tests, compare(
			fmt.Sprintf("Group %s vs Group %s", p.a, p.b), p,
			signupsOf(grouped[p.a]), signupsOf(grouped[p.b]),
		))
	}
	n.ConversionRate = percent(n.TotalSignups, n.TotalUsers)
	return n
}

func signupsOf(visitors []Visitor) []float64 {
	out := make([]float64, len(visitors))
	for i, v := range visitors {
		out[i] = float64(v.NewsletterSignups)
	}
	return out
}

func compare(label string, p pair, a, b []float64) TTest {
	t := TTest{Comparison: label, GroupA: p.a, GroupB: p.b}
	if w, ok := WelchTest(a, b); ok {
		tv, pv := round(w.T, 3), round(w.P, 4)
		t.T, t.P = &tv, &pv
	}
	return t
}

type OverviewGroup struct {
	Group          string  `json:"random_group"`
	SessionsMean   float64 `json:"num_sessions_mean"`
	Users          int     `json:"num_sessions_count"`
	PageViewsMean  float64 `json:"num_page_views_mean"`
	PageViewsSum   int     `json:"num_page_views_sum"`
	PopupViewsMean float64 `json:"num_popup_views_mean"`
	PopupViewsSum  int     `json:"num_popup_views_sum"`
}

type PairDiff struct {
	Comparison    string  `json:"comparison"`
	SessionsDiff  float64 `json:"sessions_diff"`
	PageViewsDiff float64 `json:"pageviews_diff"`
}

type Overview struct {
	Groups []OverviewGroup `json:"groups"`
	Diffs  []PairDiff      `json:"pairwise"`
}

func AnalyzeOverview(visitors []Visitor) Overview {
	var o Overview
	grouped := byGroup(visitors)
	groups := visitorGroups(visitors)

	sessionMeans := make(map[string]float64)
	pageViewMeans := make(map[string]float64)
	for _, g := range groups {
		vs := grouped[g]
		var sessions, pageViews, popups []float64
		pvSum, popSum := 0, 0
		for _, v := range vs {
			sessions = append(sessions, float64(v.Sessions))
			pageViews = append(pageViews, float64(v.PageViews))
			popups = append(popups, float64(v.PopupViews))
			pvSum += v.PageViews
			popSum += v.PopupViews
		}
		sessionMeans[g] = mean(sessions)
		pageViewMeans[g] = mean(pageViews)
		o.Groups = append(o.Groups, OverviewGroup{
			Group:          g,
			SessionsMean:   round(sessionMeans[g], 3),
			Users:          len(vs),
			PageViewsMean:  round(pageViewMeans[g], 3),
			PageViewsSum:   pvSum,
			PopupViewsMean: round(mean(popups), 3),
			PopupViewsSum:  popSum,
		})
	}

	for _, p := range pairs(groups) {
		o.Diffs = append(o.Diffs, PairDiff{
			Comparison:    fmt.Sprintf("%s vs %s", p.a, p.b),
			SessionsDiff:  round(sessionMeans[p.a]-sessionMeans[p.b], 3),
			PageViewsDiff: round(pageViewMeans[p.a]-pageViewMeans[p.b], 3),
		})
	}
	return o
}
