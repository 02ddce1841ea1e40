package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yudduy/cma-analysis/internal/tracker"
)

const ReferrerDirect = "direct"

var referrerCategories = []struct{ keyword, name string }{
	{"google", "Google"},
	{"duckduckgo", "DuckDuckGo"},
	{"bing", "Bing"},
	{"yahoo", "Yahoo"},
	{"facebook", "Facebook"},
	{"twitter", "Twitter"},
	{"linkedin", "LinkedIn"},
	{"reddit", "Reddit"},
	{"github", "GitHub"},
}

// ReferrerCategory maps a referrer URL to its source. First keyword wins.
func ReferrerCategory(referrer *string) string {
	if referrer == nil || *referrer == "" {
		return ReferrerDirect
	}
	ref := strings.ToLower(*referrer)
	for _, c := range referrerCategories {
		if strings.Contains(ref, c.keyword) {
			return c.name
		}
	}
	return "Other"
}

type ReferralRow struct {
	Category       string  `json:"referrer_category"`
	Group          string  `json:"random_group"`
	Visits         int     `json:"total_visits"`
	Signups        int     `json:"total_signups"`
	ConversionRate float64 `json:"conversion_rate"`
	TrafficShare   float64 `json:"traffic_share"`
}

type CategoryTest struct {
	Category string `json:"category"`
	TTest
}

type Referrals struct {
	Rows           []ReferralRow  `json:"rows"`
	TotalVisits    int            `json:"total_visits"`
	TotalSignups   int            `json:"total_signups"`
	ConversionRate float64        `json:"conversion_rate"`
	TopTraffic     []ReferralRow  `json:"top_traffic"`
	TopConversion  []ReferralRow  `json:"top_conversion"`
	Tests          []CategoryTest `json:"tests"`
}

// MinConversionVisits is the visit floor for the best-converting list.
const MinConversionVisits = 5

// AnalyzeReferrals summarises referral events of one version. A visit is a
// unique (visitor, group, category); it converts when the visitor signed up
// for the newsletter anywhere in the version.
func AnalyzeReferrals(records []Record, visitors []Visitor) Referrals {
	var out Referrals

	signups := make(map[string]int, len(visitors))
	for _, v := range visitors {
		signups[v.UUID] = v.NewsletterSignups
	}

	type visit struct{ uuid, group, category string }
	seen := make(map[visit]bool)
	var visits []visit
	for _, r := range records {
		if r.Name != tracker.EventReferral {
			continue
		}
		v := visit{r.UUID, r.RandomGroup, ReferrerCategory(r.Referrer)}
		if !seen[v] {
			seen[v] = true
			visits = append(visits, v)
		}
	}
	if len(visits) == 0 {
		return out
	}

	type key struct{ category, group string }
	rows := make(map[key]*ReferralRow)
	perCategory := make(map[string]map[string][]float64)
	for _, v := range visits {
		k := key{v.category, v.group}
		row, ok := rows[k]
		if !ok {
			row = &ReferralRow{Category: v.category, Group: v.group}
			rows[k] = row
		}
		row.Visits++
		if signups[v.uuid] > 0 {
			row.Signups++
		}
		if perCategory[v.category] == nil {
			perCategory[v.category] = make(map[string][]float64)
		}
		perCategory[v.category][v.group] = append(perCategory[v.category][v.group], float64(signups[v.uuid]))
	}

	for _, row := range rows {
		out.TotalVisits += row.Visits
		out.TotalSignups += row.Signups
	}
	for _, row := range rows {
		row.ConversionRate = percent(row.Signups, row.Visits)
		row.TrafficShare = percent(row.Visits, out.TotalVisits)
		out.Rows = append(out.Rows, *row)
	}
	sort.Slice(out.Rows, func(i, j int) bool {
		a, b := out.Rows[i], out.Rows[j]
		if a.Group != b.Group {
			return lessGroup(a.Group, b.Group)
		}
		if a.Visits != b.Visits {
			return a.Visits > b.Visits
		}
		return a.Category < b.Category
	})
	out.ConversionRate = percent(out.TotalSignups, out.TotalVisits)

	out.TopTraffic = top(out.Rows, 3, func(r ReferralRow) float64 { return r.TrafficShare }, nil)
	out.TopConversion = top(out.Rows, 3, func(r ReferralRow) float64 { return r.ConversionRate },
		func(r ReferralRow) bool { return r.Visits >= MinConversionVisits })

	categories := make([]string, 0, len(perCategory))
	for c := range perCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		groups := make([]string, 0, len(perCategory[c]))
		for g := range perCategory[c] {
			groups = append(groups, g)
		}
		sortGroups(groups)
		for _, p := range pairs(groups) {
			a, b := perCategory[c][p.a], perCategory[c][p.b]
			if len(a) < 2 || len(b) < 2 {
				continue
			}
			out.Tests = append(out.Tests, CategoryTest{
				Category: c,
				TTest:    compare(fmt.Sprintf("Group %s vs Group %s", p.a, p.b), p, a, b),
			})
		}
	}
	return out
}

// top returns up to n rows with the largest key, keeping the existing
// order among ties.
func top(rows []ReferralRow, n int, key func(ReferralRow) float64, keep func(ReferralRow) bool) []ReferralRow {
	var candidates []ReferralRow
	for _, r := range rows {
		if keep == nil || keep(r) {
			candidates = append(candidates, r)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return key(candidates[i]) > key(candidates[j]) })
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
