package analysis

import (
	"sort"

	"github.com/yudduy/cma-analysis/internal/tracker"
)

// sessionProfile is the first non-missing browser info per visitor, taken
// from session_start events only.
type sessionProfile struct {
	uuid  string
	group string

	platform, language, vendor, timezone *string

	screenW, screenH, windowW, windowH *float64
}

func sessionProfiles(records []Record) []*sessionProfile {
	byUUID := make(map[string]*sessionProfile)
	var order []string
	for _, r := range records {
		if r.Name != tracker.EventSessionStart {
			continue
		}
		p, ok := byUUID[r.UUID]
		if !ok {
			p = &sessionProfile{uuid: r.UUID, group: r.RandomGroup}
			byUUID[r.UUID] = p
			order = append(order, r.UUID)
		}
		firstString(&p.platform, r.Platform)
		firstString(&p.language, r.Language)
		firstString(&p.vendor, r.Vendor)
		firstString(&p.timezone, r.Timezone)
		firstFloat(&p.screenW, r.ScreenWidth)
		firstFloat(&p.screenH, r.ScreenHeight)
		firstFloat(&p.windowW, r.WindowWidth)
		firstFloat(&p.windowH, r.WindowHeight)
	}
	sort.Strings(order)
	out := make([]*sessionProfile, len(order))
	for i, id := range order {
		out[i] = byUUID[id]
	}
	return out
}

func firstString(dst **string, v *string) {
	if *dst == nil && v != nil && *v != "" {
		*dst = v
	}
}

func firstFloat(dst **float64, v *float64) {
	if *dst == nil && v != nil {
		*dst = v
	}
}

type DemographicRow struct {
	Value      string  `json:"value"`
	Group      string  `json:"random_group"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type Dimension struct {
	Name  string           `json:"name"`
	Label string           `json:"label"`
	Rows  []DemographicRow `json:"rows"`
}

var dimensions = []struct {
	name, label string
	get         func(p *sessionProfile) *string
}{
	{"platform", "Platform", func(p *sessionProfile) *string { return p.platform }},
	{"language", "Language", func(p *sessionProfile) *string { return p.language }},
	{"vendor", "Vendor", func(p *sessionProfile) *string { return p.vendor }},
	{"timezone", "Timezone", func(p *sessionProfile) *string { return p.timezone }},
}

// DimensionNames lists the demographic dimensions in display order.
func DimensionNames() []string {
	names := make([]string, len(dimensions))
	for i, d := range dimensions {
		names[i] = d.name
	}
	return names
}

// Demographics counts visitors per (value, group) for each browser
// dimension. Percentages are within group; visitors missing a value are
// left out of that dimension.
func Demographics(records []Record) []Dimension {
	profiles := sessionProfiles(records)
	out := make([]Dimension, 0, len(dimensions))

	for _, d := range dimensions {
		type key struct{ value, group string }
		counts := make(map[key]int)
		groupTotals := make(map[string]int)
		for _, p := range profiles {
			v := d.get(p)
			if v == nil {
				continue
			}
			counts[key{*v, p.group}]++
			groupTotals[p.group]++
		}

		rows := make([]DemographicRow, 0, len(counts))
		for k, n := range counts {
			rows = append(rows, DemographicRow{
				Value:      k.value,
				Group:      k.group,
				Count:      n,
				Percentage: percent(n, groupTotals[k.group]),
			})
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Value != rows[j].Value {
				return rows[i].Value < rows[j].Value
			}
			return lessGroup(rows[i].Group, rows[j].Group)
		})
		out = append(out, Dimension{Name: d.name, Label: d.label, Rows: rows})
	}
	return out
}

const (
	SizeSmall   = "Small"
	SizeMedium  = "Medium"
	SizeLarge   = "Large"
	SizeUnknown = "Unknown"
)

var sizeOrder = map[string]int{SizeSmall: 0, SizeMedium: 1, SizeLarge: 2, SizeUnknown: 3}

// SizeCategory buckets a width x height area.
func SizeCategory(w, h *float64) string {
	if w == nil || h == nil {
		return SizeUnknown
	}
	area := *w * *h
	switch {
	case area < 1_000_000:
		return SizeSmall
	case area < 2_000_000:
		return SizeMedium
	default:
		return SizeLarge
	}
}

type SizeCount struct {
	Size  string `json:"size"`
	Group string `json:"random_group"`
	Count int    `json:"count"`
}

// Screens returns screen and window size distributions per group.
func Screens(records []Record) (screens, windows []SizeCount) {
	profiles := sessionProfiles(records)
	screens = sizeCounts(profiles, func(p *sessionProfile) string { return SizeCategory(p.screenW, p.screenH) })
	windows = sizeCounts(profiles, func(p *sessionProfile) string { return SizeCategory(p.windowW, p.windowH) })
	return screens, windows
}

func sizeCounts(profiles []*sessionProfile, size func(*sessionProfile) string) []SizeCount {
	type key struct{ size, group string }
	counts := make(map[key]int)
	for _, p := range profiles {
		counts[key{size(p), p.group}]++
	}
	out := make([]SizeCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, SizeCount{Size: k.size, Group: k.group, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return sizeOrder[out[i].Size] < sizeOrder[out[j].Size]
		}
		return lessGroup(out[i].Group, out[j].Group)
	})
	return out
}
