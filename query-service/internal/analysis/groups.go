// Package analysis turns a stream of tracker events into the balance-check
// report: group assignment, per-visitor aggregates, and the per-group
// summaries and significance tests shown on the dashboard.
package analysis

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/yudduy/cma-analysis/internal/tracker"
)

// DefaultVersion is the randomization version of events seen before any
// version marker.
const DefaultVersion = "group_v1"

var versionPattern = regexp.MustCompile(`group_v\d+`)

// Record is an event with its randomization version (standard group) and
// the treatment arm (random group) the visitor was assigned within it.
type Record struct {
	tracker.Event
	StandardGroup string
	RandomGroup   string
}

type visitorKey struct {
	uuid    string
	version string
}

// AssignGroups labels events in stream order. The version is the last
// group_v<N> marker seen in an event name. The random group is data.group
// filled forward, then backward, within each (visitor, version). Events
// without a visitor id or a resolvable random group are dropped.
func AssignGroups(events []tracker.Event) []Record {
	records := make([]Record, 0, len(events))
	current := ""
	for _, e := range events {
		if m := versionPattern.FindString(e.Name); m != "" {
			current = m
		}
		version := current
		if version == "" {
			version = DefaultVersion
		}
		records = append(records, Record{Event: e, StandardGroup: version})
	}

	byVisitor := make(map[visitorKey][]int)
	for i, r := range records {
		if r.UUID == "" {
			continue
		}
		k := visitorKey{r.UUID, r.StandardGroup}
		byVisitor[k] = append(byVisitor[k], i)
	}

	for _, idx := range byVisitor {
		last := ""
		for _, i := range idx {
			if g := tracker.Str(records[i].Group); g != "" {
				last = g
			}
			records[i].RandomGroup = last
		}
		next := ""
		for j := len(idx) - 1; j >= 0; j-- {
			i := idx[j]
			if g := tracker.Str(records[i].Group); g != "" {
				next = g
			}
			if records[i].RandomGroup == "" {
				records[i].RandomGroup = next
			}
		}
	}

	out := records[:0]
	for _, r := range records {
		if r.UUID == "" || r.RandomGroup == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Versions lists the randomization versions, latest first.
func Versions(records []Record) []string {
	seen := make(map[string]bool)
	var versions []string
	for _, r := range records {
		if !seen[r.StandardGroup] {
			seen[r.StandardGroup] = true
			versions = append(versions, r.StandardGroup)
		}
	}
	for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
		versions[i], versions[j] = versions[j], versions[i]
	}
	return versions
}

func ForVersion(records []Record, version string) []Record {
	var out []Record
	for _, r := range records {
		if r.StandardGroup == version {
			out = append(out, r)
		}
	}
	return out
}

// lessGroup orders numeric group labels numerically and before any
// non-numeric label.
func lessGroup(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		if fa != fb {
			return fa < fb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

func sortGroups(groups []string) {
	sort.Slice(groups, func(i, j int) bool { return lessGroup(groups[i], groups[j]) })
}

type pair struct{ a, b string }

// pairs returns every unordered pair of groups, in sorted order.
func pairs(groups []string) []pair {
	var out []pair
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			out = append(out, pair{groups[i], groups[j]})
		}
	}
	return out
}
