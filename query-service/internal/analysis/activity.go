package analysis

import (
	"sort"
	"time"

	"github.com/yudduy/cma-analysis/internal/tracker"
)

type HourlyCount struct {
	Hour  time.Time `json:"hour"`
	Event string    `json:"event"`
	Total int64     `json:"total"`
}

// Activity buckets timestamped events by hour and event name. Events
// before since are skipped; a zero since keeps everything.
func Activity(events []tracker.Event, since time.Time) []HourlyCount {
	type key struct {
		hour  time.Time
		event string
	}
	counts := make(map[key]int64)
	for _, e := range events {
		if e.Timestamp == nil || e.Timestamp.Before(since) {
			continue
		}
		counts[key{tracker.HourBucket(*e.Timestamp), e.Name}]++
	}

	out := make([]HourlyCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, HourlyCount{Hour: k.hour, Event: k.event, Total: n})
	}
	SortActivity(out)
	return out
}

func SortActivity(counts []HourlyCount) {
	sort.Slice(counts, func(i, j int) bool {
		if !counts[i].Hour.Equal(counts[j].Hour) {
			return counts[i].Hour.Before(counts[j].Hour)
		}
		return counts[i].Event < counts[j].Event
	})
}
