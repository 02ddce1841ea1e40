package analysis

import "github.com/yudduy/cma-analysis/internal/tracker"

// BotVisitors returns the visitors with at least one event scored at or
// above threshold.
func BotVisitors(events []tracker.Event, threshold int) map[string]bool {
	bots := make(map[string]bool)
	for _, e := range events {
		if e.UUID != "" && e.RiskScore >= threshold {
			bots[e.UUID] = true
		}
	}
	return bots
}

// ExcludeBots drops every record of the given visitors. Records must come
// from AssignGroups over the full stream, so a bot's version marker still
// moves the version boundary for everyone after it.
func ExcludeBots(records []Record, bots map[string]bool) []Record {
	if len(bots) == 0 {
		return records
	}
	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if !bots[r.UUID] {
			kept = append(kept, r)
		}
	}
	return kept
}
