package tracker

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_Fingerprint(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("fingerprint is deterministic", prop.ForAll(
		func(line string, occ int) bool {
			return Fingerprint([]byte(line), occ) == Fingerprint([]byte(line), occ)
		},
		gen.AnyString(),
		gen.IntRange(0, 1000),
	))

	properties.Property("occurrence index changes the fingerprint", prop.ForAll(
		func(line string, occ int) bool {
			return Fingerprint([]byte(line), occ) != Fingerprint([]byte(line), occ+1)
		},
		gen.AnyString(),
		gen.IntRange(0, 1000),
	))

	properties.Property("hour bucket never moves forward and stays within the hour", prop.ForAll(
		func(sec int64) bool {
			ts := time.Unix(sec, 0).UTC()
			b := HourBucket(ts)
			d := ts.Sub(b)
			return !b.After(ts) && d >= 0 && d.Hours() < 1 && b.Minute() == 0 && b.Second() == 0
		},
		gen.Int64Range(0, 4102444800),
	))

	properties.TestingRun(t)
}
