package analysis

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Welch is an unequal-variance two-sample t-test.
type Welch struct {
	T  float64 `json:"t"`
	P  float64 `json:"p"`
	DF float64 `json:"df"`
}

// WelchTest returns false when the test is undefined: fewer than two
// observations on either side, or zero standard error.
func WelchTest(a, b []float64) (Welch, bool) {
	na, nb := float64(len(a)), float64(len(b))
	if na < 2 || nb < 2 {
		return Welch{}, false
	}
	ma, _ := stats.Mean(a)
	mb, _ := stats.Mean(b)
	va, _ := stats.SampleVariance(a)
	vb, _ := stats.SampleVariance(b)

	sa, sb := va/na, vb/nb
	se := math.Sqrt(sa + sb)
	if se == 0 || math.IsNaN(se) {
		return Welch{}, false
	}

	t := (ma - mb) / se
	df := (sa + sb) * (sa + sb) / (sa*sa/(na-1) + sb*sb/(nb-1))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.Survival(math.Abs(t))
	if p > 1 {
		p = 1
	}
	return Welch{T: t, P: p, DF: df}, true
}

func mean(xs []float64) float64 {
	m, err := stats.Mean(xs)
	if err != nil {
		return 0
	}
	return m
}

// sampleSD is nil for fewer than two observations.
func sampleSD(xs []float64) *float64 {
	if len(xs) < 2 {
		return nil
	}
	sd, err := stats.StandardDeviationSample(xs)
	if err != nil || math.IsNaN(sd) {
		return nil
	}
	return &sd
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

func roundPtr(x *float64, places int) *float64 {
	if x == nil {
		return nil
	}
	r := round(*x, places)
	return &r
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round(float64(part)/float64(whole)*100, 2)
}
