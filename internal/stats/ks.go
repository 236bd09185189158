// Package stats implements the two-sample Kolmogorov-Smirnov test used to
// decide whether two batches of simulator output share a distribution.
package stats

import (
	"errors"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// ExactLimit is the largest product of the two sample sizes for which the
// exact p-value is computed. The lattice recurrence loses precision beyond
// it, so larger pairs use the asymptotic Kolmogorov distribution.
const ExactLimit = 10000

// ErrEmptySample is returned when either side has no finite observations.
var ErrEmptySample = errors.New("stats: empty sample")

// KSResult is the outcome of a two-sample KS test.
type KSResult struct {
	D      float64 // max |F1(x) - F2(x)|
	P      float64 // two-sided p-value
	N1, N2 int     // observations used after dropping NaNs
	Exact  bool    // P came from the exact distribution
}

// KS2Samp runs a two-sided two-sample Kolmogorov-Smirnov test on x and y.
// NaN observations are dropped. The inputs are not modified.
func KS2Samp(x, y []float64) (KSResult, error) {
	a := sortedFinite(x)
	b := sortedFinite(y)
	if len(a) == 0 || len(b) == 0 {
		return KSResult{}, ErrEmptySample
	}

	d := stat.KolmogorovSmirnov(a, nil, b, nil)
	res := KSResult{D: d, N1: len(a), N2: len(b)}
	if len(a)*len(b) <= ExactLimit {
		res.P = exactP(d, len(a), len(b))
		res.Exact = true
	} else {
		res.P = asymptoticP(d, len(a), len(b))
	}
	return res, nil
}

func sortedFinite(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	slices.Sort(out)
	return out
}

// exactP returns P(D >= d) for sample sizes m and n, evaluating the
// lattice-path recurrence over the (m, n) grid.
func exactP(d float64, m, n int) float64 {
	if d <= 0 {
		return 1
	}
	if m > n {
		m, n = n, m
	}
	md, nd := float64(m), float64(n)
	// Snap d onto the lattice of attainable values.
	q := (0.5 + math.Floor(d*md*nd-1e-7)) / (md * nd)

	u := make([]float64, n+1)
	for j := 0; j <= n; j++ {
		if float64(j)/nd > q {
			u[j] = 0
		} else {
			u[j] = 1
		}
	}
	for i := 1; i <= m; i++ {
		w := float64(i) / float64(i+n)
		if float64(i)/md > q {
			u[0] = 0
		} else {
			u[0] = w * u[0]
		}
		for j := 1; j <= n; j++ {
			if math.Abs(float64(i)/md-float64(j)/nd) > q {
				u[j] = 0
			} else {
				u[j] = w*u[j] + u[j-1]
			}
		}
	}
	return clamp01(1 - u[n])
}

// asymptoticP evaluates the Kolmogorov survival function with the
// Stephens small-sample correction.
func asymptoticP(d float64, m, n int) float64 {
	en := math.Sqrt(float64(m) * float64(n) / float64(m+n))
	lambda := (en + 0.12 + 0.11/en) * d
	if lambda < 0.2 {
		return 1
	}
	var sum float64
	sign := 1.0
	for k := 1; k <= 100; k++ {
		term := sign * math.Exp(-2*float64(k*k)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12*math.Abs(sum) {
			break
		}
		sign = -sign
	}
	return clamp01(2 * sum)
}

func clamp01(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 1
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
