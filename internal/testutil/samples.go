package testutil

import "math/rand/v2"

// NormalSample draws n values from N(mean, stddev²) using a PCG source
// seeded with seed, so the same arguments always yield the same slice.
func NormalSample(seed uint64, n int, mean, stddev float64) []float64 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float64, n)
	for i := range out {
		out[i] = mean + stddev*r.NormFloat64()
	}
	return out
}

// UniformSample draws n values uniformly from [lo, hi).
func UniformSample(seed uint64, n int, lo, hi float64) []float64 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*r.Float64()
	}
	return out
}
