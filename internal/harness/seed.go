package harness

import (
	"math"
	"math/rand/v2"
	"strconv"
)

// minEntropySeed is the smallest seed EntropySeed draws.
const minEntropySeed = 37

// Seed selects the simulator seed for a run: either a fixed value or one
// drawn fresh for each run.
type Seed interface {
	resolve(r *rand.Rand) int64
	String() string
}

type fixedSeed int64

func (s fixedSeed) resolve(*rand.Rand) int64 { return int64(s) }
func (s fixedSeed) String() string            { return strconv.FormatInt(int64(s), 10) }

type entropySeed struct{}

func (entropySeed) resolve(r *rand.Rand) int64 {
	if r == nil {
		return minEntropySeed + rand.Int64N(math.MaxInt64-minEntropySeed)
	}
	return minEntropySeed + r.Int64N(math.MaxInt64-minEntropySeed)
}

func (entropySeed) String() string { return "entropy" }

// FixedSeed always resolves to n.
func FixedSeed(n int64) Seed { return fixedSeed(n) }

// EntropySeed resolves to a random seed in [37, MaxInt64).
func EntropySeed() Seed { return entropySeed{} }

// SeedFromFlag maps a command-line seed to a Seed; zero means entropy.
func SeedFromFlag(n int64) Seed {
	if n == 0 {
		return EntropySeed()
	}
	return FixedSeed(n)
}
