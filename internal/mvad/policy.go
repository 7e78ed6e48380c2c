package mvad

import "math/rand/v2"

// Policy decides whether a chunk that would last duration seconds after
// absorbing the next segment must be cut first.
type Policy func(duration float64) bool

// DefaultMaxChunk is the nominal chunk cap in seconds.
const DefaultMaxChunk = 30.0

// minCapFraction is the smallest fraction of the cap a randomised
// threshold can take.
const minCapFraction = 0.05

// Never never cuts; chunks end only on speaker changes.
func Never() Policy {
	return func(float64) bool { return false }
}

// MaxDuration cuts once a chunk would exceed limit seconds.
func MaxDuration(limit float64) Policy {
	return func(d float64) bool { return d > limit }
}

// Equalized flattens the chunk duration distribution. Each decision cuts,
// with even odds, either past a random threshold in [5%, 100%) of limit
// or past limit itself.
func Equalized(rng *rand.Rand, limit float64) Policy {
	return func(d float64) bool {
		if rng.Float64() < 0.5 {
			return d > randomThreshold(rng, limit)
		}
		return d > limit
	}
}

// Aggressive skews chunks shorter than Equalized: a quarter of decisions
// cut unconditionally, the rest past a random threshold below limit.
func Aggressive(rng *rand.Rand, limit float64) Policy {
	return func(d float64) bool {
		if rng.Float64() < 0.25 {
			return true
		}
		return d > randomThreshold(rng, limit)
	}
}

func randomThreshold(rng *rand.Rand, limit float64) float64 {
	return limit * (rng.Float64()*(1-minCapFraction) + minCapFraction)
}
