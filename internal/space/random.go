package space

import (
	"math"
	"math/rand/v2"
	"sync"
)

// RandomSuggester samples uniformly (log-uniformly for log-scaled floats).
// It is safe for concurrent use.
type RandomSuggester struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomSuggester(seed uint64) *RandomSuggester {
	return &RandomSuggester{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *RandomSuggester) SuggestInt(_ string, low, high int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if high <= low {
		return low
	}
	return low + r.rng.Int64N(high-low+1)
}

func (r *RandomSuggester) SuggestFloat(_ string, low, high float64, log bool) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if high <= low {
		return low
	}
	if log && low > 0 {
		return math.Exp(math.Log(low) + r.rng.Float64()*(math.Log(high)-math.Log(low)))
	}
	return low + r.rng.Float64()*(high-low)
}

func (r *RandomSuggester) SuggestCategorical(_ string, choices []string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return choices[r.rng.IntN(len(choices))]
}
