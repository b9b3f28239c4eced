package intent

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Selector draws one response uniformly at random from an intent's set.
// Consecutive draws may repeat.
type Selector struct {
	src Source

	mu  sync.Mutex
	rng *rand.Rand // nil means the global source
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithRand makes the selector draw from r instead of the global source.
func WithRand(r *rand.Rand) SelectorOption {
	return func(s *Selector) {
		s.rng = r
	}
}

// NewSelector creates a selector over the given library source.
func NewSelector(src Source, opts ...SelectorOption) *Selector {
	s := &Selector{src: src}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns a member of the intent's response set. It panics if the
// library has no set for the intent, since Library.Validate guarantees one
// for every intent the classifier can emit.
func (s *Selector) Select(in Intent) string {
	set := s.src.Current().ResponsesFor(in)
	if len(set) == 0 {
		panic(fmt.Sprintf("intent: no responses configured for %s", in))
	}
	return set[s.intN(len(set))]
}

func (s *Selector) intN(n int) int {
	if s.rng == nil {
		return rand.IntN(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}
