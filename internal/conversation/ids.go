package conversation

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// idSource issues ULIDs that sort in creation order. Not safe for
// concurrent use; the session serializes calls.
type idSource struct {
	entropy *ulid.MonotonicEntropy
	lastMs  uint64
}

func newIDSource() *idSource {
	return &idSource{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (s *idSource) next(t time.Time) string {
	ms := ulid.Timestamp(t)
	if ms < s.lastMs {
		// Clock stepped backwards: reuse the last timestamp so the monotonic
		// entropy keeps ordering intact.
		ms = s.lastMs
	}
	s.lastMs = ms
	return ulid.MustNew(ms, s.entropy).String()
}
