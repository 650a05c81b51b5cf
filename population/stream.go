package population

import "math/rand/v2"

// Stream is a deterministic source of uniform draws for exactly one
// agent. Each stream is derived solely from (seed, agent id) via a
// counter-keyed PCG, never from a shared stateful generator, so agent i's
// draws are identical no matter which worker produces them or in what
// order agents are generated.
type Stream struct {
	rng *rand.Rand
}

// NewStream derives the draw stream for one agent of one run.
func NewStream(seed, agentID uint64) *Stream {
	return &Stream{rng: rand.New(rand.NewPCG(seed, agentID))}
}

// Draw returns the next uniform value in [0, 1).
func (s *Stream) Draw() float64 {
	return s.rng.Float64()
}
