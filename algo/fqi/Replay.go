package fqi

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// transition is one stored environment transition: the observation an
// action was taken from, the action, the reward and next observation
// it produced, and whether value estimates may bootstrap through it.
type transition struct {
	obs           []float64
	nextObs       []float64
	action        int
	reward        float64
	mustBootstrap bool
}

// replay is a fixed-capacity ring buffer of transitions sampled
// uniformly at random. Once full, new transitions overwrite the
// oldest.
type replay struct {
	buf  []transition
	next int
	full bool
	rng  *rand.Rand
}

func newReplay(capacity int, seed uint64) (*replay, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("newreplay: capacity must be positive, "+
			"got %d", capacity)
	}
	return &replay{
		buf: make([]transition, capacity),
		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// add stores a transition, overwriting the oldest when full.
func (r *replay) add(tr transition) {
	r.buf[r.next] = tr
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// size returns the number of stored transitions.
func (r *replay) size() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// sample draws n transitions uniformly at random with replacement.
func (r *replay) sample(n int) ([]transition, error) {
	stored := r.size()
	if stored == 0 {
		return nil, fmt.Errorf("sample: empty replay buffer")
	}

	out := make([]transition, n)
	for i := range out {
		out[i] = r.buf[r.rng.Intn(stored)]
	}
	return out, nil
}
