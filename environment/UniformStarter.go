package environment

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
)

// UniformStarter samples starting states uniformly from a box.
type UniformStarter struct {
	features int
	bounds   []r1.Interval
	rand     *distmv.Uniform
}

// NewUniformStarter returns a UniformStarter sampling each feature
// from its interval in bounds.
func NewUniformStarter(bounds []r1.Interval, seed uint64) *UniformStarter {
	starter := &UniformStarter{features: len(bounds), bounds: bounds}
	starter.Seed(seed)
	return starter
}

// Seed re-seeds the starter's random stream.
func (u *UniformStarter) Seed(seed uint64) {
	source := rand.NewSource(seed)
	u.rand = distmv.NewUniform(u.bounds, source)
}

// Start samples and returns a starting state.
func (u *UniformStarter) Start() mat.Vector {
	return mat.NewVecDense(u.features, u.rand.Rand(nil))
}
