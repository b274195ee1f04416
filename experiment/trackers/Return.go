// Package trackers provides concrete Trackers for experiment data.
package trackers

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/samuelfneumann/gorollout/experiment/tracker"
)

// Return tracks the average evaluation return measured over the course
// of training. Each tracked value is the mean return of one evaluation
// pass, stamped with the training iteration at which it was measured.
// Save writes the returns as a single gob-encoded []float64 readable
// with tracker.LoadData; the iteration stamps stay available in memory
// through Iterations.
type Return struct {
	iterations []int
	returns    []float64
	filename   string
}

// NewReturn creates and returns a new *Return Tracker that saves to
// filename.
func NewReturn(filename string) tracker.Tracker {
	return &Return{filename: filename}
}

// Track records the mean evaluation return measured at the given
// training iteration.
func (r *Return) Track(iteration int, value float64) {
	r.iterations = append(r.iterations, iteration)
	r.returns = append(r.returns, value)
}

// Returns returns the evaluation returns tracked so far.
func (r *Return) Returns() []float64 {
	return r.returns
}

// Iterations returns the training iteration at which each tracked
// return was measured.
func (r *Return) Iterations() []int {
	return r.iterations
}

// Save saves the data tracked by the Return Tracker to disk.
func (r *Return) Save() error {
	file, err := os.Create(r.filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %v", err)
	}
	defer file.Close()

	en := gob.NewEncoder(file)
	if err := en.Encode(r.returns); err != nil {
		return fmt.Errorf("save: could not encode returns: %v", err)
	}
	return nil
}
