// Package tracker defines Trackers, which record data produced while
// an experiment runs and save it after the experiment has finished.
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Tracker records one scalar measurement per call. The iteration
// argument is the training iteration at which the measurement was
// taken, so irregularly spaced measurements remain interpretable.
type Tracker interface {
	Track(iteration int, value float64)
	Save() error
}

// LoadData loads and returns the data saved by a Tracker.
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loaddata: could not open data file: %v",
			err)
	}
	defer file.Close()

	dec := gob.NewDecoder(file)
	var data []float64
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("loaddata: could not decode data: %v", err)
	}
	return data, nil
}
