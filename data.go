package dbn

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Dataset is a feature matrix with its labels, both as the one-hot matrix the
// data pipeline produces and as the integer class ids the classifier needs.
// It is built once and never mutated during training.
type Dataset struct {
	X       *tensor.Dense // (samples, features)
	YOneHot *tensor.Dense // (samples, classes)
	Labels  []int         // len == samples
}

// NewDataset validates the shapes and derives the integer labels from the
// one-hot matrix.
func NewDataset(x, yOneHot *tensor.Dense) (*Dataset, error) {
	if x.Dims() != 2 || yOneHot.Dims() != 2 {
		return nil, errors.Errorf("dataset: want 2D features and labels, got %v and %v", x.Shape(), yOneHot.Shape())
	}
	if x.Shape()[0] != yOneHot.Shape()[0] {
		return nil, errors.Errorf("dataset: %d feature rows but %d label rows", x.Shape()[0], yOneHot.Shape()[0])
	}
	labels, err := LabelsFromOneHot(yOneHot)
	if err != nil {
		return nil, err
	}
	return &Dataset{X: x, YOneHot: yOneHot, Labels: labels}, nil
}

// LabelsFromOneHot converts a one-hot label matrix to integer class ids. A
// row with zero or more than one set entry is a malformed input and errors
// rather than being silently ignored.
func LabelsFromOneHot(y *tensor.Dense) ([]int, error) {
	if y.Dims() != 2 {
		return nil, errors.Errorf("one-hot labels: want a matrix, got shape %v", y.Shape())
	}
	rows, cols := y.Shape()[0], y.Shape()[1]
	data := y.Data().([]float32)
	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		found := -1
		for j := 0; j < cols; j++ {
			if data[i*cols+j] == 1 {
				if found >= 0 {
					return nil, errors.Errorf("one-hot labels: row %d has more than one set entry", i)
				}
				found = j
			}
		}
		if found < 0 {
			return nil, errors.Errorf("one-hot labels: row %d has no set entry", i)
		}
		labels[i] = found
	}
	return labels, nil
}

// Samples returns the number of rows in the dataset.
func (d *Dataset) Samples() int { return d.X.Shape()[0] }

// Batches is the number of whole minibatches in the dataset. Remainder rows
// that do not fill a batch are dropped, matching the batch arithmetic the
// rest of the trainer assumes.
func (d *Dataset) Batches(batchSize int) int { return d.Samples() / batchSize }
