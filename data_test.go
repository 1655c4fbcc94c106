package dbn

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gorgonia.org/tensor"
)

func TestLabelsFromOneHot(t *testing.T) {
	y := tensor.New(tensor.WithShape(3, 3), tensor.WithBacking([]float32{
		0, 1, 0,
		1, 0, 0,
		0, 0, 1,
	}))
	labels, err := LabelsFromOneHot(y)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if diff := cmp.Diff([]int{1, 0, 2}, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestLabelsFromOneHotMalformed(t *testing.T) {
	tests := []struct {
		name    string
		backing []float32
	}{
		{"empty row", []float32{0, 1, 0, 0, 0, 0}},
		{"double set row", []float32{0, 1, 0, 1, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := tensor.New(tensor.WithShape(2, 3), tensor.WithBacking(tt.backing))
			if _, err := LabelsFromOneHot(y); err == nil {
				t.Error("expected an error for a malformed one-hot row")
			}
		})
	}
}

func TestDatasetBatches(t *testing.T) {
	x := tensor.New(tensor.WithShape(10, 2), tensor.Of(tensor.Float32))
	yBacking := make([]float32, 20)
	for i := 0; i < 10; i++ {
		yBacking[i*2] = 1
	}
	y := tensor.New(tensor.WithShape(10, 2), tensor.WithBacking(yBacking))
	ds, err := NewDataset(x, y)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// remainder samples are dropped, never padded
	if got := ds.Batches(3); got != 3 {
		t.Errorf("Batches(3) = %d, want 3", got)
	}
	if got := ds.Batches(5); got != 2 {
		t.Errorf("Batches(5) = %d, want 2", got)
	}
}

func TestDatasetShapeMismatch(t *testing.T) {
	x := tensor.New(tensor.WithShape(4, 2), tensor.Of(tensor.Float32))
	y := tensor.New(tensor.WithShape(3, 2), tensor.WithBacking([]float32{1, 0, 1, 0, 1, 0}))
	if _, err := NewDataset(x, y); err == nil {
		t.Error("expected an error for mismatched row counts")
	}
}
