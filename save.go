package dbn

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Save writes the fine-tuned parameters (the DBN's trainable set, visible
// biases excluded) to filename.
func (d *DBN) Save(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0544)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	enc := gob.NewEncoder(f)
	for _, p := range d.params {
		if err = enc.Encode(p); err != nil {
			return errors.Wrap(err, "encoding weights")
		}
	}
	return nil
}

// Load restores parameters written by Save into the existing tensors. The
// data is copied in rather than swapping the tensors out, so the RBM views
// keep observing the same storage.
func (d *DBN) Load(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	for i, p := range d.params {
		loaded := new(tensor.Dense)
		if err = dec.Decode(loaded); err != nil {
			return errors.Wrapf(err, "decoding parameter %d", i)
		}
		if !loaded.Shape().Eq(p.Shape()) {
			return errors.Errorf("parameter %d has shape %v, want %v", i, loaded.Shape(), p.Shape())
		}
		copy(p.Data().([]float32), loaded.Data().([]float32))
	}
	return nil
}
