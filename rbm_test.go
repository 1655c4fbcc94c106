package dbn

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
)

func tinyBatch() *tensor.Dense {
	return tensor.New(tensor.WithShape(4, 6), tensor.WithBacking([]float32{
		1, 1, 1, 0, 0, 0,
		1, 1, 0, 0, 0, 0,
		0, 0, 1, 1, 1, 0,
		0, 0, 0, 1, 1, 1,
	}))
}

func TestRBMSharesLayerParameters(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	layer := NewHiddenLayer(rng, 6, 3)
	rbm := NewRBM(rng, 6, 3, layer.W, layer.B)

	if rbm.W != layer.W || rbm.HBias != layer.B {
		t.Fatal("RBM must hold the layer's tensors, not copies")
	}

	v := tinyBatch()
	before, err := layer.Activate(v)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	beforeData := append([]float32(nil), before.Data().([]float32)...)

	if _, err = rbm.CDStep(v, 0.1, 1); err != nil {
		t.Fatalf("%+v", err)
	}

	after, err := layer.Activate(v)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.NotEqual(t, beforeData, after.Data().([]float32),
		"a pretraining update must show through the layer's forward pass")
}

func TestRBMCDStepCost(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rbm := NewRBM(rng, 6, 4, nil, nil)
	v := tinyBatch()

	cost, err := rbm.CDStep(v, 0.1, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// reconstruction cross entropy of probabilities is never positive
	if cost > 0 {
		t.Errorf("cost = %v, want <= 0", cost)
	}
}

func TestRBMCDStepArgs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rbm := NewRBM(rng, 6, 4, nil, nil)
	v := tinyBatch()

	if _, err := rbm.CDStep(v, 0.1, 0); err == nil {
		t.Error("k = 0 must error")
	}
	if _, err := rbm.CDStep(v, 0, 1); err == nil {
		t.Error("non-positive learning rate must error")
	}
	if _, err := rbm.PCDStep(v, nil, 0.1, 1); err == nil {
		t.Error("PCD without a chain must error")
	}
}

func TestRBMPersistentChain(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rbm := NewRBM(rng, 6, 4, nil, nil)
	v := tinyBatch()
	chain := rbm.NewChain(4)

	if _, err := rbm.PCDStep(v, chain, 0.1, 2); err != nil {
		t.Fatalf("%+v", err)
	}
	data := chain.Data().([]float32)
	for _, s := range data {
		if s != 0 && s != 1 {
			t.Fatalf("chain state %v is not a binary sample", s)
		}
	}
}

func TestRBMDeterminism(t *testing.T) {
	run := func() []float32 {
		rng := rand.New(rand.NewSource(123))
		rbm := NewRBM(rng, 6, 4, nil, nil)
		v := tinyBatch()
		costs := make([]float32, 10)
		for i := range costs {
			var err error
			if costs[i], err = rbm.CDStep(v, 0.1, 1); err != nil {
				t.Fatalf("%+v", err)
			}
		}
		return costs
	}
	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("two identically seeded runs diverged (-first +second):\n%s", diff)
	}
}

func TestRBMFreeEnergy(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rbm := NewRBM(rng, 6, 4, nil, nil)
	fe, err := rbm.FreeEnergy(tinyBatch())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(fe) != 4 {
		t.Fatalf("want one free energy per sample, got %d", len(fe))
	}
	for i, f := range fe {
		if notFinite(f) {
			t.Errorf("free energy of sample %d is %v", i, f)
		}
	}
}

func TestTransposed(t *testing.T) {
	a := tensor.New(tensor.WithShape(2, 3), tensor.WithBacking([]float32{1, 2, 3, 4, 5, 6}))
	tr := transposed(a)
	assert.Equal(t, []int{3, 2}, []int(tr.Shape()))
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, tr.Data().([]float32))
}
