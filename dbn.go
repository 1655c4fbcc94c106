// Package dbn trains deep belief networks: stacks of restricted Boltzmann
// machines pretrained greedily layer by layer, then fine-tuned end to end as
// a softmax classifier. The generative and discriminative views of each
// layer share their parameter tensors.
package dbn

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// DefaultPretrainLR is the learning rate a pretraining function falls back
// to when the caller passes a non-positive one.
const DefaultPretrainLR float32 = 0.1

// DBN is a deep belief network: a stack of sigmoid layers, each sharing its
// weight matrix and bias with an RBM at the same depth, topped by a softmax
// layer. Pretraining trains the RBMs greedily bottom-up; fine-tuning treats
// the whole stack as an MLP and backpropagates through it. Both phases write
// to the same underlying tensors.
type DBN struct {
	NIns    int
	NOuts   int
	NLayers int

	layers   []*HiddenLayer
	rbms     []*RBM
	logLayer *LogisticRegression

	// tensors updated during fine-tuning: W, b per hidden layer plus the
	// output layer's. The RBM visible biases are deliberately absent.
	params []*tensor.Dense

	// lazily built fine-tuning graph
	g         *G.ExprGraph
	x, y      *G.Node
	model     G.Nodes
	costVal   G.Value
	probsVal  G.Value
	batchSize int
}

// NewDBN constructs the tied stack. Layer i maps the network input (i=0) or
// the previous layer's hidden units to hiddenSizes[i] units; its RBM shares
// the layer's weight and hidden bias tensors by reference.
func NewDBN(rng *rand.Rand, nIns int, hiddenSizes []int, nOuts int) (*DBN, error) {
	if len(hiddenSizes) < 1 {
		return nil, errors.New("dbn: at least one hidden layer is required")
	}
	if nIns < 1 || nOuts < 1 {
		return nil, errors.Errorf("dbn: bad dimensions %d in, %d out", nIns, nOuts)
	}
	for i, h := range hiddenSizes {
		if h < 1 {
			return nil, errors.Errorf("dbn: hidden layer %d has width %d", i, h)
		}
	}

	d := &DBN{
		NIns:    nIns,
		NOuts:   nOuts,
		NLayers: len(hiddenSizes),
	}
	for i, size := range hiddenSizes {
		inputSize := nIns
		if i > 0 {
			inputSize = hiddenSizes[i-1]
		}
		layer := NewHiddenLayer(rng, inputSize, size)
		d.layers = append(d.layers, layer)
		d.params = append(d.params, layer.W, layer.B)
		d.rbms = append(d.rbms, NewRBM(rng, inputSize, size, layer.W, layer.B))
	}
	d.logLayer = NewLogisticRegression(hiddenSizes[len(hiddenSizes)-1], nOuts)
	d.params = append(d.params, d.logLayer.W, d.logLayer.B)
	return d, nil
}

// Params returns the tensors fine-tuning updates, in layer order.
func (d *DBN) Params() []*tensor.Dense { return d.params }

// Layers returns the sigmoid layers.
func (d *DBN) Layers() []*HiddenLayer { return d.layers }

// RBMs returns the generative views of the hidden layers.
func (d *DBN) RBMs() []*RBM { return d.rbms }

// PretrainFunc runs one CD step on the minibatch at index and returns the
// monitoring cost. A non-positive lr selects DefaultPretrainLR.
type PretrainFunc func(index int, lr float32) (float32, error)

// PretrainingFuncs returns one training closure per RBM layer. The closure
// for layer i propagates the minibatch through the layers below it with
// their current (shared, possibly already pretrained) weights, then does one
// CD-k step. Scheduling epochs and layer order is the caller's business.
func (d *DBN) PretrainingFuncs(trainX *tensor.Dense, batchSize, k int) ([]PretrainFunc, error) {
	if trainX.Dims() != 2 || trainX.Shape()[1] != d.NIns {
		return nil, errors.Errorf("dbn: pretraining features have shape %v, want (*, %d)", trainX.Shape(), d.NIns)
	}
	if batchSize < 1 {
		return nil, errors.Errorf("dbn: batch size %d", batchSize)
	}
	if k < 1 {
		return nil, errors.Errorf("dbn: k must be positive, got %d", k)
	}

	fns := make([]PretrainFunc, d.NLayers)
	for i := range d.rbms {
		layer := i
		fns[i] = func(index int, lr float32) (float32, error) {
			if lr <= 0 {
				lr = DefaultPretrainLR
			}
			var s slicer
			batch := s.Slice(trainX, sli(index*batchSize, (index+1)*batchSize))
			if s.err != nil {
				return 0, s.err
			}
			defer tensor.ReturnTensor(batch)

			input := batch.Materialize().(*tensor.Dense)
			for j := 0; j < layer; j++ {
				var err error
				if input, err = d.layers[j].Activate(input); err != nil {
					return 0, errors.Wrapf(err, "pretraining layer %d", layer)
				}
			}
			cost, err := d.rbms[layer].CDStep(input, lr, k)
			if err != nil {
				return 0, errors.Wrapf(err, "pretraining layer %d, minibatch %d", layer, index)
			}
			return cost, nil
		}
	}
	return fns, nil
}

// FinetuneFuncs bundles the compiled fine-tuning steps. Train runs one
// gradient descent step on a training minibatch and returns its pre-update
// cost. Validate returns the misclassification rate of a validation
// minibatch without touching any parameter. ValidScore runs Validate over
// the whole validation set.
type FinetuneFuncs struct {
	Train      func(index int) (float32, error)
	Validate   func(index int) (float32, error)
	ValidScore func() ([]float32, error)

	NValidBatches int

	vm G.VM
}

// Close releases the underlying virtual machine.
func (f *FinetuneFuncs) Close() error { return f.vm.Close() }

// BuildFinetuneFuncs compiles the fine-tuning graph for the given batch size
// and wraps it into train/validate closures. The update rule is plain
// gradient descent, param ← param − lr·∂cost/∂param, with the gradient
// backpropagated through the whole stack.
func (d *DBN) BuildFinetuneFuncs(train, valid *Dataset, batchSize int, lr float64) (*FinetuneFuncs, error) {
	if err := d.checkDataset(train, "training"); err != nil {
		return nil, err
	}
	if err := d.checkDataset(valid, "validation"); err != nil {
		return nil, err
	}
	if batchSize < 1 || batchSize > train.Samples() || batchSize > valid.Samples() {
		return nil, errors.Errorf("dbn: batch size %d does not fit datasets of %d and %d samples", batchSize, train.Samples(), valid.Samples())
	}
	if lr <= 0 {
		return nil, errors.Errorf("dbn: learning rate %v", lr)
	}
	if err := d.buildGraph(batchSize); err != nil {
		return nil, err
	}

	vm := G.NewTapeMachine(d.g, G.BindDualValues(d.model...))
	solver := G.NewVanillaSolver(G.WithLearnRate(lr))
	valueGrads := G.NodesToValueGrads(d.model)

	fns := &FinetuneFuncs{
		NValidBatches: valid.Batches(batchSize),
		vm:            vm,
	}

	run := func(x, yOneHot *tensor.Dense, index int) error {
		var s slicer
		xb := s.Slice(x, sli(index*batchSize, (index+1)*batchSize))
		yb := s.Slice(yOneHot, sli(index*batchSize, (index+1)*batchSize))
		if s.err != nil {
			return s.err
		}
		defer tensor.ReturnTensor(xb)
		defer tensor.ReturnTensor(yb)
		G.Let(d.x, xb)
		G.Let(d.y, yb)
		vm.Reset()
		return errors.Wrapf(vm.RunAll(), "minibatch %d", index)
	}

	fns.Train = func(index int) (float32, error) {
		if err := run(train.X, train.YOneHot, index); err != nil {
			return 0, err
		}
		cost := d.costVal.Data().(float32)
		if notFinite(cost) {
			return cost, errors.Errorf("dbn: fine-tuning cost diverged (%v) at minibatch %d", cost, index)
		}
		if err := solver.Step(valueGrads); err != nil {
			return 0, errors.Wrapf(err, "solver step, minibatch %d", index)
		}
		return cost, nil
	}

	fns.Validate = func(index int) (float32, error) {
		if err := run(valid.X, valid.YOneHot, index); err != nil {
			return 0, err
		}
		probs := d.probsVal.Data().([]float32)
		labels := valid.Labels[index*batchSize : (index+1)*batchSize]
		var wrong int
		for i, label := range labels {
			if argmax32(probs[i*d.NOuts:(i+1)*d.NOuts]) != label {
				wrong++
			}
		}
		return float32(wrong) / float32(batchSize), nil
	}

	fns.ValidScore = func() ([]float32, error) {
		scores := make([]float32, fns.NValidBatches)
		for i := range scores {
			var err error
			if scores[i], err = fns.Validate(i); err != nil {
				return nil, err
			}
		}
		return scores, nil
	}

	return fns, nil
}

func (d *DBN) checkDataset(ds *Dataset, name string) error {
	if ds == nil {
		return errors.Errorf("dbn: nil %s dataset", name)
	}
	if ds.X.Shape()[1] != d.NIns {
		return errors.Errorf("dbn: %s features have %d columns, network takes %d", name, ds.X.Shape()[1], d.NIns)
	}
	if ds.YOneHot.Shape()[1] != d.NOuts {
		return errors.Errorf("dbn: %s labels have %d classes, network outputs %d", name, ds.YOneHot.Shape()[1], d.NOuts)
	}
	return nil
}

// buildGraph assembles the MLP expression graph for one batch size: the
// layer forward passes, the softmax probabilities, the negative log
// likelihood cost and its gradients. The parameter nodes are views over the
// layers' tensors, so the graph always computes with the latest weights.
func (d *DBN) buildGraph(batchSize int) error {
	if d.g != nil && d.batchSize == batchSize {
		return nil
	}
	g := G.NewGraph()
	d.x = G.NewMatrix(g, Float, G.WithShape(batchSize, d.NIns), G.WithName("x"))
	d.y = G.NewMatrix(g, Float, G.WithShape(batchSize, d.NOuts), G.WithName("y"))

	var m maebe
	out := d.x
	for i, layer := range d.layers {
		out = layer.fwd(&m, out, fmt.Sprintf("h%d", i))
	}
	probs := d.logLayer.fwd(&m, out, "out")
	cost := d.logLayer.nll(&m, probs, d.y)
	if m.err != nil {
		return m.err
	}
	G.Read(cost, &d.costVal)
	G.Read(probs, &d.probsVal)

	d.model = d.model[:0]
	for _, layer := range d.layers {
		d.model = append(d.model, layer.w, layer.b)
	}
	d.model = append(d.model, d.logLayer.w, d.logLayer.b)

	if _, err := G.Grad(cost, d.model...); err != nil {
		return errors.WithStack(err)
	}
	d.g = g
	d.batchSize = batchSize
	return nil
}
