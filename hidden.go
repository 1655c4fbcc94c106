package dbn

import (
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// HiddenLayer is a fully connected sigmoid layer. Its weight matrix and bias
// are plain dense tensors so that an RBM can hold the very same tensors: the
// discriminative and generative views of a layer share storage, they never
// copy it.
type HiddenLayer struct {
	W *tensor.Dense // (nIn, nOut)
	B *tensor.Dense // (1, nOut)

	NIn, NOut int

	w, b *G.Node
	out  *G.Node
}

// NewHiddenLayer allocates a layer with weights drawn from
// U(±4·sqrt(6/(nIn+nOut))) and a zero bias.
func NewHiddenLayer(rng *rand.Rand, nIn, nOut int) *HiddenLayer {
	bound := 4 * math32.Sqrt(6/float32(nIn+nOut))
	backing := make([]float32, nIn*nOut)
	for i := range backing {
		backing[i] = rng.Float32()*2*bound - bound
	}
	return &HiddenLayer{
		W:    tensor.New(tensor.WithShape(nIn, nOut), tensor.WithBacking(backing)),
		B:    tensor.New(tensor.WithShape(1, nOut), tensor.Of(tensor.Float32)),
		NIn:  nIn,
		NOut: nOut,
	}
}

// fwd adds the layer to x's graph and returns sigmoid(x·W + b). The weight
// nodes are backed by the layer's own tensors, so whatever mutates W and B
// (an RBM pretraining step, a solver step) is seen by the graph on its next
// run.
func (l *HiddenLayer) fwd(m *maebe, x *G.Node, name string) *G.Node {
	g := x.Graph()
	l.w = G.NewMatrix(g, Float, G.WithShape(l.NIn, l.NOut), G.WithName(name+"_w"), G.WithValue(l.W))
	l.b = G.NewMatrix(g, Float, G.WithShape(1, l.NOut), G.WithName(name+"_b"), G.WithValue(l.B))
	xw := m.do(func() (*G.Node, error) { return G.Mul(x, l.w) })
	xwb := m.do(func() (*G.Node, error) { return G.BroadcastAdd(xw, l.b, nil, []byte{0}) })
	l.out = m.do(func() (*G.Node, error) { return G.Sigmoid(xwb) })
	return l.out
}

// Activate runs the layer forward outside the graph: sigmoid(x·W + b) on a
// dense minibatch. Pretraining uses this to derive the input distribution of
// the deeper layers from the already-updated shallower ones.
func (l *HiddenLayer) Activate(x *tensor.Dense) (*tensor.Dense, error) {
	xw, err := tensor.MatMul(x, l.W)
	if err != nil {
		return nil, errors.Wrap(err, "hidden layer forward")
	}
	out := xw.(*tensor.Dense)
	data := out.Data().([]float32)
	bias := l.B.Data().([]float32)
	rows := out.Shape()[0]
	for r := 0; r < rows; r++ {
		vecf32.Add(data[r*l.NOut:(r+1)*l.NOut], bias)
	}
	for i, v := range data {
		data[i] = sigmoid32(v)
	}
	return out, nil
}
