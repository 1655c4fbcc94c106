package dbn

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// LogisticRegression is the softmax output layer of the DBN. Both parameters
// start at zero, as the classifier is only ever trained on top of pretrained
// hidden layers.
type LogisticRegression struct {
	W *tensor.Dense // (nIn, nOut)
	B *tensor.Dense // (1, nOut)

	NIn, NOut int

	w, b *G.Node
}

func NewLogisticRegression(nIn, nOut int) *LogisticRegression {
	return &LogisticRegression{
		W:    tensor.New(tensor.WithShape(nIn, nOut), tensor.Of(tensor.Float32)),
		B:    tensor.New(tensor.WithShape(1, nOut), tensor.Of(tensor.Float32)),
		NIn:  nIn,
		NOut: nOut,
	}
}

// fwd adds the layer to x's graph and returns softmax(x·W + b), the class
// membership probabilities.
func (l *LogisticRegression) fwd(m *maebe, x *G.Node, name string) *G.Node {
	g := x.Graph()
	l.w = G.NewMatrix(g, Float, G.WithShape(l.NIn, l.NOut), G.WithName(name+"_w"), G.WithValue(l.W))
	l.b = G.NewMatrix(g, Float, G.WithShape(1, l.NOut), G.WithName(name+"_b"), G.WithValue(l.B))
	xw := m.do(func() (*G.Node, error) { return G.Mul(x, l.w) })
	xwb := m.do(func() (*G.Node, error) { return G.BroadcastAdd(xw, l.b, nil, []byte{0}) })
	return m.do(func() (*G.Node, error) { return G.SoftMax(xwb) })
}

// nll is the mean negative log likelihood of the true labels, with y given
// as a one-hot matrix. The small constant keeps the log finite when the
// softmax saturates.
func (l *LogisticRegression) nll(m *maebe, probs, y *G.Node) *G.Node {
	eps := G.NewConstant(float32(1e-8))
	safe := m.do(func() (*G.Node, error) { return G.Add(probs, eps) })
	logp := m.do(func() (*G.Node, error) { return G.Log(safe) })
	picked := m.do(func() (*G.Node, error) { return G.HadamardProd(y, logp) })
	perSample := m.do(func() (*G.Node, error) { return G.Sum(picked, 1) })
	mean := m.do(func() (*G.Node, error) { return G.Mean(perSample) })
	return m.do(func() (*G.Node, error) { return G.Neg(mean) })
}
