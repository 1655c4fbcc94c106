package dbn

import (
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// RBM is a restricted Boltzmann machine over binary visible and hidden units
// with the energy E(v,h) = -vb·v - hb·h - v·W·h.
//
// When stacked inside a DBN the weight matrix and hidden bias are the
// HiddenLayer's own tensors. Every update an RBM makes during pretraining
// lands directly in the MLP the fine-tuning phase trains, and vice versa.
// The visible bias belongs to the RBM alone.
type RBM struct {
	NVisible, NHidden int

	W     *tensor.Dense // (nVisible, nHidden), possibly shared
	HBias *tensor.Dense // (1, nHidden), possibly shared
	VBias *tensor.Dense // (1, nVisible)

	rng *rand.Rand

	// round-robin bit index for the pseudo-likelihood monitor
	bitI int
}

// NewRBM builds an RBM. Pass w and hbias to share parameters with a sigmoid
// layer of the same shape; pass nil to allocate fresh ones, drawn from
// U(±4·sqrt(6/(nVisible+nHidden))).
func NewRBM(rng *rand.Rand, nVisible, nHidden int, w, hbias *tensor.Dense) *RBM {
	if w == nil {
		bound := 4 * math32.Sqrt(6/float32(nVisible+nHidden))
		backing := make([]float32, nVisible*nHidden)
		for i := range backing {
			backing[i] = rng.Float32()*2*bound - bound
		}
		w = tensor.New(tensor.WithShape(nVisible, nHidden), tensor.WithBacking(backing))
	}
	if hbias == nil {
		hbias = tensor.New(tensor.WithShape(1, nHidden), tensor.Of(tensor.Float32))
	}
	return &RBM{
		NVisible: nVisible,
		NHidden:  nHidden,
		W:        w,
		HBias:    hbias,
		VBias:    tensor.New(tensor.WithShape(1, nVisible), tensor.Of(tensor.Float32)),
		rng:      rng,
	}
}

// NewChain allocates a persistent Gibbs chain state for PCD, one hidden
// sample row per chain.
func (r *RBM) NewChain(batchSize int) *tensor.Dense {
	return tensor.New(tensor.WithShape(batchSize, r.NHidden), tensor.Of(tensor.Float32))
}

// preUp computes v·W + hb, the hidden pre-activations.
func (r *RBM) preUp(v *tensor.Dense) (*tensor.Dense, error) {
	vw, err := tensor.MatMul(v, r.W)
	if err != nil {
		return nil, errors.Wrap(err, "rbm propagate up")
	}
	out := vw.(*tensor.Dense)
	addBiasRows(out, r.HBias)
	return out, nil
}

// preDown computes h·Wᵀ + vb, the visible pre-activations. W is shared with
// the MLP view, so the transpose is taken on a scratch copy rather than by
// flipping W's access pattern in place.
func (r *RBM) preDown(h *tensor.Dense) (*tensor.Dense, error) {
	hw, err := tensor.MatMul(h, transposed(r.W))
	if err != nil {
		return nil, errors.Wrap(err, "rbm propagate down")
	}
	out := hw.(*tensor.Dense)
	addBiasRows(out, r.VBias)
	return out, nil
}

func (r *RBM) propUp(v *tensor.Dense) (*tensor.Dense, error) {
	pre, err := r.preUp(v)
	if err != nil {
		return nil, err
	}
	sigmoidInPlace(pre)
	return pre, nil
}

func (r *RBM) propDown(h *tensor.Dense) (*tensor.Dense, error) {
	pre, err := r.preDown(h)
	if err != nil {
		return nil, err
	}
	sigmoidInPlace(pre)
	return pre, nil
}

// bernoulli draws a 0/1 sample per unit from the given mean activations.
func (r *RBM) bernoulli(mean *tensor.Dense) *tensor.Dense {
	src := mean.Data().([]float32)
	backing := make([]float32, len(src))
	for i, p := range src {
		if r.rng.Float32() < p {
			backing[i] = 1
		}
	}
	return tensor.New(tensor.WithShape(mean.Shape().Clone()...), tensor.WithBacking(backing))
}

func (r *RBM) sampleHGivenV(v *tensor.Dense) (hMean, hSample *tensor.Dense, err error) {
	if hMean, err = r.propUp(v); err != nil {
		return nil, nil, err
	}
	return hMean, r.bernoulli(hMean), nil
}

func (r *RBM) sampleVGivenH(h *tensor.Dense) (vMean, vSample *tensor.Dense, err error) {
	if vMean, err = r.propDown(h); err != nil {
		return nil, nil, err
	}
	return vMean, r.bernoulli(vMean), nil
}

// gibbsHVH does one Gibbs step starting from a hidden sample: sample the
// visibles, then resample the hiddens.
func (r *RBM) gibbsHVH(h *tensor.Dense) (vMean, vSample, hMean, hSample *tensor.Dense, err error) {
	if vMean, vSample, err = r.sampleVGivenH(h); err != nil {
		return
	}
	hMean, hSample, err = r.sampleHGivenV(vSample)
	return
}

// FreeEnergy returns F(v) = -v·vb - Σ_j softplus((v·W + hb)_j) per sample.
func (r *RBM) FreeEnergy(v *tensor.Dense) ([]float32, error) {
	pre, err := r.preUp(v)
	if err != nil {
		return nil, err
	}
	rows := v.Shape()[0]
	vData := v.Data().([]float32)
	preData := pre.Data().([]float32)
	vb := r.VBias.Data().([]float32)
	fe := make([]float32, rows)
	for i := 0; i < rows; i++ {
		var vbias, hidden float32
		for j := 0; j < r.NVisible; j++ {
			vbias += vData[i*r.NVisible+j] * vb[j]
		}
		for j := 0; j < r.NHidden; j++ {
			hidden += softplus32(preData[i*r.NHidden+j])
		}
		fe[i] = -vbias - hidden
	}
	return fe, nil
}

// CDStep runs one minibatch of CD-k: k Gibbs steps seeded from the input,
// then a free-energy-gradient update of W, the hidden bias and the visible
// bias, applied in place. The chain end is treated as a constant. It returns
// the cross-entropy reconstruction cost, which monitors progress only and
// plays no part in the gradient.
func (r *RBM) CDStep(v *tensor.Dense, lr float32, k int) (float32, error) {
	return r.step(v, nil, lr, k)
}

// PCDStep is CDStep with a persistent chain: the Gibbs chain starts from
// chain rather than from the input, and chain is overwritten with the new
// hidden sample. The monitoring cost is the pseudo-likelihood proxy.
func (r *RBM) PCDStep(v, chain *tensor.Dense, lr float32, k int) (float32, error) {
	if chain == nil {
		return 0, errors.New("rbm: PCDStep requires a chain; use CDStep instead")
	}
	return r.step(v, chain, lr, k)
}

func (r *RBM) step(v, persistent *tensor.Dense, lr float32, k int) (float32, error) {
	if k < 1 {
		return 0, errors.Errorf("rbm: k must be positive, got %d", k)
	}
	if lr <= 0 {
		return 0, errors.Errorf("rbm: learning rate must be positive, got %v", lr)
	}
	input := v.Materialize().(*tensor.Dense)

	// positive phase
	phMean, phSample, err := r.sampleHGivenV(input)
	if err != nil {
		return 0, err
	}

	nhSample := phSample
	if persistent != nil {
		nhSample = persistent
	}
	var nvMean, nvSample, nhMean *tensor.Dense
	for step := 0; step < k; step++ {
		if nvMean, nvSample, nhMean, nhSample, err = r.gibbsHVH(nhSample); err != nil {
			return 0, err
		}
	}

	if err = r.applyUpdates(input, phMean, nvSample, nhMean, lr); err != nil {
		return 0, err
	}

	var cost float32
	if persistent != nil {
		copy(persistent.Data().([]float32), nhSample.Data().([]float32))
		if cost, err = r.pseudoLikelihood(input); err != nil {
			return 0, err
		}
	} else {
		cost = reconstructionCost(input, nvMean)
	}
	if notFinite(cost) {
		return cost, errors.Errorf("rbm: monitoring cost diverged (%v)", cost)
	}
	return cost, nil
}

// applyUpdates adds lr·∂(F(v0) - F(chainEnd))/∂θ to the parameters, averaged
// over the minibatch.
func (r *RBM) applyUpdates(v0, ph0, nv, nh *tensor.Dense, lr float32) error {
	batch := v0.Shape()[0]
	scale := lr / float32(batch)

	pos, err := tensor.MatMul(transposed(v0), ph0) // (nVisible, nHidden)
	if err != nil {
		return errors.Wrap(err, "rbm positive statistics")
	}
	neg, err := tensor.MatMul(transposed(nv), nh)
	if err != nil {
		return errors.Wrap(err, "rbm negative statistics")
	}
	dw := pos.Data().([]float32)
	vecf32.Sub(dw, neg.Data().([]float32))
	vecf32.Scale(dw, scale)
	vecf32.Add(r.W.Data().([]float32), dw)

	dhb := colSumDiff(ph0, nh, r.NHidden)
	vecf32.Scale(dhb, scale)
	vecf32.Add(r.HBias.Data().([]float32), dhb)

	dvb := colSumDiff(v0, nv, r.NVisible)
	vecf32.Scale(dvb, scale)
	vecf32.Add(r.VBias.Data().([]float32), dvb)
	return nil
}

// pseudoLikelihood is a stochastic proxy for the log-likelihood: it rounds
// the input to binary, flips one visible bit (round-robin across calls) and
// scores the flip by free energy difference.
func (r *RBM) pseudoLikelihood(v *tensor.Dense) (float32, error) {
	rows := v.Shape()[0]
	data := v.Data().([]float32)
	xi := make([]float32, len(data))
	for i, val := range data {
		xi[i] = math32.Floor(val + 0.5)
	}
	rounded := tensor.New(tensor.WithShape(rows, r.NVisible), tensor.WithBacking(xi))
	feXi, err := r.FreeEnergy(rounded)
	if err != nil {
		return 0, err
	}
	for i := 0; i < rows; i++ {
		xi[i*r.NVisible+r.bitI] = 1 - xi[i*r.NVisible+r.bitI]
	}
	feFlip, err := r.FreeEnergy(rounded)
	if err != nil {
		return 0, err
	}
	var cost float32
	for i := 0; i < rows; i++ {
		p := clamp32(sigmoid32(feFlip[i]-feXi[i]), 1e-7, 1)
		cost += float32(r.NVisible) * math32.Log(p)
	}
	r.bitI = (r.bitI + 1) % r.NVisible
	return cost / float32(rows), nil
}

// reconstructionCost is the per-sample cross entropy between the input and
// the reconstruction means, averaged over the minibatch.
func reconstructionCost(v, vMean *tensor.Dense) float32 {
	rows, cols := v.Shape()[0], v.Shape()[1]
	vData := v.Data().([]float32)
	mData := vMean.Data().([]float32)
	var cost float32
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			x := vData[i*cols+j]
			// float32 sigmoids saturate to exact 0/1; clamp so a
			// saturated but healthy reconstruction doesn't read as
			// divergence
			m := clamp32(mData[i*cols+j], 1e-7, 1-1e-7)
			cost += x*math32.Log(m) + (1-x)*math32.Log(1-m)
		}
	}
	return cost / float32(rows)
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func addBiasRows(a *tensor.Dense, bias *tensor.Dense) {
	data := a.Data().([]float32)
	b := bias.Data().([]float32)
	cols := len(b)
	rows := a.Shape()[0]
	for r := 0; r < rows; r++ {
		vecf32.Add(data[r*cols:(r+1)*cols], b)
	}
}

func sigmoidInPlace(a *tensor.Dense) {
	data := a.Data().([]float32)
	for i, v := range data {
		data[i] = sigmoid32(v)
	}
}

// transposed returns a compact transposed copy of a matrix.
func transposed(a *tensor.Dense) *tensor.Dense {
	rows, cols := a.Shape()[0], a.Shape()[1]
	src := a.Data().([]float32)
	dst := make([]float32, len(src))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
	return tensor.New(tensor.WithShape(cols, rows), tensor.WithBacking(dst))
}

// colSumDiff returns the per-column sums of (a - b) for two matrices of the
// same shape.
func colSumDiff(a, b *tensor.Dense, cols int) []float32 {
	aData := a.Data().([]float32)
	bData := b.Data().([]float32)
	out := make([]float32, cols)
	for i := range aData {
		out[i%cols] += aData[i] - bData[i]
	}
	return out
}
