package dbn

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Float is the data type all the tensors in this package use.
var Float = G.Float32

type maebe struct {
	err error
}

// generic monad... may be useful
func (m *maebe) do(f func() (*G.Node, error)) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = f(); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

type slicer struct {
	v   tensor.View
	err error
}

func (s *slicer) Slice(a *tensor.Dense, slices ...tensor.Slice) *tensor.Dense {
	if s.err != nil {
		return nil
	}
	if s.v, s.err = a.Slice(slices...); s.err != nil {
		s.err = errors.Wrapf(s.err, "Slicer failed") // get a stack trace
		return nil
	}
	return s.v.(*tensor.Dense)
}

type rs struct {
	start, end, step int
}

func (s rs) Start() int { return s.start }
func (s rs) End() int   { return s.end }
func (s rs) Step() int  { return s.step }

// sli creates a ranged slice. It takes an optional step param.
func sli(start, end int, opts ...int) rs {
	step := 1
	if len(opts) > 0 {
		step = opts[0]
	}
	return rs{
		start: start,
		end:   end,
		step:  step,
	}
}

func sigmoid32(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// softplus32 is log(1+exp(x)), computed so large x doesn't overflow.
func softplus32(x float32) float32 {
	if x > 30 {
		return x
	}
	return math32.Log1p(math32.Exp(x))
}

func meanF32(a []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	var sum float32
	for _, v := range a {
		sum += v
	}
	return sum / float32(len(a))
}

func argmax32(a []float32) int {
	best := 0
	for i := 1; i < len(a); i++ {
		if a[i] > a[best] {
			best = i
		}
	}
	return best
}

func notFinite(x float32) bool {
	return math32.IsNaN(x) || math32.IsInf(x, 0)
}
