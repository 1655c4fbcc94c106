package dbn

import (
	"math"

	"github.com/chewxy/math32"
)

// earlyStopper implements the classic patience scheme: train for at least
// patience iterations, extend the budget whenever the validation loss
// improves by a significant margin, stop once the budget runs out.
type earlyStopper struct {
	patience             float64
	patienceIncrease     float64
	improvementThreshold float32
	validationFrequency  int

	bestLoss float32
	bestIter int
}

func newEarlyStopper(nTrainBatches int) *earlyStopper {
	patience := float64(4 * nTrainBatches)
	freq := nTrainBatches
	if half := int(patience / 2); half < freq {
		freq = half
	}
	return &earlyStopper{
		patience:             patience,
		patienceIncrease:     2.0,
		improvementThreshold: 0.995,
		validationFrequency:  freq,
		bestLoss:             math32.Inf(1),
	}
}

// shouldValidate reports whether the validation set is due at this
// iteration.
func (e *earlyStopper) shouldValidate(iter int) bool {
	return (iter+1)%e.validationFrequency == 0
}

// observe records a validation result. A new best loss is always kept; only
// an improvement beyond the threshold fraction of the previous best extends
// the patience to iter·patienceIncrease.
func (e *earlyStopper) observe(iter int, loss float32) {
	if loss < e.bestLoss {
		if loss < e.bestLoss*e.improvementThreshold {
			e.patience = math.Max(e.patience, float64(iter)*e.patienceIncrease)
		}
		e.bestLoss = loss
		e.bestIter = iter
	}
}

// exhausted reports whether the patience budget is spent. Checked once per
// minibatch.
func (e *earlyStopper) exhausted(iter int) bool {
	return e.patience <= float64(iter)
}
