package dbn

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// weightInitSeed is fixed so runs with identical configuration and data are
// reproducible down to the per-minibatch costs.
const weightInitSeed int64 = 123

// Reporter receives training progress. It decouples the algorithm from its
// presentation; the default implementation writes to a log.Logger.
type Reporter interface {
	Configuration(conf Config)
	BuildStart()
	PretrainStart()
	PretrainEpoch(layer, epoch int, cost float32)
	FinetuneStart()
	ValidationCheck(epoch, minibatch, nTrainBatches int, valErr float32)
	Done(bestLoss float32, bestIter int)
}

type logReporter struct {
	l *log.Logger
}

// NewLogReporter wraps a logger into a Reporter. A nil logger logs to
// stderr.
func NewLogReporter(l *log.Logger) Reporter {
	if l == nil {
		l = log.New(os.Stderr, "", log.Ltime)
	}
	return &logReporter{l: l}
}

func (r *logReporter) Configuration(conf Config) {
	r.l.Println("----------Using DBN model with the below configuration----------")
	r.l.Printf("nLayers: %d", len(conf.HiddenLayers))
	r.l.Printf("Layer sizes: %s", strings.Trim(fmt.Sprint(conf.HiddenLayers), "[]"))
	r.l.Printf("Dropout Prob: %.2f", conf.DropProbEncoder)
	r.l.Printf("Pretraining epochs: %d Pretraining learning rate: %f", conf.PreMaxEpochs, conf.PretrainLR)
	r.l.Printf("Training epochs: %d Training learning rate: %f", conf.MaxEpochs, conf.FinetuneLR)
}

func (r *logReporter) BuildStart()    { r.l.Println("... building the model") }
func (r *logReporter) PretrainStart() { r.l.Println("... pre-training the model") }
func (r *logReporter) FinetuneStart() { r.l.Println("... finetuning the model") }

func (r *logReporter) PretrainEpoch(layer, epoch int, cost float32) {
	r.l.Printf("Pre-training layer %d, epoch %d, cost %f", layer, epoch, cost)
}

func (r *logReporter) ValidationCheck(epoch, minibatch, nTrainBatches int, valErr float32) {
	r.l.Printf("epoch %d, minibatch %d/%d, validation error %f %%", epoch, minibatch, nTrainBatches, valErr*100)
}

func (r *logReporter) Done(bestLoss float32, bestIter int) {
	r.l.Printf("Optimization complete with best validation score of %f %%, obtained at iteration %d", bestLoss*100, bestIter+1)
}

// ValidationPoint is one validation check in the training history.
type ValidationPoint struct {
	Iter int
	Err  float32
}

// History records the costs a run produced, for reporting and for the curve
// renderer.
type History struct {
	Pretrain   [][]float32 // per layer, per epoch mean monitoring cost
	Finetune   []float32   // per epoch mean training cost
	Validation []ValidationPoint
}

// DbnClassifier drives the two training phases of a DBN and reports the best
// model found.
type DbnClassifier struct {
	Model   *DBN
	History History

	conf Config
	rep  Reporter

	bestLoss float32
	bestIter int
}

// NewDbnClassifier validates the configuration and announces it. A nil
// reporter gets the default logger.
func NewDbnClassifier(conf Config, rep Reporter) (*DbnClassifier, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if rep == nil {
		rep = NewLogReporter(nil)
	}
	rep.Configuration(conf)
	return &DbnClassifier{conf: conf, rep: rep}, nil
}

// BuildModel constructs the DBN with deterministically seeded weights.
func (c *DbnClassifier) BuildModel() error {
	c.rep.BuildStart()
	rng := rand.New(rand.NewSource(weightInitSeed))
	model, err := NewDBN(rng, c.conf.FeatSize, c.conf.HiddenLayers, c.conf.PhoneVocabSize)
	if err != nil {
		return err
	}
	c.Model = model
	return nil
}

// TrainModel runs greedy layer-wise pretraining followed by supervised
// fine-tuning with early stopping. Labels come in one-hot. It returns the
// filename the best weights should be written to and the best validation
// loss. Saving is the caller's call; see DBN.Save.
func (c *DbnClassifier) TrainModel(trainX, trainY, valX, valY *tensor.Dense) (string, float32, error) {
	if c.Model == nil {
		if err := c.BuildModel(); err != nil {
			return "", 0, err
		}
	}
	train, err := NewDataset(trainX, trainY)
	if err != nil {
		return "", 0, errors.WithMessage(err, "training set")
	}
	valid, err := NewDataset(valX, valY)
	if err != nil {
		return "", 0, errors.WithMessage(err, "validation set")
	}

	batchSize := c.conf.BatchSize
	nTrainBatches := train.Batches(batchSize)
	if nTrainBatches < 1 || valid.Batches(batchSize) < 1 {
		return "", 0, errors.Errorf("batch size %d exceeds dataset sizes %d and %d", batchSize, train.Samples(), valid.Samples())
	}

	if err = c.pretrain(train, nTrainBatches); err != nil {
		return "", 0, err
	}
	if err = c.finetune(train, valid, nTrainBatches); err != nil {
		return "", 0, err
	}

	c.rep.Done(c.bestLoss, c.bestIter)
	return c.WeightsPath(), c.bestLoss, nil
}

// pretrain trains each RBM for the full epoch budget before moving on to the
// next layer; layers are never revisited. Deeper layers see the training set
// through the already-updated weights below them.
func (c *DbnClassifier) pretrain(train *Dataset, nTrainBatches int) error {
	const k = 1
	fns, err := c.Model.PretrainingFuncs(train.X, c.conf.BatchSize, k)
	if err != nil {
		return err
	}
	c.rep.PretrainStart()
	c.History.Pretrain = make([][]float32, c.Model.NLayers)
	lr := float32(c.conf.PretrainLR)
	for i := 0; i < c.Model.NLayers; i++ {
		for epoch := 0; epoch < c.conf.PreMaxEpochs; epoch++ {
			costs := make([]float32, nTrainBatches)
			for batch := 0; batch < nTrainBatches; batch++ {
				if costs[batch], err = fns[i](batch, lr); err != nil {
					return errors.WithMessagef(err, "pre-training layer %d, epoch %d", i, epoch)
				}
			}
			mean := meanF32(costs)
			c.rep.PretrainEpoch(i, epoch, mean)
			c.History.Pretrain[i] = append(c.History.Pretrain[i], mean)
		}
	}
	return nil
}

func (c *DbnClassifier) finetune(train, valid *Dataset, nTrainBatches int) error {
	fns, err := c.Model.BuildFinetuneFuncs(train, valid, c.conf.BatchSize, c.conf.FinetuneLR)
	if err != nil {
		return err
	}
	defer fns.Close()
	c.rep.FinetuneStart()

	stopper := newEarlyStopper(nTrainBatches)
	epoch := 0
	done := false
	for epoch < c.conf.MaxEpochs && !done {
		epoch++
		costs := make([]float32, 0, nTrainBatches)
		for mb := 0; mb < nTrainBatches; mb++ {
			cost, err := fns.Train(mb)
			if err != nil {
				return errors.WithMessagef(err, "fine-tuning epoch %d", epoch)
			}
			costs = append(costs, cost)
			iter := (epoch-1)*nTrainBatches + mb

			if stopper.shouldValidate(iter) {
				scores, err := fns.ValidScore()
				if err != nil {
					return errors.WithMessagef(err, "validating at epoch %d", epoch)
				}
				valErr := meanF32(scores)
				c.rep.ValidationCheck(epoch, mb+1, nTrainBatches, valErr)
				c.History.Validation = append(c.History.Validation, ValidationPoint{Iter: iter, Err: valErr})
				stopper.observe(iter, valErr)
			}
			if stopper.exhausted(iter) {
				done = true
				break
			}
		}
		c.History.Finetune = append(c.History.Finetune, meanF32(costs))
	}
	c.bestLoss = stopper.bestLoss
	c.bestIter = stopper.bestIter
	return nil
}

// BestValidationLoss returns the best mean validation error seen, and the
// iteration it was seen at.
func (c *DbnClassifier) BestValidationLoss() (float32, int) { return c.bestLoss, c.bestIter }

// WeightsPath is the output filename for the best weights, templated with
// the best validation loss.
func (c *DbnClassifier) WeightsPath() string {
	return filepath.Join(c.conf.OutDir, fmt.Sprintf("DBN_weights_%s_%.2f.hdf5", c.conf.OutFileAppend, c.bestLoss))
}
