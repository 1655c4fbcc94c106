package dbn

import (
	"github.com/pkg/errors"
)

// Config holds the hyperparameters of a DBN training run. The field names
// follow the configuration keys the experiment harness emits.
type Config struct {
	HiddenLayers   []int   `json:"hidden_layers"`
	FeatSize       int     `json:"feat_size"`
	PhoneVocabSize int     `json:"phone_vocab_size"`

	// DropProbEncoder is accepted and reported but the network does not
	// implement dropout. It is kept so configurations written for the
	// dropout-capable encoders parse unchanged.
	DropProbEncoder float64 `json:"drop_prob_encoder"`

	PreMaxEpochs int     `json:"pre_max_epochs"`
	PretrainLR   float64 `json:"plr"`
	MaxEpochs    int     `json:"max_epochs"`
	FinetuneLR   float64 `json:"lr"`
	BatchSize    int     `json:"batch_size"`

	OutDir        string `json:"out_dir"`
	OutFileAppend string `json:"out_file_append"`
}

// Validate fails fast on configurations the trainer cannot run with. It is
// called before any tensor is allocated.
func (c Config) Validate() error {
	if len(c.HiddenLayers) < 1 {
		return errors.New("config: at least one hidden layer is required")
	}
	for i, h := range c.HiddenLayers {
		if h < 1 {
			return errors.Errorf("config: hidden layer %d has width %d", i, h)
		}
	}
	if c.FeatSize < 1 {
		return errors.Errorf("config: feat_size %d", c.FeatSize)
	}
	if c.PhoneVocabSize < 1 {
		return errors.Errorf("config: phone_vocab_size %d", c.PhoneVocabSize)
	}
	if c.DropProbEncoder < 0 || c.DropProbEncoder > 1 {
		return errors.Errorf("config: drop_prob_encoder %v is not in [0, 1]", c.DropProbEncoder)
	}
	if c.PreMaxEpochs < 0 {
		return errors.Errorf("config: pre_max_epochs %d", c.PreMaxEpochs)
	}
	if c.MaxEpochs < 1 {
		return errors.Errorf("config: max_epochs %d", c.MaxEpochs)
	}
	if c.PretrainLR <= 0 {
		return errors.Errorf("config: plr %v", c.PretrainLR)
	}
	if c.FinetuneLR <= 0 {
		return errors.Errorf("config: lr %v", c.FinetuneLR)
	}
	if c.BatchSize < 1 {
		return errors.Errorf("config: batch_size %d", c.BatchSize)
	}
	return nil
}
