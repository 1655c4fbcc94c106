package dbn

import (
	"bytes"
	"log"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gorgonia.org/tensor"
)

func tinyConf() Config {
	return Config{
		HiddenLayers:    []int{3},
		FeatSize:        4,
		PhoneVocabSize:  2,
		DropProbEncoder: 0,
		PreMaxEpochs:    2,
		PretrainLR:      0.1,
		MaxEpochs:       4,
		FinetuneLR:      0.5,
		BatchSize:       4,
		OutDir:          "out",
		OutFileAppend:   "tiny",
	}
}

// two well separated classes over four binary features
func tinyTrainingData() (trainX, trainY, valX, valY *tensor.Dense) {
	trainX = tensor.New(tensor.WithShape(8, 4), tensor.WithBacking([]float32{
		1, 1, 0, 0,
		1, 0, 0, 0,
		0, 1, 0, 0,
		1, 1, 0, 0,
		0, 0, 1, 1,
		0, 0, 1, 0,
		0, 0, 0, 1,
		0, 0, 1, 1,
	}))
	trainY = tensor.New(tensor.WithShape(8, 2), tensor.WithBacking([]float32{
		1, 0,
		1, 0,
		1, 0,
		1, 0,
		0, 1,
		0, 1,
		0, 1,
		0, 1,
	}))
	valX = tensor.New(tensor.WithShape(4, 4), tensor.WithBacking([]float32{
		1, 1, 0, 0,
		1, 0, 0, 0,
		0, 0, 1, 1,
		0, 0, 0, 1,
	}))
	valY = tensor.New(tensor.WithShape(4, 2), tensor.WithBacking([]float32{
		1, 0,
		1, 0,
		0, 1,
		0, 1,
	}))
	return
}

func silentReporter(t *testing.T) Reporter {
	t.Helper()
	var buf bytes.Buffer
	return NewLogReporter(log.New(&buf, "", 0))
}

func TestDbnClassifierEndToEnd(t *testing.T) {
	clf, err := NewDbnClassifier(tinyConf(), silentReporter(t))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	fname, best, err := clf.TrainModel(tinyTrainingData())
	if err != nil {
		t.Fatalf("%+v", err)
	}

	if len(clf.History.Finetune) < 2 {
		t.Fatalf("expected several fine-tuning epochs, got %d", len(clf.History.Finetune))
	}
	first := clf.History.Finetune[0]
	last := clf.History.Finetune[len(clf.History.Finetune)-1]
	if last >= first {
		t.Errorf("fine-tuning cost did not decrease: first %v, last %v", first, last)
	}
	if best < 0 || best > 1 {
		t.Errorf("best validation loss %v out of range", best)
	}

	if filepath.Dir(fname) != "out" {
		t.Errorf("weights path %q not under out dir", fname)
	}
	matched, err := regexp.MatchString(`^DBN_weights_tiny_\d+\.\d{2}\.hdf5$`, filepath.Base(fname))
	if err != nil || !matched {
		t.Errorf("weights filename %q does not follow the template", filepath.Base(fname))
	}
}

func TestDbnClassifierDeterminism(t *testing.T) {
	run := func() History {
		clf, err := NewDbnClassifier(tinyConf(), silentReporter(t))
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if _, _, err = clf.TrainModel(tinyTrainingData()); err != nil {
			t.Fatalf("%+v", err)
		}
		return clf.History
	}
	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("two identically configured runs diverged (-first +second):\n%s", diff)
	}
}

func TestDbnClassifierRejectsBadConfig(t *testing.T) {
	conf := tinyConf()
	conf.HiddenLayers = nil
	if _, err := NewDbnClassifier(conf, silentReporter(t)); err == nil {
		t.Error("empty hidden layer list must fail at construction")
	}
}

func TestDbnClassifierRejectsMalformedLabels(t *testing.T) {
	clf, err := NewDbnClassifier(tinyConf(), silentReporter(t))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	trainX, trainY, valX, valY := tinyTrainingData()
	bad := trainY.Data().([]float32)
	bad[0], bad[1] = 0, 0 // first row has no label
	if _, _, err := clf.TrainModel(trainX, trainY, valX, valY); err == nil {
		t.Error("malformed one-hot labels must abort the run")
	}
}
