package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/gorgonia/dbn"
	"github.com/gorgonia/dbn/encoding/curve"
	"gorgonia.org/tensor"
)

var (
	configPath = flag.String("config", "config.json", "hyperparameter configuration (JSON)")
	trainXPath = flag.String("train-x", "", "training features (CSV, samples x feat_size)")
	trainYPath = flag.String("train-y", "", "training labels (CSV, one-hot)")
	validXPath = flag.String("valid-x", "", "validation features (CSV)")
	validYPath = flag.String("valid-y", "", "validation labels (CSV, one-hot)")
	curvePath  = flag.String("curve", "", "optional path for a training-curve GIF")
	dotPath    = flag.String("dot", "", "optional path for a graphviz dump of the architecture")
)

func main() {
	flag.Parse()

	conf, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	trainX := loadCSV(*trainXPath)
	trainY := loadCSV(*trainYPath)
	validX := loadCSV(*validXPath)
	validY := loadCSV(*validYPath)

	clf, err := dbn.NewDbnClassifier(conf, nil)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	if err := clf.BuildModel(); err != nil {
		log.Fatalf("%+v", err)
	}
	if *dotPath != "" {
		if err := os.WriteFile(*dotPath, []byte(clf.Model.ToDot()), 0644); err != nil {
			log.Fatalf("writing dot: %v", err)
		}
	}

	fname, best, err := clf.TrainModel(trainX, trainY, validX, validY)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	if err := clf.Model.Save(fname); err != nil {
		log.Fatalf("%+v", err)
	}
	log.Printf("best validation loss %f, weights written to %s", best, fname)

	if *curvePath != "" {
		writeCurves(*curvePath, clf.History)
	}
}

func loadConfig(path string) (dbn.Config, error) {
	var conf dbn.Config
	f, err := os.Open(path)
	if err != nil {
		return conf, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&conf); err != nil {
		return conf, err
	}
	return conf, conf.Validate()
}

func loadCSV(path string) *tensor.Dense {
	if path == "" {
		log.Fatal("train-x, train-y, valid-x and valid-y are all required")
	}
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		log.Fatalf("reading %s: %v", path, err)
	}
	if len(records) == 0 {
		log.Fatalf("%s is empty", path)
	}
	cols := len(records[0])
	backing := make([]float32, 0, len(records)*cols)
	for i, rec := range records {
		if len(rec) != cols {
			log.Fatalf("%s: row %d has %d columns, want %d", path, i, len(rec), cols)
		}
		for _, field := range rec {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				log.Fatalf("%s: row %d: %v", path, i, err)
			}
			backing = append(backing, float32(v))
		}
	}
	return tensor.New(tensor.WithShape(len(records), cols), tensor.WithBacking(backing))
}

func writeCurves(path string, h dbn.History) {
	enc := curve.NewEncoder(480, 320)
	for i, layer := range h.Pretrain {
		enc.Append("pretraining cost, layer "+strconv.Itoa(i), layer)
	}
	enc.Append("finetuning cost", h.Finetune)
	valErrs := make([]float32, len(h.Validation))
	for i, p := range h.Validation {
		valErrs[i] = p.Err
	}
	enc.Append("validation error", valErrs)

	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()
	if err := enc.Flush(f); err != nil {
		log.Fatalf("writing %s: %v", path, err)
	}
}
