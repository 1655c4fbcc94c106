package dbn

import "testing"

func TestEarlyStopperHaltsAtInitialPatience(t *testing.T) {
	nTrainBatches := 5
	e := newEarlyStopper(nTrainBatches)

	e.observe(0, 1.0)
	for iter := 0; iter < 100; iter++ {
		if iter%e.validationFrequency == 0 && iter > 0 {
			e.observe(iter, 1.0) // never improves
		}
		if e.exhausted(iter) {
			if want := 4 * nTrainBatches; iter != want {
				t.Errorf("halted at iter %d, want %d", iter, want)
			}
			if e.bestIter != 0 {
				t.Errorf("bestIter = %d, want 0", e.bestIter)
			}
			return
		}
	}
	t.Error("never halted")
}

func TestEarlyStopperPatienceExtension(t *testing.T) {
	e := newEarlyStopper(5) // patience 20
	e.observe(0, 1.0)

	// significant improvement (> 0.5%) at iter 15 doubles the budget
	e.observe(15, 0.9)
	if e.patience != 30 {
		t.Errorf("patience = %v, want 30", e.patience)
	}
	if e.bestLoss != 0.9 || e.bestIter != 15 {
		t.Errorf("best = (%v, %d), want (0.9, 15)", e.bestLoss, e.bestIter)
	}

	// significant improvement early on never shrinks the budget
	e.observe(5, 0.8)
	if e.patience != 30 {
		t.Errorf("patience = %v, want 30 (max of old and iter*increase)", e.patience)
	}
}

func TestEarlyStopperInsignificantImprovement(t *testing.T) {
	e := newEarlyStopper(5)
	e.observe(0, 1.0)

	// better, but within the 0.995 threshold: best moves, patience doesn't
	e.observe(18, 0.999)
	if e.patience != 20 {
		t.Errorf("patience = %v, want 20", e.patience)
	}
	if e.bestLoss != 0.999 || e.bestIter != 18 {
		t.Errorf("best = (%v, %d), want (0.999, 18)", e.bestLoss, e.bestIter)
	}
}

func TestEarlyStopperValidationFrequency(t *testing.T) {
	if e := newEarlyStopper(5); e.validationFrequency != 5 {
		t.Errorf("frequency = %d, want 5", e.validationFrequency)
	}
	if e := newEarlyStopper(1); e.validationFrequency != 1 {
		t.Errorf("frequency = %d, want 1", e.validationFrequency)
	}
	e := newEarlyStopper(5)
	var checks []int
	for iter := 0; iter < 20; iter++ {
		if e.shouldValidate(iter) {
			checks = append(checks, iter)
		}
	}
	want := []int{4, 9, 14, 19}
	if len(checks) != len(want) {
		t.Fatalf("validated at %v, want %v", checks, want)
	}
	for i := range want {
		if checks[i] != want[i] {
			t.Fatalf("validated at %v, want %v", checks, want)
		}
	}
}
