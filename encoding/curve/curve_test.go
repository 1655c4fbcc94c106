package curve

import (
	"bytes"
	"testing"
)

func TestEncoderRoundTrip(t *testing.T) {
	enc := NewEncoder(240, 160)
	enc.Append("pretraining cost, layer 0", []float32{-120.5, -80.2, -60.7, -55.1})
	enc.Append("validation error", []float32{0.5, 0.25, 0.25, 0.125})
	if enc.Frames() != 2 {
		t.Fatalf("frames = %d, want 2", enc.Frames())
	}

	var buf bytes.Buffer
	if err := enc.Flush(&buf); err != nil {
		t.Fatalf("%v", err)
	}
	if buf.Len() == 0 {
		t.Error("no gif bytes written")
	}
}

func TestEncoderDegenerateSeries(t *testing.T) {
	enc := NewEncoder(240, 160)
	enc.Append("empty", nil)
	enc.Append("single", []float32{1})
	enc.Append("flat", []float32{2, 2, 2})

	var buf bytes.Buffer
	if err := enc.Flush(&buf); err != nil {
		t.Fatalf("%v", err)
	}
}
