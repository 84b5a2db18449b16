package dsp

import (
	"testing"
)

func TestTreatmentDescriptorFlatRoundTrip(t *testing.T) {
	t.Parallel()

	d := NewTreatmentDescriptor(-30, 10, 50)
	if got := d.Flat(); got != "-30dB_10Hz_50Hz_noneperc" {
		t.Fatalf("expected -30dB_10Hz_50Hz_noneperc, got %s", got)
	}

	parsed, err := ParseTreatmentDescriptor(d.Flat())
	if err != nil {
		t.Fatalf("ParseTreatmentDescriptor returned error: %v", err)
	}
	if !parsed.Equal(d) {
		t.Fatalf("round trip changed the descriptor: %s vs %s", parsed, d)
	}
	if parsed.MinRequiredOverlap != nil {
		t.Fatalf("expected no overlap requirement, got %d", *parsed.MinRequiredOverlap)
	}

	d.AddOverlap(20)
	if got := d.Flat(); got != "-30dB_10Hz_50Hz_20perc" {
		t.Fatalf("expected -30dB_10Hz_50Hz_20perc, got %s", got)
	}
	parsed, err = ParseTreatmentDescriptor(d.Flat())
	if err != nil {
		t.Fatalf("ParseTreatmentDescriptor returned error: %v", err)
	}
	if !parsed.Equal(d) {
		t.Fatalf("round trip changed the descriptor: %s vs %s", parsed, d)
	}
	if parsed.MinRequiredOverlap == nil || *parsed.MinRequiredOverlap != 20 {
		t.Fatalf("expected overlap 20, got %v", parsed.MinRequiredOverlap)
	}
}

func TestParseTreatmentDescriptorNoneVariants(t *testing.T) {
	t.Parallel()

	for _, flat := range []string{"-40dB_10Hz_50Hz_noneperc", "-40dB_10Hz_50Hz_Noneperc"} {
		d, err := ParseTreatmentDescriptor(flat)
		if err != nil {
			t.Fatalf("ParseTreatmentDescriptor(%q) returned error: %v", flat, err)
		}
		if d.MinRequiredOverlap != nil {
			t.Fatalf("%q: expected no overlap requirement, got %d", flat, *d.MinRequiredOverlap)
		}
		if d.ThresholdDb != -40 || d.LowFreq != 10 || d.HighFreq != 50 {
			t.Fatalf("%q parsed to unexpected fields: %+v", flat, d)
		}
	}
}

func TestParseTreatmentDescriptorRejectsGarbage(t *testing.T) {
	t.Parallel()

	bad := []string{
		"",
		"-40dB_10Hz_50Hz",          // missing overlap field
		"-40dB_10Hz_50Hz_5pc",      // wrong overlap suffix
		"xdB_10Hz_50Hz_5perc",      // unparsable threshold
		"-40dB_10_50Hz_5perc",      // missing Hz suffix
		"-40dB_10Hz_50Hz_5perc_66", // trailing field
		"10Hz_-40dB_50Hz_5perc",    // fields out of order
	}
	for _, flat := range bad {
		if _, err := ParseTreatmentDescriptor(flat); err == nil {
			t.Fatalf("expected %q to be rejected", flat)
		}
	}
}

func TestTreatmentDescriptorEquality(t *testing.T) {
	t.Parallel()

	a := NewTreatmentDescriptor(-30, 10, 50)
	b := NewTreatmentDescriptor(-30, 10, 50)
	b.AddOverlap(10)

	if !a.EqualSignalProcessing(b) {
		t.Fatalf("signal-processing equality must ignore the overlap")
	}
	if a.Equal(b) {
		t.Fatalf("full equality must include the overlap")
	}

	a.AddOverlap(10)
	if !a.Equal(b) {
		t.Fatalf("expected equal descriptors, got %s vs %s", a, b)
	}

	c := NewTreatmentDescriptor(-40, 10, 50)
	if a.EqualSignalProcessing(c) {
		t.Fatalf("different thresholds must not compare equal")
	}
}
