package dsp

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadSpectrogramRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "artifacts", "clip_spectrogram.json")

	s := &Spectrogram{
		Freqs: []float64{0, 0.48828125, 0.9765625},
		Times: []float64{1.024, 2.048},
		Values: [][]float64{
			{0.5, 0.25},
			{1.5, 2.5},
			{0, 0.125},
		},
	}
	if err := SaveSpectrogram(s, path); err != nil {
		t.Fatalf("SaveSpectrogram returned error: %v", err)
	}

	loaded, err := LoadSpectrogram(path)
	if err != nil {
		t.Fatalf("LoadSpectrogram returned error: %v", err)
	}
	if len(loaded.Freqs) != len(s.Freqs) || len(loaded.Times) != len(s.Times) {
		t.Fatalf("axis lengths changed in the round trip")
	}
	for r := range s.Values {
		for c := range s.Values[r] {
			if loaded.Values[r][c] != s.Values[r][c] {
				t.Fatalf("value [%d][%d] changed: expected %v, got %v", r, c, s.Values[r][c], loaded.Values[r][c])
			}
		}
	}

	// The temp file used for the atomic write must be gone.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("failed to list artifact directory: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the artifact in the directory, found %d entries", len(entries))
	}
}

func TestLoadSpectrogramMissing(t *testing.T) {
	t.Parallel()

	if _, err := LoadSpectrogram(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected an error for a missing artifact")
	}
}

func TestLoadSpectrogramRejectsCorrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	garbled := filepath.Join(dir, "garbled.json")
	if err := os.WriteFile(garbled, []byte("not json"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if _, err := LoadSpectrogram(garbled); err == nil {
		t.Fatalf("expected an error for non-JSON content")
	}

	mismatched := filepath.Join(dir, "mismatched.json")
	if err := os.WriteFile(mismatched, []byte(`{"freqs":[0,1],"times":[0],"values":[[1]]}`), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if _, err := LoadSpectrogram(mismatched); err == nil {
		t.Fatalf("expected an error for a row count that does not match the axes")
	}
}
