package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"call-detection/db"
	"call-detection/dsp"
)

func TestChopperCutsLabeledSnippets(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, counter := newTestChopStore(t, dir)

	specPath := filepath.Join(dir, "test_spectroA_spectrogram.json")
	writeParentSpectrogram(t, specPath)
	labelPath := filepath.Join(dir, "test_spectroA.txt")
	writeLabelFile(t, labelPath, "0.5\t1.0")

	outDir := filepath.Join(dir, "snippets")
	cfg := DefaultChopperConfig()
	cfg.OutDir = outDir
	chopper, err := NewChopper(store, counter, cfg)
	if err != nil {
		t.Fatalf("failed to build chopper: %v", err)
	}

	snips, err := chopper.ChopOne(specPath, labelPath)
	if err != nil {
		t.Fatalf("chop failed: %v", err)
	}
	if len(snips) != 2 {
		t.Fatalf("expected 2 snippets, got %d", len(snips))
	}

	want := []db.Snippet{
		{
			SampleID:          1,
			RecordingSite:     "test_spectroA",
			Label:             1,
			StartTimeTick:     0,
			EndTimeTick:       2,
			StartTime:         0,
			EndTime:           4,
			ParentLowEnergy:   4,
			ParentMedEnergy:   40,
			ParentHighEnergy:  400,
			SnippetLowEnergy:  1.5,
			SnippetMedEnergy:  15,
			SnippetHighEnergy: 150,
			Filename:          "test_spectroA_1_spectrogram.json",
		},
		{
			SampleID:          2,
			RecordingSite:     "test_spectroA",
			Label:             0,
			StartTimeTick:     2,
			EndTimeTick:       4,
			StartTime:         4,
			EndTime:           8,
			ParentLowEnergy:   4,
			ParentMedEnergy:   40,
			ParentHighEnergy:  400,
			SnippetLowEnergy:  3.5,
			SnippetMedEnergy:  35,
			SnippetHighEnergy: 350,
			Filename:          "test_spectroA_2_spectrogram.json",
		},
	}
	for i := range want {
		if snips[i] != want[i] {
			t.Fatalf("snippet %d: expected %+v, got %+v", i, want[i], snips[i])
		}
	}

	stored, err := store.QueryAll()
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(stored) != 2 || stored[0] != want[0] || stored[1] != want[1] {
		t.Fatalf("expected stored rows to match chopped snippets, got %+v", stored)
	}

	// Each snippet carries its own playable slice of the parent.
	window, err := dsp.LoadSpectrogram(filepath.Join(outDir, "test_spectroA_1_spectrogram.json"))
	if err != nil {
		t.Fatalf("failed to load snippet spectrogram: %v", err)
	}
	if len(window.Times) != 2 || window.Times[0] != 0 || window.Times[1] != 2 {
		t.Fatalf("expected snippet times [0 2], got %v", window.Times)
	}
	if len(window.Values) != 3 || window.Values[0][0] != 1 || window.Values[0][1] != 2 {
		t.Fatalf("expected snippet values from parent columns, got %v", window.Values)
	}
}

func TestChopperMinimumOverlapPercent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, counter := newTestChopStore(t, dir)

	specPath := filepath.Join(dir, "test_spectroA_spectrogram.json")
	writeParentSpectrogram(t, specPath)
	labelPath := filepath.Join(dir, "test_spectroA.txt")
	writeLabelFile(t, labelPath, "0.0\t1.0")

	cfg := DefaultChopperConfig()
	cfg.OutDir = dir
	twenty := 20.0
	cfg.MinRequiredOverlap = &twenty
	chopper, err := NewChopper(store, counter, cfg)
	if err != nil {
		t.Fatalf("failed to build chopper: %v", err)
	}

	// One second of call over a four second window is 25%.
	snips, err := chopper.ChopOne(specPath, labelPath)
	if err != nil {
		t.Fatalf("chop failed: %v", err)
	}
	if snips[0].Label != 1 || snips[1].Label != 0 {
		t.Fatalf("expected labels [1 0], got [%d %d]", snips[0].Label, snips[1].Label)
	}
}

func TestChopperChopDirPairsLabels(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, counter := newTestChopStore(t, dir)

	specDir := filepath.Join(dir, "specs")
	labelDir := filepath.Join(dir, "labels")
	outDir := filepath.Join(dir, "snippets")
	for _, d := range []string{specDir, labelDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("failed to create %s: %v", d, err)
		}
	}

	writeParentSpectrogram(t, filepath.Join(specDir, "siteA_spectrogram.json"))
	writeParentSpectrogram(t, filepath.Join(specDir, "siteB_spectrogram.json"))
	writeLabelFile(t, filepath.Join(labelDir, "siteA.txt"), "0.5\t1.0")

	cfg := DefaultChopperConfig()
	cfg.OutDir = outDir
	chopper, err := NewChopper(store, counter, cfg)
	if err != nil {
		t.Fatalf("failed to build chopper: %v", err)
	}

	total, err := chopper.ChopDir(specDir, labelDir)
	if err != nil {
		t.Fatalf("chop failed: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected 4 snippets across both recordings, got %d", total)
	}

	stored, err := store.QueryAll()
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	for _, snip := range stored {
		if snip.RecordingSite == "siteB" && snip.Label != 0 {
			t.Fatalf("expected unlabeled recording to produce negatives, got %+v", snip)
		}
	}
}

func TestChopperTooShortSpectrogram(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, counter := newTestChopStore(t, dir)

	spec := &dsp.Spectrogram{
		Freqs:  []float64{0, 20, 40},
		Times:  []float64{0, 2},
		Values: [][]float64{{1, 2}, {3, 4}, {5, 6}},
	}
	specPath := filepath.Join(dir, "short_spectrogram.json")
	if err := dsp.SaveSpectrogram(spec, specPath); err != nil {
		t.Fatalf("failed to write spectrogram: %v", err)
	}

	cfg := DefaultChopperConfig()
	cfg.OutDir = dir
	chopper, err := NewChopper(store, counter, cfg)
	if err != nil {
		t.Fatalf("failed to build chopper: %v", err)
	}

	// A 5s window needs endTick 2, but the last readable column is 1.
	snips, err := chopper.ChopOne(specPath, "")
	if err != nil {
		t.Fatalf("chop failed: %v", err)
	}
	if len(snips) != 0 {
		t.Fatalf("expected no snippets from a too-short spectrogram, got %d", len(snips))
	}
}

func TestChopperSiteOverride(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, counter := newTestChopStore(t, dir)

	specPath := filepath.Join(dir, "test_spectroA_spectrogram.json")
	writeParentSpectrogram(t, specPath)

	cfg := DefaultChopperConfig()
	cfg.OutDir = dir
	cfg.Site = "dzanga_clearing"
	chopper, err := NewChopper(store, counter, cfg)
	if err != nil {
		t.Fatalf("failed to build chopper: %v", err)
	}

	snips, err := chopper.ChopOne(specPath, "")
	if err != nil {
		t.Fatalf("chop failed: %v", err)
	}
	if len(snips) != 2 {
		t.Fatalf("expected 2 snippets, got %d", len(snips))
	}
	for _, snip := range snips {
		if snip.RecordingSite != "dzanga_clearing" {
			t.Fatalf("expected overridden site, got %q", snip.RecordingSite)
		}
	}
	// Artifact names still come from the file so two sites can share
	// an output directory.
	if snips[0].Filename != "test_spectroA_1_spectrogram.json" {
		t.Fatalf("unexpected snippet filename %q", snips[0].Filename)
	}
}

func TestNewChopperRejectsBadConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, counter := newTestChopStore(t, dir)

	cfg := DefaultChopperConfig()
	cfg.SnippetWidthSecs = 0
	if _, err := NewChopper(store, counter, cfg); err == nil {
		t.Fatalf("expected zero snippet width to be rejected")
	}

	cfg = DefaultChopperConfig()
	cfg.Bands[1] = FreqBand{LowHz: 40, HighHz: 20}
	if _, err := NewChopper(store, counter, cfg); err == nil {
		t.Fatalf("expected inverted band to be rejected")
	}
}

func TestChopperBandOutsideSpectrogramRange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, counter := newTestChopStore(t, dir)

	specPath := filepath.Join(dir, "test_spectroA_spectrogram.json")
	writeParentSpectrogram(t, specPath)

	cfg := DefaultChopperConfig()
	cfg.OutDir = dir
	cfg.Bands[2] = FreqBand{LowHz: 400, HighHz: 500}
	chopper, err := NewChopper(store, counter, cfg)
	if err != nil {
		t.Fatalf("failed to build chopper: %v", err)
	}

	_, err = chopper.ChopOne(specPath, "")
	var integrity *DataIntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected DataIntegrityError for a band above the frequency range, got %v", err)
	}
}

// writeParentSpectrogram writes a 3x7 spectrogram with 2s ticks. Row
// means are 4, 40 and 400; the first two-column window averages to
// 1.5, 15 and 150, the next to 3.5, 35 and 350.
func writeParentSpectrogram(t *testing.T, path string) {
	t.Helper()
	spec := &dsp.Spectrogram{
		Freqs: []float64{0, 20, 40},
		Times: []float64{0, 2, 4, 6, 8, 10, 12},
		Values: [][]float64{
			{1, 2, 3, 4, 5, 6, 7},
			{10, 20, 30, 40, 50, 60, 70},
			{100, 200, 300, 400, 500, 600, 700},
		},
	}
	if err := dsp.SaveSpectrogram(spec, path); err != nil {
		t.Fatalf("failed to write spectrogram: %v", err)
	}
}

func writeLabelFile(t *testing.T, path, row string) {
	t.Helper()
	content := "Selection\tView\tChannel\tBegin Time (s)\tEnd Time (s)\n1\tSpectrogram 1\t1\t" + row + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write label file: %v", err)
	}
}

func newTestChopStore(t *testing.T, dir string) (*db.SnippetStore, *db.SampleCounter) {
	t.Helper()
	store, err := db.NewSnippetStore(filepath.Join(dir, "samples.sqlite"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	counter, err := db.NewSampleCounter(store)
	if err != nil {
		t.Fatalf("failed to build counter: %v", err)
	}
	return store, counter
}
