package dataset

// Chopping of full-length gated spectrograms into fixed-width snippets.
//
// The parent spectrogram is scanned left to right in steps of the
// snippet width; window starts in seconds are converted to column
// ticks, and windows that would run past the last column are dropped
// rather than padded. Every window is labeled against the recording's
// call annotations and written out as its own spectrogram file next to
// a database row holding the window position, label, and band energies.
// The energies are mean magnitudes over three frequency bands, computed
// once for the whole parent and once for the window, so the training
// side gets a signal-strength summary without reloading the parent.

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"call-detection/db"
	"call-detection/dsp"
	"call-detection/labels"
	"call-detection/utils"
)

// DefaultSnippetWidthSecs is the training window width. Five seconds
// spans roughly one rumble at the recording rates we use.
const DefaultSnippetWidthSecs = 5.0

// FreqBand is a half-open frequency range [LowHz, HighHz).
type FreqBand struct {
	LowHz  float64
	HighHz float64
}

// DefaultBands covers the infrasound range in three equal slices.
func DefaultBands() [3]FreqBand {
	return [3]FreqBand{{0, 20}, {20, 40}, {40, 60}}
}

type ChopperConfig struct {
	SnippetWidthSecs   float64
	Bands              [3]FreqBand
	OutDir             string
	Site               string   // recording site; empty derives it from each file name
	MinRequiredOverlap *float64 // percent of the window; nil means any overlap
}

func DefaultChopperConfig() ChopperConfig {
	return ChopperConfig{
		SnippetWidthSecs: DefaultSnippetWidthSecs,
		Bands:            DefaultBands(),
		OutDir:           ".",
	}
}

// Chopper cuts spectrograms into labeled snippets and records them in
// a snippet store. Sample ids come from the shared counter so several
// chopping runs against one store never collide.
type Chopper struct {
	cfg     ChopperConfig
	store   *db.SnippetStore
	counter *db.SampleCounter
}

func NewChopper(store *db.SnippetStore, counter *db.SampleCounter, cfg ChopperConfig) (*Chopper, error) {
	if cfg.SnippetWidthSecs <= 0 {
		return nil, fmt.Errorf("snippet width must be positive, got %v", cfg.SnippetWidthSecs)
	}
	for _, band := range cfg.Bands {
		if band.HighHz <= band.LowHz {
			return nil, fmt.Errorf("bad frequency band [%v, %v)", band.LowHz, band.HighHz)
		}
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "."
	}
	return &Chopper{cfg: cfg, store: store, counter: counter}, nil
}

// ChopOne chops a single spectrogram file. An empty labelPath labels
// every snippet negative.
func (c *Chopper) ChopOne(spectrogramPath, labelPath string) ([]db.Snippet, error) {
	spec, err := dsp.LoadSpectrogram(spectrogramPath)
	if err != nil {
		return nil, err
	}

	var calls []labels.CallInterval
	if labelPath != "" {
		calls, err = labels.ReadCallIntervals(labelPath)
		if err != nil {
			return nil, err
		}
	}

	return c.chop(spec, spectrogramRoot(spectrogramPath), calls)
}

// ChopDir chops every spectrogram file in a directory, pairing each
// with a label file of the same root name in labelDir. Spectrograms
// without a label file are chopped with all-negative labels. Returns
// the number of snippets produced.
func (c *Chopper) ChopDir(spectrogramDir, labelDir string) (int, error) {
	logger := utils.GetLogger()

	entries, err := os.ReadDir(spectrogramDir)
	if err != nil {
		return 0, fmt.Errorf("error reading spectrogram directory: %v", err)
	}

	total := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		spectrogramPath := filepath.Join(spectrogramDir, entry.Name())

		labelPath := ""
		if labelDir != "" {
			candidate := filepath.Join(labelDir, spectrogramRoot(spectrogramPath)+".txt")
			if _, err := os.Stat(candidate); err == nil {
				labelPath = candidate
			} else {
				logger.Warn(fmt.Sprintf("no label file for %s; labeling all snippets negative", entry.Name()))
			}
		}

		snips, err := c.ChopOne(spectrogramPath, labelPath)
		if err != nil {
			return total, err
		}
		total += len(snips)
		logger.Info(fmt.Sprintf("chopped %s into %d snippets", entry.Name(), len(snips)))
	}
	return total, nil
}

func (c *Chopper) chop(spec *dsp.Spectrogram, root string, calls []labels.CallInterval) ([]db.Snippet, error) {
	timeStep, _ := spec.TimeStep()
	if timeStep <= 0 {
		return nil, fmt.Errorf("spectrogram %s has fewer than two time steps", root)
	}
	widthTicks := int(math.RoundToEven(c.cfg.SnippetWidthSecs / timeStep))
	if widthTicks < 1 {
		return nil, fmt.Errorf("snippet width %vs is under one spectrogram tick (%vs)",
			c.cfg.SnippetWidthSecs, timeStep)
	}
	for _, band := range c.cfg.Bands {
		if !bandCovered(spec.Freqs, band) {
			return nil, &DataIntegrityError{Reason: fmt.Sprintf(
				"band [%v, %v) Hz matches no rows of spectrogram %s", band.LowHz, band.HighHz, root)}
		}
	}

	numCols := len(spec.Times)
	parent := c.bandEnergies(spec, 0, numCols)

	site := root
	if c.cfg.Site != "" {
		site = c.cfg.Site
	}

	var snips []db.Snippet
	for startSec := 0.0; ; startSec += c.cfg.SnippetWidthSecs {
		startTick := int(math.RoundToEven(startSec / timeStep))
		endTick := startTick + widthTicks
		if endTick >= numCols {
			break
		}

		label := 0
		if LabelForInterval(spec.Times[startTick], spec.Times[endTick], calls, c.cfg.MinRequiredOverlap) {
			label = 1
		}

		sampleID := c.counter.Next()
		filename := fmt.Sprintf("%s_%d_spectrogram.json", root, sampleID)
		if err := c.saveWindow(spec, startTick, endTick, filename); err != nil {
			return nil, err
		}

		own := c.bandEnergies(spec, startTick, endTick)
		snips = append(snips, db.Snippet{
			SampleID:          sampleID,
			RecordingSite:     site,
			Label:             label,
			StartTimeTick:     startTick,
			EndTimeTick:       endTick,
			StartTime:         spec.Times[startTick],
			EndTime:           spec.Times[endTick],
			ParentLowEnergy:   parent[0],
			ParentMedEnergy:   parent[1],
			ParentHighEnergy:  parent[2],
			SnippetLowEnergy:  own[0],
			SnippetMedEnergy:  own[1],
			SnippetHighEnergy: own[2],
			Filename:          filename,
		})
	}

	if len(snips) == 0 {
		return nil, nil
	}
	if err := c.store.InsertSnippets(snips); err != nil {
		return nil, err
	}
	return snips, nil
}

// saveWindow writes the window's columns as a standalone spectrogram
// file in the output directory.
func (c *Chopper) saveWindow(spec *dsp.Spectrogram, startTick, endTick int, filename string) error {
	values := make([][]float64, len(spec.Values))
	for r, row := range spec.Values {
		values[r] = row[startTick:endTick]
	}
	window := &dsp.Spectrogram{
		Freqs:  spec.Freqs,
		Times:  spec.Times[startTick:endTick],
		Values: values,
	}
	return dsp.SaveSpectrogram(window, filepath.Join(c.cfg.OutDir, filename))
}

// bandCovered reports whether any spectrogram row falls inside the band.
func bandCovered(freqs []float64, band FreqBand) bool {
	for _, f := range freqs {
		if f >= band.LowHz && f < band.HighHz {
			return true
		}
	}
	return false
}

// bandEnergies averages spectrogram magnitudes over the configured
// bands across the columns [startCol, endCol).
func (c *Chopper) bandEnergies(spec *dsp.Spectrogram, startCol, endCol int) [3]float64 {
	var energies [3]float64
	for b, band := range c.cfg.Bands {
		sum := 0.0
		n := 0
		for r, freq := range spec.Freqs {
			if freq < band.LowHz || freq >= band.HighHz {
				continue
			}
			for col := startCol; col < endCol; col++ {
				sum += spec.Values[r][col]
				n++
			}
		}
		if n > 0 {
			energies[b] = sum / float64(n)
		}
	}
	return energies
}

// spectrogramRoot derives the recording name a spectrogram file
// belongs to, stripping the extension and the _spectrogram suffix.
func spectrogramRoot(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, "_spectrogram")
}
