package dsp

// Calibration Sweeps
//
// Picking a gate threshold and band-pass range by hand is guesswork, so
// calibration runs the gate over one labelled recording with every
// combination of the candidate settings:
//
// 1. For each threshold x low x high combination, gate the recording
//    into its own output file named after the settings and a timestamp
// 2. Record the percent-zeroed figure the gate reports
// 3. Fan each gated file out across the requested overlap percentages,
//    one experiment row per overlap
// 4. Append every row to a single tab-separated experiment log derived
//    from the first gated file's name
//
// Combinations whose frequencies cannot be realised at the recording's
// frame rate are logged and skipped rather than aborting the sweep.

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"call-detection/utils"
)

// experimentColumns is the header of the experiment log, in writing
// order.
var experimentColumns = []string{
	"signal_treatment",
	"in_wav_file",
	"labelfile",
	"gated_outfile",
	"spectrogram_outfile",
	"threshold_db",
	"low_freq",
	"high_freq",
	"min_required_overlap",
	"spectrogram_freq_cap",
	"percent_zeroed",
}

// Experiment is one row of a calibration sweep: the treatment applied,
// the files it produced and the percent-zeroed measurement.
type Experiment struct {
	Treatment          *TreatmentDescriptor
	InWavFile          string
	LabelFile          string
	GatedOutfile       string
	SpectrogramOutfile string
	ThresholdDb        int
	LowFreq            int
	HighFreq           int
	SpectrogramFreqCap int
	PercentZeroed      float64
}

// row renders the experiment in experimentColumns order.
func (e *Experiment) row() []string {
	overlap := "none"
	if e.Treatment != nil && e.Treatment.MinRequiredOverlap != nil {
		overlap = strconv.Itoa(*e.Treatment.MinRequiredOverlap)
	}
	return []string{
		e.Treatment.Flat(),
		e.InWavFile,
		e.LabelFile,
		e.GatedOutfile,
		e.SpectrogramOutfile,
		strconv.Itoa(e.ThresholdDb),
		strconv.Itoa(e.LowFreq),
		strconv.Itoa(e.HighFreq),
		overlap,
		strconv.Itoa(e.SpectrogramFreqCap),
		strconv.FormatFloat(e.PercentZeroed, 'f', -1, 64),
	}
}

// CalibrationConfig describes one sweep.
type CalibrationConfig struct {
	WavPath      string
	LabelPath    string
	OutDir       string
	ThresholdsDb []int
	LowFreqs     []int // Hz
	HighFreqs    []int // Hz
	OverlapPercs []int
	FreqCapHz    int  // spectrogram cap recorded with each experiment
	Spectrogram  bool // also write a spectrogram per gated file
}

// Calibrator runs gate parameter sweeps.
type Calibrator struct {
	cfg CalibrationConfig
}

// NewCalibrator checks that the sweep grid makes sense before any file
// is touched.
func NewCalibrator(cfg CalibrationConfig) (*Calibrator, error) {
	if cfg.WavPath == "" {
		return nil, &ConfigError{Reason: "no input wav file given"}
	}
	if len(cfg.ThresholdsDb) == 0 || len(cfg.LowFreqs) == 0 || len(cfg.HighFreqs) == 0 {
		return nil, &ConfigError{Reason: "thresholds, low freqs and high freqs must each have at least one value"}
	}
	if len(cfg.OverlapPercs) == 0 {
		return nil, &ConfigError{Reason: "at least one overlap percentage is required"}
	}

	maxLow := cfg.LowFreqs[0]
	for _, lo := range cfg.LowFreqs {
		if lo > maxLow {
			maxLow = lo
		}
	}
	minHigh := cfg.HighFreqs[0]
	for _, hi := range cfg.HighFreqs {
		if hi < minHigh {
			minHigh = hi
		}
	}
	if maxLow >= minHigh {
		return nil, &ConfigError{
			Reason: fmt.Sprintf("every low band-pass frequency must be less than every high one; max low is %dHz, min high is %dHz", maxLow, minHigh),
		}
	}

	if cfg.FreqCapHz == 0 {
		cfg.FreqCapHz = DefaultFreqCapHz
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "."
	}

	return &Calibrator{cfg: cfg}, nil
}

// Run executes the sweep and returns the path of the experiment log.
func (c *Calibrator) Run() (string, error) {
	logger := utils.GetLogger()

	experiments, err := c.generateGatedFiles()
	if err != nil {
		return "", err
	}
	if len(experiments) == 0 {
		return "", fmt.Errorf("no combination produced a gated file")
	}

	// The log file name is derived from the first gated file, so a
	// sweep's rows and outputs share a prefix.
	logPath, err := derivedFileName(experiments[0].GatedOutfile, "_experiment", ".tsv")
	if err != nil {
		return "", err
	}

	wroteHeader := false
	for _, experiment := range experiments {
		for _, overlap := range c.cfg.OverlapPercs {
			row := experiment
			treatment := *experiment.Treatment
			treatment.AddOverlap(overlap)
			row.Treatment = &treatment

			if err := appendExperimentRow(logPath, &row, !wroteHeader); err != nil {
				return "", err
			}
			wroteHeader = true
		}
	}

	logger.Info(fmt.Sprintf("calibration sweep complete; %d experiments in %s", len(experiments)*len(c.cfg.OverlapPercs), logPath))
	return logPath, nil
}

// generateGatedFiles gates the recording once per parameter combination.
func (c *Calibrator) generateGatedFiles() ([]Experiment, error) {
	logger := utils.GetLogger()

	var experiments []Experiment
	for _, threshold := range c.cfg.ThresholdsDb {
		for _, low := range c.cfg.LowFreqs {
			for _, high := range c.cfg.HighFreqs {
				timestamp := time.Now().Format("20060102_150405")
				base := filepath.Join(c.cfg.OutDir,
					fmt.Sprintf("filtered_wav_%ddB_%dHz_%dHz_%s.wav", threshold, low, high, timestamp))

				gatedPath, err := derivedFileName(base, "_gated", ".wav")
				if err != nil {
					return nil, err
				}
				spectrogramPath := ""
				if c.cfg.Spectrogram {
					spectrogramPath, err = derivedFileName(base, "_spectrogram", ".json")
					if err != nil {
						return nil, err
					}
				}

				logger.Info(fmt.Sprintf("generating [%ddB, %dHz, %dHz]...", threshold, low, high))

				gateCfg := DefaultGateConfig()
				gateCfg.ThresholdDb = threshold
				gateCfg.LowFreqHz = float64(low)
				gateCfg.HighFreqHz = float64(high)
				gateCfg.FreqCapHz = c.cfg.FreqCapHz

				result, err := GateWavFile(c.cfg.WavPath, gatedPath, spectrogramPath, gateCfg)
				if err != nil {
					var freqErr *FreqError
					if errors.As(err, &freqErr) {
						logger.Error("bad frequency; skipping combination", slog.Any("error", err))
						os.Remove(gatedPath)
						if spectrogramPath != "" {
							os.Remove(spectrogramPath)
						}
						continue
					}
					return nil, err
				}

				experiments = append(experiments, Experiment{
					Treatment:          NewTreatmentDescriptor(threshold, low, high),
					InWavFile:          c.cfg.WavPath,
					LabelFile:          c.cfg.LabelPath,
					GatedOutfile:       gatedPath,
					SpectrogramOutfile: spectrogramPath,
					ThresholdDb:        threshold,
					LowFreq:            low,
					HighFreq:           high,
					SpectrogramFreqCap: c.cfg.FreqCapHz,
					PercentZeroed:      result.PercentZeroed,
				})
				logger.Info(fmt.Sprintf("done generating [%ddB, %dHz, %dHz] into %s", threshold, low, high, filepath.Base(gatedPath)))
			}
		}
	}
	return experiments, nil
}

// appendExperimentRow writes one tab-separated row, preceded by the
// column header when header is true.
func appendExperimentRow(path string, experiment *Experiment, header bool) error {
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error opening experiment log: %v", err)
	}
	defer fd.Close()

	if header {
		if _, err := fmt.Fprintln(fd, strings.Join(experimentColumns, "\t")); err != nil {
			return fmt.Errorf("error writing experiment log: %v", err)
		}
	}
	if _, err := fmt.Fprintln(fd, strings.Join(experiment.row(), "\t")); err != nil {
		return fmt.Errorf("error writing experiment log: %v", err)
	}
	return nil
}

// derivedFileName drops root's extension, appends suffix and ext, and
// reserves the file. When the name is already taken a counter is added
// before the extension, guarding against two sweeps starting within the
// same second.
func derivedFileName(root, suffix, ext string) (string, error) {
	stem := strings.TrimSuffix(root, filepath.Ext(root))
	name := stem + suffix + ext
	for counter := 1; ; counter++ {
		fd, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fd.Close()
			return name, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("error reserving file name %s: %v", name, err)
		}
		name = fmt.Sprintf("%s%s_%d%s", stem, suffix, counter, ext)
	}
}
