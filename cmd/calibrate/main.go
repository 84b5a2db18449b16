package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"call-detection/dsp"

	"github.com/joho/godotenv"
)

func main() {
	thresholds := flag.String("thresholds", "-40", "Comma-separated gate thresholds in dB (each must be negative)")
	lowFreqs := flag.String("lowfreqs", "10", "Comma-separated band-pass bottoms in Hz")
	highFreqs := flag.String("highfreqs", "50", "Comma-separated band-pass tops in Hz")
	overlaps := flag.String("overlaps", "1", "Comma-separated minimum overlap percentages to fan experiments over")
	outDir := flag.String("outdir", "/tmp", "Directory for gated files and the experiment log")
	logFile := flag.String("logfile", "", "Redirect program output to this file")
	freqCap := flag.Int("freqcap", dsp.DefaultFreqCapHz, "Spectrogram frequency cap recorded with each experiment")
	spectrogram := flag.Bool("spectrogram", true, "Write a spectrogram next to each gated file")
	flag.Parse()

	if flag.NArg() < 1 || flag.NArg() > 2 {
		log.Fatal("Usage: calibrate [options] <recording.wav> [labels.txt]")
	}
	wavPath := flag.Arg(0)
	labelPath := ""
	if flag.NArg() == 2 {
		labelPath = flag.Arg(1)
	}

	if *logFile != "" {
		fd, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer fd.Close()
		log.SetOutput(fd)
	}

	_ = godotenv.Load()

	cfg := dsp.CalibrationConfig{
		WavPath:     wavPath,
		LabelPath:   labelPath,
		OutDir:      *outDir,
		FreqCapHz:   *freqCap,
		Spectrogram: *spectrogram,
	}

	var err error
	if cfg.ThresholdsDb, err = parseIntList(*thresholds); err != nil {
		log.Fatalf("bad -thresholds list: %v", err)
	}
	if cfg.LowFreqs, err = parseIntList(*lowFreqs); err != nil {
		log.Fatalf("bad -lowfreqs list: %v", err)
	}
	if cfg.HighFreqs, err = parseIntList(*highFreqs); err != nil {
		log.Fatalf("bad -highfreqs list: %v", err)
	}
	if cfg.OverlapPercs, err = parseIntList(*overlaps); err != nil {
		log.Fatalf("bad -overlaps list: %v", err)
	}
	for _, threshold := range cfg.ThresholdsDb {
		if threshold >= 0 {
			log.Fatalf("Amplitude cutoff must be negative, not %d", threshold)
		}
	}

	calibrator, err := dsp.NewCalibrator(cfg)
	if err != nil {
		log.Fatalf("bad sweep configuration: %v", err)
	}

	combos := len(cfg.ThresholdsDb) * len(cfg.LowFreqs) * len(cfg.HighFreqs)
	log.Printf("Sweeping %d gate combinations over %s\n", combos, wavPath)

	logPath, err := calibrator.Run()
	if err != nil {
		log.Fatalf("calibration sweep failed: %v", err)
	}

	fmt.Printf("Experiment log: %s\n", logPath)
}

func parseIntList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	values := make([]int, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", part)
		}
		values = append(values, value)
	}
	return values, nil
}
