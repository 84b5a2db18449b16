package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"call-detection/dsp"

	"github.com/joho/godotenv"
)

func main() {
	threshold := flag.Int("threshold", dsp.DefaultThresholdDb, "Gate threshold in dB below the envelope peak (must be negative)")
	cutoff := flag.Float64("cutoff", dsp.DefaultEnvelopeCutoff, "Envelope low-pass cutoff in Hz")
	freqCap := flag.Int("freqcap", dsp.DefaultFreqCapHz, "Discard spectrogram rows above this frequency in Hz")
	lowFreq := flag.Float64("low", 0, "Band-pass bottom in Hz (0 disables the band-pass)")
	highFreq := flag.Float64("high", 0, "Band-pass top in Hz")
	outDir := flag.String("outdir", "", "Directory for outputs (default: the input's directory)")
	spectrogram := flag.Bool("spectrogram", true, "Also write the gated spectrogram as JSON")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("Usage: gate_wav [-threshold dB] [-cutoff Hz] [-freqcap Hz] [-low Hz] [-high Hz] [-outdir dir] [-spectrogram=false] <recording.wav>")
	}
	wavPath := flag.Arg(0)

	if *threshold >= 0 {
		log.Fatalf("Amplitude cutoff must be negative, not %d", *threshold)
	}

	_ = godotenv.Load()

	dir := *outDir
	if dir == "" {
		dir = filepath.Dir(wavPath)
	}
	root := strings.TrimSuffix(filepath.Base(wavPath), filepath.Ext(wavPath))
	gatedPath := filepath.Join(dir, root+"_gated.wav")
	spectrogramPath := ""
	if *spectrogram {
		spectrogramPath = filepath.Join(dir, root+"_spectrogram.json")
	}

	cfg := dsp.DefaultGateConfig()
	cfg.ThresholdDb = *threshold
	cfg.EnvelopeCutoff = *cutoff
	cfg.FreqCapHz = *freqCap
	cfg.LowFreqHz = *lowFreq
	cfg.HighFreqHz = *highFreq

	result, err := dsp.GateWavFile(wavPath, gatedPath, spectrogramPath, cfg)
	if err != nil {
		log.Fatalf("failed to gate %s: %v", wavPath, err)
	}

	rate := float64(result.FrameRate)
	fmt.Printf("Gated %s (%.1fs at %dHz)\n", filepath.Base(wavPath), float64(len(result.Samples))/rate, result.FrameRate)
	fmt.Printf("  threshold: %ddB (%.6f V), zeroed: %.2f%%\n", *threshold, result.VoltageThreshold, result.PercentZeroed)
	fmt.Printf("  bursts kept: %d\n", len(result.Bursts))
	for i, b := range result.Bursts {
		fmt.Printf("    [%d] %.2fs - %.2fs\n", i+1, float64(b.Start)/rate, float64(b.Stop)/rate)
	}
	fmt.Printf("  gated audio: %s\n", gatedPath)
	if spectrogramPath != "" {
		fmt.Printf("  spectrogram: %s\n", spectrogramPath)
	}
}
