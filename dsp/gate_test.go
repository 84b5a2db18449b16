package dsp

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"call-detection/wav"
)

// testGater returns a gater with a 4-sample attack/release, the geometry
// the smoothing fixtures below are written for.
func testGater(t *testing.T) *AmplitudeGater {
	t.Helper()
	gater, err := NewAmplitudeGater(GateConfig{
		FrameRate:       2000,
		ThresholdDb:     -40,
		EnvelopeCutoff:  100,
		FilterOrder:     4,
		AttackReleaseMs: 2, // 4 samples at 2000 frames/sec
		EnableSmoothing: true,
	})
	if err != nil {
		t.Fatalf("NewAmplitudeGater returned error: %v", err)
	}
	return gater
}

func TestSmoothBurstsAveragesShortGapAndRampsLongGap(t *testing.T) {
	t.Parallel()

	gater := testGater(t)
	samples := []float64{1, 0, 0, 10, 11, 0, 0, 0, 0, 20}

	bursts := gater.SmoothBursts(samples)
	if len(bursts) != 3 {
		t.Fatalf("expected 3 bursts, got %d", len(bursts))
	}

	// Gap of 2 samples: filled with the mean of the framing samples,
	// (1+10)/2. Gap of 4 samples: the new burst's attack takes it all.
	rise1 := 1 - math.Exp(-0.5)
	rise2 := 1 - math.Exp(-1)
	rise3 := 1 - math.Exp(-1.5)
	want := []float64{1, 5.5, 5.5, 10, 11, 0, 20 * rise1, 20 * rise2, 20 * rise3, 20}
	checkSamples(t, samples, want)
}

func TestSmoothBurstsAttackAndReleaseRamps(t *testing.T) {
	t.Parallel()

	gater := testGater(t)
	samples := []float64{0, 0, 0, 0, 1, 0.8, 0, 0, 0, 0, 0, 0, 0, 0, 0.4}

	bursts := gater.SmoothBursts(samples)
	if len(bursts) != 2 {
		t.Fatalf("expected 2 bursts, got %d", len(bursts))
	}

	rise1 := 1 - math.Exp(-0.5)
	rise2 := 1 - math.Exp(-1)
	rise3 := 1 - math.Exp(-1.5)
	want := []float64{
		// Attack rising into the first burst, truncated at sample 0.
		0, rise1, rise2, rise3,
		// The burst itself is left alone.
		1, 0.8,
		// Release decaying away from the first burst's trailing edge.
		0.8 * rise3, 0.8 * rise2, 0.8 * rise1, 0,
		// Attack rising into the second burst.
		0, 0.4 * rise1, 0.4 * rise2, 0.4 * rise3,
		0.4,
	}
	checkSamples(t, samples, want)
}

func TestSmoothBurstsAllZero(t *testing.T) {
	t.Parallel()

	gater := testGater(t)
	samples := make([]float64, 16)
	if bursts := gater.SmoothBursts(samples); bursts != nil {
		t.Fatalf("expected no bursts for an all-zero signal, got %d", len(bursts))
	}
	for i, v := range samples {
		if v != 0 {
			t.Fatalf("sample %d changed to %v in an all-zero signal", i, v)
		}
	}
}

func TestGateZeroesQuietStretch(t *testing.T) {
	t.Parallel()

	const frameRate = 1000
	samples := make([]float64, 1000)
	for i := range samples {
		v := math.Sin(2 * math.Pi * 50 * float64(i) / frameRate)
		if i < 500 {
			samples[i] = v
		} else {
			samples[i] = 0.001 * v
		}
	}

	gater, err := NewAmplitudeGater(GateConfig{
		FrameRate:       frameRate,
		ThresholdDb:     -40,
		EnvelopeCutoff:  100,
		FilterOrder:     4,
		AttackReleaseMs: 50,
		EnableNormalize: true,
	})
	if err != nil {
		t.Fatalf("NewAmplitudeGater returned error: %v", err)
	}

	result, err := gater.Gate(samples)
	if err != nil {
		t.Fatalf("Gate returned error: %v", err)
	}

	if result.VoltageThreshold <= 0 {
		t.Fatalf("expected a positive voltage threshold, got %v", result.VoltageThreshold)
	}
	if result.PercentZeroed < 45 || result.PercentZeroed > 65 {
		t.Fatalf("expected roughly half the signal zeroed, got %.2f%%", result.PercentZeroed)
	}
	if result.Bursts != nil {
		t.Fatalf("expected no burst list with smoothing disabled, got %d bursts", len(result.Bursts))
	}

	// Deep in the quiet half everything is gone.
	for i := 600; i < len(result.Samples); i++ {
		if result.Samples[i] != 0 {
			t.Fatalf("expected sample %d zeroed, got %v", i, result.Samples[i])
		}
	}
	// Away from the edges the loud half survives, except for the sine's
	// own zero crossings.
	nonZero := 0
	for i := 100; i < 400; i++ {
		if result.Samples[i] != 0 {
			nonZero++
		}
	}
	if nonZero < 260 {
		t.Fatalf("expected at least 260 surviving samples in the loud half, got %d", nonZero)
	}

	// The input must not be modified.
	if samples[703] != 0.001*math.Sin(2*math.Pi*50*703/frameRate) {
		t.Fatalf("input slice was modified")
	}
}

func TestGateSmoothingReportsBursts(t *testing.T) {
	t.Parallel()

	const frameRate = 1000
	samples := make([]float64, 1000)
	for i := 200; i < 400; i++ {
		samples[i] = math.Sin(2 * math.Pi * 50 * float64(i) / frameRate)
	}

	gater, err := NewAmplitudeGater(GateConfig{
		FrameRate:       frameRate,
		ThresholdDb:     -30,
		EnvelopeCutoff:  100,
		FilterOrder:     4,
		AttackReleaseMs: 10,
		EnableSmoothing: true,
	})
	if err != nil {
		t.Fatalf("NewAmplitudeGater returned error: %v", err)
	}

	result, err := gater.Gate(samples)
	if err != nil {
		t.Fatalf("Gate returned error: %v", err)
	}
	if len(result.Bursts) == 0 {
		t.Fatalf("expected bursts around the tone, got none")
	}
	first := result.Bursts[0]
	if first.Start < 150 || first.Start > 250 {
		t.Fatalf("expected the first burst near sample 200, got start %d", first.Start)
	}
}

func TestGateEmptyInput(t *testing.T) {
	t.Parallel()

	gater := testGater(t)
	if _, err := gater.Gate(nil); err == nil {
		t.Fatalf("expected an error for empty input")
	}
}

func TestNewAmplitudeGaterValidation(t *testing.T) {
	t.Parallel()

	base := GateConfig{
		FrameRate:       2000,
		ThresholdDb:     -40,
		EnvelopeCutoff:  100,
		FilterOrder:     4,
		AttackReleaseMs: 50,
	}

	cfg := base
	cfg.ThresholdDb = 0
	var configErr *ConfigError
	if _, err := NewAmplitudeGater(cfg); !errors.As(err, &configErr) {
		t.Fatalf("expected a ConfigError for a non-negative threshold, got %v", err)
	}

	cfg = base
	cfg.FreqCapHz = 1000 // Nyquist at 2000 frames/sec
	var freqErr *FreqError
	if _, err := NewAmplitudeGater(cfg); !errors.As(err, &freqErr) {
		t.Fatalf("expected a FreqError for a cap at the Nyquist frequency, got %v", err)
	}

	cfg = base
	cfg.FreqCapHz = 999
	if _, err := NewAmplitudeGater(cfg); err != nil {
		t.Fatalf("expected a cap just below Nyquist to pass, got %v", err)
	}

	cfg = base
	cfg.LowFreqHz = 50
	cfg.HighFreqHz = 20
	if _, err := NewAmplitudeGater(cfg); !errors.As(err, &freqErr) {
		t.Fatalf("expected a FreqError for an inverted band, got %v", err)
	}

	cfg = base
	cfg.LowFreqHz = 10
	cfg.HighFreqHz = 1000
	if _, err := NewAmplitudeGater(cfg); !errors.As(err, &freqErr) {
		t.Fatalf("expected a FreqError for a band top at Nyquist, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	got := Normalize([]float64{0, 5, 10})
	want := []float64{-1, 0, 1}
	checkSamples(t, got, want)

	flat := Normalize([]float64{2, 2, 2})
	checkSamples(t, flat, []float64{2, 2, 2})
}

func TestGateWavFileWritesOutputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inPath := filepath.Join(dir, "recording.wav")
	outPath := filepath.Join(dir, "recording_gated.wav")
	spectrogramPath := filepath.Join(dir, "recording_spectrogram.json")

	const frameRate = 2000
	samples := make([]float64, 8192)
	for i := range samples {
		samples[i] = 0.8 * math.Sin(2*math.Pi*40*float64(i)/frameRate)
	}
	if err := wav.WriteWavFile(inPath, samples, frameRate); err != nil {
		t.Fatalf("failed to write input wav: %v", err)
	}

	result, err := GateWavFile(inPath, outPath, spectrogramPath, DefaultGateConfig())
	if err != nil {
		t.Fatalf("GateWavFile returned error: %v", err)
	}
	if result.FrameRate != frameRate {
		t.Fatalf("expected frame rate %d, got %d", frameRate, result.FrameRate)
	}
	if result.Spectrogram == nil {
		t.Fatalf("expected a spectrogram on the result")
	}

	gated, err := wav.ReadWavFile(outPath)
	if err != nil {
		t.Fatalf("failed to read gated wav: %v", err)
	}
	if len(gated.Samples) != len(samples) {
		t.Fatalf("gated file has %d samples, expected %d", len(gated.Samples), len(samples))
	}

	spectrogram, err := LoadSpectrogram(spectrogramPath)
	if err != nil {
		t.Fatalf("failed to load spectrogram artifact: %v", err)
	}
	if len(spectrogram.Freqs) == 0 {
		t.Fatalf("spectrogram artifact has no frequency rows")
	}
	if top := spectrogram.Freqs[len(spectrogram.Freqs)-1]; top >= DefaultFreqCapHz {
		t.Fatalf("expected frequency rows capped below %dHz, top row is %vHz", DefaultFreqCapHz, top)
	}
	if wantFrames := 1 + (len(samples)-SpectrogramWindowSize)/SpectrogramHopSize; len(spectrogram.Times) != wantFrames {
		t.Fatalf("expected %d time columns, got %d", wantFrames, len(spectrogram.Times))
	}
}

func TestGateWavFileMissingInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := GateWavFile(filepath.Join(dir, "missing.wav"), "", "", DefaultGateConfig())
	if err == nil {
		t.Fatalf("expected an error for a missing input file")
	}
}

func checkSamples(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("sample %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}
