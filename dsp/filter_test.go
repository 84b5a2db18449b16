package dsp

import (
	"errors"
	"math"
	"testing"
)

// tailAmplitude estimates the steady-state amplitude of a filtered sine
// by taking the peak over the second half, once transients have died.
func tailAmplitude(samples []float64) float64 {
	peak := 0.0
	for _, v := range samples[len(samples)/2:] {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

func sineWave(freqHz float64, frameRate, n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freqHz * float64(i) / float64(frameRate))
	}
	return samples
}

func TestButterworthLowPassPassesDC(t *testing.T) {
	t.Parallel()

	input := make([]float64, 500)
	for i := range input {
		input[i] = 1
	}
	out, err := ButterworthLowPass(input, 1000, 100, 4)
	if err != nil {
		t.Fatalf("ButterworthLowPass returned error: %v", err)
	}
	if got := out[len(out)-1]; math.Abs(got-1) > 1e-6 {
		t.Fatalf("expected DC gain 1, settled at %v", got)
	}
}

func TestButterworthLowPassSeparatesBands(t *testing.T) {
	t.Parallel()

	const frameRate = 1000

	low, err := ButterworthLowPass(sineWave(5, frameRate, 2000), frameRate, 50, 4)
	if err != nil {
		t.Fatalf("ButterworthLowPass returned error: %v", err)
	}
	if a := tailAmplitude(low); a < 0.9 {
		t.Fatalf("5Hz should pass a 50Hz low-pass nearly untouched, amplitude %v", a)
	}

	high, err := ButterworthLowPass(sineWave(200, frameRate, 2000), frameRate, 50, 4)
	if err != nil {
		t.Fatalf("ButterworthLowPass returned error: %v", err)
	}
	if a := tailAmplitude(high); a > 0.01 {
		t.Fatalf("200Hz should be crushed by a 50Hz low-pass, amplitude %v", a)
	}
}

func TestButterworthLowPassOddOrder(t *testing.T) {
	t.Parallel()

	const frameRate = 1000
	out, err := ButterworthLowPass(sineWave(200, frameRate, 2000), frameRate, 50, 5)
	if err != nil {
		t.Fatalf("ButterworthLowPass returned error: %v", err)
	}
	if a := tailAmplitude(out); a > 0.01 {
		t.Fatalf("5th order should attenuate at least as hard as 4th, amplitude %v", a)
	}

	dc := make([]float64, 500)
	for i := range dc {
		dc[i] = 1
	}
	out, err = ButterworthLowPass(dc, frameRate, 100, 5)
	if err != nil {
		t.Fatalf("ButterworthLowPass returned error: %v", err)
	}
	if got := out[len(out)-1]; math.Abs(got-1) > 1e-6 {
		t.Fatalf("expected DC gain 1 at odd order, settled at %v", got)
	}
}

func TestButterworthLowPassRejectsBadCutoff(t *testing.T) {
	t.Parallel()

	var freqErr *FreqError
	if _, err := ButterworthLowPass(make([]float64, 10), 1000, 500, 4); !errors.As(err, &freqErr) {
		t.Fatalf("expected a FreqError for a cutoff at Nyquist, got %v", err)
	}
	if _, err := ButterworthLowPass(make([]float64, 10), 1000, 0, 4); !errors.As(err, &freqErr) {
		t.Fatalf("expected a FreqError for a zero cutoff, got %v", err)
	}

	var configErr *ConfigError
	if _, err := ButterworthLowPass(make([]float64, 10), 1000, 100, 0); !errors.As(err, &configErr) {
		t.Fatalf("expected a ConfigError for order 0, got %v", err)
	}
}

func TestButterworthBandPassSelectsBand(t *testing.T) {
	t.Parallel()

	const frameRate = 1000
	const order = 4

	inBand, err := ButterworthBandPass(sineWave(100, frameRate, 2000), frameRate, 50, 150, order)
	if err != nil {
		t.Fatalf("ButterworthBandPass returned error: %v", err)
	}
	if a := tailAmplitude(inBand); a < 0.8 {
		t.Fatalf("100Hz should pass a 50-150Hz band-pass, amplitude %v", a)
	}

	below, err := ButterworthBandPass(sineWave(5, frameRate, 2000), frameRate, 50, 150, order)
	if err != nil {
		t.Fatalf("ButterworthBandPass returned error: %v", err)
	}
	if a := tailAmplitude(below); a > 0.05 {
		t.Fatalf("5Hz should be rejected below the band, amplitude %v", a)
	}

	above, err := ButterworthBandPass(sineWave(400, frameRate, 2000), frameRate, 50, 150, order)
	if err != nil {
		t.Fatalf("ButterworthBandPass returned error: %v", err)
	}
	if a := tailAmplitude(above); a > 0.05 {
		t.Fatalf("400Hz should be rejected above the band, amplitude %v", a)
	}
}

func TestButterworthBandPassRejectsBadRange(t *testing.T) {
	t.Parallel()

	var freqErr *FreqError
	if _, err := ButterworthBandPass(make([]float64, 10), 1000, 150, 50, 4); !errors.As(err, &freqErr) {
		t.Fatalf("expected a FreqError for an inverted band, got %v", err)
	}
	if _, err := ButterworthBandPass(make([]float64, 10), 1000, 50, 500, 4); !errors.As(err, &freqErr) {
		t.Fatalf("expected a FreqError for a band top at Nyquist, got %v", err)
	}
	if _, err := ButterworthBandPass(make([]float64, 10), 1000, 0, 100, 4); !errors.As(err, &freqErr) {
		t.Fatalf("expected a FreqError for a zero band bottom, got %v", err)
	}
}
