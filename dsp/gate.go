package dsp

// Amplitude Noise Gating
//
// This package implements the signal-processing front end for elephant
// call detection. Savanna recordings are dominated by long stretches of
// wind and handling noise; the infrasonic rumbles of interest are short
// and comparatively loud. The gate exploits that:
//
// 1. Envelope:
//    - Rectify the signal (absolute value)
//    - Low-pass filter the result to obtain a slow amplitude envelope
//
// 2. Threshold:
//    - The cutoff is expressed in dB below the envelope peak, so the
//      same setting works across recorders and gain levels
//    - Convert it to an absolute voltage: Vthresh = peak * 10^(dB/20)
//
// 3. Zeroing:
//    - Samples whose envelope sits at or below Vthresh are set to zero
//    - The fraction of zero samples afterwards is the percent-zeroed
//      figure used to compare gate settings during calibration
//
// 4. Burst smoothing:
//    - Hard zeroing leaves clicks at every burst edge
//    - Short gaps between bursts are bridged by averaging, longer ones
//      get exponential release and attack ramps (see burst.go)
//
// The gated signal keeps its original length and frame rate, so time
// labels made against the raw recording remain valid.

import (
	"fmt"
	"math"
	"os"

	"call-detection/utils"
	"call-detection/wav"
)

// Defaults for the gate. The threshold and frequency cap mirror the
// settings used for the Kenyan forest-clearing recordings this pipeline
// was first tuned on.
const (
	DefaultThresholdDb     = -40  // dB below envelope peak
	DefaultFreqCapHz       = 300  // spectrogram rows above this are discarded
	DefaultEnvelopeCutoff  = 100  // Hz, envelope low-pass
	DefaultFilterOrder     = 4    // envelope and band-pass filter order
	DefaultAttackReleaseMs = 50.0 // ramp length on burst edges
)

// ConfigError reports a gate configuration that could never produce
// useful output, such as a non-negative threshold.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("bad gate configuration: %s", e.Reason)
}

// FreqError reports a frequency bound that cannot be honored at the
// recording's frame rate.
type FreqError struct {
	Reason string
}

func (e *FreqError) Error() string {
	return fmt.Sprintf("bad frequency bound: %s", e.Reason)
}

// GateConfig holds the knobs for one gating run.
type GateConfig struct {
	FrameRate       int     // samples per second; set from the .wav file
	ThresholdDb     int     // dB below envelope peak; must be negative
	EnvelopeCutoff  float64 // Hz, low-pass cutoff of the envelope follower
	FilterOrder     int
	AttackReleaseMs float64 // ramp length on burst edges
	FreqCapHz       int     // highest spectrogram frequency kept; 0 keeps all
	LowFreqHz       float64 // front-end band-pass bottom; 0 disables the band-pass
	HighFreqHz      float64 // front-end band-pass top
	EnableNormalize bool    // stretch samples to full range before gating
	EnableSmoothing bool    // ramp and average burst edges after zeroing
}

// DefaultGateConfig returns the production settings. The frame rate is
// filled in once the recording is read.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		ThresholdDb:     DefaultThresholdDb,
		EnvelopeCutoff:  DefaultEnvelopeCutoff,
		FilterOrder:     DefaultFilterOrder,
		AttackReleaseMs: DefaultAttackReleaseMs,
		FreqCapHz:       DefaultFreqCapHz,
		EnableNormalize: true,
		EnableSmoothing: true,
	}
}

// GateResult carries the gated signal and the figures the calibration
// and monitoring layers care about.
type GateResult struct {
	Samples          []float64
	FrameRate        int
	VoltageThreshold float64 // absolute threshold derived from the envelope peak
	PercentZeroed    float64 // share of zero samples after gating, 0..100
	Bursts           []Burst
	Spectrogram      *Spectrogram // set when a spectrogram was requested
}

// AmplitudeGater applies the noise gate to raw audio samples.
type AmplitudeGater struct {
	cfg         GateConfig
	rampSamples int
}

// NewAmplitudeGater validates the configuration before any heavy
// computation starts. Frequency bounds are checked against the frame
// rate's Nyquist limit.
func NewAmplitudeGater(cfg GateConfig) (*AmplitudeGater, error) {
	if cfg.FrameRate <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("frame rate must be positive, got %d", cfg.FrameRate)}
	}
	if cfg.ThresholdDb >= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("amplitude cutoff must be negative dB below peak, got %d", cfg.ThresholdDb)}
	}
	if cfg.FilterOrder < 1 {
		return nil, &ConfigError{Reason: fmt.Sprintf("filter order must be at least 1, got %d", cfg.FilterOrder)}
	}
	if cfg.AttackReleaseMs < 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("attack/release must not be negative, got %v", cfg.AttackReleaseMs)}
	}

	nyquist := float64(cfg.FrameRate) / 2
	if cfg.EnvelopeCutoff <= 0 || cfg.EnvelopeCutoff >= nyquist {
		return nil, &FreqError{
			Reason: fmt.Sprintf("envelope cutoff %vHz must lie between 0 and the Nyquist frequency %vHz", cfg.EnvelopeCutoff, nyquist),
		}
	}
	if cfg.FreqCapHz > 0 {
		maxAllowable := cfg.FrameRate/2 - 1
		if cfg.FreqCapHz > maxAllowable {
			return nil, &FreqError{
				Reason: fmt.Sprintf("spectrogram frequency cap must be less than the Nyquist frequency (1/2 of frame rate); max allowable is %d", maxAllowable),
			}
		}
	}
	if cfg.LowFreqHz != 0 || cfg.HighFreqHz != 0 {
		if cfg.LowFreqHz <= 0 || cfg.HighFreqHz <= cfg.LowFreqHz {
			return nil, &FreqError{
				Reason: fmt.Sprintf("band-pass range %vHz..%vHz is not a valid band", cfg.LowFreqHz, cfg.HighFreqHz),
			}
		}
		if cfg.HighFreqHz >= nyquist {
			return nil, &FreqError{
				Reason: fmt.Sprintf("band-pass top %vHz must stay below the Nyquist frequency %vHz", cfg.HighFreqHz, nyquist),
			}
		}
	}

	rampSamples := int(math.Ceil(cfg.AttackReleaseMs / 1000.0 * float64(cfg.FrameRate)))

	return &AmplitudeGater{cfg: cfg, rampSamples: rampSamples}, nil
}

// Gate runs the full pipeline over samples and returns the gated copy
// together with the threshold, the zeroed percentage and the bursts
// found. The input slice is left untouched.
func (g *AmplitudeGater) Gate(samples []float64) (*GateResult, error) {
	logger := utils.GetLogger()

	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to gate")
	}

	work := make([]float64, len(samples))
	copy(work, samples)

	var err error
	if g.cfg.LowFreqHz > 0 || g.cfg.HighFreqHz > 0 {
		logger.Info(fmt.Sprintf("applying band-pass filter (%vHz to %vHz)...", g.cfg.LowFreqHz, g.cfg.HighFreqHz))
		work, err = ButterworthBandPass(work, g.cfg.FrameRate, g.cfg.LowFreqHz, g.cfg.HighFreqHz, g.cfg.FilterOrder)
		if err != nil {
			return nil, err
		}
	}
	if g.cfg.EnableNormalize {
		work = Normalize(work)
	}

	logger.Info(fmt.Sprintf("applying envelope low-pass filter (cutoff %vHz)...", g.cfg.EnvelopeCutoff))
	envelope, err := g.envelope(work)
	if err != nil {
		return nil, err
	}

	peak := 0.0
	for _, v := range envelope {
		if v > peak {
			peak = v
		}
	}
	voltageThreshold := peak * math.Pow(10, float64(g.cfg.ThresholdDb)/20)

	zeroCount := 0
	for i := range work {
		if envelope[i] <= voltageThreshold {
			work[i] = 0
		}
		if work[i] == 0 {
			zeroCount++
		}
	}
	percentZeroed := 100 * float64(zeroCount) / float64(len(work))
	logger.Info(fmt.Sprintf("zeroed %.2f%% of signal", percentZeroed))

	var bursts []Burst
	if g.cfg.EnableSmoothing {
		bursts = g.SmoothBursts(work)
	}

	return &GateResult{
		Samples:          work,
		FrameRate:        g.cfg.FrameRate,
		VoltageThreshold: voltageThreshold,
		PercentZeroed:    percentZeroed,
		Bursts:           bursts,
	}, nil
}

// envelope rectifies the signal and low-pass filters it into a slow
// amplitude envelope.
func (g *AmplitudeGater) envelope(samples []float64) ([]float64, error) {
	rectified := make([]float64, len(samples))
	for i, v := range samples {
		rectified[i] = math.Abs(v)
	}
	return ButterworthLowPass(rectified, g.cfg.FrameRate, g.cfg.EnvelopeCutoff, g.cfg.FilterOrder)
}

// SmoothBursts rounds off the hard edges the threshold gate leaves
// behind. Samples are modified in place; the bursts found are returned
// in signal order.
func (g *AmplitudeGater) SmoothBursts(samples []float64) []Burst {
	signalIndex := NonZeroIndices(samples)

	var bursts []Burst
	var prev *Burst
	for {
		burst := NextBurst(prev, signalIndex, g.rampSamples)
		if burst == nil {
			break
		}
		if burst.AveragingStart >= 0 {
			g.averageGap(samples, burst)
		}
		if burst.ReleaseStart >= 0 {
			g.releaseRamp(samples, burst.ReleaseStart, burst.AttackStart)
		}
		if burst.AttackStart >= 0 {
			g.attackRamp(samples, burst)
		}
		bursts = append(bursts, *burst)
		prev = burst
	}

	// The final burst decays into whatever room is left.
	if len(bursts) > 0 {
		last := &bursts[len(bursts)-1]
		end := last.Stop + g.rampSamples
		if end > len(samples) {
			end = len(samples)
		}
		g.releaseRamp(samples, last.Stop, end)
	}

	return bursts
}

// averageGap bridges a short quiet stretch with the mean of the two
// samples framing it.
func (g *AmplitudeGater) averageGap(samples []float64, burst *Burst) {
	fill := (samples[burst.AveragingStart] + samples[burst.AveragingStop]) / 2
	for i := burst.AveragingStart + 1; i < burst.AveragingStop; i++ {
		samples[i] = fill
	}
}

// attackRamp writes an exponential rise into [burst.AttackStart,
// burst.Start), ending at the burst's leading edge value.
func (g *AmplitudeGater) attackRamp(samples []float64, burst *Burst) {
	if burst.AttackStart >= burst.Start {
		return
	}
	edge := samples[burst.Start]
	tau := float64(g.rampSamples) / 2
	for i := burst.AttackStart; i < burst.Start; i++ {
		k := float64(i - burst.AttackStart)
		samples[i] = edge * (1 - math.Exp(-k/tau))
	}
}

// releaseRamp writes an exponential decay into [start, end), falling away
// from the sample just before start. The ramp mirrors the attack in time.
func (g *AmplitudeGater) releaseRamp(samples []float64, start, end int) {
	if start <= 0 || start >= end {
		return
	}
	edge := samples[start-1]
	tau := float64(g.rampSamples) / 2
	for i := start; i < end; i++ {
		k := float64(g.rampSamples - 1 - (i - start))
		samples[i] = edge * (1 - math.Exp(-k/tau))
	}
}

// Normalize stretches samples linearly so they occupy the full [-1, 1]
// range. A flat signal has no dynamic range to stretch and is returned
// unchanged.
func Normalize(samples []float64) []float64 {
	if len(samples) == 0 {
		return samples
	}
	minVal := samples[0]
	maxVal := samples[0]
	for _, v := range samples {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	out := make([]float64, len(samples))
	span := maxVal - minVal
	if span == 0 {
		copy(out, samples)
		return out
	}
	for i, v := range samples {
		out[i] = (v-minVal)*2/span - 1
	}
	return out
}

// GateWavFile reads a .wav recording, gates it, and writes the result to
// outPath. When spectrogramPath is non-empty a spectrogram of the gated
// signal is computed, capped at cfg.FreqCapHz, and saved there as well.
//
// The output file is probed for writability before the lengthy
// computation starts.
func GateWavFile(inPath, outPath, spectrogramPath string, cfg GateConfig) (*GateResult, error) {
	if outPath != "" {
		fd, err := os.Create(outPath)
		if err != nil {
			return nil, fmt.Errorf("outfile cannot be accessed for writing: %v", err)
		}
		fd.Close()
	}

	clip, err := wav.ReadWavFile(inPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read wav file: %v", err)
	}

	cfg.FrameRate = clip.FrameRate
	gater, err := NewAmplitudeGater(cfg)
	if err != nil {
		return nil, err
	}

	result, err := gater.Gate(clip.Samples)
	if err != nil {
		return nil, err
	}

	if outPath != "" {
		if err := wav.WriteWavFile(outPath, result.Samples, clip.FrameRate); err != nil {
			return nil, fmt.Errorf("failed to write gated wav file: %v", err)
		}
	}

	if spectrogramPath != "" {
		spectrogram, err := ComputeSpectrogram(result.Samples, clip.FrameRate)
		if err != nil {
			return nil, fmt.Errorf("failed to compute spectrogram: %v", err)
		}
		if cfg.FreqCapHz > 0 {
			spectrogram = spectrogram.ClipFrequencies(float64(cfg.FreqCapHz))
		}
		if err := SaveSpectrogram(spectrogram, spectrogramPath); err != nil {
			return nil, err
		}
		result.Spectrogram = spectrogram
	}

	return result, nil
}
