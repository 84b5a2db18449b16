package dsp

// Butterworth Filters
//
// Infrasonic calls sit far below the frequencies most audio gear is tuned
// for, so both the envelope follower and the front-end band-pass need
// filters with a maximally flat passband. The classic Butterworth design
// delivers that. A filter of order N is realised as a cascade of
// second-order sections (biquads), each built from the standard audio-EQ
// cookbook formulas, plus one first-order section when N is odd.
//
// Filtering runs forward only, the way a real-time gate would hear the
// signal, so each output sample depends only on the past.

import (
	"fmt"
	"math"
)

// biquad is one second-order filter section in direct form II transposed.
// Coefficients are normalized so a0 == 1. A first-order section is the
// degenerate case with b2 == a2 == 0.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

func (s *biquad) process(x float64) float64 {
	y := s.b0*x + s.z1
	s.z1 = s.b1*x - s.a1*y + s.z2
	s.z2 = s.b2*x - s.a2*y
	return y
}

// butterQ returns the quality factor of the k-th second-order section of
// an order-N Butterworth cascade. The Q values place the section poles on
// the Butterworth circle.
func butterQ(k, order int) float64 {
	theta := math.Pi * float64(2*k+1) / float64(2*order)
	return 1 / (2 * math.Sin(theta))
}

// lowPassSections designs an order-N Butterworth low-pass cascade.
func lowPassSections(order int, cutoffHz, sampleRate float64) []biquad {
	w0 := 2 * math.Pi * cutoffHz / sampleRate
	cosw := math.Cos(w0)
	sinw := math.Sin(w0)

	sections := make([]biquad, 0, (order+1)/2)
	for k := 0; k < order/2; k++ {
		alpha := sinw / (2 * butterQ(k, order))
		a0 := 1 + alpha
		sections = append(sections, biquad{
			b0: (1 - cosw) / 2 / a0,
			b1: (1 - cosw) / a0,
			b2: (1 - cosw) / 2 / a0,
			a1: -2 * cosw / a0,
			a2: (1 - alpha) / a0,
		})
	}
	if order%2 == 1 {
		// First-order stage via the bilinear transform.
		k := math.Tan(w0 / 2)
		a0 := k + 1
		sections = append(sections, biquad{
			b0: k / a0,
			b1: k / a0,
			a1: (k - 1) / a0,
		})
	}
	return sections
}

// highPassSections designs an order-N Butterworth high-pass cascade.
func highPassSections(order int, cutoffHz, sampleRate float64) []biquad {
	w0 := 2 * math.Pi * cutoffHz / sampleRate
	cosw := math.Cos(w0)
	sinw := math.Sin(w0)

	sections := make([]biquad, 0, (order+1)/2)
	for k := 0; k < order/2; k++ {
		alpha := sinw / (2 * butterQ(k, order))
		a0 := 1 + alpha
		sections = append(sections, biquad{
			b0: (1 + cosw) / 2 / a0,
			b1: -(1 + cosw) / a0,
			b2: (1 + cosw) / 2 / a0,
			a1: -2 * cosw / a0,
			a2: (1 - alpha) / a0,
		})
	}
	if order%2 == 1 {
		k := math.Tan(w0 / 2)
		a0 := k + 1
		sections = append(sections, biquad{
			b0: 1 / a0,
			b1: -1 / a0,
			a1: (k - 1) / a0,
		})
	}
	return sections
}

// runCascade pushes samples through each section in turn and returns the
// filtered copy. The input is left untouched.
func runCascade(samples []float64, sections []biquad) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)
	for i := range sections {
		section := &sections[i]
		for j, x := range out {
			out[j] = section.process(x)
		}
	}
	return out
}

// ButterworthLowPass attenuates frequencies above cutoffHz.
func ButterworthLowPass(samples []float64, sampleRate int, cutoffHz float64, order int) ([]float64, error) {
	if order < 1 {
		return nil, &ConfigError{Reason: fmt.Sprintf("filter order must be at least 1, got %d", order)}
	}
	nyquist := float64(sampleRate) / 2
	if cutoffHz <= 0 || cutoffHz >= nyquist {
		return nil, &FreqError{
			Reason: fmt.Sprintf("low-pass cutoff %vHz must lie between 0 and the Nyquist frequency %vHz", cutoffHz, nyquist),
		}
	}
	return runCascade(samples, lowPassSections(order, cutoffHz, float64(sampleRate))), nil
}

// ButterworthBandPass keeps frequencies between lowHz and highHz by
// running a high-pass at lowHz followed by a low-pass at highHz.
func ButterworthBandPass(samples []float64, sampleRate int, lowHz, highHz float64, order int) ([]float64, error) {
	if order < 1 {
		return nil, &ConfigError{Reason: fmt.Sprintf("filter order must be at least 1, got %d", order)}
	}
	nyquist := float64(sampleRate) / 2
	if lowHz <= 0 || highHz <= lowHz {
		return nil, &FreqError{
			Reason: fmt.Sprintf("band-pass range %vHz..%vHz is not a valid band", lowHz, highHz),
		}
	}
	if highHz >= nyquist {
		return nil, &FreqError{
			Reason: fmt.Sprintf("band-pass top %vHz must stay below the Nyquist frequency %vHz", highHz, nyquist),
		}
	}
	out := runCascade(samples, highPassSections(order, lowHz, float64(sampleRate)))
	return runCascade(out, lowPassSections(order, highHz, float64(sampleRate))), nil
}
