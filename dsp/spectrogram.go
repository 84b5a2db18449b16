package dsp

// Spectrogram Generation
//
// The classifier downstream consumes time-frequency images rather than
// raw audio, so the gated signal is turned into a magnitude spectrogram
// by a short-time Fourier transform:
//
// 1. Slide a Hann-windowed frame across the signal with 50% overlap
// 2. Take the FFT of each frame and keep the magnitude of each bin
// 3. Label rows with their frequency in Hz and columns with the time at
//    the center of their window
//
// Elephant rumbles live below a few hundred Hz, so spectrograms are
// usually clipped with ClipFrequencies before being stored.

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// STFT geometry. 4096-sample windows give sub-Hz frequency resolution at
// the low frame rates of infrasound recordings.
const (
	SpectrogramWindowSize = 4096
	SpectrogramHopSize    = SpectrogramWindowSize / 2
)

// Spectrogram is a magnitude spectrogram with its axis labels. Values is
// indexed [frequency row][time column].
type Spectrogram struct {
	Freqs  []float64   `json:"freqs"`  // Hz, one per row
	Times  []float64   `json:"times"`  // seconds, one per column
	Values [][]float64 `json:"values"` // magnitudes, rows match Freqs
}

// ComputeSpectrogram builds a magnitude spectrogram of samples using the
// production window geometry.
func ComputeSpectrogram(samples []float64, frameRate int) (*Spectrogram, error) {
	return computeSpectrogram(samples, frameRate, SpectrogramWindowSize, SpectrogramHopSize)
}

func computeSpectrogram(samples []float64, frameRate, windowSize, hopSize int) (*Spectrogram, error) {
	if frameRate <= 0 {
		return nil, fmt.Errorf("frame rate must be positive, got %d", frameRate)
	}
	if windowSize < 2 || hopSize < 1 {
		return nil, fmt.Errorf("bad window geometry: window %d, hop %d", windowSize, hopSize)
	}
	if len(samples) < windowSize {
		return nil, fmt.Errorf("need at least %d samples for one window, got %d", windowSize, len(samples))
	}

	window := hannWindow(windowSize)
	fft := fourier.NewFFT(windowSize)

	numBins := windowSize/2 + 1
	numFrames := 1 + (len(samples)-windowSize)/hopSize

	values := make([][]float64, numBins)
	for r := range values {
		values[r] = make([]float64, 0, numFrames)
	}
	times := make([]float64, 0, numFrames)

	frame := make([]float64, windowSize)
	coeffs := make([]complex128, numBins)
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		copy(frame, samples[start:start+windowSize])
		for j := range frame {
			frame[j] *= window[j]
		}

		coeffs = fft.Coefficients(coeffs, frame)
		for r := 0; r < numBins; r++ {
			values[r] = append(values[r], cmplx.Abs(coeffs[r]))
		}

		center := float64(start) + float64(windowSize)/2
		times = append(times, center/float64(frameRate))
	}

	freqs := make([]float64, numBins)
	for k := range freqs {
		freqs[k] = float64(k) * float64(frameRate) / float64(windowSize)
	}

	return &Spectrogram{Freqs: freqs, Times: times, Values: values}, nil
}

// hannWindow returns an n-point Hann window.
func hannWindow(n int) []float64 {
	window := make([]float64, n)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return window
}

// ClipFrequencies returns a spectrogram keeping only the rows strictly
// below maxHz. Row storage is shared with the receiver.
func (s *Spectrogram) ClipFrequencies(maxHz float64) *Spectrogram {
	keep := 0
	for keep < len(s.Freqs) && s.Freqs[keep] < maxHz {
		keep++
	}
	return &Spectrogram{
		Freqs:  s.Freqs[:keep],
		Times:  s.Times,
		Values: s.Values[:keep],
	}
}

// TimeStep returns the spacing of the time axis in seconds.
func (s *Spectrogram) TimeStep() (float64, error) {
	if len(s.Times) < 2 {
		return 0, fmt.Errorf("spectrogram has %d time columns, cannot derive a time step", len(s.Times))
	}
	return s.Times[1] - s.Times[0], nil
}
