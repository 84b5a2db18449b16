// Package wav reads and writes the PCM .wav recordings the pipeline
// consumes and produces. Field recorders deliver plain PCM, so decoding
// is native; no external transcoder is involved.
package wav

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
)

// Clip is a decoded recording: samples normalized to [-1, 1], mixed down
// to mono when the source had several channels.
type Clip struct {
	Samples   []float64
	FrameRate int
	Channels  int
	BitDepth  int
	Duration  float64 // seconds
}

// ReadWavFile decodes a .wav file from disk.
func ReadWavFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening wav file: %v", err)
	}
	defer f.Close()

	return decode(f)
}

// DecodeWavBytes decodes an in-memory .wav payload, e.g. one uploaded
// over a socket connection.
func DecodeWavBytes(data []byte) (*Clip, error) {
	if len(data) == 0 {
		return nil, errors.New("empty wav payload")
	}

	return decode(bytes.NewReader(data))
}

func decode(r io.ReadSeeker) (*Clip, error) {
	decoder := gowav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("error reading pcm data: %v", err)
	}
	if buf.Format == nil || len(buf.Data) == 0 {
		return nil, errors.New("wav file contains no samples")
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float64(int(1) << (bitDepth - 1))

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float64(channels)
	}

	clip := &Clip{
		Samples:   samples,
		FrameRate: buf.Format.SampleRate,
		Channels:  channels,
		BitDepth:  bitDepth,
	}
	if clip.FrameRate > 0 {
		clip.Duration = float64(frames) / float64(clip.FrameRate)
	}

	return clip, nil
}

// WriteWavFile encodes samples in [-1, 1] as 16-bit mono PCM.
func WriteWavFile(path string, samples []float64, frameRate int) error {
	if frameRate <= 0 {
		return fmt.Errorf("invalid frame rate %d", frameRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating wav file: %v", err)
	}

	encoder := gowav.NewEncoder(f, frameRate, 16, 1, 1)

	outBuf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  frameRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}

	for i, sample := range samples {
		s := sample
		if s > 1.0 {
			s = 1.0
		}
		if s < -1.0 {
			s = -1.0
		}
		outBuf.Data[i] = int(s * 32767.0)
	}

	if err := encoder.Write(outBuf); err != nil {
		f.Close()
		return fmt.Errorf("error writing wav data: %v", err)
	}

	if err := encoder.Close(); err != nil {
		f.Close()
		return fmt.Errorf("error finalizing wav file: %v", err)
	}

	return f.Close()
}
