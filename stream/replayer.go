package stream

// Replay of stored spectrograms as a simulated live feed.
//
// The source spectrogram is cut into fixed-width column chunks; a
// trailing partial chunk is dropped so every emitted chunk has the same
// shape. Chunks are converted to decibels and emitted on a channel at a
// fixed cadence, standing in for the pace of a live capture. A slow
// consumer never stalls the feed: when the channel buffer is full the
// chunk is dropped and counted, the way a live pipeline would lose
// frames it cannot keep up with.

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"call-detection/dsp"
)

const (
	DefaultChunkCols  = 256
	DefaultInterval   = 10 * time.Millisecond
	DefaultBufferSize = 8
)

// dbFloor keeps the log scaling defined over zeroed cells.
const dbFloor = 1e-12

// Chunk is one fixed-width slice of the replayed spectrogram, with
// magnitudes converted to decibels.
type Chunk struct {
	Index  int         `json:"index"`
	Freqs  []float64   `json:"freqs"`
	Times  []float64   `json:"times"`
	Values [][]float64 `json:"values"`
}

type ReplayerConfig struct {
	ChunkCols  int
	Interval   time.Duration
	MaxChunks  int // 0 replays the whole source
	BufferSize int
}

func DefaultReplayerConfig() ReplayerConfig {
	return ReplayerConfig{
		ChunkCols:  DefaultChunkCols,
		Interval:   DefaultInterval,
		BufferSize: DefaultBufferSize,
	}
}

// Replayer feeds a stored spectrogram to a consumer chunk by chunk.
type Replayer struct {
	spec    *dsp.Spectrogram
	cfg     ReplayerConfig
	dropped atomic.Int64
}

func NewReplayer(spec *dsp.Spectrogram, cfg ReplayerConfig) (*Replayer, error) {
	if spec == nil || len(spec.Times) == 0 {
		return nil, fmt.Errorf("replayer needs a non-empty spectrogram")
	}
	if cfg.ChunkCols == 0 {
		cfg.ChunkCols = DefaultChunkCols
	}
	if cfg.ChunkCols < 1 {
		return nil, fmt.Errorf("chunk width must be positive, got %d", cfg.ChunkCols)
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("interval cannot be negative, got %v", cfg.Interval)
	}
	if cfg.MaxChunks < 0 {
		return nil, fmt.Errorf("max chunks cannot be negative, got %d", cfg.MaxChunks)
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.BufferSize < 1 {
		return nil, fmt.Errorf("buffer size must be positive, got %d", cfg.BufferSize)
	}
	return &Replayer{spec: spec, cfg: cfg}, nil
}

// NewReplayerFromFile loads a spectrogram artifact and replays it.
func NewReplayerFromFile(path string, cfg ReplayerConfig) (*Replayer, error) {
	spec, err := dsp.LoadSpectrogram(path)
	if err != nil {
		return nil, err
	}
	return NewReplayer(spec, cfg)
}

// NumChunks reports how many chunks the replay will emit.
func (r *Replayer) NumChunks() int {
	n := len(r.spec.Times) / r.cfg.ChunkCols
	if r.cfg.MaxChunks > 0 && n > r.cfg.MaxChunks {
		n = r.cfg.MaxChunks
	}
	return n
}

// Dropped reports how many chunks were discarded because the consumer
// fell behind.
func (r *Replayer) Dropped() int64 {
	return r.dropped.Load()
}

// Stream starts the replay. The returned channel closes when the
// source is exhausted or the context ends.
func (r *Replayer) Stream(ctx context.Context) <-chan Chunk {
	out := make(chan Chunk, r.cfg.BufferSize)

	go func() {
		defer close(out)
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		total := r.NumChunks()
		for i := 0; i < total; i++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			select {
			case out <- r.chunk(i):
			default:
				r.dropped.Add(1)
			}
		}
	}()

	return out
}

// chunk cuts out the i-th column window and rescales it to decibels.
func (r *Replayer) chunk(i int) Chunk {
	start := i * r.cfg.ChunkCols
	end := start + r.cfg.ChunkCols

	values := make([][]float64, len(r.spec.Values))
	for row, src := range r.spec.Values {
		dst := make([]float64, r.cfg.ChunkCols)
		for col, v := range src[start:end] {
			if v < dbFloor {
				v = dbFloor
			}
			dst[col] = 10 * math.Log10(v)
		}
		values[row] = dst
	}

	return Chunk{
		Index:  i,
		Freqs:  r.spec.Freqs,
		Times:  r.spec.Times[start:end],
		Values: values,
	}
}
