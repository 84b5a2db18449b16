package stream

import (
	"context"
	"math"
	"testing"
	"time"

	"call-detection/dsp"
)

func TestReplayerChunkCount(t *testing.T) {
	t.Parallel()
	spec := testSpectrogram(600)

	cfg := ReplayerConfig{ChunkCols: 256, Interval: time.Millisecond}
	replayer, err := NewReplayer(spec, cfg)
	if err != nil {
		t.Fatalf("failed to build replayer: %v", err)
	}
	if replayer.NumChunks() != 2 {
		t.Fatalf("expected the 88 trailing columns dropped, got %d chunks", replayer.NumChunks())
	}

	cfg.MaxChunks = 1
	replayer, err = NewReplayer(spec, cfg)
	if err != nil {
		t.Fatalf("failed to build replayer: %v", err)
	}
	if replayer.NumChunks() != 1 {
		t.Fatalf("expected max chunks cap, got %d", replayer.NumChunks())
	}
}

func TestReplayerStreamsDecibelChunks(t *testing.T) {
	t.Parallel()
	spec := testSpectrogram(8)

	cfg := ReplayerConfig{ChunkCols: 4, Interval: time.Millisecond, BufferSize: 4}
	replayer, err := NewReplayer(spec, cfg)
	if err != nil {
		t.Fatalf("failed to build replayer: %v", err)
	}

	var chunks []Chunk
	for chunk := range replayer.Stream(context.Background()) {
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Index != 0 || chunks[1].Index != 1 {
		t.Fatalf("expected chunk indexes [0 1], got [%d %d]", chunks[0].Index, chunks[1].Index)
	}
	if replayer.Dropped() != 0 {
		t.Fatalf("expected no drops with a buffered consumer, got %d", replayer.Dropped())
	}

	first := chunks[0]
	if len(first.Times) != 4 || first.Times[0] != 0 || first.Times[3] != 3 {
		t.Fatalf("expected first chunk times [0..3], got %v", first.Times)
	}
	// Source magnitudes are 10 in row 0 and 100 in row 1.
	if math.Abs(first.Values[0][0]-10) > 1e-9 {
		t.Fatalf("expected 10 dB for magnitude 10, got %v", first.Values[0][0])
	}
	if math.Abs(first.Values[1][0]-20) > 1e-9 {
		t.Fatalf("expected 20 dB for magnitude 100, got %v", first.Values[1][0])
	}
}

func TestReplayerFloorsZeroMagnitudes(t *testing.T) {
	t.Parallel()
	spec := &dsp.Spectrogram{
		Freqs:  []float64{0},
		Times:  []float64{0, 1},
		Values: [][]float64{{0, 0}},
	}

	cfg := ReplayerConfig{ChunkCols: 2, Interval: time.Millisecond, BufferSize: 1}
	replayer, err := NewReplayer(spec, cfg)
	if err != nil {
		t.Fatalf("failed to build replayer: %v", err)
	}

	chunk := <-replayer.Stream(context.Background())
	if math.Abs(chunk.Values[0][0]-(-120)) > 1e-9 {
		t.Fatalf("expected zeroed cells floored at -120 dB, got %v", chunk.Values[0][0])
	}
}

func TestReplayerDropsWhenConsumerStalls(t *testing.T) {
	t.Parallel()
	spec := testSpectrogram(20)

	cfg := ReplayerConfig{ChunkCols: 4, Interval: time.Millisecond, BufferSize: 1}
	replayer, err := NewReplayer(spec, cfg)
	if err != nil {
		t.Fatalf("failed to build replayer: %v", err)
	}

	out := replayer.Stream(context.Background())

	// Read nothing: the first chunk fills the buffer, the other four
	// must be dropped rather than block the feed.
	deadline := time.Now().Add(5 * time.Second)
	for replayer.Dropped() < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if replayer.Dropped() != 4 {
		t.Fatalf("expected 4 dropped chunks, got %d", replayer.Dropped())
	}

	received := 0
	for chunk := range out {
		if chunk.Index != 0 {
			t.Fatalf("expected only the buffered first chunk, got index %d", chunk.Index)
		}
		received++
	}
	if received != 1 {
		t.Fatalf("expected 1 buffered chunk, got %d", received)
	}
}

func TestReplayerStopsOnCancelledContext(t *testing.T) {
	t.Parallel()
	spec := testSpectrogram(512)

	replayer, err := NewReplayer(spec, DefaultReplayerConfig())
	if err != nil {
		t.Fatalf("failed to build replayer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	count := 0
	for range replayer.Stream(ctx) {
		count++
	}
	if count != 0 {
		t.Fatalf("expected no chunks after cancellation, got %d", count)
	}
}

func TestNewReplayerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewReplayer(nil, DefaultReplayerConfig()); err == nil {
		t.Fatalf("expected nil spectrogram to be rejected")
	}
	spec := testSpectrogram(10)
	if _, err := NewReplayer(spec, ReplayerConfig{ChunkCols: -1}); err == nil {
		t.Fatalf("expected negative chunk width to be rejected")
	}
	if _, err := NewReplayer(spec, ReplayerConfig{MaxChunks: -2}); err == nil {
		t.Fatalf("expected negative max chunks to be rejected")
	}
}

// testSpectrogram builds a 2-row spectrogram with constant magnitudes
// 10 and 100 and 1s ticks.
func testSpectrogram(cols int) *dsp.Spectrogram {
	times := make([]float64, cols)
	row0 := make([]float64, cols)
	row1 := make([]float64, cols)
	for i := 0; i < cols; i++ {
		times[i] = float64(i)
		row0[i] = 10
		row1[i] = 100
	}
	return &dsp.Spectrogram{
		Freqs:  []float64{0, 20},
		Times:  times,
		Values: [][]float64{row0, row1},
	}
}
