package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"call-detection/db"
	"call-detection/detections"
	"call-detection/dsp"
	"call-detection/models"
	"call-detection/stream"
	"call-detection/utils"
	"call-detection/wav"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"
)

type socketController struct {
	baseCfg           dsp.GateConfig
	treatment         dsp.TreatmentDescriptor
	store             *db.SnippetStore
	replayDir         string
	persistRecordings bool
}

func newSocketController(treatment dsp.TreatmentDescriptor, baseCfg dsp.GateConfig, store *db.SnippetStore, replayDir string, persist bool) *socketController {
	return &socketController{
		baseCfg:           baseCfg,
		treatment:         treatment,
		store:             store,
		replayDir:         replayDir,
		persistRecordings: persist,
	}
}

// gateConfigFor overlays a treatment's knobs on the server's base
// configuration.
func (c *socketController) gateConfigFor(treatment dsp.TreatmentDescriptor) dsp.GateConfig {
	cfg := c.baseCfg
	cfg.ThresholdDb = treatment.ThresholdDb
	cfg.LowFreqHz = float64(treatment.LowFreq)
	cfg.HighFreqHz = float64(treatment.HighFreq)
	return cfg
}

func (c *socketController) gateInfo() models.GateInfo {
	info := models.GateInfo{
		Treatment:       c.treatment.Flat(),
		AttackReleaseMs: c.baseCfg.AttackReleaseMs,
		FreqCapHz:       c.baseCfg.FreqCapHz,
	}
	if c.store != nil {
		if count, err := c.store.CountSamples(); err == nil {
			info.SnippetCount = count
		}
	}
	return info
}

func (c *socketController) emitGateInfo(socket socketio.Conn) {
	socket.Emit("gateInfo", c.gateInfo())
}

func (c *socketController) handleRequestGateInfo(socket socketio.Conn) {
	c.emitGateInfo(socket)
}

// handleStoreStats answers a client's storeStats request with counts
// from the snippet store.
func (c *socketController) handleStoreStats(socket socketio.Conn) {
	logger := utils.GetLogger()
	ctx := context.Background()

	stats := models.StoreStats{Sites: map[string]int{}}
	if c.store != nil {
		var err error
		if stats.TotalSamples, err = c.store.CountSamples(); err != nil {
			logger.ErrorContext(ctx, "failed to count samples", slog.Any("error", err))
			socket.Emit("analysisError", map[string]string{"message": "unable to read snippet store"})
			return
		}
		if stats.PositiveSamples, err = c.store.CountByLabel(1); err == nil {
			stats.NegativeSamples = stats.TotalSamples - stats.PositiveSamples
		}
		if sites, err := c.store.SiteCounts(); err == nil {
			stats.Sites = sites
		}
	}

	socket.Emit("storeStats", stats)
}

// prepareRecording decodes the base64 .wav payload and, when enabled,
// persists the original bytes for later labeling.
func (c *socketController) prepareRecording(recData models.RecordData) (*wav.Clip, string, error) {
	audio := recData.Audio
	if strings.HasPrefix(audio, "data:") {
		if idx := strings.Index(audio, ","); idx >= 0 {
			audio = audio[idx+1:]
		}
	}

	raw, err := base64.StdEncoding.DecodeString(audio)
	if err != nil {
		return nil, "", fmt.Errorf("unable to decode audio: %v", err)
	}

	clip, err := wav.DecodeWavBytes(raw)
	if err != nil {
		return nil, "", fmt.Errorf("unable to decode audio: %v", err)
	}

	persisted := ""
	if c.persistRecordings {
		dir := filepath.Join("tmp", "recordings")
		if err := utils.CreateFolder(dir); err != nil {
			return nil, "", fmt.Errorf("unable to persist recording: %v", err)
		}
		persisted = filepath.Join(dir, fmt.Sprintf("rec_%d.wav", utils.GenerateUniqueID()))
		if err := os.WriteFile(persisted, raw, 0644); err != nil {
			return nil, "", fmt.Errorf("unable to persist recording: %v", err)
		}
	}

	return clip, persisted, nil
}

// gateRecording runs the noise gate over an uploaded recording and
// builds the summary both the socket and REST paths return.
func (c *socketController) gateRecording(recData models.RecordData) (*models.GatingSummary, error) {
	treatment := c.treatment
	if recData.Treatment != "" {
		parsed, err := dsp.ParseTreatmentDescriptor(recData.Treatment)
		if err != nil {
			return nil, fmt.Errorf("invalid treatment descriptor: %v", err)
		}
		treatment = *parsed
	}

	started := time.Now()

	clip, persisted, err := c.prepareRecording(recData)
	if err != nil {
		return nil, err
	}

	cfg := c.gateConfigFor(treatment)
	cfg.FrameRate = clip.FrameRate
	gater, err := dsp.NewAmplitudeGater(cfg)
	if err != nil {
		return nil, err
	}

	result, err := gater.Gate(clip.Samples)
	if err != nil {
		return nil, fmt.Errorf("gating failed: %v", err)
	}

	return &models.GatingSummary{
		Treatment:        treatment.Flat(),
		FrameRate:        result.FrameRate,
		Duration:         clip.Duration,
		PercentZeroed:    result.PercentZeroed,
		VoltageThreshold: result.VoltageThreshold,
		Bursts:           burstIntervals(result),
		LatencyMs:        time.Since(started).Seconds() * 1000,
		Latitude:         recData.Latitude,
		Longitude:        recData.Longitude,
		RecordingPath:    persisted,
	}, nil
}

// burstIntervals converts the gate's sample-index bursts to seconds.
func burstIntervals(result *dsp.GateResult) []models.BurstInterval {
	bursts := make([]models.BurstInterval, 0, len(result.Bursts))
	rate := float64(result.FrameRate)
	for _, b := range result.Bursts {
		bursts = append(bursts, models.BurstInterval{
			StartSec: float64(b.Start) / rate,
			EndSec:   float64(b.Stop) / rate,
		})
	}
	return bursts
}

func (c *socketController) handleNewRecording(socket socketio.Conn, recordData string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	log.Printf("[handleNewRecording] Starting for socket %s, data length: %d\n", socket.ID(), len(recordData))

	if recordData == "" {
		logger.ErrorContext(ctx, "no data received in newRecording event")
		socket.Emit("analysisError", map[string]string{"message": "no audio data received"})
		return
	}

	var recData models.RecordData
	if err := json.Unmarshal([]byte(recordData), &recData); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to parse record payload", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "invalid audio payload"})
		return
	}

	logger.InfoContext(ctx, "received recording",
		slog.String("socketID", socket.ID()),
		slog.Int("sampleRate", recData.SampleRate),
		slog.Int("channels", recData.Channels),
		slog.Float64("duration", recData.Duration),
		slog.String("treatment", recData.Treatment),
	)

	if recData.Audio == "" {
		logger.ErrorContext(ctx, "no audio data received")
		socket.Emit("analysisError", map[string]string{"message": "no audio data received"})
		return
	}

	summary, err := c.gateRecording(recData)
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to gate recording", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": err.Error()})
		return
	}

	log.Printf("[handleNewRecording] Gating complete for socket %s: %.2f%% zeroed, %d bursts\n",
		socket.ID(), summary.PercentZeroed, len(summary.Bursts))
	logger.InfoContext(ctx, "gating complete",
		slog.String("socketID", socket.ID()),
		slog.Float64("latency_ms", summary.LatencyMs),
		slog.Float64("percentZeroed", summary.PercentZeroed),
		slog.Int("burstCount", len(summary.Bursts)),
	)

	// A recording that kept bursts is a detection worth keeping.
	if len(summary.Bursts) > 0 {
		burstsJSON, err := json.Marshal(summary.Bursts)
		if err == nil {
			detection := &models.Detection{
				Timestamp:     time.Now(),
				Latitude:      summary.Latitude,
				Longitude:     summary.Longitude,
				Treatment:     summary.Treatment,
				PercentZeroed: summary.PercentZeroed,
				BurstCount:    len(summary.Bursts),
				LatencyMs:     summary.LatencyMs,
				Bursts:        json.RawMessage(burstsJSON),
				RecordingPath: summary.RecordingPath,
			}
			if err := detections.SaveDetection(detection); err != nil {
				log.Printf("[Socket] Failed to save detection: %v\n", err)
			}
		}
	}

	socket.Emit("gating", summary)
	logger.InfoContext(ctx, "emitted gating result", slog.String("socketID", socket.ID()))
}

type replayRequest struct {
	File      string `json:"file"`
	MaxChunks int    `json:"maxChunks"`
}

// handleStartReplay streams a stored spectrogram back to the client in
// timed chunks, simulating a live feed.
func (c *socketController) handleStartReplay(socket socketio.Conn, msg string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	var req replayRequest
	if err := json.Unmarshal([]byte(msg), &req); err != nil {
		logger.ErrorContext(ctx, "failed to parse replay request", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "invalid replay request"})
		return
	}
	if req.File == "" {
		socket.Emit("analysisError", map[string]string{"message": "no spectrogram file given"})
		return
	}

	// Clients name files, not paths; everything resolves inside the
	// replay directory.
	path := filepath.Join(c.replayDir, filepath.Base(req.File))

	cfg := stream.DefaultReplayerConfig()
	cfg.MaxChunks = req.MaxChunks
	replayer, err := stream.NewReplayerFromFile(path, cfg)
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to open spectrogram for replay", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "unable to open spectrogram"})
		return
	}

	log.Printf("[handleStartReplay] Streaming %s to socket %s (%d chunks)\n",
		filepath.Base(path), socket.ID(), replayer.NumChunks())

	sent := 0
	for chunk := range replayer.Stream(context.Background()) {
		socket.Emit("spectrogramChunk", chunk)
		sent++
	}

	socket.Emit("replayDone", map[string]interface{}{
		"chunks":  sent,
		"dropped": replayer.Dropped(),
	})
	logger.InfoContext(ctx, "replay finished",
		slog.String("socketID", socket.ID()),
		slog.Int("chunks", sent),
		slog.Int64("dropped", replayer.Dropped()),
	)
}
