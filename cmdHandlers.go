package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"call-detection/dataset"
	"call-detection/db"
	"call-detection/detections"
	"call-detection/dsp"
	"call-detection/models"
	"call-detection/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"
)

type apiError struct {
	Message string `json:"message"`
}

type recordingUploadResponse struct {
	Added []models.GatingSummary `json:"added"`
	Stats models.GateInfo        `json:"stats"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

// newRecordingUploadHandler accepts multipart .wav uploads, gates each
// recording, and writes the gated audio and its spectrogram next to the
// upload. Individual bad files are skipped rather than failing the
// whole batch.
func newRecordingUploadHandler(controller *socketController) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if err := r.ParseMultipartForm(256 << 20); err != nil {
			logger.ErrorContext(ctx, "failed to parse multipart form", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "invalid upload payload")
			return
		}

		treatment := controller.treatment
		if value := strings.TrimSpace(r.FormValue("treatment")); value != "" {
			parsed, err := dsp.ParseTreatmentDescriptor(value)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid treatment descriptor")
				return
			}
			treatment = *parsed
		}

		if r.MultipartForm == nil || len(r.MultipartForm.File["recordings"]) == 0 {
			writeJSONError(w, http.StatusBadRequest, "no recordings provided")
			return
		}
		files := r.MultipartForm.File["recordings"]

		tempDir := filepath.Join("tmp", "uploads")
		if err := utils.CreateFolder(tempDir); err != nil {
			logger.ErrorContext(ctx, "failed to create temporary upload dir", slog.Any("error", err))
			writeJSONError(w, http.StatusInternalServerError, "internal error while preparing upload")
			return
		}

		var added []models.GatingSummary
		for _, fileHeader := range files {
			src, err := fileHeader.Open()
			if err != nil {
				logger.ErrorContext(ctx, "failed to open uploaded file", slog.Any("error", err))
				continue
			}

			tempFile, err := os.CreateTemp(tempDir, "upload-*.wav")
			if err != nil {
				logger.ErrorContext(ctx, "failed to create temp file", slog.Any("error", err))
				src.Close()
				continue
			}

			_, err = io.Copy(tempFile, src)
			tempFile.Close()
			src.Close()
			if err != nil {
				logger.ErrorContext(ctx, "failed to persist upload", slog.Any("error", err))
				os.Remove(tempFile.Name())
				continue
			}

			audioPath := tempFile.Name()
			// Keep the client's file name so the gated artifacts pair
			// with label files by root.
			if name := filepath.Base(fileHeader.Filename); strings.EqualFold(filepath.Ext(name), ".wav") {
				dest := filepath.Join(tempDir, name)
				if err := utils.MoveFile(audioPath, dest); err != nil {
					logger.ErrorContext(ctx, "failed to place upload", slog.Any("error", err))
					os.Remove(audioPath)
					continue
				}
				audioPath = dest
			}
			gatedPath := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + "_gated.wav"
			spectrogramPath := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + "_spectrogram.json"

			started := time.Now()
			result, err := dsp.GateWavFile(audioPath, gatedPath, spectrogramPath, controller.gateConfigFor(treatment))
			if err != nil {
				logger.ErrorContext(ctx, "failed to gate upload", slog.Any("error", err))
				os.Remove(audioPath)
				continue
			}

			added = append(added, models.GatingSummary{
				Treatment:        treatment.Flat(),
				FrameRate:        result.FrameRate,
				Duration:         float64(len(result.Samples)) / float64(result.FrameRate),
				PercentZeroed:    result.PercentZeroed,
				VoltageThreshold: result.VoltageThreshold,
				Bursts:           burstIntervals(result),
				LatencyMs:        time.Since(started).Seconds() * 1000,
				RecordingPath:    gatedPath,
			})
		}

		if len(added) > 0 {
			logger.InfoContext(ctx, "gated uploaded recordings", slog.Int("count", len(added)))
		}

		writeJSON(w, http.StatusOK, recordingUploadResponse{
			Added: added,
			Stats: controller.gateInfo(),
		})
	}
}

// newAudioGatingHandler is the REST twin of the newRecording socket
// event: a JSON payload with base64 audio in, a gating summary out.
func newAudioGatingHandler(controller *socketController) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var recData models.RecordData
		if err := json.NewDecoder(r.Body).Decode(&recData); err != nil {
			logger.ErrorContext(ctx, "failed to parse request body", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "invalid request payload")
			return
		}

		if recData.Audio == "" {
			logger.ErrorContext(ctx, "no audio data received")
			writeJSONError(w, http.StatusBadRequest, "no audio data received")
			return
		}

		log.Printf("[HTTP] Gating request: sampleRate=%d, channels=%d, duration=%.2f, treatment=%s\n",
			recData.SampleRate, recData.Channels, recData.Duration, recData.Treatment)

		summary, err := controller.gateRecording(recData)
		if err != nil {
			err := xerrors.New(err)
			logger.ErrorContext(ctx, "failed to gate recording", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		log.Printf("[HTTP] Gating complete: %.2f%% zeroed, %d bursts, latency=%.2fms\n",
			summary.PercentZeroed, len(summary.Bursts), summary.LatencyMs)

		writeJSON(w, http.StatusOK, summary)
	}
}

func newDetectionsHandler() http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		detectionsList, err := detections.LoadDetections()
		if err != nil {
			logger.ErrorContext(ctx, "failed to load detections", slog.Any("error", err))
			writeJSONError(w, http.StatusInternalServerError, "failed to load detections")
			return
		}

		writeJSON(w, http.StatusOK, detectionsList)
	}
}

// newSnippetsHandler lists the training snippets in the store, with
// optional site and label filters.
func newSnippetsHandler(store *db.SnippetStore) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		site := r.URL.Query().Get("site")
		labelFilter := -1
		if labelStr := r.URL.Query().Get("label"); labelStr != "" {
			label, err := strconv.Atoi(labelStr)
			if err != nil || (label != 0 && label != 1) {
				writeJSONError(w, http.StatusBadRequest, "label filter must be 0 or 1")
				return
			}
			labelFilter = label
		}

		snips, err := store.QueryAll()
		if err != nil {
			logger.ErrorContext(ctx, "failed to query snippets", slog.Any("error", err))
			writeJSONError(w, http.StatusInternalServerError, "failed to query snippets")
			return
		}

		infos := make([]models.SnippetInfo, 0, len(snips))
		for _, snip := range snips {
			if site != "" && snip.RecordingSite != site {
				continue
			}
			if labelFilter >= 0 && snip.Label != labelFilter {
				continue
			}
			infos = append(infos, models.SnippetInfo{
				SampleID:      snip.SampleID,
				RecordingSite: snip.RecordingSite,
				Label:         snip.Label,
				StartTime:     snip.StartTime,
				EndTime:       snip.EndTime,
				Filename:      snip.Filename,
			})
		}

		writeJSON(w, http.StatusOK, infos)
	}
}

// newFoldsPreviewHandler shows how the stored samples would partition
// into cross-validation folds without loading any of them.
func newFoldsPreviewHandler(store *db.SnippetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		cfg := dataset.DefaultFoldConfig()
		var err error
		if cfg.NSplits, err = queryInt(r, "nSplits", cfg.NSplits); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid nSplits")
			return
		}
		if cfg.NRepeats, err = queryInt(r, "nRepeats", cfg.NRepeats); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid nRepeats")
			return
		}
		if seedStr := r.URL.Query().Get("seed"); seedStr != "" {
			if cfg.Seed, err = strconv.ParseInt(seedStr, 10, 64); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid seed")
				return
			}
		}
		if cfg.Shuffle, err = queryBool(r, "shuffle", cfg.Shuffle); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid shuffle")
			return
		}
		if cfg.Stratified, err = queryBool(r, "stratified", cfg.Stratified); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid stratified")
			return
		}

		sampler, err := dataset.NewFoldSampler(store, cfg)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		folds := sampler.Folds()
		preview := models.FoldPreview{
			NumFolds:   sampler.NumFolds(),
			NumSamples: sampler.NumSamples(),
			Folds:      make([]models.FoldInfo, 0, len(folds)),
		}
		for _, fold := range folds {
			preview.Folds = append(preview.Folds, models.FoldInfo{
				TrainIDs:      fold.TrainIDs,
				ValidationIDs: fold.ValidationIDs,
			})
		}

		writeJSON(w, http.StatusOK, preview)
	}
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func queryBool(r *http.Request, key string, fallback bool) (bool, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}

func serve(protocol, port string) {
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	treatmentStr := utils.GetEnv("GATE_TREATMENT", "-40dB_10Hz_100Hz_noneperc")
	treatment, err := dsp.ParseTreatmentDescriptor(treatmentStr)
	if err != nil {
		log.Fatalf("invalid GATE_TREATMENT value '%s': %v", treatmentStr, err)
	}

	baseCfg := dsp.DefaultGateConfig()
	freqCapStr := utils.GetEnv("GATE_FREQ_CAP", strconv.Itoa(dsp.DefaultFreqCapHz))
	freqCap, err := strconv.Atoi(freqCapStr)
	if err != nil {
		log.Fatalf("invalid GATE_FREQ_CAP value '%s': %v", freqCapStr, err)
	}
	baseCfg.FreqCapHz = freqCap

	attackReleaseStr := utils.GetEnv("GATE_ATTACK_RELEASE_MS", "50")
	attackRelease, err := strconv.ParseFloat(attackReleaseStr, 64)
	if err != nil {
		attackRelease = dsp.DefaultAttackReleaseMs // Default
	}
	baseCfg.AttackReleaseMs = attackRelease

	storePath := utils.GetEnv("SNIPPET_DB_PATH", filepath.Join("tmp", "samples.sqlite"))
	store, err := db.NewSnippetStore(storePath)
	if err != nil {
		log.Fatalf("failed to open snippet store: %v", err)
	}
	if count, err := store.CountSamples(); err == nil {
		log.Printf("Snippet store %s holds %d samples", storePath, count)
	}

	replayDir := utils.GetEnv("REPLAY_DIR", "tmp")
	persistRecordings := strings.EqualFold(utils.GetEnv("PERSIST_RECORDINGS", "true"), "true")
	controller := newSocketController(*treatment, baseCfg, store, replayDir, persistRecordings)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		connURL := socket.URL()
		log.Printf("CONNECTED: %s, transport: %s, remote addr: %s\n", socket.ID(), connURL.String(), socket.RemoteAddr())
		controller.emitGateInfo(socket)
		return nil
	})

	server.OnEvent("/", "requestGateInfo", func(socket socketio.Conn) {
		controller.handleRequestGateInfo(socket)
	})

	server.OnEvent("/", "storeStats", func(socket socketio.Conn) {
		controller.handleStoreStats(socket)
	})

	server.OnEvent("/", "newRecording", func(socket socketio.Conn, msg string) {
		log.Printf("newRecording event received from %s, data length: %d\n", socket.ID(), len(msg))
		// Run handler in goroutine to prevent blocking, with panic recovery
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleNewRecording for socket %s: %v\n", socket.ID(), r)
					socket.Emit("analysisError", map[string]string{"message": "internal server error during processing"})
				}
			}()
			controller.handleNewRecording(socket, msg)
		}()
	})

	server.OnEvent("/", "startReplay", func(socket socketio.Conn, msg string) {
		log.Printf("startReplay event received from %s\n", socket.ID())
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleStartReplay for socket %s: %v\n", socket.ID(), r)
					socket.Emit("analysisError", map[string]string{"message": "internal server error during replay"})
				}
			}()
			controller.handleStartReplay(socket, msg)
		}()
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/api/audio/gate", newAudioGatingHandler(controller))
	mux.HandleFunc("/api/recordings/upload", newRecordingUploadHandler(controller))
	mux.HandleFunc("/api/detections", newDetectionsHandler())
	mux.HandleFunc("/api/snippets", newSnippetsHandler(store))
	mux.HandleFunc("/api/folds/preview", newFoldsPreviewHandler(store))
	mux.Handle("/", http.FileServer(http.Dir("static")))

	serveHTTP(server, protocol == "https", port, mux)
}

func serveHTTP(socketServer *socketio.Server, serveHTTPS bool, port string, handler http.Handler) {
	if handler == nil {
		handler = socketServer
	}
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		certKey := utils.GetEnv("CERT_KEY", "")
		certFile := utils.GetEnv("CERT_FILE", "")
		if certKey == "" || certFile == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(certFile, certKey); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
