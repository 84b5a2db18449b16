package models

import (
	"encoding/json"
	"time"
)

// RecordData is the payload a monitoring client sends with a captured
// recording. Audio is a base64-encoded .wav blob.
type RecordData struct {
	Audio      string   `json:"audio"`
	Duration   float64  `json:"duration"`
	Channels   int      `json:"channels"`
	SampleRate int      `json:"sampleRate"`
	SampleSize int      `json:"sampleSize"`
	Treatment  string   `json:"treatment,omitempty"` // e.g. "-40dB_10Hz_100Hz_noneperc"
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// BurstInterval is one stretch of signal the gate kept, in seconds
// relative to the start of the recording.
type BurstInterval struct {
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

// GatingSummary is the analysis result sent back to monitoring clients.
type GatingSummary struct {
	Treatment        string          `json:"treatment"`
	FrameRate        int             `json:"frameRate"`
	Duration         float64         `json:"duration"`
	PercentZeroed    float64         `json:"percentZeroed"`
	VoltageThreshold float64         `json:"voltageThreshold"`
	Bursts           []BurstInterval `json:"bursts"`
	LatencyMs        float64         `json:"latencyMs"`
	Latitude         *float64        `json:"latitude,omitempty"`
	Longitude        *float64        `json:"longitude,omitempty"`
	RecordingPath    string          `json:"recordingPath,omitempty"`
}

// GateInfo describes the server's gate settings and training corpus,
// sent to monitoring clients on connect.
type GateInfo struct {
	Treatment       string  `json:"treatment"`
	AttackReleaseMs float64 `json:"attackReleaseMs"`
	FreqCapHz       int     `json:"freqCapHz"`
	SnippetCount    int     `json:"snippetCount"`
}

// StoreStats summarizes the snippet store for monitoring clients.
type StoreStats struct {
	TotalSamples    int            `json:"totalSamples"`
	PositiveSamples int            `json:"positiveSamples"`
	NegativeSamples int            `json:"negativeSamples"`
	Sites           map[string]int `json:"sites"`
}

// Detection is a persisted gating event that kept call activity.
type Detection struct {
	ID            int64           `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	Latitude      *float64        `json:"latitude,omitempty"`
	Longitude     *float64        `json:"longitude,omitempty"`
	Treatment     string          `json:"treatment"`
	PercentZeroed float64         `json:"percentZeroed"`
	BurstCount    int             `json:"burstCount"`
	LatencyMs     float64         `json:"latencyMs"`
	Bursts        json.RawMessage `json:"bursts"`
	RecordingPath string          `json:"recordingPath,omitempty"`
}

// SnippetInfo is the wire form of a stored training snippet.
type SnippetInfo struct {
	SampleID      int     `json:"sampleId"`
	RecordingSite string  `json:"recordingSite"`
	Label         int     `json:"label"`
	StartTime     float64 `json:"startTime"`
	EndTime       float64 `json:"endTime"`
	Filename      string  `json:"filename"`
}

// FoldInfo is the wire form of one train/validation partition.
type FoldInfo struct {
	TrainIDs      []int `json:"trainIds"`
	ValidationIDs []int `json:"validationIds"`
}

// FoldPreview summarizes a fold layout without loading any samples.
type FoldPreview struct {
	NumFolds   int        `json:"numFolds"`
	NumSamples int        `json:"numSamples"`
	Folds      []FoldInfo `json:"folds"`
}
