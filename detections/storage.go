package detections

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"call-detection/models"
	"call-detection/utils"
)

var mu sync.RWMutex

// storagePath resolves the detections file, overridable for tests and
// deployments that keep state elsewhere.
func storagePath() string {
	return utils.GetEnv("DETECTIONS_FILE", filepath.Join("tmp", "detections.json"))
}

// loadDetectionsInternal loads all detections from the JSON file (without lock)
func loadDetectionsInternal() ([]models.Detection, error) {
	filePath := storagePath()

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return []models.Detection{}, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading detections file: %v", err)
	}

	if len(data) == 0 {
		return []models.Detection{}, nil
	}

	var detections []models.Detection
	if err := json.Unmarshal(data, &detections); err != nil {
		return nil, fmt.Errorf("error unmarshaling detections: %v", err)
	}

	return detections, nil
}

// LoadDetections loads all detections from the JSON file
func LoadDetections() ([]models.Detection, error) {
	mu.RLock()
	defer mu.RUnlock()
	return loadDetectionsInternal()
}

// SaveDetection appends a new detection to the JSON file
func SaveDetection(detection *models.Detection) error {
	mu.Lock()
	defer mu.Unlock()

	detections, err := loadDetectionsInternal()
	if err != nil {
		return err
	}

	if detection.ID == 0 {
		detection.ID = time.Now().UnixNano()
	}
	if detection.Timestamp.IsZero() {
		detection.Timestamp = time.Now()
	}

	detections = append(detections, *detection)

	filePath := storagePath()
	dir := filepath.Dir(filePath)
	if dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			return fmt.Errorf("error creating directory: %v", err)
		}
	}

	data, err := json.MarshalIndent(detections, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling detections: %v", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("error writing detections file: %v", err)
	}

	return nil
}
