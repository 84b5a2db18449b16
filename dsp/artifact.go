package dsp

// Spectrogram artifacts are stored as JSON files next to the snippet
// database. The write goes through a temp file and a rename so readers
// never see a half-written artifact.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"call-detection/utils"
)

// SaveSpectrogram writes the spectrogram to path, creating the parent
// directory if needed.
func SaveSpectrogram(s *Spectrogram, path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			return fmt.Errorf("error creating directory: %v", err)
		}
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("error marshaling spectrogram: %v", err)
	}

	tmp, err := os.CreateTemp(dir, ".spectrogram-*")
	if err != nil {
		return fmt.Errorf("error creating temp file: %v", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("error writing spectrogram file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("error closing spectrogram file: %v", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("error renaming spectrogram file: %v", err)
	}
	return nil
}

// LoadSpectrogram reads a spectrogram previously written with
// SaveSpectrogram and checks that its axes and value grid line up.
func LoadSpectrogram(path string) (*Spectrogram, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading spectrogram file: %v", err)
	}

	var s Spectrogram
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("error unmarshaling spectrogram: %v", err)
	}

	if len(s.Values) != len(s.Freqs) {
		return nil, fmt.Errorf("corrupt spectrogram %s: %d value rows for %d frequencies", path, len(s.Values), len(s.Freqs))
	}
	for r, row := range s.Values {
		if len(row) != len(s.Times) {
			return nil, fmt.Errorf("corrupt spectrogram %s: row %d has %d columns for %d times", path, r, len(row), len(s.Times))
		}
	}

	return &s, nil
}
