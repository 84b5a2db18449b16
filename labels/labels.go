// Package labels reads ground-truth call annotations. Annotation tables
// come out of Raven as tab-separated text with one selection per row and
// begin/end times in seconds.
package labels

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CallInterval is one annotated call, a half-open time range in seconds
// relative to the start of the recording.
type CallInterval struct {
	StartSec float64
	EndSec   float64
}

// Duration returns the interval length in seconds.
func (c CallInterval) Duration() float64 {
	return c.EndSec - c.StartSec
}

// ReadCallIntervals parses a Raven-style selection table. The header row
// must contain "Begin Time" and "End Time" columns; all other columns are
// ignored.
func ReadCallIntervals(path string) ([]CallInterval, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening label file: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("error reading label file: %v", err)
		}
		return nil, fmt.Errorf("label file %s is empty", path)
	}

	header := strings.Split(scanner.Text(), "\t")
	beginCol, endCol := -1, -1
	for i, name := range header {
		trimmed := strings.TrimSpace(name)
		switch {
		case strings.HasPrefix(trimmed, "Begin Time"):
			beginCol = i
		case strings.HasPrefix(trimmed, "End Time"):
			endCol = i
		}
	}
	if beginCol < 0 || endCol < 0 {
		return nil, fmt.Errorf("label file %s has no Begin Time/End Time columns", path)
	}

	var intervals []CallInterval
	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) <= beginCol || len(fields) <= endCol {
			return nil, fmt.Errorf("label file %s line %d has too few columns", path, lineNum)
		}

		begin, err := strconv.ParseFloat(strings.TrimSpace(fields[beginCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("label file %s line %d: bad begin time: %v", path, lineNum, err)
		}
		end, err := strconv.ParseFloat(strings.TrimSpace(fields[endCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("label file %s line %d: bad end time: %v", path, lineNum, err)
		}

		intervals = append(intervals, CallInterval{StartSec: begin, EndSec: end})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading label file: %v", err)
	}

	return intervals, nil
}
