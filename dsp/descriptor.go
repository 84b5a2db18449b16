package dsp

// Treatment Descriptors
//
// Every gated file and every downstream measurement is tagged with how
// the signal was treated: threshold, band-pass range and, once labels
// come into play, the minimum overlap required to count a burst as a
// discovered call. The descriptor travels as a flat string such as
//
//   -30dB_10Hz_50Hz_20perc
//
// which doubles as a component of output file names, so experiments can
// be matched to their files long after a calibration run finished.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	thresholdPattern = regexp.MustCompile(`^(-?\d+)dB$`)
	freqPattern      = regexp.MustCompile(`^(\d+)Hz$`)
	overlapPattern   = regexp.MustCompile(`^(\d+|none|None)perc$`)
)

// TreatmentDescriptor records how a signal was treated on its way to a
// gated file. MinRequiredOverlap is nil until an overlap requirement is
// attached with AddOverlap.
type TreatmentDescriptor struct {
	ThresholdDb        int
	LowFreq            int // Hz, band-pass bottom
	HighFreq           int // Hz, band-pass top
	MinRequiredOverlap *int
}

// NewTreatmentDescriptor returns a descriptor without an overlap
// requirement.
func NewTreatmentDescriptor(thresholdDb, lowFreq, highFreq int) *TreatmentDescriptor {
	return &TreatmentDescriptor{
		ThresholdDb: thresholdDb,
		LowFreq:     lowFreq,
		HighFreq:    highFreq,
	}
}

// ParseTreatmentDescriptor reverses Flat. The overlap field accepts
// "none" or "None" for a descriptor without an overlap requirement.
func ParseTreatmentDescriptor(flat string) (*TreatmentDescriptor, error) {
	parts := strings.Split(flat, "_")
	if len(parts) != 4 {
		return nil, fmt.Errorf("treatment descriptor '%s' must have four underscore-separated fields", flat)
	}

	m := thresholdPattern.FindStringSubmatch(parts[0])
	if m == nil {
		return nil, fmt.Errorf("cannot parse threshold dB from '%s'", flat)
	}
	thresholdDb, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("cannot parse threshold dB from '%s'", flat)
	}

	m = freqPattern.FindStringSubmatch(parts[1])
	if m == nil {
		return nil, fmt.Errorf("cannot parse low band-pass frequency from '%s'", flat)
	}
	lowFreq, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("cannot parse low band-pass frequency from '%s'", flat)
	}

	m = freqPattern.FindStringSubmatch(parts[2])
	if m == nil {
		return nil, fmt.Errorf("cannot parse high band-pass frequency from '%s'", flat)
	}
	highFreq, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("cannot parse high band-pass frequency from '%s'", flat)
	}

	m = overlapPattern.FindStringSubmatch(parts[3])
	if m == nil {
		return nil, fmt.Errorf("cannot parse min required overlap from '%s'", flat)
	}
	descriptor := NewTreatmentDescriptor(thresholdDb, lowFreq, highFreq)
	if m[1] != "none" && m[1] != "None" {
		overlap, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("cannot parse min required overlap from '%s'", flat)
		}
		descriptor.MinRequiredOverlap = &overlap
	}

	return descriptor, nil
}

// Flat renders the descriptor as a file-name friendly string. An unset
// overlap renders as "noneperc".
func (d *TreatmentDescriptor) Flat() string {
	flat := fmt.Sprintf("%ddB_%dHz_%dHz", d.ThresholdDb, d.LowFreq, d.HighFreq)
	if d.MinRequiredOverlap != nil {
		return fmt.Sprintf("%s_%dperc", flat, *d.MinRequiredOverlap)
	}
	return flat + "_noneperc"
}

func (d *TreatmentDescriptor) String() string {
	return d.Flat()
}

// AddOverlap attaches the minimum required overlap percentage. Called
// once the gated file moves on to label matching.
func (d *TreatmentDescriptor) AddOverlap(perc int) {
	d.MinRequiredOverlap = &perc
}

// EqualSignalProcessing reports whether the signal-processing settings
// match, ignoring any overlap requirement.
func (d *TreatmentDescriptor) EqualSignalProcessing(other *TreatmentDescriptor) bool {
	return d.ThresholdDb == other.ThresholdDb &&
		d.LowFreq == other.LowFreq &&
		d.HighFreq == other.HighFreq
}

// Equal reports whether every field matches, the overlap requirement
// included.
func (d *TreatmentDescriptor) Equal(other *TreatmentDescriptor) bool {
	if !d.EqualSignalProcessing(other) {
		return false
	}
	if (d.MinRequiredOverlap == nil) != (other.MinRequiredOverlap == nil) {
		return false
	}
	return d.MinRequiredOverlap == nil || *d.MinRequiredOverlap == *other.MinRequiredOverlap
}
