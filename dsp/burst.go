package dsp

// Burst Discovery
//
// After thresholding, the surviving signal consists of runs of non-zero
// samples ("bursts") separated by stretches of zeros. Smoothing needs to
// know where each burst lies and how to treat the quiet gap in front of
// it:
//
//   - A gap shorter than the attack/release time is bridged by averaging
//     the two samples that frame it.
//   - A longer gap gets an exponential release ramp falling away from the
//     previous burst and an attack ramp rising into the new one.
//
// NextBurst makes that decision while walking the index of non-zero
// samples, so the whole signal is scanned exactly once.

// Burst is one contiguous run of surviving samples together with the
// smoothing scheduled for the quiet stretch that precedes it. Index
// fields hold -1 when they do not apply.
type Burst struct {
	Start          int // first sample of the run
	Stop           int // one past the last sample of the run
	AttackStart    int // where the attack ramp into this burst begins
	ReleaseStart   int // where the previous burst's release ramp begins
	AveragingStart int // last sample of the previous burst, when the gap is averaged
	AveragingStop  int // first sample of this burst, when the gap is averaged
	IndexPointer   int // position in the non-zero index where the next scan resumes
}

// NextBurst returns the burst that follows prev, or nil when no bursts
// remain. Pass nil for prev to get the first burst. The final burst
// carries an IndexPointer of -1; threading it back in yields nil.
//
// rampSamples is the attack/release time expressed in samples. It decides
// whether the gap before the new burst is averaged away (gap shorter than
// the ramp) or bridged with release and attack ramps.
func NextBurst(prev *Burst, signalIndex []int, rampSamples int) *Burst {
	ptr := 0
	if prev != nil {
		if prev.IndexPointer < 0 {
			return nil
		}
		ptr = prev.IndexPointer
	}
	if ptr >= len(signalIndex) {
		return nil
	}

	// Extend the run while the indexed samples stay adjacent.
	i := ptr
	for i+1 < len(signalIndex) && signalIndex[i+1] == signalIndex[i]+1 {
		i++
	}

	burst := &Burst{
		Start:          signalIndex[ptr],
		Stop:           signalIndex[i] + 1,
		AttackStart:    -1,
		ReleaseStart:   -1,
		AveragingStart: -1,
		AveragingStop:  -1,
		IndexPointer:   -1,
	}
	if i+1 < len(signalIndex) {
		burst.IndexPointer = i + 1
	}

	if prev == nil {
		// A burst near the start of the recording still gets an attack
		// ramp, truncated at sample zero if need be.
		attackStart := burst.Start - rampSamples
		if attackStart < 0 {
			attackStart = 0
		}
		if attackStart < burst.Start {
			burst.AttackStart = attackStart
		}
		return burst
	}

	gap := burst.Start - prev.Stop
	if gap < rampSamples {
		burst.AveragingStart = prev.Stop - 1
		burst.AveragingStop = burst.Start
	} else {
		attackStart := burst.Start - rampSamples
		if attackStart < prev.Stop {
			attackStart = prev.Stop
		}
		burst.AttackStart = attackStart
		burst.ReleaseStart = prev.Stop
	}

	return burst
}

// NonZeroIndices returns the positions of all non-zero samples.
func NonZeroIndices(samples []float64) []int {
	var indices []int
	for i, v := range samples {
		if v != 0 {
			indices = append(indices, i)
		}
	}
	return indices
}
