package dataset

// Snippet labeling against ground-truth call annotations.
//
// A snippet window is positive when it overlaps an annotated call. How
// much overlap is required is configurable: by default any overlap at
// all makes the window positive, or a minimum percentage of the window
// can be demanded so that windows barely grazing a call stay negative.

import "call-detection/labels"

// LabelForInterval reports whether the window [startSec, endSec)
// overlaps any of the annotated calls. With a nil minOverlapPerc any
// positive overlap counts. Otherwise at least one call must cover
// minOverlapPerc percent of the window.
func LabelForInterval(startSec, endSec float64, calls []labels.CallInterval, minOverlapPerc *float64) bool {
	windowLen := endSec - startSec
	if windowLen <= 0 {
		return false
	}

	for _, call := range calls {
		overlap := overlapSeconds(startSec, endSec, call.StartSec, call.EndSec)
		if minOverlapPerc == nil {
			if overlap > 0 {
				return true
			}
			continue
		}
		if overlap/windowLen*100 >= *minOverlapPerc {
			return true
		}
	}
	return false
}

// overlapSeconds returns the length of the intersection of two time
// ranges. Disjoint ranges yield a negative value, so a zero result
// means the ranges touch at exactly one point. That keeps a required
// overlap of 0 percent satisfiable by a touch but not by a call that
// is nowhere near the window.
func overlapSeconds(aStart, aEnd, bStart, bEnd float64) float64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	return end - start
}
