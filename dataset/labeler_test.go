package dataset

import (
	"testing"

	"call-detection/labels"
)

func TestLabelForIntervalAnyOverlap(t *testing.T) {
	t.Parallel()
	calls := []labels.CallInterval{{StartSec: 3, EndSec: 5}}

	if !LabelForInterval(4, 8, calls, nil) {
		t.Fatalf("expected overlap of one second to label positive")
	}
	if LabelForInterval(5, 8, calls, nil) {
		t.Fatalf("expected touching intervals to label negative")
	}
	if LabelForInterval(0, 3, calls, nil) {
		t.Fatalf("expected touching intervals to label negative")
	}
}

func TestLabelForIntervalRequiredPercent(t *testing.T) {
	t.Parallel()
	calls := []labels.CallInterval{{StartSec: 0, EndSec: 2}}

	twenty := 20.0
	if !LabelForInterval(0, 10, calls, &twenty) {
		t.Fatalf("expected 20%% overlap to satisfy a 20%% requirement")
	}
	twentyFive := 25.0
	if LabelForInterval(0, 10, calls, &twentyFive) {
		t.Fatalf("expected 20%% overlap to fail a 25%% requirement")
	}
}

func TestLabelForIntervalZeroPercent(t *testing.T) {
	t.Parallel()
	calls := []labels.CallInterval{{StartSec: 3, EndSec: 5}}

	zero := 0.0
	if !LabelForInterval(4, 8, calls, &zero) {
		t.Fatalf("expected overlapping interval to satisfy a 0%% requirement")
	}
	if !LabelForInterval(5, 8, calls, &zero) {
		t.Fatalf("expected exact touch to satisfy a 0%% requirement")
	}
	if LabelForInterval(20, 30, calls, &zero) {
		t.Fatalf("expected disjoint interval to fail even a 0%% requirement")
	}
}

func TestLabelForIntervalChecksEveryCall(t *testing.T) {
	t.Parallel()
	calls := []labels.CallInterval{
		{StartSec: 0, EndSec: 0.1},
		{StartSec: 6, EndSec: 9},
	}

	half := 50.0
	if !LabelForInterval(5, 10, calls, &half) {
		t.Fatalf("expected second call to satisfy the overlap requirement")
	}
}

func TestLabelForIntervalNoCalls(t *testing.T) {
	t.Parallel()
	if LabelForInterval(0, 10, nil, nil) {
		t.Fatalf("expected no calls to label negative")
	}
}

func TestLabelForIntervalEmptyWindow(t *testing.T) {
	t.Parallel()
	calls := []labels.CallInterval{{StartSec: 0, EndSec: 100}}
	if LabelForInterval(5, 5, calls, nil) {
		t.Fatalf("expected zero-length window to label negative")
	}
}
