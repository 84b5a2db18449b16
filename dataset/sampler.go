package dataset

// Cross-validation fold sampling over a snippet store.
//
// How it works:
// 1. The stored sample ids are partitioned k ways. With shuffling the
//    partition follows a seeded permutation, so a run is reproducible
//    from its seed. Each of the k folds takes one partition as its
//    validation block and trains on the rest.
// 2. Repeats add further passes with fresh permutations. NRepeats of 2
//    therefore yields three passes and 3*k folds in total.
// 3. The sampler walks one fold at a time in the scanner style: Next
//    loads the next sample of the current split, SwitchSplit jumps
//    between the training and validation queues, NextFold advances.
//
// Rumbles are rare, so training sets skew negative. With Stratified
// set, each fold's training queue is trimmed until both labels are
// equally represented. Validation queues are never trimmed; scoring
// happens against the natural class balance.

import (
	"fmt"
	"math/rand"

	"call-detection/db"
)

type Split int

const (
	SplitTrain Split = iota
	SplitValidation
)

func (s Split) String() string {
	if s == SplitValidation {
		return "validation"
	}
	return "train"
}

// DataIntegrityError reports data that cannot support the requested
// operation: a fold referencing a sample id the store no longer holds,
// too few samples to partition, or an energy band no spectrogram row
// falls into.
type DataIntegrityError struct {
	SampleID int    // the missing sample, when one id is at fault
	Reason   string // otherwise a description of the mismatch
}

func (e *DataIntegrityError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("sample %d is referenced by a fold but missing from the store", e.SampleID)
}

// Fold is one train/validation partition of the sample ids.
type Fold struct {
	TrainIDs      []int
	ValidationIDs []int
}

type FoldConfig struct {
	NSplits    int
	NRepeats   int
	Shuffle    bool
	Seed       int64
	Stratified bool
	SampleIDs  []int // nil means every id in the store
}

func DefaultFoldConfig() FoldConfig {
	return FoldConfig{
		NSplits: 3,
		Shuffle: true,
		Seed:    42,
	}
}

// FoldSampler iterates the samples of one split of one fold at a time,
// loading each row from the store as it is visited.
type FoldSampler struct {
	store      *db.SnippetStore
	folds      []Fold
	numSamples int
	foldIdx    int
	split      Split
	queue      []int
	pos        int
	cur        db.Snippet
	err        error
}

func NewFoldSampler(store *db.SnippetStore, cfg FoldConfig) (*FoldSampler, error) {
	if cfg.NSplits < 2 {
		return nil, fmt.Errorf("need at least 2 splits, got %d", cfg.NSplits)
	}
	if cfg.NRepeats < 0 {
		return nil, fmt.Errorf("repeats cannot be negative, got %d", cfg.NRepeats)
	}

	ids := cfg.SampleIDs
	if ids == nil {
		var err error
		ids, err = store.SampleIDs()
		if err != nil {
			return nil, err
		}
	}
	if len(ids) < cfg.NSplits {
		return nil, &DataIntegrityError{Reason: fmt.Sprintf("cannot split %d samples into %d folds", len(ids), cfg.NSplits)}
	}

	folds := buildFolds(ids, cfg)
	if cfg.Stratified {
		for i := range folds {
			balanced, err := balanceTrainQueue(store, folds[i].TrainIDs)
			if err != nil {
				return nil, err
			}
			folds[i].TrainIDs = balanced
		}
	}

	s := &FoldSampler{store: store, folds: folds, numSamples: len(ids)}
	s.loadQueue()
	return s, nil
}

// buildFolds produces NSplits*(NRepeats+1) folds. Within a pass the
// validation blocks are contiguous runs of the (possibly shuffled)
// order, the first len(ids)%NSplits blocks one sample larger.
func buildFolds(ids []int, cfg FoldConfig) []Fold {
	n := len(ids)
	k := cfg.NSplits

	var folds []Fold
	for pass := 0; pass <= cfg.NRepeats; pass++ {
		order := make([]int, n)
		if cfg.Shuffle {
			rng := rand.New(rand.NewSource(cfg.Seed + int64(pass)))
			order = rng.Perm(n)
		} else {
			for i := range order {
				order[i] = i
			}
		}

		base := n / k
		rem := n % k
		current := 0
		for f := 0; f < k; f++ {
			size := base
			if f < rem {
				size++
			}
			val := make([]int, 0, size)
			for _, idx := range order[current : current+size] {
				val = append(val, ids[idx])
			}
			train := make([]int, 0, n-size)
			for _, idx := range append(append([]int{}, order[:current]...), order[current+size:]...) {
				train = append(train, ids[idx])
			}
			folds = append(folds, Fold{TrainIDs: train, ValidationIDs: val})
			current += size
		}
	}
	return folds
}

// balanceTrainQueue trims the majority class to the minority class
// size, keeping the earliest ids of each class in queue order.
func balanceTrainQueue(store *db.SnippetStore, train []int) ([]int, error) {
	labels, err := store.LabelsForIDs(train)
	if err != nil {
		return nil, err
	}

	pos, neg := 0, 0
	for _, id := range train {
		label, ok := labels[id]
		if !ok {
			return nil, &DataIntegrityError{SampleID: id}
		}
		if label == 1 {
			pos++
		} else {
			neg++
		}
	}

	keep := pos
	if neg < pos {
		keep = neg
	}

	balanced := make([]int, 0, 2*keep)
	posLeft, negLeft := keep, keep
	for _, id := range train {
		if labels[id] == 1 {
			if posLeft == 0 {
				continue
			}
			posLeft--
		} else {
			if negLeft == 0 {
				continue
			}
			negLeft--
		}
		balanced = append(balanced, id)
	}
	return balanced, nil
}

func (s *FoldSampler) loadQueue() {
	fold := s.folds[s.foldIdx]
	if s.split == SplitValidation {
		s.queue = fold.ValidationIDs
	} else {
		s.queue = fold.TrainIDs
	}
	s.pos = 0
}

// Next advances to the next sample of the current split. It returns
// false when the split is exhausted or a sample fails to load; Err
// tells the two cases apart.
func (s *FoldSampler) Next() bool {
	if s.err != nil || s.pos >= len(s.queue) {
		return false
	}

	id := s.queue[s.pos]
	snip, found, err := s.store.QueryByID(id)
	if err != nil {
		s.err = err
		return false
	}
	if !found {
		s.err = &DataIntegrityError{SampleID: id}
		return false
	}

	s.cur = snip
	s.pos++
	return true
}

// Sample returns the snippet loaded by the last successful Next.
func (s *FoldSampler) Sample() db.Snippet {
	return s.cur
}

func (s *FoldSampler) Err() error {
	return s.err
}

// SwitchSplit moves to the other queue of the current fold and rewinds.
func (s *FoldSampler) SwitchSplit(split Split) {
	s.split = split
	s.loadQueue()
}

// NextFold advances to the next fold, rewound to its training queue.
// It returns false once all folds have been visited.
func (s *FoldSampler) NextFold() bool {
	if s.foldIdx+1 >= len(s.folds) {
		return false
	}
	s.foldIdx++
	s.split = SplitTrain
	s.loadQueue()
	return true
}

// Reset rewinds the current split, e.g. for another training epoch.
func (s *FoldSampler) Reset() {
	s.pos = 0
}

func (s *FoldSampler) NumFolds() int {
	return len(s.folds)
}

// NumSamples is the number of distinct sample ids across all folds of
// one pass.
func (s *FoldSampler) NumSamples() int {
	return s.numSamples
}

func (s *FoldSampler) FoldIndex() int {
	return s.foldIdx
}

// CurrentFold exposes the id partition of the fold being iterated.
func (s *FoldSampler) CurrentFold() Fold {
	return s.folds[s.foldIdx]
}

// Folds exposes every fold partition, e.g. for a dry-run preview.
func (s *FoldSampler) Folds() []Fold {
	return s.folds
}
