package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"call-detection/dataset"
	"call-detection/db"
)

func main() {
	dbPath := flag.String("db", filepath.Join("tmp", "samples.sqlite"), "Snippet store to sample from")
	splits := flag.Int("splits", 3, "Number of cross-validation splits")
	repeats := flag.Int("repeats", 0, "Extra passes with fresh shuffles")
	seed := flag.Int64("seed", 42, "Shuffle seed")
	shuffle := flag.Bool("shuffle", true, "Shuffle sample order before splitting")
	stratified := flag.Bool("stratified", false, "Balance each training queue to equal label counts")
	flag.Parse()

	store, err := db.NewSnippetStore(*dbPath)
	if err != nil {
		log.Fatalf("failed to open snippet store: %v", err)
	}
	defer store.Close()

	cfg := dataset.FoldConfig{
		NSplits:    *splits,
		NRepeats:   *repeats,
		Shuffle:    *shuffle,
		Seed:       *seed,
		Stratified: *stratified,
	}
	sampler, err := dataset.NewFoldSampler(store, cfg)
	if err != nil {
		log.Fatalf("failed to build fold sampler: %v", err)
	}

	fmt.Printf("%d samples across %d folds\n\n", sampler.NumSamples(), sampler.NumFolds())

	for {
		trainTotal, trainPos := drainSplit(sampler)
		sampler.SwitchSplit(dataset.SplitValidation)
		valTotal, valPos := drainSplit(sampler)
		if err := sampler.Err(); err != nil {
			log.Fatalf("fold %d: %v", sampler.FoldIndex(), err)
		}

		fmt.Printf("fold %2d: train %3d (%d calls) / validation %3d (%d calls)\n",
			sampler.FoldIndex(), trainTotal, trainPos, valTotal, valPos)

		if !sampler.NextFold() {
			break
		}
	}
}

// drainSplit walks the current split to its end, counting samples and
// positive labels.
func drainSplit(sampler *dataset.FoldSampler) (total, positives int) {
	for sampler.Next() {
		total++
		if sampler.Sample().Label == 1 {
			positives++
		}
	}
	return total, positives
}
