package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"call-detection/dataset"
	"call-detection/db"

	"github.com/joho/godotenv"
)

func main() {
	dbPath := flag.String("db", filepath.Join("tmp", "samples.sqlite"), "Snippet store to append to")
	outDir := flag.String("outdir", "", "Directory for snippet spectrograms (default: alongside the store)")
	site := flag.String("site", "", "Recording site stored with every snippet (default: derived from each file name)")
	width := flag.Float64("width", dataset.DefaultSnippetWidthSecs, "Snippet width in seconds")
	overlap := flag.Float64("overlap", -1, "Minimum call overlap as percent of the window for a positive label (negative accepts any overlap)")
	dir := flag.String("dir", "", "Chop every *_spectrogram.json in this directory")
	labelDir := flag.String("labeldir", "", "Directory holding <root>.txt label files for -dir mode")
	flag.Parse()

	if *dir == "" && flag.NArg() == 0 {
		log.Fatal("Usage: chop_spectrograms [options] <spectrogram.json[:labels.txt]> ...\n" +
			"   or: chop_spectrograms [options] -dir <spectrogram-dir> [-labeldir <label-dir>]")
	}

	_ = godotenv.Load()

	store, err := db.NewSnippetStore(*dbPath)
	if err != nil {
		log.Fatalf("failed to open snippet store: %v", err)
	}
	defer store.Close()

	counter, err := db.NewSampleCounter(store)
	if err != nil {
		log.Fatalf("failed to seed sample counter: %v", err)
	}

	cfg := dataset.DefaultChopperConfig()
	cfg.SnippetWidthSecs = *width
	cfg.Site = *site
	if *outDir != "" {
		cfg.OutDir = *outDir
	} else {
		cfg.OutDir = filepath.Dir(*dbPath)
	}
	if *overlap >= 0 {
		cfg.MinRequiredOverlap = overlap
	}

	chopper, err := dataset.NewChopper(store, counter, cfg)
	if err != nil {
		log.Fatalf("bad chopper configuration: %v", err)
	}

	total := 0
	if *dir != "" {
		total, err = chopper.ChopDir(*dir, *labelDir)
		if err != nil {
			log.Fatalf("failed to chop %s: %v", *dir, err)
		}
	} else {
		for _, arg := range flag.Args() {
			spectrogramPath, labelPath := splitPair(arg)
			snips, err := chopper.ChopOne(spectrogramPath, labelPath)
			if err != nil {
				log.Fatalf("failed to chop %s: %v", spectrogramPath, err)
			}
			log.Printf("%s: %d snippets\n", filepath.Base(spectrogramPath), len(snips))
			total += len(snips)
		}
	}

	count, err := store.CountSamples()
	if err != nil {
		log.Fatalf("failed to count samples: %v", err)
	}
	fmt.Printf("Added %d snippets; store now holds %d\n", total, count)
}

// splitPair separates a "spectrogram.json:labels.txt" argument; a bare
// path carries no labels.
func splitPair(arg string) (string, string) {
	if idx := strings.LastIndex(arg, ":"); idx > 0 {
		return arg[:idx], arg[idx+1:]
	}
	return arg, ""
}
