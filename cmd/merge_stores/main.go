package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"call-detection/db"
)

func main() {
	dst := flag.String("dst", "", "Destination store (created when missing)")
	tables := flag.String("tables", "", "Comma-separated tables to copy (default: every table in each source)")
	flag.Parse()

	if *dst == "" || flag.NArg() == 0 {
		log.Fatal("Usage: merge_stores -dst <merged.sqlite> [-tables Samples,...] <source.sqlite> ...")
	}

	var tableList []string
	if *tables != "" {
		for _, table := range strings.Split(*tables, ",") {
			if table = strings.TrimSpace(table); table != "" {
				tableList = append(tableList, table)
			}
		}
	}

	sources := flag.Args()
	log.Printf("Merging %d stores into %s\n", len(sources), *dst)

	if err := db.MergeStores(*dst, sources, tableList); err != nil {
		log.Fatalf("merge failed: %v", err)
	}

	store, err := db.NewSnippetStore(*dst)
	if err != nil {
		log.Fatalf("failed to reopen merged store: %v", err)
	}
	defer store.Close()

	count, err := store.CountSamples()
	if err != nil {
		log.Fatalf("failed to count samples: %v", err)
	}
	fmt.Printf("Merged store holds %d samples\n", count)
}
