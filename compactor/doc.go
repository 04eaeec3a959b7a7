// Package compactor merges sorted runs of records into a single globally
// sorted, duplicate-free stream.
//
// Each input sequence must be ascending and free of adjacent duplicates. A
// value may still appear in several sequences; the compactor writes it once.
// Merging uses a loser tree, so each record costs O(log n) comparisons for n
// sequences, and memory stays constant regardless of input size.
//
// Basic usage:
//
//	out, err := os.Create("distinct.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer out.Close()
//
//	n, err := compactor.Compact(out, run1, run2, run3)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The compaction process ensures that:
//   - Records are written in strictly increasing order
//   - A value present in any number of runs is written exactly once
//   - Read failures of any run abort the compaction with an error
package compactor
