// Package loser implements a tournament tree (also known as a loser tree) for efficiently
// merging multiple sorted sequences. This implementation is based on the work by Bryan
// Boreham (https://github.com/bboreham/go-loser).
//
// A loser tree is a binary tree structure where each internal node holds the "loser" of
// a comparison between its children, and the root holds the overall "winner". Each
// emitted element costs O(log n) comparisons for n sequences.
//
// Exhausted sequences are tracked with a flag rather than a maximum sentinel value,
// so every value of E, including its maximum, can be merged.
//
// Basic usage:
//
//	tree := loser.New(
//	    []loser.Sequence[uint32]{seq1, seq2, seq3},
//	    func(a, b uint32) bool { return a < b },
//	)
//
//	for v := range tree.All() {
//	    fmt.Println(v)
//	}
//
// Implementation Details:
// The tree is laid out in an array where:
//   - For node N, its children are at positions 2N and 2N+1
//   - Leaf nodes are stored in positions M to 2M-1 (where M is the number of sequences)
//   - Internal nodes are stored in positions 1 to M-1
//   - Node 0 is special, containing the current winner
package loser
