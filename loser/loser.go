// Package loser Taken from talk: https://github.com/bboreham/go-loser/blob/iter/tree.go.
// Thank you Bryan
package loser

import (
	"iter"
)

type Sequence[E any] interface {
	All() iter.Seq[E]
}

// New builds a tree merging sequences, each of which must already be
// ordered by less.
func New[E any](sequences []Sequence[E], less func(E, E) bool) *Tree[E] {
	return &Tree[E]{
		nodes:     make([]node[E], len(sequences)*2),
		sequences: sequences,
		less:      less,
	}
}

// A loser tree is a binary tree laid out such that nodes N and N+1 have parent N/2.
// We store M leaf nodes in positions M...2M-1, and M-1 internal nodes in positions 1..M-1.
// Node 0 is a special node, containing the winner of the contest.
type Tree[E any] struct {
	nodes     []node[E]
	sequences []Sequence[E]
	less      func(E, E) bool
}

type node[E any] struct {
	index int              // The loser for internal nodes, the winner for node 0, itself for leaves.
	value E                // Value copied from the loser node, or winner for node 0.
	done  bool             // The sequence behind index is exhausted; value is meaningless.
	next  func() (E, bool) // Only populated for leaf nodes.
}

// beats reports whether a wins a game against b. An exhausted entry loses to
// everything, so no sentinel value is needed.
func (t *Tree[E]) beats(a, b *node[E]) bool {
	return !a.done && (b.done || t.less(a.value, b.value))
}

func (t *Tree[E]) moveNext(index int) {
	n := &t.nodes[index]
	v, ok := n.next()
	n.value, n.done = v, !ok
}

// All yields the merged sequence. It may be ranged over once.
func (t *Tree[E]) All() iter.Seq[E] {
	return func(yield func(E) bool) {
		if len(t.nodes) == 0 {
			return
		}
		m := len(t.sequences)
		for i, s := range t.sequences {
			next, stop := iter.Pull(s.All())
			//nolint:gocritic // is not a leak.
			defer stop()
			leaf := &t.nodes[i+m]
			leaf.index = i + m
			leaf.next = next
			t.moveNext(i + m) // Call next() on each item to get the first value.
		}
		t.initialize()
		for !t.nodes[0].done && yield(t.nodes[0].value) {
			winner := t.nodes[0].index
			t.moveNext(winner)
			t.replayGames(winner)
		}
	}
}

func (t *Tree[E]) initialize() {
	winner := t.playGame(1)
	w := &t.nodes[winner]
	t.nodes[0] = node[E]{index: winner, value: w.value, done: w.done}
}

// Find the winner at position pos; if it is a non-leaf node, store the loser.
// pos must be >= 1 and < len(t.nodes).
func (t *Tree[E]) playGame(pos int) int {
	nodes := t.nodes
	if pos >= len(nodes)/2 {
		return pos
	}
	left := t.playGame(pos * 2)
	right := t.playGame(pos*2 + 1)
	loser, winner := left, right
	if t.beats(&nodes[left], &nodes[right]) {
		loser, winner = right, left
	}
	nodes[pos].index = loser
	nodes[pos].value = nodes[loser].value
	nodes[pos].done = nodes[loser].done
	return winner
}

// Starting at pos, which is a winner, re-consider all values up to the root.
func (t *Tree[E]) replayGames(pos int) {
	nodes := t.nodes
	winner := node[E]{index: pos, value: nodes[pos].value, done: nodes[pos].done}
	for n := parent(pos); n != 0; n = parent(n) {
		stored := &nodes[n]
		if t.beats(stored, &winner) {
			// Record the old winner as the loser here; the old loser is the new winner.
			stored.index, winner.index = winner.index, stored.index
			stored.value, winner.value = winner.value, stored.value
			stored.done, winner.done = winner.done, stored.done
		}
	}
	nodes[0] = winner
}

func parent(i int) int { return i >> 1 }
