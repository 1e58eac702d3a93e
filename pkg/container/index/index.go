// Package index implements a densely packed, sorted array of elements with
// two comparators supplied at construction: one comparing two elements
// (used to keep the array sorted) and one comparing a search key against an
// element (used for lookup). It underpins the URL Space trie's per-node
// ordered constraint spec list and any other structure needing sorted
// insertion with duplicate-key ranges.
package index

import "sort"

// ElementCompare orders two elements. It must return <0, 0 or >0, and must
// agree with KeyCompare: KeyCompare(KeyOf(a), b) must have the same sign as
// ElementCompare(a, b) when KeyOf(a) is the natural key of a.
type ElementCompare[E any] func(a, b E) int

// KeyCompare orders a search key against an element.
type KeyCompare[E any, K any] func(key K, el E) int

// Index is a sorted dynamic array of elements of type E, searchable by a
// key of type K distinct from E (e.g. the URL Space stores constraint
// entries searched by their Constraint spec).
type Index[E any, K any] struct {
	els     []E
	cmpEls  ElementCompare[E]
	cmpKey  KeyCompare[E, K]
}

// New creates an Index with initial capacity inc (0 is fine; the backing
// slice grows by doubling as needed).
func New[E any, K any](inc int, cmpEls ElementCompare[E], cmpKey KeyCompare[E, K]) *Index[E, K] {
	return &Index[E, K]{
		els:    make([]E, 0, inc),
		cmpEls: cmpEls,
		cmpKey: cmpKey,
	}
}

// Len returns the number of elements currently stored.
func (ix *Index[E, K]) Len() int { return len(ix.els) }

// At returns the element at position i. i must be in [0, Len()).
func (ix *Index[E, K]) At(i int) E { return ix.els[i] }

// Slice returns the backing elements in sorted order. The returned slice
// aliases the Index's storage and must not be mutated by the caller.
func (ix *Index[E, K]) Slice() []E { return ix.els }

// Add inserts el at the position that keeps the array sorted by cmpEls,
// using binary search to find the insertion point (O(log n)) followed by a
// shift (O(n)).
func (ix *Index[E, K]) Add(el E) int {
	i := sort.Search(len(ix.els), func(i int) bool {
		return ix.cmpEls(ix.els[i], el) >= 0
	})
	ix.els = append(ix.els, el)
	copy(ix.els[i+1:], ix.els[i:])
	ix.els[i] = el
	return i
}

// Del removes the first element equal to el under cmpEls (O(n) comparison
// plus shift). Reports whether an element was removed.
func (ix *Index[E, K]) Del(el E) bool {
	i := sort.Search(len(ix.els), func(i int) bool {
		return ix.cmpEls(ix.els[i], el) >= 0
	})
	for i < len(ix.els) && ix.cmpEls(ix.els[i], el) == 0 {
		// cmpEls only orders; confirm identity isn't required by the
		// spec, so the first match in the equal-range is removed.
		ix.removeAt(i)
		return true
	}
	return false
}

// DelAt removes the element at position i.
func (ix *Index[E, K]) DelAt(i int) {
	ix.removeAt(i)
}

func (ix *Index[E, K]) removeAt(i int) {
	copy(ix.els[i:], ix.els[i+1:])
	var zero E
	ix.els[len(ix.els)-1] = zero
	ix.els = ix.els[:len(ix.els)-1]
}

// Find returns the first element matching key under cmpKey, and whether
// one was found.
func (ix *Index[E, K]) Find(key K) (E, bool) {
	i, j := ix.equalRange(key)
	if i == j {
		var zero E
		return zero, false
	}
	return ix.els[i], true
}

// FindMultiple returns every element matching key under cmpKey, expanding
// the binary-search hit to its full equal-range. The returned slice aliases
// the Index's storage.
func (ix *Index[E, K]) FindMultiple(key K) []E {
	i, j := ix.equalRange(key)
	return ix.els[i:j]
}

// equalRange returns [i, j) spanning every element equal to key under
// cmpKey.
func (ix *Index[E, K]) equalRange(key K) (int, int) {
	lo := sort.Search(len(ix.els), func(i int) bool {
		return ix.cmpKey(key, ix.els[i]) <= 0
	})
	hi := sort.Search(len(ix.els), func(i int) bool {
		return ix.cmpKey(key, ix.els[i]) < 0
	})
	if lo > hi {
		return lo, lo
	}
	return lo, hi
}

// Dup returns a shallow copy of the Index: a new backing array, same
// element values, same comparators.
func (ix *Index[E, K]) Dup() *Index[E, K] {
	cp := make([]E, len(ix.els))
	copy(cp, ix.els)
	return &Index[E, K]{els: cp, cmpEls: ix.cmpEls, cmpKey: ix.cmpKey}
}

// Trunc discards every element beyond position n.
func (ix *Index[E, K]) Trunc(n int) {
	if n < len(ix.els) {
		ix.els = ix.els[:n]
	}
}

// Destroy releases the backing array. The Index must not be used
// afterwards.
func (ix *Index[E, K]) Destroy() {
	ix.els = nil
}
