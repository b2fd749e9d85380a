package btree

import (
	"fmt"

	"github.com/ngina-labs/btreestore/internal/header"
	"github.com/ngina-labs/btreestore/internal/node"
)

// searchMode selects which of the two binary-search walks described in
// spec §4.5 a descent performs.
type searchMode int

const (
	lowerBoundMode searchMode = iota // first key >= target
	upperBoundMode                   // first key > target
)

// branchIndex finds the child to descend into: the first separator
// satisfying mode's bound, or count if none does (descend the last child).
func (t *Tree[K, V]) branchIndex(page []byte, key K, mode searchMode) int {
	count := int(node.Count(page))
	lo, hi := 0, count
	for lo < hi {
		mid := (lo + hi) / 2
		k := t.keyCodec.Decode(t.geom.BranchKey(page, mid))
		var goRight bool
		if mode == lowerBoundMode {
			goRight = t.cmp(k, key) < 0
		} else {
			goRight = t.cmp(k, key) <= 0
		}
		if goRight {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// leafIndex finds the first element in a leaf satisfying mode's bound.
func (t *Tree[K, V]) leafIndex(page []byte, key K, mode searchMode) int {
	count := int(node.Count(page))
	lo, hi := 0, count
	for lo < hi {
		mid := (lo + hi) / 2
		k := t.keyCodec.Decode(t.geom.LeafKey(page, mid))
		var goRight bool
		if mode == lowerBoundMode {
			goRight = t.cmp(k, key) < 0
		} else {
			goRight = t.cmp(k, key) <= 0
		}
		if goRight {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// descend walks root to leaf under mode, pinning only the leaf on return.
func (t *Tree[K, V]) descend(key K, mode searchMode) (*nodeHandle, error) {
	n, err := t.readNode(t.hdr.RootPageID)
	if err != nil {
		return nil, err
	}
	for !n.isLeaf() {
		idx := t.branchIndex(n.page(), key, mode)
		childID := t.geom.Child(n.page(), idx)
		if childID == node.NoPage || childID >= t.mgr.PageCount() {
			t.unpin(n)
			return nil, fmt.Errorf("%w: branch %d: bad child pointer at index %d", ErrCorrupt, n.id(), idx)
		}
		child, err := t.readNode(childID)
		t.unpin(n)
		if err != nil {
			return nil, err
		}
		n = child
	}
	return n, nil
}

// Find returns an iterator to the first element equal to key, or End().
func (t *Tree[K, V]) Find(key K) (*Iterator[K, V], error) {
	it, err := t.LowerBound(key)
	if err != nil {
		return nil, err
	}
	if it.Valid() && t.cmp(it.Key(), key) == 0 {
		return it, nil
	}
	it.Close()
	return t.End(), nil
}

// LowerBound returns an iterator to the first element not less than key.
func (t *Tree[K, V]) LowerBound(key K) (*Iterator[K, V], error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	leaf, err := t.descend(key, lowerBoundMode)
	if err != nil {
		return nil, err
	}
	return t.leafIterAt(leaf, t.leafIndex(leaf.page(), key, lowerBoundMode))
}

// UpperBound returns an iterator to the first element greater than key.
func (t *Tree[K, V]) UpperBound(key K) (*Iterator[K, V], error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	leaf, err := t.descend(key, upperBoundMode)
	if err != nil {
		return nil, err
	}
	return t.leafIterAt(leaf, t.leafIndex(leaf.page(), key, upperBoundMode))
}

// leafIterAt builds an iterator at (leaf, idx), rolling forward to the
// next leaf when idx lands past leaf's last element.
func (t *Tree[K, V]) leafIterAt(leaf *nodeHandle, idx int) (*Iterator[K, V], error) {
	if idx < leaf.count() {
		return &Iterator[K, V]{t: t, leaf: leaf, idx: idx, gen: t.gen}, nil
	}
	next := node.NextLeaf(leaf.page())
	t.unpin(leaf)
	if next == header.NoPage {
		return t.End(), nil
	}
	n, err := t.readNode(next)
	if err != nil {
		return nil, err
	}
	return &Iterator[K, V]{t: t, leaf: n, idx: 0, gen: t.gen}, nil
}

// Count returns the number of elements equal to key.
func (t *Tree[K, V]) Count(key K) (int, error) {
	it, err := t.LowerBound(key)
	if err != nil {
		return 0, err
	}
	n := 0
	for it.Valid() && t.cmp(it.Key(), key) == 0 {
		n++
		if err := it.Next(); err != nil {
			it.Close()
			return n, err
		}
	}
	it.Close()
	return n, nil
}

// EqualRange returns [lower_bound(key), upper_bound(key)).
func (t *Tree[K, V]) EqualRange(key K) (lo, hi *Iterator[K, V], err error) {
	lo, err = t.LowerBound(key)
	if err != nil {
		return nil, nil, err
	}
	hi, err = t.UpperBound(key)
	if err != nil {
		lo.Close()
		return nil, nil, err
	}
	return lo, hi, nil
}

// Begin returns an iterator to the first element in key order.
func (t *Tree[K, V]) Begin() (*Iterator[K, V], error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if t.hdr.FirstLeafID == header.NoPage {
		return t.End(), nil
	}
	n, err := t.readNode(t.hdr.FirstLeafID)
	if err != nil {
		return nil, err
	}
	if n.count() == 0 {
		t.unpin(n)
		return t.End(), nil
	}
	return &Iterator[K, V]{t: t, leaf: n, idx: 0, gen: t.gen}, nil
}

// End returns the past-the-end iterator; Valid() is false for it.
func (t *Tree[K, V]) End() *Iterator[K, V] {
	return &Iterator[K, V]{t: t, gen: t.gen}
}

// RBegin returns an iterator to the last element (the first element
// visited by repeated Prev from End, reversed).
func (t *Tree[K, V]) RBegin() (*Iterator[K, V], error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	it := t.End()
	if err := it.Prev(); err != nil {
		return nil, err
	}
	return it, nil
}
