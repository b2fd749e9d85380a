package btree

import (
	"github.com/ngina-labs/btreestore/internal/header"
	"github.com/ngina-labs/btreestore/internal/node"
)

// Iterator holds a pinned leaf and an element index within it (spec
// §4.5's "forward iterator holds (page_handle_to_leaf, element_index)").
// It carries no stability guarantee across mutation of the owning tree;
// gen is used only to detect the narrower case of EraseIter on a stale
// iterator.
type Iterator[K any, V any] struct {
	t    *Tree[K, V]
	leaf *nodeHandle // nil means past-the-end
	idx  int
	gen  uint64
}

// Valid reports whether the iterator refers to an element.
func (it *Iterator[K, V]) Valid() bool { return it.leaf != nil }

// Key returns the element's key. Calling it on an invalid iterator panics,
// matching dereferencing end() in the source design.
func (it *Iterator[K, V]) Key() K {
	return it.t.keyCodec.Decode(it.t.geom.LeafKey(it.leaf.page(), it.idx))
}

// Value returns the element's mapped value (the zero value for key-only
// variants).
func (it *Iterator[K, V]) Value() V {
	if it.t.keyOnly() {
		var zero V
		return zero
	}
	return it.t.valCodec.Decode(it.t.geom.LeafValue(it.leaf.page(), it.idx))
}

// Close releases the iterator's pin on its leaf, if any. Iterating to
// invalidity via Next/Prev already releases the pin; Close is only needed
// when abandoning a still-valid iterator early.
func (it *Iterator[K, V]) Close() {
	if it.leaf != nil {
		it.t.unpin(it.leaf)
		it.leaf = nil
	}
}

// Next advances to the following element in key order.
func (it *Iterator[K, V]) Next() error {
	if it.leaf == nil {
		return nil
	}
	it.idx++
	if it.idx < it.leaf.count() {
		return nil
	}
	next := node.NextLeaf(it.leaf.page())
	it.t.unpin(it.leaf)
	it.leaf = nil
	if next == header.NoPage {
		return nil
	}
	n, err := it.t.readNode(next)
	if err != nil {
		return err
	}
	it.leaf = n
	it.idx = 0
	return nil
}

// Prev moves to the preceding element; from End() it lands on the last
// element of the last leaf.
func (it *Iterator[K, V]) Prev() error {
	t := it.t
	if it.leaf == nil {
		if t.hdr.LastLeafID == header.NoPage {
			return nil
		}
		n, err := t.readNode(t.hdr.LastLeafID)
		if err != nil {
			return err
		}
		if n.count() == 0 {
			t.unpin(n)
			return nil
		}
		it.leaf = n
		it.idx = n.count() - 1
		return nil
	}
	if it.idx > 0 {
		it.idx--
		return nil
	}
	prev := node.PrevLeaf(it.leaf.page())
	t.unpin(it.leaf)
	it.leaf = nil
	if prev == header.NoPage {
		return nil
	}
	n, err := t.readNode(prev)
	if err != nil {
		return err
	}
	it.leaf = n
	it.idx = n.count() - 1
	return nil
}
