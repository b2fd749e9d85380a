package btree

import (
	"github.com/ngina-labs/btreestore/internal/header"
	"github.com/ngina-labs/btreestore/internal/node"
)

// Erase removes every element equal to key (at most one for unique
// variants) and returns the number erased.
func (t *Tree[K, V]) Erase(key K) (int, error) {
	if err := t.checkOpen(); err != nil {
		return 0, err
	}
	if t.readOnly {
		return 0, ErrReadOnly
	}
	erased := 0
	for {
		path, leaf, err := t.descendPath(key)
		if err != nil {
			return erased, err
		}
		idx := t.leafIndex(leaf.page(), key, lowerBoundMode)
		if idx >= leaf.count() || t.cmp(t.keyCodec.Decode(t.geom.LeafKey(leaf.page(), idx)), key) != 0 {
			t.unpin(leaf)
			return erased, nil
		}
		cnt := t.geom.RemoveLeafElem(leaf.page(), leaf.count(), idx)
		node.SetCount(leaf.page(), uint16(cnt))
		leaf.dirty()
		t.hdr.ElementCount--
		erased++
		t.gen++
		if err := t.fixUnderflow(path, leaf); err != nil {
			return erased, err
		}
		if t.unique() {
			return erased, nil
		}
	}
}

// EraseIter removes the element it refers to and returns an iterator to
// its successor. it must be valid and unmutated since it was obtained;
// otherwise EraseIter fails-with ErrInvalidIterator (spec.md §9 open
// question), rather than guessing at stale-pointer semantics.
func (t *Tree[K, V]) EraseIter(it *Iterator[K, V]) (*Iterator[K, V], error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if t.readOnly {
		return nil, ErrReadOnly
	}
	if it == nil || it.leaf == nil || it.gen != t.gen {
		return nil, ErrInvalidIterator
	}

	var succKey K
	haveSucc := false
	if it.idx+1 < it.leaf.count() {
		succKey = t.keyCodec.Decode(t.geom.LeafKey(it.leaf.page(), it.idx+1))
		haveSucc = true
	} else {
		nxt := node.NextLeaf(it.leaf.page())
		if nxt != header.NoPage {
			nn, err := t.readNode(nxt)
			if err != nil {
				return nil, err
			}
			if nn.count() > 0 {
				succKey = t.keyCodec.Decode(t.geom.LeafKey(nn.page(), 0))
				haveSucc = true
			}
			t.unpin(nn)
		}
	}

	key := t.keyCodec.Decode(t.geom.LeafKey(it.leaf.page(), it.idx))
	path, tmpLeaf, err := t.descendPath(key)
	if err != nil {
		return nil, err
	}
	t.unpin(tmpLeaf) // shares the same frame as it.leaf; balance descendPath's pin

	leaf := it.leaf
	idx := it.idx
	it.leaf = nil

	cnt := t.geom.RemoveLeafElem(leaf.page(), leaf.count(), idx)
	node.SetCount(leaf.page(), uint16(cnt))
	leaf.dirty()
	t.hdr.ElementCount--
	t.gen++

	if err := t.fixUnderflow(path, leaf); err != nil {
		return nil, err
	}

	if !haveSucc {
		return t.End(), nil
	}
	return t.LowerBound(succKey)
}

// fixUnderflow restores min-fill at n (already pinned) and, if n is the
// tree root, handles root shrinkage; it consumes n's pin.
func (t *Tree[K, V]) fixUnderflow(path []pathStep, n *nodeHandle) error {
	if len(path) == 0 {
		if n.isLeaf() {
			t.unpin(n)
			return nil
		}
		if n.count() == 0 {
			child := node.LeadingChild(n.page())
			t.hdr.RootPageID = child
			t.hdr.RootLevel--
			id := n.id()
			t.unpin(n)
			return t.pushFree(id)
		}
		t.unpin(n)
		return nil
	}

	minFill := t.geom.MinLeaf
	if !n.isLeaf() {
		minFill = t.geom.MinBranch
	}
	if n.count() >= minFill {
		t.unpin(n)
		return nil
	}

	last := path[len(path)-1]
	rest := path[:len(path)-1]
	parent, err := t.readNode(last.id)
	if err != nil {
		t.unpin(n)
		return err
	}
	myIdx := last.idx

	var leftSib, rightSib *nodeHandle
	if myIdx > 0 {
		leftSib, err = t.readNode(t.geom.Child(parent.page(), myIdx-1))
		if err != nil {
			t.unpin(n)
			t.unpin(parent)
			return err
		}
	}
	if myIdx < parent.count() {
		rightSib, err = t.readNode(t.geom.Child(parent.page(), myIdx+1))
		if err != nil {
			t.unpin(n)
			t.unpin(parent)
			if leftSib != nil {
				t.unpin(leftSib)
			}
			return err
		}
	}

	if n.isLeaf() {
		switch {
		case leftSib != nil && leftSib.count() > t.geom.MinLeaf:
			t.borrowLeafFromLeft(parent, myIdx, leftSib, n)
			t.unpin(leftSib)
			t.unpinIf(rightSib)
			t.unpin(n)
			t.unpin(parent)
			return nil

		case rightSib != nil && rightSib.count() > t.geom.MinLeaf:
			t.borrowLeafFromRight(parent, myIdx, n, rightSib)
			t.unpin(rightSib)
			t.unpinIf(leftSib)
			t.unpin(n)
			t.unpin(parent)
			return nil

		case leftSib != nil:
			if err := t.mergeLeaves(leftSib, n); err != nil {
				t.unpin(n)
				t.unpin(parent)
				t.unpinIf(rightSib)
				return err
			}
			removedID := n.id()
			t.unpin(n)
			t.unpinIf(rightSib)
			cnt := t.geom.RemoveBranchEntry(parent.page(), parent.count(), myIdx-1)
			node.SetCount(parent.page(), uint16(cnt))
			parent.dirty()
			t.unpin(leftSib)
			if err := t.pushFree(removedID); err != nil {
				t.unpin(parent)
				return err
			}
			return t.fixUnderflow(rest, parent)

		default:
			if err := t.mergeLeaves(n, rightSib); err != nil {
				t.unpin(n)
				t.unpin(parent)
				t.unpinIf(rightSib)
				return err
			}
			removedID := rightSib.id()
			t.unpin(rightSib)
			cnt := t.geom.RemoveBranchEntry(parent.page(), parent.count(), myIdx)
			node.SetCount(parent.page(), uint16(cnt))
			parent.dirty()
			t.unpin(n)
			if err := t.pushFree(removedID); err != nil {
				t.unpin(parent)
				return err
			}
			return t.fixUnderflow(rest, parent)
		}
	}

	switch {
	case leftSib != nil && leftSib.count() > t.geom.MinBranch:
		t.borrowBranchFromLeft(parent, myIdx, leftSib, n)
		t.unpin(leftSib)
		t.unpinIf(rightSib)
		t.unpin(n)
		t.unpin(parent)
		return nil

	case rightSib != nil && rightSib.count() > t.geom.MinBranch:
		t.borrowBranchFromRight(parent, myIdx, n, rightSib)
		t.unpin(rightSib)
		t.unpinIf(leftSib)
		t.unpin(n)
		t.unpin(parent)
		return nil

	case leftSib != nil:
		t.mergeBranches(parent, myIdx-1, leftSib, n)
		removedID := n.id()
		t.unpin(n)
		t.unpinIf(rightSib)
		cnt := t.geom.RemoveBranchEntry(parent.page(), parent.count(), myIdx-1)
		node.SetCount(parent.page(), uint16(cnt))
		parent.dirty()
		t.unpin(leftSib)
		if err := t.pushFree(removedID); err != nil {
			t.unpin(parent)
			return err
		}
		return t.fixUnderflow(rest, parent)

	default:
		t.mergeBranches(parent, myIdx, n, rightSib)
		removedID := rightSib.id()
		t.unpin(rightSib)
		cnt := t.geom.RemoveBranchEntry(parent.page(), parent.count(), myIdx)
		node.SetCount(parent.page(), uint16(cnt))
		parent.dirty()
		t.unpin(n)
		if err := t.pushFree(removedID); err != nil {
			t.unpin(parent)
			return err
		}
		return t.fixUnderflow(rest, parent)
	}
}

func (t *Tree[K, V]) unpinIf(n *nodeHandle) {
	if n != nil {
		t.unpin(n)
	}
}

// --- leaf borrow/merge -------------------------------------------------------

func (t *Tree[K, V]) borrowLeafFromLeft(parent *nodeHandle, myIdx int, left, n *nodeHandle) {
	li := left.count() - 1
	k := append([]byte(nil), t.geom.LeafKey(left.page(), li)...)
	v := append([]byte(nil), t.geom.LeafValue(left.page(), li)...)
	cnt := t.geom.RemoveLeafElem(left.page(), left.count(), li)
	node.SetCount(left.page(), uint16(cnt))
	left.dirty()

	cnt2 := t.geom.InsertLeafElem(n.page(), n.count(), 0, k, v)
	node.SetCount(n.page(), uint16(cnt2))
	n.dirty()

	t.geom.SetBranchEntry(parent.page(), myIdx-1, k, t.geom.BranchChild(parent.page(), myIdx-1))
	parent.dirty()
}

func (t *Tree[K, V]) borrowLeafFromRight(parent *nodeHandle, myIdx int, n, right *nodeHandle) {
	k := append([]byte(nil), t.geom.LeafKey(right.page(), 0)...)
	v := append([]byte(nil), t.geom.LeafValue(right.page(), 0)...)
	cnt := t.geom.RemoveLeafElem(right.page(), right.count(), 0)
	node.SetCount(right.page(), uint16(cnt))
	right.dirty()

	cnt2 := t.geom.InsertLeafElem(n.page(), n.count(), n.count(), k, v)
	node.SetCount(n.page(), uint16(cnt2))
	n.dirty()

	newSep := append([]byte(nil), t.geom.LeafKey(right.page(), 0)...)
	t.geom.SetBranchEntry(parent.page(), myIdx, newSep, t.geom.BranchChild(parent.page(), myIdx))
	parent.dirty()
}

func (t *Tree[K, V]) mergeLeaves(left, right *nodeHandle) error {
	base := left.count()
	for i := 0; i < right.count(); i++ {
		t.geom.SetLeafElem(left.page(), base+i, t.geom.LeafKey(right.page(), i), t.geom.LeafValue(right.page(), i))
	}
	node.SetCount(left.page(), uint16(base+right.count()))
	left.dirty()

	nextID := node.NextLeaf(right.page())
	node.SetNextLeaf(left.page(), nextID)
	if nextID != header.NoPage {
		nn, err := t.readNode(nextID)
		if err != nil {
			return err
		}
		node.SetPrevLeaf(nn.page(), left.id())
		nn.dirty()
		t.unpin(nn)
	} else {
		t.hdr.LastLeafID = left.id()
	}
	return nil
}

// --- branch borrow/merge -----------------------------------------------------

func (t *Tree[K, V]) borrowBranchFromLeft(parent *nodeHandle, myIdx int, left, n *nodeHandle) {
	li := left.count() - 1
	borrowedKey := append([]byte(nil), t.geom.BranchKey(left.page(), li)...)
	borrowedChild := t.geom.BranchChild(left.page(), li)
	cnt := t.geom.RemoveBranchEntry(left.page(), left.count(), li)
	node.SetCount(left.page(), uint16(cnt))
	left.dirty()

	parentSep := append([]byte(nil), t.geom.BranchKey(parent.page(), myIdx-1)...)
	oldLeading := node.LeadingChild(n.page())
	cnt2 := t.geom.InsertBranchEntry(n.page(), n.count(), 0, parentSep, oldLeading)
	node.SetCount(n.page(), uint16(cnt2))
	node.SetLeadingChild(n.page(), borrowedChild)
	n.dirty()

	t.geom.SetBranchEntry(parent.page(), myIdx-1, borrowedKey, t.geom.BranchChild(parent.page(), myIdx-1))
	parent.dirty()
}

func (t *Tree[K, V]) borrowBranchFromRight(parent *nodeHandle, myIdx int, n, right *nodeHandle) {
	parentSep := append([]byte(nil), t.geom.BranchKey(parent.page(), myIdx)...)
	rightLeading := node.LeadingChild(right.page())

	cnt := t.geom.InsertBranchEntry(n.page(), n.count(), n.count(), parentSep, rightLeading)
	node.SetCount(n.page(), uint16(cnt))
	n.dirty()

	newSep := append([]byte(nil), t.geom.BranchKey(right.page(), 0)...)
	newLeading := t.geom.BranchChild(right.page(), 0)
	cnt2 := t.geom.RemoveBranchEntry(right.page(), right.count(), 0)
	node.SetCount(right.page(), uint16(cnt2))
	node.SetLeadingChild(right.page(), newLeading)
	right.dirty()

	t.geom.SetBranchEntry(parent.page(), myIdx, newSep, t.geom.BranchChild(parent.page(), myIdx))
	parent.dirty()
}

// mergeBranches pulls the separator at parent entry sepIdx down between
// left and right, combining right's contents into left (spec §4.5:
// "Merging removes the separator key from the parent... for branches,
// pulls the separator down").
func (t *Tree[K, V]) mergeBranches(parent *nodeHandle, sepIdx int, left, right *nodeHandle) {
	sepKey := append([]byte(nil), t.geom.BranchKey(parent.page(), sepIdx)...)
	base := left.count()
	t.geom.SetBranchEntry(left.page(), base, sepKey, node.LeadingChild(right.page()))
	for i := 0; i < right.count(); i++ {
		t.geom.SetBranchEntry(left.page(), base+1+i, t.geom.BranchKey(right.page(), i), t.geom.BranchChild(right.page(), i))
	}
	node.SetCount(left.page(), uint16(base+1+right.count()))
	left.dirty()
}
