package btree

import (
	"github.com/ngina-labs/btreestore/internal/header"
	"github.com/ngina-labs/btreestore/internal/node"
)

// pathStep records one branch visited on the way down to a leaf: its page
// id and the child slot chosen. Parent/child linkage is never trusted from
// a node's own stored ParentID/ParentIndex fields during insert or erase —
// those are written once at node creation for on-disk format completeness,
// but every operation recomputes ancestry by descending from the root, per
// the "recompute on traversal" guidance for self-referential page content.
type pathStep struct {
	id  uint32
	idx int
}

// descendPath walks root to leaf under upperBoundMode, returning the
// branch path taken (for split/merge propagation) and the pinned leaf. A
// key equal to a separator is looked for right of it, where the split
// that created the separator placed it.
func (t *Tree[K, V]) descendPath(key K) ([]pathStep, *nodeHandle, error) {
	var path []pathStep
	n, err := t.readNode(t.hdr.RootPageID)
	if err != nil {
		return nil, nil, err
	}
	for !n.isLeaf() {
		idx := t.branchIndex(n.page(), key, upperBoundMode)
		childID := t.geom.Child(n.page(), idx)
		path = append(path, pathStep{id: n.id(), idx: idx})
		child, err := t.readNode(childID)
		t.unpin(n)
		if err != nil {
			return nil, nil, err
		}
		n = child
	}
	return path, n, nil
}

// Insert adds key (and, for map variants, value). For unique variants the
// second result reports whether the element was newly inserted (false
// means key already present and the stored value is unchanged). For multi
// variants the new element is inserted after any existing equal keys,
// preserving insertion order among equals.
func (t *Tree[K, V]) Insert(key K, value V) (*Iterator[K, V], bool, error) {
	if err := t.checkOpen(); err != nil {
		return nil, false, err
	}
	if t.readOnly {
		return nil, false, ErrReadOnly
	}
	path, leaf, err := t.descendPath(key)
	if err != nil {
		return nil, false, err
	}

	if t.unique() {
		idx := t.leafIndex(leaf.page(), key, lowerBoundMode)
		if idx < leaf.count() && t.cmp(t.keyCodec.Decode(t.geom.LeafKey(leaf.page(), idx)), key) == 0 {
			return &Iterator[K, V]{t: t, leaf: leaf, idx: idx, gen: t.gen}, false, nil
		}
		return t.insertAt(path, leaf, idx, key, value)
	}

	idx := t.leafIndex(leaf.page(), key, upperBoundMode)
	return t.insertAt(path, leaf, idx, key, value)
}

func (t *Tree[K, V]) insertAt(path []pathStep, leaf *nodeHandle, idx int, key K, value V) (*Iterator[K, V], bool, error) {
	keyBuf := make([]byte, t.geom.KeySize)
	t.keyCodec.Encode(keyBuf, key)
	var valBuf []byte
	if !t.keyOnly() {
		valBuf = make([]byte, t.geom.ValueSize)
		t.valCodec.Encode(valBuf, value)
	}

	if leaf.count() < t.geom.MaxLeaf {
		cnt := t.geom.InsertLeafElem(leaf.page(), leaf.count(), idx, keyBuf, valBuf)
		node.SetCount(leaf.page(), uint16(cnt))
		leaf.dirty()
		t.hdr.ElementCount++
		t.gen++
		return &Iterator[K, V]{t: t, leaf: leaf, idx: idx, gen: t.gen}, true, nil
	}

	target, targetIdx, right, sepKey, err := t.splitAndInsertLeaf(leaf, idx, keyBuf, valBuf)
	if err != nil {
		return nil, false, err
	}
	t.hdr.ElementCount++
	t.gen++

	leftID := leaf.id()
	other := right
	if target == right {
		other = leaf
	}
	if err := t.insertIntoParent(path, leftID, sepKey, right.id()); err != nil {
		t.unpin(target)
		t.unpin(other)
		return nil, false, err
	}
	t.unpin(other)
	return &Iterator[K, V]{t: t, leaf: target, idx: targetIdx, gen: t.gen}, true, nil
}

// splitAndInsertLeaf splits a full leaf and inserts the new element into
// whichever half its sort position lands in, keeping both halves at or
// above min-fill (spec §4.5 "Insert" step 4).
func (t *Tree[K, V]) splitAndInsertLeaf(leaf *nodeHandle, idx int, keyBuf, valBuf []byte) (target *nodeHandle, targetIdx int, right *nodeHandle, sepKey []byte, err error) {
	count := leaf.count()
	type elem struct{ key, val []byte }
	all := make([]elem, 0, count+1)
	for i := 0; i < count; i++ {
		if i == idx {
			all = append(all, elem{keyBuf, valBuf})
		}
		k := append([]byte(nil), t.geom.LeafKey(leaf.page(), i)...)
		v := append([]byte(nil), t.geom.LeafValue(leaf.page(), i)...)
		all = append(all, elem{k, v})
	}
	if idx == count {
		all = append(all, elem{keyBuf, valBuf})
	}

	total := len(all)
	s := (total + 1) / 2

	right, err = t.allocLeaf(node.ParentID(leaf.page()), 0)
	if err != nil {
		return nil, 0, nil, nil, err
	}
	for i := 0; i < s; i++ {
		t.geom.SetLeafElem(leaf.page(), i, all[i].key, all[i].val)
	}
	node.SetCount(leaf.page(), uint16(s))
	for i := s; i < total; i++ {
		t.geom.SetLeafElem(right.page(), i-s, all[i].key, all[i].val)
	}
	node.SetCount(right.page(), uint16(total-s))
	leaf.dirty()
	right.dirty()

	if idx < s {
		target, targetIdx = leaf, idx
	} else {
		target, targetIdx = right, idx-s
	}

	oldNext := node.NextLeaf(leaf.page())
	node.SetNextLeaf(leaf.page(), right.id())
	node.SetPrevLeaf(right.page(), leaf.id())
	node.SetNextLeaf(right.page(), oldNext)
	if oldNext != header.NoPage {
		nn, err2 := t.readNode(oldNext)
		if err2 != nil {
			return nil, 0, nil, nil, err2
		}
		node.SetPrevLeaf(nn.page(), right.id())
		nn.dirty()
		t.unpin(nn)
	} else {
		t.hdr.LastLeafID = right.id()
	}

	sepKey = append([]byte(nil), t.geom.LeafKey(right.page(), 0)...)
	return target, targetIdx, right, sepKey, nil
}

// insertIntoParent propagates a split upward: inserts (sepKey,
// rightChildID) as the new separator between leftChildID and
// rightChildID into the branch at the top of path, recursing (and
// growing the root) as needed.
func (t *Tree[K, V]) insertIntoParent(path []pathStep, leftChildID uint32, sepKey []byte, rightChildID uint32) error {
	if len(path) == 0 {
		return t.growRoot(leftChildID, sepKey, rightChildID)
	}
	last := path[len(path)-1]
	rest := path[:len(path)-1]

	parent, err := t.readNode(last.id)
	if err != nil {
		return err
	}
	idx := last.idx

	if parent.count() < t.geom.MaxBranch {
		cnt := t.geom.InsertBranchEntry(parent.page(), parent.count(), idx, sepKey, rightChildID)
		node.SetCount(parent.page(), uint16(cnt))
		parent.dirty()
		t.unpin(parent)
		return nil
	}

	promoted, right, err := t.splitAndInsertBranch(parent, idx, sepKey, rightChildID)
	if err != nil {
		t.unpin(parent)
		return err
	}
	leftID := parent.id()
	rightID := right.id()
	t.unpin(parent)
	t.unpin(right)
	return t.insertIntoParent(rest, leftID, promoted, rightID)
}

// splitAndInsertBranch splits a full branch, inserting (sepKey, newChild)
// at slot idx first and promoting the middle key to the caller (spec
// §4.5: "the middle key is promoted, not copied down").
func (t *Tree[K, V]) splitAndInsertBranch(branch *nodeHandle, idx int, sepKey []byte, newChild uint32) (promoted []byte, right *nodeHandle, err error) {
	count := branch.count()
	keys := make([][]byte, 0, count+1)
	children := make([]uint32, 0, count+2)
	children = append(children, node.LeadingChild(branch.page()))
	for i := 0; i < count; i++ {
		keys = append(keys, append([]byte(nil), t.geom.BranchKey(branch.page(), i)...))
		children = append(children, t.geom.BranchChild(branch.page(), i))
	}

	newKeys := make([][]byte, 0, count+1)
	newKeys = append(newKeys, keys[:idx]...)
	newKeys = append(newKeys, sepKey)
	newKeys = append(newKeys, keys[idx:]...)

	newChildren := make([]uint32, 0, count+2)
	newChildren = append(newChildren, children[:idx+1]...)
	newChildren = append(newChildren, newChild)
	newChildren = append(newChildren, children[idx+1:]...)

	totalKeys := len(newKeys)
	p := totalKeys / 2

	right, err = t.allocBranch(branch.level(), node.ParentID(branch.page()), 0)
	if err != nil {
		return nil, nil, err
	}

	node.SetLeadingChild(branch.page(), newChildren[0])
	for i := 0; i < p; i++ {
		t.geom.SetBranchEntry(branch.page(), i, newKeys[i], newChildren[i+1])
	}
	node.SetCount(branch.page(), uint16(p))
	branch.dirty()

	promoted = newKeys[p]

	node.SetLeadingChild(right.page(), newChildren[p+1])
	for i := p + 1; i < totalKeys; i++ {
		t.geom.SetBranchEntry(right.page(), i-p-1, newKeys[i], newChildren[i+1])
	}
	node.SetCount(right.page(), uint16(totalKeys-p-1))
	right.dirty()

	return promoted, right, nil
}

// growRoot builds a new one-entry branch root over leftID/rightID when a
// split reaches the current root (spec §4.5: "grow a new root one level
// higher").
func (t *Tree[K, V]) growRoot(leftID uint32, sepKey []byte, rightID uint32) error {
	lvl := t.hdr.RootLevel + 1
	newRoot, err := t.allocBranch(uint8(lvl), header.NoPage, 0)
	if err != nil {
		return err
	}
	node.SetLeadingChild(newRoot.page(), leftID)
	cnt := t.geom.InsertBranchEntry(newRoot.page(), 0, 0, sepKey, rightID)
	node.SetCount(newRoot.page(), uint16(cnt))
	newRoot.dirty()
	t.hdr.RootPageID = newRoot.id()
	t.hdr.RootLevel = lvl
	t.unpin(newRoot)
	return nil
}
