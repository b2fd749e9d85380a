package node

import "encoding/binary"

// Common node header prefix (spec §3): level, element count, parent page
// id, and parent element index. Leaves additionally carry prev/next leaf
// links; branches additionally carry one leading child pointer.
const (
	offLevel        = 0
	offCount        = 1
	offParentID     = 3
	offParentIndex  = 7
	commonHeaderLen = 11

	offLeafPrev    = commonHeaderLen
	offLeafNext    = commonHeaderLen + 4
	leafHeaderLen  = commonHeaderLen + 8

	offBranchChild0  = commonHeaderLen
	branchHeaderLen  = commonHeaderLen + 4
)

// NoPage is the sentinel page id meaning "no such page".
const NoPage uint32 = 0xFFFFFFFF

var hostOrder = binary.BigEndian // header-prefix integers are always big-endian regardless of key traits; only key/value bytes follow the caller's chosen codec endianness.

// Level returns the node's level (0 = leaf) from a raw page buffer.
func Level(page []byte) uint8 { return page[offLevel] }

// SetLevel stores the node's level.
func SetLevel(page []byte, lvl uint8) { page[offLevel] = lvl }

// Count returns the node's element (leaf) or entry (branch) count.
func Count(page []byte) uint16 { return hostOrder.Uint16(page[offCount:]) }

// SetCount stores the node's element/entry count.
func SetCount(page []byte, n uint16) { hostOrder.PutUint16(page[offCount:], n) }

// ParentID returns the parent branch page id, or NoPage for the root.
func ParentID(page []byte) uint32 { return hostOrder.Uint32(page[offParentID:]) }

// SetParentID stores the parent branch page id.
func SetParentID(page []byte, id uint32) { hostOrder.PutUint32(page[offParentID:], id) }

// ParentIndex returns this node's child-pointer index within its parent.
func ParentIndex(page []byte) uint32 { return hostOrder.Uint32(page[offParentIndex:]) }

// SetParentIndex stores this node's child-pointer index within its parent.
func SetParentIndex(page []byte, idx uint32) { hostOrder.PutUint32(page[offParentIndex:], idx) }

// PrevLeaf returns a leaf's previous-leaf link.
func PrevLeaf(page []byte) uint32 { return hostOrder.Uint32(page[offLeafPrev:]) }

// SetPrevLeaf stores a leaf's previous-leaf link.
func SetPrevLeaf(page []byte, id uint32) { hostOrder.PutUint32(page[offLeafPrev:], id) }

// NextLeaf returns a leaf's next-leaf link.
func NextLeaf(page []byte) uint32 { return hostOrder.Uint32(page[offLeafNext:]) }

// SetNextLeaf stores a leaf's next-leaf link.
func SetNextLeaf(page []byte, id uint32) { hostOrder.PutUint32(page[offLeafNext:], id) }

// LeadingChild returns a branch node's c0 pointer (the child left of every key).
func LeadingChild(page []byte) uint32 { return hostOrder.Uint32(page[offBranchChild0:]) }

// SetLeadingChild stores a branch node's c0 pointer.
func SetLeadingChild(page []byte, id uint32) { hostOrder.PutUint32(page[offBranchChild0:], id) }

// Geometry captures the fixed sizing derived from page size and element
// widths: fan-out bounds and byte offsets within a page (spec §3,
// "Fan-out bound").
type Geometry struct {
	PageSize   uint32
	KeySize    int
	ValueSize  int // 0 for key-only (set) trees
	childSize  int // branch child-pointer width, always 4 (uint32 page ids)
	MaxLeaf    int
	MinLeaf    int
	MaxBranch  int
	MinBranch  int
}

// NewGeometry computes fan-out bounds for the given page size and
// key/value widths. childSize is fixed at 4 bytes (uint32 page ids).
func NewGeometry(pageSize uint32, keySize, valueSize int) Geometry {
	const childSize = 4
	elemSize := keySize + valueSize
	branchEntrySize := keySize + childSize

	maxLeaf := (int(pageSize) - leafHeaderLen) / elemSize
	maxBranch := (int(pageSize) - branchHeaderLen) / branchEntrySize

	return Geometry{
		PageSize:  pageSize,
		KeySize:   keySize,
		ValueSize: valueSize,
		childSize: childSize,
		MaxLeaf:   maxLeaf,
		MinLeaf:   ceilHalf(maxLeaf),
		MaxBranch: maxBranch,
		MinBranch: ceilHalf(maxBranch),
	}
}

func ceilHalf(n int) int { return (n + 1) / 2 }

// --- leaf element access -----------------------------------------------------

func (g Geometry) leafElemOffset(i int) int {
	return leafHeaderLen + i*(g.KeySize+g.ValueSize)
}

// LeafKey returns the raw key bytes for element i.
func (g Geometry) LeafKey(page []byte, i int) []byte {
	off := g.leafElemOffset(i)
	return page[off : off+g.KeySize]
}

// LeafValue returns the raw value bytes for element i (empty slice for key-only trees).
func (g Geometry) LeafValue(page []byte, i int) []byte {
	off := g.leafElemOffset(i) + g.KeySize
	return page[off : off+g.ValueSize]
}

// SetLeafElem writes key and value bytes for element i.
func (g Geometry) SetLeafElem(page []byte, i int, key, value []byte) {
	off := g.leafElemOffset(i)
	copy(page[off:off+g.KeySize], key)
	if g.ValueSize > 0 {
		copy(page[off+g.KeySize:off+g.KeySize+g.ValueSize], value)
	}
}

// InsertLeafElem shifts elements [i, count) right by one slot and writes
// key/value at i, then returns the new count. Caller must ensure room.
func (g Geometry) InsertLeafElem(page []byte, count, i int, key, value []byte) int {
	elemSize := g.KeySize + g.ValueSize
	srcOff := leafHeaderLen + i*elemSize
	dstOff := srcOff + elemSize
	moveLen := (count - i) * elemSize
	copy(page[dstOff:dstOff+moveLen], page[srcOff:srcOff+moveLen])
	g.SetLeafElem(page, i, key, value)
	return count + 1
}

// RemoveLeafElem shifts elements (i, count) left by one slot, overwriting
// element i, then returns the new count.
func (g Geometry) RemoveLeafElem(page []byte, count, i int) int {
	elemSize := g.KeySize + g.ValueSize
	dstOff := leafHeaderLen + i*elemSize
	srcOff := dstOff + elemSize
	moveLen := (count - i - 1) * elemSize
	copy(page[dstOff:dstOff+moveLen], page[srcOff:srcOff+moveLen])
	return count - 1
}

// --- branch entry access -----------------------------------------------------
//
// A branch node with n entries holds n+1 children: LeadingChild (c0) plus,
// for i in [0,n), (key[i], child[i+1]) pairs stored contiguously.

func (g Geometry) branchEntryOffset(i int) int {
	return branchHeaderLen + i*(g.KeySize+g.childSize)
}

// BranchKey returns the raw key bytes for separator i (0-indexed, i<count).
func (g Geometry) BranchKey(page []byte, i int) []byte {
	off := g.branchEntryOffset(i)
	return page[off : off+g.KeySize]
}

// BranchChild returns child pointer i+1 (i.e. the child to the right of
// separator i). Use LeadingChild(page) for child 0.
func (g Geometry) BranchChild(page []byte, i int) uint32 {
	off := g.branchEntryOffset(i) + g.KeySize
	return hostOrder.Uint32(page[off : off+4])
}

// SetBranchEntry writes separator key i and its right child pointer.
func (g Geometry) SetBranchEntry(page []byte, i int, key []byte, child uint32) {
	off := g.branchEntryOffset(i)
	copy(page[off:off+g.KeySize], key)
	hostOrder.PutUint32(page[off+g.KeySize:off+g.KeySize+4], child)
}

// InsertBranchEntry shifts entries [i, count) right by one slot and writes
// (key, child) at i, returning the new count.
func (g Geometry) InsertBranchEntry(page []byte, count, i int, key []byte, child uint32) int {
	entrySize := g.KeySize + g.childSize
	srcOff := branchHeaderLen + i*entrySize
	dstOff := srcOff + entrySize
	moveLen := (count - i) * entrySize
	copy(page[dstOff:dstOff+moveLen], page[srcOff:srcOff+moveLen])
	g.SetBranchEntry(page, i, key, child)
	return count + 1
}

// RemoveBranchEntry shifts entries (i, count) left by one slot, returning
// the new count. The removed separator is entry i; its *left* child
// (LeadingChild or child i-1) survives, matching the merge/borrow rules of
// spec §4.5.
func (g Geometry) RemoveBranchEntry(page []byte, count, i int) int {
	entrySize := g.KeySize + g.childSize
	dstOff := branchHeaderLen + i*entrySize
	srcOff := dstOff + entrySize
	moveLen := (count - i - 1) * entrySize
	copy(page[dstOff:dstOff+moveLen], page[srcOff:srcOff+moveLen])
	return count - 1
}

// Child returns child pointer idx in [0, count] (idx==0 is LeadingChild).
func (g Geometry) Child(page []byte, idx int) uint32 {
	if idx == 0 {
		return LeadingChild(page)
	}
	return g.BranchChild(page, idx-1)
}
