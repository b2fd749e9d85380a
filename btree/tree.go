// Package btree implements the B+-tree algorithm layer (spec C5, §4.5):
// search, insert, erase with split/merge/redistribute, root growth and
// shrinkage, and bidirectional leaf iteration, on top of internal/buffer
// and internal/node.
//
// Grounded on the teacher's bPlusTree/innerNode/leafNode trio
// (index/bplustree.go, index/innernode.go, index/leafnode.go): a tree
// handle wrapping a buffer pool manager and tree metadata, root
// growth-on-overflow, and leaf right-sibling links — generalized from
// the teacher's int-only, insert-only, draft implementation into a
// generic, fully balanced (split+merge+borrow), four-variant (set /
// multiset / map / multimap) engine per spec §4.5-§4.6.
package btree

import (
	"fmt"

	"github.com/ngina-labs/btreestore/internal/buffer"
	"github.com/ngina-labs/btreestore/internal/diskio"
	"github.com/ngina-labs/btreestore/internal/header"
	"github.com/ngina-labs/btreestore/internal/node"
)

// Tree is a handle to one open B+-tree file. K and V are the trivially
// copyable key and (for map variants) mapped types; for key-only variants
// V is struct{}.
type Tree[K any, V any] struct {
	mgr      *buffer.Manager
	hdr      *header.Header
	geom     node.Geometry
	cmp      Comparator[K]
	keyCodec node.Codec[K]
	valCodec node.Codec[V]

	readOnly    bool
	cacheBranch bool
	branchPins  map[uint32]*buffer.Frame
	closed      bool

	// gen counts mutations; EraseIter uses it to detect an iterator whose
	// underlying page may have been touched since it was obtained.
	gen uint64
}

// checkOpen fails-with ErrNotOpen for any operation attempted after Close
// (spec §7's NotOpen kind).
func (t *Tree[K, V]) checkOpen() error {
	if t.closed {
		return ErrNotOpen
	}
	return nil
}

type nodeHandle struct {
	frame *buffer.Frame
}

func (n *nodeHandle) page() []byte { return n.frame.Data }
func (n *nodeHandle) id() uint32   { return n.frame.PageID }
func (n *nodeHandle) dirty()       { n.frame.MarkDirty() }
func (n *nodeHandle) isLeaf() bool { return node.Level(n.frame.Data) == 0 }
func (n *nodeHandle) level() uint8 { return node.Level(n.frame.Data) }
func (n *nodeHandle) count() int   { return int(node.Count(n.frame.Data)) }

// Open opens or creates a tree at opt.Path according to opt.Flags.
func Open[K any, V any](opt OpenOptions[K, V]) (*Tree[K, V], error) {
	opt = opt.normalized()

	var fileMode diskio.Mode
	switch {
	case opt.Flags&FlagTruncate != 0:
		fileMode = diskio.ModeTruncate
	case opt.Flags&FlagReadOnly != 0:
		fileMode = diskio.ModeIn
	default:
		fileMode = diskio.ModeOut
	}
	if opt.Flags&FlagPreload != 0 {
		fileMode |= diskio.ModePreload
	}

	f, err := diskio.Open(opt.Path, fileMode)
	if err != nil {
		return nil, err
	}

	mgr, preexisted, err := buffer.Open(f, buffer.Options{
		MaxCachePages: opt.MaxCachePages,
		PageSize:      opt.PageSize,
		Logger:        opt.Logger,
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	t := &Tree[K, V]{
		mgr:         mgr,
		cmp:         opt.Comparator,
		keyCodec:    opt.KeyCodec,
		valCodec:    opt.ValueCodec,
		readOnly:    opt.Flags&FlagReadOnly != 0,
		cacheBranch: opt.Flags&FlagCacheBranches != 0,
		branchPins:  make(map[uint32]*buffer.Frame),
	}

	valSize := opt.ValueCodec.Size()
	if opt.keyOnly {
		valSize = 0
	}

	if !preexisted {
		if opt.PageSize < header.Size {
			_ = mgr.Close()
			return nil, Error.New("page size %d is below the minimum %d", opt.PageSize, header.Size)
		}
		flags := uint32(0)
		if opt.unique {
			flags |= uint32(flagUnique)
		}
		if opt.keyOnly {
			flags |= uint32(flagKeyOnly)
		}
		t.hdr = header.New(hostEndian, opt.PageSize, flags, uint32(opt.KeyCodec.Size()), uint32(valSize), opt.Signature, opt.splash)
		if err := mgr.WriteHeader(t.hdr); err != nil {
			return nil, err
		}
		mgr.ReserveHeaderPage()
		t.geom = node.NewGeometry(opt.PageSize, opt.KeyCodec.Size(), valSize)

		root, err := t.allocLeaf(header.NoPage, 0)
		if err != nil {
			return nil, err
		}
		t.hdr.RootPageID = root.id()
		t.hdr.FirstLeafID = root.id()
		t.hdr.LastLeafID = root.id()
		t.hdr.RootLevel = 0
		t.unpin(root)
		if err := t.flushHeader(); err != nil {
			return nil, err
		}
		return t, nil
	}

	hdr, err := mgr.ReadHeader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptHeader, err)
	}
	if hdr.AdaptToHost() {
		if err := mgr.WriteHeader(hdr); err != nil {
			return nil, err
		}
	}
	mgr.SetPageSize(hdr.PageSize)

	if opt.Signature != SignatureDisableAll && hdr.Signature != SignatureDisableAll && hdr.Signature != opt.Signature {
		return nil, fmt.Errorf("%w: got %d, file has %d", ErrSignatureMismatch, opt.Signature, hdr.Signature)
	}
	if opt.splash != "" && hdr.SplashString() != opt.splash {
		return nil, fmt.Errorf("%w: container variant mismatch: opened as %q, file is %q", ErrTypeMismatch, opt.splash, hdr.SplashString())
	}
	wantUnique := opt.unique
	gotUnique := hdr.Flags&uint32(flagUnique) != 0
	wantKeyOnly := opt.keyOnly
	gotKeyOnly := hdr.Flags&uint32(flagKeyOnly) != 0
	if wantUnique != gotUnique || wantKeyOnly != gotKeyOnly {
		return nil, fmt.Errorf("%w: unique/key-only flags mismatch", ErrTypeMismatch)
	}
	if hdr.KeySize != uint32(opt.KeyCodec.Size()) || hdr.MappedSize != uint32(valSize) {
		return nil, fmt.Errorf("%w: key/value size mismatch: file has key=%d mapped=%d, opened with key=%d mapped=%d",
			ErrTypeMismatch, hdr.KeySize, hdr.MappedSize, opt.KeyCodec.Size(), valSize)
	}

	t.hdr = hdr
	t.geom = node.NewGeometry(hdr.PageSize, int(hdr.KeySize), int(hdr.MappedSize))
	return t, nil
}

func (t *Tree[K, V]) unique() bool  { return t.hdr.Flags&uint32(flagUnique) != 0 }
func (t *Tree[K, V]) keyOnly() bool { return t.hdr.Flags&uint32(flagKeyOnly) != 0 }

func (t *Tree[K, V]) flushHeader() error {
	return t.mgr.WriteHeader(t.hdr)
}

// Close flushes all dirty pages and the header, then closes the
// underlying file. A second Close is a no-op; every other operation on t
// after Close fails-with ErrNotOpen.
func (t *Tree[K, V]) Close() error {
	if t.closed {
		return nil
	}
	if !t.readOnly {
		if err := t.flushHeader(); err != nil {
			return err
		}
	}
	if err := t.mgr.Close(); err != nil {
		return err
	}
	t.closed = true
	return nil
}

// Flush writes all dirty pages and the header to disk.
func (t *Tree[K, V]) Flush() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.flushHeader(); err != nil {
		return err
	}
	_, err := t.mgr.Flush()
	return err
}

// Size returns the number of elements in the tree.
func (t *Tree[K, V]) Size() uint64 { return t.hdr.ElementCount }

// Empty reports whether the tree holds zero elements.
func (t *Tree[K, V]) Empty() bool { return t.hdr.ElementCount == 0 }

// Clear removes every element, shrinking the tree to a single empty leaf
// root. Existing pages are pushed onto the free list for reuse.
func (t *Tree[K, V]) Clear() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if t.readOnly {
		return ErrReadOnly
	}
	// Walk every leaf, freeing it, then every branch level, freeing those
	// too; simplest correct approach is a full post-order free of the
	// current tree followed by allocating a fresh empty root.
	if err := t.freeSubtree(t.hdr.RootPageID); err != nil {
		return err
	}
	root, err := t.allocLeaf(header.NoPage, 0)
	if err != nil {
		return err
	}
	t.hdr.RootPageID = root.id()
	t.hdr.FirstLeafID = root.id()
	t.hdr.LastLeafID = root.id()
	t.hdr.RootLevel = 0
	t.hdr.ElementCount = 0
	t.unpin(root)
	return t.flushHeader()
}

func (t *Tree[K, V]) freeSubtree(id uint32) error {
	n, err := t.readNode(id)
	if err != nil {
		return err
	}
	if !n.isLeaf() {
		cnt := n.count()
		children := make([]uint32, 0, cnt+1)
		children = append(children, node.LeadingChild(n.page()))
		for i := 0; i < cnt; i++ {
			children = append(children, t.geom.BranchChild(n.page(), i))
		}
		t.unpin(n)
		for _, c := range children {
			if err := t.freeSubtree(c); err != nil {
				return err
			}
		}
	} else {
		t.unpin(n)
	}
	return t.pushFree(id)
}

// --- node access helpers -----------------------------------------------------

func (t *Tree[K, V]) readNode(id uint32) (*nodeHandle, error) {
	fr, err := t.mgr.Read(id)
	if err != nil {
		return nil, err
	}
	return &nodeHandle{frame: fr}, nil
}

func (t *Tree[K, V]) unpin(n *nodeHandle) {
	if n == nil {
		return
	}
	if t.cacheBranch && !n.isLeaf() {
		t.mgr.SetNeverFree(n.frame)
		t.branchPins[n.id()] = n.frame
	}
	t.mgr.Unpin(n.frame)
}

func (t *Tree[K, V]) allocLeaf(parent uint32, parentIdx uint32) (*nodeHandle, error) {
	n, err := t.newPage()
	if err != nil {
		return nil, err
	}
	node.SetLevel(n.page(), 0)
	node.SetCount(n.page(), 0)
	node.SetParentID(n.page(), parent)
	node.SetParentIndex(n.page(), parentIdx)
	node.SetPrevLeaf(n.page(), header.NoPage)
	node.SetNextLeaf(n.page(), header.NoPage)
	n.dirty()
	return n, nil
}

func (t *Tree[K, V]) allocBranch(level uint8, parent uint32, parentIdx uint32) (*nodeHandle, error) {
	n, err := t.newPage()
	if err != nil {
		return nil, err
	}
	node.SetLevel(n.page(), level)
	node.SetCount(n.page(), 0)
	node.SetParentID(n.page(), parent)
	node.SetParentIndex(n.page(), parentIdx)
	node.SetLeadingChild(n.page(), header.NoPage)
	n.dirty()
	return n, nil
}

// newPage returns a fresh node page, reusing the free list when non-empty.
func (t *Tree[K, V]) newPage() (*nodeHandle, error) {
	if t.hdr.FreeListHead != header.NoPage {
		id := t.hdr.FreeListHead
		n, err := t.readNode(id)
		if err != nil {
			return nil, err
		}
		next := hostOrder32(n.page())
		t.hdr.FreeListHead = next
		for i := range n.page() {
			n.page()[i] = 0
		}
		n.dirty()
		return n, nil
	}
	fr, err := t.mgr.NewPage()
	if err != nil {
		return nil, err
	}
	t.hdr.PageCount = t.mgr.PageCount()
	return &nodeHandle{frame: fr}, nil
}

func (t *Tree[K, V]) pushFree(id uint32) error {
	n, err := t.readNode(id)
	if err != nil {
		return err
	}
	setHostOrder32(n.page(), t.hdr.FreeListHead)
	n.dirty()
	t.hdr.FreeListHead = id
	t.unpin(n)
	return nil
}

// hostOrder32/setHostOrder32 read/write the free-list next-pointer stored
// in a freed page's first 4 bytes (spec §3: "Free-list pages form a
// singly-linked list via their first 4 bytes").
func hostOrder32(page []byte) uint32 {
	return uint32(page[0]) | uint32(page[1])<<8 | uint32(page[2])<<16 | uint32(page[3])<<24
}

func setHostOrder32(page []byte, v uint32) {
	page[0] = byte(v)
	page[1] = byte(v >> 8)
	page[2] = byte(v >> 16)
	page[3] = byte(v >> 24)
}
