package index

import (
	"github.com/ngina-labs/btreestore/btree"
	"github.com/ngina-labs/btreestore/internal/node"
)

// Options configures an Index. K is the trivially-copyable (or
// variable-length, via Codec) record type held in the flat file; Less
// orders two decoded K values exactly like btree.Comparator.
type Options[K any] struct {
	// IndexPath is the file backing the position B+-tree.
	IndexPath string
	// FlatPath is the data file backing the flat file; ignored by
	// OpenShared, which reuses an already-open *FlatFile instead.
	FlatPath string

	Unique bool
	Codec  RecordCodec[K]
	Less   btree.Comparator[K]

	ReadOnly      bool
	Signature     uint64
	PageSize      uint32
	MaxCachePages uint32
}

// Index is a B+-tree of file positions ordered by dereferencing each
// position into a flat data file and comparing the record found there
// (spec §4.6), grounded on the original's btree_set<position_type,
// indirect_compare> (_examples/original_source/include/boost/btree/
// detail/index_bases.hpp).
type Index[K any] struct {
	opt       Options[K]
	flat      *FlatFile
	ownsFlat  bool
	positions *btree.Tree[uint64, struct{}]
}

// Open creates or opens an Index with its own, exclusively-owned flat
// file at opt.FlatPath.
func Open[K any](opt Options[K]) (*Index[K], error) {
	flat, err := OpenFlatFile(opt.FlatPath, opt.ReadOnly)
	if err != nil {
		return nil, err
	}
	ix, err := open(opt, flat, true)
	if err != nil {
		_ = flat.Close()
		return nil, err
	}
	return ix, nil
}

// OpenShared opens an Index whose records live in a flat file already
// opened (and owned) by the caller, so several indexes can resolve into
// one shared data file (spec §4.6's supplemented multi-index sharing,
// grounded on index_bases.hpp's "open(file_ptr_type, ...)" overload).
func OpenShared[K any](opt Options[K], flat *FlatFile) (*Index[K], error) {
	return open(opt, flat, false)
}

func open[K any](opt Options[K], flat *FlatFile, ownsFlat bool) (*Index[K], error) {
	cmp := func(a, b uint64) int {
		va, _ := opt.Codec.Decode(flat.Record(a, len(flat.Bytes())-int(a)))
		vb, _ := opt.Codec.Decode(flat.Record(b, len(flat.Bytes())-int(b)))
		return opt.Less(va, vb)
	}

	treeOpt := btree.OpenOptions[uint64, struct{}]{
		Path:          opt.IndexPath,
		Comparator:    cmp,
		KeyCodec:      node.Uint64LECodec(),
		PageSize:      opt.PageSize,
		MaxCachePages: opt.MaxCachePages,
	}
	if opt.ReadOnly {
		treeOpt.Flags |= btree.FlagReadOnly
	}
	if opt.Signature != 0 {
		treeOpt.Signature = opt.Signature
	}

	var positions *btree.Tree[uint64, struct{}]
	var err error
	if opt.Unique {
		positions, err = btree.NewSet(treeOpt)
	} else {
		positions, err = btree.NewMultiSet(treeOpt)
	}
	if err != nil {
		return nil, err
	}
	return &Index[K]{opt: opt, flat: flat, ownsFlat: ownsFlat, positions: positions}, nil
}

// Close closes the position tree and, if this Index owns its flat file
// (opened via Open rather than OpenShared), the flat file too.
func (ix *Index[K]) Close() error {
	if err := ix.positions.Close(); err != nil {
		return err
	}
	if ix.ownsFlat {
		return ix.flat.Close()
	}
	return nil
}

// Flush writes the position tree and, if owned, the flat file to disk.
func (ix *Index[K]) Flush() error {
	if err := ix.positions.Flush(); err != nil {
		return err
	}
	if ix.ownsFlat {
		return ix.flat.Flush()
	}
	return nil
}

func (ix *Index[K]) Size() uint64 { return ix.positions.Size() }
func (ix *Index[K]) Empty() bool  { return ix.positions.Empty() }

// Insert indexes v. For Unique indexes this finds first (btree_index_set.hpp
// insert: base::find(value) before push_back) and, if an equal record
// already exists, returns it with inserted=false without indexing a new
// copy of v; the only bytes added to the flat file are the throwaway probe
// record written by the existence check, same as Find/LowerBound/etc. For
// non-unique indexes v is appended and indexed unconditionally
// (btree_index_multiset's insert: push_back, then insert_file_position,
// with no find first), preserving insertion order among equal keys.
func (ix *Index[K]) Insert(v K) (*Iterator[K], bool, error) {
	if ix.opt.Unique {
		existing, err := ix.Find(v)
		if err != nil {
			return nil, false, err
		}
		if existing.Valid() {
			return existing, false, nil
		}
		existing.Close()
	}

	buf := make([]byte, ix.opt.Codec.MaxSize())
	n := ix.opt.Codec.Encode(buf, v)
	pos, err := ix.flat.Append(buf[:n])
	if err != nil {
		return nil, false, err
	}
	it, inserted, err := ix.positions.Insert(pos, struct{}{})
	if err != nil {
		return nil, false, err
	}
	return &Iterator[K]{ix: ix, inner: it}, inserted, nil
}

// probe appends v to the flat file purely so the position comparator has
// something to dereference on v's behalf; the bytes are left in place
// afterward regardless of whether the search finds a match, same as a
// rejected duplicate Insert.
func (ix *Index[K]) probe(v K) (uint64, error) {
	buf := make([]byte, ix.opt.Codec.MaxSize())
	n := ix.opt.Codec.Encode(buf, v)
	return ix.flat.Append(buf[:n])
}

func (ix *Index[K]) Find(v K) (*Iterator[K], error) {
	pos, err := ix.probe(v)
	if err != nil {
		return nil, err
	}
	it, err := ix.positions.Find(pos)
	if err != nil {
		return nil, err
	}
	return &Iterator[K]{ix: ix, inner: it}, nil
}

func (ix *Index[K]) LowerBound(v K) (*Iterator[K], error) {
	pos, err := ix.probe(v)
	if err != nil {
		return nil, err
	}
	it, err := ix.positions.LowerBound(pos)
	if err != nil {
		return nil, err
	}
	return &Iterator[K]{ix: ix, inner: it}, nil
}

func (ix *Index[K]) UpperBound(v K) (*Iterator[K], error) {
	pos, err := ix.probe(v)
	if err != nil {
		return nil, err
	}
	it, err := ix.positions.UpperBound(pos)
	if err != nil {
		return nil, err
	}
	return &Iterator[K]{ix: ix, inner: it}, nil
}

func (ix *Index[K]) Count(v K) (int, error) {
	pos, err := ix.probe(v)
	if err != nil {
		return 0, err
	}
	return ix.positions.Count(pos)
}

func (ix *Index[K]) Begin() (*Iterator[K], error) {
	it, err := ix.positions.Begin()
	if err != nil {
		return nil, err
	}
	return &Iterator[K]{ix: ix, inner: it}, nil
}

func (ix *Index[K]) End() *Iterator[K] {
	return &Iterator[K]{ix: ix, inner: ix.positions.End()}
}

// Iterator adapts a position-tree iterator to decode the record at each
// visited position from the flat file.
type Iterator[K any] struct {
	ix    *Index[K]
	inner *btree.Iterator[uint64, struct{}]
}

func (it *Iterator[K]) Valid() bool { return it.inner.Valid() }

func (it *Iterator[K]) Key() K {
	pos := it.inner.Key()
	v, _ := it.ix.opt.Codec.Decode(it.ix.flat.Record(pos, len(it.ix.flat.Bytes())-int(pos)))
	return v
}

func (it *Iterator[K]) Next() error { return it.inner.Next() }
func (it *Iterator[K]) Prev() error { return it.inner.Prev() }
func (it *Iterator[K]) Close()      { it.inner.Close() }
