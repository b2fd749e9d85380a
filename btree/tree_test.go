package btree

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/ngina-labs/btreestore/internal/node"
)

func openSet(t *testing.T, pageSize uint32) *Tree[uint32, struct{}] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.db")
	opt := OpenOptions[uint32, struct{}]{
		Path:       path,
		PageSize:   pageSize,
		Comparator: func(a, b uint32) int { return int(a) - int(b) },
		KeyCodec:   node.Uint32NativeCodec(),
	}
	tr, err := NewSet(opt)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return tr
}

func reopenSet(t *testing.T, path string, pageSize uint32) *Tree[uint32, struct{}] {
	t.Helper()
	opt := OpenOptions[uint32, struct{}]{
		Path:       path,
		PageSize:   pageSize,
		Comparator: func(a, b uint32) int { return int(a) - int(b) },
		KeyCodec:   node.Uint32NativeCodec(),
	}
	tr, err := NewSet(opt)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	return tr
}

func collect(t *testing.T, tr *Tree[uint32, struct{}]) []uint32 {
	t.Helper()
	it, err := tr.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	var got []uint32
	for it.Valid() {
		got = append(got, it.Key())
		if err := it.Next(); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	return got
}

func TestInsertKeepsOrderAndSize(t *testing.T) {
	tr := openSet(t, 128)
	defer tr.Close()

	keys := []uint32{50, 10, 40, 20, 30, 5, 45, 15, 25, 35}
	for _, k := range keys {
		if _, inserted, err := tr.Insert(k, struct{}{}); err != nil || !inserted {
			t.Fatalf("insert %d: inserted=%v err=%v", k, inserted, err)
		}
	}
	if tr.Size() != uint64(len(keys)) {
		t.Fatalf("size = %d, want %d", tr.Size(), len(keys))
	}

	got := collect(t, tr)
	if len(got) != len(keys) {
		t.Fatalf("leaf-order walk produced %d elements, want %d", len(got), len(keys))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("not strictly increasing at %d: %v", i, got)
		}
	}
}

func TestInsertDuplicateOnUniqueSetIsNoop(t *testing.T) {
	tr := openSet(t, 128)
	defer tr.Close()

	if _, inserted, err := tr.Insert(7, struct{}{}); err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	if _, inserted, err := tr.Insert(7, struct{}{}); err != nil || inserted {
		t.Fatalf("duplicate insert: inserted=%v err=%v, want inserted=false", inserted, err)
	}
	if tr.Size() != 1 {
		t.Fatalf("size = %d, want 1", tr.Size())
	}
}

func TestSplitAndMergeStress(t *testing.T) {
	tr := openSet(t, 128) // minimum page size forces many splits/merges
	defer tr.Close()

	const n = 500
	r := rand.New(rand.NewSource(1))
	perm := r.Perm(n)

	for _, k := range perm {
		if _, inserted, err := tr.Insert(uint32(k), struct{}{}); err != nil || !inserted {
			t.Fatalf("insert %d: inserted=%v err=%v", k, inserted, err)
		}
	}
	if tr.Size() != n {
		t.Fatalf("size after insert = %d, want %d", tr.Size(), n)
	}

	// erase every other element
	for i := 0; i < n; i += 2 {
		cnt, err := tr.Erase(uint32(i))
		if err != nil || cnt != 1 {
			t.Fatalf("erase %d: cnt=%d err=%v", i, cnt, err)
		}
	}
	if tr.Size() != n/2 {
		t.Fatalf("size after erase = %d, want %d", tr.Size(), n/2)
	}

	got := collect(t, tr)
	if len(got) != n/2 {
		t.Fatalf("walk produced %d elements, want %d", len(got), n/2)
	}
	for i, k := range got {
		if k%2 == 0 {
			t.Fatalf("erased key %d still present", k)
		}
		if i > 0 && got[i-1] >= k {
			t.Fatalf("not strictly increasing at %d: %v, %v", i, got[i-1], k)
		}
	}

	for _, k := range got {
		it, err := tr.Find(k)
		if err != nil {
			t.Fatalf("find %d: %v", k, err)
		}
		if !it.Valid() {
			t.Fatalf("find %d: not found", k)
		}
		it.Close()
	}
}

func TestLeafLinkageMatchesForwardAndBackwardWalk(t *testing.T) {
	tr := openSet(t, 128)
	defer tr.Close()

	const n = 200
	for i := 0; i < n; i++ {
		if _, _, err := tr.Insert(uint32(i), struct{}{}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	fwd := collect(t, tr)

	it, err := tr.RBegin()
	if err != nil {
		t.Fatalf("rbegin: %v", err)
	}
	var rev []uint32
	for it.Valid() {
		rev = append(rev, it.Key())
		if err := it.Prev(); err != nil {
			t.Fatalf("prev: %v", err)
		}
	}
	if len(rev) != len(fwd) {
		t.Fatalf("reverse walk produced %d elements, want %d", len(rev), len(fwd))
	}
	for i := range fwd {
		if fwd[i] != rev[len(rev)-1-i] {
			t.Fatalf("reverse walk mismatch at %d: fwd=%v rev=%v", i, fwd[i], rev[len(rev)-1-i])
		}
	}
}

func TestMultiMapPreservesInsertionOrderAmongEquals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "multi.db")
	opt := OpenOptions[uint32, uint32]{
		Path:       path,
		PageSize:   128,
		Comparator: func(a, b uint32) int { return int(a) - int(b) },
		KeyCodec:   node.Uint32NativeCodec(),
		ValueCodec: node.Uint32NativeCodec(),
	}
	tr, err := NewMultiMap(opt)
	if err != nil {
		t.Fatalf("NewMultiMap: %v", err)
	}
	defer tr.Close()

	order := []uint32{1, 2, 3, 4, 5}
	for _, seq := range order {
		if _, _, err := tr.Insert(42, seq); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	it, err := tr.LowerBound(42)
	if err != nil {
		t.Fatalf("lower_bound: %v", err)
	}
	var got []uint32
	for it.Valid() && it.Key() == 42 {
		got = append(got, it.Value())
		if err := it.Next(); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	if len(got) != len(order) {
		t.Fatalf("got %d duplicates, want %d", len(got), len(order))
	}
	for i := range order {
		if got[i] != order[i] {
			t.Fatalf("insertion order not preserved: got %v, want %v", got, order)
		}
	}
}

func TestReopenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	opt := OpenOptions[uint32, struct{}]{
		Path:       path,
		PageSize:   128,
		Comparator: func(a, b uint32) int { return int(a) - int(b) },
		KeyCodec:   node.Uint32NativeCodec(),
	}
	tr, err := NewSet(opt)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 100; i++ {
		if _, _, err := tr.Insert(uint32(i), struct{}{}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	tr2 := reopenSet(t, path, 128)
	defer tr2.Close()
	if tr2.Size() != 100 {
		t.Fatalf("size after reopen = %d, want 100", tr2.Size())
	}
	got := collect(t, tr2)
	for i, k := range got {
		if k != uint32(i) {
			t.Fatalf("reopened tree out of order at %d: %v", i, k)
		}
	}
}

func TestEraseIterDetectsStaleIterator(t *testing.T) {
	tr := openSet(t, 128)
	defer tr.Close()

	for i := 0; i < 200; i++ {
		if _, _, err := tr.Insert(uint32(i), struct{}{}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	it, err := tr.Find(5)
	if err != nil || !it.Valid() {
		t.Fatalf("find: valid=%v err=%v", it.Valid(), err)
	}

	// mutate the tree enough to force splits/merges that could move things
	// around, then try to erase via the now-stale iterator.
	for i := 200; i < 400; i++ {
		if _, _, err := tr.Insert(uint32(i), struct{}{}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if _, err := tr.EraseIter(it); err != ErrInvalidIterator {
		t.Fatalf("erase_iter on stale iterator: got %v, want ErrInvalidIterator", err)
	}
}

func TestEmptyAndClear(t *testing.T) {
	tr := openSet(t, 128)
	defer tr.Close()

	if !tr.Empty() {
		t.Fatalf("new tree should be empty")
	}
	for i := 0; i < 50; i++ {
		if _, _, err := tr.Insert(uint32(i), struct{}{}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if tr.Empty() {
		t.Fatalf("tree with elements should not be empty")
	}
	if err := tr.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !tr.Empty() || tr.Size() != 0 {
		t.Fatalf("tree should be empty after clear")
	}
	if _, _, err := tr.Insert(1, struct{}{}); err != nil {
		t.Fatalf("insert after clear: %v", err)
	}
}

func TestCloseIsIdempotentAndNotOpenAfterward(t *testing.T) {
	tr := openSet(t, 128)
	if _, _, err := tr.Insert(1, struct{}{}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}
	if _, _, err := tr.Insert(2, struct{}{}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if _, err := tr.Find(1); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if _, err := tr.Begin(); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if _, err := tr.Erase(1); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}
