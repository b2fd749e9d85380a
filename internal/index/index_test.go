package index

import (
	"path/filepath"
	"testing"

	"github.com/ngina-labs/btreestore/btree"
)

type record struct {
	id int32
}

func recordCodec() RecordCodec[record] {
	return Fixed[record](4,
		func(dst []byte, v record) {
			dst[0] = byte(v.id)
			dst[1] = byte(v.id >> 8)
			dst[2] = byte(v.id >> 16)
			dst[3] = byte(v.id >> 24)
		},
		func(src []byte) record {
			return record{id: int32(src[0]) | int32(src[1])<<8 | int32(src[2])<<16 | int32(src[3])<<24}
		})
}

func less(a, b record) int { return int(a.id) - int(b.id) }

func openTestIndex(t *testing.T, unique bool) *Index[record] {
	t.Helper()
	dir := t.TempDir()
	opt := Options[record]{
		IndexPath: filepath.Join(dir, "idx.db"),
		FlatPath:  filepath.Join(dir, "flat.dat"),
		Unique:    unique,
		Codec:     recordCodec(),
		Less:      btree.Comparator[record](less),
		PageSize:  128,
	}
	ix, err := Open(opt)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return ix
}

func TestIndexInsertAndFind(t *testing.T) {
	ix := openTestIndex(t, true)
	defer ix.Close()

	ids := []int32{30, 10, 50, 20, 40}
	for _, id := range ids {
		if _, inserted, err := ix.Insert(record{id: id}); err != nil || !inserted {
			t.Fatalf("insert %d: inserted=%v err=%v", id, inserted, err)
		}
	}
	if ix.Size() != uint64(len(ids)) {
		t.Fatalf("size = %d, want %d", ix.Size(), len(ids))
	}

	for _, id := range ids {
		it, err := ix.Find(record{id: id})
		if err != nil {
			t.Fatalf("find %d: %v", id, err)
		}
		if !it.Valid() {
			t.Fatalf("find %d: not found", id)
		}
		if got := it.Key().id; got != id {
			t.Fatalf("find %d: got record %d", id, got)
		}
		it.Close()
	}

	if it, err := ix.Find(record{id: 999}); err != nil {
		t.Fatalf("find missing: %v", err)
	} else if it.Valid() {
		t.Fatalf("expected not-found for missing key")
	}
}

func TestIndexOrderedWalk(t *testing.T) {
	ix := openTestIndex(t, true)
	defer ix.Close()

	for _, id := range []int32{5, 3, 1, 4, 2} {
		if _, _, err := ix.Insert(record{id: id}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	it, err := ix.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	want := int32(1)
	for it.Valid() {
		if it.Key().id != want {
			t.Fatalf("got %d, want %d", it.Key().id, want)
		}
		want++
		if err := it.Next(); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	if want != 6 {
		t.Fatalf("walked %d elements, want 5", want-1)
	}
}

func TestIndexUniqueRejectsDuplicate(t *testing.T) {
	ix := openTestIndex(t, true)
	defer ix.Close()

	if _, inserted, err := ix.Insert(record{id: 1}); err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	if _, inserted, err := ix.Insert(record{id: 1}); err != nil || inserted {
		t.Fatalf("duplicate insert: inserted=%v err=%v, want false", inserted, err)
	}
	if ix.Size() != 1 {
		t.Fatalf("size = %d, want 1", ix.Size())
	}
}

func TestIndexSharedFlatFile(t *testing.T) {
	dir := t.TempDir()
	flat, err := OpenFlatFile(filepath.Join(dir, "shared.dat"), false)
	if err != nil {
		t.Fatalf("open flat file: %v", err)
	}
	defer flat.Close()

	primary, err := OpenShared(Options[record]{
		IndexPath: filepath.Join(dir, "primary.db"),
		Unique:    true,
		Codec:     recordCodec(),
		Less:      btree.Comparator[record](less),
		PageSize:  128,
	}, flat)
	if err != nil {
		t.Fatalf("open primary: %v", err)
	}
	defer primary.Close()

	secondary, err := OpenShared(Options[record]{
		IndexPath: filepath.Join(dir, "secondary.db"),
		Unique:    false,
		Codec:     recordCodec(),
		Less:      btree.Comparator[record](func(a, b record) int { return -less(a, b) }),
		PageSize:  128,
	}, flat)
	if err != nil {
		t.Fatalf("open secondary: %v", err)
	}
	defer secondary.Close()

	for _, id := range []int32{1, 2, 3} {
		if _, _, err := primary.Insert(record{id: id}); err != nil {
			t.Fatalf("primary insert: %v", err)
		}
		if _, _, err := secondary.Insert(record{id: id}); err != nil {
			t.Fatalf("secondary insert: %v", err)
		}
	}

	if primary.Size() != 3 || secondary.Size() != 3 {
		t.Fatalf("sizes = %d, %d, want 3, 3", primary.Size(), secondary.Size())
	}

	it, err := secondary.Begin()
	if err != nil {
		t.Fatalf("secondary begin: %v", err)
	}
	if !it.Valid() || it.Key().id != 3 {
		t.Fatalf("secondary's descending order broken: got %+v", it.Key())
	}
}
