package bulkload

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/ngina-labs/btreestore/btree"
	"github.com/ngina-labs/btreestore/internal/node"
)

func writeSource(t *testing.T, path string, pairs [][2]uint32) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	defer f.Close()
	buf := make([]byte, 8)
	order := node.Uint32NativeCodec()
	for _, p := range pairs {
		order.Encode(buf[:4], p[0])
		order.Encode(buf[4:], p[1])
		if _, err := f.Write(buf); err != nil {
			t.Fatalf("write record: %v", err)
		}
	}
}

func openTarget(t *testing.T) *btree.Tree[uint32, uint32] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.db")
	opt := btree.OpenOptions[uint32, uint32]{
		Path:       path,
		PageSize:   256,
		Comparator: func(a, b uint32) int { return int(a) - int(b) },
		KeyCodec:   node.Uint32NativeCodec(),
		ValueCodec: node.Uint32NativeCodec(),
	}
	tr, err := btree.NewMap(opt)
	if err != nil {
		t.Fatalf("open target: %v", err)
	}
	return tr
}

func TestLoadSingleRun(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.bin")

	pairs := make([][2]uint32, 0, 100)
	r := rand.New(rand.NewSource(2))
	for _, k := range r.Perm(100) {
		pairs = append(pairs, [2]uint32{uint32(k), uint32(k) * 10})
	}
	writeSource(t, source, pairs)

	tr := openTarget(t)
	defer tr.Close()

	n, err := Load(source, tr, node.Uint32NativeCodec(), node.Uint32NativeCodec(),
		func(a, b uint32) int { return int(a) - int(b) },
		Options{TempDir: dir, AvailableMemory: 1 << 20}) // large budget: single run
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 100 {
		t.Fatalf("inserted %d, want 100", n)
	}
	if tr.Size() != 100 {
		t.Fatalf("tree size = %d, want 100", tr.Size())
	}

	for _, p := range pairs {
		it, err := tr.Find(p[0])
		if err != nil || !it.Valid() {
			t.Fatalf("find %d: valid=%v err=%v", p[0], it.Valid(), err)
		}
		if it.Value() != p[1] {
			t.Fatalf("key %d: value = %d, want %d", p[0], it.Value(), p[1])
		}
		it.Close()
	}
}

func TestLoadMultipleRuns(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.bin")

	const total = 1000
	pairs := make([][2]uint32, 0, total)
	r := rand.New(rand.NewSource(3))
	for _, k := range r.Perm(total) {
		pairs = append(pairs, [2]uint32{uint32(k), uint32(k)})
	}
	writeSource(t, source, pairs)

	tr := openTarget(t)
	defer tr.Close()

	// small budget forces many runs and an actual merge
	n, err := Load(source, tr, node.Uint32NativeCodec(), node.Uint32NativeCodec(),
		func(a, b uint32) int { return int(a) - int(b) },
		Options{TempDir: dir, AvailableMemory: 8 * 8}) // ~8 records per run
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != total {
		t.Fatalf("inserted %d, want %d", n, total)
	}

	it, err := tr.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	prev := int64(-1)
	count := 0
	for it.Valid() {
		k := int64(it.Key())
		if k <= prev {
			t.Fatalf("not strictly increasing at key %d after %d", k, prev)
		}
		prev = k
		count++
		if err := it.Next(); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	if count != total {
		t.Fatalf("walked %d elements, want %d", count, total)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp run file %s was not cleaned up", e.Name())
		}
	}
}

func TestLoadRejectsMalformedSource(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "bad.bin")
	if err := os.WriteFile(source, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tr := openTarget(t)
	defer tr.Close()

	_, err := Load(source, tr, node.Uint32NativeCodec(), node.Uint32NativeCodec(),
		func(a, b uint32) int { return int(a) - int(b) },
		Options{TempDir: dir})
	if err != ErrMalformedInput {
		t.Fatalf("got %v, want ErrMalformedInput", err)
	}
}

func TestLoadEmptySource(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(source, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tr := openTarget(t)
	defer tr.Close()

	n, err := Load(source, tr, node.Uint32NativeCodec(), node.Uint32NativeCodec(),
		func(a, b uint32) int { return int(a) - int(b) },
		Options{TempDir: dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 0 || tr.Size() != 0 {
		t.Fatalf("expected no-op load, got n=%d size=%d", n, tr.Size())
	}
}
