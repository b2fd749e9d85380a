package diskio

import (
	"crypto/rand"
	"errors"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	f, err := Open(path, ModeTruncate)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	data := make([]byte, 4096)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := f.Seek(0, SeekBegin); err != nil {
		t.Fatalf("seek: %v", err)
	}
	got := make([]byte, len(data))
	n, err := f.Read(got)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != len(data) {
		t.Fatalf("short read: got %d want %d", n, len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte mismatch at %d: got %x want %x", i, got[i], data[i])
		}
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestShortReadAtEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	f, err := Open(path, ModeTruncate)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte("abc")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := f.Seek(0, SeekBegin); err != nil {
		t.Fatalf("seek: %v", err)
	}
	buf := make([]byte, 16)
	n, err := f.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected short count 3, got %d", n)
	}
}

func TestSparseSeekAndWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	f, err := Open(path, ModeTruncate)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if _, err := f.Seek(1000, SeekBegin); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if _, err := f.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	sz, err := f.Size()
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if sz != 1001 {
		t.Fatalf("expected size 1001, got %d", sz)
	}
}

func TestCloseIsIdempotentAndNotOpenAfterward(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	f, err := Open(path, ModeTruncate)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}
	if _, err := f.Write([]byte("x")); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestOpenMissingFileWithoutOutFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")
	if _, err := Open(path, ModeIn); err == nil {
		t.Fatalf("expected error opening missing file read-only")
	}
}
