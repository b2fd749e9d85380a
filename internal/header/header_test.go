package header

import (
	"encoding/binary"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := New(binary.BigEndian, 4096, FlagUnique, 4, 0, 0xCAFEBABE, "btree_set")
	h.ElementCount = 42
	h.PageCount = 7
	h.RootPageID = 3
	h.RootLevel = 1
	h.SetUser("demo")

	buf := h.Encode()
	if len(buf) != Size {
		t.Fatalf("expected %d bytes, got %d", Size, len(buf))
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ElementCount != 42 || got.PageCount != 7 || got.RootPageID != 3 || got.RootLevel != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.SplashString() != "btree_set" {
		t.Fatalf("splash mismatch: %q", got.SplashString())
	}
	if got.UserString() != "demo" {
		t.Fatalf("user string mismatch: %q", got.UserString())
	}
	if got.Signature != 0xCAFEBABE {
		t.Fatalf("signature mismatch: %x", got.Signature)
	}
}

func TestDecodeRejectsBadMarker(t *testing.T) {
	buf := make([]byte, Size)
	if _, err := Decode(buf); err == nil {
		t.Fatalf("expected error for zeroed buffer")
	}
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	if _, err := Decode(make([]byte, 4)); err == nil {
		t.Fatalf("expected error for short buffer")
	}
}

func TestEndianInterop(t *testing.T) {
	be := New(binary.BigEndian, 256, 0, 4, 0, SignatureDisableAll, "btree_set")
	be.ElementCount = 2
	be.RootPageID = 1

	buf := be.Encode()

	// Decoding must honor the endianness byte regardless of which order
	// we happen to read with here — the value must come back unchanged.
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ElementCount != 2 || got.RootPageID != 1 {
		t.Fatalf("cross-endian decode mismatch: %+v", got)
	}
}
