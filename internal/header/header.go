// Package header implements the fixed-width page-0 record of a tree file
// (spec C3, §3, §4.3): the marker, endianness byte, version, page
// geometry, root/free-list bookkeeping, and splash/user strings. It is
// byte-layout compatible across hosts: a header written big-endian is
// byte-swapped in place when opened on a little-endian host, and vice
// versa.
package header

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/errs"
)

// Error is the class for every error this package returns.
var Error = errs.Class("header")

// ErrCorrupt is wrapped by Error when the marker, size, or layout checks fail.
var ErrCorrupt = Error.New("corrupt header")

const (
	// Magic is the 32-bit marker stored at file offset 0.
	Magic uint32 = 0xBBBBBBBB

	// Size is the on-disk size of the header record in bytes. It is
	// deliberately exactly the minimum allowed page size (spec §3: "P
	// is... minimum 128"), so the header always fits in page 0 no
	// matter how small the caller configures pages.
	Size = 128

	// SplashLen and UserLen are the fixed string field widths.
	SplashLen = 32
	UserLen   = 32

	endianBig    = 1
	endianLittle = 2
)

// Flags recorded in the header; bits 0 and 1 are persisted because they
// must be checked for consistency across reopen (spec §6).
const (
	FlagUnique  uint32 = 1 << 0
	FlagKeyOnly uint32 = 1 << 1
)

// SignatureDisableAll is the distinguished "all ones" signature value that
// disables signature verification on reopen (spec §6).
const SignatureDisableAll uint64 = ^uint64(0)

// byte offsets within the 128-byte record.
const (
	offMagic        = 0
	offEndianness   = 4
	offMajor        = 5
	offMinor        = 6
	offReserved     = 7
	offPageSize     = 8
	offFlags        = 12
	offKeySize      = 16
	offMappedSize   = 20
	offElementCount = 24
	offPageCount    = 32
	offRootPageID   = 36
	offFirstLeafID  = 40
	offLastLeafID   = 44
	offFreeListHead = 48
	offRootLevel    = 52
	offSignature    = 56
	offSplash       = 64
	offUserString   = 96
)

// NoPage is the sentinel page id meaning "no such page" (root/leaf links,
// free-list terminator).
const NoPage uint32 = 0xFFFFFFFF

// MajorVersion/MinorVersion are stamped into every header this package
// writes.
const (
	MajorVersion uint8 = 1
	MinorVersion uint8 = 0
)

// Header is the in-memory, decoded form of page 0.
type Header struct {
	Endian       binary.ByteOrder
	Major, Minor uint8
	PageSize     uint32
	Flags        uint32
	KeySize      uint32
	MappedSize   uint32
	ElementCount uint64
	PageCount    uint32
	RootPageID   uint32
	FirstLeafID  uint32
	LastLeafID   uint32
	FreeListHead uint32
	RootLevel    uint32
	Signature    uint64
	Splash       [SplashLen]byte
	User         [UserLen]byte
}

// New builds a fresh header for a newly created tree file.
func New(endian binary.ByteOrder, pageSize uint32, flags uint32, keySize, mappedSize uint32, signature uint64, splash string) *Header {
	h := &Header{
		Endian:       endian,
		Major:        MajorVersion,
		Minor:        MinorVersion,
		PageSize:     pageSize,
		Flags:        flags,
		KeySize:      keySize,
		MappedSize:   mappedSize,
		PageCount:    1, // page 0, the header itself
		RootPageID:   NoPage,
		FirstLeafID:  NoPage,
		LastLeafID:   NoPage,
		FreeListHead: NoPage,
		RootLevel:    0,
		Signature:    signature,
	}
	copy(h.Splash[:], splash)
	return h
}

// SetSplash overwrites the splash field (truncating/zero-padding to SplashLen).
func (h *Header) SetSplash(s string) {
	h.Splash = [SplashLen]byte{}
	copy(h.Splash[:], s)
}

// SetUser overwrites the user string field.
func (h *Header) SetUser(s string) {
	h.User = [UserLen]byte{}
	copy(h.User[:], s)
}

func splashString(b [SplashLen]byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// SplashString returns the stored splash string (trimmed at the first NUL).
func (h *Header) SplashString() string { return splashString(h.Splash) }

// UserString returns the stored user string (trimmed at the first NUL).
func (h *Header) UserString() string { return splashString(h.User) }

// Encode serializes h into a Size-byte buffer using h.Endian.
func (h *Header) Encode() []byte {
	buf := make([]byte, Size)
	eb := h.Endian
	binary.BigEndian.PutUint32(buf[offMagic:], Magic) // marker is byte-order agnostic by convention: always written as its literal bytes
	if eb == binary.BigEndian {
		buf[offEndianness] = endianBig
	} else {
		buf[offEndianness] = endianLittle
	}
	buf[offMajor] = h.Major
	buf[offMinor] = h.Minor
	eb.PutUint32(buf[offPageSize:], h.PageSize)
	eb.PutUint32(buf[offFlags:], h.Flags)
	eb.PutUint32(buf[offKeySize:], h.KeySize)
	eb.PutUint32(buf[offMappedSize:], h.MappedSize)
	eb.PutUint64(buf[offElementCount:], h.ElementCount)
	eb.PutUint32(buf[offPageCount:], h.PageCount)
	eb.PutUint32(buf[offRootPageID:], h.RootPageID)
	eb.PutUint32(buf[offFirstLeafID:], h.FirstLeafID)
	eb.PutUint32(buf[offLastLeafID:], h.LastLeafID)
	eb.PutUint32(buf[offFreeListHead:], h.FreeListHead)
	eb.PutUint32(buf[offRootLevel:], h.RootLevel)
	eb.PutUint64(buf[offSignature:], h.Signature)
	copy(buf[offSplash:offSplash+SplashLen], h.Splash[:])
	copy(buf[offUserString:offUserString+UserLen], h.User[:])
	return buf
}

// Decode parses a Size-byte buffer (as read from page 0) into a Header. The
// endianness byte found in the buffer always governs how the remaining
// multi-byte fields are interpreted; Decode never byte-swaps by itself.
// Callers that want the header re-tagged for the host's byte order should
// call AdaptToHost on the result.
func Decode(buf []byte) (*Header, error) {
	if len(buf) < Size {
		return nil, fmt.Errorf("%w: short header buffer: %d bytes", ErrCorrupt, len(buf))
	}
	marker := binary.BigEndian.Uint32(buf[offMagic:])
	if marker != Magic {
		return nil, fmt.Errorf("%w: bad marker 0x%x", ErrCorrupt, marker)
	}

	var eb binary.ByteOrder
	switch buf[offEndianness] {
	case endianBig:
		eb = binary.BigEndian
	case endianLittle:
		eb = binary.LittleEndian
	default:
		return nil, fmt.Errorf("%w: bad endianness byte %d", ErrCorrupt, buf[offEndianness])
	}

	h := &Header{
		Endian:       eb,
		Major:        buf[offMajor],
		Minor:        buf[offMinor],
		PageSize:     eb.Uint32(buf[offPageSize:]),
		Flags:        eb.Uint32(buf[offFlags:]),
		KeySize:      eb.Uint32(buf[offKeySize:]),
		MappedSize:   eb.Uint32(buf[offMappedSize:]),
		ElementCount: eb.Uint64(buf[offElementCount:]),
		PageCount:    eb.Uint32(buf[offPageCount:]),
		RootPageID:   eb.Uint32(buf[offRootPageID:]),
		FirstLeafID:  eb.Uint32(buf[offFirstLeafID:]),
		LastLeafID:   eb.Uint32(buf[offLastLeafID:]),
		FreeListHead: eb.Uint32(buf[offFreeListHead:]),
		RootLevel:    eb.Uint32(buf[offRootLevel:]),
		Signature:    eb.Uint64(buf[offSignature:]),
	}
	copy(h.Splash[:], buf[offSplash:offSplash+SplashLen])
	copy(h.User[:], buf[offUserString:offUserString+UserLen])

	if h.PageSize < 128 {
		return nil, fmt.Errorf("%w: page size %d below minimum 128", ErrCorrupt, h.PageSize)
	}
	return h, nil
}

// HostEndian is this process's native byte order, used to decide whether an
// opened header needs the endian-flip rewrite described in spec §3/§4.3.
var HostEndian = binary.NativeEndian

// AdaptToHost re-tags the header for the host's native byte order if it was
// written under the opposite order. Field values are already correct in
// memory (Decode interpreted them using the stored order); this only
// changes h.Endian, so that the caller's next write of the header puts the
// on-disk bytes in the host's order, matching the "endian-flip routine"
// described in spec §3. It returns true if such a rewrite is needed.
func (h *Header) AdaptToHost() bool {
	hostBig := isBigEndian(HostEndian)
	storedBig := h.Endian == binary.BigEndian
	if hostBig == storedBig {
		return false
	}
	if hostBig {
		h.Endian = binary.BigEndian
	} else {
		h.Endian = binary.LittleEndian
	}
	return true
}

func isBigEndian(o binary.ByteOrder) bool {
	var buf [2]byte
	o.PutUint16(buf[:], 0x0102)
	return buf[0] == 0x01
}
