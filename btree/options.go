package btree

import (
	"encoding/binary"
	"log"

	"github.com/ngina-labs/btreestore/internal/node"
)

// Flags is the open-mode bitmask of spec §6.
type Flags uint32

const (
	// FlagReadOnly requires the file to exist; all mutators fail-with ErrReadOnly.
	FlagReadOnly Flags = 0x100
	// FlagReadWrite opens an existing file or creates a new one.
	FlagReadWrite Flags = 0x200
	// FlagTruncate behaves like FlagReadWrite but always creates an empty tree.
	FlagTruncate Flags = 0x400
	// FlagPreload sequentially reads the whole file after open to warm the OS cache.
	FlagPreload Flags = 0x1000
	// FlagCacheBranches pins branch pages permanently in the buffer cache.
	FlagCacheBranches Flags = 0x2000

	// internal, not user-settable: persisted in header.Flags alongside the user bits.
	flagUnique  Flags = 1
	flagKeyOnly Flags = 2
)

// SignatureDisableAll disables signature verification on reopen.
const SignatureDisableAll = ^uint64(0)

// Comparator orders two keys: negative if a<b, zero if equal, positive if a>b.
type Comparator[K any] func(a, b K) int

// OpenOptions configures Open for a single container variant.
type OpenOptions[K any, V any] struct {
	Path       string
	Flags      Flags
	Signature  uint64
	Comparator Comparator[K]
	KeyCodec   node.Codec[K]
	ValueCodec node.Codec[V] // ignored (VoidCodec) for key-only variants

	// PageSize is consulted only when creating a new file; on reopen the
	// page size is read back from the header. Defaults to 4096.
	PageSize uint32

	// MaxCachePages bounds the buffer manager's resident page count.
	// Defaults to 64.
	MaxCachePages uint32

	Logger *log.Logger

	// unique/keyOnly are set by the NewSet/NewMap/... constructors, not
	// directly by callers.
	unique  bool
	keyOnly bool
	splash  string
}

func (o OpenOptions[K, V]) normalized() OpenOptions[K, V] {
	if o.PageSize == 0 {
		o.PageSize = 4096
	}
	if o.MaxCachePages == 0 {
		o.MaxCachePages = 64
	}
	return o
}

// hostEndian is used for the header's own encoding (independent from the
// caller's chosen key/value codec endianness).
var hostEndian = binary.NativeEndian
