package btree

import "github.com/zeebo/errs"

// Error is the class for every error this package returns (spec §7's
// error taxonomy), following the same errs.Class convention used by
// internal/diskio, internal/buffer and internal/header.
var Error = errs.Class("btree")

var (
	// ErrSignatureMismatch: open signature disagrees with the stored one.
	ErrSignatureMismatch = Error.New("signature mismatch")
	// ErrTypeMismatch: key or value size disagrees with the stored sizes.
	ErrTypeMismatch = Error.New("type mismatch")
	// ErrReadOnly: mutation attempted on a read-only handle.
	ErrReadOnly = Error.New("tree is read-only")
	// ErrNotOpen: operation on a closed handle.
	ErrNotOpen = Error.New("tree is not open")
	// ErrOutOfRange: page id or iterator out of valid range.
	ErrOutOfRange = Error.New("out of range")
	// ErrCorrupt: structural inconsistency discovered during descent.
	ErrCorrupt = Error.New("corrupt tree")
	// ErrCorruptHeader: marker/endianness/version/size check failed.
	ErrCorruptHeader = Error.New("corrupt header")
	// ErrInvalidIterator: erase(iter) called on an iterator obtained
	// before the tree's most recent mutation (spec §9 open question: fail
	// rather than guess).
	ErrInvalidIterator = Error.New("invalid iterator")
)
