// Package index implements an index over an external flat data file (spec
// C6, §4.6): a B+-tree of file positions, ordered by dereferencing each
// position back into the flat file and comparing the record found there,
// instead of copying keys into the tree itself.
//
// Grounded on the Boost.btree original (_examples/original_source/include/
// boost/btree/{mmff.hpp, detail/index_bases.hpp, btree_index.hpp}): a
// memory-mapped, extendible flat file shared by one or more indexes, each
// index a btree_set<position, indirect_compare>. FlatFile plays mmff.hpp's
// role using golang.org/x/sys/unix directly rather than boost::iostreams.
package index

import (
	"os"

	"github.com/zeebo/errs"
	"golang.org/x/sys/unix"
)

// Error is the class for every error this package returns.
var Error = errs.Class("index")

// ErrNotOpen is returned by any operation on a closed FlatFile.
var ErrNotOpen = Error.New("flat file is not open")

// FlatFile is an append-only, growable, memory-mapped data file shared by
// one or more Index values (spec §4.6: "multiple indexes may share one
// flat file"). Growth doubles the reservation, matching the original's
// "increase_size resizes when the logical size outgrows the mapping."
type FlatFile struct {
	path     string
	f        *os.File
	data     []byte // current mapping
	size     uint64 // logical size (<=len(data))
	readOnly bool
}

const minReserve = 64 * 1024

// OpenFlatFile opens or creates the flat file at path. readOnly maps
// PROT_READ only; a read-only open of a nonexistent file is an error.
func OpenFlatFile(path string, readOnly bool) (*FlatFile, error) {
	flags := os.O_RDWR | os.O_CREATE
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, Error.Wrap(err)
	}
	ff := &FlatFile{path: path, f: f, size: uint64(fi.Size()), readOnly: readOnly}
	if err := ff.remap(ff.reserveFor(ff.size)); err != nil {
		_ = f.Close()
		return nil, err
	}
	return ff, nil
}

func (ff *FlatFile) reserveFor(sz uint64) uint64 {
	r := uint64(minReserve)
	for r < sz {
		r *= 2
	}
	return r
}

func (ff *FlatFile) remap(reserve uint64) error {
	if reserve == 0 {
		reserve = minReserve
	}
	fi, err := ff.f.Stat()
	if err != nil {
		return Error.Wrap(err)
	}
	if uint64(fi.Size()) < reserve {
		if ff.readOnly {
			reserve = uint64(fi.Size())
		} else if err := ff.f.Truncate(int64(reserve)); err != nil {
			return Error.Wrap(err)
		}
	} else {
		reserve = uint64(fi.Size())
	}

	if ff.data != nil {
		if err := unix.Munmap(ff.data); err != nil {
			return Error.Wrap(err)
		}
		ff.data = nil
	}
	if reserve == 0 {
		return nil
	}
	prot := unix.PROT_READ
	if !ff.readOnly {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(ff.f.Fd()), 0, int(reserve), prot, unix.MAP_SHARED)
	if err != nil {
		return Error.Wrap(err)
	}
	ff.data = data
	return nil
}

// Bytes returns the mapped region covering the file's logical size. The
// slice is invalidated by the next Append that triggers growth.
func (ff *FlatFile) Bytes() []byte {
	if ff.data == nil {
		return nil
	}
	return ff.data[:ff.size]
}

// Size returns the logical (not reserved) size of the file.
func (ff *FlatFile) Size() uint64 { return ff.size }

// Append writes rec at the current end of the file, growing (and
// remapping) if the reservation is exhausted, and returns its offset.
func (ff *FlatFile) Append(rec []byte) (uint64, error) {
	if ff.readOnly {
		return 0, Error.New("flat file is read-only")
	}
	if ff.f == nil {
		return 0, ErrNotOpen
	}
	pos := ff.size
	need := ff.size + uint64(len(rec))
	if need > uint64(len(ff.data)) {
		if err := ff.remap(ff.reserveFor(need)); err != nil {
			return 0, err
		}
	}
	copy(ff.data[pos:need], rec)
	ff.size = need
	return pos, nil
}

// Record returns the n-byte record stored at pos.
func (ff *FlatFile) Record(pos uint64, n int) []byte {
	return ff.data[pos : pos+uint64(n)]
}

// Flush msyncs the mapped region to disk.
func (ff *FlatFile) Flush() error {
	if ff.data == nil {
		return nil
	}
	return Error.Wrap(unix.Msync(ff.data[:len(ff.data)], unix.MS_SYNC))
}

// Close unmaps and closes the underlying file, truncating it to its
// logical size first so the on-disk size matches Size() (spec §4.6:
// "the flat file's on-disk size is its logical size, not its reservation").
func (ff *FlatFile) Close() error {
	if ff.f == nil {
		return nil
	}
	if ff.data != nil {
		if err := unix.Munmap(ff.data); err != nil {
			return Error.Wrap(err)
		}
		ff.data = nil
	}
	if !ff.readOnly {
		if err := ff.f.Truncate(int64(ff.size)); err != nil {
			return Error.Wrap(err)
		}
	}
	err := ff.f.Close()
	ff.f = nil
	if err != nil {
		return Error.Wrap(err)
	}
	return nil
}
