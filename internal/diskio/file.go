// Package diskio implements the byte-addressable file contract (spec C1):
// open/read/write/seek/close over a single named file, with typed errors
// in place of raw *os.PathError values.
package diskio

import (
	"io"
	"os"

	"github.com/zeebo/errs"
)

// Error is the class for every error this package returns.
var Error = errs.Class("diskio")

// ErrNotOpen is wrapped by Error and returned by any operation on a closed File.
var ErrNotOpen = Error.New("file is not open")

// IoError wraps an OS-level failure with the path that produced it, matching
// the Io(path, os_code) kind of spec §7.
type IoError struct {
	Path string
	Op   string
	Err  error
}

func (e *IoError) Error() string {
	return "diskio: " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *IoError) Unwrap() error { return e.Err }

// Mode is the open-mode bitmask recognized by Open.
type Mode uint32

const (
	ModeIn Mode = 1 << iota
	ModeOut
	ModeTruncate
	ModeRandomHint
	ModeSequentialHint
	ModePreload
	ModeSeekToEnd
)

// Whence mirrors io.Seek* without exposing the io package to callers who
// only depend on diskio.
type Whence int

const (
	SeekBegin   Whence = Whence(io.SeekStart)
	SeekCurrent Whence = Whence(io.SeekCurrent)
	SeekEnd     Whence = Whence(io.SeekEnd)
)

// File is a byte-addressable, seekable file. A zero File is not open; use
// Open to construct one.
type File struct {
	path   string
	f      *os.File
	closed bool
}

// Open opens path under the given mode bitmask. ModeTruncate implies
// ModeOut. ModePreload sequentially reads the whole file once to warm the
// OS page cache; ModeSeekToEnd positions the file pointer at EOF after open.
func Open(path string, mode Mode) (*File, error) {
	flags := os.O_RDONLY
	switch {
	case mode&ModeTruncate != 0:
		flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case mode&ModeOut != 0:
		flags = os.O_RDWR | os.O_CREATE
	case mode&ModeIn != 0:
		flags = os.O_RDONLY
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, &IoError{Path: path, Op: "open", Err: err}
	}

	df := &File{path: path, f: f}

	if mode&ModePreload != 0 {
		if err := df.preload(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if mode&ModeSeekToEnd != 0 {
		if _, err := df.Seek(0, SeekEnd); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return df, nil
}

func (d *File) preload() error {
	buf := make([]byte, 64*1024)
	if _, err := d.f.Seek(0, io.SeekStart); err != nil {
		return &IoError{Path: d.path, Op: "preload-seek", Err: err}
	}
	for {
		_, err := d.f.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return &IoError{Path: d.path, Op: "preload", Err: err}
		}
	}
	_, err := d.f.Seek(0, io.SeekStart)
	return err
}

// Read fills target with up to len(target) bytes, looping internally until
// either the buffer is full or EOF is reached. It returns the number of
// bytes actually read; a short count at EOF is not an error.
func (d *File) Read(target []byte) (int, error) {
	if d.closed {
		return 0, ErrNotOpen
	}
	n, err := io.ReadFull(d.f, target)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return n, nil
	}
	if err != nil {
		return n, &IoError{Path: d.path, Op: "read", Err: err}
	}
	return n, nil
}

// Write writes all of source, looping internally until every byte is
// transferred or an error occurs.
func (d *File) Write(source []byte) (int, error) {
	if d.closed {
		return 0, ErrNotOpen
	}
	n, err := d.f.Write(source)
	if err != nil {
		return n, &IoError{Path: d.path, Op: "write", Err: err}
	}
	return n, nil
}

// Seek repositions the file pointer. Seeking past end-of-file is permitted;
// a subsequent write there materializes the gap as zero bytes (a sparse
// file), per the underlying OS file semantics.
func (d *File) Seek(offset int64, whence Whence) (int64, error) {
	if d.closed {
		return 0, ErrNotOpen
	}
	n, err := d.f.Seek(offset, int(whence))
	if err != nil {
		return n, &IoError{Path: d.path, Op: "seek", Err: err}
	}
	return n, nil
}

// Size returns the current file size in bytes.
func (d *File) Size() (int64, error) {
	if d.closed {
		return 0, ErrNotOpen
	}
	fi, err := d.f.Stat()
	if err != nil {
		return 0, &IoError{Path: d.path, Op: "stat", Err: err}
	}
	return fi.Size(), nil
}

// Sync flushes OS buffers for the file to stable storage.
func (d *File) Sync() error {
	if d.closed {
		return ErrNotOpen
	}
	if err := d.f.Sync(); err != nil {
		return &IoError{Path: d.path, Op: "sync", Err: err}
	}
	return nil
}

// Close closes the file. Closing an already-closed File is a no-op.
func (d *File) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.f.Close(); err != nil {
		return &IoError{Path: d.path, Op: "close", Err: err}
	}
	return nil
}

// Path returns the path the file was opened with.
func (d *File) Path() string { return d.path }
