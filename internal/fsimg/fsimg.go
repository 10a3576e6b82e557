// Package fsimg is the minimal in-memory program-image file layer
// spawn (C8) needs. The real file system, line editor, and shell
// parser are external collaborators this core never implements; this
// package exists only because spawn still needs *something* to open
// program images from, and demand paging from disk is out of scope.
package fsimg

import (
	"fmt"

	"envkernel/internal/defs"
)

/// File_t is an open program image: a named byte slice plus a cursor.
type File_t struct {
	name string
	data []byte
	pos  int
}

var registry = map[string][]byte{}

/// Register installs data as the program image reachable under name.
/// A test harness or cmd tool calls this before Open, in place of a
/// real disk-backed file system.
func Register(name string, data []byte) {
	registry[name] = data
}

/// Open returns a handle on the program image named name.
func Open(name string) (*File_t, error) {
	data, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("fsimg: no such image %q", name)
	}
	return &File_t{name: name, data: data}, nil
}

/// Read copies into p starting at the current cursor, advancing it.
func (f *File_t) Read(p []byte) (int, error) {
	if f.pos >= len(f.data) {
		return 0, fmt.Errorf("fsimg: eof")
	}
	n := copy(p, f.data[f.pos:])
	f.pos += n
	return n, nil
}

/// Readn reads exactly n bytes starting at off, without disturbing
/// the cursor -- the positioned read user/spawn.c calls readn with.
func (f *File_t) Readn(off, n int) ([]byte, error) {
	if off < 0 || off+n > len(f.data) {
		return nil, fmt.Errorf("fsimg: out of range read")
	}
	return f.data[off : off+n], nil
}

/// Seek repositions the cursor to off.
func (f *File_t) Seek(off int) error {
	if off < 0 || off > len(f.data) {
		return fmt.Errorf("fsimg: bad seek offset")
	}
	f.pos = off
	return nil
}

/// ReadMap returns a direct slice onto the backing array for the
/// page-aligned, fully resident range [off, off+PGSIZE) -- a
/// zero-copy path for a loader that wants a whole page at once. It
/// reports false when the range isn't page-aligned or runs past the
/// image, in which case the caller falls back to a scratch-page
/// partial read.
func (f *File_t) ReadMap(off int) ([]byte, bool) {
	if !defs.Pgaligned(off) {
		return nil, false
	}
	if off+defs.PGSIZE > len(f.data) {
		return nil, false
	}
	return f.data[off : off+defs.PGSIZE], true
}

/// Size returns the total length of the image in bytes.
func (f *File_t) Size() int {
	return len(f.data)
}

/// Bytes returns the image's full backing array, for callers (the ELF
/// loader in package spawn) that need an io.ReaderAt over the whole
/// image rather than a single positioned read.
func (f *File_t) Bytes() []byte {
	return f.data
}

/// Close releases the handle. There is nothing to flush: the image is
/// an immutable in-memory byte slice.
func (f *File_t) Close() error {
	f.data = nil
	return nil
}
