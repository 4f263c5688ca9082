// Package file implements the reference-counted open file objects that
// process descriptor tables point to.
package file

import (
	"sync/atomic"

	"xv6trap/kernel"
)

var errCloseUnreferenced = &kernel.Error{Module: "file", Message: "close of a file with no references"}

// File is an open file. Several descriptors, possibly belonging to different
// processes, may refer to the same File; the object stays open until every
// reference has been closed.
type File struct {
	// Name identifies the file in diagnostics.
	Name string

	refs int32
}

// New returns an open file holding a single reference.
func New(name string) *File {
	return &File{Name: name, refs: 1}
}

// Dup adds a reference to f and returns it.
func (f *File) Dup() *File {
	atomic.AddInt32(&f.refs, 1)
	return f
}

// Close drops one reference to f.
func (f *File) Close() *kernel.Error {
	if atomic.AddInt32(&f.refs, -1) < 0 {
		atomic.AddInt32(&f.refs, 1)
		return errCloseUnreferenced
	}
	return nil
}

// Refs returns the number of live references to f.
func (f *File) Refs() int32 {
	return atomic.LoadInt32(&f.refs)
}

// Open reports whether f still has live references.
func (f *File) Open() bool {
	return f.Refs() > 0
}
