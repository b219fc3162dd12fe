// Package vfs is for the virtual file system. It defines the contracts that
// every storage backend (local disk, embedded database, remote drive, object
// store) implements, so that callers can list, create, read, write, delete,
// copy and move nodes the same way on any of them.
package vfs

import (
	"context"
	"io"
)

// Node is the common part of files and folders. Nodes are immutable handles:
// they are re-created by each query to the backend, and an operation on a
// handle whose target has disappeared fails with a NotFound error.
type Node interface {
	// Name is the last segment of the path of the node. It is empty only for
	// the root folder.
	Name() string
	// Parent returns the folder containing this node. The root folder is its
	// own parent.
	Parent() Folder
	// ID is the backend-native identity of the node, rendered as a string.
	ID() string
	// Backend returns the VFS owning the node.
	Backend() VFS
}

// Folder is a node that can contain other nodes. Every call queries the
// backend, there is no cache.
type Folder interface {
	Node

	// List returns the direct children of the folder.
	List(ctx context.Context) ([]Node, error)
	// CreateFolder creates an empty folder with the given name.
	CreateFolder(ctx context.Context, name string) (Folder, error)
	// CreateFile creates an empty file with the given name.
	CreateFile(ctx context.Context, name string) (File, error)
	// Remove deletes the folder. Without recursively, the folder must be
	// empty.
	Remove(ctx context.Context, recursively bool) error
	// Folder returns the child folder with the given name.
	Folder(ctx context.Context, name string) (Folder, error)
	// File returns the child file with the given name.
	File(ctx context.Context, name string) (File, error)
}

// File is a node with some content.
type File interface {
	Node

	// Read returns the full content of the file.
	Read(ctx context.Context) ([]byte, error)
	// Write replaces the full content of the file.
	Write(ctx context.Context, data []byte) error
	// Remove deletes the file.
	Remove(ctx context.Context) error
}

// Sizer is implemented by the files that can give their size without
// reading their content.
type Sizer interface {
	Size(ctx context.Context) (int64, error)
}

// Described is implemented by the files whose handles carry the metadata
// given by the backend when they were listed, created or last written.
type Described interface {
	// MimeType is the content type of the file.
	MimeType() string
	// KnownSize is the size of the file, without asking the backend again.
	KnownSize() int64
}

// Streamer is implemented by the files that can be read and written as
// streams. The copy and move operations use it when both sides support it.
type Streamer interface {
	// Open returns a reader on the content of the file. The caller must close
	// it.
	Open(ctx context.Context) (io.ReadCloser, error)
	// WriteFrom replaces the content of the file with what is read from r.
	WriteFrom(ctx context.Context, r io.Reader) error
}

// VFS is a storage backend.
type VFS interface {
	// Name is a short name of the backend kind, used in logs and metrics.
	Name() string
	// Root returns the root folder of the backend.
	Root() Folder
	// RepresentPath renders an absolute path for humans.
	RepresentPath(p Path) string

	// Copy copies the file in newParent, with newName or with the name of
	// the file if newName is empty. If a file already exists with the target
	// name, an AlreadyExists error is returned, unless overwrite is true and
	// then the content of the existing file is replaced. newParent must be
	// owned by this backend, or a CrossBackendOperation error is returned.
	Copy(ctx context.Context, file File, newParent Folder, newName string, overwrite bool) (File, error)
	// Move is like Copy, but the source file is removed after the target has
	// been written.
	Move(ctx context.Context, file File, newParent Folder, newName string, overwrite bool) (File, error)
}

// Copy copies a file into a folder of any backend: the operation is
// delegated to the backend owning newParent.
func Copy(ctx context.Context, file File, newParent Folder, newName string, overwrite bool) (File, error) {
	return newParent.Backend().Copy(ctx, file, newParent, newName, overwrite)
}

// Move moves a file into a folder of any backend: the operation is
// delegated to the backend owning newParent.
func Move(ctx context.Context, file File, newParent Folder, newName string, overwrite bool) (File, error) {
	return newParent.Backend().Move(ctx, file, newParent, newName, overwrite)
}

// Owns returns true if the node belongs to the given backend.
func Owns(fs VFS, n Node) bool {
	return n != nil && n.Backend() == fs
}

// CheckOwnership returns a CrossBackendOperation error if newParent is not
// owned by fs.
func CheckOwnership(fs VFS, op string, newParent Folder) error {
	if Owns(fs, newParent) {
		return nil
	}
	return CrossBackend(op, Represent(newParent))
}
