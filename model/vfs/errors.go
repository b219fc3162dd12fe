package vfs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the category of a vfs error. Callers should not need to know the
// native error types of the backends: every backend translates its failures
// into one of these kinds.
type Kind int

const (
	// KindNotFound is used when a file or a folder does not exist.
	KindNotFound Kind = iota + 1
	// KindAlreadyExists is used when a creation collides with an existing
	// node of the same name.
	KindAlreadyExists
	// KindNotEmpty is used when a non-recursive removal targets a folder with
	// children.
	KindNotEmpty
	// KindBackendFailure wraps the native failures of a backend (I/O, SQL,
	// HTTP, authorization...).
	KindBackendFailure
	// KindInvariantViolation is used when the backend storage is in a state
	// it should never be in, like two rows for the same name.
	KindInvariantViolation
	// KindCrossBackend is used when a backend is asked to copy or move a file
	// into a folder owned by another backend.
	KindCrossBackend
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindNotEmpty:
		return "folder is not empty"
	case KindBackendFailure:
		return "backend failure"
	case KindInvariantViolation:
		return "invariant violation"
	case KindCrossBackend:
		return "cross-backend operation"
	}
	return "unknown error"
}

// NodeType tells if an error is about a file, a folder, or any node.
type NodeType int

const (
	// AnyNode is used when the error is not specific to a kind of node.
	AnyNode NodeType = iota
	// FileNode is used for errors about files.
	FileNode
	// FolderNode is used for errors about folders.
	FolderNode
)

func (t NodeType) String() string {
	switch t {
	case FileNode:
		return "file"
	case FolderNode:
		return "folder"
	}
	return "node"
}

// Error is the error type returned by all the backends.
type Error struct {
	Kind Kind
	Type NodeType
	// Op is the name of the operation that failed, like "create-file".
	Op string
	// Path is the rendered path of the node on which the operation failed.
	Path string
	// Conflict is the existing node for an AlreadyExists error, when the
	// backend knows it.
	Conflict Node
	// Err is the native cause, if any.
	Err error
}

var (
	// ErrNotFound matches any NotFound error.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrFileNotFound matches the NotFound errors for files.
	ErrFileNotFound = &Error{Kind: KindNotFound, Type: FileNode}
	// ErrFolderNotFound matches the NotFound errors for folders.
	ErrFolderNotFound = &Error{Kind: KindNotFound, Type: FolderNode}
	// ErrExists matches any AlreadyExists error.
	ErrExists = &Error{Kind: KindAlreadyExists}
	// ErrFileExists matches the AlreadyExists errors for files.
	ErrFileExists = &Error{Kind: KindAlreadyExists, Type: FileNode}
	// ErrFolderExists matches the AlreadyExists errors for folders.
	ErrFolderExists = &Error{Kind: KindAlreadyExists, Type: FolderNode}
	// ErrNotEmpty matches the NotEmpty errors.
	ErrNotEmpty = &Error{Kind: KindNotEmpty}
	// ErrBackend matches the errors coming from a backend failure.
	ErrBackend = &Error{Kind: KindBackendFailure}
	// ErrInvariant matches the invariant violations.
	ErrInvariant = &Error{Kind: KindInvariantViolation}
	// ErrCrossBackend matches the errors for copy/move across backends.
	ErrCrossBackend = &Error{Kind: KindCrossBackend}

	// ErrRootRemoval is the cause of a backend failure when trying to remove
	// the root folder.
	ErrRootRemoval = errors.New("the root folder cannot be removed")
	// ErrIllegalName is used when the given name is empty or contains an
	// illegal character
	ErrIllegalName = errors.New("invalid name: empty or contains an illegal character")
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("vfs: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	switch e.Kind {
	case KindNotFound, KindAlreadyExists:
		b.WriteString(e.Type.String())
		b.WriteString(" ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes the sentinel errors of this package usable with errors.Is. A
// sentinel with AnyNode matches both files and folders.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || !t.isSentinel() {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Type == AnyNode || t.Type == e.Type
}

func (e *Error) isSentinel() bool {
	return e.Op == "" && e.Path == "" && e.Err == nil && e.Conflict == nil
}

// NotFound returns an error for a missing file or folder.
func NotFound(op string, typ NodeType, path string, cause error) error {
	return &Error{Kind: KindNotFound, Type: typ, Op: op, Path: path, Err: cause}
}

// Exists returns an error for a name collision. The conflicting node can be
// nil when the backend does not know it.
func Exists(op string, typ NodeType, path string, conflict Node, cause error) error {
	return &Error{Kind: KindAlreadyExists, Type: typ, Op: op, Path: path, Conflict: conflict, Err: cause}
}

// NotEmpty returns an error for the non-recursive removal of a non-empty
// folder.
func NotEmpty(op, path string, cause error) error {
	return &Error{Kind: KindNotEmpty, Type: FolderNode, Op: op, Path: path, Err: cause}
}

// Failure wraps a native error of a backend.
func Failure(op, path string, cause error) error {
	return &Error{Kind: KindBackendFailure, Op: op, Path: path, Err: cause}
}

// Invariant returns an error for a backend storage in an unexpected state.
func Invariant(op, path, format string, args ...interface{}) error {
	return &Error{Kind: KindInvariantViolation, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// CrossBackend returns the error used when a backend receives a folder it
// does not own.
func CrossBackend(op, path string) error {
	return &Error{Kind: KindCrossBackend, Op: op, Path: path}
}

// IsNotFound returns true if the error is a NotFound error for a file or a
// folder.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsExists returns true if the error is an AlreadyExists error.
func IsExists(err error) bool {
	return errors.Is(err, ErrExists)
}

// ConflictOf returns the conflicting node carried by an AlreadyExists error,
// or nil.
func ConflictOf(err error) Node {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindAlreadyExists {
		return e.Conflict
	}
	return nil
}
