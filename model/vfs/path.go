package vfs

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// Path is an absolute path, as the list of the names from the root. The root
// folder has an empty path.
type Path []string

// String renders the path with slashes, the root being "/".
func (p Path) String() string {
	return "/" + strings.Join(p, "/")
}

// IsRoot returns true for the path of the root folder.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Base returns the last segment of the path, or "" for the root.
func (p Path) Base() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Dir returns the path of the parent. The parent of the root is the root.
func (p Path) Dir() Path {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1]
}

// Join returns a new path with name appended.
func (p Path) Join(name string) Path {
	joined := make(Path, len(p), len(p)+1)
	copy(joined, p)
	return append(joined, name)
}

// ParsePath splits a slash-separated path. Empty segments are ignored, so
// "", "/" and "//" are all the root.
func ParsePath(s string) (Path, error) {
	var p Path
	for _, seg := range strings.Split(s, "/") {
		if seg == "" {
			continue
		}
		if err := CheckName(seg); err != nil {
			return nil, err
		}
		p = append(p, seg)
	}
	return p, nil
}

// CheckName returns an error if the given name is not allowed for a file or
// a folder.
func CheckName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return ErrIllegalName
	}
	return nil
}

// IsRoot returns true if the node is the root folder of its backend: the
// folder that is its own parent.
func IsRoot(n Node) bool {
	if n == nil {
		return false
	}
	p := n.Parent()
	return p != nil && Node(p) == n
}

// AbsolutePath computes the path of the node by walking its parents up to
// the root. It is never cached.
func AbsolutePath(n Node) Path {
	var reversed []string
	for !IsRoot(n) {
		reversed = append(reversed, n.Name())
		n = n.Parent()
	}
	p := make(Path, len(reversed))
	for i, name := range reversed {
		p[len(reversed)-1-i] = name
	}
	return p
}

// Represent renders the absolute path of a node with the conventions of its
// backend.
func Represent(n Node) string {
	if n == nil {
		return ""
	}
	return n.Backend().RepresentPath(AbsolutePath(n))
}

// Equal tells if two handles designate the same node: same backend, same
// kind of node, same native id, same name and equal parents.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Backend() != b.Backend() {
		return false
	}
	if isFile(a) != isFile(b) {
		return false
	}
	if a.ID() != b.ID() || a.Name() != b.Name() {
		return false
	}
	ra, rb := IsRoot(a), IsRoot(b)
	if ra || rb {
		return ra && rb
	}
	return Equal(a.Parent(), b.Parent())
}

// Key returns a string that is equal for two nodes of the same backend if
// and only if Equal returns true for them. It can be used as a map key.
func Key(n Node) string {
	var b strings.Builder
	if isFile(n) {
		b.WriteString("file")
	} else {
		b.WriteString("folder")
	}
	for {
		b.WriteString("|")
		b.WriteString(strconv.Quote(n.ID()))
		b.WriteString(":")
		b.WriteString(strconv.Quote(n.Name()))
		if IsRoot(n) {
			break
		}
		n = n.Parent()
	}
	return b.String()
}

func isFile(n Node) bool {
	_, ok := n.(File)
	return ok
}

// Lookup resolves a path from the given root folder. It returns a File or a
// Folder. When a file and a folder share the last name, the folder wins.
func Lookup(ctx context.Context, root Folder, p Path) (Node, error) {
	if p.IsRoot() {
		return root, nil
	}
	parent, err := LookupFolder(ctx, root, p.Dir())
	if err != nil {
		return nil, err
	}
	dir, err := parent.Folder(ctx, p.Base())
	if err == nil {
		return dir, nil
	}
	if !errors.Is(err, ErrFolderNotFound) {
		return nil, err
	}
	return parent.File(ctx, p.Base())
}

// LookupFolder resolves the folder with the given path from root.
func LookupFolder(ctx context.Context, root Folder, p Path) (Folder, error) {
	dir := root
	for _, name := range p {
		next, err := dir.Folder(ctx, name)
		if err != nil {
			return nil, err
		}
		dir = next
	}
	return dir, nil
}

// LookupFile resolves the file with the given path from root.
func LookupFile(ctx context.Context, root Folder, p Path) (File, error) {
	if p.IsRoot() {
		return nil, NotFound("lookup", FileNode, root.Backend().RepresentPath(p), nil)
	}
	parent, err := LookupFolder(ctx, root, p.Dir())
	if err != nil {
		return nil, err
	}
	return parent.File(ctx, p.Base())
}
