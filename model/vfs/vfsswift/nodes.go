package vfsswift

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ncw/swift/v2"
	"github.com/vsalavatov/multifs/model/vfs"
	"github.com/vsalavatov/multifs/pkg/filetype"
)

type folder struct {
	sfs    *swiftVFS
	name   string
	parent *folder
}

func (f *folder) Name() string { return f.name }

func (f *folder) Parent() vfs.Folder {
	if f.parent == nil {
		return f
	}
	return f.parent
}

// ID is the name of the marker object, and the prefix of the objects of the
// children.
func (f *folder) ID() string { return f.prefix() }

func (f *folder) Backend() vfs.VFS { return f.sfs }

func (f *folder) prefix() string {
	p := vfs.AbsolutePath(f)
	if len(p) == 0 {
		return ""
	}
	return strings.Join(p, "/") + "/"
}

func (f *folder) newFolder(name string) *folder {
	return &folder{sfs: f.sfs, name: name, parent: f}
}

func (f *folder) newFile(name string) *file {
	return &file{sfs: f.sfs, name: name, parent: f}
}

// check returns a NotFound error if the folder has neither a marker nor
// objects under its prefix.
func (f *folder) check(ctx context.Context, op string) error {
	if f.parent == nil {
		return nil
	}
	ok, err := f.sfs.folderExists(ctx, f.prefix())
	if err != nil {
		return translate(op, vfs.FolderNode, vfs.Represent(f), err)
	}
	if !ok {
		return vfs.NotFound(op, vfs.FolderNode, vfs.Represent(f), nil)
	}
	return nil
}

func (f *folder) List(ctx context.Context) ([]vfs.Node, error) {
	if err := f.check(ctx, "list"); err != nil {
		return nil, err
	}
	prefix := f.prefix()
	objects, err := f.sfs.c.ObjectsAll(ctx, f.sfs.container, &swift.ObjectsOpts{
		Prefix:    prefix,
		Delimiter: '/',
	})
	if err != nil {
		return nil, translate("list", vfs.FolderNode, vfs.Represent(f), err)
	}
	nodes := make([]vfs.Node, 0, len(objects))
	seen := make(map[string]bool)
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Name, prefix)
		if name == "" {
			continue
		}
		// Pseudo-directories and markers of the sub-folders
		if dir, _, ok := strings.Cut(name, "/"); ok {
			if !seen[dir] {
				seen[dir] = true
				nodes = append(nodes, f.newFolder(dir))
			}
			continue
		}
		nodes = append(nodes, f.newFile(name))
	}
	return nodes, nil
}

// create puts the object of a new child, after checking that the folder
// exists and that no child has this name. Swift cannot do it atomically.
func (f *folder) create(ctx context.Context, op, name string, typ vfs.NodeType) error {
	if err := vfs.CheckName(name); err != nil {
		return vfs.Failure(op, vfs.Represent(f), err)
	}
	if err := f.check(ctx, op); err != nil {
		return err
	}
	candidates := []vfs.Node{f.newFolder(name), f.newFile(name)}
	for _, n := range candidates {
		var ok bool
		var err error
		if _, isDir := n.(*folder); isDir {
			ok, err = f.sfs.folderExists(ctx, n.ID())
		} else {
			ok, err = f.sfs.exists(ctx, n.ID())
		}
		if err != nil {
			return translate(op, typ, vfs.Represent(n), err)
		}
		if ok {
			return vfs.Exists(op, typ, vfs.Represent(n), n, nil)
		}
	}
	objName, contentType := f.prefix()+name, FileContentType
	if typ == vfs.FolderNode {
		objName, contentType = objName+"/", DirContentType
	}
	if err := f.sfs.c.ObjectPutBytes(ctx, f.sfs.container, objName, nil, contentType); err != nil {
		return translate(op, vfs.FolderNode, vfs.Represent(f), err)
	}
	f.sfs.log.Debugf("Created %s", objName)
	return nil
}

func (f *folder) CreateFolder(ctx context.Context, name string) (vfs.Folder, error) {
	if err := f.create(ctx, "create-folder", name, vfs.FolderNode); err != nil {
		return nil, err
	}
	return f.newFolder(name), nil
}

func (f *folder) CreateFile(ctx context.Context, name string) (vfs.File, error) {
	if err := f.create(ctx, "create-file", name, vfs.FileNode); err != nil {
		return nil, err
	}
	return f.newFile(name), nil
}

func (f *folder) Remove(ctx context.Context, recursively bool) error {
	pth := vfs.Represent(f)
	if f.parent == nil {
		return vfs.Failure("remove", pth, vfs.ErrRootRemoval)
	}
	if err := f.check(ctx, "remove"); err != nil {
		return err
	}
	prefix := f.prefix()
	if !recursively {
		objects, err := f.sfs.c.Objects(ctx, f.sfs.container, &swift.ObjectsOpts{Prefix: prefix, Limit: 2})
		if err != nil {
			return translate("remove", vfs.FolderNode, pth, err)
		}
		for _, obj := range objects {
			if obj.Name != prefix {
				return vfs.NotEmpty("remove", pth, nil)
			}
		}
	} else {
		names, err := f.sfs.c.ObjectNamesAll(ctx, f.sfs.container, &swift.ObjectsOpts{Prefix: prefix})
		if err != nil {
			return translate("remove", vfs.FolderNode, pth, err)
		}
		children := names[:0]
		for _, name := range names {
			if name != prefix {
				children = append(children, name)
			}
		}
		// The marker is kept if a child cannot be deleted, to not leave
		// orphan objects in an invisible folder.
		if err := deleteObjects(ctx, f.sfs.c, f.sfs.container, children); err != nil {
			f.sfs.log.Warnf("Could not delete the content of %s: %s", pth, err)
			return vfs.Failure("remove", pth, err)
		}
	}
	// A pseudo-directory has no marker to delete.
	err := f.sfs.c.ObjectDelete(ctx, f.sfs.container, prefix)
	if err != nil && !errors.Is(err, swift.ObjectNotFound) {
		return translate("remove", vfs.FolderNode, pth, err)
	}
	f.sfs.log.Debugf("Removed folder %s (recursively: %t)", pth, recursively)
	return nil
}

func (f *folder) Folder(ctx context.Context, name string) (vfs.Folder, error) {
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure("lookup", vfs.Represent(f), err)
	}
	child := f.newFolder(name)
	if err := child.check(ctx, "lookup"); err != nil {
		return nil, err
	}
	return child, nil
}

func (f *folder) File(ctx context.Context, name string) (vfs.File, error) {
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure("lookup", vfs.Represent(f), err)
	}
	child := f.newFile(name)
	if _, err := child.info(ctx, "lookup"); err != nil {
		return nil, err
	}
	return child, nil
}

type file struct {
	sfs    *swiftVFS
	name   string
	parent *folder
}

func (f *file) Name() string { return f.name }

func (f *file) Parent() vfs.Folder { return f.parent }

// ID is the name of the object.
func (f *file) ID() string { return f.parent.prefix() + f.name }

func (f *file) Backend() vfs.VFS { return f.sfs }

func (f *file) info(ctx context.Context, op string) (swift.Object, error) {
	obj, _, err := f.sfs.c.Object(ctx, f.sfs.container, f.ID())
	if err != nil {
		return obj, translate(op, vfs.FileNode, vfs.Represent(f), err)
	}
	return obj, nil
}

func (f *file) Read(ctx context.Context) ([]byte, error) {
	data, err := f.sfs.c.ObjectGetBytes(ctx, f.sfs.container, f.ID())
	if err != nil {
		return nil, translate("read", vfs.FileNode, vfs.Represent(f), err)
	}
	return data, nil
}

func (f *file) Write(ctx context.Context, data []byte) error {
	if _, err := f.info(ctx, "write"); err != nil {
		return err
	}
	contentType := filetype.Guess(f.name, data)
	if err := f.sfs.c.ObjectPutBytes(ctx, f.sfs.container, f.ID(), data, contentType); err != nil {
		return translate("write", vfs.FileNode, vfs.Represent(f), err)
	}
	f.sfs.log.Debugf("Wrote %d bytes in %s", len(data), f.ID())
	return nil
}

func (f *file) Open(ctx context.Context) (io.ReadCloser, error) {
	r, _, err := f.sfs.c.ObjectOpen(ctx, f.sfs.container, f.ID(), false, nil)
	if err != nil {
		return nil, translate("read", vfs.FileNode, vfs.Represent(f), err)
	}
	return r, nil
}

func (f *file) WriteFrom(ctx context.Context, r io.Reader) error {
	if _, err := f.info(ctx, "write"); err != nil {
		return err
	}
	contentType, r := filetype.FromReader(f.name, r)
	_, err := f.sfs.c.ObjectPut(ctx, f.sfs.container, f.ID(), r, false, "", contentType, nil)
	if err != nil {
		return translate("write", vfs.FileNode, vfs.Represent(f), err)
	}
	return nil
}

func (f *file) Size(ctx context.Context) (int64, error) {
	obj, err := f.info(ctx, "size")
	if err != nil {
		return 0, err
	}
	return obj.Bytes, nil
}

func (f *file) Remove(ctx context.Context) error {
	if err := f.sfs.c.ObjectDelete(ctx, f.sfs.container, f.ID()); err != nil {
		return translate("remove", vfs.FileNode, vfs.Represent(f), err)
	}
	f.sfs.log.Debugf("Removed file %s", f.ID())
	return nil
}

func (f *file) String() string {
	return fmt.Sprintf("swift:%s/%s", f.sfs.container, f.ID())
}
