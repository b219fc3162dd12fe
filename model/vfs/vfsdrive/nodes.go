package vfsdrive

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/vsalavatov/multifs/model/vfs"
)

type folder struct {
	dfs    *driveVFS
	id     string
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

func (f *folder) ID() string { return f.id }

func (f *folder) Backend() vfs.VFS { return f.dfs }

func (f *folder) newFolder(res *Resource) *folder {
	return &folder{dfs: f.dfs, id: res.ID, name: res.Name, parent: f}
}

func (f *folder) newFile(res *Resource) *file {
	return &file{dfs: f.dfs, id: res.ID, name: res.Name, parent: f, size: res.Size, mimeType: res.MimeType}
}

func (f *folder) List(ctx context.Context) ([]vfs.Node, error) {
	pth := vfs.Represent(f)
	resources, err := f.dfs.api.List(ctx, f.id)
	if err != nil {
		return nil, translate("list", vfs.FolderNode, pth, err)
	}
	if len(resources) == 0 && f.parent != nil {
		// The listing of a deleted folder is empty
		if err := f.check(ctx, "list"); err != nil {
			return nil, err
		}
	}
	nodes := make([]vfs.Node, 0, len(resources))
	for i := range resources {
		res := &resources[i]
		if res.IsFolder() {
			nodes = append(nodes, f.newFolder(res))
		} else {
			nodes = append(nodes, f.newFile(res))
		}
	}
	return nodes, nil
}

// check returns a NotFound error if the folder does not exist anymore.
func (f *folder) check(ctx context.Context, op string) error {
	res, err := f.dfs.api.Get(ctx, f.id)
	if err != nil {
		return translate(op, vfs.FolderNode, vfs.Represent(f), err)
	}
	if !res.IsFolder() {
		return vfs.NotFound(op, vfs.FolderNode, vfs.Represent(f), nil)
	}
	return nil
}

// find looks for a child with the given name and type, and returns nil if
// there is none. The drive accepts several children with the same name: the
// first one of the expected type is returned, and a warning is logged.
func (f *folder) find(ctx context.Context, op, name string, typ vfs.NodeType) (vfs.Node, error) {
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure(op, vfs.Represent(f), err)
	}
	nodes, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	var found vfs.Node
	matches := 0
	for _, n := range nodes {
		if n.Name() != name || !hasType(n, typ) {
			continue
		}
		if found == nil {
			found = n
		}
		matches++
	}
	if matches > 1 {
		f.dfs.log.Warnf("%d nodes named %q in %s, using %s", matches, name, vfs.Represent(f), found.ID())
	}
	return found, nil
}

func (f *folder) child(ctx context.Context, name string, typ vfs.NodeType) (vfs.Node, error) {
	n, err := f.find(ctx, "lookup", name, typ)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, vfs.NotFound("lookup", typ, vfs.AbsolutePath(f).Join(name).String(), nil)
	}
	return n, nil
}

func hasType(n vfs.Node, typ vfs.NodeType) bool {
	switch typ {
	case vfs.FileNode:
		_, ok := n.(*file)
		return ok
	case vfs.FolderNode:
		_, ok := n.(*folder)
		return ok
	}
	return true
}

// create creates a child after checking that no node has this name.
func (f *folder) create(ctx context.Context, op, name, mimeType string, typ vfs.NodeType) (*Resource, error) {
	existing, err := f.find(ctx, op, name, vfs.AnyNode)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, vfs.Exists(op, typ, vfs.Represent(existing), existing, nil)
	}
	res, err := f.dfs.api.Create(ctx, name, f.id, mimeType)
	if err != nil {
		return nil, translate(op, vfs.FolderNode, vfs.Represent(f), err)
	}
	f.dfs.log.Debugf("Created %s in %s with id %s", name, vfs.Represent(f), res.ID)
	return res, nil
}

func (f *folder) CreateFolder(ctx context.Context, name string) (vfs.Folder, error) {
	res, err := f.create(ctx, "create-folder", name, FolderMimeType, vfs.FolderNode)
	if err != nil {
		return nil, err
	}
	return f.newFolder(res), nil
}

func (f *folder) CreateFile(ctx context.Context, name string) (vfs.File, error) {
	res, err := f.create(ctx, "create-file", name, DefaultMimeType, vfs.FileNode)
	if err != nil {
		return nil, err
	}
	return f.newFile(res), nil
}

func (f *folder) Remove(ctx context.Context, recursively bool) error {
	pth := vfs.Represent(f)
	if f.parent == nil {
		return vfs.Failure("remove", pth, vfs.ErrRootRemoval)
	}
	if !recursively {
		nodes, err := f.List(ctx)
		if err != nil {
			return err
		}
		if len(nodes) > 0 {
			return vfs.NotEmpty("remove", pth, nil)
		}
	} else if err := f.check(ctx, "remove"); err != nil {
		return err
	}
	if err := f.dfs.api.Delete(ctx, f.id); err != nil {
		return translate("remove", vfs.FolderNode, pth, err)
	}
	f.dfs.log.Debugf("Removed folder %s (recursively: %t)", pth, recursively)
	return nil
}

func (f *folder) Folder(ctx context.Context, name string) (vfs.Folder, error) {
	n, err := f.child(ctx, name, vfs.FolderNode)
	if err != nil {
		return nil, err
	}
	return n.(*folder), nil
}

func (f *folder) File(ctx context.Context, name string) (vfs.File, error) {
	n, err := f.child(ctx, name, vfs.FileNode)
	if err != nil {
		return nil, err
	}
	return n.(*file), nil
}

// file keeps the size and MIME type known from the last response of the
// drive about it.
type file struct {
	dfs    *driveVFS
	id     string
	name   string
	parent *folder

	mu       sync.Mutex
	size     int64
	mimeType string
}

func (f *file) Name() string { return f.name }

func (f *file) Parent() vfs.Folder { return f.parent }

func (f *file) ID() string { return f.id }

func (f *file) Backend() vfs.VFS { return f.dfs }

// MimeType returns the content type of the file known by the drive.
func (f *file) MimeType() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mimeType
}

// KnownSize returns the size of the file known by the drive.
func (f *file) KnownSize() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

func (f *file) update(res *Resource) {
	if res == nil || res.ID != f.id {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size = res.Size
	if res.MimeType != "" {
		f.mimeType = res.MimeType
	}
}

func (f *file) Read(ctx context.Context) ([]byte, error) {
	r, err := f.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, translate("read", vfs.FileNode, vfs.Represent(f), err)
	}
	return data, nil
}

func (f *file) Write(ctx context.Context, data []byte) error {
	if int64(len(data)) > f.dfs.api.opts.SimpleUploadLimit {
		return f.WriteFrom(ctx, bytes.NewReader(data))
	}
	res, err := f.dfs.api.UploadSimple(ctx, f.id, data)
	if err != nil {
		return translate("write", vfs.FileNode, vfs.Represent(f), err)
	}
	f.update(res)
	f.dfs.log.Debugf("Wrote %d bytes in %s", len(data), f.id)
	return nil
}

func (f *file) Open(ctx context.Context) (io.ReadCloser, error) {
	body, err := f.dfs.api.Download(ctx, f.id)
	if err != nil {
		return nil, translate("read", vfs.FileNode, vfs.Represent(f), err)
	}
	return body, nil
}

func (f *file) WriteFrom(ctx context.Context, r io.Reader) error {
	if err := f.dfs.api.Upload(ctx, f.id, r); err != nil {
		return translate("write", vfs.FileNode, vfs.Represent(f), err)
	}
	f.dfs.log.Debugf("Uploaded %s with a resumable upload", f.id)
	if res, err := f.dfs.api.Get(ctx, f.id); err == nil {
		f.update(res)
	} else {
		f.dfs.log.Debugf("Could not refresh the metadata of %s: %s", f.id, err)
	}
	return nil
}

func (f *file) Size(ctx context.Context) (int64, error) {
	res, err := f.dfs.api.Get(ctx, f.id)
	if err != nil {
		return 0, translate("size", vfs.FileNode, vfs.Represent(f), err)
	}
	if res.IsFolder() {
		return 0, vfs.NotFound("size", vfs.FileNode, vfs.Represent(f), nil)
	}
	f.update(res)
	return res.Size, nil
}

func (f *file) Remove(ctx context.Context) error {
	if err := f.dfs.api.Delete(ctx, f.id); err != nil {
		return translate("remove", vfs.FileNode, vfs.Represent(f), err)
	}
	f.dfs.log.Debugf("Removed file %s", vfs.Represent(f))
	return nil
}
