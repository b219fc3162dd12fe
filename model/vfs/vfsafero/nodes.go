package vfsafero

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"

	"github.com/spf13/afero"
	"github.com/vsalavatov/multifs/model/vfs"
	"github.com/vsalavatov/multifs/pkg/utils"
)

type folder struct {
	afs *aferoVFS
	pth string
}

func (f *folder) Name() string {
	if f.pth == "/" {
		return ""
	}
	return path.Base(f.pth)
}

// Parent is computed from the path: the handles of the disk backend do not
// keep a reference to their parent.
func (f *folder) Parent() vfs.Folder {
	if f.pth == "/" {
		return f.afs.root
	}
	return f.afs.folderAt(path.Dir(f.pth))
}

func (f *folder) ID() string { return f.pth }

func (f *folder) Backend() vfs.VFS { return f.afs }

func (f *folder) child(name string) string {
	return path.Join(f.pth, name)
}

func (f *folder) List(ctx context.Context) ([]vfs.Node, error) {
	if err := f.afs.statDir("list", f.pth); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(f.afs.fs, f.pth)
	if err != nil {
		if isNotExist(err) {
			return nil, vfs.NotFound("list", vfs.FolderNode, f.pth, err)
		}
		return nil, vfs.Failure("list", f.pth, err)
	}
	nodes := make([]vfs.Node, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		switch {
		case isTemporary(name):
			continue
		case info.IsDir():
			nodes = append(nodes, &folder{afs: f.afs, pth: f.child(name)})
		case info.Mode().IsRegular():
			nodes = append(nodes, &file{afs: f.afs, pth: f.child(name)})
		default:
			f.afs.log.Debugf("Skipping %s in the listing: mode %s", f.child(name), info.Mode())
		}
	}
	return nodes, nil
}

func (f *folder) CreateFolder(ctx context.Context, name string) (vfs.Folder, error) {
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure("create-folder", f.pth, err)
	}
	if err := f.afs.statDir("create-folder", f.pth); err != nil {
		return nil, err
	}
	pth := f.child(name)
	if err := f.afs.fs.Mkdir(pth, 0755); err != nil {
		if isExist(err) {
			return nil, vfs.Exists("create-folder", vfs.FolderNode, pth, f.afs.existing(pth), err)
		}
		if isNotExist(err) {
			return nil, vfs.NotFound("create-folder", vfs.FolderNode, f.pth, err)
		}
		return nil, vfs.Failure("create-folder", pth, err)
	}
	f.afs.log.Debugf("Created folder %s", pth)
	return &folder{afs: f.afs, pth: pth}, nil
}

func (f *folder) CreateFile(ctx context.Context, name string) (vfs.File, error) {
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure("create-file", f.pth, err)
	}
	if err := f.afs.statDir("create-file", f.pth); err != nil {
		return nil, err
	}
	pth := f.child(name)
	fd, err := f.afs.fs.OpenFile(pth, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if isExist(err) {
			return nil, vfs.Exists("create-file", vfs.FileNode, pth, f.afs.existing(pth), err)
		}
		if isNotExist(err) {
			return nil, vfs.NotFound("create-file", vfs.FolderNode, f.pth, err)
		}
		return nil, vfs.Failure("create-file", pth, err)
	}
	if err := fd.Close(); err != nil {
		return nil, vfs.Failure("create-file", pth, err)
	}
	f.afs.log.Debugf("Created file %s", pth)
	return &file{afs: f.afs, pth: pth}, nil
}

func (f *folder) Remove(ctx context.Context, recursively bool) error {
	if f.pth == "/" {
		return vfs.Failure("remove", f.pth, vfs.ErrRootRemoval)
	}
	if err := f.afs.statDir("remove", f.pth); err != nil {
		return err
	}
	if recursively {
		if err := f.afs.fs.RemoveAll(f.pth); err != nil {
			return vfs.Failure("remove", f.pth, err)
		}
		f.afs.log.Debugf("Removed folder %s and its content", f.pth)
		return nil
	}
	// The in-memory filesystem does not check that a directory is empty
	// before removing it.
	infos, err := afero.ReadDir(f.afs.fs, f.pth)
	if err != nil {
		return vfs.Failure("remove", f.pth, err)
	}
	if len(infos) > 0 {
		return vfs.NotEmpty("remove", f.pth, nil)
	}
	if err := f.afs.fs.Remove(f.pth); err != nil {
		if isNotEmpty(err) {
			return vfs.NotEmpty("remove", f.pth, err)
		}
		if isNotExist(err) {
			return vfs.NotFound("remove", vfs.FolderNode, f.pth, err)
		}
		return vfs.Failure("remove", f.pth, err)
	}
	f.afs.log.Debugf("Removed folder %s", f.pth)
	return nil
}

func (f *folder) Folder(ctx context.Context, name string) (vfs.Folder, error) {
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure("lookup", f.pth, err)
	}
	pth := f.child(name)
	if err := f.afs.statDir("lookup", pth); err != nil {
		return nil, err
	}
	return &folder{afs: f.afs, pth: pth}, nil
}

func (f *folder) File(ctx context.Context, name string) (vfs.File, error) {
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure("lookup", f.pth, err)
	}
	pth := f.child(name)
	if _, err := f.afs.statFile("lookup", pth); err != nil {
		if errd := f.afs.statDir("lookup", f.pth); errd != nil {
			return nil, errd
		}
		return nil, err
	}
	return &file{afs: f.afs, pth: pth}, nil
}

type file struct {
	afs *aferoVFS
	pth string
}

func (f *file) Name() string { return path.Base(f.pth) }

func (f *file) Parent() vfs.Folder { return f.afs.folderAt(path.Dir(f.pth)) }

func (f *file) ID() string { return f.pth }

func (f *file) Backend() vfs.VFS { return f.afs }

func (f *file) Read(ctx context.Context) ([]byte, error) {
	if _, err := f.afs.statFile("read", f.pth); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(f.afs.fs, f.pth)
	if err != nil {
		if isNotExist(err) {
			return nil, vfs.NotFound("read", vfs.FileNode, f.pth, err)
		}
		return nil, vfs.Failure("read", f.pth, err)
	}
	return data, nil
}

func (f *file) Write(ctx context.Context, data []byte) error {
	return f.WriteFrom(ctx, bytes.NewReader(data))
}

func (f *file) WriteFrom(ctx context.Context, r io.Reader) error {
	if _, err := f.afs.statFile("write", f.pth); err != nil {
		return err
	}
	if err := f.afs.writeAtomically(ctx, "write", f.pth, r); err != nil {
		return err
	}
	f.afs.log.Debugf("Wrote file %s", f.pth)
	return nil
}

func (f *file) Open(ctx context.Context) (io.ReadCloser, error) {
	if _, err := f.afs.statFile("open", f.pth); err != nil {
		return nil, err
	}
	fd, err := f.afs.fs.Open(f.pth)
	if err != nil {
		if isNotExist(err) {
			return nil, vfs.NotFound("open", vfs.FileNode, f.pth, err)
		}
		return nil, vfs.Failure("open", f.pth, err)
	}
	return utils.ReadCloser(&ctxReader{ctx: ctx, r: fd}, fd.Close), nil
}

func (f *file) Size(ctx context.Context) (int64, error) {
	info, err := f.afs.statFile("size", f.pth)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (f *file) Remove(ctx context.Context) error {
	if _, err := f.afs.statFile("remove", f.pth); err != nil {
		return err
	}
	if err := f.afs.fs.Remove(f.pth); err != nil {
		if isNotExist(err) {
			return vfs.NotFound("remove", vfs.FileNode, f.pth, err)
		}
		return vfs.Failure("remove", f.pth, err)
	}
	f.afs.log.Debugf("Removed file %s", f.pth)
	return nil
}
