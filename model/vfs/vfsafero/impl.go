// Package vfsafero is the local disk backend of the vfs. It works on an
// afero.Fs: an OS filesystem restricted to a base path, or an in-memory one.
package vfsafero

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"syscall"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/afero"
	"github.com/vsalavatov/multifs/model/vfs"
	"github.com/vsalavatov/multifs/pkg/logger"
	"github.com/vsalavatov/multifs/pkg/metrics"
)

// tmpPrefix is the prefix of the temporary files used to replace the content
// of a file atomically. They are hidden from the listings.
const tmpPrefix = ".multifs-tmp-"

var memfsMap sync.Map

// aferoVFS is a struct implementing the vfs.VFS interface associated with
// an afero.Fs filesystem.
type aferoVFS struct {
	fs   afero.Fs
	pth  string
	root *folder
	log  *logger.Entry
}

// GetMemFS returns a file system in memory for the given key
func GetMemFS(key string) afero.Fs {
	val, ok := memfsMap.Load(key)
	if !ok {
		val, _ = memfsMap.LoadOrStore(key, afero.NewMemMapFs())
	}
	return val.(afero.Fs)
}

// New returns a vfs.VFS instance associated with the specified storage url.
//
// The supported scheme of the storage url are file://, for an OS-FS store, and
// mem:// for an in-memory store. For file://, the path of the URL is the
// directory used as root, "/" if empty. For mem://, the host is used as a key
// so that two calls with the same URL share the same files.
func New(fsURL *url.URL) (vfs.VFS, error) {
	var fs afero.Fs
	pth := fsURL.Path
	switch fsURL.Scheme {
	case "file":
		if fsURL.Host != "" || fsURL.Opaque != "" {
			return nil, fmt.Errorf("vfsafero: the path should be absolute, without host: %s", fsURL.String())
		}
		if pth == "" {
			pth = "/"
		}
		if !path.IsAbs(pth) {
			return nil, fmt.Errorf("vfsafero: the path should be absolute: %s", fsURL.String())
		}
		info, err := os.Stat(pth)
		if err != nil {
			return nil, fmt.Errorf("vfsafero: cannot use %s as root: %w", pth, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("vfsafero: %s is not a directory", pth)
		}
		fs = afero.NewOsFs()
		if pth != "/" {
			fs = afero.NewBasePathFs(fs, pth)
		}
	case "mem":
		fs = GetMemFS(fsURL.Host + fsURL.Path)
	default:
		return nil, fmt.Errorf("vfsafero: non supported scheme %s", fsURL.Scheme)
	}
	return NewFromFs(fs, pth), nil
}

// NewFromFs returns a vfs.VFS for the given afero filesystem. The name is
// only used in the logs.
func NewFromFs(fs afero.Fs, name string) vfs.VFS {
	afs := &aferoVFS{
		fs:  fs,
		pth: name,
		log: logger.WithNamespace("vfsafero"),
	}
	afs.root = &folder{afs: afs, pth: "/"}
	return afs
}

func (afs *aferoVFS) Name() string { return "afero" }

func (afs *aferoVFS) Root() vfs.Folder { return afs.root }

func (afs *aferoVFS) RepresentPath(p vfs.Path) string { return p.String() }

func (afs *aferoVFS) String() string {
	return "afero:" + afs.pth
}

func (afs *aferoVFS) folderAt(pth string) *folder {
	if pth == "/" {
		return afs.root
	}
	return &folder{afs: afs, pth: pth}
}

// lstat returns the information of the entry at the given path, without
// following it if it is a symbolic link. The root is always followed.
func (afs *aferoVFS) lstat(pth string) (os.FileInfo, error) {
	if pth == "/" {
		return afs.fs.Stat(pth)
	}
	if lstater, ok := afs.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(pth)
		return info, err
	}
	return afs.fs.Stat(pth)
}

// statDir checks that a directory exists at the given path. A symbolic link
// to a directory is not a directory.
func (afs *aferoVFS) statDir(op, pth string) error {
	info, err := afs.lstat(pth)
	if err != nil {
		if isNotExist(err) {
			return vfs.NotFound(op, vfs.FolderNode, pth, err)
		}
		return vfs.Failure(op, pth, err)
	}
	if !info.IsDir() {
		return vfs.NotFound(op, vfs.FolderNode, pth, nil)
	}
	return nil
}

// statFile checks that a regular file exists at the given path.
func (afs *aferoVFS) statFile(op, pth string) (os.FileInfo, error) {
	info, err := afs.lstat(pth)
	if err != nil {
		if isNotExist(err) {
			return nil, vfs.NotFound(op, vfs.FileNode, pth, err)
		}
		return nil, vfs.Failure(op, pth, err)
	}
	if !info.Mode().IsRegular() {
		return nil, vfs.NotFound(op, vfs.FileNode, pth, nil)
	}
	return info, nil
}

// existing returns the node that exists at the given path, to be reported as
// the conflicting node of an AlreadyExists error.
func (afs *aferoVFS) existing(pth string) vfs.Node {
	info, err := afs.lstat(pth)
	if err != nil {
		return nil
	}
	switch {
	case info.IsDir():
		return afs.folderAt(pth)
	case info.Mode().IsRegular():
		return &file{afs: afs, pth: pth}
	}
	return nil
}

// writeAtomically replaces the content of the file at pth by what is read
// from r. The content is first written to a temporary file in the same
// directory, which is then renamed.
func (afs *aferoVFS) writeAtomically(ctx context.Context, op, pth string, r io.Reader) error {
	tmp := path.Join(path.Dir(pth), tmpPrefix+uuid.Must(uuid.NewV4()).String())
	f, err := afs.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return vfs.Failure(op, pth, err)
	}
	_, err = io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if errc := f.Close(); err == nil {
		err = errc
	}
	if err == nil {
		err = afs.fs.Rename(tmp, pth)
	}
	if err != nil {
		_ = afs.fs.Remove(tmp)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return vfs.Failure(op, pth, err)
	}
	return nil
}

// Copy uses the filesystem to copy the content when both files are on this
// backend, and the generic algorithm otherwise.
func (afs *aferoVFS) Copy(ctx context.Context, f vfs.File, newParent vfs.Folder, newName string, overwrite bool) (vfs.File, error) {
	if err := vfs.CheckOwnership(afs, "copy", newParent); err != nil {
		return nil, err
	}
	src, ok := f.(*file)
	if !ok || src.afs != afs {
		return vfs.GenericCopy(ctx, f, newParent, newName, overwrite)
	}
	name := vfs.TargetName(f, newName)
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure("copy", newParent.ID(), err)
	}
	if vfs.IsSameLocation(f, newParent, name) {
		metrics.TransferCounter.WithLabelValues(afs.Name(), "copy", metrics.TransferNoop).Inc()
		return f, nil
	}
	if _, err := afs.statFile("copy", src.pth); err != nil {
		return nil, err
	}
	dirPath := newParent.ID()
	if err := afs.statDir("copy", dirPath); err != nil {
		return nil, err
	}
	target := path.Join(dirPath, name)

	in, err := afs.fs.Open(src.pth)
	if err != nil {
		return nil, vfs.Failure("copy", src.pth, err)
	}
	defer in.Close()

	if overwrite {
		if info, err := afs.lstat(target); err == nil && !info.Mode().IsRegular() {
			return nil, vfs.Exists("copy", vfs.FileNode, target, afs.existing(target), nil)
		}
		if err := afs.writeAtomically(ctx, "copy", target, in); err != nil {
			return nil, err
		}
	} else {
		out, err := afs.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			if isExist(err) {
				return nil, vfs.Exists("copy", vfs.FileNode, target, afs.existing(target), err)
			}
			return nil, vfs.Failure("copy", target, err)
		}
		_, err = io.Copy(out, &ctxReader{ctx: ctx, r: in})
		if errc := out.Close(); err == nil {
			err = errc
		}
		if err != nil {
			_ = afs.fs.Remove(target)
			return nil, vfs.Failure("copy", target, err)
		}
	}
	afs.log.Debugf("Copied %s to %s", src.pth, target)
	metrics.TransferCounter.WithLabelValues(afs.Name(), "copy", metrics.TransferNative).Inc()
	return &file{afs: afs, pth: target}, nil
}

// Move renames the file when both files are on this backend, and uses the
// generic algorithm otherwise.
func (afs *aferoVFS) Move(ctx context.Context, f vfs.File, newParent vfs.Folder, newName string, overwrite bool) (vfs.File, error) {
	if err := vfs.CheckOwnership(afs, "move", newParent); err != nil {
		return nil, err
	}
	src, ok := f.(*file)
	if !ok || src.afs != afs {
		return vfs.GenericMove(ctx, f, newParent, newName, overwrite)
	}
	name := vfs.TargetName(f, newName)
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure("move", newParent.ID(), err)
	}
	if vfs.IsSameLocation(f, newParent, name) {
		metrics.TransferCounter.WithLabelValues(afs.Name(), "move", metrics.TransferNoop).Inc()
		return f, nil
	}
	if _, err := afs.statFile("move", src.pth); err != nil {
		return nil, err
	}
	dirPath := newParent.ID()
	if err := afs.statDir("move", dirPath); err != nil {
		return nil, err
	}
	target := path.Join(dirPath, name)

	var err error
	if overwrite {
		err = afs.renameFile(src.pth, target)
	} else {
		err = afs.safeRenameFile(src.pth, target)
	}
	if err != nil {
		if isExist(err) {
			return nil, vfs.Exists("move", vfs.FileNode, target, afs.existing(target), err)
		}
		return nil, vfs.Failure("move", target, err)
	}
	afs.log.Debugf("Moved %s to %s", src.pth, target)
	metrics.TransferCounter.WithLabelValues(afs.Name(), "move", metrics.TransferNative).Inc()
	return &file{afs: afs, pth: target}, nil
}

// safeRenameFile renames a file, failing if the new path is already taken.
func (afs *aferoVFS) safeRenameFile(oldpath, newpath string) error {
	newpath = path.Clean(newpath)
	oldpath = path.Clean(oldpath)

	_, err := afs.lstat(newpath)
	if err == nil {
		return os.ErrExist
	}
	if !isNotExist(err) {
		return err
	}

	return afs.fs.Rename(oldpath, newpath)
}

// renameFile renames a file, replacing the file at the new path if any. It
// refuses to replace a directory or a special entry.
func (afs *aferoVFS) renameFile(oldpath, newpath string) error {
	info, err := afs.lstat(newpath)
	if err == nil && !info.Mode().IsRegular() {
		return os.ErrExist
	}
	return afs.fs.Rename(oldpath, newpath)
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

func isExist(err error) bool {
	return errors.Is(err, os.ErrExist)
}

func isNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}

func isTemporary(name string) bool {
	return strings.HasPrefix(name, tmpPrefix)
}

// ctxReader stops reading once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var (
	_ vfs.VFS      = &aferoVFS{}
	_ vfs.Folder   = &folder{}
	_ vfs.File     = &file{}
	_ vfs.Sizer    = &file{}
	_ vfs.Streamer = &file{}
)
