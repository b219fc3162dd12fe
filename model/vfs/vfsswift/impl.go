// Package vfsswift is the OpenStack Swift backend of the vfs. A container
// holds the whole tree: the files are objects named by their path, and the
// folders are empty marker objects whose names end with a slash.
package vfsswift

import (
	"context"
	"errors"

	"github.com/ncw/swift/v2"
	"github.com/vsalavatov/multifs/model/vfs"
	"github.com/vsalavatov/multifs/pkg/filetype"
	"github.com/vsalavatov/multifs/pkg/logger"
	"github.com/vsalavatov/multifs/pkg/metrics"
)

// DirContentType is the content type of the folder markers.
const DirContentType = "application/directory"

// FileContentType is the content type of the empty files. It is replaced by
// the type guessed from the content when they are written.
const FileContentType = filetype.DefaultType

type swiftVFS struct {
	c         *swift.Connection
	container string
	root      *folder
	log       logger.Logger
}

// New returns a vfs.VFS instance for the given container, which is created
// if it does not exist yet.
func New(ctx context.Context, c *swift.Connection, container string) (vfs.VFS, error) {
	sfs := &swiftVFS{
		c:         c,
		container: container,
		log:       logger.WithNamespace("vfsswift").WithField("container", container),
	}
	sfs.root = &folder{sfs: sfs}
	if err := c.ContainerCreate(ctx, container, nil); err != nil {
		sfs.log.Errorf("Could not create container %q: %s", container, err)
		return nil, err
	}
	return sfs, nil
}

func (sfs *swiftVFS) Name() string { return "swift" }

func (sfs *swiftVFS) Root() vfs.Folder { return sfs.root }

func (sfs *swiftVFS) RepresentPath(p vfs.Path) string { return p.String() }

func (sfs *swiftVFS) String() string { return "swift:" + sfs.container }

func translate(op string, typ vfs.NodeType, pth string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, swift.ObjectNotFound) || errors.Is(err, swift.ContainerNotFound) {
		return vfs.NotFound(op, typ, pth, err)
	}
	return vfs.Failure(op, pth, err)
}

// exists returns true if there is an object with this name.
func (sfs *swiftVFS) exists(ctx context.Context, objName string) (bool, error) {
	_, _, err := sfs.c.Object(ctx, sfs.container, objName)
	if errors.Is(err, swift.ObjectNotFound) {
		return false, nil
	}
	return err == nil, err
}

// folderExists returns true if there is a marker object for this prefix, or
// at least one object under it (a pseudo-directory).
func (sfs *swiftVFS) folderExists(ctx context.Context, prefix string) (bool, error) {
	ok, err := sfs.exists(ctx, prefix)
	if err != nil || ok {
		return ok, err
	}
	objects, err := sfs.c.Objects(ctx, sfs.container, &swift.ObjectsOpts{Prefix: prefix, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(objects) > 0, nil
}

// prepareTarget checks the destination of a native copy or move: the folder
// must exist, no folder can have the name of the target, and an existing
// file is only accepted with overwrite.
func (sfs *swiftVFS) prepareTarget(ctx context.Context, op string, dst *folder, name string, overwrite bool) error {
	if err := vfs.CheckName(name); err != nil {
		return vfs.Failure(op, vfs.Represent(dst), err)
	}
	if err := dst.check(ctx, op); err != nil {
		return err
	}
	ok, err := sfs.folderExists(ctx, dst.prefix()+name+"/")
	if err != nil {
		return translate(op, vfs.FolderNode, vfs.Represent(dst), err)
	}
	if ok {
		conflict := dst.newFolder(name)
		return vfs.Exists(op, vfs.FileNode, vfs.Represent(conflict), conflict, nil)
	}
	ok, err = sfs.exists(ctx, dst.prefix()+name)
	if err != nil {
		return translate(op, vfs.FolderNode, vfs.Represent(dst), err)
	}
	if ok && !overwrite {
		conflict := dst.newFile(name)
		return vfs.Exists(op, vfs.FileNode, vfs.Represent(conflict), conflict, nil)
	}
	return nil
}

// Copy uses a server-side copy of the object when both files are in this
// container. Swift replaces the content of an existing target in the same
// call.
func (sfs *swiftVFS) Copy(ctx context.Context, f vfs.File, newParent vfs.Folder, newName string, overwrite bool) (vfs.File, error) {
	if err := vfs.CheckOwnership(sfs, "copy", newParent); err != nil {
		return nil, err
	}
	src, ok := f.(*file)
	name := vfs.TargetName(f, newName)
	if !ok || src.sfs != sfs || vfs.IsSameLocation(f, newParent, name) {
		return vfs.GenericCopy(ctx, f, newParent, newName, overwrite)
	}
	dst := newParent.(*folder)
	if err := sfs.prepareTarget(ctx, "copy", dst, name, overwrite); err != nil {
		return nil, err
	}
	target := dst.newFile(name)
	if _, err := sfs.c.ObjectCopy(ctx, sfs.container, src.ID(), sfs.container, target.ID(), nil); err != nil {
		return nil, translate("copy", vfs.FileNode, vfs.Represent(src), err)
	}
	sfs.log.Debugf("Copied %s to %s", src.ID(), target.ID())
	metrics.TransferCounter.WithLabelValues(sfs.Name(), "copy", metrics.TransferNative).Inc()
	return target, nil
}

// Move is like Copy, and the source object is deleted after the copy.
func (sfs *swiftVFS) Move(ctx context.Context, f vfs.File, newParent vfs.Folder, newName string, overwrite bool) (vfs.File, error) {
	if err := vfs.CheckOwnership(sfs, "move", newParent); err != nil {
		return nil, err
	}
	src, ok := f.(*file)
	name := vfs.TargetName(f, newName)
	if !ok || src.sfs != sfs || vfs.IsSameLocation(f, newParent, name) {
		return vfs.GenericMove(ctx, f, newParent, newName, overwrite)
	}
	dst := newParent.(*folder)
	if err := sfs.prepareTarget(ctx, "move", dst, name, overwrite); err != nil {
		return nil, err
	}
	target := dst.newFile(name)
	if err := sfs.c.ObjectMove(ctx, sfs.container, src.ID(), sfs.container, target.ID()); err != nil {
		return nil, translate("move", vfs.FileNode, vfs.Represent(src), err)
	}
	sfs.log.Debugf("Moved %s to %s", src.ID(), target.ID())
	metrics.TransferCounter.WithLabelValues(sfs.Name(), "move", metrics.TransferNative).Inc()
	return target, nil
}

var (
	_ vfs.VFS      = &swiftVFS{}
	_ vfs.Folder   = &folder{}
	_ vfs.File     = &file{}
	_ vfs.Sizer    = &file{}
	_ vfs.Streamer = &file{}
)
