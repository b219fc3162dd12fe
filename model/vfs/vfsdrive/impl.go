// Package vfsdrive is the Google Drive backend of the vfs. The files and
// folders are identified by their ids in the drive, and the handles keep the
// chain of their parents, as the API gives no cheap way to get it.
package vfsdrive

import (
	"context"
	"errors"
	"net/http"

	"github.com/vsalavatov/multifs/model/vfs"
	"github.com/vsalavatov/multifs/pkg/logger"
	"github.com/vsalavatov/multifs/pkg/metrics"
)

type driveVFS struct {
	api  *API
	name string
	root *folder
	log  logger.Logger
}

// New returns a vfs.VFS for the drive behind the given API client. The name
// is only used in the logs.
func New(api *API, name string) vfs.VFS {
	dfs := &driveVFS{
		api:  api,
		name: name,
		log:  logger.WithNamespace("vfsdrive").WithField("backend", name),
	}
	dfs.root = &folder{dfs: dfs, id: RootID}
	return dfs
}

func (dfs *driveVFS) Name() string { return "drive" }

func (dfs *driveVFS) Root() vfs.Folder { return dfs.root }

func (dfs *driveVFS) RepresentPath(p vfs.Path) string { return p.String() }

func (dfs *driveVFS) String() string { return "drive:" + dfs.name }

// translate converts the errors of the API to the errors of the vfs. typ is
// the type of the node whose absence is reported by a 404.
func translate(op string, typ vfs.NodeType, pth string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return vfs.NotFound(op, typ, pth, err)
	}
	return vfs.Failure(op, pth, err)
}

// nativeTarget checks a copy or a move between two nodes of this drive. It
// returns the destination folder and the name of the target, and a nil
// folder when the generic algorithm must be used, because the target file
// already exists and will be overwritten.
func (dfs *driveVFS) nativeTarget(ctx context.Context, op string, src *file, newParent vfs.Folder, newName string, overwrite bool) (*folder, string, error) {
	name := vfs.TargetName(src, newName)
	if err := vfs.CheckName(name); err != nil {
		return nil, "", vfs.Failure(op, vfs.Represent(newParent), err)
	}
	dst := newParent.(*folder)
	existing, err := dst.File(ctx, name)
	if err == nil {
		if !overwrite {
			return nil, "", vfs.Exists(op, vfs.FileNode, vfs.Represent(existing), existing, nil)
		}
		return nil, name, nil
	}
	if !errors.Is(err, vfs.ErrFileNotFound) {
		return nil, "", err
	}
	return dst, name, nil
}

// Copy uses the copy endpoint of the API when both files are in this drive
// and the target does not exist yet, and the generic algorithm otherwise.
func (dfs *driveVFS) Copy(ctx context.Context, f vfs.File, newParent vfs.Folder, newName string, overwrite bool) (vfs.File, error) {
	if err := vfs.CheckOwnership(dfs, "copy", newParent); err != nil {
		return nil, err
	}
	src, ok := f.(*file)
	if !ok || src.dfs != dfs || vfs.IsSameLocation(f, newParent, vfs.TargetName(f, newName)) {
		return vfs.GenericCopy(ctx, f, newParent, newName, overwrite)
	}
	dst, name, err := dfs.nativeTarget(ctx, "copy", src, newParent, newName, overwrite)
	if err != nil {
		return nil, err
	}
	if dst == nil {
		return vfs.GenericCopy(ctx, f, newParent, name, overwrite)
	}
	res, err := dfs.api.Copy(ctx, src.id, name, dst.id)
	if err != nil {
		return nil, translate("copy", vfs.FileNode, vfs.Represent(src), err)
	}
	dfs.log.Debugf("Copied %s (%s) to %s (%s)", vfs.Represent(src), src.id, vfs.Represent(dst), res.ID)
	metrics.TransferCounter.WithLabelValues(dfs.Name(), "copy", metrics.TransferNative).Inc()
	return dst.newFile(res), nil
}

// Move changes the name and the parent of the file when both files are in
// this drive and the target does not exist yet, and uses the generic
// algorithm otherwise.
func (dfs *driveVFS) Move(ctx context.Context, f vfs.File, newParent vfs.Folder, newName string, overwrite bool) (vfs.File, error) {
	if err := vfs.CheckOwnership(dfs, "move", newParent); err != nil {
		return nil, err
	}
	src, ok := f.(*file)
	if !ok || src.dfs != dfs || vfs.IsSameLocation(f, newParent, vfs.TargetName(f, newName)) {
		return vfs.GenericMove(ctx, f, newParent, newName, overwrite)
	}
	dst, name, err := dfs.nativeTarget(ctx, "move", src, newParent, newName, overwrite)
	if err != nil {
		return nil, err
	}
	if dst == nil {
		return vfs.GenericMove(ctx, f, newParent, name, overwrite)
	}
	res, err := dfs.api.Update(ctx, src.id, name, src.parent.id, dst.id)
	if err != nil {
		return nil, translate("move", vfs.FileNode, vfs.Represent(src), err)
	}
	dfs.log.Debugf("Moved %s (%s) to %s", vfs.Represent(src), src.id, vfs.Represent(dst))
	metrics.TransferCounter.WithLabelValues(dfs.Name(), "move", metrics.TransferNative).Inc()
	return dst.newFile(res), nil
}

var (
	_ vfs.VFS       = &driveVFS{}
	_ vfs.Folder    = &folder{}
	_ vfs.File      = &file{}
	_ vfs.Sizer     = &file{}
	_ vfs.Streamer  = &file{}
	_ vfs.Described = &file{}
)
