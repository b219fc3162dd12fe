package vfs

import (
	"context"
	"errors"
	"io"

	"github.com/vsalavatov/multifs/pkg/metrics"
)

// TargetName returns the name of the file created by a copy or a move: the
// new name if given, or else the name of the source.
func TargetName(file File, newName string) string {
	if newName == "" {
		return file.Name()
	}
	return newName
}

// IsSameLocation returns true when the target of a copy or a move is the
// source file itself. Those operations are then no-ops.
func IsSameLocation(file File, newParent Folder, name string) bool {
	return name == file.Name() && Equal(file.Parent(), newParent)
}

// GenericCopy copies a file by creating the target and writing the content
// of the source in it. It works for any pair of backends as it only uses the
// common operations of files and folders.
func GenericCopy(ctx context.Context, file File, newParent Folder, newName string, overwrite bool) (File, error) {
	name := TargetName(file, newName)
	if err := CheckName(name); err != nil {
		return nil, Failure("copy", Represent(newParent), err)
	}
	backend := newParent.Backend().Name()
	if IsSameLocation(file, newParent, name) {
		metrics.TransferCounter.WithLabelValues(backend, "copy", metrics.TransferNoop).Inc()
		return file, nil
	}
	target, err := PrepareTarget(ctx, "copy", newParent, name, overwrite)
	if err != nil {
		return nil, err
	}
	if err := Transfer(ctx, file, target); err != nil {
		return nil, err
	}
	metrics.TransferCounter.WithLabelValues(backend, "copy", metrics.TransferGeneric).Inc()
	return target, nil
}

// GenericMove is like GenericCopy, and then removes the source file. The
// source is only removed after the content has been fully written to the
// target.
func GenericMove(ctx context.Context, file File, newParent Folder, newName string, overwrite bool) (File, error) {
	name := TargetName(file, newName)
	if err := CheckName(name); err != nil {
		return nil, Failure("move", Represent(newParent), err)
	}
	backend := newParent.Backend().Name()
	if IsSameLocation(file, newParent, name) {
		metrics.TransferCounter.WithLabelValues(backend, "move", metrics.TransferNoop).Inc()
		return file, nil
	}
	target, err := PrepareTarget(ctx, "move", newParent, name, overwrite)
	if err != nil {
		return nil, err
	}
	if err := Transfer(ctx, file, target); err != nil {
		return nil, err
	}
	if err := file.Remove(ctx); err != nil {
		return nil, err
	}
	metrics.TransferCounter.WithLabelValues(backend, "move", metrics.TransferGeneric).Inc()
	return target, nil
}

// PrepareTarget returns the file that will receive the content of a copy or
// a move. If a file exists with this name, it is returned when overwrite is
// true, or an AlreadyExists error with this file as the conflicting node is
// returned. If there is no such file, it is created. Other errors of the
// lookup are returned as is.
func PrepareTarget(ctx context.Context, op string, newParent Folder, name string, overwrite bool) (File, error) {
	target, err := newParent.File(ctx, name)
	if err == nil {
		if !overwrite {
			return nil, Exists(op, FileNode, Represent(target), target, nil)
		}
		return target, nil
	}
	if !errors.Is(err, ErrFileNotFound) {
		return nil, err
	}
	return newParent.CreateFile(ctx, name)
}

// Transfer writes the content of src into dst. Streams are used when both
// files support them.
func Transfer(ctx context.Context, src, dst File) error {
	backend := dst.Backend().Name()
	srcStream, okSrc := src.(Streamer)
	dstStream, okDst := dst.(Streamer)
	if okSrc && okDst {
		r, err := srcStream.Open(ctx)
		if err != nil {
			return err
		}
		defer r.Close()
		cr := &countingReader{r: r}
		err = dstStream.WriteFrom(ctx, cr)
		metrics.TransferBytes.WithLabelValues(backend).Add(float64(cr.n))
		return err
	}
	data, err := src.Read(ctx)
	if err != nil {
		return err
	}
	if err := dst.Write(ctx, data); err != nil {
		return err
	}
	metrics.TransferBytes.WithLabelValues(backend).Add(float64(len(data)))
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
