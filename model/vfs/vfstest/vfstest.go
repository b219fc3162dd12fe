// Package vfstest contains a conformance suite that every vfs backend must
// pass. The backend packages call Run from their tests.
package vfstest

import (
	"bytes"
	"context"
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsalavatov/multifs/model/vfs"
	"github.com/vsalavatov/multifs/pkg/utils"
)

// BigFileSize is the size of the pseudo-random content used for the
// round-trip of a big file.
const BigFileSize = 8 << 20

// Factory returns a new and empty backend. It is called once for each test
// of the suite.
type Factory func(t *testing.T) vfs.VFS

// Options allows to skip some parts of the suite for the backends that
// cannot support them.
type Options struct {
	// SkipBigFile skips the round-trip of an 8MiB file.
	SkipBigFile bool
}

// Run runs the conformance suite on the backends returned by newFS.
func Run(t *testing.T, newFS Factory, opts Options) {
	ctx := context.Background()

	t.Run("RootIsFixedPoint", func(t *testing.T) {
		fs := newFS(t)
		root := fs.Root()
		assert.True(t, vfs.IsRoot(root))
		assert.Equal(t, "", root.Name())
		assert.True(t, vfs.Equal(root, root.Parent()))
		assert.Empty(t, vfs.AbsolutePath(root))
		assert.Equal(t, "/", vfs.Represent(root))
		assert.Equal(t, fs, root.Backend())

		a, err := root.CreateFolder(ctx, "a")
		require.NoError(t, err)
		f, err := a.CreateFile(ctx, "f.txt")
		require.NoError(t, err)
		assert.False(t, vfs.IsRoot(a))
		assert.False(t, vfs.IsRoot(f))
		assert.True(t, vfs.IsRoot(a.Parent()))
	})

	t.Run("PathInvariant", func(t *testing.T) {
		fs := newFS(t)
		a, err := fs.Root().CreateFolder(ctx, "a")
		require.NoError(t, err)
		b, err := a.CreateFolder(ctx, "b")
		require.NoError(t, err)
		c, err := b.CreateFile(ctx, "c.txt")
		require.NoError(t, err)

		for _, n := range []vfs.Node{a, b, c} {
			expected := append(vfs.AbsolutePath(n.Parent()), n.Name())
			assert.Equal(t, expected, vfs.AbsolutePath(n))
		}
		assert.Equal(t, vfs.Path{"a", "b", "c.txt"}, vfs.AbsolutePath(c))
		assert.Equal(t, "/a/b/c.txt", vfs.Represent(c))
		assert.Equal(t, "/a/b", vfs.Represent(b))

		found, err := vfs.Lookup(ctx, fs.Root(), vfs.Path{"a", "b", "c.txt"})
		require.NoError(t, err)
		assert.True(t, vfs.Equal(c, found))
		assert.Equal(t, vfs.Key(c), vfs.Key(found))
		assert.NotEqual(t, vfs.Key(b), vfs.Key(c))
	})

	t.Run("RoundTrip", func(t *testing.T) {
		big := make([]byte, BigFileSize)
		_, err := io.ReadFull(utils.NewSeededRand(42), big)
		require.NoError(t, err)

		tests := []struct {
			name string
			data []byte
		}{
			{"Empty", []byte{}},
			{"ThreeBytes", []byte{1, 2, 3}},
			{"Big", big},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if tt.name == "Big" && opts.SkipBigFile {
					t.Skip("big files are not supported by this backend")
				}
				fs := newFS(t)
				f, err := fs.Root().CreateFile(ctx, "x.txt")
				require.NoError(t, err)

				data, err := f.Read(ctx)
				require.NoError(t, err)
				assert.Empty(t, data)

				require.NoError(t, f.Write(ctx, tt.data))
				data, err = f.Read(ctx)
				require.NoError(t, err)
				assertSameContent(t, tt.data, data)

				again, err := fs.Root().File(ctx, "x.txt")
				require.NoError(t, err)
				data, err = again.Read(ctx)
				require.NoError(t, err)
				assertSameContent(t, tt.data, data)

				if sizer, ok := again.(vfs.Sizer); ok {
					size, err := sizer.Size(ctx)
					require.NoError(t, err)
					assert.Equal(t, int64(len(tt.data)), size)
				}
			})
		}
	})

	t.Run("Streams", func(t *testing.T) {
		fs := newFS(t)
		f, err := fs.Root().CreateFile(ctx, "stream.bin")
		require.NoError(t, err)
		s, ok := f.(vfs.Streamer)
		if !ok {
			t.Skip("streams are not supported by this backend")
		}
		content := bytes.Repeat([]byte("multifs"), 10000)
		require.NoError(t, s.WriteFrom(ctx, bytes.NewReader(content)))
		r, err := s.Open(ctx)
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		assertSameContent(t, content, data)
	})

	t.Run("List", func(t *testing.T) {
		fs := newFS(t)
		root := fs.Root()
		nodes, err := root.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, nodes)

		_, err = root.CreateFolder(ctx, "dir")
		require.NoError(t, err)
		_, err = root.CreateFile(ctx, "one.txt")
		require.NoError(t, err)
		_, err = root.CreateFile(ctx, "two.txt")
		require.NoError(t, err)

		nodes, err = root.List(ctx)
		require.NoError(t, err)
		var folders, files []string
		for _, n := range nodes {
			switch n.(type) {
			case vfs.Folder:
				folders = append(folders, n.Name())
			case vfs.File:
				files = append(files, n.Name())
			}
			assert.True(t, vfs.IsRoot(n.Parent()))
		}
		sort.Strings(files)
		assert.Equal(t, []string{"dir"}, folders)
		assert.Equal(t, []string{"one.txt", "two.txt"}, files)
	})

	t.Run("CreateConflicts", func(t *testing.T) {
		fs := newFS(t)
		root := fs.Root()
		_, err := root.CreateFile(ctx, "x.txt")
		require.NoError(t, err)
		_, err = root.CreateFile(ctx, "x.txt")
		assert.ErrorIs(t, err, vfs.ErrFileExists)

		_, err = root.CreateFolder(ctx, "d")
		require.NoError(t, err)
		_, err = root.CreateFolder(ctx, "d")
		assert.ErrorIs(t, err, vfs.ErrFolderExists)

		_, err = root.CreateFile(ctx, "")
		assert.ErrorIs(t, err, vfs.ErrIllegalName)
		_, err = root.CreateFolder(ctx, "a/b")
		assert.ErrorIs(t, err, vfs.ErrIllegalName)
	})

	t.Run("NotFound", func(t *testing.T) {
		fs := newFS(t)
		root := fs.Root()
		_, err := root.File(ctx, "missing.txt")
		assert.ErrorIs(t, err, vfs.ErrFileNotFound)
		_, err = root.Folder(ctx, "missing")
		assert.ErrorIs(t, err, vfs.ErrFolderNotFound)

		_, err = root.CreateFolder(ctx, "dir")
		require.NoError(t, err)
		_, err = root.CreateFile(ctx, "file")
		require.NoError(t, err)
		_, err = root.File(ctx, "dir")
		assert.ErrorIs(t, err, vfs.ErrFileNotFound)
		_, err = root.Folder(ctx, "file")
		assert.ErrorIs(t, err, vfs.ErrFolderNotFound)
	})

	t.Run("StaleHandles", func(t *testing.T) {
		fs := newFS(t)
		d, err := fs.Root().CreateFolder(ctx, "d")
		require.NoError(t, err)
		f, err := d.CreateFile(ctx, "f.txt")
		require.NoError(t, err)
		require.NoError(t, f.Remove(ctx))

		_, err = f.Read(ctx)
		assert.ErrorIs(t, err, vfs.ErrFileNotFound)
		err = f.Write(ctx, []byte{1})
		assert.ErrorIs(t, err, vfs.ErrFileNotFound)
		err = f.Remove(ctx)
		assert.ErrorIs(t, err, vfs.ErrFileNotFound)

		require.NoError(t, d.Remove(ctx, false))
		_, err = d.List(ctx)
		assert.ErrorIs(t, err, vfs.ErrFolderNotFound)
		_, err = d.CreateFile(ctx, "g.txt")
		assert.ErrorIs(t, err, vfs.ErrFolderNotFound)
		err = d.Remove(ctx, true)
		assert.ErrorIs(t, err, vfs.ErrFolderNotFound)
	})

	t.Run("RootRemoval", func(t *testing.T) {
		fs := newFS(t)
		err := fs.Root().Remove(ctx, true)
		assert.ErrorIs(t, err, vfs.ErrBackend)
		assert.ErrorIs(t, err, vfs.ErrRootRemoval)
	})

	t.Run("NoopCopyMove", func(t *testing.T) {
		fs := newFS(t)
		d, err := fs.Root().CreateFolder(ctx, "d")
		require.NoError(t, err)
		f, err := d.CreateFile(ctx, "f.txt")
		require.NoError(t, err)
		require.NoError(t, f.Write(ctx, []byte("content")))

		copied, err := fs.Copy(ctx, f, f.Parent(), f.Name(), false)
		require.NoError(t, err)
		assert.True(t, vfs.Equal(f, copied))
		moved, err := fs.Move(ctx, f, f.Parent(), "", false)
		require.NoError(t, err)
		assert.True(t, vfs.Equal(f, moved))

		nodes, err := d.List(ctx)
		require.NoError(t, err)
		assert.Len(t, nodes, 1)
		data, err := f.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("content"), data)
	})

	t.Run("Overwrite", func(t *testing.T) {
		for _, move := range []bool{false, true} {
			name := "Copy"
			transfer := vfs.VFS.Copy
			if move {
				name = "Move"
				transfer = vfs.VFS.Move
			}
			t.Run(name, func(t *testing.T) {
				fs := newFS(t)
				root := fs.Root()
				dst, err := root.CreateFolder(ctx, "dst")
				require.NoError(t, err)
				target, err := dst.CreateFile(ctx, "t.txt")
				require.NoError(t, err)
				require.NoError(t, target.Write(ctx, []byte("AAA")))
				source, err := root.CreateFile(ctx, "s.txt")
				require.NoError(t, err)
				require.NoError(t, source.Write(ctx, []byte("BBBB")))

				_, err = transfer(fs, ctx, source, dst, "t.txt", false)
				require.ErrorIs(t, err, vfs.ErrFileExists)
				conflict := vfs.ConflictOf(err)
				require.NotNil(t, conflict)
				assert.True(t, vfs.Equal(target, conflict))
				data, err := target.Read(ctx)
				require.NoError(t, err)
				assert.Equal(t, []byte("AAA"), data)

				result, err := transfer(fs, ctx, source, dst, "t.txt", true)
				require.NoError(t, err)
				assert.Equal(t, "t.txt", result.Name())
				assert.Equal(t, vfs.Path{"dst", "t.txt"}, vfs.AbsolutePath(result))

				target, err = dst.File(ctx, "t.txt")
				require.NoError(t, err)
				data, err = target.Read(ctx)
				require.NoError(t, err)
				assert.Equal(t, []byte("BBBB"), data)

				again, err := root.File(ctx, "s.txt")
				if move {
					assert.ErrorIs(t, err, vfs.ErrFileNotFound)
				} else {
					require.NoError(t, err)
					data, err = again.Read(ctx)
					require.NoError(t, err)
					assert.Equal(t, []byte("BBBB"), data)
				}

				nodes, err := dst.List(ctx)
				require.NoError(t, err)
				assert.Len(t, nodes, 1)
			})
		}
	})

	t.Run("CopyMoveToMissingFolder", func(t *testing.T) {
		fs := newFS(t)
		root := fs.Root()
		d, err := root.CreateFolder(ctx, "d")
		require.NoError(t, err)
		f, err := root.CreateFile(ctx, "f.txt")
		require.NoError(t, err)
		require.NoError(t, d.Remove(ctx, false))

		_, err = fs.Copy(ctx, f, d, "", false)
		assert.ErrorIs(t, err, vfs.ErrFolderNotFound)
		_, err = fs.Move(ctx, f, d, "", false)
		assert.ErrorIs(t, err, vfs.ErrFolderNotFound)
		_, err = root.File(ctx, "f.txt")
		assert.NoError(t, err)
	})

	t.Run("NotEmpty", func(t *testing.T) {
		fs := newFS(t)
		d, err := fs.Root().CreateFolder(ctx, "d")
		require.NoError(t, err)
		a, err := d.CreateFile(ctx, "a.txt")
		require.NoError(t, err)

		err = d.Remove(ctx, false)
		assert.ErrorIs(t, err, vfs.ErrNotEmpty)
		_, err = d.File(ctx, "a.txt")
		require.NoError(t, err)

		require.NoError(t, d.Remove(ctx, true))
		_, err = fs.Root().Folder(ctx, "d")
		assert.ErrorIs(t, err, vfs.ErrFolderNotFound)
		_, err = a.Read(ctx)
		assert.ErrorIs(t, err, vfs.ErrFileNotFound)
	})

	t.Run("Scenario", func(t *testing.T) {
		fs := newFS(t)
		root := fs.Root()
		a, err := root.CreateFolder(ctx, "a")
		require.NoError(t, err)
		b, err := a.CreateFolder(ctx, "b")
		require.NoError(t, err)
		c, err := b.CreateFile(ctx, "c.txt")
		require.NoError(t, err)
		require.NoError(t, c.Write(ctx, []byte{9, 9, 9}))

		c2, err := fs.Copy(ctx, c, a, "c2.txt", false)
		require.NoError(t, err)
		assert.Equal(t, "/a/c2.txt", vfs.Represent(c2))
		data, err := c2.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{9, 9, 9}, data)
		data, err = c.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{9, 9, 9}, data)

		c3, err := fs.Move(ctx, c2, b, "c3.txt", false)
		require.NoError(t, err)
		assert.Equal(t, "/a/b/c3.txt", vfs.Represent(c3))
		_, err = a.File(ctx, "c2.txt")
		assert.ErrorIs(t, err, vfs.ErrFileNotFound)
		c3, err = b.File(ctx, "c3.txt")
		require.NoError(t, err)
		data, err = c3.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{9, 9, 9}, data)

		require.NoError(t, b.Remove(ctx, true))
		_, err = a.Folder(ctx, "b")
		assert.ErrorIs(t, err, vfs.ErrFolderNotFound)
		_, err = vfs.LookupFile(ctx, root, vfs.Path{"a", "b", "c.txt"})
		assert.ErrorIs(t, err, vfs.ErrFolderNotFound)
		_, err = c.Read(ctx)
		assert.ErrorIs(t, err, vfs.ErrFileNotFound)
		_, err = c3.Read(ctx)
		assert.ErrorIs(t, err, vfs.ErrFileNotFound)

		a, err = root.Folder(ctx, "a")
		require.NoError(t, err)
		nodes, err := a.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, nodes)
	})
}

// RunCrossBackend checks the copy and the move of files between two
// different backends.
func RunCrossBackend(t *testing.T, newSrc, newDst Factory) {
	ctx := context.Background()

	t.Run("CrossBackend", func(t *testing.T) {
		src := newSrc(t)
		dst := newDst(t)
		f, err := src.Root().CreateFile(ctx, "f.txt")
		require.NoError(t, err)
		require.NoError(t, f.Write(ctx, []byte("hello")))

		_, err = src.Copy(ctx, f, dst.Root(), "", false)
		assert.ErrorIs(t, err, vfs.ErrCrossBackend)

		copied, err := vfs.Copy(ctx, f, dst.Root(), "", false)
		require.NoError(t, err)
		assert.Equal(t, dst, copied.Backend())
		data, err := copied.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), data)

		_, err = vfs.Copy(ctx, f, dst.Root(), "", false)
		assert.ErrorIs(t, err, vfs.ErrFileExists)

		require.NoError(t, f.Write(ctx, []byte("world")))
		moved, err := vfs.Move(ctx, f, dst.Root(), "", true)
		require.NoError(t, err)
		data, err = moved.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("world"), data)
		_, err = src.Root().File(ctx, "f.txt")
		assert.ErrorIs(t, err, vfs.ErrFileNotFound)
	})
}

func assertSameContent(t *testing.T, expected, actual []byte) {
	t.Helper()
	if len(expected) == 0 {
		assert.Empty(t, actual)
		return
	}
	assert.True(t, bytes.Equal(expected, actual), "contents differ: %d bytes expected, got %d", len(expected), len(actual))
}
