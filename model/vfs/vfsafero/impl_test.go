package vfsafero_test

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsalavatov/multifs/model/vfs"
	"github.com/vsalavatov/multifs/model/vfs/vfsafero"
	"github.com/vsalavatov/multifs/model/vfs/vfstest"
	"github.com/vsalavatov/multifs/pkg/config/config"
)

func newMemFS(t *testing.T) vfs.VFS {
	return vfsafero.NewFromFs(afero.NewMemMapFs(), t.Name())
}

func newOSFS(t *testing.T) vfs.VFS {
	fs, err := vfsafero.New(&url.URL{Scheme: "file", Path: t.TempDir()})
	require.NoError(t, err)
	return fs
}

func TestAfero(t *testing.T) {
	config.UseTestFile(t)

	t.Run("Mem", func(t *testing.T) {
		vfstest.Run(t, newMemFS, vfstest.Options{})
	})

	t.Run("OS", func(t *testing.T) {
		vfstest.Run(t, newOSFS, vfstest.Options{})
	})

	vfstest.RunCrossBackend(t, newMemFS, newOSFS)
}

func TestAferoDisk(t *testing.T) {
	config.UseTestFile(t)
	ctx := context.Background()

	t.Run("SkipsSpecialEntries", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "regular.txt"), []byte("foo"), 0644))
		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
		require.NoError(t, os.Symlink(filepath.Join(dir, "regular.txt"), filepath.Join(dir, "link")))

		fs, err := vfsafero.New(&url.URL{Scheme: "file", Path: dir})
		require.NoError(t, err)
		nodes, err := fs.Root().List(ctx)
		require.NoError(t, err)
		var names []string
		for _, n := range nodes {
			names = append(names, n.Name())
		}
		assert.ElementsMatch(t, []string{"regular.txt", "sub"}, names)

		_, err = fs.Root().File(ctx, "link")
		assert.ErrorIs(t, err, vfs.ErrFileNotFound)
	})

	t.Run("DoesNotFollowLinks", func(t *testing.T) {
		outside := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("outside-root"), 0644))
		dir := t.TempDir()
		require.NoError(t, os.Symlink(outside, filepath.Join(dir, "ln")))
		require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(dir, "lf")))

		fs, err := vfsafero.New(&url.URL{Scheme: "file", Path: dir})
		require.NoError(t, err)
		root := fs.Root()

		_, err = root.Folder(ctx, "ln")
		assert.ErrorIs(t, err, vfs.ErrFolderNotFound)
		_, err = root.File(ctx, "ln")
		assert.ErrorIs(t, err, vfs.ErrFileNotFound)
		_, err = root.File(ctx, "lf")
		assert.ErrorIs(t, err, vfs.ErrFileNotFound)
		_, err = vfs.Lookup(ctx, root, vfs.Path{"ln", "secret.txt"})
		assert.ErrorIs(t, err, vfs.ErrNotFound)

		src, err := root.CreateFile(ctx, "src.txt")
		require.NoError(t, err)
		require.NoError(t, src.Write(ctx, []byte("inside")))
		_, err = fs.Copy(ctx, src, root, "lf", true)
		assert.ErrorIs(t, err, vfs.ErrFileExists)
		_, err = fs.Move(ctx, src, root, "lf", true)
		assert.ErrorIs(t, err, vfs.ErrFileExists)

		data, err := os.ReadFile(filepath.Join(outside, "secret.txt"))
		require.NoError(t, err)
		assert.Equal(t, "outside-root", string(data))
	})

	t.Run("HidesTemporaryFiles", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".multifs-tmp-1234"), []byte("foo"), 0644))

		fs, err := vfsafero.New(&url.URL{Scheme: "file", Path: dir})
		require.NoError(t, err)
		nodes, err := fs.Root().List(ctx)
		require.NoError(t, err)
		assert.Empty(t, nodes)
	})

	t.Run("WritesOnDisk", func(t *testing.T) {
		dir := t.TempDir()
		fs, err := vfsafero.New(&url.URL{Scheme: "file", Path: dir})
		require.NoError(t, err)

		d, err := fs.Root().CreateFolder(ctx, "d")
		require.NoError(t, err)
		f, err := d.CreateFile(ctx, "f.txt")
		require.NoError(t, err)
		require.NoError(t, f.Write(ctx, []byte("on disk")))
		assert.Equal(t, "/d/f.txt", f.ID())

		data, err := os.ReadFile(filepath.Join(dir, "d", "f.txt"))
		require.NoError(t, err)
		assert.Equal(t, []byte("on disk"), data)

		entries, err := os.ReadDir(filepath.Join(dir, "d"))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "no temporary file is left")
	})

	t.Run("CanceledWrite", func(t *testing.T) {
		fs := newMemFS(t)
		f, err := fs.Root().CreateFile(ctx, "f.txt")
		require.NoError(t, err)
		require.NoError(t, f.Write(ctx, []byte("before")))

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		err = f.Write(canceled, []byte("after"))
		assert.ErrorIs(t, err, context.Canceled)

		data, err := f.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("before"), data)
		nodes, err := fs.Root().List(ctx)
		require.NoError(t, err)
		assert.Len(t, nodes, 1)
	})

	t.Run("SharedMemFS", func(t *testing.T) {
		u := &url.URL{Scheme: "mem", Host: "shared-test"}
		fs1, err := vfsafero.New(u)
		require.NoError(t, err)
		fs2, err := vfsafero.New(u)
		require.NoError(t, err)

		_, err = fs1.Root().CreateFile(ctx, "shared.txt")
		require.NoError(t, err)
		_, err = fs2.Root().File(ctx, "shared.txt")
		assert.NoError(t, err)
	})

	t.Run("BadURL", func(t *testing.T) {
		_, err := vfsafero.New(&url.URL{Scheme: "ftp", Host: "example.org"})
		assert.Error(t, err)
		_, err = vfsafero.New(&url.URL{Scheme: "file", Path: "/does/not/exist"})
		assert.Error(t, err)

		u, err := url.Parse("file://relative" + t.TempDir())
		require.NoError(t, err)
		_, err = vfsafero.New(u)
		assert.Error(t, err)
		u, err = url.Parse("file:relative/path")
		require.NoError(t, err)
		_, err = vfsafero.New(u)
		assert.Error(t, err)
	})

	t.Run("MoveKeepsContent", func(t *testing.T) {
		fs := newOSFS(t)
		root := fs.Root()
		f, err := root.CreateFile(ctx, "f.txt")
		require.NoError(t, err)
		require.NoError(t, f.Write(ctx, []byte("moved")))
		d, err := root.CreateFolder(ctx, "d")
		require.NoError(t, err)

		moved, err := fs.Move(ctx, f, d, "g.txt", false)
		require.NoError(t, err)
		assert.Equal(t, "/d/g.txt", moved.ID())
		data, err := moved.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("moved"), data)

		_, err = fs.Move(ctx, moved, root, "d", true)
		assert.ErrorIs(t, err, vfs.ErrFileExists, "a folder is never replaced by a file")
	})
}
