package vfsswift_test

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/ncw/swift/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsalavatov/multifs/model/vfs"
	"github.com/vsalavatov/multifs/model/vfs/vfsafero"
	"github.com/vsalavatov/multifs/model/vfs/vfsswift"
	"github.com/vsalavatov/multifs/model/vfs/vfstest"
	"github.com/vsalavatov/multifs/pkg/config/config"
	"github.com/vsalavatov/multifs/tests/testutils"
)

var containers int64

func swiftURL(authURL, container string) *url.URL {
	return &url.URL{
		Scheme:   "swift",
		Host:     "localhost",
		Path:     "/" + container,
		RawQuery: "UserName=swifttest&Password=swifttest&AuthURL=" + url.QueryEscape(authURL),
	}
}

// newSwift starts a swift server and returns a connection to it, and a
// factory giving a backend on a new container for each call.
func newSwift(t *testing.T) (*swift.Connection, vfstest.Factory) {
	authURL := testutils.WithSwiftServer(t)
	c, err := vfsswift.NewConnection(context.Background(), swiftURL(authURL, "unused"), config.GetConfig().Swift)
	require.NoError(t, err)

	factory := func(t *testing.T) vfs.VFS {
		container := fmt.Sprintf("multifs-test-%d", atomic.AddInt64(&containers, 1))
		fs, err := vfsswift.New(context.Background(), c, container)
		require.NoError(t, err)
		return fs
	}
	return c, factory
}

func TestSwift(t *testing.T) {
	config.UseTestFile(t)
	_, factory := newSwift(t)

	vfstest.Run(t, factory, vfstest.Options{})

	vfstest.RunCrossBackend(t, factory, func(t *testing.T) vfs.VFS {
		return vfsafero.NewFromFs(afero.NewMemMapFs(), t.Name())
	})
}

func TestSwiftObjects(t *testing.T) {
	config.UseTestFile(t)
	ctx := context.Background()
	c, _ := newSwift(t)

	newFS := func(t *testing.T, container string) vfs.VFS {
		fs, err := vfsswift.New(ctx, c, container)
		require.NoError(t, err)
		return fs
	}

	t.Run("Layout", func(t *testing.T) {
		fs := newFS(t, "layout")
		a, err := fs.Root().CreateFolder(ctx, "a")
		require.NoError(t, err)
		f, err := a.CreateFile(ctx, "f.txt")
		require.NoError(t, err)
		require.NoError(t, f.Write(ctx, []byte("foo")))

		assert.Equal(t, "a/", a.ID())
		assert.Equal(t, "a/f.txt", f.ID())

		obj, _, err := c.Object(ctx, "layout", "a/")
		require.NoError(t, err)
		assert.Equal(t, vfsswift.DirContentType, obj.ContentType)
		assert.Equal(t, int64(0), obj.Bytes)
		data, err := c.ObjectGetBytes(ctx, "layout", "a/f.txt")
		require.NoError(t, err)
		assert.Equal(t, []byte("foo"), data)
	})

	t.Run("ContentType", func(t *testing.T) {
		fs := newFS(t, "types")
		root := fs.Root()
		png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
		contents := map[string][]byte{
			"img":       png,
			"data.json": []byte("{}"),
			"raw":       []byte("raw"),
		}
		expected := map[string]string{
			"img":       "image/png",
			"data.json": "application/json",
			"raw":       vfsswift.FileContentType,
		}
		for name, data := range contents {
			f, err := root.CreateFile(ctx, name)
			require.NoError(t, err)
			obj, _, err := c.Object(ctx, "types", f.ID())
			require.NoError(t, err)
			assert.Equal(t, vfsswift.FileContentType, obj.ContentType)

			if name == "raw" {
				require.NoError(t, f.(vfs.Streamer).WriteFrom(ctx, bytes.NewReader(data)))
			} else {
				require.NoError(t, f.Write(ctx, data))
			}
			obj, _, err = c.Object(ctx, "types", f.ID())
			require.NoError(t, err)
			assert.Equal(t, expected[name], obj.ContentType, name)
		}

		img, err := root.File(ctx, "img")
		require.NoError(t, err)
		require.NoError(t, img.(vfs.Streamer).WriteFrom(ctx, bytes.NewReader(png)))
		obj, _, err := c.Object(ctx, "types", "img")
		require.NoError(t, err)
		assert.Equal(t, "image/png", obj.ContentType)
	})

	t.Run("NamesAreShared", func(t *testing.T) {
		fs := newFS(t, "names")
		root := fs.Root()
		d, err := root.CreateFolder(ctx, "x")
		require.NoError(t, err)

		_, err = root.CreateFile(ctx, "x")
		require.ErrorIs(t, err, vfs.ErrFileExists)
		assert.True(t, vfs.Equal(d, vfs.ConflictOf(err)))

		src, err := root.CreateFile(ctx, "y")
		require.NoError(t, err)
		_, err = fs.Copy(ctx, src, root, "x", true)
		require.ErrorIs(t, err, vfs.ErrFileExists)
		_, err = fs.Move(ctx, src, root, "x", true)
		require.ErrorIs(t, err, vfs.ErrFileExists)
	})

	t.Run("RecursiveRemoval", func(t *testing.T) {
		fs := newFS(t, "removal")
		d, err := fs.Root().CreateFolder(ctx, "d")
		require.NoError(t, err)
		sub, err := d.CreateFolder(ctx, "sub")
		require.NoError(t, err)
		for i := 0; i < 20; i++ {
			_, err := sub.CreateFile(ctx, fmt.Sprintf("file-%02d", i))
			require.NoError(t, err)
		}
		keep, err := fs.Root().CreateFile(ctx, "keep")
		require.NoError(t, err)

		require.NoError(t, d.Remove(ctx, true))
		names, err := c.ObjectNamesAll(ctx, "removal", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{keep.ID()}, names)
	})

	t.Run("PseudoDirectories", func(t *testing.T) {
		fs := newFS(t, "pseudo")
		root := fs.Root()
		require.NoError(t, c.ObjectPutBytes(ctx, "pseudo", "x/y.txt", []byte("y"), "text/plain"))

		nodes, err := root.List(ctx)
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		listed, ok := nodes[0].(vfs.Folder)
		require.True(t, ok)
		assert.Equal(t, "x", listed.Name())

		children, err := listed.List(ctx)
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, "y.txt", children[0].Name())

		x, err := root.Folder(ctx, "x")
		require.NoError(t, err)
		assert.True(t, vfs.Equal(listed, x))
		y, err := x.File(ctx, "y.txt")
		require.NoError(t, err)
		data, err := y.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("y"), data)

		_, err = root.CreateFolder(ctx, "x")
		assert.ErrorIs(t, err, vfs.ErrFolderExists)
		_, err = root.CreateFile(ctx, "x")
		assert.ErrorIs(t, err, vfs.ErrFileExists)

		assert.ErrorIs(t, x.Remove(ctx, false), vfs.ErrNotEmpty)
		require.NoError(t, x.Remove(ctx, true))
		_, err = root.Folder(ctx, "x")
		assert.ErrorIs(t, err, vfs.ErrFolderNotFound)
		names, err := c.ObjectNamesAll(ctx, "pseudo", nil)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("NativeOverwrite", func(t *testing.T) {
		fs := newFS(t, "overwrite")
		root := fs.Root()
		src, err := root.CreateFile(ctx, "src")
		require.NoError(t, err)
		require.NoError(t, src.Write(ctx, []byte("new")))
		dst, err := root.CreateFile(ctx, "dst")
		require.NoError(t, err)
		require.NoError(t, dst.Write(ctx, []byte("old content")))

		copied, err := fs.Copy(ctx, src, root, "dst", true)
		require.NoError(t, err)
		assert.Equal(t, dst.ID(), copied.ID())
		size, err := copied.(vfs.Sizer).Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), size)
	})
}

func TestConnection(t *testing.T) {
	config.UseTestFile(t)
	ctx := context.Background()
	authURL := testutils.WithSwiftServer(t)

	t.Run("ContainerName", func(t *testing.T) {
		u, err := url.Parse("swift://localhost/files?UserName=a")
		require.NoError(t, err)
		assert.Equal(t, "files", vfsswift.ContainerName(u))
		u, err = url.Parse("swift://localhost")
		require.NoError(t, err)
		assert.Equal(t, vfsswift.DefaultContainer, vfsswift.ContainerName(u))
	})

	t.Run("BadCredentials", func(t *testing.T) {
		u := swiftURL(authURL, "files")
		u.RawQuery = "UserName=swifttest&Password=wrong&AuthURL=" + url.QueryEscape(authURL)
		_, err := vfsswift.NewConnection(ctx, u, config.Swift{AuthRetries: 2})
		assert.Error(t, err)
	})

	t.Run("Authenticated", func(t *testing.T) {
		c, err := vfsswift.NewConnection(ctx, swiftURL(authURL, "files"), config.Swift{AuthRetries: 1})
		require.NoError(t, err)
		assert.True(t, c.Authenticated())
	})
}
