package vfssqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsalavatov/multifs/model/vfs"
	"github.com/vsalavatov/multifs/model/vfs/vfsafero"
	"github.com/vsalavatov/multifs/model/vfs/vfssqlite"
	"github.com/vsalavatov/multifs/model/vfs/vfstest"
	"github.com/vsalavatov/multifs/pkg/config/config"
	"golang.org/x/sync/errgroup"

	"github.com/spf13/afero"
)

func openDB(t *testing.T, dbPath string) *sql.DB {
	db, err := vfssqlite.OpenDB(dbPath, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSQLiteFS(t *testing.T) vfs.VFS {
	db := openDB(t, filepath.Join(t.TempDir(), "multifs.db"))
	fs, err := vfssqlite.New(context.Background(), db, t.Name())
	require.NoError(t, err)
	return fs
}

func TestSQLite(t *testing.T) {
	config.UseTestFile(t)

	vfstest.Run(t, newSQLiteFS, vfstest.Options{})

	vfstest.RunCrossBackend(t, newSQLiteFS, func(t *testing.T) vfs.VFS {
		return vfsafero.NewFromFs(afero.NewMemMapFs(), t.Name())
	})
}

func TestSQLiteTable(t *testing.T) {
	config.UseTestFile(t)
	ctx := context.Background()

	t.Run("RootRow", func(t *testing.T) {
		fs := newSQLiteFS(t)
		assert.Equal(t, "0", fs.Root().ID())
	})

	t.Run("UniqueNames", func(t *testing.T) {
		fs := newSQLiteFS(t)
		first, err := fs.Root().CreateFile(ctx, "same.txt")
		require.NoError(t, err)

		_, err = fs.Root().CreateFile(ctx, "same.txt")
		require.ErrorIs(t, err, vfs.ErrFileExists)
		conflict := vfs.ConflictOf(err)
		require.NotNil(t, conflict)
		assert.True(t, vfs.Equal(first, conflict))

		nodes, err := fs.Root().List(ctx)
		require.NoError(t, err)
		assert.Len(t, nodes, 1)
	})

	t.Run("ConcurrentCreations", func(t *testing.T) {
		fs := newSQLiteFS(t)
		var created, conflicts int32

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < 16; i++ {
			g.Go(func() error {
				_, err := fs.Root().CreateFile(gctx, "race.txt")
				switch {
				case err == nil:
					atomic.AddInt32(&created, 1)
				case vfs.IsExists(err):
					atomic.AddInt32(&conflicts, 1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.EqualValues(t, 1, created)
		assert.EqualValues(t, 15, conflicts)

		nodes, err := fs.Root().List(ctx)
		require.NoError(t, err)
		assert.Len(t, nodes, 1)
	})

	t.Run("MoveKeepsID", func(t *testing.T) {
		fs := newSQLiteFS(t)
		root := fs.Root()
		f, err := root.CreateFile(ctx, "f.txt")
		require.NoError(t, err)
		d, err := root.CreateFolder(ctx, "d")
		require.NoError(t, err)

		moved, err := fs.Move(ctx, f, d, "g.txt", false)
		require.NoError(t, err)
		assert.Equal(t, f.ID(), moved.ID())
		assert.Equal(t, "/d/g.txt", vfs.Represent(moved))

		copied, err := fs.Copy(ctx, moved, root, "", false)
		require.NoError(t, err)
		assert.NotEqual(t, moved.ID(), copied.ID())
	})

	t.Run("OverwriteKeepsTargetID", func(t *testing.T) {
		fs := newSQLiteFS(t)
		root := fs.Root()
		src, err := root.CreateFile(ctx, "src.txt")
		require.NoError(t, err)
		require.NoError(t, src.Write(ctx, []byte("new")))
		dst, err := root.CreateFile(ctx, "dst.txt")
		require.NoError(t, err)

		copied, err := fs.Copy(ctx, src, root, "dst.txt", true)
		require.NoError(t, err)
		assert.Equal(t, dst.ID(), copied.ID())
	})

	t.Run("Persistence", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "persist.db")
		db := openDB(t, dbPath)
		fs, err := vfssqlite.New(ctx, db, "persist")
		require.NoError(t, err)
		d, err := fs.Root().CreateFolder(ctx, "d")
		require.NoError(t, err)
		f, err := d.CreateFile(ctx, "f.txt")
		require.NoError(t, err)
		require.NoError(t, f.Write(ctx, []byte{1, 2, 3}))
		require.NoError(t, db.Close())

		db = openDB(t, dbPath)
		fs, err = vfssqlite.New(ctx, db, "persist")
		require.NoError(t, err)
		f, err = vfs.LookupFile(ctx, fs.Root(), vfs.Path{"d", "f.txt"})
		require.NoError(t, err)
		data, err := f.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, data)
	})

	t.Run("InvariantViolation", func(t *testing.T) {
		db := openDB(t, filepath.Join(t.TempDir(), "broken.db"))
		// A table created without the uniqueness constraint.
		_, err := db.ExecContext(ctx, `CREATE TABLE Files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			data BLOB NOT NULL,
			parent INTEGER NOT NULL
		)`)
		require.NoError(t, err)
		fs, err := vfssqlite.New(ctx, db, "broken")
		require.NoError(t, err)
		for i := 0; i < 2; i++ {
			_, err = db.ExecContext(ctx, `INSERT INTO Files (name, data, parent) VALUES ('dup.txt', x'', 0)`)
			require.NoError(t, err)
		}

		_, err = fs.Root().File(ctx, "dup.txt")
		assert.ErrorIs(t, err, vfs.ErrInvariant)
	})

	t.Run("DeepCascade", func(t *testing.T) {
		fs := newSQLiteFS(t)
		dir := fs.Root()
		var files []vfs.File
		for i := 0; i < 5; i++ {
			next, err := dir.CreateFolder(ctx, fmt.Sprintf("level%d", i))
			require.NoError(t, err)
			f, err := next.CreateFile(ctx, "f.txt")
			require.NoError(t, err)
			files = append(files, f)
			dir = next
		}
		top, err := fs.Root().Folder(ctx, "level0")
		require.NoError(t, err)
		require.NoError(t, top.Remove(ctx, true))
		for _, f := range files {
			_, err := f.Read(ctx)
			assert.ErrorIs(t, err, vfs.ErrFileNotFound)
		}
	})
}
