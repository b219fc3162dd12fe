// Package vfssqlite is a vfs backend storing the folders and the files in two
// tables of an embedded SQLite database. The content of the files is kept in
// a BLOB column.
package vfssqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/vsalavatov/multifs/model/vfs"
	"github.com/vsalavatov/multifs/pkg/logger"
	"github.com/vsalavatov/multifs/pkg/metrics"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// RootID is the id of the row of the root folder.
const RootID int64 = 0

const schema = `
CREATE TABLE IF NOT EXISTS Folders (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	name   TEXT NOT NULL,
	parent INTEGER REFERENCES Folders(id) ON DELETE CASCADE,
	UNIQUE (name, parent),
	CHECK (name <> '' OR parent IS NULL),
	CHECK (parent IS NOT NULL OR id = 0)
);
CREATE TABLE IF NOT EXISTS Files (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	name   TEXT NOT NULL,
	data   BLOB NOT NULL,
	parent INTEGER NOT NULL REFERENCES Folders(id) ON DELETE CASCADE,
	UNIQUE (name, parent),
	CHECK (name <> '')
);
CREATE INDEX IF NOT EXISTS FoldersByParent ON Folders(parent);
CREATE INDEX IF NOT EXISTS FilesByParent ON Files(parent);
INSERT OR IGNORE INTO Folders (id, name, parent) VALUES (0, '', NULL);
`

type sqliteVFS struct {
	db   *sql.DB
	name string
	root *folder
	log  *logger.Entry
}

// OpenDB opens the SQLite database at the given path. The foreign keys are
// enforced on every connection of the pool, as the recursive removal of the
// folders relies on the cascades.
func OpenDB(dbPath string, busyTimeout time.Duration) (*sql.DB, error) {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Set("_txlock", "immediate")
	db, err := sql.Open("sqlite", "file:"+dbPath+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("vfssqlite: cannot open %s: %w", dbPath, err)
	}
	return db, nil
}

// New returns a vfs.VFS stored in the given database. The tables are created
// if they do not exist yet.
func New(ctx context.Context, db *sql.DB, name string) (vfs.VFS, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("vfssqlite: cannot initialize the schema: %w", err)
	}
	sfs := &sqliteVFS{
		db:   db,
		name: name,
		log:  logger.WithNamespace("vfssqlite"),
	}
	root := &folder{sfs: sfs, id: RootID}
	root.parent = root
	sfs.root = root
	return sfs, nil
}

func (sfs *sqliteVFS) Name() string { return "sqlite" }

func (sfs *sqliteVFS) Root() vfs.Folder { return sfs.root }

func (sfs *sqliteVFS) RepresentPath(p vfs.Path) string { return p.String() }

func (sfs *sqliteVFS) String() string { return "sqlite:" + sfs.name }

// querier is implemented by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// inTx runs fn in a transaction, committed if fn returns no error.
func (sfs *sqliteVFS) inTx(ctx context.Context, op, pth string, fn func(tx *sql.Tx) error) error {
	tx, err := sfs.db.BeginTx(ctx, nil)
	if err != nil {
		return vfs.Failure(op, pth, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return vfs.Failure(op, pth, err)
	}
	return nil
}

func folderExists(ctx context.Context, q querier, id int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM Folders WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}

func fileExists(ctx context.Context, q querier, id int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM Files WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}

// checkFolder returns a NotFound error if the folder row is missing.
func (sfs *sqliteVFS) checkFolder(ctx context.Context, q querier, op string, dir *folder) error {
	ok, err := folderExists(ctx, q, dir.id)
	if err != nil {
		return vfs.Failure(op, vfs.Represent(dir), err)
	}
	if !ok {
		return vfs.NotFound(op, vfs.FolderNode, vfs.Represent(dir), nil)
	}
	return nil
}

// lookup returns the ids of the rows of the given table with this name and
// parent. There should be at most one.
func (sfs *sqliteVFS) lookup(ctx context.Context, q querier, table string, parent int64, name string) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM `+table+` WHERE name = ? AND parent = ?`, name, parent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (sfs *sqliteVFS) lookupFile(ctx context.Context, q querier, op string, dir *folder, name string) (*file, error) {
	pth := childPath(dir, name)
	ids, err := sfs.lookup(ctx, q, "Files", dir.id, name)
	if err != nil {
		return nil, vfs.Failure(op, pth, err)
	}
	switch len(ids) {
	case 0:
		if err := sfs.checkFolder(ctx, q, op, dir); err != nil {
			return nil, err
		}
		return nil, vfs.NotFound(op, vfs.FileNode, pth, nil)
	case 1:
		return &file{sfs: sfs, id: ids[0], name: name, parent: dir}, nil
	default:
		sfs.log.Errorf("Found %d files named %q in the folder %d", len(ids), name, dir.id)
		return nil, vfs.Invariant(op, pth, "%d files have the same name", len(ids))
	}
}

func (sfs *sqliteVFS) lookupFolder(ctx context.Context, q querier, op string, dir *folder, name string) (*folder, error) {
	pth := childPath(dir, name)
	ids, err := sfs.lookup(ctx, q, "Folders", dir.id, name)
	if err != nil {
		return nil, vfs.Failure(op, pth, err)
	}
	switch len(ids) {
	case 0:
		return nil, vfs.NotFound(op, vfs.FolderNode, pth, nil)
	case 1:
		return &folder{sfs: sfs, id: ids[0], name: name, parent: dir}, nil
	default:
		sfs.log.Errorf("Found %d folders named %q in the folder %d", len(ids), name, dir.id)
		return nil, vfs.Invariant(op, pth, "%d folders have the same name", len(ids))
	}
}

// translate converts an error of the database to a vfs error. The
// constraint violations are expected errors: UNIQUE means that the name is
// already taken, and FOREIGNKEY that the parent folder has been removed.
func (sfs *sqliteVFS) translate(op string, typ vfs.NodeType, pth string, conflict func() vfs.Node, err error) error {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			var node vfs.Node
			if conflict != nil {
				node = conflict()
			}
			return vfs.Exists(op, typ, pth, node, err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return vfs.NotFound(op, vfs.FolderNode, pth, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return vfs.Failure(op, pth, err)
}

func childPath(dir vfs.Folder, name string) string {
	return dir.Backend().RepresentPath(vfs.AbsolutePath(dir).Join(name))
}

// Copy duplicates the row of the file when both files are in this database,
// and uses the generic algorithm otherwise.
func (sfs *sqliteVFS) Copy(ctx context.Context, f vfs.File, newParent vfs.Folder, newName string, overwrite bool) (vfs.File, error) {
	if err := vfs.CheckOwnership(sfs, "copy", newParent); err != nil {
		return nil, err
	}
	src, ok := f.(*file)
	dir, okDir := newParent.(*folder)
	if !ok || !okDir || src.sfs != sfs {
		return vfs.GenericCopy(ctx, f, newParent, newName, overwrite)
	}
	name := vfs.TargetName(f, newName)
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure("copy", vfs.Represent(dir), err)
	}
	if vfs.IsSameLocation(f, newParent, name) {
		metrics.TransferCounter.WithLabelValues(sfs.Name(), "copy", metrics.TransferNoop).Inc()
		return f, nil
	}
	pth := childPath(dir, name)

	var copied *file
	err := sfs.inTx(ctx, "copy", pth, func(tx *sql.Tx) error {
		if err := src.check(ctx, tx, "copy"); err != nil {
			return err
		}
		if err := sfs.checkFolder(ctx, tx, "copy", dir); err != nil {
			return err
		}
		if overwrite {
			ids, err := sfs.lookup(ctx, tx, "Files", dir.id, name)
			if err != nil {
				return vfs.Failure("copy", pth, err)
			}
			if len(ids) == 1 {
				_, err = tx.ExecContext(ctx,
					`UPDATE Files SET data = (SELECT data FROM Files WHERE id = ?) WHERE id = ?`,
					src.id, ids[0])
				if err != nil {
					return sfs.translate("copy", vfs.FileNode, pth, nil, err)
				}
				copied = &file{sfs: sfs, id: ids[0], name: name, parent: dir}
				return nil
			}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO Files (name, data, parent) SELECT ?, data, ? FROM Files WHERE id = ?`,
			name, dir.id, src.id)
		if err != nil {
			return sfs.translate("copy", vfs.FileNode, pth, nil, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return vfs.Failure("copy", pth, err)
		}
		copied = &file{sfs: sfs, id: id, name: name, parent: dir}
		return nil
	})
	if err != nil {
		return nil, sfs.withConflict(ctx, err, dir, name)
	}
	sfs.log.Debugf("Copied file %d to %s", src.id, pth)
	metrics.TransferCounter.WithLabelValues(sfs.Name(), "copy", metrics.TransferNative).Inc()
	return copied, nil
}

// Move updates the name and the parent of the file when both are in this
// database: the file keeps its id. It uses the generic algorithm otherwise.
func (sfs *sqliteVFS) Move(ctx context.Context, f vfs.File, newParent vfs.Folder, newName string, overwrite bool) (vfs.File, error) {
	if err := vfs.CheckOwnership(sfs, "move", newParent); err != nil {
		return nil, err
	}
	src, ok := f.(*file)
	dir, okDir := newParent.(*folder)
	if !ok || !okDir || src.sfs != sfs {
		return vfs.GenericMove(ctx, f, newParent, newName, overwrite)
	}
	name := vfs.TargetName(f, newName)
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure("move", vfs.Represent(dir), err)
	}
	if vfs.IsSameLocation(f, newParent, name) {
		metrics.TransferCounter.WithLabelValues(sfs.Name(), "move", metrics.TransferNoop).Inc()
		return f, nil
	}
	pth := childPath(dir, name)

	err := sfs.inTx(ctx, "move", pth, func(tx *sql.Tx) error {
		if err := src.check(ctx, tx, "move"); err != nil {
			return err
		}
		if err := sfs.checkFolder(ctx, tx, "move", dir); err != nil {
			return err
		}
		if overwrite {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM Files WHERE name = ? AND parent = ? AND id <> ?`,
				name, dir.id, src.id)
			if err != nil {
				return sfs.translate("move", vfs.FileNode, pth, nil, err)
			}
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE Files SET name = ?, parent = ? WHERE id = ?`,
			name, dir.id, src.id)
		if err != nil {
			return sfs.translate("move", vfs.FileNode, pth, nil, err)
		}
		return nil
	})
	if err != nil {
		return nil, sfs.withConflict(ctx, err, dir, name)
	}
	sfs.log.Debugf("Moved file %d to %s", src.id, pth)
	metrics.TransferCounter.WithLabelValues(sfs.Name(), "move", metrics.TransferNative).Inc()
	return &file{sfs: sfs, id: src.id, name: name, parent: dir}, nil
}

// withConflict adds the existing file to an AlreadyExists error. The lookup
// is done after the end of the transaction.
func (sfs *sqliteVFS) withConflict(ctx context.Context, err error, dir *folder, name string) error {
	var verr *vfs.Error
	if !errors.As(err, &verr) || verr.Kind != vfs.KindAlreadyExists || verr.Conflict != nil {
		return err
	}
	if existing, errl := sfs.lookupFile(ctx, sfs.db, "lookup", dir, name); errl == nil {
		verr.Conflict = existing
	}
	return err
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

var (
	_ vfs.VFS    = &sqliteVFS{}
	_ vfs.Folder = &folder{}
	_ vfs.File   = &file{}
	_ vfs.Sizer  = &file{}
)
