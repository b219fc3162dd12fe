package vfssqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vsalavatov/multifs/model/vfs"
)

// folder is a row of the Folders table. The parent chain is captured when
// the handle is created.
type folder struct {
	sfs    *sqliteVFS
	id     int64
	name   string
	parent *folder
}

func (f *folder) Name() string { return f.name }

func (f *folder) Parent() vfs.Folder { return f.parent }

func (f *folder) ID() string { return formatID(f.id) }

func (f *folder) Backend() vfs.VFS { return f.sfs }

func (f *folder) List(ctx context.Context) ([]vfs.Node, error) {
	var nodes []vfs.Node
	err := f.sfs.inTx(ctx, "list", vfs.Represent(f), func(tx *sql.Tx) error {
		if err := f.sfs.checkFolder(ctx, tx, "list", f); err != nil {
			return err
		}
		folders, err := f.children(ctx, tx, `SELECT id, name FROM Folders WHERE parent = ? ORDER BY name`)
		if err != nil {
			return err
		}
		for _, c := range folders {
			nodes = append(nodes, &folder{sfs: f.sfs, id: c.id, name: c.name, parent: f})
		}
		files, err := f.children(ctx, tx, `SELECT id, name FROM Files WHERE parent = ? ORDER BY name`)
		if err != nil {
			return err
		}
		for _, c := range files {
			nodes = append(nodes, &file{sfs: f.sfs, id: c.id, name: c.name, parent: f})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

type row struct {
	id   int64
	name string
}

func (f *folder) children(ctx context.Context, tx *sql.Tx, query string) ([]row, error) {
	rows, err := tx.QueryContext(ctx, query, f.id)
	if err != nil {
		return nil, vfs.Failure("list", vfs.Represent(f), err)
	}
	defer rows.Close()
	var res []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.name); err != nil {
			return nil, vfs.Failure("list", vfs.Represent(f), err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, vfs.Failure("list", vfs.Represent(f), err)
	}
	return res, nil
}

func (f *folder) CreateFolder(ctx context.Context, name string) (vfs.Folder, error) {
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure("create-folder", vfs.Represent(f), err)
	}
	pth := childPath(f, name)
	res, err := f.sfs.db.ExecContext(ctx, `INSERT INTO Folders (name, parent) VALUES (?, ?)`, name, f.id)
	if err != nil {
		return nil, f.sfs.translate("create-folder", vfs.FolderNode, pth, func() vfs.Node {
			existing, _ := f.sfs.lookupFolder(ctx, f.sfs.db, "lookup", f, name)
			if existing == nil {
				return nil
			}
			return existing
		}, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, vfs.Failure("create-folder", pth, err)
	}
	f.sfs.log.Debugf("Created folder %s with id %d", pth, id)
	return &folder{sfs: f.sfs, id: id, name: name, parent: f}, nil
}

func (f *folder) CreateFile(ctx context.Context, name string) (vfs.File, error) {
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure("create-file", vfs.Represent(f), err)
	}
	pth := childPath(f, name)
	res, err := f.sfs.db.ExecContext(ctx, `INSERT INTO Files (name, data, parent) VALUES (?, x'', ?)`, name, f.id)
	if err != nil {
		return nil, f.sfs.translate("create-file", vfs.FileNode, pth, func() vfs.Node {
			existing, _ := f.sfs.lookupFile(ctx, f.sfs.db, "lookup", f, name)
			if existing == nil {
				return nil
			}
			return existing
		}, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, vfs.Failure("create-file", pth, err)
	}
	f.sfs.log.Debugf("Created file %s with id %d", pth, id)
	return &file{sfs: f.sfs, id: id, name: name, parent: f}, nil
}

func (f *folder) Remove(ctx context.Context, recursively bool) error {
	pth := vfs.Represent(f)
	if f.id == RootID {
		return vfs.Failure("remove", pth, vfs.ErrRootRemoval)
	}
	err := f.sfs.inTx(ctx, "remove", pth, func(tx *sql.Tx) error {
		if err := f.sfs.checkFolder(ctx, tx, "remove", f); err != nil {
			return err
		}
		if !recursively {
			var notEmpty bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM Folders WHERE parent = ?) OR EXISTS (SELECT 1 FROM Files WHERE parent = ?)`,
				f.id, f.id).Scan(&notEmpty)
			if err != nil {
				return vfs.Failure("remove", pth, err)
			}
			if notEmpty {
				return vfs.NotEmpty("remove", pth, nil)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM Folders WHERE id = ?`, f.id); err != nil {
			return vfs.Failure("remove", pth, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	f.sfs.log.Debugf("Removed folder %s (recursively: %t)", pth, recursively)
	return nil
}

func (f *folder) Folder(ctx context.Context, name string) (vfs.Folder, error) {
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure("lookup", vfs.Represent(f), err)
	}
	return f.sfs.lookupFolder(ctx, f.sfs.db, "lookup", f, name)
}

func (f *folder) File(ctx context.Context, name string) (vfs.File, error) {
	if err := vfs.CheckName(name); err != nil {
		return nil, vfs.Failure("lookup", vfs.Represent(f), err)
	}
	return f.sfs.lookupFile(ctx, f.sfs.db, "lookup", f, name)
}

// file is a row of the Files table.
type file struct {
	sfs    *sqliteVFS
	id     int64
	name   string
	parent *folder
}

func (f *file) Name() string { return f.name }

func (f *file) Parent() vfs.Folder { return f.parent }

func (f *file) ID() string { return formatID(f.id) }

func (f *file) Backend() vfs.VFS { return f.sfs }

// check returns a NotFound error if the row of the file is missing.
func (f *file) check(ctx context.Context, q querier, op string) error {
	ok, err := fileExists(ctx, q, f.id)
	if err != nil {
		return vfs.Failure(op, vfs.Represent(f), err)
	}
	if !ok {
		return vfs.NotFound(op, vfs.FileNode, vfs.Represent(f), nil)
	}
	return nil
}

func (f *file) Read(ctx context.Context) ([]byte, error) {
	var data []byte
	err := f.sfs.db.QueryRowContext(ctx, `SELECT data FROM Files WHERE id = ?`, f.id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vfs.NotFound("read", vfs.FileNode, vfs.Represent(f), nil)
		}
		return nil, vfs.Failure("read", vfs.Represent(f), err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (f *file) Write(ctx context.Context, data []byte) error {
	res, err := f.sfs.db.ExecContext(ctx, `UPDATE Files SET data = coalesce(?, x'') WHERE id = ?`, data, f.id)
	if err != nil {
		return vfs.Failure("write", vfs.Represent(f), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return vfs.NotFound("write", vfs.FileNode, vfs.Represent(f), nil)
	}
	f.sfs.log.Debugf("Wrote %d bytes in file %d", len(data), f.id)
	return nil
}

func (f *file) Size(ctx context.Context) (int64, error) {
	var size int64
	err := f.sfs.db.QueryRowContext(ctx, `SELECT length(data) FROM Files WHERE id = ?`, f.id).Scan(&size)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, vfs.NotFound("size", vfs.FileNode, vfs.Represent(f), nil)
		}
		return 0, vfs.Failure("size", vfs.Represent(f), err)
	}
	return size, nil
}

func (f *file) Remove(ctx context.Context) error {
	res, err := f.sfs.db.ExecContext(ctx, `DELETE FROM Files WHERE id = ?`, f.id)
	if err != nil {
		return vfs.Failure("remove", vfs.Represent(f), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return vfs.NotFound("remove", vfs.FileNode, vfs.Represent(f), nil)
	}
	f.sfs.log.Debugf("Removed file %d", f.id)
	return nil
}
