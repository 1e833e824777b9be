// Package sqlite implements a GroupProvider over an embedded SQLite file
// using row-per-member and row-per-property tables.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"groupcore/pkg/domain"
)

var _ domain.GroupProvider = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS groups (
	name TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS group_members (
	group_name TEXT NOT NULL,
	username TEXT NOT NULL,
	is_admin INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (group_name, username)
);
CREATE TABLE IF NOT EXISTS group_props (
	group_name TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (group_name, name)
);
`

// Store is a SQLite-backed persistence port for groups.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the SQLite database at path and
// ensures the group schema exists.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "groupcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// CreateGroup inserts the group row.
func (s *Store) CreateGroup(ctx context.Context, name, description string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM groups WHERE name=?`, name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check group: %w", err)
	}
	if exists > 0 {
		return domain.ErrGroupExists
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO groups(name, description) VALUES(?, ?)`, name, description); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// LoadGroup reads the group row plus all membership rows.
func (s *Store) LoadGroup(ctx context.Context, name string) (domain.GroupRecord, error) {
	rec := domain.GroupRecord{Name: name}
	err := s.db.QueryRowContext(ctx, `SELECT description FROM groups WHERE name=?`, name).Scan(&rec.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GroupRecord{}, domain.ErrGroupNotFound
	}
	if err != nil {
		return domain.GroupRecord{}, fmt.Errorf("select group: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT username, is_admin FROM group_members WHERE group_name=? ORDER BY username`, name)
	if err != nil {
		return domain.GroupRecord{}, fmt.Errorf("select members: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var username string
		var isAdmin int
		if err := rows.Scan(&username, &isAdmin); err != nil {
			return domain.GroupRecord{}, fmt.Errorf("scan member: %w", err)
		}
		if isAdmin != 0 {
			rec.Admins = append(rec.Admins, username)
		} else {
			rec.Members = append(rec.Members, username)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.GroupRecord{}, fmt.Errorf("iterate members: %w", err)
	}
	return rec, nil
}

// DeleteGroup removes the group row and all dependent rows in one transaction.
func (s *Store) DeleteGroup(ctx context.Context, name string) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE name=?`, name)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrGroupNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_name=?`, name); err != nil {
		return fmt.Errorf("delete members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_props WHERE group_name=?`, name); err != nil {
		return fmt.Errorf("delete props: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GroupNames lists all group names ascending.
func (s *Store) GroupNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select names: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate names: %w", err)
	}
	return names, nil
}

// AddMember upserts a membership row.
func (s *Store) AddMember(ctx context.Context, group, username string, admin bool) error {
	flag := 0
	if admin {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members(group_name, username, is_admin) VALUES(?, ?, ?)
		 ON CONFLICT(group_name, username) DO UPDATE SET is_admin=excluded.is_admin`,
		group, username, flag)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// DeleteMember removes a membership row regardless of role.
func (s *Store) DeleteMember(ctx context.Context, group, username string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_name=? AND username=?`, group, username); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

// SetName renames the group across all three tables in one transaction.
func (s *Store) SetName(ctx context.Context, oldName, newName string) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	var taken int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM groups WHERE name=?`, newName).Scan(&taken); err != nil {
		return fmt.Errorf("check new name: %w", err)
	}
	if taken > 0 {
		return domain.ErrGroupExists
	}
	res, err := tx.ExecContext(ctx, `UPDATE groups SET name=? WHERE name=?`, newName, oldName)
	if err != nil {
		return fmt.Errorf("rename group: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrGroupNotFound
	}
	if _, err := tx.ExecContext(ctx, `UPDATE group_members SET group_name=? WHERE group_name=?`, newName, oldName); err != nil {
		return fmt.Errorf("rename members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE group_props SET group_name=? WHERE group_name=?`, newName, oldName); err != nil {
		return fmt.Errorf("rename props: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SetDescription updates the description column.
func (s *Store) SetDescription(ctx context.Context, group, description string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE groups SET description=? WHERE name=?`, description, group)
	if err != nil {
		return fmt.Errorf("update description: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrGroupNotFound
	}
	return nil
}

// LoadProperties reads all property rows for the group, keys ascending.
func (s *Store) LoadProperties(ctx context.Context, group string) ([]domain.Property, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM group_props WHERE group_name=? ORDER BY name`, group)
	if err != nil {
		return nil, fmt.Errorf("select props: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var props []domain.Property
	for rows.Next() {
		var p domain.Property
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			return nil, fmt.Errorf("scan prop: %w", err)
		}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate props: %w", err)
	}
	return props, nil
}

// InsertProperty persists a new property row.
func (s *Store) InsertProperty(ctx context.Context, group, key, value string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO group_props(group_name, name, value) VALUES(?, ?, ?)`, group, key, value); err != nil {
		return fmt.Errorf("insert prop: %w", err)
	}
	return nil
}

// UpdateProperty overwrites an existing property row.
func (s *Store) UpdateProperty(ctx context.Context, group, key, value string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE group_props SET value=? WHERE group_name=? AND name=?`, value, group, key); err != nil {
		return fmt.Errorf("update prop: %w", err)
	}
	return nil
}

// DeleteProperty removes a property row.
func (s *Store) DeleteProperty(ctx context.Context, group, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM group_props WHERE group_name=? AND name=?`, group, key); err != nil {
		return fmt.Errorf("delete prop: %w", err)
	}
	return nil
}
