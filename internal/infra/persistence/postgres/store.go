// Package postgres provides a PostgreSQL-backed GroupProvider using pgx
// through database/sql, applying the group DDL on startup.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"groupcore/pkg/domain"
)

var _ domain.GroupProvider = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenProvider defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/groupcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const schema = `
CREATE TABLE IF NOT EXISTS groups (
	name TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS group_members (
	group_name TEXT NOT NULL,
	username TEXT NOT NULL,
	is_admin BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (group_name, username)
);
CREATE TABLE IF NOT EXISTS group_props (
	group_name TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (group_name, name)
);
`

// Store persists group state to PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), verifies connectivity, and applies the group DDL.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applyDDL(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func applyDDL(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateGroup inserts the group row.
func (s *Store) CreateGroup(ctx context.Context, name, description string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO groups(name, description) VALUES($1, $2)`, name, description); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrGroupExists
		}
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// LoadGroup reads the group row plus all membership rows.
func (s *Store) LoadGroup(ctx context.Context, name string) (domain.GroupRecord, error) {
	rec := domain.GroupRecord{Name: name}
	err := s.db.QueryRowContext(ctx, `SELECT description FROM groups WHERE name=$1`, name).Scan(&rec.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GroupRecord{}, domain.ErrGroupNotFound
	}
	if err != nil {
		return domain.GroupRecord{}, fmt.Errorf("select group: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT username, is_admin FROM group_members WHERE group_name=$1 ORDER BY username`, name)
	if err != nil {
		return domain.GroupRecord{}, fmt.Errorf("select members: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var username string
		var isAdmin bool
		if err := rows.Scan(&username, &isAdmin); err != nil {
			return domain.GroupRecord{}, fmt.Errorf("scan member: %w", err)
		}
		if isAdmin {
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

// DeleteGroup removes the group row and dependent rows transactionally.
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
	res, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE name=$1`, name)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrGroupNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_name=$1`, name); err != nil {
		return fmt.Errorf("delete members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_props WHERE group_name=$1`, name); err != nil {
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members(group_name, username, is_admin) VALUES($1, $2, $3)
		 ON CONFLICT(group_name, username) DO UPDATE SET is_admin=EXCLUDED.is_admin`,
		group, username, admin)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// DeleteMember removes a membership row regardless of role.
func (s *Store) DeleteMember(ctx context.Context, group, username string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_name=$1 AND username=$2`, group, username); err != nil {
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
	res, err := tx.ExecContext(ctx, `UPDATE groups SET name=$1 WHERE name=$2`, newName, oldName)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrGroupExists
		}
		return fmt.Errorf("rename group: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrGroupNotFound
	}
	if _, err := tx.ExecContext(ctx, `UPDATE group_members SET group_name=$1 WHERE group_name=$2`, newName, oldName); err != nil {
		return fmt.Errorf("rename members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE group_props SET group_name=$1 WHERE group_name=$2`, newName, oldName); err != nil {
		return fmt.Errorf("rename props: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SetDescription updates the description column.
func (s *Store) SetDescription(ctx context.Context, group, description string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE groups SET description=$1 WHERE name=$2`, description, group)
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
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM group_props WHERE group_name=$1 ORDER BY name`, group)
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
	if _, err := s.db.ExecContext(ctx, `INSERT INTO group_props(group_name, name, value) VALUES($1, $2, $3)`, group, key, value); err != nil {
		return fmt.Errorf("insert prop: %w", err)
	}
	return nil
}

// UpdateProperty overwrites an existing property row.
func (s *Store) UpdateProperty(ctx context.Context, group, key, value string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE group_props SET value=$1 WHERE group_name=$2 AND name=$3`, value, group, key); err != nil {
		return fmt.Errorf("update prop: %w", err)
	}
	return nil
}

// DeleteProperty removes a property row.
func (s *Store) DeleteProperty(ctx context.Context, group, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM group_props WHERE group_name=$1 AND name=$2`, group, key); err != nil {
		return fmt.Errorf("delete prop: %w", err)
	}
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
