// Package testutil provides a stub database for postgres store tests. The
// stub understands just enough of the group schema's SQL to keep rows in
// per-table maps, honor WHERE predicates, and raise unique violations the
// way a real postgres would.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Primary keys per table, used to detect unique violations.
var tableKeys = map[string][]string{
	"groups":        {"name"},
	"group_members": {"group_name", "username"},
	"group_props":   {"group_name", "name"},
}

// StubConn records statements and applies them to in-memory tables.
type StubConn struct {
	Execs      []string
	Tables     map[string][]map[string]any
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailTables map[string]bool
	RowsErr    error
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailExec {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func keyOf(table string, row map[string]any) string {
	var parts []string
	for _, col := range tableKeys[table] {
		parts = append(parts, fmt.Sprintf("%v", row[col]))
	}
	return strings.Join(parts, "\x00")
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(trimmed, "INSERT INTO"):
		return c.execInsert(query, args)
	case strings.HasPrefix(trimmed, "DELETE FROM"):
		return c.execDelete(query, args)
	case strings.HasPrefix(trimmed, "UPDATE "):
		return c.execUpdate(query, args)
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) execInsert(query string, args []driver.NamedValue) (driver.Result, error) {
	table, cols, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables != nil && c.FailTables[table] {
		return nil, fmt.Errorf("exec fail for %s", table)
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	upsert := strings.Contains(strings.ToUpper(query), "ON CONFLICT")
	key := keyOf(table, row)
	var filtered []map[string]any
	for _, existing := range c.Tables[table] {
		if keyOf(table, existing) == key {
			if !upsert {
				return nil, uniqueViolation()
			}
			continue
		}
		filtered = append(filtered, existing)
	}
	c.Tables[table] = append(filtered, row)
	return driver.RowsAffected(1), nil
}

func (c *StubConn) execDelete(query string, args []driver.NamedValue) (driver.Result, error) {
	table, where, err := parseDelete(query)
	if err != nil {
		return nil, err
	}
	if len(args) != len(where) {
		return nil, fmt.Errorf("predicate/arg mismatch for delete %s", table)
	}
	var kept []map[string]any
	removed := int64(0)
	for _, row := range c.Tables[table] {
		if matches(row, where, args) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	c.Tables[table] = kept
	return driver.RowsAffected(removed), nil
}

func (c *StubConn) execUpdate(query string, args []driver.NamedValue) (driver.Result, error) {
	table, setCol, where, err := parseUpdate(query)
	if err != nil {
		return nil, err
	}
	if len(args) != len(where)+1 {
		return nil, fmt.Errorf("predicate/arg mismatch for update %s", table)
	}
	newValue := args[0].Value
	whereArgs := args[1:]
	affected := int64(0)
	for _, row := range c.Tables[table] {
		if !matches(row, where, whereArgs) {
			continue
		}
		if pk := tableKeys[table]; len(pk) == 1 && pk[0] == setCol {
			for _, other := range c.Tables[table] {
				if other[setCol] == newValue && !matches(other, where, whereArgs) {
					return nil, uniqueViolation()
				}
			}
		}
		row[setCol] = newValue
		affected++
	}
	return driver.RowsAffected(affected), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if c.Tables == nil {
		c.Tables = make(map[string][]map[string]any)
	}
	table, cols, where, orderBy, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables != nil && c.FailTables[table] {
		return nil, fmt.Errorf("query fail for %s", table)
	}
	if len(args) != len(where) {
		return nil, fmt.Errorf("predicate/arg mismatch for select %s", table)
	}
	var selected []map[string]any
	for _, row := range c.Tables[table] {
		if matches(row, where, args) {
			selected = append(selected, row)
		}
	}
	if orderBy != "" {
		sort.SliceStable(selected, func(i, j int) bool {
			return fmt.Sprintf("%v", selected[i][orderBy]) < fmt.Sprintf("%v", selected[j][orderBy])
		})
	}
	values := make([][]driver.Value, 0, len(selected))
	for _, row := range selected {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values, err: c.RowsErr}, nil
}

func matches(row map[string]any, cols []string, args []driver.NamedValue) bool {
	for i, col := range cols {
		if row[col] != args[i].Value {
			return false
		}
	}
	return true
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}
func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	cols := splitColumns(rest[open+1 : closeIdx])
	return table, cols, nil
}

func parseDelete(query string) (string, []string, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	prefix := "delete from "
	if !strings.HasPrefix(lower, prefix) {
		return "", nil, fmt.Errorf("cannot parse delete: %s", query)
	}
	rest := strings.TrimSpace(lower[len(prefix):])
	whereIdx := strings.Index(rest, " where ")
	if whereIdx == -1 {
		return strings.TrimSpace(rest), nil, nil
	}
	table := strings.TrimSpace(rest[:whereIdx])
	where, err := parseWhere(rest[whereIdx+len(" where "):])
	if err != nil {
		return "", nil, fmt.Errorf("cannot parse delete: %s", query)
	}
	return table, where, nil
}

func parseUpdate(query string) (string, string, []string, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	prefix := "update "
	if !strings.HasPrefix(lower, prefix) {
		return "", "", nil, fmt.Errorf("cannot parse update: %s", query)
	}
	rest := strings.TrimSpace(lower[len(prefix):])
	setIdx := strings.Index(rest, " set ")
	whereIdx := strings.Index(rest, " where ")
	if setIdx == -1 || whereIdx == -1 || whereIdx <= setIdx {
		return "", "", nil, fmt.Errorf("cannot parse update: %s", query)
	}
	table := strings.TrimSpace(rest[:setIdx])
	setClause := strings.TrimSpace(rest[setIdx+len(" set "):whereIdx])
	setParts := strings.SplitN(setClause, "=", 2)
	if len(setParts) != 2 {
		return "", "", nil, fmt.Errorf("cannot parse update set clause: %s", query)
	}
	setCol := strings.TrimSpace(setParts[0])
	where, err := parseWhere(rest[whereIdx+len(" where "):])
	if err != nil {
		return "", "", nil, fmt.Errorf("cannot parse update: %s", query)
	}
	return table, setCol, where, nil
}

func parseSelect(query string) (string, []string, []string, string, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	selectPrefix := "select "
	fromToken := " from "
	if !strings.HasPrefix(lower, selectPrefix) {
		return "", nil, nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, fromToken)
	if fromIdx == -1 {
		return "", nil, nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	cols := splitColumns(lower[len(selectPrefix):fromIdx])
	rest := strings.TrimSpace(lower[fromIdx+len(fromToken):])

	orderBy := ""
	if idx := strings.Index(rest, " order by "); idx != -1 {
		orderBy = strings.TrimSpace(rest[idx+len(" order by "):])
		rest = strings.TrimSpace(rest[:idx])
	}
	var where []string
	if idx := strings.Index(rest, " where "); idx != -1 {
		parsed, err := parseWhere(rest[idx+len(" where "):])
		if err != nil {
			return "", nil, nil, "", fmt.Errorf("cannot parse select: %s", query)
		}
		where = parsed
		rest = strings.TrimSpace(rest[:idx])
	}
	if rest == "" {
		return "", nil, nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	return strings.Fields(rest)[0], cols, where, orderBy, nil
}

// parseWhere returns the predicate columns of an equality-only WHERE clause,
// in positional-arg order.
func parseWhere(clause string) ([]string, error) {
	var cols []string
	for _, pred := range strings.Split(clause, " and ") {
		parts := strings.SplitN(pred, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("cannot parse predicate: %s", pred)
		}
		cols = append(cols, strings.TrimSpace(parts[0]))
	}
	return cols, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
