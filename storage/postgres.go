package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/tailored-agentic-units/datashelf/dataset"
)

// Queryer is the subset of *pgxpool.Pool used by the Postgres store.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresStore serves one dataset per table of a schema. Cells are read as
// text, and query predicates are pushed down as parameterized SQL.
type PostgresStore struct {
	db     Queryer
	schema string
	close  func()
}

// NewPostgresStore creates a store over tables in schema reachable through db.
func NewPostgresStore(db Queryer, schema string) *PostgresStore {
	if schema == "" {
		schema = "public"
	}
	return &PostgresStore{db: db, schema: schema, close: func() {}}
}

// ConnectPostgres opens a connection pool to dsn and returns a store over
// schema. Close releases the pool.
func ConnectPostgres(ctx context.Context, dsn, schema string) (*PostgresStore, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s := NewPostgresStore(pool, schema)
	s.close = pool.Close
	return s, nil
}

// Close releases the connection pool opened by ConnectPostgres.
func (s *PostgresStore) Close() error {
	s.close()
	return nil
}

const (
	listTablesSQL = `SELECT table_name FROM information_schema.tables
WHERE table_schema = $1 AND table_type IN ('BASE TABLE', 'VIEW')
ORDER BY table_name`

	listColumnsSQL = `SELECT column_name FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

	tableSizeSQL = `SELECT pg_total_relation_size(c.oid), GREATEST(c.reltuples, 0)::bigint
FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2`
)

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, listTablesSQL, s.schema)
	if err != nil {
		return nil, fmt.Errorf("%w: list schema %s: %v", ErrReadFailed, s.schema, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: list schema %s: %v", ErrReadFailed, s.schema, err)
		}
		ids = append(ids, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list schema %s: %v", ErrReadFailed, s.schema, err)
	}
	return ids, nil
}

func (s *PostgresStore) Stat(ctx context.Context, id string) (Info, error) {
	columns, err := s.columns(ctx, id)
	if err != nil {
		return Info{}, err
	}

	info := Info{ID: id, Columns: columns}
	err = s.db.QueryRow(ctx, tableSizeSQL, s.schema, id).Scan(&info.Bytes, &info.Rows)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}
	return info, nil
}

func (s *PostgresStore) Read(ctx context.Context, id string, q dataset.Query) (*dataset.Table, error) {
	columns, err := s.columns(ctx, id)
	if err != nil {
		return nil, err
	}

	sql, args, err := buildSelect(s.schema, id, columns, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}
	defer rows.Close()

	table := &dataset.Table{ID: id, Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
		}
		record := make([]string, len(values))
		for i, v := range values {
			if v != nil {
				record[i] = fmt.Sprint(v)
			}
		}
		table.Rows = append(table.Rows, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}
	table.Total = len(table.Rows)
	return table, nil
}

func (s *PostgresStore) columns(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.Query(ctx, listColumnsSQL, s.schema, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return columns, nil
}

// buildSelect renders the statement reading table with the row predicates
// of q. Every column is cast to text.
func buildSelect(schema, table string, columns []string, q dataset.Query) (string, []any, error) {
	known := make(map[string]bool, len(columns))
	selects := make([]string, len(columns))
	for i, c := range columns {
		known[c] = true
		selects[i] = pgx.Identifier{c}.Sanitize() + "::text"
	}

	n := q.Normalize()
	var (
		where []string
		args  []any
	)
	param := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if dr := n.DateRange; dr != nil {
		if !known[dr.Column] {
			return "", nil, fmt.Errorf("%w: unknown date column %q", dataset.ErrInvalidQuery, dr.Column)
		}
		col := pgx.Identifier{dr.Column}.Sanitize() + "::date"
		if dr.From != "" {
			where = append(where, col+" >= "+param(dr.From)+"::date")
		}
		if dr.To != "" {
			where = append(where, col+" <= "+param(dr.To)+"::date")
		}
	}

	for _, f := range n.Filters {
		values := param(f.Values)
		alts := make([]string, len(f.Columns))
		for i, c := range f.Columns {
			if !known[c] {
				return "", nil, fmt.Errorf("%w: unknown filter column %q", dataset.ErrInvalidQuery, c)
			}
			alts[i] = pgx.Identifier{c}.Sanitize() + "::text = ANY(" + values + ")"
		}
		if len(alts) == 1 {
			where = append(where, alts[0])
		} else {
			where = append(where, "("+strings.Join(alts, " OR ")+")")
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selects, ", "))
	b.WriteString(" FROM ")
	b.WriteString(pgx.Identifier{schema, table}.Sanitize())
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	return b.String(), args, nil
}
