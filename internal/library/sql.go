package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/nvandessel/labkit/internal/archive"
	"github.com/nvandessel/labkit/internal/exptype"
)

// SchemaVersion is the current index schema version.
const SchemaVersion = 1

// schemaV1 is portable between SQLite and PostgreSQL.
var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS experiments (
    name TEXT PRIMARY KEY,
    type INTEGER NOT NULL,
    blob_key TEXT NOT NULL,
    format TEXT NOT NULL,
    size_bytes BIGINT NOT NULL DEFAULT 0,
    element_count INTEGER NOT NULL DEFAULT 0,
    wire_count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_experiments_updated ON experiments(updated_at)`,
	`CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`,
}

// Dialect selects placeholder syntax.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLIndex implements Index on database/sql.
type SQLIndex struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLite opens (creating if needed) an SQLite index at path. The special
// path ":memory:" keeps the index in memory.
func OpenSQLite(ctx context.Context, path string) (*SQLIndex, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer
	return newSQLIndex(ctx, db, DialectSQLite)
}

// OpenPostgres connects to PostgreSQL through pgx.
func OpenPostgres(ctx context.Context, dsn string) (*SQLIndex, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return newSQLIndex(ctx, db, DialectPostgres)
}

func newSQLIndex(ctx context.Context, db *sql.DB, d Dialect) (*SQLIndex, error) {
	s := &SQLIndex{db: db, dialect: d}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Dialect reports the database flavour.
func (s *SQLIndex) Dialect() Dialect { return s.dialect }

func (s *SQLIndex) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schemaV1 {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO schema_version (version, applied_at) VALUES (?, ?) ON CONFLICT(version) DO NOTHING`),
		SchemaVersion, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

// rebind rewrites '?' placeholders as $1, $2, ... for PostgreSQL.
func (s *SQLIndex) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const entryColumns = `name, type, blob_key, format, size_bytes, element_count, wire_count, created_at, updated_at`

// Lookup returns the entry for name, or nil.
func (s *SQLIndex) Lookup(ctx context.Context, name string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+entryColumns+` FROM experiments WHERE name = ?`), name)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	return e, nil
}

// Upsert inserts or replaces e. CreatedAt is kept from the first insert.
func (s *SQLIndex) Upsert(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO experiments (`+entryColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    type = excluded.type,
    blob_key = excluded.blob_key,
    format = excluded.format,
    size_bytes = excluded.size_bytes,
    element_count = excluded.element_count,
    wire_count = excluded.wire_count,
    updated_at = excluded.updated_at`),
		e.Name, e.Type.Code(), e.Key, string(e.Format), e.Size, e.Elements, e.Wires,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", e.Name, err)
	}
	return nil
}

// Delete removes name.
func (s *SQLIndex) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM experiments WHERE name = ?`), name)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count deleted rows: %w", err)
	}
	return n > 0, nil
}

// List returns every entry ordered by name.
func (s *SQLIndex) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM experiments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLIndex) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e                Entry
		typ              int
		format           string
		created, updated string
	)
	if err := row.Scan(&e.Name, &typ, &e.Key, &format, &e.Size, &e.Elements, &e.Wires, &created, &updated); err != nil {
		return nil, err
	}
	t, err := exptype.FromCode(typ)
	if err != nil {
		return nil, err
	}
	e.Type = t
	e.Format = archive.Format(format)
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
