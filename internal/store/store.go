package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/txgraph/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite implementation of engine.Storage and
// engine.QueryExecutor.
type Store struct {
	db       *sql.DB
	compiler *querysql.Compiler
}

// pragmas are applied to every connection in this order.
var pragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type migration struct {
	name  string
	apply func(ctx context.Context, db execer) error
}

// migrations[i] brings a database from user_version i to i+1. Version 0 is
// a records table without a commit log.
var migrations = []migration{
	{"backfill commit log", migrateToV1},
}

// schemaVersion is the user_version of a fully migrated database.
func schemaVersion() int { return len(migrations) }

// Open creates or opens a SQLite database at path, applies pragmas and
// brings the schema up to date. ":memory:" opens a private in-memory
// database. Opening an up-to-date database changes nothing.
func Open(path string) (*Store, error) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// SQLite only supports one writer at a time. One connection also keeps
	// an in-memory database alive for the lifetime of the Store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := setup(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Store{db: db, compiler: querysql.NewCompiler()}, nil
}

func setup(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return migrate(ctx, db)
}

// migrate runs each pending migration in its own transaction together
// with the user_version bump.
func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		m := migrations[v]
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", v+1, m.name, err)
		}
		if err := m.apply(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", v+1, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): set user_version: %w", v+1, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): %w", v+1, m.name, err)
		}
	}
	return nil
}

// migrateToV1 backfills one commits row for databases that already hold
// records, so commit sequence numbers start after existing data.
func migrateToV1(ctx context.Context, db execer) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO commits (inserts)
		SELECT COUNT(*) FROM records
		WHERE EXISTS (SELECT 1 FROM records)
		  AND NOT EXISTS (SELECT 1 FROM commits)
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SchemaVersion reports the applied migration level.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return version, nil
}

// pragma reads the current value of a pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
