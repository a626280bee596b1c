// Package spheredb owns the on-disk SQLite store: opening it behind the schema
// version guard, installing the DDL, and the read queries used by the list and
// server commands.
package spheredb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SchemaVersionError reports a store stamped with a schema version other than
// CurrentSchemaVersion.
type SchemaVersionError struct {
	Found int64
	Want  int64
}

func (e *SchemaVersionError) Error() string {
	return fmt.Sprintf("the on disk database has schema version %d, the current version is %d: "+
		"create a new database and reinsert your data to use this version", e.Found, e.Want)
}

// Store is the durable target store.
type Store struct {
	DB   *sql.DB
	Path string
}

// Open opens the store at path, installing the schema on a fresh store. A store
// carrying a different schema version is returned as *SchemaVersionError and
// left untouched.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	version, err := SchemaVersion(ctx, db)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "read schema version")
	}

	switch version {
	case 0:
		// WAL is persistent in the file header, so it only needs setting once.
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "enable wal")
		}
		if err := InstallSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	case CurrentSchemaVersion:
	default:
		db.Close()
		return nil, &SchemaVersionError{Found: version, Want: CurrentSchemaVersion}
	}

	return &Store{DB: db, Path: path}, nil
}

// OpenExisting opens an existing store for reading without installing a
// schema. It still refuses stores with a foreign schema version.
func OpenExisting(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	version, err := SchemaVersion(ctx, db)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "read schema version")
	}
	if version != CurrentSchemaVersion {
		db.Close()
		return nil, &SchemaVersionError{Found: version, Want: CurrentSchemaVersion}
	}
	return &Store{DB: db, Path: path}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func dsn(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)", path)
}

// SchemaVersion returns the installed schema version, or 0 when the store has
// no metadata yet.
func SchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'metadata'`).Scan(&n)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	var v sql.NullInt64
	err = db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, SchemaVersionKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v.Int64, nil
}

// InstallSchema runs the full DDL inside a single transaction.
func InstallSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin schema install")
	}
	defer tx.Rollback() //nolint:errcheck

	for i, stmt := range SchemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "schema statement %d", i)
		}
	}
	return errors.Wrap(tx.Commit(), "commit schema install")
}

// SizeBytes returns the allocated size of the main database of db.
func SizeBytes(ctx context.Context, db *sql.DB) (int64, error) {
	var pages, pageSize int64
	if err := db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pages); err != nil {
		return 0, err
	}
	if err := db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return pages * pageSize, nil
}
