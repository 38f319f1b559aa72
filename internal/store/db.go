// Package store implements the durable song catalog: remote song metadata,
// per-folder sync records, per-kind resource records, saved searches and the
// derived full-text index, all in one sqlite database.
package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sqlx.DB
}

// NewSQLiteDB opens (and if needed creates) the catalog database, applies
// pending migrations and resets session state.
func NewSQLiteDB(dsn string) (*DB, error) {
	// _txlock makes every transaction BEGIN IMMEDIATE: writers take the
	// write lock up front instead of failing on upgrade.
	db, err := sqlx.Open("sqlite", dsn+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// Pragmas for concurrency and integrity. foreign_keys is per
	// connection, so limit the pool to connections that ran the setup.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=30000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	s := &DB{db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	if err := s.ResetSession(); err != nil {
		return nil, fmt.Errorf("failed to reset session state: %w", err)
	}
	return s, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// WithTx runs fn inside a transaction, rolling back on error.
func (db *DB) WithTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (after: %w)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}
