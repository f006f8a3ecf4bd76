// Package store is the SQLite persistence layer for pagever: immutable
// versions, their components, and the ingest log.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/pagever/dbopen"
)

var (
	// ErrNotFound is returned by exact-version reads that match nothing.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a version slot was taken by another
	// writer, or the latest version moved since the caller read it.
	ErrConflict = errors.New("version conflict")
	// ErrUnavailable wraps every other persistence failure.
	ErrUnavailable = errors.New("store unavailable")
)

func unavailable(op string, err error) error {
	return fmt.Errorf("store: %s: %w: %w", op, ErrUnavailable, err)
}

// Store is the pagever database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and applies Schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
