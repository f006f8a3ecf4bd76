package store

import (
	"context"
	"database/sql"
	"time"
)

// Ingest log statuses.
const (
	IngestPending = "pending"
	IngestCreated = "created"
	IngestSkipped = "skipped"
	IngestFailed  = "failed"
)

// IngestEntry records one ingestion attempt.
type IngestEntry struct {
	ID             string `json:"id"`
	DocumentPath   string `json:"document_path"`
	Lineage        string `json:"lineage"`
	SourceFile     string `json:"source_file,omitempty"`
	Status         string `json:"status"`
	VersionNumber  int    `json:"version_number,omitempty"`
	SnapshotHash   string `json:"snapshot_hash,omitempty"`
	ComponentCount int    `json:"component_count"`
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	CompletedAt    *int64 `json:"completed_at,omitempty"`
}

// InsertIngestEntry creates a log entry.
func (s *Store) InsertIngestEntry(ctx context.Context, e *IngestEntry) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	if e.Status == "" {
		e.Status = IngestPending
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO ingest_log (id, document_path, lineage, source_file, status, version_number,
		                        snapshot_hash, component_count, error_message, created_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.DocumentPath, e.Lineage, e.SourceFile, e.Status, e.VersionNumber,
		e.SnapshotHash, e.ComponentCount, e.ErrorMessage, e.CreatedAt, e.CompletedAt,
	)
	if err != nil {
		return unavailable("insert ingest entry", err)
	}
	return nil
}

// CompleteIngestEntry records the final status of an entry.
func (s *Store) CompleteIngestEntry(ctx context.Context, e *IngestEntry) error {
	now := time.Now().UnixMilli()
	e.CompletedAt = &now
	_, err := s.DB.ExecContext(ctx, `
		UPDATE ingest_log SET status=?, version_number=?, snapshot_hash=?, component_count=?,
		                      error_message=?, completed_at=?
		WHERE id=?`,
		e.Status, e.VersionNumber, e.SnapshotHash, e.ComponentCount, e.ErrorMessage, now, e.ID)
	if err != nil {
		return unavailable("complete ingest entry", err)
	}
	return nil
}

// RecentIngestEntries returns the latest limit entries, newest first.
func (s *Store) RecentIngestEntries(ctx context.Context, limit int) ([]*IngestEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, document_path, lineage, source_file, status, version_number,
		       snapshot_hash, component_count, error_message, created_at, completed_at
		FROM ingest_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable("recent ingest entries", err)
	}
	defer rows.Close()

	var entries []*IngestEntry
	for rows.Next() {
		e := &IngestEntry{}
		var completedAt sql.NullInt64
		if err := rows.Scan(&e.ID, &e.DocumentPath, &e.Lineage, &e.SourceFile, &e.Status,
			&e.VersionNumber, &e.SnapshotHash, &e.ComponentCount, &e.ErrorMessage,
			&e.CreatedAt, &completedAt); err != nil {
			return nil, unavailable("recent ingest entries", err)
		}
		if completedAt.Valid {
			e.CompletedAt = &completedAt.Int64
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("recent ingest entries", err)
	}
	return entries, nil
}
