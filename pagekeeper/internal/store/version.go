package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/pagever/canon"
	"github.com/hazyhaar/pagever/dbopen"
)

// Version is one allocated version of a (document, lineage).
type Version struct {
	DocumentPath      string `json:"document_path"`
	Lineage           string `json:"lineage"`
	VersionNumber     int    `json:"version_number"`
	SnapshotHash      string `json:"snapshot_hash"`
	SourceFile        string `json:"source_file,omitempty"`
	SnapshotTimestamp int64  `json:"snapshot_timestamp"` // unix ms
	ComponentCount    int    `json:"component_count"`
	CreatedAt         int64  `json:"created_at"`
}

// Component is one persisted tree node.
type Component struct {
	DocumentPath  string     `json:"document_path"`
	Lineage       string     `json:"lineage"`
	VersionNumber int        `json:"version_number"`
	Path          string     `json:"component_path"`
	ParentPath    string     `json:"parent_component_path,omitempty"`
	Order         int        `json:"component_order"`
	Type          string     `json:"component_type,omitempty"`
	Content       *canon.Map `json:"component_content"`
	Hash          string     `json:"component_hash"`
	SnapshotHash  string     `json:"snapshot_hash"`
}

const versionCols = `document_path, lineage, version_number, snapshot_hash, source_file,
	snapshot_timestamp, component_count, created_at`

func scanVersion(sc interface{ Scan(...any) error }) (*Version, error) {
	v := &Version{}
	err := sc.Scan(&v.DocumentPath, &v.Lineage, &v.VersionNumber, &v.SnapshotHash, &v.SourceFile,
		&v.SnapshotTimestamp, &v.ComponentCount, &v.CreatedAt)
	return v, err
}

// LatestVersion returns the highest existing version of (doc, lineage), or
// nil, nil when there is none.
func (s *Store) LatestVersion(ctx context.Context, doc, lineage string) (*Version, error) {
	v, err := scanVersion(s.DB.QueryRowContext(ctx, `
		SELECT `+versionCols+` FROM versions
		WHERE document_path = ? AND lineage = ?
		ORDER BY version_number DESC LIMIT 1`, doc, lineage))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("latest version", err)
	}
	return v, nil
}

// GetVersion returns one version row, or nil, nil.
func (s *Store) GetVersion(ctx context.Context, doc, lineage string, n int) (*Version, error) {
	v, err := scanVersion(s.DB.QueryRowContext(ctx, `
		SELECT `+versionCols+` FROM versions
		WHERE document_path = ? AND lineage = ? AND version_number = ?`, doc, lineage, n))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get version", err)
	}
	return v, nil
}

// ListVersions returns every version of (doc, lineage), newest first.
func (s *Store) ListVersions(ctx context.Context, doc, lineage string) ([]*Version, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+versionCols+` FROM versions
		WHERE document_path = ? AND lineage = ?
		ORDER BY version_number DESC`, doc, lineage)
	if err != nil {
		return nil, unavailable("list versions", err)
	}
	defer rows.Close()

	var out []*Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, unavailable("list versions", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list versions", err)
	}
	return out, nil
}

// InsertVersion writes v and its components in one transaction. base is the
// latest version number the caller observed (0 for none); if another version
// was written since, nothing is written and ErrConflict is returned.
//
// The version number is allocated inside the transaction as one above both
// base and the recorded high-water mark, and stamped onto v and every
// component, together with the document, lineage and snapshot hash.
func (s *Store) InsertVersion(ctx context.Context, v *Version, comps []*Component, base int) error {
	if v.CreatedAt == 0 {
		v.CreatedAt = time.Now().UnixMilli()
	}
	v.ComponentCount = len(comps)

	contents := make([]string, len(comps))
	for i, c := range comps {
		data, err := c.Content.MarshalJSON()
		if err != nil {
			return fmt.Errorf("store: encode %s: %w", c.Path, err)
		}
		contents[i] = string(data)
	}

	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		var latest, head int
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(version_number), 0) FROM versions
			WHERE document_path = ? AND lineage = ?`, v.DocumentPath, v.Lineage).Scan(&latest); err != nil {
			return err
		}
		if latest != base {
			return fmt.Errorf("%w: latest is %d, expected %d", ErrConflict, latest, base)
		}
		err := tx.QueryRowContext(ctx, `
			SELECT last_version FROM version_heads
			WHERE document_path = ? AND lineage = ?`, v.DocumentPath, v.Lineage).Scan(&head)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		v.VersionNumber = max(latest, head) + 1

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO versions (`+versionCols+`) VALUES (?,?,?,?,?,?,?,?)`,
			v.DocumentPath, v.Lineage, v.VersionNumber, v.SnapshotHash, v.SourceFile,
			v.SnapshotTimestamp, v.ComponentCount, v.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO version_heads (document_path, lineage, last_version) VALUES (?,?,?)
			ON CONFLICT(document_path, lineage) DO UPDATE SET last_version = excluded.last_version`,
			v.DocumentPath, v.Lineage, v.VersionNumber); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO components (document_path, lineage, version_number, component_path,
			                        parent_component_path, component_order, component_type,
			                        component_content, component_hash, snapshot_hash)
			VALUES (?,?,?,?,?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, c := range comps {
			c.DocumentPath, c.Lineage = v.DocumentPath, v.Lineage
			c.VersionNumber, c.SnapshotHash = v.VersionNumber, v.SnapshotHash
			if _, err := stmt.ExecContext(ctx,
				c.DocumentPath, c.Lineage, c.VersionNumber, c.Path,
				nullable(c.ParentPath), c.Order, nullable(c.Type),
				contents[i], c.Hash, c.SnapshotHash); err != nil {
				return fmt.Errorf("component %s: %w", c.Path, err)
			}
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict):
		return err
	case dbopen.IsUnique(err):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return unavailable("insert version", err)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
