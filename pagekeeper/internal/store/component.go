package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/pagever/canon"
)

const componentCols = `c.document_path, c.lineage, c.version_number, c.component_path,
	c.parent_component_path, c.component_order, c.component_type,
	c.component_content, c.component_hash, c.snapshot_hash`

// VersionComponents returns every component of one exact version, ordered
// by component_order. It returns ErrNotFound when the version has none.
func (s *Store) VersionComponents(ctx context.Context, doc, lineage string, n int) ([]*Component, error) {
	comps, err := s.queryComponents(ctx, "version components", `
		SELECT `+componentCols+` FROM components c
		WHERE c.document_path = ? AND c.lineage = ? AND c.version_number = ?
		ORDER BY c.component_order`, doc, lineage, n)
	if err != nil {
		return nil, err
	}
	if len(comps) == 0 {
		return nil, fmt.Errorf("store: %s/%s version %d: %w", doc, lineage, n, ErrNotFound)
	}
	return comps, nil
}

// LatestComponents returns, for each distinct component path ever stored
// for (doc, lineage), the component from the highest version containing it.
// The result may mix versions when paths come and go. Ordered by
// component_order, then path.
func (s *Store) LatestComponents(ctx context.Context, doc, lineage string) ([]*Component, error) {
	return s.queryComponents(ctx, "latest components", `
		SELECT `+componentCols+` FROM components c
		JOIN (
			SELECT component_path, MAX(version_number) AS version_number
			FROM components
			WHERE document_path = ? AND lineage = ?
			GROUP BY component_path
		) m ON m.component_path = c.component_path AND m.version_number = c.version_number
		WHERE c.document_path = ? AND c.lineage = ?
		ORDER BY c.component_order, c.component_path`, doc, lineage, doc, lineage)
}

func (s *Store) queryComponents(ctx context.Context, op, query string, args ...any) ([]*Component, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var out []*Component
	for rows.Next() {
		c := &Component{}
		var parent, typ sql.NullString
		var content string
		if err := rows.Scan(&c.DocumentPath, &c.Lineage, &c.VersionNumber, &c.Path,
			&parent, &c.Order, &typ, &content, &c.Hash, &c.SnapshotHash); err != nil {
			return nil, unavailable(op, err)
		}
		c.ParentPath, c.Type = parent.String, typ.String

		v, err := canon.Parse([]byte(content))
		if err != nil {
			return nil, fmt.Errorf("store: %s: component %s: %w", op, c.Path, err)
		}
		m, ok := v.Map()
		if !ok {
			m = canon.NewMap()
		}
		c.Content = m
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}
