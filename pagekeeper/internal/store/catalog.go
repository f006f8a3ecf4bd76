package store

import "context"

// CatalogEntry summarises one version number across a lineage: how many
// documents reached it and when the newest of them was captured.
type CatalogEntry struct {
	Lineage        string `json:"lineage"`
	VersionNumber  int    `json:"version_number"`
	DocumentCount  int    `json:"document_count"`
	LatestSnapshot int64  `json:"latest_snapshot"`
}

// Catalog lists every (lineage, version_number) pair, lineages ascending and
// versions descending.
func (s *Store) Catalog(ctx context.Context) ([]CatalogEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT lineage, version_number, COUNT(*), MAX(snapshot_timestamp)
		FROM versions
		GROUP BY lineage, version_number
		ORDER BY lineage ASC, version_number DESC`)
	if err != nil {
		return nil, unavailable("catalog", err)
	}
	defer rows.Close()

	var out []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		if err := rows.Scan(&e.Lineage, &e.VersionNumber, &e.DocumentCount, &e.LatestSnapshot); err != nil {
			return nil, unavailable("catalog", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("catalog", err)
	}
	return out, nil
}

// Documents lists the distinct document paths with at least one version,
// optionally restricted to one lineage.
func (s *Store) Documents(ctx context.Context, lineage string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT DISTINCT document_path FROM versions
		WHERE ? = '' OR lineage = ?
		ORDER BY document_path`, lineage, lineage)
	if err != nil {
		return nil, unavailable("documents", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, unavailable("documents", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("documents", err)
	}
	return out, nil
}

// Counts holds table-level totals.
type Counts struct {
	Versions   int `json:"versions"`
	Components int `json:"components"`
	Documents  int `json:"documents"`
	Lineages   int `json:"lineages"`
}

// Counts returns table-level totals.
func (s *Store) Counts(ctx context.Context) (*Counts, error) {
	c := &Counts{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM versions),
			(SELECT COUNT(*) FROM components),
			(SELECT COUNT(DISTINCT document_path) FROM versions),
			(SELECT COUNT(DISTINCT lineage) FROM versions)`).Scan(
		&c.Versions, &c.Components, &c.Documents, &c.Lineages)
	if err != nil {
		return nil, unavailable("counts", err)
	}
	return c, nil
}
