// Package inbox reads snapshot files dropped by the upstream collector.
//
// Layout:
//
//	<root>/<folder>/<lineage>_<suffix>.json
//
// The folder name encodes the document path with "/" written as "_":
// folder "content_site_en_home" is document "/content/site/en/home". The
// suffix is a capture stamp without underscores, so the lineage is the file
// name up to its last "_" ("spac-ko_KR_20240101-093000.json" is lineage
// "spac-ko_KR"). The file body is the page model tree as JSON; its
// modification time is the snapshot timestamp.
package inbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hazyhaar/pagever/canon"
	"github.com/hazyhaar/pagever/pagekeeper/internal/ingest"
)

// ErrLayout is returned for files that do not follow the inbox layout.
var ErrLayout = errors.New("inbox: unexpected layout")

// DocumentPath maps a folder name to its document path.
func DocumentPath(folder string) string {
	return "/" + strings.ReplaceAll(folder, "_", "/")
}

// Lineage extracts the lineage from a snapshot file name.
func Lineage(name string) (string, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	i := strings.LastIndex(base, "_")
	if i <= 0 {
		return "", false
	}
	return base[:i], true
}

// Describe derives the document path, lineage and relative source file for
// path, which must be a file two levels below root.
func Describe(root, path string) (doc, lineage, rel string, err error) {
	rel, err = filepath.Rel(root, path)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %s: %v", ErrLayout, path, err)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 || parts[0] == "" || parts[0] == ".." {
		return "", "", "", fmt.Errorf("%w: %s is not <folder>/<file>", ErrLayout, rel)
	}
	if filepath.Ext(parts[1]) != ".json" {
		return "", "", "", fmt.Errorf("%w: %s is not a .json file", ErrLayout, rel)
	}
	lineage, ok := Lineage(parts[1])
	if !ok {
		return "", "", "", fmt.Errorf("%w: %s has no <lineage>_ prefix", ErrLayout, rel)
	}
	return DocumentPath(parts[0]), lineage, filepath.ToSlash(rel), nil
}

// Load reads one snapshot file.
func Load(root, path string) (ingest.Snapshot, error) {
	doc, lineage, rel, err := Describe(root, path)
	if err != nil {
		return ingest.Snapshot{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return ingest.Snapshot{}, fmt.Errorf("inbox: stat %s: %w", rel, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.Snapshot{}, fmt.Errorf("inbox: read %s: %w", rel, err)
	}
	tree, err := canon.Parse(data)
	if err != nil {
		return ingest.Snapshot{}, fmt.Errorf("inbox: %s: %w", rel, err)
	}
	return ingest.Snapshot{
		DocumentPath: doc,
		Lineage:      lineage,
		Tree:         tree,
		SourceFile:   rel,
		Timestamp:    info.ModTime(),
	}, nil
}

// Scan lists every snapshot file under root that follows the layout, sorted
// by path so that older captures named with sortable suffixes ingest first.
func Scan(root string) ([]string, error) {
	root = filepath.Clean(root)
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && filepath.Dir(path) != root {
				return filepath.SkipDir
			}
			return nil
		}
		if _, _, _, err := Describe(root, path); err == nil {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inbox: scan %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}
