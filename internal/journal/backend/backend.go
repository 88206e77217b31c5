// Package backend resolves where a journal lives and opens the matching store.
package backend

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"scenequeue/internal/journal/bleve"
	"scenequeue/internal/journal/sqlite"
	"scenequeue/internal/journal/store"
)

const (
	SQLite = "sqlite"
	Bleve  = "bleve"
)

// kind describes one store implementation. Directory stores get ext
// appended to a bare path.
type kind struct {
	ext  string
	dir  bool
	open func(path string) (store.Store, error)
}

var kinds = map[string]kind{
	SQLite: {ext: ".db", open: func(p string) (store.Store, error) { return sqlite.Open(p) }},
	Bleve:  {ext: ".bleve", dir: true, open: func(p string) (store.Store, error) { return bleve.Open(p) }},
}

var aliases = map[string]string{
	"":        SQLite,
	"sqlite3": SQLite,
	"fts5":    SQLite,
}

// Names lists the known backends in sorted order.
func Names() []string {
	names := make([]string, 0, len(kinds))
	for n := range kinds {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Spec is a resolved journal location.
type Spec struct {
	Backend string
	Path    string
}

// Resolve validates the backend name and settles the path. An empty path
// selects .scq/journal<ext> under dir. A path carrying another backend's
// extension is moved to this backend's, so switching the backend of the
// default .db location keeps the two journals apart.
func Resolve(name, path, dir string) (Spec, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[name]; ok {
		name = a
	}
	k, ok := kinds[name]
	if !ok {
		return Spec{}, fmt.Errorf("unknown journal backend %q (expected: %s)", name, strings.Join(Names(), "|"))
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return Spec{Backend: name, Path: filepath.Join(dir, ".scq", "journal"+k.ext)}, nil
	}
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == "" && k.dir:
		path += k.ext
	case ext != "" && ext != k.ext && foreignExt(ext):
		path = strings.TrimSuffix(path, filepath.Ext(path)) + k.ext
	}
	return Spec{Backend: name, Path: path}, nil
}

func foreignExt(ext string) bool {
	for _, k := range kinds {
		if k.ext == ext {
			return true
		}
	}
	return false
}

// Open opens the store at s.Path, creating it when missing.
func (s Spec) Open() (store.Store, error) {
	k, ok := kinds[s.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown journal backend %q", s.Backend)
	}
	if strings.TrimSpace(s.Path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	return k.open(s.Path)
}
