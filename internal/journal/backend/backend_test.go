package backend

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestResolve_Names(t *testing.T) {
	cases := map[string]string{
		"":        SQLite,
		" FTS5 ":  SQLite,
		"sqlite3": SQLite,
		"Bleve":   Bleve,
	}
	for in, want := range cases {
		loc, err := Resolve(in, "j.db", "")
		if err != nil {
			t.Fatalf("Resolve(%q): %v", in, err)
		}
		if loc.Backend != want {
			t.Fatalf("Resolve(%q).Backend=%q, want %q", in, loc.Backend, want)
		}
	}
	if _, err := Resolve("redis", "j.db", ""); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if got := Names(); !reflect.DeepEqual(got, []string{Bleve, SQLite}) {
		t.Fatalf("Names()=%v", got)
	}
}

func TestResolve_Paths(t *testing.T) {
	cases := []struct {
		backend, path, want string
	}{
		{Bleve, "x/journal.db", "x/journal.bleve"},
		{Bleve, "x/journal", "x/journal.bleve"},
		{Bleve, "x/journal.idx", "x/journal.idx"},
		{SQLite, "x/./journal.db", "x/journal.db"},
		{SQLite, "x/journal.bleve", "x/journal.db"},
		{SQLite, "x/journal", "x/journal"},
	}
	for _, tc := range cases {
		loc, err := Resolve(tc.backend, tc.path, "")
		if err != nil {
			t.Fatalf("Resolve(%s, %s): %v", tc.backend, tc.path, err)
		}
		if want := filepath.Clean(tc.want); loc.Path != want {
			t.Fatalf("Resolve(%s, %s).Path=%q, want %q", tc.backend, tc.path, loc.Path, want)
		}
	}
}

func TestResolve_DefaultPathUnderDir(t *testing.T) {
	root := t.TempDir()
	for _, name := range Names() {
		loc, err := Resolve(name, "  ", root)
		if err != nil {
			t.Fatalf("resolve %s: %v", name, err)
		}
		if filepath.Dir(loc.Path) != filepath.Join(root, ".scq") {
			t.Fatalf("%s: path=%q", name, loc.Path)
		}

		st, err := loc.Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		if st.Backend() != name {
			t.Fatalf("backend=%q, want %q", st.Backend(), name)
		}
		_ = st.Close()
	}
}

func TestSpecOpen_Invalid(t *testing.T) {
	if _, err := (Spec{Backend: "redis", Path: filepath.Join(t.TempDir(), "j")}).Open(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if _, err := (Spec{Backend: SQLite}).Open(); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
