package sqlite

import (
	"path/filepath"
	"testing"

	"scenequeue/internal/journal/store"
)

func sampleEntries() []store.Entry {
	return []store.Entry{
		{Seq: 1, Ord: 0, Timestamp: 100, Kind: "material", Op: store.OpChanged, Key: "00000001", Name: "Brushed Steel", Payload: []byte(`{"name":"Brushed Steel"}`)},
		{Seq: 1, Ord: 1, Timestamp: 100, Kind: "instance", Op: store.OpChanged, Key: "00000002", Object: "obj-a", Name: "Chair"},
		{Seq: 2, Ord: 0, Timestamp: 200, Kind: "instance", Op: store.OpDeleted, Key: "00000002", Object: "obj-a"},
	}
}

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppend_ListAndCount(t *testing.T) {
	s := openTemp(t)
	if err := s.Append(sampleEntries()); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.List(1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Kind != "material" || got[1].Object != "obj-a" {
		t.Fatalf("unexpected entries: %+v", got)
	}
	if got[0].Timestamp != 100 || string(got[0].Payload) != `{"name":"Brushed Steel"}` {
		t.Fatalf("unexpected first entry: %+v", got[0])
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 entries, got %d", n)
	}

	last, err := s.LastSeq()
	if err != nil {
		t.Fatalf("last seq: %v", err)
	}
	if last != 2 {
		t.Fatalf("expected last seq 2, got %d", last)
	}

	batches, err := s.Batches(10)
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	if len(batches) != 2 || batches[0].Seq != 2 || batches[1].Entries != 2 {
		t.Fatalf("unexpected batches: %+v", batches)
	}
}

func TestAppend_DuplicateRollsBack(t *testing.T) {
	s := openTemp(t)
	if err := s.Append(sampleEntries()[:1]); err != nil {
		t.Fatalf("append: %v", err)
	}
	dup := []store.Entry{
		{Seq: 3, Ord: 0, Timestamp: 300, Kind: "light", Op: store.OpChanged, Key: "x"},
		{Seq: 1, Ord: 0, Timestamp: 100, Kind: "material", Op: store.OpChanged, Key: "y"},
	}
	if err := s.Append(dup); err == nil {
		t.Fatalf("expected duplicate error")
	}
	last, _ := s.LastSeq()
	if last != 1 {
		t.Fatalf("expected rollback to keep last seq 1, got %d", last)
	}
}

func TestAppend_Validation(t *testing.T) {
	s := openTemp(t)
	if err := s.Append([]store.Entry{{Kind: "material"}}); err == nil {
		t.Fatalf("expected seq error")
	}
	if err := s.Append([]store.Entry{{Seq: 1}}); err == nil {
		t.Fatalf("expected kind error")
	}
	if err := s.Append(nil); err != nil {
		t.Fatalf("empty append: %v", err)
	}
}

func TestFindObject(t *testing.T) {
	s := openTemp(t)
	if err := s.Append(sampleEntries()); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := s.FindObject("obj-a", 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 2 || got[0].Op != store.OpChanged || got[1].Op != store.OpDeleted {
		t.Fatalf("unexpected history: %+v", got)
	}
	if _, err := s.FindObject(" ", 10); err == nil {
		t.Fatalf("expected error for empty object")
	}
}

func TestSearch_ByName(t *testing.T) {
	s := openTemp(t)
	if err := s.Append(sampleEntries()); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := s.Search("steel", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Brushed Steel" {
		t.Fatalf("unexpected search result (fts=%v): %+v", s.HasFTS(), got)
	}
}

func TestClosedStore(t *testing.T) {
	var s *Store
	if _, err := s.List(1); err == nil {
		t.Fatalf("expected error")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close nil: %v", err)
	}
}
