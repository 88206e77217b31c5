package bleve

import (
	"path/filepath"
	"testing"

	"scenequeue/internal/journal/store"
)

func TestBleveStore_AppendAndQuery(t *testing.T) {
	root := t.TempDir()
	st, err := Open(filepath.Join(root, "journal.bleve"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	entries := []store.Entry{
		{Seq: 1, Ord: 0, Timestamp: 100, Kind: "material", Op: store.OpChanged, Key: "00000001", Name: "Brushed Steel"},
		{Seq: 1, Ord: 1, Timestamp: 100, Kind: "instance", Op: store.OpChanged, Key: "00000002", Object: "obj-a", Name: "Chair"},
		{Seq: 2, Ord: 0, Timestamp: 200, Kind: "instance", Op: store.OpDeleted, Key: "00000002", Object: "obj-a"},
	}
	if err := st.Append(entries); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := st.List(1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[1].Name != "Chair" {
		t.Fatalf("unexpected list: %+v", got)
	}

	last, err := st.LastSeq()
	if err != nil || last != 2 {
		t.Fatalf("last seq=%d err=%v", last, err)
	}

	n, err := st.Count()
	if err != nil || n != 3 {
		t.Fatalf("count=%d err=%v", n, err)
	}

	batches, err := st.Batches(1)
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	if len(batches) != 1 || batches[0].Seq != 2 || batches[0].Entries != 1 {
		t.Fatalf("unexpected batches: %+v", batches)
	}

	hist, err := st.FindObject("obj-a", 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(hist) != 2 || hist[0].Seq != 1 || hist[1].Op != store.OpDeleted {
		t.Fatalf("unexpected history: %+v", hist)
	}

	hits, err := st.Search("steel", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Kind != "material" {
		t.Fatalf("unexpected hits: %+v", hits)
	}

	if err := st.Append(entries[:1]); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestBleveStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.bleve")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Append([]store.Entry{{Seq: 7, Kind: "view", Op: store.OpChanged, Key: "view"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = st.Close()

	st, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	last, err := st.LastSeq()
	if err != nil || last != 7 {
		t.Fatalf("last seq=%d err=%v", last, err)
	}
}

func TestParseEntryDocID(t *testing.T) {
	seq, ord, err := parseEntryDocID(entryDocID(42, 3))
	if err != nil || seq != 42 || ord != 3 {
		t.Fatalf("seq=%d ord=%d err=%v", seq, ord, err)
	}
	if _, _, err := parseEntryDocID("chunk|1|2"); err == nil {
		t.Fatalf("expected error")
	}
}
