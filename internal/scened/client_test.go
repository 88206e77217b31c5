package scened

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scenequeue/internal/journal"
	"scenequeue/internal/journal/sqlite"
)

func TestClient_SceneLoop(t *testing.T) {
	dir := t.TempDir()
	path := writeScene(t, dir, testSceneYAML)

	st, err := sqlite.Open(filepath.Join(dir, ".scq", "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	jw, err := journal.NewWriter(st, nil)
	if err != nil {
		t.Fatalf("journal writer: %v", err)
	}

	_, addr := startServer(t, Options{History: 4, Journal: jw})
	c := dial(t, addr)

	info, err := c.SceneOpen(SceneOpenParams{Name: "lobby", Path: path})
	if err != nil {
		t.Fatalf("scene.open: %v", err)
	}
	if info.ID != "lobby" || info.Watch || info.State != "idle" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if _, err := c.SceneOpen(SceneOpenParams{Name: "lobby", Path: path}); err == nil {
		t.Fatalf("expected duplicate scene error")
	}

	world, err := c.WorldCreate(WorldCreateParams{Scene: "lobby"})
	if err != nil {
		t.Fatalf("world.create: %v", err)
	}
	if !world.World || world.Seq != 1 {
		t.Fatalf("unexpected world batch: seq=%d world=%v", world.Seq, world.World)
	}
	if len(world.Meshes.Changed) != 1 || len(world.Instances.Changed) != 1 || len(world.Materials.Changed) != 1 {
		t.Fatalf("unexpected world contents: meshes=%d instances=%d materials=%d",
			len(world.Meshes.Changed), len(world.Instances.Changed), len(world.Materials.Changed))
	}
	if world.Sun == nil || world.Sun.Altitude != 45 {
		t.Fatalf("sun missing: %+v", world.Sun)
	}

	matID := world.Materials.Changed[0].ID
	if world.Instances.Changed[0].Material != matID {
		t.Fatalf("instance material=%s want %s", world.Instances.Changed[0].Material, matID)
	}

	rec, err := c.MaterialGet("lobby", matID)
	if err != nil {
		t.Fatalf("material.get: %v", err)
	}
	if rec.Material.Name != "Painted Red" || rec.Material.Diffuse.R != 255 {
		t.Fatalf("unexpected material: %+v", rec)
	}

	owners, err := c.MaterialOwners("lobby", matID)
	if err != nil {
		t.Fatalf("material.owners: %v", err)
	}
	if len(owners.Materials) != 1 || owners.Materials[0] != testMaterialID {
		t.Fatalf("materials=%v", owners.Materials)
	}
	if len(owners.Objects) != 1 || owners.Objects[0] != testObjectID {
		t.Fatalf("objects=%v", owners.Objects)
	}

	again, err := c.BatchGet("lobby", 1)
	if err != nil {
		t.Fatalf("batch.get: %v", err)
	}
	if again.Seq != 1 || len(again.Meshes.Changed) != 1 {
		t.Fatalf("unexpected history batch: %+v", again.Seq)
	}
	if _, err := c.BatchGet("lobby", 99); err == nil {
		t.Fatalf("expected missing batch error")
	}

	empty, err := c.Flush(FlushParams{Scene: "lobby"})
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !empty.Empty() || empty.Seq != 2 {
		t.Fatalf("expected empty batch 2, got seq=%d", empty.Seq)
	}

	stats, err := c.Stats("lobby")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Queue.Flushes != 2 || stats.Queue.Meshes != 1 || stats.Queue.Instances != 1 {
		t.Fatalf("unexpected stats: %+v", stats.Queue)
	}
	if len(stats.History) != 1 || stats.History[0] != 1 {
		t.Fatalf("history=%v", stats.History)
	}

	hist, err := c.JournalFind(JournalFindParams{Object: testObjectID})
	if err != nil {
		t.Fatalf("journal.find: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected mesh and instance rows, got %+v", hist)
	}

	hits, err := c.JournalSearch(JournalSearchParams{Text: "painted"})
	if err != nil {
		t.Fatalf("journal.search: %v", err)
	}
	if len(hits) != 1 || hits[0].Kind != "material" {
		t.Fatalf("unexpected search hits: %+v", hits)
	}

	ji, err := c.JournalInfo()
	if err != nil {
		t.Fatalf("journal.info: %v", err)
	}
	if ji.Backend != "sqlite" || ji.LastSeq != 1 || ji.Entries == 0 {
		t.Fatalf("unexpected journal info: %+v", ji)
	}
	if mode := strings.ToLower(ji.Settings["journal_mode"]); mode != "wal" {
		t.Fatalf("journal_mode=%q", mode)
	}

	scenes, err := c.SceneList()
	if err != nil || len(scenes) != 1 {
		t.Fatalf("scene.list=%v err=%v", scenes, err)
	}
	if err := c.SceneClose("lobby"); err != nil {
		t.Fatalf("scene.close: %v", err)
	}
	_, err = c.Stats("lobby")
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != codeServer {
		t.Fatalf("expected server error after close, got %v", err)
	}
}

func TestClient_WatchAutoFlush(t *testing.T) {
	dir := t.TempDir()
	path := writeScene(t, dir, testSceneYAML)

	_, addr := startServer(t, Options{})
	c := dial(t, addr)

	if _, err := c.SceneOpen(SceneOpenParams{Name: "live", Path: path, Watch: true, AutoFlush: true, DebounceMS: 20}); err != nil {
		t.Fatalf("scene.open: %v", err)
	}
	world, err := c.WorldCreate(WorldCreateParams{Scene: "live"})
	if err != nil {
		t.Fatalf("world.create: %v", err)
	}
	oldMat := world.Materials.Changed[0].ID

	writeScene(t, dir, recolor(testSceneYAML))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stats, err := c.Stats("live")
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if len(stats.History) >= 2 {
			b, err := c.BatchGet("live", stats.History[0])
			if err != nil {
				t.Fatalf("batch.get: %v", err)
			}
			if len(b.Meshes.Changed) != 0 {
				t.Fatalf("recolor must not resend meshes: %+v", b.Meshes)
			}
			if len(b.Materials.Changed) != 1 || b.Materials.Changed[0].Material.Diffuse.B != 255 {
				t.Fatalf("unexpected materials: %+v", b.Materials)
			}
			if len(b.Materials.Deleted) != 1 || b.Materials.Deleted[0] != oldMat {
				t.Fatalf("expected old material deleted: %+v", b.Materials.Deleted)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("auto flush did not deliver the edit in time")
}

func TestSceneOpen_Validation(t *testing.T) {
	h := NewHandlers(HandlersOptions{})
	t.Cleanup(func() { _ = h.CloseAll() })

	dir := t.TempDir()
	path := writeScene(t, dir, testSceneYAML)

	if _, err := h.SceneOpen(SceneOpenParams{Path: dir}); err == nil {
		t.Fatalf("expected directory error")
	}
	if _, err := h.SceneOpen(SceneOpenParams{Path: path, AutoFlush: true}); err == nil {
		t.Fatalf("expected auto_flush without watch error")
	}
	if _, err := h.SceneOpen(SceneOpenParams{Path: path, View: "not-a-uuid"}); err == nil {
		t.Fatalf("expected view parse error")
	}
	info, err := h.SceneOpen(SceneOpenParams{Path: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if info.ID == "" {
		t.Fatalf("expected generated id")
	}
	if _, err := h.SceneClose(SceneParams{Scene: "nope"}); !errors.Is(err, ErrSceneNotFound) {
		t.Fatalf("err=%v", err)
	}
}
