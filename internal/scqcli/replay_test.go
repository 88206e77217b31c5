package scqcli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scenequeue/internal/journal/store"
)

const testObjectID = "6f1c3f0e-0000-4000-8000-0000000000a3"

const testSceneYAML = `
layers:
  - id: 6f1c3f0e-0000-4000-8000-0000000000a1
    name: Default
materials:
  - id: 6f1c3f0e-0000-4000-8000-0000000000a2
    name: Painted Red
    diffuse: {r: 255, g: 0, b: 0, a: 255}
    ior: 1.5
objects:
  - id: 6f1c3f0e-0000-4000-8000-0000000000a3
    kind: mesh
    attributes:
      name: Panel
      layer: 6f1c3f0e-0000-4000-8000-0000000000a1
      material: 6f1c3f0e-0000-4000-8000-0000000000a2
      material_source: object
    mesh:
      - vertices: [{x: 0, y: 0, z: 0}, {x: 1, y: 0, z: 0}, {x: 0, y: 1, z: 0}]
        indices: [0, 1, 2]
settings:
  sun:
    enabled: true
    altitude: 45
`

func writeScene(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.yaml")
	if err := os.WriteFile(path, []byte(testSceneYAML), 0o644); err != nil {
		t.Fatalf("write scene: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	out, _, err := ExecuteForTest(cmd)
	if err != nil {
		t.Fatalf("scq %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestReplayPrintsWorld(t *testing.T) {
	scene := writeScene(t)
	journal := filepath.Join(t.TempDir(), "journal.db")

	out := run(t, "replay", scene, "-j", journal)
	for _, want := range []string{"mesh changed", "mesh_instance changed", `"Panel"`, `"Painted Red"`, "sun changed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("replay output missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(journal); !os.IsNotExist(err) {
		t.Fatalf("journal written without --record: %v", err)
	}
}

func TestReplayJSONL(t *testing.T) {
	scene := writeScene(t)
	out := run(t, "replay", scene, "--jsonl", "-j", filepath.Join(t.TempDir(), "journal.db"))

	var kinds []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var e store.Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		if e.Seq != 1 {
			t.Fatalf("seq=%d", e.Seq)
		}
		kinds = append(kinds, e.Kind)
	}
	if len(kinds) < 4 || kinds[0] != "mesh" {
		t.Fatalf("kinds=%v", kinds)
	}
}

func TestReplayInvalidView(t *testing.T) {
	scene := writeScene(t)
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"replay", scene, "--view", "nope", "-j", filepath.Join(t.TempDir(), "j.db")})
	if _, _, err := ExecuteForTest(cmd); err == nil {
		t.Fatal("expected error")
	}
}

func TestReplayMissingScene(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"replay", filepath.Join(t.TempDir(), "missing.yaml"), "-j", filepath.Join(t.TempDir(), "j.db")})
	if _, _, err := ExecuteForTest(cmd); err == nil {
		t.Fatal("expected error")
	}
}

func TestReplayRecordThenInspect(t *testing.T) {
	for _, backend := range []string{"sqlite", "bleve"} {
		t.Run(backend, func(t *testing.T) {
			scene := writeScene(t)
			journal := filepath.Join(t.TempDir(), "journal.db")
			common := []string{"-j", journal, "--backend", backend}

			run(t, append([]string{"replay", scene, "--record"}, common...)...)
			run(t, append([]string{"replay", scene, "--record"}, common...)...)

			list := run(t, append([]string{"journal", "list"}, common...)...)
			lines := strings.Split(strings.TrimSpace(list), "\n")
			if len(lines) != 2 || !strings.HasPrefix(lines[0], "2\t") || !strings.HasPrefix(lines[1], "1\t") {
				t.Fatalf("list:\n%s", list)
			}

			show := run(t, append([]string{"journal", "show", "2"}, common...)...)
			if !strings.Contains(show, "2:0 ") || !strings.Contains(show, `"Painted Red"`) {
				t.Fatalf("show:\n%s", show)
			}

			found := run(t, append([]string{"journal", "find", testObjectID}, common...)...)
			if !strings.Contains(found, "mesh_instance changed") {
				t.Fatalf("find:\n%s", found)
			}

			hits := run(t, append([]string{"journal", "search", "painted"}, common...)...)
			if !strings.Contains(hits, "material changed") || !strings.Contains(hits, `"Painted Red"`) {
				t.Fatalf("search:\n%s", hits)
			}

			info := run(t, append([]string{"journal", "info"}, common...)...)
			if !strings.Contains(info, "backend\t"+backend+"\n") || !strings.Contains(info, "last_seq\t2\n") {
				t.Fatalf("info:\n%s", info)
			}
			if backend == "sqlite" && !strings.Contains(strings.ToLower(info), "journal_mode=wal\n") {
				t.Fatalf("info without journal mode:\n%s", info)
			}
		})
	}
}

func TestJournalShowInvalidSeq(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"journal", "show", "x", "-j", filepath.Join(t.TempDir(), "j.db")})
	if _, _, err := ExecuteForTest(cmd); err == nil {
		t.Fatal("expected error")
	}
}
