package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_DefaultsAndScenes(t *testing.T) {
	src := []byte(`
history = 8

journal {
  backend = "bleve"
  path    = ".scq/journal.bleve"
}

scene "lobby" {
  path       = "scenes/lobby.yaml"
  watch      = true
  auto_flush = true
  debounce   = "150ms"
}

scene "static" {
  path = "/abs/static.yaml"
}
`)
	dir := filepath.FromSlash("/work")
	cfg, err := Parse("scened.hcl", src, dir)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Listen != DefaultListen || cfg.LogLevel != "info" || cfg.History != 8 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxRequestBytes != DefaultMaxRequestBytes {
		t.Fatalf("max_request_bytes=%d", cfg.MaxRequestBytes)
	}
	if cfg.Journal == nil || cfg.Journal.Backend != "bleve" || cfg.Journal.Path != filepath.Join(dir, ".scq/journal.bleve") {
		t.Fatalf("unexpected journal: %+v", cfg.Journal)
	}
	if len(cfg.Scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(cfg.Scenes))
	}
	lobby := cfg.Scenes[0]
	if lobby.Name != "lobby" || !lobby.Watch || !lobby.AutoFlush {
		t.Fatalf("unexpected scene: %+v", lobby)
	}
	if lobby.Path != filepath.Join(dir, "scenes/lobby.yaml") {
		t.Fatalf("path=%q", lobby.Path)
	}
	if d, _ := lobby.DebounceDuration(); d != 150*time.Millisecond {
		t.Fatalf("debounce=%v", d)
	}
	if cfg.Scenes[1].Path != "/abs/static.yaml" {
		t.Fatalf("abs path rewritten: %q", cfg.Scenes[1].Path)
	}
}

func TestParse_Validation(t *testing.T) {
	cases := map[string]string{
		"duplicate": `
scene "a" { path = "a.yaml" }
scene "a" { path = "b.yaml" }
`,
		"debounce": `scene "a" {
  path     = "a.yaml"
  debounce = "soon"
}`,
		"history": `history = -1`,
		"request": `max_request_bytes = -1`,
		"unknown": `listen_addr = "x"`,
		"no-path": `scene "a" { path = " " }`,
	}
	for name, src := range cases {
		if _, err := Parse(name+".hcl", []byte(src), "/work"); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParse_MaxRequestBytes(t *testing.T) {
	cfg, err := Parse("scened.hcl", []byte(`max_request_bytes = 4096`), "/work")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.MaxRequestBytes != 4096 {
		t.Fatalf("max_request_bytes=%d", cfg.MaxRequestBytes)
	}
	if d := Default(); d.MaxRequestBytes != DefaultMaxRequestBytes {
		t.Fatalf("default max_request_bytes=%d", d.MaxRequestBytes)
	}
}

func TestLoad_EvalContext(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SCQ_TEST_LEVEL", "DEBUG")
	src := `
log_level = lower(env.SCQ_TEST_LEVEL)
listen    = coalesce(null, "127.0.0.1:0")

journal {
  path = "${config_dir}/j.db"
}
`
	path := filepath.Join(dir, "scened.hcl")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level=%q", cfg.LogLevel)
	}
	if cfg.Listen != "127.0.0.1:0" {
		t.Fatalf("listen=%q", cfg.Listen)
	}
	want, _ := filepath.Abs(filepath.Join(dir, "j.db"))
	if cfg.Journal.Path != want {
		t.Fatalf("journal path=%q want %q", cfg.Journal.Path, want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.hcl")); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error")
	}
}
