package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewFileWatcher_Debounce(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "scene.yaml")
	_ = os.WriteFile(path, []byte("objects: []\n"), 0o644)

	w, err := NewFileWatcher([]string{path}, Options{
		Debounce: 50 * time.Millisecond,
		OnChange: func([]string) {},
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	if w.Debounce() != 50*time.Millisecond {
		t.Fatalf("expected debounce 50ms, got=%v", w.Debounce())
	}
}

func TestNewFileWatcher_RequiresOnChange(t *testing.T) {
	if _, err := NewFileWatcher([]string{"scene.yaml"}, Options{}); err == nil {
		t.Fatal("expected error without OnChange")
	}
	if _, err := NewFileWatcher(nil, Options{OnChange: func([]string) {}}); err == nil {
		t.Fatal("expected error without paths")
	}
}

func TestFileWatcher_ReportsWrites(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "scene.yaml")
	other := filepath.Join(root, "other.yaml")
	_ = os.WriteFile(path, []byte("a\n"), 0o644)

	got := make(chan []string, 4)
	w, err := NewFileWatcher([]string{path}, Options{
		Debounce: 30 * time.Millisecond,
		OnChange: func(paths []string) { got <- paths },
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	_ = os.WriteFile(other, []byte("ignored\n"), 0o644)
	_ = os.WriteFile(path, []byte("b\n"), 0o644)

	select {
	case paths := <-got:
		if len(paths) != 1 || filepath.Base(paths[0]) != "scene.yaml" {
			t.Fatalf("unexpected paths: %v", paths)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}
}
