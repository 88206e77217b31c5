package document

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"scenequeue/internal/core/watch"
)

// FileSource is a live document backed by a YAML scene file. Saving the file
// reloads it and reports the difference as a bracketed batch of edits.
type FileSource struct {
	path    string
	doc     *Memory
	watcher *watch.FileWatcher
	log     *slog.Logger

	mu      sync.Mutex
	reloads atomic.Int64
	lastErr error
}

type FileSourceOptions struct {
	Debounce         time.Duration
	AdaptiveDebounce bool
	Logger           *slog.Logger
}

func OpenFile(path string, opts FileSourceOptions) (*FileSource, error) {
	snap, err := LoadSnapshot(path)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &FileSource{
		path: path,
		doc:  NewMemory(snap),
		log:  log,
	}
	w, err := watch.NewFileWatcher([]string{path}, watch.Options{
		Debounce:         opts.Debounce,
		AdaptiveDebounce: opts.AdaptiveDebounce,
		Logger:           log,
		OnChange:         func([]string) { _ = s.Reload() },
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	s.watcher = w
	return s, nil
}

func (s *FileSource) Document() *Memory {
	if s == nil {
		return nil
	}
	return s.doc
}

func (s *FileSource) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Run watches the file until ctx is done.
func (s *FileSource) Run(ctx context.Context) error {
	if s == nil || s.watcher == nil {
		return fmt.Errorf("file source is not open")
	}
	return s.watcher.Run(ctx)
}

// Reload re-reads the file and applies it to the document. A file that fails
// to parse leaves the document unchanged.
func (s *FileSource) Reload() error {
	if s == nil {
		return fmt.Errorf("file source is not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := LoadSnapshot(s.path)
	if err != nil {
		s.lastErr = err
		s.log.Warn("scene reload failed", "path", s.path, "err", err)
		return err
	}
	s.lastErr = nil
	s.doc.Apply(snap)
	n := s.reloads.Add(1)
	s.log.Debug("scene reloaded", "path", s.path, "reloads", n)
	return nil
}

func (s *FileSource) Reloads() int64 {
	if s == nil {
		return 0
	}
	return s.reloads.Load()
}

func (s *FileSource) LastError() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *FileSource) Close() error {
	if s == nil || s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}
