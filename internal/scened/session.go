package scened

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"scenequeue/internal/core/cache"
	"scenequeue/internal/core/explain"
	"scenequeue/internal/core/queue"
	"scenequeue/internal/document"
	"scenequeue/internal/journal"
	"scenequeue/internal/model"
)

// session is one open scene: a document, its queue, and the batches the
// queue produced recently.
type session struct {
	id        string
	path      string
	watch     bool
	autoFlush bool

	src     *document.FileSource
	doc     *document.Memory
	q       *queue.Queue
	ex      *explain.Collector
	history *cache.LRU[uint64, model.Batch]
	journal *journal.Writer
	log     *slog.Logger

	dynamic atomic.Int64
	cancel  context.CancelFunc
	done    chan struct{}
}

func openSession(id string, p SceneOpenParams, history int, jw *journal.Writer, log *slog.Logger) (*session, error) {
	path := strings.TrimSpace(p.Path)
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if st, err := os.Stat(abs); err != nil {
		return nil, err
	} else if st.IsDir() {
		return nil, fmt.Errorf("scene path is a directory")
	}
	if p.AutoFlush && !p.Watch {
		return nil, fmt.Errorf("auto_flush requires watch")
	}
	if p.DebounceMS < 0 {
		return nil, fmt.Errorf("debounce_ms must be >= 0")
	}

	var view model.ObjectID
	if v := strings.TrimSpace(p.View); v != "" {
		if view, err = model.ParseObjectID(v); err != nil {
			return nil, err
		}
	}

	s := &session{
		id:        id,
		path:      abs,
		watch:     p.Watch,
		autoFlush: p.AutoFlush,
		ex:        explain.NewCollector(explain.Options{Format: "json"}),
		history:   cache.NewLRU[uint64, model.Batch](history),
		journal:   jw,
		log:       log.With("scene", id),
	}

	if p.Watch {
		src, err := document.OpenFile(abs, document.FileSourceOptions{
			Debounce:         time.Duration(p.DebounceMS) * time.Millisecond,
			AdaptiveDebounce: true,
			Logger:           s.log,
		})
		if err != nil {
			return nil, err
		}
		s.src = src
		s.doc = src.Document()
	} else {
		snap, err := document.LoadSnapshot(abs)
		if err != nil {
			return nil, err
		}
		s.doc = document.NewMemory(snap)
	}

	opts := queue.Options{
		View:                     view,
		RespectDisplayAttributes: p.RespectDisplayAttributes,
		NotifyChanges:            p.Watch,
		Logger:                   s.log,
		Explain:                  s.ex,
	}
	consumer := &queue.Funcs{
		DynamicObjectTransforms: func(ts []model.DynamicObjectTransform) { s.dynamic.Add(int64(len(ts))) },
		DynamicLights:           func(ls []model.Light) { s.dynamic.Add(int64(len(ls))) },
		DynamicClippingPlanes:   func(ps []model.ClippingPlane) { s.dynamic.Add(int64(len(ps))) },
	}
	if p.Watch {
		s.q, err = queue.New(s.doc, consumer, opts)
	} else {
		s.q, err = queue.NewFromSnapshot(s.doc, consumer, opts)
	}
	if err != nil {
		_ = s.closeSource()
		return nil, err
	}

	if s.src != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.run(ctx)
	}
	return s, nil
}

// run watches the scene file and, with auto flush, flushes after every
// update bracket the reload produces.
func (s *session) run(ctx context.Context) {
	defer close(s.done)

	errCh := make(chan error, 1)
	go func() { errCh <- s.src.Run(ctx) }()

	for {
		select {
		case <-ctx.Done():
			<-errCh
			return
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn("scene watch stopped", "err", err)
			}
			<-ctx.Done()
			return
		case <-s.q.Updates():
			if !s.autoFlush {
				continue
			}
			if _, err := s.flush(true); err != nil {
				s.log.Warn("auto flush", "err", err)
			}
		}
	}
}

func (s *session) createWorld(flush bool) (model.Batch, error) {
	b := s.q.CreateWorld(flush)
	if !flush {
		return b, nil
	}
	return b, s.record(b)
}

func (s *session) flush(apply bool) (model.Batch, error) {
	s.ex.Reset()
	b := s.q.Flush(apply)
	return b, s.record(b)
}

// record keeps b in the history and appends it to the journal. The batch
// has already been delivered, so a journal error is reported but does not
// undo anything.
func (s *session) record(b model.Batch) error {
	if b.Empty() {
		return nil
	}
	s.history.Put(b.Seq, b)
	if s.journal == nil {
		return nil
	}
	if _, err := s.journal.Record(b); err != nil {
		s.log.Warn("journal append failed", "seq", b.Seq, "err", err)
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

func (s *session) info() SceneInfo {
	return SceneInfo{
		ID:        s.id,
		Path:      s.path,
		Watch:     s.watch,
		AutoFlush: s.autoFlush,
		State:     s.q.State().String(),
		Reloads:   s.src.Reloads(),
	}
}

func (s *session) stats() StatsResult {
	seqs := s.history.Keys()
	return StatsResult{
		Scene:   s.id,
		Queue:   s.q.Stats(),
		History: seqs,
		Explain: s.ex.Snapshot(),
	}
}

func (s *session) closeSource() error {
	if s.src == nil {
		return nil
	}
	return s.src.Close()
}

func (s *session) close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	err := s.closeSource()
	if qerr := s.q.Close(); err == nil {
		err = qerr
	}
	return err
}

func newSessionID(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return uuid.NewString()
}
