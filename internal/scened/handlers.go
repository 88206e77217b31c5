package scened

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"scenequeue/internal/journal"
	"scenequeue/internal/journal/store"
	"scenequeue/internal/model"
)

var (
	ErrSceneNotFound = errors.New("scene not found")
	ErrNoJournal     = errors.New("journal is not configured")
)

type HandlersOptions struct {
	// History is how many recent batches each scene keeps for batch.get.
	History int
	Journal *journal.Writer
	Logger  *slog.Logger
}

type Handlers struct {
	mu       sync.RWMutex
	sessions map[string]*session
	opts     HandlersOptions
	log      *slog.Logger
}

func NewHandlers(opts HandlersOptions) *Handlers {
	if opts.History <= 0 {
		opts.History = 64
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		sessions: map[string]*session{},
		opts:     opts,
		log:      log,
	}
}

func (h *Handlers) SceneOpen(p SceneOpenParams) (SceneInfo, error) {
	if h == nil {
		return SceneInfo{}, fmt.Errorf("handlers is nil")
	}
	id := newSessionID(p.Name)

	h.mu.RLock()
	_, exists := h.sessions[id]
	h.mu.RUnlock()
	if exists {
		return SceneInfo{}, fmt.Errorf("scene %q is already open", id)
	}

	s, err := openSession(id, p, h.opts.History, h.opts.Journal, h.log)
	if err != nil {
		return SceneInfo{}, err
	}

	h.mu.Lock()
	if _, exists := h.sessions[id]; exists {
		h.mu.Unlock()
		_ = s.close()
		return SceneInfo{}, fmt.Errorf("scene %q is already open", id)
	}
	h.sessions[id] = s
	h.mu.Unlock()

	h.log.Info("scene opened", "scene", id, "path", s.path, "watch", s.watch)
	return s.info(), nil
}

func (h *Handlers) SceneClose(p SceneParams) (bool, error) {
	if h == nil {
		return false, fmt.Errorf("handlers is nil")
	}
	id := strings.TrimSpace(p.Scene)
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if !ok {
		return false, ErrSceneNotFound
	}
	if err := s.close(); err != nil {
		return false, err
	}
	return true, nil
}

func (h *Handlers) SceneList() []SceneInfo {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	out := make([]SceneInfo, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s.info())
	}
	h.mu.RUnlock()
	slices.SortFunc(out, func(a, b SceneInfo) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (h *Handlers) WorldCreate(p WorldCreateParams) (model.Batch, error) {
	s, err := h.getSession(p.Scene)
	if err != nil {
		return model.Batch{}, err
	}
	return s.createWorld(!p.Defer)
}

func (h *Handlers) Flush(p FlushParams) (model.Batch, error) {
	s, err := h.getSession(p.Scene)
	if err != nil {
		return model.Batch{}, err
	}
	return s.flush(!p.NoDispatch)
}

func (h *Handlers) BatchGet(p BatchGetParams) (model.Batch, error) {
	s, err := h.getSession(p.Scene)
	if err != nil {
		return model.Batch{}, err
	}
	b, ok := s.history.Get(p.Seq)
	if !ok {
		return model.Batch{}, fmt.Errorf("batch %d is not in history", p.Seq)
	}
	return b, nil
}

func (h *Handlers) MaterialGet(p ContentParams) (model.MaterialRecord, error) {
	s, err := h.getSession(p.Scene)
	if err != nil {
		return model.MaterialRecord{}, err
	}
	id, err := model.ParseContentID(p.ID)
	if err != nil {
		return model.MaterialRecord{}, err
	}
	m, ok := s.q.MaterialFromId(id)
	if !ok {
		return model.MaterialRecord{}, fmt.Errorf("material %s not found", id)
	}
	return model.MaterialRecord{ID: id, Material: m}, nil
}

func (h *Handlers) MaterialOwners(p ContentParams) (MaterialOwnersResult, error) {
	s, err := h.getSession(p.Scene)
	if err != nil {
		return MaterialOwnersResult{}, err
	}
	id, err := model.ParseContentID(p.ID)
	if err != nil {
		return MaterialOwnersResult{}, err
	}
	return MaterialOwnersResult{
		Materials: idStrings(s.q.OriginalIdsFromMaterialId(id)),
		Objects:   idStrings(s.q.OriginalInstanceIdsFromMaterialId(id)),
	}, nil
}

func (h *Handlers) Stats(p SceneParams) (StatsResult, error) {
	s, err := h.getSession(p.Scene)
	if err != nil {
		return StatsResult{}, err
	}
	return s.stats(), nil
}

func (h *Handlers) JournalFind(p JournalFindParams) ([]store.Entry, error) {
	st, err := h.journalStore()
	if err != nil {
		return nil, err
	}
	return st.FindObject(p.Object, p.Limit)
}

func (h *Handlers) JournalSearch(p JournalSearchParams) ([]store.Entry, error) {
	st, err := h.journalStore()
	if err != nil {
		return nil, err
	}
	return st.Search(p.Text, p.Limit)
}

func (h *Handlers) JournalInfo() (journal.Info, error) {
	st, err := h.journalStore()
	if err != nil {
		return journal.Info{}, err
	}
	return journal.Describe(st)
}

// CloseAll closes every open scene.
func (h *Handlers) CloseAll() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = map[string]*session{}
	h.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.id, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Handlers) journalStore() (store.Store, error) {
	if h == nil {
		return nil, fmt.Errorf("handlers is nil")
	}
	if h.opts.Journal == nil {
		return nil, ErrNoJournal
	}
	return h.opts.Journal.Store(), nil
}

func (h *Handlers) getSession(id string) (*session, error) {
	if h == nil {
		return nil, fmt.Errorf("handlers is nil")
	}
	h.mu.RLock()
	s, ok := h.sessions[strings.TrimSpace(id)]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSceneNotFound, id)
	}
	return s, nil
}

func idStrings(ids []model.ObjectID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
