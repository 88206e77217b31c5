// Package queue implements the change queue between a live document and a
// rendering client. Edits are classified and buffered as they happen; Flush
// resolves them against content-addressed caches and delivers the result to
// the client in a fixed order. Direct-manipulation updates bypass the buffer
// and are delivered immediately.
package queue

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"scenequeue/internal/core/contentcache"
	"scenequeue/internal/core/docwatch"
	"scenequeue/internal/core/explain"
	"scenequeue/internal/core/geomcache"
	"scenequeue/internal/core/instance"
	"scenequeue/internal/document"
	"scenequeue/internal/model"
)

type Options struct {
	// View is the view to render. uuid.Nil follows the document's active view.
	View model.ObjectID
	// DisplayAttributes overrides the document's display attributes.
	DisplayAttributes *model.DisplayAttributes
	// RespectDisplayAttributes hides lights and clipping planes the display
	// attributes turn off.
	RespectDisplayAttributes bool
	// NotifyChanges subscribes to document edits. Without it the queue only
	// delivers what CreateWorld enumerates.
	NotifyChanges bool

	Tessellator document.Tessellator
	Logger      *slog.Logger
	Explain     explain.Explain
}

type State int32

const (
	StateIdle State = iota
	StateUpdating
	StateDynamic
)

func (s State) String() string {
	switch s {
	case StateUpdating:
		return "updating"
	case StateDynamic:
		return "dynamic"
	}
	return "idle"
}

type Stats struct {
	Flushes      int64         `json:"flushes"`
	Records      int64         `json:"records"`
	Enqueued     int64         `json:"enqueued"`
	Coalesced    int64         `json:"coalesced"`
	Dynamic      int64         `json:"dynamic"`
	Cycles       int64         `json:"cycles"`
	Dropped      int64         `json:"dropped"`
	Panics       int64         `json:"panics"`
	LastFlush    time.Duration `json:"last_flush_ns"`
	Pending      int           `json:"pending"`
	Epoch        uint64        `json:"epoch"`
	Meshes       int           `json:"meshes"`
	Instances    int           `json:"instances"`
	Materials    int           `json:"materials"`
	Textures     int           `json:"textures"`
	Environments int           `json:"environments"`
	State        string        `json:"state"`
}

// Queue is the change queue. One Queue exclusively owns its caches.
type Queue struct {
	doc      document.Document
	consumer Consumer
	notifier Notifier
	opts     Options
	log      *slog.Logger
	tess     document.Tessellator

	content *contentcache.Cache
	geom    *geomcache.Cache
	graph   *instance.Graph
	watcher *docwatch.Watcher
	handles *arena

	// mu is the queue lock. It guards every write to the committed state
	// and caches. It is not reentrant; see Consumer.
	mu  sync.Mutex
	seq uint64

	// pmu guards pending only, so edits made while a flush holds mu,
	// including edits from inside a consumer callback, never block on it.
	pmu     sync.Mutex
	pending *pending

	dispatching atomic.Bool

	// cmu lets lookups read committed state while the queue lock is held
	// by a flush that is dispatching.
	cmu sync.RWMutex
	com *committed

	refMu sync.Mutex
	refs  map[model.ObjectID]model.ObjectID

	state    atomic.Int32
	failed   atomic.Bool
	updates  chan struct{}
	dynamicC chan struct{}
	closed   atomic.Bool

	flushes   atomic.Int64
	records   atomic.Int64
	enqueued  atomic.Int64
	coalesced atomic.Int64
	dynamicN  atomic.Int64
	dropped   atomic.Int64
	panics    atomic.Int64
	lastFlush atomic.Int64
}

// New creates a queue tied to a live document.
func New(doc document.Document, consumer Consumer, opts Options) (*Queue, error) {
	q, err := newQueue(doc, consumer, opts)
	if err != nil {
		return nil, err
	}
	if opts.NotifyChanges {
		q.watcher.Start()
	}
	return q, nil
}

// NewFromSnapshot creates a queue over a static document. It never
// subscribes to edits, so only CreateWorld produces changes.
func NewFromSnapshot(doc document.Document, consumer Consumer, opts Options) (*Queue, error) {
	opts.NotifyChanges = false
	return newQueue(doc, consumer, opts)
}

func newQueue(doc document.Document, consumer Consumer, opts Options) (*Queue, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	tess := opts.Tessellator
	if tess == nil {
		tess = document.PassThrough
	}

	q := &Queue{
		doc:      doc,
		consumer: consumer,
		opts:     opts,
		log:      log,
		tess:     tess,
		content:  contentcache.New(),
		geom:     geomcache.New(),
		graph:    instance.New(doc, log),
		handles:  newArena(),
		pending:  newPending(),
		com:      newCommitted(),
		refs:     map[model.ObjectID]model.ObjectID{},
		updates:  make(chan struct{}, 1),
		dynamicC: make(chan struct{}, 1),
	}
	if n, ok := consumer.(Notifier); ok {
		q.notifier = n
	}
	q.watcher = docwatch.New(doc, queueSink{q}, log)
	return q, nil
}

// Close stops listening to the document. Pending changes are kept.
func (q *Queue) Close() error {
	if q == nil {
		return nil
	}
	if q.closed.CompareAndSwap(false, true) {
		q.watcher.Stop()
	}
	return nil
}

// Locking.

func (q *Queue) Lock()         { q.mu.Lock() }
func (q *Queue) Unlock()       { q.mu.Unlock() }
func (q *Queue) TryLock() bool { return q.mu.TryLock() }

// Acquire takes the queue lock and returns its release func. Calling the
// release func more than once is harmless.
func (q *Queue) Acquire() func() {
	q.mu.Lock()
	var once sync.Once
	return func() { once.Do(q.mu.Unlock) }
}

// Notifications. These run on the editing goroutine.

func (q *Queue) NotifyBeginUpdates() {
	q.state.Store(int32(StateUpdating))
	if q.notifier != nil {
		q.notifier.NotifyBeginUpdates()
	}
}

func (q *Queue) NotifyEndUpdates() {
	failed := q.failed.Swap(false)
	q.state.Store(int32(StateIdle))
	if q.notifier != nil {
		q.notifier.NotifyEndUpdates(failed)
	}
	signal(q.updates)
}

func (q *Queue) NotifyDynamicUpdatesAreAvailable() {
	q.state.Store(int32(StateDynamic))
	if q.notifier != nil {
		q.notifier.NotifyDynamicUpdatesAreAvailable()
	}
	signal(q.dynamicC)
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

// Updates is signalled after every update bracket closes.
func (q *Queue) Updates() <-chan struct{} { return q.updates }

// DynamicUpdates is signalled when a dynamic update has been delivered.
func (q *Queue) DynamicUpdates() <-chan struct{} { return q.dynamicC }

func (q *Queue) State() State { return State(q.state.Load()) }

// HasPending reports whether a flush would have anything to resolve.
func (q *Queue) HasPending() bool {
	q.pmu.Lock()
	defer q.pmu.Unlock()
	return q.pending.world || q.pending.len() > 0
}

// reentered reports whether a batch is being dispatched. Flushing then
// would run inside a consumer callback, so the call is skipped and the
// update signal is raised again for the pending edits.
func (q *Queue) reentered(op string) bool {
	if !q.dispatching.Load() {
		return false
	}
	q.log.Warn("skipped while a batch is being dispatched", "op", op)
	signal(q.updates)
	return true
}

// Dynamic path.

func (q *Queue) beginDynamic() {
	if q.State() != StateDynamic {
		q.NotifyDynamicUpdatesAreAvailable()
	}
	q.dynamicN.Add(1)
}

func (q *Queue) dynamicTransform(t model.DynamicObjectTransform) {
	q.beginDynamic()
	q.safely(model.KindDynamicObjectTransform, func() {
		q.consumer.ApplyDynamicObjectTransforms([]model.DynamicObjectTransform{t})
	})
}

func (q *Queue) dynamicLight(l model.Light) {
	q.beginDynamic()
	q.safely(model.KindDynamicLight, func() {
		q.consumer.ApplyDynamicLightChanges([]model.Light{l})
	})
}

func (q *Queue) dynamicClippingPlane(cp model.ClippingPlane) {
	q.beginDynamic()
	q.safely(model.KindDynamicClippingPlane, func() {
		q.consumer.ApplyDynamicClippingPlaneChanges([]model.ClippingPlane{cp})
	})
}

// safely runs one consumer callback. A panic is logged and counted so the
// rest of the batch is still delivered.
func (q *Queue) safely(kind model.Kind, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.panics.Add(1)
			q.log.Error("consumer callback panicked", "kind", kind, "panic", r)
		}
	}()
	fn()
}

// queueSink adapts the queue to docwatch.Sink without exporting the sink
// methods on Queue.
type queueSink struct{ q *Queue }

func (s queueSink) Enqueue(c docwatch.Change) {
	s.q.pmu.Lock()
	merged := s.q.pending.add(c)
	s.q.pmu.Unlock()
	s.q.enqueued.Add(1)
	if merged {
		s.q.coalesced.Add(1)
	}
}

func (s queueSink) MarkFailed() {
	s.q.failed.Store(true)
	s.q.dropped.Add(1)
}

func (s queueSink) NotifyBeginUpdates() { s.q.NotifyBeginUpdates() }
func (s queueSink) NotifyEndUpdates()   { s.q.NotifyEndUpdates() }

func (s queueSink) DynamicObjectTransform(t model.DynamicObjectTransform) { s.q.dynamicTransform(t) }
func (s queueSink) DynamicLight(l model.Light)                           { s.q.dynamicLight(l) }
func (s queueSink) DynamicClippingPlane(cp model.ClippingPlane)          { s.q.dynamicClippingPlane(cp) }

// CreateWorld replaces the pending backlog with a full enumeration of the
// document. With flushWhenFinished the enumeration is delivered right away.
func (q *Queue) CreateWorld(flushWhenFinished bool) model.Batch {
	if q.reentered("CreateWorld") {
		return model.Batch{}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pmu.Lock()
	q.pending.supersede()
	q.pmu.Unlock()
	q.handles.advance()
	if !flushWhenFinished {
		return model.Batch{}
	}
	return q.flushLocked(true)
}

// Lookups. None of these take the queue lock, so they can be called from
// inside consumer callbacks.

func (q *Queue) MaterialFromId(id model.ContentID) (model.Material, bool) {
	return q.content.Material(id)
}

func (q *Queue) TextureFromId(id model.ContentID) (model.Texture, bool) {
	return q.content.Texture(id)
}

func (q *Queue) EnvironmentFromId(id model.ContentID) (model.Environment, bool) {
	return q.content.Environment(id)
}

func (q *Queue) MeshFromId(id model.GeometryID) (model.Mesh, bool) {
	return q.geom.Mesh(id)
}

// ObjectFromId returns a handle to a document object or to one registered
// with AddObjectReference.
func (q *Queue) ObjectFromId(id model.ObjectID) (ObjectHandle, bool) {
	epoch := q.handles.current()
	h := ObjectHandle{id: id, epoch: epoch}
	if _, ok, _ := q.handles.get(h); ok {
		return h, true
	}
	if _, ok := q.doc.Object(id); ok {
		return h, true
	}
	return ObjectHandle{}, false
}

// Object resolves a handle. It fails with ErrExpired once a Flush or
// CreateWorld has happened since the handle was issued.
func (q *Queue) Object(h ObjectHandle) (model.Object, error) {
	if h.IsZero() {
		return model.Object{}, ErrNotFound
	}
	obj, ok, err := q.handles.get(h)
	if err != nil {
		return model.Object{}, err
	}
	if ok {
		return obj, nil
	}
	if obj, ok := q.doc.Object(h.id); ok {
		return obj, nil
	}
	return model.Object{}, fmt.Errorf("object %s: %w", h.id, ErrNotFound)
}

// Registration. Entries registered here stay cached until CreateWorld.

// ReferenceCount returns how many document bindings and explicit
// registrations hold the content id.
func (q *Queue) ReferenceCount(kind model.Kind, id model.ContentID) int {
	return len(q.content.Owners(kind, id))
}

// referenceOwner returns a fresh owner for one explicit registration, so
// every registration holds its own reference on the cached entry and never
// collides with a document binding. origin may be uuid.Nil.
func (q *Queue) referenceOwner(origin model.ObjectID) model.ObjectID {
	owner := uuid.New()
	q.refMu.Lock()
	q.refs[owner] = origin
	q.refMu.Unlock()
	return owner
}

func (q *Queue) origins(owners []model.ObjectID) []model.ObjectID {
	q.refMu.Lock()
	defer q.refMu.Unlock()
	out := make([]model.ObjectID, 0, len(owners))
	seen := map[model.ObjectID]struct{}{}
	for _, o := range owners {
		if origin, ok := q.refs[o]; ok {
			o = origin
		}
		if o == uuid.Nil {
			continue
		}
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}

func (q *Queue) resolveSlot(slot model.TextureSlot) model.TextureSlot {
	if slot.Empty() {
		slot.Content = 0
		return slot
	}
	if id, ok := q.content.Bound(model.KindTexture, slot.Texture); ok {
		slot.Content = id
		return slot
	}
	if tex, ok := q.doc.Texture(slot.Texture); ok {
		slot.Content = q.content.AddTexture(q.referenceOwner(slot.Texture), tex).ID
	}
	return slot
}

// AddMaterialReference registers m and returns its content id. Value-equal
// materials always get the same id.
func (q *Queue) AddMaterialReference(m model.Material) model.ContentID {
	if len(m.Textures) > 0 {
		slots := make([]model.TextureSlot, len(m.Textures))
		for i, s := range m.Textures {
			slots[i] = q.resolveSlot(s)
		}
		m.Textures = slots
	}
	return q.content.AddMaterial(q.referenceOwner(m.ID), m).ID
}

// AddContentReference registers a material, texture or environment.
func (q *Queue) AddContentReference(c any) (model.ContentID, error) {
	switch v := c.(type) {
	case model.Material:
		return q.AddMaterialReference(v), nil
	case *model.Material:
		return q.AddMaterialReference(*v), nil
	case model.Texture:
		return q.content.AddTexture(q.referenceOwner(v.ID), v).ID, nil
	case *model.Texture:
		return q.content.AddTexture(q.referenceOwner(v.ID), *v).ID, nil
	case model.Environment:
		v.Texture = q.resolveSlot(v.Texture)
		return q.content.AddEnvironment(q.referenceOwner(v.ID), v).ID, nil
	case *model.Environment:
		e := *v
		e.Texture = q.resolveSlot(e.Texture)
		return q.content.AddEnvironment(q.referenceOwner(e.ID), e).ID, nil
	}
	return 0, fmt.Errorf("unsupported content type %T", c)
}

// AddObjectReference keeps obj resolvable through the returned handle until
// the next Flush or CreateWorld.
func (q *Queue) AddObjectReference(obj model.Object) ObjectHandle {
	if obj.ID == uuid.Nil {
		obj.ID = uuid.New()
	}
	return q.handles.put(obj)
}

// Reverse lookups.

// OriginalInstanceIdsFromMaterialId returns the document objects whose
// committed mesh instances use the material.
func (q *Queue) OriginalInstanceIdsFromMaterialId(id model.ContentID) []model.ObjectID {
	q.cmu.RLock()
	defer q.cmu.RUnlock()
	return q.com.objectsUsingMaterial(id)
}

// OriginalIdsFromMaterialId returns the document materials that collapse to
// id.
func (q *Queue) OriginalIdsFromMaterialId(id model.ContentID) []model.ObjectID {
	return q.origins(q.content.Owners(model.KindMaterial, id))
}

func (q *Queue) OriginalIdsFromTextureId(id model.ContentID) []model.ObjectID {
	return q.origins(q.content.Owners(model.KindTexture, id))
}

func (q *Queue) OriginalIdsFromEnvironmentId(id model.ContentID) []model.ObjectID {
	return q.origins(q.content.Owners(model.KindEnvironment, id))
}

func (q *Queue) Stats() Stats {
	s := Stats{
		Flushes:      q.flushes.Load(),
		Records:      q.records.Load(),
		Enqueued:     q.enqueued.Load(),
		Coalesced:    q.coalesced.Load(),
		Dynamic:      q.dynamicN.Load(),
		Cycles:       q.graph.Cycles(),
		Dropped:      q.dropped.Load(),
		Panics:       q.panics.Load(),
		LastFlush:    time.Duration(q.lastFlush.Load()),
		Epoch:        q.handles.current(),
		Meshes:       q.geom.Len(),
		Materials:    q.content.Len(model.KindMaterial),
		Textures:     q.content.Len(model.KindTexture),
		Environments: q.content.Len(model.KindEnvironment),
		State:        q.State().String(),
	}
	q.cmu.RLock()
	s.Instances = len(q.com.instances)
	q.cmu.RUnlock()
	q.pmu.Lock()
	s.Pending = q.pending.len()
	q.pmu.Unlock()
	return s
}
