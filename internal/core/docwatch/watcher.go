// Package docwatch turns document edit events into pending change records.
package docwatch

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"scenequeue/internal/document"
	"scenequeue/internal/model"
)

type Op uint8

const (
	OpAdd Op = iota + 1
	OpModify
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	}
	return "none"
}

// Change targets one entity. For settings kinds ID is zero; for
// environment usage changes Usage names the channel.
type Change struct {
	Kind  model.Kind
	ID    model.ObjectID
	Usage model.EnvironmentUsage
	Op    Op
}

// Sink receives classified changes. Enqueue and the bracket notifications
// run on the editing goroutine; the dynamic methods are forwarded as they
// arrive.
type Sink interface {
	Enqueue(c Change)
	MarkFailed()
	NotifyBeginUpdates()
	NotifyEndUpdates()
	DynamicObjectTransform(t model.DynamicObjectTransform)
	DynamicLight(l model.Light)
	DynamicClippingPlane(cp model.ClippingPlane)
}

// Watcher subscribes to a document and feeds a Sink.
type Watcher struct {
	doc  document.Document
	sink Sink
	log  *slog.Logger

	mu       sync.Mutex
	depth    int
	cancel   func()
	failures int
}

func New(doc document.Document, sink Sink, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{doc: doc, sink: sink, log: log}
}

// Start subscribes to the document. It is a no-op if already started.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil || w.doc == nil {
		return
	}
	w.cancel = w.doc.Subscribe(w.Handle)
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Failures returns how many events could not be classified.
func (w *Watcher) Failures() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures
}

// Handle classifies one event. Edits outside an update bracket are wrapped
// in one of their own.
func (w *Watcher) Handle(ev document.Event) {
	switch ev.Kind {
	case document.EventBeginUpdates:
		w.mu.Lock()
		w.depth++
		first := w.depth == 1
		w.mu.Unlock()
		if first {
			w.sink.NotifyBeginUpdates()
		}
		return
	case document.EventEndUpdates:
		w.mu.Lock()
		if w.depth == 0 {
			w.mu.Unlock()
			w.log.Debug("unbalanced end of updates ignored")
			return
		}
		w.depth--
		last := w.depth == 0
		w.mu.Unlock()
		if last {
			w.sink.NotifyEndUpdates()
		}
		return
	}

	w.mu.Lock()
	auto := w.depth == 0
	w.mu.Unlock()
	if auto {
		w.sink.NotifyBeginUpdates()
		defer w.sink.NotifyEndUpdates()
	}
	w.classify(ev)
}

func (w *Watcher) classify(ev document.Event) {
	switch ev.Kind {
	case document.EventObjectAdded:
		w.object(ev, OpAdd)
	case document.EventObjectModified:
		w.object(ev, OpModify)
	case document.EventObjectDeleted:
		w.object(ev, OpDelete)
	case document.EventDefinitionModified:
		w.sink.Enqueue(Change{Kind: model.KindDefinition, ID: ev.ID, Op: OpModify})
	case document.EventLayerModified:
		w.sink.Enqueue(Change{Kind: model.KindLayer, ID: ev.ID, Op: OpModify})
	case document.EventMaterialModified:
		w.sink.Enqueue(Change{Kind: model.KindMaterial, ID: ev.ID, Op: OpModify})
	case document.EventTextureModified:
		w.sink.Enqueue(Change{Kind: model.KindTexture, ID: ev.ID, Op: OpModify})
	case document.EventEnvironmentModified:
		w.sink.Enqueue(Change{Kind: model.KindEnvironment, ID: ev.ID, Op: OpModify})
	case document.EventSettingsModified:
		w.settings(ev)
	case document.EventViewModified:
		w.sink.Enqueue(Change{Kind: model.KindView, ID: ev.ID, Op: OpModify})
	case document.EventDynamicTransform:
		w.sink.DynamicObjectTransform(model.DynamicObjectTransform{Object: ev.ID, Transform: ev.Transform})
	case document.EventDynamicLight:
		if ev.Light == nil {
			w.fail(ev, "dynamic light without payload")
			return
		}
		w.sink.DynamicLight(*ev.Light)
	case document.EventDynamicClippingPlane:
		if ev.ClippingPlane == nil {
			w.fail(ev, "dynamic clipping plane without payload")
			return
		}
		w.sink.DynamicClippingPlane(*ev.ClippingPlane)
	default:
		w.fail(ev, "unknown event")
	}
}

func (w *Watcher) object(ev document.Event, op Op) {
	kind := ev.ObjectKind
	if kind == "" {
		if obj, ok := w.doc.Object(ev.ID); ok {
			kind = obj.Kind
		}
	}
	switch kind {
	case model.ObjectMesh, model.ObjectInstance:
		w.sink.Enqueue(Change{Kind: model.KindMeshInstance, ID: ev.ID, Op: op})
	case model.ObjectLight:
		w.sink.Enqueue(Change{Kind: model.KindLight, ID: ev.ID, Op: op})
	case model.ObjectClippingPlane:
		w.sink.Enqueue(Change{Kind: model.KindClippingPlane, ID: ev.ID, Op: op})
	default:
		w.fail(ev, "unclassified object")
	}
}

func (w *Watcher) settings(ev document.Event) {
	switch ev.Setting {
	case model.KindSun, model.KindSkylight, model.KindGroundPlane, model.KindLinearWorkflow,
		model.KindRenderSettings, model.KindDisplayAttributes:
		w.sink.Enqueue(Change{Kind: ev.Setting, ID: uuid.Nil, Op: OpModify})
	case model.KindEnvironment:
		if ev.Usage == "" {
			w.fail(ev, "environment setting without usage")
			return
		}
		w.sink.Enqueue(Change{Kind: model.KindEnvironment, Usage: ev.Usage, Op: OpModify})
	default:
		w.fail(ev, "unknown setting")
	}
}

func (w *Watcher) fail(ev document.Event, reason string) {
	w.mu.Lock()
	w.failures++
	w.mu.Unlock()
	w.log.Warn("document event dropped", "reason", reason, "event", ev.Kind, "id", ev.ID)
	w.sink.MarkFailed()
}
