package docwatch

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"scenequeue/internal/document"
	"scenequeue/internal/model"
)

type fakeSink struct {
	changes []Change
	calls   []string
	failed  int
	dynamic []model.DynamicObjectTransform
	lights  []model.Light
}

func (s *fakeSink) Enqueue(c Change)                         { s.changes = append(s.changes, c) }
func (s *fakeSink) MarkFailed()                              { s.failed++ }
func (s *fakeSink) NotifyBeginUpdates()                      { s.calls = append(s.calls, "begin") }
func (s *fakeSink) NotifyEndUpdates()                        { s.calls = append(s.calls, "end") }
func (s *fakeSink) DynamicLight(l model.Light)               { s.lights = append(s.lights, l) }
func (s *fakeSink) DynamicClippingPlane(model.ClippingPlane) {}
func (s *fakeSink) DynamicObjectTransform(t model.DynamicObjectTransform) {
	s.dynamic = append(s.dynamic, t)
}

func TestWatcher_ClassifiesObjects(t *testing.T) {
	doc := document.NewMemory(nil)
	sink := &fakeSink{}
	w := New(doc, sink, nil)
	w.Start()
	defer w.Stop()

	mesh, light, clip := uuid.New(), uuid.New(), uuid.New()
	doc.BeginUpdates()
	_ = doc.AddObject(model.Object{ID: mesh, Kind: model.ObjectMesh})
	_ = doc.AddObject(model.Object{ID: light, Kind: model.ObjectLight, Light: &model.Light{}})
	_ = doc.AddObject(model.Object{ID: clip, Kind: model.ObjectClippingPlane, ClippingPlane: &model.ClippingPlane{}})
	_ = doc.DeleteObject(mesh)
	doc.EndUpdates()

	want := []Change{
		{Kind: model.KindMeshInstance, ID: mesh, Op: OpAdd},
		{Kind: model.KindLight, ID: light, Op: OpAdd},
		{Kind: model.KindClippingPlane, ID: clip, Op: OpAdd},
		{Kind: model.KindMeshInstance, ID: mesh, Op: OpDelete},
	}
	if len(sink.changes) != len(want) {
		t.Fatalf("changes=%+v", sink.changes)
	}
	for i := range want {
		if sink.changes[i] != want[i] {
			t.Fatalf("change %d: want %+v got %+v", i, want[i], sink.changes[i])
		}
	}
	if len(sink.calls) != 2 || sink.calls[0] != "begin" || sink.calls[1] != "end" {
		t.Fatalf("expected one bracket, got %v", sink.calls)
	}
}

func TestWatcher_AutoBracketsLooseEdits(t *testing.T) {
	doc := document.NewMemory(nil)
	sink := &fakeSink{}
	w := New(doc, sink, nil)
	w.Start()
	defer w.Stop()

	_ = doc.SetMaterial(model.Material{ID: uuid.New()})
	doc.SetSun(model.Sun{Enabled: true})

	if len(sink.calls) != 4 {
		t.Fatalf("expected two brackets, got %v", sink.calls)
	}
	if sink.changes[1].Kind != model.KindSun {
		t.Fatalf("unexpected change %+v", sink.changes[1])
	}
}

func TestWatcher_NestedBrackets(t *testing.T) {
	sink := &fakeSink{}
	w := New(nil, sink, nil)
	w.Handle(document.Event{Kind: document.EventBeginUpdates})
	w.Handle(document.Event{Kind: document.EventBeginUpdates})
	w.Handle(document.Event{Kind: document.EventEndUpdates})
	w.Handle(document.Event{Kind: document.EventEndUpdates})
	w.Handle(document.Event{Kind: document.EventEndUpdates})

	if len(sink.calls) != 2 {
		t.Fatalf("expected outer bracket only, got %v", sink.calls)
	}
}

func TestWatcher_EnvironmentUsage(t *testing.T) {
	doc := document.NewMemory(nil)
	sink := &fakeSink{}
	w := New(doc, sink, nil)
	w.Start()
	defer w.Stop()

	doc.SetEnvironmentFor(model.UsageReflection, uuid.New())
	if len(sink.changes) != 1 {
		t.Fatalf("changes=%+v", sink.changes)
	}
	c := sink.changes[0]
	if c.Kind != model.KindEnvironment || c.Usage != model.UsageReflection || c.ID != uuid.Nil {
		t.Fatalf("unexpected change %+v", c)
	}
}

func TestWatcher_DynamicForwarded(t *testing.T) {
	doc := document.NewMemory(nil)
	sink := &fakeSink{}
	w := New(doc, sink, nil)
	w.Start()
	defer w.Stop()

	obj, light := uuid.New(), uuid.New()
	_ = doc.AddObject(model.Object{ID: obj, Kind: model.ObjectMesh})
	_ = doc.AddObject(model.Object{ID: light, Kind: model.ObjectLight, Light: &model.Light{}})
	sink.changes = nil

	doc.BeginUpdates()
	_ = doc.DragObject(obj, mgl32.Translate3D(1, 0, 0))
	_ = doc.DragLight(light, model.Light{Intensity: 2})
	doc.EndUpdates()

	if len(sink.changes) != 0 {
		t.Fatalf("dynamic edits must not enqueue, got %+v", sink.changes)
	}
	if len(sink.dynamic) != 1 || sink.dynamic[0].Object != obj {
		t.Fatalf("unexpected dynamic transforms %+v", sink.dynamic)
	}
	if len(sink.lights) != 1 || sink.lights[0].ID != light || sink.lights[0].Intensity != 2 {
		t.Fatalf("unexpected dynamic lights %+v", sink.lights)
	}
}

func TestWatcher_UnclassifiedMarksFailed(t *testing.T) {
	doc := document.NewMemory(nil)
	sink := &fakeSink{}
	w := New(doc, sink, nil)

	w.Handle(document.Event{Kind: document.EventObjectDeleted, ID: uuid.New()})
	w.Handle(document.Event{Kind: "bogus"})

	if sink.failed != 2 || w.Failures() != 2 {
		t.Fatalf("expected 2 failures, sink=%d watcher=%d", sink.failed, w.Failures())
	}
	if len(sink.changes) != 0 {
		t.Fatalf("nothing should be enqueued, got %+v", sink.changes)
	}
}
