package document

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"scenequeue/internal/model"
)

type recorder struct {
	events []Event
}

func (r *recorder) on(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestMemory_ObjectEvents(t *testing.T) {
	doc := NewMemory(nil)
	rec := &recorder{}
	cancel := doc.Subscribe(rec.on)

	id := uuid.New()
	if err := doc.AddObject(model.Object{ID: id, Kind: model.ObjectMesh}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := doc.AddObject(model.Object{ID: id, Kind: model.ObjectMesh}); err == nil {
		t.Fatal("expected duplicate add to fail")
	}
	if err := doc.UpdateObject(model.Object{ID: id, Kind: model.ObjectMesh, Attributes: model.ObjectAttributes{Hidden: true}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := doc.DeleteObject(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := doc.DeleteObject(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	want := []EventKind{EventObjectAdded, EventObjectModified, EventObjectDeleted}
	got := rec.kinds()
	if len(got) != len(want) {
		t.Fatalf("events=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: want %s got %s", i, want[i], got[i])
		}
	}
	if rec.events[2].ObjectKind != model.ObjectMesh {
		t.Fatalf("delete event lost object kind: %+v", rec.events[2])
	}

	cancel()
	_ = doc.AddObject(model.Object{ID: uuid.New(), Kind: model.ObjectMesh})
	if len(rec.events) != 3 {
		t.Fatalf("expected no events after cancel, got %d", len(rec.events))
	}
}

func TestMemory_NormalizesObjects(t *testing.T) {
	doc := NewMemory(nil)
	ref := uuid.New()
	light := uuid.New()
	_ = doc.AddObject(model.Object{ID: ref, Kind: model.ObjectInstance, Reference: &model.InstanceRef{Definition: uuid.New()}})
	_ = doc.AddObject(model.Object{ID: light, Kind: model.ObjectLight, Light: &model.Light{Kind: model.LightPoint}})

	obj, _ := doc.Object(ref)
	if obj.Reference.Transform != mgl32.Ident4() {
		t.Fatalf("expected identity transform, got %v", obj.Reference.Transform)
	}
	if obj.Attributes.MaterialSource != model.MaterialFromLayer {
		t.Fatalf("expected layer material source, got %q", obj.Attributes.MaterialSource)
	}
	l, _ := doc.Object(light)
	if l.Light.ID != light {
		t.Fatalf("light id not set")
	}
}

func TestMemory_DefinitionMembers(t *testing.T) {
	doc := NewMemory(nil)
	rec := &recorder{}
	doc.Subscribe(rec.on)

	defID, member := uuid.New(), uuid.New()
	if err := doc.SetDefinition(model.Definition{ID: defID, Name: "chair"}, model.Object{ID: member, Kind: model.ObjectMesh}); err != nil {
		t.Fatalf("set definition: %v", err)
	}
	if len(doc.Objects()) != 0 {
		t.Fatalf("block members must not be top-level")
	}
	def, ok := doc.Definition(defID)
	if !ok || len(def.Objects) != 1 || def.Objects[0] != member {
		t.Fatalf("unexpected definition: %+v", def)
	}

	if err := doc.UpdateObject(model.Object{ID: member, Kind: model.ObjectMesh, Attributes: model.ObjectAttributes{CastShadows: true}}); err != nil {
		t.Fatalf("update member: %v", err)
	}
	last := rec.events[len(rec.events)-1]
	if last.Kind != EventDefinitionModified || last.ID != defID {
		t.Fatalf("expected definition event, got %+v", last)
	}

	if err := doc.DeleteDefinition(defID); err != nil {
		t.Fatalf("delete definition: %v", err)
	}
	if _, ok := doc.Object(member); ok {
		t.Fatal("orphaned member should be removed")
	}
}

func TestMemory_DragAndCommit(t *testing.T) {
	doc := NewMemory(nil)
	rec := &recorder{}
	doc.Subscribe(rec.on)

	ref := uuid.New()
	_ = doc.AddObject(model.Object{ID: ref, Kind: model.ObjectInstance, Reference: &model.InstanceRef{Definition: uuid.New()}})
	rec.events = nil

	doc.BeginUpdates()
	for i := 1; i <= 3; i++ {
		if err := doc.DragObject(ref, mgl32.Translate3D(float32(i), 0, 0)); err != nil {
			t.Fatalf("drag: %v", err)
		}
	}
	obj, _ := doc.Object(ref)
	if obj.Reference.Transform != mgl32.Ident4() {
		t.Fatal("drag must not change the document")
	}
	if err := doc.EndDrag(ref); err != nil {
		t.Fatalf("end drag: %v", err)
	}
	doc.EndUpdates()

	obj, _ = doc.Object(ref)
	if obj.Reference.Transform != mgl32.Translate3D(3, 0, 0) {
		t.Fatalf("unexpected committed transform %v", obj.Reference.Transform)
	}
	want := []EventKind{EventBeginUpdates, EventDynamicTransform, EventDynamicTransform, EventDynamicTransform, EventObjectModified, EventEndUpdates}
	got := rec.kinds()
	if len(got) != len(want) {
		t.Fatalf("events=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: want %s got %s", i, want[i], got[i])
		}
	}

	if err := doc.EndDrag(ref); err != nil {
		t.Fatalf("end drag without drag: %v", err)
	}
}

func TestMemory_Settings(t *testing.T) {
	doc := NewMemory(nil)
	rec := &recorder{}
	doc.Subscribe(rec.on)

	env := uuid.New()
	_ = doc.SetEnvironment(model.Environment{ID: env, Intensity: 1})
	doc.SetEnvironmentFor(model.UsageBackground, env)
	doc.SetSun(model.Sun{Enabled: true, Altitude: 45})

	s := doc.Settings()
	if s.Environments[model.UsageBackground] != env || !s.Sun.Enabled {
		t.Fatalf("unexpected settings: %+v", s)
	}
	ev := rec.events[1]
	if ev.Kind != EventSettingsModified || ev.Setting != model.KindEnvironment || ev.Usage != model.UsageBackground {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if rec.events[2].Setting != model.KindSun {
		t.Fatalf("unexpected event: %+v", rec.events[2])
	}
}
