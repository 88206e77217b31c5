package document

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"scenequeue/internal/model"
)

var ErrNotFound = errors.New("not found")

type state struct {
	objects      map[model.ObjectID]model.Object
	order        []model.ObjectID
	definitions  map[model.ObjectID]model.Definition
	layers       map[model.ObjectID]model.Layer
	materials    map[model.ObjectID]model.Material
	textures     map[model.ObjectID]model.Texture
	environments map[model.ObjectID]model.Environment
	views        map[model.ObjectID]model.View
	activeView   model.ObjectID
	settings     model.Settings
}

func newState() state {
	return state{
		objects:      map[model.ObjectID]model.Object{},
		definitions:  map[model.ObjectID]model.Definition{},
		layers:       map[model.ObjectID]model.Layer{},
		materials:    map[model.ObjectID]model.Material{},
		textures:     map[model.ObjectID]model.Texture{},
		environments: map[model.ObjectID]model.Environment{},
		views:        map[model.ObjectID]model.View{},
		settings:     model.Settings{Environments: map[model.EnvironmentUsage]model.ObjectID{}},
	}
}

type drag struct {
	transform *mgl32.Mat4
	light     *model.Light
	clip      *model.ClippingPlane
}

// Memory is an in-memory Document. It is safe for concurrent use; events are
// delivered on the mutating goroutine after the document lock is released.
type Memory struct {
	mu    sync.RWMutex
	st    state
	drags map[model.ObjectID]drag

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// NewMemory builds a document from a snapshot. A nil snapshot yields an empty
// document.
func NewMemory(snap *Snapshot) *Memory {
	m := &Memory{
		st:    newState(),
		drags: map[model.ObjectID]drag{},
		subs:  map[int]func(Event){},
	}
	if snap != nil {
		m.st = snap.state()
	}
	return m
}

func (m *Memory) Subscribe(fn func(Event)) (cancel func()) {
	if m == nil || fn == nil {
		return func() {}
	}
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
		})
	}
}

func (m *Memory) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	m.subMu.Lock()
	ids := slices.Sorted(maps.Keys(m.subs))
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.subMu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// Reads.

func (m *Memory) Objects() []model.Object {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Object, 0, len(m.st.order))
	for _, id := range m.st.order {
		out = append(out, m.st.objects[id])
	}
	return out
}

func (m *Memory) Object(id model.ObjectID) (model.Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.st.objects[id]
	return obj, ok
}

func (m *Memory) Definition(id model.ObjectID) (model.Definition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.st.definitions[id]
	return d, ok
}

func (m *Memory) Layer(id model.ObjectID) (model.Layer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.st.layers[id]
	return l, ok
}

func (m *Memory) Material(id model.ObjectID) (model.Material, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mat, ok := m.st.materials[id]
	return mat, ok
}

func (m *Memory) Texture(id model.ObjectID) (model.Texture, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.st.textures[id]
	return t, ok
}

func (m *Memory) Environment(id model.ObjectID) (model.Environment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.st.environments[id]
	return e, ok
}

func (m *Memory) Settings() model.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.st.settings
	s.Environments = maps.Clone(s.Environments)
	return s
}

func (m *Memory) View(id model.ObjectID) (model.View, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.st.views[id]
	return v, ok
}

func (m *Memory) ActiveView() (model.View, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.st.views[m.st.activeView]
	return v, ok
}

// Update brackets.

func (m *Memory) BeginUpdates() { m.emit(Event{Kind: EventBeginUpdates}) }
func (m *Memory) EndUpdates()   { m.emit(Event{Kind: EventEndUpdates}) }

// Objects.

func normalizeObject(obj model.Object) model.Object {
	if obj.Attributes.MaterialSource == "" {
		obj.Attributes.MaterialSource = model.MaterialFromLayer
	}
	if len(obj.Attributes.Mapping) > 0 {
		mapping := slices.Clone(obj.Attributes.Mapping)
		for i := range mapping {
			mapping[i].Transform = model.OrIdentity(mapping[i].Transform)
		}
		obj.Attributes.Mapping = mapping
	}
	if obj.Reference != nil {
		ref := *obj.Reference
		ref.Transform = model.OrIdentity(ref.Transform)
		obj.Reference = &ref
	}
	if obj.Light != nil {
		l := *obj.Light
		l.ID = obj.ID
		obj.Light = &l
	}
	if obj.ClippingPlane != nil {
		cp := *obj.ClippingPlane
		cp.ID = obj.ID
		obj.ClippingPlane = &cp
	}
	return obj
}

// AddObject adds a top-level object. Block members are added with
// SetDefinition instead.
func (m *Memory) AddObject(obj model.Object) error {
	if m == nil {
		return fmt.Errorf("document is nil")
	}
	if obj.ID == uuid.Nil {
		return fmt.Errorf("object id is required")
	}
	obj = normalizeObject(obj)
	obj.InDefinition = false

	m.mu.Lock()
	if _, ok := m.st.objects[obj.ID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("object %s already exists", obj.ID)
	}
	m.st.objects[obj.ID] = obj
	m.st.order = append(m.st.order, obj.ID)
	m.mu.Unlock()

	m.emit(Event{Kind: EventObjectAdded, ID: obj.ID, ObjectKind: obj.Kind})
	return nil
}

// UpdateObject replaces an existing object. Editing a block member reports
// every definition that lists it as modified.
func (m *Memory) UpdateObject(obj model.Object) error {
	if m == nil {
		return fmt.Errorf("document is nil")
	}
	obj = normalizeObject(obj)

	m.mu.Lock()
	prev, ok := m.st.objects[obj.ID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("object %s: %w", obj.ID, ErrNotFound)
	}
	obj.InDefinition = prev.InDefinition
	m.st.objects[obj.ID] = obj
	var events []Event
	if obj.InDefinition {
		for _, defID := range m.definitionsContaining(obj.ID) {
			events = append(events, Event{Kind: EventDefinitionModified, ID: defID})
		}
	} else {
		events = append(events, Event{Kind: EventObjectModified, ID: obj.ID, ObjectKind: obj.Kind})
	}
	m.mu.Unlock()

	m.emit(events...)
	return nil
}

func (m *Memory) DeleteObject(id model.ObjectID) error {
	if m == nil {
		return fmt.Errorf("document is nil")
	}
	m.mu.Lock()
	prev, ok := m.st.objects[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("object %s: %w", id, ErrNotFound)
	}
	delete(m.st.objects, id)
	delete(m.drags, id)
	var events []Event
	if prev.InDefinition {
		for _, defID := range m.definitionsContaining(id) {
			def := m.st.definitions[defID]
			def.Objects = slices.DeleteFunc(slices.Clone(def.Objects), func(o model.ObjectID) bool { return o == id })
			m.st.definitions[defID] = def
			events = append(events, Event{Kind: EventDefinitionModified, ID: defID})
		}
	} else {
		m.st.order = slices.DeleteFunc(m.st.order, func(o model.ObjectID) bool { return o == id })
		events = append(events, Event{Kind: EventObjectDeleted, ID: id, ObjectKind: prev.Kind})
	}
	m.mu.Unlock()

	m.emit(events...)
	return nil
}

// definitionsContaining must be called with m.mu held.
func (m *Memory) definitionsContaining(id model.ObjectID) []model.ObjectID {
	var out []model.ObjectID
	for defID, def := range m.st.definitions {
		if slices.Contains(def.Objects, id) {
			out = append(out, defID)
		}
	}
	slices.SortFunc(out, model.CompareIDs)
	return out
}

// SetDefinition creates or replaces a block definition. Members are stored as
// block-only objects; ids already in the document may be listed in
// def.Objects without being passed again.
func (m *Memory) SetDefinition(def model.Definition, members ...model.Object) error {
	if m == nil {
		return fmt.Errorf("document is nil")
	}
	if def.ID == uuid.Nil {
		return fmt.Errorf("definition id is required")
	}
	def.Objects = slices.Clone(def.Objects)

	m.mu.Lock()
	for _, obj := range members {
		if obj.ID == uuid.Nil {
			m.mu.Unlock()
			return fmt.Errorf("definition %s: member id is required", def.ID)
		}
		if prev, ok := m.st.objects[obj.ID]; ok && !prev.InDefinition {
			m.mu.Unlock()
			return fmt.Errorf("definition %s: object %s is a top-level object", def.ID, obj.ID)
		}
		obj = normalizeObject(obj)
		obj.InDefinition = true
		m.st.objects[obj.ID] = obj
		if !slices.Contains(def.Objects, obj.ID) {
			def.Objects = append(def.Objects, obj.ID)
		}
	}
	m.st.definitions[def.ID] = def
	m.mu.Unlock()

	m.emit(Event{Kind: EventDefinitionModified, ID: def.ID})
	return nil
}

// DeleteDefinition removes a definition and the members no other definition
// lists. References to it stay in the document and render nothing.
func (m *Memory) DeleteDefinition(id model.ObjectID) error {
	if m == nil {
		return fmt.Errorf("document is nil")
	}
	m.mu.Lock()
	def, ok := m.st.definitions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("definition %s: %w", id, ErrNotFound)
	}
	delete(m.st.definitions, id)
	for _, member := range def.Objects {
		if obj, ok := m.st.objects[member]; ok && obj.InDefinition && len(m.definitionsContaining(member)) == 0 {
			delete(m.st.objects, member)
		}
	}
	m.mu.Unlock()

	m.emit(Event{Kind: EventDefinitionModified, ID: id})
	return nil
}

// Tables.

func (m *Memory) SetLayer(l model.Layer) error {
	if l.ID == uuid.Nil {
		return fmt.Errorf("layer id is required")
	}
	m.mu.Lock()
	m.st.layers[l.ID] = l
	m.mu.Unlock()
	m.emit(Event{Kind: EventLayerModified, ID: l.ID})
	return nil
}

func (m *Memory) SetMaterial(mat model.Material) error {
	if mat.ID == uuid.Nil {
		return fmt.Errorf("material id is required")
	}
	mat.Textures = slices.Clone(mat.Textures)
	m.mu.Lock()
	m.st.materials[mat.ID] = mat
	m.mu.Unlock()
	m.emit(Event{Kind: EventMaterialModified, ID: mat.ID})
	return nil
}

func (m *Memory) DeleteMaterial(id model.ObjectID) error {
	m.mu.Lock()
	if _, ok := m.st.materials[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("material %s: %w", id, ErrNotFound)
	}
	delete(m.st.materials, id)
	m.mu.Unlock()
	m.emit(Event{Kind: EventMaterialModified, ID: id})
	return nil
}

func (m *Memory) SetTexture(t model.Texture) error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("texture id is required")
	}
	m.mu.Lock()
	m.st.textures[t.ID] = t
	m.mu.Unlock()
	m.emit(Event{Kind: EventTextureModified, ID: t.ID})
	return nil
}

func (m *Memory) DeleteTexture(id model.ObjectID) error {
	m.mu.Lock()
	if _, ok := m.st.textures[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("texture %s: %w", id, ErrNotFound)
	}
	delete(m.st.textures, id)
	m.mu.Unlock()
	m.emit(Event{Kind: EventTextureModified, ID: id})
	return nil
}

func (m *Memory) SetEnvironment(e model.Environment) error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("environment id is required")
	}
	m.mu.Lock()
	m.st.environments[e.ID] = e
	m.mu.Unlock()
	m.emit(Event{Kind: EventEnvironmentModified, ID: e.ID})
	return nil
}

func (m *Memory) DeleteEnvironment(id model.ObjectID) error {
	m.mu.Lock()
	if _, ok := m.st.environments[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("environment %s: %w", id, ErrNotFound)
	}
	delete(m.st.environments, id)
	m.mu.Unlock()
	m.emit(Event{Kind: EventEnvironmentModified, ID: id})
	return nil
}

// SetEnvironmentFor assigns an environment to a usage channel. uuid.Nil
// clears the assignment.
func (m *Memory) SetEnvironmentFor(usage model.EnvironmentUsage, id model.ObjectID) {
	m.mu.Lock()
	if id == uuid.Nil {
		delete(m.st.settings.Environments, usage)
	} else {
		m.st.settings.Environments[usage] = id
	}
	m.mu.Unlock()
	m.emit(Event{Kind: EventSettingsModified, Setting: model.KindEnvironment, Usage: usage})
}

// Settings.

func (m *Memory) setSetting(kind model.Kind, apply func(s *model.Settings)) {
	m.mu.Lock()
	apply(&m.st.settings)
	m.mu.Unlock()
	m.emit(Event{Kind: EventSettingsModified, Setting: kind})
}

func (m *Memory) SetSun(v model.Sun) {
	m.setSetting(model.KindSun, func(s *model.Settings) { s.Sun = v })
}

func (m *Memory) SetSkylight(v model.Skylight) {
	m.setSetting(model.KindSkylight, func(s *model.Settings) { s.Skylight = v })
}

func (m *Memory) SetGroundPlane(v model.GroundPlane) {
	m.setSetting(model.KindGroundPlane, func(s *model.Settings) { s.GroundPlane = v })
}

func (m *Memory) SetLinearWorkflow(v model.LinearWorkflow) {
	m.setSetting(model.KindLinearWorkflow, func(s *model.Settings) { s.LinearWorkflow = v })
}

func (m *Memory) SetRenderSettings(v model.RenderSettings) {
	m.setSetting(model.KindRenderSettings, func(s *model.Settings) { s.RenderSettings = v })
}

func (m *Memory) SetDisplayAttributes(v model.DisplayAttributes) {
	m.setSetting(model.KindDisplayAttributes, func(s *model.Settings) { s.DisplayAttributes = v })
}

// Views.

func (m *Memory) SetView(v model.View) error {
	if v.ID == uuid.Nil {
		return fmt.Errorf("view id is required")
	}
	m.mu.Lock()
	m.st.views[v.ID] = v
	if m.st.activeView == uuid.Nil {
		m.st.activeView = v.ID
	}
	m.mu.Unlock()
	m.emit(Event{Kind: EventViewModified, ID: v.ID})
	return nil
}

func (m *Memory) SetActiveView(id model.ObjectID) error {
	m.mu.Lock()
	if _, ok := m.st.views[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("view %s: %w", id, ErrNotFound)
	}
	m.st.activeView = id
	m.mu.Unlock()
	m.emit(Event{Kind: EventViewModified, ID: id})
	return nil
}

// Direct manipulation.

// DragObject reports a transient transform for a top-level object. The
// document is not changed until EndDrag.
func (m *Memory) DragObject(id model.ObjectID, xform mgl32.Mat4) error {
	m.mu.Lock()
	obj, ok := m.st.objects[id]
	if !ok || obj.InDefinition {
		m.mu.Unlock()
		return fmt.Errorf("top-level object %s: %w", id, ErrNotFound)
	}
	d := m.drags[id]
	d.transform = &xform
	m.drags[id] = d
	m.mu.Unlock()

	m.emit(Event{Kind: EventDynamicTransform, ID: id, ObjectKind: obj.Kind, Transform: xform})
	return nil
}

// DragLight reports a transient light state.
func (m *Memory) DragLight(id model.ObjectID, l model.Light) error {
	m.mu.Lock()
	obj, ok := m.st.objects[id]
	if !ok || obj.Kind != model.ObjectLight {
		m.mu.Unlock()
		return fmt.Errorf("light %s: %w", id, ErrNotFound)
	}
	l.ID = id
	d := m.drags[id]
	d.light = &l
	m.drags[id] = d
	m.mu.Unlock()

	m.emit(Event{Kind: EventDynamicLight, ID: id, ObjectKind: model.ObjectLight, Light: &l})
	return nil
}

// DragClippingPlane reports a transient clipping plane state.
func (m *Memory) DragClippingPlane(id model.ObjectID, cp model.ClippingPlane) error {
	m.mu.Lock()
	obj, ok := m.st.objects[id]
	if !ok || obj.Kind != model.ObjectClippingPlane {
		m.mu.Unlock()
		return fmt.Errorf("clipping plane %s: %w", id, ErrNotFound)
	}
	cp.ID = id
	d := m.drags[id]
	d.clip = &cp
	m.drags[id] = d
	m.mu.Unlock()

	m.emit(Event{Kind: EventDynamicClippingPlane, ID: id, ObjectKind: model.ObjectClippingPlane, ClippingPlane: &cp})
	return nil
}

// EndDrag commits the last dragged state of an object as a normal edit. It
// is a no-op when the object is not being dragged.
func (m *Memory) EndDrag(id model.ObjectID) error {
	m.mu.Lock()
	d, dragging := m.drags[id]
	delete(m.drags, id)
	obj, ok := m.st.objects[id]
	if !dragging {
		m.mu.Unlock()
		return nil
	}
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("object %s: %w", id, ErrNotFound)
	}
	if d.transform != nil {
		obj = TransformObject(obj, *d.transform)
	}
	if d.light != nil {
		l := *d.light
		obj.Light = &l
	}
	if d.clip != nil {
		cp := *d.clip
		obj.ClippingPlane = &cp
	}
	m.st.objects[id] = obj
	m.mu.Unlock()

	m.emit(Event{Kind: EventObjectModified, ID: id, ObjectKind: obj.Kind})
	return nil
}
