package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"scenequeue/internal/model"
)

// Snapshot is the serialised form of a document.
type Snapshot struct {
	Layers       []model.Layer       `yaml:"layers,omitempty"`
	Materials    []model.Material    `yaml:"materials,omitempty"`
	Textures     []model.Texture     `yaml:"textures,omitempty"`
	Environments []model.Environment `yaml:"environments,omitempty"`
	Definitions  []DefinitionBlock   `yaml:"definitions,omitempty"`
	Objects      []model.Object      `yaml:"objects,omitempty"`
	Views        []model.View        `yaml:"views,omitempty"`
	ActiveView   model.ObjectID      `yaml:"active_view,omitempty"`
	Settings     model.Settings      `yaml:"settings"`
}

// DefinitionBlock is a block definition together with its member objects.
type DefinitionBlock struct {
	ID      model.ObjectID `yaml:"id"`
	Name    string         `yaml:"name,omitempty"`
	Members []model.Object `yaml:"members"`
}

func LoadSnapshot(path string) (*Snapshot, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	snap, err := ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

func ParseSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		if errors.Is(err, io.EOF) {
			return &snap, nil
		}
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	if err := snap.validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Snapshot) validate() error {
	seen := map[model.ObjectID]string{}
	check := func(kind string, id model.ObjectID) error {
		if id == uuid.Nil {
			return fmt.Errorf("%s id is required", kind)
		}
		if prev, ok := seen[id]; ok && prev == kind {
			return fmt.Errorf("duplicate %s id %s", kind, id)
		}
		seen[id] = kind
		return nil
	}
	for _, l := range s.Layers {
		if err := check("layer", l.ID); err != nil {
			return err
		}
	}
	for _, m := range s.Materials {
		if err := check("material", m.ID); err != nil {
			return err
		}
	}
	for _, t := range s.Textures {
		if err := check("texture", t.ID); err != nil {
			return err
		}
	}
	for _, e := range s.Environments {
		if err := check("environment", e.ID); err != nil {
			return err
		}
	}
	for _, d := range s.Definitions {
		if err := check("definition", d.ID); err != nil {
			return err
		}
		for _, obj := range d.Members {
			if err := check("object", obj.ID); err != nil {
				return err
			}
		}
	}
	for _, obj := range s.Objects {
		if err := check("object", obj.ID); err != nil {
			return err
		}
	}
	for _, v := range s.Views {
		if err := check("view", v.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Snapshot) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func SaveSnapshot(path string, s *Snapshot) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is required")
	}
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Snapshot) state() state {
	st := newState()
	for _, l := range s.Layers {
		st.layers[l.ID] = l
	}
	for _, m := range s.Materials {
		st.materials[m.ID] = m
	}
	for _, t := range s.Textures {
		st.textures[t.ID] = t
	}
	for _, e := range s.Environments {
		st.environments[e.ID] = e
	}
	for _, d := range s.Definitions {
		def := model.Definition{ID: d.ID, Name: d.Name}
		for _, obj := range d.Members {
			obj = normalizeObject(obj)
			obj.InDefinition = true
			st.objects[obj.ID] = obj
			def.Objects = append(def.Objects, obj.ID)
		}
		st.definitions[def.ID] = def
	}
	for _, obj := range s.Objects {
		obj = normalizeObject(obj)
		obj.InDefinition = false
		st.objects[obj.ID] = obj
		st.order = append(st.order, obj.ID)
	}
	for _, v := range s.Views {
		st.views[v.ID] = v
	}
	st.activeView = s.ActiveView
	if st.activeView == uuid.Nil && len(s.Views) > 0 {
		st.activeView = s.Views[0].ID
	}
	st.settings = s.Settings
	st.settings.Environments = maps.Clone(s.Settings.Environments)
	if st.settings.Environments == nil {
		st.settings.Environments = map[model.EnvironmentUsage]model.ObjectID{}
	}
	return st
}

func sortedValues[V any](m map[model.ObjectID]V) []V {
	keys := slices.SortedFunc(maps.Keys(m), model.CompareIDs)
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// Snapshot captures the current document.
func (m *Memory) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &Snapshot{
		Layers:       sortedValues(m.st.layers),
		Materials:    sortedValues(m.st.materials),
		Textures:     sortedValues(m.st.textures),
		Environments: sortedValues(m.st.environments),
		Views:        sortedValues(m.st.views),
		ActiveView:   m.st.activeView,
		Settings:     m.st.settings,
	}
	snap.Settings.Environments = maps.Clone(m.st.settings.Environments)
	for _, def := range sortedValues(m.st.definitions) {
		block := DefinitionBlock{ID: def.ID, Name: def.Name}
		for _, id := range def.Objects {
			if obj, ok := m.st.objects[id]; ok {
				obj.InDefinition = false
				block.Members = append(block.Members, obj)
			}
		}
		snap.Definitions = append(snap.Definitions, block)
	}
	for _, id := range m.st.order {
		snap.Objects = append(snap.Objects, m.st.objects[id])
	}
	return snap
}

// Apply replaces the document with snap and reports the difference as one
// bracketed batch of edits.
func (m *Memory) Apply(snap *Snapshot) {
	if m == nil || snap == nil {
		return
	}
	next := snap.state()

	m.mu.Lock()
	prev := m.st
	m.st = next
	m.drags = map[model.ObjectID]drag{}
	m.mu.Unlock()

	events := diffStates(prev, next)
	if len(events) == 0 {
		return
	}
	out := make([]Event, 0, len(events)+2)
	out = append(out, Event{Kind: EventBeginUpdates})
	out = append(out, events...)
	out = append(out, Event{Kind: EventEndUpdates})
	m.emit(out...)
}

func diffTable[V any](prev, next map[model.ObjectID]V, kind EventKind) []Event {
	ids := map[model.ObjectID]struct{}{}
	for id := range prev {
		ids[id] = struct{}{}
	}
	for id := range next {
		ids[id] = struct{}{}
	}
	var out []Event
	for _, id := range slices.SortedFunc(maps.Keys(ids), model.CompareIDs) {
		a, inPrev := prev[id]
		b, inNext := next[id]
		if inPrev != inNext || !reflect.DeepEqual(a, b) {
			out = append(out, Event{Kind: kind, ID: id})
		}
	}
	return out
}

func diffStates(prev, next state) []Event {
	var out []Event
	out = append(out, diffTable(prev.textures, next.textures, EventTextureModified)...)
	out = append(out, diffTable(prev.materials, next.materials, EventMaterialModified)...)
	out = append(out, diffTable(prev.environments, next.environments, EventEnvironmentModified)...)
	out = append(out, diffTable(prev.layers, next.layers, EventLayerModified)...)

	defIDs := map[model.ObjectID]struct{}{}
	for id := range prev.definitions {
		defIDs[id] = struct{}{}
	}
	for id := range next.definitions {
		defIDs[id] = struct{}{}
	}
	for _, id := range slices.SortedFunc(maps.Keys(defIDs), model.CompareIDs) {
		if !sameDefinition(prev, next, id) {
			out = append(out, Event{Kind: EventDefinitionModified, ID: id})
		}
	}

	for _, id := range prev.order {
		if obj, ok := next.objects[id]; !ok || obj.InDefinition {
			out = append(out, Event{Kind: EventObjectDeleted, ID: id, ObjectKind: prev.objects[id].Kind})
		}
	}
	for _, id := range next.order {
		b := next.objects[id]
		a, ok := prev.objects[id]
		switch {
		case !ok || a.InDefinition:
			out = append(out, Event{Kind: EventObjectAdded, ID: id, ObjectKind: b.Kind})
		case !reflect.DeepEqual(a, b):
			out = append(out, Event{Kind: EventObjectModified, ID: id, ObjectKind: b.Kind})
		}
	}

	ps, ns := prev.settings, next.settings
	settings := []struct {
		kind    model.Kind
		changed bool
	}{
		{model.KindSun, ps.Sun != ns.Sun},
		{model.KindSkylight, ps.Skylight != ns.Skylight},
		{model.KindGroundPlane, ps.GroundPlane != ns.GroundPlane},
		{model.KindLinearWorkflow, ps.LinearWorkflow != ns.LinearWorkflow},
		{model.KindRenderSettings, ps.RenderSettings != ns.RenderSettings},
		{model.KindDisplayAttributes, ps.DisplayAttributes != ns.DisplayAttributes},
	}
	for _, s := range settings {
		if s.changed {
			out = append(out, Event{Kind: EventSettingsModified, Setting: s.kind})
		}
	}
	for _, usage := range model.EnvironmentUsages {
		if ps.Environments[usage] != ns.Environments[usage] {
			out = append(out, Event{Kind: EventSettingsModified, Setting: model.KindEnvironment, Usage: usage})
		}
	}

	out = append(out, diffTable(prev.views, next.views, EventViewModified)...)
	if prev.activeView != next.activeView && next.activeView != uuid.Nil {
		out = append(out, Event{Kind: EventViewModified, ID: next.activeView})
	}
	return out
}

func sameDefinition(prev, next state, id model.ObjectID) bool {
	a, inPrev := prev.definitions[id]
	b, inNext := next.definitions[id]
	if inPrev != inNext || !reflect.DeepEqual(a, b) {
		return false
	}
	for _, member := range b.Objects {
		if !reflect.DeepEqual(prev.objects[member], next.objects[member]) {
			return false
		}
	}
	return true
}
