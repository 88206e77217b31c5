// Package document defines the modeling document the change queue observes,
// together with an in-memory implementation, a YAML snapshot format and a
// file-backed live document.
package document

import (
	"github.com/go-gl/mathgl/mgl32"

	"scenequeue/internal/model"
)

// Document is the source of truth for scene content. The queue only reads
// from it.
type Document interface {
	// Objects returns the top-level objects in document order. Objects that
	// only live inside block definitions are not included.
	Objects() []model.Object
	Object(id model.ObjectID) (model.Object, bool)
	Definition(id model.ObjectID) (model.Definition, bool)
	Layer(id model.ObjectID) (model.Layer, bool)
	Material(id model.ObjectID) (model.Material, bool)
	Texture(id model.ObjectID) (model.Texture, bool)
	Environment(id model.ObjectID) (model.Environment, bool)
	Settings() model.Settings
	View(id model.ObjectID) (model.View, bool)
	ActiveView() (model.View, bool)

	// Subscribe registers fn for edit events. Events are delivered
	// synchronously on the editing goroutine.
	Subscribe(fn func(Event)) (cancel func())
}

type EventKind string

const (
	EventBeginUpdates         EventKind = "begin_updates"
	EventEndUpdates           EventKind = "end_updates"
	EventObjectAdded          EventKind = "object_added"
	EventObjectModified       EventKind = "object_modified"
	EventObjectDeleted        EventKind = "object_deleted"
	EventDefinitionModified   EventKind = "definition_modified"
	EventLayerModified        EventKind = "layer_modified"
	EventMaterialModified     EventKind = "material_modified"
	EventTextureModified      EventKind = "texture_modified"
	EventEnvironmentModified  EventKind = "environment_modified"
	EventSettingsModified     EventKind = "settings_modified"
	EventViewModified         EventKind = "view_modified"
	EventDynamicTransform     EventKind = "dynamic_transform"
	EventDynamicLight         EventKind = "dynamic_light"
	EventDynamicClippingPlane EventKind = "dynamic_clipping_plane"
)

// Event describes one document edit.
type Event struct {
	Kind EventKind
	ID   model.ObjectID

	// ObjectKind is set for object events, including deletions.
	ObjectKind model.ObjectKind
	// Setting names the settings record for EventSettingsModified.
	Setting model.Kind
	// Usage is set when Setting is model.KindEnvironment.
	Usage model.EnvironmentUsage

	Transform     mgl32.Mat4
	Light         *model.Light
	ClippingPlane *model.ClippingPlane
}

// Tessellator turns a document object into render meshes.
type Tessellator interface {
	Tessellate(obj model.Object) ([]model.MeshPayload, error)
}

// TessellatorFunc adapts a function to Tessellator.
type TessellatorFunc func(obj model.Object) ([]model.MeshPayload, error)

func (f TessellatorFunc) Tessellate(obj model.Object) ([]model.MeshPayload, error) { return f(obj) }
