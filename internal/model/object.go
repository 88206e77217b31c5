package model

import (
	"github.com/go-gl/mathgl/mgl32"
)

type ObjectKind string

const (
	ObjectMesh          ObjectKind = "mesh"
	ObjectInstance      ObjectKind = "instance"
	ObjectLight         ObjectKind = "light"
	ObjectClippingPlane ObjectKind = "clipping_plane"
)

// MaterialSource says where an object takes its material from.
type MaterialSource string

const (
	MaterialFromObject MaterialSource = "object"
	MaterialFromLayer  MaterialSource = "layer"
	MaterialFromParent MaterialSource = "parent"
)

type ObjectAttributes struct {
	Name           string           `json:"name,omitempty" yaml:"name,omitempty"`
	Layer          ObjectID         `json:"layer" yaml:"layer"`
	Material       ObjectID         `json:"material" yaml:"material"`
	MaterialSource MaterialSource   `json:"material_source" yaml:"material_source"`
	Hidden         bool             `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	CastShadows    bool             `json:"cast_shadows" yaml:"cast_shadows"`
	ReceiveShadows bool             `json:"receive_shadows" yaml:"receive_shadows"`
	Mapping        []MappingChannel `json:"mapping,omitempty" yaml:"mapping,omitempty"`
}

// WriteHash covers everything except Name.
func (a ObjectAttributes) WriteHash(h *Hasher) {
	h.ID(a.Layer)
	h.ID(a.Material)
	h.String(string(a.MaterialSource))
	h.Bool(a.Hidden)
	h.Bool(a.CastShadows)
	h.Bool(a.ReceiveShadows)
	h.Int(len(a.Mapping))
	for _, m := range a.Mapping {
		m.WriteHash(h)
	}
}

// InstanceRef is the payload of a block reference object.
type InstanceRef struct {
	Definition ObjectID   `json:"definition" yaml:"definition"`
	Transform  mgl32.Mat4 `json:"transform" yaml:"transform"`
}

// Object is a document object. Exactly one of Mesh, Reference, Light or
// ClippingPlane is meaningful, selected by Kind.
type Object struct {
	ID            ObjectID         `json:"id" yaml:"id"`
	Kind          ObjectKind       `json:"kind" yaml:"kind"`
	Attributes    ObjectAttributes `json:"attributes" yaml:"attributes"`
	Mesh          []MeshPayload    `json:"mesh,omitempty" yaml:"mesh,omitempty"`
	Reference     *InstanceRef     `json:"reference,omitempty" yaml:"reference,omitempty"`
	Light         *Light           `json:"light,omitempty" yaml:"light,omitempty"`
	ClippingPlane *ClippingPlane   `json:"clipping_plane,omitempty" yaml:"clipping_plane,omitempty"`
	InDefinition  bool             `json:"in_definition,omitempty" yaml:"in_definition,omitempty"`
}

type Layer struct {
	ID       ObjectID `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Hidden   bool     `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Material ObjectID `json:"material" yaml:"material"`
}

// Definition is a block definition: a named group of objects placed by
// instance references.
type Definition struct {
	ID      ObjectID   `json:"id" yaml:"id"`
	Name    string     `json:"name" yaml:"name"`
	Objects []ObjectID `json:"objects" yaml:"objects"`
}

// DynamicObjectTransform is a transient transform applied to a top-level
// object during direct manipulation. It never enters the caches.
type DynamicObjectTransform struct {
	Object    ObjectID   `json:"object"`
	Transform mgl32.Mat4 `json:"transform"`
}

func (DynamicObjectTransform) Kind() Kind { return KindDynamicObjectTransform }

// IsZeroMat4 reports whether m has never been set.
func IsZeroMat4(m mgl32.Mat4) bool { return m == mgl32.Mat4{} }

// OrIdentity returns the identity for an unset matrix.
func OrIdentity(m mgl32.Mat4) mgl32.Mat4 {
	if IsZeroMat4(m) {
		return mgl32.Ident4()
	}
	return m
}
