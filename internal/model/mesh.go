package model

import (
	"cogentcore.org/core/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// MeshPayload is tessellated geometry in the owning object's space.
type MeshPayload struct {
	Vertices []math32.Vector3 `json:"vertices" yaml:"vertices"`
	Normals  []math32.Vector3 `json:"normals,omitempty" yaml:"normals,omitempty"`
	UVs      []math32.Vector2 `json:"uvs,omitempty" yaml:"uvs,omitempty"`
	Indices  []uint32         `json:"indices" yaml:"indices"`
}

func (p MeshPayload) WriteHash(h *Hasher) {
	h.String("mesh")
	h.Int(len(p.Vertices))
	for _, v := range p.Vertices {
		h.Vector3(v)
	}
	h.Int(len(p.Normals))
	for _, n := range p.Normals {
		h.Vector3(n)
	}
	h.Int(len(p.UVs))
	for _, uv := range p.UVs {
		h.Vector2(uv)
	}
	h.Int(len(p.Indices))
	for _, i := range p.Indices {
		h.Uint32(i)
	}
}

// Bounds returns the axis-aligned box around the vertices, or the zero box
// for an empty payload.
func (p MeshPayload) Bounds() math32.Box3 {
	if len(p.Vertices) == 0 {
		return math32.Box3{}
	}
	b := math32.B3Empty()
	for _, v := range p.Vertices {
		b.ExpandByPoint(v)
	}
	return b
}

// MappingChannel is a texture mapping assigned to a channel id.
type MappingChannel struct {
	Channel   int        `json:"channel" yaml:"channel"`
	Kind      string     `json:"kind" yaml:"kind"`
	Transform mgl32.Mat4 `json:"transform" yaml:"transform"`
}

func (m MappingChannel) WriteHash(h *Hasher) {
	h.Int(m.Channel)
	h.String(m.Kind)
	h.Mat4(m.Transform)
}

// Mesh is a cached, hash-addressed mesh. Object is the document object whose
// tessellation first produced it.
type Mesh struct {
	ID      GeometryID       `json:"id"`
	Object  ObjectID         `json:"object"`
	Payload MeshPayload      `json:"payload"`
	Mapping []MappingChannel `json:"mapping,omitempty"`
	Bounds  math32.Box3      `json:"bounds"`
}

// AncestryLevel is one block reference between a top-level object and a leaf.
type AncestryLevel struct {
	Reference  ObjectID         `json:"reference"`
	Definition ObjectID         `json:"definition"`
	Attributes ObjectAttributes `json:"attributes"`
	Transform  mgl32.Mat4       `json:"transform"`
}

// MeshInstance places a cached mesh in the scene. Ancestry is ordered root
// first, and Transform is the product of the per-level transforms in that
// order.
type MeshInstance struct {
	ID         InstanceID       `json:"id"`
	Mesh       GeometryID       `json:"mesh"`
	Object     ObjectID         `json:"object"`
	Transform  mgl32.Mat4       `json:"transform"`
	Material   ContentID        `json:"material"`
	// Mapping overrides the mesh's own mapping channels. It is set only when
	// a block reference in the ancestry carries a mapping.
	Mapping    []MappingChannel `json:"mapping,omitempty"`
	Attributes ObjectAttributes `json:"attributes"`
	Ancestry   []AncestryLevel  `json:"ancestry,omitempty"`
}

func (mi MeshInstance) WriteHash(h *Hasher) {
	h.Uint32(uint32(mi.Mesh))
	h.ID(mi.Object)
	h.Mat4(mi.Transform)
	h.Uint32(uint32(mi.Material))
	h.Int(len(mi.Mapping))
	for _, m := range mi.Mapping {
		m.WriteHash(h)
	}
	mi.Attributes.WriteHash(h)
	h.Int(len(mi.Ancestry))
	for _, lvl := range mi.Ancestry {
		h.ID(lvl.Reference)
		h.ID(lvl.Definition)
		lvl.Attributes.WriteHash(h)
		h.Mat4(lvl.Transform)
	}
}

// Root returns the top-level object of the placement.
func (mi MeshInstance) Root() ObjectID {
	if len(mi.Ancestry) > 0 {
		return mi.Ancestry[0].Reference
	}
	return mi.Object
}

// ComposeAncestry multiplies the per-level transforms root first.
func ComposeAncestry(levels []AncestryLevel) mgl32.Mat4 {
	m := mgl32.Ident4()
	for _, lvl := range levels {
		m = m.Mul4(OrIdentity(lvl.Transform))
	}
	return m
}
