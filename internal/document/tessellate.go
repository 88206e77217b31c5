package document

import (
	"fmt"

	"cogentcore.org/core/math32"
	"github.com/go-gl/mathgl/mgl32"

	"scenequeue/internal/model"
)

// PassThrough tessellates mesh objects by returning the payloads they carry.
var PassThrough Tessellator = TessellatorFunc(func(obj model.Object) ([]model.MeshPayload, error) {
	if obj.Kind != model.ObjectMesh {
		return nil, fmt.Errorf("object %s is not a mesh (kind %q)", obj.ID, obj.Kind)
	}
	for i, p := range obj.Mesh {
		if len(p.Indices)%3 != 0 {
			return nil, fmt.Errorf("object %s mesh %d: index count %d is not a multiple of 3", obj.ID, i, len(p.Indices))
		}
		for _, idx := range p.Indices {
			if int(idx) >= len(p.Vertices) {
				return nil, fmt.Errorf("object %s mesh %d: index %d out of range", obj.ID, i, idx)
			}
		}
	}
	return obj.Mesh, nil
})

// TransformPayload applies m to the vertices and normals of p.
func TransformPayload(p model.MeshPayload, m mgl32.Mat4) model.MeshPayload {
	out := model.MeshPayload{
		Vertices: make([]math32.Vector3, len(p.Vertices)),
		UVs:      p.UVs,
		Indices:  p.Indices,
	}
	for i, v := range p.Vertices {
		t := m.Mul4x1(mgl32.Vec4{v.X, v.Y, v.Z, 1})
		out.Vertices[i] = math32.Vector3{X: t[0], Y: t[1], Z: t[2]}
	}
	if len(p.Normals) > 0 {
		nm := m.Mat3().Inv().Transpose()
		out.Normals = make([]math32.Vector3, len(p.Normals))
		for i, n := range p.Normals {
			t := nm.Mul3x1(mgl32.Vec3{n.X, n.Y, n.Z})
			if t.Len() > 0 {
				t = t.Normalize()
			}
			out.Normals[i] = math32.Vector3{X: t[0], Y: t[1], Z: t[2]}
		}
	}
	return out
}

// TransformObject applies a committed drag transform to a top-level object.
// Mesh geometry is rebaked, block references get the transform
// pre-multiplied, lights and clipping planes are moved.
func TransformObject(obj model.Object, m mgl32.Mat4) model.Object {
	switch obj.Kind {
	case model.ObjectMesh:
		meshes := make([]model.MeshPayload, len(obj.Mesh))
		for i, p := range obj.Mesh {
			meshes[i] = TransformPayload(p, m)
		}
		obj.Mesh = meshes
	case model.ObjectInstance:
		if obj.Reference != nil {
			ref := *obj.Reference
			ref.Transform = m.Mul4(model.OrIdentity(ref.Transform))
			obj.Reference = &ref
		}
	case model.ObjectLight:
		if obj.Light != nil {
			l := *obj.Light
			l.Position = m.Mul4x1(l.Position.Vec4(1)).Vec3()
			l.Direction = m.Mat3().Mul3x1(l.Direction)
			obj.Light = &l
		}
	case model.ObjectClippingPlane:
		if obj.ClippingPlane != nil {
			cp := *obj.ClippingPlane
			cp.Origin = m.Mul4x1(cp.Origin.Vec4(1)).Vec3()
			n := m.Mat3().Inv().Transpose().Mul3x1(cp.Normal)
			if n.Len() > 0 {
				n = n.Normalize()
			}
			cp.Normal = n
			obj.ClippingPlane = &cp
		}
	}
	return obj
}
