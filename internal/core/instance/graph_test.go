package instance

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenequeue/internal/model"
)

type fakeDoc struct {
	objects map[model.ObjectID]model.Object
	defs    map[model.ObjectID]model.Definition
}

func newFakeDoc() *fakeDoc {
	return &fakeDoc{objects: map[model.ObjectID]model.Object{}, defs: map[model.ObjectID]model.Definition{}}
}

func (d *fakeDoc) Object(id model.ObjectID) (model.Object, bool) {
	o, ok := d.objects[id]
	return o, ok
}

func (d *fakeDoc) Definition(id model.ObjectID) (model.Definition, bool) {
	def, ok := d.defs[id]
	return def, ok
}

func (d *fakeDoc) mesh(inDef bool) model.ObjectID {
	id := uuid.New()
	d.objects[id] = model.Object{ID: id, Kind: model.ObjectMesh, InDefinition: inDef}
	return id
}

func (d *fakeDoc) ref(def model.ObjectID, xform mgl32.Mat4, inDef bool) model.ObjectID {
	id := uuid.New()
	d.objects[id] = model.Object{
		ID:           id,
		Kind:         model.ObjectInstance,
		Reference:    &model.InstanceRef{Definition: def, Transform: xform},
		InDefinition: inDef,
	}
	return id
}

func (d *fakeDoc) define(members ...model.ObjectID) model.ObjectID {
	id := uuid.New()
	d.defs[id] = model.Definition{ID: id, Objects: members}
	return id
}

func TestFlatten_TopLevelMesh(t *testing.T) {
	doc := newFakeDoc()
	m := doc.mesh(false)
	g := New(doc, nil)

	out := g.Flatten(m)
	require.Len(t, out, 1)
	assert.Equal(t, m, out[0].Root)
	assert.Empty(t, out[0].Ancestry)
	assert.Equal(t, mgl32.Ident4(), out[0].Transform)
}

func TestFlatten_NestedComposesRootFirst(t *testing.T) {
	doc := newFakeDoc()
	leaf := doc.mesh(true)
	inner := doc.define(leaf)
	innerRef := doc.ref(inner, mgl32.HomogRotate3DZ(mgl32.DegToRad(90)), true)
	outer := doc.define(innerRef)
	root := doc.ref(outer, mgl32.Translate3D(10, 0, 0), false)

	g := New(doc, nil)
	out := g.Flatten(root)
	require.Len(t, out, 1)

	p := out[0]
	require.Len(t, p.Ancestry, 2)
	assert.Equal(t, root, p.Ancestry[0].Reference)
	assert.Equal(t, outer, p.Ancestry[0].Definition)
	assert.Equal(t, innerRef, p.Ancestry[1].Reference)
	assert.Equal(t, leaf, p.Leaf.ID)

	want := mgl32.Translate3D(10, 0, 0).Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(90)))
	assert.True(t, p.Transform.ApproxEqualThreshold(want, 1e-5), "got %v", p.Transform)

	// (1,0,0) is rotated onto +Y first, then translated.
	pt := p.Transform.Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, 10, pt[0], 1e-5)
	assert.InDelta(t, 1, pt[1], 1e-5)

	assert.Equal(t, []model.ObjectID{root}, g.Users(inner))
	assert.Equal(t, []model.ObjectID{root}, g.Users(outer))
}

func TestFlatten_PlacementsInDefinitionOrder(t *testing.T) {
	doc := newFakeDoc()
	a, b, c := doc.mesh(true), doc.mesh(true), doc.mesh(true)
	def := doc.define(a, b, c)
	root := doc.ref(def, mgl32.Ident4(), false)

	out := New(doc, nil).Flatten(root)
	require.Len(t, out, 3)
	assert.Equal(t, a, out[0].Leaf.ID)
	assert.Equal(t, b, out[1].Leaf.ID)
	assert.Equal(t, c, out[2].Leaf.ID)
}

func TestFlatten_SameDefinitionTwiceIsNotACycle(t *testing.T) {
	doc := newFakeDoc()
	leaf := doc.mesh(true)
	inner := doc.define(leaf)
	r1 := doc.ref(inner, mgl32.Translate3D(1, 0, 0), true)
	r2 := doc.ref(inner, mgl32.Translate3D(2, 0, 0), true)
	outer := doc.define(r1, r2)
	root := doc.ref(outer, mgl32.Ident4(), false)

	g := New(doc, nil)
	out := g.Flatten(root)
	assert.Len(t, out, 2)
	assert.Zero(t, g.Cycles())
}

func TestFlatten_CycleIsTruncated(t *testing.T) {
	doc := newFakeDoc()
	leaf := doc.mesh(true)
	defID := uuid.New()
	self := doc.ref(defID, mgl32.Translate3D(1, 0, 0), true)
	doc.defs[defID] = model.Definition{ID: defID, Objects: []model.ObjectID{leaf, self}}
	root := doc.ref(defID, mgl32.Ident4(), false)

	g := New(doc, nil)
	out := g.Flatten(root)
	require.Len(t, out, 1, "the leaf is placed once, the self reference is dropped")
	assert.Equal(t, int64(1), g.Cycles())
}

func TestFlatten_MissingDefinition(t *testing.T) {
	doc := newFakeDoc()
	root := doc.ref(uuid.New(), mgl32.Ident4(), false)
	g := New(doc, nil)
	assert.Empty(t, g.Flatten(root))
	assert.Zero(t, g.Cycles())
}

func TestFlatten_ForgetsDeletedRoot(t *testing.T) {
	doc := newFakeDoc()
	def := doc.define(doc.mesh(true))
	root := doc.ref(def, mgl32.Ident4(), false)

	g := New(doc, nil)
	g.Flatten(root)
	require.NotEmpty(t, g.Users(def))

	delete(doc.objects, root)
	assert.Empty(t, g.Flatten(root))
	assert.Empty(t, g.Users(def))
}

func TestFlatten_TransformMatchesAncestry(t *testing.T) {
	doc := newFakeDoc()
	leaf := doc.mesh(true)
	prev := doc.define(leaf)
	for i := 0; i < 5; i++ {
		r := doc.ref(prev, mgl32.Translate3D(float32(i), 0, 0).Mul4(mgl32.Scale3D(2, 2, 2)), true)
		prev = doc.define(r)
	}
	root := doc.ref(prev, mgl32.HomogRotate3DY(0.3), false)

	out := New(doc, nil).Flatten(root)
	require.Len(t, out, 1)
	require.Len(t, out[0].Ancestry, 6)

	m := mgl32.Ident4()
	for _, lvl := range out[0].Ancestry {
		m = m.Mul4(lvl.Transform)
	}
	assert.True(t, out[0].Transform.ApproxEqualThreshold(m, 1e-4))
}
