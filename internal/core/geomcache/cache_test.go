package geomcache

import (
	"testing"

	"cogentcore.org/core/math32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenequeue/internal/model"
)

func quad(size float32) model.MeshPayload {
	return model.MeshPayload{
		Vertices: []math32.Vector3{{}, {X: size}, {X: size, Y: size}, {Y: size}},
		Indices:  []uint32{0, 1, 2, 0, 2, 3},
	}
}

func TestPut_SharesIdenticalPayloads(t *testing.T) {
	c := New()
	a, b := uuid.New(), uuid.New()

	ra := c.Put(a, []model.MeshPayload{quad(1)}, nil)
	rb := c.Put(b, []model.MeshPayload{quad(1)}, nil)

	require.Len(t, ra.Added, 1)
	assert.Empty(t, rb.Added, "second owner reuses the cached mesh")
	assert.Equal(t, ra.IDs, rb.IDs)
	assert.Equal(t, 1, c.Len())
	assert.ElementsMatch(t, []model.ObjectID{a, b}, c.Owners(ra.IDs[0]))

	m, ok := c.Mesh(ra.IDs[0])
	require.True(t, ok)
	assert.Equal(t, a, m.Object)
	assert.Equal(t, float32(1), m.Bounds.Max.X)
	assert.Equal(t, float32(0), m.Bounds.Min.Y)
}

func TestPut_ReplacesOwnerMeshes(t *testing.T) {
	c := New()
	owner := uuid.New()
	first := c.Put(owner, []model.MeshPayload{quad(1)}, nil)
	second := c.Put(owner, []model.MeshPayload{quad(2)}, nil)

	require.Len(t, second.Added, 1)
	assert.Equal(t, first.IDs, second.Deleted)
	_, ok := c.Mesh(first.IDs[0])
	assert.False(t, ok)

	ids, ok := c.IDs(owner)
	require.True(t, ok)
	assert.Equal(t, second.IDs, ids)
}

func TestPut_MappingChangesID(t *testing.T) {
	mapping := []model.MappingChannel{{Channel: 1, Kind: "planar"}}
	assert.NotEqual(t, GeometryIDOf(quad(1), nil), GeometryIDOf(quad(1), mapping))
}

func TestRelease(t *testing.T) {
	c := New()
	a, b := uuid.New(), uuid.New()
	r := c.Put(a, []model.MeshPayload{quad(1), quad(1)}, nil)
	c.Put(b, []model.MeshPayload{quad(1)}, nil)

	assert.Empty(t, c.Release(a), "mesh still used by b")
	assert.Equal(t, []model.GeometryID{r.IDs[0]}, c.Release(b))
	assert.Zero(t, c.Len())

	_, ok := c.IDs(a)
	assert.False(t, ok)
}

func TestPut_EmptyPayloadsReleases(t *testing.T) {
	c := New()
	owner := uuid.New()
	r := c.Put(owner, []model.MeshPayload{quad(1)}, nil)
	empty := c.Put(owner, nil, nil)
	assert.Equal(t, r.IDs, empty.Deleted)
	_, ok := c.IDs(owner)
	assert.False(t, ok)
}
