// Package geomcache stores tessellated meshes addressed by structural hash,
// independent of how many placements use them.
package geomcache

import (
	"maps"
	"slices"
	"sync"

	"scenequeue/internal/model"
)

type meshEntry struct {
	mesh   model.Mesh
	owners map[model.ObjectID]struct{}
}

// PutResult reports what a Put changed. IDs is parallel to the payloads
// passed in.
type PutResult struct {
	IDs     []model.GeometryID
	Added   []model.Mesh
	Deleted []model.GeometryID
}

type Cache struct {
	mu      sync.RWMutex
	meshes  map[model.GeometryID]*meshEntry
	byOwner map[model.ObjectID][]model.GeometryID
}

func New() *Cache {
	return &Cache{
		meshes:  map[model.GeometryID]*meshEntry{},
		byOwner: map[model.ObjectID][]model.GeometryID{},
	}
}

// GeometryIDOf hashes a payload together with its mapping channels.
func GeometryIDOf(p model.MeshPayload, mapping []model.MappingChannel) model.GeometryID {
	h := model.NewHasher()
	p.WriteHash(h)
	h.Int(len(mapping))
	for _, m := range mapping {
		m.WriteHash(h)
	}
	id := model.GeometryID(h.Sum32())
	if id == 0 {
		id = 1
	}
	return id
}

// Put replaces the meshes owned by owner. Meshes no other owner uses are
// removed and reported in Deleted; meshes seen for the first time are
// reported in Added.
func (c *Cache) Put(owner model.ObjectID, payloads []model.MeshPayload, mapping []model.MappingChannel) PutResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := PutResult{IDs: make([]model.GeometryID, 0, len(payloads))}
	for _, p := range payloads {
		id := GeometryIDOf(p, mapping)
		res.IDs = append(res.IDs, id)
		e, ok := c.meshes[id]
		if !ok {
			e = &meshEntry{
				mesh: model.Mesh{
					ID:      id,
					Object:  owner,
					Payload: p,
					Mapping: slices.Clone(mapping),
					Bounds:  p.Bounds(),
				},
				owners: map[model.ObjectID]struct{}{},
			}
			c.meshes[id] = e
			res.Added = append(res.Added, e.mesh)
		}
		e.owners[owner] = struct{}{}
	}

	for _, old := range c.byOwner[owner] {
		if slices.Contains(res.IDs, old) {
			continue
		}
		if c.unbind(owner, old) {
			res.Deleted = append(res.Deleted, old)
		}
	}
	if len(res.IDs) == 0 {
		delete(c.byOwner, owner)
	} else {
		c.byOwner[owner] = slices.Clone(res.IDs)
	}
	return res
}

// unbind reports whether the mesh was removed.
func (c *Cache) unbind(owner model.ObjectID, id model.GeometryID) bool {
	e, ok := c.meshes[id]
	if !ok {
		return false
	}
	delete(e.owners, owner)
	if len(e.owners) > 0 {
		return false
	}
	delete(c.meshes, id)
	return true
}

// Release drops every mesh binding of owner and returns the ids removed.
func (c *Cache) Release(owner model.ObjectID) []model.GeometryID {
	c.mu.Lock()
	defer c.mu.Unlock()

	var deleted []model.GeometryID
	seen := map[model.GeometryID]struct{}{}
	for _, id := range c.byOwner[owner] {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if c.unbind(owner, id) {
			deleted = append(deleted, id)
		}
	}
	delete(c.byOwner, owner)
	return deleted
}

// IDs returns the mesh ids owner produced, in tessellation order.
func (c *Cache) IDs(owner model.ObjectID) ([]model.GeometryID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids, ok := c.byOwner[owner]
	return slices.Clone(ids), ok
}

func (c *Cache) Mesh(id model.GeometryID) (model.Mesh, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.meshes[id]
	if !ok {
		return model.Mesh{}, false
	}
	return e.mesh, true
}

func (c *Cache) Owners(id model.GeometryID) []model.ObjectID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.meshes[id]
	if !ok {
		return nil
	}
	return slices.SortedFunc(maps.Keys(e.owners), model.CompareIDs)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.meshes)
}

// All returns every cached mesh ordered by id.
func (c *Cache) All() []model.Mesh {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(c.meshes))
	out := make([]model.Mesh, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.meshes[id].mesh)
	}
	return out
}

func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meshes = map[model.GeometryID]*meshEntry{}
	c.byOwner = map[model.ObjectID][]model.GeometryID{}
}
