// Package contentcache stores render-affecting content (materials, textures,
// environments) addressed by structural hash.
//
// Each owner, usually the document object the content came from, is bound to
// at most one entry per kind. An entry lives while at least one owner is bound
// to it; rebinding or releasing the last owner removes it and reports its id
// as deleted.
package contentcache

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"scenequeue/internal/model"
)

// Result describes the effect of binding an owner to content.
type Result struct {
	ID model.ContentID
	// New is true when ID was not cached before the call.
	New bool
	// Superseded is the id the owner was bound to before, or 0.
	Superseded model.ContentID
	// Deleted lists ids whose last owner went away.
	Deleted []model.ContentID
}

type entry[T any] struct {
	value  T
	owners map[model.ObjectID]struct{}
}

type table[T model.Hashable] struct {
	entries map[model.ContentID]*entry[T]
	bound   map[model.ObjectID]model.ContentID
}

func newTable[T model.Hashable]() table[T] {
	return table[T]{
		entries: map[model.ContentID]*entry[T]{},
		bound:   map[model.ObjectID]model.ContentID{},
	}
}

func (t *table[T]) add(owner model.ObjectID, v T) Result {
	id := model.ContentIDOf(v)
	res := Result{ID: id}

	if prev, ok := t.bound[owner]; ok {
		if prev == id {
			return res
		}
		res.Superseded = prev
		if t.unbind(owner, prev) {
			res.Deleted = append(res.Deleted, prev)
		}
	}

	e, ok := t.entries[id]
	if !ok {
		e = &entry[T]{value: v, owners: map[model.ObjectID]struct{}{}}
		t.entries[id] = e
		res.New = true
	}
	e.owners[owner] = struct{}{}
	t.bound[owner] = id
	return res
}

// unbind reports whether the entry was removed.
func (t *table[T]) unbind(owner model.ObjectID, id model.ContentID) bool {
	delete(t.bound, owner)
	e, ok := t.entries[id]
	if !ok {
		return false
	}
	delete(e.owners, owner)
	if len(e.owners) > 0 {
		return false
	}
	delete(t.entries, id)
	return true
}

func (t *table[T]) release(owner model.ObjectID) []model.ContentID {
	id, ok := t.bound[owner]
	if !ok {
		return nil
	}
	if t.unbind(owner, id) {
		return []model.ContentID{id}
	}
	return nil
}

func (t *table[T]) get(id model.ContentID) (T, bool) {
	e, ok := t.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (t *table[T]) owners(id model.ContentID) []model.ObjectID {
	e, ok := t.entries[id]
	if !ok {
		return nil
	}
	return slices.SortedFunc(maps.Keys(e.owners), model.CompareIDs)
}

// Cache is safe for concurrent use. Reads share a read lock, so lookups can
// run while a flush is resolving under the queue lock.
type Cache struct {
	mu           sync.RWMutex
	materials    table[model.Material]
	textures     table[model.Texture]
	environments table[model.Environment]
}

func New() *Cache {
	c := &Cache{}
	c.reset()
	return c
}

func (c *Cache) reset() {
	c.materials = newTable[model.Material]()
	c.textures = newTable[model.Texture]()
	c.environments = newTable[model.Environment]()
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// AddMaterial binds owner to m. Texture slots must already carry their
// resolved content ids.
func (c *Cache) AddMaterial(owner model.ObjectID, m model.Material) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.materials.add(owner, m)
}

func (c *Cache) AddTexture(owner model.ObjectID, t model.Texture) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.textures.add(owner, t)
}

func (c *Cache) AddEnvironment(owner model.ObjectID, e model.Environment) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.environments.add(owner, e)
}

// Release unbinds owner from its entry of the given kind and returns the ids
// that were removed as a result.
func (c *Cache) Release(kind model.Kind, owner model.ObjectID) ([]model.ContentID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case model.KindMaterial:
		return c.materials.release(owner), nil
	case model.KindTexture:
		return c.textures.release(owner), nil
	case model.KindEnvironment:
		return c.environments.release(owner), nil
	default:
		return nil, fmt.Errorf("unsupported content kind %q", kind)
	}
}

func (c *Cache) Material(id model.ContentID) (model.Material, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.materials.get(id)
}

func (c *Cache) Texture(id model.ContentID) (model.Texture, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.textures.get(id)
}

func (c *Cache) Environment(id model.ContentID) (model.Environment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.environments.get(id)
}

// Owners returns the owners bound to id, sorted.
func (c *Cache) Owners(kind model.Kind, id model.ContentID) []model.ObjectID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch kind {
	case model.KindMaterial:
		return c.materials.owners(id)
	case model.KindTexture:
		return c.textures.owners(id)
	case model.KindEnvironment:
		return c.environments.owners(id)
	}
	return nil
}

// Bound returns the id owner is currently bound to.
func (c *Cache) Bound(kind model.Kind, owner model.ObjectID) (model.ContentID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var (
		id model.ContentID
		ok bool
	)
	switch kind {
	case model.KindMaterial:
		id, ok = c.materials.bound[owner]
	case model.KindTexture:
		id, ok = c.textures.bound[owner]
	case model.KindEnvironment:
		id, ok = c.environments.bound[owner]
	}
	return id, ok
}

func (c *Cache) Len(kind model.Kind) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch kind {
	case model.KindMaterial:
		return len(c.materials.entries)
	case model.KindTexture:
		return len(c.textures.entries)
	case model.KindEnvironment:
		return len(c.environments.entries)
	}
	return 0
}

// IDs returns every cached id of the given kind, sorted.
func (c *Cache) IDs(kind model.Kind) []model.ContentID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch kind {
	case model.KindMaterial:
		return slices.Sorted(maps.Keys(c.materials.entries))
	case model.KindTexture:
		return slices.Sorted(maps.Keys(c.textures.entries))
	case model.KindEnvironment:
		return slices.Sorted(maps.Keys(c.environments.entries))
	}
	return nil
}
