package queue

import (
	"maps"
	"slices"

	"scenequeue/internal/model"
)

type envBinding struct {
	owner model.ObjectID
	id    model.ContentID
}

// committed is what the consumer has been told so far, plus the reverse
// indexes a flush needs to map an edit back to the records it affects.
type committed struct {
	instances map[model.InstanceID]model.MeshInstance
	matOwner  map[model.InstanceID]model.ObjectID
	byRoot    map[model.ObjectID][]model.InstanceID

	rootLeaves map[model.ObjectID][]model.ObjectID
	leafUsers  map[model.ObjectID]map[model.ObjectID]struct{}
	rootLayers map[model.ObjectID][]model.ObjectID
	layerUsers map[model.ObjectID]map[model.ObjectID]struct{}

	materialUsers map[model.ObjectID]map[model.InstanceID]struct{}
	// delivered holds every material id the consumer has received and not
	// yet been told to delete.
	delivered map[model.ContentID]struct{}
	textureUsers  map[model.ObjectID]map[model.ObjectID]model.Kind
	texturesOf    map[model.ObjectID][]model.ObjectID

	envs     map[model.EnvironmentUsage]envBinding
	envUsers map[model.ObjectID]map[model.EnvironmentUsage]struct{}

	lights map[model.ObjectID]model.Light
	clips  map[model.ObjectID]model.ClippingPlane

	// crcs holds the last delivered hash per singleton kind. A missing key
	// means the record was never delivered.
	crcs map[model.Kind]uint32
}

func newCommitted() *committed {
	return &committed{
		instances:     map[model.InstanceID]model.MeshInstance{},
		matOwner:      map[model.InstanceID]model.ObjectID{},
		byRoot:        map[model.ObjectID][]model.InstanceID{},
		rootLeaves:    map[model.ObjectID][]model.ObjectID{},
		leafUsers:     map[model.ObjectID]map[model.ObjectID]struct{}{},
		rootLayers:    map[model.ObjectID][]model.ObjectID{},
		layerUsers:    map[model.ObjectID]map[model.ObjectID]struct{}{},
		materialUsers: map[model.ObjectID]map[model.InstanceID]struct{}{},
		delivered:     map[model.ContentID]struct{}{},
		textureUsers:  map[model.ObjectID]map[model.ObjectID]model.Kind{},
		texturesOf:    map[model.ObjectID][]model.ObjectID{},
		envs:          map[model.EnvironmentUsage]envBinding{},
		envUsers:      map[model.ObjectID]map[model.EnvironmentUsage]struct{}{},
		lights:        map[model.ObjectID]model.Light{},
		clips:         map[model.ObjectID]model.ClippingPlane{},
		crcs:          map[model.Kind]uint32{},
	}
}

// objectsUsingMaterial returns the leaf objects of every committed instance
// bound to the material, sorted and without duplicates.
func (c *committed) objectsUsingMaterial(id model.ContentID) []model.ObjectID {
	seen := map[model.ObjectID]struct{}{}
	for _, mi := range c.instances {
		if mi.Material == id {
			seen[mi.Object] = struct{}{}
		}
	}
	return slices.SortedFunc(maps.Keys(seen), model.CompareIDs)
}

func (c *committed) envContents() map[model.ContentID]struct{} {
	out := map[model.ContentID]struct{}{}
	for _, b := range c.envs {
		out[b.id] = struct{}{}
	}
	return out
}

func addTo[K, V comparable](m map[K]map[V]struct{}, k K, v V) {
	s, ok := m[k]
	if !ok {
		s = map[V]struct{}{}
		m[k] = s
	}
	s[v] = struct{}{}
}

// removeFrom reports whether the set under k became empty. Empty sets are
// dropped from m.
func removeFrom[K, V comparable](m map[K]map[V]struct{}, k K, v V) bool {
	s, ok := m[k]
	if !ok {
		return false
	}
	delete(s, v)
	if len(s) > 0 {
		return false
	}
	delete(m, k)
	return true
}

func sortedIDs(s map[model.ObjectID]struct{}) []model.ObjectID {
	return slices.SortedFunc(maps.Keys(s), model.CompareIDs)
}
