package queue

import (
	"errors"
	"sync"

	"scenequeue/internal/model"
)

var (
	ErrExpired  = errors.New("handle expired")
	ErrNotFound = errors.New("not found")
)

// ObjectHandle is a non-owning reference to a document object. It stops
// resolving after the next Flush or CreateWorld.
type ObjectHandle struct {
	id    model.ObjectID
	epoch uint64
}

func (h ObjectHandle) ID() model.ObjectID { return h.id }

// IsZero reports whether h was never issued.
func (h ObjectHandle) IsZero() bool { return h.epoch == 0 }

// arena holds objects registered through AddObjectReference for the current
// epoch.
type arena struct {
	mu      sync.RWMutex
	epoch   uint64
	objects map[model.ObjectID]model.Object
}

func newArena() *arena {
	return &arena{epoch: 1, objects: map[model.ObjectID]model.Object{}}
}

func (a *arena) current() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.epoch
}

// advance invalidates every handle issued so far.
func (a *arena) advance() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.epoch++
	a.objects = map[model.ObjectID]model.Object{}
	return a.epoch
}

func (a *arena) put(obj model.Object) ObjectHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[obj.ID] = obj
	return ObjectHandle{id: obj.ID, epoch: a.epoch}
}

func (a *arena) get(h ObjectHandle) (model.Object, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if h.epoch != a.epoch {
		return model.Object{}, false, ErrExpired
	}
	obj, ok := a.objects[h.id]
	return obj, ok, nil
}
