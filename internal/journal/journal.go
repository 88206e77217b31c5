// Package journal records delivered batches as per-entity rows so a session
// can be inspected after the fact.
package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"scenequeue/internal/journal/store"
	"scenequeue/internal/model"
)

type meshSummary struct {
	ID       model.GeometryID `json:"id"`
	Object   model.ObjectID   `json:"object"`
	Vertices int              `json:"vertices"`
	Indices  int              `json:"indices"`
	Min      [3]float32       `json:"min"`
	Max      [3]float32       `json:"max"`
}

type instanceSummary struct {
	ID        model.InstanceID `json:"id"`
	Mesh      model.GeometryID `json:"mesh"`
	Object    model.ObjectID   `json:"object"`
	Material  model.ContentID  `json:"material"`
	Root      model.ObjectID   `json:"root"`
	Depth     int              `json:"depth"`
	Transform [16]float32      `json:"transform"`
}

type rows struct {
	seq uint64
	ts  int64
	out []store.Entry
	err error
}

func (r *rows) add(kind model.Kind, op, key string, object model.ObjectID, name string, payload any) {
	if r.err != nil {
		return
	}
	e := store.Entry{
		Seq:       r.seq,
		Ord:       len(r.out),
		Timestamp: r.ts,
		Kind:      string(kind),
		Op:        op,
		Key:       key,
		Name:      name,
	}
	if object != uuid.Nil {
		e.Object = object.String()
	}
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			r.err = fmt.Errorf("encode %s %s: %w", kind, key, err)
			return
		}
		e.Payload = buf
	}
	r.out = append(r.out, e)
}

// Entries flattens b into journal rows in dispatch order. Rows carry b.Seq;
// Writer replaces it with the journal's own sequence.
func Entries(b model.Batch) ([]store.Entry, error) {
	r := &rows{seq: b.Seq, ts: b.Timestamp}

	if b.View != nil {
		r.add(model.KindView, store.OpChanged, string(model.KindView), b.View.ID, b.View.Name, b.View)
	}
	for _, id := range b.Meshes.Deleted {
		r.add(model.KindMesh, store.OpDeleted, id.String(), uuid.Nil, "", nil)
	}
	for _, m := range b.Meshes.Changed {
		r.add(model.KindMesh, store.OpChanged, m.ID.String(), m.Object, "", meshSummary{
			ID:       m.ID,
			Object:   m.Object,
			Vertices: len(m.Payload.Vertices),
			Indices:  len(m.Payload.Indices),
			Min:      [3]float32{m.Bounds.Min.X, m.Bounds.Min.Y, m.Bounds.Min.Z},
			Max:      [3]float32{m.Bounds.Max.X, m.Bounds.Max.Y, m.Bounds.Max.Z},
		})
	}
	for _, id := range b.Instances.Deleted {
		r.add(model.KindMeshInstance, store.OpDeleted, id.String(), uuid.Nil, "", nil)
	}
	for _, mi := range b.Instances.Changed {
		r.add(model.KindMeshInstance, store.OpChanged, mi.ID.String(), mi.Object, mi.Attributes.Name, instanceSummary{
			ID:        mi.ID,
			Mesh:      mi.Mesh,
			Object:    mi.Object,
			Material:  mi.Material,
			Root:      mi.Root(),
			Depth:     len(mi.Ancestry),
			Transform: mi.Transform,
		})
	}
	if b.Sun != nil {
		r.add(model.KindSun, store.OpChanged, string(model.KindSun), uuid.Nil, "", b.Sun)
	}
	if b.Skylight != nil {
		r.add(model.KindSkylight, store.OpChanged, string(model.KindSkylight), uuid.Nil, "", b.Skylight)
	}
	for _, id := range b.Lights.Deleted {
		r.add(model.KindLight, store.OpDeleted, id.String(), id, "", nil)
	}
	for _, l := range b.Lights.Changed {
		r.add(model.KindLight, store.OpChanged, l.ID.String(), l.ID, "", l)
	}
	for _, id := range b.Materials.Deleted {
		r.add(model.KindMaterial, store.OpDeleted, id.String(), uuid.Nil, "", nil)
	}
	for _, m := range b.Materials.Changed {
		r.add(model.KindMaterial, store.OpChanged, m.ID.String(), m.Material.ID, m.Material.Name, m)
	}
	for _, d := range b.Environments {
		env := d.Environment
		r.add(model.KindEnvironment, store.OpChanged, string(d.Usage), env.Environment.ID, env.Environment.Name, env)
		for _, id := range d.Deleted {
			r.add(model.KindEnvironment, store.OpDeleted, id.String(), uuid.Nil, "", nil)
		}
	}
	if b.GroundPlane != nil {
		r.add(model.KindGroundPlane, store.OpChanged, string(model.KindGroundPlane), uuid.Nil, "", b.GroundPlane)
	}
	if b.LinearWorkflow != nil {
		r.add(model.KindLinearWorkflow, store.OpChanged, string(model.KindLinearWorkflow), uuid.Nil, "", b.LinearWorkflow)
	}
	if b.RenderSettings != nil {
		r.add(model.KindRenderSettings, store.OpChanged, string(model.KindRenderSettings), uuid.Nil, "", b.RenderSettings)
	}
	for _, id := range b.ClippingPlanes.Deleted {
		r.add(model.KindClippingPlane, store.OpDeleted, id.String(), id, "", nil)
	}
	for _, c := range b.ClippingPlanes.Changed {
		r.add(model.KindClippingPlane, store.OpChanged, c.ID.String(), c.ID, "", c)
	}
	if b.DisplayAttributes != nil {
		d := b.DisplayAttributes
		r.add(model.KindDisplayAttributes, store.OpChanged, string(model.KindDisplayAttributes), uuid.Nil, d.Name, d)
	}

	if r.err != nil {
		return nil, r.err
	}
	return r.out, nil
}

// Writer appends batches to a store. Each recorded batch gets the next
// journal sequence, continuing from the store's last batch, so several
// queues and sessions can share one journal.
type Writer struct {
	mu   sync.Mutex
	st   store.Store
	log  *slog.Logger
	last uint64
}

func NewWriter(st store.Store, log *slog.Logger) (*Writer, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if p, ok := st.(store.WritePragmaApplier); ok {
		if err := p.ApplyWritePragmas(); err != nil {
			return nil, fmt.Errorf("apply pragmas: %w", err)
		}
	}
	last, err := st.LastSeq()
	if err != nil {
		return nil, err
	}
	return &Writer{st: st, log: log, last: last}, nil
}

// Record appends b and returns the journal sequence it was stored under.
// Empty batches are skipped and return 0.
func (w *Writer) Record(b model.Batch) (uint64, error) {
	if w == nil || w.st == nil {
		return 0, fmt.Errorf("journal is not open")
	}
	entries, err := Entries(b)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	seq := w.last + 1
	for i := range entries {
		entries[i].Seq = seq
	}
	if err := w.st.Append(entries); err != nil {
		return 0, fmt.Errorf("append batch %d: %w", b.Seq, err)
	}
	w.last = seq
	w.log.Debug("journal append", "seq", seq, "batch", b.Seq, "entries", len(entries), "world", b.World)
	return seq, nil
}

// Last returns the most recent journal sequence written or found at open.
func (w *Writer) Last() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *Writer) Store() store.Store { return w.st }

// Info summarizes a journal store.
type Info struct {
	Backend  string            `json:"backend"`
	LastSeq  uint64            `json:"last_seq"`
	Entries  int               `json:"entries"`
	Settings map[string]string `json:"settings,omitempty"`
}

// Describe reads the summary of st. Settings are filled for stores that
// report them.
func Describe(st store.Store) (Info, error) {
	if st == nil {
		return Info{}, fmt.Errorf("journal is not open")
	}
	last, err := st.LastSeq()
	if err != nil {
		return Info{}, err
	}
	n, err := st.Count()
	if err != nil {
		return Info{}, err
	}
	info := Info{Backend: st.Backend(), LastSeq: last, Entries: n}
	if r, ok := st.(store.SettingsReporter); ok {
		if info.Settings, err = r.Settings(); err != nil {
			return Info{}, fmt.Errorf("read settings: %w", err)
		}
	}
	return info, nil
}
