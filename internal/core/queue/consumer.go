package queue

import (
	"sync"
	"time"

	"scenequeue/internal/model"
)

// Consumer receives changes. The committed callbacks run during Flush on
// the flushing goroutine, in the order they are declared here; the dynamic
// callbacks run on the editing goroutine as soon as the edit happens.
// Slices are only valid for the duration of the call.
//
// Committed callbacks run with the queue lock held. From inside one, lookups
// (MaterialFromId, ObjectFromId, Original*Ids, HasPending, Stats) and
// document edits are safe. Flush, FlushLocked and CreateWorld return an
// empty batch without flushing, leaving the edits for the next flush.
// Lock and Acquire deadlock; TryLock reports false.
type Consumer interface {
	ApplyViewChange(v model.View)
	ApplyDynamicObjectTransforms(transforms []model.DynamicObjectTransform)
	ApplyDynamicLightChanges(lights []model.Light)
	ApplyMeshChanges(deleted []model.GeometryID, changed []model.Mesh)
	ApplyMeshInstanceChanges(deleted []model.InstanceID, changed []model.MeshInstance)
	ApplySunChanges(sun model.Sun)
	ApplySkylightChanges(sky model.Skylight)
	ApplyLightChanges(deleted []model.ObjectID, changed []model.Light)
	ApplyMaterialChanges(deleted []model.ContentID, changed []model.MaterialRecord)
	ApplyEnvironmentChanges(usage model.EnvironmentUsage, env model.EnvironmentRecord, deleted []model.ContentID)
	ApplyGroundPlaneChanges(gp model.GroundPlane)
	ApplyLinearWorkflowChanges(lw model.LinearWorkflow)
	ApplyRenderSettingsChanges(rs model.RenderSettings)
	ApplyClippingPlaneChanges(deleted []model.ObjectID, changed []model.ClippingPlane)
	ApplyDynamicClippingPlaneChanges(planes []model.ClippingPlane)
	ApplyDisplayAttributesChanges(da model.DisplayAttributes)
}

// Notifier is optionally implemented by a Consumer. Its methods run on the
// editing goroutine and must only signal.
type Notifier interface {
	NotifyBeginUpdates()
	NotifyEndUpdates(failed bool)
	NotifyDynamicUpdatesAreAvailable()
}

// Funcs implements Consumer and Notifier with optional closures; nil
// entries are skipped.
type Funcs struct {
	View                    func(model.View)
	DynamicObjectTransforms func([]model.DynamicObjectTransform)
	DynamicLights           func([]model.Light)
	Meshes                  func(deleted []model.GeometryID, changed []model.Mesh)
	MeshInstances           func(deleted []model.InstanceID, changed []model.MeshInstance)
	Sun                     func(model.Sun)
	Skylight                func(model.Skylight)
	Lights                  func(deleted []model.ObjectID, changed []model.Light)
	Materials               func(deleted []model.ContentID, changed []model.MaterialRecord)
	Environment             func(usage model.EnvironmentUsage, env model.EnvironmentRecord, deleted []model.ContentID)
	GroundPlane             func(model.GroundPlane)
	LinearWorkflow          func(model.LinearWorkflow)
	RenderSettings          func(model.RenderSettings)
	ClippingPlanes          func(deleted []model.ObjectID, changed []model.ClippingPlane)
	DynamicClippingPlanes   func([]model.ClippingPlane)
	DisplayAttributes       func(model.DisplayAttributes)

	BeginUpdates            func()
	EndUpdates              func(failed bool)
	DynamicUpdatesAvailable func()
}

func (f *Funcs) ApplyViewChange(v model.View) {
	if f.View != nil {
		f.View(v)
	}
}

func (f *Funcs) ApplyDynamicObjectTransforms(t []model.DynamicObjectTransform) {
	if f.DynamicObjectTransforms != nil {
		f.DynamicObjectTransforms(t)
	}
}

func (f *Funcs) ApplyDynamicLightChanges(l []model.Light) {
	if f.DynamicLights != nil {
		f.DynamicLights(l)
	}
}

func (f *Funcs) ApplyMeshChanges(deleted []model.GeometryID, changed []model.Mesh) {
	if f.Meshes != nil {
		f.Meshes(deleted, changed)
	}
}

func (f *Funcs) ApplyMeshInstanceChanges(deleted []model.InstanceID, changed []model.MeshInstance) {
	if f.MeshInstances != nil {
		f.MeshInstances(deleted, changed)
	}
}

func (f *Funcs) ApplySunChanges(s model.Sun) {
	if f.Sun != nil {
		f.Sun(s)
	}
}

func (f *Funcs) ApplySkylightChanges(s model.Skylight) {
	if f.Skylight != nil {
		f.Skylight(s)
	}
}

func (f *Funcs) ApplyLightChanges(deleted []model.ObjectID, changed []model.Light) {
	if f.Lights != nil {
		f.Lights(deleted, changed)
	}
}

func (f *Funcs) ApplyMaterialChanges(deleted []model.ContentID, changed []model.MaterialRecord) {
	if f.Materials != nil {
		f.Materials(deleted, changed)
	}
}

func (f *Funcs) ApplyEnvironmentChanges(usage model.EnvironmentUsage, env model.EnvironmentRecord, deleted []model.ContentID) {
	if f.Environment != nil {
		f.Environment(usage, env, deleted)
	}
}

func (f *Funcs) ApplyGroundPlaneChanges(g model.GroundPlane) {
	if f.GroundPlane != nil {
		f.GroundPlane(g)
	}
}

func (f *Funcs) ApplyLinearWorkflowChanges(l model.LinearWorkflow) {
	if f.LinearWorkflow != nil {
		f.LinearWorkflow(l)
	}
}

func (f *Funcs) ApplyRenderSettingsChanges(r model.RenderSettings) {
	if f.RenderSettings != nil {
		f.RenderSettings(r)
	}
}

func (f *Funcs) ApplyClippingPlaneChanges(deleted []model.ObjectID, changed []model.ClippingPlane) {
	if f.ClippingPlanes != nil {
		f.ClippingPlanes(deleted, changed)
	}
}

func (f *Funcs) ApplyDynamicClippingPlaneChanges(p []model.ClippingPlane) {
	if f.DynamicClippingPlanes != nil {
		f.DynamicClippingPlanes(p)
	}
}

func (f *Funcs) ApplyDisplayAttributesChanges(d model.DisplayAttributes) {
	if f.DisplayAttributes != nil {
		f.DisplayAttributes(d)
	}
}

func (f *Funcs) NotifyBeginUpdates() {
	if f.BeginUpdates != nil {
		f.BeginUpdates()
	}
}

func (f *Funcs) NotifyEndUpdates(failed bool) {
	if f.EndUpdates != nil {
		f.EndUpdates(failed)
	}
}

func (f *Funcs) NotifyDynamicUpdatesAreAvailable() {
	if f.DynamicUpdatesAvailable != nil {
		f.DynamicUpdatesAvailable()
	}
}

// Collector is a Consumer that accumulates what it receives into a
// model.Batch. Dynamic changes are kept separately as change records.
type Collector struct {
	mu      sync.Mutex
	batch   model.Batch
	dynamic []model.ChangeRecord
	calls   map[model.Kind]int
}

func NewCollector() *Collector {
	return &Collector{calls: map[model.Kind]int{}}
}

// Take returns everything collected since the last call and resets.
func (c *Collector) Take() model.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.batch
	b.Timestamp = time.Now().UnixMilli()
	c.batch = model.Batch{}
	return b
}

// TakeDynamic returns the dynamic changes received since the last call.
func (c *Collector) TakeDynamic() []model.ChangeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.dynamic
	c.dynamic = nil
	return out
}

// Calls reports how many times each callback kind has been invoked.
func (c *Collector) Calls(kind model.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[kind]
}

func (c *Collector) record(kind model.Kind, fn func(b *model.Batch)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[kind]++
	if fn != nil {
		fn(&c.batch)
	}
}

func (c *Collector) ApplyViewChange(v model.View) {
	c.record(model.KindView, func(b *model.Batch) { b.View = &v })
}

func (c *Collector) ApplyDynamicObjectTransforms(ts []model.DynamicObjectTransform) {
	c.record(model.KindDynamicObjectTransform, nil)
	c.mu.Lock()
	for _, t := range ts {
		c.dynamic = append(c.dynamic, t)
	}
	c.mu.Unlock()
}

func (c *Collector) ApplyDynamicLightChanges(ls []model.Light) {
	c.record(model.KindDynamicLight, nil)
	c.mu.Lock()
	for _, l := range ls {
		c.dynamic = append(c.dynamic, model.DynamicLight{Light: l})
	}
	c.mu.Unlock()
}

func (c *Collector) ApplyDynamicClippingPlaneChanges(ps []model.ClippingPlane) {
	c.record(model.KindDynamicClippingPlane, nil)
	c.mu.Lock()
	for _, p := range ps {
		c.dynamic = append(c.dynamic, model.DynamicClippingPlane{ClippingPlane: p})
	}
	c.mu.Unlock()
}

func (c *Collector) ApplyMeshChanges(deleted []model.GeometryID, changed []model.Mesh) {
	c.record(model.KindMesh, func(b *model.Batch) {
		b.Meshes.Deleted = append(b.Meshes.Deleted, deleted...)
		b.Meshes.Changed = append(b.Meshes.Changed, changed...)
	})
}

func (c *Collector) ApplyMeshInstanceChanges(deleted []model.InstanceID, changed []model.MeshInstance) {
	c.record(model.KindMeshInstance, func(b *model.Batch) {
		b.Instances.Deleted = append(b.Instances.Deleted, deleted...)
		b.Instances.Changed = append(b.Instances.Changed, changed...)
	})
}

func (c *Collector) ApplySunChanges(s model.Sun) {
	c.record(model.KindSun, func(b *model.Batch) { b.Sun = &s })
}

func (c *Collector) ApplySkylightChanges(s model.Skylight) {
	c.record(model.KindSkylight, func(b *model.Batch) { b.Skylight = &s })
}

func (c *Collector) ApplyLightChanges(deleted []model.ObjectID, changed []model.Light) {
	c.record(model.KindLight, func(b *model.Batch) {
		b.Lights.Deleted = append(b.Lights.Deleted, deleted...)
		b.Lights.Changed = append(b.Lights.Changed, changed...)
	})
}

func (c *Collector) ApplyMaterialChanges(deleted []model.ContentID, changed []model.MaterialRecord) {
	c.record(model.KindMaterial, func(b *model.Batch) {
		b.Materials.Deleted = append(b.Materials.Deleted, deleted...)
		b.Materials.Changed = append(b.Materials.Changed, changed...)
	})
}

func (c *Collector) ApplyEnvironmentChanges(usage model.EnvironmentUsage, env model.EnvironmentRecord, deleted []model.ContentID) {
	c.record(model.KindEnvironment, func(b *model.Batch) {
		b.Environments = append(b.Environments, model.EnvironmentDelta{Usage: usage, Environment: env, Deleted: deleted})
	})
}

func (c *Collector) ApplyGroundPlaneChanges(g model.GroundPlane) {
	c.record(model.KindGroundPlane, func(b *model.Batch) { b.GroundPlane = &g })
}

func (c *Collector) ApplyLinearWorkflowChanges(l model.LinearWorkflow) {
	c.record(model.KindLinearWorkflow, func(b *model.Batch) { b.LinearWorkflow = &l })
}

func (c *Collector) ApplyRenderSettingsChanges(r model.RenderSettings) {
	c.record(model.KindRenderSettings, func(b *model.Batch) { b.RenderSettings = &r })
}

func (c *Collector) ApplyClippingPlaneChanges(deleted []model.ObjectID, changed []model.ClippingPlane) {
	c.record(model.KindClippingPlane, func(b *model.Batch) {
		b.ClippingPlanes.Deleted = append(b.ClippingPlanes.Deleted, deleted...)
		b.ClippingPlanes.Changed = append(b.ClippingPlanes.Changed, changed...)
	})
}

func (c *Collector) ApplyDisplayAttributesChanges(d model.DisplayAttributes) {
	c.record(model.KindDisplayAttributes, func(b *model.Batch) { b.DisplayAttributes = &d })
}
