package queue

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"scenequeue/internal/core/docwatch"
	"scenequeue/internal/core/instance"
	"scenequeue/internal/model"
)

type tessResult struct {
	ids []model.GeometryID
	ok  bool
}

type envMemo struct {
	id  model.ContentID
	env model.Environment
}

// resolution is the scratch state of one flush: what is dirty, what has
// already been bound this flush, and the records produced so far.
type resolution struct {
	roots    []model.ObjectID
	rootSeen map[model.ObjectID]struct{}

	layers     map[model.ObjectID]struct{}
	materials  map[model.ObjectID]struct{}
	textures   map[model.ObjectID]struct{}
	envOwners  map[model.ObjectID]struct{}
	usages     map[model.EnvironmentUsage]struct{}
	lights     map[model.ObjectID]struct{}
	clips      map[model.ObjectID]struct{}
	singletons map[model.Kind]struct{}
	view       bool

	tess map[model.ObjectID]tessResult
	mats map[model.ObjectID]model.ContentID
	texs map[model.ObjectID]model.ContentID
	envs map[model.ObjectID]envMemo

	releaseMats map[model.ObjectID]struct{}

	batch       model.Batch
	instChanged map[model.InstanceID]model.MeshInstance
	envDeltas   map[model.EnvironmentUsage]*model.EnvironmentDelta
}

func newResolution() *resolution {
	return &resolution{
		rootSeen:    map[model.ObjectID]struct{}{},
		layers:      map[model.ObjectID]struct{}{},
		materials:   map[model.ObjectID]struct{}{},
		textures:    map[model.ObjectID]struct{}{},
		envOwners:   map[model.ObjectID]struct{}{},
		usages:      map[model.EnvironmentUsage]struct{}{},
		lights:      map[model.ObjectID]struct{}{},
		clips:       map[model.ObjectID]struct{}{},
		singletons:  map[model.Kind]struct{}{},
		tess:        map[model.ObjectID]tessResult{},
		mats:        map[model.ObjectID]model.ContentID{},
		texs:        map[model.ObjectID]model.ContentID{},
		envs:        map[model.ObjectID]envMemo{},
		releaseMats: map[model.ObjectID]struct{}{},
		instChanged: map[model.InstanceID]model.MeshInstance{},
		envDeltas:   map[model.EnvironmentUsage]*model.EnvironmentDelta{},
	}
}

func (r *resolution) root(id model.ObjectID) {
	if _, ok := r.rootSeen[id]; ok {
		return
	}
	r.rootSeen[id] = struct{}{}
	r.roots = append(r.roots, id)
}

func (r *resolution) has(kind model.Kind) bool {
	_, ok := r.singletons[kind]
	return ok
}

func (r *resolution) envDelta(u model.EnvironmentUsage, rec model.EnvironmentRecord, deleted []model.ContentID) {
	d, ok := r.envDeltas[u]
	if !ok {
		d = &model.EnvironmentDelta{Usage: u}
		r.envDeltas[u] = d
	}
	d.Environment = rec
	d.Deleted = append(d.Deleted, deleted...)
}

var singletonKinds = []model.Kind{
	model.KindSun,
	model.KindSkylight,
	model.KindGroundPlane,
	model.KindLinearWorkflow,
	model.KindRenderSettings,
	model.KindDisplayAttributes,
}

// Flush resolves everything pending since the last flush and, when apply is
// set, delivers it to the consumer. The returned batch is what was (or would
// have been) delivered.
func (q *Queue) Flush(apply bool) model.Batch {
	if q.reentered("Flush") {
		return model.Batch{}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.flushLocked(apply)
}

// FlushLocked is Flush for callers that already hold the queue lock, usually
// after a successful TryLock.
func (q *Queue) FlushLocked(apply bool) model.Batch {
	if q.reentered("FlushLocked") {
		return model.Batch{}
	}
	return q.flushLocked(apply)
}

func (q *Queue) flushLocked(apply bool) model.Batch {
	start := time.Now()
	done := q.timer("flush.resolve")

	q.pmu.Lock()
	changes, world := q.pending.drain()
	q.pmu.Unlock()
	q.handles.advance()
	q.seq++

	r := newResolution()
	q.cmu.Lock()
	if world {
		q.rebuild(r)
	} else {
		q.classify(changes, r)
		q.commit(r)
	}
	b := q.finish(r, world)
	q.cmu.Unlock()
	done()

	if apply {
		done = q.timer("flush.dispatch")
		q.dispatching.Store(true)
		q.dispatch(b)
		q.dispatching.Store(false)
		done()
	}

	n := len(b.Records())
	elapsed := time.Since(start)
	q.flushes.Add(1)
	q.records.Add(int64(n))
	q.lastFlush.Store(int64(elapsed))
	if q.opts.Explain != nil {
		q.opts.Explain.KV("flush.seq", b.Seq)
		q.opts.Explain.KV("flush.world", world)
		q.opts.Explain.KV("flush.changes", len(changes))
		q.opts.Explain.KV("flush.records", n)
	}
	q.log.Debug("flush", "seq", b.Seq, "world", world, "changes", len(changes), "records", n, "applied", apply, "elapsed", elapsed)
	return b
}

func (q *Queue) timer(name string) func() {
	if q.opts.Explain == nil {
		return func() {}
	}
	return q.opts.Explain.Timer(name)
}

// classify turns pending changes into dirty sets.
func (q *Queue) classify(changes []docwatch.Change, r *resolution) {
	for _, c := range changes {
		switch c.Kind {
		case model.KindMeshInstance:
			r.root(c.ID)
		case model.KindDefinition:
			for _, root := range q.graph.Users(c.ID) {
				r.root(root)
			}
		case model.KindLayer:
			r.layers[c.ID] = struct{}{}
			for _, root := range sortedIDs(q.com.layerUsers[c.ID]) {
				r.root(root)
			}
			for _, obj := range q.doc.Objects() {
				if obj.Attributes.Layer != c.ID {
					continue
				}
				switch obj.Kind {
				case model.ObjectLight:
					r.lights[obj.ID] = struct{}{}
				case model.ObjectClippingPlane:
					r.clips[obj.ID] = struct{}{}
				}
			}
		case model.KindMaterial:
			r.materials[c.ID] = struct{}{}
		case model.KindTexture:
			r.textures[c.ID] = struct{}{}
		case model.KindEnvironment:
			if c.Usage != "" {
				r.usages[c.Usage] = struct{}{}
			} else {
				r.envOwners[c.ID] = struct{}{}
			}
		case model.KindLight:
			r.lights[c.ID] = struct{}{}
		case model.KindClippingPlane:
			r.clips[c.ID] = struct{}{}
		case model.KindView:
			r.view = true
		case model.KindDisplayAttributes:
			r.singletons[c.Kind] = struct{}{}
			if q.opts.RespectDisplayAttributes {
				q.markAllLightsAndClips(r)
			}
		case model.KindSun, model.KindSkylight, model.KindGroundPlane,
			model.KindLinearWorkflow, model.KindRenderSettings:
			r.singletons[c.Kind] = struct{}{}
		default:
			q.log.Warn("pending change ignored", "kind", c.Kind, "id", c.ID)
			q.dropped.Add(1)
		}
	}
}

func (q *Queue) markAllLightsAndClips(r *resolution) {
	for id := range q.com.lights {
		r.lights[id] = struct{}{}
	}
	for id := range q.com.clips {
		r.clips[id] = struct{}{}
	}
	for _, obj := range q.doc.Objects() {
		switch obj.Kind {
		case model.ObjectLight:
			r.lights[obj.ID] = struct{}{}
		case model.ObjectClippingPlane:
			r.clips[obj.ID] = struct{}{}
		}
	}
}

// rebuild resets every cache and treats the whole document as new.
// Previously committed records that are not produced again are reported as
// deleted.
func (q *Queue) rebuild(r *resolution) {
	old := q.com
	oldMeshes := q.geom.All()
	oldMats := maps.Clone(old.delivered)
	for _, mi := range old.instances {
		oldMats[mi.Material] = struct{}{}
	}

	q.content.Reset()
	q.geom.Reset()
	q.graph.Reset()
	q.com = newCommitted()
	q.refMu.Lock()
	q.refs = map[model.ObjectID]model.ObjectID{}
	q.refMu.Unlock()

	for _, obj := range q.doc.Objects() {
		switch obj.Kind {
		case model.ObjectMesh, model.ObjectInstance:
			r.root(obj.ID)
		case model.ObjectLight:
			r.lights[obj.ID] = struct{}{}
		case model.ObjectClippingPlane:
			r.clips[obj.ID] = struct{}{}
		}
	}
	for _, u := range model.EnvironmentUsages {
		r.usages[u] = struct{}{}
	}
	for _, k := range singletonKinds {
		r.singletons[k] = struct{}{}
	}
	r.view = true

	q.commit(r)

	b := &r.batch
	for _, m := range oldMeshes {
		if _, ok := q.geom.Mesh(m.ID); !ok {
			b.Meshes.Deleted = append(b.Meshes.Deleted, m.ID)
		}
	}
	for id := range old.instances {
		if _, ok := q.com.instances[id]; !ok {
			b.Instances.Deleted = append(b.Instances.Deleted, id)
		}
	}
	for id := range oldMats {
		if _, ok := q.content.Material(id); !ok {
			b.Materials.Deleted = append(b.Materials.Deleted, id)
		}
	}
	for id := range old.lights {
		if _, ok := q.com.lights[id]; !ok {
			b.Lights.Deleted = append(b.Lights.Deleted, id)
		}
	}
	for id := range old.clips {
		if _, ok := q.com.clips[id]; !ok {
			b.ClippingPlanes.Deleted = append(b.ClippingPlanes.Deleted, id)
		}
	}
	live := q.com.envContents()
	for u, prev := range old.envs {
		if _, ok := live[prev.id]; ok {
			continue
		}
		if d, ok := r.envDeltas[u]; ok {
			d.Deleted = append(d.Deleted, prev.id)
			continue
		}
		r.envDelta(u, model.EnvironmentRecord{}, []model.ContentID{prev.id})
	}
}

// commit resolves the dirty sets in dependency order and updates the
// committed state.
func (q *Queue) commit(r *resolution) {
	for id := range r.textures {
		for user, kind := range q.com.textureUsers[id] {
			switch kind {
			case model.KindMaterial:
				r.materials[user] = struct{}{}
			case model.KindEnvironment:
				r.envOwners[user] = struct{}{}
			}
		}
	}

	dirtyMats := sortedIDs(r.materials)
	for _, owner := range dirtyMats {
		if _, used := q.com.materialUsers[owner]; used {
			q.bindMaterial(owner, r)
		}
	}

	for i := 0; i < len(r.roots); i++ {
		q.expandRoot(r.roots[i], r)
	}

	for _, owner := range dirtyMats {
		q.rebindInstances(owner, r)
	}
	q.releaseMaterials(r)

	settings := q.doc.Settings()
	for _, id := range sortedIDs(r.lights) {
		q.resolveLight(id, settings, r)
	}
	for _, id := range sortedIDs(r.clips) {
		q.resolveClippingPlane(id, settings, r)
	}
	q.resolveEnvironments(settings, r)
	q.resolveSingletons(settings, r)
}

// Roots.

func (q *Queue) expandRoot(root model.ObjectID, r *resolution) {
	next := map[model.InstanceID]model.MeshInstance{}
	owners := map[model.InstanceID]model.ObjectID{}
	leaves := map[model.ObjectID]struct{}{}
	layers := map[model.ObjectID]struct{}{}

	for _, p := range q.graph.Flatten(root) {
		layers[p.Leaf.Attributes.Layer] = struct{}{}
		for _, lvl := range p.Ancestry {
			layers[lvl.Attributes.Layer] = struct{}{}
		}
		if q.placementHidden(p) {
			continue
		}
		tr := q.tessellate(p.Leaf, r)
		if !tr.ok {
			continue
		}
		leaves[p.Leaf.ID] = struct{}{}
		owner := q.materialOwner(p)
		mat := q.bindMaterial(owner, r)
		for i, gid := range tr.ids {
			mi := model.MeshInstance{
				ID:         instanceIDOf(p, i),
				Mesh:       gid,
				Object:     p.Leaf.ID,
				Transform:  p.Transform,
				Material:   mat,
				Mapping:    mappingOverride(p),
				Attributes: p.Leaf.Attributes,
				Ancestry:   p.Ancestry,
			}
			if _, dup := next[mi.ID]; dup {
				q.log.Warn("duplicate instance id", "root", root, "leaf", p.Leaf.ID, "instance", mi.ID)
				q.dropped.Add(1)
				continue
			}
			next[mi.ID] = mi
			owners[mi.ID] = owner
		}
	}

	for _, id := range q.com.byRoot[root] {
		if _, keep := next[id]; !keep {
			q.dropInstance(id, r)
			r.batch.Instances.Deleted = append(r.batch.Instances.Deleted, id)
		}
	}
	ids := slices.Sorted(maps.Keys(next))
	for _, id := range ids {
		mi := next[id]
		owner := owners[id]
		prev, had := q.com.instances[id]
		if had {
			if prevOwner := q.com.matOwner[id]; prevOwner != owner && removeFrom(q.com.materialUsers, prevOwner, id) {
				r.releaseMats[prevOwner] = struct{}{}
			}
		}
		if !had || model.CRC(prev) != model.CRC(mi) {
			r.instChanged[id] = mi
		}
		q.com.instances[id] = mi
		q.com.matOwner[id] = owner
		addTo(q.com.materialUsers, owner, id)
	}
	if len(ids) > 0 {
		q.com.byRoot[root] = ids
	} else {
		delete(q.com.byRoot, root)
	}

	for leaf := range leaves {
		addTo(q.com.leafUsers, leaf, root)
	}
	for _, leaf := range q.com.rootLeaves[root] {
		if _, keep := leaves[leaf]; keep {
			continue
		}
		if removeFrom(q.com.leafUsers, leaf, root) {
			r.batch.Meshes.Deleted = append(r.batch.Meshes.Deleted, q.geom.Release(leaf)...)
			delete(r.tess, leaf)
		}
	}
	if len(leaves) > 0 {
		q.com.rootLeaves[root] = sortedIDs(leaves)
	} else {
		delete(q.com.rootLeaves, root)
	}

	delete(layers, uuid.Nil)
	for layer := range layers {
		addTo(q.com.layerUsers, layer, root)
	}
	for _, layer := range q.com.rootLayers[root] {
		if _, keep := layers[layer]; !keep {
			removeFrom(q.com.layerUsers, layer, root)
		}
	}
	if len(layers) > 0 {
		q.com.rootLayers[root] = sortedIDs(layers)
	} else {
		delete(q.com.rootLayers, root)
	}
}

func (q *Queue) dropInstance(id model.InstanceID, r *resolution) {
	owner, ok := q.com.matOwner[id]
	delete(q.com.instances, id)
	delete(q.com.matOwner, id)
	delete(r.instChanged, id)
	if ok && removeFrom(q.com.materialUsers, owner, id) {
		r.releaseMats[owner] = struct{}{}
	}
}

// tessellate meshes a leaf once per flush and binds its geometry.
func (q *Queue) tessellate(leaf model.Object, r *resolution) tessResult {
	if tr, ok := r.tess[leaf.ID]; ok {
		return tr
	}
	payloads, err := q.tess.Tessellate(leaf)
	if err != nil {
		q.log.Warn("tessellation failed", "object", leaf.ID, "error", err)
		q.dropped.Add(1)
		r.tess[leaf.ID] = tessResult{}
		return tessResult{}
	}
	res := q.geom.Put(leaf.ID, payloads, leaf.Attributes.Mapping)
	r.batch.Meshes.Changed = append(r.batch.Meshes.Changed, res.Added...)
	r.batch.Meshes.Deleted = append(r.batch.Meshes.Deleted, res.Deleted...)
	tr := tessResult{ids: res.IDs, ok: true}
	r.tess[leaf.ID] = tr
	return tr
}

func (q *Queue) attrsHidden(a model.ObjectAttributes) bool {
	if a.Hidden {
		return true
	}
	l, ok := q.doc.Layer(a.Layer)
	return ok && l.Hidden
}

func (q *Queue) placementHidden(p instance.Placement) bool {
	if q.attrsHidden(p.Leaf.Attributes) {
		return true
	}
	for _, lvl := range p.Ancestry {
		if q.attrsHidden(lvl.Attributes) {
			return true
		}
	}
	return false
}

// materialOwner walks from the leaf towards the root until an object or
// layer names a material. uuid.Nil selects the default material.
func (q *Queue) materialOwner(p instance.Placement) model.ObjectID {
	attrs := p.Leaf.Attributes
	for i := len(p.Ancestry) - 1; ; i-- {
		switch attrs.MaterialSource {
		case model.MaterialFromObject:
			return attrs.Material
		case model.MaterialFromParent:
			if i < 0 {
				return uuid.Nil
			}
			attrs = p.Ancestry[i].Attributes
		default:
			if l, ok := q.doc.Layer(attrs.Layer); ok {
				return l.Material
			}
			return uuid.Nil
		}
	}
}

// mappingOverride returns the mapping of the block reference nearest the
// leaf that carries one. The leaf's own mapping is already part of its mesh.
func mappingOverride(p instance.Placement) []model.MappingChannel {
	for i := len(p.Ancestry) - 1; i >= 0; i-- {
		if m := p.Ancestry[i].Attributes.Mapping; len(m) > 0 {
			return m
		}
	}
	return nil
}

// instanceIDOf hashes the reference path to the leaf, so the id survives
// unrelated edits.
func instanceIDOf(p instance.Placement, mesh int) model.InstanceID {
	h := model.NewHasher()
	h.String("instance")
	for _, lvl := range p.Ancestry {
		h.ID(lvl.Reference)
	}
	h.ID(p.Leaf.ID)
	h.Int(mesh)
	id := model.InstanceID(h.Sum32())
	if id == 0 {
		id = 1
	}
	return id
}

// Materials and textures.

func (q *Queue) bindMaterial(owner model.ObjectID, r *resolution) model.ContentID {
	if id, ok := r.mats[owner]; ok {
		return id
	}
	mat, ok := q.doc.Material(owner)
	if owner == uuid.Nil || !ok {
		if owner != uuid.Nil {
			q.log.Debug("material not found, using default", "material", owner)
		}
		mat = model.DefaultMaterial()
		mat.ID = owner
	}
	var textures []model.ObjectID
	if len(mat.Textures) > 0 {
		slots := make([]model.TextureSlot, len(mat.Textures))
		for i, s := range mat.Textures {
			if s.Empty() {
				s.Content = 0
			} else {
				s.Content = q.bindTexture(s.Texture, r)
				textures = append(textures, s.Texture)
			}
			slots[i] = s
		}
		mat.Textures = slots
	}
	res := q.content.AddMaterial(owner, mat)
	q.setTextureUses(owner, model.KindMaterial, textures, r)
	// The id may already be cached through an explicit registration that
	// the consumer never received.
	if _, sent := q.com.delivered[res.ID]; res.New || !sent {
		r.batch.Materials.Changed = append(r.batch.Materials.Changed, model.MaterialRecord{ID: res.ID, Material: mat})
		q.com.delivered[res.ID] = struct{}{}
	}
	r.batch.Materials.Deleted = append(r.batch.Materials.Deleted, res.Deleted...)
	r.mats[owner] = res.ID
	return res.ID
}

func (q *Queue) bindTexture(id model.ObjectID, r *resolution) model.ContentID {
	if c, ok := r.texs[id]; ok {
		return c
	}
	tex, ok := q.doc.Texture(id)
	if !ok {
		q.log.Debug("texture not found", "texture", id)
		_, _ = q.content.Release(model.KindTexture, id)
		r.texs[id] = 0
		return 0
	}
	c := q.content.AddTexture(id, tex).ID
	r.texs[id] = c
	return c
}

// setTextureUses records which textures user references and releases the
// ones nothing references any more.
func (q *Queue) setTextureUses(user model.ObjectID, kind model.Kind, textures []model.ObjectID, r *resolution) {
	for _, t := range q.com.texturesOf[user] {
		if slices.Contains(textures, t) {
			continue
		}
		users := q.com.textureUsers[t]
		delete(users, user)
		if len(users) == 0 {
			delete(q.com.textureUsers, t)
			_, _ = q.content.Release(model.KindTexture, t)
			delete(r.texs, t)
		}
	}
	for _, t := range textures {
		users, ok := q.com.textureUsers[t]
		if !ok {
			users = map[model.ObjectID]model.Kind{}
			q.com.textureUsers[t] = users
		}
		users[user] = kind
	}
	if len(textures) > 0 {
		q.com.texturesOf[user] = textures
	} else {
		delete(q.com.texturesOf, user)
	}
}

// rebindInstances points instances at the material owner's current content
// when only the material changed.
func (q *Queue) rebindInstances(owner model.ObjectID, r *resolution) {
	users, ok := q.com.materialUsers[owner]
	if !ok {
		return
	}
	id := q.bindMaterial(owner, r)
	for _, iid := range slices.Sorted(maps.Keys(users)) {
		mi := q.com.instances[iid]
		if mi.Material == id {
			continue
		}
		mi.Material = id
		q.com.instances[iid] = mi
		r.instChanged[iid] = mi
	}
}

func (q *Queue) releaseMaterials(r *resolution) {
	for _, owner := range sortedIDs(r.releaseMats) {
		if _, used := q.com.materialUsers[owner]; used {
			continue
		}
		deleted, _ := q.content.Release(model.KindMaterial, owner)
		r.batch.Materials.Deleted = append(r.batch.Materials.Deleted, deleted...)
		q.setTextureUses(owner, model.KindMaterial, nil, r)
		delete(r.mats, owner)
	}
}

// Lights and clipping planes.

func (q *Queue) displayAttributes(s model.Settings) model.DisplayAttributes {
	if q.opts.DisplayAttributes != nil {
		return *q.opts.DisplayAttributes
	}
	return s.DisplayAttributes
}

func (q *Queue) resolveLight(id model.ObjectID, s model.Settings, r *resolution) {
	obj, ok := q.doc.Object(id)
	visible := ok && !obj.InDefinition && obj.Kind == model.ObjectLight && obj.Light != nil &&
		!q.attrsHidden(obj.Attributes) &&
		(!q.opts.RespectDisplayAttributes || q.displayAttributes(s).ShowLights)

	prev, had := q.com.lights[id]
	if !visible {
		if had {
			delete(q.com.lights, id)
			r.batch.Lights.Deleted = append(r.batch.Lights.Deleted, id)
		}
		return
	}
	l := *obj.Light
	l.ID = id
	if had && model.CRC(prev) == model.CRC(l) {
		return
	}
	q.com.lights[id] = l
	r.batch.Lights.Changed = append(r.batch.Lights.Changed, l)
}

func (q *Queue) resolveClippingPlane(id model.ObjectID, s model.Settings, r *resolution) {
	obj, ok := q.doc.Object(id)
	visible := ok && !obj.InDefinition && obj.Kind == model.ObjectClippingPlane && obj.ClippingPlane != nil &&
		!q.attrsHidden(obj.Attributes) &&
		(!q.opts.RespectDisplayAttributes || q.displayAttributes(s).ShowClippingPlanes)

	prev, had := q.com.clips[id]
	if !visible {
		if had {
			delete(q.com.clips, id)
			r.batch.ClippingPlanes.Deleted = append(r.batch.ClippingPlanes.Deleted, id)
		}
		return
	}
	cp := *obj.ClippingPlane
	cp.ID = id
	if had && model.CRC(prev) == model.CRC(cp) {
		return
	}
	q.com.clips[id] = cp
	r.batch.ClippingPlanes.Changed = append(r.batch.ClippingPlanes.Changed, cp)
}

// Environments.

func (q *Queue) resolveEnvironments(s model.Settings, r *resolution) {
	dirty := maps.Clone(r.usages)
	for u, b := range q.com.envs {
		if _, ok := r.envOwners[b.owner]; ok {
			dirty[u] = struct{}{}
		}
	}
	for u, owner := range s.Environments {
		if _, ok := r.envOwners[owner]; ok {
			dirty[u] = struct{}{}
		}
	}
	for _, u := range model.EnvironmentUsages {
		if _, ok := dirty[u]; ok {
			q.resolveEnvironment(u, s.Environments[u], r)
		}
	}
}

func (q *Queue) resolveEnvironment(u model.EnvironmentUsage, owner model.ObjectID, r *resolution) {
	prev, had := q.com.envs[u]
	env, ok := q.doc.Environment(owner)
	if owner == uuid.Nil || !ok {
		if !had {
			return
		}
		delete(q.com.envs, u)
		r.envDelta(u, model.EnvironmentRecord{}, q.releaseEnvUsage(prev.owner, u, r))
		return
	}

	m, deleted := q.bindEnvironment(owner, env, r)
	if had && prev.owner != owner {
		deleted = append(deleted, q.releaseEnvUsage(prev.owner, u, r)...)
	}
	addTo(q.com.envUsers, owner, u)
	q.com.envs[u] = envBinding{owner: owner, id: m.id}
	if !had || prev.id != m.id || len(deleted) > 0 {
		r.envDelta(u, model.EnvironmentRecord{ID: m.id, Environment: m.env}, deleted)
	}
}

func (q *Queue) bindEnvironment(owner model.ObjectID, env model.Environment, r *resolution) (envMemo, []model.ContentID) {
	if m, ok := r.envs[owner]; ok {
		return m, nil
	}
	var textures []model.ObjectID
	if env.Texture.Empty() {
		env.Texture.Content = 0
	} else {
		env.Texture.Content = q.bindTexture(env.Texture.Texture, r)
		textures = []model.ObjectID{env.Texture.Texture}
	}
	res := q.content.AddEnvironment(owner, env)
	q.setTextureUses(owner, model.KindEnvironment, textures, r)
	m := envMemo{id: res.ID, env: env}
	r.envs[owner] = m
	return m, res.Deleted
}

func (q *Queue) releaseEnvUsage(owner model.ObjectID, u model.EnvironmentUsage, r *resolution) []model.ContentID {
	if !removeFrom(q.com.envUsers, owner, u) {
		return nil
	}
	deleted, _ := q.content.Release(model.KindEnvironment, owner)
	q.setTextureUses(owner, model.KindEnvironment, nil, r)
	delete(r.envs, owner)
	return deleted
}

// Singletons.

// changed records v's hash for kind and reports whether it differs from the
// last delivered one.
func (q *Queue) changed(kind model.Kind, v model.Hashable) bool {
	crc := model.CRC(v)
	if prev, ok := q.com.crcs[kind]; ok && prev == crc {
		return false
	}
	q.com.crcs[kind] = crc
	return true
}

func (q *Queue) targetView() (model.View, bool) {
	if q.opts.View != uuid.Nil {
		return q.doc.View(q.opts.View)
	}
	return q.doc.ActiveView()
}

func (q *Queue) resolveSingletons(s model.Settings, r *resolution) {
	b := &r.batch
	if r.view {
		if v, ok := q.targetView(); ok && q.changed(model.KindView, v) {
			b.View = &v
		}
	}
	if r.has(model.KindSun) && q.changed(model.KindSun, s.Sun) {
		b.Sun = &s.Sun
	}
	if r.has(model.KindSkylight) && q.changed(model.KindSkylight, s.Skylight) {
		b.Skylight = &s.Skylight
	}
	if r.has(model.KindGroundPlane) && q.changed(model.KindGroundPlane, s.GroundPlane) {
		b.GroundPlane = &s.GroundPlane
	}
	if r.has(model.KindLinearWorkflow) && q.changed(model.KindLinearWorkflow, s.LinearWorkflow) {
		b.LinearWorkflow = &s.LinearWorkflow
	}
	if r.has(model.KindRenderSettings) && q.changed(model.KindRenderSettings, s.RenderSettings) {
		b.RenderSettings = &s.RenderSettings
	}
	if r.has(model.KindDisplayAttributes) {
		if da := q.displayAttributes(s); q.changed(model.KindDisplayAttributes, da) {
			b.DisplayAttributes = &da
		}
	}
}

// finish dedupes and orders the records. An id that was both deleted and
// re-added within the flush is reported only as changed.
func (q *Queue) finish(r *resolution, world bool) model.Batch {
	b := r.batch
	b.Seq = q.seq
	b.World = world
	b.Timestamp = time.Now().UnixMilli()

	meshes := map[model.GeometryID]model.Mesh{}
	for _, m := range b.Meshes.Changed {
		if _, ok := meshes[m.ID]; !ok {
			meshes[m.ID] = m
		}
	}
	b.Meshes.Changed = nil
	for _, id := range slices.Sorted(maps.Keys(meshes)) {
		b.Meshes.Changed = append(b.Meshes.Changed, meshes[id])
	}
	b.Meshes.Deleted = settle(b.Meshes.Deleted, func(id model.GeometryID) bool {
		_, ok := meshes[id]
		return ok
	}, cmp.Compare[model.GeometryID])

	b.Instances.Changed = nil
	for _, id := range slices.Sorted(maps.Keys(r.instChanged)) {
		b.Instances.Changed = append(b.Instances.Changed, r.instChanged[id])
	}
	b.Instances.Deleted = settle(b.Instances.Deleted, func(id model.InstanceID) bool {
		_, ok := r.instChanged[id]
		return ok
	}, cmp.Compare[model.InstanceID])

	mats := map[model.ContentID]model.MaterialRecord{}
	for _, m := range b.Materials.Changed {
		if _, ok := mats[m.ID]; !ok {
			mats[m.ID] = m
		}
	}
	b.Materials.Changed = nil
	for _, id := range slices.Sorted(maps.Keys(mats)) {
		b.Materials.Changed = append(b.Materials.Changed, mats[id])
	}
	b.Materials.Deleted = settle(b.Materials.Deleted, func(id model.ContentID) bool {
		if _, ok := mats[id]; ok {
			return true
		}
		_, ok := q.content.Material(id)
		return ok
	}, cmp.Compare[model.ContentID])
	for _, id := range b.Materials.Deleted {
		delete(q.com.delivered, id)
	}

	slices.SortFunc(b.Lights.Changed, func(a, c model.Light) int { return model.CompareIDs(a.ID, c.ID) })
	b.Lights.Deleted = settle(b.Lights.Deleted, func(id model.ObjectID) bool {
		_, ok := q.com.lights[id]
		return ok
	}, model.CompareIDs)

	slices.SortFunc(b.ClippingPlanes.Changed, func(a, c model.ClippingPlane) int { return model.CompareIDs(a.ID, c.ID) })
	b.ClippingPlanes.Deleted = settle(b.ClippingPlanes.Deleted, func(id model.ObjectID) bool {
		_, ok := q.com.clips[id]
		return ok
	}, model.CompareIDs)

	live := q.com.envContents()
	for _, u := range model.EnvironmentUsages {
		d, ok := r.envDeltas[u]
		if !ok {
			continue
		}
		d.Deleted = settle(d.Deleted, func(id model.ContentID) bool {
			_, ok := live[id]
			return ok
		}, cmp.Compare[model.ContentID])
		b.Environments = append(b.Environments, *d)
	}
	return b
}

// settle drops duplicates and ids that are still live, then sorts.
func settle[T comparable](ids []T, live func(T) bool, compare func(a, b T) int) []T {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[T]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup || live(id) {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	slices.SortFunc(out, compare)
	return out
}

// dispatch delivers b in the fixed consumer order. List callbacks always
// run; the others only when their record is present.
func (q *Queue) dispatch(b model.Batch) {
	c := q.consumer
	if b.View != nil {
		q.safely(model.KindView, func() { c.ApplyViewChange(*b.View) })
	}
	q.safely(model.KindMesh, func() { c.ApplyMeshChanges(b.Meshes.Deleted, b.Meshes.Changed) })
	q.safely(model.KindMeshInstance, func() { c.ApplyMeshInstanceChanges(b.Instances.Deleted, b.Instances.Changed) })
	if b.Sun != nil {
		q.safely(model.KindSun, func() { c.ApplySunChanges(*b.Sun) })
	}
	if b.Skylight != nil {
		q.safely(model.KindSkylight, func() { c.ApplySkylightChanges(*b.Skylight) })
	}
	q.safely(model.KindLight, func() { c.ApplyLightChanges(b.Lights.Deleted, b.Lights.Changed) })
	q.safely(model.KindMaterial, func() { c.ApplyMaterialChanges(b.Materials.Deleted, b.Materials.Changed) })
	for _, e := range b.Environments {
		q.safely(model.KindEnvironment, func() { c.ApplyEnvironmentChanges(e.Usage, e.Environment, e.Deleted) })
	}
	if b.GroundPlane != nil {
		q.safely(model.KindGroundPlane, func() { c.ApplyGroundPlaneChanges(*b.GroundPlane) })
	}
	if b.LinearWorkflow != nil {
		q.safely(model.KindLinearWorkflow, func() { c.ApplyLinearWorkflowChanges(*b.LinearWorkflow) })
	}
	if b.RenderSettings != nil {
		q.safely(model.KindRenderSettings, func() { c.ApplyRenderSettingsChanges(*b.RenderSettings) })
	}
	q.safely(model.KindClippingPlane, func() { c.ApplyClippingPlaneChanges(b.ClippingPlanes.Deleted, b.ClippingPlanes.Changed) })
	if b.DisplayAttributes != nil {
		q.safely(model.KindDisplayAttributes, func() { c.ApplyDisplayAttributesChanges(*b.DisplayAttributes) })
	}
}
