// Package instance flattens nested block references into mesh placements.
package instance

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"scenequeue/internal/model"
)

const DefaultMaxDepth = 64

// Resolver looks up document objects and block definitions.
type Resolver interface {
	Object(id model.ObjectID) (model.Object, bool)
	Definition(id model.ObjectID) (model.Definition, bool)
}

// Placement is one mesh leaf reached from a top-level object. Ancestry is
// ordered root first and Transform is its composition.
type Placement struct {
	Root      model.ObjectID
	Leaf      model.Object
	Ancestry  []model.AncestryLevel
	Transform mgl32.Mat4
}

type node struct {
	parent int
	level  model.AncestryLevel
	depth  int
}

type frameKind uint8

const (
	frameEnter frameKind = iota
	frameExit
	frameLeaf
)

type frame struct {
	kind frameKind
	node int
	def  model.ObjectID
	leaf model.Object
}

// Graph expands top-level objects and remembers which roots reach which
// definitions, so a definition edit can be mapped back to the roots that
// need re-expansion.
type Graph struct {
	r        Resolver
	log      *slog.Logger
	MaxDepth int

	mu      sync.Mutex
	users   map[model.ObjectID]map[model.ObjectID]struct{}
	reaches map[model.ObjectID][]model.ObjectID

	cycles atomic.Int64
}

func New(r Resolver, log *slog.Logger) *Graph {
	if log == nil {
		log = slog.Default()
	}
	return &Graph{
		r:        r,
		log:      log,
		MaxDepth: DefaultMaxDepth,
		users:    map[model.ObjectID]map[model.ObjectID]struct{}{},
		reaches:  map[model.ObjectID][]model.ObjectID{},
	}
}

// Flatten expands root into its mesh placements in definition order. A
// reference back into a definition already on the current path is skipped
// and counted; the rest of the tree is still expanded.
func (g *Graph) Flatten(root model.ObjectID) []Placement {
	obj, ok := g.r.Object(root)
	if !ok || obj.InDefinition {
		g.Forget(root)
		return nil
	}
	switch obj.Kind {
	case model.ObjectMesh:
		g.record(root, nil)
		return []Placement{{Root: root, Leaf: obj, Transform: mgl32.Ident4()}}
	case model.ObjectInstance:
	default:
		g.record(root, nil)
		return nil
	}
	if obj.Reference == nil {
		g.record(root, nil)
		return nil
	}

	maxDepth := g.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	arena := []node{{
		parent: -1,
		depth:  1,
		level: model.AncestryLevel{
			Reference:  obj.ID,
			Definition: obj.Reference.Definition,
			Attributes: obj.Attributes,
			Transform:  model.OrIdentity(obj.Reference.Transform),
		},
	}}
	stack := []frame{{kind: frameEnter, node: 0}}
	visiting := map[model.ObjectID]int{}
	reached := map[model.ObjectID]struct{}{}
	var out []Placement

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch f.kind {
		case frameExit:
			visiting[f.def]--
			if visiting[f.def] <= 0 {
				delete(visiting, f.def)
			}
			continue
		case frameLeaf:
			ancestry := chain(arena, f.node)
			out = append(out, Placement{
				Root:      root,
				Leaf:      f.leaf,
				Ancestry:  ancestry,
				Transform: model.ComposeAncestry(ancestry),
			})
			continue
		}

		n := arena[f.node]
		defID := n.level.Definition
		reached[defID] = struct{}{}
		if visiting[defID] > 0 {
			g.cycles.Add(1)
			g.log.Warn("block reference cycle truncated", "root", root, "reference", n.level.Reference, "definition", defID)
			continue
		}
		if n.depth > maxDepth {
			g.cycles.Add(1)
			g.log.Warn("block nesting too deep, truncated", "root", root, "reference", n.level.Reference, "depth", n.depth)
			continue
		}
		def, ok := g.r.Definition(defID)
		if !ok {
			g.log.Debug("block definition missing", "root", root, "definition", defID)
			continue
		}

		visiting[defID]++
		stack = append(stack, frame{kind: frameExit, def: defID})
		for i := len(def.Objects) - 1; i >= 0; i-- {
			member, ok := g.r.Object(def.Objects[i])
			if !ok {
				continue
			}
			switch member.Kind {
			case model.ObjectMesh:
				stack = append(stack, frame{kind: frameLeaf, node: f.node, leaf: member})
			case model.ObjectInstance:
				if member.Reference == nil {
					continue
				}
				arena = append(arena, node{
					parent: f.node,
					depth:  n.depth + 1,
					level: model.AncestryLevel{
						Reference:  member.ID,
						Definition: member.Reference.Definition,
						Attributes: member.Attributes,
						Transform:  model.OrIdentity(member.Reference.Transform),
					},
				})
				stack = append(stack, frame{kind: frameEnter, node: len(arena) - 1})
			default:
				g.log.Debug("non-mesh block member ignored", "definition", defID, "object", member.ID, "kind", member.Kind)
			}
		}
	}

	g.record(root, slices.SortedFunc(maps.Keys(reached), model.CompareIDs))
	return out
}

// chain returns the ancestry of node i, root first.
func chain(arena []node, i int) []model.AncestryLevel {
	var out []model.AncestryLevel
	for ; i >= 0; i = arena[i].parent {
		out = append(out, arena[i].level)
	}
	slices.Reverse(out)
	return out
}

func (g *Graph) record(root model.ObjectID, defs []model.ObjectID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forgetLocked(root)
	if len(defs) == 0 {
		return
	}
	g.reaches[root] = defs
	for _, d := range defs {
		set, ok := g.users[d]
		if !ok {
			set = map[model.ObjectID]struct{}{}
			g.users[d] = set
		}
		set[root] = struct{}{}
	}
}

func (g *Graph) forgetLocked(root model.ObjectID) {
	for _, d := range g.reaches[root] {
		if set, ok := g.users[d]; ok {
			delete(set, root)
			if len(set) == 0 {
				delete(g.users, d)
			}
		}
	}
	delete(g.reaches, root)
}

// Forget drops what is known about root.
func (g *Graph) Forget(root model.ObjectID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forgetLocked(root)
}

// Users returns the top-level objects whose last expansion reached def,
// directly or through nested references.
func (g *Graph) Users(def model.ObjectID) []model.ObjectID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.SortedFunc(maps.Keys(g.users[def]), model.CompareIDs)
}

// Cycles returns how many references have been truncated so far.
func (g *Graph) Cycles() int64 { return g.cycles.Load() }

func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users = map[model.ObjectID]map[model.ObjectID]struct{}{}
	g.reaches = map[model.ObjectID][]model.ObjectID{}
}
