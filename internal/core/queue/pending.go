package queue

import (
	"scenequeue/internal/core/docwatch"
	"scenequeue/internal/model"
)

type pendingKey struct {
	kind  model.Kind
	id    model.ObjectID
	usage model.EnvironmentUsage
}

// pending holds at most one operation per entity between flushes.
type pending struct {
	ops   map[pendingKey]docwatch.Op
	order []pendingKey
	world bool
}

func newPending() *pending {
	return &pending{ops: map[pendingKey]docwatch.Op{}}
}

// merge folds next into prev. A zero result means the edits cancel out.
func merge(prev, next docwatch.Op) docwatch.Op {
	switch {
	case next == docwatch.OpModify:
		return prev
	case prev == docwatch.OpAdd && next == docwatch.OpDelete:
		return 0
	case prev == docwatch.OpModify && next == docwatch.OpDelete:
		return docwatch.OpDelete
	case prev == docwatch.OpDelete && next == docwatch.OpAdd:
		return docwatch.OpModify
	}
	return prev
}

// add records c and reports whether it was merged into an earlier entry.
func (p *pending) add(c docwatch.Change) bool {
	k := pendingKey{kind: c.Kind, id: c.ID, usage: c.Usage}
	prev, ok := p.ops[k]
	if !ok {
		p.ops[k] = c.Op
		p.order = append(p.order, k)
		return false
	}
	if op := merge(prev, c.Op); op != 0 {
		p.ops[k] = op
	} else {
		delete(p.ops, k)
	}
	return true
}

func (p *pending) len() int { return len(p.ops) }

// drain returns the surviving changes in first-seen order and resets.
func (p *pending) drain() (changes []docwatch.Change, world bool) {
	seen := make(map[pendingKey]struct{}, len(p.ops))
	for _, k := range p.order {
		op, ok := p.ops[k]
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		changes = append(changes, docwatch.Change{Kind: k.kind, ID: k.id, Usage: k.usage, Op: op})
	}
	world = p.world
	p.ops = map[pendingKey]docwatch.Op{}
	p.order = nil
	p.world = false
	return changes, world
}

// supersede drops the incremental backlog in favour of a full rebuild.
func (p *pending) supersede() {
	p.ops = map[pendingKey]docwatch.Op{}
	p.order = nil
	p.world = true
}
