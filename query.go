package depot

import (
	"github.com/TheBitDrifter/mask"
)

// Operation combines a filter node's own components with its children.
type Operation int

const (
	// OpAnd: every component and every child.
	OpAnd Operation = iota
	// OpOr: any component or any child.
	OpOr
	// OpNot: no component and no child.
	OpNot
)

// filterNode is one node of a composite filter tree. Components are resolved
// against the evaluating registry, so one tree can filter several registries.
type filterNode struct {
	op         Operation
	components []Component
	children   []QueryNode
}

type query struct {
	root QueryNode
}

func newQuery() Query {
	return &query{}
}

// resolve marks the node's component ids in r. complete is false when one of
// them was never registered there, so no archetype can carry it.
func (n *filterNode) resolve(r *Registry) (m mask.Mask, complete bool) {
	complete = true
	for _, c := range n.components {
		info, ok := r.components.lookup(c)
		if !ok {
			complete = false
			continue
		}
		m.Mark(uint32(info.id))
	}
	return m, complete
}

func (n *filterNode) Evaluate(archetype *Archetype, r *Registry) bool {
	own, complete := n.resolve(r)
	have := archetype.Mask()

	switch n.op {
	case OpAnd:
		return complete && have.ContainsAll(own) && n.childrenMatch(archetype, r, true)
	case OpOr:
		return have.ContainsAny(own) || n.anyChildMatches(archetype, r)
	case OpNot:
		return !have.ContainsAny(own) && !n.anyChildMatches(archetype, r)
	}
	return false
}

// childrenMatch reports whether every child evaluates to want.
func (n *filterNode) childrenMatch(archetype *Archetype, r *Registry, want bool) bool {
	for _, child := range n.children {
		if child.Evaluate(archetype, r) != want {
			return false
		}
	}
	return true
}

func (n *filterNode) anyChildMatches(archetype *Archetype, r *Registry) bool {
	return len(n.children) > 0 && !n.childrenMatch(archetype, r, false)
}

func (q *query) And(items ...any) QueryNode {
	return q.add(OpAnd, items)
}

func (q *query) Or(items ...any) QueryNode {
	return q.add(OpOr, items)
}

func (q *query) Not(items ...any) QueryNode {
	return q.add(OpNot, items)
}

// add builds a node from items (components, component slices or nodes); the
// first node built becomes the root.
func (q *query) add(op Operation, items []any) QueryNode {
	node := &filterNode{op: op}
	for _, item := range items {
		switch v := item.(type) {
		case Component:
			node.components = append(node.components, v)
		case []Component:
			node.components = append(node.components, v...)
		case QueryNode:
			node.children = append(node.children, v)
		}
	}
	if q.root == nil {
		q.root = node
	}
	return node
}

func (q *query) Evaluate(archetype *Archetype, r *Registry) bool {
	if q.root == nil {
		return false
	}
	return q.root.Evaluate(archetype, r)
}
