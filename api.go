package depot

import (
	"iter"
)

// Query builds a tree of composite filter nodes. The first node built is the
// root that Evaluate delegates to.
type Query interface {
	QueryNode
	And(items ...any) QueryNode
	Or(items ...any) QueryNode
	Not(items ...any) QueryNode
}

// QueryNode decides whether an archetype's entities belong to a result.
type QueryNode interface {
	Evaluate(archetype *Archetype, r *Registry) bool
}

type iCursor interface {
	Entities() iter.Seq2[int, EntityHandle]
	Next() bool
}

type Cache[T any] interface {
	GetIndex(string) (int, bool)
	GetItem(int) *T
	Get(string) (*T, bool)
	Register(string, T) (int, error)
	Remove(string) bool
}

// Warning: internal dependencies abound!
type Cursor struct {
	// The filter selecting archetypes
	query QueryNode

	// The registry to iterate over
	registry *Registry

	// Current iteration state
	current     *Archetype
	members     []EntityHandle
	archIndex   int
	entityIndex int
	locked      bool
	err         error

	// Initialization state
	initialized bool
	matched     []*Archetype
}

// AccessibleComponent is a typed component handle. It is registry
// independent: each registry assigns the component its own id on first use.
type AccessibleComponent[T any] struct {
	Component
}
