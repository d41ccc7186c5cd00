package depot

import (
	"fmt"
	"time"
)

// QueryDescriptor identifies a query by the components it requires and
// excludes. Descriptors are immutable and comparable; the cache keys on them.
type QueryDescriptor struct {
	Required Signature
	Excluded Signature
	hash     uint64
}

func NewQueryDescriptor(required, excluded Signature) QueryDescriptor {
	return QueryDescriptor{
		Required: required,
		Excluded: excluded,
		hash:     hashSignatures(required, excluded),
	}
}

func (d QueryDescriptor) Hash() uint64 {
	return d.hash
}

// Matches reports whether an archetype with signature sig is part of the
// query's result.
func (d QueryDescriptor) Matches(sig Signature) bool {
	return sig.Matches(d.Required, d.Excluded)
}

// Evaluate lets a descriptor drive a Cursor like any QueryNode.
func (d QueryDescriptor) Evaluate(a *Archetype, _ *Registry) bool {
	return d.Matches(a.sig.Mask)
}

// touches reports whether a change to the bits in changed can alter the
// result.
func (d QueryDescriptor) touches(changed Signature) bool {
	return (d.Required|d.Excluded)&changed != 0
}

func (d QueryDescriptor) String() string {
	return fmt.Sprintf("require %v exclude %v", d.Required, d.Excluded)
}

// QueryResult is a cached query answer. It is owned by the cache: callers
// must not modify it, and it is only valid until the next structural change.
type QueryResult struct {
	Archetypes []ArchetypeID
	Entities   []EntityHandle
	CreatedAt  time.Time
	lastAccess time.Time
	accesses   uint64
}

func (r *QueryResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Entities)
}

func (r *QueryResult) LastAccess() time.Time {
	return r.lastAccess
}

func (r *QueryResult) Accesses() uint64 {
	return r.accesses
}

func (r *QueryResult) touch(now time.Time) {
	r.lastAccess = now
	r.accesses++
}

func (r *QueryResult) memoryUsage() uintptr {
	return uintptr(cap(r.Archetypes))*4 + uintptr(cap(r.Entities))*8 + 64
}

// QueryBuilder assembles a QueryDescriptor from components.
type QueryBuilder struct {
	required []Component
	excluded []Component
}

func (b *QueryBuilder) With(components ...Component) *QueryBuilder {
	b.required = append(b.required, components...)
	return b
}

func (b *QueryBuilder) Without(components ...Component) *QueryBuilder {
	b.excluded = append(b.excluded, components...)
	return b
}

// Build resolves the components in r and returns the descriptor.
func (b *QueryBuilder) Build(r *Registry) (QueryDescriptor, error) {
	required, err := r.components.signatureOf(b.required...)
	if err != nil {
		return QueryDescriptor{}, err
	}
	excluded, err := r.components.signatureOf(b.excluded...)
	if err != nil {
		return QueryDescriptor{}, err
	}
	return NewQueryDescriptor(required, excluded), nil
}
