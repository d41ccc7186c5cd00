package depot

import (
	"context"
	"errors"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Query returns the entities carrying every component in required. The slice
// belongs to the caller.
func (r *Registry) Query(required ...Component) ([]EntityHandle, error) {
	sig, err := r.components.signatureOf(required...)
	if err != nil {
		return nil, err
	}
	res, err := r.Execute(NewQueryDescriptor(sig, 0))
	if err != nil {
		return nil, err
	}
	return slices.Clone(res.Entities), nil
}

// Execute returns the result of desc, from the query cache when possible. The
// result is shared with the cache: treat it as read only and do not keep it
// across structural changes.
func (r *Registry) Execute(desc QueryDescriptor) (*QueryResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id := range desc.Required.Components() {
		r.tracker.Record(id)
	}
	if r.cache == nil {
		return r.buildResult(desc)
	}
	return r.cache.Execute(desc, r.buildResult)
}

// buildResult requires the registry lock.
func (r *Registry) buildResult(desc QueryDescriptor) (*QueryResult, error) {
	ids := r.archetypes.QueryArchetypes(desc.Required, desc.Excluded)
	n := 0
	for _, id := range ids {
		n += r.archetypes.get(id).Len()
	}
	res := &QueryResult{
		Archetypes: ids,
		Entities:   make([]EntityHandle, 0, n),
	}
	for _, id := range ids {
		res.Entities = append(res.Entities, r.archetypes.get(id).Entities()...)
	}
	return res, nil
}

// Filter returns the entities of every archetype node accepts. Filters are
// not cached.
func (r *Registry) Filter(node QueryNode) []EntityHandle {
	var out []EntityHandle
	r.visitMatches(node, func(arch *Archetype) {
		out = append(out, arch.Entities()...)
	})
	return out
}

func (r *Registry) match(node QueryNode) []*Archetype {
	var out []*Archetype
	r.visitMatches(node, func(arch *Archetype) {
		out = append(out, arch)
	})
	return out
}

// visitMatches calls visit under the registry read lock for every archetype
// node accepts. Descriptors go through Execute so cursors over them share the
// query cache.
func (r *Registry) visitMatches(node QueryNode, visit func(*Archetype)) {
	var ids []ArchetypeID
	desc, cached := node.(QueryDescriptor)
	if cached {
		res, err := r.Execute(desc)
		if err == nil {
			ids = res.Archetypes
		}
		cached = err == nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cached {
		for _, id := range ids {
			visit(r.archetypes.get(id))
		}
		return
	}
	for _, arch := range r.archetypes.All() {
		if node.Evaluate(arch, r) {
			visit(arch)
		}
	}
}

// ParallelEach calls fn for every entity matched by desc, spreading batches of
// batch entities over at most Concurrency goroutines. The registry is locked
// for the duration, so fn may read components and queue changes but not apply
// them; queued changes are flushed before ParallelEach returns. The first
// error cancels the remaining batches.
func (r *Registry) ParallelEach(ctx context.Context, desc QueryDescriptor, batch int, fn func(context.Context, EntityHandle) error) error {
	if batch < 1 {
		batch = 1
	}
	r.Lock()
	res, err := r.Execute(desc)
	if err != nil {
		return errors.Join(err, r.Unlock())
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for part := range slices.Chunk(res.Entities, batch) {
		g.Go(func() error {
			for _, e := range part {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(ctx, e); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return errors.Join(g.Wait(), r.Unlock())
}
