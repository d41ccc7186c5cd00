package depot

import "sync"

type operation struct {
	typ        operationType
	amount     int
	components []Component
	entities   []EntityHandle
	component  Component
	value      any
}

type operationType int

const (
	opNoop operationType = iota - 1
	opCreate
	opDestroy
	opAddComponent
	opRemoveComponent
)

type opKey struct {
	entity    EntityHandle
	component ComponentID
}

// opQueue buffers structural changes. Flushing runs creates, then component
// changes, then destroys. The queue has its own mutex, independent of the
// registry's ThreadSafe setting, since ParallelEach callbacks enqueue from
// several goroutines.
type opQueue struct {
	mu             sync.Mutex
	createOps      []operation
	componentOps   []operation
	destroyOps     []operation
	pendingDestroy map[EntityHandle]struct{}
	pendingMods    map[opKey]int
	pending        int
}

func newOpQueue() *opQueue {
	return &opQueue{
		pendingDestroy: make(map[EntityHandle]struct{}),
		pendingMods:    make(map[opKey]int),
	}
}

func (q *opQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

func (q *opQueue) EnqueueCreate(amount int, components []Component) {
	if amount <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.createOps = append(q.createOps, operation{
		typ:        opCreate,
		amount:     amount,
		components: components,
	})
	q.pending++
}

func (q *opQueue) EnqueueDestroy(entities []EntityHandle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	// Filter out already queued entities
	var newEntities []EntityHandle
	for _, e := range entities {
		if _, exists := q.pendingDestroy[e]; exists {
			continue
		}
		newEntities = append(newEntities, e)
		q.pendingDestroy[e] = struct{}{}
	}
	if len(newEntities) == 0 {
		return
	}

	// Drop pending component operations for the doomed entities
	for key, idx := range q.pendingMods {
		if _, doomed := q.pendingDestroy[key.entity]; doomed {
			q.componentOps[idx].typ = opNoop
			delete(q.pendingMods, key)
			q.pending--
		}
	}

	q.destroyOps = append(q.destroyOps, operation{
		typ:      opDestroy,
		entities: newEntities,
	})
	q.pending++
}

// EnqueueComponentOp queues an add or remove. A later op for the same entity
// and component replaces the earlier one.
func (q *opQueue) EnqueueComponentOp(typ operationType, e EntityHandle, id ComponentID, c Component, value any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, doomed := q.pendingDestroy[e]; doomed {
		return
	}
	key := opKey{entity: e, component: id}
	if idx, exists := q.pendingMods[key]; exists {
		existing := &q.componentOps[idx]
		existing.typ = typ
		existing.value = value
		return
	}
	q.pendingMods[key] = len(q.componentOps)
	q.componentOps = append(q.componentOps, operation{
		typ:       typ,
		entities:  []EntityHandle{e},
		component: c,
		value:     value,
	})
	q.pending++
}

// drain hands back the buffered operations in flush order and resets the
// queue.
func (q *opQueue) drain() []operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == 0 {
		return nil
	}
	ops := make([]operation, 0, len(q.createOps)+len(q.componentOps)+len(q.destroyOps))
	ops = append(ops, q.createOps...)
	for _, op := range q.componentOps {
		if op.typ != opNoop {
			ops = append(ops, op)
		}
	}
	ops = append(ops, q.destroyOps...)

	q.createOps = q.createOps[:0]
	q.componentOps = q.componentOps[:0]
	q.destroyOps = q.destroyOps[:0]
	clear(q.pendingDestroy)
	clear(q.pendingMods)
	q.pending = 0
	return ops
}
