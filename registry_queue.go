package depot

import (
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/TheBitDrifter/depot/internal/statsd"
)

// Lock defers structural changes: until the matching Unlock, direct calls
// such as CreateEntity fail with LockedRegistryError and only Enqueue* calls
// are accepted. Locks nest.
func (r *Registry) Lock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks++
}

// Unlock releases one lock. Releasing the last lock flushes the queued
// operations and returns their joined errors.
func (r *Registry) Unlock() error {
	var events eventBuffer
	r.mu.Lock()
	if r.locks == 0 {
		r.mu.Unlock()
		return eris.New("unlock of unlocked registry")
	}
	r.locks--
	var err error
	if r.locks == 0 {
		err = r.flush(&events)
	}
	r.mu.Unlock()
	r.emit(events)
	return err
}

func (r *Registry) Locked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locks > 0
}

// Pending is the number of queued operations.
func (r *Registry) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pool.queue.Len()
}

// Flush applies the queued operations now. It fails while the registry is
// locked.
func (r *Registry) Flush() error {
	var events eventBuffer
	r.mu.Lock()
	var err error
	if r.locks > 0 {
		err = LockedRegistryError{}
	} else {
		err = r.flush(&events)
	}
	r.mu.Unlock()
	r.emit(events)
	return err
}

// EnqueueCreate queues the creation of n entities carrying components.
func (r *Registry) EnqueueCreate(n int, components ...Component) error {
	if _, err := r.components.signatureOf(components...); err != nil {
		return err
	}
	return r.enqueue(func() { r.pool.queue.EnqueueCreate(n, components) })
}

// EnqueueDestroy queues the destruction of entities. Queued component changes
// for them are dropped.
func (r *Registry) EnqueueDestroy(entities ...EntityHandle) error {
	return r.enqueue(func() { r.pool.queue.EnqueueDestroy(entities) })
}

// EnqueueAdd queues adding c to e with value. A later EnqueueAdd or
// EnqueueRemove for the same entity and component replaces this one.
func (r *Registry) EnqueueAdd(e EntityHandle, c Component, value any) error {
	info, err := r.components.resolve(c)
	if err != nil {
		return err
	}
	return r.enqueue(func() { r.pool.queue.EnqueueComponentOp(opAddComponent, e, info.id, c, value) })
}

func (r *Registry) EnqueueRemove(e EntityHandle, c Component) error {
	info, err := r.components.resolve(c)
	if err != nil {
		return err
	}
	return r.enqueue(func() { r.pool.queue.EnqueueComponentOp(opRemoveComponent, e, info.id, c, nil) })
}

// enqueue runs push under the registry lock and flushes when the registry is
// unlocked and BatchSize operations are pending.
func (r *Registry) enqueue(push func()) error {
	var events eventBuffer
	r.mu.Lock()
	push()
	var err error
	if r.locks == 0 && r.pool.queue.Len() >= r.cfg.EntityPool.BatchSize {
		err = r.flush(&events)
	}
	r.mu.Unlock()
	r.emit(events)
	return err
}

func (r *Registry) flush(events *eventBuffer) error {
	ops := r.pool.queue.drain()
	if len(ops) == 0 {
		return nil
	}
	defer statsd.EmitTiming(time.Now(), "registry.flush")

	var errs []error
	for _, op := range ops {
		switch op.typ {
		case opCreate:
			if _, err := r.createEntities(op.amount, op.components, events); err != nil {
				errs = append(errs, eris.Wrapf(err, "queued create of %d entities", op.amount))
			}
		case opAddComponent, opRemoveComponent:
			e := op.entities[0]
			if err := r.changeComponent(e, op.component, op.typ == opAddComponent, op.value, events); err != nil {
				errs = append(errs, eris.Wrapf(err, "queued component change on %v", e))
			}
		case opDestroy:
			for _, e := range op.entities {
				// owners destroyed earlier in the batch may have taken e with them
				if r.pool.IsAlive(e) {
					r.destroyEntity(e, events)
				}
			}
		}
	}
	r.pool.recordFlush(len(ops))
	r.log.Debug().Int("operations", len(ops)).Int("failed", len(errs)).Msg("flushed queued operations")
	return errors.Join(errs...)
}
