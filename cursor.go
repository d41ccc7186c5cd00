package depot

import (
	"iter"
)

var _ iCursor = &Cursor{}

func newCursor(query QueryNode, r *Registry) *Cursor {
	return &Cursor{
		query:    query,
		registry: r,
	}
}

// Next advances to the next matched entity. The registry stays locked from the
// first call until Next returns false or Reset is called.
func (c *Cursor) Next() bool {
	if !c.initialized {
		c.initialize()
	}
	for c.current != nil {
		if c.entityIndex+1 < len(c.members) {
			c.entityIndex++
			return true
		}
		c.advance()
	}
	c.Reset()
	return false
}

// advance moves to the next matched archetype, or clears current when none is
// left.
func (c *Cursor) advance() {
	c.archIndex++
	c.entityIndex = -1
	if c.archIndex >= len(c.matched) {
		c.current, c.members = nil, nil
		return
	}
	c.current = c.matched[c.archIndex]
	c.members = c.current.Entities()
}

// Entities yields the index of each matched entity within its archetype and
// the entity itself.
func (c *Cursor) Entities() iter.Seq2[int, EntityHandle] {
	return func(yield func(int, EntityHandle) bool) {
		for c.Next() {
			if !yield(c.entityIndex, c.members[c.entityIndex]) {
				c.Reset()
				return
			}
		}
	}
}

func (c *Cursor) initialize() {
	if c.initialized {
		return
	}
	c.registry.Lock()
	c.locked = true
	c.err = nil
	c.matched = c.registry.match(c.query)
	c.archIndex = -1
	c.advance()
	c.initialized = true
}

// Reset rewinds the cursor and releases its lock on the registry. Operations
// queued during iteration are flushed then; see Err.
func (c *Cursor) Reset() {
	c.archIndex = 0
	c.entityIndex = -1
	c.current = nil
	c.members = nil
	c.matched = nil
	c.initialized = false
	if c.locked {
		c.locked = false
		c.err = c.registry.Unlock()
	}
}

// Err returns the error of the flush performed when the cursor released the
// registry.
func (c *Cursor) Err() error {
	return c.err
}

// CurrentEntity returns the entity the cursor is on.
func (c *Cursor) CurrentEntity() EntityHandle {
	if c.current == nil || c.entityIndex < 0 {
		return NilEntity
	}
	return c.members[c.entityIndex]
}

func (c *Cursor) CurrentArchetype() *Archetype {
	return c.current
}

func (c *Cursor) RemainingInArchetype() int {
	return len(c.members) - c.entityIndex - 1
}

// TotalMatched counts the entities of every matched archetype. Called before
// iteration it initializes the cursor, locking the registry.
func (c *Cursor) TotalMatched() int {
	if !c.initialized {
		c.initialize()
	}
	total := 0
	for _, arch := range c.matched {
		total += arch.Len()
	}
	return total
}
