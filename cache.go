package depot

import "github.com/rotisserie/eris"

var _ Cache[any] = &SimpleCache[any]{}

// SimpleCache is a bounded, name-keyed store with stable indices until an
// item is removed.
type SimpleCache[T any] struct {
	items       []T
	keys        []string
	itemIndices map[string]int
	maxCapacity int
}

func newSimpleCache[T any](capacity int) *SimpleCache[T] {
	return &SimpleCache[T]{
		itemIndices: make(map[string]int),
		maxCapacity: capacity,
	}
}

func (c *SimpleCache[T]) GetIndex(key string) (int, bool) {
	index, ok := c.itemIndices[key]
	return index, ok
}

func (c *SimpleCache[T]) GetItem(index int) *T {
	return &c.items[index]
}

func (c *SimpleCache[T]) Get(key string) (*T, bool) {
	index, ok := c.itemIndices[key]
	if !ok {
		return nil, false
	}
	return &c.items[index], true
}

// Register stores item under key. Registering an existing key replaces the
// item in place.
func (c *SimpleCache[T]) Register(key string, item T) (int, error) {
	if idx, ok := c.itemIndices[key]; ok {
		c.items[idx] = item
		return idx, nil
	}
	if len(c.itemIndices) >= c.maxCapacity {
		return -1, eris.Wrapf(ErrCapacityExceeded, "cache at maximum capacity (%d)", c.maxCapacity)
	}
	idx := len(c.items)
	c.itemIndices[key] = idx
	c.items = append(c.items, item)
	c.keys = append(c.keys, key)
	return idx, nil
}

// Remove deletes key. The last item takes the freed index.
func (c *SimpleCache[T]) Remove(key string) bool {
	idx, ok := c.itemIndices[key]
	if !ok {
		return false
	}
	last := len(c.items) - 1
	c.items[idx] = c.items[last]
	c.keys[idx] = c.keys[last]
	c.itemIndices[c.keys[idx]] = idx
	var zero T
	c.items[last] = zero
	c.items = c.items[:last]
	c.keys = c.keys[:last]
	delete(c.itemIndices, key)
	return true
}

// Keys returns the registered keys in index order.
func (c *SimpleCache[T]) Keys() []string {
	return c.keys
}

func (c *SimpleCache[T]) Len() int {
	return len(c.items)
}

func (c *SimpleCache[T]) Clear() {
	clear(c.items)
	c.items = c.items[:0]
	c.keys = c.keys[:0]
	clear(c.itemIndices)
}
