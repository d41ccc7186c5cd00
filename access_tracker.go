package depot

import "sync/atomic"

// AccessTracker counts component reads and flags components whose count
// crosses a threshold. It is a signal only; storage layout does not change.
type AccessTracker struct {
	threshold uint64
	counts    [MaxComponents]atomic.Uint64
	hot       [MaxComponents]atomic.Bool
	onHot     func(ComponentID)
}

// NewAccessTracker returns a tracker that calls onHot (when not nil) once per
// component, the first time its count reaches threshold. A zero threshold
// disables hot detection.
func NewAccessTracker(threshold uint64, onHot func(ComponentID)) *AccessTracker {
	return &AccessTracker{threshold: threshold, onHot: onHot}
}

func (t *AccessTracker) Record(id ComponentID) {
	n := t.counts[id].Add(1)
	if t.threshold == 0 || n < t.threshold {
		return
	}
	if t.hot[id].CompareAndSwap(false, true) && t.onHot != nil {
		t.onHot(id)
	}
}

func (t *AccessTracker) Count(id ComponentID) uint64 {
	return t.counts[id].Load()
}

func (t *AccessTracker) IsHot(id ComponentID) bool {
	return t.hot[id].Load()
}

// Hot returns the signature of every hot component.
func (t *AccessTracker) Hot() Signature {
	var s Signature
	for i := range t.hot {
		if t.hot[i].Load() {
			s = s.With(ComponentID(i))
		}
	}
	return s
}

func (t *AccessTracker) Reset() {
	for i := range t.counts {
		t.counts[i].Store(0)
		t.hot[i].Store(false)
	}
}
