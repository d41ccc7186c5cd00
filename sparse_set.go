package depot

const invalidIndex = ^uint32(0)

const minDenseCapacity = 8

// The sparse side is paged so a set holding a few high ids stays small.
const (
	sparsePageBits = 10
	sparsePageSize = 1 << sparsePageBits
	sparsePageMask = sparsePageSize - 1
)

// SparseSet maps entity ids to a packed dense array. Lookups compare both id
// and generation, so a stale handle never resolves to a slot.
//
// An id is present with at most one generation at a time: inserting a newer
// generation of an id replaces the stale entry in place.
type SparseSet struct {
	guard        guard
	pages        [][]uint32
	dense        []EntityHandle
	sparseGrowth float64
	denseGrowth  float64
}

func NewSparseSet(cfg SparseSetConfig) *SparseSet {
	cfg = cfg.withDefaults()
	return &SparseSet{
		guard:        newGuard(cfg.ThreadSafe),
		pages:        make([][]uint32, 0, (cfg.InitialCapacity+sparsePageMask)>>sparsePageBits),
		dense:        make([]EntityHandle, 0, cfg.InitialCapacity),
		sparseGrowth: cfg.SparseGrowth,
		denseGrowth:  cfg.DenseGrowth,
	}
}

func newSparsePage() []uint32 {
	p := make([]uint32, sparsePageSize)
	for i := range p {
		p[i] = invalidIndex
	}
	return p
}

// slot returns the sparse entry for id, or invalidIndex.
func (s *SparseSet) slot(id uint32) uint32 {
	pi := int(id >> sparsePageBits)
	if pi >= len(s.pages) || s.pages[pi] == nil {
		return invalidIndex
	}
	return s.pages[pi][id&sparsePageMask]
}

// setSlot requires the page for id to exist.
func (s *SparseSet) setSlot(id, idx uint32) {
	s.pages[id>>sparsePageBits][id&sparsePageMask] = idx
}

func (s *SparseSet) Contains(e EntityHandle) bool {
	s.guard.RLock()
	defer s.guard.RUnlock()
	return s.indexOf(e) != invalidIndex
}

// ContainsID reports whether any generation of id is present.
func (s *SparseSet) ContainsID(id uint32) bool {
	s.guard.RLock()
	defer s.guard.RUnlock()
	return s.slot(id) != invalidIndex
}

// Index returns the dense index of e.
func (s *SparseSet) Index(e EntityHandle) (uint32, bool) {
	s.guard.RLock()
	defer s.guard.RUnlock()
	idx := s.indexOf(e)
	return idx, idx != invalidIndex
}

func (s *SparseSet) indexOf(e EntityHandle) uint32 {
	idx := s.slot(e.ID)
	if idx == invalidIndex || s.dense[idx] != e {
		return invalidIndex
	}
	return idx
}

// Insert adds e and returns its dense index. Inserting a present entity
// returns the existing index.
func (s *SparseSet) Insert(e EntityHandle) uint32 {
	s.guard.Lock()
	defer s.guard.Unlock()
	s.growSparse(e.ID)
	if idx := s.slot(e.ID); idx != invalidIndex {
		s.dense[idx] = e
		return idx
	}
	if len(s.dense) == cap(s.dense) {
		s.growDense()
	}
	idx := uint32(len(s.dense))
	s.dense = append(s.dense, e)
	s.setSlot(e.ID, idx)
	return idx
}

func (s *SparseSet) Remove(e EntityHandle) bool {
	_, _, ok := s.RemoveSwap(e)
	return ok
}

// RemoveSwap removes e by moving the last dense element into its slot. It
// reports the element now occupying slot; when e was last, moved is e itself.
// Parallel arrays mirror the removal with data[slot] = data[last].
func (s *SparseSet) RemoveSwap(e EntityHandle) (moved EntityHandle, slot uint32, ok bool) {
	s.guard.Lock()
	defer s.guard.Unlock()
	idx := s.indexOf(e)
	if idx == invalidIndex {
		return EntityHandle{}, 0, false
	}
	last := uint32(len(s.dense) - 1)
	moved = s.dense[last]
	s.dense[idx] = moved
	s.setSlot(moved.ID, idx)
	s.dense = s.dense[:last]
	s.setSlot(e.ID, invalidIndex)
	return moved, idx, true
}

// Entities returns the dense array. The slice is shared and only valid until
// the next mutation.
func (s *SparseSet) Entities() []EntityHandle {
	s.guard.RLock()
	defer s.guard.RUnlock()
	return s.dense
}

// At returns the entity at dense index i.
func (s *SparseSet) At(i int) EntityHandle {
	s.guard.RLock()
	defer s.guard.RUnlock()
	return s.dense[i]
}

func (s *SparseSet) Len() int {
	s.guard.RLock()
	defer s.guard.RUnlock()
	return len(s.dense)
}

func (s *SparseSet) Clear() {
	s.guard.Lock()
	defer s.guard.Unlock()
	for _, e := range s.dense {
		s.setSlot(e.ID, invalidIndex)
	}
	s.dense = s.dense[:0]
}

func (s *SparseSet) growSparse(id uint32) {
	pi := int(id >> sparsePageBits)
	if pi >= len(s.pages) {
		n := int(float64(len(s.pages)) * s.sparseGrowth)
		if n < pi+1 {
			n = pi + 1
		}
		grown := make([][]uint32, n)
		copy(grown, s.pages)
		s.pages = grown
	}
	if s.pages[pi] == nil {
		s.pages[pi] = newSparsePage()
	}
}

func (s *SparseSet) growDense() {
	n := int(float64(cap(s.dense)) * s.denseGrowth)
	if n <= cap(s.dense) {
		n = cap(s.dense) + 1
	}
	if n < minDenseCapacity {
		n = minDenseCapacity
	}
	grown := make([]EntityHandle, len(s.dense), n)
	copy(grown, s.dense)
	s.dense = grown
}

func (s *SparseSet) memoryUsage() uintptr {
	total := uintptr(cap(s.pages))*24 + uintptr(cap(s.dense))*8
	for _, p := range s.pages {
		total += uintptr(len(p)) * 4
	}
	return total
}
