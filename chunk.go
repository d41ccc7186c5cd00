package depot

import (
	"math/bits"
	"unsafe"

	"github.com/kamstrup/intmap"
	"github.com/rotisserie/eris"
)

// ChunkLayout is the sizing of one chunk of a component type.
type ChunkLayout struct {
	ComponentSize uintptr
	Alignment     uintptr
	Capacity      int
	// CapacityBytes is Capacity*ComponentSize.
	CapacityBytes uintptr
	// PaddingBytes is the part of the chunk budget left unused.
	PaddingBytes uintptr
}

// ChunkLayoutFor computes the chunk layout of T under cfg.
func ChunkLayoutFor[T any](cfg ChunkConfig) (ChunkLayout, error) {
	var zero T
	return layoutFor(unsafe.Sizeof(zero), unsafe.Alignof(zero), cfg)
}

func layoutFor(size, align uintptr, cfg ChunkConfig) (ChunkLayout, error) {
	if cfg.ChunkBytes <= 0 || cfg.Alignment <= 0 {
		return ChunkLayout{}, eris.Wrapf(ErrAllocationFailure, "invalid chunk budget %d/%d", cfg.ChunkBytes, cfg.Alignment)
	}
	alignment := nextPowerOfTwo(max(align, uintptr(cfg.Alignment)))
	budget := uintptr(cfg.ChunkBytes)
	usable := budget - budget%alignment
	if usable == 0 {
		return ChunkLayout{}, eris.Wrapf(ErrAllocationFailure, "chunk of %d bytes cannot hold alignment %d", budget, alignment)
	}
	l := ChunkLayout{ComponentSize: size, Alignment: alignment}
	if size == 0 {
		l.Capacity = int(budget)
		l.PaddingBytes = budget
		return l, nil
	}
	l.Capacity = int(usable / size)
	if l.Capacity == 0 {
		// oversized components get single-slot chunks
		l.Capacity = 1
	}
	hi, lo := bits.Mul64(uint64(size), uint64(l.Capacity))
	if hi != 0 {
		return ChunkLayout{}, eris.Wrapf(ErrAllocationFailure, "chunk of %d x %d bytes overflows", l.Capacity, size)
	}
	l.CapacityBytes = uintptr(lo)
	if l.CapacityBytes < budget {
		l.PaddingBytes = budget - l.CapacityBytes
	}
	return l, nil
}

func nextPowerOfTwo(v uintptr) uintptr {
	if v <= 1 {
		return 1
	}
	return uintptr(1) << bits.Len64(uint64(v-1))
}

// chunk holds up to layout.Capacity components of one type in a contiguous,
// aligned slice. data and members stay in lockstep: data[i] belongs to
// members.At(i).
type chunk[T any] struct {
	data        []T
	members     *SparseSet
	simdAligned bool
}

func newChunk[T any](layout ChunkLayout, ss SparseSetConfig) *chunk[T] {
	data, aligned := alignedSlice[T](layout)
	ss.InitialCapacity = min(layout.Capacity, 64)
	return &chunk[T]{
		data:        data,
		members:     NewSparseSet(ss),
		simdAligned: aligned,
	}
}

// alignedSlice allocates capacity plus slack elements and returns the
// zero-length window whose first element satisfies the layout alignment.
// The window keeps the backing array reachable for the GC.
func alignedSlice[T any](layout ChunkLayout) ([]T, bool) {
	size, align := layout.ComponentSize, layout.Alignment
	if size == 0 {
		return make([]T, 0, layout.Capacity), false
	}
	slack := int(align / gcd(size, align))
	buf := make([]T, layout.Capacity+slack)
	for k := 0; k < slack; k++ {
		if uintptr(unsafe.Pointer(&buf[k]))%align == 0 {
			return buf[k:k:k+layout.Capacity], true
		}
	}
	return buf[0:0:layout.Capacity], false
}

func gcd(a, b uintptr) uintptr {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func (c *chunk[T]) len() int {
	return len(c.data)
}

func (c *chunk[T]) full() bool {
	return len(c.data) == cap(c.data)
}

// insert stores v for e. An entity already in the chunk has its value
// replaced.
func (c *chunk[T]) insert(e EntityHandle, v T) (*T, error) {
	if c.full() && !c.members.ContainsID(e.ID) {
		return nil, ErrChunkFull
	}
	idx := c.members.Insert(e)
	if int(idx) == len(c.data) {
		c.data = append(c.data, v)
	} else {
		c.data[idx] = v
	}
	return &c.data[idx], nil
}

func (c *chunk[T]) remove(e EntityHandle) bool {
	_, slot, ok := c.members.RemoveSwap(e)
	if !ok {
		return false
	}
	last := len(c.data) - 1
	c.data[slot] = c.data[last]
	var zero T
	c.data[last] = zero
	c.data = c.data[:last]
	return true
}

func (c *chunk[T]) get(e EntityHandle) *T {
	p, _ := c.tryGet(e)
	return p
}

func (c *chunk[T]) tryGet(e EntityHandle) (*T, bool) {
	idx, ok := c.members.Index(e)
	if !ok {
		return nil, false
	}
	return &c.data[idx], true
}

func (c *chunk[T]) components() []T {
	return c.data
}

func (c *chunk[T]) entities() []EntityHandle {
	return c.members.Entities()
}

// chunkSet stores one component type for one archetype across as many chunks
// as needed.
type chunkSet[T any] struct {
	id     ComponentID
	layout ChunkLayout
	cfg    ChunkConfig
	ss     SparseSetConfig
	chunks []*chunk[T]
	owner  *intmap.Map[uint32, int32] // entity id -> chunk index
	hint   int                        // lowest chunk index that may have room
	size   int
}

func newChunkSet[T any](id ComponentID, layout ChunkLayout, cfg ChunkConfig, ss SparseSetConfig) *chunkSet[T] {
	return &chunkSet[T]{
		id:     id,
		layout: layout,
		cfg:    cfg,
		ss:     ss,
		owner:  intmap.New[uint32, int32](64),
	}
}

func (s *chunkSet[T]) chunkOf(e EntityHandle) (int, bool) {
	ci, ok := s.owner.Get(e.ID)
	if !ok || !s.chunks[ci].members.Contains(e) {
		return 0, false
	}
	return int(ci), true
}

func (s *chunkSet[T]) chunkWithRoom() (int, error) {
	for i := s.hint; i < len(s.chunks); i++ {
		if !s.chunks[i].full() {
			s.hint = i
			return i, nil
		}
	}
	if len(s.chunks) >= s.cfg.MaxChunks {
		return 0, eris.Wrapf(ErrCapacityExceeded, "component %d: chunk limit %d reached", s.id, s.cfg.MaxChunks)
	}
	s.chunks = append(s.chunks, newChunk[T](s.layout, s.ss))
	s.hint = len(s.chunks) - 1
	return s.hint, nil
}

func (s *chunkSet[T]) insert(e EntityHandle, v T) (*T, error) {
	if ci, ok := s.chunkOf(e); ok {
		return s.chunks[ci].insert(e, v)
	}
	ci, err := s.chunkWithRoom()
	if err != nil {
		return nil, err
	}
	p, err := s.chunks[ci].insert(e, v)
	if err != nil {
		return nil, err
	}
	s.owner.Put(e.ID, int32(ci))
	s.size++
	return p, nil
}

func (s *chunkSet[T]) get(e EntityHandle) (*T, bool) {
	ci, ok := s.chunkOf(e)
	if !ok {
		return nil, false
	}
	return s.chunks[ci].tryGet(e)
}

func (s *chunkSet[T]) remove(e EntityHandle) bool {
	ci, ok := s.chunkOf(e)
	if !ok {
		return false
	}
	s.chunks[ci].remove(e)
	s.owner.Del(e.ID)
	s.size--
	if ci < s.hint {
		s.hint = ci
	}
	for n := len(s.chunks); n > 0 && s.chunks[n-1].len() == 0; n-- {
		s.chunks[n-1] = nil
		s.chunks = s.chunks[:n-1]
	}
	if s.hint > len(s.chunks) {
		s.hint = len(s.chunks)
	}
	return true
}

func (s *chunkSet[T]) clear() {
	clear(s.chunks)
	s.chunks = s.chunks[:0]
	s.owner.Clear()
	s.hint = 0
	s.size = 0
}

// ChunkView is the per-chunk view of one component column, for loops that
// walk components contiguously.
type ChunkView[T any] struct {
	Components  []T
	Entities    []EntityHandle
	SIMDAligned bool
}

func (s *chunkSet[T]) views() []ChunkView[T] {
	views := make([]ChunkView[T], 0, len(s.chunks))
	for _, c := range s.chunks {
		if c.len() == 0 {
			continue
		}
		views = append(views, ChunkView[T]{
			Components:  c.components(),
			Entities:    c.entities(),
			SIMDAligned: c.simdAligned,
		})
	}
	return views
}
