package depot

import (
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// componentStorage is the type-erased face of a chunkSet, so archetypes can
// hold columns of different component types.
type componentStorage interface {
	componentID() ComponentID
	len() int
	has(e EntityHandle) bool
	// insertValue stores v (a T, a *T, or nil for the zero value) for e.
	insertValue(e EntityHandle, v any) error
	// transfer moves e's value into dst, which must hold the same type.
	transfer(e EntityHandle, dst componentStorage) error
	remove(e EntityHandle) bool
	value(e EntityHandle) (any, bool)
	encode(e EntityHandle) ([]byte, error)
	decodeInto(e EntityHandle, data []byte) error
	chunkCount() int
	memoryUsage() uintptr
	clear()
}

var _ componentStorage = &chunkSet[struct{}]{}

func (s *chunkSet[T]) componentID() ComponentID {
	return s.id
}

func (s *chunkSet[T]) len() int {
	return s.size
}

func (s *chunkSet[T]) has(e EntityHandle) bool {
	_, ok := s.chunkOf(e)
	return ok
}

func (s *chunkSet[T]) insertValue(e EntityHandle, v any) error {
	val, err := valueAs[T](v)
	if err != nil {
		return err
	}
	_, err = s.insert(e, val)
	return err
}

func valueAs[T any](v any) (T, error) {
	var zero T
	switch v := v.(type) {
	case nil:
		return zero, nil
	case T:
		return v, nil
	case *T:
		if v == nil {
			return zero, nil
		}
		return *v, nil
	default:
		return zero, eris.Wrapf(ErrComponentType, "want %T, got %T", zero, v)
	}
}

func (s *chunkSet[T]) transfer(e EntityHandle, dst componentStorage) error {
	d, ok := dst.(*chunkSet[T])
	if !ok {
		return eris.Wrapf(ErrComponentType, "cannot transfer component %d into %T", s.id, dst)
	}
	p, ok := s.get(e)
	if !ok {
		return eris.Errorf("entity %v has no value for component %d", e, s.id)
	}
	if _, err := d.insert(e, *p); err != nil {
		return err
	}
	s.remove(e)
	return nil
}

func (s *chunkSet[T]) value(e EntityHandle) (any, bool) {
	p, ok := s.get(e)
	if !ok {
		return nil, false
	}
	return *p, true
}

func (s *chunkSet[T]) encode(e EntityHandle) ([]byte, error) {
	p, ok := s.get(e)
	if !ok {
		return nil, eris.Errorf("entity %v has no value for component %d", e, s.id)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to encode component %d", s.id)
	}
	return data, nil
}

func (s *chunkSet[T]) decodeInto(e EntityHandle, data []byte) error {
	var v T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &v); err != nil {
			return eris.Wrapf(err, "failed to decode component %d", s.id)
		}
	}
	_, err := s.insert(e, v)
	return err
}

func (s *chunkSet[T]) chunkCount() int {
	return len(s.chunks)
}

func (s *chunkSet[T]) memoryUsage() uintptr {
	var total uintptr
	for _, c := range s.chunks {
		total += uintptr(cap(c.data))*s.layout.ComponentSize + c.members.memoryUsage()
	}
	return total + uintptr(s.owner.Len())*8
}
