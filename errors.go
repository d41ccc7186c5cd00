package depot

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded is returned when an entity, archetype, chunk or
	// cache limit would be exceeded.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrAllocationFailure is returned when a chunk layout cannot be sized.
	ErrAllocationFailure = errors.New("allocation failure")
	ErrChunkFull         = errors.New("chunk is full")
	ErrUnknownComponent  = errors.New("component is not registered with this registry")
	ErrComponentType     = errors.New("component value has the wrong type")
	ErrTemplateNotFound  = errors.New("template not found")
)

type LockedRegistryError struct{}

func (e LockedRegistryError) Error() string {
	return "registry is currently locked"
}

type InvalidEntityError struct {
	Entity EntityHandle
}

func (e InvalidEntityError) Error() string {
	return fmt.Sprintf("entity %v is not alive", e.Entity)
}

type DuplicateComponentError struct {
	Entity    EntityHandle
	Component string
}

func (e DuplicateComponentError) Error() string {
	return fmt.Sprintf("component already exists on entity %v: %s", e.Entity, e.Component)
}

type MissingComponentError struct {
	Entity    EntityHandle
	Component string
}

func (e MissingComponentError) Error() string {
	return fmt.Sprintf("component does not exist on entity %v: %s", e.Entity, e.Component)
}

type RelationshipError struct {
	From, To EntityHandle
	Type     RelationshipType
	Reason   string
}

func (e RelationshipError) Error() string {
	return fmt.Sprintf("cannot relate %v -[%s]-> %v: %s", e.From, e.Type, e.To, e.Reason)
}
