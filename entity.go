package depot

import "fmt"

// EntityHandle names an entity. A handle is alive only while its Generation
// matches the pool's current generation for ID. Generation 0 is never issued,
// so the zero handle is never alive.
type EntityHandle struct {
	ID         uint32
	Generation uint32
}

// NilEntity is the zero handle.
var NilEntity = EntityHandle{}

func (e EntityHandle) IsNil() bool {
	return e.Generation == 0
}

func (e EntityHandle) String() string {
	return fmt.Sprintf("%d:%d", e.ID, e.Generation)
}

func nextGeneration(g uint32) uint32 {
	g++
	if g == 0 {
		g = 1
	}
	return g
}
