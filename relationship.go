package depot

// RelationshipType is the kind of a directed edge between two entities.
type RelationshipType uint8

const (
	// RelParent: From is the parent of To. An entity has at most one parent.
	RelParent RelationshipType = iota
	// RelOwns: From owns To. Destroying the owner destroys what it owns.
	RelOwns
	RelReferences
	RelDepends
	RelMemberOf
)

func (t RelationshipType) String() string {
	switch t {
	case RelParent:
		return "parent"
	case RelOwns:
		return "owns"
	case RelReferences:
		return "references"
	case RelDepends:
		return "depends"
	case RelMemberOf:
		return "member_of"
	}
	return "unknown"
}

type Relationship struct {
	From     EntityHandle
	To       EntityHandle
	Type     RelationshipType
	Strength uint32
}

// relationshipIndex is a multimap of relationships keyed by source id with a
// reverse index by target id. Endpoints are keyed by id only: relationships
// are dropped on destroy, before the id can be recycled.
type relationshipIndex struct {
	outgoing map[uint32][]Relationship
	incoming map[uint32]map[uint32]int // target -> source -> edge count
	count    int
}

func newRelationshipIndex() *relationshipIndex {
	return &relationshipIndex{
		outgoing: make(map[uint32][]Relationship),
		incoming: make(map[uint32]map[uint32]int),
	}
}

func (ri *relationshipIndex) has(from, to EntityHandle, typ RelationshipType) bool {
	for _, r := range ri.outgoing[from.ID] {
		if r.To == to && r.Type == typ {
			return true
		}
	}
	return false
}

// parentOf returns the parent of child, if any.
func (ri *relationshipIndex) parentOf(child EntityHandle) (EntityHandle, bool) {
	for _, r := range ri.to(child.ID) {
		if r.Type == RelParent {
			return r.From, true
		}
	}
	return EntityHandle{}, false
}

func (ri *relationshipIndex) add(rel Relationship) {
	ri.outgoing[rel.From.ID] = append(ri.outgoing[rel.From.ID], rel)
	sources, ok := ri.incoming[rel.To.ID]
	if !ok {
		sources = make(map[uint32]int)
		ri.incoming[rel.To.ID] = sources
	}
	sources[rel.From.ID]++
	ri.count++
}

func (ri *relationshipIndex) remove(from, to EntityHandle, typ RelationshipType) bool {
	rels := ri.outgoing[from.ID]
	for i, r := range rels {
		if r.To != to || r.Type != typ {
			continue
		}
		rels[i] = rels[len(rels)-1]
		rels = rels[:len(rels)-1]
		if len(rels) == 0 {
			delete(ri.outgoing, from.ID)
		} else {
			ri.outgoing[from.ID] = rels
		}
		ri.dropIncoming(to.ID, from.ID)
		ri.count--
		return true
	}
	return false
}

func (ri *relationshipIndex) dropIncoming(target, source uint32) {
	sources := ri.incoming[target]
	if sources == nil {
		return
	}
	sources[source]--
	if sources[source] <= 0 {
		delete(sources, source)
	}
	if len(sources) == 0 {
		delete(ri.incoming, target)
	}
}

func (ri *relationshipIndex) from(id uint32) []Relationship {
	return ri.outgoing[id]
}

func (ri *relationshipIndex) to(id uint32) []Relationship {
	var rels []Relationship
	for source := range ri.incoming[id] {
		for _, r := range ri.outgoing[source] {
			if r.To.ID == id {
				rels = append(rels, r)
			}
		}
	}
	return rels
}

// removeEntity drops every relationship where id is either endpoint and
// returns how many were removed.
func (ri *relationshipIndex) removeEntity(id uint32) int {
	removed := 0
	for _, r := range ri.outgoing[id] {
		ri.dropIncoming(r.To.ID, id)
		removed++
	}
	delete(ri.outgoing, id)

	for source := range ri.incoming[id] {
		rels := ri.outgoing[source]
		kept := rels[:0]
		for _, r := range rels {
			if r.To.ID == id {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(ri.outgoing, source)
		} else {
			ri.outgoing[source] = kept
		}
	}
	delete(ri.incoming, id)
	ri.count -= removed
	return removed
}

func (ri *relationshipIndex) clear() {
	clear(ri.outgoing)
	clear(ri.incoming)
	ri.count = 0
}
