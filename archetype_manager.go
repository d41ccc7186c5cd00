package depot

import (
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// EmptyArchetypeID is the archetype of entities without components. It
// exists from the start.
const EmptyArchetypeID ArchetypeID = 0

// ArchetypeManager owns every archetype of a registry and is the single source
// of truth for signature to archetype resolution.
type ArchetypeManager struct {
	cfg        ArchetypeConfig
	chunk      ChunkConfig
	sparse     SparseSetConfig
	components *componentRegistry
	archetypes []*Archetype
	bySig      map[Signature]ArchetypeID
	graph      *ArchetypeGraph
	log        zerolog.Logger
	onCreate   func(*Archetype)
}

func newArchetypeManager(cfg Config, components *componentRegistry, log zerolog.Logger) *ArchetypeManager {
	m := &ArchetypeManager{
		cfg:        cfg.Archetype,
		chunk:      cfg.Chunk,
		sparse:     cfg.SparseSet,
		components: components,
		bySig:      make(map[Signature]ArchetypeID),
		log:        log.With().Str("system", "archetypes").Logger(),
	}
	if cfg.Archetype.EnableGraph {
		m.graph = newArchetypeGraph()
	}
	empty, _ := newArchetype(EmptyArchetypeID, 0, components, m.chunk, m.sparse)
	m.archetypes = append(m.archetypes, empty)
	m.bySig[0] = EmptyArchetypeID
	return m
}

// GetOrCreate returns the archetype for sig, creating it on first sight.
func (m *ArchetypeManager) GetOrCreate(sig Signature) (ArchetypeID, error) {
	if id, ok := m.bySig[sig]; ok {
		return id, nil
	}
	if len(m.archetypes) >= m.cfg.MaxArchetypes {
		m.log.Error().
			Stringer("signature", sig).
			Int("max_archetypes", m.cfg.MaxArchetypes).
			Msg("archetype limit reached")
		return 0, eris.Wrapf(ErrCapacityExceeded, "cannot create archetype %v: limit %d reached", sig, m.cfg.MaxArchetypes)
	}
	id := ArchetypeID(len(m.archetypes))
	a, err := newArchetype(id, sig, m.components, m.chunk, m.sparse)
	if err != nil {
		return 0, err
	}
	m.archetypes = append(m.archetypes, a)
	m.bySig[sig] = id
	m.log.Debug().
		Uint32("archetype", uint32(id)).
		Stringer("signature", sig).
		Msg("archetype created")
	if n := len(m.archetypes); n == warnArchetypes(m.cfg.MaxArchetypes) {
		m.log.Warn().Int("archetypes", n).Msg("archetype count at 90% of the limit")
	}
	if m.onCreate != nil {
		m.onCreate(a)
	}
	return id, nil
}

// Lookup returns the archetype id for sig without creating it.
func (m *ArchetypeManager) Lookup(sig Signature) (ArchetypeID, bool) {
	id, ok := m.bySig[sig]
	return id, ok
}

func (m *ArchetypeManager) Get(id ArchetypeID) (*Archetype, bool) {
	if int(id) >= len(m.archetypes) {
		return nil, false
	}
	return m.archetypes[id], true
}

func (m *ArchetypeManager) get(id ArchetypeID) *Archetype {
	return m.archetypes[id]
}

func (m *ArchetypeManager) Len() int {
	return len(m.archetypes)
}

// All returns every archetype in id order.
func (m *ArchetypeManager) All() []*Archetype {
	return m.archetypes
}

// QueryArchetypes lists the archetypes that have every required component and
// none of the excluded ones.
func (m *ArchetypeManager) QueryArchetypes(required, excluded Signature) []ArchetypeID {
	var ids []ArchetypeID
	for _, a := range m.archetypes {
		if a.Matches(required, excluded) {
			ids = append(ids, a.id)
		}
	}
	return ids
}

// TargetForAdd resolves the archetype reached from from by adding component.
func (m *ArchetypeManager) TargetForAdd(from ArchetypeID, component ComponentID) (ArchetypeID, error) {
	return m.target(from, component, true)
}

// TargetForRemove resolves the archetype reached from from by removing
// component.
func (m *ArchetypeManager) TargetForRemove(from ArchetypeID, component ComponentID) (ArchetypeID, error) {
	return m.target(from, component, false)
}

func (m *ArchetypeManager) target(from ArchetypeID, component ComponentID, add bool) (ArchetypeID, error) {
	if m.graph != nil {
		if to, ok := m.graph.Next(from, component, add); ok {
			return to, nil
		}
	}
	sig := m.archetypes[from].sig.Mask
	if add {
		sig = sig.With(component)
	} else {
		sig = sig.Without(component)
	}
	to, err := m.GetOrCreate(sig)
	if err != nil {
		return 0, err
	}
	if m.graph != nil {
		if add {
			m.graph.Link(from, to, component)
		} else {
			m.graph.Link(to, from, component)
		}
	}
	return to, nil
}

// Graph returns the transition cache, or nil when disabled.
func (m *ArchetypeManager) Graph() *ArchetypeGraph {
	return m.graph
}

type ManagerStats struct {
	Archetypes      int
	EmptyArchetypes int
	Entities        int
	Chunks          int
	MemoryBytes     uintptr
	GraphEdges      int
	GraphHitRatio   float64
}

func (m *ArchetypeManager) Stats() ManagerStats {
	var s ManagerStats
	s.Archetypes = len(m.archetypes)
	for _, a := range m.archetypes {
		as := a.Stats()
		if as.Entities == 0 {
			s.EmptyArchetypes++
		}
		s.Entities += as.Entities
		s.Chunks += as.Chunks
		s.MemoryBytes += as.MemoryBytes
	}
	if m.graph != nil {
		s.GraphEdges = m.graph.Len()
		s.GraphHitRatio = m.graph.HitRatio()
	}
	return s
}

// warnArchetypes is the archetype count, 90% of limit rounded up, at which
// the manager warns once.
func warnArchetypes(limit int) int {
	return (limit*9 + 9) / 10
}
