package depot

type edgeKey struct {
	from      ArchetypeID
	component ComponentID
	add       bool
}

// ArchetypeEdge is a cached transition between two archetypes.
type ArchetypeEdge struct {
	From       ArchetypeID
	To         ArchetypeID
	Component  ComponentID
	Add        bool
	Traversals uint64
}

// ArchetypeGraph caches add/remove transitions so repeated transitions skip
// the signature lookup.
type ArchetypeGraph struct {
	edges  map[edgeKey]*ArchetypeEdge
	hits   uint64
	misses uint64
}

func newArchetypeGraph() *ArchetypeGraph {
	return &ArchetypeGraph{edges: make(map[edgeKey]*ArchetypeEdge)}
}

// Next returns the archetype reached from from by adding (or removing)
// component, if that edge is known.
func (g *ArchetypeGraph) Next(from ArchetypeID, component ComponentID, add bool) (ArchetypeID, bool) {
	edge, ok := g.edges[edgeKey{from, component, add}]
	if !ok {
		g.misses++
		return 0, false
	}
	g.hits++
	edge.Traversals++
	return edge.To, true
}

// Link records that adding component to from leads to to, and the reverse
// removal edge.
func (g *ArchetypeGraph) Link(from, to ArchetypeID, component ComponentID) {
	if _, ok := g.edges[edgeKey{from, component, true}]; !ok {
		g.edges[edgeKey{from, component, true}] = &ArchetypeEdge{From: from, To: to, Component: component, Add: true}
	}
	if _, ok := g.edges[edgeKey{to, component, false}]; !ok {
		g.edges[edgeKey{to, component, false}] = &ArchetypeEdge{From: to, To: from, Component: component}
	}
}

func (g *ArchetypeGraph) Edge(from ArchetypeID, component ComponentID, add bool) (ArchetypeEdge, bool) {
	edge, ok := g.edges[edgeKey{from, component, add}]
	if !ok {
		return ArchetypeEdge{}, false
	}
	return *edge, true
}

func (g *ArchetypeGraph) Len() int {
	return len(g.edges)
}

// HitRatio is the share of transitions served from a cached edge.
func (g *ArchetypeGraph) HitRatio() float64 {
	total := g.hits + g.misses
	if total == 0 {
		return 0
	}
	return float64(g.hits) / float64(total)
}
