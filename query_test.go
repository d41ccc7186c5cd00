package depot

import (
	"errors"
	"slices"
	"testing"
)

type entityGroup struct {
	count      int
	components []Component
}

func populate(t *testing.T, r *Registry, groups ...entityGroup) {
	t.Helper()
	for _, g := range groups {
		if _, err := r.CreateEntities(g.count, g.components...); err != nil {
			t.Fatalf("Failed to create %d entities: %v", g.count, err)
		}
	}
}

// TestQueryFiltering tests the composite filter operations
func TestQueryFiltering(t *testing.T) {
	pos := FactoryNewComponent[Position]()
	vel := FactoryNewComponent[Velocity]()
	hp := FactoryNewComponent[Health]()

	three := []entityGroup{
		{5, []Component{pos, vel}},
		{10, []Component{pos}},
		{15, []Component{vel}},
	}

	tests := []struct {
		name   string
		groups []entityGroup
		filter func(q Query) QueryNode
		want   int
	}{
		{
			name:   "and requires every component",
			groups: three,
			filter: func(q Query) QueryNode { return q.And(pos, vel) },
			want:   5,
		},
		{
			name:   "or accepts any component",
			groups: three,
			filter: func(q Query) QueryNode { return q.Or(pos, vel) },
			want:   30,
		},
		{
			name:   "not excludes, empty archetype included",
			groups: append(slices.Clone(three), entityGroup{20, []Component{hp}}, entityGroup{3, nil}),
			filter: func(q Query) QueryNode { return q.Not(vel) },
			want:   33, // pos 10 + hp 20 + bare 3
		},
		{
			name:   "and over an unregistered component matches nothing",
			groups: []entityGroup{{10, []Component{pos}}},
			filter: func(q Query) QueryNode { return q.And(pos, hp) },
			want:   0,
		},
		{
			name:   "not over an unregistered component matches everything",
			groups: []entityGroup{{5, []Component{pos, vel}}, {10, []Component{pos}}},
			filter: func(q Query) QueryNode { return q.Not(hp) },
			want:   15,
		},
		{
			name:   "not over a child node only",
			groups: []entityGroup{{5, []Component{pos, vel}}, {10, []Component{pos}}},
			filter: func(q Query) QueryNode { return q.Not(q.And(pos, vel)) },
			want:   10,
		},
		{
			name:   "component slices are flattened",
			groups: three,
			filter: func(q Query) QueryNode { return q.And([]Component{pos, vel}) },
			want:   5,
		},
		{
			name: "or of ands",
			groups: []entityGroup{
				{5, []Component{pos, vel, hp}},
				{10, []Component{pos, vel}},
				{15, []Component{pos, hp}},
				{20, []Component{vel, hp}},
				{25, []Component{pos}},
				{30, []Component{vel}},
				{35, []Component{hp}},
			},
			filter: func(q Query) QueryNode {
				return q.Or(q.And(pos, vel), q.And(pos, hp))
			},
			want: 30, // each archetype counted once
		},
		{
			name:   "not over a child node",
			groups: three,
			filter: func(q Query) QueryNode { return q.Not(q.And(pos, vel)) },
			want:   25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newQueryTestRegistry(t)
			populate(t, r, tt.groups...)
			node := tt.filter(Factory.NewQuery())

			cursor := Factory.NewCursor(node, r)
			got := 0
			for cursor.Next() {
				got++
			}
			if got != tt.want {
				t.Errorf("cursor visited %d entities, want %d", got, tt.want)
			}
			if n := len(r.Filter(node)); n != tt.want {
				t.Errorf("Filter returned %d entities, want %d", n, tt.want)
			}
		})
	}
}

// TestQueryWithCursor compares cursor iteration with TotalMatched for
// descriptor queries
func TestQueryWithCursor(t *testing.T) {
	pos := FactoryNewComponent[Position]()
	vel := FactoryNewComponent[Velocity]()
	hp := FactoryNewComponent[Health]()

	tests := []struct {
		name     string
		groups   [][]Component
		required []Component
		want     int
	}{
		{"position", [][]Component{{pos}, {pos, vel}, {vel}}, []Component{pos}, 20},
		{"position and velocity", [][]Component{{pos}, {pos, vel}, {vel}}, []Component{pos, vel}, 10},
		{"no matches", [][]Component{{pos}, {vel}}, []Component{hp}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newQueryTestRegistry(t)
			for _, comps := range tt.groups {
				populate(t, r, entityGroup{10, comps})
			}
			desc, err := Factory.NewQueryBuilder().With(tt.required...).Build(r)
			if err != nil {
				t.Fatalf("Failed to build query: %v", err)
			}

			iterated := 0
			for range Factory.NewCursor(desc, r).Entities() {
				iterated++
			}

			cursor := Factory.NewCursor(desc, r)
			total := cursor.TotalMatched()
			cursor.Reset()

			if iterated != total || iterated != tt.want {
				t.Errorf("iterated %d, TotalMatched %d, want %d", iterated, total, tt.want)
			}
			if r.Locked() {
				t.Errorf("registry still locked after iteration")
			}
		})
	}
}

// TestQueryComponentAccess tests accessing component data through queries
func TestQueryComponentAccess(t *testing.T) {
	r := newQueryTestRegistry(t)
	posComp := FactoryNewComponent[Position]()
	velComp := FactoryNewComponent[Velocity]()

	for i := range 10 {
		entity, err := r.CreateEntity(posComp)
		if err != nil {
			t.Fatalf("Failed to create entity: %v", err)
		}
		if err := posComp.Set(r, entity, Position{X: float64(i), Y: float64(i * 2)}); err != nil {
			t.Fatalf("Failed to set position: %v", err)
		}
		vel := Velocity{X: float64(i) * 0.1, Y: float64(i) * 0.2}
		if err := velComp.Add(r, entity, vel); err != nil {
			t.Fatalf("Failed to add velocity: %v", err)
		}
	}

	queryNode := Factory.NewQuery().And(posComp, velComp)

	// Update positions based on velocities
	cursor := Factory.NewCursor(queryNode, r)
	for cursor.Next() {
		pos := posComp.GetFromCursor(cursor)
		vel := velComp.GetFromCursor(cursor)
		pos.X += vel.X
		pos.Y += vel.Y
	}

	cursor = Factory.NewCursor(queryNode, r)
	seen := 0
	for cursor.Next() {
		seen++
		pos := posComp.GetFromCursor(cursor)
		ok, vel := velComp.GetFromCursorSafe(cursor)
		if !ok {
			t.Fatalf("velocity missing at %v", cursor.CurrentEntity())
		}

		// initial values follow (i, i*2)
		expectedX := pos.X - vel.X
		expectedY := pos.Y - vel.Y
		if !almostEqual(expectedX, vel.X*10, 0.0001) || !almostEqual(expectedY/2, vel.X*10, 0.0001) {
			t.Errorf("Position {%v, %v} with velocity {%v, %v} doesn't match expected pattern",
				pos.X-vel.X, pos.Y-vel.Y, vel.X, vel.Y)
		}
	}
	if seen != 10 {
		t.Errorf("visited %d entities, want 10", seen)
	}
}

func TestCursorOptionalComponent(t *testing.T) {
	r := newQueryTestRegistry(t)
	posComp := FactoryNewComponent[Position]()
	velComp := FactoryNewComponent[Velocity]()
	if _, err := r.CreateEntities(4, posComp); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateEntities(6, posComp, velComp); err != nil {
		t.Fatal(err)
	}

	cursor := Factory.NewCursor(Factory.NewQuery().And(posComp), r)
	withVel, without := 0, 0
	for cursor.Next() {
		if velComp.CheckCursor(cursor) {
			withVel++
		} else {
			if velComp.GetFromCursor(cursor) != nil {
				t.Errorf("GetFromCursor returned a value for an archetype without it")
			}
			without++
		}
	}
	if withVel != 6 || without != 4 {
		t.Errorf("with velocity %d, without %d", withVel, without)
	}
}

func TestCursorLocksRegistry(t *testing.T) {
	r := newQueryTestRegistry(t)
	posComp := FactoryNewComponent[Position]()
	velComp := FactoryNewComponent[Velocity]()
	if _, err := r.CreateEntities(5, posComp); err != nil {
		t.Fatal(err)
	}

	cursor := Factory.NewCursor(Factory.NewQuery().And(posComp), r)
	for cursor.Next() {
		e := cursor.CurrentEntity()
		var locked LockedRegistryError
		if err := velComp.Add(r, e, Velocity{}); !errors.As(err, &locked) {
			t.Fatalf("Add during iteration returned %v, want LockedRegistryError", err)
		}
		if err := r.EnqueueAdd(e, velComp, Velocity{X: 1}); err != nil {
			t.Fatalf("EnqueueAdd error: %v", err)
		}
	}
	if err := cursor.Err(); err != nil {
		t.Fatalf("flush after iteration: %v", err)
	}
	got, err := r.Query(posComp, velComp)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Errorf("queued adds applied to %d entities, want 5", len(got))
	}
}

func TestCursorEarlyBreak(t *testing.T) {
	r := newQueryTestRegistry(t)
	posComp := FactoryNewComponent[Position]()
	if _, err := r.CreateEntities(10, posComp); err != nil {
		t.Fatal(err)
	}

	cursor := Factory.NewCursor(Factory.NewQuery().And(posComp), r)
	for i, e := range cursor.Entities() {
		if e.IsNil() || i < 0 {
			t.Fatalf("bad yield %d %v", i, e)
		}
		break
	}
	if r.Locked() {
		t.Errorf("breaking out of Entities must release the registry")
	}
}

func newQueryTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Factory.NewRegistry(DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	return r
}

// Helper function for float comparisons
func almostEqual(a, b, epsilon float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < epsilon
}
