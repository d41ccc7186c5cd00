package depot

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

// Test component types
type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y float64
}

type Health struct {
	Current, Max int
}

func testPoolConfig() EntityPoolConfig {
	cfg := DefaultConfig().EntityPool
	cfg.RecycleThreshold = 0
	return cfg
}

func TestEntityHandle(t *testing.T) {
	if !NilEntity.IsNil() {
		t.Errorf("NilEntity.IsNil() = false")
	}
	e := EntityHandle{ID: 7, Generation: 3}
	if e.IsNil() {
		t.Errorf("%v reported nil", e)
	}
	if got := e.String(); got != "7:3" {
		t.Errorf("String() = %q, want 7:3", got)
	}
	if got := nextGeneration(^uint32(0)); got != 1 {
		t.Errorf("generation wrapped to %d, want 1", got)
	}
}

func TestEntityPoolCreation(t *testing.T) {
	tests := []struct {
		name        string
		count       int
		maxEntities int
		wantError   bool
	}{
		{"Single entity", 1, 10, false},
		{"Batch", 100, 1000, false},
		{"Exactly at limit", 10, 10, false},
		{"Over limit", 11, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testPoolConfig()
			cfg.MaxEntities = tt.maxEntities
			pool := NewEntityPool(cfg, zerolog.Nop())

			entities, err := pool.CreateBatch(tt.count)
			if (err != nil) != tt.wantError {
				t.Fatalf("CreateBatch() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				if !errors.Is(err, ErrCapacityExceeded) {
					t.Errorf("error %v is not ErrCapacityExceeded", err)
				}
				if pool.Live() != 0 {
					t.Errorf("failed batch left %d entities alive", pool.Live())
				}
				return
			}
			if len(entities) != tt.count {
				t.Errorf("Created %d entities, want %d", len(entities), tt.count)
			}
			seen := make(map[uint32]bool)
			for _, e := range entities {
				if e.Generation == 0 {
					t.Errorf("entity %v issued with generation 0", e)
				}
				if seen[e.ID] {
					t.Errorf("id %d issued twice", e.ID)
				}
				seen[e.ID] = true
				if !pool.IsAlive(e) {
					t.Errorf("entity %v not alive", e)
				}
			}
		})
	}
}

func TestEntityPoolRecycling(t *testing.T) {
	pool := NewEntityPool(testPoolConfig(), zerolog.Nop())

	first, err := pool.Create()
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if !pool.Destroy(first) {
		t.Fatalf("Destroy(%v) reported dead entity", first)
	}
	if pool.IsAlive(first) {
		t.Errorf("destroyed entity %v still alive", first)
	}
	if pool.Destroy(first) {
		t.Errorf("second Destroy(%v) succeeded", first)
	}

	second, err := pool.Create()
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("id not recycled: got %d, want %d", second.ID, first.ID)
	}
	if second.Generation == first.Generation {
		t.Errorf("recycled entity kept generation %d", second.Generation)
	}
	if pool.IsAlive(first) {
		t.Errorf("stale handle %v resolves after recycling", first)
	}

	stats := pool.Stats()
	if stats.Recycled != 1 || stats.Created != 2 || stats.Destroyed != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestEntityPoolRecycleThreshold(t *testing.T) {
	cfg := testPoolConfig()
	cfg.RecycleThreshold = 2
	pool := NewEntityPool(cfg, zerolog.Nop())

	entities, err := pool.CreateBatch(3)
	if err != nil {
		t.Fatalf("CreateBatch() error: %v", err)
	}
	pool.Destroy(entities[0])
	pool.Destroy(entities[1])

	// two freed ids do not exceed the threshold of two
	fresh, _ := pool.Create()
	if fresh.ID != 3 {
		t.Errorf("expected a new id 3 below the threshold, got %v", fresh)
	}

	pool.Destroy(entities[2])
	recycled, _ := pool.Create()
	if recycled.ID != entities[0].ID {
		t.Errorf("expected the oldest freed id %d, got %v", entities[0].ID, recycled)
	}
}

func TestEntityPoolRecyclingDisabled(t *testing.T) {
	cfg := testPoolConfig()
	cfg.EnableRecycling = false
	pool := NewEntityPool(cfg, zerolog.Nop())

	e, _ := pool.Create()
	pool.Destroy(e)
	next, _ := pool.Create()
	if next.ID == e.ID {
		t.Errorf("id %d reused with recycling disabled", e.ID)
	}
}

func TestEntityPoolValidate(t *testing.T) {
	pool := NewEntityPool(testPoolConfig(), zerolog.Nop())
	entities, _ := pool.CreateBatch(3)
	pool.Destroy(entities[1])

	got := pool.Validate([]EntityHandle{entities[0], entities[1], entities[2], NilEntity, {ID: 99, Generation: 1}})
	want := []bool{true, false, true, false, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Validate()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEntityPoolRelationships(t *testing.T) {
	pool := NewEntityPool(testPoolConfig(), zerolog.Nop())
	entities, _ := pool.CreateBatch(4)
	parent, child, other, owned := entities[0], entities[1], entities[2], entities[3]

	if err := pool.Relate(parent, child, RelParent, 1); err != nil {
		t.Fatalf("Relate(parent) error: %v", err)
	}
	if got, ok := pool.Parent(child); !ok || got != parent {
		t.Errorf("Parent(child) = %v, %v", got, ok)
	}

	var relErr RelationshipError
	if err := pool.Relate(parent, child, RelParent, 1); !errors.As(err, &relErr) {
		t.Errorf("duplicate relationship error = %v", err)
	}
	if err := pool.Relate(other, child, RelParent, 1); !errors.As(err, &relErr) {
		t.Errorf("second parent error = %v", err)
	}
	if err := pool.Relate(parent, parent, RelReferences, 1); !errors.As(err, &relErr) {
		t.Errorf("self relationship error = %v", err)
	}
	if err := pool.Relate(parent, owned, RelOwns, 1); err != nil {
		t.Fatalf("Relate(owns) error: %v", err)
	}

	if n := len(pool.Relationships(parent)); n != 2 {
		t.Errorf("parent has %d relationships, want 2", n)
	}
	if n := len(pool.Incoming(child)); n != 1 {
		t.Errorf("child has %d incoming relationships, want 1", n)
	}

	pool.Destroy(child)
	if n := len(pool.Relationships(parent)); n != 1 {
		t.Errorf("relationships to a destroyed entity survived: %v", pool.Relationships(parent))
	}

	var invalid InvalidEntityError
	if err := pool.Relate(parent, child, RelReferences, 1); !errors.As(err, &invalid) {
		t.Errorf("relating a dead entity error = %v", err)
	}

	if !pool.Unrelate(parent, owned, RelOwns) {
		t.Errorf("Unrelate(owns) reported missing relationship")
	}
	if n := pool.Stats().Relationships; n != 0 {
		t.Errorf("%d relationships left", n)
	}
}

func TestEntityPoolTemplates(t *testing.T) {
	cfg := testPoolConfig()
	cfg.TemplateCacheSize = 2
	pool := NewEntityPool(cfg, zerolog.Nop())

	used := NewEntityTemplate("used", SignatureOf(0))
	unused := NewEntityTemplate("unused", SignatureOf(1))
	for _, tpl := range []*EntityTemplate{used, unused} {
		if err := pool.RegisterTemplate(tpl); err != nil {
			t.Fatalf("RegisterTemplate(%s) error: %v", tpl.Name, err)
		}
	}
	if err := pool.RegisterTemplate(NewEntityTemplate("third", 0)); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("template over capacity error = %v", err)
	}

	if _, err := pool.CreateFromTemplate(used); err != nil {
		t.Fatalf("CreateFromTemplate() error: %v", err)
	}
	if used.Uses() != 1 {
		t.Errorf("Uses() = %d, want 1", used.Uses())
	}

	if n := pool.PruneTemplates(); n != 1 {
		t.Errorf("PruneTemplates() = %d, want 1", n)
	}
	if _, ok := pool.Template("unused"); ok {
		t.Errorf("unused template survived pruning")
	}
	if tpl, ok := pool.Template("used"); !ok || tpl.Uses() != 0 {
		t.Errorf("used template missing or counter not reset: %v", tpl)
	}

	// not used since the previous prune
	if n := pool.PruneTemplates(); n != 1 {
		t.Errorf("second PruneTemplates() = %d, want 1", n)
	}
}
