package bench

import (
	"context"
	"testing"

	"github.com/TheBitDrifter/depot"
)

const (
	nPos    = 9000
	nPosVel = 1000
)

type Position struct {
	X float64
	Y float64
}

type Velocity struct {
	X float64
	Y float64
}

type world struct {
	registry *depot.Registry
	position depot.AccessibleComponent[Position]
	velocity depot.AccessibleComponent[Velocity]
	moving   depot.QueryDescriptor
}

func newDepotWorld(b *testing.B) world {
	b.Helper()
	r, err := depot.Factory.NewRegistry(depot.DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	w := world{
		registry: r,
		position: depot.FactoryNewComponent[Position](),
		velocity: depot.FactoryNewComponent[Velocity](),
	}
	if _, err := r.CreateEntities(nPosVel, w.position, w.velocity); err != nil {
		b.Fatal(err)
	}
	if _, err := r.CreateEntities(nPos, w.position); err != nil {
		b.Fatal(err)
	}
	w.moving, err = depot.Factory.NewQueryBuilder().With(w.position, w.velocity).Build(r)
	if err != nil {
		b.Fatal(err)
	}
	return w
}

func BenchmarkIterDepotCursor(b *testing.B) {
	b.StopTimer()
	w := newDepotWorld(b)
	cursor := depot.Factory.NewCursor(w.moving, w.registry)
	b.StartTimer()

	for i := 0; i < b.N; i++ {
		for cursor.Next() {
			pos := w.position.GetFromCursor(cursor)
			vel := w.velocity.GetFromCursor(cursor)
			pos.X += vel.X
			pos.Y += vel.Y
		}
	}
}

func BenchmarkIterDepotChunks(b *testing.B) {
	b.StopTimer()
	w := newDepotWorld(b)
	b.StartTimer()

	for i := 0; i < b.N; i++ {
		res, err := w.registry.Execute(w.moving)
		if err != nil {
			b.Fatal(err)
		}
		for _, id := range res.Archetypes {
			arch, _ := w.registry.Archetypes().Get(id)
			positions, _ := w.position.Chunks(w.registry, arch)
			for _, chunk := range positions {
				for j, e := range chunk.Entities {
					vel, _ := w.velocity.Get(w.registry, e)
					chunk.Components[j].X += vel.X
					chunk.Components[j].Y += vel.Y
				}
			}
		}
	}
}

func BenchmarkIterDepotParallel(b *testing.B) {
	b.StopTimer()
	w := newDepotWorld(b)
	ctx := context.Background()
	b.StartTimer()

	for i := 0; i < b.N; i++ {
		err := w.registry.ParallelEach(ctx, w.moving, 256, func(_ context.Context, e depot.EntityHandle) error {
			pos, err := w.position.Get(w.registry, e)
			if err != nil {
				return err
			}
			vel, err := w.velocity.Get(w.registry, e)
			if err != nil {
				return err
			}
			pos.X += vel.X
			pos.Y += vel.Y
			return nil
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAddRemoveDepot(b *testing.B) {
	b.StopTimer()
	w := newDepotWorld(b)
	still, err := depot.Factory.NewQueryBuilder().With(w.position).Without(w.velocity).Build(w.registry)
	if err != nil {
		b.Fatal(err)
	}
	res, err := w.registry.Execute(still)
	if err != nil {
		b.Fatal(err)
	}
	entities := append([]depot.EntityHandle(nil), res.Entities...)
	b.StartTimer()

	for i := 0; i < b.N; i++ {
		for _, e := range entities {
			if err := w.velocity.Add(w.registry, e, Velocity{X: 1}); err != nil {
				b.Fatal(err)
			}
		}
		for _, e := range entities {
			if err := w.velocity.Remove(w.registry, e); err != nil {
				b.Fatal(err)
			}
		}
	}
}

func BenchmarkQueryCachedDepot(b *testing.B) {
	b.StopTimer()
	w := newDepotWorld(b)
	b.StartTimer()

	for i := 0; i < b.N; i++ {
		if _, err := w.registry.Execute(w.moving); err != nil {
			b.Fatal(err)
		}
	}
}
