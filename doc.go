/*
Package depot provides the storage core of an Entity-Component-System (ECS).

Depot keeps entities with the same component set together in archetypes, and
stores each component of an archetype in fixed-size, aligned chunks. Queries
are answered from a two-tier cache that structural changes invalidate.

Core Concepts:

  - EntityHandle: an id plus a generation. Destroying an entity bumps the
    generation, so stale handles never resolve.
  - Component: a Go type attached to entities. Each registry assigns up to
    64 component ids.
  - Archetype: the entities sharing one exact component signature.
  - QueryDescriptor: required and excluded components; the cache key.
  - Registry: owns the entity pool, the archetypes and the query cache.

Basic Usage:

	registry, _ := depot.Factory.NewRegistry(depot.DefaultConfig())

	// Define components
	position := depot.FactoryNewComponent[Position]()
	velocity := depot.FactoryNewComponent[Velocity]()

	// Create entities
	entities, _ := registry.CreateEntities(100, position, velocity)
	_ = position.Set(registry, entities[0], Position{X: 1})

	// Query entities and process them
	desc, _ := depot.Factory.NewQueryBuilder().With(position, velocity).Build(registry)
	cursor := depot.Factory.NewCursor(desc, registry)

	for cursor.Next() {
		pos := position.GetFromCursor(cursor)
		vel := velocity.GetFromCursor(cursor)
		pos.X += vel.X
		pos.Y += vel.Y
	}

Structural changes made while a cursor iterates must be queued with the
Enqueue methods; they are applied when the cursor finishes.
*/
package depot
