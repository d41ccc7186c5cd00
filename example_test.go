package depot_test

import (
	"fmt"

	"github.com/TheBitDrifter/depot"
)

// Position is a simple component for 2D coordinates
type Position struct {
	X float64
	Y float64
}

// Velocity is a simple component for 2D movement
type Velocity struct {
	X float64
	Y float64
}

// Name is a simple component for entity identification
type Name struct {
	Value string
}

// Example shows basic depot usage with entity creation and queries
func Example_basic() {
	registry, _ := depot.Factory.NewRegistry(depot.DefaultConfig())

	// Define components
	position := depot.FactoryNewComponent[Position]()
	velocity := depot.FactoryNewComponent[Velocity]()
	name := depot.FactoryNewComponent[Name]()

	// Create entities
	registry.CreateEntities(5, position)
	registry.CreateEntities(3, position, velocity)

	// Create one named entity
	entities, _ := registry.CreateEntities(1, position, velocity, name)
	name.Set(registry, entities[0], Name{Value: "Player"})
	position.Set(registry, entities[0], Position{X: 10, Y: 20})
	velocity.Set(registry, entities[0], Velocity{X: 1, Y: 2})

	// Query for all entities with position and velocity
	desc, _ := depot.Factory.NewQueryBuilder().With(position, velocity).Build(registry)
	result, _ := registry.Execute(desc)
	fmt.Printf("Found %d entities with position and velocity\n", result.Len())

	// Query for just the named entity
	query := depot.Factory.NewQuery()
	cursor := depot.Factory.NewCursor(query.And(name), registry)

	for cursor.Next() {
		pos := position.GetFromCursor(cursor)
		vel := velocity.GetFromCursor(cursor)
		nme := name.GetFromCursor(cursor)

		// Update position based on velocity
		pos.X += vel.X
		pos.Y += vel.Y

		fmt.Printf("Updated %s to position (%.1f, %.1f)\n", nme.Value, pos.X, pos.Y)
	}

	// Output:
	// Found 4 entities with position and velocity
	// Updated Player to position (11.0, 22.0)
}

// Example_queries shows how to use different query operations
func Example_queries() {
	registry, _ := depot.Factory.NewRegistry(depot.DefaultConfig())

	position := depot.FactoryNewComponent[Position]()
	velocity := depot.FactoryNewComponent[Velocity]()
	name := depot.FactoryNewComponent[Name]()

	// Create different entity types
	registry.CreateEntities(3, position)
	registry.CreateEntities(3, position, velocity)
	registry.CreateEntities(3, position, name)
	registry.CreateEntities(3, position, velocity, name)

	count := func(node depot.QueryNode) int {
		cursor := depot.Factory.NewCursor(node, registry)
		defer cursor.Reset()
		return cursor.TotalMatched()
	}

	// AND query: entities with position AND velocity
	query := depot.Factory.NewQuery()
	fmt.Printf("AND query matched %d entities\n", count(query.And(position, velocity)))

	// OR query: entities with velocity OR name
	fmt.Printf("OR query matched %d entities\n", count(query.Or(velocity, name)))

	// NOT query: entities without velocity
	fmt.Printf("NOT query matched %d entities\n", count(query.Not(velocity)))

	// The same selection as a cacheable descriptor
	desc, _ := depot.Factory.NewQueryBuilder().With(position).Without(velocity).Build(registry)
	fmt.Printf("Descriptor matched %d entities\n", count(desc))

	// Output:
	// AND query matched 6 entities
	// OR query matched 9 entities
	// NOT query matched 6 entities
	// Descriptor matched 6 entities
}

// Example_deferred shows structural changes queued while the registry is
// locked.
func Example_deferred() {
	registry, _ := depot.Factory.NewRegistry(depot.DefaultConfig())
	position := depot.FactoryNewComponent[Position]()
	velocity := depot.FactoryNewComponent[Velocity]()

	registry.CreateEntities(3, position)

	cursor := depot.Factory.NewCursor(depot.Factory.NewQuery().And(position), registry)
	for cursor.Next() {
		registry.EnqueueAdd(cursor.CurrentEntity(), velocity, Velocity{X: 1})
	}
	fmt.Println("pending after iteration:", registry.Pending())

	moving, _ := registry.Query(position, velocity)
	fmt.Println("moving entities:", len(moving))

	// Output:
	// pending after iteration: 0
	// moving entities: 3
}
