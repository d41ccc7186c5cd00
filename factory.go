package depot

type factory struct{}

var Factory factory

// NewRegistry builds an empty registry from cfg.
func (f factory) NewRegistry(cfg Config) (*Registry, error) {
	return newRegistry(cfg)
}

func (f factory) NewQuery() Query {
	return newQuery()
}

func (f factory) NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// NewCursor iterates the entities node matches in r. A QueryDescriptor node
// goes through the query cache.
func (f factory) NewCursor(node QueryNode, r *Registry) *Cursor {
	return newCursor(node, r)
}

func FactoryNewComponent[T any]() AccessibleComponent[T] {
	return AccessibleComponent[T]{
		Component: newComponentType[T](),
	}
}

func FactoryNewCache[T any](cap int) Cache[T] {
	return newSimpleCache[T](cap)
}
