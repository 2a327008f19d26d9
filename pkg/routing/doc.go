// Package routing implements the edge routing core: hostname classification
// and the canonical decision table.
//
// Routing is a pure function of a domain.RequestContext and an immutable
// Settings value. A Router never performs I/O and holds no mutable state, so a
// single instance is shared by all requests; hot reloads swap whole routers
// through a Store.
package routing
