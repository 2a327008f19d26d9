// Package domain defines the core routing types shared by the Calendis edge.
//
// This package has ZERO dependencies outside the Go standard library. The
// types here describe a single incoming request (RequestContext), the
// environment and subdomain it was classified into (Classification) and the
// routing outcome (Decision). Infrastructure packages (config, routing, edge,
// backend) depend on these types; the reverse direction is forbidden:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
