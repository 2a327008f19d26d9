package routing

import (
	"sync/atomic"

	"github.com/calendis/calendis-edge/pkg/domain"
)

// Store publishes the active router. Readers never block; a reload swaps the
// whole router.
type Store struct {
	current    atomic.Pointer[Router]
	generation atomic.Int64
}

// NewStore returns a store holding r. r may be nil until the first load.
func NewStore(r *Router) *Store {
	s := &Store{}
	if r != nil {
		s.Swap(r)
	}
	return s
}

// Router returns the active router or nil when none has been loaded.
func (s *Store) Router() *Router {
	return s.current.Load()
}

// Swap installs r and returns the new generation number.
func (s *Store) Swap(r *Router) int64 {
	s.current.Store(r)
	return s.generation.Add(1)
}

// Generation returns the number of routers installed so far.
func (s *Store) Generation() int64 {
	return s.generation.Load()
}

// Route routes through the active router. Without a router every request is
// not found.
func (s *Store) Route(req domain.RequestContext) domain.Decision {
	r := s.Router()
	if r == nil {
		return domain.NotFound(ruleUnmatched, "/404")
	}
	return r.Route(req)
}

// CookieNames returns the cookie names of the active router. Both are empty
// when no router is loaded.
func (s *Store) CookieNames() (session, demo string) {
	r := s.Router()
	if r == nil {
		return "", ""
	}
	return r.CookieNames()
}

// Classify classifies host with the active router.
func (s *Store) Classify(host string) domain.Classification {
	r := s.Router()
	if r == nil {
		return domain.Classification{Environment: domain.EnvDevelopment, Subdomain: domain.SubdomainNone}
	}
	return r.Classify(host)
}
