package routing

import (
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/calendis/calendis-edge/pkg/domain"
)

const (
	ruleBypass    = "bypass"
	ruleUnmatched = "unmatched"
)

// Router evaluates the decision table for incoming requests.
type Router struct {
	settings   Settings
	classifier *Classifier
	table      Table
}

// NewRouter validates the settings and builds a router over the canonical
// decision table.
func NewRouter(s Settings) (*Router, error) {
	return NewRouterWithTable(s, CanonicalTable(s))
}

// NewRouterWithTable builds a router over a custom table.
func NewRouterWithTable(s Settings, t Table) (*Router, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("%w: decision table is empty", domain.ErrConfigInvalid)
	}

	s.PublicPaths = slices.Clone(s.PublicPaths)
	s.BypassPrefixes = slices.Clone(s.BypassPrefixes)

	return &Router{
		settings:   s,
		classifier: NewClassifier(s),
		table:      slices.Clone(t),
	}, nil
}

// Settings returns the settings the router was built with.
func (r *Router) Settings() Settings {
	return r.settings
}

// CookieNames returns the session and demo cookie names.
func (r *Router) CookieNames() (session, demo string) {
	return r.settings.SessionCookie, r.settings.DemoCookie
}

// Table returns a copy of the decision table.
func (r *Router) Table() Table {
	return slices.Clone(r.table)
}

// Classify classifies a raw host value.
func (r *Router) Classify(host string) domain.Classification {
	return r.classifier.Classify(host)
}

// Route produces the decision for one request.
func (r *Router) Route(req domain.RequestContext) domain.Decision {
	cls := r.classifier.Classify(req.Host)
	p := cleanPath(req.Path)

	if r.bypassed(p) {
		d := domain.Continue(ruleBypass)
		d.Classification = cls
		return d
	}

	for _, rule := range r.table {
		if !rule.matches(cls, req, p, r.settings.PublicPaths) {
			continue
		}
		d := r.apply(rule, cls, req, p)
		d.ForwardPathname = rule.ForwardPathname
		d.Classification = cls
		return d
	}

	d := domain.NotFound(ruleUnmatched, r.settings.NotFoundPath)
	d.Classification = cls
	return d
}

func (r *Router) apply(rule Rule, cls domain.Classification, req domain.RequestContext, p string) domain.Decision {
	s := r.settings

	switch rule.Outcome {
	case OutcomeContinue:
		return domain.Continue(rule.Name)

	case OutcomeRewriteInternal:
		target := s.AppPrefix
		if p != "/" {
			target = strings.TrimSuffix(s.AppPrefix, "/") + p
		}
		return domain.Rewrite(rule.Name, target)

	case OutcomeNotFound:
		return domain.NotFound(rule.Name, s.NotFoundPath)

	case OutcomeRedirectLogin:
		loc := r.originURL(req, s.LoginPath)
		q := url.Values{}
		q.Set(s.ReturnParam, req.URL())
		loc.RawQuery = q.Encode()
		return domain.Redirect(rule.Name, loc.String(), s.RedirectStatus)

	case OutcomeRedirectLanding:
		return domain.Redirect(rule.Name, r.originURL(req, s.LandingPath).String(), s.RedirectStatus)

	case OutcomeRedirectAppHost:
		table := s.Environments[cls.Environment]
		host, ok := table.CanonicalHost(domain.SubdomainApp)
		if !ok {
			return domain.NotFound(rule.Name, s.NotFoundPath)
		}
		rest := strings.TrimPrefix(p, strings.TrimSuffix(s.AppPrefix, "/"))
		if rest == "" {
			rest = "/"
		}
		scheme := table.Scheme
		if scheme == "" {
			scheme = req.Scheme
		}
		loc := url.URL{Scheme: scheme, Host: host, Path: rest, RawQuery: req.RawQuery}
		return domain.Redirect(rule.Name, loc.String(), s.RedirectStatus)

	default:
		return domain.NotFound(rule.Name, s.NotFoundPath)
	}
}

// originURL resolves target against the origin of the request.
func (r *Router) originURL(req domain.RequestContext, target string) *url.URL {
	scheme := req.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return &url.URL{Scheme: scheme, Host: req.Host, Path: target}
}

func (r *Router) bypassed(p string) bool {
	for _, prefix := range r.settings.BypassPrefixes {
		if underPath(p, prefix) {
			return true
		}
	}
	return false
}

// cleanPath returns a rooted, cleaned path. A trailing slash is dropped
// except for the root itself.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
