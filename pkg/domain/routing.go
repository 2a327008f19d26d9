package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// Environment identifies the deployment a request was addressed to.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvTesting     Environment = "testing"
	EnvDevelopment Environment = "development"
)

// Environments lists every known environment in classification precedence order.
var Environments = []Environment{EnvProduction, EnvTesting, EnvDevelopment}

// ParseEnvironment converts a configuration value into an Environment.
func ParseEnvironment(s string) (Environment, error) {
	switch env := Environment(strings.ToLower(strings.TrimSpace(s))); env {
	case EnvProduction, EnvTesting, EnvDevelopment:
		return env, nil
	default:
		return "", fmt.Errorf("%w: unknown environment %q", ErrConfigInvalid, s)
	}
}

// Subdomain identifies the tenant-facing variant of the site.
type Subdomain string

const (
	SubdomainRoot    Subdomain = "root"    // www / marketing site
	SubdomainApp     Subdomain = "app"     // authenticated application
	SubdomainDemo    Subdomain = "demo"    // demo tenant
	SubdomainPreview Subdomain = "preview" // preview/test deployment
	SubdomainNone    Subdomain = "none"    // unrecognized
)

// ParseSubdomain converts a configuration value into a Subdomain. "www" is
// accepted as an alias of root.
func ParseSubdomain(s string) (Subdomain, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "www", string(SubdomainRoot):
		return SubdomainRoot, nil
	case string(SubdomainApp), string(SubdomainDemo), string(SubdomainPreview):
		return Subdomain(v), nil
	default:
		return "", fmt.Errorf("%w: unknown subdomain %q", ErrConfigInvalid, s)
	}
}

// Classification is the (environment, subdomain) pair derived from a hostname.
type Classification struct {
	Environment Environment `json:"environment"`
	Subdomain   Subdomain   `json:"subdomain"`
}

// Recognized reports whether the hostname matched a known subdomain.
func (c Classification) Recognized() bool {
	return c.Subdomain != "" && c.Subdomain != SubdomainNone
}

func (c Classification) String() string {
	return string(c.Environment) + "/" + string(c.Subdomain)
}

// RequestContext is the per-request input to routing. It is built from the
// incoming request and discarded once a Decision has been produced.
type RequestContext struct {
	Scheme        string
	Host          string // host as received, may include a port
	Path          string
	RawQuery      string
	SessionCookie string
	DemoCookie    string
}

// Origin returns scheme://host for the request.
func (r RequestContext) Origin() string {
	scheme := r.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + r.Host
}

// URL returns the absolute URL the client requested.
func (r RequestContext) URL() string {
	u := url.URL{Scheme: r.Scheme, Host: r.Host, Path: r.Path, RawQuery: r.RawQuery}
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	return u.String()
}

// HasSession reports whether a non-blank primary session cookie is present.
func (r RequestContext) HasSession() bool {
	return strings.TrimSpace(r.SessionCookie) != ""
}

// HasDemoSession reports whether a non-blank demo session cookie is present.
func (r RequestContext) HasDemoSession() bool {
	return strings.TrimSpace(r.DemoCookie) != ""
}

// DecisionKind tags the routing outcome.
type DecisionKind string

const (
	DecisionContinue DecisionKind = "continue"
	DecisionRewrite  DecisionKind = "rewrite"
	DecisionRedirect DecisionKind = "redirect"
	DecisionNotFound DecisionKind = "not_found"
)

// Decision is the routing outcome for one request.
//
// Path is set for rewrite and not-found decisions, Location and Status for
// redirects. Rule names the table entry that produced the decision.
type Decision struct {
	Kind            DecisionKind   `json:"kind"`
	Path            string         `json:"path,omitempty"`
	Location        string         `json:"location,omitempty"`
	Status          int            `json:"status,omitempty"`
	Rule            string         `json:"rule"`
	ForwardPathname bool           `json:"forward_pathname,omitempty"`
	Classification  Classification `json:"classification"`
}

// Continue builds a pass-through decision.
func Continue(rule string) Decision {
	return Decision{Kind: DecisionContinue, Rule: rule}
}

// Rewrite builds an internal rewrite decision.
func Rewrite(rule, path string) Decision {
	return Decision{Kind: DecisionRewrite, Rule: rule, Path: path}
}

// Redirect builds an external redirect decision.
func Redirect(rule, location string, status int) Decision {
	return Decision{Kind: DecisionRedirect, Rule: rule, Location: location, Status: status}
}

// NotFound builds a not-found decision served from the given internal path.
func NotFound(rule, path string) Decision {
	return Decision{Kind: DecisionNotFound, Rule: rule, Path: path}
}

// Session is the identity behind a verified session cookie.
type Session struct {
	UID    string
	Claims map[string]any
}
