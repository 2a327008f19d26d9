package routing

import (
	"slices"
	"strings"

	"github.com/calendis/calendis-edge/pkg/domain"
)

// AuthRequirement constrains the session state a rule applies to.
type AuthRequirement int

const (
	AuthAny AuthRequirement = iota
	AuthAnonymous
	AuthAuthenticated
)

// Credential selects which cookie establishes the session for a rule.
type Credential int

const (
	CredentialSession Credential = iota
	CredentialDemo
	CredentialEither
)

func (c Credential) present(req domain.RequestContext) bool {
	switch c {
	case CredentialDemo:
		return req.HasDemoSession()
	case CredentialEither:
		return req.HasSession() || req.HasDemoSession()
	default:
		return req.HasSession()
	}
}

// PathKind selects how a rule matches the request path.
type PathKind int

const (
	PathAny PathKind = iota
	// PathExact matches when the path equals Value.
	PathExact
	// PathUnder matches Value and everything below it.
	PathUnder
	// PathPublic matches the configured public paths.
	PathPublic
	// PathProtected matches every path that is not public.
	PathProtected
)

// PathMatch is a path predicate.
type PathMatch struct {
	Kind  PathKind
	Value string
}

func (m PathMatch) matches(path string, public []string) bool {
	switch m.Kind {
	case PathExact:
		return path == m.Value
	case PathUnder:
		return underPath(path, m.Value)
	case PathPublic:
		return slices.Contains(public, path)
	case PathProtected:
		return !slices.Contains(public, path)
	default:
		return true
	}
}

// Outcome is the action a rule produces.
type Outcome int

const (
	OutcomeContinue Outcome = iota
	// OutcomeRewriteInternal serves the page from under the app prefix.
	OutcomeRewriteInternal
	OutcomeNotFound
	// OutcomeRedirectLogin sends the client to login with a return URL.
	OutcomeRedirectLogin
	OutcomeRedirectLanding
	// OutcomeRedirectAppHost moves /app/* from the marketing site to the
	// application host, dropping the prefix.
	OutcomeRedirectAppHost
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeRewriteInternal:
		return "rewrite-internal"
	case OutcomeNotFound:
		return "not-found"
	case OutcomeRedirectLogin:
		return "redirect-login"
	case OutcomeRedirectLanding:
		return "redirect-landing"
	case OutcomeRedirectAppHost:
		return "redirect-app-host"
	default:
		return "unknown"
	}
}

// Rule is one entry of the decision table.
type Rule struct {
	Name         string
	Environments []domain.Environment // empty matches every environment
	Subdomain    domain.Subdomain
	Credential   Credential
	Auth         AuthRequirement
	Path         PathMatch
	Outcome      Outcome

	// ForwardPathname marks decisions that carry the original pathname to
	// the frontend in the X-Pathname header.
	ForwardPathname bool
}

func (r Rule) matches(cls domain.Classification, req domain.RequestContext, path string, public []string) bool {
	if len(r.Environments) > 0 && !slices.Contains(r.Environments, cls.Environment) {
		return false
	}
	if r.Subdomain != cls.Subdomain {
		return false
	}
	switch r.Auth {
	case AuthAnonymous:
		if r.Credential.present(req) {
			return false
		}
	case AuthAuthenticated:
		if !r.Credential.present(req) {
			return false
		}
	}
	return r.Path.matches(path, public)
}

// Table is an ordered rule list; the first matching rule wins.
type Table []Rule

// CanonicalTable builds the decision table for the given settings.
func CanonicalTable(s Settings) Table {
	t := Table{
		{
			Name:      "root-app-redirect",
			Subdomain: domain.SubdomainRoot,
			Path:      PathMatch{Kind: PathUnder, Value: s.AppPrefix},
			Outcome:   OutcomeRedirectAppHost,
		},
		{
			Name:      "root-pass",
			Subdomain: domain.SubdomainRoot,
			Outcome:   OutcomeContinue,
		},
	}

	t = append(t, tenantRules("app", domain.SubdomainApp, CredentialSession, s)...)
	t = append(t, tenantRules("demo", domain.SubdomainDemo, CredentialDemo, s)...)

	previewEnvs := []domain.Environment{domain.EnvTesting}
	t = append(t,
		Rule{
			Name:         "preview-app-login-required",
			Environments: previewEnvs,
			Subdomain:    domain.SubdomainPreview,
			Credential:   CredentialSession,
			Auth:         AuthAnonymous,
			Path:         PathMatch{Kind: PathUnder, Value: s.AppPrefix},
			Outcome:      OutcomeRedirectLogin,
		},
		Rule{
			Name:         "preview-demo-login-required",
			Environments: previewEnvs,
			Subdomain:    domain.SubdomainPreview,
			Credential:   CredentialDemo,
			Auth:         AuthAnonymous,
			Path:         PathMatch{Kind: PathUnder, Value: s.DemoPrefix},
			Outcome:      OutcomeRedirectLogin,
		},
		Rule{
			Name:         "preview-public-authenticated",
			Environments: previewEnvs,
			Subdomain:    domain.SubdomainPreview,
			Credential:   CredentialEither,
			Auth:         AuthAuthenticated,
			Path:         PathMatch{Kind: PathPublic},
			Outcome:      OutcomeRedirectLanding,
		},
		Rule{
			Name:         "preview-pass",
			Environments: previewEnvs,
			Subdomain:    domain.SubdomainPreview,
			Outcome:      OutcomeContinue,
		},
		Rule{
			Name:      "unrecognized-host",
			Subdomain: domain.SubdomainNone,
			Outcome:   OutcomeNotFound,
		},
	)

	return t
}

// tenantRules is shared by the app and demo subdomains; they differ only in
// the cookie that carries the session.
func tenantRules(prefix string, sub domain.Subdomain, cred Credential, s Settings) []Rule {
	return []Rule{
		{
			Name:            prefix + "-login-required",
			Subdomain:       sub,
			Credential:      cred,
			Auth:            AuthAnonymous,
			Path:            PathMatch{Kind: PathProtected},
			Outcome:         OutcomeRedirectLogin,
			ForwardPathname: true,
		},
		{
			Name:            prefix + "-public-authenticated",
			Subdomain:       sub,
			Credential:      cred,
			Auth:            AuthAuthenticated,
			Path:            PathMatch{Kind: PathPublic},
			Outcome:         OutcomeRedirectLanding,
			ForwardPathname: true,
		},
		{
			Name:            prefix + "-root-authenticated",
			Subdomain:       sub,
			Credential:      cred,
			Auth:            AuthAuthenticated,
			Path:            PathMatch{Kind: PathExact, Value: "/"},
			Outcome:         OutcomeRedirectLanding,
			ForwardPathname: true,
		},
		{
			Name:            prefix + "-internal-prefix",
			Subdomain:       sub,
			Path:            PathMatch{Kind: PathUnder, Value: s.AppPrefix},
			Outcome:         OutcomeNotFound,
			ForwardPathname: true,
		},
		{
			Name:            prefix + "-rewrite",
			Subdomain:       sub,
			Outcome:         OutcomeRewriteInternal,
			ForwardPathname: true,
		},
	}
}

// underPath reports whether path equals prefix or lies below it on a segment
// boundary, so "/app" covers "/app/x" but not "/apple".
func underPath(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
