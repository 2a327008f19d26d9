package edge

import (
	"net/http"
	"strings"

	"github.com/calendis/calendis-edge/pkg/config"
	"github.com/calendis/calendis-edge/pkg/domain"
)

var firebaseEndpoints = []string{
	"https://firestore.googleapis.com",
	"https://identitytoolkit.googleapis.com",
	"https://securetoken.googleapis.com",
	"https://firebasestorage.googleapis.com",
}

var (
	productionScriptSources = []string{"'self'", "'unsafe-inline'", "https://www.gstatic.com", "https://www.googleapis.com", "https://js.stripe.com"}
	// Preview and local builds need eval for hot reload and the Vercel toolbar.
	relaxedScriptSources = append(append([]string(nil), productionScriptSources[:2]...),
		"'unsafe-eval'", "https://www.gstatic.com", "https://www.googleapis.com", "https://js.stripe.com", "https://vercel.live")
)

type header struct {
	key   string
	value string
}

// SecurityPolicy holds the precomputed response headers per environment.
type SecurityPolicy struct {
	enabled bool
	headers map[domain.Environment][]header
}

// NewSecurityPolicy builds the header sets from configuration.
func NewSecurityPolicy(cfg config.SecurityConfig) *SecurityPolicy {
	p := &SecurityPolicy{
		enabled: cfg.Headers,
		headers: make(map[domain.Environment][]header, len(domain.Environments)),
	}
	for _, env := range domain.Environments {
		p.headers[env] = []header{
			{"X-Content-Type-Options", "nosniff"},
			{"X-Frame-Options", "SAMEORIGIN"},
			{"Referrer-Policy", "strict-origin-when-cross-origin"},
			{"Permissions-Policy", cfg.PermissionsPolicy},
			{"Cross-Origin-Opener-Policy", "same-origin"},
			{"Cross-Origin-Embedder-Policy", "require-corp"},
			{"Content-Security-Policy", ContentSecurityPolicy(env, cfg.ConnectSources)},
		}
	}
	return p
}

// Apply sets the headers for env on h, replacing upstream values.
func (p *SecurityPolicy) Apply(h http.Header, env domain.Environment) {
	if p == nil || !p.enabled {
		return
	}
	set, ok := p.headers[env]
	if !ok {
		set = p.headers[domain.EnvDevelopment]
	}
	for _, hd := range set {
		if hd.value == "" {
			continue
		}
		h.Set(hd.key, hd.value)
	}
}

// ContentSecurityPolicy renders the CSP for an environment. Only production
// forbids eval.
func ContentSecurityPolicy(env domain.Environment, connectSources []string) string {
	script := relaxedScriptSources
	if env == domain.EnvProduction {
		script = productionScriptSources
	}

	connect := append([]string{"'self'"}, firebaseEndpoints...)
	connect = append(connect, connectSources...)
	connect = append(connect, "https://api.stripe.com")

	directives := []string{
		"default-src 'self'",
		"script-src " + strings.Join(script, " "),
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' https://firebasestorage.googleapis.com data: blob:",
		"connect-src " + strings.Join(connect, " "),
		"font-src 'self'",
		"manifest-src 'self'",
		"worker-src 'self'",
		"child-src 'self'",
		"object-src 'none'",
		"base-uri 'none'",
		"form-action 'self'",
		"frame-ancestors 'none'",
		"frame-src 'self'",
	}
	return strings.Join(directives, "; ") + ";"
}
