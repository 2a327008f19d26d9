package routing

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/calendis/calendis-edge/pkg/domain"
)

// HostTable describes the hostnames served in one environment.
type HostTable struct {
	// Scheme used when building absolute URLs for this environment.
	Scheme string
	// Domain is the base domain whose first label selects the subdomain
	// (calendis.fr, localhost). For the testing environment it is the
	// preview platform suffix (vercel.app).
	Domain string
	// Hosts lists explicit hostnames per subdomain. Entries may carry a port;
	// the first entry of a subdomain is its canonical host.
	Hosts map[domain.Subdomain][]string
}

// CanonicalHost returns the first configured host of a subdomain.
func (t HostTable) CanonicalHost(sub domain.Subdomain) (string, bool) {
	hosts := t.Hosts[sub]
	if len(hosts) == 0 {
		return "", false
	}
	return hosts[0], true
}

// Settings is the static routing configuration.
type Settings struct {
	Environments   map[domain.Environment]HostTable
	LoginPath      string
	LandingPath    string
	NotFoundPath   string
	PublicPaths    []string
	BypassPrefixes []string
	AppPrefix      string
	DemoPrefix     string
	ReturnParam    string
	RedirectStatus int
	// SessionCookie and DemoCookie name the cookies that carry the app and
	// demo sessions.
	SessionCookie string
	DemoCookie    string
}

// DefaultSettings returns the routing table used by the production deployment.
func DefaultSettings() Settings {
	return Settings{
		Environments: map[domain.Environment]HostTable{
			domain.EnvProduction: {
				Scheme: "https",
				Domain: "calendis.fr",
				Hosts: map[domain.Subdomain][]string{
					domain.SubdomainRoot: {"www.calendis.fr", "calendis.fr"},
					domain.SubdomainApp:  {"app.calendis.fr"},
					domain.SubdomainDemo: {"demo.calendis.fr"},
				},
			},
			domain.EnvTesting: {
				Scheme: "https",
				Domain: "vercel.app",
				Hosts: map[domain.Subdomain][]string{
					domain.SubdomainPreview: {"calendis-web.vercel.app"},
				},
			},
			domain.EnvDevelopment: {
				Scheme: "http",
				Domain: "localhost",
				Hosts: map[domain.Subdomain][]string{
					domain.SubdomainRoot: {"www.localhost:3000"},
					domain.SubdomainApp:  {"app.localhost:3000"},
					domain.SubdomainDemo: {"demo.localhost:3000"},
				},
			},
		},
		LoginPath:    "/login",
		LandingPath:  "/welcome",
		NotFoundPath: "/404",
		PublicPaths:  []string{"/login", "/signup"},
		BypassPrefixes: []string{
			"/_next",
			"/api",
			"/static",
			"/icons",
			"/favicon.ico",
			"/robots.txt",
			"/sitemap.xml",
			"/manifest.webmanifest",
		},
		AppPrefix:      "/app",
		DemoPrefix:     "/demo",
		ReturnParam:    "redirect",
		RedirectStatus: http.StatusSeeOther,
		SessionCookie:  "user",
		DemoCookie:     "demo",
	}
}

// Validate checks the settings for values that would make routing loop or
// produce malformed URLs.
func (s Settings) Validate() error {
	if len(s.Environments) == 0 {
		return fmt.Errorf("%w: at least one environment must be configured", domain.ErrConfigInvalid)
	}
	for env, table := range s.Environments {
		if _, err := domain.ParseEnvironment(string(env)); err != nil {
			return err
		}
		switch table.Scheme {
		case "http", "https":
		default:
			return fmt.Errorf("%w: environment %s: unsupported scheme %q", domain.ErrConfigInvalid, env, table.Scheme)
		}
		if table.Domain == "" && len(table.Hosts) == 0 {
			return fmt.Errorf("%w: environment %s: domain or hosts required", domain.ErrConfigInvalid, env)
		}
		for sub, hosts := range table.Hosts {
			if _, err := domain.ParseSubdomain(string(sub)); err != nil {
				return fmt.Errorf("%w: environment %s: invalid subdomain %q", domain.ErrConfigInvalid, env, sub)
			}
			for _, h := range hosts {
				if NormalizeHost(h) == "" {
					return fmt.Errorf("%w: environment %s: empty host for %s", domain.ErrConfigInvalid, env, sub)
				}
			}
		}
	}

	paths := map[string]string{
		"login_path":     s.LoginPath,
		"landing_path":   s.LandingPath,
		"not_found_path": s.NotFoundPath,
		"app_prefix":     s.AppPrefix,
		"demo_prefix":    s.DemoPrefix,
	}
	for name, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%w: %s must start with '/', got %q", domain.ErrConfigInvalid, name, p)
		}
	}
	for _, p := range append(slices.Clone(s.PublicPaths), s.BypassPrefixes...) {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%w: path %q must start with '/'", domain.ErrConfigInvalid, p)
		}
	}
	if s.AppPrefix == "/" {
		return fmt.Errorf("%w: app_prefix cannot be the root path", domain.ErrConfigInvalid)
	}
	if !slices.Contains(s.PublicPaths, s.LoginPath) {
		return fmt.Errorf("%w: login_path %q must be listed in public_paths", domain.ErrConfigInvalid, s.LoginPath)
	}
	if slices.Contains(s.PublicPaths, s.LandingPath) {
		return fmt.Errorf("%w: landing_path %q cannot be public", domain.ErrConfigInvalid, s.LandingPath)
	}
	if s.ReturnParam == "" {
		return fmt.Errorf("%w: return_param is required", domain.ErrConfigInvalid)
	}
	if strings.TrimSpace(s.SessionCookie) == "" {
		return fmt.Errorf("%w: cookies.session cannot be empty", domain.ErrConfigInvalid)
	}
	if strings.TrimSpace(s.DemoCookie) == "" {
		return fmt.Errorf("%w: cookies.demo cannot be empty", domain.ErrConfigInvalid)
	}
	if s.SessionCookie == s.DemoCookie {
		return fmt.Errorf("%w: session and demo cookies must differ", domain.ErrConfigInvalid)
	}

	switch s.RedirectStatus {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return fmt.Errorf("%w: redirect_status %d is not a redirect code", domain.ErrConfigInvalid, s.RedirectStatus)
	}

	return nil
}
