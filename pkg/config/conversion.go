package config

import (
	"fmt"
	"strings"

	"github.com/calendis/calendis-edge/pkg/domain"
	"github.com/calendis/calendis-edge/pkg/routing"
)

// RoutingConfig is the YAML form of the routing settings. The whole section,
// cookie names included, is swapped on hot reload except verify_sessions,
// which is read at startup.
type RoutingConfig struct {
	Environments   map[string]EnvironmentConfig `yaml:"environments"`
	LoginPath      string                       `yaml:"login_path"`
	LandingPath    string                       `yaml:"landing_path"`
	NotFoundPath   string                       `yaml:"not_found_path"`
	PublicPaths    []string                     `yaml:"public_paths"`
	BypassPrefixes []string                     `yaml:"bypass_prefixes"`
	AppPrefix      string                       `yaml:"app_prefix"`
	DemoPrefix     string                       `yaml:"demo_prefix"`
	ReturnParam    string                       `yaml:"return_param"`
	RedirectStatus int                          `yaml:"redirect_status"`
	Cookies        CookieConfig                 `yaml:"cookies"`
	VerifySessions bool                         `yaml:"verify_sessions"`
}

// EnvironmentConfig lists the hosts of one deployment environment.
type EnvironmentConfig struct {
	Scheme string              `yaml:"scheme"`
	Domain string              `yaml:"domain"`
	Hosts  map[string][]string `yaml:"hosts"`
}

// CookieConfig names the session cookies.
type CookieConfig struct {
	Session string `yaml:"session"`
	Demo    string `yaml:"demo"`
}

// DefaultRouting mirrors routing.DefaultSettings in configuration form.
func DefaultRouting() RoutingConfig {
	s := routing.DefaultSettings()

	envs := make(map[string]EnvironmentConfig, len(s.Environments))
	for env, table := range s.Environments {
		hosts := make(map[string][]string, len(table.Hosts))
		for sub, list := range table.Hosts {
			hosts[string(sub)] = append([]string(nil), list...)
		}
		envs[string(env)] = EnvironmentConfig{Scheme: table.Scheme, Domain: table.Domain, Hosts: hosts}
	}

	return RoutingConfig{
		Environments:   envs,
		LoginPath:      s.LoginPath,
		LandingPath:    s.LandingPath,
		NotFoundPath:   s.NotFoundPath,
		PublicPaths:    append([]string(nil), s.PublicPaths...),
		BypassPrefixes: append([]string(nil), s.BypassPrefixes...),
		AppPrefix:      s.AppPrefix,
		DemoPrefix:     s.DemoPrefix,
		ReturnParam:    s.ReturnParam,
		RedirectStatus: s.RedirectStatus,
		Cookies: CookieConfig{
			Session: s.SessionCookie,
			Demo:    s.DemoCookie,
		},
	}
}

// Settings converts the configuration into routing settings.
func (c RoutingConfig) Settings() (routing.Settings, error) {
	s := routing.Settings{
		Environments:   make(map[domain.Environment]routing.HostTable, len(c.Environments)),
		LoginPath:      c.LoginPath,
		LandingPath:    c.LandingPath,
		NotFoundPath:   c.NotFoundPath,
		PublicPaths:    append([]string(nil), c.PublicPaths...),
		BypassPrefixes: append([]string(nil), c.BypassPrefixes...),
		AppPrefix:      c.AppPrefix,
		DemoPrefix:     c.DemoPrefix,
		ReturnParam:    c.ReturnParam,
		RedirectStatus: c.RedirectStatus,
		SessionCookie:  strings.TrimSpace(c.Cookies.Session),
		DemoCookie:     strings.TrimSpace(c.Cookies.Demo),
	}

	for name, envCfg := range c.Environments {
		env, err := domain.ParseEnvironment(name)
		if err != nil {
			return routing.Settings{}, err
		}
		table := routing.HostTable{
			Scheme: strings.ToLower(strings.TrimSpace(envCfg.Scheme)),
			Domain: strings.TrimSpace(envCfg.Domain),
			Hosts:  make(map[domain.Subdomain][]string, len(envCfg.Hosts)),
		}
		for label, hosts := range envCfg.Hosts {
			sub, err := domain.ParseSubdomain(label)
			if err != nil {
				return routing.Settings{}, fmt.Errorf("environment %s: %w", name, err)
			}
			table.Hosts[sub] = append(table.Hosts[sub], hosts...)
		}
		s.Environments[env] = table
	}

	return s, nil
}

// Validate converts and validates the routing section.
func (c *RoutingConfig) Validate() error {
	s, err := c.Settings()
	if err != nil {
		return err
	}
	return s.Validate()
}

// NewRouter builds a router from the routing section.
func (c RoutingConfig) NewRouter() (*routing.Router, error) {
	s, err := c.Settings()
	if err != nil {
		return nil, err
	}
	return routing.NewRouter(s)
}
