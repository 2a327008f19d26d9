package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/calendis/calendis-edge/pkg/domain"
)

// SecurityConfig controls the response headers added to every data plane response.
type SecurityConfig struct {
	Headers bool `yaml:"headers"`
	// ConnectSources are appended to the CSP connect-src directive.
	ConnectSources []string `yaml:"connect_sources"`
	// PermissionsPolicy overrides the Permissions-Policy header value.
	PermissionsPolicy string `yaml:"permissions_policy"`
}

// DefaultSecurity enables the standard header set.
func DefaultSecurity() SecurityConfig {
	return SecurityConfig{
		Headers:           true,
		PermissionsPolicy: "geolocation=(), microphone=(self)",
	}
}

// Validate performs validation of security configuration.
func (c *SecurityConfig) Validate() error {
	for _, src := range c.ConnectSources {
		if strings.ContainsAny(src, " ;") {
			return fmt.Errorf("%w: connect source %q must be a single CSP source", domain.ErrConfigInvalid, src)
		}
	}
	return nil
}

// ManifestConfig describes the web app manifest served on application hosts.
type ManifestConfig struct {
	Name            string       `yaml:"name"`
	ShortName       string       `yaml:"short_name"`
	Description     string       `yaml:"description"`
	StartURL        string       `yaml:"start_url"`
	BackgroundColor string       `yaml:"background_color"`
	ThemeColor      string       `yaml:"theme_color"`
	Icons           []IconConfig `yaml:"icons"`
}

// IconConfig is one manifest icon.
type IconConfig struct {
	Src   string `yaml:"src"`
	Sizes string `yaml:"sizes"`
	Type  string `yaml:"type"`
}

var (
	colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	sizesPattern = regexp.MustCompile(`^[0-9]+x[0-9]+$`)
)

// DefaultManifest returns the Calendis manifest.
func DefaultManifest() ManifestConfig {
	return ManifestConfig{
		Name:            "Calendis",
		ShortName:       "Calendis",
		Description:     "L'application unique pour planifier la distribution du calendrier, gérer vos événements et suivre la vie de l'amicale.",
		StartURL:        "/",
		BackgroundColor: "#fff",
		ThemeColor:      "#454653",
		Icons: []IconConfig{
			{Src: "/icons/icon-96x96.png", Sizes: "96x96", Type: "image/png"},
			{Src: "/icons/icon-192x192.png", Sizes: "192x192", Type: "image/png"},
			{Src: "/icons/icon-512x512.png", Sizes: "512x512", Type: "image/png"},
			{Src: "/icons/icon-256x256.png", Sizes: "256x256", Type: "image/png"},
		},
	}
}

// Validate performs validation of manifest configuration.
func (c *ManifestConfig) Validate() error {
	if strings.TrimSpace(c.StartURL) == "" {
		c.StartURL = "/"
	}
	for name, color := range map[string]string{"background_color": c.BackgroundColor, "theme_color": c.ThemeColor} {
		if color != "" && !colorPattern.MatchString(color) {
			return fmt.Errorf("%w: %s %q is not a hex color", domain.ErrConfigInvalid, name, color)
		}
	}
	for i, icon := range c.Icons {
		if !strings.HasPrefix(icon.Src, "/") {
			return fmt.Errorf("%w: icon %d src must be an absolute path", domain.ErrConfigInvalid, i)
		}
		if !sizesPattern.MatchString(icon.Sizes) {
			return fmt.Errorf("%w: icon %d sizes %q must look like 192x192", domain.ErrConfigInvalid, i, icon.Sizes)
		}
	}
	return nil
}
