// Package config provides configuration structures and loading logic for the edge router.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/calendis/calendis-edge/pkg/domain"
)

const (
	defaultAdminAddress    = ":19090"
	defaultDataAddress     = ":8080"
	defaultUpstreamURL     = "http://127.0.0.1:3000"
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds the global configuration for the edge router.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Routing   RoutingConfig   `yaml:"routing"`
	Security  SecurityConfig  `yaml:"security"`
	Manifest  ManifestConfig  `yaml:"manifest"`
	Backend   BackendConfig   `yaml:"backend"`
}

// ServerConfig holds configuration for the HTTP servers.
type ServerConfig struct {
	AdminAddress      string        `yaml:"admin_address"`
	DataAddress       string        `yaml:"data_address"`
	TLS               *TLSConfig    `yaml:"tls,omitempty"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	// TrustForwardedHost classifies requests by X-Forwarded-Host instead of Host.
	TrustForwardedHost bool `yaml:"trust_forwarded_host"`
	// TrustForwardedProto takes the request scheme from X-Forwarded-Proto.
	TrustForwardedProto bool `yaml:"trust_forwarded_proto"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// UpstreamConfig points at the frontend origin that serves pages.
type UpstreamConfig struct {
	URL          string             `yaml:"url"`
	PreserveHost bool               `yaml:"preserve_host"`
	Timeout      time.Duration      `yaml:"timeout"`
	TLS          *UpstreamTLSConfig `yaml:"tls,omitempty"`
}

// BackendConfig selects how the backend service is constructed.
type BackendConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			AdminAddress:      defaultAdminAddress,
			DataAddress:       defaultDataAddress,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   defaultShutdownTimeout,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "calendis-edge",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Upstream: UpstreamConfig{
			URL:          defaultUpstreamURL,
			PreserveHost: true,
			Timeout:      30 * time.Second,
		},
		Routing:  DefaultRouting(),
		Security: DefaultSecurity(),
		Manifest: DefaultManifest(),
		Backend: BackendConfig{
			Mode: "server",
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		data = raw
	}

	cfg, err := Parse(data)
	if err != nil {
		if path != "" {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults, applies environment overrides
// and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config: %v", domain.ErrConfigInvalid, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("EDGE_ADMIN_ADDR"); val != "" {
		cfg.Server.AdminAddress = val
	}
	if val := os.Getenv("EDGE_DATA_ADDR"); val != "" {
		cfg.Server.DataAddress = val
	}

	if val := os.Getenv("EDGE_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("EDGE_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}

	if val := os.Getenv("EDGE_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("EDGE_LOG_PRETTY"); val == "true" {
		cfg.Logging.Pretty = true
	}

	if val := os.Getenv("EDGE_UPSTREAM_URL"); val != "" {
		cfg.Upstream.URL = val
	}

	if val := os.Getenv("EDGE_BACKEND_ENABLED"); val != "" {
		cfg.Backend.Enabled = val == "true"
	}
	if val := os.Getenv("EDGE_BACKEND_MODE"); val != "" {
		cfg.Backend.Mode = val
	}
	if val := os.Getenv("EDGE_VERIFY_SESSIONS"); val != "" {
		cfg.Routing.VerifySessions = val == "true"
	}
	if val := os.Getenv("EDGE_TRUST_FORWARDED_HOST"); val != "" {
		cfg.Server.TrustForwardedHost = val == "true"
	}
	if val := os.Getenv("EDGE_TRUST_FORWARDED_PROTO"); val != "" {
		cfg.Server.TrustForwardedProto = val == "true"
	}

	if val := os.Getenv("EDGE_TLS_ENABLED"); val == "true" {
		if cfg.Server.TLS == nil {
			cfg.Server.TLS = &TLSConfig{}
		}
		cfg.Server.TLS.Enabled = true
	}
	if val := os.Getenv("EDGE_TLS_CERT_FILE"); val != "" {
		if cfg.Server.TLS == nil {
			cfg.Server.TLS = &TLSConfig{}
		}
		cfg.Server.TLS.CertFile = val
	}
	if val := os.Getenv("EDGE_TLS_KEY_FILE"); val != "" {
		if cfg.Server.TLS == nil {
			cfg.Server.TLS = &TLSConfig{}
		}
		cfg.Server.TLS.KeyFile = val
	}
	if val := os.Getenv("EDGE_TLS_MIN_VERSION"); val != "" {
		if cfg.Server.TLS == nil {
			cfg.Server.TLS = &TLSConfig{}
		}
		cfg.Server.TLS.MinVersion = val
	}
}

// Validate performs validation of the entire configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry configuration: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}

	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("upstream configuration: %w", err)
	}

	if err := c.Routing.Validate(); err != nil {
		return fmt.Errorf("routing configuration: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("security configuration: %w", err)
	}

	if err := c.Manifest.Validate(); err != nil {
		return fmt.Errorf("manifest configuration: %w", err)
	}

	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend configuration: %w", err)
	}

	if c.Routing.VerifySessions && (!c.Backend.Enabled || c.Backend.Mode == "client") {
		return fmt.Errorf("%w: routing.verify_sessions requires an enabled backend in server or demo mode", domain.ErrConfigInvalid)
	}

	return nil
}

// Validate performs validation of server configuration.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.AdminAddress) == "" {
		c.AdminAddress = defaultAdminAddress
	}

	if strings.TrimSpace(c.DataAddress) == "" {
		c.DataAddress = defaultDataAddress
	}

	if c.AdminAddress == c.DataAddress {
		return fmt.Errorf("%w: admin_address and data_address must differ (both %q)", domain.ErrConfigInvalid, c.AdminAddress)
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}

	if c.TLS != nil {
		if err := c.TLS.Validate(); err != nil {
			return fmt.Errorf("TLS configuration: %w", err)
		}
	}

	return nil
}

// Validate performs validation of telemetry configuration.
func (c *TelemetryConfig) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = "calendis-edge"
	}
	if strings.Contains(c.OTLPEndpoint, "://") {
		return fmt.Errorf("%w: otlp_endpoint must be host:port, got %q", domain.ErrConfigInvalid, c.OTLPEndpoint)
	}
	return nil
}

// Validate performs validation of logging configuration.
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
		return nil
	default:
		return fmt.Errorf("%w: invalid log level %q, supported levels: debug, info, warn, error", domain.ErrConfigInvalid, c.Level)
	}
}

// Validate performs validation of upstream configuration.
func (c *UpstreamConfig) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.URL))
	if err != nil {
		return fmt.Errorf("%w: invalid upstream url %q: %v", domain.ErrConfigInvalid, c.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: upstream url %q must use http or https", domain.ErrConfigInvalid, c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: upstream url %q has no host", domain.ErrConfigInvalid, c.URL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: upstream timeout cannot be negative", domain.ErrConfigInvalid)
	}
	if c.TLS != nil {
		if err := c.TLS.Validate(); err != nil {
			return fmt.Errorf("TLS configuration: %w", err)
		}
	}
	return nil
}

// ParsedURL returns the validated upstream URL.
func (c *UpstreamConfig) ParsedURL() (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(c.URL))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid upstream url %q: %v", domain.ErrConfigInvalid, c.URL, err)
	}
	return u, nil
}

// Validate performs validation of backend configuration.
func (c *BackendConfig) Validate() error {
	if strings.TrimSpace(c.Mode) == "" {
		c.Mode = "server"
	}
	mode := strings.ToLower(strings.TrimSpace(c.Mode))
	switch mode {
	case "server", "client", "demo":
		c.Mode = mode
		return nil
	default:
		return fmt.Errorf("%w: invalid backend mode %q, supported modes: server, client, demo", domain.ErrConfigInvalid, c.Mode)
	}
}
