// Package main is the entry point for the calendis-edge binary.
// It provides a CLI for running the edge router and inspecting its routing table.
package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/calendis/calendis-edge/pkg/config"
	"github.com/calendis/calendis-edge/pkg/edge"
)

const defaultLogLevel = "info"

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	ConfigPath  string
	LogLevel    string
	Pretty      bool
	DataListen  string
	AdminListen string
	Upstream    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for calendis-edge
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "calendis-edge",
		Short: "Host-aware edge router for the Calendis web frontend",
		Long: `calendis-edge classifies every request by host, decides whether to pass it
through, rewrite it into the application tree or redirect it, and proxies the
result to the frontend origin.

Example:
  calendis-edge serve --config edge.yaml --upstream http://127.0.0.1:3000
  calendis-edge explain https://app.calendis.fr/calendar --session`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// Load .env file if present
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (YAML)")
	flags.StringVarP(&opts.LogLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&opts.Pretty, "pretty", false, "Human readable log output")
	flags.StringVar(&opts.DataListen, "data-listen", "", "HTTP listen address for the data plane")
	flags.StringVar(&opts.AdminListen, "admin-listen", "", "HTTP listen address for the admin endpoints")
	flags.StringVar(&opts.Upstream, "upstream", "", "Frontend origin URL")

	rootCmd.AddCommand(newServeCmd(opts), newExplainCmd(opts), newValidateCmd(opts))
	return rootCmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the data plane and admin servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func newExplainCmd(opts *rootOptions) *cobra.Command {
	var session, demo bool

	cmd := &cobra.Command{
		Use:   "explain URL",
		Short: "Print the routing decision for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			router, err := cfg.Routing.NewRouter()
			if err != nil {
				return err
			}

			exp, err := edge.Explain(router, args[0], session, demo)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(exp, "", "  ")
			if err != nil {
				return fmt.Errorf("encode explanation: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}

	cmd.Flags().BoolVar(&session, "session", false, "Pretend the session cookie is present")
	cmd.Flags().BoolVar(&demo, "demo", false, "Pretend the demo session cookie is present")
	return cmd
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			router, err := cfg.Routing.NewRouter()
			if err != nil {
				return err
			}
			if _, err := edge.NewManifest(cfg.Manifest); err != nil {
				return err
			}

			source := opts.ConfigPath
			if source == "" {
				source = "defaults"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration valid: %s (%d routing rules, upstream %s)\n",
				source, len(router.Table()), cfg.Upstream.URL)
			return err
		},
	}
}

// loadConfig reads the configuration and applies flag overrides on top of
// file values and EDGE_* environment variables.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config, opts *rootOptions) {
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.Pretty {
		cfg.Logging.Pretty = true
	}
	if opts.DataListen != "" {
		cfg.Server.DataAddress = opts.DataListen
	}
	if opts.AdminListen != "" {
		cfg.Server.AdminAddress = opts.AdminListen
	}
	if opts.Upstream != "" {
		cfg.Upstream.URL = opts.Upstream
	}
}
