package cli

import (
	"errors"
	"fmt"

	"github.com/harun/vigil/internal/config"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile      string
	logLevel     string
	outputFormat string
	apiAddr      string
	apiSecret    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Vigil - tool scheduler and notification lifecycle for a personal agent",
	Long: `Vigil runs monitoring tools on a schedule, turns their triggers into
notifications that wait for a human decision, and executes the proposed
action once a notification is approved.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vigil/vigil.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "", "daemon API address (default from config)")
	rootCmd.PersistentFlags().StringVar(&apiSecret, "secret", "", "API shared secret (default from config)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads the config file named by --config and applies flag
// overrides. Validation problems are reported together.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	return cfg, nil
}

// newClient builds an API client from --addr/--secret, falling back to
// the config file. The config is only read when a flag is missing.
func newClient(cmd *cobra.Command) (*Client, error) {
	addr, secret := apiAddr, apiSecret
	if addr == "" || secret == "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		if addr == "" {
			if !cfg.API.Enabled {
				return nil, fmt.Errorf("the daemon API is disabled in %s", configPathForDisplay())
			}
			addr = cfg.API.Addr()
		}
		if secret == "" {
			secret = cfg.API.SharedSecret
		}
	}
	return NewClient(addr, secret), nil
}

func configPathForDisplay() string {
	return config.NewLoader(cfgFile).GetConfigPath()
}
