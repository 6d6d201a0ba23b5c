package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/blockfactory/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the blockfactory configuration",
	Long: `Inspect the configuration after files, environment variables and flags
have been applied.

Examples:
  blockfactory config show                 # Show the effective configuration
  blockfactory config show --format json   # As JSON
  blockfactory config validate             # Validate with hints
  blockfactory config validate --strict    # Treat warnings as errors`,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the configuration for correctness and report every problem with
a hint. Settings that are valid but probably unintended are reported as
warnings.`,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var (
	configFormat string
	configStrict bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")
	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")
}

// decodeConfig reads the configuration without rejecting invalid values,
// so that validate can report all of them.
func decodeConfig(v *viper.Viper) (*config.Config, error) {
	config.SetDefaults(v)
	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	return &cfg, nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := decodeConfig(viper.GetViper())
	if err != nil {
		return err
	}
	return reportValidation(cmd.OutOrStdout(), config.ValidateConfigWithDetails(cfg), configStrict)
}

func reportValidation(out io.Writer, result *config.ValidationResult, strict bool) error {
	if !result.HasErrors() && !result.HasWarnings() {
		fmt.Fprintln(out, "Configuration is valid.")
		return nil
	}
	fmt.Fprint(out, result.String())
	if result.HasErrors() {
		return errors.New("configuration is invalid")
	}
	if strict {
		return errors.New("configuration has warnings")
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return showConfig(cmd.OutOrStdout(), cfg, configFormat)
}

func showConfig(out io.Writer, cfg *config.Config, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", format)
	}
}
