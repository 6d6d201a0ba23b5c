// Package cmd provides the command-line interface for blockfactory.
//
// Configuration is read from several sources with clear precedence:
//
//  1. Command-line flags (--config, --port, etc.), highest priority
//  2. BLOCKFACTORY_CONFIG_FILE environment variable, a custom config file path
//  3. Individual environment variables (BLOCKFACTORY_SERVER_PORT, etc.)
//  4. Configuration file (.blockfactory.yml), lowest priority
//
// Environment Variables:
//
//	BLOCKFACTORY_CONFIG_FILE: Path to custom configuration file
//	BLOCKFACTORY_SERVER_PORT: Override server port
//	BLOCKFACTORY_EXPORT_FORMAT: Override export format
//	And more following the BLOCKFACTORY_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/blockfactory/internal/config"
	"github.com/conneroisu/blockfactory/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blockfactory",
	Short: "Design block-editor toolboxes and pre-loaded workspaces",
	Long: `blockfactory builds the toolbox and the pre-loaded workspace of a
visual block editor from a project file, and serves a live preview of both.

Key Features:
  • Categorized or flat toolboxes with separators and custom categories
  • Template (shadow) blocks
  • Canonical XML, JSON and YAML export
  • Live preview server with hot reload of the project file
  • Interactive editing session in the terminal

Quick Start:
  blockfactory serve blockfactory.yml     Start the preview server
  blockfactory export blockfactory.yml    Export toolbox, workspace and options
  blockfactory list blockfactory.yml      List the toolbox elements
  blockfactory interactive                Edit a project in the terminal

Documentation: https://github.com/conneroisu/blockfactory`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .blockfactory.yml, can also use BLOCKFACTORY_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", config.DefaultLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultFormat, "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points viper at the configuration file and enables
// BLOCKFACTORY_ environment overrides. A missing file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(config.FileName)
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the console logger from cfg, teeing into a daily log
// file when a log directory is configured. The returned func closes the
// file.
func newLogger(cfg *config.Config) (logging.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	lc := &logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	}
	console := logging.NewLogger(lc)
	if cfg.Log.Dir == "" {
		return console, func() {}, nil
	}

	file, err := logging.NewFileLogger(lc, cfg.Log.Dir)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewMultiLogger(console, file)
	logger.Debug(context.Background(), "Writing log file", "path", file.Path())
	return logger, func() { _ = file.Close() }, nil
}
