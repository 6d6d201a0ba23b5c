// Package config provides configuration management for blockfactory using
// Viper for loading from files, environment variables, and command-line
// flags.
//
// The configuration file is .blockfactory.yml. Environment variables with
// the BLOCKFACTORY_ prefix override file values, with dots in keys replaced
// by underscores (BLOCKFACTORY_SERVER_PORT). It covers the preview server,
// the project file and its watcher, export defaults, the injection options
// new sessions start with, and logging.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/blockfactory/internal/document"
	"github.com/conneroisu/blockfactory/internal/errors"
	"github.com/conneroisu/blockfactory/internal/model"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "BLOCKFACTORY"

// FileName is the default configuration file name, without extension.
const FileName = ".blockfactory"

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Project ProjectConfig `mapstructure:"project" yaml:"project"`
	Export  ExportConfig  `mapstructure:"export" yaml:"export"`
	Preview PreviewConfig `mapstructure:"preview" yaml:"preview"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" yaml:"port"`
	Host           string   `mapstructure:"host" yaml:"host"`
	Open           bool     `mapstructure:"open" yaml:"open"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type ProjectConfig struct {
	File     string        `mapstructure:"file" yaml:"file"`
	Watch    bool          `mapstructure:"watch" yaml:"watch"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type ExportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	OutDir string `mapstructure:"out_dir" yaml:"out_dir"`
}

// PreviewConfig holds the injection options a new session starts with.
// A project file's own options take precedence.
type PreviewConfig struct {
	DefaultOptions model.InjectionOptions `mapstructure:"default_options" yaml:"default_options"`
}

// LogConfig selects the console logger. When Dir is set, a daily log
// file is written there as well.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Dir    string `mapstructure:"dir" yaml:"dir"`
}

// Defaults.
const (
	DefaultPort     = 8080
	DefaultHost     = "localhost"
	DefaultProject  = "blockfactory.yml"
	DefaultDebounce = 300 * time.Millisecond
	DefaultOutDir   = "."
	DefaultLevel    = "info"
	DefaultFormat   = "text"
)

// SetDefaults registers the defaults on v. Defaults go through viper so
// that IsSet-style overrides from files, env and flags all win over them.
func SetDefaults(v *viper.Viper) {
	opts := model.DefaultOptions()

	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.open", false)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("project.file", DefaultProject)
	v.SetDefault("project.watch", true)
	v.SetDefault("project.debounce", DefaultDebounce)
	v.SetDefault("export.format", string(document.FormatXML))
	v.SetDefault("export.out_dir", DefaultOutDir)
	v.SetDefault("preview.default_options.css", opts.CSS)
	v.SetDefault("preview.default_options.oneBasedIndex", opts.OneBasedIndex)
	v.SetDefault("preview.default_options.sounds", opts.Sounds)
	v.SetDefault("preview.default_options.toolboxPosition", opts.ToolboxPosition)
	v.SetDefault("log.level", DefaultLevel)
	v.SetDefault("log.format", DefaultFormat)
	v.SetDefault("log.dir", "")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, applying defaults for keys v
// does not set.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "decode configuration: "+err.Error())
	}

	config.Export.Format = strings.ToLower(strings.TrimSpace(config.Export.Format))
	if config.Export.Format == "yml" {
		config.Export.Format = string(document.FormatYAML)
	}
	config.Log.Level = strings.ToLower(strings.TrimSpace(config.Log.Level))

	if err := validateConfig(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid configuration: "+err.Error())
	}

	return &config, nil
}

// Addr is the listen address of the preview server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateProjectConfig(&config.Project); err != nil {
		return fmt.Errorf("project config: %w", err)
	}
	if err := validateExportConfig(&config.Export); err != nil {
		return fmt.Errorf("export config: %w", err)
	}
	if err := config.Preview.DefaultOptions.Validate(); err != nil {
		return fmt.Errorf("preview config: %w", err)
	}
	if err := validateLogConfig(&config.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	return nil
}

var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Port 0 lets the system assign one, which tests rely on.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	for _, char := range dangerousChars {
		if strings.Contains(config.Host, char) {
			return fmt.Errorf("host contains dangerous character: %s", char)
		}
	}

	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("wildcard origin is not allowed; list origins explicitly")
		}
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("origin must include a scheme: %s", origin)
		}
	}

	return nil
}

func validateProjectConfig(config *ProjectConfig) error {
	if config.File != "" {
		if err := validatePath(config.File); err != nil {
			return fmt.Errorf("invalid project file %q: %w", config.File, err)
		}
	}
	if config.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative: %s", config.Debounce)
	}
	return nil
}

func validateExportConfig(config *ExportConfig) error {
	if _, err := document.ParseFormat(config.Format); err != nil {
		return err
	}
	if config.OutDir != "" {
		if err := validatePath(config.OutDir); err != nil {
			return fmt.Errorf("invalid out_dir %q: %w", config.OutDir, err)
		}
	}
	return nil
}

func validateLogConfig(config *LogConfig) error {
	switch config.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", config.Level)
	}
	switch config.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", config.Format)
	}
	if config.Dir != "" {
		if err := validatePath(config.Dir); err != nil {
			return fmt.Errorf("invalid log dir %q: %w", config.Dir, err)
		}
	}
	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	for _, char := range dangerousChars[:len(dangerousChars)-1] {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
