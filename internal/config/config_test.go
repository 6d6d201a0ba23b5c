package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/blockfactory/internal/errors"
	"github.com/conneroisu/blockfactory/internal/model"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(v *viper.Viper)
		expectError bool
		check       func(t *testing.T, c *Config)
	}{
		{
			name:  "defaults",
			setup: func(*viper.Viper) {},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, DefaultPort, c.Server.Port)
				assert.Equal(t, DefaultHost, c.Server.Host)
				assert.Equal(t, DefaultProject, c.Project.File)
				assert.True(t, c.Project.Watch)
				assert.Equal(t, DefaultDebounce, c.Project.Debounce)
				assert.Equal(t, "xml", c.Export.Format)
				assert.Equal(t, "info", c.Log.Level)
				assert.Equal(t, model.DefaultOptions(), c.Preview.DefaultOptions)
			},
		},
		{
			name: "overrides",
			setup: func(v *viper.Viper) {
				v.Set("server.port", 3000)
				v.Set("server.allowed_origins", []string{"http://localhost:3000"})
				v.Set("project.debounce", "1s")
				v.Set("export.format", "YML")
				v.Set("preview.default_options.maxBlocks", 12)
				v.Set("log.level", "DEBUG")
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 3000, c.Server.Port)
				assert.Equal(t, []string{"http://localhost:3000"}, c.Server.AllowedOrigins)
				assert.Equal(t, time.Second, c.Project.Debounce)
				assert.Equal(t, "yaml", c.Export.Format)
				assert.Equal(t, 12, c.Preview.DefaultOptions.MaxBlocks)
				assert.Equal(t, "debug", c.Log.Level)
			},
		},
		{
			name:        "undecodable port",
			setup:       func(v *viper.Viper) { v.Set("server.port", "invalid_port") },
			expectError: true,
		},
		{
			name:        "port out of range",
			setup:       func(v *viper.Viper) { v.Set("server.port", 70000) },
			expectError: true,
		},
		{
			name:        "unknown export format",
			setup:       func(v *viper.Viper) { v.Set("export.format", "toml") },
			expectError: true,
		},
		{
			name:        "out_dir traversal",
			setup:       func(v *viper.Viper) { v.Set("export.out_dir", "../elsewhere") },
			expectError: true,
		},
		{
			name:        "wildcard origin",
			setup:       func(v *viper.Viper) { v.Set("server.allowed_origins", []string{"*"}) },
			expectError: true,
		},
		{
			name:        "invalid default options",
			setup:       func(v *viper.Viper) { v.Set("preview.default_options.toolboxPosition", "left") },
			expectError: true,
		},
		{
			name:        "unknown log level",
			setup:       func(v *viper.Viper) { v.Set("log.level", "verbose") },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			tt.setup(v)

			config, err := LoadFrom(v)

			if tt.expectError {
				require.Error(t, err)
				assert.Nil(t, config)
				assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
				return
			}
			require.NoError(t, err)
			tt.check(t, config)
		})
	}
}

func TestLoadUsesGlobalViper(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set("server.port", 9090)

	config, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "localhost:9090", config.Addr())
}

func TestLoadFromFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName+".yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 4000
project:
  file: toolbox.yml
  watch: false
preview:
  default_options:
    readOnly: true
    grid:
      spacing: 25
      length: 3
      colour: "#ccc"
      snap: true
`), 0o644))

	t.Setenv(EnvPrefix+"_SERVER_HOST", "127.0.0.1")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	require.NoError(t, v.ReadInConfig())

	config, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 4000, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, "toolbox.yml", config.Project.File)
	assert.False(t, config.Project.Watch)
	assert.True(t, config.Preview.DefaultOptions.ReadOnly)
	require.NotNil(t, config.Preview.DefaultOptions.Grid)
	assert.Equal(t, 25, config.Preview.DefaultOptions.Grid.Spacing)
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, validatePath("project.yml"))
	assert.NoError(t, validatePath("./out/docs"))
	assert.NoError(t, validatePath("..hidden"))
	assert.Error(t, validatePath(""))
	assert.Error(t, validatePath("../project.yml"))
	assert.Error(t, validatePath("a/../../b"))
	assert.Error(t, validatePath("out;rm"))
}

func TestValidateConfigWithDetails(t *testing.T) {
	v := viper.New()
	config, err := LoadFrom(v)
	require.NoError(t, err)

	config.Server.Port = 80
	config.Server.Host = "bad host!"
	config.Project.File = filepath.Join(t.TempDir(), "missing.yml")
	config.Export.Format = "toml"

	result := ValidateConfigWithDetails(config)
	assert.False(t, result.Valid)
	assert.True(t, result.HasErrors())
	assert.True(t, result.HasWarnings())

	var fields []string
	for _, e := range result.Errors {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"server.host", "export"}, fields)

	report := result.String()
	assert.Contains(t, report, "Validation errors")
	assert.Contains(t, report, "server.port")
	assert.Contains(t, report, "hint:")
}

func TestValidateConfigWithDetailsClean(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "p.yml")
	require.NoError(t, os.WriteFile(project, []byte("name: x\n"), 0o644))

	config, err := LoadFrom(viper.New())
	require.NoError(t, err)
	config.Project.File = project

	result := ValidateConfigWithDetails(config)
	assert.True(t, result.Valid)
	assert.False(t, result.HasWarnings(), result.String())
}
