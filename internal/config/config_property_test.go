//go:build property
// +build property

package config

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/viper"
)

// TestConfigurationProperties tests configuration loading and validation properties
func TestConfigurationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("port validation", prop.ForAll(
		func(port int) bool {
			err := validateServerConfig(&ServerConfig{Port: port, Host: "localhost"})
			if port >= 0 && port <= 65535 {
				return err == nil
			}
			return err != nil
		},
		gen.IntRange(-1000, 70000),
	))

	properties.Property("hosts with shell metacharacters are rejected", prop.ForAll(
		func(prefix string, char string) bool {
			err := validateServerConfig(&ServerConfig{Port: 8080, Host: prefix + char})
			return err != nil
		},
		gen.RegexMatch(`^[a-z0-9.-]{0,10}$`),
		gen.OneConstOf(";", "&", "|", "$", "`", "(", ")", "<", ">"),
	))

	properties.Property("path validation is deterministic and rejects escapes", prop.ForAll(
		func(path string) bool {
			first := validatePath(path)
			second := validatePath(path)
			if (first == nil) != (second == nil) {
				return false
			}
			if strings.HasPrefix(path, "../") {
				return first != nil
			}
			return true
		},
		gen.OneConstOf("project.yml", "../project.yml", "./out", "../../etc", "out/../in", ".", ""),
	))

	properties.Property("defaults are always valid", prop.ForAll(
		func(port int) bool {
			v := viper.New()
			v.Set("server.port", port)
			_, err := LoadFrom(v)
			return err == nil
		},
		gen.IntRange(0, 65535),
	))

	properties.TestingRun(t)
}
