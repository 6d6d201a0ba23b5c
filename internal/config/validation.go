package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}
	write("Validation errors", vr.Errors)
	write("Validation warnings", vr.Warnings)

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

// ValidateConfigWithDetails reports every problem in config, with hints,
// plus warnings for settings that are valid but probably unintended.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{Valid: true}

	validateServerConfigDetails(&config.Server, result)
	validateProjectConfigDetails(&config.Project, result)
	validateExportConfigDetails(&config.Export, result)

	if err := config.Preview.DefaultOptions.Validate(); err != nil {
		result.addError("preview.default_options", nil, err.Error(),
			"Remove the offending option to fall back to the editor default")
	}
	if err := validateLogConfig(&config.Log); err != nil {
		result.addError("log", config.Log, err.Error(),
			"Levels: debug, info, warn, error",
			"Formats: text, json")
	}

	result.Valid = !result.HasErrors()
	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port between 1024-65535 for non-privileged access",
			"Port 0 allows system to assign an available port")
	} else if config.Port > 0 && config.Port < 1024 {
		result.addWarning("server.port", config.Port,
			"port below 1024 requires elevated privileges",
			"Consider using a port above 1024 for development")
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.addError("server.host", config.Host, err.Error(),
				"Use 'localhost' for local development",
				"Use '0.0.0.0' to bind to all interfaces")
		} else if config.Host == "0.0.0.0" {
			result.addWarning("server.host", config.Host,
				"the preview server will be reachable from other machines")
		}
	}

	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			result.addError("server.allowed_origins", origin, "wildcard origin is not allowed",
				"List each origin explicitly, e.g. http://localhost:3000")
		} else if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			result.addError("server.allowed_origins", origin, "origin must include a scheme")
		}
	}
}

func validateProjectConfigDetails(config *ProjectConfig, result *ValidationResult) {
	if config.File == "" {
		result.addWarning("project.file", config.File, "no project file configured",
			"Pass the project file as an argument or set project.file")
	} else if err := validatePath(config.File); err != nil {
		result.addError("project.file", config.File, err.Error(),
			"Use a path relative to the working directory")
	} else if !pathExists(config.File) {
		result.addWarning("project.file", config.File, "project file does not exist yet",
			"Run 'blockfactory interactive "+config.File+"' to create it")
	}

	if config.Debounce < 0 {
		result.addError("project.debounce", config.Debounce, "debounce must not be negative")
	} else if config.Watch && config.Debounce == 0 {
		result.addWarning("project.debounce", config.Debounce,
			"every file event triggers a reload",
			"A debounce of 100ms-500ms coalesces editor save bursts")
	}
}

func validateExportConfigDetails(config *ExportConfig, result *ValidationResult) {
	if err := validateExportConfig(config); err != nil {
		result.addError("export", config, err.Error(),
			"Formats: xml, json, yaml",
			"out_dir must stay inside the working directory")
	}
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
