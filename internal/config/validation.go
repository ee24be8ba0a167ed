package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
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

// ValidationResult holds the warnings found by Check. Hard errors are
// reported by Load and never reach a ValidationResult.
type ValidationResult struct {
	Warnings []ValidationError
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder
	for _, warning := range vr.Warnings {
		builder.WriteString(fmt.Sprintf("  • %s: %s\n", warning.Field, warning.Message))
		for _, suggestion := range warning.Suggestions {
			builder.WriteString(fmt.Sprintf("    %s\n", suggestion))
		}
	}
	return builder.String()
}

// Check looks for settings that are valid but probably not intended, such as
// directories that do not exist on fs.
func Check(fs afero.Fs, config *Config) *ValidationResult {
	result := &ValidationResult{Warnings: []ValidationError{}}

	if ok, _ := afero.DirExists(fs, config.Build.InputDir); !ok {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "build.input_dir",
			Value:   config.Build.InputDir,
			Message: "directory does not exist",
			Suggestions: []string{
				"Run your static site generator first",
				"Point build.input_dir at its output directory",
			},
		})
	}

	if ok, _ := afero.DirExists(fs, config.Components.Dir); !ok {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "components.dir",
			Value:   config.Components.Dir,
			Message: "directory does not exist, no element will receive a shadow root",
			Suggestions: []string{
				"Create <tag>.html and <tag>.css files in " + config.Components.Dir,
			},
		})
	}

	if config.Styles.Config != "" {
		if ok, _ := afero.Exists(fs, config.Styles.Config); !ok {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   "styles.config",
				Value:   config.Styles.Config,
				Message: "file does not exist, component styles will be empty",
			})
		}
	}

	if config.Server.Port > 0 && config.Server.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.port",
			Value:   config.Server.Port,
			Message: "port below 1024 requires elevated privileges",
			Suggestions: []string{
				"Consider using a port above 1024 for development",
			},
		})
	}

	in, out := filepath.Clean(config.Build.InputDir), filepath.Clean(config.Build.OutputDir)
	if in != out {
		if rel, err := filepath.Rel(in, out); err == nil && !strings.HasPrefix(rel, "..") {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   "build.output_dir",
				Value:   config.Build.OutputDir,
				Message: "output directory is inside the input directory and is skipped while walking",
			})
		}
	}

	return result
}
