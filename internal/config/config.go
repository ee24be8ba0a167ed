// Package config loads hydrate's configuration using Viper from
// .hydrate.yml, HYDRATE_ environment variables and command-line flags.
//
// The configuration covers the build (input and output directories, page
// globs, parallelism and the manifest), where component fragments and the
// style pipeline configuration live, the lazily loaded components used by
// verify, and the preview server and watch mode settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"

	"github.com/conneroisu/hydrate/internal/dom"
	herrors "github.com/conneroisu/hydrate/internal/errors"
)

// FileName is the configuration file looked up in the working directory.
const FileName = ".hydrate.yml"

// EnvPrefix prefixes environment overrides, so build.input_dir is read from
// HYDRATE_BUILD_INPUT_DIR.
const EnvPrefix = "HYDRATE"

type Config struct {
	Build      BuildConfig      `yaml:"build" mapstructure:"build"`
	Components ComponentsConfig `yaml:"components" mapstructure:"components"`
	Styles     StylesConfig     `yaml:"styles" mapstructure:"styles"`
	Runtime    RuntimeConfig    `yaml:"runtime" mapstructure:"runtime"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Watch      WatchConfig      `yaml:"watch" mapstructure:"watch"`
}

type BuildConfig struct {
	InputDir  string   `yaml:"input_dir" mapstructure:"input_dir"`
	OutputDir string   `yaml:"output_dir" mapstructure:"output_dir"`
	Include   []string `yaml:"include" mapstructure:"include"`
	Exclude   []string `yaml:"exclude" mapstructure:"exclude"`
	Workers   int      `yaml:"workers" mapstructure:"workers"`
	Manifest  bool     `yaml:"manifest" mapstructure:"manifest"`
}

type ComponentsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// StylesConfig points at an explicit style pipeline configuration. When
// empty the pipeline discovers one next to the components directory.
type StylesConfig struct {
	Config string `yaml:"config" mapstructure:"config"`
}

// RuntimeConfig lists the custom element tags registered lazily by verify.
type RuntimeConfig struct {
	Lazy []string `yaml:"lazy" mapstructure:"lazy"`
}

type ServerConfig struct {
	Host           string   `yaml:"host" mapstructure:"host"`
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("build.input_dir", "_site")
	v.SetDefault("build.output_dir", "")
	v.SetDefault("build.include", []string{"**/*.html"})
	v.SetDefault("build.exclude", []string{})
	v.SetDefault("build.workers", 0)
	v.SetDefault("build.manifest", true)
	v.SetDefault("components.dir", "_includes/components")
	v.SetDefault("styles.config", "")
	v.SetDefault("runtime.lazy", []string{})
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("watch.debounce", 300*time.Millisecond)
}

// Setup registers defaults on v and makes it read HYDRATE_ environment
// variables.
func Setup(v *viper.Viper) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v. Defaults must
// already be registered with SetDefaults.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, herrors.NewConfigError(herrors.ErrCodeConfigInvalid, "cannot decode configuration: "+err.Error())
	}

	// Slices set from a single env var arrive as one comma separated string.
	config.Build.Include = splitList(config.Build.Include)
	config.Build.Exclude = splitList(config.Build.Exclude)
	config.Runtime.Lazy = splitList(config.Runtime.Lazy)
	config.Server.AllowedOrigins = splitList(config.Server.AllowedOrigins)

	if config.Build.OutputDir == "" {
		config.Build.OutputDir = config.Build.InputDir
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateBuildConfig(&config.Build); err != nil {
		return invalid("build", err)
	}

	if config.Components.Dir == "" {
		return invalid("components", fmt.Errorf("dir is required"))
	}
	if err := validatePath(config.Components.Dir); err != nil {
		return invalid("components", fmt.Errorf("invalid dir '%s': %w", config.Components.Dir, err))
	}

	if config.Styles.Config != "" {
		if err := validatePath(config.Styles.Config); err != nil {
			return invalid("styles", fmt.Errorf("invalid config '%s': %w", config.Styles.Config, err))
		}
	}

	seen := make(map[string]bool, len(config.Runtime.Lazy))
	for _, tag := range config.Runtime.Lazy {
		if !dom.IsCustomTagName(tag) {
			return invalid("runtime", fmt.Errorf("lazy tag %q is not a valid custom element name", tag))
		}
		if seen[tag] {
			return invalid("runtime", fmt.Errorf("lazy tag %q is listed twice", tag))
		}
		seen[tag] = true
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return invalid("server", err)
	}

	if config.Watch.Debounce < 0 {
		return invalid("watch", fmt.Errorf("debounce %s must not be negative", config.Watch.Debounce))
	}

	return nil
}

func invalid(section string, err error) error {
	return herrors.NewConfigError(herrors.ErrCodeConfigInvalid,
		fmt.Sprintf("invalid configuration: %s config: %v", section, err))
}

func validateBuildConfig(config *BuildConfig) error {
	if config.InputDir == "" {
		return fmt.Errorf("input_dir is required")
	}
	if err := validatePath(config.InputDir); err != nil {
		return fmt.Errorf("invalid input_dir '%s': %w", config.InputDir, err)
	}
	if err := validatePath(config.OutputDir); err != nil {
		return fmt.Errorf("invalid output_dir '%s': %w", config.OutputDir, err)
	}
	if len(config.Include) == 0 {
		return fmt.Errorf("include needs at least one pattern")
	}
	for _, pattern := range append(append([]string{}, config.Include...), config.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid glob pattern %q", pattern)
		}
	}
	if config.Workers < 0 {
		return fmt.Errorf("workers %d must not be negative", config.Workers)
	}
	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Validate port range (allow 0 for system-assigned ports in testing)
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

// validatePath rejects empty paths and shell metacharacters.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
