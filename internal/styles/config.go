package styles

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	herrors "github.com/conneroisu/hydrate/internal/errors"
)

// ConfigFileNames are searched for, in order, in each directory during
// discovery.
var ConfigFileNames = []string{".stylepipeline.yml", ".stylepipeline.yaml"}

// Config is the parsed pipeline configuration file.
type Config struct {
	Plugins []PluginConfig `yaml:"plugins"`
}

// PluginConfig names one plugin and carries its raw options.
type PluginConfig struct {
	Name    string    `yaml:"name"`
	Options yaml.Node `yaml:"options"`
}

// DefaultConfig is used when no configuration file exists.
func DefaultConfig() *Config {
	return &Config{Plugins: []PluginConfig{{Name: PluginImport}, {Name: PluginMinify}}}
}

// Discover walks from dir to the filesystem root and returns the first
// configuration file found, or "".
func Discover(fs afero.Fs, dir string) string {
	if dir == "" {
		return ""
	}
	dir = filepath.Clean(dir)
	for {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if ok, _ := afero.Exists(fs, candidate); ok {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ReadConfig parses the configuration file at path.
func ReadConfig(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, herrors.NewConfigError(herrors.ErrCodeFileNotFound,
			fmt.Sprintf("read style pipeline config: %v", err)).WithFile(path)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, herrors.NewConfigError(herrors.ErrCodeConfigInvalid,
			fmt.Sprintf("parse style pipeline config: %v", err)).WithFile(path)
	}
	return &cfg, nil
}

// Build constructs the plugin chain. Relative paths in plugin options are
// resolved against the working directory.
func (c *Config) Build(fs afero.Fs) (*Chain, error) {
	plugins := make([]Plugin, 0, len(c.Plugins))
	for _, pc := range c.Plugins {
		factory, ok := pluginFactories[pc.Name]
		if !ok {
			return nil, herrors.NewConfigError(herrors.ErrCodeConfigInvalid,
				fmt.Sprintf("unknown style plugin %q", pc.Name))
		}
		p, err := factory(fs, &pc.Options)
		if err != nil {
			return nil, herrors.NewConfigError(herrors.ErrCodeConfigInvalid,
				fmt.Sprintf("configure style plugin %q: %v", pc.Name, err))
		}
		plugins = append(plugins, p)
	}
	return NewChain(plugins...), nil
}

func decodeOptions(node *yaml.Node, into interface{}) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	return node.Decode(into)
}
