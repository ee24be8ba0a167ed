// Package styles transforms component stylesheets before they are embedded in
// declarative shadow roots.
//
// A Pipeline runs a chain of plugins configured by a .stylepipeline.yml file.
// The Loader resolves that configuration lazily, on first use, and reuses the
// resulting chain for every later call in the process.
package styles

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	herrors "github.com/conneroisu/hydrate/internal/errors"
	"github.com/conneroisu/hydrate/internal/logging"
)

// Pipeline transforms raw stylesheet text. inputPath is the stylesheet's
// location and anchors relative references such as @import.
//
//go:generate mockgen -source=pipeline.go -destination=mocks/mock_pipeline.go -package=mocks
type Pipeline interface {
	Process(ctx context.Context, css, inputPath string) (string, error)
}

// Chain applies plugins in order.
type Chain struct {
	plugins []Plugin
}

// NewChain creates a chain from already constructed plugins.
func NewChain(plugins ...Plugin) *Chain {
	return &Chain{plugins: plugins}
}

// Process runs every plugin over css, feeding each the previous output.
func (c *Chain) Process(ctx context.Context, css, inputPath string) (string, error) {
	out := css
	for _, p := range c.plugins {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		next, err := p.Transform(ctx, out, inputPath)
		if err != nil {
			return "", herrors.NewBuildError(herrors.ErrCodeStylePipeline,
				"style plugin "+p.Name()+" failed", err).WithFile(inputPath)
		}
		out = next
	}
	return out, nil
}

// Names returns the plugin names in application order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.plugins))
	for i, p := range c.plugins {
		names[i] = p.Name()
	}
	return names
}

// LoaderOptions configure where a Loader looks for its configuration.
type LoaderOptions struct {
	// Fs backs configuration discovery and @import resolution. Defaults to the
	// OS filesystem.
	Fs afero.Fs
	// SearchDir is where upward discovery of .stylepipeline.yml starts,
	// normally the components directory.
	SearchDir string
	// ConfigPath, when set, is used instead of discovery.
	ConfigPath string
	Logger     logging.Logger
}

// Loader is a Pipeline whose configuration is resolved once, on the first
// call to Process. A failed load is remembered and returned by every call.
type Loader struct {
	opts   LoaderOptions
	logger logging.Logger

	mu         sync.Mutex
	loaded     bool
	chain      *Chain
	configPath string
	err        error
}

// NewLoader creates a lazy pipeline. Nothing is read until Process is called.
func NewLoader(opts LoaderOptions) *Loader {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.SearchDir != "" {
		if abs, err := filepath.Abs(opts.SearchDir); err == nil {
			opts.SearchDir = abs
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loader{opts: opts, logger: logger.WithComponent("styles")}
}

// Process loads the pipeline if needed and runs it.
func (l *Loader) Process(ctx context.Context, css, inputPath string) (string, error) {
	chain, err := l.load(ctx)
	if err != nil {
		return "", err
	}
	return chain.Process(ctx, css, inputPath)
}

// ConfigPath returns the configuration file in use, or "" when the default
// chain is active or nothing has been loaded yet.
func (l *Loader) ConfigPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.configPath
}

func (l *Loader) load(ctx context.Context) (*Chain, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return l.chain, l.err
	}
	l.loaded = true

	path := l.opts.ConfigPath
	if path == "" {
		path = Discover(l.opts.Fs, l.opts.SearchDir)
	}

	cfg := DefaultConfig()
	if path != "" {
		parsed, err := ReadConfig(l.opts.Fs, path)
		if err != nil {
			l.err = err
			return nil, err
		}
		cfg = parsed
	}

	chain, err := cfg.Build(l.opts.Fs)
	if err != nil {
		l.err = err
		return nil, err
	}
	l.chain = chain
	l.configPath = path
	l.logger.Debug(ctx, "Style pipeline loaded", "config", path, "plugins", chain.Names())
	return chain, nil
}
