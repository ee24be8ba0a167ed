// Package site runs the shadow template injector over a built site.
package site

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	herrors "github.com/conneroisu/hydrate/internal/errors"
	"github.com/conneroisu/hydrate/internal/fragments"
	"github.com/conneroisu/hydrate/internal/inject"
	"github.com/conneroisu/hydrate/internal/logging"
	"github.com/conneroisu/hydrate/internal/metrics"
	"github.com/conneroisu/hydrate/internal/styles"
)

// ManifestFile is written to the output directory after a build.
const ManifestFile = ".hydrate-manifest.json"

// DefaultInclude selects the pages rewritten by default.
var DefaultInclude = []string{"**/*.html"}

// Options configure a Builder.
type Options struct {
	Fs            afero.Fs
	InputDir      string
	OutputDir     string
	Include       []string
	Exclude       []string
	Workers       int
	Manifest      bool
	ComponentsDir string
	Pipeline      styles.Pipeline
	Logger        logging.Logger
	Metrics       *metrics.Build
}

// Manifest describes one build run.
type Manifest struct {
	BuildID    string            `json:"build_id"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration_ns"`
	Pages      []PageRecord      `json:"pages"`
	Components []fragments.Entry `json:"components"`
	Copied     int               `json:"copied"`
}

// PageRecord is the outcome for one page.
type PageRecord struct {
	Path     string   `json:"path"`
	Elements int      `json:"elements"`
	Injected int      `json:"injected"`
	Skipped  int      `json:"skipped"`
	Tags     []string `json:"tags,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Builder runs builds. It is safe to call Build repeatedly; every run starts
// with an empty fragment cache.
type Builder struct {
	opts   Options
	logger logging.Logger
}

// NewBuilder validates opts and fills in defaults.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.InputDir == "" {
		return nil, herrors.NewValidationError(herrors.ErrCodeInvalidPath, "input directory is required")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = opts.InputDir
	}
	if len(opts.Include) == 0 {
		opts.Include = DefaultInclude
	}
	for _, pattern := range append(append([]string{}, opts.Include...), opts.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, herrors.NewValidationError(herrors.ErrCodeConfigInvalid,
				fmt.Sprintf("invalid glob pattern %q", pattern))
		}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Builder{opts: opts, logger: logger.WithComponent("site")}, nil
}

// Options returns the effective options.
func (b *Builder) Options() Options { return b.opts }

// Build rewrites every selected page. Pages that fail are recorded and the
// build returns an error after all pages were attempted, together with the
// manifest of what was done.
func (b *Builder) Build(ctx context.Context) (*Manifest, error) {
	started := time.Now()
	m := &Manifest{BuildID: uuid.NewString(), StartedAt: started}
	log := b.logger.With("build_id", m.BuildID)

	pages, copies, err := b.collect()
	if err != nil {
		return nil, err
	}

	for _, rel := range copies {
		if err := b.copyFile(rel); err != nil {
			return nil, err
		}
	}
	m.Copied = len(copies)

	cache := fragments.New(fragments.Options{
		Fs:       b.opts.Fs,
		Dir:      b.opts.ComponentsDir,
		Pipeline: b.opts.Pipeline,
		Logger:   log,
		Metrics:  b.opts.Metrics,
	})
	injector := inject.New(cache, log)
	collector := herrors.NewErrorCollector()

	records := make([]PageRecord, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, rel := range pages {
		i, rel := i, rel
		g.Go(func() error {
			records[i] = b.page(gctx, injector, collector, rel)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m.Pages = records
	for _, e := range cache.Entries() {
		if !e.Empty() {
			m.Components = append(m.Components, e)
		}
	}
	m.Duration = time.Since(started)

	if b.opts.Manifest {
		if err := b.writeManifest(m); err != nil {
			return m, err
		}
	}

	log.Info(ctx, "Build finished",
		"pages", len(m.Pages), "components", len(m.Components), "copied", m.Copied, "duration", m.Duration)
	if collector.HasErrors() {
		return m, collector.Err()
	}
	return m, nil
}

func (b *Builder) page(ctx context.Context, in *inject.Injector, collector *herrors.ErrorCollector, rel string) PageRecord {
	rec := PageRecord{Path: rel}
	started := time.Now()

	res, err := b.injectPage(ctx, in, rel)
	if err != nil {
		if ctx.Err() != nil {
			return rec
		}
		rec.Error = err.Error()
		collector.Add(herrors.PageError{Page: rel, Message: "page injection failed", Severity: herrors.ErrorSeverityError, Cause: err})
		b.opts.Metrics.PageFailed()
		b.logger.Warn(ctx, err, "Page failed", "page", rel)
		return rec
	}

	rec.Elements, rec.Injected, rec.Skipped, rec.Tags = res.Elements, res.Injected, res.Skipped, res.Tags
	b.opts.Metrics.PageDone(time.Since(started), res.Injected)
	b.logger.Debug(ctx, "Page processed", "page", rel, "injected", res.Injected)
	return rec
}

func (b *Builder) injectPage(ctx context.Context, in *inject.Injector, rel string) (inject.Result, error) {
	src := filepath.Join(b.opts.InputDir, filepath.FromSlash(rel))
	data, err := afero.ReadFile(b.opts.Fs, src)
	if err != nil {
		return inject.Result{}, herrors.NewIOError(herrors.ErrCodeFileNotFound, "cannot read page", err).WithFile(src)
	}

	var out bytes.Buffer
	res, err := in.Inject(ctx, bytes.NewReader(data), &out)
	if err != nil {
		return inject.Result{}, err
	}

	dst := filepath.Join(b.opts.OutputDir, filepath.FromSlash(rel))
	if err := b.write(dst, out.Bytes(), 0o644); err != nil {
		return inject.Result{}, err
	}
	return res, nil
}

// collect walks the input directory and splits its files into pages to
// rewrite and files to copy verbatim. Paths are slash separated and relative
// to the input directory. Nothing is copied for in-place builds.
func (b *Builder) collect() (pages, copies []string, err error) {
	in := filepath.Clean(b.opts.InputDir)
	out := filepath.Clean(b.opts.OutputDir)
	inPlace := in == out

	err = afero.Walk(b.opts.Fs, in, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			if !inPlace && filepath.Clean(path) == out {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(in, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == ManifestFile {
			return nil
		}
		if b.selected(rel) {
			pages = append(pages, rel)
		} else if !inPlace {
			copies = append(copies, rel)
		}
		return nil
	})
	if err != nil {
		return nil, nil, herrors.NewIOError(herrors.ErrCodeInvalidPath, "cannot walk input directory", err).WithFile(in)
	}
	sort.Strings(pages)
	sort.Strings(copies)
	return pages, copies, nil
}

func (b *Builder) selected(rel string) bool {
	return matchAny(b.opts.Include, rel) && !matchAny(b.opts.Exclude, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func (b *Builder) copyFile(rel string) error {
	src := filepath.Join(b.opts.InputDir, filepath.FromSlash(rel))
	info, err := b.opts.Fs.Stat(src)
	if err != nil {
		return herrors.NewIOError(herrors.ErrCodeFileNotFound, "cannot stat file", err).WithFile(src)
	}
	data, err := afero.ReadFile(b.opts.Fs, src)
	if err != nil {
		return herrors.NewIOError(herrors.ErrCodeFileNotFound, "cannot read file", err).WithFile(src)
	}
	return b.write(filepath.Join(b.opts.OutputDir, filepath.FromSlash(rel)), data, info.Mode().Perm())
}

// write stores data at dst unless dst already holds exactly data, so that a
// build over its own output leaves files untouched.
func (b *Builder) write(dst string, data []byte, perm os.FileMode) error {
	if existing, err := afero.ReadFile(b.opts.Fs, dst); err == nil && bytes.Equal(existing, data) {
		return nil
	}
	if err := b.opts.Fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return herrors.NewIOError(herrors.ErrCodePageWrite, "cannot create output directory", err).WithFile(dst)
	}
	if err := afero.WriteFile(b.opts.Fs, dst, data, perm); err != nil {
		return herrors.NewIOError(herrors.ErrCodePageWrite, "cannot write file", err).WithFile(dst)
	}
	return nil
}

func (b *Builder) writeManifest(m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return herrors.NewInternalError(herrors.ErrCodeInternalError, "cannot encode manifest", err)
	}
	return b.write(filepath.Join(b.opts.OutputDir, ManifestFile), append(data, '\n'), 0o644)
}

// ReadManifest loads the manifest written by a previous build.
func ReadManifest(fs afero.Fs, outputDir string) (*Manifest, error) {
	path := filepath.Join(outputDir, ManifestFile)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, herrors.NewIOError(herrors.ErrCodeFileNotFound, "cannot read manifest", err).WithFile(path)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, herrors.NewBuildError(herrors.ErrCodeBuildFailed, "cannot decode manifest", err).WithFile(path)
	}
	return &m, nil
}
