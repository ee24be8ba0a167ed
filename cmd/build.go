package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/conneroisu/hydrate/internal/config"
	"github.com/conneroisu/hydrate/internal/metrics"
	"github.com/conneroisu/hydrate/internal/site"
	"github.com/conneroisu/hydrate/internal/styles"
)

type buildOptions struct {
	metricsFile string
	report      string
}

func newBuildCommand(a *app) *cobra.Command {
	opts := &buildOptions{}
	cmd := &cobra.Command{
		Use:     "build",
		Aliases: []string{"b"},
		Short:   "Inject declarative shadow roots into every page of a built site",
		Long: `Rewrite the pages of a built static site so that every custom element
backed by a component file gets a <template shadowrootmode="open"> holding the
component's style and markup.

Examples:
  hydrate build                          # Rewrite _site in place
  hydrate build -i public -o dist        # Write the rewritten site to dist
  hydrate build --exclude 'drafts/**'    # Leave drafts untouched
  hydrate build --metrics-file build.prom --report report.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd, opts)
		},
	}

	addBuildFlags(a, cmd)
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "write build metrics to this file in the Prometheus text format")
	cmd.Flags().StringVar(&opts.report, "report", "", "write an HTML build report to this file")
	return cmd
}

// addBuildFlags adds the flags shared by build and watch.
func addBuildFlags(a *app, cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("input", "i", "", "directory holding the built site (default _site)")
	flags.StringP("output", "o", "", "output directory (default: rewrite the input in place)")
	flags.StringP("components", "c", "", "components directory (default _includes/components)")
	flags.String("styles-config", "", "style pipeline configuration file")
	flags.StringSlice("include", nil, "glob of pages to rewrite (default **/*.html)")
	flags.StringSlice("exclude", nil, "glob of pages to leave untouched")
	flags.IntP("workers", "w", 0, "pages processed in parallel (default GOMAXPROCS)")
	flags.Bool("manifest", true, "write "+site.ManifestFile+" to the output directory")

	a.bind(cmd, map[string]string{
		"input":         "build.input_dir",
		"output":        "build.output_dir",
		"components":    "components.dir",
		"styles-config": "styles.config",
		"include":       "build.include",
		"exclude":       "build.exclude",
		"workers":       "build.workers",
		"manifest":      "build.manifest",
	})
}

func (a *app) runBuild(cmd *cobra.Command, opts *buildOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	builder, err := a.newBuilder(cfg, metrics.NewBuild(reg))
	if err != nil {
		return err
	}

	printf(out, "🔨 Hydrating %s -> %s\n", cfg.Build.InputDir, cfg.Build.OutputDir)
	m, buildErr := builder.Build(ctx)
	if m != nil {
		printManifest(out, m)
	}

	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	if opts.report != "" && m != nil {
		if err := a.writeReport(ctx, opts.report, m); err != nil {
			return err
		}
	}

	if buildErr != nil {
		return buildErr
	}
	printf(out, "✅ Build completed in %s\n", m.Duration)
	return nil
}

// newBuilder wires the style pipeline, fragment directory and metrics into a
// site builder.
func (a *app) newBuilder(cfg *config.Config, m *metrics.Build) (*site.Builder, error) {
	pipeline := styles.NewLoader(styles.LoaderOptions{
		Fs:         a.fs,
		SearchDir:  cfg.Components.Dir,
		ConfigPath: cfg.Styles.Config,
		Logger:     a.logger,
	})
	return site.NewBuilder(site.Options{
		Fs:            a.fs,
		InputDir:      cfg.Build.InputDir,
		OutputDir:     cfg.Build.OutputDir,
		Include:       cfg.Build.Include,
		Exclude:       cfg.Build.Exclude,
		Workers:       cfg.Build.Workers,
		Manifest:      cfg.Build.Manifest,
		ComponentsDir: cfg.Components.Dir,
		Pipeline:      pipeline,
		Logger:        a.logger,
		Metrics:       m,
	})
}

func printManifest(w io.Writer, m *site.Manifest) {
	injected, failed := 0, 0
	for _, p := range m.Pages {
		injected += p.Injected
		if p.Error != "" {
			failed++
			printf(w, "   ❌ %s: %s\n", p.Path, p.Error)
		}
	}
	printf(w, "   %d page(s), %d shadow root(s) injected, %d component(s), %d file(s) copied\n",
		len(m.Pages), injected, len(m.Components), m.Copied)
	if failed > 0 {
		printf(w, "   %d page(s) failed\n", failed)
	}
}

func (a *app) writeReport(ctx context.Context, path string, m *site.Manifest) error {
	if err := a.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := a.fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()
	if err := site.Report(m).Render(ctx, f); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}
