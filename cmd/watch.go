package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/hydrate/internal/config"
	"github.com/conneroisu/hydrate/internal/metrics"
	"github.com/conneroisu/hydrate/internal/server"
	"github.com/conneroisu/hydrate/internal/watcher"
)

type watchOptions struct {
	serve bool
}

func newWatchCommand(a *app) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:     "watch",
		Aliases: []string{"w"},
		Short:   "Rebuild whenever the site or a component changes",
		Long: `Build once, then watch the input and components directories and rebuild
after every batch of changes. Every rebuild starts with an empty component
cache, so edited component files are picked up.

With --serve the output directory is also served with live reload: open
pages reload after each successful rebuild and log build failures to the
browser console.

Examples:
  hydrate watch                   # Rebuild on change
  hydrate watch --serve -p 3000   # Rebuild and live reload on port 3000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatch(cmd, opts)
		},
	}

	addBuildFlags(a, cmd)
	addServerFlags(a, cmd)
	cmd.Flags().BoolVarP(&opts.serve, "serve", "s", false, "serve the output directory with live reload")
	cmd.Flags().Duration("debounce", 0, "quiet period before a batch of changes triggers a rebuild (default 300ms)")
	a.bind(cmd, map[string]string{"debounce": "watch.debounce"})
	return cmd
}

func (a *app) runWatch(cmd *cobra.Command, opts *watchOptions) error {
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

	var srv *server.Server
	if opts.serve {
		srv = a.newServer(cfg, cfg.Build.OutputDir, true, reg)
	}

	rebuild := func(ctx context.Context) {
		m, err := builder.Build(ctx)
		if m != nil {
			printManifest(out, m)
		}
		if err != nil {
			a.logger.Error(ctx, err, "Build failed")
		}
		if srv != nil {
			srv.Notify(m, err)
		}
	}

	printf(out, "🔨 Initial build of %s\n", cfg.Build.InputDir)
	rebuild(ctx)

	fileWatcher, err := watcher.NewFileWatcher(cfg.Watch.Debounce, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fileWatcher.Stop()

	fileWatcher.AddFilter(watcher.NoHiddenFilter)
	fileWatcher.AddFilter(watcher.NoTempFilter)
	fileWatcher.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		printf(out, "📁 %d file(s) changed\n", len(events))
		for _, event := range events {
			a.logger.Debug(ctx, "File changed", "path", event.Path, "type", event.Type.String())
		}
		rebuild(ctx)
		return nil
	})

	for _, dir := range watchDirs(a.fs, cfg) {
		if err := fileWatcher.AddRecursive(dir); err != nil {
			a.logger.Warn(ctx, err, "Cannot watch directory", "path", dir)
			continue
		}
		printf(out, "   - Watching: %s\n", dir)
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := fileWatcher.Start(gctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	if srv != nil {
		printf(out, "🌐 Serving %s on http://%s\n", cfg.Build.OutputDir, srv.Addr())
		g.Go(func() error { return srv.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	printf(out, "👀 Watching for changes... (Press Ctrl+C to stop)\n")
	return g.Wait()
}

// watchDirs returns the existing directories whose changes require a
// rebuild.
func watchDirs(fs afero.Fs, cfg *config.Config) []string {
	var dirs []string
	for _, dir := range []string{cfg.Build.InputDir, cfg.Components.Dir} {
		if ok, _ := afero.DirExists(fs, dir); ok {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func (a *app) newServer(cfg *config.Config, root string, dev bool, gatherer prometheus.Gatherer) *server.Server {
	return server.New(&server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Root:           root,
		Fs:             a.fs,
		Dev:            dev,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Gatherer:       gatherer,
		Logger:         a.logger,
	})
}
