package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/hydrate/internal/site"
)

type serveOptions struct {
	dir string
	dev bool
}

func newServeCommand(a *app) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Serve the hydrated site for preview",
		Long: `Serve the output directory of the last build. The build manifest and an
HTML report are available under /_hydrate/manifest and /_hydrate/report.

Examples:
  hydrate serve                   # Serve the output directory on localhost:8080
  hydrate serve --dir dist -p 0   # Serve dist on a free port
  hydrate serve --dev             # Append the live reload script to pages`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd, opts)
		},
	}

	addServerFlags(a, cmd)
	cmd.Flags().StringVar(&opts.dir, "dir", "", "directory to serve (default: the build output directory)")
	cmd.Flags().BoolVar(&opts.dev, "dev", false, "append the live reload script to served pages")
	return cmd
}

// addServerFlags adds the flags shared by serve and watch.
func addServerFlags(a *app, cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", 8080, "port to serve on")
	cmd.Flags().String("host", "localhost", "host to bind to")
	AddFlagValidation(cmd, "port", ValidatePort)
	a.bind(cmd, map[string]string{
		"port": "server.port",
		"host": "server.host",
	})
}

func (a *app) runServe(cmd *cobra.Command, opts *serveOptions) error {
	ctx := cmd.Context()

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	root := opts.dir
	if root == "" {
		root = cfg.Build.OutputDir
	}

	srv := a.newServer(cfg, root, opts.dev, nil)
	if m, err := site.ReadManifest(a.fs, root); err == nil {
		srv.Notify(m, nil)
	} else {
		a.logger.Debug(ctx, "No build manifest to serve", "dir", root)
	}

	printf(cmd.OutOrStdout(), "🌐 Serving %s on http://%s\n", root, srv.Addr())
	return srv.Start(ctx)
}
