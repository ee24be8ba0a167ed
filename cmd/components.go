package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/hydrate/internal/fragments"
	"github.com/conneroisu/hydrate/internal/site"
	"github.com/conneroisu/hydrate/internal/styles"
)

// ComponentInfo describes one backed component.
type ComponentInfo struct {
	Tag          string `json:"tag" yaml:"tag"`
	Name         string `json:"name" yaml:"name"`
	MarkupBytes  int    `json:"markup_bytes" yaml:"markup_bytes"`
	StyleBytes   int    `json:"style_bytes" yaml:"style_bytes"`
	MarkupDigest string `json:"markup_digest,omitempty" yaml:"markup_digest,omitempty"`
	StyleDigest  string `json:"style_digest,omitempty" yaml:"style_digest,omitempty"`
}

type componentsOptions struct {
	format string
}

func newComponentsCommand(a *app) *cobra.Command {
	opts := &componentsOptions{}
	cmd := &cobra.Command{
		Use:     "components",
		Aliases: []string{"list", "l"},
		Short:   "List the components backed by files in the components directory",
		Long: `List every custom element tag with a markup or style file in the
components directory. Styles are shown after the style pipeline ran, exactly
as they would be injected.

Examples:
  hydrate components              # Table output
  hydrate components -f json      # JSON output
  hydrate components -f yaml -c parts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runComponents(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "output format (table, json, yaml)")
	cmd.Flags().StringP("components", "c", "", "components directory (default _includes/components)")
	cmd.Flags().String("styles-config", "", "style pipeline configuration file")
	AddFlagValidation(cmd, "format", func(format string) error {
		return ValidateFormat(format, []string{"table", "json", "yaml"})
	})
	a.bind(cmd, map[string]string{
		"components":    "components.dir",
		"styles-config": "styles.config",
	})
	return cmd
}

func (a *app) runComponents(cmd *cobra.Command, opts *componentsOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	tags, err := fragments.Tags(a.fs, cfg.Components.Dir)
	if err != nil {
		return err
	}

	cache := fragments.New(fragments.Options{
		Fs:  a.fs,
		Dir: cfg.Components.Dir,
		Pipeline: styles.NewLoader(styles.LoaderOptions{
			Fs:         a.fs,
			SearchDir:  cfg.Components.Dir,
			ConfigPath: cfg.Styles.Config,
			Logger:     a.logger,
		}),
		Logger: a.logger,
	})

	infos := make([]ComponentInfo, 0, len(tags))
	for _, tag := range tags {
		markup, style := cache.Markup(ctx, tag), cache.Style(ctx, tag)
		infos = append(infos, ComponentInfo{
			Tag:          tag,
			Name:         site.DisplayName(tag),
			MarkupBytes:  len(markup),
			StyleBytes:   len(style),
			MarkupDigest: fragments.Digest(markup),
			StyleDigest:  fragments.Digest(style),
		})
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(infos)
	case "table":
		if len(infos) == 0 {
			printf(out, "No components found in %s\n", cfg.Components.Dir)
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		printf(w, "TAG\tNAME\tMARKUP\tSTYLE\n")
		for _, c := range infos {
			printf(w, "%s\t%s\t%s\t%s\n", c.Tag, c.Name, size(c.MarkupBytes), size(c.StyleBytes))
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s", opts.format)
	}
}

func size(n int) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprintf("%dB", n)
}
