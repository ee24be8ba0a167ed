package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/hydrate/internal/version"
)

type versionOptions struct {
	format   string
	short    bool
	detailed bool
}

func newVersionCommand(a *app) *cobra.Command {
	opts := &versionOptions{}
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version information for hydrate including:

- Semantic version number
- Git commit hash
- Build timestamp
- Go version used for compilation
- Target platform (OS/architecture)

Examples:
  hydrate version               # Show version
  hydrate version --detailed    # Show detailed version info
  hydrate version --format json # Output as JSON`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format (text, json)")
	cmd.Flags().BoolVar(&opts.short, "short", false, "Show short version only")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "Show detailed version information")
	return cmd
}

func runVersion(cmd *cobra.Command, opts *versionOptions) error {
	out := cmd.OutOrStdout()

	switch opts.format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(version.GetBuildInfo())
	case "text":
		switch {
		case opts.short:
			printf(out, "%s\n", version.GetShortVersion())
		case opts.detailed:
			printf(out, "%s\n", version.GetDetailedVersion())
		default:
			info := version.GetBuildInfo()
			printf(out, "hydrate %s", version.GetShortVersion())
			if info.Modified {
				printf(out, " (dirty)")
			}
			printf(out, " %s\n", info.Platform)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", opts.format)
	}
}
