package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/conneroisu/hydrate/internal/activator"
	"github.com/conneroisu/hydrate/internal/dom"
	"github.com/conneroisu/hydrate/internal/hydrate"
	"github.com/conneroisu/hydrate/internal/metrics"
)

// VerifiedAttr marks elements upgraded by verify's stub components.
const VerifiedAttr = "data-hydrate-verified"

// PageVerification is the outcome of verifying one page.
type PageVerification struct {
	Path        string         `json:"path"`
	Promoted    int            `json:"promoted"`
	Skipped     int            `json:"skipped"`
	ShadowRoots int            `json:"shadow_roots"`
	Activated   map[string]int `json:"activated"`
	Pending     []string       `json:"pending,omitempty"`
	Errors      []string       `json:"errors,omitempty"`
}

type verifyOptions struct {
	format      string
	native      bool
	timeout     time.Duration
	metricsFile string
}

func newVerifyCommand(a *app) *cobra.Command {
	opts := &verifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify <page.html>...",
		Short: "Hydrate built pages in memory and lazily activate their components",
		Long: `Parse each page, promote its declarative shadow root templates into
shadow roots, then register every tag listed under runtime.lazy with a stub
loader and run the page until it is idle. The report lists promoted templates,
attached shadow roots and activated elements per tag. Tags that never matched
an element stay pending.

Examples:
  hydrate verify _site/index.html
  hydrate verify --lazy my-widget,foo-bar -f json _site/*.html
  hydrate verify --native _site/index.html   # parser attaches shadow roots itself`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runVerify(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format (text, json)")
	cmd.Flags().BoolVar(&opts.native, "native", false, "let the parser attach declarative shadow roots")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "time allowed per page")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "write activation metrics to this file in the Prometheus text format")
	cmd.Flags().StringSlice("lazy", nil, "tags to register lazily (default runtime.lazy)")
	AddFlagValidation(cmd, "format", func(format string) error {
		return ValidateFormat(format, []string{"text", "json"})
	})
	a.bind(cmd, map[string]string{"lazy": "runtime.lazy"})
	return cmd
}

func (a *app) runVerify(cmd *cobra.Command, opts *verifyOptions, pages []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	rt := metrics.NewRuntime(reg)

	results := make([]PageVerification, 0, len(pages))
	failed := 0
	for _, page := range pages {
		res, err := a.verifyPage(ctx, page, cfg.Runtime.Lazy, opts, rt)
		if err != nil {
			return err
		}
		if len(res.Errors) > 0 {
			failed++
		}
		results = append(results, res)
	}

	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			printVerification(out, res)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d page(s) failed verification", failed)
	}
	return nil
}

func (a *app) verifyPage(ctx context.Context, path string, lazy []string, opts *verifyOptions, rt *metrics.Runtime) (PageVerification, error) {
	res := PageVerification{Path: path, Activated: make(map[string]int)}

	f, err := a.fs.Open(path)
	if err != nil {
		return res, fmt.Errorf("failed to open page: %w", err)
	}
	defer f.Close()

	doc, err := dom.Parse(f, dom.ParseOptions{DeclarativeShadowDOM: opts.native})
	if err != nil {
		return res, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	hydrated := hydrate.Hydrate(doc.Root())
	res.Promoted, res.Skipped = hydrated.Promoted, hydrated.Skipped

	pageCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	act := activator.New(doc, &activator.Config{
		Context: pageCtx,
		Logger:  a.logger.With("page", path),
		Metrics: rt,
		OnError: func(tag string, err error) {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", tag, err))
		},
	})
	defer act.Close()

	for _, tag := range lazy {
		if err := act.RegisterLazy(tag, stubLoader); err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
	}

	if err := doc.Loop().RunUntilIdle(pageCtx); err != nil {
		res.Errors = append(res.Errors, "page did not settle: "+err.Error())
	}
	res.Pending = act.Pending()

	doc.Root().WalkComposed(func(n *dom.Node) bool {
		if n.HasShadowRoot() {
			res.ShadowRoots++
		}
		if n.IsCustom() && n.HasAttr(VerifiedAttr) {
			res.Activated[n.Tag]++
		}
		return true
	})
	return res, nil
}

// stubLoader stands in for a component implementation and marks every
// element it upgrades.
func stubLoader(context.Context) (activator.Module, error) {
	return activator.Direct(dom.ElementConstructorFunc(func(el *dom.Node) {
		el.SetAttr(VerifiedAttr, "")
	})), nil
}

func printVerification(w io.Writer, res PageVerification) {
	status := "✅"
	if len(res.Errors) > 0 {
		status = "❌"
	}
	printf(w, "%s %s: %d template(s) promoted, %d skipped, %d shadow root(s)\n",
		status, res.Path, res.Promoted, res.Skipped, res.ShadowRoots)

	tags := make([]string, 0, len(res.Activated))
	for tag := range res.Activated {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		printf(w, "   activated <%s> x%d\n", tag, res.Activated[tag])
	}
	if len(res.Pending) > 0 {
		printf(w, "   pending: %s\n", strings.Join(res.Pending, ", "))
	}
	for _, e := range res.Errors {
		printf(w, "   error: %s\n", e)
	}
}
