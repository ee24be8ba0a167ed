package styles

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Built-in plugin names accepted in configuration files.
const (
	PluginImport           = "import"
	PluginCustomMedia      = "custom-media"
	PluginCombineSelectors = "combine-selectors"
	PluginMinify           = "minify"
)

// Plugin is one stage of a Chain.
type Plugin interface {
	Name() string
	Transform(ctx context.Context, css, inputPath string) (string, error)
}

type pluginFactory func(fs afero.Fs, options *yaml.Node) (Plugin, error)

var pluginFactories = map[string]pluginFactory{
	PluginImport: func(fs afero.Fs, _ *yaml.Node) (Plugin, error) {
		return NewImportPlugin(fs), nil
	},
	PluginCustomMedia: func(fs afero.Fs, options *yaml.Node) (Plugin, error) {
		var opts struct {
			ImportFrom []string `yaml:"import_from"`
		}
		if err := decodeOptions(options, &opts); err != nil {
			return nil, err
		}
		return NewCustomMediaPlugin(fs, opts.ImportFrom...), nil
	},
	PluginCombineSelectors: func(afero.Fs, *yaml.Node) (Plugin, error) {
		return NewCombineSelectorsPlugin(), nil
	},
	PluginMinify: func(afero.Fs, *yaml.Node) (Plugin, error) {
		return NewMinifyPlugin(), nil
	},
}

// PluginNames returns the names of every built-in plugin.
func PluginNames() []string {
	return []string{PluginImport, PluginCustomMedia, PluginCombineSelectors, PluginMinify}
}

var importRule = regexp.MustCompile(`@import\s+(?:url\(\s*)?["']?([^"')\s;]+)["']?\s*\)?\s*([^;]*);`)

// ImportPlugin inlines local @import rules.
type ImportPlugin struct {
	fs afero.Fs
}

// NewImportPlugin creates an import plugin reading from fs.
func NewImportPlugin(fs afero.Fs) *ImportPlugin {
	return &ImportPlugin{fs: fs}
}

// Name implements Plugin.
func (p *ImportPlugin) Name() string { return PluginImport }

// Transform replaces each local @import with the imported file's content,
// recursively. Remote imports are kept. An import that would re-enter a file
// already being inlined is dropped.
func (p *ImportPlugin) Transform(_ context.Context, src, inputPath string) (string, error) {
	return p.inline(src, inputPath, []string{filepath.Clean(inputPath)})
}

func (p *ImportPlugin) inline(src, from string, stack []string) (string, error) {
	matches := importRule.FindAllStringSubmatchIndex(src, -1)
	if len(matches) == 0 {
		return src, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(src[last:m[0]])
		last = m[1]

		ref := src[m[2]:m[3]]
		media := strings.TrimSpace(src[m[4]:m[5]])
		if isRemote(ref) {
			b.WriteString(src[m[0]:m[1]])
			continue
		}

		target := ref
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(from), ref)
		}
		target = filepath.Clean(target)
		if contains(stack, target) {
			continue
		}

		data, err := afero.ReadFile(p.fs, target)
		if err != nil {
			return "", fmt.Errorf("import %q from %s: %w", ref, from, err)
		}
		body, err := p.inline(string(data), target, append(stack, target))
		if err != nil {
			return "", err
		}
		if media != "" {
			fmt.Fprintf(&b, "@media %s {\n%s\n}", media, body)
		} else {
			b.WriteString(body)
		}
	}
	b.WriteString(src[last:])
	return b.String(), nil
}

func isRemote(ref string) bool {
	return strings.Contains(ref, "://") || strings.HasPrefix(ref, "//") || strings.HasPrefix(ref, "data:")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var (
	customMediaRule = regexp.MustCompile(`@custom-media\s+(--[A-Za-z0-9_-]+)\s+([^;]+);\s*`)
	customMediaRef  = regexp.MustCompile(`\(\s*(--[A-Za-z0-9_-]+)\s*\)`)
	mediaPrelude    = regexp.MustCompile(`@media\s+([^{;]+)\{`)
)

// CustomMediaPlugin expands @custom-media aliases inside @media queries.
type CustomMediaPlugin struct {
	fs         afero.Fs
	importFrom []string
}

// NewCustomMediaPlugin creates a custom media plugin. Definitions in the
// importFrom files are available to every stylesheet; a stylesheet's own
// definitions take precedence.
func NewCustomMediaPlugin(fs afero.Fs, importFrom ...string) *CustomMediaPlugin {
	return &CustomMediaPlugin{fs: fs, importFrom: importFrom}
}

// Name implements Plugin.
func (p *CustomMediaPlugin) Name() string { return PluginCustomMedia }

// Transform removes @custom-media definitions and substitutes them into
// @media preludes. Unknown aliases are left untouched.
func (p *CustomMediaPlugin) Transform(_ context.Context, src, _ string) (string, error) {
	defs := make(map[string]string)
	for _, path := range p.importFrom {
		data, err := afero.ReadFile(p.fs, path)
		if err != nil {
			return "", fmt.Errorf("read custom media from %s: %w", path, err)
		}
		collectCustomMedia(string(data), defs)
	}
	collectCustomMedia(src, defs)
	if len(defs) == 0 {
		return src, nil
	}

	// Aliases may refer to each other; a pass per definition resolves any
	// acyclic chain.
	for range defs {
		for name, query := range defs {
			defs[name] = expandCustomMedia(query, defs)
		}
	}

	out := customMediaRule.ReplaceAllString(src, "")
	out = mediaPrelude.ReplaceAllStringFunc(out, func(rule string) string {
		prelude := mediaPrelude.FindStringSubmatch(rule)[1]
		return "@media " + strings.TrimSpace(expandCustomMedia(prelude, defs)) + " {"
	})
	return out, nil
}

func collectCustomMedia(src string, defs map[string]string) {
	for _, m := range customMediaRule.FindAllStringSubmatch(src, -1) {
		defs[m[1]] = strings.TrimSpace(m[2])
	}
}

func expandCustomMedia(query string, defs map[string]string) string {
	return customMediaRef.ReplaceAllStringFunc(query, func(ref string) string {
		name := customMediaRef.FindStringSubmatch(ref)[1]
		if expanded, ok := defs[name]; ok {
			return expanded
		}
		return ref
	})
}

// CombineSelectorsPlugin merges top-level rules that share a selector list.
type CombineSelectorsPlugin struct{}

// NewCombineSelectorsPlugin creates a combine-selectors plugin.
func NewCombineSelectorsPlugin() *CombineSelectorsPlugin {
	return &CombineSelectorsPlugin{}
}

// Name implements Plugin.
func (p *CombineSelectorsPlugin) Name() string { return PluginCombineSelectors }

// Transform folds every repeated selector list into its first occurrence.
// When a property is declared more than once the later declaration wins,
// unless only the earlier one is !important.
func (p *CombineSelectorsPlugin) Transform(_ context.Context, src, _ string) (string, error) {
	sheet, err := parser.Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse stylesheet: %w", err)
	}

	first := make(map[string]*css.Rule)
	rules := make([]*css.Rule, 0, len(sheet.Rules))
	for _, rule := range sheet.Rules {
		if rule.Kind != css.QualifiedRule {
			rules = append(rules, rule)
			continue
		}
		key := strings.Join(rule.Selectors, ",")
		if prev, ok := first[key]; ok {
			for _, decl := range rule.Declarations {
				prev.Declarations = setDeclaration(prev.Declarations, decl)
			}
			continue
		}
		first[key] = rule
		rules = append(rules, rule)
	}

	parts := make([]string, 0, len(rules))
	for _, rule := range rules {
		if rule.Kind == css.QualifiedRule && len(rule.Declarations) == 0 {
			continue
		}
		parts = append(parts, rule.String())
	}
	return strings.Join(parts, "\n"), nil
}

func setDeclaration(decls []*css.Declaration, decl *css.Declaration) []*css.Declaration {
	for i, d := range decls {
		if d.Property == decl.Property {
			if d.Important && !decl.Important {
				return decls
			}
			decls = append(decls[:i], decls[i+1:]...)
			break
		}
	}
	return append(decls, decl)
}
