package styles

import (
	"context"
	"strings"
	"testing"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/conneroisu/hydrate/internal/errors"
)

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}

func TestMinify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name: "rules and comments",
			input: `/* card */
.card {
  color: red;
  padding: 1rem 2rem;
}

.card > .title:hover { font-weight: bold; }`,
			want: `.card{color:red;padding:1rem 2rem}.card>.title:hover{font-weight:bold}`,
		},
		{
			name:  "descendant pseudo class keeps its space",
			input: "a :hover { color: blue }",
			want:  "a :hover{color:blue}",
		},
		{
			name:  "media features",
			input: "@media screen and (min-width: 40em) {\n  p { margin: 0; }\n}",
			want:  "@media screen and (min-width:40em){p{margin:0}}",
		},
		{
			name:  "trailing at rule keeps semicolon",
			input: `@import "a.css" ;`,
			want:  `@import "a.css";`,
		},
		{
			name:  "empty",
			input: "  /* nothing */  ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Minify(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImportPlugin(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/c/base.css":        `:host { display: block; }`,
		"/c/shared/type.css": `@import "../base.css"; h1 { margin: 0; }`,
		"/c/loop-a.css":      `@import "loop-b.css"; .a { color: red; }`,
		"/c/loop-b.css":      `@import "loop-a.css"; .b { color: blue; }`,
	})
	p := NewImportPlugin(fs)
	ctx := context.Background()

	t.Run("nested relative imports", func(t *testing.T) {
		out, err := p.Transform(ctx, `@import url("shared/type.css"); p { color: red; }`, "/c/card.css")
		require.NoError(t, err)
		assert.Contains(t, out, ":host { display: block; }")
		assert.Contains(t, out, "h1 { margin: 0; }")
		assert.NotContains(t, out, "@import")
	})

	t.Run("media qualified import", func(t *testing.T) {
		out, err := p.Transform(ctx, `@import "base.css" print;`, "/c/card.css")
		require.NoError(t, err)
		assert.Equal(t, "@media print {\n:host { display: block; }\n}", out)
	})

	t.Run("remote imports are kept", func(t *testing.T) {
		src := `@import "https://cdn.example.com/x.css";`
		out, err := p.Transform(ctx, src, "/c/card.css")
		require.NoError(t, err)
		assert.Equal(t, src, out)
	})

	t.Run("cycles terminate", func(t *testing.T) {
		out, err := p.Transform(ctx, `@import "loop-a.css";`, "/c/card.css")
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(out, ".a { color: red; }"))
		assert.Equal(t, 1, strings.Count(out, ".b { color: blue; }"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := p.Transform(ctx, `@import "nope.css";`, "/c/card.css")
		assert.Error(t, err)
	})
}

func TestCustomMediaPlugin(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/tokens.css": `@custom-media --wide (min-width: 60em);`,
	})
	p := NewCustomMediaPlugin(fs, "/tokens.css")

	src := `@custom-media --narrow (max-width: 30em);
@custom-media --small-print (--narrow) and print;
@media (--narrow) { p { margin: 0; } }
@media (--wide) { p { margin: 1rem; } }
@media (--small-print) { p { color: black; } }
@media (--unknown) { p { color: red; } }`

	out, err := p.Transform(context.Background(), src, "/c/card.css")
	require.NoError(t, err)
	assert.NotContains(t, out, "@custom-media")
	assert.Contains(t, out, "@media (max-width: 30em) {")
	assert.Contains(t, out, "@media (min-width: 60em) {")
	assert.Contains(t, out, "@media (max-width: 30em) and print {")
	assert.Contains(t, out, "@media (--unknown) {")
}

func TestCombineSelectorsPlugin(t *testing.T) {
	src := `.a { color: red; margin: 0; }
.b { color: blue; }
.a { color: green; }
@media print { .a { display: none; } }`

	out, err := NewCombineSelectorsPlugin().Transform(context.Background(), src, "")
	require.NoError(t, err)

	sheet, err := parser.Parse(out)
	require.NoError(t, err)
	require.Len(t, sheet.Rules, 3)

	first := sheet.Rules[0]
	assert.Equal(t, []string{".a"}, first.Selectors)
	props := map[string]string{}
	for _, d := range first.Declarations {
		props[d.Property] = d.Value
	}
	assert.Equal(t, map[string]string{"color": "green", "margin": "0"}, props)
	assert.Equal(t, "@media", sheet.Rules[2].Name)
}

func TestCombineSelectorsPlugin_KeepsImportantDeclarations(t *testing.T) {
	src := `.a { color: red !important; margin: 0; }
.a { color: green; margin: 1px; }
.b { color: red !important; }
.b { color: blue !important; }`

	out, err := NewCombineSelectorsPlugin().Transform(context.Background(), src, "")
	require.NoError(t, err)

	sheet, err := parser.Parse(out)
	require.NoError(t, err)
	require.Len(t, sheet.Rules, 2)

	declared := func(rule *css.Rule) map[string]string {
		props := map[string]string{}
		for _, d := range rule.Declarations {
			value := d.Value
			if d.Important {
				value += " !important"
			}
			props[d.Property] = value
		}
		return props
	}
	assert.Equal(t, map[string]string{"color": "red !important", "margin": "1px"}, declared(sheet.Rules[0]))
	assert.Equal(t, map[string]string{"color": "blue !important"}, declared(sheet.Rules[1]))
}

func TestDiscover(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/site/.stylepipeline.yaml":              "plugins: []",
		"/site/_includes/components/widget.html": "<p></p>",
	})

	assert.Equal(t, "/site/.stylepipeline.yaml", Discover(fs, "/site/_includes/components"))
	assert.Equal(t, "", Discover(fs, "/elsewhere"))
	assert.Equal(t, "", Discover(fs, ""))

	writeFiles(t, fs, map[string]string{"/site/_includes/.stylepipeline.yml": "plugins: []"})
	assert.Equal(t, "/site/_includes/.stylepipeline.yml", Discover(fs, "/site/_includes/components"))
}

func TestReadConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/ok.yml": `plugins:
  - name: import
  - name: custom-media
    options:
      import_from: [/tokens.css]
  - name: combine-selectors
  - name: minify
`,
		"/unknown.yml": "plugins:\n  - name: autoprefixer\n",
		"/typo.yml":    "plugin:\n  - name: minify\n",
	})

	cfg, err := ReadConfig(fs, "/ok.yml")
	require.NoError(t, err)
	chain, err := cfg.Build(fs)
	require.NoError(t, err)
	assert.Equal(t, PluginNames(), chain.Names())

	cfg, err = ReadConfig(fs, "/unknown.yml")
	require.NoError(t, err)
	_, err = cfg.Build(fs)
	assert.True(t, herrors.HasCode(err, herrors.ErrCodeConfigInvalid))

	_, err = ReadConfig(fs, "/typo.yml")
	assert.True(t, herrors.HasCode(err, herrors.ErrCodeConfigInvalid))

	_, err = ReadConfig(fs, "/missing.yml")
	assert.True(t, herrors.HasCode(err, herrors.ErrCodeFileNotFound))
}

func TestLoader_DefaultChain(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/site/components/base.css": ":host { display: block; }",
	})
	l := NewLoader(LoaderOptions{Fs: fs, SearchDir: "/site/components"})

	out, err := l.Process(context.Background(), `@import "base.css";
p { color: red; }`, "/site/components/card.css")
	require.NoError(t, err)
	assert.Equal(t, ":host{display:block}p{color:red}", out)
	assert.Equal(t, "", l.ConfigPath())
}

func TestLoader_LoadsOnceAndRemembersFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/site/.stylepipeline.yml": "plugins:\n  - name: bogus\n",
	})
	l := NewLoader(LoaderOptions{Fs: fs, SearchDir: "/site/components"})

	_, err := l.Process(context.Background(), "p{}", "/site/components/a.css")
	require.Error(t, err)

	// Fixing the file afterwards has no effect on this process.
	writeFiles(t, fs, map[string]string{"/site/.stylepipeline.yml": "plugins: []\n"})
	_, again := l.Process(context.Background(), "p{}", "/site/components/b.css")
	assert.Equal(t, err, again)
}

func TestLoader_ExplicitConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/site/.stylepipeline.yml": "plugins:\n  - name: bogus\n",
		"/cfg/pipeline.yml":        "plugins:\n  - name: minify\n",
	})
	l := NewLoader(LoaderOptions{Fs: fs, SearchDir: "/site", ConfigPath: "/cfg/pipeline.yml"})

	out, err := l.Process(context.Background(), "p {  color: red ; }", "/site/a.css")
	require.NoError(t, err)
	assert.Equal(t, "p{color:red}", out)
	assert.Equal(t, "/cfg/pipeline.yml", l.ConfigPath())
}

func TestChain_ReportsFailingPlugin(t *testing.T) {
	fs := afero.NewMemMapFs()
	chain := NewChain(NewImportPlugin(fs), NewMinifyPlugin())

	_, err := chain.Process(context.Background(), `@import "missing.css";`, "/a.css")
	require.Error(t, err)
	assert.True(t, herrors.HasCode(err, herrors.ErrCodeStylePipeline))
	assert.Contains(t, err.Error(), "import")
}
