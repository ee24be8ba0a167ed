package inject

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/hydrate/internal/fragments"
)

const pageShell = "<html><head></head><body>%s</body></html>"

func page(body string) string {
	return strings.Replace(pageShell, "%s", body, 1)
}

func newInjector(t *testing.T, files map[string]string) (*Injector, *fragments.Cache) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, "/components/"+name, []byte(content), 0o644))
	}
	cache := fragments.New(fragments.Options{Fs: fs, Dir: "/components"})
	return New(cache, nil), cache
}

func TestInject_PrependsTemplate(t *testing.T) {
	in, _ := newInjector(t, map[string]string{
		"my-widget.html": "<p>Hello</p>",
		"my-widget.css":  "p{color:red}",
	})

	out, res, err := in.InjectString(context.Background(), page(`<my-widget><span>light</span></my-widget>`))
	require.NoError(t, err)

	want := page(`<my-widget><template shadowrootmode="open"><style>p{color:red}</style><p>Hello</p></template><span>light</span></my-widget>`)
	assert.Equal(t, want, out)
	assert.Equal(t, Result{Elements: 1, Injected: 1, Tags: []string{"my-widget"}}, res)
}

func TestInject_PartialFragments(t *testing.T) {
	in, _ := newInjector(t, map[string]string{
		"only-markup.html": "<b>m</b>",
		"only-style.css":   ":host{display:block}",
	})

	out, res, err := in.InjectString(context.Background(), page(`<only-markup></only-markup><only-style></only-style>`))
	require.NoError(t, err)

	assert.Contains(t, out, `<only-markup><template shadowrootmode="open"><style></style><b>m</b></template></only-markup>`)
	assert.Contains(t, out, `<only-style><template shadowrootmode="open"><style>:host{display:block}</style></template></only-style>`)
	assert.Equal(t, 2, res.Injected)
	assert.Equal(t, []string{"only-markup", "only-style"}, res.Tags)
}

func TestInject_LeavesUnbackedAndBuiltinElements(t *testing.T) {
	in, _ := newInjector(t, map[string]string{"my-widget.html": "<p>Hello</p>"})
	src := page(`<div><p>text</p><other-thing>x</other-thing></div>`)

	out, res, err := in.InjectString(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, src, out)
	assert.Equal(t, 1, res.Elements)
	assert.Equal(t, 0, res.Injected)
	assert.Empty(t, res.Tags)
}

func TestInject_RespectsAuthoredTemplates(t *testing.T) {
	in, _ := newInjector(t, map[string]string{"my-widget.html": "<p>Hello</p>"})

	for _, attr := range []string{`shadowrootmode="closed"`, `shadowroot="open"`} {
		t.Run(attr, func(t *testing.T) {
			src := page(`<my-widget><template ` + attr + `><i>authored</i></template></my-widget>`)
			out, res, err := in.InjectString(context.Background(), src)
			require.NoError(t, err)
			assert.Equal(t, src, out)
			assert.Equal(t, 1, res.Skipped)
			assert.Equal(t, 0, res.Injected)
		})
	}
}

func TestInject_Idempotent(t *testing.T) {
	in, _ := newInjector(t, map[string]string{
		"my-widget.html": "<p>Hello <x-icon></x-icon></p>",
		"my-widget.css":  "p{color:red}",
		"x-icon.html":    "<svg></svg>",
	})
	ctx := context.Background()

	once, _, err := in.InjectString(ctx, page(`<my-widget></my-widget><section><my-widget>a</my-widget></section>`))
	require.NoError(t, err)
	twice, res, err := in.InjectString(ctx, once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, 0, res.Injected)
}

func TestInject_NestedComponents(t *testing.T) {
	in, _ := newInjector(t, map[string]string{
		"x-card.html": `<header><x-icon></x-icon></header><slot></slot>`,
		"x-icon.html": `<svg></svg>`,
	})

	out, res, err := in.InjectString(context.Background(), page(`<x-card><p>body</p></x-card>`))
	require.NoError(t, err)

	want := page(`<x-card><template shadowrootmode="open"><style></style><header><x-icon><template shadowrootmode="open"><style></style><svg></svg></template></x-icon></header><slot></slot></template><p>body</p></x-card>`)
	assert.Equal(t, want, out)
	assert.Equal(t, 2, res.Injected)
	assert.Equal(t, []string{"x-card", "x-icon"}, res.Tags)
}

func TestInject_SelfReferencingFragmentExpandsOnce(t *testing.T) {
	in, _ := newInjector(t, map[string]string{
		"x-tree.html": `<ul><x-tree></x-tree></ul>`,
	})
	ctx := context.Background()

	out, res, err := in.InjectString(ctx, page(`<x-tree></x-tree>`))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "<template"))
	assert.Equal(t, 1, res.Injected)
	assert.Equal(t, 1, res.Skipped)

	again, _, err := in.InjectString(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestInject_ReadsEachComponentOnce(t *testing.T) {
	in, cache := newInjector(t, map[string]string{
		"my-widget.html": "<p>Hello</p>",
		"my-widget.css":  "p{color:red}",
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, res, err := in.InjectString(ctx, page(strings.Repeat(`<my-widget></my-widget>`, 10)))
		require.NoError(t, err)
		assert.Equal(t, 10, res.Injected)
	}
	assert.Equal(t, 2, cache.Reads("my-widget"))
}

func TestInject_CancelledContext(t *testing.T) {
	in, _ := newInjector(t, map[string]string{"my-widget.html": "<p>Hello</p>"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := in.InjectString(ctx, page(`<my-widget></my-widget>`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTemplate(t *testing.T) {
	assert.Equal(t,
		`<template shadowrootmode="open"><style>a{}</style><b></b></template>`,
		Template("a{}", "<b></b>"))
}
