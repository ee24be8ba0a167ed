package hydrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/hydrate/internal/dom"
)

func parse(t *testing.T, markup string, opts dom.ParseOptions) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(markup, opts)
	require.NoError(t, err)
	return doc
}

func TestHydrate_MyWidgetScenario(t *testing.T) {
	doc := parse(t, `<body><my-widget><template shadowrootmode="open"><style></style><span>hi</span></template></my-widget></body>`, dom.ParseOptions{})

	res := Hydrate(doc.Root())
	assert.Equal(t, Result{Promoted: 1}, res)

	widget := doc.Body().QuerySelector("my-widget")
	require.NotNil(t, widget)
	root := widget.ShadowRoot()
	require.NotNil(t, root)
	assert.Equal(t, dom.ShadowOpen, root.Mode())
	assert.Equal(t, "<style></style><span>hi</span>", root.InnerHTML())
	assert.Equal(t, "", root.QuerySelector("style").TextContent())
	assert.Nil(t, widget.QuerySelector("template"), "template must be removed")
}

func TestHydrate_Nested(t *testing.T) {
	doc := parse(t, `<body><outer-box><template shadowrootmode="open">`+
		`<inner-box><template shadowrootmode="closed"><b>deep</b></template></inner-box>`+
		`</template></outer-box></body>`, dom.ParseOptions{})

	res := Hydrate(doc.Root())
	assert.Equal(t, 2, res.Promoted)

	outer := doc.Body().QuerySelector("outer-box").ShadowRoot()
	require.NotNil(t, outer)
	inner := outer.QuerySelector("inner-box")
	require.NotNil(t, inner)
	assert.True(t, inner.HasShadowRoot())
	assert.Nil(t, inner.ShadowRoot(), "closed roots are not exposed")
	assert.Nil(t, inner.QuerySelector("template"))

	deep := doc.Root().QueryDeep(func(n *dom.Node) bool { return n.Matches("b") })
	require.NotNil(t, deep)
	assert.Equal(t, "deep", deep.TextContent())
}

func TestHydrate_LegacyAttribute(t *testing.T) {
	doc := parse(t, `<body><x-a><template shadowroot="open"><i>x</i></template></x-a></body>`, dom.ParseOptions{})

	assert.Equal(t, 1, Hydrate(doc.Root()).Promoted)
	assert.NotNil(t, doc.Body().QuerySelector("x-a").ShadowRoot())
}

func TestHydrate_Idempotent(t *testing.T) {
	doc := parse(t, `<body><my-widget><template shadowrootmode="open"><span>hi</span></template></my-widget></body>`, dom.ParseOptions{})

	first := Hydrate(doc.Root())
	second := Hydrate(doc.Root())

	assert.Equal(t, 1, first.Promoted)
	assert.Equal(t, Result{}, second)
}

func TestHydrate_NoOpOnNativeEngines(t *testing.T) {
	markup := `<body><my-widget><template shadowrootmode="open"><span>hi</span></template></my-widget></body>`
	doc := parse(t, markup, dom.ParseOptions{DeclarativeShadowDOM: true})

	before := doc.Body().QuerySelector("my-widget").ShadowRoot()
	require.NotNil(t, before)

	assert.Equal(t, Result{}, Hydrate(doc.Root()))
	assert.Same(t, before, doc.Body().QuerySelector("my-widget").ShadowRoot())
}

func TestHydrate_SkipsUnusableTemplates(t *testing.T) {
	doc := parse(t, `<body>`+
		`<x-a><template shadowrootmode="sideways"><i></i></template></x-a>`+
		`<x-b><template shadowrootmode="open"><i>1</i></template><template shadowrootmode="open"><i>2</i></template></x-b>`+
		`</body>`, dom.ParseOptions{})

	res := Hydrate(doc.Root())
	assert.Equal(t, 1, res.Promoted)
	assert.Equal(t, 2, res.Skipped)

	assert.NotNil(t, doc.Body().QuerySelector("x-a").QuerySelector("template"), "invalid mode stays in place")
	xb := doc.Body().QuerySelector("x-b")
	assert.Equal(t, "<i>1</i>", xb.ShadowRoot().InnerHTML())
}

func TestHydrate_NilAndEmpty(t *testing.T) {
	assert.Equal(t, Result{}, Hydrate(nil))
	doc := parse(t, `<body><p>plain</p></body>`, dom.ParseOptions{})
	assert.Equal(t, Result{}, Hydrate(doc.Root()))
}

func TestHydrate_RevealsContentToObservers(t *testing.T) {
	doc := parse(t, `<body><my-widget><template shadowrootmode="open"><foo-bar></foo-bar></template></my-widget></body>`, dom.ParseOptions{})

	obs := doc.NewMutationObserver(nil)
	obs.Observe(doc.Root(), dom.ObserveOptions{ChildList: true, Subtree: true, Composed: true})

	Hydrate(doc.Root())

	var added []string
	for _, rec := range obs.TakeRecords() {
		for _, n := range rec.AddedNodes {
			if n.IsElement() {
				added = append(added, n.Tag)
			}
		}
	}
	assert.Contains(t, added, "foo-bar")
}
