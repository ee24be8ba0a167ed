package dom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCustomTagName(t *testing.T) {
	tests := map[string]bool{
		"my-widget":  true,
		"foo-bar":    true,
		"x-":         true,
		"div":        false,
		"-foo":       false,
		"Foo-bar":    false,
		"":           false,
		"1-thing":    false,
		"annotation": false,
	}
	for tag, want := range tests {
		assert.Equal(t, want, IsCustomTagName(tag), tag)
	}
}

func TestNode_AppendAndRemove(t *testing.T) {
	doc := NewDocument(nil)
	body := doc.CreateElement("BODY")
	require.NoError(t, doc.Root().AppendChild(body))
	assert.Equal(t, "body", body.Tag)

	a := doc.CreateElement("a")
	b := doc.CreateElement("b")
	require.NoError(t, body.AppendChild(a))
	require.NoError(t, body.Prepend(b))

	children := body.Children()
	require.Len(t, children, 2)
	assert.Same(t, b, children[0])
	assert.Same(t, a, children[1])
	assert.True(t, a.IsConnected())

	a.Remove()
	assert.Nil(t, a.Parent())
	assert.False(t, a.IsConnected())
	assert.Len(t, body.Children(), 1)
}

func TestNode_InsertMovesNode(t *testing.T) {
	doc := NewDocument(nil)
	first := doc.CreateElement("div")
	second := doc.CreateElement("div")
	child := doc.CreateElement("span")

	require.NoError(t, first.AppendChild(child))
	require.NoError(t, second.AppendChild(child))

	assert.Empty(t, first.Children())
	assert.Same(t, second, child.Parent())
}

func TestNode_InsertRejectsCycles(t *testing.T) {
	doc := NewDocument(nil)
	outer := doc.CreateElement("div")
	inner := doc.CreateElement("div")
	require.NoError(t, outer.AppendChild(inner))

	err := inner.AppendChild(outer)
	assert.True(t, errors.Is(err, ErrHierarchy))

	other := NewDocument(nil).CreateElement("p")
	assert.True(t, errors.Is(outer.AppendChild(other), ErrHierarchy))
}

func TestNode_AppendFragmentMovesChildren(t *testing.T) {
	doc := NewDocument(nil)
	frag := doc.CreateDocumentFragment()
	require.NoError(t, frag.AppendChild(doc.CreateElement("style")))
	require.NoError(t, frag.AppendChild(doc.CreateElement("span")))

	host := doc.CreateElement("my-widget")
	require.NoError(t, host.AppendChild(frag))

	assert.Empty(t, frag.Children())
	require.Len(t, host.Children(), 2)
	assert.Equal(t, "style", host.Children()[0].Tag)
	assert.Same(t, host, host.Children()[1].Parent())
}

func TestNode_AttachShadow(t *testing.T) {
	doc := NewDocument(nil)
	host := doc.CreateElement("my-widget")

	root, err := host.AttachShadow(ShadowOpen)
	require.NoError(t, err)
	assert.Equal(t, ShadowRootNode, root.Type)
	assert.Same(t, host, root.Host())
	assert.Same(t, root, host.ShadowRoot())

	_, err = host.AttachShadow(ShadowOpen)
	assert.True(t, errors.Is(err, ErrNotSupported))

	closedHost := doc.CreateElement("secret-box")
	_, err = closedHost.AttachShadow(ShadowClosed)
	require.NoError(t, err)
	assert.Nil(t, closedHost.ShadowRoot())
	assert.True(t, closedHost.HasShadowRoot())

	_, err = doc.CreateTextNode("x").AttachShadow(ShadowOpen)
	assert.Error(t, err)
}

func TestNode_ConnectedThroughShadowRoot(t *testing.T) {
	doc := NewDocument(nil)
	host := doc.CreateElement("my-widget")
	require.NoError(t, doc.Root().AppendChild(host))
	root, err := host.AttachShadow(ShadowOpen)
	require.NoError(t, err)

	inner := doc.CreateElement("foo-bar")
	require.NoError(t, root.AppendChild(inner))

	assert.True(t, inner.IsConnected())
	assert.Nil(t, doc.Root().QuerySelector("foo-bar"), "tree-scoped query must not pierce shadow roots")
	assert.Same(t, inner, doc.Root().QueryDeep(func(n *Node) bool { return n.Matches("foo-bar") }))
}

func TestNode_QuerySelectorSkipsTemplateContent(t *testing.T) {
	doc := NewDocument(nil)
	tmpl := doc.CreateElement("template")
	require.NotNil(t, tmpl.Content())
	require.NoError(t, tmpl.Content().AppendChild(doc.CreateElement("foo-bar")))
	require.NoError(t, doc.Root().AppendChild(tmpl))

	assert.Nil(t, doc.Root().QuerySelector("foo-bar"))
	assert.Nil(t, doc.Root().QueryDeep(func(n *Node) bool { return n.Matches("foo-bar") }))
}

func TestNode_Attributes(t *testing.T) {
	doc := NewDocument(nil)
	el := doc.CreateElement("template")

	el.SetAttr("shadowrootmode", "open")
	v, ok := el.Attr("shadowrootmode")
	assert.True(t, ok)
	assert.Equal(t, "open", v)

	el.SetAttr("shadowrootmode", "closed")
	assert.Len(t, el.Attrs, 1)

	el.RemoveAttr("shadowrootmode")
	assert.False(t, el.HasAttr("shadowrootmode"))
}

func TestNode_Defined(t *testing.T) {
	doc := NewDocument(nil)
	assert.True(t, doc.CreateElement("div").Defined())
	assert.False(t, doc.CreateElement("foo-bar").Defined())
	assert.False(t, doc.CreateTextNode("x").Defined())
}

func TestParseShadowMode(t *testing.T) {
	mode, ok := ParseShadowMode(" Open ")
	assert.True(t, ok)
	assert.Equal(t, ShadowOpen, mode)

	_, ok = ParseShadowMode("sideways")
	assert.False(t, ok)
}
