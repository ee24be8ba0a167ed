package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseOptions control how markup becomes a Document.
type ParseOptions struct {
	// Loop the document schedules on. A fresh one is created when nil.
	Loop *Loop
	// DeclarativeShadowDOM makes the parser attach shadow roots for
	// <template shadowrootmode> itself, as engines with native support do.
	DeclarativeShadowDOM bool
	// ReadyState after parsing. Defaults to ReadyInteractive.
	ReadyState ReadyState
}

// ShadowRootModeAttr is the standard declarative shadow root attribute.
const ShadowRootModeAttr = "shadowrootmode"

// LegacyShadowRootAttr is the attribute used before shadowrootmode was
// standardised. Both are understood when reading markup.
const LegacyShadowRootAttr = "shadowroot"

// DeclarativeShadowMode returns the serialized mode carried by a template
// element, checking the standard attribute before the legacy one.
func DeclarativeShadowMode(n *Node) (string, bool) {
	if !n.Matches("template") {
		return "", false
	}
	if v, ok := n.Attr(ShadowRootModeAttr); ok {
		return v, true
	}
	return n.Attr(LegacyShadowRootAttr)
}

// Parse reads an HTML document.
func Parse(r io.Reader, opts ParseOptions) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc := NewDocument(opts.Loop)
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		doc.root.children = append(doc.root.children, doc.convert(c, doc.root, opts))
	}

	state := opts.ReadyState
	if state == "" {
		state = ReadyInteractive
	}
	doc.SetReadyState(state)
	return doc, nil
}

// ParseString is Parse for an in-memory string.
func ParseString(s string, opts ParseOptions) (*Document, error) {
	return Parse(strings.NewReader(s), opts)
}

// ParseFragment parses markup in the context of a <body> element and returns
// a detached fragment owned by doc.
func (d *Document) ParseFragment(markup string) (*Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	frag := d.CreateDocumentFragment()
	for _, n := range nodes {
		frag.children = append(frag.children, d.convert(n, frag, ParseOptions{}))
	}
	return frag, nil
}

// convert builds the equivalent Node for an x/net/html node. Template
// children are moved into the template's content fragment.
func (d *Document) convert(h *html.Node, parent *Node, opts ParseOptions) *Node {
	var n *Node
	switch h.Type {
	case html.ElementNode:
		n = d.CreateElement(h.Data)
		n.Namespace = h.Namespace
		for _, a := range h.Attr {
			n.Attrs = append(n.Attrs, Attribute{Namespace: a.Namespace, Key: a.Key, Val: a.Val})
		}
	case html.TextNode:
		n = d.CreateTextNode(h.Data)
	case html.CommentNode:
		n = d.CreateComment(h.Data)
	case html.DoctypeNode:
		n = d.newNode(DoctypeNode)
		n.Data = h.Data
	default:
		n = d.CreateDocumentFragment()
	}
	n.parent = parent

	container := n
	if n.content != nil {
		container = n.content
	}
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		child := d.convert(c, container, opts)
		if opts.DeclarativeShadowDOM && d.attachDeclarative(n, child) {
			continue
		}
		container.children = append(container.children, child)
	}
	return n
}

// attachDeclarative handles a parsed declarative shadow root template the way
// a natively supporting parser does: the first valid one becomes the host's
// shadow root and is not kept as a child.
func (d *Document) attachDeclarative(host, child *Node) bool {
	if host.Type != ElementNode || host.shadow != nil {
		return false
	}
	raw, ok := child.Attr(ShadowRootModeAttr)
	if !ok || !child.Matches("template") {
		return false
	}
	mode, ok := ParseShadowMode(raw)
	if !ok {
		return false
	}
	shadow, err := host.AttachShadow(mode)
	if err != nil {
		return false
	}
	for _, c := range child.content.children {
		c.parent = shadow
	}
	shadow.children = child.content.children
	child.content.children = nil
	return true
}

// SerializeOptions mirrors the options of Element.getHTML.
type SerializeOptions struct {
	// SerializableShadowRoots emits attached shadow roots as declarative
	// <template shadowrootmode> children.
	SerializableShadowRoots bool
}

// InnerHTML serializes n's children.
func (n *Node) InnerHTML() string {
	return n.GetHTML(SerializeOptions{})
}

// OuterHTML serializes n itself.
func (n *Node) OuterHTML() string {
	var buf bytes.Buffer
	_ = html.Render(&buf, toHTML(n, SerializeOptions{}))
	return buf.String()
}

// GetHTML serializes n's children with options.
func (n *Node) GetHTML(opts SerializeOptions) string {
	var buf bytes.Buffer
	for _, c := range childrenForSerialization(n, opts) {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// Render writes the whole document.
func (d *Document) Render(w io.Writer, opts SerializeOptions) error {
	return html.Render(w, toHTML(d.root, opts))
}

func childrenForSerialization(n *Node, opts SerializeOptions) []*html.Node {
	var out []*html.Node
	if opts.SerializableShadowRoots && n.shadow != nil {
		tmpl := &html.Node{
			Type:     html.ElementNode,
			Data:     "template",
			DataAtom: atom.Template,
			Attr:     []html.Attribute{{Key: ShadowRootModeAttr, Val: string(n.shadow.mode)}},
		}
		for _, c := range n.shadow.children {
			tmpl.AppendChild(toHTML(c, opts))
		}
		out = append(out, tmpl)
	}
	source := n.children
	if n.content != nil {
		source = n.content.children
	}
	for _, c := range source {
		out = append(out, toHTML(c, opts))
	}
	return out
}

func toHTML(n *Node, opts SerializeOptions) *html.Node {
	var h *html.Node
	switch n.Type {
	case ElementNode:
		h = &html.Node{
			Type:      html.ElementNode,
			Data:      n.Tag,
			DataAtom:  atom.Lookup([]byte(n.Tag)),
			Namespace: n.Namespace,
		}
		for _, a := range n.Attrs {
			h.Attr = append(h.Attr, html.Attribute{Namespace: a.Namespace, Key: a.Key, Val: a.Val})
		}
	case TextNode:
		h = &html.Node{Type: html.TextNode, Data: n.Data}
	case CommentNode:
		h = &html.Node{Type: html.CommentNode, Data: n.Data}
	case DoctypeNode:
		h = &html.Node{Type: html.DoctypeNode, Data: n.Data}
	default:
		h = &html.Node{Type: html.DocumentNode}
	}
	for _, c := range childrenForSerialization(n, opts) {
		h.AppendChild(c)
	}
	return h
}
