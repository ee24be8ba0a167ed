// Package dom is a small document model for running component hydration and
// activation outside a browser. It models the pieces of the platform the
// runtime relies on: an element tree with template content fragments, shadow
// roots, a custom element registry, mutation observers and an event loop with
// animation frames and microtasks.
//
// The model is single threaded. All tree operations must happen on the
// goroutine driving the document's Loop; only Loop.Post and Loop.Go may be
// called from elsewhere.
package dom

import (
	"errors"
	"fmt"
	"strings"
)

// NodeType identifies the kind of a Node.
type NodeType int

const (
	ElementNode NodeType = iota
	TextNode
	CommentNode
	DoctypeNode
	DocumentNode
	FragmentNode
	ShadowRootNode
)

// String returns the string representation of the node type
func (t NodeType) String() string {
	switch t {
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	case CommentNode:
		return "comment"
	case DoctypeNode:
		return "doctype"
	case DocumentNode:
		return "document"
	case FragmentNode:
		return "fragment"
	case ShadowRootNode:
		return "shadow-root"
	default:
		return "unknown"
	}
}

// NodeID is a document-unique node identity. IDs are assigned in creation
// order and never reused, so they are safe to use as side-table keys.
type NodeID uint64

// ShadowMode is the encapsulation mode of a shadow root.
type ShadowMode string

const (
	ShadowOpen   ShadowMode = "open"
	ShadowClosed ShadowMode = "closed"
)

// ParseShadowMode validates a serialized mode attribute value.
func ParseShadowMode(s string) (ShadowMode, bool) {
	switch ShadowMode(strings.ToLower(strings.TrimSpace(s))) {
	case ShadowOpen:
		return ShadowOpen, true
	case ShadowClosed:
		return ShadowClosed, true
	default:
		return "", false
	}
}

var (
	// ErrHierarchy is returned for insertions that would break the tree.
	ErrHierarchy = errors.New("dom: hierarchy request error")
	// ErrNotSupported is returned when attaching a shadow root is not allowed.
	ErrNotSupported = errors.New("dom: not supported")
)

// Attribute is a single element attribute.
type Attribute struct {
	Namespace string
	Key       string
	Val       string
}

// Node is a node in a Document.
type Node struct {
	id        NodeID
	doc       *Document
	Type      NodeType
	Tag       string
	Namespace string
	Data      string
	Attrs     []Attribute

	parent   *Node
	children []*Node

	content *Node // template contents
	shadow  *Node // attached shadow root
	host    *Node // host element of a shadow root
	mode    ShadowMode
	defined bool
}

// ID returns the node's identity.
func (n *Node) ID() NodeID { return n.id }

// OwnerDocument returns the document that created the node.
func (n *Node) OwnerDocument() *Document { return n.doc }

// Parent returns the parent node, or nil.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// FirstChild returns the first child, or nil.
func (n *Node) FirstChild() *Node {
	if len(n.children) == 0 {
		return nil
	}
	return n.children[0]
}

// Content returns the content fragment of a template element.
func (n *Node) Content() *Node { return n.content }

// ShadowRoot returns the node's shadow root when it is open.
func (n *Node) ShadowRoot() *Node {
	if n.shadow != nil && n.shadow.mode == ShadowOpen {
		return n.shadow
	}
	return nil
}

// HasShadowRoot reports whether a shadow root of any mode is attached.
func (n *Node) HasShadowRoot() bool { return n.shadow != nil }

// Host returns the host element of a shadow root.
func (n *Node) Host() *Node { return n.host }

// Mode returns the mode of a shadow root node.
func (n *Node) Mode() ShadowMode { return n.mode }

// IsElement reports whether n is an element.
func (n *Node) IsElement() bool { return n.Type == ElementNode }

// IsCustom reports whether n is an element with a custom (hyphenated) tag name.
func (n *Node) IsCustom() bool {
	return n.Type == ElementNode && IsCustomTagName(n.Tag)
}

// Defined mirrors the :defined pseudo-class: built-in elements are always
// defined, custom elements only after being upgraded.
func (n *Node) Defined() bool {
	if n.Type != ElementNode {
		return false
	}
	if !IsCustomTagName(n.Tag) {
		return true
	}
	return n.defined
}

// Matches reports whether n is an element with the given tag name.
func (n *Node) Matches(tag string) bool {
	return n.Type == ElementNode && n.Tag == tag
}

// Attr returns an attribute value.
func (n *Node) Attr(key string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether an attribute is present.
func (n *Node) HasAttr(key string) bool {
	_, ok := n.Attr(key)
	return ok
}

// SetAttr sets or replaces an attribute.
func (n *Node) SetAttr(key, val string) {
	for i, a := range n.Attrs {
		if a.Namespace == "" && a.Key == key {
			n.Attrs[i].Val = val
			return
		}
	}
	n.Attrs = append(n.Attrs, Attribute{Key: key, Val: val})
}

// RemoveAttr removes an attribute if present.
func (n *Node) RemoveAttr(key string) {
	for i, a := range n.Attrs {
		if a.Namespace == "" && a.Key == key {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return
		}
	}
}

// TextContent returns the concatenated text of all descendant text nodes.
func (n *Node) TextContent() string {
	var sb strings.Builder
	var walk func(*Node)
	walk = func(c *Node) {
		if c.Type == TextNode {
			sb.WriteString(c.Data)
		}
		for _, child := range c.children {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

// composedParent steps from a shadow root to its host; otherwise it returns
// the tree parent.
func (n *Node) composedParent() *Node {
	if n.parent != nil {
		return n.parent
	}
	if n.Type == ShadowRootNode {
		return n.host
	}
	return nil
}

// IsConnected reports whether n is reachable from its document, crossing
// shadow boundaries.
func (n *Node) IsConnected() bool {
	for c := n; c != nil; c = c.composedParent() {
		if c.Type == DocumentNode {
			return c == n.doc.root
		}
	}
	return false
}

// Contains reports whether other is an inclusive tree descendant of n.
func (n *Node) Contains(other *Node) bool {
	for c := other; c != nil; c = c.parent {
		if c == n {
			return true
		}
	}
	return false
}

// containsComposed is Contains that also crosses shadow boundaries.
func (n *Node) containsComposed(other *Node) bool {
	for c := other; c != nil; c = c.composedParent() {
		if c == n {
			return true
		}
	}
	return false
}

// AppendChild appends child, moving it from its current position. Appending
// a fragment moves the fragment's children instead.
func (n *Node) AppendChild(child *Node) error {
	return n.InsertBefore(child, nil)
}

// Prepend inserts child as the first child of n.
func (n *Node) Prepend(child *Node) error {
	return n.InsertBefore(child, n.FirstChild())
}

// InsertBefore inserts child before ref. A nil ref appends.
func (n *Node) InsertBefore(child, ref *Node) error {
	if err := n.checkInsert(child, ref); err != nil {
		return err
	}
	if ref == child {
		return nil
	}

	var added []*Node
	if child.Type == FragmentNode {
		added = child.Children()
		if len(added) == 0 {
			return nil
		}
		child.children = nil
		for _, c := range added {
			c.parent = nil
		}
		child.doc.queueMutation(child, nil, added)
	} else {
		if child.parent != nil {
			child.Remove()
		}
		added = []*Node{child}
	}

	idx := len(n.children)
	if ref != nil {
		idx = n.indexOf(ref)
	}
	tail := append([]*Node{}, n.children[idx:]...)
	n.children = append(append(n.children[:idx], added...), tail...)
	for _, c := range added {
		c.parent = n
	}

	n.doc.queueMutation(n, added, nil)
	if n.IsConnected() {
		for _, c := range added {
			n.doc.registry.upgradeSubtree(c)
		}
	}
	return nil
}

func (n *Node) checkInsert(child, ref *Node) error {
	if child == nil {
		return fmt.Errorf("%w: nil child", ErrHierarchy)
	}
	switch n.Type {
	case ElementNode, DocumentNode, FragmentNode, ShadowRootNode:
	default:
		return fmt.Errorf("%w: %s nodes cannot have children", ErrHierarchy, n.Type)
	}
	switch child.Type {
	case DocumentNode, ShadowRootNode:
		return fmt.Errorf("%w: cannot insert a %s", ErrHierarchy, child.Type)
	}
	if child.doc != n.doc {
		return fmt.Errorf("%w: node belongs to another document", ErrHierarchy)
	}
	if child.containsComposed(n) {
		return fmt.Errorf("%w: cannot insert a node into its own subtree", ErrHierarchy)
	}
	if ref != nil && ref.parent != n {
		return fmt.Errorf("%w: reference node is not a child", ErrHierarchy)
	}
	return nil
}

func (n *Node) indexOf(child *Node) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

// Remove detaches n from its parent.
func (n *Node) Remove() {
	p := n.parent
	if p == nil {
		return
	}
	if i := p.indexOf(n); i >= 0 {
		p.children = append(p.children[:i], p.children[i+1:]...)
	}
	n.parent = nil
	n.doc.queueMutation(p, nil, []*Node{n})
}

// AttachShadow attaches a new shadow root to an element.
func (n *Node) AttachShadow(mode ShadowMode) (*Node, error) {
	if n.Type != ElementNode {
		return nil, fmt.Errorf("%w: shadow host must be an element", ErrNotSupported)
	}
	if mode != ShadowOpen && mode != ShadowClosed {
		return nil, fmt.Errorf("%w: invalid shadow root mode %q", ErrNotSupported, mode)
	}
	if n.shadow != nil {
		return nil, fmt.Errorf("%w: <%s> already hosts a shadow root", ErrNotSupported, n.Tag)
	}
	root := n.doc.newNode(ShadowRootNode)
	root.host = n
	root.mode = mode
	n.shadow = root
	return root, nil
}

// Walk visits n and its tree descendants in document order. Returning false
// from fn skips the node's children. Template contents and shadow trees are
// not visited.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children() {
		c.Walk(fn)
	}
}

// WalkComposed is Walk that also descends into attached shadow roots, before
// the host's light children.
func (n *Node) WalkComposed(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	if n.shadow != nil {
		n.shadow.WalkComposed(fn)
	}
	for _, c := range n.Children() {
		c.WalkComposed(fn)
	}
}

// FindAll returns the tree descendants of n (excluding n) matching pred.
func (n *Node) FindAll(pred func(*Node) bool) []*Node {
	var out []*Node
	for _, c := range n.children {
		c.Walk(func(d *Node) bool {
			if pred(d) {
				out = append(out, d)
			}
			return true
		})
	}
	return out
}

// QuerySelector returns the first tree descendant element with the given tag.
func (n *Node) QuerySelector(tag string) *Node {
	var found *Node
	for _, c := range n.children {
		c.Walk(func(d *Node) bool {
			if found != nil {
				return false
			}
			if d.Matches(tag) {
				found = d
				return false
			}
			return true
		})
		if found != nil {
			break
		}
	}
	return found
}

// QueryDeep returns the first descendant of n (excluding n), including those
// inside shadow trees, that satisfies pred.
func (n *Node) QueryDeep(pred func(*Node) bool) *Node {
	var found *Node
	n.WalkComposed(func(d *Node) bool {
		if found != nil {
			return false
		}
		if d != n && pred(d) {
			found = d
			return false
		}
		return true
	})
	return found
}

// IsCustomTagName reports whether tag looks like a custom element name: it
// starts with a lower-case ASCII letter and contains a hyphen.
func IsCustomTagName(tag string) bool {
	if tag == "" || tag[0] < 'a' || tag[0] > 'z' {
		return false
	}
	return strings.Contains(tag, "-")
}
