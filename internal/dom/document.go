package dom

import (
	"sync"
)

// ReadyState mirrors document.readyState.
type ReadyState string

const (
	ReadyLoading     ReadyState = "loading"
	ReadyInteractive ReadyState = "interactive"
	ReadyComplete    ReadyState = "complete"
)

// Document owns a node tree, its observers and its custom element registry.
type Document struct {
	root      *Node
	loop      *Loop
	registry  *CustomElementRegistry
	observers []*MutationObserver
	nextID    NodeID

	readyMu    sync.Mutex
	readyState ReadyState
	readyCh    chan struct{}
}

// NewDocument creates an empty document in the loading state. A nil loop
// gets a fresh Loop.
func NewDocument(loop *Loop) *Document {
	if loop == nil {
		loop = NewLoop()
	}
	d := &Document{
		loop:       loop,
		readyState: ReadyLoading,
		readyCh:    make(chan struct{}),
	}
	d.root = d.newNode(DocumentNode)
	d.registry = newRegistry(d)
	return d
}

func (d *Document) newNode(t NodeType) *Node {
	d.nextID++
	return &Node{id: d.nextID, doc: d, Type: t}
}

// Root returns the document node.
func (d *Document) Root() *Node { return d.root }

// Loop returns the event loop the document schedules work on.
func (d *Document) Loop() *Loop { return d.loop }

// Registry returns the document's custom element registry.
func (d *Document) Registry() *CustomElementRegistry { return d.registry }

// CreateElement creates a detached element. Tag names are lower-cased.
func (d *Document) CreateElement(tag string) *Node {
	n := d.newNode(ElementNode)
	n.Tag = toLowerASCII(tag)
	if n.Tag == "template" {
		n.content = d.newNode(FragmentNode)
	}
	return n
}

// CreateTextNode creates a detached text node.
func (d *Document) CreateTextNode(text string) *Node {
	n := d.newNode(TextNode)
	n.Data = text
	return n
}

// CreateComment creates a detached comment node.
func (d *Document) CreateComment(text string) *Node {
	n := d.newNode(CommentNode)
	n.Data = text
	return n
}

// CreateDocumentFragment creates an empty fragment.
func (d *Document) CreateDocumentFragment() *Node {
	return d.newNode(FragmentNode)
}

// DocumentElement returns the <html> element, or nil.
func (d *Document) DocumentElement() *Node {
	for _, c := range d.root.children {
		if c.Type == ElementNode {
			return c
		}
	}
	return nil
}

// Body returns the <body> element, falling back to the document element.
func (d *Document) Body() *Node {
	html := d.DocumentElement()
	if html == nil {
		return nil
	}
	for _, c := range html.children {
		if c.Matches("body") {
			return c
		}
	}
	return html
}

// ReadyState returns the current ready state.
func (d *Document) ReadyState() ReadyState {
	d.readyMu.Lock()
	defer d.readyMu.Unlock()
	return d.readyState
}

// SetReadyState advances the ready state. Leaving ReadyLoading releases every
// waiter on Ready. Going back to loading is ignored.
func (d *Document) SetReadyState(state ReadyState) {
	d.readyMu.Lock()
	defer d.readyMu.Unlock()
	if state == ReadyLoading || state == d.readyState {
		return
	}
	if d.readyState == ReadyLoading {
		close(d.readyCh)
	}
	d.readyState = state
}

// Ready returns a channel closed once the document has left the loading
// state. It is safe to wait on from any goroutine.
func (d *Document) Ready() <-chan struct{} {
	return d.readyCh
}

func toLowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'A' && c <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if b[j] >= 'A' && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}
