package dom

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrAlreadyDefined is returned when a tag name is defined twice.
	ErrAlreadyDefined = errors.New("dom: custom element already defined")
	// ErrInvalidName is returned for tag names that are not valid custom
	// element names.
	ErrInvalidName = errors.New("dom: invalid custom element name")
)

// ElementConstructor upgrades elements once their tag name is defined.
type ElementConstructor interface {
	Upgrade(el *Node)
}

// ElementConstructorFunc adapts a function to ElementConstructor.
type ElementConstructorFunc func(el *Node)

// Upgrade calls f(el).
func (f ElementConstructorFunc) Upgrade(el *Node) { f(el) }

// CustomElementRegistry associates custom tag names with constructors.
type CustomElementRegistry struct {
	doc         *Document
	definitions map[string]ElementConstructor
	calls       map[string]int
}

func newRegistry(d *Document) *CustomElementRegistry {
	return &CustomElementRegistry{
		doc:         d,
		definitions: make(map[string]ElementConstructor),
		calls:       make(map[string]int),
	}
}

// Get returns the constructor defined for tag.
func (r *CustomElementRegistry) Get(tag string) (ElementConstructor, bool) {
	ctor, ok := r.definitions[tag]
	return ctor, ok
}

// Define registers ctor for tag and upgrades every connected element with
// that tag in document order.
func (r *CustomElementRegistry) Define(tag string, ctor ElementConstructor) error {
	r.calls[tag]++
	if !IsCustomTagName(tag) {
		return fmt.Errorf("%w: %q", ErrInvalidName, tag)
	}
	if ctor == nil {
		return fmt.Errorf("dom: nil constructor for %q", tag)
	}
	if _, exists := r.definitions[tag]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyDefined, tag)
	}
	r.definitions[tag] = ctor
	r.upgradeSubtree(r.doc.root)
	return nil
}

// DefineCalls returns how many times Define was called for tag, including
// rejected calls.
func (r *CustomElementRegistry) DefineCalls(tag string) int {
	return r.calls[tag]
}

// Names returns the defined tag names in sorted order.
func (r *CustomElementRegistry) Names() []string {
	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *CustomElementRegistry) upgradeSubtree(root *Node) {
	if len(r.definitions) == 0 {
		return
	}
	root.WalkComposed(func(n *Node) bool {
		if n.Type != ElementNode || n.defined {
			return true
		}
		if ctor, ok := r.definitions[n.Tag]; ok {
			n.defined = true
			ctor.Upgrade(n)
		}
		return true
	})
}
