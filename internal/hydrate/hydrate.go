// Package hydrate promotes serialized declarative shadow root templates into
// attached shadow roots for engines that do not do it while parsing.
//
// Running it on a document whose parser already attached the shadow roots is
// a no-op: there are no templates left to promote.
package hydrate

import (
	"github.com/conneroisu/hydrate/internal/dom"
)

// Result summarises one Hydrate call.
type Result struct {
	// Promoted counts templates turned into shadow roots, nested ones included.
	Promoted int
	// Skipped counts templates left in place: invalid mode, no element
	// parent, or a host that already has a shadow root.
	Skipped int
}

// Hydrate finds every declarative shadow root template under root, attaches a
// shadow root of the declared mode to the template's parent, moves the
// template content into it and removes the template. Shadow roots created
// this way are hydrated in turn, so nested templates need a single call.
func Hydrate(root *dom.Node) Result {
	var res Result
	if root == nil {
		return res
	}
	hydrateInto(root, &res)
	return res
}

func hydrateInto(root *dom.Node, res *Result) {
	for _, tmpl := range root.FindAll(isShadowTemplate) {
		shadow, ok := promote(tmpl)
		if !ok {
			res.Skipped++
			continue
		}
		res.Promoted++
		hydrateInto(shadow, res)
	}
}

func isShadowTemplate(n *dom.Node) bool {
	_, ok := dom.DeclarativeShadowMode(n)
	return ok
}

func promote(tmpl *dom.Node) (*dom.Node, bool) {
	raw, _ := dom.DeclarativeShadowMode(tmpl)
	mode, ok := dom.ParseShadowMode(raw)
	if !ok {
		return nil, false
	}

	host := tmpl.Parent()
	if host == nil || !host.IsElement() {
		return nil, false
	}

	shadow, err := host.AttachShadow(mode)
	if err != nil {
		return nil, false
	}
	if err := shadow.AppendChild(tmpl.Content()); err != nil {
		return nil, false
	}
	tmpl.Remove()
	return shadow, true
}
