// Package inject embeds component markup and styles into pages as declarative
// shadow root templates.
//
// Every custom element in a page whose component has a backing fragment gets
// a <template shadowrootmode="open"> prepended, holding the component style
// and markup. Elements that already carry a shadow root template are left as
// authored, which makes injection idempotent.
package inject

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/conneroisu/hydrate/internal/dom"
	herrors "github.com/conneroisu/hydrate/internal/errors"
	"github.com/conneroisu/hydrate/internal/fragments"
	"github.com/conneroisu/hydrate/internal/logging"
)

// shadowTemplates matches a direct shadow root template child, standard or
// legacy.
var shadowTemplates = fmt.Sprintf("template[%s], template[%s]",
	dom.ShadowRootModeAttr, dom.LegacyShadowRootAttr)

// Result summarizes one page.
type Result struct {
	// Elements counts custom elements visited.
	Elements int
	// Injected counts templates inserted.
	Injected int
	// Skipped counts custom elements with content that were left alone,
	// either because a shadow root template was already present or because
	// expanding them would recurse into their own fragment.
	Skipped int
	// Tags lists the distinct tags that received a template, sorted.
	Tags []string
}

// Injector rewrites pages using a fragment cache.
type Injector struct {
	cache  *fragments.Cache
	logger logging.Logger
}

// New creates an injector. logger may be nil.
func New(cache *fragments.Cache, logger logging.Logger) *Injector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Injector{cache: cache, logger: logger.WithComponent("inject")}
}

// Inject reads a page from r and writes the rewritten page to w.
func (in *Injector) Inject(ctx context.Context, r io.Reader, w io.Writer) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Result{}, herrors.NewBuildError(herrors.ErrCodePageParse, "cannot parse page", err)
	}

	p := pass{in: in, ctx: ctx, tags: make(map[string]struct{})}
	p.walk(doc.Selection, nil)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	for tag := range p.tags {
		p.res.Tags = append(p.res.Tags, tag)
	}
	sort.Strings(p.res.Tags)

	if err := goquery.Render(w, doc.Selection); err != nil {
		return Result{}, herrors.NewIOError(herrors.ErrCodePageWrite, "cannot render page", err)
	}
	return p.res, nil
}

// InjectString is Inject for in-memory pages.
func (in *Injector) InjectString(ctx context.Context, page string) (string, Result, error) {
	var b strings.Builder
	res, err := in.Inject(ctx, strings.NewReader(page), &b)
	if err != nil {
		return "", Result{}, err
	}
	return b.String(), res, nil
}

// Template returns the declarative shadow root markup for a component.
func Template(style, markup string) string {
	return `<template ` + dom.ShadowRootModeAttr + `="open"><style>` + style + `</style>` + markup + `</template>`
}

type pass struct {
	in   *Injector
	ctx  context.Context
	res  Result
	tags map[string]struct{}
}

// walk visits the element children of s in document order. chain holds the
// tags of the components whose shadow templates enclose s.
func (p *pass) walk(s *goquery.Selection, chain []string) {
	s.Children().EachWithBreak(func(_ int, child *goquery.Selection) bool {
		if p.ctx.Err() != nil {
			return false
		}
		p.visit(child, chain)
		return true
	})
}

func (p *pass) visit(el *goquery.Selection, chain []string) {
	tag := goquery.NodeName(el)
	custom := dom.IsCustomTagName(tag)
	if custom {
		p.expand(el, tag, chain)
	}

	if !custom {
		p.walk(el, chain)
		return
	}
	// Descending into this component's own shadow template extends the chain;
	// light DOM children keep the current one.
	inner := append(chain[:len(chain):len(chain)], tag)
	el.Children().Each(func(_ int, child *goquery.Selection) {
		if child.Is(shadowTemplates) {
			p.walk(child, inner)
			return
		}
		p.visit(child, chain)
	})
}

func (p *pass) expand(el *goquery.Selection, tag string, chain []string) {
	p.res.Elements++

	markup := p.in.cache.Markup(p.ctx, tag)
	style := p.in.cache.Style(p.ctx, tag)
	if markup == "" && style == "" {
		return
	}

	if el.ChildrenFiltered(shadowTemplates).Length() > 0 {
		p.res.Skipped++
		return
	}
	for _, enclosing := range chain {
		if enclosing == tag {
			p.in.logger.Debug(p.ctx, "Not expanding component inside its own fragment", "tag", tag)
			p.res.Skipped++
			return
		}
	}

	el.PrependHtml(Template(style, markup))
	p.res.Injected++
	p.tags[tag] = struct{}{}
}
