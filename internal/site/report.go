package site

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// DisplayName turns a tag name into a human readable title, so "my-widget"
// becomes "My Widget".
func DisplayName(tag string) string {
	return titleCaser.String(strings.ReplaceAll(tag, "-", " "))
}

// Report renders an HTML summary of a manifest.
func Report(m *Manifest) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := &printer{w: w}
		p.printf(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>Build %s</title></head><body>`,
			templ.EscapeString(m.BuildID))
		p.printf(`<h1>Build %s</h1><p>Started %s, took %s. %d pages, %d components, %d files copied.</p>`,
			templ.EscapeString(m.BuildID),
			templ.EscapeString(m.StartedAt.Format("2006-01-02 15:04:05")),
			templ.EscapeString(m.Duration.String()),
			len(m.Pages), len(m.Components), m.Copied)

		p.printf(`<h2>Components</h2><table><thead><tr><th>Component</th><th>Tag</th><th>Markup</th><th>Style</th></tr></thead><tbody>`)
		for _, c := range m.Components {
			p.printf(`<tr><td>%s</td><td><code>%s</code></td><td>%s</td><td>%s</td></tr>`,
				templ.EscapeString(DisplayName(c.Tag)), templ.EscapeString(c.Tag),
				digestCell(c.MarkupDigest), digestCell(c.StyleDigest))
		}
		p.printf(`</tbody></table>`)

		p.printf(`<h2>Pages</h2><table><thead><tr><th>Page</th><th>Injected</th><th>Components</th><th>Status</th></tr></thead><tbody>`)
		for _, pg := range m.Pages {
			status := "ok"
			if pg.Error != "" {
				status = pg.Error
			}
			p.printf(`<tr><td>%s</td><td>%d</td><td>%s</td><td>%s</td></tr>`,
				templ.EscapeString(pg.Path), pg.Injected,
				templ.EscapeString(strings.Join(pg.Tags, ", ")), templ.EscapeString(status))
		}
		p.printf(`</tbody></table></body></html>`)
		return p.err
	})
}

func digestCell(d string) string {
	if d == "" {
		return "&mdash;"
	}
	return "<code>" + templ.EscapeString(d) + "</code>"
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
