package styles

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/css/scanner"
)

// MinifyPlugin removes comments and redundant whitespace.
type MinifyPlugin struct{}

// NewMinifyPlugin creates a minify plugin.
func NewMinifyPlugin() *MinifyPlugin {
	return &MinifyPlugin{}
}

// Name implements Plugin.
func (p *MinifyPlugin) Name() string { return PluginMinify }

// Transform implements Plugin.
func (p *MinifyPlugin) Transform(_ context.Context, src, _ string) (string, error) {
	return Minify(src)
}

// Whitespace next to these tokens never changes meaning. Spaces before ':'
// and '(' are kept since they separate selectors and media features.
var (
	noSpaceBefore = map[string]bool{"{": true, "}": true, ";": true, ",": true, ">": true, ")": true}
	noSpaceAfter  = map[string]bool{"{": true, "}": true, ";": true, ",": true, ">": true, "(": true, ":": true}
)

// Minify tokenizes src and writes it back without comments, with whitespace
// collapsed to the single spaces that are significant, and without the
// semicolon before a closing brace.
func Minify(src string) (string, error) {
	var b strings.Builder
	s := scanner.New(src)

	var (
		last    string
		space   bool
		semicol bool
	)
	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF:
			if semicol {
				b.WriteString(";")
			}
			return b.String(), nil
		case scanner.TokenError:
			return "", fmt.Errorf("line %d, column %d: invalid token %q", tok.Line, tok.Column, tok.Value)
		case scanner.TokenS, scanner.TokenComment:
			space = last != ""
			continue
		}

		v := tok.Value
		if v == ";" {
			semicol = true
			space = false
			continue
		}
		if semicol {
			semicol = false
			if v != "}" {
				b.WriteString(";")
				last = ";"
				space = false
			}
		}
		if space && !noSpaceAfter[last] && !strings.HasSuffix(last, "(") && !noSpaceBefore[v] {
			b.WriteString(" ")
		}
		space = false
		b.WriteString(v)
		last = v
	}
}
