// Package fragments resolves the backing markup and style files of custom
// elements during a build.
//
// A component tag maps to <dir>/<tag>.html and <dir>/<tag>.css. Each file is
// read at most once per Cache, no matter how many pages or workers ask for it;
// missing files resolve to the empty string.
package fragments

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/hydrate/internal/dom"
	"github.com/conneroisu/hydrate/internal/logging"
	"github.com/conneroisu/hydrate/internal/metrics"
	"github.com/conneroisu/hydrate/internal/styles"
)

const (
	kindMarkup = "markup"
	kindStyle  = "style"
)

// Options configure a Cache.
type Options struct {
	// Fs holds the component files. Defaults to the OS filesystem.
	Fs afero.Fs
	// Dir is the components directory.
	Dir string
	// Pipeline transforms style files before they are cached. Nil keeps them
	// verbatim.
	Pipeline styles.Pipeline
	Logger   logging.Logger
	Metrics  *metrics.Build
}

// Entry is the resolved content of one component.
type Entry struct {
	Tag          string `json:"tag"`
	Markup       string `json:"-"`
	Style        string `json:"-"`
	MarkupDigest string `json:"markup_digest,omitempty"`
	StyleDigest  string `json:"style_digest,omitempty"`
}

// Empty reports whether the component has neither markup nor style.
func (e Entry) Empty() bool {
	return e.Markup == "" && e.Style == ""
}

// Cache memoizes component markup and style for the lifetime of one build.
// It is safe for concurrent use.
type Cache struct {
	fs       afero.Fs
	dir      string
	pipeline styles.Pipeline
	logger   logging.Logger
	metrics  *metrics.Build

	group singleflight.Group

	mu     sync.Mutex
	markup map[string]string
	style  map[string]string
	reads  map[string]int
}

// New creates an empty cache.
func New(opts Options) *Cache {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		fs:       opts.Fs,
		dir:      opts.Dir,
		pipeline: opts.Pipeline,
		logger:   logger.WithComponent("fragments"),
		metrics:  opts.Metrics,
		markup:   make(map[string]string),
		style:    make(map[string]string),
		reads:    make(map[string]int),
	}
}

// Dir returns the components directory.
func (c *Cache) Dir() string { return c.dir }

// Markup returns the component markup for tag, or "".
func (c *Cache) Markup(ctx context.Context, tag string) string {
	return c.lookup(ctx, kindMarkup, tag, c.markup, c.readMarkup)
}

// Style returns the processed component stylesheet for tag, or "".
func (c *Cache) Style(ctx context.Context, tag string) string {
	return c.lookup(ctx, kindStyle, tag, c.style, c.readStyle)
}

// Reads returns how many backing files were read for tag.
func (c *Cache) Reads(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads[tag]
}

// Entries returns every tag resolved so far, sorted by name.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	tags := make(map[string]struct{}, len(c.markup))
	for tag := range c.markup {
		tags[tag] = struct{}{}
	}
	for tag := range c.style {
		tags[tag] = struct{}{}
	}

	entries := make([]Entry, 0, len(tags))
	for tag := range tags {
		e := Entry{Tag: tag, Markup: c.markup[tag], Style: c.style[tag]}
		e.MarkupDigest = Digest(e.Markup)
		e.StyleDigest = Digest(e.Style)
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Tag < entries[j].Tag })
	return entries
}

// Digest returns the hex xxhash of s, or "" for the empty string.
func Digest(s string) string {
	if s == "" {
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

// lookup resolves tag once per cache. A read that fails only because its
// context was cancelled is not cached, and callers whose own context is
// still live retry it.
func (c *Cache) lookup(ctx context.Context, kind, tag string, table map[string]string,
	read func(context.Context, string) (string, error)) string {
	for {
		if v, ok := c.cached(table, tag); ok {
			return v
		}
		v, err, _ := c.group.Do(kind+":"+tag, func() (interface{}, error) {
			if v, ok := c.cached(table, tag); ok {
				return v, nil
			}
			v, err := read(ctx, tag)
			if err != nil {
				return "", err
			}
			c.mu.Lock()
			table[tag] = v
			c.mu.Unlock()
			return v, nil
		})
		if err == nil {
			return v.(string)
		}
		if ctx.Err() != nil {
			return ""
		}
	}
}

func (c *Cache) cached(table map[string]string, tag string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := table[tag]
	return v, ok
}

func (c *Cache) readMarkup(ctx context.Context, tag string) (string, error) {
	text, _ := c.readFile(ctx, kindMarkup, tag, ".html")
	return text, nil
}

func (c *Cache) readStyle(ctx context.Context, tag string) (string, error) {
	text, path := c.readFile(ctx, kindStyle, tag, ".css")
	if text == "" || c.pipeline == nil {
		return text, nil
	}

	processed, err := c.pipeline.Process(ctx, text, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.logger.Debug(ctx, "Style processing cancelled", "tag", tag, "path", path)
			return "", ctxErr
		}
		c.logger.Warn(ctx, err, "Style pipeline failed, dropping component style", "tag", tag, "path", path)
		c.metrics.Resolved(kindStyle, metrics.OutcomeError)
		return "", nil
	}
	return processed, nil
}

// readFile returns the file content for tag, or "" when it is missing or
// unreadable. The outcome is recorded for every attempt.
func (c *Cache) readFile(ctx context.Context, kind, tag, ext string) (string, string) {
	if tag == "" || strings.ContainsAny(tag, `/\`) || strings.Contains(tag, "..") {
		c.logger.Debug(ctx, "Refusing to resolve unsafe tag name", "tag", tag)
		c.metrics.Resolved(kind, metrics.OutcomeError)
		return "", ""
	}
	path := filepath.Join(c.dir, tag+ext)

	c.mu.Lock()
	c.reads[tag]++
	c.mu.Unlock()

	data, err := afero.ReadFile(c.fs, path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		c.logger.Debug(ctx, "No backing file for component", "tag", tag, "path", path)
		c.metrics.Resolved(kind, metrics.OutcomeEmpty)
		return "", path
	case err != nil:
		c.logger.Warn(ctx, err, "Cannot read component file", "tag", tag, "path", path)
		c.metrics.Resolved(kind, metrics.OutcomeError)
		return "", path
	}

	if len(data) == 0 {
		c.metrics.Resolved(kind, metrics.OutcomeEmpty)
	} else {
		c.metrics.Resolved(kind, metrics.OutcomeFound)
	}
	return string(data), path
}

// Tags lists the component tags backed by a markup or style file in dir,
// sorted. Files whose base name is not a custom element name are ignored.
func Tags(fsys afero.Fs, dir string) ([]string, error) {
	infos, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("cannot list components directory %s: %w", dir, err)
	}
	seen := make(map[string]bool)
	var tags []string
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		ext := filepath.Ext(info.Name())
		if ext != ".html" && ext != ".css" {
			continue
		}
		tag := strings.TrimSuffix(info.Name(), ext)
		if !dom.IsCustomTagName(tag) || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}
