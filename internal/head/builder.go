// internal/head/builder.go
//
// The Builder collects everything that should appear inside a page’s
// <head> element.  It is scoped to a single request.  Handlers and the
// payment checkout push tags into the builder, then the page template
// decides where to emit each slice.
//
// Features
// --------
//   - SetTitle           – single <title> tag (last call wins).
//   - Meta, Link         – arbitrary tags with deduplication.
//   - ScriptSrc          – external script by element id, added at most once.
//   - WithContext        – carries the request's builder to deeper layers.
package head

import (
	"context"
	"html/template"
	"strings"
	"sync"
)

type ctxKey struct{}

// Builder is guarded by a mutex; typical use is one goroutine per request.
type Builder struct {
	mu sync.Mutex

	title string

	metas   []string
	links   []string
	scripts []string

	// seen tracks keys for deduplication.
	seen map[string]struct{}
}

func New() *Builder {
	return &Builder{seen: make(map[string]struct{})}
}

// WithContext stores b in ctx.
func WithContext(ctx context.Context, b *Builder) context.Context {
	return context.WithValue(ctx, ctxKey{}, b)
}

// FromContext returns the request's builder, or nil.
func FromContext(ctx context.Context) *Builder {
	b, _ := ctx.Value(ctxKey{}).(*Builder)
	return b
}

// SetTitle overrides the page <title>.  The last caller wins.
func (b *Builder) SetTitle(t string) {
	b.mu.Lock()
	b.title = t
	b.mu.Unlock()
}

// Title returns a fully formed <title> tag or an empty string.
func (b *Builder) Title() template.HTML {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.title == "" {
		return ""
	}
	return template.HTML("<title>" + template.HTMLEscapeString(b.title) + "</title>")
}

func (b *Builder) Meta(tag string) { b.add("meta:"+tag, &b.metas, tag) }
func (b *Builder) Link(tag string) { b.add("link:"+tag, &b.links, tag) }

// ScriptSrc adds an async <script> with the given element id and src.  It
// reports false when a script with that id is already present.
func (b *Builder) ScriptSrc(id, src string) bool {
	tag := `<script id="` + template.HTMLEscapeString(id) + `" src="` +
		template.HTMLEscapeString(src) + `" async></script>`
	return b.add("script#"+id, &b.scripts, tag)
}

// HasScript reports whether a script with id was added.
func (b *Builder) HasScript(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.seen["script#"+id]
	return ok
}

func (b *Builder) add(key string, tgt *[]string, tag string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.seen[key]; dup {
		return false
	}
	b.seen[key] = struct{}{}
	*tgt = append(*tgt, tag)
	return true
}

// Rendering helpers called from page templates.

func (b *Builder) Metas() template.HTML   { return b.concat(b.metas) }
func (b *Builder) Links() template.HTML   { return b.concat(b.links) }
func (b *Builder) Scripts() template.HTML { return b.concat(b.scripts) }

// concat joins pre-escaped tags without a separator.
func (b *Builder) concat(sl []string) template.HTML {
	b.mu.Lock()
	defer b.mu.Unlock()
	return template.HTML(strings.Join(sl, ""))
}
