// Package pagecache keeps what the editor knows about each rendered page:
// the preview bitmap, the page size in render space and the detected text
// runs. Pages are published one at a time as the renderer produces them.
package pagecache

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/observability"
)

// TextRun is a detected span of page text in render space at zoom 1.0.
type TextRun struct {
	Text     string
	X, Y     float64 // top-left corner
	Width    float64
	Height   float64
	FontSize float64
}

func (r TextRun) Bounds() coords.Rect {
	return coords.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

// Page is the record of one rendered page.
type Page struct {
	Number int // 1-based
	// Bitmap is a PNG of the page at BitmapScale pixels per page unit.
	Bitmap      []byte
	BitmapScale float64
	Width       float64
	Height      float64
	TextRuns    []TextRun
}

// DataURL returns the bitmap as a data: URL for display.
func (p Page) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(p.Bitmap)
}

// Renderer produces page records in page order, calling fn once per page.
type Renderer interface {
	RenderPages(ctx context.Context, data []byte, fn func(Page) error) error
}

// ErrStale is returned by Load when Reset or another Load replaced it
// before it finished.
var ErrStale = errors.New("page load superseded")

type Config struct {
	Logger observability.Logger
	// OnPage is called after each page is published.
	OnPage func(Page)
}

// Cache is safe for concurrent use: a host may render on one goroutine and
// read pages on another.
type Cache struct {
	mu    sync.Mutex
	pages []Page
	ready bool
	gen   int
	cfg   Config
	log   observability.Logger
}

func New(cfg Config) *Cache {
	return &Cache{cfg: cfg, log: observability.OrNop(cfg.Logger)}
}

// Load discards every page and renders data sequentially. Pages become
// visible as soon as each one is ready; Ready reports true only after the
// last page was published.
func (c *Cache) Load(ctx context.Context, r Renderer, data []byte) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.pages, c.ready = nil, false
	c.mu.Unlock()

	err := r.RenderPages(ctx, data, func(p Page) error {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return ErrStale
		}
		p.Number = len(c.pages) + 1
		c.pages = append(c.pages, p)
		c.mu.Unlock()
		c.log.Debug("page ready", observability.Int("page", p.Number), observability.Int("runs", len(p.TextRuns)))
		if c.cfg.OnPage != nil {
			c.cfg.OnPage(p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("render pages: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return ErrStale
	}
	c.ready = true
	return nil
}

// Ready reports whether every page of the current document is loaded.
func (c *Cache) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Pages returns the pages published so far.
func (c *Cache) Pages() []Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Page(nil), c.pages...)
}

// Page returns the 1-based page n.
func (c *Cache) Page(n int) (Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 1 || n > len(c.pages) {
		return Page{}, false
	}
	return c.pages[n-1], true
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

// Reset drops every page. A Load still running is abandoned.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.pages, c.ready = nil, false
}

// TextRunAt returns the topmost run of page containing the render-space
// point (x, y) and its index.
func (c *Cache) TextRunAt(page int, x, y float64) (TextRun, int, bool) {
	p, ok := c.Page(page)
	if !ok {
		return TextRun{}, -1, false
	}
	for i := len(p.TextRuns) - 1; i >= 0; i-- {
		if p.TextRuns[i].Bounds().Contains(x, y) {
			return p.TextRuns[i], i, true
		}
	}
	return TextRun{}, -1, false
}
