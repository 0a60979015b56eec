// Package editor is the interaction controller: it turns pointer, keyboard
// and image events into changes of the annotation store, tracking which
// annotation is active, edited or dragged.
//
// A Controller is not safe for concurrent use. Hosts deliver every event
// from one goroutine.
package editor

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/wudi/pdfedit/annotation"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/export"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/pagecache"
	"github.com/wudi/pdfedit/raster"
)

type Tool string

const (
	ToolSelect    Tool = "select"
	ToolText      Tool = "text"
	ToolWhiteout  Tool = "whiteout"
	ToolShape     Tool = "shape"
	ToolImage     Tool = "image"
	ToolSignature Tool = "signature"
)

type State int

const (
	Idle State = iota
	Placing
	Selected
	Editing
	Dragging
)

func (s State) String() string {
	switch s {
	case Placing:
		return "placing"
	case Selected:
		return "selected"
	case Editing:
		return "editing"
	case Dragging:
		return "dragging"
	}
	return "idle"
}

// Placement defaults.
const (
	DefaultText        = "New Text"
	DefaultTextSize    = 16.0
	DefaultImageWidth  = 150.0
	ReplaceMargin      = 2.0
	ReplaceFontFamily  = "Helvetica"
	defaultShapeStroke = 2.0
)

// ImageRequest is a deferred image placement waiting for image bytes.
type ImageRequest struct {
	Token     int
	Page      int
	X, Y      float64
	Signature bool
}

type Config struct {
	Renderer pagecache.Renderer
	// ImagePicker is asked for image bytes after an image or signature
	// placement. The answer comes back through ResolveImage, CancelImage
	// or the mounted Bus.
	ImagePicker func(ImageRequest)
	// ImageWidth is the width new images are scaled to. Zero uses 150.
	ImageWidth float64
	// ClampDrag keeps dragged annotations inside the page.
	ClampDrag bool
	OnPage    func(pagecache.Page)
	// OnImageError reports an image result from the Bus that could not be
	// placed. The request is withdrawn.
	OnImageError func(token int, err error)
	Logger       observability.Logger
}

type drag struct {
	id     int
	dx, dy float64
}

type Controller struct {
	cfg   Config
	log   observability.Logger
	store *annotation.Store
	pages *pagecache.Cache

	name   string
	source []byte

	tool    Tool
	zoom    float64
	active  int
	editing int
	drag    *drag
	pending *ImageRequest
	tokens  int

	unmount []func()
}

func New(cfg Config) *Controller {
	if cfg.ImageWidth <= 0 {
		cfg.ImageWidth = DefaultImageWidth
	}
	log := observability.OrNop(cfg.Logger)
	return &Controller{
		cfg:   cfg,
		log:   log,
		store: annotation.NewStore(),
		pages: pagecache.New(pagecache.Config{Logger: log, OnPage: cfg.OnPage}),
		tool:  ToolSelect,
		zoom:  coords.DefaultZoom,
	}
}

// Open discards the current session and renders data. A render failure
// leaves the controller without a document.
func (c *Controller) Open(ctx context.Context, name string, data []byte) error {
	c.reset()
	c.name, c.source = name, data
	if err := c.pages.Load(ctx, c.cfg.Renderer, data); err != nil {
		c.reset()
		c.log.Error("document failed to load", observability.String("name", name), observability.Error("error", err))
		return &LoadError{Name: name, Err: err}
	}
	c.log.Info("document opened", observability.String("name", name), observability.Int("pages", c.pages.Len()))
	return nil
}

func (c *Controller) reset() {
	c.store.Reset()
	c.pages.Reset()
	c.name, c.source = "", nil
	c.active, c.editing = 0, 0
	c.drag, c.pending = nil, nil
}

func (c *Controller) Ready() bool { return c.source != nil && c.pages.Ready() }

func (c *Controller) Pages() *pagecache.Cache { return c.pages }

func (c *Controller) Tool() Tool     { return c.tool }
func (c *Controller) Zoom() float64  { return c.zoom }
func (c *Controller) Active() int    { return c.active }
func (c *Controller) EditingID() int { return c.editing }

func (c *Controller) State() State {
	switch {
	case c.drag != nil:
		return Dragging
	case c.editing != 0:
		return Editing
	case c.active != 0:
		return Selected
	case c.tool != ToolSelect:
		return Placing
	}
	return Idle
}

// Pending returns the outstanding image request, if any.
func (c *Controller) Pending() (ImageRequest, bool) {
	if c.pending == nil {
		return ImageRequest{}, false
	}
	return *c.pending, true
}

func (c *Controller) Annotations() []annotation.Annotation { return c.store.All() }

func (c *Controller) Annotation(id int) (annotation.Annotation, bool) { return c.store.Get(id) }

func (c *Controller) SetTool(t Tool) { c.tool = t }

func (c *Controller) SetZoom(z float64) { c.zoom = coords.ClampZoom(z) }
func (c *Controller) ZoomIn()           { c.SetZoom(c.zoom + coords.ZoomStep) }
func (c *Controller) ZoomOut()          { c.SetZoom(c.zoom - coords.ZoomStep) }
func (c *Controller) ResetZoom()        { c.zoom = coords.DefaultZoom }

func (c *Controller) checkPage(page int) error {
	if c.source == nil {
		return ErrNoDocument
	}
	if page < 1 || page > c.pages.Len() {
		return fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}
	return nil
}

// PageClick handles a click on the empty area of page at pointer offset
// (px, py) from the page's top-left corner. The select tool clears the
// selection; placement tools create an annotation there.
func (c *Controller) PageClick(page int, px, py float64) error {
	if c.tool == ToolSelect {
		c.active, c.editing = 0, 0
		return nil
	}
	if err := c.checkPage(page); err != nil {
		return err
	}
	if !c.pages.Ready() {
		return ErrNotReady
	}
	x, y := coords.ToDocumentSpace(px, py, c.zoom)
	var body annotation.Body
	switch c.tool {
	case ToolText:
		body = &annotation.Text{Content: DefaultText, Size: DefaultTextSize, Color: annotation.Indigo}
	case ToolWhiteout:
		body = &annotation.Whiteout{Width: 100, Height: 30}
	case ToolShape:
		body = &annotation.Shape{Width: 100, Height: 100, Color: annotation.Indigo, StrokeWidth: defaultShapeStroke}
	case ToolImage, ToolSignature:
		return c.requestImage(page, x, y, c.tool == ToolSignature)
	default:
		return fmt.Errorf("unknown tool %q", c.tool)
	}
	a, err := c.store.Create(page, x, y, body)
	if err != nil {
		return err
	}
	c.active, c.editing = a.ID, 0
	if a.Kind() == annotation.KindText {
		c.editing = a.ID
	}
	c.log.Debug("annotation placed", observability.Int("id", a.ID), observability.String("kind", string(a.Kind())))
	return nil
}

func (c *Controller) requestImage(page int, x, y float64, signature bool) error {
	if c.pending != nil {
		return ErrImagePending
	}
	c.tokens++
	req := ImageRequest{Token: c.tokens, Page: page, X: x, Y: y, Signature: signature}
	c.pending = &req
	if c.cfg.ImagePicker != nil {
		c.cfg.ImagePicker(req)
	}
	return nil
}

// ResolveImage materializes the pending request with token. Results for
// any other token are stale and ignored. The image is scaled to the
// configured width, keeping its aspect ratio.
func (c *Controller) ResolveImage(token int, data []byte, mime string) error {
	if c.pending == nil || c.pending.Token != token {
		c.log.Debug("stale image result ignored", observability.Int("token", token))
		return nil
	}
	req := *c.pending
	c.pending = nil
	out, sniffed, w, h, err := raster.Intake(data)
	if err != nil {
		return fmt.Errorf("image for page %d: %w", req.Page, err)
	}
	if mime != "" && mime != sniffed {
		c.log.Debug("image type differs from declared", observability.String("declared", mime), observability.String("sniffed", sniffed))
	}
	width := c.cfg.ImageWidth
	a, err := c.store.Create(req.Page, req.X, req.Y, &annotation.Image{
		Width:     width,
		Height:    width * float64(h) / float64(w),
		Data:      out,
		MIMEType:  sniffed,
		Signature: req.Signature,
	})
	if err != nil {
		return err
	}
	c.active, c.editing = a.ID, 0
	return nil
}

// CancelImage withdraws the pending request with token.
func (c *Controller) CancelImage(token int) {
	if c.pending != nil && c.pending.Token == token {
		c.pending = nil
	}
}

// PointerDown starts dragging annotation id. It is ignored unless the
// select tool is active and id is not being edited.
func (c *Controller) PointerDown(id int, px, py float64) bool {
	if c.tool != ToolSelect || c.editing == id {
		return false
	}
	a, ok := c.store.Get(id)
	if !ok {
		return false
	}
	x, y := coords.ToDocumentSpace(px, py, c.zoom)
	c.drag = &drag{id: id, dx: x - a.X, dy: y - a.Y}
	c.active, c.editing = id, 0
	return true
}

// PointerMove moves the dragged annotation so that it keeps its offset
// from the pointer.
func (c *Controller) PointerMove(px, py float64) error {
	if c.drag == nil {
		return nil
	}
	x, y := coords.ToDocumentSpace(px, py, c.zoom)
	x, y = x-c.drag.dx, y-c.drag.dy
	if c.cfg.ClampDrag {
		x, y = c.clamp(c.drag.id, x, y)
	}
	return c.store.Update(c.drag.id, annotation.Patch{X: &x, Y: &y})
}

func (c *Controller) clamp(id int, x, y float64) (float64, float64) {
	a, ok := c.store.Get(id)
	if !ok {
		return x, y
	}
	p, ok := c.pages.Page(a.Page)
	if !ok {
		return x, y
	}
	b := a.Bounds()
	x = math.Max(0, math.Min(x, p.Width-b.Width))
	y = math.Max(0, math.Min(y, p.Height-b.Height))
	return x, y
}

func (c *Controller) PointerUp() { c.drag = nil }

// DoubleClick starts editing a text annotation.
func (c *Controller) DoubleClick(id int) bool {
	a, ok := c.store.Get(id)
	if !ok || a.Kind() != annotation.KindText {
		return false
	}
	c.active, c.editing = id, id
	return true
}

// EditText replaces the content of the annotation being edited. Every
// keystroke is applied immediately; there is no separate commit.
func (c *Controller) EditText(content string) error {
	if c.editing == 0 {
		return nil
	}
	return c.store.Update(c.editing, annotation.Patch{Content: &content})
}

// Blur ends editing, keeping the annotation selected.
func (c *Controller) Blur() { c.editing = 0 }

// KeyDown applies a keyboard event and reports whether it was consumed.
func (c *Controller) KeyDown(ev KeyEvent) bool {
	switch ev.Key {
	case KeyEnter:
		if c.editing != 0 && !ev.Shift {
			c.editing = 0
			return true
		}
	case KeyEscape:
		if c.editing != 0 {
			c.editing = 0
			return true
		}
	case KeyDelete, KeyBackspace:
		if c.active != 0 && c.editing == 0 && !ev.InTextInput {
			c.Delete(c.active)
			return true
		}
	}
	return false
}

// Delete removes id and clears any state that referred to it.
func (c *Controller) Delete(id int) {
	if !c.store.Remove(id) {
		return
	}
	if c.active == id {
		c.active = 0
	}
	if c.editing == id {
		c.editing = 0
	}
	if c.drag != nil && c.drag.id == id {
		c.drag = nil
	}
}

// Update edits id from the properties panel.
func (c *Controller) Update(id int, p annotation.Patch) error {
	return c.store.Update(id, p)
}

// SmartReplace covers text run runIndex of page with a whiteout and puts
// an editable copy of its text on top.
func (c *Controller) SmartReplace(page, runIndex int) error {
	if c.tool != ToolSelect {
		return ErrSelectTool
	}
	if err := c.checkPage(page); err != nil {
		return err
	}
	if !c.pages.Ready() {
		return ErrNotReady
	}
	p, _ := c.pages.Page(page)
	if runIndex < 0 || runIndex >= len(p.TextRuns) {
		return fmt.Errorf("%w: page %d run %d", ErrNoTextRun, page, runIndex)
	}
	run := p.TextRuns[runIndex]
	if !(run.FontSize > 0) {
		return fmt.Errorf("%w: page %d run %d has font size %g", ErrNoTextRun, page, runIndex, run.FontSize)
	}
	out, err := c.store.Insert(
		annotation.Annotation{
			Page: page,
			X:    run.X - ReplaceMargin,
			Y:    run.Y - ReplaceMargin,
			Body: &annotation.Whiteout{Width: run.Width + 2*ReplaceMargin, Height: run.Height + 2*ReplaceMargin},
		},
		annotation.Annotation{
			Page: page,
			X:    run.X,
			Y:    run.Y,
			Body: &annotation.Text{Content: run.Text, Size: run.FontSize, Color: annotation.Black, FontFamily: ReplaceFontFamily},
		},
	)
	if err != nil {
		return err
	}
	text := out[1].ID
	c.active, c.editing = text, text
	c.log.Debug("text replaced", observability.Int("page", page), observability.String("text", run.Text))
	return nil
}

// SmartReplaceAt runs SmartReplace on the topmost text run under the
// pointer.
func (c *Controller) SmartReplaceAt(page int, px, py float64) error {
	x, y := coords.ToDocumentSpace(px, py, c.zoom)
	_, idx, ok := c.pages.TextRunAt(page, x, y)
	if !ok {
		return fmt.Errorf("%w: page %d at (%g, %g)", ErrNoTextRun, page, x, y)
	}
	return c.SmartReplace(page, idx)
}

// Import appends annotations loaded from elsewhere, in order. Ids are
// reallocated.
func (c *Controller) Import(anns []annotation.Annotation) error {
	for _, a := range anns {
		if err := c.checkPage(a.Page); err != nil {
			return err
		}
	}
	_, err := c.store.Insert(anns...)
	return err
}

// Stack returns the annotations of page in drawing order, with the active
// one raised to the top.
func (c *Controller) Stack(page int) []annotation.Annotation {
	anns := c.store.ListByPage(page)
	for i, a := range anns {
		if a.ID == c.active {
			anns = append(append(anns[:i:i], anns[i+1:]...), a)
			break
		}
	}
	return anns
}

// Preview composes page with its annotations at the current zoom.
func (c *Controller) Preview(page int) (*image.RGBA, error) {
	p, ok := c.pages.Page(page)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}
	return raster.Compose(p, c.Stack(page), c.zoom, c.active)
}

// Export projects every annotation onto the loaded document. It returns
// the file name to save under and the new document.
func (c *Controller) Export(ctx context.Context, p *export.Projector) (string, []byte, error) {
	if c.source == nil {
		return "", nil, ErrNoDocument
	}
	data, err := p.Export(ctx, c.source, c.store.All())
	if err != nil {
		return "", nil, err
	}
	return export.OutputName(c.name), data, nil
}

// Mount subscribes the controller to bus until Unmount.
func (c *Controller) Mount(bus *Bus) {
	c.Unmount()
	c.unmount = append(c.unmount,
		bus.OnKey(func(ev KeyEvent) { c.KeyDown(ev) }),
		bus.OnImage(func(res ImageResult) {
			if res.Cancelled || res.Err != nil {
				c.CancelImage(res.Token)
				return
			}
			if err := c.ResolveImage(res.Token, res.Data, res.MIMEType); err != nil {
				c.log.Warn("image placement failed", observability.Int("token", res.Token), observability.Error("error", err))
				if c.cfg.OnImageError != nil {
					c.cfg.OnImageError(res.Token, err)
				}
			}
		}),
	)
}

func (c *Controller) Unmount() {
	for _, fn := range c.unmount {
		fn()
	}
	c.unmount = nil
}
