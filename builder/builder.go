// Package builder is the authoring engine: it loads an existing PDF,
// overlays new drawing on its pages and saves the result through the
// incremental writer. Coordinates are PDF user space relative to the
// lower-left corner of each page's visible box.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/parser"
	"github.com/wudi/pdfedit/writer"
	"golang.org/x/text/encoding/charmap"
)

// ErrPageRange is returned by Page for an index outside the document.
var ErrPageRange = errors.New("page index out of range")

// Engine opens documents for editing.
type Engine interface {
	Load(ctx context.Context, data []byte) (Document, error)
}

// Document is a loaded PDF that accepts new drawing.
type Document interface {
	NumPages() int
	// Page returns the zero-based page i.
	Page(i int) (PageBuilder, error)
	AddPage(width, height float64) PageBuilder
	EmbedPNG(data []byte) (*Image, error)
	EmbedJPEG(data []byte) (*Image, error)
	Save(ctx context.Context, w io.Writer) error
}

// PageBuilder provides a fluent API for drawing on one page.
type PageBuilder interface {
	Size() (width, height float64)
	DrawText(text string, x, y float64, opts TextOptions) PageBuilder
	DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder
	DrawImage(img *Image, x, y, width, height float64) PageBuilder
}

// Color is an RGB colour with components in [0, 1].
type Color struct {
	R, G, B float64
}

// TextOptions configures text drawing. Font names one of the standard
// Helvetica, Times or Courier faces; anything else falls back to
// Helvetica.
type TextOptions struct {
	Font     string
	FontSize float64
	Color    Color
}

// PathOptions configures path drawing.
type PathOptions struct {
	StrokeColor Color
	FillColor   Color
	LineWidth   float64
	Fill        bool
	Stroke      bool
}

// RectOptions configures rectangle drawing (defaults to stroke if neither fill nor stroke is set).
type RectOptions = PathOptions

type Config struct {
	Parser parser.Config
	Writer writer.Config
	Logger observability.Logger
}

type engine struct {
	cfg Config
	log observability.Logger
}

func New(cfg Config) Engine {
	log := observability.OrNop(cfg.Logger)
	if cfg.Parser.Logger == nil {
		cfg.Parser.Logger = log
	}
	if cfg.Writer.Logger == nil {
		cfg.Writer.Logger = log
	}
	return &engine{cfg: cfg, log: log}
}

func (e *engine) Load(ctx context.Context, data []byte) (Document, error) {
	doc, err := parser.NewDocumentParser(e.cfg.Parser).Parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	pages, err := parser.Pages(doc)
	if err != nil {
		return nil, fmt.Errorf("collect pages: %w", err)
	}
	d := &document{
		cfg:     e.cfg,
		log:     e.log,
		base:    data,
		raw:     doc,
		next:    doc.MaxObjectNumber() + 1,
		changed: make(map[raw.ObjectRef]raw.Object),
		fonts:   make(map[string]raw.ObjectRef),
	}
	for _, p := range pages {
		d.pages = append(d.pages, &page{doc: d, ref: p.Ref, box: p.View(), resources: p.Resources})
	}
	return d, nil
}

type document struct {
	cfg     Config
	log     observability.Logger
	base    []byte
	raw     *raw.Document
	pages   []*page
	next    int
	changed map[raw.ObjectRef]raw.Object
	fonts   map[string]raw.ObjectRef
}

func (d *document) NumPages() int { return len(d.pages) }

func (d *document) Page(i int) (PageBuilder, error) {
	if i < 0 || i >= len(d.pages) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageRange, i, len(d.pages))
	}
	return d.pages[i], nil
}

func (d *document) alloc() raw.ObjectRef {
	ref := raw.ObjectRef{Num: d.next}
	d.next++
	return ref
}

// object returns the current version of ref, including unsaved changes.
func (d *document) object(ref raw.ObjectRef) raw.Object {
	if obj, ok := d.changed[ref]; ok {
		return obj
	}
	return d.raw.Objects[ref]
}

func (d *document) AddPage(width, height float64) PageBuilder {
	root := d.raw.ResolveDict(dictValue(d.raw.Trailer, "Root"))
	pagesRef, _ := dictValue(root, "Pages").(raw.RefObj)
	tree, _ := d.object(pagesRef.R).(*raw.DictObj)
	tree = tree.Clone()
	ref := d.alloc()
	kids := raw.NewArray()
	if old := d.raw.ResolveArray(dictValue(tree, "Kids")); old != nil {
		kids.Items = append(kids.Items, old.Items...)
	}
	kids.Append(raw.Ref(ref.Num, ref.Gen))
	tree.Set("Kids", kids)
	count, _ := raw.DictInt(tree, "Count")
	tree.Set("Count", raw.NumberInt(int64(count+1)))
	d.changed[pagesRef.R] = tree

	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("Page"))
	dict.Set("Parent", raw.Ref(pagesRef.R.Num, pagesRef.R.Gen))
	dict.Set("MediaBox", raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), contentstream.Num(width), contentstream.Num(height)))
	d.changed[ref] = dict
	p := &page{doc: d, ref: ref, box: parser.Box{URX: width, URY: height}, created: true}
	d.pages = append(d.pages, p)
	return p
}

// font returns the shared font object for a standard face.
func (d *document) font(base string) raw.ObjectRef {
	if ref, ok := d.fonts[base]; ok {
		return ref
	}
	ref := d.alloc()
	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("Font"))
	dict.Set("Subtype", raw.NameLiteral("Type1"))
	dict.Set("BaseFont", raw.NameLiteral(base))
	dict.Set("Encoding", raw.NameLiteral("WinAnsiEncoding"))
	d.changed[ref] = dict
	d.fonts[base] = ref
	return ref
}

func (d *document) Save(ctx context.Context, w io.Writer) error {
	for _, p := range d.pages {
		if err := p.flush(); err != nil {
			return err
		}
	}
	return writer.New(d.cfg.Writer).Write(ctx, w, d.base, d.raw, d.changed)
}

type page struct {
	doc       *document
	ref       raw.ObjectRef
	box       parser.Box
	resources *raw.DictObj // effective resources as parsed
	created   bool

	res     *raw.DictObj // direct copy written back into the page
	names   map[raw.ObjectRef]string
	ops     []contentstream.Operation
	overlay raw.ObjectRef
}

func (p *page) Size() (float64, float64) { return p.box.Width(), p.box.Height() }

// resourceName registers ref under category (Font or XObject) and returns
// its name, picking one the page does not use yet.
func (p *page) resourceName(category, prefix string, ref raw.ObjectRef) string {
	if name, ok := p.names[ref]; ok {
		return name
	}
	if p.res == nil {
		p.res = p.resources.Clone()
		p.names = make(map[raw.ObjectRef]string)
	}
	sub := p.doc.raw.ResolveDict(dictValue(p.res, category)).Clone()
	name := ""
	for i := 1; ; i++ {
		name = fmt.Sprintf("%s%d", prefix, i)
		if _, taken := sub.Get(name); !taken {
			break
		}
	}
	sub.Set(name, raw.Ref(ref.Num, ref.Gen))
	p.res.Set(category, sub)
	p.names[ref] = name
	return name
}

func (p *page) DrawText(text string, x, y float64, opts TextOptions) PageBuilder {
	size := opts.FontSize
	if size <= 0 {
		size = 12
	}
	name := p.resourceName("Font", "EF", p.doc.font(standardFont(opts.Font)))
	lines := strings.Split(text, "\n")
	ops := []contentstream.Operation{
		contentstream.Op("BT"),
		contentstream.Op("Tf", raw.NameLiteral(name), contentstream.Num(size)),
		contentstream.Op("TL", contentstream.Num(size*1.2)),
		colorOp("rg", opts.Color),
		contentstream.Op("Tm", raw.NumberInt(1), raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(1), contentstream.Num(x), contentstream.Num(y)),
	}
	for i, line := range lines {
		if i > 0 {
			ops = append(ops, contentstream.Op("T*"))
		}
		ops = append(ops, contentstream.Op("Tj", raw.Str(p.encode(line))))
	}
	ops = append(ops, contentstream.Op("ET"))
	p.ops = append(p.ops, ops...)
	return p
}

// encode maps text to WinAnsi bytes. Characters outside the code page
// become '?'.
func (p *page) encode(s string) []byte {
	out := make([]byte, 0, len(s))
	missing := 0
	for _, r := range s {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
			missing++
		}
		out = append(out, b)
	}
	if missing > 0 {
		p.doc.log.Warn("characters not encodable in WinAnsi", observability.Int("count", missing))
	}
	return out
}

func (p *page) DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder {
	if !opts.Stroke && !opts.Fill {
		opts.Stroke = true
	}
	ops := []contentstream.Operation{contentstream.Op("q")}
	if opts.Fill {
		ops = append(ops, colorOp("rg", opts.FillColor))
	}
	if opts.Stroke {
		ops = append(ops, colorOp("RG", opts.StrokeColor))
		if opts.LineWidth > 0 {
			ops = append(ops, contentstream.Op("w", contentstream.Num(opts.LineWidth)))
		}
	}
	ops = append(ops,
		contentstream.Op("re", contentstream.Num(x), contentstream.Num(y), contentstream.Num(width), contentstream.Num(height)),
		contentstream.Op(paintOperator(opts.Fill, opts.Stroke)),
		contentstream.Op("Q"),
	)
	p.ops = append(p.ops, ops...)
	return p
}

func (p *page) DrawImage(img *Image, x, y, width, height float64) PageBuilder {
	if img == nil {
		return p
	}
	if width == 0 {
		width = float64(img.Width)
	}
	if height == 0 {
		height = float64(img.Height)
	}
	name := p.resourceName("XObject", "EIm", img.ref)
	p.ops = append(p.ops,
		contentstream.Op("q"),
		contentstream.Op("cm", contentstream.Num(width), raw.NumberInt(0), raw.NumberInt(0), contentstream.Num(height), contentstream.Num(x), contentstream.Num(y)),
		contentstream.Op("Do", raw.NameLiteral(name)),
		contentstream.Op("Q"),
	)
	return p
}

// flush stores the page dictionary and its overlay stream. Existing
// content is bracketed by q/Q so state it leaves behind cannot move the
// overlay.
func (p *page) flush() error {
	if len(p.ops) == 0 {
		return nil
	}
	d := p.doc
	dict, ok := d.object(p.ref).(*raw.DictObj)
	if !ok {
		return fmt.Errorf("page object %d is not a dictionary", p.ref.Num)
	}
	dict = dict.Clone()
	if p.res != nil {
		dict.Set("Resources", p.res)
	}
	body := p.ops
	if p.box.LLX != 0 || p.box.LLY != 0 {
		body = append([]contentstream.Operation{
			contentstream.Op("cm", raw.NumberInt(1), raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(1), contentstream.Num(p.box.LLX), contentstream.Num(p.box.LLY)),
		}, body...)
	}
	data := contentstream.Serialize(contentstream.Wrap(body))
	if p.overlay.Num == 0 {
		p.overlay = d.alloc()
		if p.created {
			dict.Set("Contents", raw.Ref(p.overlay.Num, p.overlay.Gen))
		} else {
			open := d.alloc()
			d.changed[open] = raw.NewStream(raw.Dict(), []byte("q\n"))
			contents := raw.NewArray(raw.Ref(open.Num, open.Gen))
			contents.Items = append(contents.Items, existingContents(d.raw, dictValue(dict, "Contents"))...)
			contents.Append(raw.Ref(p.overlay.Num, p.overlay.Gen))
			dict.Set("Contents", contents)
		}
	}
	if !p.created {
		data = append([]byte("Q\n"), data...)
	}
	d.changed[p.overlay] = raw.NewStream(raw.Dict(), data)
	d.changed[p.ref] = dict
	return nil
}

func existingContents(doc *raw.Document, obj raw.Object) []raw.Object {
	if ref, ok := obj.(raw.RefObj); ok {
		if _, isStream := doc.Resolve(ref).(*raw.StreamObj); isStream {
			return []raw.Object{ref}
		}
	}
	if arr := doc.ResolveArray(obj); arr != nil {
		return append([]raw.Object(nil), arr.Items...)
	}
	return nil
}

func colorOp(op string, c Color) contentstream.Operation {
	return contentstream.Op(op, contentstream.Num(c.R), contentstream.Num(c.G), contentstream.Num(c.B))
}

func paintOperator(fill, stroke bool) string {
	switch {
	case fill && stroke:
		return "B"
	case fill:
		return "f"
	default:
		return "S"
	}
}

// standardFont maps a family name onto a standard 14 face with a Latin
// character set.
func standardFont(family string) string {
	f := strings.ToLower(strings.ReplaceAll(family, " ", ""))
	switch {
	case strings.HasPrefix(f, "times"):
		return "Times-Roman"
	case strings.HasPrefix(f, "courier"):
		return "Courier"
	case f == "helvetica-bold":
		return "Helvetica-Bold"
	}
	return "Helvetica"
}

func dictValue(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}
