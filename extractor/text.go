// Package extractor detects the text runs of a page: what string is shown
// where, at which effective font size, expressed in render space.
package extractor

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/filters"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/parser"
	"golang.org/x/text/unicode/norm"
)

// Run is one detected span of page text in render space (page units, top
// left origin). Y is the top of the run: the baseline minus the font size.
type Run struct {
	Text     string
	X, Y     float64
	Width    float64
	Height   float64
	FontSize float64
	FontName string
}

type Config struct {
	Pipeline *filters.Pipeline
	Logger   observability.Logger
	// JoinGap is the largest horizontal gap, in ems, across which two runs
	// on the same baseline are joined into one. Zero uses 0.1.
	JoinGap float64
}

// Extractor detects text runs in the pages of one document. Fonts are
// decoded once and shared by every page.
type Extractor struct {
	doc   *raw.Document
	cfg   Config
	log   observability.Logger
	fonts map[any]*font
}

func New(doc *raw.Document, cfg Config) *Extractor {
	if cfg.Pipeline == nil {
		cfg.Pipeline = filters.DefaultPipeline()
	}
	if cfg.JoinGap == 0 {
		cfg.JoinGap = 0.1
	}
	return &Extractor{doc: doc, cfg: cfg, log: observability.OrNop(cfg.Logger), fonts: make(map[any]*font)}
}

// DisplayMatrix maps PDF user space of page into render space: the view box
// origin moves to the top-left corner, y points down and /Rotate turns the
// page clockwise.
func DisplayMatrix(page parser.Page) coords.Matrix {
	v := page.View()
	switch page.Rotate {
	case 90:
		return coords.Matrix{0, 1, 1, 0, -v.LLY, -v.LLX}
	case 180:
		return coords.Matrix{-1, 0, 0, 1, v.URX, -v.LLY}
	case 270:
		return coords.Matrix{0, -1, -1, 0, v.URY, v.URX}
	}
	return coords.Matrix{1, 0, 0, -1, -v.LLX, v.URY}
}

// PageRuns traces the content of page and returns its text runs in drawing
// order. A content stream that fails to parse part way yields the runs
// shown before the error.
func (e *Extractor) PageRuns(ctx context.Context, page parser.Page) ([]Run, error) {
	var runs []Run
	err := e.Trace(ctx, page, contentstream.NewTracer(), func(s contentstream.Span) {
		text := norm.NFKC.String(s.Text)
		if strings.TrimSpace(text) == "" {
			return
		}
		size := coords.FontSize(s.Matrix)
		if !(size > 0) || math.IsInf(size, 0) {
			return
		}
		runs = append(runs, Run{
			Text:     text,
			X:        s.Matrix[4],
			Y:        s.Matrix[5] - size,
			Width:    s.Width,
			Height:   size,
			FontSize: size,
			FontName: s.FontName,
		})
	})
	if err != nil {
		return nil, err
	}
	return e.join(runs), nil
}

// Trace runs t over the content of page with the display matrix as the
// initial CTM, so every hook reports render-space geometry.
func (e *Extractor) Trace(ctx context.Context, page parser.Page, t *contentstream.Tracer, emit func(contentstream.Span)) error {
	data, err := parser.Contents(ctx, e.doc, page)
	if err != nil {
		return fmt.Errorf("page contents: %w", err)
	}
	ops, err := contentstream.Parse(data)
	if err != nil {
		e.log.Warn("content stream truncated", observability.String("page", page.Ref.String()), observability.Error("error", err))
	}
	res := &resources{ctx: ctx, e: e, dict: page.Resources}
	if err := t.Trace(ops, res, DisplayMatrix(page), emit); err != nil {
		return fmt.Errorf("trace page: %w", err)
	}
	return nil
}

// Image returns the decoded samples of an image stream.
func (e *Extractor) Image(ctx context.Context, st *raw.StreamObj) ([]byte, error) {
	return e.cfg.Pipeline.DecodeStream(ctx, e.doc, st)
}

// Document returns the document the extractor reads from.
func (e *Extractor) Document() *raw.Document { return e.doc }

// join merges consecutive runs that continue each other on one baseline,
// as produced by writers that place every glyph separately.
func (e *Extractor) join(runs []Run) []Run {
	if len(runs) < 2 {
		return runs
	}
	out := runs[:1]
	for _, r := range runs[1:] {
		last := &out[len(out)-1]
		gap := r.X - (last.X + last.Width)
		if math.Abs(r.FontSize-last.FontSize) < 0.01 &&
			math.Abs(r.Y-last.Y) < 0.01*r.FontSize &&
			gap > -0.01*r.FontSize && gap < e.cfg.JoinGap*r.FontSize {
			last.Text += r.Text
			last.Width = r.X + r.Width - last.X
			continue
		}
		out = append(out, r)
	}
	return out
}

// resources resolves fonts and form XObjects of one resource dictionary.
type resources struct {
	ctx  context.Context
	e    *Extractor
	dict *raw.DictObj
}

func (r *resources) Font(name string) contentstream.Font {
	doc := r.e.doc
	fonts := doc.ResolveDict(dictValue(r.dict, "Font"))
	obj := dictValue(fonts, name)
	fd := doc.ResolveDict(obj)
	if fd == nil {
		return nil
	}
	var key any = fd
	if ref, ok := obj.(raw.RefObj); ok {
		key = ref.R
	}
	if f, ok := r.e.fonts[key]; ok {
		return f
	}
	f := r.e.loadFont(r.ctx, fd)
	r.e.fonts[key] = f
	return f
}

func (r *resources) Image(name string) (*raw.StreamObj, bool) {
	doc := r.e.doc
	xobjects := doc.ResolveDict(dictValue(r.dict, "XObject"))
	st, ok := doc.Resolve(dictValue(xobjects, name)).(*raw.StreamObj)
	if !ok {
		return nil, false
	}
	if sub, _ := raw.DictName(st.Dict, "Subtype"); sub != "Image" {
		return nil, false
	}
	return st, true
}

func (r *resources) Form(name string) (*contentstream.Form, bool) {
	doc := r.e.doc
	xobjects := doc.ResolveDict(dictValue(r.dict, "XObject"))
	st, ok := doc.Resolve(dictValue(xobjects, name)).(*raw.StreamObj)
	if !ok {
		return nil, false
	}
	if sub, _ := raw.DictName(st.Dict, "Subtype"); sub != "Form" {
		return nil, false
	}
	data, err := r.e.cfg.Pipeline.DecodeStream(r.ctx, doc, st)
	if err != nil {
		r.e.log.Warn("decode form failed", observability.String("name", name), observability.Error("error", err))
		return nil, false
	}
	ops, _ := contentstream.Parse(data)
	m := coords.Identity()
	if vals, ok := raw.Floats(doc.ResolveArray(dictValue(st.Dict, "Matrix"))); ok && len(vals) == 6 {
		copy(m[:], vals)
	}
	sub := &resources{ctx: r.ctx, e: r.e, dict: r.dict}
	if d := doc.ResolveDict(dictValue(st.Dict, "Resources")); d != nil {
		sub.dict = d
	}
	return &contentstream.Form{Ops: ops, Matrix: m, Resources: sub}, true
}
