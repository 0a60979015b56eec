// Package render is the rendering engine behind the page cache. It parses
// a PDF, rasterizes a draft preview of every page and detects the page's
// text runs, falling back to OCR when a page carries no text layer.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"time"

	"github.com/wudi/pdfedit/extractor"
	"github.com/wudi/pdfedit/ocr"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/pagecache"
	"github.com/wudi/pdfedit/parser"
	"github.com/wudi/pdfedit/raster"
)

// Engine renders every page of a document, in page order.
type Engine interface {
	Render(ctx context.Context, data []byte) ([]pagecache.Page, error)
	RenderPages(ctx context.Context, data []byte, fn func(pagecache.Page) error) error
}

type Config struct {
	// Scale is the preview resolution in pixels per page unit. Zero uses
	// raster.DefaultScale.
	Scale  float64
	Parser parser.Config
	// OCR, when set, detects runs on pages without extractable text.
	OCR          ocr.Engine
	OCRLanguages []string
	Logger       observability.Logger
	Tracer       observability.Tracer
}

type engine struct {
	cfg    Config
	raster *raster.Rasterizer
	log    observability.Logger
	tracer observability.Tracer
}

var _ pagecache.Renderer = (*engine)(nil)

func New(cfg Config) Engine {
	log := observability.OrNop(cfg.Logger)
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	r := raster.New(raster.Config{Scale: cfg.Scale, Logger: log})
	cfg.Scale = r.Scale()
	return &engine{cfg: cfg, raster: r, log: log, tracer: tracer}
}

func (e *engine) Render(ctx context.Context, data []byte) ([]pagecache.Page, error) {
	var pages []pagecache.Page
	err := e.RenderPages(ctx, data, func(p pagecache.Page) error {
		pages = append(pages, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}

func (e *engine) RenderPages(ctx context.Context, data []byte, fn func(pagecache.Page) error) (err error) {
	ctx, span := e.tracer.StartSpan(ctx, observability.MetricRenderTime)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()
	start := time.Now()
	doc, err := parser.NewDocumentParser(e.cfg.Parser).Parse(ctx, data)
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	span.SetTag(observability.MetricParseTime, time.Since(start).Milliseconds())
	pages, err := parser.Pages(doc)
	if err != nil {
		return fmt.Errorf("collect pages: %w", err)
	}
	span.SetTag(observability.MetricPageCount, len(pages))
	ex := extractor.New(doc, extractor.Config{Logger: e.log})
	runs := 0
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := e.page(ctx, ex, page, i)
		if err != nil {
			return fmt.Errorf("render page %d: %w", i+1, err)
		}
		runs += len(rec.TextRuns)
		if err := fn(rec); err != nil {
			return err
		}
	}
	span.SetTag(observability.MetricTextRunCount, runs)
	e.log.Info("document rendered",
		observability.Int("pages", len(pages)),
		observability.Int("runs", runs),
		observability.Int64("ms", time.Since(start).Milliseconds()))
	return nil
}

func (e *engine) page(ctx context.Context, ex *extractor.Extractor, page parser.Page, index int) (pagecache.Page, error) {
	w, h := page.Size()
	rec := pagecache.Page{Number: index + 1, Width: w, Height: h, BitmapScale: e.raster.Scale()}
	img, err := e.raster.Page(ctx, ex, page)
	if err != nil {
		return rec, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return rec, fmt.Errorf("encode preview: %w", err)
	}
	rec.Bitmap = buf.Bytes()

	runs, err := ex.PageRuns(ctx, page)
	if err != nil {
		return rec, err
	}
	for _, r := range runs {
		rec.TextRuns = append(rec.TextRuns, pagecache.TextRun{
			Text: r.Text, X: r.X, Y: r.Y, Width: r.Width, Height: r.Height, FontSize: r.FontSize,
		})
	}
	if len(rec.TextRuns) == 0 && e.cfg.OCR != nil {
		rec.TextRuns = e.recognize(ctx, rec, index)
	}
	return rec, nil
}

// recognize runs OCR over the preview bitmap. Each recognized line becomes
// one run; its height stands in for the font size. Failures are logged and
// leave the page without runs.
func (e *engine) recognize(ctx context.Context, rec pagecache.Page, index int) []pagecache.TextRun {
	ctx, span := e.tracer.StartSpan(ctx, observability.MetricOCRTime)
	defer span.Finish()
	in := ocr.PageInput(index, rec.Bitmap,
		ocr.WithLanguages(e.cfg.OCRLanguages...),
		ocr.WithDPI(int(72*rec.BitmapScale)))
	res, err := e.cfg.OCR.Recognize(ctx, in)
	if err != nil {
		span.SetError(err)
		e.log.Warn("ocr failed", observability.Int("page", rec.Number), observability.String("engine", e.cfg.OCR.Name()), observability.Error("error", err))
		return nil
	}
	var runs []pagecache.TextRun
	for _, line := range res.Lines {
		if line.Text == "" {
			continue
		}
		b := line.Bounds.Scale(rec.BitmapScale)
		runs = append(runs, pagecache.TextRun{Text: line.Text, X: b.X, Y: b.Y, Width: b.Width, Height: b.Height, FontSize: b.Height})
	}
	e.log.Debug("ocr runs", observability.Int("page", rec.Number), observability.Int("runs", len(runs)))
	return runs
}
