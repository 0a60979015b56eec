// Package export projects annotations from render space onto the pages of
// the source PDF through the authoring engine.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/wudi/pdfedit/annotation"
	"github.com/wudi/pdfedit/builder"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/observability"
)

// ErrDecode matches every *DecodeError.
var ErrDecode = errors.New("image cannot be decoded")

// DecodeError reports the image annotation that stopped an export.
type DecodeError struct {
	ID       int
	MIMEType string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("annotation %d: decode %s: %v", e.ID, e.MIMEType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

type Options struct {
	// StrictImageTypes embeds images only with the declared family. By
	// default a payload that fails to decode is retried with the other one.
	StrictImageTypes bool
	Logger           observability.Logger
	Tracer           observability.Tracer
}

type Projector struct {
	engine builder.Engine
	opts   Options
	log    observability.Logger
	tracer observability.Tracer
}

func New(engine builder.Engine, opts Options) *Projector {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	return &Projector{engine: engine, opts: opts, log: observability.OrNop(opts.Logger), tracer: tracer}
}

// OutputName is the file name an export of name is saved under.
func OutputName(name string) string { return "edited_" + filepath.Base(name) }

// Export draws anns, in order, onto the document src and returns the
// serialized result. Any failure returns no bytes at all.
func (p *Projector) Export(ctx context.Context, src []byte, anns []annotation.Annotation) (out []byte, err error) {
	ctx, span := p.tracer.StartSpan(ctx, observability.MetricExportTime)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()
	start := time.Now()
	doc, err := p.engine.Load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	drawn := 0
	for _, a := range anns {
		if a.Page < 1 || a.Page > doc.NumPages() {
			p.log.Warn("annotation page out of range", observability.Int("id", a.ID), observability.Int("page", a.Page))
			continue
		}
		page, err := doc.Page(a.Page - 1)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", a.Page, err)
		}
		if err := p.draw(doc, page, a); err != nil {
			return nil, err
		}
		drawn++
	}
	var buf bytes.Buffer
	if err := doc.Save(ctx, &buf); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	span.SetTag(observability.MetricAnnotationCount, drawn)
	p.log.Info("export finished",
		observability.Int("annotations", drawn),
		observability.Int("bytes", buf.Len()),
		observability.Int64("ms", time.Since(start).Milliseconds()))
	return buf.Bytes(), nil
}

func (p *Projector) draw(doc builder.Document, page builder.PageBuilder, a annotation.Annotation) error {
	_, height := page.Size()
	x, y := a.X, coords.FlipY(height, a.Y)
	switch b := a.Body.(type) {
	case *annotation.Text:
		page.DrawText(b.Content, x, y-b.Size, builder.TextOptions{
			Font:     b.FontFamily,
			FontSize: b.Size,
			Color:    rgb(b.Color),
		})
	case *annotation.Whiteout:
		page.DrawRectangle(x, y-b.Height, b.Width, b.Height, builder.RectOptions{
			Fill:      true,
			FillColor: rgb(annotation.White),
		})
	case *annotation.Shape:
		width := b.StrokeWidth
		if width == 0 {
			width = 1
		}
		page.DrawRectangle(x, y-b.Height, b.Width, b.Height, builder.RectOptions{
			Stroke:      true,
			StrokeColor: rgb(b.Color),
			LineWidth:   width,
			Fill:        b.Fill,
			FillColor:   rgb(b.Color),
		})
	case *annotation.Image:
		img, err := p.embed(doc, a.ID, b)
		if err != nil {
			return err
		}
		page.DrawImage(img, x, y-b.Height, b.Width, b.Height)
	default:
		return fmt.Errorf("annotation %d: unknown kind %q", a.ID, a.Kind())
	}
	return nil
}

// embed picks the decoder from the declared MIME type. PNG is one family;
// everything else is treated as JPEG.
func (p *Projector) embed(doc builder.Document, id int, img *annotation.Image) (*builder.Image, error) {
	declared, other := doc.EmbedJPEG, doc.EmbedPNG
	otherName := "image/png"
	if img.MIMEType == "image/png" {
		declared, other = doc.EmbedPNG, doc.EmbedJPEG
		otherName = "image/jpeg"
	}
	out, err := declared(img.Data)
	if err == nil {
		return out, nil
	}
	if p.opts.StrictImageTypes {
		return nil, &DecodeError{ID: id, MIMEType: img.MIMEType, Err: err}
	}
	out, retryErr := other(img.Data)
	if retryErr != nil {
		return nil, &DecodeError{ID: id, MIMEType: img.MIMEType, Err: errors.Join(err, retryErr)}
	}
	p.log.Warn("image type mislabelled",
		observability.Int("id", id),
		observability.String("declared", img.MIMEType),
		observability.String("decoded_as", otherName))
	return out, nil
}

func rgb(c annotation.Color) builder.Color {
	r, g, b := c.Unit()
	return builder.Color{R: r, G: g, B: b}
}
