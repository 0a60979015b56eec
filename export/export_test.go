package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wudi/pdfedit/annotation"
	"github.com/wudi/pdfedit/builder"
	"github.com/wudi/pdfedit/extractor"
	"github.com/wudi/pdfedit/internal/pdftest"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/parser"
)

// recorder is an authoring engine that logs draw calls.
type recorder struct {
	pages   int
	height  float64
	calls   []string
	pngErr  error
	jpegErr error
	saved   bool
}

func (r *recorder) Load(context.Context, []byte) (builder.Document, error) { return r, nil }
func (r *recorder) NumPages() int                                        { return r.pages }
func (r *recorder) Page(i int) (builder.PageBuilder, error)              { return r, nil }
func (r *recorder) AddPage(w, h float64) builder.PageBuilder             { return r }
func (r *recorder) Size() (float64, float64)                             { return 600, r.height }

func (r *recorder) EmbedPNG([]byte) (*builder.Image, error) {
	r.calls = append(r.calls, "embed png")
	if r.pngErr != nil {
		return nil, r.pngErr
	}
	return &builder.Image{Width: 1, Height: 1}, nil
}

func (r *recorder) EmbedJPEG([]byte) (*builder.Image, error) {
	r.calls = append(r.calls, "embed jpeg")
	if r.jpegErr != nil {
		return nil, r.jpegErr
	}
	return &builder.Image{Width: 1, Height: 1}, nil
}

func (r *recorder) Save(_ context.Context, w io.Writer) error {
	r.saved = true
	_, err := w.Write([]byte("%PDF"))
	return err
}

func (r *recorder) DrawText(text string, x, y float64, opts builder.TextOptions) builder.PageBuilder {
	r.calls = append(r.calls, fmt.Sprintf("text %q at (%g, %g) size %g", text, x, y, opts.FontSize))
	return r
}

func (r *recorder) DrawRectangle(x, y, w, h float64, opts builder.RectOptions) builder.PageBuilder {
	r.calls = append(r.calls, fmt.Sprintf("rect (%g, %g) %gx%g fill=%v stroke=%v width=%g", x, y, w, h, opts.Fill, opts.Stroke, opts.LineWidth))
	return r
}

func (r *recorder) DrawImage(img *builder.Image, x, y, w, h float64) builder.PageBuilder {
	r.calls = append(r.calls, fmt.Sprintf("image (%g, %g) %gx%g", x, y, w, h))
	return r
}

func TestExportProjectsIntoDocumentSpace(t *testing.T) {
	r := &recorder{pages: 2, height: 800}
	anns := []annotation.Annotation{
		{ID: 1, Page: 1, X: 100, Y: 50, Body: &annotation.Text{Content: "X", Size: 20}},
		{ID: 2, Page: 1, X: 8, Y: 18, Body: &annotation.Whiteout{Width: 54, Height: 16}},
		{ID: 3, Page: 2, X: 0, Y: 0, Body: &annotation.Shape{Width: 100, Height: 100, StrokeWidth: 0}},
		{ID: 4, Page: 2, X: 1, Y: 2, Body: &annotation.Shape{Width: 10, Height: 10, Fill: true, StrokeWidth: 3}},
		{ID: 5, Page: 2, X: 10, Y: 10, Body: &annotation.Image{Width: 150, Height: 75, MIMEType: "image/png"}},
		{ID: 6, Page: 3, X: 0, Y: 0, Body: &annotation.Whiteout{Width: 1, Height: 1}},
	}
	rec := observability.NewRecorder()
	out, err := New(r, Options{Logger: rec}).Export(context.Background(), nil, anns)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	want := []string{
		`text "X" at (100, 730) size 20`,
		"rect (8, 766) 54x16 fill=true stroke=false width=0",
		"rect (0, 700) 100x100 fill=false stroke=true width=1",
		"rect (1, 788) 10x10 fill=true stroke=true width=3",
		"embed png",
		"image (10, 715) 150x75",
	}
	if diff := cmp.Diff(want, r.calls); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}
	if string(out) != "%PDF" || !r.saved {
		t.Fatalf("document not saved")
	}
	if rec.Count("warn") != 1 {
		t.Fatalf("out-of-range page should warn once, got %d", rec.Count("warn"))
	}
}

func TestExportImageFallback(t *testing.T) {
	r := &recorder{pages: 1, height: 100, pngErr: errors.New("bad png")}
	anns := []annotation.Annotation{{ID: 1, Page: 1, Body: &annotation.Image{Width: 1, Height: 1, MIMEType: "image/png"}}}
	if _, err := New(r, Options{}).Export(context.Background(), nil, anns); err != nil {
		t.Fatalf("export: %v", err)
	}
	if diff := cmp.Diff([]string{"embed png", "embed jpeg", "image (0, 99) 1x1"}, r.calls); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}
}

func TestExportDecodeFailureProducesNothing(t *testing.T) {
	cases := []struct {
		name   string
		r      *recorder
		strict bool
	}{
		{"both families fail", &recorder{pages: 1, height: 100, pngErr: errors.New("png"), jpegErr: errors.New("jpeg")}, false},
		{"strict", &recorder{pages: 1, height: 100, jpegErr: errors.New("jpeg")}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			anns := []annotation.Annotation{
				{ID: 1, Page: 1, Body: &annotation.Whiteout{Width: 5, Height: 5}},
				{ID: 9, Page: 1, Body: &annotation.Image{Width: 1, Height: 1, MIMEType: "image/jpeg"}},
			}
			out, err := New(tc.r, Options{StrictImageTypes: tc.strict}).Export(context.Background(), nil, anns)
			if !errors.Is(err, ErrDecode) || out != nil || tc.r.saved {
				t.Fatalf("out=%q err=%v saved=%v", out, err, tc.r.saved)
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.ID != 9 {
				t.Fatalf("decode error = %#v", err)
			}
			if tc.strict && len(tc.r.calls) != 2 {
				t.Fatalf("strict mode retried: %v", tc.r.calls)
			}
		})
	}
}

func TestExportWithBuilder(t *testing.T) {
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	src := pdftest.TextPage("Invoice", 12, 72, 700)
	anns := []annotation.Annotation{
		{ID: 1, Page: 1, X: 70, Y: 78, Body: &annotation.Whiteout{Width: 42, Height: 16}},
		{ID: 2, Page: 1, X: 72, Y: 80, Body: &annotation.Text{Content: "Receipt", Size: 12, Color: annotation.Black, FontFamily: "Helvetica"}},
		// mislabelled: JPEG bytes declared as PNG
		{ID: 3, Page: 1, X: 300, Y: 300, Body: &annotation.Image{Width: 150, Height: 150, Data: jpg.Bytes(), MIMEType: "image/png"}},
		{ID: 4, Page: 1, X: 10, Y: 10, Body: &annotation.Image{Width: 20, Height: 20, Data: pngBuf.Bytes(), MIMEType: "image/png", Signature: true}},
	}
	out, err := New(builder.New(builder.Config{}), Options{}).Export(context.Background(), src, anns)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	ctx := context.Background()
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(ctx, out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	pages, _ := parser.Pages(doc)
	runs, err := extractor.New(doc, extractor.Config{}).PageRuns(ctx, pages[0])
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 || runs[1].Text != "Receipt" || runs[1].X != 72 || runs[1].Y != 80 {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestOutputName(t *testing.T) {
	if got := OutputName("/tmp/in/report.pdf"); got != "edited_report.pdf" {
		t.Fatalf("OutputName = %q", got)
	}
}
