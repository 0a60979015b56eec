package render

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/wudi/pdfedit/internal/pdftest"
	"github.com/wudi/pdfedit/ocr"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/pagecache"
)

type fakeOCR struct {
	res   ocr.Result
	err   error
	calls int
	got   ocr.Input
}

func (f *fakeOCR) Name() string { return "fake" }

func (f *fakeOCR) Recognize(_ context.Context, in ocr.Input) (ocr.Result, error) {
	f.calls++
	f.got = in
	return f.res, f.err
}

func TestRenderTextPages(t *testing.T) {
	data := pdftest.Document(
		pdftest.Page{Width: 612, Height: 792, Content: "BT /F1 12 Tf 72 700 Td (Invoice) Tj ET"},
		pdftest.Page{Width: 300, Height: 200, Content: "BT /F1 10 Tf 10 10 Td (Total) Tj ET"},
	)
	o := &fakeOCR{}
	pages, err := New(Config{OCR: o}).Render(context.Background(), data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d", len(pages))
	}
	if p := pages[1]; p.Number != 2 || p.Width != 300 || p.Height != 200 || p.BitmapScale != 2 {
		t.Fatalf("page 2 = %+v", p)
	}
	want := []pagecache.TextRun{{Text: "Invoice", X: 72, Y: 80, Width: 38.016, Height: 12, FontSize: 12}}
	if diff := cmp.Diff(want, pages[0].TextRuns, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Fatalf("runs (-want +got):\n%s", diff)
	}
	if len(pages[0].Bitmap) == 0 || !strings.HasPrefix(pages[0].DataURL(), "data:image/png;base64,") {
		t.Fatalf("missing bitmap")
	}
	if o.calls != 0 {
		t.Fatalf("ocr ran on pages with text: %d calls", o.calls)
	}
}

func TestRenderFallsBackToOCR(t *testing.T) {
	data := pdftest.Document(pdftest.Page{Width: 100, Height: 100, Content: "0 0 1 rg 0 0 10 10 re f"})
	o := &fakeOCR{res: ocr.Result{Lines: []ocr.TextLine{
		{Text: "Scanned", Bounds: ocr.Region{X: 20, Y: 40, Width: 100, Height: 24}},
		{Text: ""},
	}}}
	pages, err := New(Config{OCR: o, OCRLanguages: []string{"eng"}}).Render(context.Background(), data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := []pagecache.TextRun{{Text: "Scanned", X: 10, Y: 20, Width: 50, Height: 12, FontSize: 12}}
	if diff := cmp.Diff(want, pages[0].TextRuns); diff != "" {
		t.Fatalf("runs (-want +got):\n%s", diff)
	}
	if o.got.ID != "page-0" || o.got.DPI != 144 || len(o.got.Languages) != 1 {
		t.Fatalf("ocr input = %+v", o.got)
	}
}

func TestRenderOCRFailureIsLogged(t *testing.T) {
	rec := observability.NewRecorder()
	data := pdftest.Document(pdftest.Page{Width: 100, Height: 100})
	pages, err := New(Config{OCR: &fakeOCR{err: errors.New("no tessdata")}, Logger: rec}).Render(context.Background(), data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(pages) != 1 || len(pages[0].TextRuns) != 0 {
		t.Fatalf("pages = %+v", pages)
	}
	if rec.Count("warn") != 1 {
		t.Fatalf("warnings = %d", rec.Count("warn"))
	}
}

func TestRenderPagesStopsOnCallbackError(t *testing.T) {
	data := pdftest.Document(pdftest.Page{Width: 10, Height: 10}, pdftest.Page{Width: 10, Height: 10})
	stop := errors.New("stop")
	n := 0
	err := New(Config{}).RenderPages(context.Background(), data, func(pagecache.Page) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err = %v after %d pages", err, n)
	}
}

func TestRenderRejectsGarbage(t *testing.T) {
	if _, err := New(Config{}).Render(context.Background(), []byte("not a pdf")); err == nil {
		t.Fatalf("garbage rendered")
	}
}

func TestRenderFeedsPageCache(t *testing.T) {
	c := pagecache.New(pagecache.Config{})
	data := pdftest.TextPage("Due", 10, 50, 50)
	if err := c.Load(context.Background(), New(Config{}), data); err != nil {
		t.Fatalf("load: %v", err)
	}
	run, idx, ok := c.TextRunAt(1, 55, 738)
	if !ok || idx != 0 || run.Text != "Due" {
		t.Fatalf("hit = %+v %d %v", run, idx, ok)
	}
}

func TestRenderPreviewShowsText(t *testing.T) {
	pages, err := New(Config{Scale: 1}).Render(context.Background(), pdftest.TextPage("Invoice", 24, 72, 700))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(pages[0].Bitmap))
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	dark := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r < 0x4000 && g < 0x4000 && bl < 0x4000 {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Fatalf("preview has no text ink")
	}
}
