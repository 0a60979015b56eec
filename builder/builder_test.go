package builder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/extractor"
	"github.com/wudi/pdfedit/internal/pdftest"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/parser"
)

func load(t *testing.T, data []byte) Document {
	t.Helper()
	doc, err := New(Config{}).Load(context.Background(), data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return doc
}

func saveAndParse(t *testing.T, doc Document) (*raw.Document, []parser.Page) {
	t.Helper()
	var buf bytes.Buffer
	if err := doc.Save(context.Background(), &buf); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	pages, err := parser.Pages(out)
	if err != nil {
		t.Fatalf("pages: %v", err)
	}
	return out, pages
}

func runs(t *testing.T, doc *raw.Document, page parser.Page) []extractor.Run {
	t.Helper()
	rs, err := extractor.New(doc, extractor.Config{}).PageRuns(context.Background(), page)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	return rs
}

func TestDrawTextRoundTrip(t *testing.T) {
	doc := load(t, pdftest.TextPage("Invoice", 12, 72, 700))
	if doc.NumPages() != 1 {
		t.Fatalf("pages = %d", doc.NumPages())
	}
	p, err := doc.Page(0)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if w, h := p.Size(); w != 612 || h != 792 {
		t.Fatalf("size = %vx%v", w, h)
	}
	p.DrawText("Café", 100, 730, TextOptions{Font: "Helvetica", FontSize: 16, Color: Color{R: 1}})

	out, pages := saveAndParse(t, doc)
	got := runs(t, out, pages[0])
	if len(got) != 2 || got[0].Text != "Invoice" || got[1].Text != "Café" {
		t.Fatalf("runs = %+v", got)
	}
	if r := got[1]; r.X != 100 || r.Y != 792-730-16 || r.FontSize != 16 {
		t.Fatalf("new run = %+v", r)
	}
}

func TestOverlayIsIsolatedFromPageState(t *testing.T) {
	// the page leaves a scaled CTM behind without restoring it
	doc := load(t, pdftest.Document(pdftest.Page{Width: 200, Height: 200, Content: "2 0 0 2 0 0 cm"}))
	p, _ := doc.Page(0)
	p.DrawText("x", 10, 10, TextOptions{FontSize: 10})
	out, pages := saveAndParse(t, doc)
	got := runs(t, out, pages[0])
	if len(got) != 1 || got[0].X != 10 || got[0].FontSize != 10 {
		t.Fatalf("runs = %+v", got)
	}
}

func TestDrawRespectsBoxOrigin(t *testing.T) {
	data := pdftest.Build(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [50 100 250 300] >>",
	)
	doc := load(t, data)
	p, _ := doc.Page(0)
	if w, h := p.Size(); w != 200 || h != 200 {
		t.Fatalf("size = %vx%v", w, h)
	}
	p.DrawText("o", 0, 0, TextOptions{FontSize: 10})
	out, pages := saveAndParse(t, doc)
	got := runs(t, out, pages[0])
	// user (50, 100) is the bottom-left corner; the run top sits 10 above it
	if len(got) != 1 || got[0].X != 0 || got[0].Y != 190 {
		t.Fatalf("runs = %+v", got)
	}
}

func TestDrawRectangleOperators(t *testing.T) {
	doc := load(t, pdftest.Document(pdftest.Page{Width: 100, Height: 100}))
	p, _ := doc.Page(0)
	p.DrawRectangle(1, 2, 3, 4, RectOptions{Fill: true, FillColor: Color{R: 1, G: 1, B: 1}})
	p.DrawRectangle(5, 6, 7, 8, RectOptions{StrokeColor: Color{B: 1}, LineWidth: 2})
	out, pages := saveAndParse(t, doc)
	content, err := parser.Contents(context.Background(), out, pages[0])
	if err != nil {
		t.Fatalf("contents: %v", err)
	}
	ops, _ := contentstream.Parse(content)
	var seq []string
	for _, op := range ops {
		seq = append(seq, op.Operator)
	}
	want := "q Q q q rg re f Q q RG w re S Q Q"
	if got := strings.Join(seq, " "); got != want {
		t.Fatalf("operators = %q, want %q", got, want)
	}
}

func TestEmbedPNGWithAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 128})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	doc := load(t, pdftest.Document(pdftest.Page{Width: 100, Height: 100}))
	im, err := doc.EmbedPNG(buf.Bytes())
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if im.Width != 3 || im.Height != 2 {
		t.Fatalf("dims = %dx%d", im.Width, im.Height)
	}
	p, _ := doc.Page(0)
	p.DrawImage(im, 10, 10, 30, 20)
	out, pages := saveAndParse(t, doc)
	xobjects := out.ResolveDict(dictValue(pages[0].Resources, "XObject"))
	st, ok := out.Resolve(dictValue(xobjects, "EIm1")).(*raw.StreamObj)
	if !ok {
		t.Fatalf("image not registered: %v", xobjects)
	}
	if _, ok := st.Dict.Get("SMask"); !ok {
		t.Fatalf("soft mask missing")
	}
}

func TestEmbedJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 4)), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	doc := load(t, pdftest.Document(pdftest.Page{Width: 100, Height: 100}))
	im, err := doc.EmbedJPEG(buf.Bytes())
	if err != nil || im.Width != 8 || im.Height != 4 {
		t.Fatalf("embed: %+v %v", im, err)
	}
	if _, err := doc.EmbedJPEG([]byte("not a jpeg")); err == nil {
		t.Fatalf("garbage embedded")
	}
	if _, err := doc.EmbedPNG(buf.Bytes()); err == nil {
		t.Fatalf("jpeg accepted as png")
	}
}

func TestAddPageAndRange(t *testing.T) {
	doc := load(t, pdftest.Document(pdftest.Page{Width: 100, Height: 100}))
	if _, err := doc.Page(1); !errors.Is(err, ErrPageRange) {
		t.Fatalf("err = %v", err)
	}
	doc.AddPage(300, 400).DrawText("new", 10, 10, TextOptions{})
	if doc.NumPages() != 2 {
		t.Fatalf("pages = %d", doc.NumPages())
	}
	out, pages := saveAndParse(t, doc)
	if len(pages) != 2 {
		t.Fatalf("reparsed pages = %d", len(pages))
	}
	if w, h := pages[1].Size(); w != 300 || h != 400 {
		t.Fatalf("new page size = %vx%v", w, h)
	}
	if got := runs(t, out, pages[1]); len(got) != 1 || got[0].Text != "new" {
		t.Fatalf("runs = %+v", got)
	}
}

func TestSaveTwiceKeepsOneOverlay(t *testing.T) {
	doc := load(t, pdftest.Document(pdftest.Page{Width: 100, Height: 100}))
	p, _ := doc.Page(0)
	p.DrawText("a", 10, 10, TextOptions{})
	var first bytes.Buffer
	if err := doc.Save(context.Background(), &first); err != nil {
		t.Fatalf("save: %v", err)
	}
	p.DrawText("b", 10, 30, TextOptions{})
	out, pages := saveAndParse(t, doc)
	if got := runs(t, out, pages[0]); len(got) != 2 {
		t.Fatalf("runs = %+v", got)
	}
}

func TestStandardFont(t *testing.T) {
	cases := map[string]string{"": "Helvetica", "Times New Roman": "Times-Roman", "courier": "Courier", "Comic Sans": "Helvetica"}
	for in, want := range cases {
		if got := standardFont(in); got != want {
			t.Fatalf("standardFont(%q) = %q, want %q", in, got, want)
		}
	}
}
