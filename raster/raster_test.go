package raster

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/wudi/pdfedit/annotation"
	"github.com/wudi/pdfedit/extractor"
	"github.com/wudi/pdfedit/internal/pdftest"
	"github.com/wudi/pdfedit/pagecache"
	"github.com/wudi/pdfedit/parser"
	"golang.org/x/image/bmp"
)

func renderFirst(t *testing.T, data []byte) *image.RGBA {
	t.Helper()
	ctx := context.Background()
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(ctx, data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pages, err := parser.Pages(doc)
	if err != nil || len(pages) == 0 {
		t.Fatalf("pages: %v", err)
	}
	img, err := New(Config{}).Page(ctx, extractor.New(doc, extractor.Config{}), pages[0])
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	return img
}

func same(a, b color.Color) bool {
	r1, g1, b1, a1 := a.RGBA()
	r2, g2, b2, a2 := b.RGBA()
	return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
}

func TestPageFillsRectangles(t *testing.T) {
	img := renderFirst(t, pdftest.Document(pdftest.Page{Width: 100, Height: 50, Content: "1 0 0 rg 10 10 20 20 re f"}))
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Fatalf("bounds = %v", b)
	}
	// user (10..30, 10..30) is render (10..30, 20..40), pixels doubled
	if got := img.At(40, 60); !same(got, color.RGBA{R: 255, A: 255}) {
		t.Fatalf("inside fill = %v", got)
	}
	if got := img.At(10, 10); !same(got, color.White) {
		t.Fatalf("outside fill = %v", got)
	}
}

func TestPagePaintsImageXObject(t *testing.T) {
	data := pdftest.Build(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 100 100] /Resources << /XObject << /Im0 5 0 R >> >> /Contents 4 0 R >>",
		pdftest.Stream("", []byte("q 50 0 0 50 0 50 cm /Im0 Do Q")),
		pdftest.Stream("/Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceRGB /BitsPerComponent 8 ", []byte{0, 0, 255}),
	)
	img := renderFirst(t, data)
	if got := img.At(50, 50); !same(got, color.RGBA{B: 255, A: 255}) {
		t.Fatalf("image pixel = %v", got)
	}
	if got := img.At(150, 150); !same(got, color.White) {
		t.Fatalf("background = %v", got)
	}
}

func TestDrawTextInk(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 30))
	DrawText(img, "Hello", image.Rect(0, 0, 100, 30), color.Black)
	ink := 0
	for y := 0; y < 30; y++ {
		for x := 0; x < 100; x++ {
			if img.RGBAAt(x, y).A > 0 {
				ink++
			}
		}
	}
	if ink == 0 {
		t.Fatalf("no text drawn")
	}
	empty := image.NewRGBA(image.Rect(0, 0, 10, 10))
	DrawText(empty, "", image.Rect(0, 0, 10, 10), color.Black)
	if empty.RGBAAt(5, 5).A != 0 {
		t.Fatalf("empty text drew pixels")
	}
}

func pngOf(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestComposeOverlay(t *testing.T) {
	page := pagecache.Page{Number: 1, Width: 100, Height: 100, Bitmap: pngOf(t, 200, 200, color.RGBA{G: 255, A: 255}), BitmapScale: 2}
	anns := []annotation.Annotation{
		{ID: 1, Page: 1, X: 10, Y: 10, Body: &annotation.Whiteout{Width: 20, Height: 20}},
		{ID: 2, Page: 1, X: 50, Y: 50, Body: &annotation.Shape{Width: 20, Height: 20, Color: annotation.Color{R: 255}, Fill: true}},
		{ID: 3, Page: 1, X: 50, Y: 10, Body: &annotation.Image{Width: 10, Height: 10, Data: []byte("garbage"), MIMEType: "image/png"}},
	}
	img, err := Compose(page, anns, 1.5, 0)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 150 || b.Dy() != 150 {
		t.Fatalf("bounds = %v", b)
	}
	checks := []struct {
		x, y int
		want color.Color
	}{
		{5, 5, color.RGBA{G: 255, A: 255}},
		{30, 30, color.White},
		{90, 90, color.RGBA{R: 255, A: 255}},
		{80, 20, placeholder},
	}
	for _, c := range checks {
		if got := img.At(c.x, c.y); !same(got, c.want) {
			t.Fatalf("pixel (%d,%d) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
}

func TestComposeActiveOutline(t *testing.T) {
	page := pagecache.Page{Number: 1, Width: 50, Height: 50}
	anns := []annotation.Annotation{{ID: 7, Page: 1, X: 10, Y: 10, Body: &annotation.Whiteout{Width: 20, Height: 20}}}
	img, err := Compose(page, anns, 1, 7)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if got := img.At(8, 15); !same(got, color.RGBA{R: 0x63, G: 0x66, B: 0xf1, A: 0xff}) {
		t.Fatalf("outline pixel = %v", got)
	}
}

func TestComposeShapeBorderMatchesExport(t *testing.T) {
	blue := color.RGBA{B: 255, A: 255}
	page := pagecache.Page{Number: 1, Width: 50, Height: 50}
	anns := []annotation.Annotation{
		{ID: 1, Page: 1, X: 10, Y: 10, Body: &annotation.Shape{Width: 20, Height: 20, Color: annotation.Color{B: 255}}},
	}
	img, err := Compose(page, anns, 1, 0)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if got := img.At(10, 20); !same(got, blue) {
		t.Fatalf("zero-width border pixel = %v", got)
	}
	if got := img.At(20, 20); !same(got, color.White) {
		t.Fatalf("unfilled interior = %v", got)
	}
}

func TestIntake(t *testing.T) {
	src := pngOf(t, 4, 3, color.Black)
	out, mime, w, h, err := Intake(src)
	if err != nil || mime != "image/png" || w != 4 || h != 3 || !bytes.Equal(out, src) {
		t.Fatalf("png intake: %s %dx%d %v", mime, w, h, err)
	}

	var buf bytes.Buffer
	if err := bmp.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 5, 2))); err != nil {
		t.Fatalf("bmp encode: %v", err)
	}
	out, mime, w, h, err = Intake(buf.Bytes())
	if err != nil || mime != "image/png" || w != 5 || h != 2 {
		t.Fatalf("bmp intake: %s %dx%d %v", mime, w, h, err)
	}
	if _, err := png.DecodeConfig(bytes.NewReader(out)); err != nil {
		t.Fatalf("converted output is not png: %v", err)
	}

	if _, _, _, _, err := Intake([]byte("not an image")); err == nil {
		t.Fatalf("garbage accepted")
	}
}
