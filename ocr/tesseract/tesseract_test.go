package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"strings"
	"testing"

	"github.com/wudi/pdfedit/ocr"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ensureTesseractAvailable checks that the tesseract binary is reachable.
func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func renderText(t *testing.T, text string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13, Dot: fixed.P(10, 50)}
	d.DrawString(text)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestEngineRecognize(t *testing.T) {
	ensureTesseractAvailable(t)

	in := ocr.PageInput(0, renderText(t, "Hello PDF"), ocr.WithLanguages("eng"), ocr.WithDPI(300))
	res, err := New().Recognize(context.Background(), in)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	got := strings.ToLower(res.PlainText)
	if !strings.Contains(got, "hello") || !strings.Contains(got, "pdf") {
		t.Fatalf("unexpected OCR output: %q", res.PlainText)
	}
	if len(res.Lines) == 0 || len(res.Lines[0].Words) == 0 {
		t.Fatalf("expected structured lines: %+v", res.Lines)
	}
	if res.InputID != "page-0" {
		t.Fatalf("unexpected input id: %s", res.InputID)
	}
}

func TestGroupLines(t *testing.T) {
	lines := []ocr.TextLine{
		{Text: "Total Due", Bounds: ocr.Region{X: 10, Y: 10, Width: 100, Height: 12}},
		{Text: "Paid", Bounds: ocr.Region{X: 10, Y: 40, Width: 40, Height: 12}},
	}
	words := []ocr.TextWord{
		{Text: "Total", Bounds: ocr.Region{X: 10, Y: 10, Width: 45, Height: 12}},
		{Text: "Paid", Bounds: ocr.Region{X: 10, Y: 40, Width: 40, Height: 12}},
		{Text: "Due", Bounds: ocr.Region{X: 60, Y: 11, Width: 30, Height: 11}},
	}
	got := groupLines(lines, words)
	if len(got[0].Words) != 2 || got[0].Words[1].Text != "Due" || len(got[1].Words) != 1 {
		t.Fatalf("grouped = %+v", got)
	}
}

func TestCropImageOffset(t *testing.T) {
	data := renderText(t, "x")
	_, off, err := cropImage(data, &ocr.Region{X: 5, Y: 6, Width: 20, Height: 20})
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	if off != image.Pt(5, 6) {
		t.Fatalf("offset = %v", off)
	}
	if _, _, err := cropImage(data, &ocr.Region{X: 500, Y: 500, Width: 5, Height: 5}); err == nil {
		t.Fatalf("expected error for region outside image")
	}
}
