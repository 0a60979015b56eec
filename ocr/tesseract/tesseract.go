// Package tesseract implements ocr.Engine with the gosseract bindings to
// libtesseract.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/wudi/pdfedit/ocr"
)

// Engine runs every recognition on a fresh gosseract client.
type Engine struct {
	clientFactory func() *gosseract.Client
}

func New() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize performs OCR on a single image input and groups the recognized
// words into text lines.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	c := e.clientFactory()
	defer c.Close()
	imgData, offset, err := cropImage(in.Image, in.Region)
	if err != nil {
		return ocr.Result{}, err
	}
	if err := c.SetImageFromBytes(imgData); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	lineBoxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("line boxes: %w", err)
	}
	wordBoxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("word boxes: %w", err)
	}
	return ocr.Result{
		InputID:   in.ID,
		PlainText: strings.TrimSpace(text),
		Lines:     groupLines(toLines(lineBoxes, offset), toWords(wordBoxes, offset)),
		Language:  firstLanguage(in.Languages),
	}, nil
}

func toWords(boxes []gosseract.BoundingBox, off image.Point) []ocr.TextWord {
	words := make([]ocr.TextWord, 0, len(boxes))
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		words = append(words, ocr.TextWord{
			Text:       b.Word,
			Bounds:     region(b.Box.Add(off)),
			Confidence: b.Confidence / 100.0,
		})
	}
	return words
}

func toLines(boxes []gosseract.BoundingBox, off image.Point) []ocr.TextLine {
	lines := make([]ocr.TextLine, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		lines = append(lines, ocr.TextLine{
			Text:       text,
			Bounds:     region(b.Box.Add(off)),
			Confidence: b.Confidence / 100.0,
		})
	}
	return lines
}

// groupLines attaches each word to the line whose box holds the word's
// centre.
func groupLines(lines []ocr.TextLine, words []ocr.TextWord) []ocr.TextLine {
	for _, w := range words {
		cx := w.Bounds.X + w.Bounds.Width/2
		cy := w.Bounds.Y + w.Bounds.Height/2
		for i := range lines {
			b := lines[i].Bounds
			if cx >= b.X && cx <= b.X+b.Width && cy >= b.Y && cy <= b.Y+b.Height {
				lines[i].Words = append(lines[i].Words, w)
				break
			}
		}
	}
	return lines
}

func region(r image.Rectangle) ocr.Region {
	return ocr.Region{X: float64(r.Min.X), Y: float64(r.Min.Y), Width: float64(r.Dx()), Height: float64(r.Dy())}
}

func firstLanguage(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}

// cropImage cuts region out of data. The returned offset maps boxes found
// in the crop back into the full image.
func cropImage(data []byte, r *ocr.Region) ([]byte, image.Point, error) {
	if r == nil || r.IsEmpty() {
		return data, image.Point{}, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("decode for region: %w", err)
	}
	rect := image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.Width)),
		int(math.Round(r.Y+r.Height)),
	).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, image.Point{}, fmt.Errorf("region outside image bounds")
	}
	subImg, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, image.Point{}, fmt.Errorf("image does not support sub-image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, subImg.SubImage(rect)); err != nil {
		return nil, image.Point{}, fmt.Errorf("encode cropped image: %w", err)
	}
	return buf.Bytes(), rect.Min, nil
}
