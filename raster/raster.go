// Package raster draws draft page previews and composes annotation
// overlays on top of them. Previews place text with a bitmap face scaled
// to each run's box; they show where things are, not how the fonts look.
package raster

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/extractor"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/parser"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultScale is the preview resolution in pixels per page unit.
const DefaultScale = 2.0

type Config struct {
	Scale  float64
	Logger observability.Logger
}

type Rasterizer struct {
	scale float64
	log   observability.Logger
}

func New(cfg Config) *Rasterizer {
	if cfg.Scale <= 0 {
		cfg.Scale = DefaultScale
	}
	return &Rasterizer{scale: cfg.Scale, log: observability.OrNop(cfg.Logger)}
}

func (r *Rasterizer) Scale() float64 { return r.scale }

// Page draws page: rectangle fills, images and text, in content order.
func (r *Rasterizer) Page(ctx context.Context, ex *extractor.Extractor, page parser.Page) (*image.RGBA, error) {
	w, h := page.Size()
	s := r.scale
	img := image.NewRGBA(image.Rect(0, 0, int(math.Ceil(w*s)), int(math.Ceil(h*s))))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	t := contentstream.NewTracer()
	t.OnFill = func(f contentstream.RectFill) {
		for _, rc := range f.Rects {
			fill(img, pixelRect(transformRect(f.CTM, rc), s), f.Color)
		}
	}
	t.OnImage = func(p contentstream.ImagePaint) {
		src, err := decodePaint(ctx, ex, p)
		if err != nil {
			r.log.Warn("skip image", observability.String("name", p.Name), observability.Error("error", err))
			return
		}
		dst := pixelRect(transformRect(p.CTM, coords.Rect{Width: 1, Height: 1}), s)
		draw.ApproxBiLinear.Scale(img, dst, src, src.Bounds(), draw.Over, nil)
	}
	err := ex.Trace(ctx, page, t, func(sp contentstream.Span) {
		size := coords.FontSize(sp.Matrix)
		box := coords.Rect{X: sp.Matrix[4], Y: sp.Matrix[5] - size, Width: sp.Width, Height: size}
		DrawText(img, sp.Text, pixelRect(box, s), sp.Color)
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// transformRect returns the bounds of r mapped through m.
func transformRect(m coords.Matrix, r coords.Rect) coords.Rect {
	return coords.Bounds(
		m.Transform(coords.Point{X: r.X, Y: r.Y}),
		m.Transform(coords.Point{X: r.X + r.Width, Y: r.Y}),
		m.Transform(coords.Point{X: r.X, Y: r.Y + r.Height}),
		m.Transform(coords.Point{X: r.X + r.Width, Y: r.Y + r.Height}),
	)
}

// pixelRect scales a render-space rectangle to whole pixels.
func pixelRect(r coords.Rect, s float64) image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X*s)), int(math.Floor(r.Y*s)),
		int(math.Ceil((r.X+r.Width)*s)), int(math.Ceil((r.Y+r.Height)*s)),
	)
}

func fill(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Over)
}

// stroke draws the border of r, width pixels thick, inside r.
func stroke(dst draw.Image, r image.Rectangle, width int, c color.Color) {
	if width <= 0 {
		return
	}
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), c)
	fill(dst, image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), c)
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), c)
	fill(dst, image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), c)
}

// DrawText renders text with the 7x13 bitmap face stretched into box. An
// empty box width keeps the face's aspect ratio.
func DrawText(dst draw.Image, text string, box image.Rectangle, c color.Color) {
	face := basicfont.Face7x13
	adv := font.MeasureString(face, text).Ceil()
	if adv == 0 || box.Dy() <= 0 {
		return
	}
	glyphH := face.Ascent + face.Descent
	tmp := image.NewRGBA(image.Rect(0, 0, adv, glyphH))
	d := font.Drawer{Dst: tmp, Src: image.NewUniform(c), Face: face, Dot: fixed.P(0, face.Ascent)}
	d.DrawString(text)
	if box.Dx() <= 0 {
		box.Max.X = box.Min.X + adv*box.Dy()/glyphH
	}
	draw.ApproxBiLinear.Scale(dst, box, tmp, tmp.Bounds(), draw.Over, nil)
}
