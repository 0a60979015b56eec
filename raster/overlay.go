package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/wudi/pdfedit/annotation"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/pagecache"
	"golang.org/x/image/draw"
)

func rgba(c annotation.Color) color.RGBA { return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff} }

var placeholder = color.RGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}

// Compose draws the page bitmap at zoom with anns on top, in the order
// given. Positions go through the inverse mapping only; the annotations
// themselves stay zoom independent. The annotation with id active gets a
// selection outline.
func Compose(page pagecache.Page, anns []annotation.Annotation, zoom float64, active int) (*image.RGBA, error) {
	zoom = coords.ClampZoom(zoom)
	out := image.NewRGBA(image.Rect(0, 0, int(math.Round(page.Width*zoom)), int(math.Round(page.Height*zoom))))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	if len(page.Bitmap) > 0 {
		base, err := png.Decode(bytes.NewReader(page.Bitmap))
		if err != nil {
			return nil, fmt.Errorf("decode page bitmap: %w", err)
		}
		draw.ApproxBiLinear.Scale(out, out.Bounds(), base, base.Bounds(), draw.Src, nil)
	}
	for _, a := range anns {
		r := screenRect(a.Bounds(), zoom)
		switch b := a.Body.(type) {
		case *annotation.Whiteout:
			fill(out, r, color.White)
		case *annotation.Shape:
			if b.Fill {
				fill(out, r, rgba(b.Color))
			}
			width := b.StrokeWidth
			if width == 0 {
				width = 1
			}
			stroke(out, r, int(math.Max(1, math.Round(width*zoom))), rgba(b.Color))
		case *annotation.Text:
			r.Max.X = r.Min.X // keep the face's aspect ratio
			r.Max.Y = r.Min.Y + int(math.Round(b.Size*zoom))
			DrawText(out, b.Content, r, rgba(b.Color))
		case *annotation.Image:
			img, _, err := image.Decode(bytes.NewReader(b.Data))
			if err != nil {
				fill(out, r, placeholder)
				continue
			}
			draw.ApproxBiLinear.Scale(out, r, img, img.Bounds(), draw.Over, nil)
		}
		if a.ID == active {
			stroke(out, r.Inset(-2), 1, rgba(annotation.Indigo))
		}
	}
	return out, nil
}

// screenRect maps a render-space rectangle at zoom 1.0 to pixels at zoom.
func screenRect(r coords.Rect, zoom float64) image.Rectangle {
	x0, y0 := coords.ToRenderSpace(r.X, r.Y, zoom)
	x1, y1 := coords.ToRenderSpace(r.X+r.Width, r.Y+r.Height, zoom)
	return image.Rect(int(math.Round(x0)), int(math.Round(y0)), int(math.Round(x1)), int(math.Round(y1)))
}
