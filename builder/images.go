package builder

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/wudi/pdfedit/filters"
	"github.com/wudi/pdfedit/ir/raw"
)

// Image is an image XObject embedded in a document. It can be drawn on any
// page of that document.
type Image struct {
	ref           raw.ObjectRef
	Width, Height int
}

// EmbedPNG decodes a PNG and stores it as a Flate-compressed RGB image.
// Transparency becomes a soft mask.
func (d *document) EmbedPNG(data []byte) (*Image, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	pixels, alpha := FromImage(src)
	b := src.Bounds()
	st, err := imageStream(b.Dx(), b.Dy(), "DeviceRGB", pixels)
	if err != nil {
		return nil, err
	}
	if alpha != nil {
		mask, err := imageStream(b.Dx(), b.Dy(), "DeviceGray", alpha)
		if err != nil {
			return nil, err
		}
		ref := d.alloc()
		d.changed[ref] = mask
		st.Dict.Set("SMask", raw.Ref(ref.Num, ref.Gen))
	}
	ref := d.alloc()
	d.changed[ref] = st
	return &Image{ref: ref, Width: b.Dx(), Height: b.Dy()}, nil
}

// EmbedJPEG stores JPEG bytes unchanged behind a DCTDecode filter.
func (d *document) EmbedJPEG(data []byte) (*Image, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("XObject"))
	dict.Set("Subtype", raw.NameLiteral("Image"))
	dict.Set("Width", raw.NumberInt(int64(cfg.Width)))
	dict.Set("Height", raw.NumberInt(int64(cfg.Height)))
	dict.Set("BitsPerComponent", raw.NumberInt(8))
	dict.Set("Filter", raw.NameLiteral("DCTDecode"))
	switch cfg.ColorModel {
	case color.GrayModel:
		dict.Set("ColorSpace", raw.NameLiteral("DeviceGray"))
	case color.CMYKModel:
		dict.Set("ColorSpace", raw.NameLiteral("DeviceCMYK"))
		// Adobe CMYK JPEGs store inverted samples
		dict.Set("Decode", raw.NewArray(
			raw.NumberInt(1), raw.NumberInt(0), raw.NumberInt(1), raw.NumberInt(0),
			raw.NumberInt(1), raw.NumberInt(0), raw.NumberInt(1), raw.NumberInt(0)))
	default:
		dict.Set("ColorSpace", raw.NameLiteral("DeviceRGB"))
	}
	ref := d.alloc()
	d.changed[ref] = raw.NewStream(dict, append([]byte(nil), data...))
	return &Image{ref: ref, Width: cfg.Width, Height: cfg.Height}, nil
}

// FromImage converts src to 8-bit RGB samples. alpha holds the 8-bit alpha
// channel, or nil when the image is fully opaque.
func FromImage(src image.Image) (pixels, alpha []byte) {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	// non-premultiplied, so colour values survive partial transparency
	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)

	pixels = make([]byte, 0, w*h*3)
	alpha = make([]byte, 0, w*h)
	hasAlpha := false
	for i := 0; i < w*h; i++ {
		offset := i * 4
		pixels = append(pixels, nrgba.Pix[offset], nrgba.Pix[offset+1], nrgba.Pix[offset+2])
		a := nrgba.Pix[offset+3]
		alpha = append(alpha, a)
		if a < 255 {
			hasAlpha = true
		}
	}
	if !hasAlpha {
		alpha = nil
	}
	return pixels, alpha
}

func imageStream(w, h int, colorSpace string, samples []byte) (*raw.StreamObj, error) {
	data, err := filters.FlateEncode(samples)
	if err != nil {
		return nil, fmt.Errorf("compress image: %w", err)
	}
	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("XObject"))
	dict.Set("Subtype", raw.NameLiteral("Image"))
	dict.Set("Width", raw.NumberInt(int64(w)))
	dict.Set("Height", raw.NumberInt(int64(h)))
	dict.Set("ColorSpace", raw.NameLiteral(colorSpace))
	dict.Set("BitsPerComponent", raw.NumberInt(8))
	dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	return raw.NewStream(dict, data), nil
}
