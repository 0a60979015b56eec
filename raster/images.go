package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/extractor"
	"github.com/wudi/pdfedit/filters"
	"github.com/wudi/pdfedit/ir/raw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var errUnsupportedImage = errors.New("unsupported image encoding")

// inline image abbreviations
var inlineKeys = map[string]string{
	"W": "Width", "H": "Height", "CS": "ColorSpace", "BPC": "BitsPerComponent",
	"F": "Filter", "DP": "DecodeParms", "IM": "ImageMask",
}

var inlineSpaces = map[string]string{"G": "DeviceGray", "RGB": "DeviceRGB", "CMYK": "DeviceCMYK"}

func decodePaint(ctx context.Context, ex *extractor.Extractor, p contentstream.ImagePaint) (image.Image, error) {
	doc := ex.Document()
	st := p.Stream
	if p.Inline != nil {
		dict, _ := p.Inline.Operands[0].(*raw.DictObj)
		data, _ := raw.BytesOf(p.Inline.Operands[1])
		full := raw.Dict()
		for _, k := range dict.Keys() {
			name := k
			if long, ok := inlineKeys[k]; ok {
				name = long
			}
			full.Set(name, dict.KV[k])
		}
		st = raw.NewStream(full, data)
	}
	if st == nil {
		return nil, errUnsupportedImage
	}
	if mask, ok := st.Dict.Get("ImageMask"); ok {
		if b, _ := mask.(raw.BoolObj); b.V {
			return nil, fmt.Errorf("%w: stencil mask", errUnsupportedImage)
		}
	}
	names, params := filters.ExtractFilters(doc, st.Dict)
	if n := len(names); n > 0 && (names[n-1] == "DCTDecode" || names[n-1] == "DCT") {
		if len(params) > n-1 {
			params = params[:n-1]
		}
		data, err := filters.DefaultPipeline().Decode(ctx, st.Data, names[:n-1], params)
		if err != nil {
			return nil, err
		}
		return jpeg.Decode(bytes.NewReader(data))
	}
	data, err := filters.DefaultPipeline().Decode(ctx, st.Data, names, params)
	if err != nil {
		return nil, err
	}
	w, _ := raw.IntOf(doc.Resolve(dictValue(st.Dict, "Width")))
	h, _ := raw.IntOf(doc.Resolve(dictValue(st.Dict, "Height")))
	bpc, ok := raw.IntOf(doc.Resolve(dictValue(st.Dict, "BitsPerComponent")))
	if !ok {
		bpc = 8
	}
	return samples(w, h, bpc, colorSpace(doc, dictValue(st.Dict, "ColorSpace")), data)
}

func dictValue(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}

// colorSpace reduces a colour space to one of the device families.
func colorSpace(doc *raw.Document, obj raw.Object) string {
	switch cs := doc.Resolve(obj).(type) {
	case raw.NameObj:
		if long, ok := inlineSpaces[cs.Val]; ok {
			return long
		}
		return cs.Val
	case *raw.ArrayObj:
		if cs.Len() < 2 {
			return ""
		}
		family, _ := raw.NameOf(doc.Resolve(cs.Items[0]))
		if family != "ICCBased" {
			return family
		}
		n, _ := raw.DictInt(doc.ResolveDict(cs.Items[1]), "N")
		switch n {
		case 1:
			return "DeviceGray"
		case 3:
			return "DeviceRGB"
		case 4:
			return "DeviceCMYK"
		}
	}
	return ""
}

// samples wraps 8-bit device colour samples in an image.Image.
func samples(width, height, bpc int, cs string, data []byte) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: empty image", errUnsupportedImage)
	}
	if bpc != 8 {
		return nil, fmt.Errorf("%w: %d bits per component", errUnsupportedImage, bpc)
	}
	rect := image.Rect(0, 0, width, height)
	switch cs {
	case "DeviceGray":
		if len(data) < width*height {
			return nil, fmt.Errorf("%w: short gray data", errUnsupportedImage)
		}
		return &image.Gray{Pix: data, Stride: width, Rect: rect}, nil
	case "DeviceRGB":
		if len(data) < width*height*3 {
			return nil, fmt.Errorf("%w: short rgb data", errUnsupportedImage)
		}
		img := image.NewNRGBA(rect)
		for i := 0; i < width*height; i++ {
			copy(img.Pix[i*4:i*4+3], data[i*3:i*3+3])
			img.Pix[i*4+3] = 0xff
		}
		return img, nil
	case "DeviceCMYK":
		if len(data) < width*height*4 {
			return nil, fmt.Errorf("%w: short cmyk data", errUnsupportedImage)
		}
		img := image.NewCMYK(rect)
		copy(img.Pix, data)
		return img, nil
	}
	return nil, fmt.Errorf("%w: colour space %q", errUnsupportedImage, cs)
}

// Intake inspects image bytes picked by the user. PNG and JPEG pass
// through unchanged; GIF, WebP, BMP and TIFF are converted to PNG so the
// export only ever embeds the two families PDF writers support.
func Intake(data []byte) (out []byte, mime string, width, height int, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("inspect image: %w", err)
	}
	switch format {
	case "png":
		return data, "image/png", cfg.Width, cfg.Height, nil
	case "jpeg":
		return data, "image/jpeg", cfg.Width, cfg.Height, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("decode %s: %w", format, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", 0, 0, fmt.Errorf("convert %s to png: %w", format, err)
	}
	return buf.Bytes(), "image/png", cfg.Width, cfg.Height, nil
}
