package annotation

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// record is the flat interchange form: one object per annotation with a
// "type" discriminator, colours as "#rrggbb" and image bytes as a data URL.
type record struct {
	ID          int      `json:"id"`
	Type        Kind     `json:"type"`
	Page        int      `json:"page"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Text        *string  `json:"text,omitempty"`
	Size        *float64 `json:"size,omitempty"`
	Color       string   `json:"color,omitempty"`
	FontFamily  string   `json:"fontFamily,omitempty"`
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	Fill        *bool    `json:"fill,omitempty"`
	StrokeWidth *float64 `json:"strokeWidth,omitempty"`
	ImageData   string   `json:"imageData,omitempty"`
	ImageType   string   `json:"imageType,omitempty"`
}

func (a Annotation) MarshalJSON() ([]byte, error) {
	r := record{ID: a.ID, Type: a.Kind(), Page: a.Page, X: a.X, Y: a.Y}
	switch b := a.Body.(type) {
	case *Text:
		r.Text, r.Size = &b.Content, &b.Size
		r.Color, r.FontFamily = b.Color.Hex(), b.FontFamily
	case *Whiteout:
		r.Width, r.Height = &b.Width, &b.Height
		r.Color = White.Hex()
	case *Shape:
		r.Width, r.Height = &b.Width, &b.Height
		r.Color, r.Fill, r.StrokeWidth = b.Color.Hex(), &b.Fill, &b.StrokeWidth
	case *Image:
		r.Width, r.Height = &b.Width, &b.Height
		r.ImageType = b.MIMEType
		r.ImageData = DataURL(b.MIMEType, b.Data)
	default:
		return nil, fmt.Errorf("marshal annotation %d: no body", a.ID)
	}
	return json.Marshal(r)
}

func (a *Annotation) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	out := Annotation{ID: r.ID, Page: r.Page, X: r.X, Y: r.Y}
	color := func(def Color) (Color, error) {
		if r.Color == "" {
			return def, nil
		}
		return ParseHex(r.Color)
	}
	switch r.Type {
	case KindText:
		t := &Text{Content: deref(r.Text), Size: 16, FontFamily: r.FontFamily}
		if r.Size != nil {
			t.Size = *r.Size
		}
		c, err := color(Indigo)
		if err != nil {
			return err
		}
		t.Color = c
		out.Body = t
	case KindWhiteout:
		out.Body = &Whiteout{Width: deref(r.Width), Height: deref(r.Height)}
	case KindShape:
		c, err := color(Indigo)
		if err != nil {
			return err
		}
		s := &Shape{Width: deref(r.Width), Height: deref(r.Height), Color: c, Fill: deref(r.Fill), StrokeWidth: 2}
		if r.StrokeWidth != nil {
			s.StrokeWidth = *r.StrokeWidth
		}
		out.Body = s
	case KindImage, KindSignature:
		payload, mime, err := decodeDataURL(r.ImageData)
		if err != nil {
			return fmt.Errorf("annotation %d image: %w", r.ID, err)
		}
		if r.ImageType != "" {
			mime = r.ImageType
		}
		out.Body = &Image{Width: deref(r.Width), Height: deref(r.Height), Data: payload, MIMEType: mime, Signature: r.Type == KindSignature}
	default:
		return fmt.Errorf("annotation %d: unknown type %q", r.ID, r.Type)
	}
	*a = out
	return nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// decodeDataURL accepts "data:<mime>;base64,<payload>" or bare base64.
func decodeDataURL(s string) ([]byte, string, error) {
	mime := ""
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", fmt.Errorf("malformed data URL")
		}
		mime, _, _ = strings.Cut(header, ";")
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	return data, mime, nil
}

// DataURL renders data as a base64 data URL.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
