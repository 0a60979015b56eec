// Package annotation holds the editor's overlay model: a closed set of
// annotation bodies, their validation rules and the ordered store that
// allocates ids.
package annotation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wudi/pdfedit/coords"
)

type Kind string

const (
	KindText      Kind = "text"
	KindWhiteout  Kind = "whiteout"
	KindShape     Kind = "shape"
	KindImage     Kind = "image"
	KindSignature Kind = "signature"
)

// MinDimension is the smallest width or height a box annotation may have.
const MinDimension = 1.0

var (
	ErrInvalidGeometry    = errors.New("invalid geometry")
	ErrFieldNotApplicable = errors.New("field not applicable")
)

// ValidationError reports the field that made a create or update fail.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("annotation %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string) error {
	return &ValidationError{Field: field, Err: ErrInvalidGeometry}
}

// Color is an 8-bit RGB colour.
type Color struct{ R, G, B uint8 }

var (
	White  = Color{0xff, 0xff, 0xff}
	Black  = Color{}
	Indigo = Color{0x63, 0x66, 0xf1}
)

// ParseHex reads "#rrggbb" or "#rgb"; the leading '#' is optional.
func ParseHex(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return Color{}, fmt.Errorf("parse colour %q: want #rrggbb", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("parse colour %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func (c Color) Hex() string { return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B) }

// Unit returns the components scaled to [0, 1].
func (c Color) Unit() (r, g, b float64) {
	return float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255
}

// Body is the kind-specific part of an annotation. The set of
// implementations is closed.
type Body interface {
	Kind() Kind
	validate() error
	clone() Body
}

type Text struct {
	Content    string
	Size       float64
	Color      Color
	FontFamily string
}

// Whiteout always paints opaque white; it has no colour of its own.
type Whiteout struct {
	Width, Height float64
}

type Shape struct {
	Width, Height float64
	Color         Color
	Fill          bool
	StrokeWidth   float64
}

// Image is a raster image; Signature only changes how it is labelled.
type Image struct {
	Width, Height float64
	Data          []byte
	MIMEType      string
	Signature     bool
}

func (*Text) Kind() Kind     { return KindText }
func (*Whiteout) Kind() Kind { return KindWhiteout }
func (*Shape) Kind() Kind    { return KindShape }
func (i *Image) Kind() Kind {
	if i.Signature {
		return KindSignature
	}
	return KindImage
}

func (t *Text) clone() Body     { c := *t; return &c }
func (w *Whiteout) clone() Body { c := *w; return &c }
func (s *Shape) clone() Body    { c := *s; return &c }
func (i *Image) clone() Body    { c := *i; return &c }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func validBox(w, h float64) error {
	if !finite(w) || w < MinDimension {
		return invalid("width")
	}
	if !finite(h) || h < MinDimension {
		return invalid("height")
	}
	return nil
}

func (t *Text) validate() error {
	if !finite(t.Size) || t.Size <= 0 {
		return invalid("size")
	}
	return nil
}

func (w *Whiteout) validate() error { return validBox(w.Width, w.Height) }

func (s *Shape) validate() error {
	if err := validBox(s.Width, s.Height); err != nil {
		return err
	}
	if !finite(s.StrokeWidth) || s.StrokeWidth < 0 {
		return invalid("strokeWidth")
	}
	return nil
}

func (i *Image) validate() error { return validBox(i.Width, i.Height) }

// Annotation is one overlay element. X and Y are the top-left corner in
// render space at zoom 1.0; they never include the current zoom.
type Annotation struct {
	ID   int
	Page int
	X, Y float64
	Body Body
}

func (a Annotation) Kind() Kind {
	if a.Body == nil {
		return ""
	}
	return a.Body.Kind()
}

// Bounds returns the box the annotation covers in render space. Text
// width is estimated at half an em per character.
func (a Annotation) Bounds() coords.Rect {
	r := coords.Rect{X: a.X, Y: a.Y}
	switch b := a.Body.(type) {
	case *Text:
		r.Width = float64(len([]rune(b.Content))) * b.Size * 0.5
		r.Height = b.Size * 1.2
	case *Whiteout:
		r.Width, r.Height = b.Width, b.Height
	case *Shape:
		r.Width, r.Height = b.Width, b.Height
	case *Image:
		r.Width, r.Height = b.Width, b.Height
	}
	return r
}

// Validate checks the position and the body of a.
func (a Annotation) Validate() error {
	if a.Page < 1 {
		return invalid("page")
	}
	if !finite(a.X) {
		return invalid("x")
	}
	if !finite(a.Y) {
		return invalid("y")
	}
	if a.Body == nil {
		return &ValidationError{Field: "body", Err: ErrInvalidGeometry}
	}
	return a.Body.validate()
}

func (a Annotation) clone() Annotation {
	if a.Body != nil {
		a.Body = a.Body.clone()
	}
	return a
}
