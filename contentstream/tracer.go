package contentstream

import (
	"errors"
	"image/color"
	"math"

	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/ir/raw"
)

type GraphicsState struct {
	CTM   coords.Matrix
	Fill  color.RGBA
	Text  TextState
	stack []savedState
}

type savedState struct {
	ctm  coords.Matrix
	fill color.RGBA
	text TextState
}

func (gs *GraphicsState) Save() {
	gs.stack = append(gs.stack, savedState{ctm: gs.CTM, fill: gs.Fill, text: gs.Text})
}

func (gs *GraphicsState) Restore() error {
	n := len(gs.stack)
	if n == 0 {
		return errors.New("state stack empty")
	}
	// text and line matrices are not part of the graphics state
	tm, tlm := gs.Text.TextMatrix, gs.Text.TextLineMatrix
	gs.CTM = gs.stack[n-1].ctm
	gs.Fill = gs.stack[n-1].fill
	gs.Text = gs.stack[n-1].text
	gs.Text.TextMatrix, gs.Text.TextLineMatrix = tm, tlm
	gs.stack = gs.stack[:n-1]
	return nil
}

type TextState struct {
	FontName       string
	Font           Font
	FontSize       float64
	CharSpacing    float64
	WordSpacing    float64
	HorizScale     float64 // 1.0 = 100%
	Leading        float64
	Rise           float64
	TextMatrix     coords.Matrix
	TextLineMatrix coords.Matrix
}

// Glyph is one decoded character code.
type Glyph struct {
	Text  string
	Width float64 // glyph space units (1/1000 em)
	Space bool    // single-byte code 32, which receives word spacing
}

// Font decodes shown strings into glyphs.
type Font interface {
	Decode(s []byte) []Glyph
}

// Form is a form XObject ready to be traced.
type Form struct {
	Ops       []Operation
	Matrix    coords.Matrix
	Resources Resources
}

// Resources looks up named page resources.
type Resources interface {
	Font(name string) Font
	Form(name string) (*Form, bool)
	Image(name string) (*raw.StreamObj, bool)
}

// ImagePaint is an image painted by Do or an inline image. CTM maps the
// unit square onto the target space.
type ImagePaint struct {
	Name   string
	Stream *raw.StreamObj
	// Inline holds the BI operation for inline images.
	Inline *Operation
	CTM    coords.Matrix
}

// RectFill is a fill of a path made only of rectangles.
type RectFill struct {
	Rects []coords.Rect // in user space before CTM
	CTM   coords.Matrix
	Color color.RGBA
}

// Span is the text shown by one string operator (or one TJ array).
type Span struct {
	Text string
	// Matrix is the text rendering matrix at the first glyph: font size,
	// scaling and rise, then text matrix, then CTM.
	Matrix coords.Matrix
	// Width is the advance in user space along the baseline.
	Width    float64
	FontName string
	Color    color.RGBA
}

// Tracer walks operations and reports every span of shown text.
type Tracer struct {
	// SpaceThreshold is the TJ adjustment (thousandths of an em, negated)
	// above which a gap is reported as a space.
	SpaceThreshold float64
	MaxFormDepth   int
	// OnImage and OnFill are optional paint hooks.
	OnImage func(ImagePaint)
	OnFill  func(RectFill)
}

func NewTracer() *Tracer {
	return &Tracer{SpaceThreshold: 250, MaxFormDepth: 8}
}

// Trace executes the operations virtually starting from ctm.
func (t *Tracer) Trace(ops []Operation, res Resources, ctm coords.Matrix, emit func(Span)) error {
	gs := &GraphicsState{CTM: ctm, Fill: color.RGBA{A: 0xff}}
	gs.Text.HorizScale = 1
	return t.trace(ops, res, gs, emit, 0)
}

func (t *Tracer) trace(ops []Operation, res Resources, gs *GraphicsState, emit func(Span), depth int) error {
	ts := &gs.Text
	var path []coords.Rect
	rectsOnly := true
	for _, op := range ops {
		switch op.Operator {
		case "g":
			gs.Fill = gray(op.Number(0))
		case "rg":
			gs.Fill = rgb(op.Number(0), op.Number(1), op.Number(2))
		case "k":
			gs.Fill = cmyk(op.Number(0), op.Number(1), op.Number(2), op.Number(3))
		case "sc", "scn":
			switch len(op.Operands) {
			case 1:
				gs.Fill = gray(op.Number(0))
			case 3:
				gs.Fill = rgb(op.Number(0), op.Number(1), op.Number(2))
			case 4:
				gs.Fill = cmyk(op.Number(0), op.Number(1), op.Number(2), op.Number(3))
			}
		case "re":
			path = append(path, coords.Rect{X: op.Number(0), Y: op.Number(1), Width: op.Number(2), Height: op.Number(3)})
		case "m", "l", "c", "v", "y", "h":
			rectsOnly = false
		case "f", "F", "f*", "B", "B*", "b", "b*":
			if t.OnFill != nil && rectsOnly && len(path) > 0 {
				t.OnFill(RectFill{Rects: path, CTM: gs.CTM, Color: gs.Fill})
			}
			path, rectsOnly = nil, true
		case "n", "S", "s":
			path, rectsOnly = nil, true
		case "BI":
			if t.OnImage != nil {
				inline := op
				t.OnImage(ImagePaint{Inline: &inline, CTM: gs.CTM})
			}
		case "q":
			gs.Save()
		case "Q":
			// unbalanced Q is common in the wild; ignore it
			_ = gs.Restore()
		case "cm":
			if len(op.Operands) == 6 {
				gs.CTM = op.Matrix().Multiply(gs.CTM)
			}
		case "BT":
			ts.TextMatrix = coords.Identity()
			ts.TextLineMatrix = coords.Identity()
		case "Tf":
			if len(op.Operands) == 2 {
				if name, ok := raw.NameOf(op.Operands[0]); ok {
					ts.FontName = name
					ts.Font = nil
					if res != nil {
						ts.Font = res.Font(name)
					}
				}
				ts.FontSize = op.Number(1)
			}
		case "Tc":
			ts.CharSpacing = op.Number(0)
		case "Tw":
			ts.WordSpacing = op.Number(0)
		case "Tz":
			ts.HorizScale = op.Number(0) / 100
		case "TL":
			ts.Leading = op.Number(0)
		case "Ts":
			ts.Rise = op.Number(0)
		case "Td":
			t.moveLine(ts, op.Number(0), op.Number(1))
		case "TD":
			ts.Leading = -op.Number(1)
			t.moveLine(ts, op.Number(0), op.Number(1))
		case "Tm":
			if len(op.Operands) == 6 {
				ts.TextLineMatrix = op.Matrix()
				ts.TextMatrix = ts.TextLineMatrix
			}
		case "T*":
			t.moveLine(ts, 0, -ts.Leading)
		case "Tj":
			if len(op.Operands) == 1 {
				t.show(gs, []raw.Object{op.Operands[0]}, emit)
			}
		case "'":
			t.moveLine(ts, 0, -ts.Leading)
			if len(op.Operands) == 1 {
				t.show(gs, []raw.Object{op.Operands[0]}, emit)
			}
		case "\"":
			if len(op.Operands) == 3 {
				ts.WordSpacing = op.Number(0)
				ts.CharSpacing = op.Number(1)
				t.moveLine(ts, 0, -ts.Leading)
				t.show(gs, []raw.Object{op.Operands[2]}, emit)
			}
		case "TJ":
			if len(op.Operands) == 1 {
				if arr, ok := op.Operands[0].(*raw.ArrayObj); ok {
					t.show(gs, arr.Items, emit)
				}
			}
		case "Do":
			if res == nil || depth >= t.MaxFormDepth || len(op.Operands) != 1 {
				continue
			}
			name, _ := raw.NameOf(op.Operands[0])
			form, ok := res.Form(name)
			if !ok {
				if img, isImage := res.Image(name); isImage && t.OnImage != nil {
					t.OnImage(ImagePaint{Name: name, Stream: img, CTM: gs.CTM})
				}
				continue
			}
			gs.Save()
			gs.CTM = form.Matrix.Multiply(gs.CTM)
			err := t.trace(form.Ops, form.Resources, gs, emit, depth+1)
			_ = gs.Restore()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tracer) moveLine(ts *TextState, tx, ty float64) {
	ts.TextLineMatrix = coords.Translate(tx, ty).Multiply(ts.TextLineMatrix)
	ts.TextMatrix = ts.TextLineMatrix
}

// show advances the text matrix over items (strings and TJ adjustments)
// and emits one span for them.
func (t *Tracer) show(gs *GraphicsState, items []raw.Object, emit func(Span)) {
	ts := &gs.Text
	start := t.renderingMatrix(gs)
	startTm := ts.TextMatrix
	var text []byte
	var advance float64
	for _, item := range items {
		switch v := item.(type) {
		case raw.StringObj:
			for _, g := range t.decode(ts, v.Bytes) {
				w := g.Width / 1000 * ts.FontSize
				w += ts.CharSpacing
				if g.Space {
					w += ts.WordSpacing
				}
				w *= ts.HorizScale
				advance += w
				ts.TextMatrix = coords.Translate(w, 0).Multiply(ts.TextMatrix)
				text = append(text, g.Text...)
			}
		case raw.NumberObj:
			adj := v.Float()
			w := -adj / 1000 * ts.FontSize * ts.HorizScale
			advance += w
			ts.TextMatrix = coords.Translate(w, 0).Multiply(ts.TextMatrix)
			if -adj > t.SpaceThreshold && len(text) > 0 && text[len(text)-1] != ' ' {
				text = append(text, ' ')
			}
		}
	}
	if emit == nil || len(text) == 0 {
		return
	}
	m := startTm.Multiply(gs.CTM)
	end := m.Transform(coords.Point{X: advance, Y: 0})
	origin := m.Transform(coords.Point{})
	width := coords.Bounds(origin, end)
	emit(Span{
		Text:     string(text),
		Matrix:   start,
		Width:    math.Hypot(width.Width, width.Height),
		FontName: ts.FontName,
		Color:    gs.Fill,
	})
}

func (t *Tracer) renderingMatrix(gs *GraphicsState) coords.Matrix {
	ts := gs.Text
	size := coords.Matrix{ts.FontSize * ts.HorizScale, 0, 0, ts.FontSize, 0, ts.Rise}
	return size.Multiply(ts.TextMatrix).Multiply(gs.CTM)
}

func (t *Tracer) decode(ts *TextState, s []byte) []Glyph {
	if ts.Font != nil {
		return ts.Font.Decode(s)
	}
	out := make([]Glyph, len(s))
	for i, b := range s {
		out[i] = Glyph{Text: string(rune(b)), Width: 500, Space: b == ' '}
	}
	return out
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

func gray(v float64) color.RGBA {
	c := channel(v)
	return color.RGBA{R: c, G: c, B: c, A: 0xff}
}

func rgb(r, g, b float64) color.RGBA {
	return color.RGBA{R: channel(r), G: channel(g), B: channel(b), A: 0xff}
}

func cmyk(c, m, y, k float64) color.RGBA {
	return rgb((1-c)*(1-k), (1-m)*(1-k), (1-y)*(1-k))
}
