package annotation

// Patch is a partial update. Nil fields are left unchanged; a set field
// that the target's kind does not have fails with ErrFieldNotApplicable.
type Patch struct {
	X, Y        *float64
	Width       *float64
	Height      *float64
	Content     *string
	Size        *float64
	Color       *Color
	FontFamily  *string
	Fill        *bool
	StrokeWidth *float64
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }

func notApplicable(field string) error {
	return &ValidationError{Field: field, Err: ErrFieldNotApplicable}
}

// apply returns a copy of a with p applied.
func (p Patch) apply(a Annotation) (Annotation, error) {
	out := a.clone()
	if p.X != nil {
		out.X = *p.X
	}
	if p.Y != nil {
		out.Y = *p.Y
	}
	switch b := out.Body.(type) {
	case *Text:
		if p.Width != nil || p.Height != nil {
			return a, notApplicable("width")
		}
		if p.Fill != nil || p.StrokeWidth != nil {
			return a, notApplicable("fill")
		}
		setString(&b.Content, p.Content)
		setFloat(&b.Size, p.Size)
		setString(&b.FontFamily, p.FontFamily)
		if p.Color != nil {
			b.Color = *p.Color
		}
	case *Whiteout:
		if err := p.onlyBox(); err != nil {
			return a, err
		}
		if p.Color != nil {
			return a, notApplicable("color")
		}
		if p.Fill != nil || p.StrokeWidth != nil {
			return a, notApplicable("fill")
		}
		setFloat(&b.Width, p.Width)
		setFloat(&b.Height, p.Height)
	case *Shape:
		if err := p.onlyBox(); err != nil {
			return a, err
		}
		setFloat(&b.Width, p.Width)
		setFloat(&b.Height, p.Height)
		setFloat(&b.StrokeWidth, p.StrokeWidth)
		if p.Color != nil {
			b.Color = *p.Color
		}
		if p.Fill != nil {
			b.Fill = *p.Fill
		}
	case *Image:
		if err := p.onlyBox(); err != nil {
			return a, err
		}
		if p.Color != nil {
			return a, notApplicable("color")
		}
		if p.Fill != nil || p.StrokeWidth != nil {
			return a, notApplicable("fill")
		}
		setFloat(&b.Width, p.Width)
		setFloat(&b.Height, p.Height)
	}
	return out, nil
}

// onlyBox rejects the text-only fields.
func (p Patch) onlyBox() error {
	switch {
	case p.Content != nil:
		return notApplicable("text")
	case p.Size != nil:
		return notApplicable("size")
	case p.FontFamily != nil:
		return notApplicable("fontFamily")
	}
	return nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
