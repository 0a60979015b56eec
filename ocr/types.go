// Package ocr defines the contract for plugging an OCR engine into page
// rendering. Pages without a text layer (scans, flattened exports) are
// rasterized and handed to an Engine so smart replace still finds runs.
package ocr

import "context"

// ImageFormat identifies the content type of an OCR input image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
)

// Region describes a rectangular area in pixel coordinates with the origin in
// the upper-left corner of the image.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Scale divides every coordinate by f, turning bitmap pixels back into page
// units for a bitmap rendered at scale f.
func (r Region) Scale(f float64) Region {
	if f == 0 {
		return r
	}
	return Region{X: r.X / f, Y: r.Y / f, Width: r.Width / f, Height: r.Height / f}
}

// Input is a single page image submitted for OCR.
type Input struct {
	// ID is echoed back in the corresponding Result.
	ID     string
	Image  []byte
	Format ImageFormat
	// PageIndex is the zero-based page the image was rendered from.
	PageIndex int
	// DPI is the effective resolution; zero means unknown.
	DPI int
	// Languages are trained-data names such as "eng" or "deu".
	Languages []string
	// Region restricts recognition to part of the image. Nil means the
	// whole image.
	Region *Region
	// Metadata passes engine specific variables through unchanged.
	Metadata map[string]string
}

// TextWord is a single recognized token.
type TextWord struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// TextLine groups the words of one baseline.
type TextLine struct {
	Text       string
	Bounds     Region
	Words      []TextWord
	Confidence float64
}

// Result is the OCR output for one input image.
type Result struct {
	InputID   string
	PlainText string
	Lines     []TextLine
	Language  string
}

// Engine recognizes text in one image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// Nop recognizes nothing. It stands in when OCR is disabled.
type Nop struct{}

func (Nop) Name() string { return "noop" }

func (Nop) Recognize(_ context.Context, in Input) (Result, error) {
	return Result{InputID: in.ID}, nil
}
