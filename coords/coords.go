// Package coords converts between the three coordinate systems the editor
// works with: pointer positions inside a zoomed page element, render space
// (page units at zoom 1.0, top-left origin, y down) and PDF user space
// (bottom-left origin, y up).
package coords

import (
	"errors"
	"math"
)

// Zoom limits and step used by the editor toolbar.
const (
	MinZoom     = 0.5
	MaxZoom     = 3.0
	ZoomStep    = 0.1
	DefaultZoom = 1.0
)

type Point struct{ X, Y float64 }

// ToDocumentSpace maps a pointer offset, measured from the top-left corner
// of the page element, to zoom-independent render coordinates. Stored
// annotation coordinates always come from here.
func ToDocumentSpace(px, py, zoom float64) (x, y float64) {
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	return px / zoom, py / zoom
}

// ToRenderSpace is the inverse of ToDocumentSpace. It is used for display
// positioning only and never for storage.
func ToRenderSpace(x, y, zoom float64) (rx, ry float64) {
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	return x * zoom, y * zoom
}

// FlipY converts a top-origin y value into a bottom-origin one for a page of
// the given height. Only the export pass calls it.
func FlipY(pageHeight, y float64) float64 { return pageHeight - y }

// ClampZoom limits z to [MinZoom, MaxZoom]. NaN maps to DefaultZoom.
func ClampZoom(z float64) float64 {
	switch {
	case math.IsNaN(z):
		return DefaultZoom
	case z < MinZoom:
		return MinZoom
	case z > MaxZoom:
		return MaxZoom
	}
	// keep toolbar steps free of accumulated float noise (1.2000000000000002)
	return math.Round(z*100) / 100
}

// Matrix is a PDF affine transform [a b c d e f].
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns m×o, i.e. m applied first and o second.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det, -m[1] / det,
		-m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det, (m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }

// FontSize returns the effective font size encoded in a text rendering
// matrix: the length of its transformed x unit vector.
func FontSize(m Matrix) float64 { return math.Hypot(m[0], m[1]) }

// Rect is an axis-aligned rectangle in render space.
type Rect struct {
	X, Y, Width, Height float64
}

// Contains reports whether (x, y) lies inside r, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width && y >= r.Y && y <= r.Y+r.Height
}

// Inset grows r by d on every side (shrinks it for negative d).
func (r Rect) Inset(d float64) Rect {
	return Rect{X: r.X - d, Y: r.Y - d, Width: r.Width + 2*d, Height: r.Height + 2*d}
}

// Bounds returns the smallest rectangle containing every point.
func Bounds(points ...Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
