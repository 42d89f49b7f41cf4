package decoder

import (
	"fmt"
	"image"
)

// Geometry fixes where the bit slices sit inside a frame. It is a plain
// value; copies are independent and a Decoder never mutates its own.
//
// The bounding box spans rows [Top, Bottom) and columns
// [Left, Left+Count*BitWidth). Column band i starts at Left+i*BitWidth and
// every slice is trimmed by InsetStart on its top and left edge and by
// InsetEnd on its bottom and right edge, keeping stripe borders out of the
// comparison.
type Geometry struct {
	Top        int
	Bottom     int
	Left       int
	BitWidth   int
	InsetStart int
	InsetEnd   int
	Count      int
}

// DefaultGeometry returns the layout used by the modulation frames
func DefaultGeometry() Geometry {
	return Geometry{
		Top:        32,
		Bottom:     417,
		Left:       60,
		BitWidth:   302 - 60,
		InsetStart: 2,
		InsetEnd:   1,
		Count:      8,
	}
}

// Validate reports whether g describes at least one data slice of non-zero size
func (g Geometry) Validate() error {
	switch {
	case g.Top < 0 || g.Left < 0:
		return fmt.Errorf("geometry: negative origin (%d, %d)", g.Left, g.Top)
	case g.InsetStart < 0 || g.InsetEnd < 0:
		return fmt.Errorf("geometry: negative inset (%d, %d)", g.InsetStart, g.InsetEnd)
	case g.Count < 3:
		return fmt.Errorf("geometry: need two references and at least one data slice, got %d slices", g.Count)
	case g.BitWidth-g.InsetStart-g.InsetEnd <= 0:
		return fmt.Errorf("geometry: bit width %d leaves no pixels after insets", g.BitWidth)
	case g.Bottom-g.Top-g.InsetStart-g.InsetEnd <= 0:
		return fmt.Errorf("geometry: band [%d, %d) leaves no rows after insets", g.Top, g.Bottom)
	}
	return nil
}

// Bounds returns the bounding box containing every slice
func (g Geometry) Bounds() image.Rectangle {
	return image.Rect(g.Left, g.Top, g.Left+g.Count*g.BitWidth, g.Bottom)
}

// MinSize is the smallest image, anchored at the origin, that Fits. It is
// the far corner of the union of all slice rectangles, so the trailing
// InsetEnd pixels of the bounding box may be missing.
func (g Geometry) MinSize() image.Point {
	return image.Pt(g.Left+g.Count*g.BitWidth-g.InsetEnd, g.Bottom-g.InsetEnd)
}

// Fits reports whether a width by height image contains every slice
func (g Geometry) Fits(width, height int) bool {
	need := g.MinSize()
	return width >= need.X && height >= need.Y
}

// SliceRect returns the pixel region of slice i in image coordinates
func (g Geometry) SliceRect(i int) image.Rectangle {
	return image.Rect(
		g.Left+i*g.BitWidth+g.InsetStart,
		g.Top+g.InsetStart,
		g.Left+(i+1)*g.BitWidth-g.InsetEnd,
		g.Bottom-g.InsetEnd,
	)
}

// SliceSize returns the common width and height of every slice
func (g Geometry) SliceSize() image.Point {
	return g.SliceRect(0).Size()
}
