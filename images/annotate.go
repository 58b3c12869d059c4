package images

import (
	"image/color"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-shelf/common"
)

// BoxThickness is the stroke width of drawn boxes in pixels.
const BoxThickness = 2

var (
	productColor = color.RGBA{R: 255, A: 255}
	otherColor   = color.RGBA{G: 255, A: 255}
)

// BoxColor returns red for products and green for everything else.
func BoxColor(name common.ClassName) color.RGBA {
	if name == common.ClassProduct {
		return productColor
	}
	return otherColor
}

// DrawBoxes strokes each box onto mat in place.
//
// Boxes with a corner outside the frame are skipped.
//
// Arguments:
//   - mat: A BGR frame.
//   - boxes: Boxes in normalized coordinates.
//
// Returns:
//   - int: The number of boxes drawn.
func DrawBoxes(mat *gocv.Mat, boxes []common.BoundingBox) int {
	cols, rows := mat.Cols(), mat.Rows()
	drawn := 0
	for i := range boxes {
		b := &boxes[i]
		if !(b.X1 >= 0 && b.Y1 >= 0 && b.X2 <= 1 && b.Y2 <= 1) {
			continue
		}
		gocv.Rectangle(mat, b.ToRect(cols, rows), BoxColor(b.ClassName), BoxThickness)
		drawn++
	}
	return drawn
}

// Annotate returns a copy of src with boxes drawn on it. The caller owns
// the returned Mat.
func Annotate(src gocv.Mat, boxes []common.BoundingBox) (gocv.Mat, int) {
	dst := src.Clone()
	return dst, DrawBoxes(&dst, boxes)
}
