// Package common - Shared detection types.
package common

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// ClassName is the coarse category assigned to a detection.
type ClassName string

const (
	// ClassProduct is a retail product facing.
	ClassProduct ClassName = "PRODUCT"
	// ClassROI is a region of interest (shelf strip, price label area, ...).
	ClassROI ClassName = "ROI"
)

// NoClass is the class index used when no class channel beat the threshold.
const NoClass = -1

// BoundingBox is a single detection in normalized image coordinates.
//
// The corner fields are derived from the center/size fields at decode time.
// Both are kept: NMS areas come from W*H, while clipping and drawing use the
// corners.
type BoundingBox struct {
	X1         float32   `json:"x1"`
	Y1         float32   `json:"y1"`
	X2         float32   `json:"x2"`
	Y2         float32   `json:"y2"`
	CX         float32   `json:"cx"`
	CY         float32   `json:"cy"`
	W          float32   `json:"w"`
	H          float32   `json:"h"`
	Confidence float32   `json:"confidence"`
	ClassIndex int       `json:"class_index"`
	ClassName  ClassName `json:"class_name"`
}

// Point is a normalized 2D position.
type Point struct {
	X, Y float32
}

// String formats the bounding box information for display.
//
// @example
// box := BoundingBox{ClassName: ClassProduct, Confidence: 0.9, X1: 0.4, Y1: 0.4, X2: 0.6, Y2: 0.6}
// fmt.Println(box.String()) // Object PRODUCT (confidence 0.900000): (0.4000, 0.4000), (0.6000, 0.6000)
func (b *BoundingBox) String() string {
	return fmt.Sprintf("Object %s (confidence %f): (%.4f, %.4f), (%.4f, %.4f)",
		b.ClassName, b.Confidence, b.X1, b.Y1, b.X2, b.Y2)
}

// Area returns the decoded area W*H.
func (b *BoundingBox) Area() float32 {
	return b.W * b.H
}

// IoU calculates the Intersection over Union between two bounding boxes.
//
// The intersection is taken from the corners, the two areas from W*H. When
// the union is zero, negative or NaN (degenerate boxes) the result is 0 so
// that a degenerate pair never causes suppression.
//
// Arguments:
//   - other: The other bounding box to calculate IoU with.
//
// Returns:
//   - The IoU value in [0, 1].
//
// @example
// a := BoundingBox{X1: 0, Y1: 0, X2: 0.5, Y2: 0.5, W: 0.5, H: 0.5}
// b := BoundingBox{X1: 0.25, Y1: 0.25, X2: 0.75, Y2: 0.75, W: 0.5, H: 0.5}
// iou := a.IoU(&b) // ~0.142857 (0.0625 / 0.4375)
func (b *BoundingBox) IoU(other *BoundingBox) float32 {
	iou, _ := b.IoUChecked(other)
	return iou
}

// IoUChecked is IoU that also reports whether the result fell back to 0
// because the union could not be computed.
func (b *BoundingBox) IoUChecked(other *BoundingBox) (iou float32, degenerate bool) {
	ix1 := math32.Max(b.X1, other.X1)
	iy1 := math32.Max(b.Y1, other.Y1)
	ix2 := math32.Min(b.X2, other.X2)
	iy2 := math32.Min(b.Y2, other.Y2)

	inter := math32.Max(0, ix2-ix1) * math32.Max(0, iy2-iy1)
	union := b.Area() + other.Area() - inter

	// NaN compares false, so this also catches NaN unions.
	if !(union > 0) {
		return 0, true
	}

	iou = inter / union
	switch {
	case math32.IsNaN(iou):
		return 0, true
	case iou > 1:
		return 1, false
	case iou < 0:
		return 0, false
	}
	return iou, false
}

// InUnitRange reports whether all four corners lie in [0, 1].
func (b *BoundingBox) InUnitRange() bool {
	return inUnit(b.X1) && inUnit(b.Y1) && inUnit(b.X2) && inUnit(b.Y2)
}

func inUnit(v float32) bool {
	return v >= 0 && v <= 1
}

// ToRect scales the box to pixel space for an image of the given size.
//
// This loses fractional pixels around the edges.
//
// @example
// box := BoundingBox{X1: 0.4, Y1: 0.4, X2: 0.6, Y2: 0.6}
// rect := box.ToRect(1000, 500) // (400,200)-(600,300)
func (b *BoundingBox) ToRect(width, height int) image.Rectangle {
	w := float32(width)
	h := float32(height)
	return image.Rect(
		int(math32.Round(b.X1*w)),
		int(math32.Round(b.Y1*h)),
		int(math32.Round(b.X2*w)),
		int(math32.Round(b.Y2*h)),
	).Canon()
}

// Center returns the midpoint of the corners.
func (b *BoundingBox) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// HalfExtents returns half of the decoded width and height.
func (b *BoundingBox) HalfExtents() Point {
	return Point{X: b.W / 2, Y: b.H / 2}
}

// Corners returns the top-left, top-right, bottom-left and bottom-right
// corners, in that order. These are the points hit-tested when anchoring a
// box in the camera frame.
func (b *BoundingBox) Corners() [4]Point {
	return [4]Point{
		{X: b.X1, Y: b.Y1},
		{X: b.X2, Y: b.Y1},
		{X: b.X1, Y: b.Y2},
		{X: b.X2, Y: b.Y2},
	}
}
