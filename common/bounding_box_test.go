package common

import (
	"image"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// box builds a BoundingBox from center/size the same way the decoder does.
func box(cx, cy, w, h, conf float32) BoundingBox {
	return BoundingBox{
		X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2,
		CX: cx, CY: cy, W: w, H: h,
		Confidence: conf,
		ClassIndex: 0,
		ClassName:  ClassProduct,
	}
}

func TestBoundingBoxString(t *testing.T) {
	b := BoundingBox{ClassName: ClassProduct, Confidence: 0.9, X1: 0.4, Y1: 0.4, X2: 0.6, Y2: 0.6}
	assert.Equal(t, "Object PRODUCT (confidence 0.900000): (0.4000, 0.4000), (0.6000, 0.6000)", b.String())
}

func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		a, b     BoundingBox
		expected float32
	}{
		{
			name:     "identical boxes",
			a:        box(0.5, 0.5, 0.2, 0.2, 0.9),
			b:        box(0.5, 0.5, 0.2, 0.2, 0.5),
			expected: 1.0,
		},
		{
			name:     "no overlap",
			a:        box(0.2, 0.2, 0.2, 0.2, 0.9),
			b:        box(0.8, 0.8, 0.2, 0.2, 0.9),
			expected: 0.0,
		},
		{
			name:     "touching edges",
			a:        box(0.25, 0.5, 0.5, 0.5, 0.9),
			b:        box(0.75, 0.5, 0.5, 0.5, 0.9),
			expected: 0.0,
		},
		{
			name:     "quarter overlap",
			a:        box(0.25, 0.25, 0.5, 0.5, 0.9),
			b:        box(0.5, 0.5, 0.5, 0.5, 0.9),
			expected: 0.142857, // 0.0625 / (0.25 + 0.25 - 0.0625)
		},
		{
			name:     "one inside other",
			a:        box(0.5, 0.5, 0.4, 0.4, 0.9),
			b:        box(0.5, 0.5, 0.2, 0.2, 0.9),
			expected: 0.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.IoU(&tt.b)
			assert.InDelta(t, tt.expected, got, 1e-5)

			reverse := tt.b.IoU(&tt.a)
			assert.InDelta(t, got, reverse, 1e-6, "IoU should be symmetric")
		})
	}
}

func TestIoU_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		a, b BoundingBox
	}{
		{
			name: "two zero-area boxes at the same point",
			a:    box(0.5, 0.5, 0, 0, 0.9),
			b:    box(0.5, 0.5, 0, 0, 0.8),
		},
		{
			name: "NaN width",
			a:    box(0.5, 0.5, math32.NaN(), 0.2, 0.9),
			b:    box(0.5, 0.5, 0.2, 0.2, 0.8),
		},
		{
			name: "negative extents cancelling the union",
			a:    box(0.5, 0.5, -0.2, 0.2, 0.9),
			b:    box(0.5, 0.5, 0.2, 0.2, 0.8),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iou := tt.a.IoU(&tt.b)
			assert.False(t, math32.IsNaN(iou))
			assert.Equal(t, float32(0), iou)
			_, degenerate := tt.a.IoUChecked(&tt.b)
			assert.True(t, degenerate)
		})
	}
}

func TestIoU_Bounds(t *testing.T) {
	boxes := []BoundingBox{
		box(0.5, 0.5, 0.2, 0.2, 0.9),
		box(0.55, 0.5, 0.2, 0.3, 0.9),
		box(0.1, 0.1, 0.1, 0.1, 0.9),
		box(0.5, 0.5, 1, 1, 0.9),
		box(0.3, 0.7, 0.05, 0.4, 0.9),
	}
	for i := range boxes {
		for j := range boxes {
			iou := boxes[i].IoU(&boxes[j])
			assert.GreaterOrEqual(t, iou, float32(0))
			assert.LessOrEqual(t, iou, float32(1))
		}
		assert.InDelta(t, 1.0, boxes[i].IoU(&boxes[i]), 1e-5)
	}
}

func TestInUnitRange(t *testing.T) {
	assert.True(t, (&BoundingBox{X1: 0, Y1: 0, X2: 1, Y2: 1}).InUnitRange())
	assert.False(t, (&BoundingBox{X1: -0.1, Y1: 0, X2: 0.1, Y2: 1}).InUnitRange())
	assert.False(t, (&BoundingBox{X1: 0, Y1: 0, X2: 1.01, Y2: 1}).InUnitRange())
	assert.False(t, (&BoundingBox{X1: math32.NaN(), Y1: 0, X2: 1, Y2: 1}).InUnitRange())
}

func TestToRect(t *testing.T) {
	b := box(0.5, 0.5, 0.2, 0.2, 0.9)
	assert.Equal(t, image.Rect(400, 200, 600, 300), b.ToRect(1000, 500))

	inverted := BoundingBox{X1: 0.6, Y1: 0.6, X2: 0.4, Y2: 0.4}
	r := inverted.ToRect(100, 100)
	require.True(t, r.Min.X <= r.Max.X)
	assert.Equal(t, image.Rect(40, 40, 60, 60), r)
}

func TestGeometryHelpers(t *testing.T) {
	b := box(0.5, 0.4, 0.2, 0.4, 0.9)

	c := b.Center()
	assert.InDelta(t, 0.5, c.X, 1e-6)
	assert.InDelta(t, 0.4, c.Y, 1e-6)

	he := b.HalfExtents()
	assert.InDelta(t, 0.1, he.X, 1e-6)
	assert.InDelta(t, 0.2, he.Y, 1e-6)

	corners := b.Corners()
	assert.Equal(t, Point{X: b.X1, Y: b.Y1}, corners[0])
	assert.Equal(t, Point{X: b.X2, Y: b.Y1}, corners[1])
	assert.Equal(t, Point{X: b.X1, Y: b.Y2}, corners[2])
	assert.Equal(t, Point{X: b.X2, Y: b.Y2}, corners[3])
}
