package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

const (
	inputMean   float32 = 0
	inputStdDev float32 = 255
)

// PrepareInput resizes img to the model input and writes normalized RGB
// values into dst.
//
// Resizing uses nearest-neighbour sampling and pixels are normalized as
// (v - 0) / 255, matching how the shelf models were exported.
//
// Arguments:
//   - img: The frame to prepare.
//   - shape: The model input shape (must have 3 channels).
//   - dst: The destination buffer, at least shape.Size() floats.
//
// Returns:
//   - error: If the shape is not RGB or dst is too small.
func PrepareInput(img image.Image, shape InputShape, dst []float32) error {
	if shape.Channels != 3 {
		return errors.Wrapf(ErrUnsupportedShape, "expected 3 input channels, got %d", shape.Channels)
	}
	if len(dst) < shape.Size() {
		return errors.Errorf("destination tensor only holds %d floats, needs %d", len(dst), shape.Size())
	}

	w, h := shape.Width, shape.Height
	resized := resize.Resize(uint(w), uint(h), img, resize.NearestNeighbor)
	origin := resized.Bounds().Min
	plane := w * h

	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(origin.X+x, origin.Y+y).RGBA()
			rf := normalize(r)
			gf := normalize(g)
			bf := normalize(b)
			if shape.ChannelsFirst {
				dst[i] = rf
				dst[plane+i] = gf
				dst[2*plane+i] = bf
			} else {
				dst[3*i] = rf
				dst[3*i+1] = gf
				dst[3*i+2] = bf
			}
			i++
		}
	}
	return nil
}

func normalize(v uint32) float32 {
	return (float32(v>>8) - inputMean) / inputStdDev
}
