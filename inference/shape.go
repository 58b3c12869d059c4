package inference

import "github.com/pkg/errors"

// ErrUnsupportedShape is returned for model tensors this package cannot feed or read.
var ErrUnsupportedShape = errors.New("unsupported tensor shape")

// InputShape describes a square-ish image input tensor.
type InputShape struct {
	Width    int
	Height   int
	Channels int
	// ChannelsFirst is true for [1, C, H, W] and false for [1, H, W, C].
	ChannelsFirst bool
}

// Size returns the number of floats the input tensor holds.
func (s InputShape) Size() int {
	return s.Width * s.Height * s.Channels
}

// ParseInputShape reads a 4D image input shape.
//
// A second dimension of 3 is taken as channels-first ([1, 3, H, W]);
// anything else is read as [1, H, W, C].
//
// Arguments:
//   - shape: The model's input tensor dimensions.
//
// Returns:
//   - InputShape: The parsed shape.
//   - error: ErrUnsupportedShape if the shape is not 4D with positive dims.
//
// @example
// s, _ := ParseInputShape([]int64{1, 640, 640, 3}) // {640 640 3 false}
// s, _ = ParseInputShape([]int64{1, 3, 640, 640})  // {640 640 3 true}
func ParseInputShape(shape []int64) (InputShape, error) {
	if len(shape) != 4 {
		return InputShape{}, errors.Wrapf(ErrUnsupportedShape, "input must be 4D, got %v", shape)
	}
	for _, d := range shape[1:] {
		if d <= 0 {
			return InputShape{}, errors.Wrapf(ErrUnsupportedShape, "input has non-positive dimension: %v", shape)
		}
	}

	if shape[1] == 3 {
		return InputShape{
			Height:        int(shape[2]),
			Width:         int(shape[3]),
			Channels:      3,
			ChannelsFirst: true,
		}, nil
	}
	return InputShape{
		Height:   int(shape[1]),
		Width:    int(shape[2]),
		Channels: int(shape[3]),
	}, nil
}

// ParseOutputShape reads a detector output shape [1, C, N] or [C, N] and
// returns channels and elements.
func ParseOutputShape(shape []int64) (channels, elements int, err error) {
	dims := shape
	if len(dims) == 3 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 2 || dims[0] <= 0 || dims[1] <= 0 {
		return 0, 0, errors.Wrapf(ErrUnsupportedShape, "output must be [1, C, N] or [C, N], got %v", shape)
	}
	return int(dims[0]), int(dims[1]), nil
}
