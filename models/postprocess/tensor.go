package postprocess

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// DetectionTensor is a read-only view over a detector output laid out as
// [channels, elements], channel-major: channel k of candidate c lives at
// c + elements*k.
type DetectionTensor struct {
	data     []float32
	channels int
	elements int
}

// NewDetectionTensor wraps data without copying it.
//
// Arguments:
//   - data: The flat output buffer.
//   - channels: Number of channels (4 geometry + at least one score channel).
//   - elements: Number of candidates.
//
// Returns:
//   - *DetectionTensor: The view.
//   - error: ErrShapeMismatch if len(data) != channels*elements or the shape is too small.
func NewDetectionTensor(data []float32, channels, elements int) (*DetectionTensor, error) {
	if channels < GeometryChannels+1 {
		return nil, errors.Wrapf(ErrShapeMismatch, "channels must be >= %d, got %d",
			GeometryChannels+1, channels)
	}
	if elements < 1 {
		return nil, errors.Wrapf(ErrShapeMismatch, "elements must be >= 1, got %d", elements)
	}
	if len(data) != channels*elements {
		return nil, errors.Wrapf(ErrShapeMismatch, "buffer holds %d floats, shape [%d, %d] needs %d",
			len(data), channels, elements, channels*elements)
	}
	return &DetectionTensor{data: data, channels: channels, elements: elements}, nil
}

// FromDense wraps the backing buffer of a float32 gorgonia tensor shaped
// [C, N] or [1, C, N].
func FromDense(t tensor.Tensor) (*DetectionTensor, error) {
	if t.Dtype() != tensor.Float32 {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected float32 tensor, got %v", t.Dtype())
	}
	shape := t.Shape()
	switch {
	case len(shape) == 3 && shape[0] == 1:
		shape = shape[1:]
	case len(shape) == 2:
	default:
		return nil, errors.Wrapf(ErrShapeMismatch, "expected [C, N] or [1, C, N], got %v", shape)
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Wrapf(ErrShapeMismatch, "unexpected backing type %T", t.Data())
	}
	return NewDetectionTensor(data, shape[0], shape[1])
}

// Channels returns the number of channels.
func (t *DetectionTensor) Channels() int { return t.channels }

// Elements returns the number of candidates.
func (t *DetectionTensor) Elements() int { return t.elements }

// At returns the value of channel k for candidate c.
func (t *DetectionTensor) At(k, c int) float32 {
	return t.data[c+t.elements*k]
}

// Geometry returns the center and size of candidate c.
func (t *DetectionTensor) Geometry(c int) (cx, cy, w, h float32) {
	n := t.elements
	return t.data[c], t.data[c+n], t.data[c+2*n], t.data[c+3*n]
}
