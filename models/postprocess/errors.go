package postprocess

import "github.com/pkg/errors"

var (
	// ErrShapeMismatch is returned when a buffer does not match its declared shape.
	ErrShapeMismatch = errors.New("tensor shape mismatch")
	// ErrInvalidLayout is returned when a channel layout does not fit the tensor.
	ErrInvalidLayout = errors.New("invalid channel layout")
	// ErrInvalidThreshold is returned for thresholds that are NaN or outside [0, 1].
	ErrInvalidThreshold = errors.New("invalid threshold")
)
