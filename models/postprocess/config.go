package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// DefaultDetectionThreshold is the score a candidate must strictly exceed.
const DefaultDetectionThreshold float32 = 0.4

// Config holds the post-processing parameters of an Engine.
type Config struct {
	// DetectionThreshold filters candidates at or below this score.
	DetectionThreshold float32 `json:"detection_threshold" yaml:"detection_threshold"`

	// NMS controls Non-Maximum Suppression.
	NMS NMSConfig `json:"nms" yaml:"nms"`

	// Layout overrides the channel layout. Nil selects DefaultLayout for
	// whatever channel count the tensor has.
	Layout *Layout `json:"layout,omitempty" yaml:"layout,omitempty"`
}

// DefaultConfig returns the thresholds the shelf detector was tuned with.
//
// @example
// engine, err := NewEngine(DefaultConfig(), nil)
func DefaultConfig() Config {
	return Config{
		DetectionThreshold: DefaultDetectionThreshold,
		NMS: NMSConfig{
			IoUThreshold: DefaultIoUThreshold,
		},
	}
}

// Validate checks both thresholds.
func (c Config) Validate() error {
	if err := validateThreshold("detection_threshold", c.DetectionThreshold); err != nil {
		return err
	}
	return validateThreshold("iou_threshold", c.NMS.IoUThreshold)
}

// layoutFor resolves the layout for a tensor with the given channel count.
func (c Config) layoutFor(channels int) (Layout, error) {
	layout := DefaultLayout(channels)
	if c.Layout != nil {
		layout = *c.Layout
	}
	if err := layout.Validate(channels); err != nil {
		return Layout{}, err
	}
	return layout, nil
}

func validateThreshold(name string, v float32) error {
	if math32.IsNaN(v) || v < 0 || v > 1 {
		return errors.Wrapf(ErrInvalidThreshold, "%s must be in [0, 1], got %v", name, v)
	}
	return nil
}
