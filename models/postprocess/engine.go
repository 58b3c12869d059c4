package postprocess

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-shelf/common"
)

// Engine runs decode, filter and suppression over detector output.
//
// An Engine holds no mutable state and may be shared between goroutines, as
// long as a buffer is not mutated while a call reads it.
type Engine struct {
	config Config
	log    logrus.FieldLogger
}

// NewEngine creates an engine owning config.
//
// Arguments:
//   - config: Thresholds and optional layout.
//   - logger: Destination for diagnostics. Nil uses the logrus standard logger.
//
// Returns:
//   - *Engine: The engine.
//   - error: If a threshold is invalid or a fixed layout is malformed.
func NewEngine(config Config, logger logrus.FieldLogger) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Layout != nil && config.Layout.Confidence.Len() < 1 {
		return nil, errors.Wrap(ErrInvalidLayout, "confidence range is empty")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{config: config, log: logger}, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config {
	return e.config
}

// Option overrides a parameter for a single call.
type Option func(*Config)

// WithDetectionThreshold overrides the detection threshold for one call.
func WithDetectionThreshold(v float32) Option {
	return func(c *Config) { c.DetectionThreshold = v }
}

// WithIoUThreshold overrides the NMS IoU threshold for one call.
func WithIoUThreshold(v float32) Option {
	return func(c *Config) { c.NMS.IoUThreshold = v }
}

// Process decodes data as a [channels, elements] tensor and returns the final
// boxes.
//
// Arguments:
//   - data: The flat detector output.
//   - channels: Number of channels.
//   - elements: Number of candidates.
//   - opts: Per-call overrides.
//
// Returns:
//   - []common.BoundingBox: Boxes in descending confidence order, empty when nothing passed.
//   - error: ErrShapeMismatch, ErrInvalidLayout or ErrInvalidThreshold.
//
// @example
// boxes, err := engine.Process(output, 6, 8400, WithDetectionThreshold(0.5))
func (e *Engine) Process(data []float32, channels, elements int, opts ...Option) ([]common.BoundingBox, error) {
	t, err := NewDetectionTensor(data, channels, elements)
	if err != nil {
		return nil, err
	}
	return e.ProcessTensor(t, opts...)
}

// ProcessTensor is Process over an already validated tensor view.
func (e *Engine) ProcessTensor(t *DetectionTensor, opts ...Option) ([]common.BoundingBox, error) {
	cfg := e.config
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layout, err := cfg.layoutFor(t.Channels())
	if err != nil {
		return nil, err
	}

	candidates := FilterCandidates(t, layout, cfg.DetectionThreshold)
	boxes, degenerate := suppress(candidates, &cfg.NMS)

	if degenerate > 0 {
		e.log.WithField("pairs", degenerate).Debug("degenerate geometry in IoU, pairs kept")
	}
	e.log.WithFields(logrus.Fields{
		"elements":   t.Elements(),
		"candidates": len(candidates),
		"boxes":      len(boxes),
	}).Debug("post-processed detections")

	return boxes, nil
}
