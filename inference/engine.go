package inference

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-shelf/common"
	"github.com/nvr-ai/go-shelf/models/postprocess"
	"github.com/nvr-ai/go-shelf/profiler"
)

// Engine defines the interface for shelf detection engines.
type Engine interface {
	Detect(ctx context.Context, img image.Image, opts ...postprocess.Option) ([]common.BoundingBox, error)
	TryDetect(ctx context.Context, img image.Image, opts ...postprocess.Option) ([]common.BoundingBox, error)
	Close() error
}

// EngineBuilder assembles a detection engine with a fluent API.
type EngineBuilder struct {
	runner Runner
	config postprocess.Config
	log    logrus.FieldLogger
	prof   *profiler.Profiler
	err    error
}

// NewEngineBuilder creates a new engine builder with the default
// post-processing configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
//
// @example
// engine, err := NewEngineBuilder().
//
//	WithRunner(runner).
//	WithPostProcess(cfg.PostProcess).
//	WithLogger(logger).
//	Build()
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{config: postprocess.DefaultConfig()}
}

// WithRunner sets the detection model runner.
func (b *EngineBuilder) WithRunner(runner Runner) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if runner == nil {
		b.err = errors.New("runner is nil")
		return b
	}
	b.runner = runner
	return b
}

// WithPostProcess sets the post-processing configuration.
func (b *EngineBuilder) WithPostProcess(cfg postprocess.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if err := cfg.Validate(); err != nil {
		b.err = err
		return b
	}
	b.config = cfg
	return b
}

// WithLogger sets the logger used by the engine and the detector.
func (b *EngineBuilder) WithLogger(logger logrus.FieldLogger) *EngineBuilder {
	b.log = logger
	return b
}

// WithProfiler records stage timings and dropped frames into p.
func (b *EngineBuilder) WithProfiler(p *profiler.Profiler) *EngineBuilder {
	b.prof = p
	return b
}

// HasError checks if the engine builder has errors.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the engine and panics if there is an error.
func (b *EngineBuilder) MustBuild() Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// Build builds the engine.
//
// Returns:
//   - Engine: A *Detector.
//   - error: The first error recorded by a With* call, or a missing runner.
func (b *EngineBuilder) Build() (Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.runner == nil {
		return nil, errors.New("runner not configured")
	}

	pp, err := postprocess.NewEngine(b.config, b.log)
	if err != nil {
		return nil, err
	}
	detector, err := NewDetector(b.runner, pp, b.log)
	if err != nil {
		return nil, err
	}
	detector.prof = b.prof
	return detector, nil
}
