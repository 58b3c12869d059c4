package inference

import (
	"context"
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-shelf/models/postprocess"
	"github.com/nvr-ai/go-shelf/profiler"
)

func TestEngineBuilder_Build(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := postprocess.DefaultConfig()
	cfg.NMS.IoUThreshold = 0.7

	engine, err := NewEngineBuilder().
		WithRunner(detectionRunner()).
		WithPostProcess(cfg).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	defer engine.Close()

	boxes, err := engine.Detect(context.Background(), solidImage(4, 4, color.White))
	require.NoError(t, err)
	assert.Len(t, boxes, 2)
}

func TestEngineBuilder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		builder *EngineBuilder
		want    error
	}{
		{
			name:    "missing runner",
			builder: NewEngineBuilder(),
		},
		{
			name:    "nil runner",
			builder: NewEngineBuilder().WithRunner(nil),
		},
		{
			name: "invalid threshold",
			builder: NewEngineBuilder().
				WithRunner(detectionRunner()).
				WithPostProcess(postprocess.Config{DetectionThreshold: 2}),
			want: postprocess.ErrInvalidThreshold,
		},
		{
			name: "unsupported model",
			builder: NewEngineBuilder().
				WithRunner(newFakeRunner([]int64{1, 4, 4, 3}, []int64{6}, nil)),
			want: ErrUnsupportedShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := tt.builder.Build()
			require.Error(t, err)
			assert.Nil(t, engine)
			if tt.want != nil {
				assert.True(t, errors.Is(err, tt.want), err.Error())
			}
		})
	}
}

func TestEngineBuilder_FirstErrorWins(t *testing.T) {
	b := NewEngineBuilder().
		WithRunner(nil).
		WithPostProcess(postprocess.Config{DetectionThreshold: 2})
	assert.True(t, b.HasError())

	_, err := b.Build()
	require.Error(t, err)
	assert.False(t, errors.Is(err, postprocess.ErrInvalidThreshold))
}

func TestEngineBuilder_MustBuildPanics(t *testing.T) {
	assert.Panics(t, func() { NewEngineBuilder().MustBuild() })
}

func TestEngineBuilder_WithProfiler(t *testing.T) {
	prof := profiler.New(10)
	engine, err := NewEngineBuilder().
		WithRunner(detectionRunner()).
		WithProfiler(prof).
		Build()
	require.NoError(t, err)

	_, err = engine.Detect(context.Background(), solidImage(4, 4, color.White))
	require.NoError(t, err)

	stats := prof.Snapshot()
	for _, stage := range []string{"preprocess", "inference", "postprocess"} {
		assert.Equal(t, int64(1), stats.Operations[stage].Count, stage)
	}
	assert.Equal(t, int64(1), stats.Counters["frames"])
	assert.Zero(t, stats.Counters["empty"])
}
