package main

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-shelf/common"
	"github.com/nvr-ai/go-shelf/models/postprocess"
)

// blockingEngine holds every Detect call until release is closed.
type blockingEngine struct {
	started chan struct{}
	release chan struct{}
	boxes   []common.BoundingBox
	calls   atomic.Int32
}

func newBlockingEngine(boxes ...common.BoundingBox) *blockingEngine {
	return &blockingEngine{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
		boxes:   boxes,
	}
}

func (e *blockingEngine) Detect(ctx context.Context, _ image.Image, _ ...postprocess.Option) ([]common.BoundingBox, error) {
	e.calls.Add(1)
	e.started <- struct{}{}
	select {
	case <-e.release:
		return e.boxes, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *blockingEngine) TryDetect(ctx context.Context, img image.Image, opts ...postprocess.Option) ([]common.BoundingBox, error) {
	return e.Detect(ctx, img, opts...)
}

func (e *blockingEngine) Close() error { return nil }

func TestRun_NoMode(t *testing.T) {
	err := run(context.Background(), options{deviceID: -1})
	assert.True(t, errors.Is(err, errUsage))
}

func TestRun_InvalidConfig(t *testing.T) {
	err := run(context.Background(), options{deviceID: -1, imagePath: "frame.jpg", configPath: "missing.yaml"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, errUsage))
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestOptions_Mode(t *testing.T) {
	tests := []struct {
		name string
		opts options
		want bool
	}{
		{name: "none", opts: options{deviceID: -1}},
		{name: "serve", opts: options{deviceID: -1, serve: true}, want: true},
		{name: "image", opts: options{deviceID: -1, imagePath: "a.jpg"}, want: true},
		{name: "dir", opts: options{deviceID: -1, dirPath: "frames"}, want: true},
		{name: "video", opts: options{deviceID: -1, videoPath: "aisle.mp4"}, want: true},
		{name: "camera", opts: options{deviceID: 0}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.mode() != nil)
		})
	}
}

func TestFrameWorker_DropsWhileBusy(t *testing.T) {
	engine := newBlockingEngine(common.BoundingBox{ClassName: common.ClassProduct, Confidence: 0.9})
	logger, _ := test.NewNullLogger()
	w := newFrameWorker(context.Background(), engine, logger)

	var conversions atomic.Int32
	convert := func() (image.Image, error) {
		conversions.Add(1)
		img := image.NewRGBA(image.Rect(0, 0, 2, 2))
		img.Set(0, 0, color.White)
		return img, nil
	}

	accepted, err := w.Offer(1, convert)
	require.NoError(t, err)
	assert.True(t, accepted)
	<-engine.started

	for n := 2; n <= 5; n++ {
		accepted, err = w.Offer(n, convert)
		require.NoError(t, err)
		assert.False(t, accepted, "frame %d", n)
	}
	assert.Equal(t, int32(1), conversions.Load())

	close(engine.release)
	require.Eventually(t, func() bool { return len(w.Latest()) == 1 }, time.Second, time.Millisecond)

	detected, dropped := w.Stop()
	assert.Equal(t, 1, detected)
	assert.Equal(t, 4, dropped)
	assert.Equal(t, int32(1), engine.calls.Load())

	assert.NotPanics(t, func() { w.Stop() })
}

func TestFrameWorker_ConvertError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	w := newFrameWorker(context.Background(), newBlockingEngine(), logger)
	defer w.Stop()

	accepted, err := w.Offer(1, func() (image.Image, error) { return nil, errors.New("bad frame") })
	require.Error(t, err)
	assert.False(t, accepted)
}
