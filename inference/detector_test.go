package inference

import (
	"context"
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-shelf/common"
	"github.com/nvr-ai/go-shelf/models/postprocess"
)

// twoCandidates is a [6, 2] output with candidates at 0.9 and 0.5 overlapping
// with an IoU of 0.6.
var twoCandidates = []float32{
	0.5, 0.55, // cx
	0.5, 0.5, // cy
	0.2, 0.2, // w
	0.2, 0.2, // h
	0.1, 0.0, // roi
	0.9, 0.5, // confidence
}

func newTestDetector(t *testing.T, runner *fakeRunner) *Detector {
	t.Helper()
	logger, _ := test.NewNullLogger()
	pp, err := postprocess.NewEngine(postprocess.DefaultConfig(), logger)
	require.NoError(t, err)
	d, err := NewDetector(runner, pp, logger)
	require.NoError(t, err)
	return d
}

func detectionRunner() *fakeRunner {
	return newFakeRunner([]int64{1, 4, 4, 3}, []int64{1, 6, 2}, twoCandidates)
}

func TestDetector_Detect(t *testing.T) {
	runner := detectionRunner()
	d := newTestDetector(t, runner)

	boxes, err := d.Detect(context.Background(), solidImage(8, 8, color.Gray{Y: 100}))
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, float32(0.9), boxes[0].Confidence)
	assert.Equal(t, common.ClassProduct, boxes[0].ClassName)
	assert.InDelta(t, 100.0/255, runner.Input()[0], 1e-6)
}

func TestDetector_DetectOverrides(t *testing.T) {
	d := newTestDetector(t, detectionRunner())

	boxes, err := d.Detect(context.Background(), solidImage(4, 4, color.White),
		postprocess.WithDetectionThreshold(0.95))
	require.NoError(t, err)
	assert.Empty(t, boxes)

	boxes, err = d.Detect(context.Background(), solidImage(4, 4, color.White),
		postprocess.WithIoUThreshold(0.7))
	require.NoError(t, err)
	assert.Len(t, boxes, 2)
}

func TestDetector_RunError(t *testing.T) {
	runner := detectionRunner()
	runner.runErr = errors.New("boom")
	d := newTestDetector(t, runner)

	_, err := d.Detect(context.Background(), solidImage(4, 4, color.White))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestDetector_TryDetectBusy(t *testing.T) {
	runner := detectionRunner()
	runner.started = make(chan struct{})
	runner.release = make(chan struct{})
	d := newTestDetector(t, runner)
	img := solidImage(4, 4, color.White)

	done := make(chan error, 1)
	go func() {
		_, err := d.Detect(context.Background(), img)
		done <- err
	}()
	<-runner.started

	_, err := d.TryDetect(context.Background(), img)
	assert.True(t, errors.Is(err, ErrBusy))

	close(runner.release)
	require.NoError(t, <-done)

	runner.started = nil
	boxes, err := d.TryDetect(context.Background(), img)
	require.NoError(t, err)
	assert.Len(t, boxes, 1)
	assert.Equal(t, 2, runner.runCount())
}

func TestDetector_DetectCanceledWhileWaiting(t *testing.T) {
	runner := detectionRunner()
	runner.started = make(chan struct{})
	runner.release = make(chan struct{})
	d := newTestDetector(t, runner)
	img := solidImage(4, 4, color.White)

	done := make(chan error, 1)
	go func() {
		_, err := d.Detect(context.Background(), img)
		done <- err
	}()
	<-runner.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Detect(ctx, img)
	assert.True(t, errors.Is(err, context.Canceled))

	close(runner.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, runner.runCount())
}

func TestDetector_TryDetectCanceled(t *testing.T) {
	runner := detectionRunner()
	d := newTestDetector(t, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.TryDetect(ctx, solidImage(4, 4, color.White))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, runner.runCount())
}

func TestNewDetector_UnsupportedShapes(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pp, err := postprocess.NewEngine(postprocess.DefaultConfig(), logger)
	require.NoError(t, err)

	_, err = NewDetector(newFakeRunner([]int64{4, 4, 3}, []int64{1, 6, 2}, nil), pp, logger)
	assert.True(t, errors.Is(err, ErrUnsupportedShape))

	_, err = NewDetector(newFakeRunner([]int64{1, 4, 4, 3}, []int64{2, 6, 2}, nil), pp, logger)
	assert.True(t, errors.Is(err, ErrUnsupportedShape))

	short := newFakeRunner([]int64{1, 4, 4, 3}, []int64{1, 6, 2}, nil)
	short.input = short.input[:10]
	_, err = NewDetector(short, pp, logger)
	assert.True(t, errors.Is(err, ErrUnsupportedShape))
}

func TestNewDetector_LogsModelReady(t *testing.T) {
	logger, hook := test.NewNullLogger()
	pp, err := postprocess.NewEngine(postprocess.DefaultConfig(), logger)
	require.NoError(t, err)

	_, err = NewDetector(detectionRunner(), pp, logger)
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "detection model ready", entry.Message)
	assert.Equal(t, 6, entry.Data["channels"])
	assert.Equal(t, 2, entry.Data["elements"])
}

func TestDetector_Close(t *testing.T) {
	runner := detectionRunner()
	d := newTestDetector(t, runner)

	require.NoError(t, d.Close())
	assert.True(t, runner.closed)
}
