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

// ErrBusy is returned by TryDetect when another frame is still being processed.
var ErrBusy = errors.New("detector busy")

// Detector runs a detection model over frames and post-processes its output.
//
// The underlying Runner is not reentrant, so at most one frame is in flight
// at a time. Detect waits for its turn; TryDetect drops the frame instead.
type Detector struct {
	runner   Runner
	engine   *postprocess.Engine
	input    InputShape
	channels int
	elements int
	slot     chan struct{}
	log      logrus.FieldLogger
	prof     *profiler.Profiler
}

// NewDetector binds a runner to a post-processing engine.
//
// Arguments:
//   - runner: A loaded detection model.
//   - engine: The post-processing engine.
//   - logger: Destination for diagnostics. Nil uses the logrus standard logger.
//
// Returns:
//   - *Detector: The detector. It takes ownership of runner.
//   - error: If the model's input or output shape is unsupported.
func NewDetector(runner Runner, engine *postprocess.Engine, logger logrus.FieldLogger) (*Detector, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	input, err := ParseInputShape(runner.InputShape())
	if err != nil {
		return nil, errors.Wrap(err, "detection model input")
	}
	channels, elements, err := ParseOutputShape(runner.OutputShape())
	if err != nil {
		return nil, errors.Wrap(err, "detection model output")
	}
	if len(runner.Input()) < input.Size() {
		return nil, errors.Wrapf(ErrUnsupportedShape, "input buffer holds %d floats, shape needs %d",
			len(runner.Input()), input.Size())
	}

	logger.WithFields(logrus.Fields{
		"input":    runner.InputShape(),
		"output":   runner.OutputShape(),
		"channels": channels,
		"elements": elements,
	}).Info("detection model ready")

	return &Detector{
		runner:   runner,
		engine:   engine,
		input:    input,
		channels: channels,
		elements: elements,
		slot:     make(chan struct{}, 1),
		log:      logger,
	}, nil
}

// Detect runs the model on img, waiting for any in-flight frame to finish.
//
// Arguments:
//   - ctx: Cancels the wait for the model. A run already started completes.
//   - img: The frame.
//   - opts: Per-call post-processing overrides.
//
// Returns:
//   - []common.BoundingBox: The final boxes in normalized coordinates.
//   - error: Context, preprocessing, runtime or post-processing errors.
func (d *Detector) Detect(ctx context.Context, img image.Image, opts ...postprocess.Option) ([]common.BoundingBox, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d.slot <- struct{}{}:
	}
	defer func() { <-d.slot }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.detect(img, opts)
}

// TryDetect is Detect that returns ErrBusy instead of waiting.
func (d *Detector) TryDetect(ctx context.Context, img image.Image, opts ...postprocess.Option) ([]common.BoundingBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case d.slot <- struct{}{}:
	default:
		d.prof.Count("dropped")
		return nil, ErrBusy
	}
	defer func() { <-d.slot }()

	return d.detect(img, opts)
}

func (d *Detector) detect(img image.Image, opts []postprocess.Option) ([]common.BoundingBox, error) {
	done := d.prof.StartOperation("preprocess")
	err := PrepareInput(img, d.input, d.runner.Input())
	done()
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare input")
	}

	done = d.prof.StartOperation("inference")
	err = d.runner.Run()
	done()
	if err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	done = d.prof.StartOperation("postprocess")
	boxes, err := d.engine.Process(d.runner.Output(), d.channels, d.elements, opts...)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "failed to post-process output")
	}

	d.prof.Count("frames")
	if len(boxes) == 0 {
		d.prof.Count("empty")
	}
	return boxes, nil
}

// Close releases the runner once no frame is in flight.
func (d *Detector) Close() error {
	d.slot <- struct{}{}
	defer func() { <-d.slot }()
	return d.runner.Close()
}
