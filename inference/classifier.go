package inference

import (
	"context"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-shelf/common"
)

// ErrEmptyCrop is returned when a box covers no pixels of the frame.
var ErrEmptyCrop = errors.New("box crop is empty")

// Classifier runs a second model over the pixels inside detected boxes and
// returns its raw output vector (class scores or an embedding).
type Classifier struct {
	runner Runner
	input  InputShape
	mu     sync.Mutex
}

// NewClassifier wraps a loaded classification model.
func NewClassifier(runner Runner) (*Classifier, error) {
	input, err := ParseInputShape(runner.InputShape())
	if err != nil {
		return nil, errors.Wrap(err, "classification model input")
	}
	return &Classifier{runner: runner, input: input}, nil
}

// Classify crops box out of img and runs the classifier on the crop.
//
// Arguments:
//   - ctx: Checked before running.
//   - img: The full frame the box was detected in.
//   - box: A box in normalized coordinates.
//
// Returns:
//   - []float32: A copy of the model output.
//   - error: ErrEmptyCrop, preprocessing or runtime errors.
func (c *Classifier) Classify(ctx context.Context, img image.Image, box common.BoundingBox) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	rect := box.ToRect(bounds.Dx(), bounds.Dy()).Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		return nil, errors.Wrapf(ErrEmptyCrop, "box %s in %v", box.String(), bounds)
	}
	crop := imaging.Crop(img, rect)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := PrepareInput(crop, c.input, c.runner.Input()); err != nil {
		return nil, errors.Wrap(err, "failed to prepare crop")
	}
	if err := c.runner.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run classifier")
	}

	out := c.runner.Output()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

// ClassifyAll classifies every box, stopping at the first error.
func (c *Classifier) ClassifyAll(ctx context.Context, img image.Image, boxes []common.BoundingBox) ([][]float32, error) {
	results := make([][]float32, 0, len(boxes))
	for i := range boxes {
		scores, err := c.Classify(ctx, img, boxes[i])
		if err != nil {
			return nil, errors.Wrapf(err, "box %d", i)
		}
		results = append(results, scores)
	}
	return results, nil
}

// Close releases the runner.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runner.Close()
}
