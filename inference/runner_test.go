package inference

import (
	"image"
	"image/color"
	"sync"

	"github.com/pkg/errors"
)

// fakeRunner is an in-memory Runner. Run copies output into the output
// buffer, optionally blocking until release is closed.
type fakeRunner struct {
	inputShape  []int64
	outputShape []int64
	input       []float32
	output      []float32
	result      []float32
	runErr      error

	started chan struct{}
	release chan struct{}

	mu     sync.Mutex
	runs   int
	closed bool
}

func newFakeRunner(inputShape, outputShape []int64, result []float32) *fakeRunner {
	return &fakeRunner{
		inputShape:  inputShape,
		outputShape: outputShape,
		input:       make([]float32, product(inputShape)),
		output:      make([]float32, product(outputShape)),
		result:      result,
	}
}

func product(dims []int64) int {
	n := 1
	for _, d := range dims {
		n *= int(d)
	}
	return n
}

func (f *fakeRunner) InputShape() []int64  { return f.inputShape }
func (f *fakeRunner) OutputShape() []int64 { return f.outputShape }
func (f *fakeRunner) Input() []float32     { return f.input }
func (f *fakeRunner) Output() []float32    { return f.output }

func (f *fakeRunner) Run() error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.runErr != nil {
		return f.runErr
	}
	copy(f.output, f.result)
	return nil
}

func (f *fakeRunner) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("already closed")
	}
	f.closed = true
	return nil
}

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
