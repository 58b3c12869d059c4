package providers

import (
	"github.com/mattn/go-tflite"
	"github.com/pkg/errors"
)

// TFLiteRunner runs a model with the TensorFlow Lite interpreter.
type TFLiteRunner struct {
	model       *tflite.Model
	interpreter *tflite.Interpreter
	input       []float32
	output      []float32
	inputShape  []int64
	outputShape []int64
}

// NewTFLiteRunner loads cfg.ModelPath and allocates its tensors.
//
// Only the first input and output are bound; both must be float32.
func NewTFLiteRunner(cfg Config) (*TFLiteRunner, error) {
	model := tflite.NewModelFromFile(cfg.ModelPath)
	if model == nil {
		return nil, errors.Errorf("cannot load tflite model %s", cfg.ModelPath)
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()
	options.SetNumThread(cfg.threads())

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, errors.Errorf("cannot create tflite interpreter for %s", cfg.ModelPath)
	}

	r := &TFLiteRunner{model: model, interpreter: interpreter}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		r.Close()
		return nil, errors.Errorf("tflite tensor allocation failed: %v", status)
	}

	in := interpreter.GetInputTensor(0)
	out := interpreter.GetOutputTensor(0)
	if in == nil || out == nil {
		r.Close()
		return nil, errors.New("tflite model has no input or output tensor")
	}
	if in.Type() != tflite.Float32 || out.Type() != tflite.Float32 {
		r.Close()
		return nil, errors.Errorf("tflite tensors must be float32, got %v -> %v", in.Type(), out.Type())
	}

	r.input = in.Float32s()
	r.output = out.Float32s()
	r.inputShape = tensorShape(in)
	r.outputShape = tensorShape(out)
	return r, nil
}

func tensorShape(t *tflite.Tensor) []int64 {
	dims := make([]int64, t.NumDims())
	for i := range dims {
		dims[i] = int64(t.Dim(i))
	}
	return dims
}

// InputShape returns the input tensor dimensions.
func (r *TFLiteRunner) InputShape() []int64 { return append([]int64(nil), r.inputShape...) }

// OutputShape returns the output tensor dimensions.
func (r *TFLiteRunner) OutputShape() []int64 { return append([]int64(nil), r.outputShape...) }

// Input returns the input tensor data.
func (r *TFLiteRunner) Input() []float32 { return r.input }

// Output returns the output tensor data.
func (r *TFLiteRunner) Output() []float32 { return r.output }

// Run invokes the interpreter.
func (r *TFLiteRunner) Run() error {
	if status := r.interpreter.Invoke(); status != tflite.OK {
		return errors.Errorf("tflite invoke failed: %v", status)
	}
	return nil
}

// Close deletes the interpreter and the model.
func (r *TFLiteRunner) Close() error {
	if r.interpreter != nil {
		r.interpreter.Delete()
		r.interpreter = nil
	}
	if r.model != nil {
		r.model.Delete()
		r.model = nil
	}
	r.input, r.output = nil, nil
	return nil
}
