package providers

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var ortInit sync.Mutex

// ONNXRunner runs a model with ONNX Runtime through preallocated tensors.
type ONNXRunner struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewONNXRunner creates an ONNX Runtime session for cfg.ModelPath.
//
// Order of operations:
//  1. Library path check and one-time environment setup.
//  2. Shape discovery from the model's declared inputs and outputs.
//  3. Tensor allocation for the first input and output.
//  4. Session options: threads and execution provider.
//  5. Session creation, destroying the tensors again on failure.
//
// Arguments:
//   - cfg: The model configuration.
//
// Returns:
//   - *ONNXRunner: The runner. Close releases the session and tensors.
//   - error: An error if any step fails.
func NewONNXRunner(cfg Config) (*ONNXRunner, error) {
	if err := initEnvironment(cfg.SharedLibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading model info from %s", cfg.ModelPath)
	}
	in, err := pickInfo(inputs, cfg.InputName, "input")
	if err != nil {
		return nil, err
	}
	out, err := pickInfo(outputs, cfg.OutputName, "output")
	if err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(resolveShape(in.Dimensions)...))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(resolveShape(out.Dimensions)...))
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := sessionOptions(cfg)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{in.Name},
		[]string{out.Name},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	return &ONNXRunner{session: session, input: inputTensor, output: outputTensor}, nil
}

func initEnvironment(libPath string) error {
	ortInit.Lock()
	defer ortInit.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		var err error
		if libPath, err = DefaultSharedLibPath(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

func pickInfo(infos []ort.InputOutputInfo, name, kind string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, errors.Errorf("model declares no %s", kind)
	}
	if name == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, errors.Errorf("model has no %s named %q", kind, name)
}

func sessionOptions(cfg Config) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	if err := options.SetIntraOpNumThreads(cfg.threads()); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting graph optimization level")
	}

	switch cfg.Accelerator {
	case AcceleratorCoreML:
		err = options.AppendExecutionProviderCoreML(0)
	case AcceleratorOpenVINO:
		err = options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   string(cfg.precision()),
		})
	}
	if err != nil {
		options.Destroy()
		return nil, errors.Wrapf(err, "error enabling %s", cfg.Accelerator)
	}
	return options, nil
}

// InputShape returns the input tensor dimensions.
func (r *ONNXRunner) InputShape() []int64 { return r.input.GetShape().Clone() }

// OutputShape returns the output tensor dimensions.
func (r *ONNXRunner) OutputShape() []int64 { return r.output.GetShape().Clone() }

// Input returns the input tensor data.
func (r *ONNXRunner) Input() []float32 { return r.input.GetData() }

// Output returns the output tensor data.
func (r *ONNXRunner) Output() []float32 { return r.output.GetData() }

// Run executes the session.
func (r *ONNXRunner) Run() error {
	return r.session.Run()
}

// Close releases the session and its tensors.
func (r *ONNXRunner) Close() error {
	var err error
	if r.session != nil {
		err = r.session.Destroy()
		r.session = nil
	}
	if r.input != nil {
		r.input.Destroy()
		r.input = nil
	}
	if r.output != nil {
		r.output.Destroy()
		r.output = nil
	}
	if err != nil {
		return errors.Wrap(err, "error destroying ORT session")
	}
	return nil
}
