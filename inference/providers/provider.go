// Package providers - Model runtimes that back an inference.Runner.
package providers

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-shelf/inference"
)

// Backend identifies the runtime used to execute a model.
type Backend string

const (
	// BackendONNX runs .onnx models with ONNX Runtime.
	BackendONNX Backend = "onnx"
	// BackendTFLite runs .tflite models with TensorFlow Lite.
	BackendTFLite Backend = "tflite"
)

// Accelerator selects an ONNX Runtime execution provider.
type Accelerator string

const (
	// AcceleratorCPU uses the default CPU execution provider.
	AcceleratorCPU Accelerator = "cpu"
	// AcceleratorCoreML uses Apple CoreML.
	AcceleratorCoreML Accelerator = "coreml"
	// AcceleratorOpenVINO uses Intel OpenVINO.
	AcceleratorOpenVINO Accelerator = "openvino"
)

// DefaultThreads is the interpreter thread count when none is configured.
const DefaultThreads = 4

// Config describes one model and how to run it.
type Config struct {
	// Backend selects the runtime.
	Backend Backend `json:"backend" yaml:"backend"`
	// ModelPath is the model file.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// SharedLibraryPath overrides the ONNX Runtime library location.
	SharedLibraryPath string `json:"shared_library_path,omitempty" yaml:"shared_library_path,omitempty"`
	// InputName and OutputName select the ONNX graph nodes. Empty uses the
	// first input and output of the model.
	InputName  string `json:"input_name,omitempty" yaml:"input_name,omitempty"`
	OutputName string `json:"output_name,omitempty" yaml:"output_name,omitempty"`
	// Accelerator selects the ONNX execution provider.
	Accelerator Accelerator `json:"accelerator,omitempty" yaml:"accelerator,omitempty"`
	// Precision is passed to accelerators that compile the model. Empty means FP32.
	Precision inference.Precision `json:"precision,omitempty" yaml:"precision,omitempty"`
	// Threads is the intra-op (ONNX) or interpreter (TFLite) thread count.
	Threads int `json:"threads" yaml:"threads"`
}

// DefaultConfig returns the configuration of the bundled shelf detector.
//
// @example
// cfg := DefaultConfig()
// cfg.ModelPath = "path/to/model.tflite"
// runner, err := NewRunner(cfg)
func DefaultConfig() Config {
	return Config{
		Backend:     BackendTFLite,
		ModelPath:   "models/detection.tflite",
		Accelerator: AcceleratorCPU,
		Threads:     DefaultThreads,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendONNX, BackendTFLite:
	default:
		return errors.Errorf("unsupported backend %q", c.Backend)
	}
	if c.ModelPath == "" {
		return errors.New("model_path is required")
	}
	switch c.Accelerator {
	case "", AcceleratorCPU, AcceleratorCoreML, AcceleratorOpenVINO:
	default:
		return errors.Errorf("unsupported accelerator %q", c.Accelerator)
	}
	switch c.Precision {
	case "", inference.PrecisionFP32, inference.PrecisionFP16:
	default:
		return errors.Errorf("unsupported precision %q", c.Precision)
	}
	if c.Threads < 0 {
		return errors.Errorf("threads must be >= 0, got %d", c.Threads)
	}
	return nil
}

func (c Config) precision() inference.Precision {
	if c.Precision == "" {
		return inference.PrecisionFP32
	}
	return c.Precision
}

func (c Config) threads() int {
	if c.Threads == 0 {
		return DefaultThreads
	}
	return c.Threads
}

// NewRunner loads the model described by cfg with its backend.
//
// Arguments:
//   - cfg: The model configuration.
//
// Returns:
//   - inference.Runner: The loaded model.
//   - error: If the configuration is invalid or the runtime fails to load the model.
//
// @example
// runner, err := NewRunner(Config{Backend: BackendTFLite, ModelPath: "detection.tflite"})
func NewRunner(cfg Config) (inference.Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendTFLite:
		r, err := NewTFLiteRunner(cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		r, err := NewONNXRunner(cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}
