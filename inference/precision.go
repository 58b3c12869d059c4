package inference

// Precision is the floating point precision an accelerator compiles a model to.
type Precision string

// Precision constants are the supported precisions for inference.
const (
	PrecisionFP16 Precision = "FP16"
	PrecisionFP32 Precision = "FP32"
)
