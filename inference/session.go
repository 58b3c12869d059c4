// Package inference - Runs detector and classifier models over camera frames.
package inference

// Runner is a loaded model with preallocated input and output buffers.
//
// Input and Output return views over runtime-owned memory that stay valid
// until Close. A Runner is not safe for concurrent Run calls.
type Runner interface {
	// InputShape returns the dimensions of the first input tensor.
	InputShape() []int64
	// OutputShape returns the dimensions of the first output tensor.
	OutputShape() []int64
	// Input returns the buffer Run reads from.
	Input() []float32
	// Output returns the buffer Run writes to.
	Output() []float32
	// Run executes the model once.
	Run() error
	// Close releases the runtime resources.
	Close() error
}
