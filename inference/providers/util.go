package providers

import (
	"runtime"

	"github.com/pkg/errors"
)

// DefaultSharedLibPath returns where the ONNX Runtime shared library is
// expected for the current platform when none is configured.
//
// Returns:
//   - string: The path to the shared library.
//   - error: If the platform has no bundled library.
func DefaultSharedLibPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "./third_party/onnxruntime.dll", nil
		}
	case "darwin":
		return "./third_party/libonnxruntime.1.21.0.dylib", nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", errors.Errorf("no onnxruntime library for %s/%s", runtime.GOOS, runtime.GOARCH)
}

// resolveShape replaces dynamic (non-positive) dimensions with 1.
func resolveShape(dims []int64) []int64 {
	out := make([]int64, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}
