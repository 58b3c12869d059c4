// Package postprocess - Turns raw detector output into de-duplicated boxes.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-shelf/common"
)

// DefaultIoUThreshold is the overlap at or above which a box is suppressed.
const DefaultIoUThreshold float32 = 0.3

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"` // Overlap threshold for suppression (inclusive).
	ClassAware   bool    `json:"class_aware" yaml:"class_aware"`     // If true, suppress only within the same class index.
}

// ApplyGreedyNMS performs greedy, confidence-priority Non-Maximum Suppression.
//
// The input is not modified. Boxes are ordered by descending confidence with
// input order breaking ties, so repeated calls on the same input always give
// the same output.
//
// Arguments:
//   - boxes: Candidate boxes in any order.
//   - config: NMS configuration. A box is discarded when its IoU with an
//     already selected box is >= config.IoUThreshold.
//
// Returns:
//   - Selected boxes in selection order. Empty (not nil) when boxes is empty.
func ApplyGreedyNMS(boxes []common.BoundingBox, config *NMSConfig) []common.BoundingBox {
	selected, _ := suppress(boxes, config)
	return selected
}

// suppress runs greedy NMS and also reports how many pairs had a degenerate
// IoU.
func suppress(boxes []common.BoundingBox, config *NMSConfig) ([]common.BoundingBox, int) {
	n := len(boxes)
	if n == 0 {
		return []common.BoundingBox{}, 0
	}

	sorted := make([]common.BoundingBox, n)
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	selected := make([]common.BoundingBox, 0, n)
	used := make([]bool, n)
	degenerate := 0

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := &sorted[i]
		selected = append(selected, *anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.ClassIndex != sorted[j].ClassIndex {
				continue
			}

			iou, bad := anchor.IoUChecked(&sorted[j])
			if bad {
				degenerate++
				continue
			}
			if iou >= config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return selected, degenerate
}
