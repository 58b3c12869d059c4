package postprocess

import (
	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-shelf/common"
)

// FilterCandidates classifies every candidate of t and returns the ones that
// become product boxes.
//
// For each candidate the confidence channels compete, starting from the
// threshold itself, for the class index. Any ROI channel above the threshold
// flags the candidate as ROI and overrides the reported confidence. Only
// non-ROI candidates whose confidence beats the threshold and whose decoded
// corners all lie in [0, 1] are emitted. A candidate with an infinite
// confidence channel is skipped.
//
// The ROI class name is assigned to flagged candidates but those candidates
// are never emitted: ROI signal suppresses emission.
//
// Arguments:
//   - t: The detection tensor.
//   - layout: A layout already validated against t.Channels().
//   - threshold: The detection threshold (strict comparison).
//
// Returns:
//   - []common.BoundingBox: Boxes in candidate order, empty (not nil) when none pass.
func FilterCandidates(t *DetectionTensor, layout Layout, threshold float32) []common.BoundingBox {
	boxes := make([]common.BoundingBox, 0, 16)

	for c := 0; c < t.Elements(); c++ {
		className := common.ClassProduct
		maxConf := threshold
		maxClass := common.NoClass
		isROI := false
		finite := true

		for k := layout.Confidence.Start; k < layout.Confidence.End; k++ {
			v := t.At(k, c)
			if math32.IsInf(v, 0) {
				finite = false
				break
			}
			if v > maxConf {
				maxConf = v
				maxClass = k - layout.Confidence.Start
			}
		}
		if !finite {
			continue
		}

		for k := layout.ROI.Start; k < layout.ROI.End; k++ {
			if v := t.At(k, c); v > threshold {
				maxConf = v
				isROI = true
			}
		}

		if isROI {
			className = common.ClassROI
		}
		if !(maxConf > threshold) || isROI {
			continue
		}

		cx, cy, w, h := t.Geometry(c)
		b := common.BoundingBox{
			X1:         cx - w/2,
			Y1:         cy - h/2,
			X2:         cx + w/2,
			Y2:         cy + h/2,
			CX:         cx,
			CY:         cy,
			W:          w,
			H:          h,
			Confidence: maxConf,
			ClassIndex: maxClass,
			ClassName:  className,
		}
		if !b.InUnitRange() {
			continue
		}
		boxes = append(boxes, b)
	}

	return boxes
}
