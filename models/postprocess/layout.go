package postprocess

import "github.com/pkg/errors"

// GeometryChannels is the number of leading channels holding cx, cy, w, h.
const GeometryChannels = 4

// ChannelRange is a half-open range of channel indices [Start, End).
type ChannelRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Len returns the number of channels in the range.
func (r ChannelRange) Len() int {
	return r.End - r.Start
}

// Layout describes which channels of a detection tensor carry which signal.
//
// Geometry always occupies channels 0..3. ROI channels are scanned to flag a
// candidate as a region of interest, confidence channels compete for the
// product class index.
type Layout struct {
	ROI        ChannelRange `json:"roi" yaml:"roi"`
	Confidence ChannelRange `json:"confidence" yaml:"confidence"`
}

// DefaultLayout returns the layout of the shelf detector: a single product
// confidence channel at the end and every channel between the geometry and
// the confidence channel treated as ROI.
//
// Arguments:
//   - channels: The number of channels in the detector output.
//
// Returns:
//   - Layout: ROI = [4, channels-1), Confidence = [channels-1, channels).
//
// @example
// layout := DefaultLayout(6) // ROI {4 5}, Confidence {5 6}
func DefaultLayout(channels int) Layout {
	return Layout{
		ROI:        ChannelRange{Start: GeometryChannels, End: channels - 1},
		Confidence: ChannelRange{Start: channels - 1, End: channels},
	}
}

// Validate checks the layout against a tensor with the given channel count.
//
// The ROI range may be empty. The confidence range must hold at least one
// channel. Neither may overlap the geometry channels or run past the end.
func (l Layout) Validate(channels int) error {
	if channels < GeometryChannels+1 {
		return errors.Wrapf(ErrInvalidLayout, "need at least %d channels, got %d",
			GeometryChannels+1, channels)
	}
	if l.Confidence.Len() < 1 {
		return errors.Wrapf(ErrInvalidLayout, "confidence range %v is empty", l.Confidence)
	}
	if l.ROI.Len() < 0 {
		return errors.Wrapf(ErrInvalidLayout, "roi range %v is inverted", l.ROI)
	}
	ranges := []struct {
		name string
		r    ChannelRange
	}{{"roi", l.ROI}, {"confidence", l.Confidence}}
	for _, nr := range ranges {
		if nr.r.Len() == 0 {
			continue
		}
		if nr.r.Start < GeometryChannels || nr.r.End > channels {
			return errors.Wrapf(ErrInvalidLayout, "%s range %v outside [%d, %d)",
				nr.name, nr.r, GeometryChannels, channels)
		}
	}
	if l.ROI.Len() > 0 && l.ROI.Start < l.Confidence.End && l.Confidence.Start < l.ROI.End {
		return errors.Wrapf(ErrInvalidLayout, "roi range %v overlaps confidence range %v",
			l.ROI, l.Confidence)
	}
	return nil
}
