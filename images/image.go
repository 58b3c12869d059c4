// Package images - Decoding and annotation of shelf frames.
package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// ErrUnsupportedFormat is returned for data that is not JPEG, PNG or WebP.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Image represents an encoded frame with its format and dimensions.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// DetectFormat sniffs the container format from the leading bytes.
func DetectFormat(data []byte) (ImageFormat, error) {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG, nil
	case len(data) >= 8 && bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG, nil
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatWebP, nil
	}
	return "", ErrUnsupportedFormat
}

// Decode decodes a JPEG, PNG or WebP frame.
//
// Arguments:
//   - data: The encoded bytes.
//
// Returns:
//   - *Image: The format and dimensions of data.
//   - image.Image: The decoded pixels.
//   - error: ErrUnsupportedFormat, or the decoder's error.
//
// @example
// meta, img, err := Decode(body)
// fmt.Println(meta.Format, img.Bounds())
func Decode(data []byte) (*Image, image.Image, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return nil, nil, err
	}

	r := bytes.NewReader(data)
	var img image.Image
	switch format {
	case FormatJPEG:
		img, err = jpeg.Decode(r)
	case FormatPNG:
		img, err = png.Decode(r)
	case FormatWebP:
		img, err = webp.Decode(r)
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to decode %s", format)
	}

	b := img.Bounds()
	return &Image{Format: format, Data: data, Width: b.Dx(), Height: b.Dy()}, img, nil
}
