// Package imaging prepares frame data for classification and storage.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"trace-rescue/internal/core/models"
)

// DefaultFaceSize is the edge length of the normalized face crop.
const DefaultFaceSize = 200

// ErrEmptyRegion is returned when a face region lies outside the frame.
var ErrEmptyRegion = errors.New("face region does not intersect frame")

// NormalizeFace crops region out of frame, converts it to grayscale and scales
// it to a size x size square.
func NormalizeFace(frame *models.Frame, region models.FaceRegion, size int) (*image.Gray, error) {
	if size <= 0 {
		size = DefaultFaceSize
	}
	gray, err := frame.Gray()
	if err != nil {
		return nil, err
	}
	crop := region.Rect().Intersect(gray.Bounds())
	if crop.Empty() {
		return nil, fmt.Errorf("%w: %v", ErrEmptyRegion, region.Rect())
	}

	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), gray, crop, draw.Src, nil)
	return dst, nil
}

// EncodeJPEG encodes the whole frame as JPEG.
func EncodeJPEG(frame *models.Frame, quality int) ([]byte, error) {
	img, err := frame.ToImage()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
