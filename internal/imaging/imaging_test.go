package imaging

import (
	"bytes"
	"errors"
	"image/jpeg"
	"testing"

	"trace-rescue/internal/core/models"
)

func solidFrame(w, h int, b, g, r byte) *models.Frame {
	data := make([]byte, w*h*3)
	for i := 0; i < len(data); i += 3 {
		data[i], data[i+1], data[i+2] = b, g, r
	}
	return &models.Frame{Width: w, Height: h, Channels: 3, Data: data}
}

func TestNormalizeFaceSize(t *testing.T) {
	frame := solidFrame(64, 48, 255, 255, 255)
	face, err := NormalizeFace(frame, models.FaceRegion{X: 10, Y: 10, Width: 20, Height: 30}, 50)
	if err != nil {
		t.Fatalf("NormalizeFace() error = %v", err)
	}
	if b := face.Bounds(); b.Dx() != 50 || b.Dy() != 50 {
		t.Fatalf("bounds = %v, want 50x50", b)
	}
	if face.Pix[0] != 255 {
		t.Fatalf("pixel = %d, want 255", face.Pix[0])
	}
}

func TestNormalizeFaceClampsToFrame(t *testing.T) {
	frame := solidFrame(32, 32, 0, 0, 0)
	face, err := NormalizeFace(frame, models.FaceRegion{X: 20, Y: 20, Width: 40, Height: 40}, 0)
	if err != nil {
		t.Fatalf("NormalizeFace() error = %v", err)
	}
	if face.Bounds().Dx() != DefaultFaceSize {
		t.Fatalf("width = %d, want %d", face.Bounds().Dx(), DefaultFaceSize)
	}
}

func TestNormalizeFaceOutside(t *testing.T) {
	frame := solidFrame(16, 16, 0, 0, 0)
	_, err := NormalizeFace(frame, models.FaceRegion{X: 100, Y: 100, Width: 5, Height: 5}, 10)
	if !errors.Is(err, ErrEmptyRegion) {
		t.Fatalf("error = %v, want ErrEmptyRegion", err)
	}
}

func TestEncodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(solidFrame(8, 8, 0, 128, 255), 90)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a jpeg: %v", err)
	}
	if cfg.Width != 8 || cfg.Height != 8 {
		t.Fatalf("decoded size %dx%d", cfg.Width, cfg.Height)
	}
}
