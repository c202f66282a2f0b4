package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"trace-rescue/internal/core/models"
)

// frameFromMat copies a BGR or grayscale Mat into a Frame.
func frameFromMat(m gocv.Mat) (*models.Frame, error) {
	if m.Empty() {
		return nil, fmt.Errorf("empty mat")
	}
	ch := m.Channels()
	if ch != 1 && ch != 3 {
		return nil, fmt.Errorf("unsupported channel count %d", ch)
	}
	if !m.IsContinuous() {
		c := m.Clone()
		defer c.Close()
		m = c
	}
	return &models.Frame{
		Width:    m.Cols(),
		Height:   m.Rows(),
		Channels: ch,
		Data:     m.ToBytes(),
	}, nil
}

// matFromFrame creates a Mat backed by a private copy of the frame data.
// The caller must close it.
func matFromFrame(f *models.Frame) (gocv.Mat, error) {
	if err := f.Validate(); err != nil {
		return gocv.NewMat(), err
	}
	mt := gocv.MatTypeCV8UC3
	if f.Channels == 1 {
		mt = gocv.MatTypeCV8UC1
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, mt, append([]byte(nil), f.Data...))
}

// matFromGray creates a single channel Mat from a grayscale image.
func matFromGray(g *image.Gray) (gocv.Mat, error) {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]byte, 0, w*h)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := g.PixOffset(b.Min.X, y)
		data = append(data, g.Pix[off:off+w]...)
	}
	return gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, data)
}
