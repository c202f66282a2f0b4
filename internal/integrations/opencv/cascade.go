package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"trace-rescue/internal/core/models"
)

// CascadeParams tunes the Haar cascade.
type CascadeParams struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
}

// CascadeLocator finds faces with a Haar cascade classifier.
type CascadeLocator struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	params     CascadeParams
}

// NewCascadeLocator loads the cascade XML at path.
func NewCascadeLocator(path string, params CascadeParams) (*CascadeLocator, error) {
	if params.ScaleFactor <= 1 {
		params.ScaleFactor = 1.1
	}
	if params.MinNeighbors <= 0 {
		params.MinNeighbors = 5
	}
	cc := gocv.NewCascadeClassifier()
	if !cc.Load(path) {
		cc.Close()
		return nil, fmt.Errorf("failed to load face cascade %s", path)
	}
	return &CascadeLocator{classifier: cc, params: params}, nil
}

// Locate returns the face rectangles in frame.
func (l *CascadeLocator) Locate(_ context.Context, frame *models.Frame) ([]models.FaceRegion, error) {
	img, err := matFromFrame(frame)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	gray := img
	if frame.Channels == 3 {
		gray = gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	}

	minSize := image.Pt(l.params.MinSize, l.params.MinSize)
	l.mu.Lock()
	rects := l.classifier.DetectMultiScaleWithParams(gray, l.params.ScaleFactor, l.params.MinNeighbors, 0, minSize, image.Point{})
	l.mu.Unlock()

	regions := make([]models.FaceRegion, 0, len(rects))
	for _, r := range rects {
		regions = append(regions, models.FaceRegion{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()})
	}
	return regions, nil
}

// Close releases the classifier.
func (l *CascadeLocator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.classifier.Close()
}
