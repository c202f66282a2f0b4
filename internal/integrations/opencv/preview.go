package opencv

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"trace-rescue/internal/core/detection"
	"trace-rescue/internal/core/models"
)

const previewTitle = "Face Recognition Alert System"

var (
	colorMatch   = color.RGBA{G: 255}
	colorUnknown = color.RGBA{R: 255}
	colorStatus  = color.RGBA{R: 255, G: 255, B: 255}
)

// Preview shows annotated frames in a window. Pressing q calls stop. It must
// be used from the goroutine that runs the detection loop.
type Preview struct {
	window *gocv.Window
	stop   func()
	once   sync.Once
}

// NewPreview opens the preview window.
func NewPreview(stop func()) *Preview {
	return &Preview{window: gocv.NewWindow(previewTitle), stop: stop}
}

// Annotate draws every face and the cooldown indicator and shows the frame.
func (p *Preview) Annotate(frame *models.Frame, faces []detection.Annotation, cooldown time.Duration) {
	img, err := matFromFrame(frame)
	if err != nil {
		log.Debugf("Preview skipped frame: %v", err)
		return
	}
	defer img.Close()

	for _, f := range faces {
		c := colorUnknown
		if f.Matched {
			c = colorMatch
		}
		rect := f.Region.Rect()
		gocv.Rectangle(&img, rect, c, 2)
		gocv.PutText(&img, FaceLabel(f.Result), image.Pt(rect.Min.X, rect.Min.Y-10), gocv.FontHersheySimplex, 0.8, c, 2)
	}
	gocv.PutText(&img, CooldownLabel(cooldown), image.Pt(10, 30), gocv.FontHersheySimplex, 0.8, colorStatus, 2)

	p.window.IMShow(img)
	if key := p.window.WaitKey(1); key&0xff == 'q' {
		p.once.Do(func() {
			log.Info("Exiting...")
			p.stop()
		})
	}
}

// Close destroys the window.
func (p *Preview) Close() error {
	return p.window.Close()
}

// FaceLabel is the text drawn above a face.
func FaceLabel(r models.ClassificationResult) string {
	return fmt.Sprintf("%s (%.1f)", r.Name, r.Confidence)
}

// CooldownLabel is the status line text.
func CooldownLabel(remaining time.Duration) string {
	if secs := int(remaining.Seconds()); secs > 0 {
		return fmt.Sprintf("Cooldown: %ds", secs)
	}
	return "Ready"
}
