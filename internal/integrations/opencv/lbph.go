package opencv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"sync"

	"gocv.io/x/gocv/contrib"

	"trace-rescue/internal/core/models"
	"trace-rescue/internal/labels"
)

// ErrClassifierClosed is returned by Classify after Close.
var ErrClassifierClosed = errors.New("LBPH classifier is closed")

// lbphMarker appears in the header of every model written by an LBPH recognizer.
var lbphMarker = []byte("opencv_lbphfaces")

// LBPHClassifier predicts identities with a trained LBPH model.
type LBPHClassifier struct {
	mu         sync.Mutex
	recognizer *contrib.LBPHFaceRecognizer
	labels     *labels.Map
}

// LoadLBPHClassifier loads the model at modelPath. The file is checked before
// it is handed to OpenCV, which aborts the process on unreadable input.
func LoadLBPHClassifier(modelPath string, labelMap *labels.Map) (*LBPHClassifier, error) {
	if err := checkModel(modelPath); err != nil {
		return nil, err
	}
	rec := contrib.NewLBPHFaceRecognizer()
	rec.LoadFile(modelPath)
	return &LBPHClassifier{recognizer: rec, labels: labelMap}, nil
}

func checkModel(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not load model '%s': %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 4096)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("could not read model '%s': %w", path, err)
	}
	if !bytes.Contains(head[:n], lbphMarker) {
		return fmt.Errorf("'%s' is not an LBPH model", path)
	}
	return nil
}

// Classify predicts the label of face and resolves it to a name.
func (c *LBPHClassifier) Classify(_ context.Context, face *image.Gray) (models.ClassificationResult, error) {
	mat, err := matFromGray(face)
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("failed to convert face: %w", err)
	}
	defer mat.Close()

	c.mu.Lock()
	if c.recognizer == nil {
		c.mu.Unlock()
		return models.ClassificationResult{}, ErrClassifierClosed
	}
	resp := c.recognizer.PredictExtendedResponse(mat)
	c.mu.Unlock()

	return models.ClassificationResult{
		Label:      strconv.Itoa(int(resp.Label)),
		Name:       c.labels.Name(int(resp.Label)),
		Confidence: float64(resp.Confidence),
	}, nil
}

// Close releases the native recognizer. Further calls are no-ops.
func (c *LBPHClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recognizer == nil {
		return nil
	}
	var err error
	if closer, ok := any(c.recognizer).(io.Closer); ok {
		err = closer.Close()
	}
	c.recognizer = nil
	return err
}
