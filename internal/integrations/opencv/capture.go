package opencv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"trace-rescue/internal/core/models"
)

var userinfo = regexp.MustCompile(`://[^/@]+@`)

// ErrReadFailed is returned when the stream delivers no frame.
var ErrReadFailed = errors.New("failed to grab frame from camera")

// Capture reads frames from a camera device, stream URL or video file.
type Capture struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	buf    gocv.Mat
	source string
	isFile bool
	seq    uint64
	closed bool
}

// OpenCapture opens source. A purely numeric source selects a local device.
func OpenCapture(source string) (*Capture, error) {
	var device interface{} = source
	if idx, err := strconv.Atoi(source); err == nil {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("camera couldn't be opened (%s): %w", redact(source), err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera couldn't be opened (%s)", redact(source))
	}

	_, statErr := os.Stat(source)
	log.Infof("Video source opened: %s", redact(source))
	return &Capture{
		vc:     vc,
		buf:    gocv.NewMat(),
		source: source,
		isFile: statErr == nil,
	}, nil
}

// Read grabs the next frame. Files report io.EOF at their end; streams report
// ErrReadFailed so the caller can retry.
func (c *Capture) Read(ctx context.Context) (*models.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, io.EOF
	}

	if ok := c.vc.Read(&c.buf); !ok || c.buf.Empty() {
		if c.isFile {
			return nil, io.EOF
		}
		return nil, ErrReadFailed
	}

	frame, err := frameFromMat(c.buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	c.seq++
	frame.Seq = c.seq
	frame.CapturedAt = time.Now()
	return frame, nil
}

// Close releases the capture device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.buf.Close()
	return c.vc.Close()
}

// redact hides credentials embedded in stream URLs.
func redact(source string) string {
	return userinfo.ReplaceAllString(source, "://***@")
}
