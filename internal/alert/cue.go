package alert

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// Cue is the local attention signal played when an alert fires.
type Cue interface {
	Play() error
}

// BellCue rings the terminal bell.
type BellCue struct {
	Out io.Writer
}

// NewBellCue writes the bell to stdout.
func NewBellCue() *BellCue {
	return &BellCue{Out: os.Stdout}
}

func (b *BellCue) Play() error {
	log.Warn("[ALERT] Missing person detected")
	_, err := io.WriteString(b.Out, "\a")
	return err
}

// SilentCue does nothing.
type SilentCue struct{}

func (SilentCue) Play() error { return nil }
