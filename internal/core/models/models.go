package models

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UnknownName ist der Anzeigename für nicht zugeordnete Gesichter.
const UnknownName = "Unknown"

// Frame ist ein einzelnes Kamerabild. Data enthält die Pixel zeilenweise,
// bei drei Kanälen in BGR-Reihenfolge, bei einem Kanal als Graustufen.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Width      int
	Height     int
	Channels   int
	Data       []byte
}

// Validate prüft, ob Größe und Pufferlänge zusammenpassen.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("frame is nil")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if f.Channels != 1 && f.Channels != 3 {
		return fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	if want := f.Width * f.Height * f.Channels; len(f.Data) != want {
		return fmt.Errorf("frame buffer has %d bytes, want %d", len(f.Data), want)
	}
	return nil
}

// Bounds liefert das Bildrechteck.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// ToImage konvertiert den Frame in ein image.Image (RGBA oder Gray).
func (f *Frame) ToImage() (image.Image, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.Channels == 1 {
		g := image.NewGray(f.Bounds())
		copy(g.Pix, f.Data)
		return g, nil
	}
	img := image.NewRGBA(f.Bounds())
	for i, j := 0, 0; i < len(f.Data); i, j = i+3, j+4 {
		img.Pix[j] = f.Data[i+2]
		img.Pix[j+1] = f.Data[i+1]
		img.Pix[j+2] = f.Data[i]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

// Gray liefert eine Graustufenkopie des gesamten Frames.
func (f *Frame) Gray() (*image.Gray, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	g := image.NewGray(f.Bounds())
	if f.Channels == 1 {
		copy(g.Pix, f.Data)
		return g, nil
	}
	for i, j := 0, 0; i < len(f.Data); i, j = i+3, j+1 {
		c := color.RGBA{R: f.Data[i+2], G: f.Data[i+1], B: f.Data[i], A: 0xff}
		g.Pix[j] = color.GrayModel.Convert(c).(color.Gray).Y
	}
	return g, nil
}

// FaceRegion ist ein erkanntes Gesicht innerhalb eines Frames.
type FaceRegion struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect liefert die Region als image.Rectangle.
func (r FaceRegion) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// ClassificationResult ist das Ergebnis der Gesichtserkennung für eine Region.
// Confidence ist eine Distanz: kleiner ist besser.
type ClassificationResult struct {
	Label      string  `json:"label"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// AlertPayload beschreibt einen ausgelösten Alarm. Wird pro Alarm neu erzeugt
// und von allen Kanälen nur gelesen.
type AlertPayload struct {
	PersonName   string    `json:"person_name"`
	Location     string    `json:"location"`
	Timestamp    time.Time `json:"timestamp"`
	Message      string    `json:"message"`
	SnapshotPath string    `json:"snapshot_path,omitempty"`
}

// HasSnapshot meldet, ob ein Snapshot geschrieben wurde.
func (p AlertPayload) HasSnapshot() bool {
	return p.SnapshotPath != ""
}

// Detection ist ein beim Report-Server eingegangener Fund.
type Detection struct {
	gorm.Model
	Name       string `gorm:"index;not null"`
	Location   string `gorm:"index"`
	Message    string
	ImageFile  string         // Dateiname im found-Verzeichnis, leer ohne Snapshot
	ReceivedAt time.Time      `gorm:"index"`
	Metadata   datatypes.JSON `gorm:"type:json;null"` // Rohdaten der Anfrage
}

// Statistics fasst die gespeicherten Funde zusammen.
type Statistics struct {
	TotalDetections int64
	DistinctPersons int64
	LatestDetection time.Time
}
