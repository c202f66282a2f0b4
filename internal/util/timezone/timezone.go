package timezone

import (
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	mu              sync.RWMutex
	currentLocation *time.Location
)

// Initialize sets the zone used for alert timestamps. The TZ environment
// variable wins over the configured name; an unknown zone falls back to UTC.
func Initialize(name string) {
	tzName := name
	if envTZ := os.Getenv("TZ"); envTZ != "" {
		tzName = envTZ
	}
	if tzName == "" {
		tzName = "UTC"
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Warnf("Failed to load timezone %s: %v. Falling back to UTC.", tzName, err)
		loc = time.UTC
	} else {
		log.Debugf("Timezone initialized to %s", tzName)
	}

	mu.Lock()
	currentLocation = loc
	mu.Unlock()
}

func location() *time.Location {
	mu.RLock()
	loc := currentLocation
	mu.RUnlock()
	if loc == nil {
		return time.Local
	}
	return loc
}

// Now returns the current time in the configured zone.
func Now() time.Time {
	return time.Now().In(location())
}

// Format renders t in the configured zone.
func Format(t time.Time, layout string) string {
	return t.In(location()).Format(layout)
}

// Stamp is the human readable layout used in alert texts.
const Stamp = "2006-01-02 15:04:05"

// Human formats t for alert messages.
func Human(t time.Time) string {
	return Format(t, Stamp)
}

// RFC3339 formats t for API responses.
func RFC3339(t time.Time) string {
	return Format(t, time.RFC3339)
}
