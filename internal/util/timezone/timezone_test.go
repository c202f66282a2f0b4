package timezone

import (
	"testing"
	"time"
)

func TestInitializeFallsBackToUTC(t *testing.T) {
	t.Setenv("TZ", "")
	Initialize("Not/AZone")
	if got := Now().Location(); got != time.UTC {
		t.Fatalf("location = %v, want UTC", got)
	}
}

func TestHumanUsesConfiguredZone(t *testing.T) {
	t.Setenv("TZ", "")
	Initialize("UTC")
	ts := time.Date(2024, 3, 1, 12, 30, 5, 0, time.FixedZone("X", 2*3600))
	if got, want := Human(ts), "2024-03-01 10:30:05"; got != want {
		t.Fatalf("Human = %q, want %q", got, want)
	}
}
