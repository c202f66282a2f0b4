package utils

import "testing"

func TestFormatBytes(t *testing.T) {
	tests := map[uint64]string{
		512:                    "512 Bytes",
		2048:                   "2.00 KB",
		5 * 1024 * 1024:        "5.00 MB",
		3 * 1024 * 1024 * 1024: "3.00 GB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestGetSystemStats(t *testing.T) {
	s := GetSystemStats(2, 1)
	if s.NumCPU <= 0 || s.SSEClients != 2 || s.ActiveJobs != 1 || s.MemoryHuman == "" {
		t.Fatalf("stats = %+v", s)
	}
}
