package repository

import (
	"path/filepath"
	"testing"
	"time"

	"trace-rescue/internal/core/models"
	"trace-rescue/internal/db"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close(gdb) })
	return NewSQLiteRepository(gdb)
}

func TestSaveAndLatest(t *testing.T) {
	repo := newRepo(t)

	latest, err := repo.GetLatestDetection()
	if err != nil || latest != nil {
		t.Fatalf("empty db: latest = %v, err = %v", latest, err)
	}

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"alice", "bob", "alice"} {
		d := &models.Detection{Name: name, Location: "Hall", ReceivedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.SaveDetection(d); err != nil {
			t.Fatal(err)
		}
	}

	latest, err = repo.GetLatestDetection()
	if err != nil || latest == nil {
		t.Fatalf("latest = %v, err = %v", latest, err)
	}
	if !latest.ReceivedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("latest received at %v", latest.ReceivedAt)
	}

	list, total, err := repo.GetDetections(2, 0)
	if err != nil || total != 3 || len(list) != 2 {
		t.Fatalf("GetDetections = %d items, total %d, err %v", len(list), total, err)
	}

	stats, err := repo.GetStatistics()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDetections != 3 || stats.DistinctPersons != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDeleteAndBefore(t *testing.T) {
	repo := newRepo(t)
	old := &models.Detection{Name: "old", ReceivedAt: time.Now().AddDate(0, 0, -40)}
	fresh := &models.Detection{Name: "fresh", ReceivedAt: time.Now()}
	repo.SaveDetection(old)
	repo.SaveDetection(fresh)

	before, err := repo.GetDetectionsBefore(time.Now().AddDate(0, 0, -30))
	if err != nil || len(before) != 1 || before[0].Name != "old" {
		t.Fatalf("GetDetectionsBefore = %+v, %v", before, err)
	}

	if err := repo.DeleteDetection(old.ID); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetDetectionByID(old.ID)
	if err != nil || got != nil {
		t.Fatalf("deleted detection still found: %+v, %v", got, err)
	}
}
