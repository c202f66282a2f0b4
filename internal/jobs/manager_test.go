package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"trace-rescue/internal/core/detection"
)

func blockingRunner(ctx context.Context) (detection.Result, error) {
	<-ctx.Done()
	return detection.Result{Reason: detection.StopRequested}, nil
}

func waitStatus(t *testing.T, m *Manager, id string, want Status) Job {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		job, err := m.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status == want {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job status = %s, want %s", job.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartAndComplete(t *testing.T) {
	m := NewManager(context.Background(), func(context.Context) (detection.Result, error) {
		return detection.Result{Frames: 2, Alerts: 1, Reason: detection.StopAlerted}, nil
	})

	job, err := m.Start(KindRecognize)
	if err != nil {
		t.Fatal(err)
	}
	if job.ID == "" || job.Status != StatusRunning {
		t.Fatalf("job = %+v", job)
	}
	m.Wait()

	done := waitStatus(t, m, job.ID, StatusCompleted)
	if done.Result == nil || done.Result.Alerts != 1 || done.FinishedAt == nil {
		t.Fatalf("finished job = %+v", done)
	}
}

func TestSingleActiveJobAndCancel(t *testing.T) {
	m := NewManager(context.Background(), blockingRunner)

	job, err := m.Start(KindRecognize)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Start(KindRecognize); !errors.Is(err, ErrJobRunning) {
		t.Fatalf("second Start() error = %v, want ErrJobRunning", err)
	}

	if err := m.Cancel(job.ID); err != nil {
		t.Fatal(err)
	}
	m.Wait()
	waitStatus(t, m, job.ID, StatusCancelled)

	if _, err := m.Start(KindRecognize); err != nil {
		t.Fatalf("Start() after cancel error = %v", err)
	}
	if got := len(m.List()); got != 2 {
		t.Fatalf("List() has %d jobs", got)
	}
	for _, j := range m.List() {
		m.Cancel(j.ID)
	}
	m.Wait()
}

func TestFailedJob(t *testing.T) {
	m := NewManager(context.Background(), func(context.Context) (detection.Result, error) {
		return detection.Result{Reason: detection.StopFailed}, detection.ErrCaptureFailure
	})
	job, _ := m.Start(KindRecognize)
	m.Wait()
	failed := waitStatus(t, m, job.ID, StatusFailed)
	if failed.Error == "" {
		t.Fatal("failed job should carry its error")
	}
}

func TestUnsupportedKinds(t *testing.T) {
	m := NewManager(context.Background(), blockingRunner)
	for _, k := range []Kind{KindCapture, KindTrain} {
		if _, err := m.Start(k); !errors.Is(err, ErrUnsupportedJob) {
			t.Errorf("Start(%s) error = %v", k, err)
		}
	}
	if _, err := m.Start("bogus"); err == nil || errors.Is(err, ErrUnsupportedJob) {
		t.Errorf("Start(bogus) error = %v", err)
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
	if err := m.Cancel("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel(missing) error = %v", err)
	}
}
