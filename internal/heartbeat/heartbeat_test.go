package heartbeat

import (
	"context"
	"errors"
	"testing"
	"time"

	"squeeze-worker/internal/client"
	"squeeze-worker/internal/logging"
	"squeeze-worker/pkg/models"
)

type recordingSender struct {
	payloads []models.HeartbeatPayload
	err      error
}

func (r *recordingSender) Heartbeat(ctx context.Context, p models.HeartbeatPayload) error {
	r.payloads = append(r.payloads, p)
	return r.err
}

type staticStats struct {
	stats models.HardwareStats
	err   error
}

func (s staticStats) GetStats(context.Context) (models.HardwareStats, error) { return s.stats, s.err }

type jobStatus struct {
	id   string
	busy bool
}

func (j jobStatus) CurrentJob() (string, bool) { return j.id, j.busy }

func TestBeatReportsBusyJob(t *testing.T) {
	sender := &recordingSender{}
	stats := staticStats{stats: models.HardwareStats{CPUPercent: 93, IsBusy: true}}
	svc := New(time.Second, sender, stats, jobStatus{id: "job-9", busy: true}, nil, logging.Discard())

	svc.Beat(context.Background())

	if len(sender.payloads) != 1 {
		t.Fatalf("expected one heartbeat, got %d", len(sender.payloads))
	}
	p := sender.payloads[0]
	if p.Status != models.StatusBusy || p.CurrentJobID != "job-9" || !p.HardwareStats.IsBusy {
		t.Errorf("payload = %+v", p)
	}
}

func TestBeatIdleWithoutStats(t *testing.T) {
	sender := &recordingSender{}
	svc := New(time.Second, sender, staticStats{err: errors.New("no stats")}, jobStatus{}, nil, logging.Discard())

	svc.Beat(context.Background())

	if p := sender.payloads[0]; p.Status != models.StatusIdle || p.CurrentJobID != "" {
		t.Errorf("payload = %+v", p)
	}
}

func TestBeatReregistersOnStateLoss(t *testing.T) {
	sender := &recordingSender{err: &client.OrchestratorStateError{StatusCode: 404}}
	registered := 0
	svc := New(time.Second, sender, staticStats{}, jobStatus{}, func(context.Context) error {
		registered++
		return nil
	}, logging.Discard())

	svc.Beat(context.Background())
	if registered != 1 {
		t.Errorf("re-registration ran %d times, want 1", registered)
	}

	sender.err = errors.New("connection refused")
	svc.Beat(context.Background())
	if registered != 1 {
		t.Error("plain failures should not trigger re-registration")
	}
}
