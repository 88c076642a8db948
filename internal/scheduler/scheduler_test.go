package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"squeeze-worker/internal/logging"
	"squeeze-worker/internal/transcoder"
	"squeeze-worker/pkg/models"
)

type fakeCompressor struct {
	caps     models.HardwareCapabilities
	err      error
	mu       sync.Mutex
	requests []transcoder.Request
}

func (f *fakeCompressor) Capabilities() models.HardwareCapabilities { return f.caps }

func (f *fakeCompressor) Compress(ctx context.Context, req transcoder.Request) (*models.CompressionResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	for _, fraction := range []float64{0.01, 0.02, 0.07, 0.5, 0.51, 1} {
		req.Progress <- models.Progress{Fraction: fraction, Attempt: 1, Encoder: req.Settings.Encoder}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.CompressionResult{
		InputPath:        req.Input,
		OutputPath:       "/videos/out.mp4",
		InputSize:        4000,
		OutputSize:       1000,
		CompressionRatio: 4,
		EncoderUsed:      req.Settings.Encoder,
		Attempts:         1,
	}, nil
}

type recordingReporter struct {
	mu       sync.Mutex
	statuses []models.JobStatusPayload
	results  chan models.JobResultPayload
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{results: make(chan models.JobResultPayload, 4)}
}

func (r *recordingReporter) UpdateJobStatus(ctx context.Context, jobID string, p models.JobStatusPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, p)
	return nil
}

func (r *recordingReporter) FinalizeJob(ctx context.Context, jobID string, p models.JobResultPayload) error {
	r.results <- p
	return nil
}

func gpuCaps() models.HardwareCapabilities {
	return models.HardwareCapabilities{
		AvailableEncoders: []models.EncoderKind{models.NvencH264, models.Software},
		PreferredEncoder:  models.NvencH264,
	}
}

func waitResult(t *testing.T, r *recordingReporter) models.JobResultPayload {
	t.Helper()
	select {
	case res := <-r.results:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job result")
		return models.JobResultPayload{}
	}
}

func TestSettingsConversion(t *testing.T) {
	s := New(&fakeCompressor{caps: gpuCaps()}, nil, models.DefaultCompressionSettings(), 1, logging.Discard())

	auto, err := s.Settings(models.JobSpec{TargetMB: 25})
	if err != nil {
		t.Fatal(err)
	}
	if auto.Encoder != models.NvencH264 || !auto.HardwareAccel || auto.TargetMB != 25 {
		t.Errorf("auto settings = %+v", auto)
	}

	off := false
	explicit, err := s.Settings(models.JobSpec{
		TargetMB:          8,
		Encoder:           "qsv-h264",
		Preset:            "slow",
		Quality:           "constrained",
		CompatibilityMode: &off,
	})
	if err != nil {
		t.Fatal(err)
	}
	if explicit.Encoder != models.NvencH264 {
		t.Errorf("unavailable encoder should resolve to the preferred one, got %s", explicit.Encoder)
	}
	if explicit.Preset != models.PresetSlow || explicit.Quality != models.QualityConstrained || explicit.CompatibilityMode {
		t.Errorf("explicit settings = %+v", explicit)
	}

	for _, bad := range []models.JobSpec{
		{TargetMB: 0},
		{TargetMB: 5, Encoder: "quantum"},
		{TargetMB: 5, Preset: "warp"},
	} {
		if _, err := s.Settings(bad); !errors.Is(err, ErrInvalidJob) {
			t.Errorf("Settings(%+v) error = %v, want ErrInvalidJob", bad, err)
		}
	}
}

func TestSubmitQueueFull(t *testing.T) {
	s := New(&fakeCompressor{caps: gpuCaps()}, nil, models.DefaultCompressionSettings(), 1, logging.Discard())

	job, err := s.Submit(models.JobSpec{InputPath: "/videos/a.mp4", TargetMB: 10})
	if err != nil {
		t.Fatal(err)
	}
	if job.JobID == "" || job.CreatedAt.IsZero() {
		t.Errorf("submit should assign id and time: %+v", job)
	}
	if _, err := s.Submit(models.JobSpec{InputPath: "/videos/b.mp4", TargetMB: 10}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second submit error = %v, want ErrQueueFull", err)
	}
	if _, err := s.Submit(models.JobSpec{TargetMB: 10}); !errors.Is(err, ErrInvalidJob) {
		t.Errorf("missing input error = %v, want ErrInvalidJob", err)
	}
	if s.QueueDepth() != 1 {
		t.Errorf("QueueDepth = %d", s.QueueDepth())
	}
}

func TestRunReportsSampledProgressAndResult(t *testing.T) {
	engine := &fakeCompressor{caps: gpuCaps()}
	reporter := newRecordingReporter()
	s := New(engine, reporter, models.DefaultCompressionSettings(), 4, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	if _, err := s.Submit(models.JobSpec{JobID: "job-1", InputPath: "/videos/a.mp4", TargetMB: 10}); err != nil {
		t.Fatal(err)
	}
	res := waitResult(t, reporter)

	if res.Status != models.JobCompleted || res.OutputPath != "/videos/out.mp4" || res.Metrics.Encoder != "nvenc-h264" {
		t.Errorf("result = %+v", res)
	}
	if stored, ok := s.Result("job-1"); !ok || stored.Status != models.JobCompleted {
		t.Errorf("stored result = %+v, %v", stored, ok)
	}

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	// 1%, 7%, 50% and 100% open new 5% buckets; 2% and 51% do not
	if len(reporter.statuses) != 4 {
		t.Fatalf("forwarded %d updates, want 4: %+v", len(reporter.statuses), reporter.statuses)
	}
	if last := reporter.statuses[3]; last.Progress != 100 || last.Status != models.JobProcessing {
		t.Errorf("last update = %+v", last)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if engine.requests[0].Policy == nil {
		t.Error("each job should get its own fallback policy")
	}
}

func TestRunReportsFailure(t *testing.T) {
	engine := &fakeCompressor{caps: gpuCaps(), err: errors.New("compression failed after 3 attempts")}
	reporter := newRecordingReporter()
	s := New(engine, reporter, models.DefaultCompressionSettings(), 4, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	if _, err := s.Submit(models.JobSpec{InputPath: "/videos/a.mp4", TargetMB: 10}); err != nil {
		t.Fatal(err)
	}
	res := waitResult(t, reporter)
	if res.Status != models.JobFailed || res.ErrorMsg == "" {
		t.Errorf("result = %+v", res)
	}
	if _, busy := s.CurrentJob(); busy {
		t.Error("scheduler should be idle after the job finished")
	}
}

type scriptedReadiness struct {
	mu      sync.Mutex
	answers []bool
	needs   []uint64
}

func (r *scriptedReadiness) HasHeadroom(ctx context.Context, needMB uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.needs = append(r.needs, needMB)
	if len(r.answers) == 0 {
		return false, nil
	}
	ok := r.answers[0]
	r.answers = r.answers[1:]
	return ok, nil
}

func TestRunWaitsForHeadroom(t *testing.T) {
	tests := []struct {
		name       string
		answers    []bool
		wantCalls  int
		wantLowMem bool
	}{
		{name: "ready after one recheck", answers: []bool{false, true}, wantCalls: 2, wantLowMem: false},
		{name: "never ready", answers: nil, wantCalls: 3, wantLowMem: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := gpuCaps()
			caps.MemoryUsageMB = 1536
			engine := &fakeCompressor{caps: caps}
			reporter := newRecordingReporter()
			ready := &scriptedReadiness{answers: tt.answers}
			s := New(engine, reporter, models.DefaultCompressionSettings(), 4, logging.Discard())
			s.SetReadiness(ready, 3, time.Millisecond)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go s.Run(ctx)

			if _, err := s.Submit(models.JobSpec{InputPath: "/videos/a.mp4", TargetMB: 10}); err != nil {
				t.Fatal(err)
			}
			if res := waitResult(t, reporter); res.Status != models.JobCompleted {
				t.Fatalf("result = %+v", res)
			}

			ready.mu.Lock()
			defer ready.mu.Unlock()
			if len(ready.needs) != tt.wantCalls {
				t.Errorf("readiness checked %d times, want %d", len(ready.needs), tt.wantCalls)
			}
			for _, need := range ready.needs {
				if need != 1536 {
					t.Errorf("checked for %d MB, want the registry estimate 1536", need)
				}
			}

			engine.mu.Lock()
			defer engine.mu.Unlock()
			if got := engine.requests[0].Settings.MemoryOptimization; got != tt.wantLowMem {
				t.Errorf("MemoryOptimization = %v, want %v", got, tt.wantLowMem)
			}
		})
	}
}
