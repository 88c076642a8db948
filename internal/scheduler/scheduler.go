// Package scheduler runs queued compression jobs one at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"squeeze-worker/internal/fallback"
	"squeeze-worker/internal/logging"
	"squeeze-worker/internal/metrics"
	"squeeze-worker/internal/transcoder"
	"squeeze-worker/pkg/models"
)

var (
	ErrQueueFull  = errors.New("job queue is full")
	ErrInvalidJob = errors.New("invalid job")
)

// Compressor is the part of *transcoder.Engine the scheduler drives.
type Compressor interface {
	Compress(ctx context.Context, req transcoder.Request) (*models.CompressionResult, error)
	Capabilities() models.HardwareCapabilities
}

// Reporter forwards job state to a remote orchestrator.
// *client.OrchestratorClient implements it.
type Reporter interface {
	UpdateJobStatus(ctx context.Context, jobID string, payload models.JobStatusPayload) error
	FinalizeJob(ctx context.Context, jobID string, payload models.JobResultPayload) error
}

// Readiness reports whether the host can take an encode needing needMB of
// memory. *monitor.SystemMonitor implements it.
type Readiness interface {
	HasHeadroom(ctx context.Context, needMB uint64) (bool, error)
}

type Scheduler struct {
	engine   Compressor
	reporter Reporter // nil when running standalone
	ready    Readiness
	checks   int
	recheck  time.Duration
	defaults models.CompressionSettings
	queue    chan models.JobSpec
	logger   *logrus.Logger
	log      *logrus.Entry

	mu      sync.Mutex
	current string
	last    map[string]models.JobResultPayload
}

func New(engine Compressor, reporter Reporter, defaults models.CompressionSettings, queueSize int, logger *logrus.Logger) *Scheduler {
	if queueSize <= 0 {
		queueSize = 16
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		engine:   engine,
		reporter: reporter,
		defaults: defaults,
		queue:    make(chan models.JobSpec, queueSize),
		logger:   logger,
		log:      logging.Component(logger, "scheduler"),
		last:     make(map[string]models.JobResultPayload),
	}
}

// SetReadiness makes each job wait for host headroom, checking up to checks
// times with wait in between. A job that never gets headroom still runs, with
// memory optimization forced on.
func (s *Scheduler) SetReadiness(r Readiness, checks int, wait time.Duration) {
	if checks < 1 {
		checks = 1
	}
	s.ready = r
	s.checks = checks
	s.recheck = wait
}

// Submit validates job and queues it without blocking. It returns the job
// with its ID and creation time filled in.
func (s *Scheduler) Submit(job models.JobSpec) (models.JobSpec, error) {
	if _, err := s.Settings(job); err != nil {
		return job, err
	}
	if strings.TrimSpace(job.InputPath) == "" {
		return job, fmt.Errorf("%w: input_path is required", ErrInvalidJob)
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	select {
	case s.queue <- job:
		metrics.JobQueueDepth.Set(float64(len(s.queue)))
		s.log.WithFields(logrus.Fields{"job_id": job.JobID, "input": job.InputPath}).Info("Job queued")
		return job, nil
	default:
		return job, ErrQueueFull
	}
}

// Settings converts a job request into compression settings on top of the
// configured defaults.
func (s *Scheduler) Settings(job models.JobSpec) (models.CompressionSettings, error) {
	settings := s.defaults
	if !(job.TargetMB > 0) {
		return settings, fmt.Errorf("%w: target_mb must be positive", ErrInvalidJob)
	}
	settings.TargetMB = job.TargetMB

	caps := s.engine.Capabilities()
	switch name := strings.TrimSpace(job.Encoder); strings.ToLower(name) {
	case "", "auto":
		settings = settings.WithEncoder(caps.ResolveEncoder(nil, false))
	default:
		kind, err := models.ParseEncoderKind(name)
		if err != nil {
			return settings, fmt.Errorf("%w: %v", ErrInvalidJob, err)
		}
		settings = settings.WithEncoder(caps.ResolveEncoder(&kind, false))
	}

	if job.Preset != "" {
		p, err := models.ParsePreset(job.Preset)
		if err != nil {
			return settings, fmt.Errorf("%w: %v", ErrInvalidJob, err)
		}
		settings.Preset = p
	}
	if job.Quality != "" {
		q, err := models.ParseQualityMode(job.Quality)
		if err != nil {
			return settings, fmt.Errorf("%w: %v", ErrInvalidJob, err)
		}
		settings.Quality = q
	}
	if job.CompatibilityMode != nil {
		settings.CompatibilityMode = *job.CompatibilityMode
	}
	if job.MemoryOptimization != nil {
		settings.MemoryOptimization = *job.MemoryOptimization
	}
	return settings, nil
}

// Run processes queued jobs until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("Scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopped")
			return
		case job := <-s.queue:
			metrics.JobQueueDepth.Set(float64(len(s.queue)))
			s.process(ctx, job)
		}
	}
}

// CurrentJob reports the job being compressed, if any.
func (s *Scheduler) CurrentJob() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != ""
}

// Result returns the final payload of a finished job.
func (s *Scheduler) Result(jobID string) (models.JobResultPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.last[jobID]
	return r, ok
}

func (s *Scheduler) QueueDepth() int {
	return len(s.queue)
}

func (s *Scheduler) setCurrent(jobID string) {
	s.mu.Lock()
	s.current = jobID
	s.mu.Unlock()
}

func (s *Scheduler) process(ctx context.Context, job models.JobSpec) {
	log := s.log.WithField("job_id", job.JobID)
	start := time.Now()
	settings, err := s.Settings(job)
	if err != nil {
		s.finalize(ctx, job.JobID, models.NewJobResult(nil, err, time.Since(start)))
		return
	}
	s.setCurrent(job.JobID)

	if !s.awaitHeadroom(ctx, log) && !settings.MemoryOptimization {
		log.Warn("Host is short on memory, enabling memory optimization")
		settings.MemoryOptimization = true
	}

	log.WithFields(logrus.Fields{
		"input":     job.InputPath,
		"target_mb": settings.TargetMB,
		"encoder":   settings.Encoder.String(),
	}).Info("Processing job")

	progress := make(chan models.Progress, 8)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		s.forwardProgress(ctx, job.JobID, progress)
	}()

	res, err := s.engine.Compress(ctx, transcoder.Request{
		Input:    job.InputPath,
		Output:   job.OutputPath,
		Settings: settings,
		Progress: progress,
		Policy:   fallback.New(s.engine.Capabilities(), s.logger),
	})
	close(progress)
	<-forwarded
	s.setCurrent("")

	if err != nil {
		log.WithError(err).Error("Job failed")
	} else {
		log.WithField("summary", res.Summary()).Info("Job completed")
	}
	s.finalize(ctx, job.JobID, models.NewJobResult(res, err, time.Since(start)))
}

// awaitHeadroom polls the readiness check. It returns false only when every
// check reported the host as loaded.
func (s *Scheduler) awaitHeadroom(ctx context.Context, log *logrus.Entry) bool {
	if s.ready == nil {
		return true
	}
	need := s.engine.Capabilities().MemoryUsageMB
	for i := 0; i < s.checks; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return true
			case <-time.After(s.recheck):
			}
		}
		ok, err := s.ready.HasHeadroom(ctx, need)
		if err != nil {
			log.WithError(err).Debug("Readiness check failed, not waiting")
			return true
		}
		if ok {
			return true
		}
		log.WithFields(logrus.Fields{"need_mb": need, "check": i + 1}).Info("Waiting for host headroom")
	}
	return false
}

// forwardProgress relays sampled updates until progress is closed.
func (s *Scheduler) forwardProgress(ctx context.Context, jobID string, progress <-chan models.Progress) {
	sampler := logging.NewProgressSampler(5)
	for p := range progress {
		stage := fmt.Sprintf("attempt %d", p.Attempt)
		if !sampler.ShouldEmit(p.Fraction*100, stage) {
			continue
		}
		payload := models.JobStatusPayload{
			Status:   models.JobProcessing,
			Progress: p.Fraction * 100,
			Attempt:  p.Attempt,
			Encoder:  p.Encoder.String(),
		}
		if p.HasETA {
			payload.ETASec = int(p.ETA.Seconds())
		}
		s.log.WithFields(logrus.Fields{
			"job_id":   jobID,
			"progress": fmt.Sprintf("%.0f%%", payload.Progress),
			"encoder":  payload.Encoder,
		}).Debug("Job progress")
		if s.reporter == nil {
			continue
		}
		if err := s.reporter.UpdateJobStatus(ctx, jobID, payload); err != nil {
			s.log.WithError(err).WithField("job_id", jobID).Warn("Failed to report progress")
		}
	}
}

func (s *Scheduler) finalize(ctx context.Context, jobID string, result models.JobResultPayload) {
	s.mu.Lock()
	s.last[jobID] = result
	s.mu.Unlock()

	if s.reporter == nil {
		return
	}
	if err := s.reporter.FinalizeJob(ctx, jobID, result); err != nil {
		s.log.WithError(err).WithField("job_id", jobID).Error("Failed to finalize job")
	}
}
