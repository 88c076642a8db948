package heartbeat

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"squeeze-worker/internal/client"
	"squeeze-worker/internal/logging"
	"squeeze-worker/pkg/models"
)

// Sender delivers heartbeats. *client.OrchestratorClient implements it.
type Sender interface {
	Heartbeat(ctx context.Context, payload models.HeartbeatPayload) error
}

// StatsSource reports host load. *monitor.SystemMonitor implements it.
type StatsSource interface {
	GetStats(ctx context.Context) (models.HardwareStats, error)
}

// StatusProvider exposes the job currently being compressed, if any.
type StatusProvider interface {
	CurrentJob() (jobID string, busy bool)
}

// Service handles the periodic ping to the Orchestrator.
type Service struct {
	interval time.Duration
	sender   Sender
	stats    StatsSource
	status   StatusProvider
	// reregister runs when the orchestrator reports lost state.
	reregister func(ctx context.Context) error
	log        *logrus.Entry
}

func New(interval time.Duration, sender Sender, stats StatsSource, status StatusProvider, reregister func(ctx context.Context) error, logger *logrus.Logger) *Service {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Service{
		interval:   interval,
		sender:     sender,
		stats:      stats,
		status:     status,
		reregister: reregister,
		log:        logging.Component(logger, "heartbeat"),
	}
}

// Start launches the heartbeat loop in a non-blocking way.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)

	go func() {
		defer ticker.Stop()
		s.log.WithField("interval", s.interval).Info("Heartbeat started")

		for {
			select {
			case <-ctx.Done():
				s.log.Info("Stopping heartbeat")
				return
			case <-ticker.C:
				s.Beat(ctx)
			}
		}
	}()
}

// Payload snapshots the current worker state.
func (s *Service) Payload(ctx context.Context) models.HeartbeatPayload {
	payload := models.HeartbeatPayload{Status: models.StatusIdle}
	if jobID, busy := s.status.CurrentJob(); busy {
		payload.Status = models.StatusBusy
		payload.CurrentJobID = jobID
	}
	stats, err := s.stats.GetStats(ctx)
	if err != nil {
		s.log.WithError(err).Debug("Host stats unavailable")
	}
	payload.HardwareStats = stats
	return payload
}

// Beat sends one heartbeat and re-registers when the orchestrator has
// forgotten this worker.
func (s *Service) Beat(ctx context.Context) {
	err := s.sender.Heartbeat(ctx, s.Payload(ctx))
	if err == nil {
		return
	}
	if client.IsStateError(err) && s.reregister != nil {
		s.log.Warn("Orchestrator lost worker state, re-registering")
		if err := s.reregister(ctx); err != nil {
			s.log.WithError(err).Error("Re-registration failed")
		}
		return
	}
	s.log.WithError(err).Warn("Heartbeat failed")
}
