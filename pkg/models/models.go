package models

import "time"

// Worker status values reported in heartbeats.
const (
	StatusIdle    = "IDLE"
	StatusBusy    = "BUSY"
	StatusOffline = "OFFLINE"
)

// Job status values reported to the orchestrator.
const (
	JobQueued     = "QUEUED"
	JobProcessing = "PROCESSING"
	JobCompleted  = "COMPLETED"
	JobFailed     = "FAILED"
)

// Payload for POST /api/v1/workers/heartbeat
type HeartbeatPayload struct {
	WorkerID      string        `json:"worker_id"`
	Status        string        `json:"status"` // "IDLE", "BUSY", "OFFLINE"
	HardwareStats HardwareStats `json:"hardware"`
	CurrentJobID  string        `json:"current_job_id,omitempty"`
}

type HardwareStats struct {
	// CPU usage percentage (0.0 to 100.0)
	CPUPercent float64 `json:"cpu_usage_percent"`

	// RAM usage percentage (0.0 to 100.0)
	RAMPercent float64 `json:"ram_usage_percent"`

	// Available RAM in megabytes
	RAMAvailableMB uint64 `json:"ram_available_mb"`

	// Computed flag: is the system too busy to accept new work?
	IsBusy bool `json:"is_busy"`
}

// RegistrationPayload is sent once on startup and again when the orchestrator
// loses worker state.
// Used in [POST] /api/v1/workers/register
type RegistrationPayload struct {
	WorkerID     string             `json:"worker_id"`
	BaseURL      string             `json:"base_url,omitempty"`
	Capabilities WorkerCapabilities `json:"capabilities"`
}

// WorkerCapabilities is the static view of this host used for scheduling.
type WorkerCapabilities struct {
	CPUModel         string        `json:"cpu_model"`
	TotalThreads     int           `json:"total_threads"`
	Encoders         []EncoderKind `json:"encoders"`
	PreferredEncoder EncoderKind   `json:"preferred_encoder"`
	SpeedMultiplier  float64       `json:"speed_multiplier"`
}

// NewWorkerCapabilities summarizes detected capabilities for registration.
func NewWorkerCapabilities(caps HardwareCapabilities) WorkerCapabilities {
	return WorkerCapabilities{
		CPUModel:         caps.Host.CPUModel,
		TotalThreads:     caps.Host.Threads,
		Encoders:         caps.AvailableEncoders,
		PreferredEncoder: caps.PreferredEncoder,
		SpeedMultiplier:  caps.SpeedMultiplier,
	}
}

// JobSpec is a compression request accepted by the worker.
// Used in [POST] /jobs
type JobSpec struct {
	JobID              string    `json:"job_id"`
	InputPath          string    `json:"input_path"`
	OutputPath         string    `json:"output_path,omitempty"` // generated next to the input when empty
	TargetMB           float64   `json:"target_mb"`
	Encoder            string    `json:"encoder,omitempty"` // "auto" or empty picks the preferred encoder
	Preset             string    `json:"preset,omitempty"`
	Quality            string    `json:"quality,omitempty"`
	CompatibilityMode  *bool     `json:"compatibility_mode,omitempty"`
	MemoryOptimization *bool     `json:"memory_optimization,omitempty"`
	CreatedAt          time.Time `json:"created_at,omitempty"`
}

// Payload for PATCH /api/v1/jobs/{id}
type JobStatusPayload struct {
	WorkerID string  `json:"worker_id"`
	Status   string  `json:"status"`   // "PROCESSING"
	Progress float64 `json:"progress"` // 0-100
	Attempt  int     `json:"attempt"`
	Encoder  string  `json:"encoder"`
	ETASec   int     `json:"eta_seconds,omitempty"`
}

// Payload for POST /api/v1/jobs/{id}/finalize
type JobResultPayload struct {
	Status     string `json:"status"` // "COMPLETED", "FAILED"
	OutputPath string `json:"output_path,omitempty"`
	ErrorMsg   string `json:"error_message,omitempty"`
	Metrics    struct {
		TotalTimeMS int64   `json:"total_time_ms"`
		OutputBytes int64   `json:"output_bytes"`
		Ratio       float64 `json:"compression_ratio"`
		Encoder     string  `json:"encoder,omitempty"`
		Attempts    int     `json:"attempts"`
	} `json:"metrics"`
}

// NewJobResult builds the finalize payload for a finished job. err takes
// precedence over res.
func NewJobResult(res *CompressionResult, err error, elapsed time.Duration) JobResultPayload {
	var p JobResultPayload
	p.Metrics.TotalTimeMS = elapsed.Milliseconds()
	if err != nil {
		p.Status = JobFailed
		p.ErrorMsg = err.Error()
		return p
	}
	p.Status = JobCompleted
	if res != nil {
		p.OutputPath = res.OutputPath
		p.Metrics.OutputBytes = res.OutputSize
		p.Metrics.Ratio = res.CompressionRatio
		p.Metrics.Encoder = res.EncoderUsed.String()
		p.Metrics.Attempts = res.Attempts
	}
	return p
}
