package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"squeeze-worker/internal/config"
	"squeeze-worker/internal/logging"
	"squeeze-worker/pkg/models"
)

const (
	registerPath  = "/api/v1/workers/register"
	heartbeatPath = "/api/v1/workers/heartbeat"
	jobsPath      = "/api/v1/jobs/"
)

// OrchestratorClient talks to the optional remote job orchestrator.
// A client without a base URL is disabled; callers check Enabled first.
type OrchestratorClient struct {
	baseURL  string
	workerID string
	http     *retryablehttp.Client
	log      *logrus.Entry
}

func NewOrchestratorClient(cfg *config.Config, logger *logrus.Logger) *OrchestratorClient {
	log := logging.Component(logger, "client")

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = leveledLogger{log}
	// hand the last response back so status codes can be mapped below
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &OrchestratorClient{
		baseURL:  cfg.OrchestratorURL,
		workerID: cfg.WorkerID,
		http:     rc,
		log:      log,
	}
}

// Enabled reports whether an orchestrator URL is configured.
func (c *OrchestratorClient) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// OrchestratorStateError means the orchestrator no longer knows this worker
// and it has to register again.
type OrchestratorStateError struct {
	StatusCode int
}

func (e *OrchestratorStateError) Error() string {
	return fmt.Sprintf("orchestrator lost worker state (status %d)", e.StatusCode)
}

// IsStateError reports whether err asks for re-registration.
func IsStateError(err error) bool {
	var stateErr *OrchestratorStateError
	return errors.As(err, &stateErr)
}

// Register announces the worker and what it can encode. It runs at startup
// and again whenever a state error comes back.
func (c *OrchestratorClient) Register(ctx context.Context, advertisedURL string, caps models.WorkerCapabilities) error {
	body := models.RegistrationPayload{
		WorkerID:     c.workerID,
		BaseURL:      advertisedURL,
		Capabilities: caps,
	}
	if err := c.send(ctx, http.MethodPost, registerPath, body); err != nil {
		return fmt.Errorf("register worker %s: %w", c.workerID, err)
	}
	c.log.WithFields(logrus.Fields{
		"worker_id": c.workerID,
		"encoders":  len(caps.Encoders),
	}).Info("registered with orchestrator")
	return nil
}

// Heartbeat returns state errors unwrapped so the caller can re-register.
func (c *OrchestratorClient) Heartbeat(ctx context.Context, payload models.HeartbeatPayload) error {
	payload.WorkerID = c.workerID
	err := c.send(ctx, http.MethodPost, heartbeatPath, payload)
	if err == nil || IsStateError(err) {
		return err
	}
	return fmt.Errorf("heartbeat: %w", err)
}

func (c *OrchestratorClient) UpdateJobStatus(ctx context.Context, jobID string, payload models.JobStatusPayload) error {
	payload.WorkerID = c.workerID
	return c.send(ctx, http.MethodPatch, jobsPath+url.PathEscape(jobID), payload)
}

func (c *OrchestratorClient) FinalizeJob(ctx context.Context, jobID string, payload models.JobResultPayload) error {
	return c.send(ctx, http.MethodPost, jobsPath+url.PathEscape(jobID)+"/finalize", payload)
}

// send posts payload as JSON and maps the response status onto errors.
func (c *OrchestratorClient) send(ctx context.Context, method, path string, payload any) error {
	var raw []byte
	if payload != nil {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, raw)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Worker-ID", c.workerID)

	resp, err := c.http.Do(req)
	if resp == nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &OrchestratorStateError{StatusCode: resp.StatusCode}
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%s %s: orchestrator responded %s", method, path, resp.Status)
	}
	return nil
}

// leveledLogger routes retryablehttp's messages into logrus at debug level,
// warnings and errors excepted.
type leveledLogger struct {
	entry *logrus.Entry
}

func (l leveledLogger) fields(kv []interface{}) *logrus.Entry {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return l.entry.WithFields(f)
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.fields(kv).Error(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.fields(kv).Warn(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.fields(kv).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.fields(kv).Debug(msg) }
