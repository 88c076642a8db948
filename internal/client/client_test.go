package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"squeeze-worker/internal/config"
	"squeeze-worker/internal/logging"
	"squeeze-worker/pkg/models"
)

func newTestClient(url string) *OrchestratorClient {
	return NewOrchestratorClient(&config.Config{OrchestratorURL: url, WorkerID: "worker-7"}, logging.Discard())
}

func TestRegisterSendsCapabilities(t *testing.T) {
	var got models.RegistrationPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/workers/register" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Worker-ID") != "worker-7" {
			t.Errorf("missing worker id header")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	caps := models.WorkerCapabilities{
		CPUModel:         "Test CPU",
		TotalThreads:     8,
		Encoders:         []models.EncoderKind{models.NvencH264, models.Software},
		PreferredEncoder: models.NvencH264,
	}
	if err := newTestClient(srv.URL).Register(context.Background(), "http://worker:8089", caps); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got.WorkerID != "worker-7" || got.BaseURL != "http://worker:8089" {
		t.Errorf("payload = %+v", got)
	}
	if len(got.Capabilities.Encoders) != 2 || got.Capabilities.PreferredEncoder != models.NvencH264 {
		t.Errorf("capabilities = %+v", got.Capabilities)
	}
}

func TestStateErrorOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Heartbeat(context.Background(), models.HeartbeatPayload{Status: models.StatusIdle})
	if !IsStateError(err) {
		t.Fatalf("expected OrchestratorStateError, got %v", err)
	}
}

func TestJobReporting(t *testing.T) {
	var paths []string
	var status models.JobStatusPayload
	var result models.JobResultPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPatch:
			json.NewDecoder(r.Body).Decode(&status)
		case http.MethodPost:
			json.NewDecoder(r.Body).Decode(&result)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx := context.Background()
	if err := c.UpdateJobStatus(ctx, "job-1", models.JobStatusPayload{Status: models.JobProcessing, Progress: 55}); err != nil {
		t.Fatal(err)
	}
	if err := c.FinalizeJob(ctx, "job-1", models.JobResultPayload{Status: models.JobCompleted, OutputPath: "/out.mp4"}); err != nil {
		t.Fatal(err)
	}

	if len(paths) != 2 || paths[0] != "PATCH /api/v1/jobs/job-1" || paths[1] != "POST /api/v1/jobs/job-1/finalize" {
		t.Errorf("requests = %v", paths)
	}
	if status.WorkerID != "worker-7" || status.Progress != 55 {
		t.Errorf("status payload = %+v", status)
	}
	if result.Status != models.JobCompleted || result.OutputPath != "/out.mp4" {
		t.Errorf("result payload = %+v", result)
	}
}

func TestEnabled(t *testing.T) {
	if newTestClient("").Enabled() {
		t.Error("client without URL should be disabled")
	}
	var nilClient *OrchestratorClient
	if nilClient.Enabled() {
		t.Error("nil client should be disabled")
	}
}

func TestServerErrorIsNotStateError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.http.RetryMax = 0
	err := c.FinalizeJob(context.Background(), "job-2", models.JobResultPayload{Status: models.JobFailed})
	if err == nil || IsStateError(err) {
		t.Fatalf("expected a plain error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
