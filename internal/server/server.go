package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"squeeze-worker/internal/logging"
	"squeeze-worker/internal/metrics"
	"squeeze-worker/internal/scheduler"
	"squeeze-worker/pkg/models"
)

// Queue accepts jobs. *scheduler.Scheduler implements it.
type Queue interface {
	Submit(job models.JobSpec) (models.JobSpec, error)
	CurrentJob() (string, bool)
	QueueDepth() int
	Result(jobID string) (models.JobResultPayload, bool)
}

type JobServer struct {
	addr   string
	queue  Queue
	caps   func() models.HardwareCapabilities
	log    *logrus.Entry
	server *http.Server
}

func NewJobServer(addr string, queue Queue, caps func() models.HardwareCapabilities, logger *logrus.Logger) *JobServer {
	s := &JobServer{
		addr:  addr,
		queue: queue,
		caps:  caps,
		log:   logging.Component(logger, "server"),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router wires every endpoint of the worker API.
func (s *JobServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/jobs", s.handleJobAssignment).Methods("POST")
	r.HandleFunc("/jobs/{id}", s.handleJobResult).Methods("GET")
	r.HandleFunc("/capabilities", s.handleCapabilities).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *JobServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.addr).Info("Listening for jobs")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("Shutting down HTTP server")
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *JobServer) handleJobAssignment(w http.ResponseWriter, r *http.Request) {
	var job models.JobSpec
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	queued, err := s.queue.Submit(job)
	switch {
	case errors.Is(err, scheduler.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.WithFields(logrus.Fields{"job_id": queued.JobID, "input": queued.InputPath}).Info("Received job assignment")
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": queued.JobID, "status": models.JobQueued})
}

func (s *JobServer) handleJobResult(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if res, ok := s.queue.Result(id); ok {
		writeJSON(w, http.StatusOK, res)
		return
	}
	if current, busy := s.queue.CurrentJob(); busy && current == id {
		writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "status": models.JobProcessing})
		return
	}
	writeError(w, http.StatusNotFound, "unknown or queued job")
}

func (s *JobServer) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.caps())
}

type healthResponse struct {
	Status       string `json:"status"`
	CurrentJobID string `json:"current_job_id,omitempty"`
	QueueDepth   int    `json:"queue_depth"`
}

func (s *JobServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: models.StatusIdle, QueueDepth: s.queue.QueueDepth()}
	if id, busy := s.queue.CurrentJob(); busy {
		resp.Status = models.StatusBusy
		resp.CurrentJobID = id
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts requests by route template so ids don't explode label
// cardinality.
func (s *JobServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
