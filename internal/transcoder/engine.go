package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"squeeze-worker/internal/estimator"
	"squeeze-worker/internal/fallback"
	"squeeze-worker/internal/logging"
	"squeeze-worker/internal/metrics"
	"squeeze-worker/pkg/models"
)

// DefaultMaxAttempts bounds the encoder invocations of a single request.
const DefaultMaxAttempts = 3

// Options configures an Engine. Zero values pick the production defaults.
type Options struct {
	FFmpegPath  string
	FFprobePath string
	// TempDir holds two-pass statistics files. Defaults to os.TempDir().
	TempDir     string
	MaxAttempts int
	Runner      Runner
	Prober      MetadataProber
}

// Engine drives compressions: it probes the input, sizes the bitrate,
// invokes ffmpeg and falls back across encoders when an attempt fails.
type Engine struct {
	ffmpegPath  string
	tempDir     string
	maxAttempts int
	runner      Runner
	prober      MetadataProber
	caps        models.HardwareCapabilities

	logger *logrus.Logger
	log    *logrus.Entry
}

// NewEngine locates ffmpeg unless a Runner is injected.
func NewEngine(caps models.HardwareCapabilities, opts Options, logger *logrus.Logger) (*Engine, error) {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.Runner == nil {
		path, err := exec.LookPath(opts.FFmpegPath)
		if err != nil {
			return nil, fmt.Errorf("ffmpeg binary not found: %w", err)
		}
		opts.FFmpegPath = path
		opts.Runner = ExecRunner{}
	}
	if opts.Prober == nil {
		opts.Prober = FFprobe{Path: opts.FFprobePath}
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.MaxAttempts <= 0 || opts.MaxAttempts > DefaultMaxAttempts {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Engine{
		ffmpegPath:  opts.FFmpegPath,
		tempDir:     opts.TempDir,
		maxAttempts: opts.MaxAttempts,
		runner:      opts.Runner,
		prober:      opts.Prober,
		caps:        caps,
		logger:      logger,
		log:         logging.Component(logger, "engine"),
	}, nil
}

// Capabilities returns the hardware the engine was built for.
func (e *Engine) Capabilities() models.HardwareCapabilities {
	return e.caps
}

// Request is one compression. Progress receives lossy updates and is never
// closed by the engine. Policy is created fresh when nil.
type Request struct {
	Input    string
	Output   string // derived from Input when empty
	Settings models.CompressionSettings
	Progress chan<- models.Progress
	Policy   *fallback.Policy
}

// Compress runs req to completion or until every attempt has failed.
func (e *Engine) Compress(ctx context.Context, req Request) (*models.CompressionResult, error) {
	info, err := os.Stat(req.Input)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, req.Input)
	}
	settings := req.Settings
	if !(settings.TargetMB > 0) {
		return nil, fmt.Errorf("%w: target size must be positive, got %v", ErrInvalidSettings, settings.TargetMB)
	}

	output := req.Output
	if output == "" {
		if output, err = UniqueOutputPath(req.Input); err != nil {
			return nil, err
		}
	}
	if samePath(output, req.Input) {
		return nil, fmt.Errorf("%w: output would overwrite input %s", ErrInvalidSettings, req.Input)
	}

	meta, err := e.prober.Probe(ctx, req.Input)
	if err != nil {
		if !errors.Is(err, ErrMetadataProbe) {
			err = fmt.Errorf("%w: %v", ErrMetadataProbe, err)
		}
		return nil, err
	}
	videoKbps, err := estimator.BitrateForTarget(meta, settings.TargetMB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	audioKbps := estimator.AudioBitrateKbps(meta.DurationSeconds)

	policy := req.Policy
	if policy == nil {
		policy = fallback.New(e.caps, e.logger)
	}
	if !e.caps.Has(settings.Encoder) {
		requested := settings.Encoder
		settings = settings.WithEncoder(e.caps.ResolveEncoder(&requested, false))
		e.log.WithFields(logrus.Fields{
			"requested": requested.String(),
			"encoder":   settings.Encoder.String(),
		}).Warn("Requested encoder not available")
	}
	if next := policy.GetNextEncoder(settings.Encoder); next != settings.Encoder {
		settings = settings.WithEncoder(next)
	}

	log := e.log.WithFields(logrus.Fields{"input": req.Input, "output": output})
	log.WithFields(logrus.Fields{
		"encoder":    settings.Encoder.String(),
		"video_kbps": videoKbps,
		"audio_kbps": audioKbps,
		"target_mb":  settings.TargetMB,
	}).Info("Starting compression")

	metrics.CompressionsInFlight.Inc()
	defer metrics.CompressionsInFlight.Dec()

	start := time.Now()
	var lastErr error
	attempts := 0
	for attempts < e.maxAttempts {
		attempts++
		enc := settings.Encoder
		job := encodeJob{
			input:     req.Input,
			output:    output,
			meta:      meta,
			settings:  settings,
			videoKbps: videoKbps,
			audioKbps: audioKbps,
			attempt:   attempts,
			progress:  req.Progress,
		}

		err := e.encode(ctx, job)
		if err == nil {
			err = validateOutput(output)
		}
		if err == nil {
			metrics.EncoderAttemptsTotal.WithLabelValues(enc.String(), "success").Inc()
			policy.RecordSuccess(enc)
			return e.finish(req.Input, output, info.Size(), settings, attempts, time.Since(start))
		}

		metrics.EncoderAttemptsTotal.WithLabelValues(enc.String(), "failure").Inc()
		removePartial(output)
		if ctx.Err() != nil {
			metrics.CompressionsTotal.WithLabelValues("canceled").Inc()
			return nil, fmt.Errorf("compression canceled: %w", ctx.Err())
		}

		lastErr = err
		diag := diagnostics(err)
		policy.RecordFailure(enc, errors.New(diag))
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempts,
			"encoder": enc.String(),
		}).Warn("Compression attempt failed")
		if attempts >= e.maxAttempts {
			break
		}

		next, strategy := policy.Recommend(enc, diag)
		switch {
		case next != enc:
			metrics.FallbacksTotal.WithLabelValues(enc.String(), next.String()).Inc()
			log.WithFields(logrus.Fields{
				"from":     enc.String(),
				"to":       next.String(),
				"strategy": strategy.String(),
			}).Info("Switching encoder")
			settings = settings.WithEncoder(next)
			if next.Vendor() != enc.Vendor() {
				settings.DeviceID = nil
			}
		case strategy == fallback.ReduceMemoryUsage:
			settings.MemoryOptimization = true
		case strategy == fallback.ChangeDevice:
			if id, ok := e.nextDevice(enc, settings.DeviceID); ok {
				settings.DeviceID = &id
			}
		}
	}

	metrics.CompressionsTotal.WithLabelValues("failed").Inc()
	return nil, &AttemptsError{Attempts: attempts, Last: lastErr}
}

type encodeJob struct {
	input, output        string
	meta                 models.VideoMetadata
	settings             models.CompressionSettings
	videoKbps, audioKbps int
	attempt              int
	progress             chan<- models.Progress
}

// encode performs one attempt, in one or two passes.
func (e *Engine) encode(ctx context.Context, job encodeJob) error {
	params := EncodeParams{
		Input:     job.input,
		Output:    job.output,
		Settings:  job.settings,
		VideoKbps: job.videoKbps,
		AudioKbps: job.audioKbps,
	}
	report := newReporter(job, time.Now())

	if !UsesTwoPass(job.settings) {
		return e.run(ctx, params, report.forPass(0, singlePass, job.meta.DurationSeconds))
	}

	prefix := filepath.Join(e.tempDir, "squeeze-passlog-"+uuid.NewString())
	defer cleanupPassLogs(prefix, e.log)

	params.Pass = Pass{Number: 1, LogPrefix: prefix}
	if err := e.run(ctx, params, report.forPass(1, firstPass, job.meta.DurationSeconds)); err != nil {
		return err
	}
	params.Pass.Number = 2
	return e.run(ctx, params, report.forPass(2, secondPass, job.meta.DurationSeconds))
}

func (e *Engine) run(ctx context.Context, params EncodeParams, onLine func(string)) error {
	args := BuildArgs(params)
	e.log.WithField("args", args).Debug("Running ffmpeg")

	err := e.runner.Run(ctx, Invocation{Path: e.ffmpegPath, Args: args}, onLine)
	var pe *ProcessError
	if errors.As(err, &pe) {
		pe.Pass = params.Pass.Number
	}
	return err
}

func (e *Engine) finish(input, output string, inputSize int64, s models.CompressionSettings, attempts int, elapsed time.Duration) (*models.CompressionResult, error) {
	out, err := os.Stat(output)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutputValidation, err)
	}

	res := &models.CompressionResult{
		InputPath:           input,
		OutputPath:          output,
		InputSize:           inputSize,
		OutputSize:          out.Size(),
		EncodingTime:        elapsed,
		EncoderUsed:         s.EffectiveEncoder(),
		HardwareAccelerated: s.HardwareAccel && s.EffectiveEncoder().IsHardware(),
		Attempts:            attempts,
		TwoPass:             UsesTwoPass(s),
	}
	if res.OutputSize > 0 {
		res.CompressionRatio = float64(res.InputSize) / float64(res.OutputSize)
	}

	metrics.CompressionsTotal.WithLabelValues("success").Inc()
	metrics.CompressionDuration.WithLabelValues(res.EncoderUsed.String()).Observe(elapsed.Seconds())
	metrics.CompressionRatio.Observe(res.CompressionRatio)

	entry := e.log.WithFields(logrus.Fields{
		"output":   output,
		"encoder":  res.EncoderUsed.String(),
		"attempts": attempts,
		"ratio":    models.FormatRatio(res.CompressionRatio),
		"elapsed":  models.FormatDuration(elapsed.Seconds()),
	})
	if target := int64(s.TargetMB * 1024 * 1024); res.OutputSize > target {
		metrics.TargetOvershootTotal.Inc()
		entry.WithFields(logrus.Fields{
			"output_bytes": res.OutputSize,
			"target_bytes": target,
		}).Warn("Output exceeds target size")
	}
	entry.Info("Compression complete")
	return res, nil
}

// nextDevice picks another encode-capable device of enc's vendor.
func (e *Engine) nextDevice(enc models.EncoderKind, current *int) (int, bool) {
	for _, d := range e.caps.DevicesFor(enc.Vendor()) {
		if !d.EncodeSupported || (current != nil && d.ID == *current) {
			continue
		}
		if current == nil && d.ID == 0 {
			continue
		}
		return d.ID, true
	}
	return 0, false
}

// reporter turns ffmpeg status lines into Progress updates for one attempt.
type reporter struct {
	ch      chan<- models.Progress
	start   time.Time
	attempt int
	encoder models.EncoderKind
}

func newReporter(job encodeJob, start time.Time) *reporter {
	return &reporter{
		ch:      job.progress,
		start:   start,
		attempt: job.attempt,
		encoder: job.settings.EffectiveEncoder(),
	}
}

func (r *reporter) forPass(pass int, span passRange, duration float64) func(string) {
	return func(line string) {
		if r.ch == nil {
			return
		}
		pos, ok := ParseProgressTime(line)
		if !ok {
			return
		}
		p := models.Progress{
			Fraction: span.apply(Fraction(pos, duration)),
			Pass:     pass,
			Attempt:  r.attempt,
			Encoder:  r.encoder,
		}
		p.ETA, p.HasETA = EstimateETA(time.Since(r.start), p.Fraction)

		select {
		case r.ch <- p:
		default:
			// drop the update if the consumer is slow
		}
	}
}

func validateOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputValidation, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrOutputValidation, path)
	}
	return nil
}

func removePartial(path string) {
	_ = os.Remove(path)
}

// cleanupPassLogs removes the statistics files ffmpeg writes next to prefix
// (prefix-0.log and prefix-0.log.mbtree).
func cleanupPassLogs(prefix string, log *logrus.Entry) {
	matches, _ := filepath.Glob(prefix + "*")
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).WithField("file", m).Warn("Failed to remove pass log")
		}
	}
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}
