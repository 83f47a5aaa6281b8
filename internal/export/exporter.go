package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/audio"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/metrics"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/rdio"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/session"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot frees up in time
	ErrQueueFull = errors.New("export queue full")

	// ErrClosed is returned by Submit after Close
	ErrClosed = errors.New("exporter closed")
)

const maxRetryBackoff = time.Minute

// Deliverer uploads a single recording
type Deliverer interface {
	Deliver(ctx context.Context, call *rdio.Call) error
}

// Config contains exporter configuration
type Config struct {
	Workers        int
	QueueSize      int
	EnqueueTimeout time.Duration // 0 drops immediately when full
	SpoolDir       string        // empty keeps recordings in memory
	KeepFailed     bool
	MaxAttempts    int
	RetryBackoff   time.Duration

	SystemID    string
	SystemLabel string // empty: use the call's channel label
}

// Job is one finalized call waiting for export
type Job struct {
	ID          string
	Session     *session.CallSession
	FinalizedAt time.Time
}

// Stats is a snapshot of exporter counters
type Stats struct {
	Submitted     uint64 `json:"submitted"`
	Delivered     uint64 `json:"delivered"`
	Failed        uint64 `json:"failed"`
	Dropped       uint64 `json:"dropped"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	Waiting       int64  `json:"waiting"`
	InFlight      int64  `json:"in_flight"`
}

// Exporter runs the export worker pool
type Exporter struct {
	config  Config
	client  Deliverer
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue  chan *Job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	submitted atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	inFlight  atomic.Int64
	waiting   atomic.Int64

	now   func() time.Time
	sleep func(time.Duration)
}

// NewExporter creates an exporter; call Start to launch the workers
func NewExporter(config Config, client Deliverer, logger *slog.Logger, m *metrics.Metrics) (*Exporter, error) {
	if client == nil {
		return nil, fmt.Errorf("deliverer cannot be nil")
	}

	if config.Workers <= 0 {
		config.Workers = 1
	}

	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	if config.SpoolDir != "" {
		if err := os.MkdirAll(config.SpoolDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create spool directory %s: %w", config.SpoolDir, err)
		}
	}

	return &Exporter{
		config:  config,
		client:  client,
		logger:  logger,
		metrics: m,
		queue:   make(chan *Job, config.QueueSize),
		now:     time.Now,
		sleep:   time.Sleep,
	}, nil
}

// Start launches the export workers
func (e *Exporter) Start() {
	for i := 0; i < e.config.Workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}

	e.logger.Info("Export workers started",
		slog.Int("workers", e.config.Workers),
		slog.Int("queue_size", e.config.QueueSize),
		slog.Int("max_attempts", e.config.MaxAttempts),
		slog.String("spool_dir", e.config.SpoolDir),
	)
}

// Submit queues a finalized session for export without blocking. When the queue
// is full and an enqueue timeout is configured, the session waits for a free slot
// on its own goroutine and is dropped if none frees up in time; otherwise it is
// dropped immediately with ErrQueueFull.
func (e *Exporter) Submit(s *session.CallSession) error {
	job := &Job{
		ID:          uuid.NewString(),
		Session:     s,
		FinalizedAt: e.now().UTC(),
	}

	e.mu.RLock()

	if e.closed {
		e.mu.RUnlock()
		e.recordDropped()
		return ErrClosed
	}

	select {
	case e.queue <- job:
		e.mu.RUnlock()
		e.queued(job)
		return nil
	default:
	}

	if e.config.EnqueueTimeout <= 0 {
		e.mu.RUnlock()
		e.recordDropped()
		return ErrQueueFull
	}

	// The read lock is held until the wait ends so Close cannot close the
	// queue underneath it.
	e.waiting.Add(1)
	go func() {
		defer e.mu.RUnlock()
		defer e.waiting.Add(-1)

		timer := time.NewTimer(e.config.EnqueueTimeout)
		defer timer.Stop()

		select {
		case e.queue <- job:
			e.queued(job)
		case <-timer.C:
			e.recordDropped()
			e.logger.Error("Dropping recording",
				slog.String("job_id", job.ID),
				slog.String("src_id", s.Identity.SourceID),
				slog.String("dst_id", s.Identity.DestinationID),
				slog.Duration("waited", e.config.EnqueueTimeout),
				slog.String("error", ErrQueueFull.Error()),
			)
		}
	}()

	return nil
}

func (e *Exporter) queued(job *Job) {
	e.submitted.Add(1)
	e.setQueueDepth()

	e.logger.Debug("Call queued for export",
		slog.String("job_id", job.ID),
		slog.String("src_id", job.Session.Identity.SourceID),
		slog.String("dst_id", job.Session.Identity.DestinationID),
		slog.Int("queue_depth", len(e.queue)),
	)
}

// Close stops accepting work and waits for queued exports to finish
func (e *Exporter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	e.logger.Info("Waiting for export queue to drain", slog.Int("queued", len(e.queue)))
	e.wg.Wait()

	stats := e.Stats()
	e.logger.Info("Export workers stopped",
		slog.Uint64("submitted", stats.Submitted),
		slog.Uint64("delivered", stats.Delivered),
		slog.Uint64("failed", stats.Failed),
		slog.Uint64("dropped", stats.Dropped),
	)
}

// Stats returns current exporter counters
func (e *Exporter) Stats() Stats {
	return Stats{
		Submitted:     e.submitted.Load(),
		Delivered:     e.delivered.Load(),
		Failed:        e.failed.Load(),
		Dropped:       e.dropped.Load(),
		QueueDepth:    len(e.queue),
		QueueCapacity: cap(e.queue),
		Waiting:       e.waiting.Load(),
		InFlight:      e.inFlight.Load(),
	}
}

// worker consumes jobs until the queue is closed
func (e *Exporter) worker(workerID int) {
	defer e.wg.Done()

	e.logger.Debug("Export worker started", slog.Int("worker_id", workerID))

	for job := range e.queue {
		e.setQueueDepth()
		e.run(job, workerID)
	}

	e.logger.Debug("Export worker stopped", slog.Int("worker_id", workerID))
}

// run exports one job, containing any panic to that job
func (e *Exporter) run(job *Job, workerID int) {
	e.inFlight.Add(1)
	if e.metrics != nil {
		e.metrics.ExportStarted()
	}

	defer func() {
		e.inFlight.Add(-1)
		if e.metrics != nil {
			e.metrics.ExportFinished()
		}

		if r := recover(); r != nil {
			e.failed.Add(1)
			e.logger.Error("Export panicked",
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
				slog.Int("worker_id", workerID),
			)
		}
	}()

	if e.export(job, workerID) {
		e.delivered.Add(1)
	} else {
		e.failed.Add(1)
	}
}

// export encodes, spools and delivers one call. It reports whether the
// recording was delivered.
func (e *Exporter) export(job *Job, workerID int) bool {
	s := job.Session
	name := FileName(s.Identity, job.FinalizedAt)

	logger := e.logger.With(
		slog.String("job_id", job.ID),
		slog.String("src_id", s.Identity.SourceID),
		slog.String("dst_id", s.Identity.DestinationID),
		slog.String("file", name),
		slog.Int("worker_id", workerID),
	)

	pcm := s.PCM()
	if len(pcm)%audio.BytesPerSample != 0 {
		logger.Warn("Recording has a trailing partial sample, exporting as-is",
			slog.Int("pcm_bytes", len(pcm)),
		)
	}

	wav := audio.EncodeWAV(pcm)
	if e.metrics != nil {
		e.metrics.RecordRecording(len(wav), s.Duration())
	}

	call := e.buildCall(s, name, job.FinalizedAt)

	var spoolPath string
	if e.config.SpoolDir != "" {
		spoolPath = filepath.Join(e.config.SpoolDir, job.ID+"_"+name)
		if err := os.WriteFile(spoolPath, wav, 0o644); err != nil {
			logger.Error("Failed to write recording, abandoning export", slog.String("error", err.Error()))
			return false
		}
		call.AudioPath = spoolPath
	} else {
		call.Audio = wav
	}

	logger.Info("Call ended. Sending to API",
		slog.Duration("audio_duration", s.Duration()),
		slog.Int("frames", s.Frames()),
		slog.Int("size_bytes", len(wav)),
	)

	err := e.deliver(call, logger)
	if err == nil {
		logger.Info("Call uploaded successfully")
		e.removeSpool(spoolPath, logger)
		return true
	}

	logger.Error("Call failed to upload", slog.String("error", err.Error()))
	if e.config.KeepFailed && spoolPath != "" {
		logger.Warn("Keeping failed recording", slog.String("path", spoolPath))
	} else {
		e.removeSpool(spoolPath, logger)
	}
	return false
}

// deliver makes up to MaxAttempts upload attempts with exponential backoff
func (e *Exporter) deliver(call *rdio.Call, logger *slog.Logger) error {
	var lastErr error

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := e.config.RetryBackoff << (attempt - 2)
			if backoff > maxRetryBackoff || backoff < 0 {
				backoff = maxRetryBackoff
			}

			logger.Warn("Retrying upload",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.String("last_error", lastErr.Error()),
			)
			e.sleep(backoff)
		}

		start := time.Now()
		lastErr = e.client.Deliver(context.Background(), call)
		if e.metrics != nil {
			e.metrics.RecordUploadAttempt(attempt > 1, time.Since(start))
		}

		if lastErr == nil {
			break
		}
	}

	if e.metrics != nil {
		e.metrics.RecordUploadResult(lastErr == nil)
	}

	if lastErr != nil && e.config.MaxAttempts > 1 {
		return fmt.Errorf("upload failed after %d attempts: %w", e.config.MaxAttempts, lastErr)
	}
	return lastErr
}

// buildCall assembles the upload metadata for a session
func (e *Exporter) buildCall(s *session.CallSession, name string, finalizedAt time.Time) *rdio.Call {
	label := e.config.SystemLabel
	if label == "" {
		label = s.ChannelLabel
	}

	return &rdio.Call{
		AudioName:   name,
		DateTime:    finalizedAt,
		Talkgroup:   s.Identity.DestinationID,
		Source:      s.Identity.SourceID,
		SystemID:    e.config.SystemID,
		SystemLabel: label,
	}
}

func (e *Exporter) removeSpool(path string, logger *slog.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to remove spooled recording", slog.String("error", err.Error()))
	}
}

func (e *Exporter) recordDropped() {
	e.dropped.Add(1)
	if e.metrics != nil {
		e.metrics.RecordDropped()
	}
}

func (e *Exporter) setQueueDepth() {
	if e.metrics != nil {
		e.metrics.SetQueueDepth(len(e.queue))
	}
}

// FileName returns the recording file name for a call finalized at t
func FileName(id session.CallIdentity, t time.Time) string {
	return fmt.Sprintf("call_%s-%s_%s.wav", id.SourceID, id.DestinationID, t.UTC().Format("20060102150405"))
}
