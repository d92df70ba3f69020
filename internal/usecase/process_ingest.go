package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-ingest/internal/domain/port"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProcessIngestUseCase handles one queued ingestion request: it fetches the
// uploaded objects, runs them through the orchestrator applying the interval
// decisions carried by the message, and records the outcome.
type ProcessIngestUseCase struct {
	repo         port.IngestJobRepository
	uploads      port.UploadSource
	orchestrator *Orchestrator
	publisher    port.StatusPublisher
	dlq          port.DLQPublisher
	notifier     port.FailureNotifier
	logger       *zap.Logger
	maxRetry     int
}

type ProcessIngestConfig struct {
	MaxRetries int
}

func NewProcessIngestUseCase(
	repo port.IngestJobRepository,
	uploads port.UploadSource,
	orchestrator *Orchestrator,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessIngestConfig,
) *ProcessIngestUseCase {
	return &ProcessIngestUseCase{
		repo:         repo,
		uploads:      uploads,
		orchestrator: orchestrator,
		publisher:    publisher,
		dlq:          dlq,
		notifier:     notifier,
		logger:       logger,
		maxRetry:     cfg.MaxRetries,
	}
}

// Execute is the queue message handler. A returned error asks the consumer to
// requeue the message; permanent failures are parked in the DLQ and return nil.
func (uc *ProcessIngestUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessIngestUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.IngestRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.Int("job.files", len(msg.Files)),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("user_id", msg.UserID))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewIngestJob(msg.JobID, msg.UserID, uc.maxRetry)
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded", log)
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	if err := uc.runCycle(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	return nil
}

func (uc *ProcessIngestUseCase) runCycle(
	ctx context.Context,
	job *entity.IngestJob,
	msg entity.IngestRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	fetchStart := time.Now()
	ctxFetch, spanFetch := tracer.Start(ctx, "fetch_uploads")
	files := make([]entity.UploadedFile, 0, len(msg.Files))
	for _, obj := range msg.Files {
		f, err := uc.uploads.FetchUpload(ctxFetch, obj)
		if err != nil {
			spanFetch.End()
			log.Error("failed to fetch upload", zap.String("key", obj.Key), zap.Error(err))
			return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "fetch_upload: "+err.Error(), log)
		}
		files = append(files, f)
	}
	spanFetch.End()
	metrics.StageDuration.WithLabelValues("fetch").Observe(time.Since(fetchStart).Seconds())

	cycle, err := uc.orchestrator.Ingest(ctx, files)
	if err != nil {
		if errors.Is(err, ErrCycleInProgress) || isRetryable(err) {
			return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "ingest: "+err.Error(), log)
		}
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "ingest: "+err.Error(), log)
	}

	if cycle.State() == StateAwaitingConfiguration {
		if err := applyConfiguration(cycle, msg); err != nil {
			// Leaves the pending cycle to be superseded by the next request.
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "configure: "+err.Error(), log)
		}

		if msg.Cancel {
			_, err = uc.orchestrator.Cancel(ctx, cycle)
		} else {
			_, err = uc.orchestrator.Confirm(ctx, cycle)
		}
		if err != nil {
			if isRetryable(err) {
				return uc.handleRetryableFailure(ctx, job, msg, rawMsg, err.Error(), log)
			}
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, err.Error(), log)
		}
	}

	images, videos, frames := cycle.Counts()
	job.MarkFinished(cycle.Cancelled(), cycle.ID(), images, videos, frames)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("ingestion request completed",
		zap.String("cycle_id", cycle.ID()),
		zap.Int("image_count", images),
		zap.Int("video_count", videos),
		zap.Int("frame_count", frames),
		zap.Bool("cancelled", cycle.Cancelled()),
	)
	return nil
}

// applyConfiguration replays the interval decisions of msg on the pending
// jobs of c: intervals first, then removals, both matched by object key.
func applyConfiguration(c *Cycle, msg entity.IngestRequestMessage) error {
	for i, j := range c.Jobs() {
		if iv, ok := msg.Intervals[j.File.Key]; ok {
			if err := c.SetInterval(i, iv); err != nil {
				return fmt.Errorf("video %q: %w", j.File.Key, err)
			}
		}
	}

	for _, key := range msg.Remove {
		for i, j := range c.Jobs() {
			if j.File.Key == key {
				if err := c.Remove(i); err != nil {
					return fmt.Errorf("video %q: %w", key, err)
				}
				break
			}
		}
	}
	return nil
}

// isRetryable reports whether a later attempt of the same request can
// succeed. Transport and result storage failures qualify. Service, archive
// and entry errors would repeat identically.
func isRetryable(err error) bool {
	var transportErr *entity.TransportError
	return errors.As(err, &transportErr) || errors.Is(err, ErrRegistry)
}

// RetryError asks the consumer to redeliver the request. Attempt is the
// attempt that just failed and drives the redelivery backoff.
type RetryError struct {
	Attempt     int
	MaxAttempts int
	Reason      string
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retryable failure (attempt %d/%d): %s", e.Attempt, e.MaxAttempts, e.Reason)
}

func (e *RetryError) RetryAttempt() int { return e.Attempt }

func (uc *ProcessIngestUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.IngestJob,
	msg entity.IngestRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg, log)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return &RetryError{Attempt: job.Attempt, MaxAttempts: job.MaxAttempts, Reason: errMsg}
}

func (uc *ProcessIngestUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.IngestJob,
	msg entity.IngestRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, log)

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), errMsg)
	}

	return nil
}

func (uc *ProcessIngestUseCase) publishStatus(ctx context.Context, job *entity.IngestJob, log *zap.Logger) {
	status := entity.IngestStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		ResultPrefix: job.ResultPrefix,
		ImageCount:   job.ImageCount,
		VideoCount:   job.VideoCount,
		FrameCount:   job.FrameCount,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	if err := uc.publisher.PublishStatus(ctx, status); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
