package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-ingest/internal/domain/port"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/metrics"
	"github.com/google/uuid"
	"github.com/olebedev/emitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TopicCycleState is the event bus topic carrying a StateEvent for every
// cycle transition.
const TopicCycleState = "cycle.state"

var (
	ErrCycleInProgress = errors.New("another ingestion cycle is submitting or merging")
	ErrCycleSuperseded = errors.New("ingestion cycle superseded by a newer upload")
	ErrRegistry        = errors.New("image registry unavailable")
)

type StateEvent struct {
	CycleID string
	State   CycleState
	Err     error
}

type OrchestratorConfig struct {
	DefaultInterval float64
	// EmitTimeout bounds how long a transition waits for slow subscribers.
	EmitTimeout time.Duration
}

// Orchestrator drives ingestion cycles: it classifies an uploaded batch,
// holds video jobs while their intervals are configured, submits them to the
// extraction service, reassembles the returned archive and hands images
// followed by frames to the registry. Only one cycle runs at a time.
type Orchestrator struct {
	submitter   port.BatchSubmitter
	decoder     port.ArchiveDecoder
	reassembler *Reassembler
	registry    port.ImageRegistry
	events      *emitter.Emitter
	logger      *zap.Logger
	cfg         OrchestratorConfig

	mu      sync.Mutex
	current *Cycle
}

func NewOrchestrator(
	submitter port.BatchSubmitter,
	decoder port.ArchiveDecoder,
	reassembler *Reassembler,
	registry port.ImageRegistry,
	events *emitter.Emitter,
	logger *zap.Logger,
	cfg OrchestratorConfig,
) *Orchestrator {
	if !(cfg.DefaultInterval > 0) {
		cfg.DefaultInterval = entity.DefaultCaptureInterval
	}
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = time.Second
	}
	return &Orchestrator{
		submitter:   submitter,
		decoder:     decoder,
		reassembler: reassembler,
		registry:    registry,
		events:      events,
		logger:      logger,
		cfg:         cfg,
	}
}

// Ingest starts a new cycle for files. A batch without videos is merged and
// registered right away; otherwise the cycle is returned awaiting
// configuration. A previous cycle still awaiting configuration is superseded.
func (o *Orchestrator) Ingest(ctx context.Context, files []entity.UploadedFile) (*Cycle, error) {
	o.mu.Lock()
	var superseded *Cycle
	if cur := o.current; cur != nil {
		switch cur.State() {
		case StateClassifying, StateSubmitting, StateMerging:
			o.mu.Unlock()
			return nil, ErrCycleInProgress
		case StateAwaitingConfiguration:
			if !cur.supersede() {
				o.mu.Unlock()
				return nil, ErrCycleInProgress
			}
			superseded = cur
		}
	}
	c := newCycle(uuid.NewString())
	o.current = c
	o.mu.Unlock()

	if superseded != nil {
		o.emit(superseded, StateFailed, ErrCycleSuperseded)
		metrics.CyclesTotal.WithLabelValues("superseded").Inc()
		o.logger.Info("pending cycle superseded", zap.String("cycle_id", superseded.ID()))
	}

	o.emit(c, StateClassifying, nil)
	c.classify(files, o.cfg.DefaultInterval)

	images, videos, _ := c.Counts()
	o.logger.Info("upload batch classified",
		zap.String("cycle_id", c.ID()),
		zap.Int("images", images),
		zap.Int("videos", videos),
	)

	if videos == 0 {
		if err := c.transition(StateMerging, StateClassifying); err != nil {
			return c, err
		}
		_, err := o.merge(ctx, c, nil)
		return c, err
	}

	if err := c.transition(StateAwaitingConfiguration, StateClassifying); err != nil {
		return c, err
	}
	o.emit(c, StateAwaitingConfiguration, nil)
	return c, nil
}

// Confirm submits the remaining jobs of c and merges the extracted frames
// after the direct images. Once submission starts the cycle runs to Done or
// Failed; on failure nothing is registered.
func (o *Orchestrator) Confirm(ctx context.Context, c *Cycle) ([]entity.Image, error) {
	jobs, err := c.beginSubmit()
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return o.merge(ctx, c, nil)
	}
	o.emit(c, StateSubmitting, nil)

	metrics.ActiveCycles.Inc()
	defer metrics.ActiveCycles.Dec()

	frames, err := o.extract(ctx, c, jobs)
	if err != nil {
		return nil, o.fail(c, err)
	}

	if err := c.transition(StateMerging, StateSubmitting); err != nil {
		return nil, o.fail(c, err)
	}
	return o.merge(ctx, c, frames)
}

// Cancel discards every pending job and merges only the direct images. A
// cycle with no images ends Done with an empty result.
func (o *Orchestrator) Cancel(ctx context.Context, c *Cycle) ([]entity.Image, error) {
	if err := c.cancel(); err != nil {
		return nil, err
	}
	o.logger.Info("video configuration cancelled", zap.String("cycle_id", c.ID()))
	return o.merge(ctx, c, nil)
}

func (o *Orchestrator) extract(ctx context.Context, c *Cycle, jobs []entity.VideoJob) ([]entity.Image, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "Orchestrator.extract", trace.WithAttributes(
		attribute.String("cycle.id", c.ID()),
		attribute.Int("cycle.videos", len(jobs)),
	))
	defer span.End()

	files := make([]entity.UploadedFile, len(jobs))
	intervals := make([]float64, len(jobs))
	for i, j := range jobs {
		files[i] = j.File
		intervals[i] = j.CaptureInterval
	}

	start := time.Now()
	ctxSub, spanSub := tracer.Start(ctx, "submit_batch")
	blob, err := o.submitter.Submit(ctxSub, files, intervals)
	spanSub.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit batch")
		return nil, fmt.Errorf("submit batch: %w", err)
	}
	metrics.StageDuration.WithLabelValues("submit").Observe(time.Since(start).Seconds())

	start = time.Now()
	_, spanDec := tracer.Start(ctx, "open_archive")
	entries, err := o.decoder.Open(blob)
	spanDec.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open archive")
		return nil, fmt.Errorf("open archive: %w", err)
	}

	ctxRe, spanRe := tracer.Start(ctx, "reassemble_frames")
	frames, err := o.reassembler.Reassemble(ctxRe, entries)
	spanRe.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reassemble frames")
		return nil, fmt.Errorf("reassemble frames: %w", err)
	}
	metrics.StageDuration.WithLabelValues("reassemble").Observe(time.Since(start).Seconds())

	return frames, nil
}

// merge expects c in Merging.
func (o *Orchestrator) merge(ctx context.Context, c *Cycle, frames []entity.Image) ([]entity.Image, error) {
	o.emit(c, StateMerging, nil)

	result := c.merged(frames)
	if len(result) > 0 {
		start := time.Now()
		if err := o.registry.Register(ctx, c.ID(), result); err != nil {
			return nil, o.fail(c, fmt.Errorf("register images: %w: %w", ErrRegistry, err))
		}
		metrics.StageDuration.WithLabelValues("register").Observe(time.Since(start).Seconds())
	}

	c.finish(result, len(frames))
	o.emit(c, StateDone, nil)

	metrics.CyclesTotal.WithLabelValues("done").Inc()
	metrics.FramesReassembledTotal.Add(float64(len(frames)))

	o.logger.Info("ingestion cycle done",
		zap.String("cycle_id", c.ID()),
		zap.Int("images", len(result)-len(frames)),
		zap.Int("frames", len(frames)),
	)
	return result, nil
}

func (o *Orchestrator) fail(c *Cycle, err error) error {
	c.fail(err)
	o.emit(c, StateFailed, err)
	metrics.CyclesTotal.WithLabelValues("failed").Inc()
	o.logger.Error("ingestion cycle failed", zap.String("cycle_id", c.ID()), zap.Error(err))
	return err
}

func (o *Orchestrator) emit(c *Cycle, state CycleState, err error) {
	if o.events == nil {
		return
	}
	done := o.events.Emit(TopicCycleState, StateEvent{CycleID: c.ID(), State: state, Err: err})
	select {
	case <-done:
	case <-time.After(o.cfg.EmitTimeout):
		o.logger.Warn("cycle state subscribers lagging", zap.String("cycle_id", c.ID()), zap.String("state", string(state)))
	}
}
