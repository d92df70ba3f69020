package usecase

import (
	"context"
	"path"
	"sort"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reassembler decodes every entry of an extraction archive concurrently and
// returns the frame images ordered by (source index, frame number).
type Reassembler struct {
	concurrency int
	logger      *zap.Logger
}

// NewReassembler returns a Reassembler running at most concurrency decodes at
// once. A value below one means one goroutine per entry.
func NewReassembler(concurrency int, logger *zap.Logger) *Reassembler {
	return &Reassembler{concurrency: concurrency, logger: logger}
}

func (r *Reassembler) Reassemble(ctx context.Context, entries []entity.ArchiveEntry) ([]entity.Image, error) {
	frames, err := r.decodeAll(ctx, entries)
	if err != nil {
		return nil, err
	}

	sortFrames(frames)

	images := make([]entity.Image, len(frames))
	for i, f := range frames {
		images[i] = f.Image
	}
	return images, nil
}

// decodeAll fans out one task per file entry and waits for all of them. Each
// task writes to its own slot, so the result keeps the archive's insertion
// order no matter which decode finishes first. The first failure cancels the
// remaining tasks and is returned.
func (r *Reassembler) decodeAll(ctx context.Context, entries []entity.ArchiveEntry) ([]entity.ExtractedFrame, error) {
	files := make([]entity.ArchiveEntry, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir {
			files = append(files, e)
		}
	}

	frames := make([]entity.ExtractedFrame, len(files))
	g, gctx := errgroup.WithContext(ctx)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}

	for i, e := range files {
		i, e := i, e
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			data, err := e.ReadAll()
			if err != nil {
				metrics.EntriesDecodedTotal.WithLabelValues("error").Inc()
				r.logger.Error("archive entry decode failed", zap.String("entry", e.Name), zap.Error(err))
				return err
			}
			metrics.EntriesDecodedTotal.WithLabelValues("ok").Inc()

			src, frame, ok := ParseFrameName(e.Name)
			if !ok {
				r.logger.Warn("archive entry carries no ordering metadata", zap.String("entry", e.Name))
			}

			frames[i] = entity.ExtractedFrame{
				SourceIndex: src,
				FrameNumber: frame,
				Image:       entity.NewImage(path.Base(e.Name), data),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

func sortFrames(frames []entity.ExtractedFrame) {
	sort.SliceStable(frames, func(a, b int) bool {
		if frames[a].SourceIndex != frames[b].SourceIndex {
			return frames[a].SourceIndex < frames[b].SourceIndex
		}
		return frames[a].FrameNumber < frames[b].FrameNumber
	})
}
