package port

import (
	"context"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
)

// ImageRegistry is the consumer of a finished ingestion cycle. It receives
// the ordered result collection exactly once per successful cycle.
type ImageRegistry interface {
	Register(ctx context.Context, cycleID string, images []entity.Image) error
}
