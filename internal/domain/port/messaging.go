package port

import (
	"context"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
)

// StatusPublisher announces the outcome of an ingestion request.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, status entity.IngestStatusMessage) error
}

// DLQPublisher parks a message that can never be processed.
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}
