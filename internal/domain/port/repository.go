package port

import (
	"context"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
	"github.com/google/uuid"
)

type IngestJobRepository interface {
	Create(ctx context.Context, job *entity.IngestJob) error
	Update(ctx context.Context, job *entity.IngestJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.IngestJob, error)
}
