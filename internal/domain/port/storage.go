package port

import (
	"context"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
)

type UploadSource interface {
	FetchUpload(ctx context.Context, obj entity.UploadedObject) (entity.UploadedFile, error)
}
