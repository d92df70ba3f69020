package port

import (
	"context"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
)

// BatchSubmitter sends a set of videos with their positional capture
// intervals to the remote extraction service and returns the raw archive.
type BatchSubmitter interface {
	Submit(ctx context.Context, files []entity.UploadedFile, intervals []float64) ([]byte, error)
}

// ArchiveDecoder exposes the entries of an archive blob in unspecified order.
type ArchiveDecoder interface {
	Open(blob []byte) ([]entity.ArchiveEntry, error)
}

// FrameExtractionResult describes frames written to disk by a local extractor.
type FrameExtractionResult struct {
	FramePaths    []string
	FrameCount    int
	VideoDuration float64
}

// FrameExtractor turns one video into still frames captured every interval seconds.
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, videoPath string, outputDir string, interval float64) (*FrameExtractionResult, error)
}
