package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusCancelled  JobStatus = "CANCELLED"
	JobStatusFailed     JobStatus = "FAILED"
)

// IngestJob is the persisted record of one queued ingestion request.
type IngestJob struct {
	ID           uuid.UUID
	UserID       string
	Status       JobStatus
	ImageCount   int
	VideoCount   int
	FrameCount   int
	ResultPrefix string
	Attempt      int
	MaxAttempts  int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func NewIngestJob(id uuid.UUID, userID string, maxAttempts int) *IngestJob {
	now := time.Now().UTC()
	return &IngestJob{
		ID:          id,
		UserID:      userID,
		Status:      JobStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *IngestJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

// MarkFinished records a terminal success. A cancelled cycle still completes,
// it only carries no video-derived frames.
func (j *IngestJob) MarkFinished(cancelled bool, resultPrefix string, imageCount, videoCount, frameCount int) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	if cancelled {
		j.Status = JobStatusCancelled
	}
	j.ResultPrefix = resultPrefix
	j.ImageCount = imageCount
	j.VideoCount = videoCount
	j.FrameCount = frameCount
	j.ErrorMessage = ""
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *IngestJob) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *IngestJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
