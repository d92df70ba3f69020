package postgres

import (
	"context"
	"fmt"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type IngestJobRepository struct {
	pool *pgxpool.Pool
}

func NewIngestJobRepository(pool *pgxpool.Pool) *IngestJobRepository {
	return &IngestJobRepository{pool: pool}
}

func (r *IngestJobRepository) Create(ctx context.Context, job *entity.IngestJob) error {
	query := `
		INSERT INTO ingest_jobs (
			id, user_id, status, image_count, video_count, frame_count,
			result_prefix, attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, string(job.Status),
		job.ImageCount, job.VideoCount, job.FrameCount,
		job.ResultPrefix, job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ingest job: %w", err)
	}
	return nil
}

func (r *IngestJobRepository) Update(ctx context.Context, job *entity.IngestJob) error {
	query := `
		UPDATE ingest_jobs SET
			status=$2, image_count=$3, video_count=$4, frame_count=$5,
			result_prefix=$6, attempt=$7, error_message=$8,
			updated_at=$9, completed_at=$10
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status),
		job.ImageCount, job.VideoCount, job.FrameCount,
		job.ResultPrefix, job.Attempt, job.ErrorMessage,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update ingest job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update ingest job %s: not found", job.ID)
	}
	return nil
}

func (r *IngestJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.IngestJob, error) {
	query := `
		SELECT id, user_id, status, image_count, video_count, frame_count,
			result_prefix, attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		FROM ingest_jobs WHERE id=$1`

	job := &entity.IngestJob{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &status,
		&job.ImageCount, &job.VideoCount, &job.FrameCount,
		&job.ResultPrefix, &job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find ingest job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}
