package entity

import "github.com/google/uuid"

// IngestRequestMessage is the inbound message from the ingest.requests queue.
// It carries the uploaded batch by object key together with the decisions of
// the interval configuration step.
type IngestRequestMessage struct {
	JobID     uuid.UUID        `json:"job_id"`
	UserID    string           `json:"user_id"`
	UserEmail string           `json:"user_email"`
	Files     []UploadedObject `json:"files"`
	// Intervals maps an uploaded object key to its capture interval. Videos
	// without an entry keep the default interval.
	Intervals map[string]float64 `json:"intervals,omitempty"`
	// Remove lists video object keys dropped before submission.
	Remove []string `json:"remove,omitempty"`
	Cancel bool     `json:"cancel,omitempty"`
}

type UploadedObject struct {
	Key         string `json:"key"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// IngestStatusMessage is the outbound message published to the ingest.status queue.
type IngestStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	UserID       string    `json:"user_id"`
	Status       JobStatus `json:"status"`
	ResultPrefix string    `json:"result_prefix,omitempty"`
	ImageCount   int       `json:"image_count"`
	VideoCount   int       `json:"video_count"`
	FrameCount   int       `json:"frame_count"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
}
