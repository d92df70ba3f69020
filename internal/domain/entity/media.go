package entity

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// UploadedFile is one item of an ingested batch. It is never mutated after
// classification.
type UploadedFile struct {
	// Key identifies the file at its upload source. Optional.
	Key         string
	Name        string
	ContentType string
	Data        []byte
}

// Kind reports whether the file is a video. Detection is a prefix check on
// the declared content type; an empty declaration falls back to sniffing.
func (f UploadedFile) Kind() MediaKind {
	contentType := f.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(f.Data).String()
	}
	if strings.HasPrefix(contentType, "video/") {
		return MediaKindVideo
	}
	return MediaKindImage
}

// Image returns the file as a result collection item.
func (f UploadedFile) Image() Image {
	return NewImage(f.Name, f.Data)
}

// Image is one element of the final result collection.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// NewImage builds an Image whose content type is inferred from data.
func NewImage(name string, data []byte) Image {
	return Image{
		Name:        name,
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}
}

const DefaultCaptureInterval = 1.0

// VideoJob pairs a video with the interval, in seconds, at which the remote
// service captures frames from it.
type VideoJob struct {
	File            UploadedFile
	CaptureInterval float64
}

// Unordered is the source index and frame number of a frame whose entry name
// carries no ordering metadata.
const Unordered = -1

// ExtractedFrame is a decoded archive entry together with its provenance.
type ExtractedFrame struct {
	SourceIndex int
	FrameNumber int
	Image       Image
}
