package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ingest.requests", cfg.RabbitMQRequestQueue)
	assert.Equal(t, 1, cfg.WorkerCount)
	assert.Equal(t, 1.0, cfg.DefaultCaptureInterval)
	assert.Equal(t, 10*time.Minute, cfg.ExtractionTimeout)
	assert.Equal(t, "results", cfg.MinIOResultBucket)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DEFAULT_CAPTURE_INTERVAL", "2.5")
	t.Setenv("DECODE_CONCURRENCY", "3")
	t.Setenv("EXTRACTION_TIMEOUT", "45s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.DefaultCaptureInterval)
	assert.Equal(t, 3, cfg.DecodeConcurrency)
	assert.Equal(t, 45*time.Second, cfg.ExtractionTimeout)
}

func TestLoadRejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("DEFAULT_CAPTURE_INTERVAL", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadExtractorDefaults(t *testing.T) {
	cfg, err := LoadExtractor()
	require.NoError(t, err)
	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Equal(t, "png", cfg.FrameFormat)
	assert.Equal(t, 16, cfg.MaxVideos)
	assert.Equal(t, 2, cfg.MaxConcurrent)
	assert.Equal(t, 120, cfg.RatePerMinute)
}

func TestLoadExtractorRejectsNonPNGFormat(t *testing.T) {
	t.Setenv("FFMPEG_FORMAT", "jpg")

	_, err := LoadExtractor()
	assert.ErrorContains(t, err, "FFMPEG_FORMAT")
}
