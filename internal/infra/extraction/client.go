package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	ProcessPath    = "/process-video"
	VideosField    = "videos"
	IntervalsField = "intervals"

	maxErrorBody = 4 << 10
)

var (
	ErrIntervalMismatch = errors.New("files and intervals differ in length")
	ErrInvalidInterval  = errors.New("capture interval must be positive")
)

// Client submits video batches to the remote frame-extraction service.
// It performs exactly one request per Submit and never retries.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + ProcessPath,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Submit sends files with their positional capture intervals and returns the
// response body untouched.
func (c *Client) Submit(ctx context.Context, files []entity.UploadedFile, intervals []float64) ([]byte, error) {
	if len(files) != len(intervals) {
		return nil, fmt.Errorf("%w: %d files, %d intervals", ErrIntervalMismatch, len(files), len(intervals))
	}
	for i, iv := range intervals {
		if !(iv > 0) {
			return nil, fmt.Errorf("%w: interval %d is %v", ErrInvalidInterval, i, iv)
		}
	}

	body, contentType, err := encodeBatch(files, intervals)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/zip")

	c.logger.Info("submitting video batch",
		zap.Int("videos", len(files)),
		zap.String("request_size", humanize.Bytes(uint64(body.Len()))),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &entity.TransportError{Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &entity.ServiceError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &entity.TransportError{Op: "read response", Err: err}
	}

	c.logger.Info("video batch processed", zap.String("archive_size", humanize.Bytes(uint64(len(blob)))))
	return blob, nil
}

func encodeBatch(files []entity.UploadedFile, intervals []float64) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	for i, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, VideosField, f.Name))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)

		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
		if err := mw.WriteField(IntervalsField, strconv.FormatFloat(intervals[i], 'f', -1, 64)); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}
