package extractsvc

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/port"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/archive"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/extraction"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

const maxFormMemory = 32 << 20

// Handler serves the frame extraction endpoint: it extracts frames from
// every uploaded video at its own interval and answers with one zip whose
// entries are named video<i>-frame-<n>.<ext>.
type Handler struct {
	extractor port.FrameExtractor
	writer    *archive.Writer
	tempDir   string
	maxBody   int64
	maxVideos int
	inFlight  int
	perMinute int
	timeout   time.Duration
	logger    *zap.Logger
}

type HandlerConfig struct {
	TempDir        string
	MaxRequestSize int64
	MaxVideos      int
	// MaxConcurrent caps extractions running at once. Zero means unlimited.
	MaxConcurrent int
	// RatePerMinute caps accepted submissions per client IP. Zero disables it.
	RatePerMinute int
	// RequestTimeout bounds one submission, extraction included.
	RequestTimeout time.Duration
}

func NewHandler(extractor port.FrameExtractor, writer *archive.Writer, cfg HandlerConfig, logger *zap.Logger) *Handler {
	return &Handler{
		extractor: extractor,
		writer:    writer,
		tempDir:   cfg.TempDir,
		maxBody:   cfg.MaxRequestSize,
		maxVideos: cfg.MaxVideos,
		inFlight:  cfg.MaxConcurrent,
		perMinute: cfg.RatePerMinute,
		timeout:   cfg.RequestTimeout,
		logger:    logger,
	}
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Group(func(r chi.Router) {
		if h.perMinute > 0 {
			r.Use(httprate.Limit(h.perMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					metrics.ExtractionRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusTooManyRequests)).Inc()
					w.Header().Set("Retry-After", "60")
					http.Error(w, "too many extraction requests", http.StatusTooManyRequests)
				}),
			))
		}
		if h.inFlight > 0 {
			r.Use(middleware.Throttle(h.inFlight))
		}
		if h.timeout > 0 {
			r.Use(middleware.Timeout(h.timeout))
		}
		r.Post(extraction.ProcessPath, h.ProcessVideo)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}

// EntryName is the archive name of frame n (1-based) of video i (0-based).
func EntryName(i, n int, ext string) string {
	return fmt.Sprintf("video%d-frame-%d%s", i, n, ext)
}

type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func (h *Handler) ProcessVideo(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))

	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		h.reply(w, log, http.StatusBadRequest, fmt.Errorf("parse form: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	videos := r.MultipartForm.File[extraction.VideosField]
	intervals, err := h.parseIntervals(videos, r.MultipartForm.Value[extraction.IntervalsField])
	if err != nil {
		h.reply(w, log, http.StatusBadRequest, err)
		return
	}

	if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
		h.reply(w, log, http.StatusInternalServerError, fmt.Errorf("create temp dir: %w", err))
		return
	}
	workDir, err := os.MkdirTemp(h.tempDir, "extract-*")
	if err != nil {
		h.reply(w, log, http.StatusInternalServerError, fmt.Errorf("create workdir: %w", err))
		return
	}
	defer os.RemoveAll(workDir)

	var entries []archive.FileEntry
	for i, fh := range videos {
		frames, err := h.extractOne(r, workDir, i, fh, intervals[i])
		if err != nil {
			h.reply(w, log, http.StatusBadGateway, fmt.Errorf("video %d (%s): %w", i, fh.Filename, err))
			return
		}
		entries = append(entries, frames...)
	}

	zipPath := filepath.Join(workDir, "frames.zip")
	zf, err := os.Create(zipPath)
	if err != nil {
		h.reply(w, log, http.StatusInternalServerError, fmt.Errorf("create zip: %w", err))
		return
	}
	defer zf.Close()

	if err := h.writer.Write(r.Context(), zf, entries); err != nil {
		h.reply(w, log, http.StatusInternalServerError, fmt.Errorf("write zip: %w", err))
		return
	}
	size, err := zf.Seek(0, io.SeekCurrent)
	if err != nil {
		h.reply(w, log, http.StatusInternalServerError, fmt.Errorf("zip size: %w", err))
		return
	}
	if _, err := zf.Seek(0, io.SeekStart); err != nil {
		h.reply(w, log, http.StatusInternalServerError, fmt.Errorf("rewind zip: %w", err))
		return
	}

	metrics.ExtractionRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	metrics.FramesExtractedTotal.Add(float64(len(entries)))
	log.Info("frame archive ready", zap.Int("videos", len(videos)), zap.Int("frames", len(entries)))

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, zf); err != nil {
		log.Warn("failed to stream frame archive", zap.Error(err))
	}
}

func (h *Handler) parseIntervals(videos []*multipart.FileHeader, raw []string) ([]float64, error) {
	if len(videos) == 0 {
		return nil, &badRequest{"no videos submitted"}
	}
	if h.maxVideos > 0 && len(videos) > h.maxVideos {
		return nil, &badRequest{fmt.Sprintf("%d videos submitted, limit is %d", len(videos), h.maxVideos)}
	}
	if len(raw) != len(videos) {
		return nil, &badRequest{fmt.Sprintf("%d videos but %d intervals", len(videos), len(raw))}
	}

	intervals := make([]float64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || !(v > 0) {
			return nil, &badRequest{fmt.Sprintf("interval %d: %q is not a positive number", i, s)}
		}
		intervals[i] = v
	}
	return intervals, nil
}

func (h *Handler) extractOne(r *http.Request, workDir string, i int, fh *multipart.FileHeader, interval float64) ([]archive.FileEntry, error) {
	videoDir := filepath.Join(workDir, fmt.Sprintf("video_%d", i))
	framesDir := filepath.Join(videoDir, "frames")
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, err
	}

	videoPath := filepath.Join(videoDir, "input"+filepath.Ext(fh.Filename))
	if err := saveUpload(fh, videoPath); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	result, err := h.extractor.ExtractFrames(r.Context(), videoPath, framesDir, interval)
	if err != nil {
		return nil, err
	}

	entries := make([]archive.FileEntry, len(result.FramePaths))
	for n, p := range result.FramePaths {
		entries[n] = archive.FileEntry{Name: EntryName(i, n+1, filepath.Ext(p)), Path: p}
	}
	return entries, nil
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (h *Handler) reply(w http.ResponseWriter, log *zap.Logger, status int, err error) {
	var br *badRequest
	if errors.As(err, &br) {
		status = http.StatusBadRequest
	}
	metrics.ExtractionRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	log.Warn("frame extraction request failed", zap.Int("status", status), zap.Error(err))
	http.Error(w, err.Error(), status)
}
