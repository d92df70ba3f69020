package extractsvc_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-ingest/internal/domain/port"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/archive"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/extraction"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/extractsvc"
	"github.com/fiapx/fiapx-frame-ingest/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubExtractor writes int(span/interval) frames whose payload names the
// source video content and the frame position.
type stubExtractor struct {
	span float64
	err  error
}

func (s *stubExtractor) ExtractFrames(_ context.Context, videoPath, outputDir string, interval float64) (*port.FrameExtractionResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	src, err := os.ReadFile(videoPath)
	if err != nil {
		return nil, err
	}

	n := int(s.span / interval)
	paths := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := filepath.Join(outputDir, fmt.Sprintf("frame_%04d.png", i))
		if err := os.WriteFile(p, []byte(fmt.Sprintf("%s#%d", src, i)), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return &port.FrameExtractionResult{FramePaths: paths, FrameCount: n}, nil
}

func newServer(t *testing.T, ex port.FrameExtractor, maxVideos int) *httptest.Server {
	t.Helper()
	h := extractsvc.NewHandler(ex, archive.NewWriter(), extractsvc.HandlerConfig{
		TempDir:        t.TempDir(),
		MaxRequestSize: 1 << 20,
		MaxVideos:      maxVideos,
	}, zap.NewNop())
	srv := httptest.NewServer(extractsvc.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func TestProcessVideoRoundTrip(t *testing.T) {
	srv := newServer(t, &stubExtractor{span: 4}, 0)
	client := extraction.NewClient(extraction.ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, zap.NewNop())

	files := []entity.UploadedFile{
		{Name: "a.mp4", ContentType: "video/mp4", Data: []byte("A")},
		{Name: "b.mp4", ContentType: "video/mp4", Data: []byte("B")},
	}
	blob, err := client.Submit(context.Background(), files, []float64{2, 1})
	require.NoError(t, err)

	entries, err := archive.NewDecoder(0).Open(blob)
	require.NoError(t, err)
	require.Len(t, entries, 6)

	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
		_, _, ok := usecase.ParseFrameName(e.Name)
		assert.True(t, ok, e.Name)
	}
	assert.True(t, names["video0-frame-1.png"])
	assert.True(t, names["video0-frame-2.png"])
	assert.True(t, names["video1-frame-4.png"])

	images, err := usecase.NewReassembler(4, zap.NewNop()).Reassemble(context.Background(), entries)
	require.NoError(t, err)

	var got []string
	for _, img := range images {
		got = append(got, string(img.Data))
	}
	assert.Equal(t, []string{"A#1", "A#2", "B#1", "B#2", "B#3", "B#4"}, got)
}

func TestProcessVideoRejectsBadInput(t *testing.T) {
	srv := newServer(t, &stubExtractor{span: 1}, 1)

	tests := []struct {
		name      string
		videos    []string
		intervals []string
	}{
		{name: "no videos", intervals: []string{"1"}},
		{name: "interval count mismatch", videos: []string{"a.mp4"}, intervals: []string{"1", "2"}},
		{name: "non numeric interval", videos: []string{"a.mp4"}, intervals: []string{"fast"}},
		{name: "zero interval", videos: []string{"a.mp4"}, intervals: []string{"0"}},
		{name: "too many videos", videos: []string{"a.mp4", "b.mp4"}, intervals: []string{"1", "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postForm(t, srv.URL, tt.videos, tt.intervals)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestProcessVideoExtractionFailure(t *testing.T) {
	srv := newServer(t, &stubExtractor{err: errors.New("ffmpeg exited 1")}, 0)

	resp := postForm(t, srv.URL, []string{"a.mp4"}, []string{"1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestProcessVideoRateLimited(t *testing.T) {
	h := extractsvc.NewHandler(&stubExtractor{span: 1}, archive.NewWriter(), extractsvc.HandlerConfig{
		TempDir:       t.TempDir(),
		RatePerMinute: 1,
	}, zap.NewNop())
	srv := httptest.NewServer(extractsvc.NewRouter(h))
	defer srv.Close()

	first := postForm(t, srv.URL, []string{"a.mp4"}, []string{"1"})
	first.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second := postForm(t, srv.URL, []string{"a.mp4"}, []string{"1"})
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := newServer(t, &stubExtractor{span: 1}, 0)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func postForm(t *testing.T, baseURL string, videos, intervals []string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range videos {
		w, err := mw.CreateFormFile(extraction.VideosField, name)
		require.NoError(t, err)
		_, err = w.Write([]byte(name))
		require.NoError(t, err)
	}
	for _, iv := range intervals {
		require.NoError(t, mw.WriteField(extraction.IntervalsField, iv))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(baseURL+extraction.ProcessPath, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}
