package usecase

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-ingest/internal/infra/archive"
	"github.com/olebedev/emitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubmitter struct {
	mu        sync.Mutex
	blob      []byte
	err       error
	calls     int
	files     []entity.UploadedFile
	intervals []float64

	started chan struct{}
	release chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, files []entity.UploadedFile, intervals []float64) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.files = files
	f.intervals = intervals
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return f.blob, f.err
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRegistry struct {
	mu    sync.Mutex
	err   error
	calls [][]entity.Image
}

func (f *fakeRegistry) Register(_ context.Context, _ string, images []entity.Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, images)
	return nil
}

func (f *fakeRegistry) registered() [][]entity.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// frameZip builds an archive whose entries carry their own name as payload.
func frameZip(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range names {
		w, err := zw.Create(n)
		require.NoError(t, err)
		_, err = w.Write([]byte(n))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func imageFile(name string) entity.UploadedFile {
	return entity.UploadedFile{Key: "uploads/" + name, Name: name, ContentType: "image/png", Data: []byte(name)}
}

func videoFile(name string) entity.UploadedFile {
	return entity.UploadedFile{Key: "uploads/" + name, Name: name, ContentType: "video/mp4", Data: []byte(name)}
}

func newTestOrchestrator(sub *fakeSubmitter, reg *fakeRegistry, events *emitter.Emitter) *Orchestrator {
	return NewOrchestrator(sub, archive.NewDecoder(0), NewReassembler(4, zap.NewNop()), reg, events, zap.NewNop(),
		OrchestratorConfig{DefaultInterval: 1, EmitTimeout: 100 * time.Millisecond})
}

func TestIngestImagesOnlyRegistersImmediately(t *testing.T) {
	sub := &fakeSubmitter{}
	reg := &fakeRegistry{}
	o := newTestOrchestrator(sub, reg, nil)

	c, err := o.Ingest(context.Background(), []entity.UploadedFile{imageFile("a.png"), imageFile("b.jpg")})
	require.NoError(t, err)

	assert.Equal(t, StateDone, c.State())
	assert.Equal(t, 0, sub.callCount())
	require.Len(t, reg.registered(), 1)
	assert.Equal(t, []string{"a.png", "b.jpg"}, payloads(reg.registered()[0]))

	images, videos, frames := c.Counts()
	assert.Equal(t, 2, images)
	assert.Equal(t, 0, videos)
	assert.Equal(t, 0, frames)
}

func TestConfirmMergesImagesBeforeFrames(t *testing.T) {
	sub := &fakeSubmitter{blob: frameZip(t,
		"video1-frame-1.png",
		"video0-frame-2.png",
		"video0-frame-1.png",
	)}
	reg := &fakeRegistry{}
	o := newTestOrchestrator(sub, reg, nil)

	c, err := o.Ingest(context.Background(), []entity.UploadedFile{
		videoFile("v0.mp4"), imageFile("i0.png"), videoFile("v1.mp4"), imageFile("i1.png"),
	})
	require.NoError(t, err)
	require.Equal(t, StateAwaitingConfiguration, c.State())

	jobs := c.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "v0.mp4", jobs[0].File.Name)
	assert.Equal(t, 1.0, jobs[0].CaptureInterval)
	require.NoError(t, c.SetInterval(1, 2.5))

	result, err := o.Confirm(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, []string{"i0.png", "i1.png", "video0-frame-1.png", "video0-frame-2.png", "video1-frame-1.png"}, payloads(result))
	assert.Equal(t, StateDone, c.State())
	assert.Equal(t, result, c.Result())

	require.Len(t, sub.files, 2)
	assert.Equal(t, "v0.mp4", sub.files[0].Name)
	assert.Equal(t, "v1.mp4", sub.files[1].Name)
	assert.Equal(t, []float64{1, 2.5}, sub.intervals)

	require.Len(t, reg.registered(), 1)
	assert.Equal(t, result, reg.registered()[0])

	_, _, frames := c.Counts()
	assert.Equal(t, 3, frames)
}

func TestRemovedJobIsNeverSubmitted(t *testing.T) {
	sub := &fakeSubmitter{blob: frameZip(t, "video0-frame-1.png")}
	o := newTestOrchestrator(sub, &fakeRegistry{}, nil)

	c, err := o.Ingest(context.Background(), []entity.UploadedFile{videoFile("v0.mp4"), videoFile("v1.mp4")})
	require.NoError(t, err)

	require.NoError(t, c.Remove(0))
	require.NoError(t, c.SetInterval(0, 3))

	_, err = o.Confirm(context.Background(), c)
	require.NoError(t, err)

	require.Len(t, sub.files, 1)
	assert.Equal(t, "v1.mp4", sub.files[0].Name)
	assert.Equal(t, []float64{3}, sub.intervals)
}

func TestJobEditsValidated(t *testing.T) {
	o := newTestOrchestrator(&fakeSubmitter{blob: frameZip(t, "video0-frame-1.png")}, &fakeRegistry{}, nil)

	c, err := o.Ingest(context.Background(), []entity.UploadedFile{videoFile("v0.mp4")})
	require.NoError(t, err)

	assert.ErrorIs(t, c.SetInterval(0, 0), ErrInvalidInterval)
	assert.ErrorIs(t, c.SetInterval(0, -1), ErrInvalidInterval)
	assert.ErrorIs(t, c.SetInterval(1, 2), ErrJobIndex)
	assert.ErrorIs(t, c.Remove(-1), ErrJobIndex)

	_, err = o.Confirm(context.Background(), c)
	require.NoError(t, err)

	assert.ErrorIs(t, c.SetInterval(0, 2), ErrInvalidState)
	assert.ErrorIs(t, c.Remove(0), ErrInvalidState)
	_, err = o.Confirm(context.Background(), c)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = o.Cancel(context.Background(), c)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConfirmFailureRegistersNothing(t *testing.T) {
	tests := []struct {
		name  string
		sub   *fakeSubmitter
		check func(t *testing.T, err error)
	}{
		{
			name: "transport",
			sub:  &fakeSubmitter{err: &entity.TransportError{Op: "post", Err: errors.New("connection refused")}},
			check: func(t *testing.T, err error) {
				var target *entity.TransportError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name: "service",
			sub:  &fakeSubmitter{err: &entity.ServiceError{StatusCode: 502, Message: "ffmpeg exited 1"}},
			check: func(t *testing.T, err error) {
				var target *entity.ServiceError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, 502, target.StatusCode)
			},
		},
		{
			name: "archive format",
			sub:  &fakeSubmitter{blob: []byte("<html>gateway timeout</html>")},
			check: func(t *testing.T, err error) {
				var target *entity.ArchiveFormatError
				assert.ErrorAs(t, err, &target)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &fakeRegistry{}
			o := newTestOrchestrator(tt.sub, reg, nil)

			prior, err := o.Ingest(context.Background(), []entity.UploadedFile{imageFile("earlier.png")})
			require.NoError(t, err)
			require.Equal(t, StateDone, prior.State())

			c, err := o.Ingest(context.Background(), []entity.UploadedFile{imageFile("now.png"), videoFile("v0.mp4")})
			require.NoError(t, err)

			result, err := o.Confirm(context.Background(), c)
			require.Error(t, err)
			assert.Nil(t, result)
			tt.check(t, err)

			assert.Equal(t, StateFailed, c.State())
			assert.Equal(t, err, c.Err())
			assert.Nil(t, c.Result())

			require.Len(t, reg.registered(), 1)
			assert.Equal(t, []string{"earlier.png"}, payloads(reg.registered()[0]))
			assert.Equal(t, []string{"earlier.png"}, payloads(prior.Result()))
		})
	}
}

func TestRegistryFailureFailsCycle(t *testing.T) {
	reg := &fakeRegistry{err: errors.New("bucket unavailable")}
	o := newTestOrchestrator(&fakeSubmitter{}, reg, nil)

	c, err := o.Ingest(context.Background(), []entity.UploadedFile{imageFile("a.png")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistry)
	assert.Equal(t, StateFailed, c.State())
}

func TestCancelWithoutImagesYieldsEmptyResult(t *testing.T) {
	sub := &fakeSubmitter{}
	reg := &fakeRegistry{}
	o := newTestOrchestrator(sub, reg, nil)

	c, err := o.Ingest(context.Background(), []entity.UploadedFile{videoFile("v0.mp4"), videoFile("v1.mp4")})
	require.NoError(t, err)

	result, err := o.Cancel(context.Background(), c)
	require.NoError(t, err)
	assert.Empty(t, result)

	assert.Equal(t, StateDone, c.State())
	assert.True(t, c.Cancelled())
	assert.Empty(t, c.Jobs())
	assert.Equal(t, 0, sub.callCount())
	assert.Empty(t, reg.registered())
}

func TestCancelKeepsImages(t *testing.T) {
	sub := &fakeSubmitter{}
	reg := &fakeRegistry{}
	o := newTestOrchestrator(sub, reg, nil)

	c, err := o.Ingest(context.Background(), []entity.UploadedFile{videoFile("v0.mp4"), imageFile("i0.png")})
	require.NoError(t, err)

	result, err := o.Cancel(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"i0.png"}, payloads(result))
	assert.Equal(t, 0, sub.callCount())
	require.Len(t, reg.registered(), 1)
}

func TestConfirmWithAllJobsRemoved(t *testing.T) {
	sub := &fakeSubmitter{}
	reg := &fakeRegistry{}
	o := newTestOrchestrator(sub, reg, nil)

	c, err := o.Ingest(context.Background(), []entity.UploadedFile{imageFile("i0.png"), videoFile("v0.mp4")})
	require.NoError(t, err)
	require.NoError(t, c.Remove(0))

	result, err := o.Confirm(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"i0.png"}, payloads(result))
	assert.Equal(t, StateDone, c.State())
	assert.False(t, c.Cancelled())
	assert.Equal(t, 0, sub.callCount())
}

func TestIngestRejectedWhileSubmitting(t *testing.T) {
	sub := &fakeSubmitter{
		blob:    frameZip(t, "video0-frame-1.png"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	o := newTestOrchestrator(sub, &fakeRegistry{}, nil)

	c, err := o.Ingest(context.Background(), []entity.UploadedFile{videoFile("v0.mp4")})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := o.Confirm(context.Background(), c)
		done <- err
	}()

	<-sub.started
	assert.Equal(t, StateSubmitting, c.State())

	_, err = o.Ingest(context.Background(), []entity.UploadedFile{imageFile("late.png")})
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(sub.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateDone, c.State())

	next, err := o.Ingest(context.Background(), []entity.UploadedFile{imageFile("late.png")})
	require.NoError(t, err)
	assert.Equal(t, StateDone, next.State())
}

func TestIngestSupersedesPendingCycle(t *testing.T) {
	o := newTestOrchestrator(&fakeSubmitter{}, &fakeRegistry{}, nil)

	first, err := o.Ingest(context.Background(), []entity.UploadedFile{videoFile("v0.mp4")})
	require.NoError(t, err)
	require.Equal(t, StateAwaitingConfiguration, first.State())

	second, err := o.Ingest(context.Background(), []entity.UploadedFile{videoFile("v1.mp4")})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())

	assert.Equal(t, StateFailed, first.State())
	assert.ErrorIs(t, first.Err(), ErrCycleSuperseded)
	_, err = o.Confirm(context.Background(), first)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Equal(t, StateAwaitingConfiguration, second.State())
}

func TestCycleStateEvents(t *testing.T) {
	events := emitter.New(32)
	ch := events.On(TopicCycleState)
	defer events.Off(TopicCycleState, ch)

	sub := &fakeSubmitter{blob: frameZip(t, "video0-frame-1.png")}
	o := newTestOrchestrator(sub, &fakeRegistry{}, events)

	c, err := o.Ingest(context.Background(), []entity.UploadedFile{videoFile("v0.mp4")})
	require.NoError(t, err)
	_, err = o.Confirm(context.Background(), c)
	require.NoError(t, err)

	want := []CycleState{StateClassifying, StateAwaitingConfiguration, StateSubmitting, StateMerging, StateDone}
	var got []CycleState
	for range want {
		select {
		case e := <-ch:
			ev, ok := e.Args[0].(StateEvent)
			require.True(t, ok)
			assert.Equal(t, c.ID(), ev.CycleID)
			got = append(got, ev.State)
		case <-time.After(time.Second):
			t.Fatalf("timed out after events %v", got)
		}
	}
	assert.Equal(t, want, got)
}
