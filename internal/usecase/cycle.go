package usecase

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
)

type CycleState string

const (
	StateClassifying           CycleState = "CLASSIFYING"
	StateAwaitingConfiguration CycleState = "AWAITING_CONFIGURATION"
	StateSubmitting            CycleState = "SUBMITTING"
	StateMerging               CycleState = "MERGING"
	StateDone                  CycleState = "DONE"
	StateFailed                CycleState = "FAILED"
)

// Terminal reports whether no further transition can happen.
func (s CycleState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var (
	ErrInvalidState    = errors.New("operation not allowed in current cycle state")
	ErrInvalidInterval = errors.New("capture interval must be positive")
	ErrJobIndex        = errors.New("video job index out of range")
)

// Cycle is one ingestion pass: the classified batch, the pending video jobs
// and, once terminal, the result collection or the error that ended it.
// Jobs can only be edited while the cycle awaits configuration.
type Cycle struct {
	id string

	mu         sync.Mutex
	state      CycleState
	images     []entity.UploadedFile
	jobs       []entity.VideoJob
	videoCount int
	frameCount int
	cancelled  bool
	result     []entity.Image
	err        error
}

func newCycle(id string) *Cycle {
	return &Cycle{id: id, state: StateClassifying}
}

func (c *Cycle) ID() string { return c.id }

func (c *Cycle) State() CycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Jobs returns a snapshot of the pending video jobs in upload order.
func (c *Cycle) Jobs() []entity.VideoJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entity.VideoJob, len(c.jobs))
	copy(out, c.jobs)
	return out
}

func (c *Cycle) SetInterval(i int, interval float64) error {
	if !(interval > 0) {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingConfiguration {
		return fmt.Errorf("%w: set interval in %s", ErrInvalidState, c.state)
	}
	if i < 0 || i >= len(c.jobs) {
		return fmt.Errorf("%w: %d", ErrJobIndex, i)
	}
	c.jobs[i].CaptureInterval = interval
	return nil
}

// Remove drops a job from the pending batch. It never reaches submission.
func (c *Cycle) Remove(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingConfiguration {
		return fmt.Errorf("%w: remove in %s", ErrInvalidState, c.state)
	}
	if i < 0 || i >= len(c.jobs) {
		return fmt.Errorf("%w: %d", ErrJobIndex, i)
	}
	c.jobs = append(c.jobs[:i], c.jobs[i+1:]...)
	return nil
}

// Empty reports whether the cycle holds neither images nor pending jobs.
func (c *Cycle) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images) == 0 && len(c.jobs) == 0
}

// Result is the ordered collection handed to the registry. Nil until Done.
func (c *Cycle) Result() []entity.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *Cycle) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Cycle) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Counts reports the number of direct images, uploaded videos and merged frames.
func (c *Cycle) Counts() (images, videos, frames int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images), c.videoCount, c.frameCount
}

func (c *Cycle) classify(files []entity.UploadedFile, defaultInterval float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range files {
		if f.Kind() == entity.MediaKindVideo {
			c.jobs = append(c.jobs, entity.VideoJob{File: f, CaptureInterval: defaultInterval})
			continue
		}
		c.images = append(c.images, f)
	}
	c.videoCount = len(c.jobs)
}

// transition moves the cycle from one of the allowed states to next.
func (c *Cycle) transition(next CycleState, from ...CycleState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range from {
		if c.state == s {
			c.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidState, c.state, next)
}

// beginSubmit freezes the pending jobs and leaves configuration.
func (c *Cycle) beginSubmit() ([]entity.VideoJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingConfiguration {
		return nil, fmt.Errorf("%w: confirm in %s", ErrInvalidState, c.state)
	}
	jobs := c.jobs
	c.jobs = nil
	if len(jobs) == 0 {
		c.state = StateMerging
	} else {
		c.state = StateSubmitting
	}
	return jobs, nil
}

func (c *Cycle) cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingConfiguration {
		return fmt.Errorf("%w: cancel in %s", ErrInvalidState, c.state)
	}
	c.jobs = nil
	c.cancelled = true
	c.state = StateMerging
	return nil
}

// merged builds the result collection: direct images in upload order,
// followed by the already sorted frames.
func (c *Cycle) merged(frames []entity.Image) []entity.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entity.Image, 0, len(c.images)+len(frames))
	for _, img := range c.images {
		out = append(out, img.Image())
	}
	return append(out, frames...)
}

func (c *Cycle) finish(result []entity.Image, frameCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateDone
	c.result = result
	c.frameCount = frameCount
}

func (c *Cycle) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateFailed
	c.err = err
}

// supersede fails a cycle still waiting for configuration. It reports false
// when the cycle has already moved on.
func (c *Cycle) supersede() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingConfiguration {
		return false
	}
	c.state = StateFailed
	c.err = ErrCycleSuperseded
	c.jobs = nil
	return true
}
