package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"chatlens/internal/api"
	"chatlens/internal/handle"
	"chatlens/internal/transcript"
)

// Service is the slice of the chat log API the tracker drives.
type Service interface {
	Upload(ctx context.Context, filename string, content []byte) (*api.ChatLog, error)
	Process(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (*api.StatusResponse, error)
}

// HandleStore persists the durable single-job slot.
type HandleStore interface {
	Save(jobID string, status api.ProcessingStatus) error
	Load() (handle.Handle, bool, error)
	Clear() error
}

var (
	// ErrBusy is returned when an operation is attempted in a phase that
	// does not allow it.
	ErrBusy = errors.New("an upload is already being tracked; reset first")

	// ErrNoRetry is returned when retry is requested without a job to retry.
	ErrNoRetry = errors.New("nothing to retry")
)

const (
	defaultPollInterval      = 2 * time.Second
	defaultProcessingTimeout = 10 * time.Minute
)

// Option customises Tracker construction.
type Option func(*Tracker)

// WithPollInterval overrides the fixed status poll interval.
func WithPollInterval(interval time.Duration) Option {
	return func(t *Tracker) {
		if interval > 0 {
			t.pollInterval = interval
		}
	}
}

// WithProcessingTimeout overrides the client-side processing ceiling.
func WithProcessingTimeout(timeout time.Duration) Option {
	return func(t *Tracker) {
		if timeout > 0 {
			t.processingTimeout = timeout
		}
	}
}

// WithLogger sets the logger used for tracking events.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithOnUpdate registers a callback invoked after every applied poll update.
func WithOnUpdate(fn func(Snapshot)) Option {
	return func(t *Tracker) {
		t.onUpdate = fn
	}
}

// WithOnComplete registers a callback invoked exactly once per processing
// episode when the server reports a terminal status. It does not fire for
// timeouts or cancellation.
func WithOnComplete(fn func(Snapshot)) Option {
	return func(t *Tracker) {
		t.onComplete = fn
	}
}

// Tracker owns the upload lifecycle state machine.
type Tracker struct {
	service           Service
	handles           HandleStore
	logger            *slog.Logger
	pollInterval      time.Duration
	processingTimeout time.Duration
	onUpdate          func(Snapshot)
	onComplete        func(Snapshot)

	mu         sync.Mutex
	phase      Phase
	job        Job
	lastErr    error
	generation int
	cancelPoll context.CancelFunc
	episode    chan struct{}
}

// New builds an idle tracker.
func New(service Service, handles HandleStore, opts ...Option) *Tracker {
	t := &Tracker{
		service:           service,
		handles:           handles,
		logger:            slog.Default(),
		pollInterval:      defaultPollInterval,
		processingTimeout: defaultProcessingTimeout,
		phase:             PhaseIdle,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Snapshot returns a copy of the current tracker state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{Phase: t.phase, Job: t.job.clone(), Err: t.lastErr}
}

// Submit validates the file, uploads it, and starts remote processing. The
// extension gate runs before any state change or network call; a rejected
// file leaves the tracker in Idle. Processing start is requested
// automatically on upload success; if it fails the tracker lands in Failed
// without polling.
func (t *Tracker) Submit(ctx context.Context, path string) error {
	if err := transcript.CheckExtension(path); err != nil {
		return err
	}

	t.mu.Lock()
	if t.phase != PhaseIdle {
		t.mu.Unlock()
		return ErrBusy
	}
	t.phase = PhaseUploading
	t.lastErr = nil
	t.mu.Unlock()

	doc, err := transcript.Load(path)
	if err != nil {
		t.mu.Lock()
		t.phase = PhaseIdle
		t.lastErr = err
		t.mu.Unlock()
		return err
	}

	record, err := t.service.Upload(ctx, filepath.Base(path), doc.Raw)
	if err != nil {
		t.mu.Lock()
		t.phase = PhaseFailed
		t.lastErr = err
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	t.phase = PhaseSubmitted
	t.job = Job{
		ID:            record.ID,
		InteractionID: record.InteractionID,
		OverallStatus: api.StatusPending,
		CreatedAt:     record.CreatedAt,
	}
	t.mu.Unlock()
	t.logger.Info("chat log uploaded", "component", "tracker", "job_id", record.ID, "interaction_id", record.InteractionID)

	return t.startProcessing(ctx, record.ID)
}

// Retry re-invokes start-processing for the failed job and re-arms polling.
// The file is not re-uploaded.
func (t *Tracker) Retry(ctx context.Context) error {
	t.mu.Lock()
	if t.phase != PhaseFailed || t.job.ID == "" {
		t.mu.Unlock()
		return ErrNoRetry
	}
	jobID := t.job.ID
	t.lastErr = nil
	t.mu.Unlock()

	return t.startProcessing(ctx, jobID)
}

func (t *Tracker) startProcessing(ctx context.Context, jobID string) error {
	if err := t.service.Process(ctx, jobID); err != nil {
		t.mu.Lock()
		t.phase = PhaseFailed
		t.lastErr = err
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	t.enterProcessingLocked(jobID)
	t.mu.Unlock()
	t.logger.Info("processing started", "component", "tracker", "job_id", jobID)
	return nil
}

// ResumeFromHandle re-attaches to a persisted in-flight job after a process
// restart. A handle whose status is anything but Processing carries no
// actionable next step and is discarded.
func (t *Tracker) ResumeFromHandle() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase != PhaseIdle {
		return false, ErrBusy
	}
	h, ok, err := t.handles.Load()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if h.Status != api.StatusProcessing {
		if err := t.handles.Clear(); err != nil {
			t.logger.Warn("discard stale handle failed", "component", "tracker", "error", err)
		}
		return false, nil
	}

	t.job = Job{ID: h.JobID, OverallStatus: api.StatusProcessing}
	t.enterProcessingLocked(h.JobID)
	t.logger.Info("resumed in-flight job", "component", "tracker", "job_id", h.JobID)
	return true, nil
}

// enterProcessingLocked arms the poll loop and timeout for a new episode.
func (t *Tracker) enterProcessingLocked(jobID string) {
	t.phase = PhaseProcessing
	t.job.OverallStatus = api.StatusProcessing

	if err := t.handles.Save(jobID, api.StatusProcessing); err != nil {
		t.logger.Warn("persist upload handle failed", "component", "tracker", "error", err)
	}

	t.generation++
	gen := t.generation
	ctx, cancel := context.WithCancel(context.Background())
	t.cancelPoll = cancel
	t.episode = make(chan struct{})
	go t.pollLoop(ctx, gen, jobID, t.episode)
}

// stopPollingLocked tears down the poll loop and timeout together and bumps
// the generation so any in-flight response is dropped on arrival.
func (t *Tracker) stopPollingLocked() {
	if t.cancelPoll != nil {
		t.cancelPoll()
		t.cancelPoll = nil
	}
	t.generation++
}

func (t *Tracker) pollLoop(ctx context.Context, gen int, jobID string, episode chan struct{}) {
	defer close(episode)

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(t.processingTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			t.applyTimeout(gen)
			return
		case <-ticker.C:
			// The request is synchronous: the next tick cannot fire
			// until this response resolves, so updates apply in
			// issue order.
			status, err := t.service.Status(ctx, jobID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				t.applyPollError(gen, err)
				return
			}
			if t.applyStatus(gen, status) {
				return
			}
		}
	}
}

// applyStatus folds one poll response into the job view, last-write-wins.
// It reports whether the episode ended.
func (t *Tracker) applyStatus(gen int, status *api.StatusResponse) bool {
	t.mu.Lock()
	if gen != t.generation || t.phase != PhaseProcessing {
		t.mu.Unlock()
		return true
	}

	t.lastErr = nil
	t.job.OverallStatus = status.Status
	t.job.AgentStates = make(map[string]api.AgentState, len(status.Progress))
	for name, state := range status.Progress {
		t.job.AgentStates[name] = state
	}
	t.job.AgentErrors = make(map[string]string, len(status.ErrorMessages))
	for name, msg := range status.ErrorMessages {
		t.job.AgentErrors[name] = msg
	}

	if !status.Status.Terminal() {
		if err := t.handles.Save(t.job.ID, status.Status); err != nil {
			t.logger.Warn("persist upload handle failed", "component", "tracker", "error", err)
		}
		snap := t.snapshotLocked()
		update := t.onUpdate
		t.mu.Unlock()
		if update != nil {
			update(snap)
		}
		return false
	}

	t.stopPollingLocked()
	if status.Status == api.StatusCompleted {
		t.phase = PhaseCompleted
	} else {
		t.phase = PhaseFailed
		t.lastErr = jobFailureError(status)
	}
	if err := t.handles.Clear(); err != nil {
		t.logger.Warn("clear upload handle failed", "component", "tracker", "error", err)
	}
	snap := t.snapshotLocked()
	update := t.onUpdate
	complete := t.onComplete
	t.mu.Unlock()

	t.logger.Info("processing finished", "component", "tracker", "job_id", snap.Job.ID, "status", string(snap.Job.OverallStatus))
	if update != nil {
		update(snap)
	}
	if complete != nil {
		complete(snap)
	}
	return true
}

// applyTimeout declares client-side abandonment. It is a no-op when the job
// already settled.
func (t *Tracker) applyTimeout(gen int) {
	t.mu.Lock()
	if gen != t.generation || t.phase != PhaseProcessing {
		t.mu.Unlock()
		return
	}
	t.stopPollingLocked()
	t.phase = PhaseTimedOut
	t.lastErr = fmt.Errorf("no terminal status after %s; stopped watching (the server may still finish job %s)", t.processingTimeout, t.job.ID)
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.logger.Warn("processing watch timed out", "component", "tracker", "job_id", snap.Job.ID)
}

// applyPollError stops the loop on the first failed tick. Repeated poll
// failures usually mean the job is unreachable (session lost, job deleted);
// retrying in place would mask the session-expired signal Authorize surfaces.
func (t *Tracker) applyPollError(gen int, err error) {
	t.mu.Lock()
	if gen != t.generation || t.phase != PhaseProcessing {
		t.mu.Unlock()
		return
	}
	t.stopPollingLocked()
	t.phase = PhaseFailed
	t.lastErr = err
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.logger.Error("status poll failed", "component", "tracker", "job_id", snap.Job.ID, "error", err)
}

// Cancel abandons tracking from the client side. The server is not informed;
// the poll loop and timeout are stopped together.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != PhaseProcessing {
		return
	}
	t.stopPollingLocked()
	t.phase = PhaseCancelled
}

// Reset returns the tracker to Idle and clears the durable handle. Only
// settled phases can be reset.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.phase.Settled() && t.phase != PhaseIdle {
		return ErrBusy
	}
	t.stopPollingLocked()
	t.phase = PhaseIdle
	t.job = Job{}
	t.lastErr = nil
	if err := t.handles.Clear(); err != nil {
		return err
	}
	return nil
}

// Wait blocks until the current processing episode ends or ctx is done, then
// returns the resulting snapshot. It returns immediately when no episode is
// active.
func (t *Tracker) Wait(ctx context.Context) (Snapshot, error) {
	t.mu.Lock()
	episode := t.episode
	active := t.phase == PhaseProcessing
	t.mu.Unlock()

	if !active || episode == nil {
		return t.Snapshot(), nil
	}
	select {
	case <-ctx.Done():
		return t.Snapshot(), ctx.Err()
	case <-episode:
		return t.Snapshot(), nil
	}
}

func jobFailureError(status *api.StatusResponse) error {
	for _, name := range []string{"evaluation", "analysis", "recommendation"} {
		if msg, ok := status.ErrorMessages[name]; ok && msg != "" {
			return fmt.Errorf("processing failed: %s: %s", name, msg)
		}
	}
	for name, msg := range status.ErrorMessages {
		if msg != "" {
			return fmt.Errorf("processing failed: %s: %s", name, msg)
		}
	}
	return errors.New("processing failed")
}
