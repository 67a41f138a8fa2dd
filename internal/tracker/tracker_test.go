package tracker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chatlens/internal/api"
	"chatlens/internal/handle"
)

type fakeService struct {
	mu          sync.Mutex
	uploadErr   error
	processErr  error
	statuses    []statusResult
	uploads     int
	processes   int
	statusCalls int

	// When set, Status signals statusEntered and then blocks until
	// statusGate is closed, so a test can hold a response in flight.
	statusGate    chan struct{}
	statusEntered chan struct{}
}

type statusResult struct {
	status *api.StatusResponse
	err    error
}

func (f *fakeService) Upload(_ context.Context, _ string, _ []byte) (*api.ChatLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &api.ChatLog{ID: "job-1", InteractionID: "int-1", Status: api.StatusPending, CreatedAt: time.Now()}, nil
}

func (f *fakeService) Process(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processes++
	return f.processErr
}

func (f *fakeService) Status(_ context.Context, id string) (*api.StatusResponse, error) {
	if f.statusEntered != nil {
		f.statusEntered <- struct{}{}
	}
	if f.statusGate != nil {
		<-f.statusGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if len(f.statuses) == 0 {
		return &api.StatusResponse{ChatLogID: id, Status: api.StatusProcessing}, nil
	}
	next := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return next.status, next.err
}

func (f *fakeService) counts() (uploads, processes, statusCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, f.processes, f.statusCalls
}

func processingStatus() statusResult {
	return statusResult{status: &api.StatusResponse{
		ChatLogID: "job-1",
		Status:    api.StatusProcessing,
		Progress: map[string]api.AgentState{
			"evaluation": api.AgentProcessing,
		},
	}}
}

func completedStatus() statusResult {
	return statusResult{status: &api.StatusResponse{
		ChatLogID: "job-1",
		Status:    api.StatusCompleted,
		Progress: map[string]api.AgentState{
			"evaluation":     api.AgentCompleted,
			"analysis":       api.AgentCompleted,
			"recommendation": api.AgentCompleted,
		},
	}}
}

func failedStatus() statusResult {
	return statusResult{status: &api.StatusResponse{
		ChatLogID: "job-1",
		Status:    api.StatusFailed,
		Progress: map[string]api.AgentState{
			"evaluation": api.AgentFailed,
		},
		ErrorMessages: map[string]string{"evaluation": "model crashed"},
	}}
}

func writeExport(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "export.json")
	content := `{"interaction":{"interaction_id":"int-1","transcript":[{"sender":"customer","text":"hi"}]}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}
	return path
}

func newTestTracker(t *testing.T, service *fakeService, opts ...Option) (*Tracker, *handle.Store) {
	t.Helper()

	handles := handle.NewStore(t.TempDir())
	base := []Option{
		WithPollInterval(10 * time.Millisecond),
		WithProcessingTimeout(5 * time.Second),
	}
	return New(service, handles, append(base, opts...)...), handles
}

func waitSettled(t *testing.T, trk *Tracker) Snapshot {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := trk.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return snap
}

func TestSubmitRejectsWrongExtensionBeforeAnyCall(t *testing.T) {
	service := &fakeService{}
	trk, _ := newTestTracker(t, service)

	err := trk.Submit(context.Background(), filepath.Join(t.TempDir(), "notes.txt"))
	if err == nil {
		t.Fatal("expected extension error")
	}
	uploads, processes, statusCalls := service.counts()
	if uploads != 0 || processes != 0 || statusCalls != 0 {
		t.Fatalf("expected no service calls, got %d/%d/%d", uploads, processes, statusCalls)
	}
	if snap := trk.Snapshot(); snap.Phase != PhaseIdle {
		t.Fatalf("expected Idle, got %s", snap.Phase)
	}
}

func TestSubmitUploadFailure(t *testing.T) {
	service := &fakeService{uploadErr: errors.New("boom")}
	trk, _ := newTestTracker(t, service)

	if err := trk.Submit(context.Background(), writeExport(t)); err == nil {
		t.Fatal("expected upload error")
	}
	snap := trk.Snapshot()
	if snap.Phase != PhaseFailed {
		t.Fatalf("expected Failed, got %s", snap.Phase)
	}
	if snap.Err == nil {
		t.Fatal("expected snapshot error")
	}
}

func TestSubmitProcessFailureSkipsPolling(t *testing.T) {
	service := &fakeService{processErr: errors.New("queue full")}
	trk, _ := newTestTracker(t, service)

	if err := trk.Submit(context.Background(), writeExport(t)); err == nil {
		t.Fatal("expected process error")
	}
	snap := trk.Snapshot()
	if snap.Phase != PhaseFailed {
		t.Fatalf("expected Failed, got %s", snap.Phase)
	}
	_, _, statusCalls := service.counts()
	if statusCalls != 0 {
		t.Fatalf("expected no status polls, got %d", statusCalls)
	}
}

func TestSubmitTracksToCompletion(t *testing.T) {
	service := &fakeService{statuses: []statusResult{processingStatus(), completedStatus()}}

	var updates int
	var completions int
	trk, handles := newTestTracker(t, service,
		WithOnUpdate(func(Snapshot) { updates++ }),
		WithOnComplete(func(Snapshot) { completions++ }),
	)

	if err := trk.Submit(context.Background(), writeExport(t)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap := waitSettled(t, trk)

	if snap.Phase != PhaseCompleted {
		t.Fatalf("expected Completed, got %s (err=%v)", snap.Phase, snap.Err)
	}
	if snap.Job.ID != "job-1" || snap.Job.InteractionID != "int-1" {
		t.Fatalf("unexpected job: %+v", snap.Job)
	}
	if snap.Job.AgentStates["recommendation"] != api.AgentCompleted {
		t.Fatalf("unexpected agent states: %v", snap.Job.AgentStates)
	}
	if updates < 2 {
		t.Fatalf("expected progress updates, got %d", updates)
	}
	if completions != 1 {
		t.Fatalf("expected exactly one completion callback, got %d", completions)
	}
	if _, ok, err := handles.Load(); err != nil || ok {
		t.Fatalf("expected handle cleared, ok=%v err=%v", ok, err)
	}
}

func TestSubmitSurfacesAgentFailure(t *testing.T) {
	service := &fakeService{statuses: []statusResult{failedStatus()}}
	trk, handles := newTestTracker(t, service)

	if err := trk.Submit(context.Background(), writeExport(t)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap := waitSettled(t, trk)

	if snap.Phase != PhaseFailed {
		t.Fatalf("expected Failed, got %s", snap.Phase)
	}
	if snap.Err == nil || snap.Job.AgentErrors["evaluation"] != "model crashed" {
		t.Fatalf("expected agent error surfaced, got err=%v errors=%v", snap.Err, snap.Job.AgentErrors)
	}
	if _, ok, _ := handles.Load(); ok {
		t.Fatal("expected handle cleared on server-terminal failure")
	}
}

func TestRetryReprocessesWithoutReupload(t *testing.T) {
	service := &fakeService{processErr: errors.New("queue full")}
	trk, _ := newTestTracker(t, service)

	if err := trk.Submit(context.Background(), writeExport(t)); err == nil {
		t.Fatal("expected process error")
	}

	service.mu.Lock()
	service.processErr = nil
	service.statuses = []statusResult{completedStatus()}
	service.mu.Unlock()

	if err := trk.Retry(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	snap := waitSettled(t, trk)
	if snap.Phase != PhaseCompleted {
		t.Fatalf("expected Completed after retry, got %s", snap.Phase)
	}

	uploads, processes, _ := service.counts()
	if uploads != 1 {
		t.Fatalf("expected a single upload, got %d", uploads)
	}
	if processes != 2 {
		t.Fatalf("expected two process calls, got %d", processes)
	}
}

func TestRetryRequiresFailedJob(t *testing.T) {
	trk, _ := newTestTracker(t, &fakeService{})
	if err := trk.Retry(context.Background()); !errors.Is(err, ErrNoRetry) {
		t.Fatalf("expected ErrNoRetry, got %v", err)
	}
}

func TestProcessingTimeoutKeepsHandle(t *testing.T) {
	service := &fakeService{}
	trk, handles := newTestTracker(t, service, WithProcessingTimeout(60*time.Millisecond))

	if err := trk.Submit(context.Background(), writeExport(t)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap := waitSettled(t, trk)

	if snap.Phase != PhaseTimedOut {
		t.Fatalf("expected TimedOut, got %s", snap.Phase)
	}
	if snap.Err == nil {
		t.Fatal("expected timeout error in snapshot")
	}
	if _, ok, err := handles.Load(); err != nil || !ok {
		t.Fatalf("expected handle kept after timeout, ok=%v err=%v", ok, err)
	}
}

func TestPollErrorEndsEpisode(t *testing.T) {
	service := &fakeService{statuses: []statusResult{{err: errors.New("network down")}}}
	trk, _ := newTestTracker(t, service)

	if err := trk.Submit(context.Background(), writeExport(t)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap := waitSettled(t, trk)

	if snap.Phase != PhaseFailed {
		t.Fatalf("expected Failed, got %s", snap.Phase)
	}
	if snap.Err == nil {
		t.Fatal("expected poll error in snapshot")
	}
}

func TestCancelStopsWatching(t *testing.T) {
	service := &fakeService{}
	trk, handles := newTestTracker(t, service)

	if err := trk.Submit(context.Background(), writeExport(t)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	trk.Cancel()

	snap := trk.Snapshot()
	if snap.Phase != PhaseCancelled {
		t.Fatalf("expected Cancelled, got %s", snap.Phase)
	}
	if _, ok, _ := handles.Load(); !ok {
		t.Fatal("expected handle kept after cancel")
	}
}

func TestCancelDropsLateStatusResponse(t *testing.T) {
	service := &fakeService{
		statuses:      []statusResult{completedStatus()},
		statusGate:    make(chan struct{}),
		statusEntered: make(chan struct{}, 1),
	}
	trk, handles := newTestTracker(t, service)

	if err := trk.Submit(context.Background(), writeExport(t)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-service.statusEntered

	trk.mu.Lock()
	episode := trk.episode
	trk.mu.Unlock()

	trk.Cancel()
	close(service.statusGate)
	<-episode

	snap := trk.Snapshot()
	if snap.Phase != PhaseCancelled {
		t.Fatalf("expected Cancelled, got %s", snap.Phase)
	}
	if snap.Job.OverallStatus != api.StatusProcessing {
		t.Fatalf("late response mutated the job: %+v", snap.Job)
	}
	if len(snap.Job.AgentStates) != 0 {
		t.Fatalf("late response applied agent states: %v", snap.Job.AgentStates)
	}
	if _, ok, _ := handles.Load(); !ok {
		t.Fatal("late response must not clear the handle")
	}
}

func TestResumeFromHandle(t *testing.T) {
	service := &fakeService{statuses: []statusResult{completedStatus()}}
	trk, handles := newTestTracker(t, service)

	if err := handles.Save("job-1", api.StatusProcessing); err != nil {
		t.Fatalf("save handle: %v", err)
	}

	resumed, err := trk.ResumeFromHandle()
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !resumed {
		t.Fatal("expected resume to attach")
	}
	snap := waitSettled(t, trk)
	if snap.Phase != PhaseCompleted {
		t.Fatalf("expected Completed, got %s", snap.Phase)
	}

	uploads, processes, _ := service.counts()
	if uploads != 0 || processes != 0 {
		t.Fatalf("resume must not re-upload or re-process, got %d/%d", uploads, processes)
	}
}

func TestResumeDiscardsSettledHandle(t *testing.T) {
	trk, handles := newTestTracker(t, &fakeService{})

	if err := handles.Save("job-1", api.StatusCompleted); err != nil {
		t.Fatalf("save handle: %v", err)
	}

	resumed, err := trk.ResumeFromHandle()
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed {
		t.Fatal("expected settled handle to be discarded")
	}
	if _, ok, _ := handles.Load(); ok {
		t.Fatal("expected stale handle cleared")
	}
}

func TestResetRequiresSettledPhase(t *testing.T) {
	service := &fakeService{}
	trk, handles := newTestTracker(t, service)

	if err := trk.Submit(context.Background(), writeExport(t)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := trk.Reset(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy during processing, got %v", err)
	}

	trk.Cancel()
	if err := trk.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	snap := trk.Snapshot()
	if snap.Phase != PhaseIdle || snap.Job.ID != "" {
		t.Fatalf("expected clean idle tracker, got %+v", snap)
	}
	if _, ok, _ := handles.Load(); ok {
		t.Fatal("expected handle cleared on reset")
	}
}

func TestSubmitWhileBusy(t *testing.T) {
	service := &fakeService{}
	trk, _ := newTestTracker(t, service)

	path := writeExport(t)
	if err := trk.Submit(context.Background(), path); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := trk.Submit(context.Background(), path); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	trk.Cancel()
}
