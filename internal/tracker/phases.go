package tracker

import (
	"time"

	"chatlens/internal/api"
)

// Phase is the client-side lifecycle state of the tracked upload.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseUploading  Phase = "uploading"
	PhaseSubmitted  Phase = "submitted"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
	// PhaseTimedOut means the client stopped watching after the processing
	// ceiling elapsed. It is not a server verdict; the job may still finish.
	PhaseTimedOut  Phase = "timed_out"
	PhaseCancelled Phase = "cancelled"
)

// Settled reports whether the phase admits no further automatic transition.
func (p Phase) Settled() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseTimedOut, PhaseCancelled:
		return true
	default:
		return false
	}
}

// ServerTerminal reports whether the phase reflects a server-confirmed
// terminal status, as opposed to client-side abandonment.
func (p Phase) ServerTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Job is the tracked view of one upload's processing lifecycle.
type Job struct {
	ID            string
	InteractionID string
	OverallStatus api.ProcessingStatus
	AgentStates   map[string]api.AgentState
	AgentErrors   map[string]string
	CreatedAt     time.Time
}

func (j Job) clone() Job {
	out := j
	if j.AgentStates != nil {
		out.AgentStates = make(map[string]api.AgentState, len(j.AgentStates))
		for name, state := range j.AgentStates {
			out.AgentStates[name] = state
		}
	}
	if j.AgentErrors != nil {
		out.AgentErrors = make(map[string]string, len(j.AgentErrors))
		for name, msg := range j.AgentErrors {
			out.AgentErrors[name] = msg
		}
	}
	return out
}

// Snapshot is a point-in-time copy of tracker state handed to callers. At
// most one error is carried at a time; a later poll tick or retry clears it.
type Snapshot struct {
	Phase Phase
	Job   Job
	Err   error
}
