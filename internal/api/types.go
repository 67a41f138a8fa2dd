package api

import (
	"fmt"
	"strings"
	"time"
)

// ProcessingStatus is the overall lifecycle status of an uploaded chat log.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

var statusSet = map[ProcessingStatus]struct{}{
	StatusPending:    {},
	StatusProcessing: {},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// ParseProcessingStatus converts a string into a known ProcessingStatus.
func ParseProcessingStatus(value string) (ProcessingStatus, bool) {
	normalized := ProcessingStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether the status admits no further server-side transition.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AgentState is the per-agent progress value reported by the status endpoint.
// Agent names are server-defined; the known set today is evaluation, analysis,
// and recommendation.
type AgentState string

const (
	AgentPending    AgentState = "pending"
	AgentProcessing AgentState = "processing"
	AgentCompleted  AgentState = "completed"
	AgentFailed     AgentState = "failed"
)

// Terminal reports whether an agent has finished, successfully or not.
func (s AgentState) Terminal() bool {
	return s == AgentCompleted || s == AgentFailed
}

// TokenPair is returned by the login, register, and refresh endpoints.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// User is the authenticated profile returned by GET /auth/me.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// RefreshRequest is the body of POST /auth/refresh and POST /auth/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Message is one transcript entry.
type Message struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// ChatLog is the job record returned by the upload and list endpoints.
type ChatLog struct {
	ID            string           `json:"id"`
	InteractionID string           `json:"interaction_id"`
	AgentID       string           `json:"agent_id,omitempty"`
	AgentPersona  string           `json:"agent_persona,omitempty"`
	Transcript    []Message        `json:"transcript"`
	Status        ProcessingStatus `json:"status"`
	UploadedBy    string           `json:"uploaded_by,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// StatusResponse is returned by GET /chat-logs/{id}/status.
type StatusResponse struct {
	ChatLogID     string                `json:"chat_log_id"`
	Status        ProcessingStatus      `json:"status"`
	Progress      map[string]AgentState `json:"progress"`
	ErrorMessages map[string]string     `json:"error_messages"`
}

// AgentsSettled reports whether every agent in the progress map is terminal.
// The server only declares the overall status terminal once this holds.
func (r StatusResponse) AgentsSettled() bool {
	if len(r.Progress) == 0 {
		return false
	}
	for _, state := range r.Progress {
		if !state.Terminal() {
			return false
		}
	}
	return true
}

// Evaluation holds the scoring agent's output.
type Evaluation struct {
	ID                string    `json:"id"`
	ChatLogID         string    `json:"chat_log_id"`
	Coherence         float64   `json:"coherence"`
	Relevance         float64   `json:"relevance"`
	Politeness        float64   `json:"politeness"`
	Resolution        float64   `json:"resolution"`
	Reasoning         string    `json:"reasoning"`
	EvaluationSummary string    `json:"evaluation_summary"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Analysis holds the guideline-compliance agent's output.
type Analysis struct {
	ID              string            `json:"id"`
	ChatLogID       string            `json:"chat_log_id"`
	Guidelines      map[string]string `json:"guidelines"`
	Issues          []string          `json:"issues"`
	Highlights      []string          `json:"highlights"`
	AnalysisSummary string            `json:"analysis_summary"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Recommendation holds the coaching agent's output.
type Recommendation struct {
	ID                  string    `json:"id"`
	ChatLogID           string    `json:"chat_log_id"`
	OriginalMessage     string    `json:"original_message"`
	ImprovedMessage     string    `json:"improved_message"`
	Reasoning           string    `json:"reasoning"`
	CoachingSuggestions []string  `json:"coaching_suggestions"`
	ErrorMessage        string    `json:"error_message,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// MessageResponse is the generic acknowledgement body used by several endpoints.
type MessageResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// ModelStatus describes a server-side model as reported by the models endpoint.
type ModelStatus struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	SizeGB      float64 `json:"size_gb"`
	Installed   bool    `json:"installed"`
}

// ModelStatusResponse is returned by GET /api/models/status.
type ModelStatusResponse struct {
	Models         map[string]ModelStatus `json:"models"`
	TotalInstalled int                    `json:"total_installed"`
	TotalRequired  int                    `json:"total_required"`
	SystemReady    bool                   `json:"system_ready"`
}

// Error is a non-2xx response decoded from the service's error body.
type Error struct {
	StatusCode int    `json:"-"`
	Detail     string `json:"detail"`
}

func (e *Error) Error() string {
	detail := strings.TrimSpace(e.Detail)
	if detail == "" {
		return fmt.Sprintf("service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("service returned %d: %s", e.StatusCode, detail)
}
