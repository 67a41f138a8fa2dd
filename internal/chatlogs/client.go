// Package chatlogs is the feature client for the chat log endpoints: upload,
// processing control, status polling, and the per-agent result documents.
package chatlogs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"chatlens/internal/api"
	"chatlens/internal/transport"
)

// Client calls the /chat-logs endpoints through the shared transport.
type Client struct {
	transport *transport.Client
}

// NewClient builds a chat log client on top of an authenticated transport.
func NewClient(tc *transport.Client) *Client {
	return &Client{transport: tc}
}

// Upload submits a chat log export and returns the created job record.
func (c *Client) Upload(ctx context.Context, filename string, content []byte) (*api.ChatLog, error) {
	var record api.ChatLog
	if err := c.transport.DoMultipart(ctx, "/chat-logs/upload", "file", filename, content, &record); err != nil {
		return nil, fmt.Errorf("upload chat log: %w", err)
	}
	return &record, nil
}

// Process asks the server to start the multi-agent pipeline for a job.
func (c *Client) Process(ctx context.Context, id string) error {
	var ack api.MessageResponse
	if err := c.transport.DoJSON(ctx, http.MethodPost, jobPath(id, "process"), nil, &ack); err != nil {
		return fmt.Errorf("start processing: %w", err)
	}
	return nil
}

// Status fetches the current overall and per-agent processing state.
func (c *Client) Status(ctx context.Context, id string) (*api.StatusResponse, error) {
	var status api.StatusResponse
	if err := c.transport.DoJSON(ctx, http.MethodGet, jobPath(id, "status"), nil, &status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	return &status, nil
}

// Evaluation fetches the scoring agent's result.
func (c *Client) Evaluation(ctx context.Context, id string) (*api.Evaluation, error) {
	var result api.Evaluation
	if err := c.transport.DoJSON(ctx, http.MethodGet, jobPath(id, "evaluation"), nil, &result); err != nil {
		return nil, fmt.Errorf("fetch evaluation: %w", err)
	}
	return &result, nil
}

// Analysis fetches the guideline-compliance agent's result.
func (c *Client) Analysis(ctx context.Context, id string) (*api.Analysis, error) {
	var result api.Analysis
	if err := c.transport.DoJSON(ctx, http.MethodGet, jobPath(id, "analysis"), nil, &result); err != nil {
		return nil, fmt.Errorf("fetch analysis: %w", err)
	}
	return &result, nil
}

// Recommendation fetches the coaching agent's result.
func (c *Client) Recommendation(ctx context.Context, id string) (*api.Recommendation, error) {
	var result api.Recommendation
	if err := c.transport.DoJSON(ctx, http.MethodGet, jobPath(id, "recommendation"), nil, &result); err != nil {
		return nil, fmt.Errorf("fetch recommendation: %w", err)
	}
	return &result, nil
}

// List fetches the caller's chat logs.
func (c *Client) List(ctx context.Context) ([]api.ChatLog, error) {
	var records []api.ChatLog
	if err := c.transport.DoJSON(ctx, http.MethodGet, "/chat-logs/", nil, &records); err != nil {
		return nil, fmt.Errorf("list chat logs: %w", err)
	}
	return records, nil
}

func jobPath(id, suffix string) string {
	return "/chat-logs/" + url.PathEscape(id) + "/" + suffix
}
