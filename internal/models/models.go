// Package models reports server-side model availability and remembers the
// user's per-agent model selections locally.
package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chatlens/internal/api"
	"chatlens/internal/transport"
)

// Agents is the known set of server-side pipeline stages a model can be
// selected for. The server may define more; selection is not restricted to
// this list.
var Agents = []string{"evaluation", "analysis", "recommendation"}

// Client fetches model availability from the service.
type Client struct {
	transport *transport.Client
}

// NewClient builds a models client on top of an authenticated transport.
func NewClient(tc *transport.Client) *Client {
	return &Client{transport: tc}
}

type statusEnvelope struct {
	Success bool                    `json:"success"`
	Data    api.ModelStatusResponse `json:"data"`
}

// Status fetches the server's model inventory.
func (c *Client) Status(ctx context.Context) (*api.ModelStatusResponse, error) {
	var envelope statusEnvelope
	if err := c.transport.DoJSON(ctx, http.MethodGet, "/api/models/status", nil, &envelope); err != nil {
		return nil, fmt.Errorf("fetch model status: %w", err)
	}
	return &envelope.Data, nil
}

const selectionsFileName = "models.json"

// Selections persists the per-agent model choices in the state directory.
type Selections struct {
	path string
}

// NewSelections builds a Selections store rooted at the state directory.
func NewSelections(stateDir string) *Selections {
	return &Selections{path: filepath.Join(stateDir, selectionsFileName)}
}

// Load reads the remembered selections. A missing file resolves to an empty map.
func (s *Selections) Load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read model selections: %w", err)
	}
	selections := map[string]string{}
	if err := json.Unmarshal(data, &selections); err != nil {
		return nil, fmt.Errorf("decode model selections: %w", err)
	}
	return selections, nil
}

// Set remembers a model for an agent and persists the full map.
func (s *Selections) Set(agent, model string) error {
	agent = strings.ToLower(strings.TrimSpace(agent))
	if agent == "" {
		return errors.New("agent name is empty")
	}
	selections, err := s.Load()
	if err != nil {
		return err
	}

	model = strings.TrimSpace(model)
	if model == "" {
		delete(selections, agent)
	} else {
		selections[agent] = model
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure state directory: %w", err)
	}
	data, err := json.MarshalIndent(selections, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model selections: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write model selections: %w", err)
	}
	return nil
}

// SortedAgents returns selection keys in stable display order: the known
// agents first, then any extras alphabetically.
func SortedAgents(selections map[string]string) []string {
	known := map[string]struct{}{}
	out := make([]string, 0, len(selections))
	for _, agent := range Agents {
		known[agent] = struct{}{}
		if _, ok := selections[agent]; ok {
			out = append(out, agent)
		}
	}
	var extras []string
	for agent := range selections {
		if _, ok := known[agent]; !ok {
			extras = append(extras, agent)
		}
	}
	sort.Strings(extras)
	return append(out, extras...)
}
