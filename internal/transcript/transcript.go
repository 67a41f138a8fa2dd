// Package transcript validates chat log files before they are uploaded, so a
// malformed export fails locally instead of burning a round trip.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"chatlens/internal/api"
)

// ErrNotJSON is returned when the file does not carry the expected extension.
var ErrNotJSON = errors.New("only .json chat log files are supported")

// Document is a parsed, validated chat log export ready for upload.
type Document struct {
	InteractionID string
	AgentID       string
	AgentPersona  string
	Messages      []api.Message

	// Raw is the original file content, uploaded byte-for-byte so the
	// server sees exactly what the user exported.
	Raw []byte
}

type exportFile struct {
	Interaction struct {
		InteractionID string `json:"interaction_id"`
		AgentID       string `json:"agent_id"`
		AgentPersona  string `json:"agent_persona"`
		Transcript    []struct {
			Sender string `json:"sender"`
			Text   string `json:"text"`
		} `json:"transcript"`
	} `json:"interaction"`
}

// CheckExtension reports whether the filename carries the expected structured
// data extension. It is the tracker's pre-network gate.
func CheckExtension(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return fmt.Errorf("%w: %s", ErrNotJSON, filepath.Base(path))
	}
	return nil
}

// Load reads and validates a chat log export from disk.
func Load(path string) (*Document, error) {
	if err := CheckExtension(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chat log: %w", err)
	}
	return Parse(raw)
}

// Parse validates chat log content already held in memory.
func Parse(raw []byte) (*Document, error) {
	var export exportFile
	if err := json.Unmarshal(raw, &export); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if len(export.Interaction.Transcript) == 0 {
		return nil, errors.New("no transcript data found in chat log")
	}

	messages := make([]api.Message, 0, len(export.Interaction.Transcript))
	for _, entry := range export.Interaction.Transcript {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		sender := entry.Sender
		if strings.TrimSpace(sender) == "" {
			sender = "unknown"
		}
		messages = append(messages, api.Message{Sender: sender, Text: text})
	}
	if len(messages) == 0 {
		return nil, errors.New("no valid messages found in transcript")
	}

	doc := &Document{
		InteractionID: strings.TrimSpace(export.Interaction.InteractionID),
		AgentID:       strings.TrimSpace(export.Interaction.AgentID),
		AgentPersona:  strings.TrimSpace(export.Interaction.AgentPersona),
		Messages:      messages,
		Raw:           raw,
	}
	if doc.InteractionID == "" {
		doc.InteractionID = uuid.New().String()
	}
	return doc, nil
}

// Summary describes a document for display before upload.
type Summary struct {
	InteractionID string
	MessageCount  int
	Senders       []string
}

// Summarize produces display counts for a parsed document.
func (d *Document) Summarize() Summary {
	seen := make(map[string]struct{}, 2)
	senders := make([]string, 0, 2)
	for _, msg := range d.Messages {
		if _, ok := seen[msg.Sender]; ok {
			continue
		}
		seen[msg.Sender] = struct{}{}
		senders = append(senders, msg.Sender)
	}
	return Summary{
		InteractionID: d.InteractionID,
		MessageCount:  len(d.Messages),
		Senders:       senders,
	}
}
