// Package events defines the moderation event type, the JSON dataset
// loader, and the persona-driven synthetic generator.
package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Event is one moderation-worthy message. Immutable once received.
type Event struct {
	Comment string `json:"comment"`
	Meta    Meta   `json:"meta"`
	Persona string `json:"persona,omitempty"`
}

// Meta carries the event metadata. User is the opaque identity key; it is
// handed to the state tracker only and never reaches the agents or memory.
type Meta struct {
	User           string `json:"user"`
	AccountAgeDays int    `json:"account_age_days,omitempty"`
	Strikes        int    `json:"strikes,omitempty"`
	FollowerCount  int    `json:"follower_count,omitempty"`
	ViewerCount    int    `json:"viewer_count,omitempty"`
	Topic          string `json:"topic,omitempty"`
}

// Identity returns the opaque user handle, "unknown" when absent.
func (e Event) Identity() string {
	if e.Meta.User == "" {
		return "unknown"
	}
	return e.Meta.User
}

// LoadDataset reads a JSON array of events from path.
func LoadDataset(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	var evs []Event
	if err := json.Unmarshal(data, &evs); err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	return evs, nil
}

// SaveDataset writes events as an indented JSON array, creating parent
// directories as needed.
func SaveDataset(path string, evs []Event) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dataset dir: %w", err)
	}
	data, err := json.MarshalIndent(evs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling dataset: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing dataset: %w", err)
	}
	return nil
}
