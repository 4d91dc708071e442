// Package model defines the predictive model catalog entity.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Model is one predictive model run by the engine. Each model publishes its
// prediction overviews on its own subject.
type Model struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Author    string    `json:"author"`
	Stream    string    `json:"stream"`
	Target    string    `json:"target"`
	Subject   string    `json:"subject"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubjectPrefix prefixes every per-model prediction subject.
const SubjectPrefix = "models."

// PredictionSubject returns the subject a model publishes predictions on.
func PredictionSubject(id string) string {
	return SubjectPrefix + id + ".prediction"
}

// Topic renders the stream id the way the dashboard shows it.
func (m *Model) Topic() string {
	return fmt.Sprintf("%s/%s/%s/%s", m.Source, m.Author, m.Stream, m.Target)
}

// Validate checks the fields required to subscribe to the model. The
// subject is derived from the id; any other value is rejected.
func (m *Model) Validate() error {
	if m.ID == "" {
		return errors.New("id is required")
	}
	if strings.ContainsAny(m.ID, ".*> \t") {
		return fmt.Errorf("id %q contains subject wildcard or separator characters", m.ID)
	}
	if m.Stream == "" {
		return errors.New("stream is required")
	}
	if m.Subject != "" && m.Subject != PredictionSubject(m.ID) {
		return fmt.Errorf("subject %q must be empty or %q", m.Subject, PredictionSubject(m.ID))
	}
	return nil
}

// EngineState is the lifecycle state announced by the engine.
type EngineState string

const (
	EngineStarting EngineState = "starting"
	EngineReady    EngineState = "ready"
	EngineStopped  EngineState = "stopped"
)

// Announcement is published by the engine on every lifecycle change and
// carries the full set of models it currently runs. Synergy reports whether
// the peer-to-peer relay engine is running; Channels is its current peer
// channel listing, passed through to the relay untouched.
type Announcement struct {
	State    EngineState     `json:"state"`
	Synergy  bool            `json:"synergy"`
	Models   []Model         `json:"models"`
	Channels json.RawMessage `json:"channels,omitempty"`
}
