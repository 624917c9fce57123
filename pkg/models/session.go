// Package models defines the canonical session/command/event shapes shared by
// the ingestion paths, the store, and the query layer.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source tags where a session came from.
const (
	SourceLive      = "live"
	SourceRecovered = "recovered"
)

// Session is one logical recording of shell activity.
type Session struct {
	ID               string                 `json:"id"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          *time.Time             `json:"end_time,omitempty"`
	DurationMs       int64                  `json:"duration_ms"`
	CommandCount     int                    `json:"command_count"`
	UserName         string                 `json:"user_name"`
	WorkingDirectory string                 `json:"working_directory"`
	Environment      map[string]string      `json:"environment,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	Source           string                 `json:"source"`
}

// Command is one recorded invocation within a session. Rows are immutable;
// re-ingestion replaces a slot by (SessionID, SequenceNumber).
type Command struct {
	SessionID        string            `json:"session_id"`
	SequenceNumber   int               `json:"sequence_number"`
	Timestamp        time.Time         `json:"timestamp"`
	Command          string            `json:"command"`
	Output           string            `json:"output"`
	ExitCode         int               `json:"exit_code"`
	DurationMs       int64             `json:"duration_ms"`
	WorkingDirectory string            `json:"working_directory,omitempty"`
	EnvironmentVars  map[string]string `json:"environment_vars,omitempty"`
}

// Event is a non-command occurrence within a session (resize, disconnect,
// recorder annotation). Append-only.
type Event struct {
	SessionID string                 `json:"session_id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	EventData map[string]interface{} `json:"event_data,omitempty"`
}

// TimelineEntry is a command or event merged into a single ordered view.
// Type is "command" or the event's type tag.
type TimelineEntry struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Command   *Command               `json:"command,omitempty"`
	EventData map[string]interface{} `json:"event_data,omitempty"`
}

// NewSessionID builds a generated id of the form <source>-<date>-<token> for
// sessions that arrive without an external identity.
func NewSessionID(source string, at time.Time) string {
	token := uuid.New().String()[:8]
	return fmt.Sprintf("%s-%s-%s", source, at.UTC().Format("20060102"), token)
}
