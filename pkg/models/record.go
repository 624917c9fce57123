package models

import (
	"encoding/json"
	"time"
)

// SessionRecord is the external recorder's on-disk schema, one file per
// session. Either or both of Activities and Commands may be present; commands
// nested in Activities (type == "command") are normalized ahead of the flat
// Commands list.
type SessionRecord struct {
	SessionID  string           `json:"sessionId"`
	Start      time.Time        `json:"start"`
	LastUpdate time.Time        `json:"lastUpdate"`
	User       string           `json:"user,omitempty"`
	WorkingDir string           `json:"workingDir,omitempty"`
	Activities []RecordActivity `json:"activities,omitempty"`
	Commands   []RecordCommand  `json:"commands,omitempty"`
}

// RecordActivity is one entry in a record's activities list. Command
// activities carry a RecordCommand in Details; anything else is a free-form
// recorder annotation and becomes an Event row.
type RecordActivity struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Details   json.RawMessage `json:"details"`
}

// CommandDetails decodes the activity payload as a command.
func (a RecordActivity) CommandDetails() (RecordCommand, error) {
	var cmd RecordCommand
	err := json.Unmarshal(a.Details, &cmd)
	return cmd, err
}

// RecordCommand carries the command fields of either shape. Sequence is
// optional; when absent the adapter assigns one in encounter order.
type RecordCommand struct {
	Sequence   *int      `json:"sequence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Command    string    `json:"command"`
	Output     string    `json:"output"`
	ExitCode   int       `json:"exitCode"`
	DurationMs int64     `json:"duration"`
}
