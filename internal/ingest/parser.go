// Package ingest converts externally-recorded session files into store
// writes. A watcher (watcher.go) reacts to files appearing or changing in a
// directory; the parser below normalizes both record shapes into the
// canonical session/command/event model.
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"shellscribe/pkg/models"
)

// ParseRecordFile reads and decodes one session record file.
func ParseRecordFile(path string) (*models.SessionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", path, err)
	}
	var record models.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse record %s: %w", path, err)
	}
	return &record, nil
}

// Normalize merges a record's two command shapes into one canonical list and
// derives the session row and event rows. Commands nested in activities come
// first, then the flat commands list; sequence numbers follow encounter order
// unless a command already carries one.
func Normalize(record *models.SessionRecord) (*models.Session, []models.Command, []models.Event) {
	sessionID := record.SessionID
	if sessionID == "" {
		at := record.Start
		if at.IsZero() {
			at = time.Now()
		}
		sessionID = models.NewSessionID(models.SourceRecovered, at)
	}

	var commands []models.Command
	var events []models.Event
	nextSeq := 0

	appendCommand := func(rc models.RecordCommand) {
		seq := nextSeq
		if rc.Sequence != nil {
			seq = *rc.Sequence
		}
		if seq >= nextSeq {
			nextSeq = seq + 1
		}
		commands = append(commands, models.Command{
			SessionID:      sessionID,
			SequenceNumber: seq,
			Timestamp:      rc.Timestamp,
			Command:        rc.Command,
			Output:         rc.Output,
			ExitCode:       rc.ExitCode,
			DurationMs:     rc.DurationMs,
		})
	}

	for _, activity := range record.Activities {
		if activity.Type == "command" {
			rc, err := activity.CommandDetails()
			if err != nil {
				continue
			}
			if rc.Timestamp.IsZero() {
				rc.Timestamp = activity.Timestamp
			}
			appendCommand(rc)
			continue
		}
		var payload map[string]interface{}
		_ = json.Unmarshal(activity.Details, &payload)
		events = append(events, models.Event{
			SessionID: sessionID,
			Timestamp: activity.Timestamp,
			EventType: activity.Type,
			EventData: payload,
		})
	}
	for _, rc := range record.Commands {
		appendCommand(rc)
	}

	start := record.Start
	if start.IsZero() && len(commands) > 0 {
		start = commands[0].Timestamp
	}
	session := &models.Session{
		ID:               sessionID,
		StartTime:        start,
		CommandCount:     len(commands),
		UserName:         record.User,
		WorkingDirectory: record.WorkingDir,
		Source:           models.SourceRecovered,
	}
	if !record.LastUpdate.IsZero() {
		end := record.LastUpdate
		session.EndTime = &end
		if !start.IsZero() {
			session.DurationMs = end.Sub(start).Milliseconds()
		}
	}
	return session, commands, events
}
