package query

import (
	"fmt"
	"strings"
	"time"

	"shellscribe/pkg/models"
)

// ExportRecord exports one session in the recorder's structured file shape,
// so an exported session can be re-ingested losslessly: commands keep their
// sequence numbers, text, output, exit codes, and durations.
func (s *Service) ExportRecord(id string) (*models.SessionRecord, error) {
	detail, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, ErrNotFound
	}

	record := &models.SessionRecord{
		SessionID:  detail.Session.ID,
		Start:      detail.Session.StartTime,
		User:       detail.Session.UserName,
		WorkingDir: detail.Session.WorkingDirectory,
	}
	if detail.Session.EndTime != nil {
		record.LastUpdate = *detail.Session.EndTime
	}
	for _, cmd := range detail.Commands {
		seq := cmd.SequenceNumber
		record.Commands = append(record.Commands, models.RecordCommand{
			Sequence:   &seq,
			Timestamp:  cmd.Timestamp,
			Command:    cmd.Command,
			Output:     cmd.Output,
			ExitCode:   cmd.ExitCode,
			DurationMs: cmd.DurationMs,
		})
	}
	return record, nil
}

// ExportTranscript renders one session as a plain-text transcript: a header,
// then per command its index, timestamp, the `$ `-prefixed command, its
// output, and the exit code.
func (s *Service) ExportTranscript(id string) (string, error) {
	detail, err := s.GetSession(id)
	if err != nil {
		return "", err
	}
	if detail == nil {
		return "", ErrNotFound
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", detail.Session.ID)
	if detail.Session.UserName != "" {
		fmt.Fprintf(&b, "User: %s\n", detail.Session.UserName)
	}
	fmt.Fprintf(&b, "Started: %s\n", detail.Session.StartTime.UTC().Format(time.RFC3339))
	if detail.Session.EndTime != nil {
		fmt.Fprintf(&b, "Ended: %s\n", detail.Session.EndTime.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Commands: %d\n", len(detail.Commands))

	for _, cmd := range detail.Commands {
		fmt.Fprintf(&b, "\n[%d] %s\n", cmd.SequenceNumber, cmd.Timestamp.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "$ %s\n", cmd.Command)
		if cmd.Output != "" {
			b.WriteString(cmd.Output)
			if !strings.HasSuffix(cmd.Output, "\n") {
				b.WriteByte('\n')
			}
		}
		fmt.Fprintf(&b, "Exit: %d\n", cmd.ExitCode)
	}
	return b.String(), nil
}
