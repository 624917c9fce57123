package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shellscribe/pkg/models"
)

func writeRecord(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseRecordFileMalformed(t *testing.T) {
	path := writeRecord(t, t.TempDir(), "bad.json", "{not json")
	_, err := ParseRecordFile(path)
	require.Error(t, err)
}

func TestNormalizeFlatCommands(t *testing.T) {
	path := writeRecord(t, t.TempDir(), "rec.json", `{
		"sessionId": "rec-1",
		"start": "2026-08-01T10:00:00Z",
		"lastUpdate": "2026-08-01T10:05:00Z",
		"commands": [
			{"timestamp": "2026-08-01T10:00:01Z", "command": "git status", "output": "clean", "exitCode": 0},
			{"timestamp": "2026-08-01T10:00:30Z", "command": "git push", "output": "rejected", "exitCode": 1, "duration": 1200}
		]
	}`)
	record, err := ParseRecordFile(path)
	require.NoError(t, err)

	session, commands, events := Normalize(record)
	assert.Equal(t, "rec-1", session.ID)
	assert.Equal(t, 2, session.CommandCount)
	assert.Equal(t, models.SourceRecovered, session.Source)
	require.NotNil(t, session.EndTime)
	assert.Equal(t, int64(5*60*1000), session.DurationMs)
	assert.Empty(t, events)

	require.Len(t, commands, 2)
	assert.Equal(t, 0, commands[0].SequenceNumber)
	assert.Equal(t, 1, commands[1].SequenceNumber)
	assert.Equal(t, "git push", commands[1].Command)
	assert.Equal(t, 1, commands[1].ExitCode)
	assert.Equal(t, int64(1200), commands[1].DurationMs)
}

func TestNormalizeMergesActivitiesBeforeCommands(t *testing.T) {
	path := writeRecord(t, t.TempDir(), "rec.json", `{
		"sessionId": "rec-2",
		"start": "2026-08-01T10:00:00Z",
		"activities": [
			{"type": "command", "timestamp": "2026-08-01T10:00:01Z", "details": {"command": "ls", "output": "a"}},
			{"type": "resize", "timestamp": "2026-08-01T10:00:02Z", "details": {"cols": 120, "rows": 40}},
			{"type": "command", "timestamp": "2026-08-01T10:00:03Z", "details": {"command": "pwd", "output": "/tmp"}}
		],
		"commands": [
			{"timestamp": "2026-08-01T10:00:04Z", "command": "whoami", "output": "alice"}
		]
	}`)
	record, err := ParseRecordFile(path)
	require.NoError(t, err)

	session, commands, events := Normalize(record)
	require.Len(t, commands, 3)
	// Activities-derived commands first, then the flat list.
	assert.Equal(t, []string{"ls", "pwd", "whoami"}, []string{commands[0].Command, commands[1].Command, commands[2].Command})
	for i, cmd := range commands {
		assert.Equal(t, i, cmd.SequenceNumber)
	}
	assert.Equal(t, 3, session.CommandCount)

	require.Len(t, events, 1)
	assert.Equal(t, "resize", events[0].EventType)
	assert.Equal(t, float64(120), events[0].EventData["cols"])
}

func TestNormalizeRespectsExistingSequences(t *testing.T) {
	record := &models.SessionRecord{
		SessionID: "rec-3",
		Start:     time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		Commands: []models.RecordCommand{
			{Sequence: intPtr(5), Command: "first"},
			{Command: "second"},
		},
	}
	_, commands, _ := Normalize(record)
	require.Len(t, commands, 2)
	assert.Equal(t, 5, commands[0].SequenceNumber)
	assert.Equal(t, 6, commands[1].SequenceNumber)
}

func TestNormalizeGeneratesSessionID(t *testing.T) {
	record := &models.SessionRecord{
		Start: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
	session, _, _ := Normalize(record)
	assert.Regexp(t, `^recovered-20260801-[0-9a-f]{8}$`, session.ID)
}

func intPtr(v int) *int { return &v }
