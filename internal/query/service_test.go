package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shellscribe/internal/ingest"
	"shellscribe/internal/store"
	"shellscribe/pkg/models"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewService(s), s
}

func seedSession(t *testing.T, s *store.Store) {
	t.Helper()
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	require.NoError(t, s.UpsertSession(&models.Session{
		ID:        "sess-1",
		StartTime: start,
		EndTime:   &end,
		UserName:  "alice",
		Source:    models.SourceRecovered,
	}))
	require.NoError(t, s.UpsertCommands([]models.Command{
		{SessionID: "sess-1", SequenceNumber: 0, Timestamp: start.Add(time.Second), Command: "git status", Output: "clean", ExitCode: 0, DurationMs: 40},
		{SessionID: "sess-1", SequenceNumber: 1, Timestamp: start.Add(10 * time.Second), Command: "git push", Output: "rejected", ExitCode: 1, DurationMs: 900},
	}))
}

func TestGetSessionUnknownIsNil(t *testing.T) {
	svc, _ := newTestService(t)
	detail, err := svc.GetSession("missing")
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestInsights(t *testing.T) {
	svc, s := newTestService(t)
	seedSession(t, s)

	insights, err := svc.Insights("sess-1")
	require.NoError(t, err)
	require.Len(t, insights, 2)

	assert.Equal(t, "version-control", insights[0].Category)
	assert.Equal(t, "simple", insights[0].ComplexityBand)
	assert.Empty(t, insights[0].ErrorCategory)
	assert.Equal(t, "general-error", insights[1].ErrorCategory)
}

func TestPatternsWholeStore(t *testing.T) {
	svc, s := newTestService(t)
	seedSession(t, s)

	report, err := svc.Patterns("")
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalCommands)
	assert.Equal(t, 0.5, report.ErrorRate)
	require.NotEmpty(t, report.TopCommands)
	assert.Equal(t, "git", report.TopCommands[0].Label)
}

func TestExportTranscript(t *testing.T) {
	svc, s := newTestService(t)
	seedSession(t, s)

	transcript, err := svc.ExportTranscript("sess-1")
	require.NoError(t, err)

	assert.Contains(t, transcript, "Session: sess-1")
	assert.Contains(t, transcript, "$ git status")
	assert.Contains(t, transcript, "clean")
	assert.Contains(t, transcript, "Exit: 0")
	assert.Contains(t, transcript, "$ git push")
	assert.Contains(t, transcript, "Exit: 1")
}

func TestExportTranscriptUnknownSession(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ExportTranscript("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportRecordCoversLongSessions(t *testing.T) {
	svc, s := newTestService(t)
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertSession(&models.Session{
		ID:           "sess-long",
		StartTime:    start,
		CommandCount: 1200,
		Source:       models.SourceRecovered,
	}))
	commands := make([]models.Command, 1200)
	for i := range commands {
		commands[i] = models.Command{
			SessionID:      "sess-long",
			SequenceNumber: i,
			Timestamp:      start.Add(time.Duration(i) * time.Second),
			Command:        "true",
		}
	}
	require.NoError(t, s.UpsertCommands(commands))

	record, err := svc.ExportRecord("sess-long")
	require.NoError(t, err)
	require.Len(t, record.Commands, 1200)
	require.NotNil(t, record.Commands[1199].Sequence)
	assert.Equal(t, 1199, *record.Commands[1199].Sequence)
}

func TestExportRoundTrip(t *testing.T) {
	svc, s := newTestService(t)
	seedSession(t, s)

	record, err := svc.ExportRecord("sess-1")
	require.NoError(t, err)

	_, commands, _ := ingest.Normalize(record)
	original, err := s.GetSessionCommands("sess-1", 0)
	require.NoError(t, err)

	require.Len(t, commands, len(original))
	for i := range original {
		assert.Equal(t, original[i].SequenceNumber, commands[i].SequenceNumber)
		assert.Equal(t, original[i].Command, commands[i].Command)
		assert.Equal(t, original[i].Output, commands[i].Output)
		assert.Equal(t, original[i].ExitCode, commands[i].ExitCode)
		assert.Equal(t, original[i].DurationMs, commands[i].DurationMs)
	}
}
