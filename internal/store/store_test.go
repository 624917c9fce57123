package store

import (
	"testing"
	"time"

	"shellscribe/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(id string, start time.Time) *models.Session {
	return &models.Session{
		ID:               id,
		StartTime:        start,
		UserName:         "alice",
		WorkingDirectory: "/home/alice",
		Source:           models.SourceRecovered,
	}
}

func TestUpsertSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	session := testSession("sess-1", start)
	session.Environment = map[string]string{"SHELL": "/bin/zsh"}
	if err := s.UpsertSession(session); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected session, got nil")
	}
	if got.UserName != "alice" || got.Environment["SHELL"] != "/bin/zsh" {
		t.Errorf("Session round-trip mismatch: %+v", got)
	}
	if !got.StartTime.Equal(start) {
		t.Errorf("Expected start %v, got %v", start, got.StartTime)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetSession("missing")
	if err != nil {
		t.Fatalf("GetSession should not error on missing id: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing session, got %+v", got)
	}
}

func TestUpsertSessionReplacesRow(t *testing.T) {
	s := newTestStore(t)
	start := time.Now().UTC()

	session := testSession("sess-1", start)
	if err := s.UpsertSession(session); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	end := start.Add(2 * time.Minute)
	session.EndTime = &end
	session.CommandCount = 7
	if err := s.UpsertSession(session); err != nil {
		t.Fatalf("UpsertSession (update) failed: %v", err)
	}

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.CommandCount != 7 {
		t.Errorf("Expected command_count 7, got %d", got.CommandCount)
	}
	if got.EndTime == nil {
		t.Error("Expected end_time to be set after update")
	}
}

func TestUpsertCommandsReplacesBySequence(t *testing.T) {
	s := newTestStore(t)
	start := time.Now().UTC()
	if err := s.UpsertSession(testSession("sess-1", start)); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	first := []models.Command{
		{SessionID: "sess-1", SequenceNumber: 0, Timestamp: start, Command: "ls", Output: "a b"},
		{SessionID: "sess-1", SequenceNumber: 1, Timestamp: start.Add(time.Second), Command: "pwd", Output: "/tmp"},
	}
	if err := s.UpsertCommands(first); err != nil {
		t.Fatalf("UpsertCommands failed: %v", err)
	}

	// Re-ingest replaces slot 1 and appends slot 2.
	second := []models.Command{
		{SessionID: "sess-1", SequenceNumber: 1, Timestamp: start.Add(time.Second), Command: "pwd", Output: "/home"},
		{SessionID: "sess-1", SequenceNumber: 2, Timestamp: start.Add(2 * time.Second), Command: "whoami", Output: "alice"},
	}
	if err := s.UpsertCommands(second); err != nil {
		t.Fatalf("UpsertCommands (re-ingest) failed: %v", err)
	}

	commands, err := s.GetSessionCommands("sess-1", 0)
	if err != nil {
		t.Fatalf("GetSessionCommands failed: %v", err)
	}
	if len(commands) != 3 {
		t.Fatalf("Expected 3 commands, got %d", len(commands))
	}
	for i, cmd := range commands {
		if cmd.SequenceNumber != i {
			t.Errorf("Expected dense sequence numbers, got %d at index %d", cmd.SequenceNumber, i)
		}
	}
	if commands[1].Output != "/home" {
		t.Errorf("Expected replaced output '/home', got %q", commands[1].Output)
	}
}

func TestTimelineMergesCommandsAndEvents(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if err := s.UpsertSession(testSession("sess-1", start)); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	if err := s.UpsertCommands([]models.Command{
		{SessionID: "sess-1", SequenceNumber: 0, Timestamp: start.Add(1 * time.Second), Command: "ls"},
		{SessionID: "sess-1", SequenceNumber: 1, Timestamp: start.Add(5 * time.Second), Command: "pwd"},
	}); err != nil {
		t.Fatalf("UpsertCommands failed: %v", err)
	}
	if err := s.AppendEvent(&models.Event{
		SessionID: "sess-1",
		Timestamp: start.Add(3 * time.Second),
		EventType: "resize",
		EventData: map[string]interface{}{"cols": float64(120), "rows": float64(40)},
	}); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	timeline, err := s.GetSessionTimeline("sess-1")
	if err != nil {
		t.Fatalf("GetSessionTimeline failed: %v", err)
	}
	if len(timeline) != 3 {
		t.Fatalf("Expected 3 timeline entries, got %d", len(timeline))
	}
	wantTypes := []string{"command", "resize", "command"}
	for i, want := range wantTypes {
		if timeline[i].Type != want {
			t.Errorf("Entry %d: expected type %q, got %q", i, want, timeline[i].Type)
		}
	}
	if timeline[1].EventData["cols"] != float64(120) {
		t.Errorf("Expected resize cols 120, got %v", timeline[1].EventData["cols"])
	}
}
