package channel

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shellscribe/pkg/models"
)

type memoryRecorder struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	commands []models.Command
	events   []models.Event
}

func newMemoryRecorder() *memoryRecorder {
	return &memoryRecorder{sessions: make(map[string]models.Session)}
}

func (m *memoryRecorder) UpsertSession(s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memoryRecorder) UpsertCommands(commands []models.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, commands...)
	return nil
}

func (m *memoryRecorder) AppendEvent(ev *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

func (m *memoryRecorder) commandTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	texts := make([]string, len(m.commands))
	for i, cmd := range m.commands {
		texts[i] = cmd.Command
	}
	return texts
}

// dial connects to a test hub and consumes the initial terminal-created ack.
func dial(t *testing.T, hub *Hub) (*websocket.Conn, string) {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	var created Message
	require.NoError(t, ws.ReadJSON(&created))
	require.Equal(t, EventTerminalCreated, created.Event)
	require.NotEmpty(t, created.TerminalID)
	require.Equal(t, 80, created.Cols)
	return ws, created.TerminalID
}

func readUntil(t *testing.T, ws *websocket.Conn, event string) Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg Message
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Event == event {
			return msg
		}
	}
}

func TestInputLineBecomesOneCommand(t *testing.T) {
	rec := newMemoryRecorder()
	hub := NewHub(rec, EchoResponder{}, 80, 24, nil)
	ws, termID := dial(t, hub)

	require.NoError(t, ws.WriteJSON(Message{Event: EventTerminalInput, TerminalID: termID, Input: "echo hi\r"}))

	out := readUntil(t, ws, EventTerminalOutput)
	assert.Contains(t, out.Data, "echo hi")

	assert.Equal(t, []string{"echo hi"}, rec.commandTexts())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.commands, 1)
	cmd := rec.commands[0]
	assert.Equal(t, 0, cmd.SequenceNumber)
	assert.Equal(t, 0, cmd.ExitCode)
	session := rec.sessions[cmd.SessionID]
	assert.Equal(t, 1, session.CommandCount)
	assert.Equal(t, models.SourceLive, session.Source)
}

func TestPartialInputRecordsNothing(t *testing.T) {
	rec := newMemoryRecorder()
	hub := NewHub(rec, EchoResponder{}, 80, 24, nil)
	ws, termID := dial(t, hub)

	require.NoError(t, ws.WriteJSON(Message{Event: EventTerminalInput, TerminalID: termID, Input: "echo h"}))
	require.NoError(t, ws.WriteJSON(Message{Event: EventTerminalInput, TerminalID: termID, Input: "i\r"}))

	readUntil(t, ws, EventTerminalOutput)
	assert.Equal(t, []string{"echo hi"}, rec.commandTexts())
}

func TestResizeRecordsEvent(t *testing.T) {
	rec := newMemoryRecorder()
	hub := NewHub(rec, EchoResponder{}, 80, 24, nil)
	ws, termID := dial(t, hub)

	require.NoError(t, ws.WriteJSON(Message{Event: EventTerminalResize, TerminalID: termID, Cols: 120, Rows: 40}))
	activity := readUntil(t, ws, EventTerminalActivity)
	assert.Equal(t, "resize", activity.Type)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 1)
	assert.Equal(t, "resize", rec.events[0].EventType)
	assert.Equal(t, 120, rec.events[0].EventData["cols"])
}

func TestCloseFinalizesSessionSummary(t *testing.T) {
	rec := newMemoryRecorder()
	hub := NewHub(rec, EchoResponder{}, 80, 24, nil)
	ws, termID := dial(t, hub)

	require.NoError(t, ws.WriteJSON(Message{Event: EventTerminalInput, TerminalID: termID, Input: "ls\r"}))
	readUntil(t, ws, EventTerminalOutput)

	require.NoError(t, ws.WriteJSON(Message{Event: EventTerminalClose, TerminalID: termID}))
	exit := readUntil(t, ws, EventTerminalExit)
	require.NotNil(t, exit.ExitCode)
	assert.Equal(t, 0, *exit.ExitCode)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.commands, 1)
	session := rec.sessions[rec.commands[0].SessionID]
	require.NotNil(t, session.EndTime)
	assert.Equal(t, 1, session.CommandCount)
}

func TestSilentResponderSuppressesOutput(t *testing.T) {
	rec := newMemoryRecorder()
	hub := NewHub(rec, SilentResponder{}, 80, 24, nil)
	ws, termID := dial(t, hub)

	require.NoError(t, ws.WriteJSON(Message{Event: EventTerminalInput, TerminalID: termID, Input: "ls\r"}))
	// The command activity mirror still arrives; no terminal-output does.
	activity := readUntil(t, ws, EventTerminalActivity)
	assert.Equal(t, "command", activity.Type)

	assert.Equal(t, []string{"ls"}, rec.commandTexts())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.events)
}
