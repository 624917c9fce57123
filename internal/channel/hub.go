package channel

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"shellscribe/pkg/models"
)

// Recorder receives the rows a live terminal produces. *store.Store
// satisfies it.
type Recorder interface {
	UpsertSession(session *models.Session) error
	UpsertCommands(commands []models.Command) error
	AppendEvent(ev *models.Event) error
}

// Hub upgrades websocket connections and runs one reader goroutine per
// connection. Terminal state is only touched from its own connection's
// reader, so the hub lock guards nothing but the registry.
type Hub struct {
	recorder  Recorder
	responder Responder
	logger    *zap.Logger
	upgrader  websocket.Upgrader

	defaultCols int
	defaultRows int

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// conn is one websocket connection and the terminals it owns.
type conn struct {
	hub       *Hub
	ws        *websocket.Conn
	writeMu   sync.Mutex
	user      string
	terminals map[string]*liveTerminal
}

// liveTerminal pairs the in-memory terminal with the session row it feeds.
type liveTerminal struct {
	term    *Terminal
	session *models.Session
}

// NewHub builds a hub writing through recorder and answering commands with
// responder.
func NewHub(recorder Recorder, responder Responder, cols, rows int, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if responder == nil {
		responder = EchoResponder{}
	}
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	return &Hub{
		recorder:  recorder,
		responder: responder,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		defaultCols: cols,
		defaultRows: rows,
		conns:       make(map[*conn]struct{}),
	}
}

// ServeHTTP upgrades the request, allocates the connection's first terminal,
// and runs the read loop until the connection drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &conn{
		hub:       h,
		ws:        ws,
		user:      r.URL.Query().Get("user"),
		terminals: make(map[string]*liveTerminal),
	}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	// Every connection starts with one terminal; terminal-create adds more.
	if _, err := c.createTerminal(h.defaultCols, h.defaultRows); err != nil {
		h.logger.Error("failed to create initial terminal", zap.Error(err))
	}

	c.readLoop()

	// Connection gone: close every terminal it owned.
	for id := range c.terminals {
		c.closeTerminal(id, "connection-lost")
	}
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	ws.Close()
}

func (c *conn) readLoop() {
	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug("connection closed", zap.Error(err))
			}
			return
		}
		switch msg.Event {
		case EventTerminalCreate:
			cols, rows := msg.Cols, msg.Rows
			if cols <= 0 {
				cols = c.hub.defaultCols
			}
			if rows <= 0 {
				rows = c.hub.defaultRows
			}
			if _, err := c.createTerminal(cols, rows); err != nil {
				c.hub.logger.Error("failed to create terminal", zap.Error(err))
			}
		case EventTerminalInput:
			c.handleInput(msg.TerminalID, msg.Input)
		case EventTerminalResize:
			c.handleResize(msg.TerminalID, msg.Cols, msg.Rows)
		case EventTerminalClose:
			c.closeTerminal(msg.TerminalID, "close")
		default:
			c.hub.logger.Debug("ignoring unknown event", zap.String("event", msg.Event))
		}
	}
}

func (c *conn) createTerminal(cols, rows int) (*liveTerminal, error) {
	now := time.Now().UTC()
	session := &models.Session{
		ID:        models.NewSessionID(models.SourceLive, now),
		StartTime: now,
		UserName:  c.user,
		Source:    models.SourceLive,
		Metadata:  map[string]interface{}{"cols": cols, "rows": rows},
	}
	if err := c.hub.recorder.UpsertSession(session); err != nil {
		return nil, err
	}

	lt := &liveTerminal{
		term: &Terminal{
			ID:        uuid.New().String(),
			SessionID: session.ID,
			Cols:      cols,
			Rows:      rows,
			CreatedAt: now,
		},
		session: session,
	}
	c.terminals[lt.term.ID] = lt

	c.send(Message{
		Event:      EventTerminalCreated,
		TerminalID: lt.term.ID,
		Cols:       cols,
		Rows:       rows,
	})
	return lt, nil
}

// handleInput buffers raw input and persists a command row per completed
// line, then replies through the responder and records the reply as an
// output event.
func (c *conn) handleInput(terminalID, input string) {
	lt, ok := c.terminals[terminalID]
	if !ok {
		return
	}
	for _, text := range lt.term.Feed(input) {
		now := time.Now().UTC()
		response := c.hub.responder.Respond(text)

		cmd := models.Command{
			SessionID:      lt.term.SessionID,
			SequenceNumber: lt.term.NextSequence(),
			Timestamp:      now,
			Command:        text,
			Output:         response,
			ExitCode:       0,
		}
		if err := c.hub.recorder.UpsertCommands([]models.Command{cmd}); err != nil {
			c.hub.logger.Error("failed to record command",
				zap.String("session", lt.term.SessionID), zap.Error(err))
			continue
		}
		lt.session.CommandCount = lt.term.CommandCount()
		if err := c.hub.recorder.UpsertSession(lt.session); err != nil {
			c.hub.logger.Error("failed to update session count",
				zap.String("session", lt.session.ID), zap.Error(err))
		}
		c.mirrorActivity(terminalID, now, "command", text)

		if response != "" {
			c.recordEvent(lt, now, "output", map[string]interface{}{"data": response})
			c.send(Message{Event: EventTerminalOutput, TerminalID: terminalID, Data: response})
			c.mirrorActivity(terminalID, now, "output", response)
		}
	}
}

func (c *conn) handleResize(terminalID string, cols, rows int) {
	lt, ok := c.terminals[terminalID]
	if !ok {
		return
	}
	lt.term.Cols, lt.term.Rows = cols, rows
	now := time.Now().UTC()
	c.recordEvent(lt, now, "resize", map[string]interface{}{"cols": cols, "rows": rows})
	c.mirrorActivity(terminalID, now, "resize", "")
}

// closeTerminal finalizes the session summary and drops the in-memory
// terminal. The persisted rows remain. Idempotent per terminal.
func (c *conn) closeTerminal(terminalID, reason string) {
	lt, ok := c.terminals[terminalID]
	if !ok || !lt.term.Close() {
		return
	}
	now := time.Now().UTC()
	c.recordEvent(lt, now, "close", map[string]interface{}{"reason": reason})

	end := now
	lt.session.EndTime = &end
	lt.session.DurationMs = end.Sub(lt.session.StartTime).Milliseconds()
	lt.session.CommandCount = lt.term.CommandCount()
	if err := c.hub.recorder.UpsertSession(lt.session); err != nil {
		c.hub.logger.Error("failed to finalize session",
			zap.String("session", lt.session.ID), zap.Error(err))
	}

	exitCode := 0
	c.send(Message{Event: EventTerminalClose, TerminalID: terminalID})
	c.send(Message{Event: EventTerminalExit, TerminalID: terminalID, ExitCode: &exitCode})
	c.mirrorActivity(terminalID, now, "close", reason)

	delete(c.terminals, terminalID)
	c.hub.logger.Info("terminal closed",
		zap.String("terminal", terminalID),
		zap.String("session", lt.session.ID),
		zap.String("reason", reason),
		zap.Int("commands", lt.session.CommandCount))
}

func (c *conn) recordEvent(lt *liveTerminal, at time.Time, eventType string, data map[string]interface{}) {
	ev := &models.Event{
		SessionID: lt.term.SessionID,
		Timestamp: at,
		EventType: eventType,
		EventData: data,
	}
	if err := c.hub.recorder.AppendEvent(ev); err != nil {
		c.hub.logger.Error("failed to append event",
			zap.String("session", lt.term.SessionID),
			zap.String("type", eventType), zap.Error(err))
	}
}

// mirrorActivity forwards a recorded event to live observers on the same
// connection.
func (c *conn) mirrorActivity(terminalID string, at time.Time, activityType, data string) {
	ts := at
	c.send(Message{
		Event:      EventTerminalActivity,
		TerminalID: terminalID,
		Timestamp:  &ts,
		Type:       activityType,
		Data:       data,
	})
}

func (c *conn) send(msg Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(msg); err != nil {
		c.hub.logger.Debug("write failed", zap.Error(err))
	}
}
