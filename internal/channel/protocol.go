// Package channel captures live interactive terminals over WebSocket
// connections and turns their input/output into session, command, and event
// rows. Each connection may own several terminals; each terminal feeds
// exactly one session.
package channel

import "time"

// Wire event names, both directions.
const (
	EventTerminalCreate   = "terminal-create"   // in: request an additional terminal
	EventTerminalCreated  = "terminal-created"  // out: {terminalId, cols, rows}
	EventTerminalInput    = "terminal-input"    // in: {terminalId, input}
	EventTerminalOutput   = "terminal-output"   // out: {terminalId, data}
	EventTerminalResize   = "terminal-resize"   // in: {terminalId, cols, rows}
	EventTerminalClose    = "terminal-close"    // in/out: {terminalId}
	EventTerminalExit     = "terminal-exit"     // out: {terminalId, exitCode, signal}
	EventTerminalActivity = "terminal-activity" // out: mirrors every recorded event
)

// Message is the single frame shape for both directions; unused fields are
// omitted on the wire.
type Message struct {
	Event      string     `json:"event"`
	TerminalID string     `json:"terminalId,omitempty"`
	Input      string     `json:"input,omitempty"`
	Data       string     `json:"data,omitempty"`
	Cols       int        `json:"cols,omitempty"`
	Rows       int        `json:"rows,omitempty"`
	ExitCode   *int       `json:"exitCode,omitempty"`
	Signal     string     `json:"signal,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Type       string     `json:"type,omitempty"`
}
