package channel

import (
	"regexp"
	"strings"
	"time"
)

// Terminal lifecycle. There is no transition out of StateClosed.
type State int

const (
	StateCreated State = iota
	StateActive
	StateClosed
)

// Terminal is the in-memory entity bound 1:1 to one live connection's
// terminal. It accumulates raw input until a line terminator marks a command
// boundary. Terminals are only touched from their connection's reader
// goroutine, so they carry no lock of their own.
type Terminal struct {
	ID        string
	SessionID string
	Cols      int
	Rows      int
	CreatedAt time.Time

	state  State
	buffer strings.Builder
	seq    int
}

// ansiEscapes matches CSI/OSC sequences and lone escape codes so that
// arrow-key and color noise never becomes command text.
var ansiEscapes = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07]*(\x07|\x1b\\)|\x1b[@-_]`)

// Feed appends raw input and returns the commands completed by line
// terminators in this chunk, oldest first. The boundary detection knows
// nothing of shell grammar: every CR/LF ends a command, so a pasted
// multi-line block becomes several commands. Escape-only buffers are
// discarded silently.
func (t *Terminal) Feed(input string) []string {
	if t.state == StateClosed {
		return nil
	}
	t.state = StateActive

	var completed []string
	for _, r := range input {
		if r == '\r' || r == '\n' {
			if text := cleanCommandText(t.buffer.String()); text != "" {
				completed = append(completed, text)
			}
			t.buffer.Reset()
			continue
		}
		t.buffer.WriteRune(r)
	}
	return completed
}

// NextSequence hands out the terminal's locally-incrementing command
// sequence number.
func (t *Terminal) NextSequence() int {
	seq := t.seq
	t.seq++
	return seq
}

// CommandCount returns how many commands this terminal has finalized.
func (t *Terminal) CommandCount() int { return t.seq }

// Close moves the terminal to its terminal state. Returns false if it was
// already closed.
func (t *Terminal) Close() bool {
	if t.state == StateClosed {
		return false
	}
	t.state = StateClosed
	return true
}

// Active reports whether the terminal has seen at least one exchange.
func (t *Terminal) Active() bool { return t.state == StateActive }

// cleanCommandText strips escape sequences and control characters from an
// accumulated buffer. An empty result means the buffer held only control
// noise and no command should be recorded.
func cleanCommandText(raw string) string {
	text := ansiEscapes.ReplaceAllString(raw, "")
	var b strings.Builder
	for _, r := range text {
		if r >= 0x20 || r == '\t' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
