package channel

import "fmt"

// Responder produces the terminal's reply to a finalized command. No real
// shell process is spawned here; a PTY-backed implementation can satisfy this
// interface where true interactive capture is wanted.
type Responder interface {
	Respond(command string) string
}

// EchoResponder answers every command with a canned acknowledgment. This is
// the default backend.
type EchoResponder struct{}

func (EchoResponder) Respond(command string) string {
	return fmt.Sprintf("shellscribe: recorded %q\r\n", command)
}

// SilentResponder records commands without replying.
type SilentResponder struct{}

func (SilentResponder) Respond(string) string { return "" }

// NewResponder maps a configured backend name to its implementation.
// Unknown names fall back to echo.
func NewResponder(backend string) Responder {
	switch backend {
	case "silent":
		return SilentResponder{}
	default:
		return EchoResponder{}
	}
}
