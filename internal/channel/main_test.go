package channel

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures per-connection reader goroutines shut down cleanly.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
