package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("FIELDSYNC_TEST_MODE", "1")
		if os.Getenv("FIELD_BASE_URL") == "" {
			_ = os.Setenv("FIELD_BASE_URL", "http://127.0.0.1:0")
		}
		if os.Getenv("LEDGER_BASE_URL") == "" {
			_ = os.Setenv("LEDGER_BASE_URL", "http://127.0.0.1:0")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain forces test mode before any package under test starts.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
