package repository

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/browser-bridge/bridge/internal/db"
)

// Every opened session can be read back, and closing it records the final
// counters without touching other sessions.
func TestJournalOpenCloseProperty(t *testing.T) {
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	defer testDB.Close()

	repo := NewJournalRepository(testDB)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	connectionID := gen.Identifier().SuchThat(func(s string) bool {
		return len(s) > 0 && len(s) <= 64
	})
	messageTypes := []string{"", "console", "page_load", "script_result"}
	messageType := gen.IntRange(0, len(messageTypes)-1).Map(func(i int) string { return messageTypes[i] })
	reasons := []string{"peer", "error", "superseded", "shutdown"}
	reason := gen.IntRange(0, len(reasons)-1).Map(func(i int) string { return reasons[i] })

	properties.Property("journal entries round-trip through open and close", prop.ForAll(
		func(id string, count int, lastType, closeReason string) bool {
			connectedAt := time.Now().Add(-time.Minute).Truncate(time.Millisecond)

			rowID, err := repo.Open(ctx, id, connectedAt)
			if err != nil {
				t.Logf("open: %v", err)
				return false
			}

			opened, err := repo.GetByID(ctx, rowID)
			if err != nil {
				t.Logf("get after open: %v", err)
				return false
			}
			if opened.ConnectionID != id || !opened.Open() || !opened.ConnectedAt.Equal(connectedAt) {
				t.Logf("opened entry mismatch: %+v", opened)
				return false
			}

			if err := repo.Close(ctx, rowID, time.Now(), count, lastType, closeReason); err != nil {
				t.Logf("close: %v", err)
				return false
			}

			closed, err := repo.GetByID(ctx, rowID)
			if err != nil {
				t.Logf("get after close: %v", err)
				return false
			}

			return !closed.Open() &&
				closed.MessageCount == count &&
				closed.LastMessageType == lastType &&
				closed.CloseReason == closeReason
		},
		connectionID,
		gen.IntRange(0, 100000),
		messageType,
		reason,
	))

	properties.TestingRun(t)
}
