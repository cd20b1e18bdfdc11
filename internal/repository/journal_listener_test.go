package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browser-bridge/bridge/internal/ws"
)

func TestConnectionJournalRecordsSessions(t *testing.T) {
	repo, _ := newTestRepo(t)
	journal := NewConnectionJournal(repo, zerolog.Nop())
	assert.Same(t, repo, journal.Repository())

	cfg := ws.DefaultConfig()
	cfg.KeepAliveInterval = 0
	relay := ws.NewRelay(cfg, zerolog.Nop(), journal)
	defer relay.Close(context.Background())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relay.HandleConnection(w, r, "ext-1")
	}))
	defer server.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return relay.Registry().Has("ext-1") }, time.Second, 5*time.Millisecond)
	c, _ := relay.Registry().Get("ext-1")

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"page_load","timestamp":1,"url":"https://example.com"}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"console","timestamp":2}`)))
	require.Eventually(t, func() bool { return c.Total() == 2 }, time.Second, 5*time.Millisecond)

	client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	client.Close()
	<-c.Done()

	ctx := context.Background()
	require.Eventually(t, func() bool {
		open, err := repo.CountOpen(ctx)
		return err == nil && open == 0
	}, time.Second, 5*time.Millisecond)

	recent, err := repo.Recent(ctx, "ext-1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 2, recent[0].MessageCount)
	assert.Equal(t, "console", recent[0].LastMessageType)
	assert.Equal(t, "peer", recent[0].CloseReason)
	assert.False(t, recent[0].Open())
}
