package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func TestHubBroadcastsPublishedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	conn := dial(t, hub)
	hub.Publish(Event{Type: EventJobDone, Kind: "image", Filename: "a.jpg", Status: "inserted"})

	ev := readEvent(t, conn)
	assert.Equal(t, EventJobDone, ev.Type)
	assert.Equal(t, "a.jpg", ev.Filename)
	assert.NotZero(t, ev.Timestamp)
}

func TestHubRelaysRedisEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)
	go hub.Relay(ctx, rdb)

	conn := dial(t, hub)
	require.Eventually(t, func() bool { return len(mr.PubSubChannels("")) == 1 }, 2*time.Second, 10*time.Millisecond)

	NewRedisPublisher(rdb).Publish(Event{Type: EventExportProgress, TaskID: "t1", Completed: 2, Total: 4, Progress: 50})

	ev := readEvent(t, conn)
	assert.Equal(t, EventExportProgress, ev.Type)
	assert.Equal(t, "t1", ev.TaskID)
	assert.Equal(t, 50, ev.Progress)
}
