package realtime

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func receive(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &out))
		return out
	default:
		t.Fatal("no message queued")
		return nil
	}
}

func TestHub_SendToUser(t *testing.T) {
	hub := newTestHub()
	alice := NewClient(hub, nil, "3-7-100", 3)
	bob := NewClient(hub, nil, "3-7-100", 7)
	hub.Register(alice)
	hub.Register(bob)

	assert.True(t, hub.IsConnected("3-7-100", 3))
	assert.Equal(t, 2, hub.RoomSize("3-7-100"))

	ok := hub.SendToUser("3-7-100", 7, NewMessage(Continue{PairKey: "3-7-100", UserID: 7}))
	require.True(t, ok)

	msg := receive(t, bob)
	assert.Equal(t, "CONTINUE", msg["action"])
	assert.Equal(t, float64(7), msg["data"].(map[string]interface{})["userId"])
	assert.NotZero(t, msg["timestamp"])
	assert.Len(t, alice.Send, 0)

	assert.False(t, hub.SendToUser("3-7-100", 9, NewMessage(Continue{})))
	assert.False(t, hub.SendToUser("other", 3, NewMessage(Continue{})))
}

func TestHub_BroadcastToRoom(t *testing.T) {
	hub := newTestHub()
	room := TournamentRoom(100)
	a := NewClient(hub, nil, room, 0)
	b := NewClient(hub, nil, room, 0)
	other := NewClient(hub, nil, TournamentRoom(200), 0)
	hub.Register(a)
	hub.Register(b)
	hub.Register(other)

	n := hub.BroadcastToRoom(room, NewMessage(BracketUpdated{TournamentID: 100}))
	assert.Equal(t, 2, n)
	assert.Equal(t, "BRACKET_UPDATED", receive(t, a)["action"])
	assert.Equal(t, "BRACKET_UPDATED", receive(t, b)["action"])
	assert.Len(t, other.Send, 0)
}

func TestHub_ReconnectReplacesOldConnection(t *testing.T) {
	hub := newTestHub()
	first := NewClient(hub, nil, "3-7-100", 3)
	second := NewClient(hub, nil, "3-7-100", 3)

	hub.Register(first)
	hub.Register(second)

	_, open := <-first.Send
	assert.False(t, open, "old connection must be closed")
	assert.False(t, hub.Unregister(first), "stale client must not evict the new one")
	assert.True(t, hub.IsConnected("3-7-100", 3))

	assert.True(t, hub.Unregister(second))
	assert.False(t, hub.IsConnected("3-7-100", 3))
	assert.Equal(t, 0, hub.RoomSize("3-7-100"))
}

func TestHub_CloseUser(t *testing.T) {
	hub := newTestHub()
	c := NewClient(hub, nil, "3-7-100", 3)
	hub.Register(c)

	hub.CloseUser("3-7-100", 3)
	assert.False(t, hub.IsConnected("3-7-100", 3))
	_, open := <-c.Send
	assert.False(t, open)

	assert.False(t, hub.SendToUser("3-7-100", 3, NewMessage(Continue{})))
	hub.CloseUser("3-7-100", 3)
	c.Close()
}

func TestClient_EnqueueDropsWhenFull(t *testing.T) {
	hub := newTestHub()
	c := NewClient(hub, nil, "room", 1)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		require.True(t, hub.SendToUser("room", 1, NewMessage(Pong{})))
	}
	assert.False(t, hub.SendToUser("room", 1, NewMessage(Pong{})))
}
