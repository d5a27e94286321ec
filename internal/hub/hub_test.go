package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapchat/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func agentDelta(id, tileID string) domain.SceneDelta {
	return domain.SceneDelta{
		Type:   domain.DeltaUpdate,
		Kind:   domain.KindAgent,
		Agent:  &domain.AgentMarker{ID: id, Label: "Marcus", TileID: tileID},
		TileID: tileID,
	}
}

func receiveMessage(t *testing.T, c *Client) DeltaMessage {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg DeltaMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return DeltaMessage{}
	}
}

func TestHubFanoutByTile(t *testing.T) {
	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	inside := NewClient("inside", 16)
	outside := NewClient("outside", 16)
	h.Register(inside)
	h.Register(outside)
	h.Subscribe(inside, []string{"14/1/1"})
	h.Subscribe(outside, []string{"14/9/9"})

	h.Broadcast([]domain.SceneDelta{agentDelta("a1", "14/1/1")})

	msg := receiveMessage(t, inside)
	assert.Equal(t, "delta", msg.Type)
	require.Len(t, msg.Payload.Agents, 1)
	assert.Equal(t, "a1", msg.Payload.Agents[0].ID)

	select {
	case data := <-outside.Send:
		t.Fatalf("client outside the tile received %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubRemovalMessage(t *testing.T) {
	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := NewClient("c1", 16)
	h.Register(c)
	h.Subscribe(c, []string{"14/1/1"})

	h.Broadcast([]domain.SceneDelta{{
		Type:   domain.DeltaRemove,
		Kind:   domain.KindAgent,
		Key:    "a1",
		TileID: "14/1/1",
	}})

	msg := receiveMessage(t, c)
	require.Len(t, msg.Payload.Removes, 1)
	assert.Equal(t, domain.KindAgent, msg.Payload.Removes[0].Kind)
	assert.Equal(t, "a1", msg.Payload.Removes[0].Key)
}

func TestHubMixedPayload(t *testing.T) {
	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := NewClient("c1", 16)
	h.Register(c)
	h.Subscribe(c, []string{"14/1/1"})

	h.Broadcast([]domain.SceneDelta{
		agentDelta("a1", "14/1/1"),
		{
			Type:   domain.DeltaUpdate,
			Kind:   domain.KindVenue,
			Venue:  &domain.Venue{ID: "v1", TileID: "14/1/1"},
			TileID: "14/1/1",
		},
		{
			Type:     domain.DeltaUpdate,
			Kind:     domain.KindPresence,
			Presence: &domain.PresenceDot{ID: "u1", TileID: "14/1/1"},
			TileID:   "14/1/1",
		},
	})

	msg := receiveMessage(t, c)
	assert.Len(t, msg.Payload.Agents, 1)
	assert.Len(t, msg.Payload.Venues, 1)
	assert.Len(t, msg.Payload.Presence, 1)
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := NewClient("c1", 16)
	h.Register(c)
	h.Subscribe(c, []string{"14/1/1", "14/1/2"})
	h.Unsubscribe(c, []string{"14/1/1"})

	assert.False(t, c.HasTile("14/1/1"))
	assert.True(t, c.HasTile("14/1/2"))

	h.Broadcast([]domain.SceneDelta{agentDelta("a1", "14/1/1")})
	select {
	case data := <-c.Send:
		t.Fatalf("received delta for unsubscribed tile: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := NewClient("c1", 16)
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	h.Unregister(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)

	_, open := <-c.Send
	assert.False(t, open, "send channel closed on unregister")
}

func TestHubBroadcastEmptyNoop(t *testing.T) {
	h := NewHub(testLogger())
	// No Run loop: an empty broadcast must not block or enqueue
	h.Broadcast(nil)
	assert.Empty(t, h.broadcast)
}

func TestClientTileSet(t *testing.T) {
	c := NewClient("c1", 1)

	c.AddTiles([]string{"a", "b"})
	assert.ElementsMatch(t, []string{"a", "b"}, c.GetTiles())

	c.RemoveTiles([]string{"a"})
	assert.Equal(t, []string{"b"}, c.GetTiles())
	assert.False(t, c.HasTile("a"))
}
