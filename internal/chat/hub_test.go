package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(NewRegistry(), NewLocalBus())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func connect(t *testing.T, hub *Hub, userID int) *Client {
	t.Helper()
	client := newClient(hub, nil, nil, userID)
	hub.register <- client
	return client
}

func nextFrame(t *testing.T, c *Client) (Frame, bool) {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		if !ok {
			return Frame{}, false
		}
		var frame Frame
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame, true
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return Frame{}, false
	}
}

// awaitPresence reads frames until a presence-update matching want arrives.
// Intermediate presence states are legal (broadcasts are eventually
// consistent), anything that is not presence is a failure.
func awaitPresence(t *testing.T, c *Client, want []int) {
	t.Helper()
	for i := 0; i < 10; i++ {
		frame, ok := nextFrame(t, c)
		require.True(t, ok, "send channel closed while waiting for presence")
		require.Equal(t, EventPresenceUpdate, frame.Type)

		var payload PresencePayload
		require.NoError(t, json.Unmarshal(frame.Data, &payload))
		if len(payload.UserIDs) == len(want) {
			require.ElementsMatch(t, want, payload.UserIDs)
			return
		}
	}
	t.Fatalf("never saw presence %v", want)
}

func awaitFrameOfType(t *testing.T, c *Client, eventType string) Frame {
	t.Helper()
	for i := 0; i < 10; i++ {
		frame, ok := nextFrame(t, c)
		require.True(t, ok, "send channel closed while waiting for %s", eventType)
		if frame.Type == eventType {
			return frame
		}
	}
	t.Fatalf("never saw a %s frame", eventType)
	return Frame{}
}

func expectSilence(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected frame: %s", raw)
		}
	case <-time.After(150 * time.Millisecond):
	}
}

func TestHub_EndToEndReadReceiptScenario(t *testing.T) {
	hub := startHub(t)

	// A connects: presence is {A}.
	clientA := connect(t, hub, 1)
	awaitPresence(t, clientA, []int{1})

	// B connects: everyone sees {A, B}.
	clientB := connect(t, hub, 2)
	awaitPresence(t, clientA, []int{1, 2})
	awaitPresence(t, clientB, []int{1, 2})

	// B reads a message A sent; A gets the receipt on their connection.
	gw := newFakeGateway(&Message{ID: 42, SenderID: 1, ReceiverID: 2, Status: StatusSent})
	coord := NewReadReceiptCoordinator(gw, hub.Registry(), hub)

	require.Equal(t, OutcomeOK, coord.MarkAsRead(context.Background(), 42, 2))
	require.Equal(t, StatusRead, gw.messages[42].Status)

	frame := awaitFrameOfType(t, clientA, EventMessageRead)
	var payload MessageReadPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	require.Equal(t, 42, payload.MessageID)

	// Point-to-point: the reader's own connection gets nothing.
	expectSilence(t, clientB)

	// A disconnects: presence shrinks to {B}.
	hub.unregister <- clientA
	awaitPresence(t, clientB, []int{2})
}

func TestHub_AnonymousConnectionNeverInPresence(t *testing.T) {
	hub := startHub(t)

	anon := connect(t, hub, 0)
	awaitPresence(t, anon, []int{})

	// Anonymous peers still receive broadcasts.
	connect(t, hub, 5)
	awaitPresence(t, anon, []int{5})
	require.ElementsMatch(t, []int{5}, hub.Registry().Snapshot())
}

func TestHub_ReconnectSurvivesStaleDisconnect(t *testing.T) {
	hub := startHub(t)

	first := connect(t, hub, 7)
	awaitPresence(t, first, []int{7})

	second := connect(t, hub, 7) // reconnect, overwrites the registry entry
	awaitPresence(t, second, []int{7})

	// The stale socket disconnects afterwards; the reconnect stays online.
	hub.unregister <- first
	awaitPresence(t, second, []int{7})

	connID, ok := hub.Registry().Lookup(7)
	require.True(t, ok)
	require.Equal(t, second.id, connID)
}

func TestHub_DuplicateDisconnectIsIdempotent(t *testing.T) {
	hub := startHub(t)

	clientA := connect(t, hub, 1)
	awaitPresence(t, clientA, []int{1})
	clientB := connect(t, hub, 2)
	awaitPresence(t, clientB, []int{1, 2})

	hub.unregister <- clientA
	hub.unregister <- clientA // second signal must be a no-op

	awaitPresence(t, clientB, []int{2})
	expectSilence(t, clientB)
}
