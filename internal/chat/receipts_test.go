package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	messages  map[int]*Message
	findErr   error
	markErr   error
	markCalls int
}

func newFakeGateway(msgs ...*Message) *fakeGateway {
	g := &fakeGateway{messages: make(map[int]*Message)}
	for _, m := range msgs {
		g.messages[m.ID] = m
	}
	return g
}

func (g *fakeGateway) FindByID(_ context.Context, id int) (*Message, error) {
	if g.findErr != nil {
		return nil, g.findErr
	}
	msg, ok := g.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	found := *msg
	return &found, nil
}

func (g *fakeGateway) MarkRead(_ context.Context, id int) error {
	g.markCalls++
	if g.markErr != nil {
		return g.markErr
	}
	g.messages[id].Status = StatusRead
	return nil
}

type recordedDelivery struct {
	connID string
	frame  Frame
}

type fakeNotifier struct {
	deliveries []recordedDelivery
}

func (n *fakeNotifier) Deliver(connID string, frame Frame) {
	n.deliveries = append(n.deliveries, recordedDelivery{connID: connID, frame: frame})
}

func TestMarkAsRead_NotifiesOnlineSender(t *testing.T) {
	gw := newFakeGateway(&Message{ID: 7, SenderID: 1, ReceiverID: 2, Status: StatusSent})
	registry := NewRegistry()
	registry.Register(1, "sender-conn")
	registry.Register(9, "bystander-conn")
	notifier := &fakeNotifier{}
	coord := NewReadReceiptCoordinator(gw, registry, notifier)

	outcome := coord.MarkAsRead(context.Background(), 7, 2)

	require.Equal(t, OutcomeOK, outcome)
	require.Equal(t, StatusRead, gw.messages[7].Status)

	// Delivered to the sender's connection and to nobody else.
	require.Len(t, notifier.deliveries, 1)
	require.Equal(t, "sender-conn", notifier.deliveries[0].connID)
	require.Equal(t, EventMessageRead, notifier.deliveries[0].frame.Type)

	var payload MessageReadPayload
	require.NoError(t, json.Unmarshal(notifier.deliveries[0].frame.Data, &payload))
	require.Equal(t, 7, payload.MessageID)
}

func TestMarkAsRead_OfflineSenderPersistsWithoutNotification(t *testing.T) {
	gw := newFakeGateway(&Message{ID: 7, SenderID: 1, ReceiverID: 2, Status: StatusSent})
	notifier := &fakeNotifier{}
	coord := NewReadReceiptCoordinator(gw, NewRegistry(), notifier)

	outcome := coord.MarkAsRead(context.Background(), 7, 2)

	require.Equal(t, OutcomeOK, outcome)
	require.Equal(t, StatusRead, gw.messages[7].Status)
	require.Empty(t, notifier.deliveries)
}

func TestMarkAsRead_ReceiverMismatchNeverMutates(t *testing.T) {
	gw := newFakeGateway(&Message{ID: 7, SenderID: 1, ReceiverID: 2, Status: StatusSent})
	registry := NewRegistry()
	registry.Register(1, "sender-conn")
	notifier := &fakeNotifier{}
	coord := NewReadReceiptCoordinator(gw, registry, notifier)

	outcome := coord.MarkAsRead(context.Background(), 7, 99)

	require.Equal(t, OutcomeValidationFailed, outcome)
	require.Equal(t, StatusSent, gw.messages[7].Status)
	require.Zero(t, gw.markCalls)
	require.Empty(t, notifier.deliveries)
}

func TestMarkAsRead_UnknownMessage(t *testing.T) {
	coord := NewReadReceiptCoordinator(newFakeGateway(), NewRegistry(), &fakeNotifier{})

	outcome := coord.MarkAsRead(context.Background(), 404, 2)

	require.Equal(t, OutcomeValidationFailed, outcome)
}

func TestMarkAsRead_SecondCallIsNoop(t *testing.T) {
	gw := newFakeGateway(&Message{ID: 7, SenderID: 1, ReceiverID: 2, Status: StatusSent})
	registry := NewRegistry()
	registry.Register(1, "sender-conn")
	notifier := &fakeNotifier{}
	coord := NewReadReceiptCoordinator(gw, registry, notifier)

	require.Equal(t, OutcomeOK, coord.MarkAsRead(context.Background(), 7, 2))
	require.Equal(t, OutcomeOK, coord.MarkAsRead(context.Background(), 7, 2))

	// One persist, one notification: the transition happened once.
	require.Equal(t, 1, gw.markCalls)
	require.Len(t, notifier.deliveries, 1)
	require.Equal(t, StatusRead, gw.messages[7].Status)
}

func TestMarkAsRead_StoreFailures(t *testing.T) {
	t.Run("lookup fails", func(t *testing.T) {
		gw := newFakeGateway(&Message{ID: 7, SenderID: 1, ReceiverID: 2, Status: StatusSent})
		gw.findErr = errors.New("connection refused")
		notifier := &fakeNotifier{}
		coord := NewReadReceiptCoordinator(gw, NewRegistry(), notifier)

		require.Equal(t, OutcomeStoreUnavailable, coord.MarkAsRead(context.Background(), 7, 2))
		require.Empty(t, notifier.deliveries)
	})

	t.Run("persist fails", func(t *testing.T) {
		gw := newFakeGateway(&Message{ID: 7, SenderID: 1, ReceiverID: 2, Status: StatusSent})
		gw.markErr = errors.New("connection refused")
		registry := NewRegistry()
		registry.Register(1, "sender-conn")
		notifier := &fakeNotifier{}
		coord := NewReadReceiptCoordinator(gw, registry, notifier)

		require.Equal(t, OutcomeStoreUnavailable, coord.MarkAsRead(context.Background(), 7, 2))
		// No notification without a persisted transition.
		require.Empty(t, notifier.deliveries)
		require.Equal(t, StatusSent, gw.messages[7].Status)

		// The client re-emitting the same event after recovery succeeds.
		gw.markErr = nil
		require.Equal(t, OutcomeOK, coord.MarkAsRead(context.Background(), 7, 2))
		require.Equal(t, StatusRead, gw.messages[7].Status)
		require.Len(t, notifier.deliveries, 1)
	})
}
