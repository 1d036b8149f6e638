package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"echochat/internal/logger"
)

// Outcome classifies a mark-read attempt. The websocket channel is
// fire-and-forget, so outcomes are logged, never sent back to the client.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeValidationFailed: unknown message or receiver mismatch.
	// Nothing was mutated and re-sending the event will not help.
	OutcomeValidationFailed
	// OutcomeStoreUnavailable: the store errored. Re-emitting the same
	// event later is safe because the transition is one-way.
	OutcomeStoreUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeValidationFailed:
		return "validation_failed"
	case OutcomeStoreUnavailable:
		return "store_unavailable"
	}
	return "unknown"
}

// Notifier delivers a frame to exactly one connection. The Hub implements
// it; tests use a recorder.
type Notifier interface {
	Deliver(connID string, frame Frame)
}

// ReadReceiptCoordinator applies the sent -> read transition and tells the
// original sender, if they are online right now. Store I/O happens before
// the registry lookup, so no lock is ever held across the round trip.
type ReadReceiptCoordinator struct {
	store    Gateway
	registry *Registry
	notifier Notifier
}

func NewReadReceiptCoordinator(store Gateway, registry *Registry, notifier Notifier) *ReadReceiptCoordinator {
	return &ReadReceiptCoordinator{store: store, registry: registry, notifier: notifier}
}

func (c *ReadReceiptCoordinator) MarkAsRead(ctx context.Context, messageID, claimedReceiverID int) Outcome {
	msg, err := c.store.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			logger.Warn("mark-read for unknown message", zap.Int("message_id", messageID))
			return OutcomeValidationFailed
		}
		logger.Error("mark-read lookup failed", zap.Int("message_id", messageID), zap.Error(err))
		return OutcomeStoreUnavailable
	}

	if msg.ReceiverID != claimedReceiverID {
		logger.Warn("mark-read receiver mismatch",
			zap.Int("message_id", messageID),
			zap.Int("claimed", claimedReceiverID),
			zap.Int("actual", msg.ReceiverID))
		return OutcomeValidationFailed
	}

	// Already read: the transition happened once before, don't re-notify.
	if msg.Status == StatusRead {
		return OutcomeOK
	}

	if err := c.store.MarkRead(ctx, messageID); err != nil {
		logger.Error("mark-read persist failed", zap.Int("message_id", messageID), zap.Error(err))
		return OutcomeStoreUnavailable
	}

	if connID, ok := c.registry.Lookup(msg.SenderID); ok {
		payload, err := marshalPayload(MessageReadPayload{MessageID: messageID})
		if err == nil {
			c.notifier.Deliver(connID, Frame{Type: EventMessageRead, Data: payload})
		}
	}
	return OutcomeOK
}
