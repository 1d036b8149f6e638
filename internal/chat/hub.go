package chat

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"echochat/internal/logger"
)

// Hub owns the set of live connections. Its run loop is the only goroutine
// that touches h.conns, so connect/disconnect handling and the presence
// broadcasts they trigger are serialized by construction (same model as a
// classic websocket hub, extended with user identity).
//
// Known limitation: there is no liveness check beyond the transport's own
// ping/pong keepalive. A half-open connection that keeps answering pings
// stays in the presence set.
type Hub struct {
	registry *Registry
	bus      Bus

	conns map[string]*Client // connID -> client

	register   chan *Client
	unregister chan *Client
	outbound   chan Envelope
}

func NewHub(registry *Registry, bus Bus) *Hub {
	return &Hub{
		registry:   registry,
		bus:        bus,
		conns:      make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan Envelope, 256),
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

// Deliver routes a frame to exactly one connection, wherever it lives. The
// envelope goes over the bus; only the instance holding connID writes it.
func (h *Hub) Deliver(connID string, frame Frame) {
	h.outbound <- Envelope{Scope: scopeDirect, ConnID: connID, Frame: frame}
}

// Run is the hub engine. Start it once, in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	inbound := h.bus.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.conns[client.id] = client
			if client.userID != 0 {
				h.registry.Register(client.userID, client.id)
			}
			h.publishPresence(ctx)

		case client := <-h.unregister:
			// Already gone: a duplicate disconnect signal, ignore it.
			if _, ok := h.conns[client.id]; !ok {
				continue
			}
			h.drop(client)
			h.publishPresence(ctx)

		case env := <-h.outbound:
			h.publish(ctx, env)

		case payload, ok := <-inbound:
			if !ok {
				return
			}
			h.dispatch(ctx, payload)
		}
	}
}

// drop closes a client out of the hub. The registry removal is guarded by
// connection id, so dropping a stale socket never evicts a reconnect.
func (h *Hub) drop(client *Client) {
	delete(h.conns, client.id)
	close(client.send)
	if client.userID != 0 {
		h.registry.Unregister(client.userID, client.id)
	}
}

func (h *Hub) publishPresence(ctx context.Context) {
	payload, err := marshalPayload(PresencePayload{UserIDs: h.registry.Snapshot()})
	if err != nil {
		return
	}
	h.publish(ctx, Envelope{
		Scope: scopeBroadcast,
		Frame: Frame{Type: EventPresenceUpdate, Data: payload},
	})
}

func (h *Hub) publish(ctx context.Context, env Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		logger.Error("marshal envelope", zap.Error(err))
		return
	}
	if err := h.bus.Publish(ctx, raw); err != nil {
		logger.Error("bus publish failed", zap.String("event", env.Frame.Type), zap.Error(err))
	}
}

// dispatch fans a bus envelope out to the local connections it targets.
func (h *Hub) dispatch(ctx context.Context, payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		logger.Error("bad envelope on bus", zap.Error(err))
		return
	}
	raw, err := json.Marshal(env.Frame)
	if err != nil {
		return
	}

	dropped := false
	switch env.Scope {
	case scopeDirect:
		client, ok := h.conns[env.ConnID]
		if !ok {
			return // held by another instance, or already disconnected
		}
		dropped = !h.send(client, raw)
	case scopeBroadcast:
		for _, client := range h.conns {
			if !h.send(client, raw) {
				dropped = true
			}
		}
	}
	if dropped {
		h.publishPresence(ctx)
	}
}

// send writes to a client's queue; a client that can't keep up is dropped,
// like any other disconnect.
func (h *Hub) send(client *Client, raw []byte) bool {
	select {
	case client.send <- raw:
		return true
	default:
		h.drop(client)
		return false
	}
}
