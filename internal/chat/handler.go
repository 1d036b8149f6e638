package chat

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"echochat/internal/logger"
	myMiddleware "echochat/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// In prod, check origin to prevent CSRF. For dev, we allow all.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Handler struct {
	hub      *Hub
	repo     *Repository
	receipts *ReadReceiptCoordinator
}

func NewHandler(hub *Hub, repo *Repository, receipts *ReadReceiptCoordinator) *Handler {
	return &Handler{hub: hub, repo: repo, receipts: receipts}
}

// ServeWs upgrades the connection and plugs it into the hub. Identity is
// whatever the (optional) auth middleware put on the context; without a
// token the connection joins anonymously.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(myMiddleware.UserIDKey).(int)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h.hub, h.receipts, conn, userID)
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// SendMessage persists a direct message and, if the receiver is online
// right now, delivers it straight to their connection. Offline receivers
// pick it up from history; there is no delivery queue.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserIDKey).(int)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ReceiverID <= 0 || req.ReceiverID == userID || req.Content == "" {
		http.Error(w, "invalid message", http.StatusBadRequest)
		return
	}

	msg := &Message{SenderID: userID, ReceiverID: req.ReceiverID, Content: req.Content}
	if err := h.repo.Insert(r.Context(), msg); err != nil {
		logger.Error("save message failed", zap.Error(err))
		http.Error(w, "could not save message", http.StatusInternalServerError)
		return
	}

	if connID, online := h.hub.Registry().Lookup(msg.ReceiverID); online {
		if payload, err := marshalPayload(msg); err == nil {
			h.hub.Deliver(connID, Frame{Type: EventNewMessage, Data: payload})
		}
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

// GetConversation loads the history between the authenticated user and a
// peer, including current read statuses.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserIDKey).(int)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	peerID, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil || peerID <= 0 {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	msgs, err := h.repo.Conversation(r.Context(), userID, peerID)
	if err != nil {
		logger.Error("load conversation failed", zap.Error(err))
		http.Error(w, "could not load messages", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	json.NewEncoder(w).Encode(msgs)
}
