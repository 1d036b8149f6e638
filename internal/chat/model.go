package chat

import "time"

// Message statuses. The only legal transition is sent -> read, once.
const (
	StatusSent = "sent"
	StatusRead = "read"
)

type Message struct {
	ID         int       `json:"id"`
	SenderID   int       `json:"sender_id"`
	ReceiverID int       `json:"receiver_id"`
	Content    string    `json:"content"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// SendMessageRequest is the JSON body of POST /api/messages.
type SendMessageRequest struct {
	ReceiverID int    `json:"receiver_id"`
	Content    string `json:"content"`
}
