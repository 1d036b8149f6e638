package chat

import (
	"context"
	"database/sql"
	"errors"
)

var ErrMessageNotFound = errors.New("message not found")

// Gateway is what the read-receipt coordinator needs from the message
// store. Repository implements it against Postgres; tests substitute a
// fake.
type Gateway interface {
	FindByID(ctx context.Context, id int) (*Message, error)
	MarkRead(ctx context.Context, id int) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (sender_id, receiver_id, content, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	msg.Status = StatusSent
	return r.db.QueryRowContext(ctx, query, msg.SenderID, msg.ReceiverID, msg.Content, msg.Status).
		Scan(&msg.ID, &msg.CreatedAt)
}

func (r *Repository) FindByID(ctx context.Context, id int) (*Message, error) {
	msg := &Message{}
	query := `
		SELECT id, sender_id, receiver_id, content, status, created_at
		FROM messages WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.Status, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

// MarkRead persists the sent -> read transition. The WHERE clause keeps it
// monotonic even if two receipts race on the store.
func (r *Repository) MarkRead(ctx context.Context, id int) error {
	query := `UPDATE messages SET status = $1 WHERE id = $2 AND status = $3`
	_, err := r.db.ExecContext(ctx, query, StatusRead, id, StatusSent)
	return err
}

// Conversation returns the full exchange between two users, oldest first,
// so the client can render history (and current read statuses) on load.
func (r *Repository) Conversation(ctx context.Context, userID, peerID int) ([]*Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, content, status, created_at
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC
		LIMIT 200
	`
	rows, err := r.db.QueryContext(ctx, query, userID, peerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.Status, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
