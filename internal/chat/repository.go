package chat

import (
	"context"
	"database/sql"
	"time"

	"chat-relay/internal/relay"
)

// Repository persists chat messages and last-seen timestamps. It implements
// relay.MessageStore.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertMessage(ctx context.Context, rec relay.MessageRecord) error {
	query := `
		INSERT INTO messages (room, sender_id, sender_email, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, rec.Room, rec.SenderID, rec.SenderEmail, rec.Content, rec.CreatedAt)
	return err
}

func (r *Repository) UpdateLastSeen(ctx context.Context, email string, at time.Time) error {
	query := "UPDATE users SET last_seen = $2 WHERE email = $1"
	_, err := r.db.ExecContext(ctx, query, email, at)
	return err
}

// RecentMessages returns the newest messages in a room, newest first.
func (r *Repository) RecentMessages(ctx context.Context, room string, limit int) ([]*Message, error) {
	query := `
		SELECT id, room, sender_id, sender_email, content, created_at
		FROM messages
		WHERE room = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.Room, &msg.SenderID, &msg.SenderEmail, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
