package chat

import "time"

// Message is a persisted chat message as read back for history.
type Message struct {
	ID          int       `json:"id"`
	Room        string    `json:"room"`
	SenderID    string    `json:"sender_id"`
	SenderEmail string    `json:"sender_email"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}
