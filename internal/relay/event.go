package relay

import "encoding/json"

// Event names are part of the wire contract shared with the frontend.
// Renaming any of these breaks interop.
const (
	// Inbound
	EventJoinRoom     = "join-room"
	EventTyping       = "typing"
	EventSendMessage  = "send_message"
	EventNewRoom      = "new_room_created"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"

	// Outbound
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventReceiveMessage = "receive_message"
	EventRoomAdded      = "room_added"
)

// Envelope is a single frame on the realtime channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Identity is the user identity a client claims on join-room.
// It is copied into connection state as-is; the relay does not verify it
// against any authenticated session (admin auth is an HTTP concern).
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type JoinRoomPayload struct {
	RoomID string   `json:"roomId"`
	User   Identity `json:"user"`
}

type TypingPayload struct {
	RoomID     string `json:"roomId"`
	IsTyping   bool   `json:"isTyping"`
	SenderName string `json:"senderName"`
}

// TypingEvent is the outbound form of a typing notification. The room id is
// routing information, not payload, so it is stripped before fan-out.
type TypingEvent struct {
	IsTyping   bool   `json:"isTyping"`
	SenderName string `json:"senderName"`
}

// MessagePayload is both the inbound send_message body and the outbound
// receive_message body. Field names follow the frontend contract.
type MessagePayload struct {
	RoomID      string `json:"roomId"`
	SenderID    string `json:"sender_id"`
	SenderEmail string `json:"sender_email"`
	Content     string `json:"content"`
	CreatedAt   string `json:"created_at"`
}

type RoomPayload struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	IsGroup bool     `json:"is_group"`
	Members []string `json:"members"`
}

type UserOnlineEvent struct {
	Email string `json:"email"`
}

type UserOfflineEvent struct {
	Email    string `json:"email"`
	LastSeen string `json:"last_seen"`
}
