package relay

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// MessageRecord is what a chat message looks like to the persistence layer.
type MessageRecord struct {
	Room        string
	SenderID    string
	SenderEmail string
	Content     string
	CreatedAt   string
}

// MessageStore is the persistence collaborator consumed by the relay.
// Failures are handled per-operation: a failed insert drops the message from
// realtime delivery too, a failed last-seen update never blocks the offline
// notification.
type MessageStore interface {
	InsertMessage(ctx context.Context, rec MessageRecord) error
	UpdateLastSeen(ctx context.Context, email string, at time.Time) error
}

// Relay is the event orchestrator. For each inbound event it validates the
// payload, updates registry/presence, performs any required persistence call,
// and fans out to the right subset of connections.
//
// Handlers run on the calling connection's read goroutine, so a connection's
// own events stay FIFO while store calls from different connections may be
// in flight concurrently. Shared state lives behind the registry's and
// presence tracker's own locks, which are never held across a store call.
type Relay struct {
	registry    *Registry
	presence    *Presence
	broadcaster *Broadcaster
	store       MessageStore
}

func New(store MessageStore) *Relay {
	registry := NewRegistry()
	return &Relay{
		registry:    registry,
		presence:    NewPresence(),
		broadcaster: NewBroadcaster(registry),
		store:       store,
	}
}

// Registry exposes the connection registry for transport handlers.
func (r *Relay) Registry() *Registry { return r.registry }

// Presence exposes the presence tracker, read-only for callers in practice.
func (r *Relay) Presence() *Presence { return r.presence }

// Connect registers a fresh connection in the unjoined state.
func (r *Relay) Connect(conn Conn) {
	r.registry.Register(conn)
	log.Printf("relay: conn %s connected (%d active)", conn.ID(), r.registry.Count())
}

// HandleEvent dispatches one inbound frame. Unknown events and malformed
// payloads are logged and dropped; nothing is ever echoed back to the
// emitting client as an error.
func (r *Relay) HandleEvent(ctx context.Context, conn Conn, env Envelope) {
	switch env.Event {
	case EventJoinRoom:
		r.handleJoinRoom(conn, env.Data)
	case EventTyping:
		r.handleTyping(conn, env.Data)
	case EventSendMessage:
		r.handleSendMessage(ctx, conn, env.Data)
	case EventNewRoom:
		r.handleNewRoom(env.Data)
	case EventOffer, EventAnswer, EventICECandidate:
		r.handleSignal(conn, env.Event, env.Data)
	default:
		log.Printf("relay: conn %s sent unknown event %q", conn.ID(), env.Event)
	}
}

func (r *Relay) handleJoinRoom(conn Conn, data json.RawMessage) {
	var p JoinRoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		log.Printf("relay: conn %s: bad join-room payload: %v", conn.ID(), err)
		return
	}
	// The email is the presence key. Admitting an empty one would leave a
	// presence entry that disconnect cleanup can never match.
	if p.User.Email == "" {
		log.Printf("relay: conn %s: join-room without user email, dropped", conn.ID())
		return
	}

	if !r.registry.JoinRoom(conn.ID(), p.RoomID, p.User) {
		log.Printf("relay: conn %s joined %s before registration", conn.ID(), p.RoomID)
		return
	}
	if replaced := r.presence.MarkOnline(p.User.Email, conn.ID()); replaced {
		log.Printf("relay: %s reconnected, presence moved to conn %s", p.User.Email, conn.ID())
	}

	r.broadcaster.Broadcast(p.RoomID, EventUserOnline, UserOnlineEvent{Email: p.User.Email}, "")
}

func (r *Relay) handleTyping(conn Conn, data json.RawMessage) {
	var p TypingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		log.Printf("relay: conn %s: bad typing payload: %v", conn.ID(), err)
		return
	}

	r.broadcaster.Broadcast(p.RoomID, EventTyping, TypingEvent{
		IsTyping:   p.IsTyping,
		SenderName: p.SenderName,
	}, conn.ID())
}

func (r *Relay) handleSendMessage(ctx context.Context, conn Conn, data json.RawMessage) {
	var p MessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("relay: conn %s: bad send_message payload: %v", conn.ID(), err)
		return
	}
	if p.RoomID == "" || p.SenderEmail == "" || p.Content == "" {
		log.Printf("relay: conn %s: send_message missing fields, dropped", conn.ID())
		return
	}
	if p.CreatedAt == "" {
		p.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	// Fail closed: a message that did not survive to storage is never shown
	// to other clients.
	err := r.store.InsertMessage(ctx, MessageRecord{
		Room:        p.RoomID,
		SenderID:    p.SenderID,
		SenderEmail: p.SenderEmail,
		Content:     p.Content,
		CreatedAt:   p.CreatedAt,
	})
	if err != nil {
		log.Printf("relay: insert message from %s: %v", p.SenderEmail, err)
		return
	}

	r.broadcaster.Broadcast(p.RoomID, EventReceiveMessage, p, "")
}

func (r *Relay) handleNewRoom(data json.RawMessage) {
	var p RoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("relay: bad new_room_created payload: %v", err)
		return
	}

	r.broadcaster.BroadcastGlobal(EventRoomAdded, p)
}

// handleSignal relays WebRTC signaling frames (offer, answer, ice-candidate)
// to the room with the sender's connection id attached as "from".
func (r *Relay) handleSignal(conn Conn, event string, data json.RawMessage) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		log.Printf("relay: conn %s: bad %s payload: %v", conn.ID(), event, err)
		return
	}
	var roomID string
	if raw, ok := fields["roomId"]; ok {
		_ = json.Unmarshal(raw, &roomID)
	}
	if roomID == "" {
		log.Printf("relay: conn %s: %s without roomId, dropped", conn.ID(), event)
		return
	}

	from, _ := json.Marshal(conn.ID())
	fields["from"] = from

	r.broadcaster.Broadcast(roomID, event, fields, conn.ID())
}

// Disconnect evicts the connection and, if it had joined, clears presence,
// persists the last-seen timestamp, and announces the user offline. The
// last-seen write is best-effort: on failure only the log line notices,
// presence accuracy wins over storage consistency on the teardown path.
func (r *Relay) Disconnect(ctx context.Context, connID string) {
	identity, joined := r.registry.Unregister(connID)
	if !joined || identity.Email == "" {
		return
	}

	r.presence.MarkOffline(identity.Email, connID)

	now := time.Now().UTC()
	if err := r.store.UpdateLastSeen(ctx, identity.Email, now); err != nil {
		log.Printf("relay: update last seen for %s: %v", identity.Email, err)
	}

	r.broadcaster.BroadcastGlobal(EventUserOffline, UserOfflineEvent{
		Email:    identity.Email,
		LastSeen: now.Format(time.RFC3339),
	})
}
