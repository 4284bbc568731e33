package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type frame struct {
	event string
	data  json.RawMessage
}

// fakeConn records every frame it is sent. Safe for concurrent use.
type fakeConn struct {
	id       string
	failSend bool

	mu     sync.Mutex
	frames []frame
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.NewString()}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event string, data json.RawMessage) error {
	if c.failSend {
		return errors.New("connection gone")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame{event: event, data: data})
	return nil
}

func (c *fakeConn) received() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame(nil), c.frames...)
}

func (c *fakeConn) countOf(event string) int {
	n := 0
	for _, f := range c.received() {
		if f.event == event {
			n++
		}
	}
	return n
}

type fakeStore struct {
	mu          sync.Mutex
	insertErr   error
	lastSeenErr error
	inserted    []MessageRecord
	lastSeen    map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{lastSeen: make(map[string]time.Time)}
}

func (s *fakeStore) InsertMessage(_ context.Context, rec MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, rec)
	return nil
}

func (s *fakeStore) UpdateLastSeen(_ context.Context, email string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSeenErr != nil {
		return s.lastSeenErr
	}
	s.lastSeen[email] = at
	return nil
}

func (s *fakeStore) insertedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

func mustData(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func join(t *testing.T, r *Relay, conn Conn, roomID, email string) {
	t.Helper()
	r.HandleEvent(context.Background(), conn, Envelope{
		Event: EventJoinRoom,
		Data: mustData(t, JoinRoomPayload{
			RoomID: roomID,
			User:   Identity{ID: email, Name: email, Email: email},
		}),
	})
}

func TestJoinRoom_MarksOnlineAndAnnounces(t *testing.T) {
	req := require.New(t)
	r := New(newFakeStore())

	x := newFakeConn()
	y := newFakeConn()
	r.Connect(x)
	r.Connect(y)

	// When both connections join the same room
	join(t, r, x, "r1", "a@x.com")
	join(t, r, y, "r1", "b@x.com")

	// Then both users are online and members of the room
	req.True(r.Presence().IsOnline("a@x.com"))
	req.True(r.Presence().IsOnline("b@x.com"))
	req.Len(r.Registry().Members("r1"), 2)

	// And the second join was announced to the room, sender included
	var online UserOnlineEvent
	last := x.received()[len(x.received())-1]
	req.Equal(EventUserOnline, last.event)
	req.NoError(json.Unmarshal(last.data, &online))
	req.Equal("b@x.com", online.Email)
	req.Equal(1, y.countOf(EventUserOnline))
}

func TestJoinRoom_IdempotentPerRoom(t *testing.T) {
	req := require.New(t)
	r := New(newFakeStore())

	x := newFakeConn()
	r.Connect(x)

	join(t, r, x, "r1", "a@x.com")
	join(t, r, x, "r1", "a@x.com")

	req.Len(r.Registry().Members("r1"), 1)
	req.True(r.Presence().IsOnline("a@x.com"))
}

func TestJoinRoom_EmptyEmailRejected(t *testing.T) {
	req := require.New(t)
	r := New(newFakeStore())

	x := newFakeConn()
	y := newFakeConn()
	r.Connect(x)
	r.Connect(y)
	join(t, r, y, "r1", "b@x.com")

	// When a connection joins claiming an identity without an email
	r.HandleEvent(context.Background(), x, Envelope{
		Event: EventJoinRoom,
		Data:  mustData(t, JoinRoomPayload{RoomID: "r1", User: Identity{ID: "1", Name: "A"}}),
	})

	// Then the join is dropped: no membership, no presence, no announcement
	req.Len(r.Registry().Members("r1"), 1)
	req.False(r.Presence().IsOnline(""))
	req.Equal(1, y.countOf(EventUserOnline)) // only its own join

	// And teardown leaves no presence entry behind for an unregistered conn
	r.Disconnect(context.Background(), x.ID())
	req.False(r.Presence().IsOnline(""))
	req.Equal(1, r.Registry().Count())
}

func TestTyping_ExcludesSender(t *testing.T) {
	req := require.New(t)
	r := New(newFakeStore())

	x := newFakeConn()
	y := newFakeConn()
	r.Connect(x)
	r.Connect(y)
	join(t, r, x, "r1", "a@x.com")
	join(t, r, y, "r1", "b@x.com")

	r.HandleEvent(context.Background(), x, Envelope{
		Event: EventTyping,
		Data:  mustData(t, TypingPayload{RoomID: "r1", IsTyping: true, SenderName: "A"}),
	})

	// Y and only Y receives the typing event, without the room id
	req.Equal(0, x.countOf(EventTyping))
	req.Equal(1, y.countOf(EventTyping))

	var ev TypingEvent
	for _, f := range y.received() {
		if f.event == EventTyping {
			req.NoError(json.Unmarshal(f.data, &ev))
			req.NotContains(string(f.data), "roomId")
		}
	}
	req.True(ev.IsTyping)
	req.Equal("A", ev.SenderName)
}

func TestSendMessage_PersistThenBroadcast(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	r := New(store)

	x := newFakeConn()
	y := newFakeConn()
	z := newFakeConn() // different room
	r.Connect(x)
	r.Connect(y)
	r.Connect(z)
	join(t, r, x, "r1", "a@x.com")
	join(t, r, y, "r1", "b@x.com")
	join(t, r, z, "r2", "c@x.com")

	msg := MessagePayload{
		RoomID:      "r1",
		SenderID:    "u1",
		SenderEmail: "a@x.com",
		Content:     "hello",
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	r.HandleEvent(context.Background(), x, Envelope{Event: EventSendMessage, Data: mustData(t, msg)})

	// Persisted once
	req.Equal(1, store.insertedCount())
	req.Equal("hello", store.inserted[0].Content)
	req.Equal("r1", store.inserted[0].Room)

	// Exactly one delivery per room member, sender included, none outside
	req.Equal(1, x.countOf(EventReceiveMessage))
	req.Equal(1, y.countOf(EventReceiveMessage))
	req.Equal(0, z.countOf(EventReceiveMessage))
}

func TestSendMessage_PersistFailureDropsBroadcast(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	store.insertErr = errors.New("store down")
	r := New(store)

	x := newFakeConn()
	y := newFakeConn()
	r.Connect(x)
	r.Connect(y)
	join(t, r, x, "r1", "a@x.com")
	join(t, r, y, "r1", "b@x.com")

	r.HandleEvent(context.Background(), x, Envelope{
		Event: EventSendMessage,
		Data: mustData(t, MessagePayload{
			RoomID:      "r1",
			SenderEmail: "a@x.com",
			Content:     "lost",
		}),
	})

	// Fail closed: nobody sees a message that did not reach storage
	req.Equal(0, x.countOf(EventReceiveMessage))
	req.Equal(0, y.countOf(EventReceiveMessage))
}

func TestSendMessage_MissingFieldsDropped(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	r := New(store)

	x := newFakeConn()
	r.Connect(x)
	join(t, r, x, "r1", "a@x.com")

	r.HandleEvent(context.Background(), x, Envelope{
		Event: EventSendMessage,
		Data:  mustData(t, MessagePayload{RoomID: "r1", SenderEmail: "a@x.com"}),
	})

	req.Equal(0, store.insertedCount())
	req.Equal(0, x.countOf(EventReceiveMessage))
}

func TestNewRoom_AnnouncedGlobally(t *testing.T) {
	req := require.New(t)
	r := New(newFakeStore())

	x := newFakeConn()
	y := newFakeConn() // never joined any room
	r.Connect(x)
	r.Connect(y)
	join(t, r, x, "r1", "a@x.com")

	r.HandleEvent(context.Background(), x, Envelope{
		Event: EventNewRoom,
		Data:  mustData(t, RoomPayload{ID: "r9", Name: "new room", IsGroup: true, Members: []string{"a@x.com"}}),
	})

	// room_added reaches every connection, joined or not (nobody has joined
	// the new room yet)
	req.Equal(1, x.countOf(EventRoomAdded))
	req.Equal(1, y.countOf(EventRoomAdded))
}

func TestSignal_RelayedWithFrom(t *testing.T) {
	req := require.New(t)
	r := New(newFakeStore())

	x := newFakeConn()
	y := newFakeConn()
	r.Connect(x)
	r.Connect(y)
	join(t, r, x, "r1", "a@x.com")
	join(t, r, y, "r1", "b@x.com")

	r.HandleEvent(context.Background(), x, Envelope{
		Event: EventOffer,
		Data:  mustData(t, map[string]string{"roomId": "r1", "sdp": "v=0 fake-sdp"}),
	})

	req.Equal(0, x.countOf(EventOffer))
	req.Equal(1, y.countOf(EventOffer))

	var got map[string]json.RawMessage
	for _, f := range y.received() {
		if f.event == EventOffer {
			req.NoError(json.Unmarshal(f.data, &got))
		}
	}
	var from string
	req.NoError(json.Unmarshal(got["from"], &from))
	req.Equal(x.ID(), from)
	req.Contains(got, "sdp")
}

func TestDisconnect_AnnouncesOfflineAndPersistsLastSeen(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	r := New(store)

	x := newFakeConn()
	y := newFakeConn()
	z := newFakeConn() // unjoined, still gets the global broadcast
	r.Connect(x)
	r.Connect(y)
	r.Connect(z)
	join(t, r, x, "r1", "a@x.com")
	join(t, r, y, "r1", "b@x.com")

	r.Disconnect(context.Background(), x.ID())

	req.False(r.Presence().IsOnline("a@x.com"))
	req.Len(r.Registry().Members("r1"), 1)

	req.Equal(1, y.countOf(EventUserOffline))
	req.Equal(1, z.countOf(EventUserOffline))

	var ev UserOfflineEvent
	for _, f := range y.received() {
		if f.event == EventUserOffline {
			req.NoError(json.Unmarshal(f.data, &ev))
		}
	}
	req.Equal("a@x.com", ev.Email)
	_, err := time.Parse(time.RFC3339, ev.LastSeen)
	req.NoError(err)

	_, ok := store.lastSeen["a@x.com"]
	req.True(ok)
}

func TestDisconnect_LastSeenFailureDoesNotBlockOffline(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	store.lastSeenErr = errors.New("store down")
	r := New(store)

	x := newFakeConn()
	y := newFakeConn()
	r.Connect(x)
	r.Connect(y)
	join(t, r, x, "r1", "a@x.com")
	join(t, r, y, "r1", "b@x.com")

	r.Disconnect(context.Background(), x.ID())

	// Presence accuracy wins over storage consistency on teardown
	req.False(r.Presence().IsOnline("a@x.com"))
	req.Equal(1, y.countOf(EventUserOffline))
}

func TestDisconnect_ReconnectRaceKeepsNewPresence(t *testing.T) {
	req := require.New(t)
	r := New(newFakeStore())

	// Given user U connected on A, then reconnected on B before A's
	// disconnect is processed
	a := newFakeConn()
	b := newFakeConn()
	r.Connect(a)
	r.Connect(b)
	join(t, r, a, "r1", "u@x.com")
	join(t, r, b, "r1", "u@x.com")

	// When A's stale disconnect finally lands
	r.Disconnect(context.Background(), a.ID())

	// Then B's live presence survives
	req.True(r.Presence().IsOnline("u@x.com"))
	req.Len(r.Registry().Members("r1"), 1)
}

func TestDisconnect_UnjoinedConnectionIsSilent(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	r := New(store)

	x := newFakeConn()
	y := newFakeConn()
	r.Connect(x)
	r.Connect(y)
	join(t, r, y, "r1", "b@x.com")

	r.Disconnect(context.Background(), x.ID())

	req.Equal(0, y.countOf(EventUserOffline))
	req.Empty(store.lastSeen)
}

func TestHandleEvent_UnknownAndMalformedIgnored(t *testing.T) {
	req := require.New(t)
	r := New(newFakeStore())

	x := newFakeConn()
	r.Connect(x)

	r.HandleEvent(context.Background(), x, Envelope{Event: "no-such-event", Data: mustData(t, "x")})
	r.HandleEvent(context.Background(), x, Envelope{Event: EventJoinRoom, Data: json.RawMessage(`{"roomId":`)})
	r.HandleEvent(context.Background(), x, Envelope{Event: EventSendMessage, Data: json.RawMessage(`42`)})

	// Nothing is echoed back to the emitting client
	req.Empty(x.received())
}
