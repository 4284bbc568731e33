// Dev utility: hammers the relay with joined pairs exchanging messages.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 250 // Each pair is two connections in a shared room.
	MsgCount  = 20  // Messages per connection.
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var received atomic.Int64

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d connections, %d messages each...", PairCount*2, MsgCount)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()

	log.Printf("✅ LOAD TEST COMPLETE: %d frames received in %s", received.Load(), time.Since(start))
}

func runPair(pairID int) {
	room := fmt.Sprintf("lt-room-%d", pairID)

	var wg sync.WaitGroup
	for _, who := range []string{"a", "b"} {
		wg.Add(1)
		go func(who string) {
			defer wg.Done()
			runClient(room, fmt.Sprintf("lt_%d_%s@load.test", pairID, who))
		}(who)
	}
	wg.Wait()
}

func runClient(room, email string) {
	conn, _, err := websocket.DefaultDialer.Dial(WSURL, nil)
	if err != nil {
		log.Printf("dial: %v", err)
		return
	}
	defer conn.Close()

	// Drain inbound frames in the background.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			received.Add(1)
		}
	}()

	send(conn, "join-room", map[string]any{
		"roomId": room,
		"user":   map[string]string{"id": email, "name": email, "email": email},
	})

	for i := 0; i < MsgCount; i++ {
		send(conn, "send_message", map[string]any{
			"roomId":       room,
			"sender_id":    email,
			"sender_email": email,
			"content":      fmt.Sprintf("msg %d from %s", i, email),
			"created_at":   time.Now().UTC().Format(time.RFC3339),
		})
		time.Sleep(10 * time.Millisecond)
	}

	// Give the relay a moment to fan out before dropping the connection.
	time.Sleep(500 * time.Millisecond)
}

func send(conn *websocket.Conn, event string, data any) {
	raw, _ := json.Marshal(data)
	if err := conn.WriteJSON(envelope{Event: event, Data: raw}); err != nil {
		log.Printf("write %s: %v", event, err)
	}
}
