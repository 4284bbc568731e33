package relay

import (
	"encoding/json"
	"log"
)

// Broadcaster fans events out to the connections the registry knows about.
// Delivery is fire-and-forget per connection: a slow or dead connection is
// logged and skipped, it never aborts delivery to the rest.
type Broadcaster struct {
	registry *Registry
}

func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast delivers payload under event to every member of roomID, skipping
// excludeID if non-empty.
func (b *Broadcaster) Broadcast(roomID, event string, payload any, excludeID string) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("broadcast %s to %s: marshal: %v", event, roomID, err)
		return
	}

	for _, conn := range b.registry.Members(roomID) {
		if conn.ID() == excludeID {
			continue
		}
		if err := conn.Send(event, data); err != nil {
			log.Printf("broadcast %s to conn %s: %v", event, conn.ID(), err)
		}
	}
}

// BroadcastGlobal delivers payload under event to every registered
// connection, joined or not. Room announcements and presence transitions are
// process-wide: no one has joined a brand-new room yet, and offline
// notifications concern every client.
func (b *Broadcaster) BroadcastGlobal(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("broadcast %s: marshal: %v", event, err)
		return
	}

	for _, conn := range b.registry.All() {
		if err := conn.Send(event, data); err != nil {
			log.Printf("broadcast %s to conn %s: %v", event, conn.ID(), err)
		}
	}
}
