package relay

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

// Handler upgrades HTTP requests into relay connections.
type Handler struct {
	relay *Relay
}

func NewHandler(r *Relay) *Handler {
	return &Handler{relay: r}
}

// ServeWS performs the websocket handshake, registers the connection in the
// unjoined state, and starts the two pumps. Identity arrives later with
// join-room and is client-claimed and unverified; admin auth happens on the
// HTTP layer, not here.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := NewClient(h.relay, conn)
	h.relay.Connect(client)

	go client.WritePump()
	go client.ReadPump()
}
