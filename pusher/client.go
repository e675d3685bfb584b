package pusher

import (
	"encoding/json"
	"net/http"
	"sync"

	"evpool/internal"
	"evpool/internal/config"
	"evpool/utility"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const eventsEndpoint = "/events"

// MessagePusher broadcasts every message to the roaming/backend clients
// connected over websocket. It implements internal.MessageService.
type MessagePusher struct {
	conf     *config.Config
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]bool
	send     chan []byte
	mux      sync.Mutex
}

func NewPusher(conf *config.Config) (*MessagePusher, error) {
	if !conf.Pusher.Enabled {
		return nil, nil
	}
	pusher := &MessagePusher{
		conf:     conf,
		upgrader: websocket.Upgrader{},
		clients:  make(map[*websocket.Conn]bool),
		send:     make(chan []byte, 100),
	}
	go pusher.broadcastPump()
	return pusher, nil
}

// Start serves the events endpoint. Blocks, so run on its own goroutine.
func (p *MessagePusher) Start() error {
	router := httprouter.New()
	router.GET(eventsEndpoint, p.handleWsRequest)
	address := p.conf.Pusher.BindIP + ":" + p.conf.Pusher.Port
	return http.ListenAndServe(address, router)
}

func (p *MessagePusher) handleWsRequest(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	p.upgrader.CheckOrigin = func(r *http.Request) bool {
		return true
	}
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p.mux.Lock()
	p.clients[conn] = true
	p.mux.Unlock()
}

func (p *MessagePusher) broadcastPump() {
	for data := range p.send {
		p.mux.Lock()
		for conn := range p.clients {
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = conn.Close()
				delete(p.clients, conn)
			}
		}
		p.mux.Unlock()
	}
}

// Send queues a message for broadcast; it never blocks the caller.
func (p *MessagePusher) Send(msg internal.Message) error {
	envelope := struct {
		Type    string           `json:"type"`
		Payload internal.Message `json:"payload"`
	}{
		Type:    msg.MessageType(),
		Payload: msg,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	select {
	case p.send <- data:
		return nil
	default:
		return utility.Err("pusher queue is full, message dropped")
	}
}
