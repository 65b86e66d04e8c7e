package gatewaytest

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// pollHold is how long /poll/events waits for traffic before returning an
// empty batch.
const pollHold = 500 * time.Millisecond

func (g *Gateway) authorized(r *http.Request) bool {
	return r.URL.Query().Get("token") == g.token
}

// ---- WebSocket endpoint ----

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	if !g.wsEnabled {
		http.NotFound(w, r)
		return
	}
	if !g.authorized(r) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	id := uuid.New().String()

	g.mu.Lock()
	g.wsClients[id] = client
	g.mu.Unlock()

	go g.wsWriteLoop(client)
	g.wsReadLoop(client)

	g.mu.Lock()
	delete(g.wsClients, id)
	g.mu.Unlock()
	close(client.done)
	_ = conn.Close()
}

func (g *Gateway) wsWriteLoop(c *wsClient) {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (g *Gateway) wsReadLoop(c *wsClient) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		g.handleFrame(data, func(frame []byte) {
			select {
			case c.send <- frame:
			default:
			}
		})
	}
}

// ---- long-poll endpoints ----

func (g *Gateway) handlePollConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !g.authorized(r) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	cid := r.URL.Query().Get("cid")
	if cid == "" {
		http.Error(w, "missing cid", http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	if _, exists := g.pollClients[cid]; !exists {
		g.pollClients[cid] = make(chan []byte, 64)
	}
	g.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handlePollEvents(w http.ResponseWriter, r *http.Request) {
	if !g.authorized(r) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	cid := r.URL.Query().Get("cid")
	g.mu.Lock()
	queue, exists := g.pollClients[cid]
	g.mu.Unlock()
	if !exists {
		http.NotFound(w, r)
		return
	}

	batch := make([]json.RawMessage, 0, 8)

	// Hold for the first frame, then drain whatever else is ready.
	select {
	case frame := <-queue:
		batch = append(batch, frame)
	drain:
		for {
			select {
			case frame := <-queue:
				batch = append(batch, frame)
			default:
				break drain
			}
		}
	case <-time.After(pollHold):
	case <-r.Context().Done():
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(batch)
}

func (g *Gateway) handlePollEmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !g.authorized(r) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	cid := r.URL.Query().Get("cid")
	g.mu.Lock()
	queue, exists := g.pollClients[cid]
	g.mu.Unlock()
	if !exists {
		http.NotFound(w, r)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	g.handleFrame(data, func(frame []byte) {
		select {
		case queue <- frame:
		default:
		}
	})

	w.WriteHeader(http.StatusNoContent)
}
