// SPDX-License-Identifier: MIT
package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "github.com/SoundWareInc/spectral-compressor/internal/log"
)

// WebSocketTransport broadcasts meter frames as JSON to all connected
// clients, rate limited so a fast engine cannot flood the network.
//
// Thread Safety:
// - Mutex-guarded client map
// - Safe for concurrent Send and connection handling
type WebSocketTransport struct {
	clients      map[*websocket.Conn]bool
	clientsMutex sync.Mutex
	upgrader     websocket.Upgrader
	server       *http.Server

	lastSend        time.Time // guarded by clientsMutex
	minSendInterval time.Duration
}

// NewWebSocketTransport starts an HTTP server on the given port serving
// WebSocket upgrades on /meters, then returns the transport. The server
// runs in its own goroutine until Close.
func NewWebSocketTransport(port string) *WebSocketTransport {
	t := &WebSocketTransport{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local monitoring tool, any origin is fine
			},
		},
		minSendInterval: 16 * time.Millisecond, // ~60 Hz
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/meters", t.handleWebSocket)
	t.server = &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		applog.Infof("Transport: meter WebSocket listening on port %s", port)
		if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
			applog.Errorf("Transport: WebSocket server error: %v", err)
		}
	}()

	return t
}

// handleWebSocket upgrades an HTTP connection and registers the client.
// A reader goroutine drains control messages and removes the client
// when the connection dies.
func (t *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Errorf("Transport: WebSocket upgrade error: %v", err)
		return
	}

	t.clientsMutex.Lock()
	t.clients[conn] = true
	clients := len(t.clients)
	t.clientsMutex.Unlock()
	applog.Infof("Transport: meter client connected (%d total)", clients)

	go func() {
		defer t.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (t *WebSocketTransport) removeClient(conn *websocket.Conn) {
	t.clientsMutex.Lock()
	if t.clients[conn] {
		delete(t.clients, conn)
		conn.Close()
	}
	t.clientsMutex.Unlock()
}

// Send broadcasts one meter frame to every connected client. Frames
// arriving faster than the rate limit are dropped, not queued; meter
// data is only interesting fresh.
func (t *WebSocketTransport) Send(frame MeterFrame) error {
	t.clientsMutex.Lock()
	defer t.clientsMutex.Unlock()

	now := time.Now()
	if now.Sub(t.lastSend) < t.minSendInterval {
		return nil
	}
	t.lastSend = now
	for conn := range t.clients {
		if err := conn.WriteJSON(frame); err != nil {
			delete(t.clients, conn)
			conn.Close()
		}
	}
	return nil
}

// Close disconnects all clients and shuts the server down.
func (t *WebSocketTransport) Close() error {
	t.clientsMutex.Lock()
	for conn := range t.clients {
		conn.Close()
		delete(t.clients, conn)
	}
	t.clientsMutex.Unlock()
	return t.server.Close()
}

var _ Transport = (*WebSocketTransport)(nil)
