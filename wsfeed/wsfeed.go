// Package wsfeed is the realtime read path for dashboards: a websocket feed that
// pushes the full dashboard snapshot on every state change, and accepts operator
// commands back from connected clients.
package wsfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cepro/linewatch/viewmodel"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// thresholdDebounceWindow collapses rapid threshold edits from one client into a
// single store write.
const thresholdDebounceWindow = 500 * time.Millisecond

// writeTimeout bounds every push to a client. A peer that stops draining its
// socket errors out and is removed instead of stalling the broadcast loop.
const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the dashboard is served from a different origin on the LAN
	},
}

// client is one connected dashboard session. Writes to the connection are
// serialised through mu; threshold edits are debounced per client.
type client struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	threshold *viewmodel.Debouncer
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// command is what clients send back over the feed.
type command struct {
	Type  string  `json:"type"`
	ID    string  `json:"id"`
	IsOn  bool    `json:"isOn"`
	Value float64 `json:"value"`
}

// Feed fans view-model snapshots out to any number of websocket clients.
type Feed struct {
	vm *viewmodel.ViewModel

	mu      sync.RWMutex
	clients map[*client]bool
}

func New(vm *viewmodel.ViewModel) *Feed {
	return &Feed{
		vm:      vm,
		clients: make(map[*client]bool),
	}
}

// Register attaches the feed's websocket route to the given router.
func (f *Feed) Register(r *mux.Router) {
	r.HandleFunc("/ws", f.handleWS)
}

// Run broadcasts every snapshot from updates until ctx is cancelled.
func (f *Feed) Run(ctx context.Context, updates <-chan viewmodel.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot := <-updates:
			f.broadcast(snapshot)
		}
	}
}

func (f *Feed) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn}
	c.threshold = viewmodel.NewDebouncer(thresholdDebounceWindow, f.vm.RequestThresholdChange)

	f.mu.Lock()
	f.clients[c] = true
	f.mu.Unlock()
	slog.Info("Dashboard client connected", "remote", conn.RemoteAddr())

	// Send the current snapshot immediately so the client has something to
	// render before the next state change.
	err = c.writeJSON(f.vm.Snapshot())
	if err != nil {
		f.remove(c)
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			f.remove(c)
			return
		}
		var cmd command
		err = json.Unmarshal(raw, &cmd)
		if err != nil {
			slog.Debug("Ignoring malformed client command", "error", err)
			continue
		}
		f.dispatch(c, cmd)
	}
}

func (f *Feed) dispatch(c *client, cmd command) {
	switch cmd.Type {
	case "toggleRelay":
		f.vm.RequestRelayToggle(cmd.ID, cmd.IsOn)
	case "setThreshold":
		c.threshold.Set(cmd.Value)
	default:
		slog.Debug("Ignoring unknown client command", "type", cmd.Type)
	}
}

func (f *Feed) broadcast(snapshot viewmodel.Snapshot) {
	f.mu.RLock()
	clients := make([]*client, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.mu.RUnlock()

	for _, c := range clients {
		err := c.writeJSON(snapshot)
		if err != nil {
			f.remove(c)
		}
	}
}

func (f *Feed) remove(c *client) {
	f.mu.Lock()
	_, ok := f.clients[c]
	delete(f.clients, c)
	f.mu.Unlock()

	if ok {
		c.threshold.Stop()
		c.conn.Close()
		slog.Info("Dashboard client disconnected", "remote", c.conn.RemoteAddr())
	}
}
