package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cepro/linewatch/viewmodel"
	"github.com/gorilla/websocket"
)

// feedClient maintains a websocket connection to the server's realtime feed,
// reconnecting with backoff, and keeps the latest snapshot for the console to
// render on demand.
type feedClient struct {
	host string

	mu        sync.Mutex
	conn      *websocket.Conn
	snapshot  viewmodel.Snapshot
	connected bool
}

func newFeedClient(host string) *feedClient {
	return &feedClient{host: host}
}

// run dials the feed and consumes snapshots until ctx is cancelled. Connection
// drops are retried with exponential backoff.
func (f *feedClient) run(ctx context.Context) {
	const (
		baseRetryDelay = 2 * time.Second
		maxRetryDelay  = 60 * time.Second
	)

	u := url.URL{Scheme: "ws", Host: f.host, Path: "/ws"}
	retryCount := 0

	for {
		if ctx.Err() != nil {
			return
		}

		if retryCount > 0 {
			retryDelay := time.Duration(1<<retryCount) * baseRetryDelay
			if retryDelay > maxRetryDelay {
				retryDelay = maxRetryDelay
			}
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
		}

		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		conn, _, err := dialer.Dial(u.String(), nil)
		if err != nil {
			slog.Warn("Connection failed", "host", f.host, "error", err)
			retryCount++
			continue
		}
		retryCount = 0

		f.mu.Lock()
		f.conn = conn
		f.connected = true
		f.mu.Unlock()
		slog.Info("Connected to linewatch feed", "host", f.host)

		f.consume(ctx, conn)

		f.mu.Lock()
		f.conn = nil
		f.connected = false
		f.mu.Unlock()
		conn.Close()
	}
}

func (f *feedClient) consume(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("Feed connection lost", "error", err)
			return
		}
		var snapshot viewmodel.Snapshot
		err = json.Unmarshal(raw, &snapshot)
		if err != nil {
			slog.Debug("Ignoring malformed snapshot", "error", err)
			continue
		}
		f.mu.Lock()
		f.snapshot = snapshot
		f.mu.Unlock()
	}
}

func (f *feedClient) latest() (viewmodel.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.connected
}

// send writes a command message to the server. Fire-and-forget: an error just
// means the connection is down, and the next reconnect will resync state anyway.
func (f *feedClient) send(v any) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()

	if conn == nil {
		slog.Warn("Not connected, command dropped")
		return
	}
	err := conn.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to send command", "error", err)
	}
}
