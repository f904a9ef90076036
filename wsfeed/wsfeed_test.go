package wsfeed

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cepro/linewatch/dashboard"
	"github.com/cepro/linewatch/docstore"
	"github.com/cepro/linewatch/viewmodel"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startFeed(t *testing.T) (*httptest.Server, *docstore.Memory, *dashboard.Service) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := docstore.NewMemory()
	service := dashboard.NewService(store)
	updates := make(chan viewmodel.Snapshot, 1)

	vm := viewmodel.New(viewmodel.Config{Store: store, Service: service, Updates: updates})
	go vm.Run(ctx)

	feed := New(vm)
	go feed.Run(ctx, updates)

	router := mux.NewRouter()
	feed.Register(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	// Wait for the seed write to land so clients connect to a populated feed.
	require.Eventually(t, func() bool {
		return len(vm.Snapshot().State.DistributionPoints) == 7
	}, 2*time.Second, 10*time.Millisecond)

	return server, store, service
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSnapshotOnConnect(t *testing.T) {
	server, _, _ := startFeed(t)
	conn := dial(t, server)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snapshot viewmodel.Snapshot
	require.NoError(t, conn.ReadJSON(&snapshot))

	assert.Len(t, snapshot.State.DistributionPoints, 7)
	assert.Equal(t, 20.0, snapshot.State.SafetyThreshold)
}

func TestStateChangesArePushed(t *testing.T) {
	server, store, _ := startFeed(t)
	conn := dial(t, server)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first viewmodel.Snapshot
	require.NoError(t, conn.ReadJSON(&first))

	require.NoError(t, store.Merge(context.Background(), dashboard.Path, docstore.Document{"safetyThreshold": 25.0}))

	// The next push must carry the merged value; conflation may skip
	// intermediates but never the latest.
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var snapshot viewmodel.Snapshot
		require.NoError(t, conn.ReadJSON(&snapshot))
		if snapshot.State.SafetyThreshold == 25.0 {
			break
		}
	}
}

func TestBroadcastSurvivesDeadClient(t *testing.T) {
	server, store, _ := startFeed(t)

	dead := dial(t, server)
	live := dial(t, server)

	live.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first viewmodel.Snapshot
	require.NoError(t, live.ReadJSON(&first))

	// Kill one client's connection out from under the feed; the write to it
	// fails and it is dropped, while the remaining client keeps receiving.
	require.NoError(t, dead.Close())

	require.NoError(t, store.Merge(context.Background(), dashboard.Path, docstore.Document{"safetyThreshold": 26.0}))

	live.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var snapshot viewmodel.Snapshot
		require.NoError(t, live.ReadJSON(&snapshot))
		if snapshot.State.SafetyThreshold == 26.0 {
			break
		}
	}
}

func TestToggleCommandFromClient(t *testing.T) {
	server, _, service := startFeed(t)
	conn := dial(t, server)

	err := conn.WriteJSON(map[string]any{"type": "toggleRelay", "id": "dp-4", "isOn": false})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state := service.Get(context.Background())
		dp := state.Point("dp-4")
		return dp != nil && !dp.IsOn
	}, 2*time.Second, 10*time.Millisecond)
}

func TestThresholdCommandIsDebounced(t *testing.T) {
	server, _, service := startFeed(t)
	conn := dial(t, server)

	for _, value := range []float64{21, 22, 23, 24, 25} {
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "setThreshold", "value": value}))
	}

	require.Eventually(t, func() bool {
		return service.Get(context.Background()).SafetyThreshold == 25.0
	}, 3*time.Second, 10*time.Millisecond)
}
