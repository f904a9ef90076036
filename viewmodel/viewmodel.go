// Package viewmodel bridges the store's change feed to the presentation layer:
// it holds the latest dashboard snapshot, derives the rolling average-current
// series and exposes the two operator commands.
package viewmodel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cepro/linewatch/dashboard"
	"github.com/cepro/linewatch/docstore"
	"github.com/cepro/linewatch/telemetry"
	"github.com/google/uuid"
)

// chartWindow caps the trailing average-current series. Oldest entries drop
// first.
const chartWindow = 20

// Snapshot is what the presentation layer renders: the full dashboard state plus
// the derived chart series.
type Snapshot struct {
	State dashboard.State        `json:"state"`
	Chart []dashboard.ChartPoint `json:"chart"`
}

// Config wires a ViewModel to its collaborators. Updates, Samples and
// RelayEvents are optional; a nil channel just disables that output.
type Config struct {
	Store   docstore.Store
	Service *dashboard.Service

	// Updates receives a snapshot on every state change. Must be buffered with
	// capacity at least 1: the send conflates, so a snapshot the consumer has
	// not drained yet is displaced by the new one, never queued behind it.
	Updates chan Snapshot

	// Samples receives one average-current sample per state change, for history.
	Samples chan<- telemetry.Sample

	// RelayEvents receives a record of every relay toggle issued through this
	// view model.
	RelayEvents chan<- telemetry.RelayEvent
}

type ViewModel struct {
	config Config

	mu    sync.Mutex
	state dashboard.State
	chart []dashboard.ChartPoint
}

func New(config Config) *ViewModel {
	return &ViewModel{config: config}
}

// Run subscribes to the dashboard document and consumes change notifications
// until ctx is cancelled. The subscription is released before Run returns, and no
// notification is processed after teardown begins.
func (v *ViewModel) Run(ctx context.Context) {
	sub := v.config.Store.Subscribe(dashboard.Path)
	defer sub.Close()

	// Seeds the document if this is the very first start. The resulting write
	// arrives through the subscription like any other; here we only take the
	// initial render state from it.
	initial := v.config.Service.Get(ctx)
	v.mu.Lock()
	v.state = initial
	v.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case doc, ok := <-sub.C:
			if !ok {
				return
			}
			v.apply(doc)
		}
	}
}

// apply replaces the held state wholesale with the pushed snapshot and appends
// one derived chart point.
func (v *ViewModel) apply(doc docstore.Document) {
	state, err := dashboard.StateFromDocument(doc)
	if err != nil {
		slog.Error("Failed to decode state notification", "error", err)
		return
	}

	now := time.Now()
	avg := state.AverageCurrent()

	v.mu.Lock()
	v.state = state
	v.chart = append(v.chart, dashboard.ChartPoint{Time: now, AverageCurrent: avg})
	if len(v.chart) > chartWindow {
		v.chart = v.chart[len(v.chart)-chartWindow:]
	}
	snapshot := v.snapshotLocked()
	v.mu.Unlock()

	if v.config.Updates != nil {
		select {
		case v.config.Updates <- snapshot:
		default:
			select {
			case <-v.config.Updates:
			default:
			}
			v.config.Updates <- snapshot
		}
	}

	if v.config.Samples != nil {
		active := 0
		for _, dp := range state.DistributionPoints {
			if dp.IsOn {
				active++
			}
		}
		sample := telemetry.Sample{ID: uuid.New(), Time: now, AverageCurrent: avg, ActivePoints: active}
		select {
		case v.config.Samples <- sample:
		default:
			slog.Warn("History sample dropped, buffer full")
		}
	}
}

// Snapshot returns the current state and chart series, for consumers that attach
// between notifications.
func (v *ViewModel) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *ViewModel) snapshotLocked() Snapshot {
	chart := make([]dashboard.ChartPoint, len(v.chart))
	copy(chart, v.chart)
	return Snapshot{State: v.state, Chart: chart}
}

// RequestRelayToggle asks the state service to flip a relay. Fire-and-forget:
// the write is not awaited or cancelable, and failures are logged rather than
// surfaced to the caller.
func (v *ViewModel) RequestRelayToggle(id string, isOn bool) {
	go func() {
		err := v.config.Service.SetRelay(context.Background(), id, isOn)
		if err != nil {
			slog.Error("Relay toggle failed", "relay_id", id, "error", err)
			return
		}
		if v.config.RelayEvents != nil {
			event := telemetry.RelayEvent{ID: uuid.New(), Time: time.Now(), RelayID: id, IsOn: isOn}
			select {
			case v.config.RelayEvents <- event:
			default:
				slog.Warn("Relay event dropped, buffer full")
			}
		}
	}()
}

// RequestThresholdChange asks the state service to update the safety threshold.
// Fire-and-forget like RequestRelayToggle. Callers binding this to a text input
// are expected to debounce rapid successive edits (see Debouncer) - the view
// model itself does not.
func (v *ViewModel) RequestThresholdChange(value float64) {
	go func() {
		err := v.config.Service.SetThreshold(context.Background(), value)
		if err != nil {
			slog.Error("Threshold update failed", "value", value, "error", err)
		}
	}()
}
