// Package ingest is the write path from external telemetry (the monitoring
// hardware in the field) into the shared dashboard state. It is pure data
// intake: no alerting or threshold evaluation happens here.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cepro/linewatch/dashboard"
	"github.com/cepro/linewatch/docstore"
)

// ErrBadPayload is returned when the top-level payload does not contain a
// recognizable distributionPoints field at all. Malformed individual entries are
// never this error - they are skipped.
var ErrBadPayload = errors.New("payload has no usable distributionPoints field")

// Reading is one current measurement for a distribution point.
type Reading struct {
	ID      string
	Current float64
}

// payload is the top-level wire shape. The distributionPoints field is kept raw
// because two encodings are in the field (see ParsePayload).
type payload struct {
	DistributionPoints json.RawMessage `json:"distributionPoints"`
}

// ParsePayload extracts the readings from a telemetry request body. Two wire
// shapes are accepted and mean the same thing: the current one, an array of
// id-bearing records, and the legacy one, a mapping keyed by id. Entries with a
// missing id or a non-numeric current are dropped. Firmware in the field speaks
// both encodings, so neither can be retired.
func ParsePayload(body []byte) ([]Reading, error) {
	var p payload
	err := json.Unmarshal(body, &p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	if len(p.DistributionPoints) == 0 || bytes.Equal(p.DistributionPoints, []byte("null")) {
		return nil, ErrBadPayload
	}

	var entries []any
	if json.Unmarshal(p.DistributionPoints, &entries) == nil {
		readings := make([]Reading, 0, len(entries))
		for _, e := range entries {
			entry, ok := e.(map[string]any)
			if !ok {
				continue
			}
			id, okID := entry["id"].(string)
			current, okCurrent := entry["current"].(float64)
			if !okID || !okCurrent {
				continue
			}
			readings = append(readings, Reading{ID: id, Current: current})
		}
		return readings, nil
	}

	var legacy map[string]any
	if json.Unmarshal(p.DistributionPoints, &legacy) == nil {
		readings := make([]Reading, 0, len(legacy))
		for id, e := range legacy {
			entry, ok := e.(map[string]any)
			if !ok {
				continue
			}
			current, ok := entry["current"].(float64)
			if !ok {
				continue
			}
			readings = append(readings, Reading{ID: id, Current: current})
		}
		return readings, nil
	}

	return nil, ErrBadPayload
}

// Apply locates each reading's distribution point in the stored dashboard and
// updates only its current field, then persists the whole batch with a single
// field-granular merge of distributionPoints. Readings for unknown ids are
// skipped, never rejected. A concurrent change to an unrelated field (a threshold
// update, say) between this read and write survives the merge.
//
// Returns docstore.ErrNotFound when the dashboard document has not been seeded
// yet - ingestion never seeds.
func Apply(ctx context.Context, store docstore.Store, readings []Reading) (int, error) {
	doc, err := store.Get(ctx, dashboard.Path)
	if err != nil {
		return 0, err
	}
	state, err := dashboard.StateFromDocument(doc)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, reading := range readings {
		dp := state.Point(reading.ID)
		if dp == nil {
			slog.Debug("Reading for unknown distribution point skipped", "dp_id", reading.ID)
			continue
		}
		dp.Current = reading.Current
		applied++
	}

	err = store.Merge(ctx, dashboard.Path, docstore.Document{
		"distributionPoints": state.DistributionPoints,
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}
