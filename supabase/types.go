package supabase

import (
	"time"

	"github.com/cepro/linewatch/repository"
	"github.com/google/uuid"
)

const (
	sampleTableName     = "lw_current_samples"
	relayEventTableName = "lw_relay_events"
)

// supabaseSample holds the json encoding schema for an average-current sample in supabase.
type supabaseSample struct {
	ID             uuid.UUID `json:"id"`
	Time           time.Time `json:"time"`
	AverageCurrent float64   `json:"average_current"`
	ActivePoints   int       `json:"active_points"`
}

// supabaseRelayEvent holds the json encoding schema for a relay toggle event in supabase.
type supabaseRelayEvent struct {
	ID      uuid.UUID `json:"id"`
	Time    time.Time `json:"time"`
	RelayID string    `json:"relay_id"`
	IsOn    bool      `json:"is_on"`
}

// convertRowsForSupabase returns the equivalent "supabase type" for the given history
// rows (which include supabase json tags) and the associated supabase table name.
func convertRowsForSupabase(rows interface{}) (interface{}, string) {
	switch rowsTyped := rows.(type) {
	case []repository.StoredSample:
		converted := make([]supabaseSample, 0, len(rowsTyped))
		for _, row := range rowsTyped {
			converted = append(converted, supabaseSample{
				ID:             row.ID,
				Time:           row.Time,
				AverageCurrent: row.AverageCurrent,
				ActivePoints:   row.ActivePoints,
			})
		}
		return converted, sampleTableName
	case []repository.StoredRelayEvent:
		converted := make([]supabaseRelayEvent, 0, len(rowsTyped))
		for _, row := range rowsTyped {
			converted = append(converted, supabaseRelayEvent{
				ID:      row.ID,
				Time:    row.Time,
				RelayID: row.RelayID,
				IsOn:    row.IsOn,
			})
		}
		return converted, relayEventTableName
	}
	return nil, ""
}
