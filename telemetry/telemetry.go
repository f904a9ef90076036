package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Sample holds one derived average-current measurement across the distribution
// points whose relay was on at the time.
type Sample struct {
	ID             uuid.UUID
	Time           time.Time
	AverageCurrent float64
	ActivePoints   int
}

// RelayEvent records an operator toggling a relay on or off.
type RelayEvent struct {
	ID      uuid.UUID
	Time    time.Time
	RelayID string
	IsOn    bool
}
