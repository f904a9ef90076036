package repository

import "github.com/cepro/linewatch/telemetry"

// StoredSample represents an average-current sample that is persisted to the
// SQLite database, and includes a count of upload attempts.
type StoredSample struct {
	telemetry.Sample
	UploadAttemptCount uint
}

// StoredRelayEvent represents a relay toggle event that is persisted to the
// SQLite database, and includes a count of upload attempts.
type StoredRelayEvent struct {
	telemetry.RelayEvent
	UploadAttemptCount uint
}

func newStoredSample(sample telemetry.Sample) StoredSample {
	return StoredSample{
		Sample:             sample,
		UploadAttemptCount: 0,
	}
}

func newStoredRelayEvent(event telemetry.RelayEvent) StoredRelayEvent {
	return StoredRelayEvent{
		RelayEvent:         event,
		UploadAttemptCount: 0,
	}
}
