// Package history streams derived dashboard telemetry (average-current samples
// and relay events) to Supabase, buffering on disk so nothing is lost while the
// connection is down. None of this sits on the dashboard's hot path.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/cepro/linewatch/repository"
	"github.com/cepro/linewatch/telemetry"
)

// uploadChunkLimit defines how many rows we upload in one supabase HTTP request.
const uploadChunkLimit = 100

// Uploader sends a batch of buffered rows ([]repository.StoredSample or
// []repository.StoredRelayEvent) to the offsite store. *supabase.Client is the
// production implementation.
type Uploader interface {
	UploadRows(rows interface{}) error
}

// History buffers samples and relay events in a local SQLite database before
// uploading them to Supabase. Put new rows onto the exported channels.
type History struct {
	Samples     chan telemetry.Sample
	RelayEvents chan telemetry.RelayEvent

	repository     *repository.Repository
	uploader       Uploader
	uploadInterval time.Duration
}

func New(uploader Uploader, bufferRepositoryFilename string, uploadInterval time.Duration) (*History, error) {

	repo, err := repository.New(bufferRepositoryFilename)
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}

	return &History{
		Samples:        make(chan telemetry.Sample, 25), // a small buffer to allow SQLite to catch up in case the disk is slow
		RelayEvents:    make(chan telemetry.RelayEvent, 25),
		repository:     repo,
		uploader:       uploader,
		uploadInterval: uploadInterval,
	}, nil
}

// Run loops forever waiting for samples or relay events, persisting them locally
// and periodically attempting an upload.
func (h *History) Run(ctx context.Context) {

	uploadTicker := time.NewTicker(h.uploadInterval)
	defer uploadTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-h.Samples:
			err := h.repository.AddSample(sample)
			if err != nil {
				slog.Error("failed to persist sample", "error", err)
			}

		case event := <-h.RelayEvents:
			err := h.repository.AddRelayEvent(event)
			if err != nil {
				slog.Error("failed to persist relay event", "error", err)
			}

		case <-uploadTicker.C:
			h.attemptUpload()
		}
	}
}

// attemptUpload attempts to upload the buffered rows from the repository into
// Supabase. Fresh rows (never failed) go first, then rows that have failed an
// upload before.
func (h *History) attemptUpload() {

	freshSamples, err := h.repository.GetSamples(uploadChunkLimit, true)
	if err != nil {
		slog.Error("failed to query fresh samples", "error", err)
	} else if len(freshSamples) > 0 {
		err = h.handleRows(freshSamples)
		if err != nil {
			slog.Error("failed to handle fresh samples", "error", err)
		}
	}
	freshEvents, err := h.repository.GetRelayEvents(uploadChunkLimit, true)
	if err != nil {
		slog.Error("failed to query fresh relay events", "error", err)
	} else if len(freshEvents) > 0 {
		err = h.handleRows(freshEvents)
		if err != nil {
			slog.Error("failed to handle fresh relay events", "error", err)
		}
	}

	oldSamples, err := h.repository.GetSamples(uploadChunkLimit, false)
	if err != nil {
		slog.Error("failed to query old samples", "error", err)
	} else if len(oldSamples) > 0 {
		err = h.handleRows(oldSamples)
		if err != nil {
			slog.Error("failed to handle old samples", "error", err)
		}
	}
	oldEvents, err := h.repository.GetRelayEvents(uploadChunkLimit, false)
	if err != nil {
		slog.Error("failed to query old relay events", "error", err)
	} else if len(oldEvents) > 0 {
		err = h.handleRows(oldEvents)
		if err != nil {
			slog.Error("failed to handle old relay events", "error", err)
		}
	}
}

// handleRows attempts to upload the given rows. If successful, it deletes them
// from the buffer, if unsuccessful, it increments the 'upload attempt count'
// column and leaves them for another time.
func (h *History) handleRows(rows interface{}) error {

	uploadErr := h.uploader.UploadRows(rows)
	if uploadErr != nil {
		uploadErr = fmt.Errorf("upload failed: %w", uploadErr)
		errInc := h.repository.IncrementUploadAttemptCount(rows)
		if errInc != nil {
			return fmt.Errorf("%w: increment upload attempt count: %w", uploadErr, errInc)
		}
		return uploadErr
	}

	deleteErr := h.repository.DeleteRows(rows)
	if deleteErr != nil {
		return fmt.Errorf("delete rows: %w", deleteErr)
	}

	slog.Info("Uploaded history rows", "db_records", reflect.ValueOf(rows).Len())

	return nil
}
