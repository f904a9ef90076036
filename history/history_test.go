package history

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cepro/linewatch/repository"
	"github.com/cepro/linewatch/telemetry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUploader stands in for the supabase client, recording uploaded rows and
// optionally failing every call.
type fakeUploader struct {
	mu      sync.Mutex
	failing bool
	samples []repository.StoredSample
	events  []repository.StoredRelayEvent
}

func (f *fakeUploader) UploadRows(rows interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("supabase unavailable")
	}
	switch typed := rows.(type) {
	case []repository.StoredSample:
		f.samples = append(f.samples, typed...)
	case []repository.StoredRelayEvent:
		f.events = append(f.events, typed...)
	}
	return nil
}

func (f *fakeUploader) setFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

func (f *fakeUploader) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples), len(f.events)
}

func newTestHistory(t *testing.T, uploader Uploader) *History {
	t.Helper()
	hist, err := New(uploader, filepath.Join(t.TempDir(), "history.sqlite"), 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hist.Run(ctx)

	return hist
}

func TestBufferedRowsAreUploadedOnce(t *testing.T) {
	uploader := &fakeUploader{}
	hist := newTestHistory(t, uploader)

	hist.Samples <- telemetry.Sample{ID: uuid.New(), Time: time.Now(), AverageCurrent: 11.5, ActivePoints: 6}
	hist.RelayEvents <- telemetry.RelayEvent{ID: uuid.New(), Time: time.Now(), RelayID: "dp-2", IsOn: false}

	require.Eventually(t, func() bool {
		samples, events := uploader.counts()
		return samples == 1 && events == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Uploaded rows are deleted from the buffer, so further upload ticks must
	// not resend them.
	time.Sleep(100 * time.Millisecond)
	uploader.mu.Lock()
	defer uploader.mu.Unlock()
	assert.Len(t, uploader.samples, 1)
	require.Len(t, uploader.events, 1)
	assert.Equal(t, "dp-2", uploader.events[0].RelayID)
}

func TestFailedUploadsAreRetried(t *testing.T) {
	uploader := &fakeUploader{failing: true}
	hist := newTestHistory(t, uploader)

	hist.Samples <- telemetry.Sample{ID: uuid.New(), Time: time.Now(), AverageCurrent: 9.8, ActivePoints: 5}

	// Let at least one upload attempt fail while the uploader is down; the row
	// must be retained rather than dropped.
	time.Sleep(100 * time.Millisecond)
	samples, _ := uploader.counts()
	require.Zero(t, samples)

	uploader.setFailing(false)
	require.Eventually(t, func() bool {
		samples, _ := uploader.counts()
		return samples == 1
	}, 2*time.Second, 10*time.Millisecond)

	uploader.mu.Lock()
	defer uploader.mu.Unlock()
	assert.GreaterOrEqual(t, uploader.samples[0].UploadAttemptCount, uint(1), "row comes back via the retry pool")
}
