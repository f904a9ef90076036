package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/cepro/linewatch/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSeedsAbsentDocument(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	service := NewService(store)

	state := service.Get(ctx)

	assert.Equal(t, "transformer-1", state.Transformer.ID)
	assert.True(t, state.Transformer.Relay.IsOn)
	require.Len(t, state.DistributionPoints, 7)

	expectedCurrents := []float64{11.63, 10.54, 10.24, 16.55, 12.56, 9.78, 8.42}
	expectedHouses := []int{5, 7, 4, 6, 8, 3, 5}
	for i, dp := range state.DistributionPoints {
		assert.Equal(t, expectedCurrents[i], dp.Current, "current of %s", dp.ID)
		assert.Equal(t, expectedHouses[i], dp.HousesConnected, "houses of %s", dp.ID)
		assert.True(t, dp.IsOn, "relay of %s", dp.ID)
	}
	assert.Equal(t, 20.0, state.SafetyThreshold)
	assert.Empty(t, state.Alerts)
}

func TestMigrationBackfillsThresholdIdempotently(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	service := NewService(store)

	// A document written before the threshold field existed.
	seeded, err := Seed().Document()
	require.NoError(t, err)
	delete(seeded, "safetyThreshold")
	delete(seeded, "alerts")
	require.NoError(t, store.Set(ctx, Path, seeded))

	first := service.Get(ctx)
	assert.Equal(t, 20.0, first.SafetyThreshold)
	assert.Empty(t, first.Alerts)

	afterFirst, err := store.Get(ctx, Path)
	require.NoError(t, err)

	second := service.Get(ctx)
	assert.Equal(t, first, second)

	afterSecond, err := store.Get(ctx, Path)
	require.NoError(t, err)
	assert.Equal(t, afterFirst, afterSecond, "second get must not change the stored document")
}

func TestMigrationAppendsMissingPoint(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	service := NewService(store)

	state := Seed()
	state.DistributionPoints = state.DistributionPoints[:6] // pre dp-7 topology
	doc, err := state.Document()
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, Path, doc))

	migrated := service.Get(ctx)
	require.Len(t, migrated.DistributionPoints, 7)
	dp7 := migrated.DistributionPoints[6]
	assert.Equal(t, "dp-7", dp7.ID)
	assert.Equal(t, 8.42, dp7.Current)
	assert.Equal(t, 5, dp7.HousesConnected)
	assert.True(t, dp7.IsOn)
}

func TestSetRelayResolvesTransformerBeforePoints(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	service := NewService(store)

	// A distribution point that coincidentally shares the transformer relay's id
	// must not shadow it.
	state := Seed()
	state.DistributionPoints[0].ID = "relay-t1"
	doc, err := state.Document()
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, Path, doc))

	require.NoError(t, service.SetRelay(ctx, "relay-t1", false))

	got := service.Get(ctx)
	assert.False(t, got.Transformer.Relay.IsOn)
	assert.True(t, got.DistributionPoints[0].IsOn, "shadowing point must be untouched")
}

func TestSetRelayFlipsOnlyNamedPoint(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	service := NewService(store)
	service.Get(ctx) // seed

	require.NoError(t, service.SetRelay(ctx, "dp-3", false))

	got := service.Get(ctx)
	assert.True(t, got.Transformer.Relay.IsOn)
	for _, dp := range got.DistributionPoints {
		if dp.ID == "dp-3" {
			assert.False(t, dp.IsOn)
		} else {
			assert.True(t, dp.IsOn, "relay of %s", dp.ID)
		}
	}
}

func TestSetRelayBackfillsPreThresholdDocument(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	service := NewService(store)

	// A document written before the threshold field existed, toggled before any
	// Get has had a chance to migrate it. The whole-document write must not
	// materialise zero values for the missing fields.
	seeded, err := Seed().Document()
	require.NoError(t, err)
	delete(seeded, "safetyThreshold")
	delete(seeded, "alerts")
	require.NoError(t, store.Set(ctx, Path, seeded))

	require.NoError(t, service.SetRelay(ctx, "dp-3", false))

	doc, err := store.Get(ctx, Path)
	require.NoError(t, err)
	assert.Equal(t, 20.0, doc["safetyThreshold"], "stored document carries the back-filled default")

	got := service.Get(ctx)
	assert.Equal(t, 20.0, got.SafetyThreshold)
	assert.Empty(t, got.Alerts)
	dp := got.Point("dp-3")
	require.NotNil(t, dp)
	assert.False(t, dp.IsOn)
}

func TestSetRelayUnknownIDIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	service := NewService(store)
	service.Get(ctx) // seed

	before, err := store.Get(ctx, Path)
	require.NoError(t, err)

	require.NoError(t, service.SetRelay(ctx, "does-not-exist", true))

	after, err := store.Get(ctx, Path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSetThresholdMergesOnlyThreshold(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	service := NewService(store)
	service.Get(ctx) // seed

	require.NoError(t, service.SetThreshold(ctx, 42.5))

	got := service.Get(ctx)
	assert.Equal(t, 42.5, got.SafetyThreshold)
	assert.Len(t, got.DistributionPoints, 7, "other fields must be untouched")
}

func TestSetThresholdBeforeSeeding(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	service := NewService(store)

	err := service.SetThreshold(ctx, 30)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestGetServesFallbackOnStoreFailure(t *testing.T) {
	service := NewService(&brokenStore{})

	state := service.Get(context.Background())

	assert.False(t, state.Transformer.Relay.IsOn, "fallback reports the relay off")
	assert.Empty(t, state.DistributionPoints)
	assert.Equal(t, DefaultSafetyThreshold, state.SafetyThreshold)
	assert.Empty(t, state.Alerts)
}

// brokenStore fails every operation, standing in for a store with no connectivity.
type brokenStore struct{}

func (b *brokenStore) Get(ctx context.Context, path string) (docstore.Document, error) {
	return nil, errors.New("connection refused")
}

func (b *brokenStore) Set(ctx context.Context, path string, doc docstore.Document) error {
	return errors.New("connection refused")
}

func (b *brokenStore) Merge(ctx context.Context, path string, fields docstore.Document) error {
	return errors.New("connection refused")
}

func (b *brokenStore) Subscribe(path string) *docstore.Subscription {
	return nil
}
