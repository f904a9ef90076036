package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cepro/linewatch/docstore"
)

// Document field names, as persisted. The migration checklist tests for their
// presence on the raw document rather than on the typed State, because a missing
// field and a zero value must be told apart.
const (
	fieldThreshold = "safetyThreshold"
	fieldAlerts    = "alerts"
	fieldPoints    = "distributionPoints"
)

// Service owns the lifecycle of the singleton dashboard document: seeding it on
// first read, back-filling fields added over time, and applying the two operator
// mutations (relay toggle and threshold update).
//
// Initialization is not transactional: two concurrent first-readers can both
// observe an absent document and both seed it, with the later whole-document
// write winning. Accepted for the expected single-operator usage.
type Service struct {
	store docstore.Store
	path  string
}

func NewService(store docstore.Store) *Service {
	return &Service{
		store: store,
		path:  Path,
	}
}

// Get ensures the dashboard document exists and is fully migrated, then returns
// it. It never fails: on any store error the safe fallback state is returned so
// the render path keeps working.
func (s *Service) Get(ctx context.Context) State {
	doc, err := s.ensure(ctx)
	if err != nil {
		slog.Error("Failed to load dashboard state, serving fallback", "error", err)
		return Fallback()
	}
	state, err := StateFromDocument(doc)
	if err != nil {
		slog.Error("Failed to decode dashboard state, serving fallback", "error", err)
		return Fallback()
	}
	return state
}

// SetRelay flips the relay with the given id. The transformer relay is checked
// first, then the distribution points; at most one entity is updated. An unknown
// id is a silent no-op - ids are caller-supplied and may lag the canonical
// topology.
//
// The write replaces the whole document with the mutated snapshot, so it is
// last-write-wins at document granularity against concurrent writers.
func (s *Service) SetRelay(ctx context.Context, id string, isOn bool) error {
	doc, err := s.store.Get(ctx, s.path)
	if err != nil {
		return fmt.Errorf("read dashboard: %w", err)
	}

	// The whole-document write below persists every field, so a document that
	// predates the threshold/alerts fields must be back-filled first or the
	// typed round-trip would materialise their zero values.
	fields, err := migrationFields(doc)
	if err != nil {
		return err
	}
	for k, v := range fields {
		doc[k] = v
	}

	state, err := StateFromDocument(doc)
	if err != nil {
		return err
	}

	if state.Transformer.Relay.ID == id {
		state.Transformer.Relay.IsOn = isOn
	} else if dp := state.Point(id); dp != nil {
		dp.IsOn = isOn
	} else {
		slog.Debug("Relay toggle for unknown id ignored", "relay_id", id)
		return nil
	}

	updated, err := state.Document()
	if err != nil {
		return err
	}
	err = s.store.Set(ctx, s.path, updated)
	if err != nil {
		return fmt.Errorf("write dashboard: %w", err)
	}
	return nil
}

// SetThreshold updates only the safety threshold field, leaving every other field
// untouched even under concurrent writes. No range policy is enforced here - that
// belongs to the caller.
func (s *Service) SetThreshold(ctx context.Context, value float64) error {
	err := s.store.Merge(ctx, s.path, docstore.Document{fieldThreshold: value})
	if err != nil {
		return fmt.Errorf("write threshold: %w", err)
	}
	return nil
}

// ensure returns the current document, seeding it when absent and applying the
// additive migration checklist when stale. The returned document always reflects
// the fully migrated value, never an intermediate one.
func (s *Service) ensure(ctx context.Context) (docstore.Document, error) {
	doc, err := s.store.Get(ctx, s.path)
	if errors.Is(err, docstore.ErrNotFound) {
		seeded, err := Seed().Document()
		if err != nil {
			return nil, err
		}
		err = s.store.Set(ctx, s.path, seeded)
		if err != nil {
			return nil, fmt.Errorf("seed dashboard: %w", err)
		}
		slog.Info("Seeded dashboard document", "path", s.path)
		return seeded, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dashboard: %w", err)
	}

	fields, err := migrationFields(doc)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return doc, nil
	}

	err = s.store.Merge(ctx, s.path, fields)
	if err != nil {
		return nil, fmt.Errorf("migrate dashboard: %w", err)
	}
	slog.Info("Back-filled dashboard fields", "fields", len(fields))
	for k, v := range fields {
		doc[k] = v
	}
	return doc, nil
}

// migrationFields is the versioned-fields checklist: it inspects a stored
// document for fields introduced after it was written and returns the merge that
// back-fills them. Applying the result and re-running the checklist yields no
// further work, so the migration is idempotent.
func migrationFields(doc docstore.Document) (docstore.Document, error) {
	fields := docstore.Document{}

	// v2: operator-adjustable safety threshold and the alert list.
	if _, ok := doc[fieldThreshold]; !ok {
		fields[fieldThreshold] = DefaultSafetyThreshold
		fields[fieldAlerts] = []string{}
	}

	// v3: dp-7 was added to the line after the first deployments were seeded.
	points, _ := doc[fieldPoints].([]any)
	found := false
	for _, p := range points {
		m, ok := p.(map[string]any)
		if ok && m["id"] == backfillPoint.ID {
			found = true
			break
		}
	}
	if !found {
		appended, err := asDocument(backfillPoint)
		if err != nil {
			return nil, err
		}
		fields[fieldPoints] = append(append([]any{}, points...), map[string]any(appended))
	}

	return fields, nil
}
