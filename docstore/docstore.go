package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when the requested document does not exist in the store.
var ErrNotFound = errors.New("document not found")

// Document is one JSON document as held by the store. Values use the generic JSON
// types (float64, string, bool, []any, map[string]any) regardless of how they were
// written, matching what a wire round-trip through a hosted document store gives back.
type Document map[string]any

// Store is a document store exposing a single logical JSON document per path.
//
// Writes come from uncoordinated actors (the operator UI and the telemetry
// ingestion endpoint), so the granularity of each write matters: Set replaces the
// whole document (last write wins at document level), Merge replaces only the given
// top-level fields (last write wins per field).
type Store interface {
	// Get returns the current document at path, or ErrNotFound.
	Get(ctx context.Context, path string) (Document, error)

	// Set stores doc at path, replacing any existing document. Creates the
	// document when absent.
	Set(ctx context.Context, path string, doc Document) error

	// Merge updates only the given top-level fields of the document at path.
	// Returns ErrNotFound when the document does not exist - Merge never creates.
	Merge(ctx context.Context, path string, fields Document) error

	// Subscribe opens a change feed for the document at path. Every write pushes
	// the full resulting snapshot (no diffs).
	Subscribe(path string) *Subscription
}

// clone deep-copies a document via a JSON round-trip. This both prevents aliasing
// between the store's copy and callers' copies, and normalises all values to the
// generic JSON types.
func clone(doc Document) (Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var out Document
	err = json.Unmarshal(raw, &out)
	if err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return out, nil
}
