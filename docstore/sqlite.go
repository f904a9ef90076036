package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// storedDocument is the row shape for a persisted document. The document body is
// kept as a single JSON blob - the store never queries inside it.
type storedDocument struct {
	Path      string `gorm:"primaryKey"`
	Body      []byte
	UpdatedAt time.Time
}

// SQLite is a Store persisted to a local SQLite file, so dashboard state survives
// server restarts. Change notifications are in-process only: this store is meant
// to be owned by a single server process, with remote readers attaching via the
// websocket feed rather than the file.
type SQLite struct {
	mu sync.Mutex
	db *gorm.DB

	*notifier
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	err = db.AutoMigrate(&storedDocument{})
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &SQLite{
		db:       db,
		notifier: newNotifier(),
	}, nil
}

func (s *SQLite) Get(ctx context.Context, path string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, path)
}

func (s *SQLite) Set(ctx context.Context, path string, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).Save(&storedDocument{Path: path, Body: body, UpdatedAt: time.Now()})
	if result.Error != nil {
		return fmt.Errorf("save document: %w", result.Error)
	}

	var snapshot Document
	err = json.Unmarshal(body, &snapshot)
	if err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	s.publish(path, snapshot)
	return nil
}

func (s *SQLite) Merge(ctx context.Context, path string, fields Document) error {
	merged, err := clone(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.getLocked(ctx, path)
	if err != nil {
		return err
	}
	for k, v := range merged {
		doc[k] = v
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	result := s.db.WithContext(ctx).Save(&storedDocument{Path: path, Body: body, UpdatedAt: time.Now()})
	if result.Error != nil {
		return fmt.Errorf("save document: %w", result.Error)
	}

	s.publish(path, doc)
	return nil
}

func (s *SQLite) Subscribe(path string) *Subscription {
	return s.subscribe(path)
}

func (s *SQLite) getLocked(ctx context.Context, path string) (Document, error) {
	var row storedDocument
	result := s.db.WithContext(ctx).First(&row, "path = ?", path)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query document: %w", result.Error)
	}

	var doc Document
	err := json.Unmarshal(row.Body, &doc)
	if err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}
