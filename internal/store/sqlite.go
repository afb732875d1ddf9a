package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when no asset is cached under a name.
var ErrNotFound = errors.New("asset not cached")

// Asset is a cached image.
type Asset struct {
	Name        string
	ContentType string
	Data        []byte
	SourceURL   string
	FetchedAt   time.Time
}

// Store handles database operations
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite allows one writer; prefetch workers share this handle
	db.SetMaxOpenConns(1)

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetAsset retrieves a cached asset by card name
func (s *Store) GetAsset(name string) (*Asset, error) {
	var a Asset
	err := s.db.QueryRow(
		"SELECT name, content_type, data, source_url, fetched_at FROM assets WHERE name = ?",
		name,
	).Scan(&a.Name, &a.ContentType, &a.Data, &a.SourceURL, &a.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return &a, nil
}

// PutAsset stores or replaces the asset for a card name
func (s *Store) PutAsset(a *Asset) error {
	if a.FetchedAt.IsZero() {
		a.FetchedAt = time.Now()
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO assets (name, content_type, data, source_url, fetched_at) VALUES (?, ?, ?, ?, ?)",
		a.Name, a.ContentType, a.Data, a.SourceURL, a.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("put asset: %w", err)
	}
	return nil
}

// HasAsset reports whether a card image is cached
func (s *Store) HasAsset(name string) (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM assets WHERE name = ?", name).Scan(&n); err != nil {
		return false, fmt.Errorf("has asset: %w", err)
	}
	return n > 0, nil
}

// CountAssets returns the number of cached images
func (s *Store) CountAssets() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM assets").Scan(&n); err != nil {
		return 0, fmt.Errorf("count assets: %w", err)
	}
	return n, nil
}
