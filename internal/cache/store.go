// Package cache persists previously scraped profiles under one named slot so
// later runs can skip re-scraping them. The slot is read and written wholesale.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jonathan/feed-copilot/internal/schemas"
	"github.com/jonathan/feed-copilot/internal/types"
)

// Slot is the name profiles are stored under.
const Slot = "profiles"

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Store is the cache contract.
type Store interface {
	// Load returns the stored set; an empty set when nothing was saved yet.
	Load(ctx context.Context) (types.CachedProfileSet, error)
	// Save replaces the stored set.
	Save(ctx context.Context, set types.CachedProfileSet) error
	// Clear removes the stored set.
	Clear(ctx context.Context) error
	Close() error
}

// StoreError represents a cache read or write failure.
type StoreError struct {
	Backend string
	Op      string
	Cause   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s cache %s failed: %v", e.Backend, e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Options selects and configures a backend.
type Options struct {
	Backend     string
	Path        string
	DatabaseURL string
}

// Open returns the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.Path), nil
	case BackendPostgres:
		store, err := ConnectPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendMemory:
		return NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

// encode serializes the set as a JSON array ordered by link.
func encode(set types.CachedProfileSet) ([]byte, error) {
	profiles := set.Profiles()
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Link < profiles[j].Link })
	return json.Marshal(profiles)
}

// decode validates and parses a stored slot.
func decode(data []byte) (types.CachedProfileSet, error) {
	if err := schemas.Validate(schemas.ProfileCache, data); err != nil {
		return nil, err
	}
	var profiles []types.Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, err
	}
	return types.NewCachedProfileSet(profiles), nil
}
