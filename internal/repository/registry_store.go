package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ConvergeWatch/internal/convergence"
	"ConvergeWatch/pkg/cache"
)

// CacheRegistryStore keeps tracker snapshots in the shared cache so a
// restarted process resumes dedup where the previous one stopped.
type CacheRegistryStore struct {
	cache cache.Service
	ttl   time.Duration
}

// NewCacheRegistryStore stores snapshots for ttl; zero keeps them forever.
func NewCacheRegistryStore(c cache.Service, ttl time.Duration) *CacheRegistryStore {
	return &CacheRegistryStore{cache: c, ttl: ttl}
}

func RegistryKey(symbol, interval string) string {
	return "registry:" + symbol + ":" + interval
}

// Load returns false when no snapshot is stored.
func (s *CacheRegistryStore) Load(ctx context.Context, symbol, interval string) (convergence.Snapshot, bool, error) {
	var snap convergence.Snapshot
	err := s.cache.Get(ctx, RegistryKey(symbol, interval), &snap)
	if errors.Is(err, cache.ErrCacheMiss) {
		return convergence.Snapshot{}, false, nil
	}
	if err != nil {
		return convergence.Snapshot{}, false, fmt.Errorf("load registry: %w", err)
	}
	return snap, true, nil
}

func (s *CacheRegistryStore) Save(ctx context.Context, symbol, interval string, snap convergence.Snapshot) error {
	if err := s.cache.Set(ctx, RegistryKey(symbol, interval), snap, s.ttl); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return nil
}
