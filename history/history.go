// Package history keeps the most recent parse results per identity.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/use-agent/adsaver/config"
	"github.com/use-agent/adsaver/models"
	"github.com/use-agent/adsaver/store"
)

// Service is a capped, newest-first list of AdResults per identity.
type Service struct {
	store store.Store
	cfg   config.HistoryConfig

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

// New creates a Service.
func New(s store.Store, cfg config.HistoryConfig) *Service {
	return &Service{store: s, cfg: cfg}
}

func (s *Service) key(identity string) string {
	return s.cfg.KeyPrefix + ":" + identity
}

// List returns the identity's history, newest first.
func (s *Service) List(ctx context.Context, identity string) ([]models.AdResult, error) {
	raw, ok, err := s.store.Get(ctx, s.key(identity))
	if err != nil || !ok {
		return []models.AdResult{}, err
	}
	var items []models.AdResult
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return items, nil
}

// Add puts item first, removing any older entry with the same id, and trims
// the list to the configured size.
func (s *Service) Add(ctx context.Context, identity string, item models.AdResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.List(ctx, identity)
	if err != nil {
		return err
	}

	item.CacheStatus = ""
	next := make([]models.AdResult, 0, s.cfg.MaxItems)
	next = append(next, item)
	for _, it := range items {
		if len(next) == s.cfg.MaxItems {
			break
		}
		if it.ID == item.ID {
			continue
		}
		next = append(next, it)
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	return s.store.Set(ctx, s.key(identity), raw, s.cfg.TTL)
}

// Clear removes the identity's history.
func (s *Service) Clear(ctx context.Context, identity string) error {
	return s.store.Delete(ctx, s.key(identity))
}
