package repository

import (
	"context"
	"sync"

	"busbar/services/rating-svc/internal/domain"
)

// MemoryRatingRepository keeps ratings in process memory.
type MemoryRatingRepository struct {
	mu      sync.RWMutex
	ratings map[domain.Configuration]string
}

// NewMemoryRatingRepository creates an empty repository.
func NewMemoryRatingRepository() *MemoryRatingRepository {
	return &MemoryRatingRepository{
		ratings: make(map[domain.Configuration]string),
	}
}

func (r *MemoryRatingRepository) Lookup(ctx context.Context, cfg domain.Configuration) (string, bool, error) {
	cfg = cfg.Normalize()
	r.mu.RLock()
	defer r.mu.RUnlock()

	rating, ok := r.ratings[cfg]
	return rating, ok, nil
}

func (r *MemoryRatingRepository) InsertIfAbsent(ctx context.Context, cfg domain.Configuration, rating string) (bool, error) {
	cfg = cfg.Normalize()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ratings[cfg]; exists {
		return false, nil
	}
	r.ratings[cfg] = rating
	return true, nil
}

func (r *MemoryRatingRepository) MaxRatedForce(ctx context.Context, cfg domain.Configuration) (int, bool, error) {
	cfg = cfg.Normalize()
	r.mu.RLock()
	defer r.mu.RUnlock()

	best, found := 0, false
	for stored := range r.ratings {
		if stored.WithForce(cfg.Force) != cfg {
			continue
		}
		if !found || stored.Force > best {
			best, found = stored.Force, true
		}
	}
	return best, found, nil
}

// Len returns the number of stored ratings.
func (r *MemoryRatingRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ratings)
}
