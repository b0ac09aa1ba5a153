package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"busbar/services/rating-svc/internal/domain"
)

type componentID struct {
	key     string
	nbphase int
}

// MemoryCatalogRepository keeps the catalog in process memory.
type MemoryCatalogRepository struct {
	mu           sync.RWMutex
	components   map[componentID]*domain.Component
	combinations map[componentID][]domain.Combination
}

// NewMemoryCatalogRepository creates an empty catalog.
func NewMemoryCatalogRepository() *MemoryCatalogRepository {
	return &MemoryCatalogRepository{
		components:   make(map[componentID]*domain.Component),
		combinations: make(map[componentID][]domain.Combination),
	}
}

func (r *MemoryCatalogRepository) GetComponent(ctx context.Context, key string, nbphase int) (*domain.Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.components[componentID{key, nbphase}]
	if !ok {
		return nil, ErrComponentNotFound
	}
	result := *c
	return &result, nil
}

func (r *MemoryCatalogRepository) CreateComponent(ctx context.Context, c *domain.Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := componentID{c.Key, c.NbPhase}
	if _, exists := r.components[id]; exists {
		return ErrComponentExists
	}

	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	stored := *c
	r.components[id] = &stored
	return nil
}

func (r *MemoryCatalogRepository) UpdateComponent(
	ctx context.Context,
	key string,
	nbphase int,
	patch domain.ComponentPatch,
) (*domain.Component, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.components[componentID{key, nbphase}]
	if !ok {
		return nil, ErrComponentNotFound
	}

	if !patch.Empty() {
		patch.Apply(c)
		c.UpdatedAt = time.Now()
	}

	result := *c
	return &result, nil
}

func (r *MemoryCatalogRepository) DeleteComponent(ctx context.Context, key string, nbphase int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := componentID{key, nbphase}
	if _, ok := r.components[id]; !ok {
		return ErrComponentNotFound
	}
	delete(r.components, id)
	delete(r.combinations, id)
	return nil
}

func (r *MemoryCatalogRepository) ListComponents(ctx context.Context) ([]*domain.Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Component, 0, len(r.components))
	for _, c := range r.components {
		copied := *c
		result = append(result, &copied)
	}
	slices.SortFunc(result, func(a, b *domain.Component) int {
		return cmp.Or(cmp.Compare(a.Key, b.Key), cmp.Compare(a.NbPhase, b.NbPhase))
	})
	return result, nil
}

func (r *MemoryCatalogRepository) ListCombinations(ctx context.Context, key string, nbphase int) ([]domain.Combination, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.combinations[componentID{key, nbphase}]), nil
}

func (r *MemoryCatalogRepository) ReplaceCombinations(
	ctx context.Context,
	key string,
	nbphase int,
	combos []domain.Combination,
) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := componentID{key, nbphase}
	if _, ok := r.components[id]; !ok {
		return 0, ErrComponentNotFound
	}

	if len(combos) == 0 {
		delete(r.combinations, id)
		return 0, nil
	}
	r.combinations[id] = slices.Clone(combos)
	return len(combos), nil
}

func (r *MemoryCatalogRepository) FindMatches(ctx context.Context, q MatchQuery) ([]Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := domain.Combination{Thickness: q.Thickness, Width: q.Width, Poles: q.Poles, Shape: q.Shape}

	var result []Match
	for id, combos := range r.combinations {
		if id.nbphase != q.NbPhase || !slices.Contains(combos, want) {
			continue
		}
		result = append(result, Match{ComponentID: id.key, NbPhase: id.nbphase})
	}
	slices.SortFunc(result, func(a, b Match) int { return cmp.Compare(a.ComponentID, b.ComponentID) })
	return result, nil
}
