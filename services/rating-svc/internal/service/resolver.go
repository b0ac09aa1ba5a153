// Package service composes the stores and the engine into the operations
// served over HTTP: rating resolution, product queries, the catalog and
// the per-user quota gate.
package service

import (
	"context"

	"golang.org/x/sync/singleflight"

	"busbar/pkg/apperror"
	"busbar/pkg/config"
	"busbar/pkg/logger"
	"busbar/pkg/metrics"
	"busbar/pkg/telemetry"
	"busbar/services/rating-svc/internal/domain"
	"busbar/services/rating-svc/internal/engine"
	"busbar/services/rating-svc/internal/repository"
)

// RatingResolver answers rating requests from the store and falls back to
// the engine on a miss. Concurrent misses for one key share an engine call.
type RatingResolver struct {
	store       repository.RatingRepository
	caller      engine.Caller
	searcher    *engine.ForceSearcher
	forceSearch bool
	metrics     *metrics.Metrics

	group singleflight.Group
}

// NewRatingResolver creates a resolver. With cfg.Enabled a miss runs a force
// search instead of a single call at the requested force.
func NewRatingResolver(
	store repository.RatingRepository,
	caller engine.Caller,
	cfg *config.ForceSearchConfig,
	m *metrics.Metrics,
) *RatingResolver {
	return &RatingResolver{
		store:       store,
		caller:      caller,
		searcher:    engine.NewForceSearcher(caller, cfg, m),
		forceSearch: cfg.Enabled,
		metrics:     m,
	}
}

type resolved struct {
	rating string
	found  bool
}

// Resolve returns the rating for cfg. An engine failure is reported as
// absence; only store failures are returned as errors.
func (r *RatingResolver) Resolve(ctx context.Context, cfg domain.Configuration) (string, bool, error) {
	cfg = cfg.Normalize()

	ctx, span := telemetry.StartSpan(ctx, "RatingResolver.Resolve")
	defer span.End()

	rating, found, err := r.store.Lookup(ctx, cfg)
	if err != nil {
		telemetry.SetError(ctx, err)
		return "", false, err
	}
	if found {
		telemetry.SetAttributes(ctx, telemetry.RatingAttributes(cfg.Key(), true)...)
		return rating, true, nil
	}

	// The shared call outlives any single waiter; the engine client bounds it.
	// A waiter whose context ends first gives up and reports absence.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(cfg.Key(), func() (any, error) {
		return r.fill(flightCtx, cfg)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		logger.Log.Info("rating resolve abandoned", "key", cfg.Key(), "error", ctx.Err())
		telemetry.SetAttributes(ctx, telemetry.RatingAttributes(cfg.Key(), false)...)
		return "", false, nil
	}
	if res.Shared {
		r.metrics.RecordCoalesced()
	}
	if res.Err != nil {
		telemetry.SetError(ctx, res.Err)
		return "", false, res.Err
	}

	out := res.Val.(resolved)
	telemetry.SetAttributes(ctx, telemetry.RatingAttributes(cfg.Key(), out.found)...)
	return out.rating, out.found, nil
}

func (r *RatingResolver) fill(ctx context.Context, cfg domain.Configuration) (resolved, error) {
	if r.forceSearch {
		return r.fillBySearch(ctx, cfg)
	}

	if _, err := r.caller.Call(ctx, cfg); err != nil {
		return resolved{}, err
	}

	// Success or not, the stored value is authoritative: another writer may
	// have won the insert.
	rating, found, err := r.store.Lookup(ctx, cfg)
	if err != nil {
		return resolved{}, err
	}
	return resolved{rating: rating, found: found}, nil
}

// fillBySearch serves the rating stored at the highest rated force not above
// cfg.Force, and searches only when there is none.
func (r *RatingResolver) fillBySearch(ctx context.Context, cfg domain.Configuration) (resolved, error) {
	known, ok, err := r.store.MaxRatedForce(ctx, cfg)
	if err != nil {
		return resolved{}, err
	}
	if ok && known <= cfg.Force {
		rating, found, err := r.store.Lookup(ctx, cfg.WithForce(known))
		if err != nil {
			return resolved{}, err
		}
		if found {
			return resolved{rating: rating, found: true}, nil
		}
	}

	result, err := r.searcher.Search(ctx, cfg)
	if err != nil {
		if isEngineFailure(err) {
			logger.Log.Info("force search found no rating",
				"key", cfg.Key(), "attempts", result.Attempts, "error", err)
			return resolved{}, nil
		}
		return resolved{}, err
	}

	rating, found, err := r.store.Lookup(ctx, cfg.WithForce(result.Force))
	if err != nil {
		return resolved{}, err
	}
	return resolved{rating: rating, found: found}, nil
}

// ResolveMaxForce runs a force search for cfg. When the store already holds
// a rating for the other seven fields, the search starts one step above the
// highest rated force, never above cfg.Force.
func (r *RatingResolver) ResolveMaxForce(ctx context.Context, cfg domain.Configuration) (engine.SearchResult, error) {
	cfg = cfg.Normalize()

	ctx, span := telemetry.StartSpan(ctx, "RatingResolver.ResolveMaxForce")
	defer span.End()

	known, found, err := r.store.MaxRatedForce(ctx, cfg)
	if err != nil {
		telemetry.SetError(ctx, err)
		return engine.SearchResult{}, err
	}
	if found {
		if seed := known + r.searcher.Step(); seed < cfg.Force {
			logger.Log.Debug("seeding force search from stored rating",
				"key", cfg.Key(), "known_force", known, "start", seed)
			cfg = cfg.WithForce(seed)
		}
	}

	return r.searcher.Search(ctx, cfg)
}

func isEngineFailure(err error) bool {
	return apperror.Is(err, apperror.CodeSearchExhausted) ||
		apperror.Is(err, apperror.CodeEngineUnavailable)
}

