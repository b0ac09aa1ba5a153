package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"busbar/pkg/apperror"
	"busbar/pkg/config"
	"busbar/pkg/logger"
	"busbar/pkg/metrics"
	"busbar/pkg/telemetry"
	"busbar/services/rating-svc/internal/domain"
)

// Search bounds used when the configuration leaves them unset.
const (
	DefaultForceStep     = 1000
	DefaultMaxIterations = 64
)

// SearchResult reports a force search.
type SearchResult struct {
	Rating string `json:"L,omitempty"`
	Found  bool   `json:"found"`
	// Force is the force that produced Rating.
	Force int `json:"force"`
	// LastOverloadedForce is the last force the engine answered with a 500.
	// It starts at the initial force and is not a force that succeeded.
	LastOverloadedForce int `json:"last_overloaded_force"`
	Attempts            int `json:"attempts"`
	Retries             int `json:"retries"`
}

// ForceSearcher walks the force down in fixed steps until the engine
// returns a rating.
type ForceSearcher struct {
	caller        Caller
	step          int
	minForce      int
	maxIterations int
	metrics       *metrics.Metrics
}

// NewForceSearcher creates a searcher calling the engine through caller.
func NewForceSearcher(caller Caller, cfg *config.ForceSearchConfig, m *metrics.Metrics) *ForceSearcher {
	s := &ForceSearcher{
		caller:        caller,
		step:          cfg.Step,
		minForce:      cfg.MinForce,
		maxIterations: cfg.MaxIterations,
		metrics:       m,
	}
	if s.step <= 0 {
		s.step = DefaultForceStep
	}
	if s.maxIterations <= 0 {
		s.maxIterations = DefaultMaxIterations
	}
	return s
}

// Step returns the force decrement.
func (s *ForceSearcher) Step() int {
	return s.step
}

// Search starts at cfg.Force. It stops at the first success, on an
// unreachable engine, when the force would drop below the floor, or after
// the iteration cap. The result is filled in on every path.
func (s *ForceSearcher) Search(ctx context.Context, cfg domain.Configuration) (SearchResult, error) {
	cfg = cfg.Normalize()

	ctx, span := telemetry.StartSpan(ctx, "ForceSearcher.Search")
	defer span.End()

	force := cfg.Force
	result := SearchResult{LastOverloadedForce: force}

	finish := func(label string) {
		result.Retries = max(result.Attempts-1, 0)
		s.metrics.RecordForceSearch(label, result.Attempts)
		telemetry.SetAttributes(ctx, attribute.Int(telemetry.AttrSearchAttempts, result.Attempts))
	}

	for result.Attempts < s.maxIterations && force >= s.minForce {
		outcome, err := s.caller.Call(ctx, cfg.WithForce(force))
		result.Attempts++
		telemetry.AddEvent(ctx, "force_search.step",
			telemetry.EngineAttributes(outcome.Kind.String(), outcome.StatusCode, force)...)
		if err != nil {
			finish("store_error")
			telemetry.SetError(ctx, err)
			return result, err
		}

		switch outcome.Kind {
		case OutcomeSuccess:
			result.Rating = outcome.Rating
			result.Found = true
			result.Force = force
			finish("found")
			return result, nil

		case OutcomeOverloaded:
			result.LastOverloadedForce = force
			force -= s.step

		case OutcomeRejected:
			logger.Log.Info("force search step rejected", "force", force, "status", outcome.StatusCode)
			force -= s.step

		case OutcomeUnreachable:
			finish("unreachable")
			err := apperror.Wrap(outcome.Err, apperror.CodeEngineUnavailable, "calculation engine unreachable during force search").
				WithDetails("last_overloaded_force", result.LastOverloadedForce).
				WithDetails("attempts", result.Attempts)
			telemetry.SetError(ctx, err)
			return result, err
		}
	}

	finish("exhausted")
	return result, apperror.New(apperror.CodeSearchExhausted,
		fmt.Sprintf("no rating after %d attempts starting at force %d", result.Attempts, cfg.Force)).
		WithDetails("last_overloaded_force", result.LastOverloadedForce).
		WithDetails("attempts", result.Attempts)
}
