package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"busbar/pkg/apperror"
	"busbar/pkg/logger"
	"busbar/pkg/telemetry"
	"busbar/services/rating-svc/internal/domain"
	"busbar/services/rating-svc/internal/repository"
)

// ProductQuery selects catalog products for a busbar arrangement.
type ProductQuery struct {
	// PerPhase is the number of busbars per phase, e.g. "2" or "2 bars".
	PerPhase  string  `json:"perPhase"`
	Thickness float64 `json:"thickness"`
	Width     float64 `json:"width"`
	// Poles is a count or one of "Bi", "Three", "Four".
	Poles string `json:"poles"`
	Shape string `json:"shape"`
	Icc   int    `json:"icc"`
}

var poleNames = map[string]int{
	"Bi":    2,
	"Three": 3,
	"Four":  4,
}

// Match converts the query to catalog match criteria.
func (q ProductQuery) Match() (repository.MatchQuery, error) {
	var perPhase int
	fields := strings.Fields(q.PerPhase)
	if len(fields) > 0 {
		perPhase, _ = strconv.Atoi(fields[0])
	}
	if perPhase <= 0 {
		return repository.MatchQuery{}, apperror.NewWithField(apperror.CodeInvalidArgument,
			"perPhase must start with a positive number", "perPhase")
	}

	poles, ok := poleNames[q.Poles]
	if !ok {
		poles, _ = strconv.Atoi(strings.TrimSpace(q.Poles))
		if poles <= 0 {
			return repository.MatchQuery{}, apperror.NewWithField(apperror.CodeInvalidArgument,
				"poles must be a positive number or one of Bi, Three, Four", "poles")
		}
	}

	if q.Thickness <= 0 || q.Width <= 0 {
		return repository.MatchQuery{}, apperror.New(apperror.CodeInvalidArgument,
			"thickness and width must be positive")
	}

	return repository.MatchQuery{
		NbPhase:   perPhase,
		Thickness: q.Thickness,
		Width:     q.Width,
		Poles:     poles,
		Shape:     q.Shape,
	}, nil
}

// ProductRating is a catalog component with the rating resolved for the query.
type ProductRating struct {
	ComponentID   string               `json:"component_id"`
	NbPhase       int                  `json:"nbphase"`
	Component     *domain.Component    `json:"component"`
	Configuration domain.Configuration `json:"configuration"`
	L             *string              `json:"L"`
}

// ProductService answers product queries.
type ProductService struct {
	catalog  repository.CatalogRepository
	resolver *RatingResolver
}

// NewProductService creates a product service.
func NewProductService(catalog repository.CatalogRepository, resolver *RatingResolver) *ProductService {
	return &ProductService{catalog: catalog, resolver: resolver}
}

// QueryProducts finds the components supporting q and resolves a rating for
// each. A component without a rating is returned with a nil L.
func (s *ProductService) QueryProducts(ctx context.Context, q ProductQuery) ([]ProductRating, error) {
	ctx, span := telemetry.StartSpan(ctx, "ProductService.QueryProducts")
	defer span.End()

	match, err := q.Match()
	if err != nil {
		return nil, err
	}

	matches, err := s.catalog.FindMatches(ctx, match)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("products.matches", len(matches)))

	products := make([]ProductRating, 0, len(matches))
	for _, m := range matches {
		component, err := s.catalog.GetComponent(ctx, m.ComponentID, m.NbPhase)
		if errors.Is(err, repository.ErrComponentNotFound) {
			logger.Log.Warn("catalog row without component", "component", m.ComponentID, "nbphase", m.NbPhase)
			continue
		}
		if err != nil {
			telemetry.SetError(ctx, err)
			return nil, err
		}

		cfg := domain.Configuration{
			W:     int(match.Width),
			T:     int(match.Thickness),
			B:     m.NbPhase,
			Angle: component.Angle,
			A:     component.Amini(),
			Icc:   q.Icc,
			Force: component.Force(),
			Poles: match.Poles,
		}.Normalize()

		product := ProductRating{
			ComponentID:   m.ComponentID,
			NbPhase:       m.NbPhase,
			Component:     component,
			Configuration: cfg,
		}

		rating, found, err := s.resolver.Resolve(ctx, cfg)
		if err != nil {
			telemetry.SetError(ctx, err)
			return nil, err
		}
		if found {
			product.L = &rating
		}
		products = append(products, product)
	}

	return products, nil
}
