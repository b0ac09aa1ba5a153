package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"busbar/pkg/apperror"
	"busbar/pkg/metrics"
	"busbar/pkg/telemetry"
	"busbar/services/rating-svc/internal/domain"
	"busbar/services/rating-svc/internal/repository"
)

// ConfigurationSetInput lists the values whose cross product becomes the
// configuration rows of a component.
type ConfigurationSetInput struct {
	Thicknesses []float64 `json:"thicknesses"`
	Widths      []float64 `json:"widths"`
	Poles       []int     `json:"poles"`
	Shapes      []string  `json:"shapes"`
}

// CatalogService manages clamp components and their configuration sets.
type CatalogService struct {
	repo    repository.CatalogRepository
	metrics *metrics.Metrics
}

// NewCatalogService creates a catalog service.
func NewCatalogService(repo repository.CatalogRepository, m *metrics.Metrics) *CatalogService {
	return &CatalogService{repo: repo, metrics: m}
}

// GetComponent returns the component or nil when it does not exist.
func (s *CatalogService) GetComponent(ctx context.Context, key string, nbphase int) (*domain.Component, error) {
	ctx, span := telemetry.StartSpan(ctx, "CatalogService.GetComponent",
		telemetry.WithAttributes(telemetry.ComponentAttributes(key, nbphase)...))
	defer span.End()

	c, err := s.repo.GetComponent(ctx, key, nbphase)
	if errors.Is(err, repository.ErrComponentNotFound) {
		return nil, nil
	}
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}
	return c, nil
}

// CreateComponent adds c. An existing (key, nbphase) is ALREADY_EXISTS.
func (s *CatalogService) CreateComponent(ctx context.Context, c *domain.Component) error {
	ctx, span := telemetry.StartSpan(ctx, "CatalogService.CreateComponent",
		telemetry.WithAttributes(telemetry.ComponentAttributes(c.Key, c.NbPhase)...))
	defer span.End()

	if err := validateComponentID(c.Key, c.NbPhase); err != nil {
		return err
	}

	if err := s.repo.CreateComponent(ctx, c); err != nil {
		telemetry.SetError(ctx, err)
		if errors.Is(err, repository.ErrComponentExists) {
			return apperror.New(apperror.CodeAlreadyExists, "component already exists").
				WithDetails("key", c.Key).
				WithDetails("nbphase", c.NbPhase)
		}
		return err
	}
	return nil
}

// UpdateComponent applies patch and returns the stored component.
func (s *CatalogService) UpdateComponent(ctx context.Context, key string, nbphase int, patch domain.ComponentPatch) (*domain.Component, error) {
	ctx, span := telemetry.StartSpan(ctx, "CatalogService.UpdateComponent",
		telemetry.WithAttributes(telemetry.ComponentAttributes(key, nbphase)...))
	defer span.End()

	if patch.Empty() {
		return nil, apperror.New(apperror.CodeInvalidArgument, "patch has no fields")
	}

	c, err := s.repo.UpdateComponent(ctx, key, nbphase, patch)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, notFound(err, key, nbphase)
	}
	return c, nil
}

// DeleteComponent removes the component together with its configuration rows.
func (s *CatalogService) DeleteComponent(ctx context.Context, key string, nbphase int) error {
	ctx, span := telemetry.StartSpan(ctx, "CatalogService.DeleteComponent",
		telemetry.WithAttributes(telemetry.ComponentAttributes(key, nbphase)...))
	defer span.End()

	if err := s.repo.DeleteComponent(ctx, key, nbphase); err != nil {
		telemetry.SetError(ctx, err)
		return notFound(err, key, nbphase)
	}
	return nil
}

// ListComponents returns every component ordered by key and nbphase.
func (s *CatalogService) ListComponents(ctx context.Context) ([]*domain.Component, error) {
	ctx, span := telemetry.StartSpan(ctx, "CatalogService.ListComponents")
	defer span.End()

	components, err := s.repo.ListComponents(ctx)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("components.count", len(components)))
	return components, nil
}

// GetConfigurationSet summarizes the stored rows of a component.
func (s *CatalogService) GetConfigurationSet(ctx context.Context, key string, nbphase int) (*domain.ConfigurationSet, error) {
	ctx, span := telemetry.StartSpan(ctx, "CatalogService.GetConfigurationSet",
		telemetry.WithAttributes(telemetry.ComponentAttributes(key, nbphase)...))
	defer span.End()

	rows, err := s.repo.ListCombinations(ctx, key, nbphase)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}

	set := domain.Summarize(key, nbphase, rows)
	span.SetAttributes(attribute.Bool("configuration.complete", set.IsComplete))
	return set, nil
}

// ReplaceConfigurationSet replaces the component's rows with the cross
// product of in and returns the number of rows written. On failure the
// previous rows are kept.
func (s *CatalogService) ReplaceConfigurationSet(ctx context.Context, key string, nbphase int, in ConfigurationSetInput) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "CatalogService.ReplaceConfigurationSet",
		telemetry.WithAttributes(telemetry.ComponentAttributes(key, nbphase)...))
	defer span.End()

	for _, shape := range in.Shapes {
		if strings.TrimSpace(shape) == "" {
			return 0, apperror.NewWithField(apperror.CodeInvalidArgument, "shape must not be empty", "shapes")
		}
	}

	rows := domain.Expand(in.Thicknesses, in.Widths, in.Poles, in.Shapes)
	n, err := s.repo.ReplaceCombinations(ctx, key, nbphase, rows)
	if err != nil {
		telemetry.SetError(ctx, err)
		return 0, notFound(err, key, nbphase)
	}

	s.metrics.RecordConfigurationRows(n)
	return n, nil
}

func validateComponentID(key string, nbphase int) error {
	if strings.TrimSpace(key) == "" {
		return apperror.NewWithField(apperror.CodeInvalidArgument, "key is required", "key")
	}
	if nbphase <= 0 {
		return apperror.NewWithField(apperror.CodeInvalidArgument, "nbphase must be positive", "nbphase")
	}
	return nil
}

func notFound(err error, key string, nbphase int) error {
	if errors.Is(err, repository.ErrComponentNotFound) {
		return apperror.Wrap(err, apperror.CodeNotFound, "component not found").
			WithDetails("key", key).
			WithDetails("nbphase", nbphase)
	}
	return err
}
