// Package handlers is the HTTP surface of the rating service.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"busbar/pkg/config"
	"busbar/pkg/metrics"
	"busbar/pkg/swagger"
	"busbar/pkg/telemetry"
	"busbar/services/rating-svc/internal/service"
)

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Resolver *service.RatingResolver
	Products *service.ProductService
	Catalog  *service.CatalogService
	Quotas   *service.QuotaService
	Metrics  *metrics.Metrics

	// EnforceQuota gates rating routes behind the caller's daily quota.
	EnforceQuota bool

	// Ready reports whether the backing stores are reachable.
	Ready func(ctx context.Context) error

	// Validator is nil when authentication is disabled.
	Validator TokenValidator
	AdminRole string

	// CORS is applied when non-nil and enabled.
	CORS *config.CORSConfig

	// APIDoc is the OpenAPI document served under /swagger when set.
	APIDoc []byte
}

// Handler serves the rating API.
type Handler struct {
	resolver  *service.RatingResolver
	products  *service.ProductService
	catalog   *service.CatalogService
	quotas    *service.QuotaService
	enforce   bool
	metrics   *metrics.Metrics
	ready     func(ctx context.Context) error
	validator TokenValidator
	adminRole string
	cors      *config.CORSConfig
	apiDoc    []byte
}

// New creates the handlers.
func New(d Deps) *Handler {
	return &Handler{
		resolver:  d.Resolver,
		products:  d.Products,
		catalog:   d.Catalog,
		quotas:    d.Quotas,
		enforce:   d.EnforceQuota,
		metrics:   d.Metrics,
		ready:     d.Ready,
		validator: d.Validator,
		adminRole: d.AdminRole,
		cors:      d.CORS,
		apiDoc:    d.APIDoc,
	}
}

// Router builds the chi router with the full middleware chain.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(requestID)
	if h.cors != nil && h.cors.Enabled {
		r.Use(cors(*h.cors))
	}
	r.Use(chimw.Recoverer)
	r.Use(telemetry.HTTPMiddleware)
	r.Use(instrument(h.metrics))
	r.Use(accessLog)

	r.Get("/health", h.health)
	r.Get("/ready", h.readiness)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	if h.apiDoc != nil {
		docs := swagger.NewHandler(nil, h.apiDoc)
		r.Method(http.MethodGet, "/swagger", docs)
		r.Method(http.MethodGet, "/swagger/*", docs)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticate(h.validator, h.adminRole))

		r.Post("/ratings/resolve", h.resolveRating)
		r.Post("/ratings/max-force", h.resolveMaxForce)
		r.Post("/products/query", h.queryProducts)

		r.Route("/components", func(r chi.Router) {
			r.Get("/", h.listComponents)
			r.Get("/export.xlsx", h.exportComponents)

			r.Route("/{id}/{nbphase}", func(r chi.Router) {
				r.Get("/", h.getComponent)
				r.Get("/configurations", h.getConfigurations)

				r.Group(func(r chi.Router) {
					r.Use(requireAdmin)
					r.Post("/", h.createComponent)
					r.Patch("/", h.updateComponent)
					r.Delete("/", h.deleteComponent)
					r.Put("/configurations", h.replaceConfigurations)
				})
			})
		})

		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/quota", h.getQuota)
			r.Post("/quota/consume", h.consumeQuota)
			r.Get("/search-logs", h.userSearchLogs)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/quota/decrement", h.decrementQuota)
				r.Patch("/quota", h.setQuotaLimit)
			})
		})

		r.With(requireAdmin).Get("/admin/search-stats", h.searchStats)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// gate spends one search of the caller's quota. It is a no-op for anonymous
// callers and when enforcement is off.
func (h *Handler) gate(ctx context.Context) error {
	id := GetIdentity(ctx)
	if !h.enforce || id.Anonymous || h.quotas == nil {
		return nil
	}
	_, err := h.quotas.Gate(ctx, id.UserID)
	return err
}
