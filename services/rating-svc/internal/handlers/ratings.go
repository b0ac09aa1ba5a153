package handlers

import (
	"net/http"

	"busbar/pkg/apperror"
	"busbar/services/rating-svc/internal/domain"
	"busbar/services/rating-svc/internal/engine"
	"busbar/services/rating-svc/internal/service"
)

// ratingRequest accepts the engine parameters as numbers; fractional
// values are truncated.
type ratingRequest struct {
	W         float64 `json:"W"`
	T         float64 `json:"T"`
	B         float64 `json:"B"`
	Angle     float64 `json:"Angle"`
	A         float64 `json:"a"`
	Icc       float64 `json:"Icc"`
	Force     float64 `json:"Force"`
	NbrePhase float64 `json:"NbrePhase"`
}

func (req ratingRequest) configuration() (domain.Configuration, error) {
	cfg := domain.NewConfiguration(req.W, req.T, req.B, req.Angle, req.A, req.Icc, req.Force, req.NbrePhase)
	if err := cfg.Validate(); err != nil {
		return domain.Configuration{}, apperror.Wrap(err, apperror.CodeInvalidArgument, err.Error())
	}
	return cfg, nil
}

type ratingResponse struct {
	L *string `json:"L"`
}

func (h *Handler) resolveRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := req.configuration()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.gate(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}

	rating, found, err := h.resolver.Resolve(r.Context(), cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := ratingResponse{}
	if found {
		resp.L = &rating
	}
	writeJSON(w, http.StatusOK, resp)
}

type maxForceResponse struct {
	L                   *string `json:"L"`
	Force               int     `json:"force"`
	LastOverloadedForce int     `json:"last_overloaded_force"`
	Attempts            int     `json:"attempts"`
	Retries             int     `json:"retries"`
}

func (h *Handler) resolveMaxForce(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := req.configuration()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.gate(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.resolver.ResolveMaxForce(r.Context(), cfg)
	if err != nil && !apperror.Is(err, apperror.CodeSearchExhausted) {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMaxForceResponse(result))
}

func newMaxForceResponse(result engine.SearchResult) maxForceResponse {
	resp := maxForceResponse{
		Force:               result.Force,
		LastOverloadedForce: result.LastOverloadedForce,
		Attempts:            result.Attempts,
		Retries:             result.Retries,
	}
	if result.Found {
		resp.L = &result.Rating
	}
	return resp
}

func (h *Handler) queryProducts(w http.ResponseWriter, r *http.Request) {
	var q service.ProductQuery
	if err := decodeJSON(w, r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := q.Match(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.gate(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}

	products, err := h.products.QueryProducts(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}
