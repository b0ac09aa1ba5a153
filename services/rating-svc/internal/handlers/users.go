package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"busbar/pkg/apperror"
)

const (
	defaultStatsDays = 7
	defaultLogDays   = 30
)

// userParam returns the {id} path parameter if the caller may access it.
func userParam(r *http.Request) (string, error) {
	userID := chi.URLParam(r, "id")
	if !GetIdentity(r.Context()).CanAccessUser(userID) {
		return "", apperror.New(apperror.CodePermissionDenied, "cannot access another user's quota")
	}
	return userID, nil
}

func (h *Handler) getQuota(w http.ResponseWriter, r *http.Request) {
	userID, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.quotas.GetQuota(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if q == nil {
		writeError(w, r, apperror.New(apperror.CodeNotFound, "user not found or limit unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) consumeQuota(w http.ResponseWriter, r *http.Request) {
	userID, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	decision, err := h.quotas.CheckAndConsume(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if decision == nil {
		writeError(w, r, apperror.New(apperror.CodeNotFound, "user not found"))
		return
	}
	if !decision.Allowed {
		writeError(w, r, apperror.New(apperror.CodeQuotaExhausted, "daily search limit reached").
			WithDetails("limit", decision.Limit))
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) decrementQuota(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	decision, err := h.quotas.DecrementWithoutLog(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if decision == nil || !decision.Allowed {
		writeError(w, r, apperror.New(apperror.CodeInvalidArgument, "cannot decrement daily search limit"))
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

type quotaLimitRequest struct {
	DailyLimit *int `json:"daily_search_limit"`
	Remaining  *int `json:"daily_search_remaining"`
}

func (h *Handler) setQuotaLimit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req quotaLimitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.DailyLimit == nil {
		writeError(w, r, apperror.NewWithField(apperror.CodeInvalidArgument,
			"daily_search_limit is required", "daily_search_limit"))
		return
	}

	q, err := h.quotas.SetLimit(r.Context(), userID, *req.DailyLimit, req.Remaining)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) userSearchLogs(w http.ResponseWriter, r *http.Request) {
	userID, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	days, err := queryInt(r, "days", defaultLogDays)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logs, err := h.quotas.UserSearchLog(r.Context(), userID, days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (h *Handler) searchStats(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", defaultStatsDays)
	if err != nil {
		writeError(w, r, err)
		return
	}

	daily, err := h.quotas.DailyStats(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	totals, err := h.quotas.Totals(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"daily_stats": daily,
		"totals":      totals,
	})
}
