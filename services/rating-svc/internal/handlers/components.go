package handlers

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"busbar/pkg/apperror"
	"busbar/services/rating-svc/internal/domain"
	"busbar/services/rating-svc/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type componentRequest struct {
	Angle   int     `json:"angle"`
	ResMini float64 `json:"resmini"`
	Info    string  `json:"info"`
	AList   string  `json:"a_list"`
}

// componentView adds the parsed spacings to a stored component.
type componentView struct {
	*domain.Component
	Spacings []int `json:"spacings"`
	Amini    int   `json:"amini"`
}

func viewComponent(c *domain.Component) componentView {
	spacings := c.Spacings()
	if spacings == nil {
		spacings = []int{}
	}
	return componentView{Component: c, Spacings: spacings, Amini: c.Amini()}
}

func componentID(r *http.Request) (string, int, error) {
	nbphase, err := intParam(r, "nbphase")
	if err != nil {
		return "", 0, err
	}
	return chi.URLParam(r, "id"), nbphase, nil
}

func (h *Handler) listComponents(w http.ResponseWriter, r *http.Request) {
	components, err := h.catalog.ListComponents(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"components": components})
}

func (h *Handler) getComponent(w http.ResponseWriter, r *http.Request) {
	key, nbphase, err := componentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.catalog.GetComponent(r.Context(), key, nbphase)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if c == nil {
		writeError(w, r, apperror.New(apperror.CodeNotFound, "component not found"))
		return
	}
	writeJSON(w, http.StatusOK, viewComponent(c))
}

func (h *Handler) createComponent(w http.ResponseWriter, r *http.Request) {
	key, nbphase, err := componentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req componentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c := &domain.Component{
		Key:     key,
		NbPhase: nbphase,
		Angle:   req.Angle,
		ResMini: req.ResMini,
		Info:    req.Info,
		AList:   req.AList,
	}
	if err := h.catalog.CreateComponent(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) updateComponent(w http.ResponseWriter, r *http.Request) {
	key, nbphase, err := componentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var patch domain.ComponentPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.catalog.UpdateComponent(r.Context(), key, nbphase, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) deleteComponent(w http.ResponseWriter, r *http.Request) {
	key, nbphase, err := componentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.catalog.DeleteComponent(r.Context(), key, nbphase); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getConfigurations(w http.ResponseWriter, r *http.Request) {
	key, nbphase, err := componentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	set, err := h.catalog.GetConfigurationSet(r.Context(), key, nbphase)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *Handler) replaceConfigurations(w http.ResponseWriter, r *http.Request) {
	key, nbphase, err := componentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var in service.ConfigurationSetInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	n, err := h.catalog.ReplaceConfigurationSet(r.Context(), key, nbphase, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rows": n})
}

func (h *Handler) exportComponents(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.catalog.ExportWorkbook(r.Context(), &buf); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="components.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
