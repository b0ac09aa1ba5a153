// Package swagger serves a Swagger UI page and the OpenAPI document it renders.
package swagger

import (
	"crypto/sha256"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"busbar/pkg/logger"
)

// Config describes where the UI and the document are served.
type Config struct {
	Title        string
	BasePath     string
	SpecPath     string
	DeepLinking  bool
	DocExpansion string
}

// DefaultConfig mounts the UI under /swagger.
func DefaultConfig() *Config {
	return &Config{
		Title:        "Busbar Rating API",
		BasePath:     "/swagger",
		SpecPath:     "/openapi.json",
		DeepLinking:  true,
		DocExpansion: "list",
	}
}

// Handler serves the UI at BasePath and the document at BasePath+SpecPath.
type Handler struct {
	config   *Config
	spec     []byte
	specETag string
	page     *template.Template
}

var uiTemplate = template.Must(template.New("swagger-ui").Parse(swaggerUITemplate))

// NewHandler creates a handler for spec. A nil cfg uses DefaultConfig.
func NewHandler(cfg *Config, spec []byte) *Handler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Handler{
		config:   cfg,
		spec:     spec,
		specETag: fmt.Sprintf(`"%x"`, sha256.Sum256(spec)),
		page:     uiTemplate,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, h.config.BasePath)
	path = strings.TrimPrefix(path, "/")

	switch path {
	case "", "index.html":
		h.serveUI(w)
	case strings.TrimPrefix(h.config.SpecPath, "/"), "openapi.json":
		h.serveSpec(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) serveUI(w http.ResponseWriter) {
	data := struct {
		Title        string
		SpecURL      string
		DeepLinking  bool
		DocExpansion string
	}{
		Title:        h.config.Title,
		SpecURL:      h.config.BasePath + h.config.SpecPath,
		DeepLinking:  h.config.DeepLinking,
		DocExpansion: h.config.DocExpansion,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	if err := h.page.Execute(w, data); err != nil {
		logger.Log.Error("failed to render swagger page", "error", err)
	}
}

func (h *Handler) serveSpec(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("If-None-Match") == h.specETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("ETag", h.specETag)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := w.Write(h.spec); err != nil {
		logger.Log.Debug("failed to write openapi document", "error", err)
	}
}

const swaggerUITemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
    <style>
        body { margin: 0; background: #fafafa; }
        .swagger-ui .topbar { display: none; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" charset="UTF-8"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: "{{.SpecURL}}",
                dom_id: '#swagger-ui',
                deepLinking: {{.DeepLinking}},
                docExpansion: "{{.DocExpansion}}",
                presets: [SwaggerUIBundle.presets.apis],
                validatorUrl: null
            });
        };
    </script>
</body>
</html>`
