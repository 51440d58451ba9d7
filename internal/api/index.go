package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed web/index.html
var webFS embed.FS

var indexTemplate = template.Must(template.ParseFS(webFS, "web/index.html"))

type indexData struct {
	Title   string
	DataURL string
}

// HandleIndex renders the viewer shell; the page loads points from the metadata endpoint.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, indexData{Title: "t-SNE 3D viewer", DataURL: RouteTSNEData}); err != nil {
		h.logger.Error().Err(err).Msg("render index")
		http.Error(w, DetailInternal, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
