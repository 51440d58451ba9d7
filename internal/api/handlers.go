// Package api exposes the embedding metadata and image references over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	emberrors "github.com/23skdu/embedview/internal/errors"
	"github.com/23skdu/embedview/internal/meta"
	"github.com/23skdu/embedview/internal/metrics"
	"github.com/23skdu/embedview/internal/neighbors"
	"github.com/23skdu/embedview/internal/pipeline"
	"github.com/23skdu/embedview/internal/resolver"
	"github.com/23skdu/embedview/internal/state"
)

// Client-facing messages.
const (
	DetailNotReady      = "TSNE data is None"
	DetailImageNotFound = "이미지를 찾을 수 없습니다."
	DetailMissingPath   = "missing path query parameter"
	DetailUnknownPoint  = "unknown point index"
	DetailInvalidK      = "k must be a positive integer"
	DetailInternal      = "internal server error"
)

const maxNeighborsK = 100

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// NeighborRecord is a neighbour annotated for display.
type NeighborRecord struct {
	neighbors.Neighbor
	Label  string `json:"label"`
	ImgURL string `json:"img_url"`
}

// NeighborsResponse is the body of the neighbours endpoint.
type NeighborsResponse struct {
	Idx       int              `json:"idx"`
	Neighbors []NeighborRecord `json:"neighbors"`
}

// Options tunes handler behaviour.
type Options struct {
	// NeighborsK is the neighbour count when the request omits k.
	NeighborsK int
}

// Handler holds the dependencies for HTTP handlers.
type Handler struct {
	store    *state.Store[pipeline.Snapshot]
	resolver *resolver.Resolver
	logger   zerolog.Logger
	opts     Options
}

// NewHandler creates a Handler reading from store.
func NewHandler(store *state.Store[pipeline.Snapshot], res *resolver.Resolver, logger zerolog.Logger, opts Options) *Handler {
	if opts.NeighborsK <= 0 {
		opts.NeighborsK = 10
	}
	return &Handler{
		store:    store,
		resolver: res,
		logger:   logger.With().Str("component", "api").Logger(),
		opts:     opts,
	}
}

// HandleTSNEData handles GET /api/tsne_data.
func (h *Handler) HandleTSNEData(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Load()
	if err != nil {
		h.logger.Warn().Err(err).Msg("metadata requested before ready")
		writeError(w, http.StatusInternalServerError, DetailNotReady)
		return
	}
	writeJSON(w, http.StatusOK, snap.Records)
}

// HandleImage handles GET /get_image?path=<token>.
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	token, ok := meta.RawQueryValue(r.URL.RawQuery, meta.ImageQueryParam)
	if !ok {
		writeError(w, http.StatusBadRequest, DetailMissingPath)
		return
	}

	img, err := h.resolver.Resolve(r.Context(), token)
	if err != nil {
		if emberrors.IsType(err, emberrors.ErrorTypeImageNotFound) {
			metrics.ImageLookupsTotal.WithLabelValues("not_found").Inc()
			writeError(w, http.StatusNotFound, DetailImageNotFound)
			return
		}
		metrics.ImageLookupsTotal.WithLabelValues("error").Inc()
		h.logger.Error().Err(err).Msg("image resolution failed")
		writeError(w, http.StatusInternalServerError, DetailInternal)
		return
	}

	metrics.ImageLookupsTotal.WithLabelValues("served").Inc()
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(img.Data)
	metrics.ImageBytesServed.Add(float64(n))
	if err != nil {
		h.logger.Debug().Err(err).Str("path", img.Path).Msg("client went away during image write")
	}
}

// HandleNeighbors handles GET /api/neighbors/{idx}?k=N.
func (h *Handler) HandleNeighbors(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, DetailNotReady)
		return
	}

	idx, err := strconv.Atoi(mux.Vars(r)["idx"])
	if err != nil {
		writeError(w, http.StatusNotFound, DetailUnknownPoint)
		return
	}

	k := h.opts.NeighborsK
	if raw := r.URL.Query().Get("k"); raw != "" {
		k, err = strconv.Atoi(raw)
		if err != nil || k <= 0 {
			writeError(w, http.StatusBadRequest, DetailInvalidK)
			return
		}
	}
	k = min(k, maxNeighborsK)

	hits, err := snap.Neighbors.Nearest(idx, k)
	switch {
	case errors.Is(err, neighbors.ErrUnknownPoint):
		metrics.NeighborQueriesTotal.WithLabelValues("unknown").Inc()
		writeError(w, http.StatusNotFound, DetailUnknownPoint)
		return
	case err != nil:
		metrics.NeighborQueriesTotal.WithLabelValues("error").Inc()
		h.logger.Error().Err(err).Int("idx", idx).Msg("neighbour query failed")
		writeError(w, http.StatusInternalServerError, DetailInternal)
		return
	}

	resp := NeighborsResponse{Idx: idx, Neighbors: make([]NeighborRecord, 0, len(hits))}
	for _, hit := range hits {
		rec := snap.Records[hit.Idx]
		resp.Neighbors = append(resp.Neighbors, NeighborRecord{Neighbor: hit, Label: rec.Label, ImgURL: rec.ImgURL})
	}
	metrics.NeighborQueriesTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON encodes v before committing the status, so an unencodable value
// becomes a 500 rather than a truncated success.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"detail":"` + DetailInternal + `"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
