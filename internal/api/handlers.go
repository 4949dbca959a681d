package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/csvgate/csvgate/core/dataset"
	"github.com/csvgate/csvgate/core/errors"
	"github.com/csvgate/csvgate/core/query"
	"github.com/csvgate/csvgate/core/table"
	"github.com/csvgate/csvgate/internal/logging"
)

// apiVersion is reported by the index endpoint.
const apiVersion = "0.3.0"

// startTime anchors the uptime reported by the health endpoint.
var startTime = time.Now()

// respond writes a JSON response with the given status code.
func respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error("failed to encode response", "error", err)
	}
}

// respondError writes the {"detail": ...} body every non-2xx response
// carries.
func respondError(w http.ResponseWriter, status int, detail string) {
	respond(w, status, map[string]string{"detail": detail})
}

// writeError maps a gateway error onto its HTTP status. Sentinel matching
// happens through the wrapped chain, so a ValidationError produced deep in
// query planning still surfaces as a 400.
func writeError(w http.ResponseWriter, err error) {
	var verr *errors.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errors.ErrRefreshInProgress):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errors.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleRoot serves the endpoint index.
func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "Endpoint not found")
		return
	}
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Only GET is allowed")
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"name":    "csvgate API",
		"version": apiVersion,
		"endpoints": []string{
			"GET /healthz",
			"GET /api/metadata",
			"GET /api/rows",
			"POST /api/refresh",
			"GET /api/events (websocket)",
		},
	})
}

type healthPayload struct {
	Status    string `json:"status"`
	Source    string `json:"source"`
	TotalRows int64  `json:"row_count"`
	Uptime    string `json:"uptime"`
}

// handleHealth reports liveness plus the headline facts of the served
// dataset.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Only GET is allowed")
		return
	}
	if gateway == nil {
		respondError(w, http.StatusServiceUnavailable, "Dataset not loaded")
		return
	}

	meta := gateway.Describe()
	respond(w, http.StatusOK, healthPayload{
		Status:    "ok",
		Source:    meta.SourceName,
		TotalRows: meta.TotalRows,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	})
}

// metadataPayload is Describe plus the serving limits a client needs to
// build paging controls. Embedding flattens the Metadata keys into the
// payload.
type metadataPayload struct {
	dataset.Metadata
	DefaultPageSize int `json:"default_page_size"`
	MaxPageSize     int `json:"max_page_size"`
}

// handleMetadata describes the current dataset version. The fingerprint
// doubles as the ETag, so clients polling for refresh completion get a 304
// until the version actually changes.
func handleMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Only GET is allowed")
		return
	}
	if gateway == nil {
		respondError(w, http.StatusServiceUnavailable, "Dataset not loaded")
		return
	}

	meta := gateway.Describe()
	etag := `"` + meta.Fingerprint + `"`
	w.Header().Set("ETag", etag)
	if matchesETag(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	respond(w, http.StatusOK, metadataPayload{
		Metadata:        meta,
		DefaultPageSize: ServerConfig.DefaultPageSize,
		MaxPageSize:     ServerConfig.Dataset.MaxPageSize,
	})
}

// matchesETag reports whether an If-None-Match header names etag. Values
// arrive as a comma-separated list; weak validators are not used here.
func matchesETag(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}

// handleRows serves one page of rows. Malformed parameters are rejected
// with a 400 before the query reaches the dataset.
func handleRows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Only GET is allowed")
		return
	}
	if gateway == nil {
		respondError(w, http.StatusServiceUnavailable, "Dataset not loaded")
		return
	}

	params := r.URL.Query()
	page, err := intParam(params, "page", 1)
	if err != nil {
		writeError(w, err)
		return
	}
	pageSize, err := intParam(params, "page_size", ServerConfig.DefaultPageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	dir, err := query.ParseDirection(params.Get("sort_dir"))
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := gateway.FetchPage(r.Context(), query.RowQuery{
		Page:       page,
		PageSize:   pageSize,
		SortColumn: params.Get("sort_by"),
		Direction:  dir,
		Search:     params.Get("search"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	respond(w, http.StatusOK, result)
}

// intParam parses an optional integer query parameter.
func intParam(params url.Values, name string, fallback int) (int, error) {
	raw := params.Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewValidation(name, "must be an integer")
	}
	return n, nil
}

type refreshPayload struct {
	Status      string       `json:"status"`
	TotalRows   int64        `json:"row_count"`
	Columns     table.Schema `json:"columns"`
	DefaultSort *string      `json:"default_sort"`
	Fingerprint string       `json:"fingerprint"`
}

// handleRefresh re-reads the source the server was started with and swaps
// the result in. The request carries no path. GET is accepted alongside
// POST for curl convenience.
func handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Only POST and GET are allowed")
		return
	}
	if gateway == nil {
		respondError(w, http.StatusServiceUnavailable, "Dataset not loaded")
		return
	}

	meta, err := gateway.Refresh(r.Context(), "")
	if err != nil {
		writeError(w, err)
		return
	}

	respond(w, http.StatusOK, refreshPayload{
		Status:      "ok",
		TotalRows:   meta.TotalRows,
		Columns:     meta.Columns,
		DefaultSort: meta.DefaultSort,
		Fingerprint: meta.Fingerprint,
	})
}
