package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"physio-replay/pkg/database"
	"physio-replay/pkg/loader"
	"physio-replay/pkg/monitor"
	"physio-replay/pkg/record"
	"physio-replay/pkg/trend"
)

// =======================
// Public API entry points
// =======================

// Upload size cap. EDF captures of a few minutes fit comfortably; anything
// larger is almost certainly the wrong file.
const maxUploadBytes = 64 << 20

// Trend resolution bounds. Fewer than 16 points is too coarse to read and
// more than 2048 defeats the point of decimating.
const (
	minTrendPoints = 16
	maxTrendPoints = 2048
)

// Handler translates HTTP requests into engine calls so routes stay small
// and focused on parsing parameters and choosing status codes.
type Handler struct {
	Engine  *monitor.Engine
	Limiter *UploadLimiter
	Trends  *TrendCache
	Logf    func(string, ...any)
}

// NewHandler constructs a Handler. Limiter, cache and Logf are optional;
// pass nil to disable upload throttling, trend caching or logging.
func NewHandler(engine *monitor.Engine, limiter *UploadLimiter, trends *TrendCache, logf func(string, ...any)) *Handler {
	return &Handler{Engine: engine, Limiter: limiter, Trends: trends, Logf: logf}
}

// Register attaches API routes to the provided mux. We keep the method tiny
// and declarative: it simply wires URLs to helpers, avoiding clever routing
// that could obscure how requests are served.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api", h.handleOverview)
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/upload/", h.handleUpload)
	for _, kind := range record.Kinds() {
		k := kind
		mux.HandleFunc("/api/"+string(k)+"/live", func(w http.ResponseWriter, r *http.Request) {
			h.handleLive(w, r, k)
		})
		mux.HandleFunc("/api/"+string(k)+"/trend", func(w http.ResponseWriter, r *http.Request) {
			h.handleTrend(w, r, k)
		})
		mux.HandleFunc("/api/"+string(k)+"/stream", func(w http.ResponseWriter, r *http.Request) {
			h.handleStream(w, r, k)
		})
	}
}

// handleOverview publishes machine-readable docs so developers understand
// which endpoints to call without reading source.
func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	kinds := record.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}

	overview := struct {
		Kinds     []string       `json:"kinds"`
		Endpoints map[string]any `json:"endpoints"`
	}{
		Kinds: names,
		Endpoints: map[string]any{
			"upload": map[string]any{
				"method":      "POST",
				"path":        "/api/upload/{kind}",
				"form":        []string{"file"},
				"description": "Uploads a capture (.edf, .csv or .json) and replaces the kind's active record.",
			},
			"live": map[string]any{
				"method":      "GET",
				"path":        "/api/{kind}/live",
				"description": "Returns the next scrolling window. Every call advances playback by one step.",
			},
			"trend": map[string]any{
				"method":      "GET",
				"path":        "/api/{kind}/trend",
				"query":       []string{"channels", "points"},
				"description": "Returns a bounded-size summary of the full record, independent of playback.",
			},
			"stream": map[string]any{
				"method":      "GET",
				"path":        "/api/{kind}/stream",
				"description": "Server-Sent Events feed pushing one live window per second.",
			},
			"history": map[string]any{
				"method":      "GET",
				"path":        "/api/history",
				"query":       []string{"limit"},
				"description": "Lists recent uploads from the advisory catalog, newest first.",
			},
		},
	}

	h.respondJSON(w, overview)
}

// handleUpload accepts a multipart capture file and hands it to the engine.
// The kind comes from the path so each signal class has a stable URL.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	kind, ok := record.ParseKind(strings.TrimPrefix(r.URL.Path, "/api/upload/"))
	if !ok {
		http.Error(w, "unknown record kind", http.StatusNotFound)
		return
	}

	if h.Limiter != nil {
		permit, err := h.Limiter.Acquire(r.Context(), clientIP(r))
		if err != nil {
			http.Error(w, "upload queue cancelled", http.StatusRequestTimeout)
			return
		}
		defer permit.Release()
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "multipart field 'file' required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	summary, err := h.Engine.Ingest(r.Context(), kind, header.Filename, file)
	if err != nil {
		http.Error(w, err.Error(), uploadStatus(err))
		return
	}

	// The new record makes every cached summary for this kind stale.
	h.Trends.Invalidate(string(kind) + "|")

	h.respondJSON(w, summary)
}

// handleLive serves the next scrolling window for one kind.
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request, kind record.Kind) {
	res, err := h.Engine.LiveWindow(kind)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	h.respondJSON(w, res)
}

// handleTrend serves the bounded summary view. channels is a comma list,
// empty meaning all. points is clamped rather than rejected so a sloppy
// client still gets a usable answer.
func (h *Handler) handleTrend(w http.ResponseWriter, r *http.Request, kind record.Kind) {
	q := r.URL.Query()
	points := clampInt(parseIntDefault(q.Get("points"), monitor.DefaultTrendPoints), minTrendPoints, maxTrendPoints)

	var channels []string
	if raw := q.Get("channels"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				channels = append(channels, c)
			}
		}
	}

	render := func(context.Context) ([]byte, error) {
		series, err := h.Engine.Trend(kind, channels, points)
		if err != nil {
			return nil, err
		}
		return json.MarshalIndent(struct {
			Kind     string                  `json:"kind"`
			Points   int                     `json:"points"`
			Channels map[string]trend.Series `json:"channels"`
		}{
			Kind:     string(kind),
			Points:   points,
			Channels: series,
		}, "", "  ")
	}

	key := string(kind) + "|" + strings.Join(channels, ",") + "|" + strconv.Itoa(points)
	body, err := h.Trends.Get(r.Context(), key, render)
	if errors.Is(err, errCacheDisabled) || errors.Is(err, errCacheStopped) {
		body, err = render(r.Context())
	}
	if err != nil {
		h.respondEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// handleHistory lists recent catalog rows, newest first. An engine without
// a catalog yields an empty list rather than an error.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(parseIntDefault(r.URL.Query().Get("limit"), 50), 1, 500)

	uploads, err := h.Engine.History(r.Context(), limit)
	if err != nil {
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		if h.Logf != nil {
			h.Logf("history query error: %v", err)
		}
		return
	}
	if uploads == nil {
		uploads = []database.Upload{}
	}

	h.respondJSON(w, struct {
		Limit   int               `json:"limit"`
		Uploads []database.Upload `json:"uploads"`
	}{Limit: limit, Uploads: uploads})
}

// =====================
// Utility helpers
// =====================

func (h *Handler) respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// respondEngineError maps engine sentinels onto status codes: a missing
// record is the caller's sequencing mistake, everything else is ours.
func (h *Handler) respondEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, monitor.ErrNoRecordLoaded) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
	if h.Logf != nil {
		h.Logf("engine error: %v", err)
	}
}

// uploadStatus distinguishes client mistakes (bad file) from server faults.
func uploadStatus(err error) int {
	switch {
	case errors.Is(err, record.ErrMalformedRecord),
		errors.Is(err, record.ErrEmptyRecord),
		errors.Is(err, loader.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
