// Package handler provides the HTTP preview and diagnostics API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"uptain-sync/internal/aggregate"
	"uptain-sync/internal/consent"
	"uptain-sync/internal/model"
	"uptain-sync/internal/revenue"
	"uptain-sync/internal/scriptsync"
	"uptain-sync/internal/shopapi"
)

// Runtime is the configuration-derived part of the handler. It is swapped
// as a whole when the config file changes.
type Runtime struct {
	Settings   aggregate.Settings
	Script     scriptsync.Settings
	Policy     consent.Policy
	Predicates aggregate.Predicates
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	shop   *shopapi.Client // nil disables order and wishlist fetches
	live   *Live           // nil disables the /live routes
	logger *slog.Logger

	mu sync.RWMutex
	rt Runtime
}

// New creates a Handler. shop and live may be nil.
func New(rt Runtime, shop *shopapi.Client, live *Live, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{rt: rt, shop: shop, live: live, logger: logger}
}

// Reconfigure replaces the runtime settings and passes them on to the live
// session. Requests already running keep the settings they started with.
func (h *Handler) Reconfigure(rt Runtime) {
	h.mu.Lock()
	h.rt = rt
	h.mu.Unlock()

	if h.live != nil {
		h.live.Reconfigure(rt)
	}
}

func (h *Handler) runtime() Runtime {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rt
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Preview
	mux.HandleFunc("POST /snapshot", h.handleSnapshot)
	mux.HandleFunc("POST /script", h.handleScript)
	mux.HandleFunc("POST /consent/resolve", h.handleResolveConsent)

	// Diagnostics
	mux.HandleFunc("POST /debug/decode", h.handleDebugDecode)

	// Live session
	if h.live != nil {
		mux.HandleFunc("PUT /live/state", h.handleLiveState)
		mux.HandleFunc("POST /live/events", h.handleLiveEvent)
		mux.HandleFunc("GET /live/script", h.handleLiveScript)
	}

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// newBuilder creates a snapshot builder for one request.
func (h *Handler) newBuilder(rt Runtime, session string) *aggregate.Builder {
	return newBuilder(rt, h.shop, session, nil, h.logger)
}

// newBuilder creates a snapshot builder. With a shop client and a session
// token, revenue and wishlist are fetched for that session. A nil rev gets a
// fresh calculator scoped to the builder.
func newBuilder(rt Runtime, shop *shopapi.Client, session string, rev aggregate.RevenueSource, logger *slog.Logger, extra ...aggregate.Option) *aggregate.Builder {
	opts := []aggregate.Option{aggregate.WithLogger(logger)}
	if rt.Predicates != nil {
		opts = append(opts, aggregate.WithPredicates(rt.Predicates))
	}
	if shop != nil && session != "" {
		client := shop.ForSession(session)
		if rev == nil {
			rev = revenue.NewCalculator(client, revenue.WithLogger(logger))
		}
		opts = append(opts,
			aggregate.WithRevenue(rev),
			aggregate.WithWishlistFetcher(client),
		)
	}
	return aggregate.NewBuilder(rt.Settings, append(opts, extra...)...)
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	rt := h.runtime()
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Configured: rt.Script.Enabled && rt.Settings.Configured(),
	})
}

type healthResponse struct {
	Status     string `json:"status"`
	Configured bool   `json:"tracker_configured"`
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Errors outside the APIError chain are logged and reported as internal errors.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := model.AsAPIError(err)
	if apiErr.Internal() {
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Field:   apiErr.Field,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.NewPayloadTooLargeError(tooLarge.Limit)
		}
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
