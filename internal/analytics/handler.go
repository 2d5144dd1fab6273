package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/amitco96/Information-Retrieval/pkg/errors"
)

// Scopes reported by the stats endpoint.
const (
	// ScopeInstance covers searches served by this process only.
	ScopeInstance = "instance"
	// ScopeFleet covers every searcher publishing to the events topic.
	ScopeFleet = "fleet"
)

// maxTopN caps the ?top= query parameter.
const maxTopN = 100

// DropCounter reports events lost before publishing. *Collector
// implements it.
type DropCounter interface {
	Dropped() int64
}

// StatsResponse is the body of GET /api/v1/analytics.
type StatsResponse struct {
	Scope string `json:"scope"`
	AggregatedStats
	// DroppedEvents is only set on instances that publish events.
	DroppedEvents *int64 `json:"dropped_events,omitempty"`
}

// Handler serves aggregated search statistics.
type Handler struct {
	aggregator *Aggregator
	scope      string
	drops      DropCounter
	logger     *slog.Logger
}

type HandlerOption func(*Handler)

// WithScope labels the statistics; the default is ScopeInstance.
func WithScope(scope string) HandlerOption {
	return func(h *Handler) { h.scope = scope }
}

// WithDropCounter adds the publisher's dropped event count to responses.
func WithDropCounter(d DropCounter) HandlerOption {
	return func(h *Handler) { h.drops = d }
}

func NewHandler(aggregator *Aggregator, opts ...HandlerOption) *Handler {
	h := &Handler{
		aggregator: aggregator,
		scope:      ScopeInstance,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = slog.Default().With("component", "analytics-handler", "scope", h.scope)
	return h
}

// Stats handles GET /api/v1/analytics[?top=N].
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top, err := parseTop(r.URL.Query().Get("top"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := StatsResponse{
		Scope:           h.scope,
		AggregatedStats: h.aggregator.StatsTop(top),
	}
	if h.drops != nil {
		dropped := h.drops.Dropped()
		resp.DroppedEvents = &dropped
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func parseTop(raw string) (int, error) {
	if raw == "" {
		return DefaultTopN, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxTopN {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"top %q must be an integer between 1 and %d", raw, maxTopN)
	}
	return n, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.logger.Warn("analytics request rejected", "error", err)
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": apperrors.PublicMessage(err)})
}
