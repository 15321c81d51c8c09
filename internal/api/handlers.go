// Package api exposes HTTP handlers for the feed service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"example.com/feed/internal/auth"
	"example.com/feed/internal/domain"
	"example.com/feed/internal/observability"
)

// DefaultFeedLimit is the page size used when the caller does not ask for one.
const DefaultFeedLimit = 50

// FeedReader is the slice of the domain service the handlers use.
type FeedReader interface {
	GetFeed(ctx context.Context, recipientID string, limit, offset int) ([]domain.ActivityRecord, error)
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	feed FeedReader
}

// NewHandler builds a Handler.
func NewHandler(feed FeedReader) *Handler {
	return &Handler{feed: feed}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/feed", h.getFeed)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) getFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeFeedRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope feed:read required")
		return
	}

	limit := DefaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	// GetFeed clamps to the hard maximum regardless of what arrived here.

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	records, err := h.feed.GetFeed(r.Context(), claims.Subject, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	observability.RecordFeedRead()

	items := make([]FeedItemView, 0, len(records))
	for _, rec := range records {
		items = append(items, toFeedItemView(rec))
	}

	writeJSON(w, http.StatusOK, FeedResponse{Items: items, Count: len(items)})
}

// FeedResponse packages feed results.
type FeedResponse struct {
	Items []FeedItemView `json:"items"`
	Count int            `json:"count"`
}

// FeedItemView is one rendered feed entry. Payload branches mirror the
// stored snapshot; no enrichment happens at read time.
type FeedItemView struct {
	ID        string                `json:"id"`
	Kind      string                `json:"kind"`
	ActorID   string                `json:"actor_id"`
	CreatedAt time.Time             `json:"created_at"`
	Review    *domain.ReviewPayload `json:"review,omitempty"`
	Follow    *domain.FollowPayload `json:"follow,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toFeedItemView(rec domain.ActivityRecord) FeedItemView {
	return FeedItemView{
		ID:        rec.ID,
		Kind:      DisplayKind(rec),
		ActorID:   rec.ActorID,
		CreatedAt: rec.CreatedAt,
		Review:    rec.Payload.Review,
		Follow:    rec.Payload.Follow,
	}
}
