package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/trogers1052/pattern-review-service/internal/database"
	"github.com/trogers1052/pattern-review-service/internal/models"
	"github.com/trogers1052/pattern-review-service/internal/realtime"
	"github.com/trogers1052/pattern-review-service/internal/review"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	svc      *review.Service
	db       *database.DB
	redis    *realtime.Client
	presence *realtime.PresenceThrottle
}

// NewHandler creates a new Handler
func NewHandler(svc *review.Service, db *database.DB, redisClient *realtime.Client, presence *realtime.PresenceThrottle) *Handler {
	return &Handler{
		svc:      svc,
		db:       db,
		redis:    redisClient,
		presence: presence,
	}
}

// userID extracts the authenticated user from the request. The gateway in
// front of this service sets X-User-ID after auth.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// GetFeed handles GET /sessions/{sessionID}/feed
func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q := review.FeedQuery{
		SessionID:      vars["sessionID"],
		SortMode:       r.URL.Query().Get("sort"),
		IncludeReplies: r.URL.Query().Get("include_replies") != "false",
	}
	if page := r.URL.Query().Get("page"); page != "" {
		q.Page, _ = strconv.Atoi(page)
	}
	if size := r.URL.Query().Get("page_size"); size != "" {
		q.PageSize, _ = strconv.Atoi(size)
	}

	start := time.Now()
	feed, err := h.svc.GetFeed(r.Context(), q)
	if err != nil {
		respondError(w, err)
		return
	}
	feedLatency.Observe(time.Since(start).Seconds())

	respondJSON(w, http.StatusOK, feed)
}

// GetThread handles GET /comments/{commentID}/thread
func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	thread, err := h.svc.GetThread(r.Context(), vars["commentID"])
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, thread)
}

// GetDetections handles GET /sessions/{sessionID}/detections
func (h *Handler) GetDetections(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	detections, err := h.svc.ListDetections(r.Context(), vars["sessionID"], r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, err)
		return
	}
	if detections == nil {
		detections = []*models.Detection{}
	}

	respondJSON(w, http.StatusOK, detections)
}

// GetCorrectionSummary handles GET /sessions/{sessionID}/corrections/summary
func (h *Handler) GetCorrectionSummary(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	summary, err := h.svc.CorrectionSummary(r.Context(), vars["sessionID"])
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// CastVote handles POST /votes
func (h *Handler) CastVote(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
		return
	}

	var req struct {
		ItemType string `json:"item_type"`
		ItemID   string `json:"item_id"`
		Value    int    `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.svc.CastVote(r.Context(), user, req.ItemType, req.ItemID, req.Value)
	if err != nil {
		respondError(w, err)
		return
	}
	votesCast.WithLabelValues(req.ItemType).Inc()

	respondJSON(w, http.StatusOK, result)
}

// ApplyCorrection handles POST /sessions/{sessionID}/corrections
func (h *Handler) ApplyCorrection(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)

	var req struct {
		Type        string              `json:"type"`
		DetectionID *string             `json:"detection_id,omitempty"`
		Corrected   *models.CandlePoint `json:"corrected,omitempty"`
		Reason      string              `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	correction, err := h.svc.ApplyCorrection(r.Context(), review.ApplyCorrectionRequest{
		SessionID:   vars["sessionID"],
		DetectionID: req.DetectionID,
		Type:        req.Type,
		Corrected:   req.Corrected,
		Reason:      req.Reason,
		AuthorID:    user,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	correctionsApplied.WithLabelValues(req.Type).Inc()

	respondJSON(w, http.StatusCreated, correction)
}

// UndoCorrection handles POST /corrections/{correctionID}/undo
func (h *Handler) UndoCorrection(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)

	correction, err := h.svc.UndoCorrection(r.Context(), vars["correctionID"], user)
	if err != nil {
		respondError(w, err)
		return
	}
	correctionsUndone.Inc()

	respondJSON(w, http.StatusOK, correction)
}

// PostComment handles POST /sessions/{sessionID}/comments
func (h *Handler) PostComment(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)

	var req struct {
		Content      string  `json:"content"`
		ParentID     *string `json:"parent_id,omitempty"`
		CorrectionID *string `json:"correction_id,omitempty"`
		DetectionID  *string `json:"detection_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	comment, err := h.svc.PostComment(r.Context(), review.PostCommentRequest{
		SessionID:    vars["sessionID"],
		AuthorID:     user,
		Content:      req.Content,
		ParentID:     req.ParentID,
		CorrectionID: req.CorrectionID,
		DetectionID:  req.DetectionID,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	commentsPosted.Inc()

	respondJSON(w, http.StatusCreated, comment)
}

// EditComment handles PUT /comments/{commentID}
func (h *Handler) EditComment(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	comment, err := h.svc.EditComment(r.Context(), vars["commentID"], user, req.Content)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, comment)
}

// ResolveComment handles PUT /comments/{commentID}/resolve
func (h *Handler) ResolveComment(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)

	var req struct {
		Resolved bool `json:"resolved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	comment, err := h.svc.ResolveComment(r.Context(), vars["commentID"], user, req.Resolved)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, comment)
}

// BroadcastPresence handles POST /sessions/{sessionID}/presence
func (h *Handler) BroadcastPresence(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
		return
	}
	if h.presence == nil {
		http.Error(w, "presence transport unavailable", http.StatusServiceUnavailable)
		return
	}
	vars := mux.Vars(r)

	var req struct {
		CandleIndex int    `json:"candle_index"`
		Price       string `json:"price,omitempty"`
		Tool        string `json:"tool,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sent := h.presence.Broadcast(r.Context(), &models.PresenceEvent{
		SessionID:   vars["sessionID"],
		UserID:      user,
		CandleIndex: req.CandleIndex,
		Price:       req.Price,
		Tool:        req.Tool,
	})

	respondJSON(w, http.StatusAccepted, map[string]bool{"sent": sent})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  map[string]string{},
	}
	services := health["services"].(map[string]string)
	allHealthy := true

	// Check database
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			services["postgres"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			services["postgres"] = "healthy"
		}
	} else {
		services["postgres"] = "not configured"
		allHealthy = false
	}

	// Check Redis
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			services["redis"] = "unhealthy: " + err.Error()
		} else {
			services["redis"] = "healthy"
		}
	} else {
		services["redis"] = "not configured"
	}

	if !allHealthy {
		health["status"] = "degraded"
	}

	respondJSON(w, http.StatusOK, health)
}

// respondError maps review sentinel errors onto HTTP status codes.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, review.ErrInvalidVoteValue), errors.Is(err, review.ErrInvalidPayload):
		status = http.StatusBadRequest
	case errors.Is(err, review.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, review.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, review.ErrAlreadyInState), errors.Is(err, review.ErrConflictingEdits):
		status = http.StatusConflict
	case errors.Is(err, review.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
		http.Error(w, "internal server error", status)
		return
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
