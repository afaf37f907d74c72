package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check and metrics
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Session-scoped routes
	api.HandleFunc("/sessions/{sessionID}/feed", handler.GetFeed).Methods("GET")
	api.HandleFunc("/sessions/{sessionID}/detections", handler.GetDetections).Methods("GET")
	api.HandleFunc("/sessions/{sessionID}/corrections", handler.ApplyCorrection).Methods("POST")
	api.HandleFunc("/sessions/{sessionID}/corrections/summary", handler.GetCorrectionSummary).Methods("GET")
	api.HandleFunc("/sessions/{sessionID}/comments", handler.PostComment).Methods("POST")
	api.HandleFunc("/sessions/{sessionID}/presence", handler.BroadcastPresence).Methods("POST")

	// Correction routes
	api.HandleFunc("/corrections/{correctionID}/undo", handler.UndoCorrection).Methods("POST")

	// Comment routes
	api.HandleFunc("/comments/{commentID}", handler.EditComment).Methods("PUT")
	api.HandleFunc("/comments/{commentID}/resolve", handler.ResolveComment).Methods("PUT")
	api.HandleFunc("/comments/{commentID}/thread", handler.GetThread).Methods("GET")

	// Votes
	api.HandleFunc("/votes", handler.CastVote).Methods("POST")

	return r
}
