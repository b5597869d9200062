package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/xelth-com/colocacion/internal/cache"
	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/logger"
	"github.com/xelth-com/colocacion/internal/metrics"
	"github.com/xelth-com/colocacion/internal/middleware"
	"github.com/xelth-com/colocacion/internal/printqueue"
	"github.com/xelth-com/colocacion/internal/services/placement"
	"github.com/xelth-com/colocacion/internal/sync"
	"github.com/xelth-com/colocacion/internal/websocket"
)

// Deps are the services exposed over HTTP
type Deps struct {
	Placement *placement.Service
	Sync      *sync.Engine
	Queue     *printqueue.Queue
	Cache     *cache.Cache
	Hub       *websocket.Hub
	Metrics   *metrics.Metrics
	JWTSecret string
	Version   string
}

// Router wraps the mux router and the services behind it
type Router struct {
	*mux.Router
	deps Deps
	log  zerolog.Logger
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(deps Deps) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		deps:   deps,
		log:    logger.Component("http"),
	}
	r.Use(middleware.Instrument(deps.Metrics))

	// Public endpoints
	r.HandleFunc("/health", r.healthCheck).Methods("GET")
	r.Handle("/metrics", deps.Metrics.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(deps.JWTSecret))

	// Products
	api.HandleFunc("/products/{barcode}", r.getProduct).Methods("GET")
	api.HandleFunc("/products/{barcode}", r.updateProduct).Methods("PUT")
	api.HandleFunc("/products/{barcode}/history", r.productHistory).Methods("GET")

	// Undo / redo
	api.HandleFunc("/operations", r.listOperations).Methods("GET")
	api.HandleFunc("/operations/undo", r.undo).Methods("POST")
	api.HandleFunc("/operations/redo", r.redo).Methods("POST")

	// ERP sync
	api.HandleFunc("/sync/status", r.syncStatus).Methods("GET")
	api.HandleFunc("/sync/products/{id:[0-9]+}", r.syncProduct).Methods("POST")
	api.HandleFunc("/sync/products/{id:[0-9]+}/push", r.pushProduct).Methods("POST")
	api.HandleFunc("/sync/conflicts", r.listConflicts).Methods("GET")
	api.HandleFunc("/sync/conflicts/{id:[0-9]+}/{field}", r.resolveConflict).Methods("POST")

	// Printing
	api.HandleFunc("/print/queue", r.queueStatus).Methods("GET")
	api.HandleFunc("/print/jobs", r.listJobs).Methods("GET")
	api.HandleFunc("/print/jobs", r.createJob).Methods("POST")
	api.HandleFunc("/print/jobs/pending", r.printPending).Methods("POST")
	api.HandleFunc("/print/jobs/{id}", r.getJob).Methods("GET")
	api.HandleFunc("/print/jobs/{id}", r.cancelJob).Methods("DELETE")

	// Device notifications
	api.HandleFunc("/ws", r.serveWs).Methods("GET")

	// Admin
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/sync/full", r.fullSync).Methods("POST")
	admin.HandleFunc("/print/stats/reset", r.resetQueueStats).Methods("POST")
	admin.HandleFunc("/cache", r.cacheStats).Methods("GET")
	admin.HandleFunc("/cache", r.clearCache).Methods("DELETE")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": r.deps.Version,
	})
}

func (r *Router) actor(req *http.Request) middleware.Actor {
	a, _ := middleware.ActorFrom(req.Context())
	return a
}

// decode reads a JSON body; an empty body leaves v untouched
func decode(req *http.Request, v interface{}) error {
	if req.Body == nil || req.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		return errs.Validation("invalid request body: %v", err)
	}
	return nil
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errs.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errs.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errs.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errs.Is(err, errs.ErrSyncInProgress), errs.Is(err, errs.ErrConflict):
		return http.StatusConflict
	case errs.Is(err, errs.ErrBusy):
		return http.StatusLocked
	case errs.Is(err, errs.ErrExternal):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail writes err with the status its mark implies
func (r *Router) fail(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		r.log.Error().Err(err).Str("path", req.URL.Path).Msg("request failed")
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}
