package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/device-services/dsc/internal/auth"
	"github.com/device-services/dsc/internal/geoloc"
)

// registerRoutes registers all v1 endpoints with their scope requirements.
func (s *Server) registerRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()

	read := func(h http.HandlerFunc) http.HandlerFunc {
		return s.authMW.RequireAuth(s.authMW.RequireScope(auth.ScopeRead)(h))
	}
	control := func(h http.HandlerFunc) http.HandlerFunc {
		return s.authMW.RequireAuth(s.authMW.RequireScope(auth.ScopeControl)(h))
	}
	events := func(h http.HandlerFunc) http.HandlerFunc {
		return s.authMW.RequireAuth(s.authMW.RequireScope(auth.ScopeEvents)(h))
	}

	// Health endpoint (no auth required)
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/capabilities", read(s.handleCapabilities)).Methods(http.MethodGet)

	// Position endpoints
	v1.HandleFunc("/position", read(s.handlePosition)).Methods(http.MethodGet)
	v1.HandleFunc("/position/last", read(s.handleLastPosition)).Methods(http.MethodGet)

	// Provider endpoints
	v1.HandleFunc("/providers", read(s.handleProviders)).Methods(http.MethodGet)
	v1.HandleFunc("/providers/select", control(s.handleSelectProvider)).Methods(http.MethodPost)

	// Watch endpoints
	v1.HandleFunc("/watches", control(s.handleStartWatch)).Methods(http.MethodPost)
	v1.HandleFunc("/watches", read(s.handleListWatches)).Methods(http.MethodGet)
	v1.HandleFunc("/watches/{id}", read(s.handleGetWatch)).Methods(http.MethodGet)
	v1.HandleFunc("/watches/{id}", control(s.handleStopWatch)).Methods(http.MethodDelete)

	// Record endpoints
	v1.HandleFunc("/sources", read(s.handleListSources)).Methods(http.MethodGet)
	v1.HandleFunc("/sources/{source}/records", read(s.handleListRecords)).Methods(http.MethodGet)
	v1.HandleFunc("/sources/{source}/records", control(s.handleCreateRecord)).Methods(http.MethodPost)
	v1.HandleFunc("/sources/{source}/records/{id}", read(s.handleGetRecord)).Methods(http.MethodGet)
	v1.HandleFunc("/sources/{source}/records/{id}", control(s.handleUpdateRecord)).Methods(http.MethodPut)
	v1.HandleFunc("/sources/{source}/records/{id}", control(s.handleDeleteRecord)).Methods(http.MethodDelete)
	v1.HandleFunc("/sources/{source}/commit", control(s.handleCommitSource)).Methods(http.MethodPost)
	v1.HandleFunc("/sources/{source}/reject", control(s.handleRejectSource)).Methods(http.MethodPost)
	v1.HandleFunc("/sources/{source}/sync", control(s.handleSyncSource)).Methods(http.MethodPost)

	// Event stream
	v1.HandleFunc("/events", events(s.handleEvents)).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]interface{}{
		"status":    "ok",
		"uptimeSec": int64(time.Since(s.startTime).Seconds()),
	})
}

// handleCapabilities handles GET /capabilities
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]interface{}{
		"events":   []string{"sse"},
		"commands": []string{"http-json"},
		"sources":  s.records.Sources(),
		"version":  "1.0.0",
	})
}

// handlePosition handles GET /position
//
// Query parameters: highAccuracy (bool), timeout (duration), maximumAge
// (duration). Missing parameters inherit the configured defaults.
func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	opts, err := s.positionOptions(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}

	pos, err := s.geoloc.Current(r.Context(), opts)
	if err != nil {
		WriteNormalizedError(w, err)
		return
	}

	WriteSuccess(w, pos)
}

// handleLastPosition handles GET /position/last
func (s *Server) handleLastPosition(w http.ResponseWriter, r *http.Request) {
	last := s.geoloc.Last()
	if !last.Known {
		WriteSuccess(w, map[string]interface{}{"known": false})
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"known":    true,
		"position": last.Position,
	})
}

// positionOptions parses acquisition options from query parameters.
func (s *Server) positionOptions(r *http.Request) (geoloc.Options, error) {
	q := r.URL.Query()
	opts := geoloc.Options{
		HighAccuracy: s.geolocCfg.HighAccuracy,
		MaximumAge:   s.geolocCfg.MaximumAge,
	}

	if v := q.Get("highAccuracy"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, badParam("highAccuracy")
		}
		opts.HighAccuracy = b
	}
	if v := q.Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return opts, badParam("timeout")
		}
		opts.Timeout = d
	}
	if v := q.Get("maximumAge"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return opts, badParam("maximumAge")
		}
		opts.MaximumAge = d
	}

	return opts, nil
}

// handleProviders handles GET /providers
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, s.registry.List())
}

// handleSelectProvider handles POST /providers/select
func (s *Server) handleSelectProvider(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProviderID string `json:"providerId"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.ProviderID == "" {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "providerId is required", nil)
		return
	}

	if err := s.registry.SetActive(req.ProviderID); err != nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Provider not found", nil)
		return
	}

	s.logger.Info("active provider changed", zap.String("provider", req.ProviderID))
	WriteSuccess(w, map[string]interface{}{"active": req.ProviderID})
}

// handleStartWatch handles POST /watches
func (s *Server) handleStartWatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HighAccuracy bool    `json:"highAccuracy"`
		PollInterval string  `json:"pollInterval"`
		Timeout      string  `json:"timeout"`
		MinDistance  float64 `json:"minDistance"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	opts := geoloc.Options{
		HighAccuracy: req.HighAccuracy,
		MinDistance:  req.MinDistance,
	}
	if req.PollInterval != "" {
		d, err := time.ParseDuration(req.PollInterval)
		if err != nil || d <= 0 {
			WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid pollInterval", nil)
			return
		}
		opts.PollInterval = d
	}
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid timeout", nil)
			return
		}
		opts.Timeout = d
	}
	if req.MinDistance < 0 {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "minDistance must not be negative", nil)
		return
	}

	id, err := s.geoloc.StartWatch(r.Context(), opts)
	if err != nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Watch could not be started", nil)
		return
	}

	WriteCreated(w, map[string]interface{}{"watchId": id})
}

// handleListWatches handles GET /watches
func (s *Server) handleListWatches(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]interface{}{"watches": s.geoloc.Watches()})
}

// handleGetWatch handles GET /watches/{id}
func (s *Server) handleGetWatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	info, ok := s.geoloc.Watch(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Watch not found", nil)
		return
	}

	WriteSuccess(w, info)
}

// handleStopWatch handles DELETE /watches/{id}
//
// Stopping an unknown watch succeeds: the caller's goal state holds either
// way.
func (s *Server) handleStopWatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.geoloc.StopWatch(r.Context(), id)
	WriteSuccess(w, map[string]interface{}{"stopped": id})
}

// handleEvents handles GET /events (SSE)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.Subscribe(r.Context(), w, r); err != nil {
		s.logger.Warn("event subscription failed", zap.Error(err))
	}
}
