// Package api provides the HTTP and WebSocket server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/wealthpath-desktop/wealth-backend/internal/config"
	"github.com/wealthpath-desktop/wealth-backend/internal/data"
	"github.com/wealthpath-desktop/wealth-backend/internal/metrics"
	"github.com/wealthpath-desktop/wealth-backend/internal/simulation"
	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// Server is the HTTP/WebSocket API server
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	cfg        *config.Config
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hub        *Hub
	catalog    *data.Catalog
	validator  *data.SeriesValidator
	metrics    *metrics.Metrics
	started    time.Time
	runs       map[string]*RunState
}

// RunState tracks a simulation run through its lifecycle. All fields except
// ID, Engine, Started and Total are guarded by the server mutex.
type RunState struct {
	ID        string
	Engine    *simulation.Engine
	Status    types.RunStatus
	Started   time.Time
	Total     int
	Completed int
	Pct       float64
	Output    *types.SimulationOutput
	Error     string
	cancel    context.CancelFunc
}

// progress snapshots the run as a progress message. Caller holds the server
// mutex.
func (st *RunState) progress() *types.SimulationProgress {
	return &types.SimulationProgress{
		RunID:               st.ID,
		Status:              st.Status,
		Progress:            st.Pct,
		CompletedIterations: st.Completed,
		TotalIterations:     st.Total,
		StartedAt:           st.Started,
		Error:               st.Error,
	}
}

// NewServer creates a new API server
func NewServer(logger *zap.Logger, cfg *config.Config, catalog *data.Catalog, hub *Hub, m *metrics.Metrics) *Server {
	server := &Server{
		logger:    logger,
		cfg:       cfg,
		router:    mux.NewRouter(),
		hub:       hub,
		catalog:   catalog,
		validator: data.NewSeriesValidator(logger),
		metrics:   m,
		started:   time.Now(),
		runs:      make(map[string]*RunState),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Origin policy is enforced by the CORS layer
			},
		},
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	// Health check
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")

	// Return-series catalog
	s.router.HandleFunc("/api/v1/assets", s.handleListAssets).Methods("GET")
	s.router.HandleFunc("/api/v1/assets", s.handleSaveAsset).Methods("POST")
	s.router.HandleFunc("/api/v1/assets/{id}", s.handleGetAsset).Methods("GET")

	// Simulation runs
	s.router.HandleFunc("/api/v1/simulations", s.handleCreateSimulation).Methods("POST")
	s.router.HandleFunc("/api/v1/simulations", s.handleListSimulations).Methods("GET")
	s.router.HandleFunc("/api/v1/simulations/{id}", s.handleGetSimulation).Methods("GET")
	s.router.HandleFunc("/api/v1/simulations/{id}/output", s.handleGetOutput).Methods("GET")
	s.router.HandleFunc("/api/v1/simulations/{id}/cancel", s.handleCancelSimulation).Methods("POST")

	// Prometheus scrape endpoint
	s.router.Handle("/metrics", s.metrics.Handler())

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Router exposes the route table for embedding in tests and other servers.
func (s *Server) Router() *mux.Router {
	return s.router
}

// logRequests logs every request with its handling time
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	handler := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORS.Origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("Starting API server", zap.String("addr", s.cfg.Addr()))

	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"time":    time.Now().Unix(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"series":  len(s.catalog.IDs()),
		"clients": s.hub.ClientCount(),
	})
}

// handleListAssets returns the catalog's return series
func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	infos := s.catalog.List()

	json.NewEncoder(w).Encode(map[string]interface{}{
		"assets": infos,
		"count":  len(infos),
	})
}

// handleGetAsset returns one series with its quality assessment
func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	series, err := s.catalog.Get(id)
	if err != nil {
		if errors.Is(err, data.ErrSeriesNotFound) {
			http.Error(w, "Series not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"series":  series,
		"quality": s.validator.Validate(series),
	})
}

// handleSaveAsset stores a new return series after quality screening
func (s *Server) handleSaveAsset(w http.ResponseWriter, r *http.Request) {
	var series data.Series
	if err := json.NewDecoder(r.Body).Decode(&series); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if series.ID == "" {
		http.Error(w, "Series id is required", http.StatusBadRequest)
		return
	}

	report := s.validator.Validate(&series)
	if !report.IsUsable {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":   "series failed quality checks",
			"quality": report,
		})
		return
	}

	if err := s.catalog.Save(&series); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      series.ID,
		"quality": report,
	})
}

// resolveAssets fills in catalog-backed assets in place. Series that fail
// quality screening never reach the engine.
func (s *Server) resolveAssets(assets []types.PortfolioAsset) error {
	for i := range assets {
		a := &assets[i]
		if len(a.Returns) > 0 || a.CatalogID == "" {
			continue
		}

		series, err := s.catalog.Get(a.CatalogID)
		if err != nil {
			return fmt.Errorf("asset %q: %w", a.ID, err)
		}

		report := s.validator.Validate(series)
		if !report.IsUsable {
			return fmt.Errorf("asset %q: series %q failed quality checks (score %d)",
				a.ID, series.ID, report.QualityScore)
		}

		a.Returns = series.Returns
		if a.Name == "" {
			a.Name = series.Name
		}
		if a.Class == "" {
			a.Class = series.AssetClass
		}
	}
	return nil
}

// handleCreateSimulation starts a new simulation run
func (s *Server) handleCreateSimulation(w http.ResponseWriter, r *http.Request) {
	var req types.SimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.resolveAssets(req.Assets); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Server-side defaults for the execution knobs
	if req.Config.Workers == 0 {
		req.Config.Workers = s.cfg.Simulation.Workers
	}
	if req.Config.BatchSize == 0 {
		req.Config.BatchSize = s.cfg.Simulation.BatchSize
	}

	req.Config.Normalize()
	if err := req.Config.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := types.ValidatePortfolio(req.Assets); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	engine := simulation.NewEngine(s.logger)
	ctx, cancel := context.WithCancel(context.Background())

	state := &RunState{
		ID:      engine.ID(),
		Engine:  engine,
		Status:  types.RunStatusPending,
		Started: time.Now(),
		Total:   req.Config.Iterations,
		cancel:  cancel,
	}

	s.mu.Lock()
	s.runs[state.ID] = state
	s.mu.Unlock()

	engine.OnProgress(func(pct float64, completed, total int) {
		s.mu.Lock()
		state.Pct = pct
		state.Completed = completed
		snapshot := state.progress()
		s.mu.Unlock()

		s.metrics.BatchCompleted()
		s.hub.BroadcastProgress(snapshot)
	})

	s.metrics.RunStarted()

	// Run simulation in background
	go s.runSimulation(ctx, state, &req)

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      state.ID,
		"status":  types.RunStatusPending,
		"started": state.Started.Unix(),
	})
}

// runSimulation drives one run to a terminal status
func (s *Server) runSimulation(ctx context.Context, state *RunState, req *types.SimulationRequest) {
	defer state.cancel()

	s.mu.Lock()
	if state.Status == types.RunStatusPending {
		state.Status = types.RunStatusRunning
	}
	s.mu.Unlock()

	output, err := state.Engine.Run(ctx, req)

	s.mu.Lock()
	var status types.RunStatus
	switch {
	case errors.Is(err, simulation.ErrRunCancelled):
		status = types.RunStatusCancelled
	case err != nil:
		status = types.RunStatusFailed
		state.Error = err.Error()
	default:
		status = types.RunStatusCompleted
		state.Output = output
		state.Completed = state.Total
		state.Pct = 100
	}
	state.Status = status
	completed := state.Completed
	snapshot := state.progress()
	s.mu.Unlock()

	s.metrics.RunFinished(string(status), time.Since(state.Started), completed)

	switch status {
	case types.RunStatusCompleted:
		s.hub.BroadcastCompletion(output)
	case types.RunStatusFailed:
		s.logger.Error("Simulation run failed", zap.String("id", state.ID), zap.Error(err))
		s.hub.BroadcastFailure(snapshot)
	case types.RunStatusCancelled:
		s.hub.BroadcastFailure(snapshot)
	}
}

// handleListSimulations returns all known runs, newest first
func (s *Server) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	runs := make([]*types.SimulationProgress, 0, len(s.runs))
	for _, state := range s.runs {
		runs = append(runs, state.progress())
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	json.NewEncoder(w).Encode(map[string]interface{}{
		"simulations": runs,
		"count":       len(runs),
	})
}

// handleGetSimulation returns a run's status, progress and result
func (s *Server) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	s.mu.RLock()
	state, ok := s.runs[id]
	if !ok {
		s.mu.RUnlock()
		http.Error(w, "Simulation not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"id":       state.ID,
		"status":   state.Status,
		"started":  state.Started.Unix(),
		"progress": state.progress(),
	}
	if state.Output != nil {
		response["output"] = state.Output
	}
	if state.Error != "" {
		response["error"] = state.Error
	}
	s.mu.RUnlock()

	json.NewEncoder(w).Encode(response)
}

// handleGetOutput returns the full output of a completed run
func (s *Server) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	s.mu.RLock()
	state, ok := s.runs[id]
	var output *types.SimulationOutput
	if ok {
		output = state.Output
	}
	s.mu.RUnlock()

	if !ok {
		http.Error(w, "Simulation not found", http.StatusNotFound)
		return
	}

	if output == nil {
		http.Error(w, "Simulation not complete", http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(output)
}

// handleCancelSimulation cancels a pending or running simulation
func (s *Server) handleCancelSimulation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	s.mu.Lock()
	state, ok := s.runs[id]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "Simulation not found", http.StatusNotFound)
		return
	}

	if state.Status != types.RunStatusPending && state.Status != types.RunStatusRunning {
		s.mu.Unlock()
		http.Error(w, "Simulation not running", http.StatusBadRequest)
		return
	}

	state.Status = types.RunStatusCancelled
	s.mu.Unlock()

	state.Engine.Cancel()
	state.cancel()

	s.logger.Info("Simulation cancelled", zap.String("id", id))

	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":     id,
		"status": types.RunStatusCancelled,
	})
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub.maxClients > 0 && s.hub.ClientCount() >= s.hub.maxClients {
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), s.hub, conn)

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	s.logger.Info("WebSocket client connected", zap.String("id", client.id))

	// Start read/write goroutines
	go client.WritePump()
	go client.ReadPump()
}
