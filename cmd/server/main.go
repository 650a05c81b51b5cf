package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/popsynth/popsynth/demographics"
	"github.com/popsynth/popsynth/filter"
	"github.com/popsynth/popsynth/internal/logger"
	"github.com/popsynth/popsynth/population"
	"github.com/popsynth/popsynth/summary"
)

type Server struct {
	db           *sql.DB
	demographics demographics.Store
	runs         population.RunStore
	cache        population.Cache
	filter       *filter.Engine
	router       *chi.Mux
}

func NewServer(databaseURL string) (*Server, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	engine, err := filter.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create filter engine: %w", err)
	}

	s := &Server{
		db:           db,
		demographics: demographics.NewPostgresStore(db),
		runs:         population.NewPostgresRunStore(db),
		cache:        population.NewInMemoryCache(population.DefaultCacheConfig()),
		filter:       engine,
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/api/v1/health", s.handleHealth)

	// One-shot generation from an inline spec
	r.Post("/api/v1/generate", s.handlePreview)

	// Demographic management
	r.Route("/api/v1/demographics", func(r chi.Router) {
		r.Get("/", s.handleListDemographics)
		r.Post("/", s.handleCreateDemographic)

		r.Route("/{demographicId}", func(r chi.Router) {
			r.Get("/", s.handleGetDemographic)
			r.Put("/", s.handleUpdateDemographic)
			r.Delete("/", s.handleDeleteDemographic)

			r.Post("/generate", s.handleGenerate)
			r.Get("/runs", s.handleListRuns)
		})
	})

	// Generation runs and their agents
	r.Route("/api/v1/runs/{runId}", func(r chi.Router) {
		r.Get("/", s.handleGetRun)
		r.Delete("/", s.handleDeleteRun)

		r.Get("/agents", s.handleListAgents)
		r.Get("/summary", s.handleSummary)
		r.Get("/export", s.handleExport)
		r.Post("/filter", s.handleFilter)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Preview handler: validate and generate from an inline spec without
// persisting a demographic or a run.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	seed := seedOrRandom(req.Seed)

	pop, err := population.Generate(r.Context(), req.Spec, seed)
	if err != nil {
		if isSpecError(err) {
			respondError(w, http.StatusBadRequest, "invalid demographic spec", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "generation failed", err)
		return
	}

	respondJSON(w, http.StatusOK, pop)
}

// Create demographic handler. The request body is the spec document itself.
func (s *Server) handleCreateDemographic(w http.ResponseWriter, r *http.Request) {
	var spec demographics.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if _, err := demographics.Validate(spec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid demographic spec", err)
		return
	}

	rec := &demographics.Record{
		ID:   uuid.NewString(),
		Spec: spec,
	}

	if err := s.demographics.Add(rec); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store demographic", err)
		return
	}

	stored, err := s.demographics.Get(rec.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read back demographic", err)
		return
	}

	respondJSON(w, http.StatusCreated, toDemographicResponse(stored))
}

// List demographics handler
func (s *Server) handleListDemographics(w http.ResponseWriter, r *http.Request) {
	records, err := s.demographics.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list demographics", err)
		return
	}

	resp := DemographicsListResponse{Demographics: make([]DemographicResponse, 0, len(records))}
	for _, rec := range records {
		resp.Demographics = append(resp.Demographics, toDemographicResponse(rec))
	}

	respondJSON(w, http.StatusOK, resp)
}

// Get demographic handler
func (s *Server) handleGetDemographic(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "demographicId")

	rec, err := s.demographics.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "demographic not found", err)
		return
	}

	respondJSON(w, http.StatusOK, toDemographicResponse(rec))
}

// Update demographic handler
func (s *Server) handleUpdateDemographic(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "demographicId")

	var spec demographics.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if _, err := demographics.Validate(spec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid demographic spec", err)
		return
	}

	rec, err := s.demographics.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "demographic not found", err)
		return
	}

	rec.Spec = spec
	if err := s.demographics.Update(rec); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update demographic", err)
		return
	}

	stored, err := s.demographics.Get(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read back demographic", err)
		return
	}

	respondJSON(w, http.StatusOK, toDemographicResponse(stored))
}

// Delete demographic handler
func (s *Server) handleDeleteDemographic(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "demographicId")

	if err := s.demographics.Delete(id); err != nil {
		respondError(w, http.StatusNotFound, "demographic not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Generate handler: synthesize a population from a stored demographic and
// persist it as a new run.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "demographicId")

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rec, err := s.demographics.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "demographic not found", err)
		return
	}

	valid, err := demographics.Validate(rec.Spec)
	if err != nil {
		respondError(w, http.StatusBadRequest, "stored demographic is invalid", err)
		return
	}

	seed := seedOrRandom(req.Seed)

	startTime := time.Now()
	pop, err := population.GenerateValid(r.Context(), valid, seed)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "generation failed", err)
		return
	}

	run := &population.Run{
		ID:            uuid.NewString(),
		DemographicID: rec.ID,
		Seed:          seed,
		NumAgents:     len(pop.Agents),
	}

	if err := s.runs.CreateRun(run, pop.Agents); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to persist run", err)
		return
	}

	s.cache.Set(run.ID, pop)

	stored, err := s.runs.GetRun(run.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read back run", err)
		return
	}

	logger.Info("population generated",
		"run_id", run.ID,
		"demographic_id", rec.ID,
		"num_agents", run.NumAgents,
		"duration", time.Since(startTime).String())

	respondJSON(w, http.StatusCreated, stored)
}

// List runs handler
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "demographicId")

	runs, err := s.runs.ListRuns(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}

	respondJSON(w, http.StatusOK, RunsListResponse{Runs: runs})
}

// Get run handler
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")

	run, err := s.runs.GetRun(runID)
	if err != nil {
		respondError(w, http.StatusNotFound, "run not found", err)
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// Delete run handler
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")

	if err := s.runs.DeleteRun(runID); err != nil {
		respondError(w, http.StatusNotFound, "run not found", err)
		return
	}

	s.cache.Invalidate(runID)

	w.WriteHeader(http.StatusNoContent)
}

// List agents handler: one page of a run's agents
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 100)

	if _, err := s.runs.GetRun(runID); err != nil {
		respondError(w, http.StatusNotFound, "run not found", err)
		return
	}

	agents, err := s.runs.ListAgents(runID, offset, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list agents", err)
		return
	}

	respondJSON(w, http.StatusOK, AgentsPageResponse{
		RunID:  runID,
		Offset: offset,
		Limit:  limit,
		Agents: agents,
	})
}

// Summary handler: cluster a run's agents into representative buckets
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")

	buckets := queryInt(r, "buckets", summary.DefaultBuckets)

	run, pop, err := s.loadPopulation(runID)
	if err != nil {
		respondError(w, http.StatusNotFound, "run not found", err)
		return
	}

	valid, err := s.specForRun(run)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load demographic for run", err)
		return
	}

	sum, err := summary.Summarize(valid, pop, buckets)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to summarize run", err)
		return
	}

	respondJSON(w, http.StatusOK, sum)
}

// Export handler: stream a run's agents as CSV
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")

	run, pop, err := s.loadPopulation(runID)
	if err != nil {
		respondError(w, http.StatusNotFound, "run not found", err)
		return
	}

	valid, err := s.specForRun(run)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load demographic for run", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=population_%s.csv", runID))
	w.WriteHeader(http.StatusOK)

	if err := population.WriteCSV(w, valid, pop); err != nil {
		// Headers are already out, all we can do is log.
		logger.Error("csv export failed", "run_id", runID, "error", err.Error())
	}
}

// Filter handler: evaluate a CEL expression against every agent in a run
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")

	var req FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Expression == "" {
		respondError(w, http.StatusBadRequest, "expression is required", nil)
		return
	}

	_, pop, err := s.loadPopulation(runID)
	if err != nil {
		respondError(w, http.StatusNotFound, "run not found", err)
		return
	}

	matched, err := s.filter.Apply(req.Expression, pop.Agents)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to apply filter", err)
		return
	}

	respondJSON(w, http.StatusOK, FilterResponse{
		RunID:      runID,
		Expression: req.Expression,
		Count:      len(matched),
		Agents:     matched,
	})
}

// loadPopulation returns a run and its full agent set, going to the cache
// first and paging the store only on a miss.
func (s *Server) loadPopulation(runID string) (*population.Run, *population.Population, error) {
	run, err := s.runs.GetRun(runID)
	if err != nil {
		return nil, nil, err
	}

	if pop := s.cache.Get(runID); pop != nil {
		return run, pop, nil
	}

	const pageSize = 1000

	agents := make([]population.Agent, 0, run.NumAgents)
	for offset := 0; ; offset += pageSize {
		page, err := s.runs.ListAgents(runID, offset, pageSize)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to page agents for run %s: %w", runID, err)
		}
		agents = append(agents, page...)
		if len(page) < pageSize {
			break
		}
	}

	pop := &population.Population{Seed: run.Seed, Agents: agents}
	s.cache.Set(runID, pop)

	return run, pop, nil
}

func (s *Server) specForRun(run *population.Run) (*demographics.ValidSpec, error) {
	rec, err := s.demographics.Get(run.DemographicID)
	if err != nil {
		return nil, err
	}
	return demographics.Validate(rec.Spec)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func seedOrRandom(seed *uint64) uint64 {
	if seed != nil {
		return *seed
	}
	return rand.Uint64()
}

// isSpecError reports whether err is one of the demographic validation
// kinds, as opposed to an infrastructure failure.
func isSpecError(err error) bool {
	var schemaErr *demographics.SchemaError
	var rangeErr *demographics.RangeError
	var probErr *demographics.ProbabilityError
	var countErr *demographics.CountError
	return errors.As(err, &schemaErr) ||
		errors.As(err, &rangeErr) ||
		errors.As(err, &probErr) ||
		errors.As(err, &countErr)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL environment variable is required")
	}

	server, err := NewServer(databaseURL)
	if err != nil {
		logger.Fatal("failed to create server", "error", err.Error())
	}
	defer server.db.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err.Error())
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err.Error())
	}

	logger.Info("server stopped")
}
