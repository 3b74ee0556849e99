package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opspay/payroll/internal/logger"
	"github.com/opspay/payroll/internal/metrics"
	"github.com/opspay/payroll/payroll"
	"github.com/opspay/payroll/registry"
)

// slowRequestThreshold marks requests worth counting as slow.
const slowRequestThreshold = 500 * time.Millisecond

type Server struct {
	registry *registry.Registry
	metrics  *metrics.Metrics
	db       *sql.DB // nil when running from files only
	router   *chi.Mux
}

func NewServer(reg *registry.Registry, m *metrics.Metrics, db *sql.DB) *Server {
	s := &Server{
		registry: reg,
		metrics:  m,
		db:       db,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(s.observe)

	r.Get("/api/v1/health", s.handleHealth)
	r.Post("/api/v1/calculate", s.handleCalculate)
	r.Get("/api/v1/flags", s.handleFlags)
	r.Get("/api/v1/rulesets", s.handleRuleSets)
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// observe records request latency and error counters per route.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}

		status := ww.Status()
		class := strconv.Itoa(status/100) + "xx"
		s.metrics.ObserveRequestLatency(route, class, elapsed)

		switch {
		case status >= 500:
			logger.CountHTTP5xx()
		case status >= 400:
			logger.CountHTTP4xx()
		}
		if elapsed > slowRequestThreshold {
			logger.CountSlowRequest()
			logger.Warn("slow request",
				"route", route,
				"status", status,
				"elapsed_ms", elapsed.Milliseconds(),
			)
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"ruleSetsLoaded": s.registry.Len(),
	})
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Country == "" {
		respondError(w, http.StatusBadRequest, "country is required", nil)
		return
	}
	if req.Year == 0 {
		respondError(w, http.StatusBadRequest, "year is required", nil)
		return
	}
	if req.Gross.Sign() < 0 {
		respondError(w, http.StatusBadRequest, "gross must not be negative", nil)
		return
	}

	yearLabel := strconv.Itoa(req.Year)
	engine, ok := s.registry.Engine(req.Country, req.Year)
	if !ok {
		s.metrics.IncrementCalculation(req.Country, yearLabel, "not_found")
		respondError(w, http.StatusNotFound, "no rule set for country and year", nil)
		return
	}

	flags := make(payroll.Flags, len(req.Flags)+1)
	for k, v := range req.Flags {
		flags[k] = v
	}
	if _, ok := flags["date"]; !ok {
		date := req.Date
		if date == "" {
			date = time.Now().Format("2006-01-02")
		}
		flags["date"] = date
	}

	start := time.Now()
	result, err := engine.Calculate(req.Gross, flags)
	s.metrics.ObserveCalculateLatency(req.Country, yearLabel, time.Since(start))
	if err != nil {
		s.metrics.IncrementCalculation(req.Country, yearLabel, "eval_error")
		logger.Warn("calculation failed",
			"country", req.Country,
			"year", req.Year,
			"error", err,
		)
		respondError(w, http.StatusUnprocessableEntity, "calculation failed", err)
		return
	}
	s.metrics.IncrementCalculation(req.Country, yearLabel, "ok")

	respondJSON(w, http.StatusOK, CalculateResponse{
		CalculationID: uuid.NewString(),
		Country:       engine.Meta().Country,
		Year:          engine.Meta().Year,
		Gross:         result.Gross,
		Net:           result.Net,
		SuperGross:    result.SuperGross,
		Breakdown:     result.Breakdown,
	})
}

func (s *Server) handleFlags(w http.ResponseWriter, r *http.Request) {
	country := r.URL.Query().Get("country")
	yearStr := r.URL.Query().Get("year")
	if country == "" || yearStr == "" {
		respondError(w, http.StatusBadRequest, "country and year query parameters are required", nil)
		return
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "year must be an integer", err)
		return
	}

	engine, ok := s.registry.Engine(country, year)
	if !ok {
		respondError(w, http.StatusNotFound, "no rule set for country and year", nil)
		return
	}

	respondJSON(w, http.StatusOK, FlagsResponse{
		Country:       engine.Meta().Country,
		Year:          engine.Meta().Year,
		RequiredFlags: engine.RequiredFlags(),
	})
}

func (s *Server) handleRuleSets(w http.ResponseWriter, r *http.Request) {
	summaries := []RuleSetSummary{}
	for _, key := range s.registry.Keys() {
		engine, ok := s.registry.Engine(key.Country, key.Year)
		if !ok {
			continue
		}
		summaries = append(summaries, RuleSetSummary{
			Country:     engine.Meta().Country,
			Year:        engine.Meta().Year,
			Description: engine.Meta().Description,
			Rules:       len(engine.Rules()),
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"rulesets": summaries,
	})
}

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
