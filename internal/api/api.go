// Package api serves the read-only status surface: health, Prometheus
// metrics, device and dead-letter listings, and a live DMX monitor over
// websocket. Management (mapping CRUD, device editing) lives in the
// external API service; this server never mutates state.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/bbernstein/lumenbridge-go/internal/services/pubsub"
	"github.com/bbernstein/lumenbridge-go/internal/store"
)

// Config holds API server configuration.
type Config struct {
	CORSOrigin string
	Version    string
	Debug      bool
}

// Server wires the status routes onto a chi router.
type Server struct {
	cfg    Config
	store  *store.Store
	bus    *pubsub.Bus
	router chi.Router
}

// New creates the API server.
func New(cfg Config, st *store.Store, bus *pubsub.Bus, registry *prometheus.Registry) *Server {
	s := &Server{cfg: cfg, store: st, bus: bus}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin, "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		Debug:            cfg.Debug,
	})
	router.Use(corsMiddleware.Handler)

	router.Get("/health", s.handleHealth)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Get("/devices", s.handleDevices)
	router.Get("/mappings", s.handleMappings)
	router.Get("/deadletters", s.handleDeadLetters)
	router.Get("/ws/dmx", s.handleDMXSocket)

	s.router = router
	return s
}

// Handler returns the assembled HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.cfg.Version,
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.Devices(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, devices)
}

func (s *Server) handleMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.store.Mappings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, mappings)
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := s.store.DeadLetters(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, letters)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️ Failed to encode response: %v", err)
	}
}
