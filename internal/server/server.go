package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tournevent/upsbridge/internal/booking"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// TokenChecker makes sure a carrier access token is available.
type TokenChecker interface {
	CheckToken(ctx context.Context) error
}

// Server is the HTTP server for the UPS bridge.
type Server struct {
	port     int
	booking  *booking.Service
	logger   *otelzap.Logger
	gatherer prometheus.Gatherer
	tokens   TokenChecker
	router   *mux.Router
}

// Config holds server configuration.
type Config struct {
	Port int
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithTokenChecker enables GET /ready, which fails while no token can be
// obtained.
func WithTokenChecker(tc TokenChecker) Option {
	return func(s *Server) { s.tokens = tc }
}

// New creates a new server instance.
func New(cfg Config, svc *booking.Service, logger *otelzap.Logger, opts ...Option) *Server {
	s := &Server{
		port:     cfg.Port,
		booking:  svc,
		logger:   logger,
		gatherer: prometheus.DefaultGatherer,
		router:   mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.logRequests)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/shipments", s.handleCreateShipment).Methods(http.MethodPost)
	v1.HandleFunc("/shipments/{id}", s.handleCancelShipment).Methods(http.MethodDelete)
	v1.HandleFunc("/quotes", s.handleQuote).Methods(http.MethodPost)
	v1.HandleFunc("/labels/files/{name}", s.handleStoredLabel).Methods(http.MethodGet)
	v1.HandleFunc("/labels/{tracking}", s.handleRecoverLabel).Methods(http.MethodGet)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.tokens != nil {
		if err := s.tokens.CheckToken(r.Context()); err != nil {
			s.logger.Ctx(r.Context()).Warn("Readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (s *Server) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	var parcel booking.Parcel
	if err := decodeJSON(r, &parcel); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := s.booking.CreateShipment(r.Context(), parcel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var parcel booking.Parcel
	if err := decodeJSON(r, &parcel); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	rates, err := s.booking.Quote(r.Context(), parcel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{ParcelID: parcel.ID, Rates: ratesToDTO(rates)})
}

func (s *Server) handleCancelShipment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	reason := r.URL.Query().Get("reason")

	if err := s.booking.Cancel(r.Context(), id, reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{ShipmentID: id, Status: "cancelled"})
}

func (s *Server) handleRecoverLabel(w http.ResponseWriter, r *http.Request) {
	label, err := s.booking.RecoverLabel(r.Context(), mux.Vars(r)["tracking"])
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType(label.Format.Extension()))
	w.Header().Set("X-Label-Name", label.Name)
	w.WriteHeader(http.StatusOK)
	w.Write(label.Data)
}

func (s *Server) handleStoredLabel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	data, err := s.booking.StoredLabel(name)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType(extension(name)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Ctx(r.Context()).Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps booking errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch booking.ErrorKind(err) {
	case booking.KindInvalidInput:
		status = http.StatusBadRequest
	case booking.KindNotFound:
		status = http.StatusNotFound
	case booking.KindAuth:
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
