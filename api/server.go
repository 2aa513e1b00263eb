package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"election-backend/service"
)

// ServerConfig contains the HTTP server parameters.
type ServerConfig struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server exposes the election commands and read endpoints over HTTP. It is
// a thin shell: every request is decoded, handed to the ElectionService,
// and the typed result mapped onto a status code.
type Server struct {
	cfg      ServerConfig
	election *service.ElectionService
	srv      *http.Server
	isReady  atomic.Bool
	logger   *zap.Logger
}

func NewServer(cfg ServerConfig, election *service.ElectionService, logger *zap.Logger) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:      cfg,
		election: election,
		logger:   logger,
	}
	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	s.isReady.Store(true)

	return s
}

// Router builds the chi router. Exposed separately so tests can drive the
// handlers without binding a socket.
func (s *Server) Router() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(s.requestLogger)

	mux.Route("/api", func(r chi.Router) {
		r.Get("/election", s.handleGetElection)
		r.Post("/election/details", s.handleUpdateDetails)
		r.Post("/election/start", s.handleStartElection)
		r.Post("/election/close", s.handleCloseElection)

		r.Post("/booths", s.handleRegisterBooth)
		r.Delete("/booths/{boothID}", s.handleDeregisterBooth)
		r.Post("/booths/{boothID}/status", s.handleSetBoothStatus)

		r.Post("/candidates", s.handleAddCandidate)
		r.Delete("/candidates/{candidateID}", s.handleRemoveCandidate)

		r.Post("/votes", s.handleSubmitVote)
		r.Post("/authority/key", s.handleSetAuthorityKey)
		r.Post("/tally", s.handleTally)

		r.Get("/results", s.handleGetResults)
		r.Get("/ledger/verify", s.handleVerifyLedger)
		r.Get("/metrics", s.handleMetrics)
	})

	mux.Get("/livez", s.handleLivenessCheck)
	mux.Get("/readyz", s.handleReadinessCheck)

	return mux
}

// RunInBackground starts the HTTP server in a goroutine.
func (s *Server) RunInBackground() {
	go func() {
		s.logger.Info("http server starting", zap.String("addr", s.cfg.ListenAddr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.isReady.Store(false)
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !s.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
