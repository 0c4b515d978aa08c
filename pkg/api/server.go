package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zoff-tech/order-event-hub/pkg/broker"
	"github.com/zoff-tech/order-event-hub/pkg/config"
	"github.com/zoff-tech/order-event-hub/pkg/telemetry"
)

// HealthChecker reports broker reachability out of band. Satisfied by
// broker.ConnectionManager; nil disables the probe on /health.
type HealthChecker interface {
	CheckHealth(ctx context.Context) bool
}

// Server is the HTTP ingress for inbound business events. Handlers are
// stateless per request; everything they need is injected here.
type Server struct {
	cfg       *config.Settings
	publisher broker.EventPublisher
	health    HealthChecker
	logger    *zap.Logger
	srv       *http.Server
}

func NewServer(cfg *config.Settings, publisher broker.EventPublisher, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		publisher: publisher,
		health:    health,
		logger:    logger,
	}

	s.srv = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(s.bodyLimit)
	router.Use(s.requestLogger)

	router.Get("/", s.handleRoot)
	router.Get("/health", s.handleHealth)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/payments", func(r chi.Router) {
		r.Post("/webhook", s.handlePaymentWebhook)
		r.Post("/test", s.handlePaymentTest)
		r.Get("/health", s.handlePaymentHealth)
	})

	router.Post("/products/create", s.handleProductCreate)

	return router
}

// Handler exposes the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until the context is canceled, then drains with a bounded
// shutdown window.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) bodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.BodyLimit)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		telemetry.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}
