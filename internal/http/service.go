package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/tdminh/storecore/internal/barcode"
	"github.com/tdminh/storecore/internal/config"
	"github.com/tdminh/storecore/internal/http/apierr"
	"github.com/tdminh/storecore/internal/http/metric"
	"github.com/tdminh/storecore/internal/http/middleware"
	"github.com/tdminh/storecore/internal/http/swagger"
	"github.com/tdminh/storecore/internal/integrity"
	"github.com/tdminh/storecore/internal/storage/db"
	"github.com/tdminh/storecore/pkg/zerror"
)

var tracer = otel.Tracer("internal/http")

// Service represents the HTTP service.
type Service struct {
	cfg     config.HTTP
	logger  *slog.Logger
	metrics *metric.Metrics

	authority *barcode.Authority
	checker   *integrity.Checker
	repairer  *integrity.Repairer
	recovery  *integrity.Recovery
	health    db.HealthChecker
}

type CleanupFunc func(ctx context.Context) error

func New(
	cfg config.HTTP,
	log *slog.Logger,
	authority *barcode.Authority,
	checker *integrity.Checker,
	repairer *integrity.Repairer,
	recovery *integrity.Recovery,
	health db.HealthChecker,
) *Service {
	return &Service{
		cfg:       cfg,
		logger:    log.With(slog.String("service", "http")),
		metrics:   metric.New(),
		authority: authority,
		checker:   checker,
		repairer:  repairer,
		recovery:  recovery,
		health:    health,
	}
}

func (s *Service) Run(ctx context.Context) (CleanupFunc, error) {
	if err := s.metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	r := chi.NewRouter()
	s.RegisterMiddlewares(r)

	if s.cfg.Swagger {
		swagger.Register(r)
	}

	s.RegisterHandlers(r)

	return s.RunWithServer(ctx, r)
}

func (s *Service) RunWithServer(ctx context.Context, handler http.Handler) (CleanupFunc, error) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64 KB
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}, nil
}

func (s *Service) RegisterMiddlewares(r chi.Router) {
	r.Use(
		middleware.Recoverer(s.logger),
		middleware.Trace(tracer),
		middleware.Metrics(s.metrics),
		middleware.CorrelationID(),
		middleware.Cors(),
		middleware.Logging(s.logger),
	)
}

func (s *Service) RegisterHandlers(r chi.Router) {
	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/integrity", func(r chi.Router) {
			r.Post("/check", s.handleIntegrityCheck)
			r.Post("/fix", s.handleIntegrityFix)
			r.Post("/barcodes/backfill", s.handleBarcodeBackfill)
		})
		r.Route("/recovery", func(r chi.Router) {
			r.Get("/orphaned-units", s.handleListOrphanedUnits)
			r.Post("/transactions", s.handleCreateRecoveryTransaction)
		})
		r.Route("/barcodes", func(r chi.Router) {
			r.Post("/", s.handleGetOrGenerateBarcode)
			r.Post("/validate", s.handleValidateBarcode)
		})
	})

	r.Handle(middleware.MetricsPath, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog: log.Default(),
	}))
}

func (s *Service) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.ErrorContext(r.Context(), "error encoding response", slog.Any("error", err))
	}
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	res := apierr.New(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.StatusCode)

	logLevel := slog.LevelInfo
	if res.StatusCode >= 500 {
		logLevel = slog.LevelError
	} else if res.StatusCode >= 400 {
		logLevel = slog.LevelWarn
	}
	s.logger.Log(r.Context(), logLevel, "http response error", slog.Any("error", err))

	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.logger.ErrorContext(r.Context(), "error encoding error response",
			slog.Any("error", err))
	}
}

func (s *Service) decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return zerror.NewBadRequest("INVALID_REQUEST_BODY", "malformed request body").WrapParent(err)
	}
	return nil
}
