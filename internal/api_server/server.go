package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	api "github.com/statspub/publisher/api/v1alpha1"
	"github.com/statspub/publisher/internal/auth"
	"github.com/statspub/publisher/internal/config"
	handlers "github.com/statspub/publisher/internal/handlers/v1alpha1"
	"github.com/statspub/publisher/internal/jobs"
	"github.com/statspub/publisher/internal/service"
	"github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/pkg/metrics"
	"github.com/statspub/publisher/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
	queueShutdownTimeout    = 30 * time.Second
)

// Services are the pieces of the service layer the server exposes. Queue is
// pointed at the job client once the server has created it.
type Services struct {
	Publisher      *service.Publisher
	ReleaseVersion *service.ReleaseVersionService
	ReleaseStatus  *service.ReleaseStatusService
	DataSet        *service.DataSetService
	Health         *service.HealthService
	Queue          *jobs.DeferredQueue
}

type Server struct {
	cfg      *config.Config
	store    store.Store
	listener net.Listener
	services Services
}

// New returns a new instance of the publisher api server.
func New(
	cfg *config.Config,
	store store.Store,
	listener net.Listener,
	services Services,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		listener: listener,
		services: services,
	}
}

func oapiErrorHandler(w http.ResponseWriter, message string, statusCode int) {
	http.Error(w, fmt.Sprintf("API Error: %s", message), statusCode)
}

// NewRouter mounts the health probe outside the OpenAPI validation and every
// /api/v1 route behind it. Release routes also need an authenticated
// publisher; the timer triggers and the public data routes are anonymous.
func NewRouter(cfg *config.Config, h *handlers.ServiceHandler, authenticator auth.Authenticator, metricMiddleware *metrics.Middleware) (http.Handler, error) {
	swagger, err := api.GetSwagger()
	if err != nil {
		return nil, fmt.Errorf("failed to load swagger spec: %w", err)
	}
	// Skip server name validation
	swagger.Servers = nil

	oapiOpts := oapimiddleware.Options{
		ErrorHandler: oapiErrorHandler,
	}

	router := chi.NewRouter()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Service.AllowedOrigins,
			AllowedMethods:   []string{"GET", "PUT", "POST", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger("/health"),
		chiMiddleware.Recoverer,
	)

	h.RegisterHealthApi(router)

	router.Group(func(r chi.Router) {
		r.Use(oapimiddleware.OapiRequestValidatorWithOptions(swagger, &oapiOpts))

		r.Group(func(r chi.Router) {
			r.Use(authenticator.Authenticator)
			h.RegisterAdminApi(r)
		})

		h.RegisterTimerApi(r)
		h.RegisterPublicApi(r)
	})

	return router, nil
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	authenticator, err := auth.NewAuthenticator(s.cfg.Service.Auth)
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}

	// job processing plus LISTEN/NOTIFY
	dbPool, err := store.NewPgxPool(ctx, s.cfg, int32(s.cfg.Service.Publisher.MaxWorkers)+10)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	jobClient, err := jobs.NewClient(dbPool, s.services.Publisher, s.cfg.Service.Publisher)
	if err != nil {
		return fmt.Errorf("failed to create job client: %w", err)
	}
	s.services.Queue.Set(jobClient)

	if err := jobClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job client: %w", err)
	}
	defer func() {
		if err := jobClient.Shutdown(queueShutdownTimeout); err != nil {
			zap.S().Named("api_server").Warnw("failed to stop job client", "error", err)
		}
	}()

	zap.S().Named("api_server").Info("Publishing queue initialized")

	s.services.Health.
		Register("database", s.store.Ping).
		Register("queue", dbPool.Ping)

	h := handlers.NewServiceHandler(
		s.services.ReleaseVersion,
		s.services.ReleaseStatus,
		s.services.DataSet,
		s.services.Health,
		s.services.Queue,
	)

	metricMiddleware := metrics.NewMiddleware("api_server")
	if err := metricMiddleware.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register http metrics: %w", err)
	}

	router, err := NewRouter(s.cfg, h, authenticator, metricMiddleware)
	if err != nil {
		return err
	}

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
