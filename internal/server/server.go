package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/hongminglow/passgate/internal/account"
	"github.com/hongminglow/passgate/internal/auth"
	"github.com/hongminglow/passgate/internal/config"
	"github.com/hongminglow/passgate/internal/http/handlers"
	"github.com/hongminglow/passgate/internal/mail"
	"github.com/hongminglow/passgate/internal/metrics"
	"github.com/hongminglow/passgate/internal/middleware"
	"github.com/hongminglow/passgate/internal/storage"
)

// Server wraps an http.Server with configured routes.
type Server struct {
	inner   *http.Server
	metrics *metrics.Metrics
}

// New wires up the account service, middleware and routes, and returns a
// ready server. The caller owns store and closes it after Shutdown.
func New(cfg config.Config, store storage.UserStore, mailer mail.Sender, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, oops.Code("SERVER_DEPS_INVALID").Errorf("user store is required")
	}
	if mailer == nil {
		return nil, oops.Code("SERVER_DEPS_INVALID").Errorf("mail sender is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := metrics.New()
	svc, err := account.New(account.Deps{
		Store:    store,
		Hasher:   auth.NewBcryptHasher(auth.DefaultBcryptCost),
		Tokens:   auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, auth.TokenTTL),
		Mailer:   mailer,
		Events:   m,
		Logger:   logger,
		LinkBase: cfg.Reset.LinkBase,
	})
	if err != nil {
		return nil, oops.Code("SERVER_DEPS_INVALID").Wrapf(err, "build account service")
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(time.Now(), store).Register(mux)
	mux.Handle("GET /metrics", m.Handler())
	handlers.NewAuthHandler(svc, logger).Register(mux, cfg.Server.MountPath)

	var handler http.Handler = middleware.Metrics(m, mux)
	handler = middleware.Logging(logger, handler)
	handler = middleware.Tracing(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.CORS(cfg.Server.CORSOrigins, handler)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return &Server{inner: httpServer, metrics: m}, nil
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.inner.Handler
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
