package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/accountd/apiserver/config"
	"github.com/accountd/apiserver/internal/auth"
	"github.com/accountd/apiserver/internal/handlers"
	"github.com/accountd/apiserver/internal/logging"
	"github.com/accountd/apiserver/internal/mailer"
	"github.com/accountd/apiserver/internal/metrics"
	"github.com/accountd/apiserver/internal/mq"
	"github.com/accountd/apiserver/internal/notify"
	"github.com/accountd/apiserver/internal/services"
)

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
	mailer     *mailer.Mailer
	logger     *slog.Logger

	stopMailer context.CancelFunc
	mailerDone sync.WaitGroup
}

// New wires configuration into the store, notification transport, auth
// service and HTTP routes.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth)
	if err != nil {
		return nil, err
	}

	users, dbConn, err := OpenUserStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	s := &Server{db: dbConn, logger: logger}
	if err := s.wire(ctx, cfg, users, tokens); err != nil {
		_ = s.close()
		return nil, err
	}
	return s, nil
}

func (s *Server) wire(ctx context.Context, cfg config.Config, users services.UserRepository, tokens *auth.TokenIssuer) error {
	m := metrics.New()

	broker, err := OpenBroker(ctx, cfg)
	if err != nil {
		return err
	}
	s.broker = broker

	objects, err := OpenTemplateStorage(ctx, cfg)
	if err != nil {
		return err
	}
	var reader notify.ObjectReader
	if objects != nil {
		reader = objects
	}
	templates, err := notify.LoadTemplates(ctx, reader, cfg.Templates.Prefix, s.logger)
	if err != nil {
		return err
	}

	dispatcher := notify.NewDispatcher(broker, cfg.Notify, templates, m, s.logger.With("component", "notify"))
	authService := services.NewAuthService(
		users,
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		auth.NewOtpGenerator(),
		tokens,
		dispatcher,
		s.logger.With("component", "auth"),
	)

	// The memory broker only reaches subscribers in this process.
	if cfg.Notify.Backend == "memory" || cfg.Notify.Backend == "" {
		sender, err := NewSender(cfg, s.logger.With("component", "mailer"))
		if err != nil {
			return err
		}
		s.mailer = mailer.New(broker, cfg.Notify.Channel, sender, m, s.logger.With("component", "mailer"))
	}

	authHandler := handlers.NewAuthHandler(
		authService,
		handlers.NewCookiePolicy(cfg.Production(), tokens.TTL()),
		m,
		s.logger.With("component", "http"),
	)

	var pingers []handlers.Pinger
	if s.db != nil {
		pingers = append(pingers, s.db)
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(s.logger),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz(pingers...))
	router.Handle("/metrics", m.Handler())
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Route("/api/user", func(r chi.Router) {
		handlers.UserRouter(r, authHandler)
	})

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// Router exposes the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the in-process mailer, if any, and serves HTTP until Shutdown.
func (s *Server) Start() error {
	s.startMailer()
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) startMailer() {
	if s.mailer == nil || s.stopMailer != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopMailer = cancel
	s.mailerDone.Add(1)
	go func() {
		defer s.mailerDone.Done()
		if err := s.mailer.Run(ctx); err != nil {
			logging.LogError(ctx, s.logger, "in-process mailer stopped", err)
		}
	}()
}

// Shutdown drains in-flight requests, then stops the mailer and closes the
// broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	return errors.Join(err, s.close())
}

func (s *Server) close() error {
	if s.stopMailer != nil {
		s.stopMailer()
		s.mailerDone.Wait()
	}
	var errs []error
	if s.broker != nil {
		errs = append(errs, s.broker.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
