package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/parleyhq/parley-server/internal/auth"
	"github.com/parleyhq/parley-server/internal/config"
	"github.com/parleyhq/parley-server/internal/core"
	"github.com/parleyhq/parley-server/internal/metrics"
	"github.com/parleyhq/parley-server/internal/service/messages"
	"github.com/parleyhq/parley-server/internal/service/posts"
	"github.com/parleyhq/parley-server/internal/store"
	"github.com/parleyhq/parley-server/internal/store/sqlite"
	transporthttp "github.com/parleyhq/parley-server/internal/transport/http"
	"github.com/parleyhq/parley-server/internal/upload"
)

const uploadURLPrefix = "uploads"

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	uploads, err := upload.New(cfg.UploadDir, uploadURLPrefix, cfg.MaxUploadBytes, cfg.MaxAttachments, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init uploads: %w", err)
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	m := metrics.New()
	hub := core.NewHub(logger, m)
	dispatcher := core.NewDispatcher(hub.Presence(), hub, logger, m)
	messageService := messages.New(st, dispatcher, uploads, logger, m)
	postService := posts.New(st, dispatcher, logger, m)

	server := transporthttp.NewServer(transporthttp.Deps{
		Hub:      hub,
		Auth:     authService,
		Messages: messageService,
		Posts:    postService,
		Store:    st,
		Uploads:  uploads,
		Metrics:  m,
		Config:   cfg,
		Logger:   logger,
	})

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// Migrate applies the schema to the configured database and exits.
func Migrate(cfg *config.Config, logger *zerolog.Logger) error {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("schema applied")
	return st.Close()
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	// The hub closes websocket connections on ctx done; server Shutdown does not track hijacked ones.
	go a.hub.Run(ctx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
