package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/wadeskhq/wadesk/internal/config"
	"github.com/wadeskhq/wadesk/internal/contact"
	"github.com/wadeskhq/wadesk/internal/db"
	"github.com/wadeskhq/wadesk/internal/handlers"
	"github.com/wadeskhq/wadesk/internal/logger"
	"github.com/wadeskhq/wadesk/internal/message"
	"github.com/wadeskhq/wadesk/internal/relay"
	"github.com/wadeskhq/wadesk/internal/server"
	"github.com/wadeskhq/wadesk/internal/storage"
	"github.com/wadeskhq/wadesk/internal/storage/providers/localfs"
	"github.com/wadeskhq/wadesk/internal/tenant"
	"github.com/wadeskhq/wadesk/internal/whatsapp"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			tenant.NewService,
			contact.NewService,
			message.NewService,
			provideWhatsAppClient,
			provideStorageProvider,
			provideSigner,
			provideRelayService,
			providePingHandler,
			provideWebhookHandler,
			provideMediaHandler,
			provideContactsHandler,
			provideTenantsHandler,
			provideServer,
		),
		fx.Invoke(
			runMigrations,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideWhatsAppClient(log *slog.Logger, cfg config.Config) *whatsapp.Client {
	timeout := time.Duration(cfg.WhatsApp.TimeoutSeconds) * time.Second
	return whatsapp.NewClient(log, cfg.WhatsApp.GraphBaseURL, timeout)
}

func provideStorageProvider(cfg config.Config) (storage.Provider, error) {
	provider, err := localfs.New(cfg.Storage.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("init media storage: %w", err)
	}
	return provider, nil
}

func provideSigner(cfg config.Config) (*storage.Signer, error) {
	ttl, err := time.ParseDuration(cfg.Storage.MediaURLTTL)
	if err != nil {
		return nil, fmt.Errorf("parse media url ttl: %w", err)
	}
	return storage.NewSigner(cfg.Auth.JWTSecret, ttl, cfg.Server.PublicBaseURL), nil
}

func provideRelayService(log *slog.Logger, client *whatsapp.Client, provider storage.Provider, signer *storage.Signer) *relay.Service {
	return relay.NewService(log, client, provider, signer)
}

func providePingHandler() *handlers.PingHandler {
	return handlers.NewPingHandler()
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, tenants *tenant.DBService, contacts *contact.DBService, messages *message.DBService, relayer *relay.Service) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, tenants, contacts, messages, relayer, cfg.WhatsApp.DefaultAPIVersion)
}

func provideMediaHandler(log *slog.Logger, cfg config.Config, signer *storage.Signer, provider storage.Provider, messages *message.DBService, tenants *tenant.DBService, relayer *relay.Service) *handlers.MediaHandler {
	return handlers.NewMediaHandler(log, signer, provider, messages, tenants, relayer, cfg.WhatsApp.DefaultAPIVersion)
}

func provideContactsHandler(log *slog.Logger, contacts *contact.DBService, messages *message.DBService) *handlers.ContactsHandler {
	return handlers.NewContactsHandler(log, contacts, messages)
}

func provideTenantsHandler(log *slog.Logger, cfg config.Config, tenants *tenant.DBService) (*handlers.TenantsHandler, error) {
	expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("parse jwt expires in: %w", err)
	}
	return handlers.NewTenantsHandler(log, tenants, cfg.Auth.JWTSecret, expiresIn), nil
}

func provideServer(log *slog.Logger, cfg config.Config, pingHandler *handlers.PingHandler, webhookHandler *handlers.WebhookHandler, mediaHandler *handlers.MediaHandler, contactsHandler *handlers.ContactsHandler, tenantsHandler *handlers.TenantsHandler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, cfg.Auth.JWTSecret, pingHandler, webhookHandler, mediaHandler, contactsHandler, tenantsHandler)
}

func runMigrations(cfg config.Config, log *slog.Logger) error {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return err
	}
	log.Info("database schema up to date")
	return nil
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
