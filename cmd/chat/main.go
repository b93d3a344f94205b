package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatcore/internal/authz"
	"chatcore/internal/config"
	"chatcore/internal/observability/logging"
	"chatcore/internal/observability/metrics"
	"chatcore/internal/realtime"
	"chatcore/internal/service/impl"
	"chatcore/internal/store"
	transport "chatcore/internal/transport/http"
)

func main() {
	cfg := config.Load()

	logger := logging.NewLogger(logging.Config{
		ServiceName: "chat",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		FilePath:    cfg.LogFile,
	})
	slog.SetDefault(logger)
	metrics.MustRegister("chat")

	logger.Info("starting service", "driver", cfg.DatabaseDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(store.OpenConfig{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseURL,
		LogSQL: cfg.LogSQL,
	})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	st := store.New(db)
	if err := st.AutoMigrate(ctx); err != nil {
		logger.Error("auto migrate", "error", err)
		os.Exit(1)
	}

	validator, closeValidator, err := newValidator(ctx, cfg)
	if err != nil {
		logger.Error("token validator", "error", err)
		os.Exit(1)
	}
	defer closeValidator()

	convs := impl.NewConversationServiceImpl(st)
	msgs := impl.NewMessageServiceImpl(st, cfg.HistoryPageMax)
	hub := realtime.NewHub()

	router := transport.NewRouter(transport.Deps{
		Devices:    impl.NewDeviceKeyServiceImpl(st),
		Convs:      convs,
		Messages:   msgs,
		RoomKeys:   impl.NewRoomKeyServiceImpl(st),
		Dispatcher: realtime.NewDispatcher(hub, convs, msgs),
		Validator:  validator,
	}, transport.Options{
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RequestTimeout:     30 * time.Second,
		WS: transport.WSConfig{
			SendBuffer:   cfg.WSSendBuffer,
			WriteTimeout: cfg.WSWriteTimeout,
			PongWait:     cfg.WSPongWait,
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("chat service listening", "addr", cfg.Addr, "auth", validator.Method())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// newValidator prefers a shared HMAC secret and falls back to the auth
// service JWKS endpoint.
func newValidator(ctx context.Context, cfg config.Config) (authz.Validator, func(), error) {
	if cfg.AuthHMACSecret != "" {
		return authz.NewHMACValidator(cfg.AuthHMACSecret, cfg.AuthIssuer), func() {}, nil
	}
	v, err := authz.NewJWKSValidator(ctx, cfg.AuthJWKSURL, cfg.AuthIssuer)
	if err != nil {
		return nil, nil, err
	}
	return v, v.Close, nil
}
