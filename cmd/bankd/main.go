package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/bankd/internal/bank"
	"github.com/example/bankd/internal/config"
	"github.com/example/bankd/internal/hash"
	"github.com/example/bankd/internal/protocol"
	"github.com/example/bankd/internal/security"
	"github.com/example/bankd/internal/server"
	"github.com/example/bankd/internal/session"
	"github.com/example/bankd/internal/store"
	"github.com/example/bankd/pkg/audit"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	st, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open account store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	sessions := session.NewManager()
	ledger := bank.New(st, sessions, hash.New(), logger)

	srv := server.New(server.Options{
		Dispatcher:  protocol.NewDispatcher(ledger),
		Sessions:    sessions,
		Logger:      logger,
		Trail:       audit.NewTrail(),
		Limiter:     security.NewConnLimiter(cfg.AcceptRPS, cfg.AcceptBurst, 10*time.Minute),
		IdleTimeout: cfg.IdleTimeout,
	})

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.ListenAddr, "error", err)
		os.Exit(1)
	}

	if cfg.UsesTLS() {
		if err := security.VerifyTLSFiles(cfg.TLSCertFile, cfg.TLSKeyFile); err != nil {
			logger.Error("TLS verification failed", "error", err)
			os.Exit(1)
		}
		tlsCfg, err := security.LoadServerTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			logger.Error("failed to load TLS config", "error", err)
			os.Exit(1)
		}
		ln = tls.NewListener(ln, tlsCfg)
	} else {
		logger.Warn("TLS disabled, listening in plaintext", "env", cfg.Environment)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("bank server listening", "addr", cfg.ListenAddr, "tls", cfg.UsesTLS())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.UsesPostgres() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return store.OpenPostgres(ctx, cfg.DatabaseURL)
	}
	return store.OpenSQLite(cfg.DatabaseURL)
}
