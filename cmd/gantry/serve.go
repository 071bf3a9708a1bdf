package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/gantry-app/gantry/internal/access"
	"github.com/gantry-app/gantry/internal/account"
	"github.com/gantry-app/gantry/internal/api"
	"github.com/gantry-app/gantry/internal/auth"
	"github.com/gantry-app/gantry/internal/config"
	"github.com/gantry-app/gantry/internal/mail"
	"github.com/gantry-app/gantry/internal/metrics"
	"github.com/gantry-app/gantry/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Gantry API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		st := pool.Stat()
		return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
	})

	accountStore := account.NewStore(pool)
	sessionStore := session.NewStore(pool)
	accessStore := access.NewStore(pool)

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	mailer := mail.NewService(cfg.Mail, logger)

	manager := session.NewManager(accountStore, sessionStore, issuer, mailer, session.Config{
		RefreshTokenTTL:      cfg.Auth.RefreshTokenTTL,
		VerificationTokenTTL: cfg.Auth.VerificationTokenTTL,
		ResetTokenTTL:        cfg.Auth.ResetTokenTTL,
	})

	// Registration cannot work without the seeded default role; refuse to
	// start instead of failing every request later.
	if err := manager.CheckSeeds(ctx); err != nil {
		return fmt.Errorf("startup check failed (run `gantry migrate` and `gantry seed`): %w", err)
	}

	resolver := access.NewResolver(accessStore)

	router := api.NewRouter(api.RouterDeps{
		Sessions: manager,
		Accounts: accountStore,
		Issuer:   issuer,
		Resolver: resolver,
		Projects: accessStore,
		Metrics:  m,
		Config:   cfg,
		DB:       pool,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}
