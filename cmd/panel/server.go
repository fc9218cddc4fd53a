package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/artpar/panel/internal/core/crypto"
	"github.com/artpar/panel/internal/shell/allocation"
	"github.com/artpar/panel/internal/shell/api"
	"github.com/artpar/panel/internal/shell/billing"
	"github.com/artpar/panel/internal/shell/catalog"
	"github.com/artpar/panel/internal/shell/gateway"
	"github.com/artpar/panel/internal/shell/lifecycle"
	"github.com/artpar/panel/internal/shell/store"
	"github.com/artpar/panel/internal/shell/workers"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitHTTPServerError = 3
	ExitCatalogError    = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the panel application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      *store.SQLiteStore
	lifecycle  *lifecycle.Service
	sweeper    *workers.Sweeper
	registrar  *gateway.Registrar
	logger     *slog.Logger
}

// openStore opens the database with password sealing when configured.
func openStore(cfg *Config) (*store.SQLiteStore, error) {
	sealer, err := crypto.NewSealerFromPassphrase(cfg.Security.EncryptionPassphrase, cfg.Security.EncryptionSalt)
	if err != nil {
		return nil, &ServerError{Op: "openStore", Err: err, ExitCode: ExitConfigError}
	}

	if err := ensureDatabaseDir(cfg.Database.DSN); err != nil {
		return nil, &ServerError{Op: "openStore", Err: err, ExitCode: ExitDatabaseError}
	}

	s, err := store.NewSQLiteStore(cfg.Database.DSN, store.WithSealer(sealer))
	if err != nil {
		return nil, &ServerError{Op: "openStore", Err: err, ExitCode: ExitDatabaseError}
	}
	return s, nil
}

// ensureDatabaseDir creates the directory holding a file DSN.
func ensureDatabaseDir(dsn string) error {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Catalog.File != "" {
		if err := importCatalog(context.Background(), s, cfg.Catalog.File, logger); err != nil {
			s.Close()
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitCatalogError}
		}
	}

	lc := lifecycle.NewService(s, lifecycle.Config{
		RestartSettleDelay:  cfg.Lifecycle.RestartSettleDelay,
		ProvisioningTimeout: cfg.Lifecycle.ProvisioningTimeout,
	}, logger)

	alloc := allocation.NewService(s, allocation.Config{
		InstantProvisioning: cfg.Lifecycle.InstantProvisioning,
	}, logger)

	handler := api.NewHandler(api.Deps{
		Store:      s,
		Lifecycle:  lc,
		Allocation: alloc,
		Quoter:     billing.NewQuoter(s, cfg.Rounding(), logger),
		Pinger:     s,
	}, api.Config{
		SharedSecret: cfg.Auth.SharedSecret,
		Version:      Version,
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sweeper := workers.NewSweeper("lifecycle", lc.SweepStale, workers.SweeperConfig{
		Interval: cfg.Lifecycle.SweepInterval,
	}, logger)

	var registrar *gateway.Registrar
	if cfg.Gateway.URL != "" {
		registrar = gateway.NewRegistrar(gateway.RegistrarConfig{
			GatewayURL:   cfg.Gateway.URL,
			APIKey:       cfg.Gateway.APIKey,
			PanelURL:     cfg.Gateway.PanelURL,
			SharedSecret: cfg.Auth.SharedSecret,
			RoleExpr:     cfg.Gateway.RoleExpr,
		}, logger)
	}

	if cfg.Security.EncryptionPassphrase == "" {
		logger.Warn("server passwords are stored unencrypted; set security.encryption_passphrase")
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		lifecycle:  lc,
		sweeper:    sweeper,
		registrar:  registrar,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.sweeper.Start()

	g, gctx := errgroup.WithContext(ctx)

	if s.registrar != nil {
		// The gateway may start after us; a failed registration is retried on next boot.
		g.Go(func() error {
			if err := s.registrar.Register(gctx); err != nil {
				s.logger.Warn("gateway registration failed", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		s.logger.Info("starting HTTP server", "address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return &ServerError{Op: "Start", Err: err, ExitCode: ExitHTTPServerError}
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.sweeper.Stop()
	s.lifecycle.Stop()

	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

func importCatalog(ctx context.Context, s store.Store, path string, logger *slog.Logger) error {
	f, err := catalog.LoadFile(path)
	if err != nil {
		return err
	}
	sum, err := catalog.Import(ctx, s, f)
	if err != nil {
		return fmt.Errorf("failed to import catalog: %w", err)
	}
	logger.Info("catalog imported",
		"file", path,
		"plans", sum.Plans,
		"datacenters", sum.Datacenters,
		"os_templates", sum.OSTemplates,
		"promo_codes", sum.PromoCodes,
	)
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var sErr *ServerError
	if errors.As(err, &sErr) {
		return sErr.ExitCode
	}
	return ExitConfigError
}
