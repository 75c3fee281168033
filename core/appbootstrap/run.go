package appbootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/DavidCapener182/incommand-sub013/config"
	"github.com/DavidCapener182/incommand-sub013/core/store"
)

// Run boots the whole service: config, logging, database, migrations, the
// HTTP server and background workers, then blocks until SIGINT/SIGTERM.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		return err
	}

	comp, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return err
	}

	for _, w := range comp.workers {
		if err := w.StartWithContext(ctx); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: comp.server.Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	for _, w := range comp.workers {
		if err := w.StopWithContext(shutdownCtx); err != nil {
			logger.Warn("worker shutdown", zap.Error(err))
		}
	}
	return nil
}
