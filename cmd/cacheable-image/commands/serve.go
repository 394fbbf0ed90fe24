package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/cacheable-image/internal/service/maintenance"
	"github.com/vertextoedge/cacheable-image/internal/service/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP resolver and cache server",
	Long: `Start the HTTP server exposing /resolve, /cache, /health, /metrics and
the /debug endpoints, together with the periodic maintenance loop.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{index: true, metrics: true})
	if err != nil {
		return err
	}
	defer a.Close()

	log := a.logger
	log.Info("starting cacheable-image",
		zap.String("version", Version),
		zap.String("config", configSource()),
		zap.String("cache_dir", a.fs.RootDir()),
	)

	maintenanceService := maintenance.New(&maintenance.Config{
		CleanupInterval:   a.cfg.Maintenance.GetCleanupInterval(),
		ReconcileInterval: a.cfg.Maintenance.GetReconcileInterval(),
		TempFileMaxAge:    a.cfg.Maintenance.GetTempFileMaxAge(),
		JobHistoryMaxAge:  a.cfg.Maintenance.GetJobHistoryMaxAge(),
	}, a.store, a.store, a.fs, log)

	httpServer := server.New(&server.Config{
		BindAddr:       a.cfg.HTTP.BindAddr,
		ReadTimeout:    a.cfg.HTTP.GetReadTimeout(),
		WriteTimeout:   a.cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:    a.cfg.HTTP.GetIdleTimeout(),
		MaxResolveWait: a.cfg.HTTP.GetMaxResolveWait(),
		DebugUsername:  a.cfg.HTTP.DebugUsername,
		DebugPassword:  a.cfg.HTTP.DebugPassword,
	}, server.Deps{
		Store:      a.store,
		FS:         a.fs,
		Prober:     a.prober,
		Downloader: a.downloader,
		Dispatcher: a.dispatcher,
		Gatherer:   a.registry,
	}, log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Clear leftovers of a previous run before accepting requests
	maintenanceService.RunOnce(ctx)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- httpServer.Start()
	}()

	go func() {
		if err := maintenanceService.Start(ctx); err != nil {
			log.Error("maintenance service stopped with error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	log.Info("application started successfully", zap.String("http_addr", a.cfg.HTTP.BindAddr))

	var serveErr error
	select {
	case <-sigChan:
		log.Info("shutdown signal received, stopping services...")
	case serveErr = <-serverDone:
		if serveErr != nil {
			log.Error("HTTP server failed", zap.Error(serveErr))
		}
	}

	cancel()
	maintenanceService.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	log.Info("application stopped")
	return serveErr
}

// configSource describes where configuration was loaded from
func configSource() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "defaults"
}
