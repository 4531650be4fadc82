// Package app wires configuration, storage, mount drivers and controllers
// into one runnable application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chrissnell/remotescope/internal/controllers/restserver"
	"github.com/chrissnell/remotescope/internal/log"
	"github.com/chrissnell/remotescope/internal/mount"
	"github.com/chrissnell/remotescope/internal/storage/slewlog"
	"github.com/chrissnell/remotescope/internal/types"
	"github.com/chrissnell/remotescope/pkg/config"
	"go.uber.org/zap"
)

// statusBufferSize absorbs bursts from fast polling tiers without blocking
// the mount control loops.
const statusBufferSize = 256

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfgData, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	// Slew history storage is optional; without it the API simply has no
	// /api/slews data.
	var history *slewlog.Storage
	if cfgData.Storage.SQLite != nil && cfgData.Storage.SQLite.Path != "" {
		history, err = slewlog.New(cfgData.Storage.SQLite.Path)
		if err != nil {
			return err
		}
		defer history.Close()
	} else {
		log.Info("no storage configured; slew history will not be persisted")
	}

	statusDistributor := make(chan types.MountStatus, statusBufferSize)

	var recorder mount.SlewRecorder
	if history != nil {
		recorder = history
	}

	var services []restserver.MountService
	for _, mc := range cfgData.Mounts {
		m, err := mount.NewMount(ctx, &wg, mc, statusDistributor, recorder, a.logger)
		if err != nil {
			return err
		}
		if err := m.Start(); err != nil {
			return err
		}
		services = append(services, m)
	}

	for _, cc := range cfgData.Controllers {
		switch cc.Type {
		case "rest":
			rc := config.RESTServerData{}
			if cc.RESTServer != nil {
				rc = *cc.RESTServer
			}
			var hist restserver.SlewHistory
			if history != nil {
				hist = history
			}
			ctrl, err := restserver.NewController(ctx, &wg, rc, services, hist, statusDistributor, a.logger)
			if err != nil {
				return err
			}
			if err := ctrl.StartController(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown controller type %q", cc.Type)
		}
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}
