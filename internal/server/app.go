// Package server initializes and runs the capture server: it loads the
// audit key, opens the session registry, wires the capture pipeline to the
// external messaging client and serves the HTTP control API until
// shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/dmsavelyev/chatvault/internal/audit"
	"github.com/dmsavelyev/chatvault/internal/common"
	"github.com/dmsavelyev/chatvault/internal/cryptox"
	"github.com/dmsavelyev/chatvault/internal/filex"
	"github.com/dmsavelyev/chatvault/internal/logging"
	"github.com/dmsavelyev/chatvault/internal/messaging"
	"github.com/dmsavelyev/chatvault/internal/server/config"
	"github.com/dmsavelyev/chatvault/internal/server/httpapi"
	"github.com/dmsavelyev/chatvault/internal/session"
	"github.com/dmsavelyev/chatvault/internal/session/registry"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	manager *session.Manager
	api     *httpapi.Server
	closeDB func() error
}

// NewApp wires every component from config. The factory abstracts the
// external messaging engine; the caller supplies the real implementation.
func NewApp(c *config.Config, factory messaging.Factory) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	if c.AuditKeyB64 == "" {
		return nil, fmt.Errorf("%s is not set: %w", common.AuditKeyEnvName, common.ErrConfig)
	}
	key, err := cryptox.LoadKey(c.AuditKeyB64)
	if err != nil {
		return nil, fmt.Errorf("audit key: %w", err)
	}
	defer common.WipeByteArray(key)

	cipher, err := cryptox.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}

	if err := filex.EnsureDir(c.DataDir); err != nil {
		return nil, err
	}

	db, err := registry.InitDatabase(context.Background(), filepath.Join(c.DataDir, "registry.db"))
	if err != nil {
		return nil, fmt.Errorf("registry init: %w", err)
	}
	repo := registry.NewSQLiteRepository(db)

	dirs := audit.Dirs{Base: c.DataDir}
	writer := audit.NewLogWriter(dirs, cipher)
	vault := audit.NewVault(dirs, cipher)
	normalizer := audit.NewNormalizer(writer, vault, c.CaptureGroups, logger)

	manager := session.NewManager(repo, factory, normalizer, c.CredsDir, logger)
	api := httpapi.NewServer(c.EndpointAddr, manager, c.QRWait, c.SecretKey, logger)

	return &App{
		config:  c,
		logger:  logger,
		manager: manager,
		api:     api,
		closeDB: db.Close,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.api.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	app.manager.StopAll(context.Background())
	if err := app.closeDB(); err != nil {
		app.logger.Error(ctx, "registry close failed", "err", err.Error())
	}
	app.logger.Info(ctx, "Shutdown complete")
}
