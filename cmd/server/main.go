package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/dmsavelyev/chatvault/internal/buildinfo"
	"github.com/dmsavelyev/chatvault/internal/logging"
	"github.com/dmsavelyev/chatvault/internal/messaging/extproc"
	"github.com/dmsavelyev/chatvault/internal/server"
	"github.com/dmsavelyev/chatvault/internal/server/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	factory := extproc.NewFactory(cfg.EngineCmd, logger)

	app, err := server.NewApp(cfg, factory)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
