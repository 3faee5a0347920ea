// stamper is a CLI for stamping heightmap brushes onto tiled terrain.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"go.uber.org/zap"

	"github.com/Faultbox/terrastamp/internal/config"
	"github.com/Faultbox/terrastamp/internal/logger"
	"github.com/Faultbox/terrastamp/internal/stamplib"
	"github.com/Faultbox/terrastamp/internal/storage"
)

// app carries what every command needs.
type app struct {
	cfg   *config.Config
	store storage.Store
	lib   *stamplib.Library
}

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Stamper.Parallel > 0 {
		runtime.GOMAXPROCS(cfg.Stamper.Parallel)
	}
	logger.Sugar.Debugf("Config: %+v", cfg)

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command, rest := args[0], args[1:]
	logger.ForCommand(command)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{
		cfg: cfg,
		lib: stamplib.New(cfg.Library.CacheDir, cfg.Library.Sources, logger.Named("library")),
	}

	switch command {
	case "init":
		err = a.cmdInit(ctx, rest)
	case "tiles", "ls":
		err = a.cmdTiles(ctx, rest)
	case "apply":
		err = a.cmdApply(ctx, rest)
	case "undo":
		err = a.cmdUndo(ctx, rest)
	case "preview":
		err = a.cmdPreview(ctx, rest)
	case "fetch":
		err = a.cmdFetch(ctx, rest)
	case "info":
		err = a.cmdInfo(ctx, rest)
	case "export":
		err = a.cmdExport(rest)
	case "config":
		err = a.cmdConfig(rest)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`stamper - terrain heightmap stamping tool

Usage:
  stamper [flags] <command> [options]

Flags:
  -config <file>    Config file (default ./config.yaml, then the user config dir)
  -tiles <dir>      Tile directory, or key prefix with the s3 backend
  -backend <name>   Tile storage: memory, disk or s3
  -bucket <name>    S3 bucket (selects the s3 backend)
  -debug            Debug logging

Commands:
  init <w> <h> <tiles-x> <tiles-z>   Create flat w x h sample tiles
  tiles                              List tiles with their height range
  apply <settings.yaml>              Stamp onto the terrain
  undo                               Restore the terrain from before the last apply
  preview <settings.yaml> <out.png>  Render the stamped terrain without writing it
  fetch <name|url>                   Download a stamp into the library cache
  info <image>                       Show a stamp image's size and height range
  export <settings.yaml>             Print settings as JSON
  config [path]                      Write the effective config

Examples:
  stamper -tiles ./world init 256 256 4 4
  stamper -tiles ./world apply stamps/crater.yaml
  stamper -tiles ./world preview stamps/crater.yaml crater.png
  stamper fetch https://example.com/stamps/dunes.png
  stamper -bucket terrain -tiles worlds/a tiles`)
}

// openStore opens the configured tile store on first use.
func (a *app) openStore() (storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := storage.Open(a.cfg.Storage.Store())
	if err != nil {
		return nil, fmt.Errorf("opening tile store: %w", err)
	}
	a.store = s
	return s, nil
}
