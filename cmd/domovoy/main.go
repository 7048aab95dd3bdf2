// Command domovoy runs the automation runtime with a statically linked
// app set: operators build their own binary by declaring load units and
// apps here (or in a fork of this file) and pointing the runner at their
// platform connector.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlos-sarmiento/domovoy"
	"github.com/carlos-sarmiento/domovoy/webapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML or TOML config file")
	flag.Parse()

	cfg, err := domovoy.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	// Statically declared units have no source tree to watch.
	cfg.AppsPath = ""

	logger := &domovoy.SlogLogger{L: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))}

	conn := domovoy.NewLoopbackConnector()
	source := domovoy.NewStaticSource(units()...)

	runner := domovoy.NewRunner(cfg, logger, conn, source)
	api := webapi.New(runner.Engine, runner.Cache)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.Start(ctx, api); err != nil {
		return err
	}
	logger.Info("runtime started", "apps", len(runner.Engine.Snapshot()))

	<-ctx.Done()
	stop()
	runner.Stop(context.Background())
	return nil
}

// units declares the load units this binary links in. Replace or extend
// these with your own apps.
func units() []domovoy.UnitDefinition {
	return []domovoy.UnitDefinition{
		{
			ID: "examples/heartbeat",
			Apps: []domovoy.AppDefinition{
				{Name: "heartbeat", Factory: newHeartbeat},
			},
		},
	}
}
