// Command hedge_engine runs the hedged execution engine as a standalone
// process: load config, wire venue adapters, persistence, and the event
// bus, then serve ExecuteHedgedEntry/ExecuteHedgedExit until signaled to
// stop. It mirrors live_server's flag/logger/lifecycle shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	hedgeconfig "github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/config"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/engine"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/cli"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/logging"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/telemetry"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/hedge_engine.yaml", "Path to configuration file")
	dashboardAddr := flag.String("dashboard-addr", ":8090", "Listen address for the WebSocket status dashboard")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hedge_engine version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if err := cli.ValidateInput(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "rejected -config value: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger("INFO")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := hedgeconfig.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := telemetry.InitMetrics(); err != nil {
		logger.Warn("metrics exporter unavailable", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Venue adapters (REST/WebSocket clients for Venue-A and Venue-B) and
	// the durable Store are external collaborators this engine consumes
	// through interfaces but never constructs itself; NewDeployment
	// is the composition seam a real deployment fills in with its
	// concrete implementations. The event Bus is wired to a real
	// dashboard broadcaster.
	venues, st, bus, err := NewDeployment(ctx, cfg, logger, *dashboardAddr)
	if err != nil {
		logger.Error("failed to assemble deployment", "error", err)
		os.Exit(1)
	}

	hedgeEngine := engine.New(*cfg, venues, st, bus, logger)

	if err := hedgeEngine.Start(ctx); err != nil {
		logger.Error("failed to start hedge engine", "error", err)
		os.Exit(1)
	}
	logger.Info("hedge engine running", "symbols", cfg.Symbols)

	<-ctx.Done()
	logger.Info("shutdown signal received, draining outstanding executions")

	if err := hedgeEngine.Stop(false); err != nil {
		logger.Error("error during shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("hedge engine stopped cleanly")
}
