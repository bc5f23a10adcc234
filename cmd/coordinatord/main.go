// Command coordinatord runs the prime-search coordinator: loads
// configuration, builds the Application (storage, Dispatcher, trust
// Scorer, verification Pipeline, Orchestrator, Tick Scheduler, HTTP API),
// and runs until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/runtime"
	"github.com/oddurs/darkreach-coordinator/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file (overrides CONFIG_FILE/configs/config.yaml)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage when empty)")
	addr := flag.String("addr", "", "HTTP listen address host:port (overrides config server.host/server.port)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	applyFlags(cfg, *dsn, *addr)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	app, err := runtime.New(cfg)
	if err != nil {
		log.Fatalf("build application: %v", err)
	}

	rootCtx := context.Background()
	if err := app.Run(runCtx(rootCtx)); err != nil {
		log.Fatalf("run application: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

func loadConfig(configPath string) (*config.Config, error) {
	if path := strings.TrimSpace(configPath); path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func applyFlags(cfg *config.Config, dsn, addr string) {
	if v := strings.TrimSpace(dsn); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(addr); v != "" {
		if idx := strings.LastIndex(v, ":"); idx != -1 {
			cfg.Server.Host = v[:idx]
			if port, err := strconv.Atoi(v[idx+1:]); err == nil {
				cfg.Server.Port = port
			}
		}
	}
}

// runCtx wires SIGINT/SIGTERM into ctx cancellation, run-until-signal.
func runCtx(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}
