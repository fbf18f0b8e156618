package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/voltlab/labstore/internal/config"
	"github.com/voltlab/labstore/internal/data/db"
	"github.com/voltlab/labstore/internal/data/repos/measure"
	"github.com/voltlab/labstore/internal/data/repos/runtable"
	"github.com/voltlab/labstore/internal/pkg/logger"
	"github.com/voltlab/labstore/internal/platform/pg"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	projectName := flag.String("project", "", "logical project name to open or create")
	flag.Parse()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	log.Info("Loading config from main...", "path", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("Could not load config", "error", err)
		os.Exit(1)
	}
	if *projectName == "" {
		log.Error("No project name given, use -project")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Postgres
	log.Info("Setting up connection manager from main...")
	mgr := pg.NewManager(cfg.Database, log)
	defer mgr.Close()

	prov := pg.NewProvisioner(cfg.Database, mgr, log)
	dbName, err := prov.EnsureDatabase(ctx, *projectName)
	if err != nil {
		log.Error("Could not provision project database", "error", err)
		os.Exit(1)
	}

	// Schema
	log.Info("Initializing measurement schema from main...")
	schema := db.NewSchemaService(mgr, log)
	if err := schema.Initialize(ctx, dbName); err != nil {
		log.Error("Schema initialization failed", "error", err)
		os.Exit(1)
	}

	// Repos
	log.Info("Setting up repos from main...")
	store := measure.NewStore(mgr, dbName, log)
	versioner := runtable.NewVersioner(mgr, dbName, log)
	_ = store
	_ = versioner

	// Summary
	info, err := schema.Inspect(ctx, dbName)
	if err != nil {
		log.Error("Could not inspect database", "error", err)
		os.Exit(1)
	}
	log.Info("Project database ready",
		"database", dbName,
		"server", info.ServerVersion,
		"timescaledb", info.Timescale,
		"tables", len(info.Tables),
		"hypertables", len(info.Hypertables))
}
