// Package testutil bootstraps repository integration tests against a real
// PostgreSQL database. Set TEST_POSTGRES_DSN (e.g.
// "host=localhost port=5432 user=postgres dbname=labstore_test sslmode=disable")
// to run them; they skip otherwise.
package testutil

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strconv"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/voltlab/labstore/internal/config"
	"github.com/voltlab/labstore/internal/data/db"
	"github.com/voltlab/labstore/internal/pkg/logger"
	"github.com/voltlab/labstore/internal/platform/pg"
)

var errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

var (
	envOnce sync.Once
	env     *Env
	envErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

// Env is the shared integration-test environment: one connection manager
// and one schema-initialized database.
type Env struct {
	Mgr    *pg.Manager
	DBName string
	Cfg    config.Database
}

// Handle returns a raw gorm handle for seeding fixtures.
func (e *Env) Handle(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := e.Mgr.Handle(context.Background(), e.DBName)
	if err != nil {
		tb.Fatalf("acquire db handle: %v", err)
	}
	return db
}

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns the shared environment, initializing the measurement schema on
// first use.
func DB(tb testing.TB) *Env {
	tb.Helper()

	envOnce.Do(func() {
		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn == "" {
			envErr = errMissingDSN
			return
		}
		cfg, dbName, err := parseDSN(dsn)
		if err != nil {
			envErr = err
			return
		}

		log, err := logger.New("test")
		if err != nil {
			envErr = err
			return
		}
		mgr := pg.NewManager(cfg, log)
		if err := db.NewSchemaService(mgr, log).Initialize(context.Background(), dbName); err != nil {
			envErr = err
			return
		}
		env = &Env{Mgr: mgr, DBName: dbName, Cfg: cfg}
	})

	if errors.Is(envErr, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	if envErr != nil {
		tb.Fatalf("failed to init test db: %v", envErr)
	}
	return env
}

var dsnField = regexp.MustCompile(`(\w+)=([^\s]+)`)

// parseDSN splits a key=value DSN into config.Database plus the target
// database name, so the manager can rebuild per-database DSNs from it.
func parseDSN(dsn string) (config.Database, string, error) {
	cfg := config.Database{AdminDB: "postgres"}
	dbName := ""
	for _, m := range dsnField.FindAllStringSubmatch(dsn, -1) {
		switch m[1] {
		case "host":
			cfg.Host = m[2]
		case "port":
			p, err := strconv.Atoi(m[2])
			if err != nil {
				return cfg, "", errors.New("invalid port in TEST_POSTGRES_DSN")
			}
			cfg.Port = p
		case "user":
			cfg.User = m[2]
		case "password":
			cfg.Password = m[2]
		case "dbname":
			dbName = m[2]
		case "sslmode":
			cfg.SSLMode = m[2]
		}
	}
	if dbName == "" {
		return cfg, "", errors.New("TEST_POSTGRES_DSN must include dbname")
	}
	return cfg, dbName, nil
}
