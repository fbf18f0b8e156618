package pg

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/voltlab/labstore/internal/config"
	"github.com/voltlab/labstore/internal/pkg/logger"
	"github.com/voltlab/labstore/internal/pkg/storeerr"
)

// Manager hands out scoped database access, one lazily opened handle per
// physical database. It is an explicit dependency passed to every store
// component; nothing in this package holds process-wide state, so multiple
// projects (databases) can be open at once and tests can inject their own
// instance.
type Manager struct {
	cfg config.Database
	log *logger.Logger

	mu      sync.Mutex
	handles map[string]*gorm.DB
}

func NewManager(cfg config.Database, baseLog *logger.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		log:     baseLog.With("component", "pg.Manager"),
		handles: make(map[string]*gorm.DB),
	}
}

func (m *Manager) open(dbName string) (*gorm.DB, error) {
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(m.cfg.DSN(dbName)), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, storeerr.New(storeerr.KindConnection, "pg.open", err)
	}
	return db, nil
}

// Handle returns a live gorm handle for dbName, reopening it when the peer
// has closed the underlying connection.
func (m *Manager) Handle(ctx context.Context, dbName string) (*gorm.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.handles[dbName]; ok {
		sqlDB, err := db.DB()
		if err == nil && sqlDB.PingContext(ctx) == nil {
			return db, nil
		}
		m.log.Warn("stale database handle, reconnecting", "database", dbName)
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
		delete(m.handles, dbName)
	}

	db, err := m.open(dbName)
	if err != nil {
		return nil, err
	}
	m.handles[dbName] = db
	return db, nil
}

// WithConn runs fn against a scoped handle for dbName. Connection
// acquisition failures carry the Connection kind; fn errors are returned
// unwrapped so callers attach their own operation context.
func (m *Manager) WithConn(ctx context.Context, dbName string, fn func(db *gorm.DB) error) error {
	db, err := m.Handle(ctx, dbName)
	if err != nil {
		return err
	}
	return fn(db.WithContext(ctx))
}

// WithTx runs fn inside a transaction on dbName. The transaction is rolled
// back on error or panic and committed otherwise; it never outlives fn.
func (m *Manager) WithTx(ctx context.Context, dbName string, fn func(tx *gorm.DB) error) error {
	db, err := m.Handle(ctx, dbName)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Transaction(fn)
}

// Evict closes and forgets the handle for dbName, if any. Called before the
// database is dropped.
func (m *Manager) Evict(dbName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if db, ok := m.handles[dbName]; ok {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		delete(m.handles, dbName)
	}
}

// Close releases every open handle.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, db := range m.handles {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		delete(m.handles, name)
	}
}
