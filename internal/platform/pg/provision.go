package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"

	"github.com/voltlab/labstore/internal/config"
	"github.com/voltlab/labstore/internal/pkg/logger"
	"github.com/voltlab/labstore/internal/pkg/sanitize"
	"github.com/voltlab/labstore/internal/pkg/storeerr"
)

// Provisioner creates and drops per-project databases against the server's
// admin database. CREATE/DROP DATABASE cannot run inside a transaction, so
// every statement here executes in autocommit mode.
type Provisioner struct {
	cfg config.Database
	mgr *Manager
	log *logger.Logger
}

func NewProvisioner(cfg config.Database, mgr *Manager, baseLog *logger.Logger) *Provisioner {
	return &Provisioner{
		cfg: cfg,
		mgr: mgr,
		log: baseLog.With("component", "pg.Provisioner"),
	}
}

// EnsureDatabase sanitizes logicalName into a physical database identifier,
// creates the database when absent and returns the physical name.
// Calling it twice is a no-op on the second call.
func (p *Provisioner) EnsureDatabase(ctx context.Context, logicalName string) (string, error) {
	dbName := sanitize.DatabaseName(logicalName)

	err := p.mgr.WithConn(ctx, p.cfg.AdminDB, func(db *gorm.DB) error {
		var exists int
		res := db.Raw(`SELECT 1 FROM pg_database WHERE datname = ?`, dbName).Scan(&exists)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			p.log.Debug("database already exists", "database", dbName)
			return nil
		}
		stmt := fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{dbName}.Sanitize())
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
		p.log.Info("database created", "database", dbName)
		return nil
	})
	if err != nil {
		return "", storeerr.New(storeerr.KindProvisioning, "ensure_database", err)
	}
	return dbName, nil
}

// DropDatabase forcibly terminates other sessions connected to dbName and
// drops it. Irreversible; meant for destructive project deletion only.
func (p *Provisioner) DropDatabase(ctx context.Context, dbName string) error {
	// Our own pooled connections count as active sessions too.
	p.mgr.Evict(dbName)

	err := p.mgr.WithConn(ctx, p.cfg.AdminDB, func(db *gorm.DB) error {
		if err := db.Exec(`
			SELECT pg_terminate_backend(pid)
			FROM pg_stat_activity
			WHERE datname = ? AND pid <> pg_backend_pid()
		`, dbName).Error; err != nil {
			return err
		}
		stmt := fmt.Sprintf("DROP DATABASE IF EXISTS %s", pgx.Identifier{dbName}.Sanitize())
		return db.Exec(stmt).Error
	})
	if err != nil {
		return storeerr.New(storeerr.KindProvisioning, "drop_database", err)
	}
	p.log.Warn("database dropped", "database", dbName)
	return nil
}
