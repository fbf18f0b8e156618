// Package measure holds the fixed-schema repositories for the measurement
// hierarchy: Project -> SweepSession -> MeasurementPoint -> WaveformSample.
// Every repository goes through the connection manager for each logical
// operation; an optional caller transaction can be supplied via dbctx.
package measure

import (
	"context"

	"gorm.io/gorm"

	"github.com/voltlab/labstore/internal/pkg/dbctx"
	"github.com/voltlab/labstore/internal/pkg/logger"
	"github.com/voltlab/labstore/internal/platform/pg"
)

type base struct {
	mgr    *pg.Manager
	dbName string
	log    *logger.Logger
}

func (b base) ctx(dbc dbctx.Context) context.Context {
	if dbc.Ctx != nil {
		return dbc.Ctx
	}
	return context.Background()
}

func (b base) withConn(dbc dbctx.Context, fn func(db *gorm.DB) error) error {
	if dbc.Tx != nil {
		return fn(dbc.Tx.WithContext(b.ctx(dbc)))
	}
	return b.mgr.WithConn(b.ctx(dbc), b.dbName, fn)
}

func (b base) withTx(dbc dbctx.Context, fn func(tx *gorm.DB) error) error {
	if dbc.Tx != nil {
		// Already inside the caller's transaction boundary.
		return fn(dbc.Tx.WithContext(b.ctx(dbc)))
	}
	return b.mgr.WithTx(b.ctx(dbc), b.dbName, fn)
}

// Store bundles the repositories of one project database.
type Store struct {
	Projects  ProjectRepo
	Sessions  SessionRepo
	Points    PointRepo
	Waveforms WaveformRepo
}

func NewStore(mgr *pg.Manager, dbName string, baseLog *logger.Logger) *Store {
	return &Store{
		Projects:  NewProjectRepo(mgr, dbName, baseLog),
		Sessions:  NewSessionRepo(mgr, dbName, baseLog),
		Points:    NewPointRepo(mgr, dbName, baseLog),
		Waveforms: NewWaveformRepo(mgr, dbName, baseLog),
	}
}
