package measure

import (
	"gorm.io/gorm"

	domain "github.com/voltlab/labstore/internal/domain/measure"
	"github.com/voltlab/labstore/internal/pkg/dbctx"
	"github.com/voltlab/labstore/internal/pkg/logger"
	"github.com/voltlab/labstore/internal/pkg/storeerr"
	"github.com/voltlab/labstore/internal/platform/pg"
)

type PointRepo interface {
	// Create persists one grid-cell measurement. Pin, Pout and efficiency
	// are derived before insert; a point is never visible without them.
	Create(dbc dbctx.Context, sessionID int64, vinTarget, ioutTarget float64, mv domain.MeasuredValues, notes string) (*domain.MeasurementPoint, error)
	GetByID(dbc dbctx.Context, id int64) (*domain.MeasurementPoint, error)
	ListBySession(dbc dbctx.Context, sessionID int64) ([]*domain.MeasurementPoint, error)

	EfficiencyMap(dbc dbctx.Context, sessionID int64) ([]EfficiencyCell, error)
	WorstEfficiencyPointWithWaveform(dbc dbctx.Context, sessionID int64) (*WorstPoint, error)
	SessionSummary(dbc dbctx.Context, sessionID int64) (*SessionSummary, error)
}

type pointRepo struct {
	base
}

func NewPointRepo(mgr *pg.Manager, dbName string, baseLog *logger.Logger) PointRepo {
	return &pointRepo{base{mgr: mgr, dbName: dbName, log: baseLog.With("repo", "PointRepo")}}
}

func (r *pointRepo) Create(dbc dbctx.Context, sessionID int64, vinTarget, ioutTarget float64, mv domain.MeasuredValues, notes string) (*domain.MeasurementPoint, error) {
	d := mv.Derive()
	if d.PowerIn < 0 || d.PowerOut < 0 {
		return nil, storeerr.Newf(storeerr.KindIntegrity, "create_measurement_point",
			"derived power out of range: pin=%g pout=%g", d.PowerIn, d.PowerOut)
	}
	if d.Efficiency < 0 || d.Efficiency > 100 {
		return nil, storeerr.Newf(storeerr.KindIntegrity, "create_measurement_point",
			"derived efficiency %g outside [0,100]", d.Efficiency)
	}

	p := &domain.MeasurementPoint{
		SessionID:   sessionID,
		VinTarget:   vinTarget,
		IoutTarget:  ioutTarget,
		VinReal:     mv.VinReal,
		VoutReal:    mv.VoutReal,
		IoutReal:    mv.IoutReal,
		IinReal:     mv.IinReal,
		PowerIn:     d.PowerIn,
		PowerOut:    d.PowerOut,
		Efficiency:  d.Efficiency,
		Temperature: mv.Temperature,
		Notes:       notes,
	}
	err := r.withTx(dbc, func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&domain.SweepSession{}).Where("id = ?", sessionID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return storeerr.Newf(storeerr.KindNotFound, "create_measurement_point", "session %d not found", sessionID)
		}
		return tx.Create(p).Error
	})
	if err != nil {
		return nil, storeerr.Map("create_measurement_point", err)
	}
	return p, nil
}

func (r *pointRepo) GetByID(dbc dbctx.Context, id int64) (*domain.MeasurementPoint, error) {
	var p domain.MeasurementPoint
	err := r.withConn(dbc, func(db *gorm.DB) error {
		return db.First(&p, "id = ?", id).Error
	})
	if err != nil {
		return nil, storeerr.Map("get_measurement_point", err)
	}
	return &p, nil
}

func (r *pointRepo) ListBySession(dbc dbctx.Context, sessionID int64) ([]*domain.MeasurementPoint, error) {
	var out []*domain.MeasurementPoint
	err := r.withConn(dbc, func(db *gorm.DB) error {
		return db.Where("session_id = ?", sessionID).
			Order("captured_at").
			Find(&out).Error
	})
	if err != nil {
		return nil, storeerr.Map("list_measurement_points", err)
	}
	return out, nil
}
