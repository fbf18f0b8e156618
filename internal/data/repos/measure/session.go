package measure

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "github.com/voltlab/labstore/internal/domain/measure"
	"github.com/voltlab/labstore/internal/pkg/dbctx"
	"github.com/voltlab/labstore/internal/pkg/logger"
	"github.com/voltlab/labstore/internal/pkg/storeerr"
	"github.com/voltlab/labstore/internal/platform/pg"
)

type SessionRepo interface {
	Create(dbc dbctx.Context, projectID int64, name string, vinAxis, ioutAxis []float64, notes string) (*domain.SweepSession, error)
	GetByID(dbc dbctx.Context, id int64) (*domain.SweepSession, error)
	ListByProject(dbc dbctx.Context, projectID int64) ([]*domain.SweepSession, error)
	// Complete moves the session to the completed state and stamps the end
	// time server-side. The transition is one-way; completing an already
	// completed session is a no-op.
	Complete(dbc dbctx.Context, id int64) error
}

type sessionRepo struct {
	base
}

func NewSessionRepo(mgr *pg.Manager, dbName string, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{base{mgr: mgr, dbName: dbName, log: baseLog.With("repo", "SessionRepo")}}
}

func (r *sessionRepo) Create(dbc dbctx.Context, projectID int64, name string, vinAxis, ioutAxis []float64, notes string) (*domain.SweepSession, error) {
	if len(vinAxis) == 0 || len(ioutAxis) == 0 {
		return nil, storeerr.Newf(storeerr.KindIntegrity, "create_sweep_session",
			"sweep axes must not be empty (vin=%d, iout=%d values)", len(vinAxis), len(ioutAxis))
	}
	s := &domain.SweepSession{
		ProjectID: projectID,
		Name:      name,
		VinAxis:   datatypes.NewJSONSlice(vinAxis),
		IoutAxis:  datatypes.NewJSONSlice(ioutAxis),
		Status:    domain.SessionInProgress,
		Notes:     notes,
	}
	err := r.withTx(dbc, func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&domain.Project{}).Where("id = ?", projectID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return storeerr.Newf(storeerr.KindNotFound, "create_sweep_session", "project %d not found", projectID)
		}
		return tx.Create(s).Error
	})
	if err != nil {
		return nil, storeerr.Map("create_sweep_session", err)
	}
	r.log.Info("sweep session created", "session_id", s.ID, "project_id", projectID,
		"grid", len(vinAxis)*len(ioutAxis))
	return s, nil
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id int64) (*domain.SweepSession, error) {
	var s domain.SweepSession
	err := r.withConn(dbc, func(db *gorm.DB) error {
		return db.First(&s, "id = ?", id).Error
	})
	if err != nil {
		return nil, storeerr.Map("get_sweep_session", err)
	}
	return &s, nil
}

func (r *sessionRepo) ListByProject(dbc dbctx.Context, projectID int64) ([]*domain.SweepSession, error) {
	var out []*domain.SweepSession
	err := r.withConn(dbc, func(db *gorm.DB) error {
		return db.Where("project_id = ?", projectID).Order("started_at").Find(&out).Error
	})
	if err != nil {
		return nil, storeerr.Map("list_sweep_sessions", err)
	}
	return out, nil
}

func (r *sessionRepo) Complete(dbc dbctx.Context, id int64) error {
	err := r.withTx(dbc, func(tx *gorm.DB) error {
		res := tx.Exec(`
			UPDATE sweep_sessions
			SET status = ?, ended_at = now()
			WHERE id = ? AND status = ?
		`, domain.SessionCompleted, id, domain.SessionInProgress)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&domain.SweepSession{}).Where("id = ?", id).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return gorm.ErrRecordNotFound
			}
			// Already completed; the end time from the first transition stands.
		}
		return nil
	})
	if err != nil {
		return storeerr.Map("complete_sweep_session", err)
	}
	r.log.Info("sweep session completed", "session_id", id)
	return nil
}
