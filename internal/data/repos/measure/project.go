package measure

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "github.com/voltlab/labstore/internal/domain/measure"
	"github.com/voltlab/labstore/internal/pkg/dbctx"
	"github.com/voltlab/labstore/internal/pkg/logger"
	"github.com/voltlab/labstore/internal/pkg/storeerr"
	"github.com/voltlab/labstore/internal/platform/pg"
)

type ProjectRepo interface {
	Create(dbc dbctx.Context, name, description string, params datatypes.JSON) (*domain.Project, error)
	GetByID(dbc dbctx.Context, id int64) (*domain.Project, error)
	GetByName(dbc dbctx.Context, name string) (*domain.Project, error)
	List(dbc dbctx.Context) ([]*domain.Project, error)
	Update(dbc dbctx.Context, p *domain.Project) error
	// Delete removes the project row and, through the cascade chain, every
	// session, point and waveform sample below it.
	Delete(dbc dbctx.Context, id int64) error
}

type projectRepo struct {
	base
}

func NewProjectRepo(mgr *pg.Manager, dbName string, baseLog *logger.Logger) ProjectRepo {
	return &projectRepo{base{mgr: mgr, dbName: dbName, log: baseLog.With("repo", "ProjectRepo")}}
}

func (r *projectRepo) Create(dbc dbctx.Context, name, description string, params datatypes.JSON) (*domain.Project, error) {
	if name == "" {
		return nil, storeerr.Newf(storeerr.KindIntegrity, "create_project", "project name must not be empty")
	}
	if len(params) == 0 {
		params = datatypes.JSON([]byte(`{}`))
	}
	p := &domain.Project{
		Name:        name,
		Description: description,
		Params:      params,
	}
	err := r.withConn(dbc, func(db *gorm.DB) error {
		return db.Create(p).Error
	})
	if err != nil {
		return nil, storeerr.Map("create_project", err)
	}
	r.log.Info("project created", "project_id", p.ID, "name", name)
	return p, nil
}

func (r *projectRepo) GetByID(dbc dbctx.Context, id int64) (*domain.Project, error) {
	var p domain.Project
	err := r.withConn(dbc, func(db *gorm.DB) error {
		return db.First(&p, "id = ?", id).Error
	})
	if err != nil {
		return nil, storeerr.Map("get_project", err)
	}
	return &p, nil
}

func (r *projectRepo) GetByName(dbc dbctx.Context, name string) (*domain.Project, error) {
	var p domain.Project
	err := r.withConn(dbc, func(db *gorm.DB) error {
		return db.First(&p, "name = ?", name).Error
	})
	if err != nil {
		return nil, storeerr.Map("get_project_by_name", err)
	}
	return &p, nil
}

func (r *projectRepo) List(dbc dbctx.Context) ([]*domain.Project, error) {
	var out []*domain.Project
	err := r.withConn(dbc, func(db *gorm.DB) error {
		return db.Order("created_at").Find(&out).Error
	})
	if err != nil {
		return nil, storeerr.Map("list_projects", err)
	}
	return out, nil
}

func (r *projectRepo) Update(dbc dbctx.Context, p *domain.Project) error {
	if p == nil || p.ID == 0 {
		return storeerr.Newf(storeerr.KindIntegrity, "update_project", "project id required")
	}
	err := r.withConn(dbc, func(db *gorm.DB) error {
		res := db.Model(&domain.Project{}).
			Where("id = ?", p.ID).
			Updates(map[string]interface{}{
				"name":        p.Name,
				"description": p.Description,
				"params":      p.Params,
				"updated_at":  time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return storeerr.Map("update_project", err)
}

func (r *projectRepo) Delete(dbc dbctx.Context, id int64) error {
	err := r.withTx(dbc, func(tx *gorm.DB) error {
		res := tx.Delete(&domain.Project{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return storeerr.Map("delete_project", err)
	}
	r.log.Warn("project deleted", "project_id", id)
	return nil
}
