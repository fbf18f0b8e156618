package db

import (
	"context"

	"gorm.io/gorm"

	"github.com/voltlab/labstore/internal/pkg/storeerr"
)

// Info describes the live state of a project database, for diagnostics and
// the provisioning CLI.
type Info struct {
	ServerVersion string   `json:"server_version"`
	Timescale     bool     `json:"timescale"`
	Tables        []string `json:"tables"`
	Hypertables   []string `json:"hypertables"`
}

// Inspect reports server version, extension status and the table set of
// dbName.
func (s *SchemaService) Inspect(ctx context.Context, dbName string) (*Info, error) {
	var info Info
	err := s.mgr.WithConn(ctx, dbName, func(db *gorm.DB) error {
		if err := db.Raw(`SELECT version()`).Scan(&info.ServerVersion).Error; err != nil {
			return err
		}
		installed, err := timescaleInstalled(db)
		if err != nil {
			return err
		}
		info.Timescale = installed

		if err := db.Raw(`
			SELECT tablename FROM pg_tables
			WHERE schemaname = 'public'
			ORDER BY tablename
		`).Scan(&info.Tables).Error; err != nil {
			return err
		}

		if installed {
			if err := db.Raw(`
				SELECT hypertable_name FROM timescaledb_information.hypertables
				ORDER BY hypertable_name
			`).Scan(&info.Hypertables).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeerr.Map("schema_inspect", err)
	}
	return &info, nil
}
