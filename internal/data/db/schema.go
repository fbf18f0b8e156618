package db

import (
	"context"

	"gorm.io/gorm"

	"github.com/voltlab/labstore/internal/domain/measure"
	"github.com/voltlab/labstore/internal/pkg/logger"
	"github.com/voltlab/labstore/internal/pkg/storeerr"
	"github.com/voltlab/labstore/internal/platform/pg"
)

// SchemaService creates the fixed measurement schema inside a project
// database: entity tables, cascade foreign keys, indexes and the
// time-partitioned waveform table. No migration framework; every statement
// is idempotent so Initialize can run on every project open.
type SchemaService struct {
	mgr *pg.Manager
	log *logger.Logger
}

func NewSchemaService(mgr *pg.Manager, baseLog *logger.Logger) *SchemaService {
	return &SchemaService{mgr: mgr, log: baseLog.With("component", "db.SchemaService")}
}

// Initialize brings dbName up to the current fixed schema.
func (s *SchemaService) Initialize(ctx context.Context, dbName string) error {
	err := s.mgr.WithConn(ctx, dbName, func(db *gorm.DB) error {
		if err := db.AutoMigrate(
			&measure.Project{},
			&measure.SweepSession{},
			&measure.MeasurementPoint{},
		); err != nil {
			return err
		}

		if err := db.Exec(`
			CREATE TABLE IF NOT EXISTS waveform_samples (
				sampled_at       TIMESTAMPTZ NOT NULL,
				point_id         BIGINT NOT NULL,
				channel          INTEGER NOT NULL,
				kind             VARCHAR(50) NOT NULL,
				value            DOUBLE PRECISION NOT NULL,
				sample_index     BIGINT NOT NULL,
				sampling_freq_hz DOUBLE PRECISION,
				vertical_res     DOUBLE PRECISION,
				FOREIGN KEY (point_id) REFERENCES measurement_points(id) ON DELETE CASCADE
			)
		`).Error; err != nil {
			return err
		}

		if err := s.addCascades(db); err != nil {
			return err
		}
		if err := s.ensureHypertable(db); err != nil {
			return err
		}
		return s.createIndexes(db)
	})
	if err != nil {
		return storeerr.New(storeerr.KindSchema, "schema_initialize", err)
	}
	s.log.Info("schema initialized", "database", dbName)
	return nil
}

// addCascades wires project -> session -> point deletion. AutoMigrate runs
// with foreign key creation disabled, so the constraints are added here
// explicitly (drop-then-add keeps it idempotent).
func (s *SchemaService) addCascades(db *gorm.DB) error {
	stmts := []string{
		`ALTER TABLE sweep_sessions DROP CONSTRAINT IF EXISTS fk_sweep_sessions_project_id`,
		`ALTER TABLE sweep_sessions
			ADD CONSTRAINT fk_sweep_sessions_project_id
			FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE`,
		`ALTER TABLE measurement_points DROP CONSTRAINT IF EXISTS fk_measurement_points_session_id`,
		`ALTER TABLE measurement_points
			ADD CONSTRAINT fk_measurement_points_session_id
			FOREIGN KEY (session_id) REFERENCES sweep_sessions(id) ON DELETE CASCADE`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// ensureHypertable partitions waveform_samples by time with 1-hour chunks.
// The interval bounds the number of live chunks under sustained high-rate
// writes. Without the timescaledb extension the table stays a plain indexed
// table, which keeps local development databases usable.
func (s *SchemaService) ensureHypertable(db *gorm.DB) error {
	installed, err := timescaleInstalled(db)
	if err != nil {
		return err
	}
	if !installed {
		s.log.Warn("timescaledb extension not installed, waveform_samples stays a plain table")
		return nil
	}
	return db.Exec(`
		SELECT create_hypertable('waveform_samples', 'sampled_at',
			chunk_time_interval => INTERVAL '1 hour',
			if_not_exists => TRUE,
			migrate_data => TRUE)
	`).Error
}

func (s *SchemaService) createIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_waveform_samples_point_time
			ON waveform_samples (point_id, sampled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_waveform_samples_channel_kind
			ON waveform_samples (channel, kind)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func timescaleInstalled(db *gorm.DB) (bool, error) {
	var count int64
	err := db.Raw(`SELECT count(*) FROM pg_extension WHERE extname = 'timescaledb'`).
		Scan(&count).Error
	return count > 0, err
}
