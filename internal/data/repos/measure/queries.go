package measure

import (
	"time"

	"gorm.io/gorm"

	domain "github.com/voltlab/labstore/internal/domain/measure"
	"github.com/voltlab/labstore/internal/pkg/dbctx"
	"github.com/voltlab/labstore/internal/pkg/storeerr"
)

// EfficiencyCell is one cell of the efficiency map, ordered by
// (vin_target, iout_target) for plotting.
type EfficiencyCell struct {
	VinTarget   float64 `gorm:"column:vin_target" json:"vin_target"`
	IoutTarget  float64 `gorm:"column:iout_target" json:"iout_target"`
	Efficiency  float64 `gorm:"column:efficiency" json:"efficiency"`
	Temperature float64 `gorm:"column:temperature" json:"temperature"`
}

// WorstPoint pairs the lowest-efficiency point that has waveform data with
// all of its samples, for "show worst case" diagnostics.
type WorstPoint struct {
	Point   domain.MeasurementPoint `json:"point"`
	Samples []domain.WaveformSample `json:"samples"`
}

// SessionSummary aggregates one session in a single query.
type SessionSummary struct {
	SessionID          int64      `gorm:"column:session_id" json:"session_id"`
	Name               string     `gorm:"column:name" json:"name"`
	Status             string     `gorm:"column:status" json:"status"`
	StartedAt          time.Time  `gorm:"column:started_at" json:"started_at"`
	EndedAt            *time.Time `gorm:"column:ended_at" json:"ended_at,omitempty"`
	PointCount         int64      `gorm:"column:point_count" json:"point_count"`
	PointsWithWaveform int64      `gorm:"column:points_with_waveform" json:"points_with_waveform"`
	AvgEfficiency      *float64   `gorm:"column:avg_efficiency" json:"avg_efficiency,omitempty"`
	MinEfficiency      *float64   `gorm:"column:min_efficiency" json:"min_efficiency,omitempty"`
	MaxEfficiency      *float64   `gorm:"column:max_efficiency" json:"max_efficiency,omitempty"`
	AvgTemperature     *float64   `gorm:"column:avg_temperature" json:"avg_temperature,omitempty"`
}

func (r *pointRepo) EfficiencyMap(dbc dbctx.Context, sessionID int64) ([]EfficiencyCell, error) {
	var cells []EfficiencyCell
	err := r.withConn(dbc, func(db *gorm.DB) error {
		return db.Raw(`
			SELECT vin_target, iout_target, efficiency, temperature
			FROM measurement_points
			WHERE session_id = ?
			ORDER BY vin_target, iout_target
		`, sessionID).Scan(&cells).Error
	})
	if err != nil {
		return nil, storeerr.Map("get_efficiency_map", err)
	}
	return cells, nil
}

func (r *pointRepo) WorstEfficiencyPointWithWaveform(dbc dbctx.Context, sessionID int64) (*WorstPoint, error) {
	var out WorstPoint
	err := r.withConn(dbc, func(db *gorm.DB) error {
		err := db.Where("session_id = ? AND has_waveform", sessionID).
			Order("efficiency ASC").
			First(&out.Point).Error
		if err != nil {
			return err
		}
		return db.Where("point_id = ?", out.Point.ID).
			Order("channel, kind, sample_index").
			Find(&out.Samples).Error
	})
	if err != nil {
		return nil, storeerr.Map("get_worst_efficiency_point", err)
	}
	return &out, nil
}

func (r *pointRepo) SessionSummary(dbc dbctx.Context, sessionID int64) (*SessionSummary, error) {
	var s SessionSummary
	err := r.withConn(dbc, func(db *gorm.DB) error {
		res := db.Raw(`
			SELECT
				ss.id AS session_id,
				ss.name,
				ss.status,
				ss.started_at,
				ss.ended_at,
				COUNT(mp.id)                                   AS point_count,
				COUNT(mp.id) FILTER (WHERE mp.has_waveform)    AS points_with_waveform,
				AVG(mp.efficiency)                             AS avg_efficiency,
				MIN(mp.efficiency)                             AS min_efficiency,
				MAX(mp.efficiency)                             AS max_efficiency,
				AVG(mp.temperature)                            AS avg_temperature
			FROM sweep_sessions ss
			LEFT JOIN measurement_points mp ON mp.session_id = ss.id
			WHERE ss.id = ?
			GROUP BY ss.id, ss.name, ss.status, ss.started_at, ss.ended_at
		`, sessionID).Scan(&s)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, storeerr.Map("get_session_summary", err)
	}
	return &s, nil
}
