package measure

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	domain "github.com/voltlab/labstore/internal/domain/measure"
	"github.com/voltlab/labstore/internal/pkg/dbctx"
	"github.com/voltlab/labstore/internal/pkg/logger"
	"github.com/voltlab/labstore/internal/pkg/storeerr"
	"github.com/voltlab/labstore/internal/platform/pg"
)

// insertPageSize bounds per-transaction memory and lock duration during
// bulk ingestion.
const insertPageSize = 1000

// downsampleEpoch anchors date_bin buckets so equal widths always produce
// identically aligned buckets across queries.
var downsampleEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// SamplingMeta carries optional oscilloscope capture metadata stored with
// every sample of a bulk write.
type SamplingMeta struct {
	FreqHz      float64 `json:"freq_hz"`
	VerticalRes float64 `json:"vertical_res"`
}

// Bucket is one fixed-width downsampling bucket.
type Bucket struct {
	BucketStart time.Time `gorm:"column:bucket_start" json:"bucket_start"`
	Avg         float64   `gorm:"column:avg_value" json:"avg"`
	Min         float64   `gorm:"column:min_value" json:"min"`
	Max         float64   `gorm:"column:max_value" json:"max"`
	SampleCount int64     `gorm:"column:sample_count" json:"sample_count"`
}

type WaveformRepo interface {
	// SaveBulk writes one captured waveform for (pointID, channel, kind) in
	// insert pages of 1000 rows and marks the point as having waveform data,
	// all inside one transaction. Sample indexes continue from the channel's
	// previous maximum, so acquisition order survives timestamp collisions.
	SaveBulk(dbc dbctx.Context, pointID int64, channel int, kind string, timestamps []time.Time, values []float64, meta *SamplingMeta) error

	// Range reads a bounded time window at full resolution, in acquisition
	// order.
	Range(dbc dbctx.Context, pointID int64, channel int, start, end time.Time) ([]domain.WaveformSample, error)

	// Downsampled aggregates the channel into fixed-width buckets aligned to
	// the 2000-01-01 epoch.
	Downsampled(dbc dbctx.Context, pointID int64, channel int, kind string, bucketWidth time.Duration) ([]Bucket, error)

	// Delete removes every sample of the point and clears its has-waveform
	// flag atomically.
	Delete(dbc dbctx.Context, pointID int64) error
}

type waveformRepo struct {
	base
}

func NewWaveformRepo(mgr *pg.Manager, dbName string, baseLog *logger.Logger) WaveformRepo {
	return &waveformRepo{base{mgr: mgr, dbName: dbName, log: baseLog.With("repo", "WaveformRepo")}}
}

func (r *waveformRepo) SaveBulk(dbc dbctx.Context, pointID int64, channel int, kind string, timestamps []time.Time, values []float64, meta *SamplingMeta) error {
	if len(timestamps) != len(values) {
		return storeerr.Newf(storeerr.KindIntegrity, "save_waveform_bulk",
			"timestamps and values length mismatch: %d vs %d", len(timestamps), len(values))
	}
	if kind == "" {
		return storeerr.Newf(storeerr.KindIntegrity, "save_waveform_bulk", "measurement kind required")
	}
	if len(timestamps) == 0 {
		return nil
	}

	var freq, res *float64
	if meta != nil {
		freq, res = &meta.FreqHz, &meta.VerticalRes
	}

	err := r.withTx(dbc, func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&domain.MeasurementPoint{}).Where("id = ?", pointID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return storeerr.Newf(storeerr.KindNotFound, "save_waveform_bulk", "measurement point %d not found", pointID)
		}

		var nextIndex int64
		if err := tx.Raw(`
			SELECT COALESCE(MAX(sample_index) + 1, 0)
			FROM waveform_samples
			WHERE point_id = ? AND channel = ?
		`, pointID, channel).Scan(&nextIndex).Error; err != nil {
			return err
		}

		samples := make([]domain.WaveformSample, len(timestamps))
		for i, ts := range timestamps {
			samples[i] = domain.WaveformSample{
				SampledAt:      ts,
				PointID:        pointID,
				Channel:        channel,
				Kind:           kind,
				Value:          values[i],
				SampleIndex:    nextIndex + int64(i),
				SamplingFreqHz: freq,
				VerticalRes:    res,
			}
		}
		if err := tx.CreateInBatches(samples, insertPageSize).Error; err != nil {
			return err
		}

		return tx.Model(&domain.MeasurementPoint{}).
			Where("id = ?", pointID).
			Update("has_waveform", true).Error
	})
	if err != nil {
		return storeerr.Map("save_waveform_bulk", err)
	}
	r.log.Info("waveform saved", "point_id", pointID, "channel", channel,
		"kind", kind, "samples", len(timestamps))
	return nil
}

func (r *waveformRepo) Range(dbc dbctx.Context, pointID int64, channel int, start, end time.Time) ([]domain.WaveformSample, error) {
	var out []domain.WaveformSample
	err := r.withConn(dbc, func(db *gorm.DB) error {
		return db.Where("point_id = ? AND channel = ? AND sampled_at BETWEEN ? AND ?",
			pointID, channel, start, end).
			Order("sample_index").
			Find(&out).Error
	})
	if err != nil {
		return nil, storeerr.Map("get_waveform_range", err)
	}
	return out, nil
}

func (r *waveformRepo) Downsampled(dbc dbctx.Context, pointID int64, channel int, kind string, bucketWidth time.Duration) ([]Bucket, error) {
	if bucketWidth <= 0 {
		return nil, storeerr.Newf(storeerr.KindIntegrity, "get_waveform_downsampled",
			"bucket width must be positive, got %s", bucketWidth)
	}
	interval := fmt.Sprintf("%d microseconds", bucketWidth.Microseconds())

	var out []Bucket
	err := r.withConn(dbc, func(db *gorm.DB) error {
		return db.Raw(`
			SELECT
				date_bin(?::interval, sampled_at, ?::timestamptz) AS bucket_start,
				AVG(value)  AS avg_value,
				MIN(value)  AS min_value,
				MAX(value)  AS max_value,
				COUNT(*)    AS sample_count
			FROM waveform_samples
			WHERE point_id = ? AND channel = ? AND kind = ?
			GROUP BY bucket_start
			ORDER BY bucket_start
		`, interval, downsampleEpoch, pointID, channel, kind).Scan(&out).Error
	})
	if err != nil {
		return nil, storeerr.Map("get_waveform_downsampled", err)
	}
	return out, nil
}

func (r *waveformRepo) Delete(dbc dbctx.Context, pointID int64) error {
	err := r.withTx(dbc, func(tx *gorm.DB) error {
		if err := tx.Where("point_id = ?", pointID).Delete(&domain.WaveformSample{}).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.MeasurementPoint{}).
			Where("id = ?", pointID).
			Update("has_waveform", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return storeerr.Map("delete_waveform", err)
	}
	r.log.Info("waveform deleted", "point_id", pointID)
	return nil
}
