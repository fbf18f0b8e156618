package measure

import (
	"time"
)

// MeasuredValues are the raw instrument readings for one grid cell.
type MeasuredValues struct {
	VinReal     float64 `json:"vin_real"`
	IinReal     float64 `json:"iin_real"`
	VoutReal    float64 `json:"vout_real"`
	IoutReal    float64 `json:"iout_real"`
	Temperature float64 `json:"temperature"`
}

// DerivedValues are computed from MeasuredValues before insert; a point is
// never visible without them.
type DerivedValues struct {
	PowerIn    float64 `json:"power_in"`
	PowerOut   float64 `json:"power_out"`
	Efficiency float64 `json:"efficiency"`
}

// Derive computes Pin, Pout and efficiency. Efficiency is 0 when Pin <= 0;
// non-physical sign conventions are the caller's problem, not second-guessed
// here.
func (m MeasuredValues) Derive() DerivedValues {
	d := DerivedValues{
		PowerIn:  m.VinReal * m.IinReal,
		PowerOut: m.VoutReal * m.IoutReal,
	}
	if d.PowerIn > 0 {
		d.Efficiency = d.PowerOut / d.PowerIn * 100
	}
	return d
}

// MeasurementPoint is one scalar sample at one (vin_target, iout_target)
// grid cell. Immutable after creation except HasWaveform, which tracks
// whether waveform samples exist for the point.
type MeasurementPoint struct {
	ID        int64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SessionID int64 `gorm:"column:session_id;not null;index" json:"session_id"`

	VinTarget  float64 `gorm:"column:vin_target;type:double precision;not null;index:idx_measurement_points_target,priority:1" json:"vin_target"`
	IoutTarget float64 `gorm:"column:iout_target;type:double precision;not null;index:idx_measurement_points_target,priority:2" json:"iout_target"`

	CapturedAt time.Time `gorm:"column:captured_at;not null;default:now();index" json:"captured_at"`

	VinReal  float64 `gorm:"column:vin_real;type:double precision;not null" json:"vin_real"`
	VoutReal float64 `gorm:"column:vout_real;type:double precision;not null" json:"vout_real"`
	IoutReal float64 `gorm:"column:iout_real;type:double precision;not null" json:"iout_real"`
	IinReal  float64 `gorm:"column:iin_real;type:double precision;not null" json:"iin_real"`

	PowerIn    float64 `gorm:"column:power_in;type:double precision;not null;check:chk_powers_positive,power_in >= 0 AND power_out >= 0" json:"power_in"`
	PowerOut   float64 `gorm:"column:power_out;type:double precision;not null" json:"power_out"`
	Efficiency float64 `gorm:"column:efficiency;type:double precision;not null;index:idx_measurement_points_efficiency,sort:desc;check:chk_efficiency_range,efficiency >= 0 AND efficiency <= 100" json:"efficiency"`

	Temperature float64 `gorm:"column:temperature;type:double precision;not null" json:"temperature"`

	HasWaveform bool   `gorm:"column:has_waveform;not null;default:false" json:"has_waveform"`
	Notes       string `gorm:"column:notes;type:text;not null;default:''" json:"notes"`
}

func (MeasurementPoint) TableName() string { return "measurement_points" }
