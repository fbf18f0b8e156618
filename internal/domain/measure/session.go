package measure

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SessionInProgress = "in_progress"
	SessionCompleted  = "completed"
)

// SweepSession is one measurement campaign over an input-voltage /
// output-current grid. The axis arrays are fixed at creation and must be
// non-empty; status moves one-way from in_progress to completed.
type SweepSession struct {
	ID        int64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ProjectID int64 `gorm:"column:project_id;not null;index" json:"project_id"`

	Name      string     `gorm:"column:name;type:varchar(255);not null" json:"name"`
	StartedAt time.Time  `gorm:"column:started_at;not null;default:now();index" json:"started_at"`
	EndedAt   *time.Time `gorm:"column:ended_at" json:"ended_at,omitempty"`

	VinAxis  datatypes.JSONSlice[float64] `gorm:"column:vin_axis;type:jsonb;not null" json:"vin_axis"`
	IoutAxis datatypes.JSONSlice[float64] `gorm:"column:iout_axis;type:jsonb;not null" json:"iout_axis"`

	Status string `gorm:"column:status;type:varchar(50);not null;default:'in_progress';index" json:"status"`
	Notes  string `gorm:"column:notes;type:text;not null;default:''" json:"notes"`
}

func (SweepSession) TableName() string { return "sweep_sessions" }
