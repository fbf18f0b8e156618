package measure

import (
	"time"

	"gorm.io/datatypes"
)

// Project is one lab project. Each project owns a dedicated physical
// database; this row lives inside that database and carries the project's
// metadata and global parameters.
type Project struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`

	Name        string `gorm:"column:name;type:varchar(255);not null;uniqueIndex:idx_projects_name" json:"name"`
	Description string `gorm:"column:description;type:text;not null;default:''" json:"description"`

	// Params holds free-form global parameters (converter topology, DUT
	// serial, rig identifiers).
	Params datatypes.JSON `gorm:"column:params;type:jsonb;not null;default:'{}'" json:"params"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (Project) TableName() string { return "projects" }
