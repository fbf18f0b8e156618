package testutil

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "github.com/voltlab/labstore/internal/domain/measure"
)

// SeedProject creates a uniquely named project and removes it (cascading to
// every descendant row) when the test ends.
func SeedProject(tb testing.TB, db *gorm.DB) *domain.Project {
	tb.Helper()
	p := &domain.Project{
		Name:        "test project " + uuid.NewString(),
		Description: "fixture",
		Params:      datatypes.JSON([]byte(`{"fixture":true}`)),
	}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	tb.Cleanup(func() {
		_ = db.Delete(&domain.Project{}, "id = ?", p.ID).Error
	})
	return p
}

func SeedSession(tb testing.TB, db *gorm.DB, projectID int64) *domain.SweepSession {
	tb.Helper()
	s := &domain.SweepSession{
		ProjectID: projectID,
		Name:      "sweep " + uuid.NewString(),
		VinAxis:   datatypes.NewJSONSlice([]float64{12, 15}),
		IoutAxis:  datatypes.NewJSONSlice([]float64{1, 2}),
		Status:    domain.SessionInProgress,
	}
	if err := db.Create(s).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return s
}

func SeedPoint(tb testing.TB, db *gorm.DB, sessionID int64, vin, iout float64) *domain.MeasurementPoint {
	tb.Helper()
	mv := domain.MeasuredValues{
		VinReal:     vin,
		IinReal:     iout * 0.95,
		VoutReal:    vin * 0.9,
		IoutReal:    iout,
		Temperature: 42.0,
	}
	d := mv.Derive()
	p := &domain.MeasurementPoint{
		SessionID:   sessionID,
		VinTarget:   vin,
		IoutTarget:  iout,
		VinReal:     mv.VinReal,
		VoutReal:    mv.VoutReal,
		IoutReal:    mv.IoutReal,
		IinReal:     mv.IinReal,
		PowerIn:     d.PowerIn,
		PowerOut:    d.PowerOut,
		Efficiency:  d.Efficiency,
		Temperature: mv.Temperature,
	}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed point: %v", err)
	}
	return p
}
