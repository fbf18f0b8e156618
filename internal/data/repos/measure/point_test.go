package measure

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/voltlab/labstore/internal/data/repos/testutil"
	domain "github.com/voltlab/labstore/internal/domain/measure"
	"github.com/voltlab/labstore/internal/pkg/dbctx"
	"github.com/voltlab/labstore/internal/pkg/storeerr"
)

func TestPointRepoDerivedValues(t *testing.T) {
	env := testutil.DB(t)
	db := env.Handle(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewPointRepo(env.Mgr, env.DBName, testutil.Logger(t))

	p := testutil.SeedProject(t, db)
	s := testutil.SeedSession(t, db, p.ID)

	mv := domain.MeasuredValues{VinReal: 12.0, IinReal: 1.0, VoutReal: 11.0, IoutReal: 1.05, Temperature: 55.5}
	pt, err := repo.Create(dbc, s.ID, 12.0, 1.0, mv, "nominal cell")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.GetByID(dbc, pt.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.PowerIn != 12.0 || math.Abs(got.PowerOut-11.55) > 1e-9 {
		t.Fatalf("derived powers: pin=%v pout=%v", got.PowerIn, got.PowerOut)
	}
	if math.Abs(got.Efficiency-96.25) > 1e-9 {
		t.Fatalf("derived efficiency = %v, want 96.25", got.Efficiency)
	}
	if got.HasWaveform {
		t.Fatal("new point already flagged as having waveform")
	}

	// Pin == 0 stores efficiency 0 instead of failing.
	zero, err := repo.Create(dbc, s.ID, 15.0, 1.0,
		domain.MeasuredValues{VinReal: 15.0, IinReal: 0, VoutReal: 14.0, IoutReal: 1.0}, "")
	if err != nil {
		t.Fatalf("Create with zero input power: %v", err)
	}
	if zero.Efficiency != 0 || zero.PowerIn != 0 {
		t.Fatalf("zero input power: eff=%v pin=%v", zero.Efficiency, zero.PowerIn)
	}
}

func TestPointRepoRejectsInvalidDerived(t *testing.T) {
	env := testutil.DB(t)
	db := env.Handle(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewPointRepo(env.Mgr, env.DBName, testutil.Logger(t))

	p := testutil.SeedProject(t, db)
	s := testutil.SeedSession(t, db, p.ID)

	// Pout > Pin pushes efficiency over 100.
	over := domain.MeasuredValues{VinReal: 10, IinReal: 1, VoutReal: 12, IoutReal: 1}
	if _, err := repo.Create(dbc, s.ID, 12, 1, over, ""); !storeerr.IsIntegrity(err) {
		t.Fatalf("efficiency > 100: want integrity error, got %v", err)
	}

	// Negative Pout.
	neg := domain.MeasuredValues{VinReal: 12, IinReal: 1, VoutReal: 11, IoutReal: -1}
	if _, err := repo.Create(dbc, s.ID, 12, 1, neg, ""); !storeerr.IsIntegrity(err) {
		t.Fatalf("negative output power: want integrity error, got %v", err)
	}

	if _, err := repo.Create(dbc, -1, 12, 1,
		domain.MeasuredValues{VinReal: 12, IinReal: 1, VoutReal: 11, IoutReal: 1}, ""); !storeerr.IsNotFound(err) {
		t.Fatalf("missing session: want not_found, got %v", err)
	}
}

func TestPointRepoListOrder(t *testing.T) {
	env := testutil.DB(t)
	db := env.Handle(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewPointRepo(env.Mgr, env.DBName, testutil.Logger(t))

	p := testutil.SeedProject(t, db)
	s := testutil.SeedSession(t, db, p.ID)

	for _, cell := range [][2]float64{{15, 2}, {12, 1}, {15, 1}, {12, 2}} {
		testutil.SeedPoint(t, db, s.ID, cell[0], cell[1])
		time.Sleep(2 * time.Millisecond)
	}

	pts, err := repo.ListBySession(dbc, s.ID)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(pts) != 4 {
		t.Fatalf("len = %d, want 4", len(pts))
	}
	for i := 1; i < len(pts); i++ {
		if pts[i].CapturedAt.Before(pts[i-1].CapturedAt) {
			t.Fatalf("points not ordered by capture time at %d", i)
		}
	}
}

func TestEfficiencyMapEndToEnd(t *testing.T) {
	env := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	projects := NewProjectRepo(env.Mgr, env.DBName, testutil.Logger(t))
	sessions := NewSessionRepo(env.Mgr, env.DBName, testutil.Logger(t))
	points := NewPointRepo(env.Mgr, env.DBName, testutil.Logger(t))

	proj := testutil.SeedProject(t, env.Handle(t))
	if _, err := projects.GetByID(dbc, proj.ID); err != nil {
		t.Fatalf("project lookup: %v", err)
	}
	sess, err := sessions.Create(dbc, proj.ID, "grid", []float64{12, 15}, []float64{1, 2}, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Insert out of grid order to prove the query sorts.
	for _, cell := range [][2]float64{{15, 2}, {12, 2}, {15, 1}, {12, 1}} {
		mv := domain.MeasuredValues{
			VinReal: cell[0], IinReal: cell[1], VoutReal: cell[0] * 0.95, IoutReal: cell[1],
			Temperature: 40,
		}
		if _, err := points.Create(dbc, sess.ID, cell[0], cell[1], mv, ""); err != nil {
			t.Fatalf("create point %v: %v", cell, err)
		}
	}

	cells, err := points.EfficiencyMap(dbc, sess.ID)
	if err != nil {
		t.Fatalf("EfficiencyMap: %v", err)
	}
	if len(cells) != 4 {
		t.Fatalf("len = %d, want 4", len(cells))
	}
	want := [][2]float64{{12, 1}, {12, 2}, {15, 1}, {15, 2}}
	for i, cell := range cells {
		if cell.VinTarget != want[i][0] || cell.IoutTarget != want[i][1] {
			t.Fatalf("cell %d = (%v, %v), want (%v, %v)",
				i, cell.VinTarget, cell.IoutTarget, want[i][0], want[i][1])
		}
		if math.Abs(cell.Efficiency-95.0) > 1e-9 {
			t.Fatalf("cell %d efficiency = %v, want 95", i, cell.Efficiency)
		}
	}
}

func TestSessionSummary(t *testing.T) {
	env := testutil.DB(t)
	db := env.Handle(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewPointRepo(env.Mgr, env.DBName, testutil.Logger(t))

	p := testutil.SeedProject(t, db)
	s := testutil.SeedSession(t, db, p.ID)
	a := testutil.SeedPoint(t, db, s.ID, 12, 1)
	testutil.SeedPoint(t, db, s.ID, 15, 2)

	if err := db.Model(&domain.MeasurementPoint{}).Where("id = ?", a.ID).
		Update("has_waveform", true).Error; err != nil {
		t.Fatalf("flag point: %v", err)
	}

	sum, err := repo.SessionSummary(dbc, s.ID)
	if err != nil {
		t.Fatalf("SessionSummary: %v", err)
	}
	if sum.PointCount != 2 || sum.PointsWithWaveform != 1 {
		t.Fatalf("counts: %+v", sum)
	}
	if sum.AvgEfficiency == nil || sum.MinEfficiency == nil || sum.MaxEfficiency == nil {
		t.Fatalf("missing aggregates: %+v", sum)
	}
	if *sum.MinEfficiency > *sum.MaxEfficiency {
		t.Fatalf("min > max: %+v", sum)
	}

	if _, err := repo.SessionSummary(dbc, -1); !storeerr.IsNotFound(err) {
		t.Fatalf("missing session: want not_found, got %v", err)
	}
}
