package measure

import (
	"context"
	"testing"

	"github.com/voltlab/labstore/internal/data/repos/testutil"
	domain "github.com/voltlab/labstore/internal/domain/measure"
	"github.com/voltlab/labstore/internal/pkg/dbctx"
	"github.com/voltlab/labstore/internal/pkg/storeerr"
)

func TestSessionRepo(t *testing.T) {
	env := testutil.DB(t)
	db := env.Handle(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewSessionRepo(env.Mgr, env.DBName, testutil.Logger(t))

	p := testutil.SeedProject(t, db)

	s, err := repo.Create(dbc, p.ID, "thermal sweep", []float64{12, 15, 24}, []float64{0.5, 1, 2}, "first pass")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Status != domain.SessionInProgress {
		t.Fatalf("new session status = %q", s.Status)
	}
	if s.EndedAt != nil {
		t.Fatal("new session already has an end time")
	}

	got, err := repo.GetByID(dbc, s.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.VinAxis) != 3 || got.VinAxis[2] != 24 {
		t.Fatalf("vin axis roundtrip: %v", got.VinAxis)
	}
	if len(got.IoutAxis) != 3 || got.IoutAxis[0] != 0.5 {
		t.Fatalf("iout axis roundtrip: %v", got.IoutAxis)
	}

	list, err := repo.ListByProject(dbc, p.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListByProject: err=%v len=%d", err, len(list))
	}

	if err := repo.Complete(dbc, s.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	done, err := repo.GetByID(dbc, s.ID)
	if err != nil {
		t.Fatalf("GetByID after Complete: %v", err)
	}
	if done.Status != domain.SessionCompleted {
		t.Fatalf("status after Complete = %q", done.Status)
	}
	if done.EndedAt == nil {
		t.Fatal("Complete did not set end time")
	}

	// One-way: a second Complete is a no-op and keeps the first end time.
	if err := repo.Complete(dbc, s.ID); err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	again, err := repo.GetByID(dbc, s.ID)
	if err != nil {
		t.Fatalf("GetByID after second Complete: %v", err)
	}
	if !again.EndedAt.Equal(*done.EndedAt) {
		t.Fatalf("second Complete moved end time: %v -> %v", done.EndedAt, again.EndedAt)
	}
}

func TestSessionRepoRejectsEmptyAxes(t *testing.T) {
	env := testutil.DB(t)
	db := env.Handle(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewSessionRepo(env.Mgr, env.DBName, testutil.Logger(t))

	p := testutil.SeedProject(t, db)

	if _, err := repo.Create(dbc, p.ID, "bad", nil, []float64{1}, ""); !storeerr.IsIntegrity(err) {
		t.Fatalf("empty vin axis: want integrity error, got %v", err)
	}
	if _, err := repo.Create(dbc, p.ID, "bad", []float64{12}, []float64{}, ""); !storeerr.IsIntegrity(err) {
		t.Fatalf("empty iout axis: want integrity error, got %v", err)
	}
}

func TestSessionRepoMissingProject(t *testing.T) {
	env := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewSessionRepo(env.Mgr, env.DBName, testutil.Logger(t))

	if _, err := repo.Create(dbc, -1, "orphan", []float64{1}, []float64{1}, ""); !storeerr.IsNotFound(err) {
		t.Fatalf("missing project: want not_found, got %v", err)
	}
	if err := repo.Complete(dbc, -1); !storeerr.IsNotFound(err) {
		t.Fatalf("Complete on missing session: want not_found, got %v", err)
	}
}
