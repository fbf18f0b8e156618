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

func TestWaveformFlagLifecycle(t *testing.T) {
	env := testutil.DB(t)
	db := env.Handle(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	waves := NewWaveformRepo(env.Mgr, env.DBName, testutil.Logger(t))
	points := NewPointRepo(env.Mgr, env.DBName, testutil.Logger(t))

	p := testutil.SeedProject(t, db)
	s := testutil.SeedSession(t, db, p.ID)
	pt := testutil.SeedPoint(t, db, s.ID, 12, 1)

	if pt.HasWaveform {
		t.Fatal("flag true on creation")
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	ts := []time.Time{base, base.Add(time.Microsecond), base.Add(2 * time.Microsecond)}
	vals := []float64{1.0, 2.0, 3.0}
	meta := &SamplingMeta{FreqHz: 1e6, VerticalRes: 0.001}

	if err := waves.SaveBulk(dbc, pt.ID, 1, domain.WaveformVoltage, ts, vals, meta); err != nil {
		t.Fatalf("SaveBulk: %v", err)
	}
	after, err := points.GetByID(dbc, pt.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !after.HasWaveform {
		t.Fatal("flag not set after SaveBulk")
	}

	if err := waves.Delete(dbc, pt.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	cleared, err := points.GetByID(dbc, pt.ID)
	if err != nil {
		t.Fatalf("GetByID after Delete: %v", err)
	}
	if cleared.HasWaveform {
		t.Fatal("flag still set after Delete")
	}
	samples, err := waves.Range(dbc, pt.ID, 1, base.Add(-time.Second), base.Add(time.Second))
	if err != nil || len(samples) != 0 {
		t.Fatalf("samples remain after Delete: err=%v len=%d", err, len(samples))
	}
}

func TestWaveformRejectsMismatchedLengths(t *testing.T) {
	env := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	waves := NewWaveformRepo(env.Mgr, env.DBName, testutil.Logger(t))

	err := waves.SaveBulk(dbc, 1, 1, domain.WaveformVoltage,
		[]time.Time{time.Now()}, []float64{1.0, 2.0}, nil)
	if !storeerr.IsIntegrity(err) {
		t.Fatalf("mismatched lengths: want integrity error, got %v", err)
	}

	if err := waves.SaveBulk(dbc, 1, 1, "", []time.Time{time.Now()}, []float64{1}, nil); !storeerr.IsIntegrity(err) {
		t.Fatalf("empty kind: want integrity error, got %v", err)
	}
}

func TestWaveformOrderingSurvivesTimestampCollisions(t *testing.T) {
	env := testutil.DB(t)
	db := env.Handle(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	waves := NewWaveformRepo(env.Mgr, env.DBName, testutil.Logger(t))

	p := testutil.SeedProject(t, db)
	s := testutil.SeedSession(t, db, p.ID)
	pt := testutil.SeedPoint(t, db, s.ID, 12, 1)

	// Identical and out-of-order timestamps; acquisition order must win.
	base := time.Now().UTC().Truncate(time.Millisecond)
	ts := []time.Time{base.Add(time.Microsecond), base, base, base.Add(time.Microsecond)}
	vals := []float64{10, 20, 30, 40}

	if err := waves.SaveBulk(dbc, pt.ID, 2, domain.WaveformCurrent, ts, vals, nil); err != nil {
		t.Fatalf("SaveBulk: %v", err)
	}

	got, err := waves.Range(dbc, pt.ID, 2, base.Add(-time.Second), base.Add(time.Second))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	for i, sample := range got {
		if sample.Value != vals[i] {
			t.Fatalf("sample %d value = %v, want %v (input order lost)", i, sample.Value, vals[i])
		}
		if sample.SampleIndex != int64(i) {
			t.Fatalf("sample %d index = %d", i, sample.SampleIndex)
		}
	}

	// A second bulk write on the same channel continues the index sequence.
	if err := waves.SaveBulk(dbc, pt.ID, 2, domain.WaveformCurrent,
		[]time.Time{base.Add(2 * time.Microsecond)}, []float64{50}, nil); err != nil {
		t.Fatalf("second SaveBulk: %v", err)
	}
	got, err = waves.Range(dbc, pt.ID, 2, base.Add(-time.Second), base.Add(time.Second))
	if err != nil || len(got) != 5 {
		t.Fatalf("after second SaveBulk: err=%v len=%d", err, len(got))
	}
	if got[4].SampleIndex != 4 {
		t.Fatalf("continued index = %d, want 4", got[4].SampleIndex)
	}
}

func TestWaveformDownsampled(t *testing.T) {
	env := testutil.DB(t)
	db := env.Handle(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	waves := NewWaveformRepo(env.Mgr, env.DBName, testutil.Logger(t))

	p := testutil.SeedProject(t, db)
	s := testutil.SeedSession(t, db, p.ID)
	pt := testutil.SeedPoint(t, db, s.ID, 12, 1)

	// Two samples 1µs apart inside one 1ms bucket.
	base := time.Now().UTC().Truncate(time.Millisecond)
	ts := []time.Time{base, base.Add(time.Microsecond)}
	vals := []float64{1.0, 3.0}
	if err := waves.SaveBulk(dbc, pt.ID, 1, domain.WaveformPower, ts, vals, nil); err != nil {
		t.Fatalf("SaveBulk: %v", err)
	}

	buckets, err := waves.Downsampled(dbc, pt.ID, 1, domain.WaveformPower, time.Millisecond)
	if err != nil {
		t.Fatalf("Downsampled: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("len = %d, want 1", len(buckets))
	}
	b := buckets[0]
	if math.Abs(b.Avg-2.0) > 1e-9 || b.Min != 1.0 || b.Max != 3.0 || b.SampleCount != 2 {
		t.Fatalf("bucket = %+v", b)
	}
	if !b.BucketStart.Equal(base) {
		t.Fatalf("bucket start = %v, want %v (epoch alignment)", b.BucketStart, base)
	}

	if _, err := waves.Downsampled(dbc, pt.ID, 1, domain.WaveformPower, 0); !storeerr.IsIntegrity(err) {
		t.Fatalf("zero bucket width: want integrity error, got %v", err)
	}
}

func TestWaveformMissingPoint(t *testing.T) {
	env := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	waves := NewWaveformRepo(env.Mgr, env.DBName, testutil.Logger(t))

	err := waves.SaveBulk(dbc, -1, 1, domain.WaveformVoltage,
		[]time.Time{time.Now()}, []float64{1}, nil)
	if !storeerr.IsNotFound(err) {
		t.Fatalf("SaveBulk missing point: want not_found, got %v", err)
	}
	if err := waves.Delete(dbc, -1); !storeerr.IsNotFound(err) {
		t.Fatalf("Delete missing point: want not_found, got %v", err)
	}
}

func TestWorstEfficiencyPointWithWaveform(t *testing.T) {
	env := testutil.DB(t)
	db := env.Handle(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	waves := NewWaveformRepo(env.Mgr, env.DBName, testutil.Logger(t))
	points := NewPointRepo(env.Mgr, env.DBName, testutil.Logger(t))

	p := testutil.SeedProject(t, db)
	s := testutil.SeedSession(t, db, p.ID)

	// Low efficiency but no waveform: must not be selected.
	low := &domain.MeasurementPoint{
		SessionID: s.ID, VinTarget: 12, IoutTarget: 1,
		VinReal: 12, IinReal: 1, VoutReal: 6, IoutReal: 1,
		PowerIn: 12, PowerOut: 6, Efficiency: 50, Temperature: 70,
	}
	if err := db.Create(low).Error; err != nil {
		t.Fatalf("seed low point: %v", err)
	}

	mid := testutil.SeedPoint(t, db, s.ID, 12, 2)   // ~94.7%
	worst := testutil.SeedPoint(t, db, s.ID, 15, 2) // same efficiency, flag decides

	if err := db.Model(&domain.MeasurementPoint{}).Where("id = ?", worst.ID).
		Update("efficiency", 80.0).Error; err != nil {
		t.Fatalf("adjust efficiency: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	for _, id := range []int64{mid.ID, worst.ID} {
		if err := waves.SaveBulk(dbc, id, 1, domain.WaveformVoltage,
			[]time.Time{base, base.Add(time.Microsecond)}, []float64{1, 2}, nil); err != nil {
			t.Fatalf("SaveBulk: %v", err)
		}
	}

	got, err := points.WorstEfficiencyPointWithWaveform(dbc, s.ID)
	if err != nil {
		t.Fatalf("WorstEfficiencyPointWithWaveform: %v", err)
	}
	if got.Point.ID != worst.ID {
		t.Fatalf("selected point %d, want %d", got.Point.ID, worst.ID)
	}
	if len(got.Samples) != 2 {
		t.Fatalf("samples len = %d, want 2", len(got.Samples))
	}

	empty := testutil.SeedSession(t, db, p.ID)
	if _, err := points.WorstEfficiencyPointWithWaveform(dbc, empty.ID); !storeerr.IsNotFound(err) {
		t.Fatalf("empty session: want not_found, got %v", err)
	}
}
