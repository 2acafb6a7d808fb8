//go:build postgres_integration

package store

import (
	"errors"
	"os"
	"testing"
	"time"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := p.Technician(t.Context(), -1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Technician(-1) = %v, want ErrNotFound", err)
	}
	if _, err := p.Jobs(t.Context(), JobQuery{TechnicianID: -1, To: time.Now()}); err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if _, err := p.TravelMatrix(t.Context(), []string{"a"}); err != nil {
		t.Fatalf("TravelMatrix: %v", err)
	}
}

func TestPostgresCommitConflict(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	ctx := t.Context()
	if err := p.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	const tech, site, wo = 990001, 990001, 990001
	mustExec := func(q string, args ...any) {
		if _, err := p.db.ExecContext(ctx, q, args...); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
	}
	mustExec(`DELETE FROM schedule WHERE work_order=$1`, wo)
	mustExec(`INSERT INTO technicians (id, home_lat, home_lng) VALUES ($1, 39.7, -105.0) ON CONFLICT DO NOTHING`, tech)
	mustExec(`INSERT INTO sites (id, lat, lng) VALUES ($1, 39.7, -105.0) ON CONFLICT DO NOTHING`, site)
	mustExec(`INSERT INTO jobs (work_order, site_id, duration_hours) VALUES ($1, $2, 1) ON CONFLICT DO NOTHING`, wo, site)

	day := time.Date(2025, 11, 17, 0, 0, 0, 0, time.UTC)
	week := model.WeekSchedule{TechnicianID: tech, Days: []model.DaySchedule{{Date: day, Jobs: []model.ScheduledJob{
		{Job: model.Job{WorkOrder: wo, Location: geo.Point{Lat: 39.7, Lng: -105}, Duration: 1}, Date: day, Seq: 1},
	}}}}
	if _, err := p.CommitWeek(ctx, week); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if _, err := p.CommitWeek(ctx, week); !errors.Is(err, ErrAlreadyScheduled) {
		t.Fatalf("second commit = %v, want ErrAlreadyScheduled", err)
	}
	rows, err := p.ExistingSchedule(ctx, tech, day, day)
	if err != nil || len(rows) != 1 {
		t.Fatalf("existing rows = %d, %v", len(rows), err)
	}
}
