package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
)

var monday = time.Date(2025, 11, 17, 0, 0, 0, 0, time.UTC)

func seeded() *Memory {
	m := NewMemory()
	m.PutTechnician(model.Technician{ID: 1, Active: true, MaxDailyHours: 10, MaxWeeklyHours: 50})
	m.PutJobs(
		model.Job{WorkOrder: 10, Region: "Metro", Duration: 1, DueDate: monday.AddDate(0, 0, 3)},
		model.Job{WorkOrder: 11, Region: "North", Duration: 1, DueDate: monday.AddDate(0, 0, 40)},
		model.Job{WorkOrder: 12, Region: "Metro", Duration: 1, IsRecurringSite: true, DueDate: monday.AddDate(0, 0, -2)},
		model.Job{WorkOrder: 13, Region: "Metro", Duration: 1, SOW: "NT"},
	)
	return m
}

func workOrders(jobs []model.Job) []int64 {
	out := make([]int64, len(jobs))
	for i, j := range jobs {
		out[i] = j.WorkOrder
	}
	return out
}

func TestMemoryJobsFilters(t *testing.T) {
	m := seeded()
	ctx := context.Background()
	got, _ := m.Jobs(ctx, JobQuery{TechnicianID: 1, From: monday, To: monday.AddDate(0, 0, 21)})
	if ids := workOrders(got); len(ids) != 2 || ids[0] != 10 || ids[1] != 13 {
		t.Fatalf("window filter: %v", ids)
	}
	got, _ = m.Jobs(ctx, JobQuery{TechnicianID: 1, Regions: []string{"North"}})
	if ids := workOrders(got); len(ids) != 1 || ids[0] != 11 {
		t.Fatalf("region filter: %v", ids)
	}
	got, _ = m.Jobs(ctx, JobQuery{TechnicianID: 1, SOW: "nt"})
	if ids := workOrders(got); len(ids) != 1 || ids[0] != 13 {
		t.Fatalf("sow filter: %v", ids)
	}
	m.Allow(1, 11)
	got, _ = m.Jobs(ctx, JobQuery{TechnicianID: 1})
	if ids := workOrders(got); len(ids) != 1 || ids[0] != 11 {
		t.Fatalf("eligibility filter: %v", ids)
	}
}

func weekWith(tech int64, wos ...int64) model.WeekSchedule {
	var jobs []model.ScheduledJob
	for i, wo := range wos {
		jobs = append(jobs, model.ScheduledJob{Job: model.Job{WorkOrder: wo, Duration: 1}, TechnicianID: tech, Date: monday, Seq: i + 1})
	}
	return model.WeekSchedule{TechnicianID: tech, WeekStart: monday, Days: []model.DaySchedule{{Date: monday, Jobs: jobs}}}
}

func TestMemoryCommitConflictWritesNothing(t *testing.T) {
	m := seeded()
	ctx := context.Background()
	if _, err := m.CommitWeek(ctx, weekWith(1, 10)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	_, err := m.CommitWeek(ctx, weekWith(2, 11, 10))
	if !errors.Is(err, ErrAlreadyScheduled) {
		t.Fatalf("want ErrAlreadyScheduled, got %v", err)
	}
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.WorkOrder != 10 {
		t.Fatalf("conflict should name work order 10: %v", err)
	}
	rows, _ := m.ExistingSchedule(ctx, 2, monday, monday)
	if len(rows) != 0 {
		t.Fatalf("partial commit written: %+v", rows)
	}
	got, _ := m.Jobs(ctx, JobQuery{TechnicianID: 1})
	for _, j := range got {
		if j.WorkOrder == 10 {
			t.Fatalf("committed job still offered in the pool")
		}
	}
}

func TestMemoryCommitRejectsDuplicateInWeek(t *testing.T) {
	if _, err := NewMemory().CommitWeek(context.Background(), weekWith(1, 5, 5)); !errors.Is(err, ErrAlreadyScheduled) {
		t.Fatalf("duplicate work order within a week: %v", err)
	}
}

func TestMemoryCommitReplacesBumpedRows(t *testing.T) {
	m := seeded()
	ctx := context.Background()
	m.PutScheduled(model.ScheduledJob{Job: model.Job{WorkOrder: 11}, TechnicianID: 1, Date: monday.AddDate(0, 0, 2), Seq: 1})
	week := weekWith(1, 11)
	week.Bumped = []int64{11}
	if _, err := m.CommitWeek(ctx, week); err != nil {
		t.Fatalf("bumped row should be replaced: %v", err)
	}
	rows, _ := m.ExistingSchedule(ctx, 1, monday, monday.AddDate(0, 0, 4))
	if len(rows) != 1 || !rows[0].Date.Equal(monday) {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestMemorySiteFreshnessAndTravel(t *testing.T) {
	m := NewMemory()
	m.RecordVisit(7, monday.AddDate(0, 0, -5))
	m.RecordVisit(8, monday.AddDate(0, 0, 3))
	got, _ := m.SiteFreshness(context.Background(), []int64{7, 8, 9}, monday)
	if len(got) != 1 || got[7] != 5 {
		t.Fatalf("freshness = %v", got)
	}
	m.PutTravel("A", "B", 0.75)
	m.PutTravel("A", "C", 2)
	mx, _ := m.TravelMatrix(context.Background(), []string{"A", "B"})
	if len(mx) != 1 || mx[geo.SitePair{From: "A", To: "B"}] != 0.75 {
		t.Fatalf("matrix = %v", mx)
	}
}

func TestMemoryTimeOffAndNotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.PutTimeOff(1, monday, model.TimeOff{Hours: 4, Reason: "dentist"})
	off, _ := m.TimeOff(ctx, 1, monday)
	if !off.Off || off.Hours != 4 {
		t.Fatalf("time off = %+v", off)
	}
	if off, _ := m.TimeOff(ctx, 1, monday.AddDate(0, 0, 1)); off.Off {
		t.Fatalf("unexpected absence")
	}
	if _, err := m.Technician(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := m.Region(ctx, "nowhere"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestLoadFixture(t *testing.T) {
	src := `
technicians:
  - id: 1
    name: Dana
    home: {lat: 39.74, lng: -104.99}
    maxDailyHours: 10
    maxWeeklyHours: 45
    nightEligible: true
    jobs: [100]
jobs:
  - workOrder: 100
    siteId: 5
    siteName: Safeway 12
    location: {lat: 39.9, lng: -105.1}
    due: "2025-11-20"
    duration: 1.5
    region: Metro
  - workOrder: 101
    siteId: 6
    location: {lat: 39.9, lng: -105.1}
    duration: 2
regions:
  - name: Metro
    center: {lat: 39.74, lng: -104.99}
    adjacent: [North]
timeOff:
  - technicianId: 1
    date: "2025-11-21"
scheduled:
  - technicianId: 1
    workOrder: 101
    date: "2025-11-19"
    seq: 1
`
	m := NewMemory()
	if err := m.LoadFixture(strings.NewReader(src)); err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	ctx := context.Background()
	tech, err := m.Technician(ctx, 1)
	if err != nil || !tech.Active || tech.MaxWeeklyHours != 45 || tech.Home.Lat != 39.74 {
		t.Fatalf("technician = %+v, %v", tech, err)
	}
	jobs, _ := m.Jobs(ctx, JobQuery{TechnicianID: 1})
	if len(jobs) != 1 || jobs[0].WorkOrder != 100 || jobs[0].DueDate.Day() != 20 {
		t.Fatalf("jobs = %+v", jobs)
	}
	if off, _ := m.TimeOff(ctx, 1, time.Date(2025, 11, 21, 0, 0, 0, 0, time.UTC)); !off.FullDay() {
		t.Fatalf("full day off not loaded")
	}
	rows, _ := m.ExistingSchedule(ctx, 1, monday, monday.AddDate(0, 0, 4))
	if len(rows) != 1 || rows[0].WorkOrder != 101 {
		t.Fatalf("scheduled rows = %+v", rows)
	}
	if r, err := m.Region(ctx, "Metro"); err != nil || len(r.Adjacent) != 1 {
		t.Fatalf("region = %+v, %v", r, err)
	}
}

func TestLoadFixtureRejectsBadDuration(t *testing.T) {
	err := NewMemory().LoadFixture(strings.NewReader("jobs:\n  - workOrder: 1\n    duration: 0\n"))
	if err == nil {
		t.Fatalf("expected duration error")
	}
}
