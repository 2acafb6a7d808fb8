package route

import (
	"math/rand"
	"testing"
	"time"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
	"fieldsched/internal/opt"
)

var (
	home   = geo.Point{Lat: 39.74, Lng: -104.99}
	monday = time.Date(2025, 11, 17, 0, 0, 0, 0, time.UTC)
)

func newBuilder(s opt.Strategy, seed int64) *Builder {
	return &Builder{Strategy: s, Travel: geo.NewTravelModel(55), Rand: rand.New(rand.NewSource(seed)), Anneal: opt.DefaultSchedule}
}

func dayAt(day time.Time) DayInput {
	return DayInput{TechnicianID: 7, Date: day, Home: home, Start: home}
}

func TestAdmissible(t *testing.T) {
	if Admissible(8, 1.5, 1, 10) {
		t.Fatalf("8 + 1.5 + 1 = 10.5 must not fit a 10h day")
	}
	if !Admissible(8, 1, 1, 10) {
		t.Fatalf("exact fit should be admitted")
	}
}

func TestNightJobLastWithPreNightCap(t *testing.T) {
	var jobs []model.Job
	for i := 1; i <= 6; i++ {
		jobs = append(jobs, model.Job{WorkOrder: int64(i), Location: home, Duration: 1, PriorityRank: 1})
	}
	jobs = append(jobs, model.Job{WorkOrder: 99, Location: home, Duration: 1, SOW: "NT"})
	pool := NewPool(jobs)
	res := newBuilder(opt.Greedy, 1).Build(dayAt(monday), pool, Constraints{MaxHours: 12, PreNightCap: 4, NightEligible: true})
	got := res.Day.Jobs
	if len(got) != 5 {
		t.Fatalf("expected 4 day jobs plus the night job, got %d", len(got))
	}
	last := got[len(got)-1]
	if last.WorkOrder != 99 || last.Source != model.SourceNight || !res.Day.NightJob {
		t.Fatalf("night job must be last: %+v", last)
	}
	if last.StartTime.Hour() != 21 || last.StartTime.Minute() != 0 {
		t.Fatalf("night arrival = %v", last.StartTime)
	}
	if got[0].StartTime.Hour() != 7 {
		t.Fatalf("day should start at 07:00, got %v", got[0].StartTime)
	}
	if pool.Len() != 2 {
		t.Fatalf("two anchors should stay in the pool, got %d", pool.Len())
	}
}

func TestNightJobRequiresEligibility(t *testing.T) {
	pool := NewPool([]model.Job{{WorkOrder: 1, Location: home, Duration: 1, SOW: "nt"}})
	res := newBuilder(opt.Greedy, 1).Build(dayAt(monday), pool, Constraints{MaxHours: 10})
	if len(res.Day.Jobs) != 0 || pool.Len() != 1 {
		t.Fatalf("night job placed for an ineligible technician")
	}
}

func TestCapacityInvariantAcrossStrategies(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var jobs []model.Job
	for i := 1; i <= 30; i++ {
		jobs = append(jobs, model.Job{
			WorkOrder:    int64(i),
			Location:     geo.OffsetMiles(home, rng.Float64()*80-40, rng.Float64()*80-40),
			Duration:     0.5 + rng.Float64()*2.5,
			PriorityRank: 1 + rng.Intn(5),
			DueDate:      monday.AddDate(0, 0, rng.Intn(20)),
		})
	}
	for _, s := range []opt.Strategy{opt.Greedy, opt.Annealing, opt.TwoOpt} {
		pool := NewPool(jobs)
		res := newBuilder(s, 11).Build(dayAt(monday), pool, Constraints{MaxHours: 10, AllowFiller: true, MaxDriveHours: 1})
		d := res.Day
		if d.WorkHours+d.DriveHours > d.EffectiveMaxHours+1e-9 {
			t.Fatalf("%s: %.3f work + %.3f drive exceeds %.1f", s, d.WorkHours, d.DriveHours, d.EffectiveMaxHours)
		}
		seen := map[int64]bool{}
		for _, sj := range d.Jobs {
			if seen[sj.WorkOrder] || pool.Has(sj.WorkOrder) {
				t.Fatalf("%s: work order %d placed twice or still pooled", s, sj.WorkOrder)
			}
			seen[sj.WorkOrder] = true
		}
		if len(d.Jobs)+pool.Len() != len(jobs) {
			t.Fatalf("%s: jobs lost: %d placed + %d pooled", s, len(d.Jobs), pool.Len())
		}
		if s == opt.Annealing && len(d.Jobs) > 1 && res.Anneal == nil {
			t.Fatalf("annealing metrics missing")
		}
	}
}

func TestHotelDecision(t *testing.T) {
	far := model.Job{WorkOrder: 5, Location: geo.OffsetMiles(home, 120, 0), Duration: 1, SiteCity: "Cheyenne"}

	in := dayAt(monday)
	in.Fixed = []model.Job{far}
	res := newBuilder(opt.Greedy, 1).Build(in, NewPool(nil), Constraints{MaxHours: 12})
	d := res.Day
	if !d.HotelStay || d.DriveHomeHours != 0 || d.HotelCity != "Cheyenne" || d.HotelLocation == nil {
		t.Fatalf("expected hotel stay midweek: %+v", d)
	}
	if d.EndLocation != far.Location {
		t.Fatalf("next day should start at the hotel")
	}

	in.Date = monday.AddDate(0, 0, 4)
	res = newBuilder(opt.Greedy, 1).Build(in, NewPool(nil), Constraints{MaxHours: 12, LastWeekday: true})
	d = res.Day
	if d.HotelStay || d.DriveHomeHours <= 2 || d.EndLocation != home {
		t.Fatalf("last weekday must drive home: %+v", d)
	}
	if d.TotalHours != d.WorkHours+d.DriveHours+d.DriveHomeHours {
		t.Fatalf("total hours must include drive home")
	}
}

func TestNearbyLastJobDrivesHome(t *testing.T) {
	in := dayAt(monday)
	in.Fixed = []model.Job{{WorkOrder: 1, Location: geo.OffsetMiles(home, 40, 0), Duration: 2}}
	d := newBuilder(opt.Greedy, 1).Build(in, NewPool(nil), Constraints{MaxHours: 10}).Day
	if d.HotelStay || d.DriveHomeHours == 0 {
		t.Fatalf("40 miles out should drive home: %+v", d)
	}
}

func TestAnchorPickOrderPrefersPriority(t *testing.T) {
	p := model.Job{WorkOrder: 1, Location: geo.OffsetMiles(home, 30, 0), Duration: 1, PriorityRank: 1, DueDate: monday.AddDate(0, 0, 10)}
	q := model.Job{WorkOrder: 2, Location: geo.OffsetMiles(home, 0, 5), Duration: 1, Priority: "Urgent", PriorityRank: 3, DueDate: monday.AddDate(0, 0, 1)}
	r := model.Job{WorkOrder: 3, Location: geo.OffsetMiles(home, 0, -5), Duration: 1, PriorityRank: 2, DueDate: monday.AddDate(0, 0, 1)}
	pool := NewPool([]model.Job{p, q, r})
	d := newBuilder(opt.Greedy, 1).Build(dayAt(monday), pool, Constraints{MaxHours: 1.6}).Day
	if len(d.Jobs) != 1 || d.Jobs[0].WorkOrder != 2 {
		t.Fatalf("urgent job should win, got %+v", d.Jobs)
	}
}

func TestFillerPrefersAssignedCluster(t *testing.T) {
	inCluster := model.Job{WorkOrder: 1, Location: geo.OffsetMiles(home, 20, 0), Duration: 1, Cluster: "C1"}
	closer := model.Job{WorkOrder: 2, Location: geo.OffsetMiles(home, 0, 5), Duration: 1}
	pool := NewPool([]model.Job{closer, inCluster})
	c := Constraints{MaxHours: 1.6, AllowFiller: true, MaxDriveHours: 1, AssignedClusters: []string{"C1"}, TargetSOW: "PM"}
	d := newBuilder(opt.Greedy, 1).Build(dayAt(monday), pool, c).Day
	if len(d.Jobs) != 1 || d.Jobs[0].WorkOrder != 1 || d.Jobs[0].Source != model.SourceFiller {
		t.Fatalf("assigned cluster should be filled first, got %+v", d.Jobs)
	}
}

func TestFillerSameZoneBeforeAnything(t *testing.T) {
	in := dayAt(monday)
	in.Existing = []model.ScheduledJob{{Job: model.Job{WorkOrder: 50, Location: home, Duration: 1, Zone: "Z1"}, TotalHours: 1}}
	in.UsedHours = 1
	sameZone := model.Job{WorkOrder: 1, Location: geo.OffsetMiles(home, 80, 0), Duration: 1, Zone: "Z1", PriorityRank: 5}
	other := model.Job{WorkOrder: 2, Location: geo.OffsetMiles(home, -80, 0), Duration: 1, Zone: "Z2", PriorityRank: 3}
	pool := NewPool([]model.Job{other, sameZone})
	c := Constraints{MaxHours: 4, AllowFiller: true, MaxDriveHours: 1, TargetSOW: "PM", HotelMiles: 90}
	d := newBuilder(opt.Greedy, 1).Build(in, pool, c).Day
	if len(d.Jobs) != 1 || d.Jobs[0].WorkOrder != 1 {
		t.Fatalf("same-zone filler should win, got %+v", d.Jobs)
	}
	if d.Jobs[0].Seq != 2 {
		t.Fatalf("sequence should continue after existing work, got %d", d.Jobs[0].Seq)
	}
}

func TestFillerDisabled(t *testing.T) {
	pool := NewPool([]model.Job{{WorkOrder: 1, Location: home, Duration: 1}})
	d := newBuilder(opt.Greedy, 1).Build(dayAt(monday), pool, Constraints{MaxHours: 8}).Day
	if len(d.Jobs) != 0 {
		t.Fatalf("non-anchor job placed with fillers disabled")
	}
}

func TestLastWeekdayExcludedSites(t *testing.T) {
	pool := NewPool([]model.Job{
		{WorkOrder: 1, SiteName: "KING SOOPERS #12", Location: home, Duration: 1, PriorityRank: 1},
		{WorkOrder: 2, SiteName: "Safeway", Location: home, Duration: 1, PriorityRank: 1},
	})
	friday := monday.AddDate(0, 0, 4)
	c := Constraints{MaxHours: 8, LastWeekday: true, FridayExcluded: []string{"King Soopers"}}
	d := newBuilder(opt.Greedy, 1).Build(dayAt(friday), pool, c).Day
	if len(d.Jobs) != 1 || d.Jobs[0].WorkOrder != 2 {
		t.Fatalf("excluded site scheduled on Friday: %+v", d.Jobs)
	}
}

func TestRecurringOnlyOnDueDate(t *testing.T) {
	pool := NewPool([]model.Job{{WorkOrder: 1, Location: home, Duration: 1, IsRecurringSite: true, DueDate: monday.AddDate(0, 0, 1)}})
	b := newBuilder(opt.Greedy, 1)
	if d := b.Build(dayAt(monday), pool, Constraints{MaxHours: 8}).Day; len(d.Jobs) != 0 {
		t.Fatalf("recurring job placed before its due date")
	}
	if d := b.Build(dayAt(monday.AddDate(0, 0, 1)), pool, Constraints{MaxHours: 8}).Day; len(d.Jobs) != 1 {
		t.Fatalf("recurring job not placed on its due date")
	}
}

func TestFixedJobOverCapacityWarns(t *testing.T) {
	in := dayAt(monday)
	in.Fixed = []model.Job{
		{WorkOrder: 1, Location: home, Duration: 3},
		{WorkOrder: 2, Location: home, Duration: 3},
	}
	pool := NewPool(nil)
	res := newBuilder(opt.Greedy, 1).Build(in, pool, Constraints{MaxHours: 4})
	if len(res.Day.Jobs) != 1 || res.Day.Jobs[0].Source != model.SourceFixed {
		t.Fatalf("first fixed job should be placed: %+v", res.Day.Jobs)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Reason != "fixed_job_over_capacity" || res.Warnings[0].WorkOrder != 2 {
		t.Fatalf("warnings = %+v", res.Warnings)
	}
	if !pool.Has(2) {
		t.Fatalf("unplaced fixed job should return to the pool")
	}
}

func TestWeeklyBudgetIncludesDriveHome(t *testing.T) {
	job := model.Job{WorkOrder: 1, Location: geo.OffsetMiles(home, 55, 0), Duration: 1, PriorityRank: 1}
	// one hour out, one hour of work, one hour home
	pool := NewPool([]model.Job{job})
	d := newBuilder(opt.Greedy, 1).Build(dayAt(monday), pool, Constraints{MaxHours: 10, HoursBudget: 2.5}).Day
	if len(d.Jobs) != 0 {
		t.Fatalf("job admitted past the weekly budget")
	}
	d = newBuilder(opt.Greedy, 1).Build(dayAt(monday), pool, Constraints{MaxHours: 10, HoursBudget: 3.1}).Day
	if len(d.Jobs) != 1 || d.TotalHours > 3.1 {
		t.Fatalf("job within budget not admitted: %+v", d)
	}
}

func TestHotelNightReservesDriveHome(t *testing.T) {
	far := model.Job{WorkOrder: 1, Location: geo.OffsetMiles(home, 110, 0), Duration: 1, PriorityRank: 1}
	// two hours out, one hour of work, two hours owed home on a later day
	d := newBuilder(opt.Greedy, 1).Build(dayAt(monday), NewPool([]model.Job{far}), Constraints{MaxHours: 10, HoursBudget: 4}).Day
	if len(d.Jobs) != 0 {
		t.Fatalf("hotel-night job admitted without room for the drive home: %+v", d)
	}
	d = newBuilder(opt.Greedy, 1).Build(dayAt(monday), NewPool([]model.Job{far}), Constraints{MaxHours: 10, HoursBudget: 5.1}).Day
	if len(d.Jobs) != 1 || !d.HotelStay || d.DriveHomeHours != 0 {
		t.Fatalf("job with room for the drive home should end in a hotel: %+v", d)
	}
}

func TestEmptyDayAtHotelDrivesHome(t *testing.T) {
	in := dayAt(monday.AddDate(0, 0, 2))
	in.Start = geo.OffsetMiles(home, 150, 0)
	d := newBuilder(opt.Greedy, 1).Build(in, NewPool(nil), Constraints{MaxHours: 10}).Day
	if d.HotelStay || d.EndLocation != home || d.DriveHomeHours < 2.7 || d.TotalHours != d.DriveHomeHours {
		t.Fatalf("day without jobs should end at home: %+v", d)
	}
}

func TestFixedJobsPlacedBeforeCorridor(t *testing.T) {
	in := dayAt(monday)
	in.Fixed = []model.Job{{WorkOrder: 1, Location: geo.OffsetMiles(home, 2, 0), Duration: 3}}
	for i := 0; i < 3; i++ {
		in.Corridor = append(in.Corridor, model.Job{WorkOrder: int64(10 + i), Location: geo.OffsetMiles(home, 2, 0), Duration: 2})
	}
	pool := NewPool(nil)
	res := newBuilder(opt.Greedy, 1).Build(in, pool, Constraints{MaxHours: 8})
	got := res.Day.Jobs
	if len(got) != 3 || got[0].WorkOrder != 1 || got[0].Source != model.SourceFixed {
		t.Fatalf("jobs = %+v", got)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("pinned job displaced: %+v", res.Warnings)
	}
	if !pool.Has(12) {
		t.Fatalf("corridor job that no longer fits should return to the pool")
	}
}

func TestMajorityRegion(t *testing.T) {
	jobs := []model.ScheduledJob{
		{Job: model.Job{Region: "A"}}, {Job: model.Job{Region: "B"}},
		{Job: model.Job{Region: "B"}}, {Job: model.Job{Region: "A"}},
	}
	if got := MajorityRegion(jobs); got != "A" {
		t.Fatalf("tie should go to first seen, got %q", got)
	}
}

func TestPool(t *testing.T) {
	p := NewPool([]model.Job{{WorkOrder: 1}, {WorkOrder: 2}, {WorkOrder: 1}})
	if p.Len() != 2 {
		t.Fatalf("duplicates kept: %d", p.Len())
	}
	if _, ok := p.Take(1); !ok || p.Has(1) {
		t.Fatalf("take failed")
	}
	if _, ok := p.Take(1); ok {
		t.Fatalf("second take should fail")
	}
	p.Put(model.Job{WorkOrder: 1}, model.Job{WorkOrder: 2})
	if p.Len() != 2 {
		t.Fatalf("put should skip present work orders")
	}
}
