// Package route builds a single technician day: fixed jobs, anchors, fillers,
// an optional night job and the drive-home or hotel decision.
package route

import (
	"math/rand"
	"time"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
	"fieldsched/internal/opt"
)

const eps = 1e-9

// Admissible is the capacity rule used for every placement: travel to the job
// plus its duration must fit in what is left of max.
func Admissible(used, travel, duration, max float64) bool {
	return used+travel+duration <= max+eps
}

// Constraints parametrize one day.
type Constraints struct {
	// MaxHours is the day's effective cap after time off and recovery.
	MaxHours float64
	// HoursBudget is what remains of the weekly cap, drive home included.
	// Zero disables the check.
	HoursBudget      float64
	PreNightCap      int
	MaxDriveHours    float64
	AssignedClusters []string
	AllowFiller      bool
	TargetSOW        string
	NightEligible    bool
	LastWeekday      bool
	FridayExcluded   []string
	HotelMiles       float64
	DayStart         string
	NightArrival     string
	// FillerOnly work orders never anchor a day.
	FillerOnly map[int64]bool
}

func (c Constraints) withDefaults() Constraints {
	if c.HotelMiles <= 0 {
		c.HotelMiles = 90
	}
	if c.DayStart == "" {
		c.DayStart = "07:00"
	}
	if c.NightArrival == "" {
		c.NightArrival = "21:00"
	}
	return c
}

// DayInput is the state a day starts from.
type DayInput struct {
	TechnicianID int64
	Date         time.Time
	Home         geo.Point
	Start        geo.Point
	StartSite    string
	// Existing committed work; UsedHours already accounts for it.
	Existing  []model.ScheduledJob
	UsedHours float64
	// Fixed jobs pinned to this date, already removed from the pool. They are
	// placed first, in the given order.
	Fixed []model.Job
	// Corridor jobs chosen upstream, placed after the fixed jobs in the given
	// order.
	Corridor []model.Job
}

// Result is a built day.
type Result struct {
	Day      model.DaySchedule
	Warnings []model.Warning
	Anneal   *opt.Metrics
}

// Builder is the single parametrized day builder.
type Builder struct {
	Strategy opt.Strategy
	Travel   geo.TravelModel
	Rand     *rand.Rand
	Anneal   opt.Schedule
}

type dayState struct {
	c        Constraints
	in       DayInput
	tm       geo.TravelModel
	clusters map[string]bool

	loc   geo.Point
	site  string
	zone  string
	used  float64
	jobs  []model.ScheduledJob
	night *model.Job
}

func (st *dayState) travelTo(j model.Job) float64 {
	return st.tm.Hours(st.site, st.loc, j.SiteName, j.Location)
}

func (st *dayState) count() int { return len(st.in.Existing) + len(st.jobs) }

// homeCharge is the drive home owed from end. It is held against the weekly
// budget on hotel nights too; a later day pays it.
func (st *dayState) homeCharge(end geo.Point) float64 {
	return st.tm.Between(end, st.in.Home)
}

// fits checks j from the current position, keeping room for the reserved night
// job and the weekly budget.
func (st *dayState) fits(j model.Job, travel float64) bool {
	reserve := 0.0
	end := j.Location
	if st.night != nil && st.night.WorkOrder != j.WorkOrder {
		reserve = st.tm.Hours(j.SiteName, j.Location, st.night.SiteName, st.night.Location) + st.night.Duration
		end = st.night.Location
	}
	if !Admissible(st.used, travel, j.Duration+reserve, st.c.MaxHours) {
		return false
	}
	if st.c.HoursBudget > 0 {
		return st.used+travel+j.Duration+reserve+st.homeCharge(end) <= st.c.HoursBudget+eps
	}
	return true
}

func (st *dayState) place(j model.Job, travel float64, source string) {
	st.used += travel + j.Duration
	st.jobs = append(st.jobs, model.ScheduledJob{
		Job:          j,
		TechnicianID: st.in.TechnicianID,
		Date:         model.Day(st.in.Date),
		Source:       source,
		TravelHours:  travel,
		TotalHours:   travel + j.Duration,
	})
	st.loc, st.site = j.Location, j.SiteName
	if j.Zone != "" {
		st.zone = j.Zone
	}
}

func (st *dayState) dayEligible(j model.Job) bool {
	return !j.Night() && j.EligibleOn(st.in.Date) && !excludedOn(j, st.c.LastWeekday, st.c.FridayExcluded)
}

func (st *dayState) underCap() bool {
	return st.night == nil || st.c.PreNightCap <= 0 || st.count() < st.c.PreNightCap
}

// best returns the best admissible pool job accepted by keep. Filler selection
// ranks by tier first.
func (st *dayState) best(pool *Pool, keep func(model.Job) bool, tiered bool) (candidate, bool) {
	var out candidate
	found := false
	for _, j := range pool.jobs {
		if !st.dayEligible(j) || !keep(j) {
			continue
		}
		c := candidate{job: j, travel: st.travelTo(j)}
		if !st.fits(j, c.travel) {
			continue
		}
		if tiered {
			c.tier = st.fillerTier(c)
		}
		if !found || better(c, out, st.in.Date) {
			out, found = c, true
		}
	}
	return out, found
}

// pickNight reserves the best night job that fits from the current position.
func (st *dayState) pickNight(pool *Pool) (model.Job, bool) {
	var out candidate
	found := false
	for _, j := range pool.jobs {
		if !j.Night() || !j.EligibleOn(st.in.Date) || excludedOn(j, st.c.LastWeekday, st.c.FridayExcluded) {
			continue
		}
		c := candidate{job: j, travel: st.travelTo(j)}
		if !st.fits(j, c.travel) {
			continue
		}
		if !found || better(c, out, st.in.Date) {
			out, found = c, true
		}
	}
	return out.job, found
}

// Build places jobs for one day, removing them from pool. Jobs it cannot place
// stay in, or are returned to, the pool.
func (b *Builder) Build(in DayInput, pool *Pool, c Constraints) Result {
	c = c.withDefaults()
	tm := b.Travel
	if tm.SpeedMPH <= 0 {
		tm = geo.NewTravelModel(geo.SpeedOpenRoad)
	}
	st := &dayState{c: c, in: in, tm: tm, clusters: map[string]bool{}, loc: in.Start, site: in.StartSite, used: in.UsedHours}
	for _, cl := range c.AssignedClusters {
		st.clusters[cl] = true
	}
	if n := len(in.Existing); n > 0 {
		last := in.Existing[n-1]
		st.loc, st.site, st.zone = last.Location, last.SiteName, last.Zone
	}
	date := model.Day(in.Date).Format(model.DateLayout)
	var res Result
	warn := func(wo int64, reason, note string) {
		res.Warnings = append(res.Warnings, model.Warning{Date: date, WorkOrder: wo, Reason: reason, Note: note})
	}

	// Fixed jobs in arrival order; a pinned night job is held for the end.
	var fixedDay []model.Job
	for _, j := range in.Fixed {
		if !j.Night() {
			fixedDay = append(fixedDay, j)
			continue
		}
		if st.night == nil {
			nj := j
			st.night = &nj
			continue
		}
		pool.Put(j)
		warn(j.WorkOrder, model.WarnFixedJobOverCapacity, "only one night job per day")
	}
	for _, j := range fixedDay {
		travel := st.travelTo(j)
		if !st.fits(j, travel) {
			pool.Put(j)
			warn(j.WorkOrder, model.WarnFixedJobOverCapacity, "pinned job does not fit the day")
			continue
		}
		st.place(j, travel, model.SourceFixed)
	}
	for _, j := range in.Corridor {
		travel := st.travelTo(j)
		if !st.dayEligible(j) || !st.fits(j, travel) {
			pool.Put(j)
			continue
		}
		st.place(j, travel, model.SourceCorridor)
	}
	if st.night == nil && c.NightEligible {
		if nj, ok := st.pickNight(pool); ok {
			pool.Take(nj.WorkOrder)
			st.night = &nj
		}
	}

	// Anchors, then fillers.
	firstNew := len(st.jobs)
	usedBefore := st.used
	originLoc, originSite := st.loc, st.site
	isAnchor := func(j model.Job) bool { return !c.FillerOnly[j.WorkOrder] && IsAnchor(j, c.TargetSOW) }
	isFiller := func(j model.Job) bool { return !isAnchor(j) }
	for st.underCap() {
		cand, ok := st.best(pool, isAnchor, false)
		if !ok {
			break
		}
		pool.Take(cand.job.WorkOrder)
		st.place(cand.job, cand.travel, model.SourceAnchor)
	}
	if c.AllowFiller {
		for st.underCap() {
			cand, ok := st.best(pool, isFiller, true)
			if !ok {
				break
			}
			pool.Take(cand.job.WorkOrder)
			st.place(cand.job, cand.travel, model.SourceFiller)
		}
	}
	res.Anneal = b.reorder(st, firstNew, usedBefore, originLoc, originSite)

	if st.night != nil {
		nj := *st.night
		st.night = nil
		travel := st.travelTo(nj)
		if st.fits(nj, travel) {
			st.place(nj, travel, model.SourceNight)
		} else {
			pool.Put(nj)
			if containsJob(in.Fixed, nj.WorkOrder) {
				warn(nj.WorkOrder, model.WarnFixedJobOverCapacity, "pinned night job does not fit the day")
			}
		}
	}

	res.Day = st.finish(tm)
	return res
}

func containsJob(jobs []model.Job, wo int64) bool {
	for _, j := range jobs {
		if j.WorkOrder == wo {
			return true
		}
	}
	return false
}

// reorder runs the route-order optimizer over the anchor and filler jobs. The
// new order is kept only when the reserved night job and the weekly budget
// still fit.
func (b *Builder) reorder(st *dayState, firstNew int, usedBefore float64, originLoc geo.Point, originSite string) *opt.Metrics {
	placed := st.jobs[firstNew:]
	if len(placed) < 2 {
		return nil
	}
	stops := make([]opt.Stop, len(placed))
	for i, sj := range placed {
		stops[i] = opt.Stop{ID: sj.WorkOrder, Site: sj.SiteName, Point: sj.Location, Duration: sj.Duration}
	}
	origin := opt.Stop{Site: originSite, Point: originLoc}
	plan := opt.Order(b.Strategy, origin, stops, nil, st.c.MaxHours-usedBefore, st.tm, b.Rand, b.Anneal)

	saved := struct {
		jobs       []model.ScheduledJob
		used       float64
		loc        geo.Point
		site, zone string
	}{append([]model.ScheduledJob(nil), st.jobs...), st.used, st.loc, st.site, st.zone}

	st.jobs = st.jobs[:firstNew:firstNew]
	st.used, st.loc, st.site = usedBefore, originLoc, originSite
	for _, idx := range plan.Order {
		sj := saved.jobs[firstNew+idx]
		st.place(sj.Job, st.travelTo(sj.Job), sj.Source)
	}
	ok := true
	if st.night != nil {
		ok = st.fits(*st.night, st.travelTo(*st.night))
	} else if st.c.HoursBudget > 0 {
		ok = st.used+st.homeCharge(st.loc) <= st.c.HoursBudget+eps
	}
	if !ok {
		st.jobs, st.used, st.loc, st.site, st.zone = saved.jobs, saved.used, saved.loc, saved.site, saved.zone
	}
	return plan.Metrics
}

// finish stamps sequence numbers and clock times and makes the hotel decision.
func (st *dayState) finish(tm geo.TravelModel) model.DaySchedule {
	c, in := st.c, st.in
	day := model.Day(in.Date)
	clock, err := model.ClockOn(day, c.DayStart)
	if err != nil {
		clock = day.Add(7 * time.Hour)
	}
	clock = clock.Add(model.Hours(in.UsedHours))
	seq := len(in.Existing)
	for i := range st.jobs {
		sj := &st.jobs[i]
		seq++
		sj.Seq = seq
		if sj.Source == model.SourceNight {
			arrive, err := model.ClockOn(day, c.NightArrival)
			if err != nil {
				arrive = day.Add(21 * time.Hour)
			}
			sj.StartTime = arrive
			sj.DepartAt = arrive.Add(-model.Hours(sj.TravelHours))
		} else {
			sj.DepartAt = clock
			sj.StartTime = clock.Add(model.Hours(sj.TravelHours))
		}
		sj.EndTime = sj.StartTime.Add(model.Hours(sj.Duration))
		clock = sj.EndTime
	}

	out := model.DaySchedule{
		Date:              day,
		Weekday:           day.Weekday().String(),
		Existing:          in.Existing,
		Jobs:              st.jobs,
		EffectiveMaxHours: c.MaxHours,
		StartLocation:     in.Start,
	}
	if out.Jobs == nil {
		out.Jobs = []model.ScheduledJob{}
	}
	var city string
	for _, sj := range out.AllJobs() {
		out.WorkHours += sj.Duration
		out.DriveHours += sj.TravelHours
		out.NightJob = out.NightJob || sj.Source == model.SourceNight
		if sj.SiteCity != "" {
			city = sj.SiteCity
		}
	}
	out.Region = MajorityRegion(out.AllJobs())

	// A day without jobs ends at home.
	if len(out.AllJobs()) > 0 && !c.LastWeekday && geo.DistanceMiles(st.loc, in.Home) > c.HotelMiles {
		loc := st.loc
		out.HotelStay = true
		out.HotelLocation = &loc
		out.HotelCity = city
		out.EndLocation = loc
	} else {
		out.DriveHomeHours = tm.Between(st.loc, in.Home)
		out.EndLocation = in.Home
	}
	out.TotalHours = out.WorkHours + out.DriveHours + out.DriveHomeHours
	return out
}

// MajorityRegion returns the most frequent region among jobs, ties going to the
// region seen first.
func MajorityRegion(jobs []model.ScheduledJob) string {
	counts := map[string]int{}
	var order []string
	for _, sj := range jobs {
		if sj.Region == "" {
			continue
		}
		if counts[sj.Region] == 0 {
			order = append(order, sj.Region)
		}
		counts[sj.Region]++
	}
	best, bestN := "", 0
	for _, r := range order {
		if counts[r] > bestN {
			best, bestN = r, counts[r]
		}
	}
	return best
}
