package planner

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldsched/internal/corridor"
	"fieldsched/internal/geo"
	"fieldsched/internal/model"
	"fieldsched/internal/opt"
	"fieldsched/internal/region"
	"fieldsched/internal/route"
)

// MaxWeeklyHours is the hard ceiling on a technician week.
const MaxWeeklyHours = 50.0

const eps = 1e-9

// week is the mutable state of one BuildWeek call.
type week struct {
	p   *Planner
	req Request
	in  *weekInput

	days    []time.Time
	pool    *route.Pool
	pinned  map[string][]model.Job
	builder *route.Builder
	cap     float64

	out       model.WeekSchedule
	loc       geo.Point
	site      string
	hours     float64
	recovery  bool
	capWarned bool
	bumped    map[int64]bool
	// unplaced holds pinned outside-week jobs that did not fit their date.
	unplaced int
}

func (p *Planner) newWeek(req Request, in *weekInput) *week {
	w := &week{
		p:      p,
		req:    req,
		in:     in,
		days:   model.Weekdays(req.WeekStart),
		pinned: map[string][]model.Job{},
		loc:    in.tech.Home,
		bumped: map[int64]bool{},
		out: model.WeekSchedule{
			BuildID:      uuid.NewString(),
			TechnicianID: in.tech.ID,
			WeekStart:    req.WeekStart,
			Strategy:     string(req.Strategy),
			Regions:      in.regions,
			Warnings:     append([]model.Warning(nil), in.warnings...),
			Suggestions:  []string{},
		},
	}
	if in.hasFocus {
		w.out.RegionFocus = in.focus.Name
	}
	w.cap = in.tech.MaxWeeklyHours
	if w.cap <= 0 || w.cap > MaxWeeklyHours {
		w.cap = MaxWeeklyHours
	}
	w.builder = &route.Builder{
		Strategy: req.Strategy,
		Travel:   in.travel,
		Rand:     rand.New(rand.NewSource(req.Seed)),
		Anneal:   opt.Schedule(p.cfg.Anneal),
	}

	// Pinned jobs leave the pool up front; dates in request order are not
	// stable, so walk them sorted.
	w.pool = route.NewPool(in.jobs)
	keys := make([]string, 0, len(req.Pinned))
	for k := range req.Pinned {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		date, _ := model.ParseDate(key)
		day := date.Format(model.DateLayout)
		for _, wo := range req.Pinned[key] {
			j, ok := w.pool.Take(wo)
			if !ok {
				w.warn(model.Warning{Date: day, WorkOrder: wo, Reason: model.WarnFixedJobMissing, Note: "pinned job is not in the candidate pool"})
				continue
			}
			w.pinned[day] = append(w.pinned[day], j)
		}
	}
	return w
}

func (w *week) warn(ws ...model.Warning) {
	w.out.Warnings = append(w.out.Warnings, ws...)
}

func (w *week) constraints(maxDay float64, last bool) route.Constraints {
	cfg := w.p.cfg
	return route.Constraints{
		MaxHours:         maxDay,
		HoursBudget:      w.cap - w.hours,
		PreNightCap:      cfg.PreNightJobCap,
		MaxDriveHours:    float64(cfg.MaxDriveMinutes) / 60,
		AssignedClusters: w.req.AssignedClusters,
		AllowFiller:      w.req.AllowFiller,
		TargetSOW:        w.req.SOW,
		NightEligible:    w.in.tech.NightEligible,
		LastWeekday:      last,
		FridayExcluded:   cfg.FridayExcludedSites,
		HotelMiles:       cfg.HotelThresholdMiles,
		DayStart:         cfg.DayStart,
		NightArrival:     cfg.NightArrival,
		FillerOnly:       w.in.fillerOnly,
	}
}

// existing returns the committed rows of date that were not bumped.
func (w *week) existing(date time.Time) []model.ScheduledJob {
	rows := w.in.existing[date.Format(model.DateLayout)]
	out := make([]model.ScheduledJob, 0, len(rows))
	for _, r := range rows {
		if !w.bumped[r.WorkOrder] {
			out = append(out, r)
		}
	}
	return out
}

// releasePinned sends a day's pinned jobs back to the pool.
func (w *week) releasePinned(key, note string) {
	for _, j := range w.pinned[key] {
		w.pool.Put(j)
		w.warn(model.Warning{Date: key, WorkOrder: j.WorkOrder, Reason: model.WarnFixedJobOverCapacity, Note: note})
	}
	delete(w.pinned, key)
}

func (w *week) run(ctx context.Context) error {
	tech := w.in.tech
	for i, date := range w.days {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := date.Format(model.DateLayout)
		last := i == len(w.days)-1

		off, err := w.p.src.TimeOff(ctx, tech.ID, date)
		if err != nil {
			return fmt.Errorf("load time off %s: %w", key, err)
		}
		if off.FullDay() {
			w.releasePinned(key, "technician is off")
			w.emit(model.DaySchedule{
				Date:          date,
				Weekday:       date.Weekday().String(),
				Jobs:          []model.ScheduledJob{},
				StartLocation: w.loc,
				EndLocation:   tech.Home,
				DayOff:        true,
				DayOffReason:  off.Reason,
			}, nil)
			w.loc, w.site, w.recovery = tech.Home, "", false
			continue
		}

		maxDay := off.Limit(tech.MaxDailyHours)
		recovering := w.recovery
		if recovering && tech.MaxDailyHours/2 < maxDay {
			maxDay = tech.MaxDailyHours / 2
		}
		w.recovery = false

		dc := AnalyzeDay(date, w.existing(date), w.loc, maxDay, w.in.travel)
		in := route.DayInput{
			TechnicianID: tech.ID,
			Date:         date,
			Home:         tech.Home,
			Start:        w.loc,
			StartSite:    w.site,
			Existing:     dc.Existing,
			UsedHours:    dc.HoursScheduled,
		}
		pool := w.pool
		switch {
		case w.cap-w.hours <= eps:
			if !w.capWarned {
				w.capWarned = true
				w.warn(model.Warning{Date: key, Reason: model.WarnWeeklyCapReached, Note: fmt.Sprintf("%.1fh weekly cap reached", w.cap)})
			}
			w.releasePinned(key, "weekly cap reached")
			pool = route.NewPool(nil)
		case len(dc.Existing) > 0 && dc.HoursAvailable <= w.p.cfg.FullDayThresholdHours:
			w.releasePinned(key, "day is already full")
			pool = route.NewPool(nil)
		default:
			in.Fixed = w.pinned[key]
			delete(w.pinned, key)
			// Pinned jobs count as committed work for the corridor.
			if len(dc.Existing) == 0 && len(in.Fixed) == 0 {
				in.Corridor = w.corridor(i, date, maxDay)
			}
		}

		res := w.builder.Build(in, pool, w.constraints(maxDay, last))
		day := res.Day
		day.RecoveryDay = recovering
		if day.Region == "" {
			day.Region = dc.PrimaryRegion
		}
		w.warn(res.Warnings...)
		if res.Anneal != nil {
			w.p.rec.Annealed(*res.Anneal)
		}
		w.emit(day, res.Anneal)

		w.hours += day.TotalHours
		w.loc, w.site = day.EndLocation, ""
		if day.HotelStay {
			if all := day.AllJobs(); len(all) > 0 {
				w.site = all[len(all)-1].SiteName
			}
		}
		w.recovery = day.NightJob
	}

	// Pinned dates outside the week are built from home, fixed jobs only.
	keys := make([]string, 0, len(w.pinned))
	for k := range w.pinned {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.outside(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (w *week) emit(day model.DaySchedule, m *opt.Metrics) {
	w.out.Days = append(w.out.Days, day)
	w.p.log.Debug("day built",
		zap.Int64("technician_id", w.in.tech.ID),
		zap.String("date", day.Date.Format(model.DateLayout)),
		zap.Int("jobs", len(day.Jobs)),
		zap.Float64("hours", day.TotalHours),
		zap.Float64("max_hours", day.EffectiveMaxHours),
		zap.Bool("hotel", day.HotelStay),
		zap.Bool("night", day.NightJob),
		zap.Bool("annealed", m != nil))
	if w.req.Progress != nil {
		w.req.Progress(model.ProgressEvent{
			Type:         "day.built",
			BuildID:      w.out.BuildID,
			TechnicianID: w.in.tech.ID,
			Date:         day.Date.Format(model.DateLayout),
			Jobs:         len(day.Jobs),
			Hours:        day.TotalHours,
			HotelStay:    day.HotelStay,
		})
	}
}

// corridor plans jobs along the drive toward the next committed day when
// today has no committed or pinned work. Chosen jobs leave the pool; a bumped destination's rows
// return to it.
func (w *week) corridor(i int, date time.Time, maxDay float64) []model.Job {
	cfg := w.p.cfg
	for k := i + 1; k < len(w.days); k++ {
		rows := w.existing(w.days[k])
		if len(rows) == 0 {
			continue
		}
		first := rows[0]
		if geo.DistanceMiles(w.loc, first.Location) <= cfg.CorridorMinMiles {
			return nil
		}
		dest := corridor.Destination{Location: first.Location, Site: first.SiteName, Date: w.days[k]}
		for _, r := range rows {
			dest.Hours += r.Duration
			dest.Recurring = dest.Recurring || r.IsRecurringSite
			if !r.DueDate.IsZero() && (dest.DueDate.IsZero() || r.DueDate.Before(dest.DueDate)) {
				dest.DueDate = r.DueDate
			}
			dest.WorkOrders = append(dest.WorkOrders, r.WorkOrder)
		}
		params := corridor.Params{WidthMiles: cfg.CorridorWidthMiles, ClusterMiles: cfg.CorridorClusterMiles, MaxResults: cfg.CorridorMaxResults}
		available := maxDay
		if rem := w.cap - w.hours; rem < available {
			available = rem
		}
		res := corridor.Plan(corridor.Request{
			Start:          w.loc,
			Dest:           dest,
			Day:            date,
			AvailableHours: available,
			Candidates:     corridor.Find(w.pool.Jobs(), w.loc, first.Location, date, params, w.in.fillerOnly),
			Travel:         w.in.travel,
			ClusterMiles:   cfg.CorridorClusterMiles,
		})
		key := date.Format(model.DateLayout)
		if len(res.Jobs) == 0 {
			w.warn(model.Warning{Date: key, Reason: model.WarnNoCorridorJobs, Note: res.Reason})
			return nil
		}
		if res.BumpDestination {
			for _, r := range rows {
				w.bumped[r.WorkOrder] = true
				w.out.Bumped = append(w.out.Bumped, r.WorkOrder)
				w.pool.Put(r.Job)
			}
			w.warn(model.Warning{
				Date:      key,
				WorkOrder: first.WorkOrder,
				Reason:    model.WarnDestinationBumped,
				Note:      fmt.Sprintf("%s moved off %s: %s", first.SiteName, dest.Date.Format(model.DateLayout), res.Reason),
			})
		}
		out := make([]model.Job, 0, len(res.Jobs))
		for _, j := range res.Jobs {
			if taken, ok := w.pool.Take(j.WorkOrder); ok {
				out = append(out, taken)
			}
		}
		return out
	}
	return nil
}

// outside builds a pinned date that falls outside Monday-Friday.
func (w *week) outside(ctx context.Context, key string) error {
	tech := w.in.tech
	date, _ := model.ParseDate(key)
	jobs := w.pinned[key]
	delete(w.pinned, key)

	off, err := w.p.src.TimeOff(ctx, tech.ID, date)
	if err != nil {
		return fmt.Errorf("load time off %s: %w", key, err)
	}
	if off.FullDay() {
		for _, j := range jobs {
			w.warn(model.Warning{Date: key, WorkOrder: j.WorkOrder, Reason: model.WarnFixedJobOverCapacity, Note: "technician is off"})
		}
		w.unplaced += len(jobs)
		w.out.OutsideWeek = append(w.out.OutsideWeek, model.DaySchedule{
			Date:          date, Weekday: date.Weekday().String(), Jobs: []model.ScheduledJob{},
			StartLocation: tech.Home, EndLocation: tech.Home, DayOff: true, DayOffReason: off.Reason,
		})
		return nil
	}
	rest := route.NewPool(nil)
	c := w.constraints(off.Limit(tech.MaxDailyHours), true)
	c.HoursBudget = 0
	c.AllowFiller = false
	res := w.builder.Build(route.DayInput{
		TechnicianID: tech.ID,
		Date:         date,
		Home:         tech.Home,
		Start:        tech.Home,
		Fixed:        jobs,
	}, rest, c)
	w.warn(res.Warnings...)
	w.unplaced += rest.Len()
	w.out.OutsideWeek = append(w.out.OutsideWeek, res.Day)
	return nil
}

func (w *week) finish() model.WeekSchedule {
	out := w.out
	for _, d := range out.Days {
		out.TotalHours += d.TotalHours
	}
	out.JobsScheduled = len(out.NewJobs())
	out.JobsRemaining = w.pool.Len() + w.unplaced
	if out.JobsRemaining > 0 {
		out.Warnings = append(out.Warnings, model.Warning{
			Reason: model.WarnJobsUnscheduled,
			Note:   fmt.Sprintf("%d candidate jobs left unscheduled", out.JobsRemaining),
		})
	}
	if target := w.p.cfg.WeeklyTargetHours; target > 0 && out.TotalHours < target {
		out.Warnings = append(out.Warnings, model.Warning{
			Reason: model.WarnBelowTargetHours,
			Note:   fmt.Sprintf("%.1fh scheduled, target %.0fh", out.TotalHours, target),
		})
		if w.in.hasFocus {
			if s, ok := region.SuggestAdjacent(w.in.focus, out.TotalHours, target); ok {
				out.Suggestions = append(out.Suggestions, s)
			}
		}
	}
	if w.req.Progress != nil {
		w.req.Progress(model.ProgressEvent{
			Type:         "week.built",
			BuildID:      out.BuildID,
			TechnicianID: out.TechnicianID,
			Jobs:         out.JobsScheduled,
			Hours:        out.TotalHours,
		})
	}
	return out
}
