package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
	"fieldsched/internal/region"
	"fieldsched/internal/store"
)

// weekInput is everything loaded before the first day is built.
type weekInput struct {
	tech     model.Technician
	jobs     []model.Job // filtered pool, pinned jobs included
	existing map[string][]model.ScheduledJob
	regions  []model.Region // ranked
	focus    model.Region
	hasFocus bool
	// fillerOnly marks adjacent-region jobs that may fill but never anchor.
	fillerOnly map[int64]bool
	travel     geo.TravelModel
	warnings   []model.Warning
}

func pinnedSet(req Request) map[int64]bool {
	out := map[int64]bool{}
	for _, wos := range req.Pinned {
		for _, wo := range wos {
			out[wo] = true
		}
	}
	return out
}

func (p *Planner) load(ctx context.Context, req Request) (*weekInput, error) {
	tech, err := p.src.Technician(ctx, req.TechnicianID)
	if err != nil {
		return nil, fmt.Errorf("load technician %d: %w", req.TechnicianID, err)
	}
	if !tech.Active {
		return nil, fmt.Errorf("%w: technician %d", ErrTechnicianInactive, tech.ID)
	}
	in := &weekInput{tech: tech, existing: map[string][]model.ScheduledJob{}, fillerOnly: map[int64]bool{}}

	days := model.Weekdays(req.WeekStart)
	rows, err := p.src.ExistingSchedule(ctx, tech.ID, days[0], days[len(days)-1])
	if err != nil {
		return nil, fmt.Errorf("load existing schedule: %w", err)
	}
	committed := map[int64]bool{}
	for _, r := range rows {
		key := model.Day(r.Date).Format(model.DateLayout)
		in.existing[key] = append(in.existing[key], r)
		committed[r.WorkOrder] = true
	}

	jobs, err := p.src.Jobs(ctx, store.JobQuery{TechnicianID: tech.ID, From: req.WeekStart})
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	pinned := pinnedSet(req)
	jobs, err = p.filterPool(ctx, req, tech, jobs, committed, pinned)
	if err != nil {
		return nil, err
	}

	if err := p.focusRegion(ctx, req, in, jobs, pinned); err != nil {
		return nil, err
	}

	speed := p.cfg.DriveSpeedMPH
	if in.hasFocus && in.focus.RequiresHotel && p.cfg.RuralSpeedMPH > 0 {
		speed = p.cfg.RuralSpeedMPH
	}
	in.travel = geo.NewTravelModel(speed)
	sites := siteNames(in.jobs, rows)
	if len(sites) > 1 {
		mx, err := p.src.TravelMatrix(ctx, sites)
		if err != nil {
			return nil, fmt.Errorf("load travel matrix: %w", err)
		}
		if len(mx) > 0 {
			in.travel.Matrix = mx
		}
	}
	return in, nil
}

// filterPool drops jobs the week must not consider. Pinned jobs bypass the
// radius, horizon and night rules; recurring sites bypass freshness.
func (p *Planner) filterPool(ctx context.Context, req Request, tech model.Technician, jobs []model.Job, committed, pinned map[int64]bool) ([]model.Job, error) {
	var (
		out     = make([]model.Job, 0, len(jobs))
		dropped = map[string]int{}
		siteIDs []int64
		seen    = map[int64]bool{}
	)
	for _, j := range jobs {
		pin := pinned[j.WorkOrder]
		switch {
		case committed[j.WorkOrder]:
			dropped["committed"]++
			continue
		case !pin && p.cfg.HorizonDays > 0 && !j.DueDate.IsZero() && !j.IsPriority() && !j.IsRecurringSite &&
			model.DaysBetween(req.WeekStart, j.DueDate) > p.cfg.HorizonDays:
			dropped["horizon"]++
			continue
		case !pin && p.cfg.RadiusCapMiles > 0 && geo.DistanceMiles(tech.Home, j.Location) > p.cfg.RadiusCapMiles:
			dropped["radius"]++
			continue
		case !pin && j.Night() && !tech.NightEligible:
			dropped["night"]++
			continue
		}
		out = append(out, j)
		if !pin && !j.IsRecurringSite && j.SiteID != 0 && !seen[j.SiteID] {
			seen[j.SiteID] = true
			siteIDs = append(siteIDs, j.SiteID)
		}
	}

	if p.cfg.FreshnessMinDays > 0 && len(siteIDs) > 0 {
		fresh, err := p.src.SiteFreshness(ctx, siteIDs, req.WeekStart)
		if err != nil {
			return nil, fmt.Errorf("load site freshness: %w", err)
		}
		kept := out[:0]
		for _, j := range out {
			if days, ok := fresh[j.SiteID]; ok && !pinned[j.WorkOrder] && !j.IsRecurringSite && days < p.cfg.FreshnessMinDays {
				dropped["freshness"]++
				continue
			}
			kept = append(kept, j)
		}
		out = kept
	}
	if len(dropped) > 0 {
		fields := []zap.Field{zap.Int64("technician_id", tech.ID), zap.Int("kept", len(out))}
		for reason, n := range dropped {
			fields = append(fields, zap.Int("dropped_"+reason, n))
		}
		p.log.Debug("pool filtered", fields...)
	}
	return out, nil
}

// focusRegion scores the pool's regions and narrows in.jobs to the focus
// region, its adjacent regions as fillers when requested, and pinned jobs.
func (p *Planner) focusRegion(ctx context.Context, req Request, in *weekInput, jobs []model.Job, pinned map[int64]bool) error {
	centers := map[string]model.RegionInfo{}
	for _, j := range jobs {
		if j.Region == "" {
			continue
		}
		if _, ok := centers[j.Region]; ok {
			continue
		}
		info, err := p.src.Region(ctx, j.Region)
		switch {
		case errors.Is(err, store.ErrNotFound):
			centers[j.Region] = model.RegionInfo{Name: j.Region}
		case err != nil:
			return fmt.Errorf("load region %q: %w", j.Region, err)
		default:
			centers[j.Region] = info
		}
	}
	// Regions are scored on work due by the later of month end and the horizon.
	_, until := model.MonthBounds(req.WeekStart)
	if h := req.WeekStart.AddDate(0, 0, p.cfg.HorizonDays); h.After(until) {
		until = h
	}
	window := make([]model.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.DueDate.IsZero() || !model.Day(j.DueDate).After(until) {
			window = append(window, j)
		}
	}
	best, scored, ok := region.Select(region.Aggregate(window, in.tech.Home, req.WeekStart, centers, p.cfg.HotelThresholdMiles))
	in.regions = region.Ranked(scored)

	switch {
	case len(req.Regions) > 0:
		in.focus, in.hasFocus = model.Region{Name: req.Regions[0]}, true
		for _, r := range scored {
			if r.Name == req.Regions[0] {
				in.focus = r
			}
		}
		if in.focus.Adjacent == nil {
			info, err := p.src.Region(ctx, req.Regions[0])
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("load region %q: %w", req.Regions[0], err)
			}
			in.focus.Adjacent = info.Adjacent
		}
	case ok:
		in.focus, in.hasFocus = best, true
	default:
		in.jobs = jobs
		return nil
	}

	core := map[string]bool{in.focus.Name: true}
	for _, name := range req.Regions {
		core[name] = true
	}
	adjacent := map[string]bool{}
	if req.IncludeAdjacent {
		for _, a := range in.focus.Adjacent {
			if !core[a] {
				adjacent[a] = true
			}
		}
	}
	inFocus := 0
	for _, j := range jobs {
		switch {
		case core[j.Region]:
			inFocus++
		case adjacent[j.Region]:
			in.fillerOnly[j.WorkOrder] = !pinned[j.WorkOrder]
		case pinned[j.WorkOrder]:
		default:
			continue
		}
		in.jobs = append(in.jobs, j)
	}
	if inFocus == 0 {
		in.warnings = append(in.warnings, model.Warning{
			Reason: model.WarnNoJobsInRegion,
			Note:   fmt.Sprintf("no schedulable jobs in %s", in.focus.Name),
		})
	}
	return nil
}

func siteNames(jobs []model.Job, rows []model.ScheduledJob) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, j := range jobs {
		add(j.SiteName)
	}
	for _, r := range rows {
		add(r.SiteName)
	}
	sort.Strings(out)
	return out
}
