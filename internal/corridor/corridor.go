// Package corridor fills idle capacity with jobs along the drive toward a
// future committed job.
package corridor

import (
	"fmt"
	"sort"
	"time"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
)

// Params bounds the corridor search.
type Params struct {
	WidthMiles   float64
	ClusterMiles float64
	MaxResults   int
}

// DefaultParams matches the production tuning.
var DefaultParams = Params{WidthMiles: 30, ClusterMiles: 15, MaxResults: 50}

// Destination is the committed work the technician is heading toward.
type Destination struct {
	Location   geo.Point
	Site       string
	Hours      float64 // total committed work at the destination
	DueDate    time.Time
	Recurring  bool
	Date       time.Time // day the destination is committed on
	WorkOrders []int64
}

// CanBump reports whether the destination may slip off its committed day.
// It must be due more than one day after day and not pinned to a recurring
// visit date.
func (d Destination) CanBump(day time.Time) bool {
	if d.Recurring || d.DueDate.IsZero() {
		return false
	}
	return model.DaysBetween(day, d.DueDate) > 1
}

// Request is one corridor decision.
type Request struct {
	Start          geo.Point
	Dest           Destination
	Day            time.Time
	AvailableHours float64
	Candidates     []model.Job
	Travel         geo.TravelModel
	ClusterMiles   float64
}

// Result lists the inserted jobs in driving order.
type Result struct {
	Jobs            []model.Job
	BumpDestination bool
	Reason          string
	WorkHours       float64
	DriveHours      float64
}

// Find returns pool jobs within p.WidthMiles of the straight path start→end
// that can run on day, nearest to start first. Night jobs and excluded work
// orders are skipped.
func Find(pool []model.Job, start, end geo.Point, day time.Time, p Params, exclude map[int64]bool) []model.Job {
	if p.WidthMiles <= 0 {
		p.WidthMiles = DefaultParams.WidthMiles
	}
	type cand struct {
		job  model.Job
		dist float64
	}
	var cands []cand
	for _, j := range pool {
		if exclude[j.WorkOrder] || j.Night() || !j.EligibleOn(day) {
			continue
		}
		if geo.DistanceToSegmentMiles(j.Location, start, end) > p.WidthMiles {
			continue
		}
		cands = append(cands, cand{job: j, dist: geo.DistanceMiles(start, j.Location)})
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })
	if p.MaxResults > 0 && len(cands) > p.MaxResults {
		cands = cands[:p.MaxResults]
	}
	out := make([]model.Job, len(cands))
	for i, c := range cands {
		out[i] = c.job
	}
	return out
}

// Clusters chains jobs (already ordered along the route) into groups whose
// consecutive members are within maxGap miles of each other.
func Clusters(ordered []model.Job, maxGap float64) [][]model.Job {
	var out [][]model.Job
	var cur []model.Job
	for _, j := range ordered {
		if len(cur) > 0 && geo.DistanceMiles(cur[len(cur)-1].Location, j.Location) > maxGap {
			out = append(out, cur)
			cur = nil
		}
		cur = append(cur, j)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func workHours(jobs []model.Job) float64 {
	total := 0.0
	for _, j := range jobs {
		total += j.Duration
	}
	return total
}

// driveThrough returns drive hours from start through every job in order.
func driveThrough(start geo.Point, jobs []model.Job, tm geo.TravelModel) float64 {
	total := 0.0
	prev := start
	for _, j := range jobs {
		total += tm.Between(prev, j.Location)
		prev = j.Location
	}
	return total
}

// Plan decides which corridor jobs to run today.
//
// The largest cluster that fits together with the trip on to the destination
// and the destination's own work wins. Failing that, a bumpable destination is
// released and the largest cluster that fits alone is taken. Otherwise jobs are
// packed nearest-first around the fixed destination.
func Plan(req Request) Result {
	if len(req.Candidates) == 0 {
		return Result{Reason: "no corridor jobs"}
	}
	tm := req.Travel
	if tm.SpeedMPH <= 0 {
		tm = geo.NewTravelModel(geo.SpeedOpenRoad)
	}
	gap := req.ClusterMiles
	if gap <= 0 {
		gap = DefaultParams.ClusterMiles
	}
	ordered := append([]model.Job(nil), req.Candidates...)
	sort.SliceStable(ordered, func(a, b int) bool {
		return geo.DistanceMiles(req.Start, ordered[a].Location) < geo.DistanceMiles(req.Start, ordered[b].Location)
	})
	clusters := Clusters(ordered, gap)
	sort.SliceStable(clusters, func(a, b int) bool { return workHours(clusters[a]) > workHours(clusters[b]) })

	for _, c := range clusters {
		work := workHours(c)
		drive := driveThrough(req.Start, c, tm)
		toDest := tm.Between(c[len(c)-1].Location, req.Dest.Location)
		if work+drive+toDest+req.Dest.Hours <= req.AvailableHours+1e-9 {
			return Result{
				Jobs:       c,
				WorkHours:  work,
				DriveHours: drive,
				Reason:     fmt.Sprintf("cluster of %d jobs (%.1fh) fits with destination", len(c), work),
			}
		}
	}

	if req.Dest.CanBump(req.Day) {
		for _, c := range clusters {
			work := workHours(c)
			drive := driveThrough(req.Start, c, tm)
			if work+drive <= req.AvailableHours+1e-9 {
				return Result{
					Jobs:            c,
					BumpDestination: true,
					WorkHours:       work,
					DriveHours:      drive,
					Reason:          fmt.Sprintf("bumping destination, doing %d corridor jobs (%.1fh)", len(c), work),
				}
			}
		}
	}

	var fit []model.Job
	used, work, drive := 0.0, 0.0, 0.0
	prev := req.Start
	for _, j := range ordered {
		driveTo := tm.Between(prev, j.Location)
		toDest := tm.Between(j.Location, req.Dest.Location)
		if used+driveTo+j.Duration+toDest+req.Dest.Hours <= req.AvailableHours+1e-9 {
			fit = append(fit, j)
			used += driveTo + j.Duration
			work += j.Duration
			drive += driveTo
			prev = j.Location
		}
	}
	return Result{
		Jobs:       fit,
		WorkHours:  work,
		DriveHours: drive,
		Reason:     fmt.Sprintf("fitted %d jobs around fixed destination", len(fit)),
	}
}
