// Package region aggregates a technician's job pool by region and picks the
// region to focus on for a week.
package region

import (
	"fmt"
	"sort"
	"time"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
)

// Score weights.
const (
	PriorityWeight      = 100.0
	RecurringWeight     = 50.0
	HotelFullBonus      = 50.0
	HotelPartialPenalty = -200.0
	EfficiencyWeight    = 10.0
	UrgencyBonus        = 30.0

	// HotelWorthHours is two full days of work.
	HotelWorthHours = 16.0
	// UrgentAvgDays is the average days-until-due below which a region gets the urgency bonus.
	UrgentAvgDays = 14.0
)

// Score applies the additive region heuristic to precomputed aggregates.
func Score(r model.Region) float64 {
	score := PriorityWeight*float64(r.PriorityCount) + RecurringWeight*float64(r.RecurringCount)
	if r.RequiresHotel {
		if r.TotalWorkHours >= HotelWorthHours {
			score += HotelFullBonus
		} else {
			score += HotelPartialPenalty
		}
	}
	if r.DistanceMiles > 0 {
		score += EfficiencyWeight * float64(r.JobCount) / r.DistanceMiles
	}
	if r.DatedCount > 0 && r.AvgDaysUntilDue < UrgentAvgDays {
		score += UrgencyBonus
	}
	return score
}

// Select scores every region and returns the highest. Ties keep the first
// region in input order. ok is false for an empty input.
func Select(regions []model.Region) (best model.Region, scored []model.Region, ok bool) {
	scored = make([]model.Region, len(regions))
	for i, r := range regions {
		r.Score = Score(r)
		scored[i] = r
		if !ok || r.Score > best.Score {
			best, ok = r, true
		}
	}
	return best, scored, ok
}

// Aggregate groups jobs by Job.Region and computes the scoring inputs.
// centers supplies each region's representative point; a region without one
// uses the centroid of its jobs. Jobs without a region are ignored, and only
// dated jobs count toward AvgDaysUntilDue.
func Aggregate(jobs []model.Job, home geo.Point, asOf time.Time, centers map[string]model.RegionInfo, hotelMiles float64) []model.Region {
	type acc struct {
		r      model.Region
		daySum int
		latSum float64
		lngSum float64
	}
	byName := map[string]*acc{}
	var names []string
	for _, j := range jobs {
		if j.Region == "" {
			continue
		}
		a := byName[j.Region]
		if a == nil {
			a = &acc{r: model.Region{Name: j.Region}}
			byName[j.Region] = a
			names = append(names, j.Region)
		}
		a.r.JobCount++
		a.r.TotalWorkHours += j.Duration
		if j.IsRecurringSite {
			a.r.RecurringCount++
		}
		if j.IsPriority() {
			a.r.PriorityCount++
		}
		if !j.DueDate.IsZero() {
			a.r.DatedCount++
			a.daySum += j.DaysUntilDue(asOf)
		}
		a.latSum += j.Location.Lat
		a.lngSum += j.Location.Lng
	}
	out := make([]model.Region, 0, len(names))
	for _, name := range names {
		a := byName[name]
		r := a.r
		if info, ok := centers[name]; ok && !info.Center.IsZero() {
			r.Center = info.Center
			r.Adjacent = info.Adjacent
		} else {
			n := float64(r.JobCount)
			r.Center = geo.Point{Lat: a.latSum / n, Lng: a.lngSum / n}
			if ok {
				r.Adjacent = info.Adjacent
			}
		}
		r.DistanceMiles = geo.DistanceMiles(home, r.Center)
		r.RequiresHotel = r.DistanceMiles > hotelMiles
		if r.DatedCount > 0 {
			r.AvgDaysUntilDue = float64(a.daySum) / float64(r.DatedCount)
		}
		out = append(out, r)
	}
	return out
}

// Ranked returns regions ordered by score, highest first, stable on ties.
func Ranked(scored []model.Region) []model.Region {
	out := append([]model.Region(nil), scored...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// SuggestAdjacent names up to three adjacent regions of focus for a week that
// fell short of its hour target.
func SuggestAdjacent(focus model.Region, scheduled, target float64) (string, bool) {
	if scheduled >= target || len(focus.Adjacent) == 0 {
		return "", false
	}
	adj := focus.Adjacent
	if len(adj) > 3 {
		adj = adj[:3]
	}
	msg := "Consider adding nearby regions: "
	for i, a := range adj {
		if i > 0 {
			msg += ", "
		}
		msg += a
	}
	return fmt.Sprintf("%s (%.1fh short of %.0fh target)", msg, target-scheduled, target), true
}
