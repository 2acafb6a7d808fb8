package route

import (
	"math"
	"strings"
	"time"

	"fieldsched/internal/model"
)

// candidate is a job evaluated from the current position of the day.
type candidate struct {
	job    model.Job
	travel float64
	tier   int
}

func priorityKey(j model.Job) int {
	if strings.EqualFold(j.Priority, model.PriorityUrgent) {
		return 0
	}
	if j.PriorityRank <= 0 {
		return model.DefaultPriorityRank
	}
	return j.PriorityRank
}

func dueKey(j model.Job, day time.Time) int {
	if j.DueDate.IsZero() {
		return math.MaxInt32
	}
	return j.DaysUntilDue(day)
}

// better orders candidates by tier, then priority, days until due, travel,
// duration and finally work order.
func better(a, b candidate, day time.Time) bool {
	if a.tier != b.tier {
		return a.tier < b.tier
	}
	if pa, pb := priorityKey(a.job), priorityKey(b.job); pa != pb {
		return pa < pb
	}
	if da, db := dueKey(a.job, day), dueKey(b.job, day); da != db {
		return da < db
	}
	if a.travel != b.travel {
		return a.travel < b.travel
	}
	if a.job.Duration != b.job.Duration {
		return a.job.Duration < b.job.Duration
	}
	return a.job.WorkOrder < b.job.WorkOrder
}

// IsAnchor reports whether j belongs to the anchor set. With a target scope of
// work only matching jobs anchor; otherwise priority and recurring-site jobs do.
func IsAnchor(j model.Job, targetSOW string) bool {
	if t := strings.TrimSpace(targetSOW); t != "" {
		return strings.EqualFold(strings.TrimSpace(j.SOW), t)
	}
	return j.IsPriority() || j.IsRecurringSite
}

// excludedOn reports whether the site name matches one of the last-weekday
// exclusions.
func excludedOn(j model.Job, lastWeekday bool, excluded []string) bool {
	if !lastWeekday {
		return false
	}
	name := strings.ToLower(j.SiteName)
	for _, s := range excluded {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" && strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// Filler tiers, best first.
const (
	tierCluster = iota
	tierNearby
	tierZone
	tierAny
)

func (st *dayState) fillerTier(c candidate) int {
	near := st.c.MaxDriveHours <= 0 || c.travel <= st.c.MaxDriveHours+eps
	switch {
	case near && c.job.Cluster != "" && st.clusters[c.job.Cluster]:
		return tierCluster
	case near:
		return tierNearby
	case st.zone != "" && c.job.Zone == st.zone:
		return tierZone
	}
	return tierAny
}
