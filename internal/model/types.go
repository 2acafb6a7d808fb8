package model

import (
	"strings"
	"time"

	"fieldsched/internal/geo"
)

// Core scheduling types shared by the engine, the store and the API.

// SOWNightTest is the scope-of-work tag of night-window jobs.
const SOWNightTest = "NT"

// PriorityUrgent is the priority category treated as a priority job
// regardless of rank.
const PriorityUrgent = "Urgent"

// DefaultPriorityRank is used when the source row has no rank.
const DefaultPriorityRank = 5

// Job is one schedulable work order. Eligibility for a technician is
// resolved upstream; a Job in a pool is always allowed for that technician.
type Job struct {
	WorkOrder       int64     `json:"workOrder"`
	SiteID          int64     `json:"siteId,omitempty"`
	SiteName        string    `json:"siteName"`
	SiteCity        string    `json:"siteCity,omitempty"`
	Location        geo.Point `json:"location"`
	SOW             string    `json:"sow,omitempty"`
	DueDate         time.Time `json:"dueDate"`
	Priority        string    `json:"priority,omitempty"`
	PriorityRank    int       `json:"priorityRank,omitempty"`
	Duration        float64   `json:"duration"`
	IsNight         bool      `json:"isNight,omitempty"`
	IsRecurringSite bool      `json:"isRecurringSite,omitempty"`
	Region          string    `json:"region,omitempty"`
	Zone            string    `json:"zone,omitempty"`
	Cluster         string    `json:"cluster,omitempty"`
}

// Night reports whether the job must run in the evening window.
func (j Job) Night() bool {
	return j.IsNight || strings.EqualFold(strings.TrimSpace(j.SOW), SOWNightTest)
}

// IsPriority reports whether the job counts as a priority job (rank 1-2 or Urgent).
func (j Job) IsPriority() bool {
	if strings.EqualFold(j.Priority, PriorityUrgent) {
		return true
	}
	return j.PriorityRank > 0 && j.PriorityRank <= 2
}

// DaysUntilDue returns whole days from on to the due date; negative when overdue.
func (j Job) DaysUntilDue(on time.Time) int {
	if j.DueDate.IsZero() {
		return 0
	}
	return DaysBetween(on, j.DueDate)
}

// EligibleOn reports whether the job may be done on day. A recurring-site job
// is only valid on its due date; any other job is valid up to and including
// its due date. Undated jobs are valid every day.
func (j Job) EligibleOn(day time.Time) bool {
	if j.DueDate.IsZero() {
		return !j.IsRecurringSite
	}
	if j.IsRecurringSite {
		return SameDay(j.DueDate, day)
	}
	return !Day(day).After(Day(j.DueDate))
}

// Technician is the resource being scheduled.
type Technician struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Home           geo.Point `json:"home"`
	MaxDailyHours  float64   `json:"maxDailyHours"`
	MaxWeeklyHours float64   `json:"maxWeeklyHours"`
	NightEligible  bool      `json:"nightEligible"`
	Active         bool      `json:"active"`
}

// Placement phases recorded on a ScheduledJob.
const (
	SourceExisting = "existing"
	SourceFixed    = "fixed"
	SourceCorridor = "corridor"
	SourceAnchor   = "anchor"
	SourceFiller   = "filler"
	SourceNight    = "night"
)

// ScheduledJob is a Job bound to a technician, a date and a position in that
// day's sequence.
type ScheduledJob struct {
	Job
	TechnicianID int64     `json:"technicianId"`
	Date         time.Time `json:"date"`
	Seq          int       `json:"seq"`
	Source       string    `json:"source"`
	TravelHours  float64   `json:"travelHours"`
	TotalHours   float64   `json:"totalHours"`
	DepartAt     time.Time `json:"departAt"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
}

// TimeOff describes an approved absence covering one day.
type TimeOff struct {
	Off    bool    `json:"off"`
	Hours  float64 `json:"hours"` // hours still workable; <= 0 means the whole day
	Reason string  `json:"reason,omitempty"`
}

// FullDay reports whether the technician is unavailable all day.
func (t TimeOff) FullDay() bool { return t.Off && t.Hours <= 0 }

// Limit caps max by the workable hours left after the absence.
func (t TimeOff) Limit(max float64) float64 {
	if !t.Off {
		return max
	}
	if t.Hours <= 0 {
		return 0
	}
	if t.Hours < max {
		return t.Hours
	}
	return max
}

// DayCapacity is derived per technician per day from committed work.
type DayCapacity struct {
	Date           time.Time      `json:"date"`
	Existing       []ScheduledJob `json:"existing"`
	HoursScheduled float64        `json:"hoursScheduled"`
	HoursAvailable float64        `json:"hoursAvailable"`
	LastLocation   *geo.Point     `json:"lastLocation,omitempty"`
	PrimaryRegion  string         `json:"primaryRegion,omitempty"`
}

// RegionInfo is region metadata from the store.
type RegionInfo struct {
	Name     string    `json:"name"`
	Center   geo.Point `json:"center"`
	Adjacent []string  `json:"adjacent,omitempty"`
}

// Region carries per-region aggregates and the derived score.
type Region struct {
	Name            string    `json:"name"`
	Center          geo.Point `json:"center"`
	JobCount        int       `json:"jobCount"`
	RecurringCount  int       `json:"recurringCount"`
	PriorityCount   int       `json:"priorityCount"`
	DistanceMiles   float64   `json:"distanceMiles"`
	RequiresHotel   bool      `json:"requiresHotel"`
	DatedCount      int       `json:"datedCount"`
	AvgDaysUntilDue float64   `json:"avgDaysUntilDue"`
	TotalWorkHours  float64   `json:"totalWorkHours"`
	Score           float64   `json:"score"`
	Adjacent        []string  `json:"adjacent,omitempty"`
}

// DaySchedule is one weekday of a built week.
type DaySchedule struct {
	Date              time.Time      `json:"date"`
	Weekday           string         `json:"weekday"`
	Existing          []ScheduledJob `json:"existing,omitempty"`
	Jobs              []ScheduledJob `json:"jobs"`
	WorkHours         float64        `json:"workHours"`
	DriveHours        float64        `json:"driveHours"`
	DriveHomeHours    float64        `json:"driveHomeHours"`
	TotalHours        float64        `json:"totalHours"`
	EffectiveMaxHours float64        `json:"effectiveMaxHours"`
	StartLocation     geo.Point      `json:"startLocation"`
	EndLocation       geo.Point      `json:"endLocation"`
	HotelStay         bool           `json:"hotelStay"`
	HotelLocation     *geo.Point     `json:"hotelLocation,omitempty"`
	HotelCity         string         `json:"hotelCity,omitempty"`
	RecoveryDay       bool           `json:"recoveryDay,omitempty"`
	DayOff            bool           `json:"dayOff,omitempty"`
	DayOffReason      string         `json:"dayOffReason,omitempty"`
	NightJob          bool           `json:"nightJob,omitempty"`
	Region            string         `json:"region,omitempty"`
}

// AllJobs returns committed and newly placed jobs in day order.
func (d DaySchedule) AllJobs() []ScheduledJob {
	out := make([]ScheduledJob, 0, len(d.Existing)+len(d.Jobs))
	out = append(out, d.Existing...)
	return append(out, d.Jobs...)
}

// Warning reason codes.
const (
	WarnFixedJobMissing      = "fixed_job_missing"
	WarnFixedJobOverCapacity = "fixed_job_over_capacity"
	WarnNoJobsInRegion       = "no_jobs_in_region"
	WarnBelowTargetHours     = "below_target_hours"
	WarnJobsUnscheduled      = "jobs_unscheduled"
	WarnDestinationBumped    = "destination_bumped"
	WarnWeeklyCapReached     = "weekly_cap_reached"
	WarnNoCorridorJobs       = "no_corridor_jobs"
)

// Warning is an informational note produced while building a week.
type Warning struct {
	Date      string `json:"date,omitempty"`
	WorkOrder int64  `json:"workOrder,omitempty"`
	Reason    string `json:"reason"`
	Note      string `json:"note,omitempty"`
}

// WeekSchedule is the output of one technician-week build.
type WeekSchedule struct {
	BuildID       string        `json:"buildId"`
	TechnicianID  int64         `json:"technicianId"`
	WeekStart     time.Time     `json:"weekStart"`
	Strategy      string        `json:"strategy"`
	RegionFocus   string        `json:"regionFocus,omitempty"`
	Regions       []Region      `json:"regions,omitempty"`
	Days          []DaySchedule `json:"days"`
	OutsideWeek   []DaySchedule `json:"outsideWeek,omitempty"`
	TotalHours    float64       `json:"totalHours"`
	JobsScheduled int           `json:"jobsScheduled"`
	JobsRemaining int           `json:"jobsRemaining"`
	Bumped        []int64       `json:"bumped,omitempty"`
	Warnings      []Warning     `json:"warnings"`
	Suggestions   []string      `json:"suggestions"`
}

// NewJobs returns every newly placed job of the week, outside-week days included.
func (w WeekSchedule) NewJobs() []ScheduledJob {
	var out []ScheduledJob
	for _, d := range w.Days {
		out = append(out, d.Jobs...)
	}
	for _, d := range w.OutsideWeek {
		out = append(out, d.Jobs...)
	}
	return out
}
