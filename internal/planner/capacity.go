package planner

import (
	"time"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
	"fieldsched/internal/route"
)

// AnalyzeDay derives a day's capacity from its committed rows, driven in
// sequence from start.
func AnalyzeDay(date time.Time, rows []model.ScheduledJob, start geo.Point, maxHours float64, tm geo.TravelModel) model.DayCapacity {
	dc := model.DayCapacity{Date: model.Day(date)}
	prev, prevSite := start, ""
	for _, r := range rows {
		travel := tm.Hours(prevSite, prev, r.SiteName, r.Location)
		r.Source = model.SourceExisting
		r.TravelHours = travel
		r.TotalHours = travel + r.Duration
		dc.HoursScheduled += r.TotalHours
		dc.Existing = append(dc.Existing, r)
		prev, prevSite = r.Location, r.SiteName
	}
	if len(dc.Existing) > 0 {
		last := prev
		dc.LastLocation = &last
	}
	dc.HoursAvailable = maxHours - dc.HoursScheduled
	if dc.HoursAvailable < 0 {
		dc.HoursAvailable = 0
	}
	dc.PrimaryRegion = route.MajorityRegion(dc.Existing)
	return dc
}
