package store

import (
	"fmt"
	"io"

	yaml "gopkg.in/yaml.v3"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
)

// Fixture is the YAML seed format of the in-memory store, used for local runs
// and demos.
type Fixture struct {
	Technicians []fixtureTech    `yaml:"technicians"`
	Jobs        []fixtureJob     `yaml:"jobs"`
	Regions     []fixtureRegion  `yaml:"regions"`
	TimeOff     []fixtureTimeOff `yaml:"timeOff"`
	Visits      []fixtureVisit   `yaml:"visits"`
	Scheduled   []fixtureRow     `yaml:"scheduled"`
}

type fixtureTech struct {
	ID             int64     `yaml:"id"`
	Name           string    `yaml:"name"`
	Home           geo.Point `yaml:"home"`
	MaxDailyHours  float64   `yaml:"maxDailyHours"`
	MaxWeeklyHours float64   `yaml:"maxWeeklyHours"`
	NightEligible  bool      `yaml:"nightEligible"`
	Active         *bool     `yaml:"active"`
	Jobs           []int64   `yaml:"jobs"` // eligible work orders; empty = all
}

type fixtureJob struct {
	WorkOrder    int64     `yaml:"workOrder"`
	SiteID       int64     `yaml:"siteId"`
	SiteName     string    `yaml:"siteName"`
	SiteCity     string    `yaml:"siteCity"`
	Location     geo.Point `yaml:"location"`
	SOW          string    `yaml:"sow"`
	Due          string    `yaml:"due"`
	Priority     string    `yaml:"priority"`
	PriorityRank int       `yaml:"priorityRank"`
	Duration     float64   `yaml:"duration"`
	Night        bool      `yaml:"night"`
	Recurring    bool      `yaml:"recurring"`
	Region       string    `yaml:"region"`
	Zone         string    `yaml:"zone"`
	Cluster      string    `yaml:"cluster"`
}

type fixtureRegion struct {
	Name     string    `yaml:"name"`
	Center   geo.Point `yaml:"center"`
	Adjacent []string  `yaml:"adjacent"`
}

type fixtureTimeOff struct {
	TechnicianID int64   `yaml:"technicianId"`
	Date         string  `yaml:"date"`
	Hours        float64 `yaml:"hours"`
	Reason       string  `yaml:"reason"`
}

type fixtureVisit struct {
	SiteID int64  `yaml:"siteId"`
	Date   string `yaml:"date"`
}

type fixtureRow struct {
	TechnicianID int64  `yaml:"technicianId"`
	WorkOrder    int64  `yaml:"workOrder"`
	Date         string `yaml:"date"`
	Seq          int    `yaml:"seq"`
}

// LoadFixture decodes a YAML fixture from r into m.
func (m *Memory) LoadFixture(r io.Reader) error {
	var f Fixture
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return fmt.Errorf("decode fixture: %w", err)
	}
	byWO := map[int64]model.Job{}
	for _, fj := range f.Jobs {
		if fj.Duration <= 0 {
			return fmt.Errorf("job %d: duration must be > 0", fj.WorkOrder)
		}
		j := model.Job{
			WorkOrder: fj.WorkOrder, SiteID: fj.SiteID, SiteName: fj.SiteName, SiteCity: fj.SiteCity,
			Location:  fj.Location, SOW: fj.SOW, Priority: fj.Priority, PriorityRank: fj.PriorityRank,
			Duration:  fj.Duration, IsNight: fj.Night, IsRecurringSite: fj.Recurring,
			Region:    fj.Region, Zone: fj.Zone, Cluster: fj.Cluster,
		}
		if fj.Due != "" {
			d, err := model.ParseDate(fj.Due)
			if err != nil {
				return fmt.Errorf("job %d: %w", fj.WorkOrder, err)
			}
			j.DueDate = d
		}
		byWO[j.WorkOrder] = j
		m.PutJobs(j)
	}
	for _, ft := range f.Technicians {
		active := ft.Active == nil || *ft.Active
		m.PutTechnician(model.Technician{ID: ft.ID, Name: ft.Name, Home: ft.Home, MaxDailyHours: ft.MaxDailyHours, MaxWeeklyHours: ft.MaxWeeklyHours, NightEligible: ft.NightEligible, Active: active})
		if len(ft.Jobs) > 0 {
			m.Allow(ft.ID, ft.Jobs...)
		}
	}
	for _, fr := range f.Regions {
		m.PutRegion(model.RegionInfo{Name: fr.Name, Center: fr.Center, Adjacent: fr.Adjacent})
	}
	for _, fo := range f.TimeOff {
		d, err := model.ParseDate(fo.Date)
		if err != nil {
			return fmt.Errorf("time off: %w", err)
		}
		m.PutTimeOff(fo.TechnicianID, d, model.TimeOff{Hours: fo.Hours, Reason: fo.Reason})
	}
	for _, fv := range f.Visits {
		d, err := model.ParseDate(fv.Date)
		if err != nil {
			return fmt.Errorf("visit: %w", err)
		}
		m.RecordVisit(fv.SiteID, d)
	}
	for _, fs := range f.Scheduled {
		j, ok := byWO[fs.WorkOrder]
		if !ok {
			return fmt.Errorf("scheduled work order %d: %w", fs.WorkOrder, ErrNotFound)
		}
		d, err := model.ParseDate(fs.Date)
		if err != nil {
			return fmt.Errorf("scheduled: %w", err)
		}
		m.PutScheduled(model.ScheduledJob{Job: j, TechnicianID: fs.TechnicianID, Date: d, Seq: fs.Seq, Source: model.SourceExisting, TotalHours: j.Duration})
	}
	return nil
}
