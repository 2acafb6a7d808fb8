package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu       sync.Mutex
	techs    map[int64]model.Technician
	jobs     []model.Job                        // insertion order
	allowed  map[int64]map[int64]bool           // technician -> work orders; absent = all
	schedule map[int64]model.ScheduledJob       // work order -> committed row
	timeOff  map[int64]map[string]model.TimeOff // technician -> date -> absence
	regions  map[string]model.RegionInfo
	visits   map[int64]time.Time // site -> last completed visit
	travel   map[geo.SitePair]float64
	subs     []model.Subscription
	// Webhooks queue state
	deliveries map[string]*memDelivery
	order      []string
	dlq        []WebhookDelivery
}

func NewMemory() *Memory {
	return &Memory{
		techs:      map[int64]model.Technician{},
		allowed:    map[int64]map[int64]bool{},
		schedule:   map[int64]model.ScheduledJob{},
		timeOff:    map[int64]map[string]model.TimeOff{},
		regions:    map[string]model.RegionInfo{},
		visits:     map[int64]time.Time{},
		travel:     map[geo.SitePair]float64{},
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with delivery bookkeeping
type memDelivery struct {
	WebhookDelivery
	LatencyMs   int
	DeliveredAt *time.Time
}

// Seeding

func (m *Memory) PutTechnician(t model.Technician) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.techs[t.ID] = t
}

// PutJobs adds or replaces jobs by work order.
func (m *Memory) PutJobs(jobs ...model.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range jobs {
		replaced := false
		for i := range m.jobs {
			if m.jobs[i].WorkOrder == j.WorkOrder {
				m.jobs[i] = j
				replaced = true
				break
			}
		}
		if !replaced {
			m.jobs = append(m.jobs, j)
		}
	}
}

// Allow restricts a technician to the given work orders. Technicians never
// passed to Allow may do every job.
func (m *Memory) Allow(technicianID int64, workOrders ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.allowed[technicianID]
	if set == nil {
		set = map[int64]bool{}
		m.allowed[technicianID] = set
	}
	for _, wo := range workOrders {
		set[wo] = true
	}
}

func (m *Memory) PutRegion(r model.RegionInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions[r.Name] = r
}

func (m *Memory) PutTimeOff(technicianID int64, date time.Time, t model.TimeOff) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byDate := m.timeOff[technicianID]
	if byDate == nil {
		byDate = map[string]model.TimeOff{}
		m.timeOff[technicianID] = byDate
	}
	t.Off = true
	byDate[date.Format(model.DateLayout)] = t
}

func (m *Memory) RecordVisit(siteID int64, on time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on.After(m.visits[siteID]) {
		m.visits[siteID] = model.Day(on)
	}
}

func (m *Memory) PutTravel(fromSite, toSite string, hours float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.travel[geo.SitePair{From: fromSite, To: toSite}] = hours
}

// PutScheduled seeds committed rows.
func (m *Memory) PutScheduled(rows ...model.ScheduledJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.schedule[r.WorkOrder] = r
	}
}

// Providers

func (m *Memory) Jobs(ctx context.Context, q JobQuery) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	regions := map[string]bool{}
	for _, r := range q.Regions {
		regions[r] = true
	}
	set := m.allowed[q.TechnicianID]
	out := []model.Job{}
	for _, j := range m.jobs {
		if set != nil && !set[j.WorkOrder] {
			continue
		}
		if _, ok := m.schedule[j.WorkOrder]; ok {
			continue
		}
		if len(regions) > 0 && !regions[j.Region] {
			continue
		}
		if q.SOW != "" && !strings.EqualFold(j.SOW, q.SOW) {
			continue
		}
		if !jobInWindow(j, q.From, q.To) {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func jobInWindow(j model.Job, from, to time.Time) bool {
	if j.DueDate.IsZero() {
		return true
	}
	if !to.IsZero() && model.Day(j.DueDate).After(model.Day(to)) {
		return false
	}
	if j.IsRecurringSite && !from.IsZero() && model.Day(j.DueDate).Before(model.Day(from)) {
		return false
	}
	return true
}

func (m *Memory) Technician(ctx context.Context, id int64) (model.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.techs[id]
	if !ok {
		return model.Technician{}, fmt.Errorf("technician %d: %w", id, ErrNotFound)
	}
	return t, nil
}

func (m *Memory) ExistingSchedule(ctx context.Context, technicianID int64, from, to time.Time) ([]model.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, hi := model.Day(from), model.Day(to)
	out := []model.ScheduledJob{}
	for _, r := range m.schedule {
		d := model.Day(r.Date)
		if r.TechnicianID != technicianID || d.Before(lo) || d.After(hi) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].WorkOrder < out[j].WorkOrder
	})
	return out, nil
}

func (m *Memory) TimeOff(ctx context.Context, technicianID int64, date time.Time) (model.TimeOff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeOff[technicianID][date.Format(model.DateLayout)], nil
}

func (m *Memory) Region(ctx context.Context, name string) (model.RegionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[name]
	if !ok {
		return model.RegionInfo{}, fmt.Errorf("region %q: %w", name, ErrNotFound)
	}
	return r, nil
}

func (m *Memory) SiteFreshness(ctx context.Context, siteIDs []int64, asOf time.Time) (map[int64]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[int64]int{}
	for _, id := range siteIDs {
		last, ok := m.visits[id]
		if !ok || last.After(asOf) {
			continue
		}
		out[id] = model.DaysBetween(last, asOf)
	}
	return out, nil
}

func (m *Memory) TravelMatrix(ctx context.Context, sites []string) (map[geo.SitePair]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, s := range sites {
		want[s] = true
	}
	out := map[geo.SitePair]float64{}
	for k, v := range m.travel {
		if want[k.From] && want[k.To] {
			out[k] = v
		}
	}
	return out, nil
}

// CommitWeek writes the new jobs of week. Rows of bumped work orders owned by
// the same technician are replaced; any other existing row is a conflict and
// nothing is written.
func (m *Memory) CommitWeek(ctx context.Context, week model.WeekSchedule) (string, error) {
	rows, err := commitRows(week)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bumped := map[int64]bool{}
	for _, wo := range week.Bumped {
		if r, ok := m.schedule[wo]; ok && r.TechnicianID == week.TechnicianID {
			bumped[wo] = true
		}
	}
	for _, r := range rows {
		if _, ok := m.schedule[r.WorkOrder]; ok && !bumped[r.WorkOrder] {
			return "", &ConflictError{WorkOrder: r.WorkOrder}
		}
	}
	for wo := range bumped {
		delete(m.schedule, wo)
	}
	for _, r := range rows {
		m.schedule[r.WorkOrder] = r
	}
	return uuid.New().String(), nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

// Subscriptions

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Secret: req.Secret, Events: req.Events}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) SubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

// Webhook deliveries

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending, NextAttemptAt: time.Now()}}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := time.Now()
		d.DeliveredAt = &now
	} else {
		d.Status = DeliveryRetry
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(1 * time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	m.dlq = append(m.dlq, d.WebhookDelivery)
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
