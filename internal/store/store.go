package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
)

// JobQuery selects candidate jobs for one technician. Jobs due on or before To
// are returned; recurring-site jobs must also fall on or after From.
type JobQuery struct {
	TechnicianID int64
	From         time.Time
	To           time.Time
	Regions      []string
	SOW          string
}

// JobProvider returns unscheduled jobs the technician is allowed to do.
type JobProvider interface {
	Jobs(ctx context.Context, q JobQuery) ([]model.Job, error)
}

type TechnicianProvider interface {
	Technician(ctx context.Context, id int64) (model.Technician, error)
}

// ScheduleProvider returns committed rows ordered by date and sequence.
type ScheduleProvider interface {
	ExistingSchedule(ctx context.Context, technicianID int64, from, to time.Time) ([]model.ScheduledJob, error)
}

// TimeOffProvider returns the absence covering date; the zero value means available.
type TimeOffProvider interface {
	TimeOff(ctx context.Context, technicianID int64, date time.Time) (model.TimeOff, error)
}

type RegionProvider interface {
	Region(ctx context.Context, name string) (model.RegionInfo, error)
}

// FreshnessProvider returns, per site, whole days since the last completed
// visit as of asOf. Sites never visited are absent.
type FreshnessProvider interface {
	SiteFreshness(ctx context.Context, siteIDs []int64, asOf time.Time) (map[int64]int, error)
}

// TravelProvider returns measured drive hours between named sites.
type TravelProvider interface {
	TravelMatrix(ctx context.Context, sites []string) (map[geo.SitePair]float64, error)
}

// CommitSink persists a finished week. It rejects the whole week with
// ErrAlreadyScheduled when any new work order is already committed.
type CommitSink interface {
	CommitWeek(ctx context.Context, week model.WeekSchedule) (batchID string, err error)
}

// Providers is everything the planner reads.
type Providers interface {
	JobProvider
	TechnicianProvider
	ScheduleProvider
	TimeOffProvider
	RegionProvider
	FreshnessProvider
	TravelProvider
}

// Store is the persistence interface used by the API server.
type Store interface {
	Providers
	CommitSink

	Ping(ctx context.Context) error

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	SubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error)
}

var ErrNotFound = errors.New("not found")

// ErrAlreadyScheduled is returned by CommitWeek on a work-order conflict.
var ErrAlreadyScheduled = errors.New("work order already scheduled")

// ConflictError names the work order that blocked a commit.
type ConflictError struct {
	WorkOrder int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("work order %d already scheduled", e.WorkOrder)
}

func (e *ConflictError) Unwrap() error { return ErrAlreadyScheduled }

// commitRows flattens the new jobs of a week and rejects a week that places a
// work order twice.
func commitRows(week model.WeekSchedule) ([]model.ScheduledJob, error) {
	rows := week.NewJobs()
	seen := make(map[int64]bool, len(rows))
	for _, r := range rows {
		if seen[r.WorkOrder] {
			return nil, &ConflictError{WorkOrder: r.WorkOrder}
		}
		seen[r.WorkOrder] = true
	}
	return rows, nil
}
