package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fieldsched/internal/geo"
	"fieldsched/internal/model"
)

//go:embed schema.sql
var schemaSQL string

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded schema. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const jobColumns = `j.work_order, s.id, s.name, s.city, s.lat, s.lng, j.sow, j.due_date, j.priority, j.priority_rank, j.duration_hours, j.is_night, s.is_recurring, s.region, s.zone, s.cluster`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner, extra ...any) (model.Job, error) {
	var j model.Job
	var due sql.NullTime
	dest := []any{&j.WorkOrder, &j.SiteID, &j.SiteName, &j.SiteCity, &j.Location.Lat, &j.Location.Lng, &j.SOW, &due, &j.Priority, &j.PriorityRank, &j.Duration, &j.IsNight, &j.IsRecurringSite, &j.Region, &j.Zone, &j.Cluster}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return j, err
	}
	if due.Valid {
		j.DueDate = model.Day(due.Time)
	}
	return j, nil
}

func (p *Postgres) Jobs(ctx context.Context, q JobQuery) ([]model.Job, error) {
	regions := q.Regions
	if regions == nil {
		regions = []string{}
	}
	var to, from any
	if !q.To.IsZero() {
		to = model.Day(q.To)
	}
	if !q.From.IsZero() {
		from = model.Day(q.From)
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+jobColumns+`
        FROM jobs j JOIN sites s ON s.id = j.site_id
        LEFT JOIN schedule sc ON sc.work_order = j.work_order
        WHERE sc.work_order IS NULL
          AND (NOT EXISTS (SELECT 1 FROM job_eligibility e WHERE e.technician_id = $1)
               OR EXISTS (SELECT 1 FROM job_eligibility e WHERE e.technician_id = $1 AND e.work_order = j.work_order))
          AND (j.due_date IS NULL OR $2::date IS NULL OR j.due_date <= $2::date)
          AND (NOT s.is_recurring OR j.due_date IS NULL OR $3::date IS NULL OR j.due_date >= $3::date)
          AND (COALESCE(cardinality($4::text[]), 0) = 0 OR s.region = ANY($4::text[]))
          AND ($5 = '' OR lower(j.sow) = lower($5))
        ORDER BY j.work_order`, q.TechnicianID, to, from, regions, q.SOW)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (p *Postgres) Technician(ctx context.Context, id int64) (model.Technician, error) {
	var t model.Technician
	row := p.db.QueryRowContext(ctx, `SELECT id, name, home_lat, home_lng, max_daily_hours, max_weekly_hours, night_eligible, active FROM technicians WHERE id=$1`, id)
	if err := row.Scan(&t.ID, &t.Name, &t.Home.Lat, &t.Home.Lng, &t.MaxDailyHours, &t.MaxWeeklyHours, &t.NightEligible, &t.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, fmt.Errorf("technician %d: %w", id, ErrNotFound)
		}
		return t, err
	}
	return t, nil
}

func (p *Postgres) ExistingSchedule(ctx context.Context, technicianID int64, from, to time.Time) ([]model.ScheduledJob, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+jobColumns+`, sc.date, sc.seq, sc.source, sc.travel_hours, sc.total_hours, sc.start_time, sc.end_time
        FROM schedule sc JOIN jobs j ON j.work_order = sc.work_order JOIN sites s ON s.id = j.site_id
        WHERE sc.technician_id=$1 AND sc.date BETWEEN $2::date AND $3::date
        ORDER BY sc.date, sc.seq, sc.work_order`, technicianID, model.Day(from), model.Day(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ScheduledJob{}
	for rows.Next() {
		var r model.ScheduledJob
		var start, end sql.NullTime
		j, err := scanJob(rows, &r.Date, &r.Seq, &r.Source, &r.TravelHours, &r.TotalHours, &start, &end)
		if err != nil {
			return nil, err
		}
		r.Job = j
		r.TechnicianID = technicianID
		r.Date = model.Day(r.Date)
		if start.Valid {
			r.StartTime = start.Time
		}
		if end.Valid {
			r.EndTime = end.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) TimeOff(ctx context.Context, technicianID int64, date time.Time) (model.TimeOff, error) {
	var t model.TimeOff
	err := p.db.QueryRowContext(ctx, `SELECT hours, reason FROM time_off WHERE technician_id=$1 AND date=$2::date`, technicianID, model.Day(date)).Scan(&t.Hours, &t.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TimeOff{}, nil
	}
	if err != nil {
		return t, err
	}
	t.Off = true
	return t, nil
}

func (p *Postgres) Region(ctx context.Context, name string) (model.RegionInfo, error) {
	r := model.RegionInfo{Name: name}
	var adj []byte
	err := p.db.QueryRowContext(ctx, `SELECT center_lat, center_lng, adjacent FROM regions WHERE name=$1`, name).Scan(&r.Center.Lat, &r.Center.Lng, &adj)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("region %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return r, err
	}
	if len(adj) > 0 {
		if err := json.Unmarshal(adj, &r.Adjacent); err != nil {
			return r, fmt.Errorf("region %q adjacent: %w", name, err)
		}
	}
	return r, nil
}

func (p *Postgres) SiteFreshness(ctx context.Context, siteIDs []int64, asOf time.Time) (map[int64]int, error) {
	out := map[int64]int{}
	if len(siteIDs) == 0 {
		return out, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT site_id, max(visited_on) FROM site_visits WHERE site_id = ANY($1::bigint[]) AND visited_on <= $2::date GROUP BY site_id`, siteIDs, model.Day(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var last time.Time
		if err := rows.Scan(&id, &last); err != nil {
			return nil, err
		}
		out[id] = model.DaysBetween(last, asOf)
	}
	return out, rows.Err()
}

func (p *Postgres) TravelMatrix(ctx context.Context, sites []string) (map[geo.SitePair]float64, error) {
	out := map[geo.SitePair]float64{}
	if len(sites) == 0 {
		return out, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT from_site, to_site, hours FROM travel_times WHERE from_site = ANY($1::text[]) AND to_site = ANY($1::text[])`, sites)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var k geo.SitePair
		var h float64
		if err := rows.Scan(&k.From, &k.To, &h); err != nil {
			return nil, err
		}
		out[k] = h
	}
	return out, rows.Err()
}

// CommitWeek inserts the week in one transaction. Bumped rows of the same
// technician are deleted first; any other existing row aborts the commit.
func (p *Postgres) CommitWeek(ctx context.Context, week model.WeekSchedule) (string, error) {
	rows, err := commitRows(week)
	if err != nil {
		return "", err
	}
	batch := uuid.New()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func(){ _ = tx.Rollback() }()

	if len(week.Bumped) > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule WHERE technician_id=$1 AND work_order = ANY($2::bigint[])`, week.TechnicianID, week.Bumped); err != nil {
			return "", err
		}
	}
	for _, r := range rows {
		res, err := tx.ExecContext(ctx, `INSERT INTO schedule (work_order, technician_id, date, seq, source, travel_hours, total_hours, start_time, end_time, batch_id)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
            ON CONFLICT (work_order) DO NOTHING`,
			r.WorkOrder, week.TechnicianID, model.Day(r.Date), r.Seq, r.Source, r.TravelHours, r.TotalHours, nullTime(r.StartTime), nullTime(r.EndTime), batch)
		if err != nil {
			return "", err
		}
		if n, err := res.RowsAffected(); err != nil {
			return "", err
		} else if n == 0 {
			return "", &ConflictError{WorkOrder: r.WorkOrder}
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return batch.String(), nil
}

// Subscriptions

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`, id, req.URL, ev, nullIfEmpty(req.Secret))
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) SubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	ev, _ := json.Marshal([]string{eventType})
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE events @> $1::jsonb`, string(ev))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Webhook deliveries

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
        ON CONFLICT (event_type, url, dedup_key) DO NOTHING`, id, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
	if err != nil {
		return "", err
	}
	return id, nil
}

const deliveryColumns = `id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts, next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0)`

func scanDelivery(row scanner) (WebhookDelivery, error) {
	var d WebhookDelivery
	err := row.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts, &d.NextAttemptAt, &d.LastError, &d.ResponseCode)
	return d, err
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+deliveryColumns+`
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(1 * time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$1, next_attempt_at=$2, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$3`, nullIfEmpty(lastError), *nextAttemptAt, id, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(){ _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs); err != nil {
		return err
	}
	// move to DLQ
	if _, err := tx.ExecContext(ctx, `INSERT INTO webhook_dlq (delivery_id, event_type, url, secret, payload, attempts, last_error)
        SELECT id, event_type, url, secret, payload, attempts, $2 FROM webhook_deliveries WHERE id=$1`, id, nullIfEmpty(lastError)); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE ($1 = '' OR status = $1) ORDER BY created_at LIMIT $2`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// computeDedupKey uses the event id when the payload carries one, else a
// short content hash.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

// Helpers
func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
func nullTime(t time.Time) any { if t.IsZero() { return nil }; return t }
