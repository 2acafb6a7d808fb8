package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fieldsched/internal/model"
	"fieldsched/internal/planner"
	"fieldsched/internal/store"
	"fieldsched/internal/webhooks"
)

const maxBody = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// build runs one week build, publishing progress, and commits it when asked.
func (s *Server) build(ctx context.Context, body model.BuildRequest) (model.BuildResponse, error) {
	req, err := planner.RequestFromDTO(body)
	if err != nil {
		return model.BuildResponse{}, err
	}
	req.Progress = func(ev model.ProgressEvent) { s.Broker.Publish(progressKey(ev.TechnicianID), ev) }
	ws, err := s.Planner.BuildWeek(ctx, req)
	if err != nil {
		return model.BuildResponse{}, err
	}
	resp := model.BuildResponse{Schedule: ws}
	if !body.Commit {
		s.emit(ctx, webhooks.EventScheduleBuilt, ws, "")
		return resp, nil
	}
	id, err := s.Planner.Commit(ctx, ws)
	if err != nil {
		return resp, err
	}
	resp.CommitID = id
	s.emit(ctx, webhooks.EventScheduleCommitted, ws, id)
	return resp, nil
}

func (s *Server) emit(ctx context.Context, eventType string, ws model.WeekSchedule, commitID string) {
	data := map[string]any{
		"buildId":       ws.BuildID,
		"technicianId":  ws.TechnicianID,
		"weekStart":     ws.WeekStart.Format(model.DateLayout),
		"jobsScheduled": ws.JobsScheduled,
		"totalHours":    ws.TotalHours,
		"bumped":        ws.Bumped,
	}
	if commitID != "" {
		data["commitId"] = commitID
	}
	if _, err := s.Pub.Emit(ctx, eventType, data); err != nil {
		s.Log.Warn("publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}

// BuildHandler handles POST /v1/schedules/build
func (s *Server) BuildHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body model.BuildRequest
	if err := decode(w, r, &body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := s.check(body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid build request", err.Error(), r.URL.Path)
		return
	}
	resp, err := s.build(r.Context(), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// BatchHandler handles POST /v1/schedules/batch. Items fail independently.
func (s *Server) BatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body model.BatchRequest
	if err := decode(w, r, &body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := s.check(body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid batch request", err.Error(), r.URL.Path)
		return
	}
	items := make([]model.BatchItem, len(body.Builds))
	g, ctx := errgroup.WithContext(r.Context())
	limit := s.Config.BatchConcurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for i, b := range body.Builds {
		g.Go(func() error {
			items[i].TechnicianID = b.TechnicianID
			resp, err := s.build(ctx, b)
			if err != nil {
				items[i].Error = err.Error()
				return nil
			}
			items[i].Schedule = &resp.Schedule
			items[i].CommitID = resp.CommitID
			return nil
		})
	}
	_ = g.Wait()
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// TechnicianScheduleHandler handles GET /v1/technicians/{id}/schedule?from=&to=
func (s *Server) TechnicianScheduleHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/technicians/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "schedule" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid technician id", parts[0], r.URL.Path)
		return
	}
	from, to, err := dateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"), time.Now())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid date range", err.Error(), r.URL.Path)
		return
	}
	if _, err := s.Store.Technician(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.Store.ExistingSchedule(r.Context(), id, from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"technicianId": id,
		"from":         from.Format(model.DateLayout),
		"to":           to.Format(model.DateLayout),
		"items":        rows,
	})
}

// dateRange defaults to Monday..Friday of the week containing now.
func dateRange(fromS, toS string, now time.Time) (time.Time, time.Time, error) {
	day := model.Day(now)
	from := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	to := from.AddDate(0, 0, 4)
	var err error
	if fromS != "" {
		if from, err = model.ParseDate(fromS); err != nil {
			return time.Time{}, time.Time{}, err
		}
		if toS == "" {
			to = from.AddDate(0, 0, 4)
		}
	}
	if toS != "" {
		if to, err = model.ParseDate(toS); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to %s is before from %s", to.Format(model.DateLayout), from.Format(model.DateLayout))
	}
	return from, to, nil
}

// RegionScoresHandler handles GET /v1/regions/scores?technicianId=&weekStart=
func (s *Server) RegionScoresHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	id, err := strconv.ParseInt(q.Get("technicianId"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid technicianId", q.Get("technicianId"), r.URL.Path)
		return
	}
	week, err := model.ParseDate(q.Get("weekStart"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid weekStart", err.Error(), r.URL.Path)
		return
	}
	regions, err := s.Planner.ScoreRegions(r.Context(), id, week)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if regions == nil {
		regions = []model.Region{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": regions})
}

// SubscriptionsHandler handles POST /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.SubscriptionRequest
	if err := decode(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := s.check(req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
		return
	}
	sub, err := s.Store.CreateSubscription(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries?status=&limit=
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := r.URL.Query().Get("status")
	switch status {
	case "", store.DeliveryPending, store.DeliveryRetry, store.DeliveryDelivered, store.DeliveryFailed:
	default:
		writeProblem(w, http.StatusBadRequest, "Invalid status", status, r.URL.Path)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, err := s.Store.ListWebhookDeliveries(r.Context(), status, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ScheduleEventsHandler streams build progress for one technician over SSE:
// GET /v1/schedules/events?technicianId=
func (s *Server) ScheduleEventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, err := strconv.ParseInt(r.URL.Query().Get("technicianId"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Missing technicianId", "", r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	key := progressKey(id)
	ch := s.Broker.Subscribe(key)
	defer s.Broker.Unsubscribe(key, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"technicianId\":%d,\"ts\":\"%s\"}\n\n", id, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			b, _ := json.Marshal(evt)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		case <-ticker.C:
			heartbeat()
		}
	}
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
