package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fieldsched/internal/config"
	"fieldsched/internal/metrics"
	"fieldsched/internal/planner"
	"fieldsched/internal/store"
	"fieldsched/internal/webhooks"
)

type Server struct {
	Store   store.Store
	Planner *planner.Planner
	Pub     *webhooks.Publisher
	Broker  EventBroker
	Log     *zap.Logger
	Limiter *rate.Limiter
	Config  config.Config

	validate *validator.Validate
}

// NewServer wires the planner, publisher and progress broker around st. A
// Redis broker is used when REDIS_URL is set and reachable.
func NewServer(cfg config.Config, st store.Store, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL, log)
		if err != nil {
			log.Warn("redis broker unavailable, using in-process broker", zap.Error(err))
		} else {
			broker = rb
		}
	}
	p := planner.New(st, st, cfg.Scheduler, log.Named("planner"), planner.WithRecorder(metrics.Scheduler{}))
	return &Server{
		Store:    st,
		Planner:  p,
		Pub:      webhooks.NewPublisher(st, log.Named("webhooks")),
		Broker:   broker,
		Log:      log,
		Limiter:  rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst),
		Config:   cfg,
		validate: newValidator(),
	}, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Log.Named("webhooks"), s.Config.WebhookMaxAttempts, s.Config.WebhookInterval)
}

// Routes returns the full HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Scheduling
	mux.Handle("/v1/schedules/build", s.rateLimit(http.HandlerFunc(s.BuildHandler)))
	mux.Handle("/v1/schedules/batch", s.rateLimit(http.HandlerFunc(s.BatchHandler)))
	mux.HandleFunc("/v1/schedules/events", s.ScheduleEventsHandler)
	mux.HandleFunc("/v1/schedules/ws", s.ScheduleWSHandler)
	mux.HandleFunc("/v1/technicians/", s.TechnicianScheduleHandler) // /v1/technicians/{id}/schedule
	mux.HandleFunc("/v1/regions/scores", s.RegionScoresHandler)

	// Webhooks
	mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)

	// Ops
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/build", s.DebugJSON)

	return s.logMiddleware(mux)
}

// Close releases the progress broker's connections.
func (s *Server) Close() error {
	if c, ok := s.Broker.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

const readyTimeout = 500 * time.Millisecond
