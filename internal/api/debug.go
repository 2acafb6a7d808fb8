package api

import (
	"net/http"
	"time"

	"fieldsched/internal/buildinfo"
)

// DebugJSON reports the build stamp and non-secret settings.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":               cfg.Port,
			"env":                cfg.Env,
			"rateRps":            cfg.RateRPS,
			"rateBurst":          cfg.RateBurst,
			"webhookMaxAttempts": cfg.WebhookMaxAttempts,
			"batchConcurrency":   cfg.BatchConcurrency,
			"hasDatabaseUrl":     cfg.DatabaseURL != "",
			"hasRedisUrl":        cfg.RedisURL != "",
			"scheduler":          cfg.Scheduler,
		},
	})
}
