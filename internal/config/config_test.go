package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FIELDSCHED_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.Scheduler.HotelThresholdMiles != 90 || cfg.Scheduler.PreNightJobCap != 4 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "sched.yaml")
	body := []byte("port: \"9090\"\nscheduler:\n  hotelThresholdMiles: 120\n  fridayExcludedSites: [\"King Soopers\"]\n")
	if err := os.WriteFile(p, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7070")
	t.Setenv("RATE_RPS", "2.5")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("env should override yaml port, got %s", cfg.Port)
	}
	if cfg.Scheduler.HotelThresholdMiles != 120 || len(cfg.Scheduler.FridayExcludedSites) != 1 {
		t.Fatalf("yaml scheduler block not applied: %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.CorridorWidthMiles != 30 {
		t.Fatalf("unset yaml keys should keep defaults")
	}
	if cfg.RateRPS != 2.5 {
		t.Fatalf("RATE_RPS = %v", cfg.RateRPS)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing config")
	}
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("FIELDSCHED_CONFIG", "")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=1111\nBATCH_CONCURRENCY=9\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "2222")
	t.Setenv("BATCH_CONCURRENCY", "")
	os.Unsetenv("BATCH_CONCURRENCY")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "2222" {
		t.Fatalf("real env must win over .env, got %s", cfg.Port)
	}
	if cfg.BatchConcurrency != 9 {
		t.Fatalf(".env value not applied: %d", cfg.BatchConcurrency)
	}
}

func TestSchedulerValidate(t *testing.T) {
	s := DefaultScheduler()
	s.Anneal.Cooling = 1.5
	if err := s.Validate(); err == nil {
		t.Fatalf("expected cooling error")
	}
	s = DefaultScheduler()
	s.NightArrival = "9pm"
	if err := s.Validate(); err == nil {
		t.Fatalf("expected clock error")
	}
}
