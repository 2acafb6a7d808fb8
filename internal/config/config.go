// Package config loads service and scheduler settings from defaults, an
// optional YAML file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Anneal holds the cooling schedule of the annealing strategy.
type Anneal struct {
	InitialTemp float64 `yaml:"initialTemp"`
	Cooling     float64 `yaml:"cooling"`
	Floor       float64 `yaml:"floor"`
}

// Scheduler holds the tunables of the scheduling engine.
type Scheduler struct {
	DriveSpeedMPH         float64  `yaml:"driveSpeedMph"`
	RuralSpeedMPH         float64  `yaml:"ruralSpeedMph"`
	HotelThresholdMiles   float64  `yaml:"hotelThresholdMiles"`
	PreNightJobCap        int      `yaml:"preNightJobCap"`
	MaxDriveMinutes       int      `yaml:"maxDriveMinutes"`
	CorridorWidthMiles    float64  `yaml:"corridorWidthMiles"`
	CorridorClusterMiles  float64  `yaml:"corridorClusterMiles"`
	CorridorMinMiles      float64  `yaml:"corridorMinMiles"`
	CorridorMaxResults    int      `yaml:"corridorMaxResults"`
	HorizonDays           int      `yaml:"horizonDays"`
	RadiusCapMiles        float64  `yaml:"radiusCapMiles"`
	FreshnessMinDays      int      `yaml:"freshnessMinDays"`
	DayStart              string   `yaml:"dayStart"`
	NightArrival          string   `yaml:"nightArrival"`
	WeeklyTargetHours     float64  `yaml:"weeklyTargetHours"`
	WeeklyTargetMaxHours  float64  `yaml:"weeklyTargetMaxHours"`
	FullDayThresholdHours float64  `yaml:"fullDayThresholdHours"`
	Anneal                Anneal   `yaml:"anneal"`
	FridayExcludedSites   []string `yaml:"fridayExcludedSites"`
}

// Config is the full service configuration.
type Config struct {
	Port               string        `yaml:"port"`
	DatabaseURL        string        `yaml:"databaseUrl"`
	RedisURL           string        `yaml:"redisUrl"`
	Migrate            bool          `yaml:"migrate"`
	SeedFile           string        `yaml:"seedFile"`
	RateRPS            float64       `yaml:"rateRps"`
	RateBurst          int           `yaml:"rateBurst"`
	WebhookMaxAttempts int           `yaml:"webhookMaxAttempts"`
	WebhookInterval    time.Duration `yaml:"webhookInterval"`
	BatchConcurrency   int           `yaml:"batchConcurrency"`
	LogLevel           string        `yaml:"logLevel"`
	Env                string        `yaml:"env"`
	Scheduler          Scheduler     `yaml:"scheduler"`
}

// DefaultScheduler returns the engine defaults.
func DefaultScheduler() Scheduler {
	return Scheduler{
		DriveSpeedMPH:         55,
		RuralSpeedMPH:         45,
		HotelThresholdMiles:   90,
		PreNightJobCap:        4,
		MaxDriveMinutes:       60,
		CorridorWidthMiles:    30,
		CorridorClusterMiles:  15,
		CorridorMinMiles:      60,
		CorridorMaxResults:    50,
		HorizonDays:           21,
		RadiusCapMiles:        250,
		FreshnessMinDays:      18,
		DayStart:              "07:00",
		NightArrival:          "21:00",
		WeeklyTargetHours:     40,
		WeeklyTargetMaxHours:  50,
		FullDayThresholdHours: 1.0,
		Anneal:                Anneal{InitialTemp: 100, Cooling: 0.99, Floor: 0.1},
	}
}

// Default returns the service defaults.
func Default() Config {
	return Config{
		Port:               "8080",
		Migrate:            true,
		RateRPS:            5,
		RateBurst:          10,
		WebhookMaxAttempts: 10,
		WebhookInterval:    time.Second,
		BatchConcurrency:   4,
		LogLevel:           "info",
		Env:                "production",
		Scheduler:          DefaultScheduler(),
	}
}

// Load builds the configuration. path may be empty; FIELDSCHED_CONFIG then
// names the YAML file, and config.yaml is read when present.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("FIELDSCHED_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}
	if err := loadYAML(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}
	// .env never overrides variables already set in the environment
	for _, p := range []string{".env", "../.env"} {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err != nil {
				return cfg, fmt.Errorf("load %s: %w", p, err)
			}
			break
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("SEED_FILE"); v != "" {
		cfg.SeedFile = v
	}
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		cfg.Migrate = v != "false" && v != "0"
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Env = strings.ToLower(v)
	}
	var err error
	if cfg.RateRPS, err = envFloat("RATE_RPS", cfg.RateRPS); err != nil {
		return err
	}
	if cfg.RateBurst, err = envInt("RATE_BURST", cfg.RateBurst); err != nil {
		return err
	}
	if cfg.WebhookMaxAttempts, err = envInt("WEBHOOK_MAX_ATTEMPTS", cfg.WebhookMaxAttempts); err != nil {
		return err
	}
	if cfg.BatchConcurrency, err = envInt("BATCH_CONCURRENCY", cfg.BatchConcurrency); err != nil {
		return err
	}
	return nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.RateRPS < 0 || c.RateBurst < 0 {
		return fmt.Errorf("rate limits must be >= 0")
	}
	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("batchConcurrency must be > 0")
	}
	return c.Scheduler.Validate()
}

// Validate checks the scheduler tunables.
func (s Scheduler) Validate() error {
	if s.DriveSpeedMPH <= 0 || s.RuralSpeedMPH <= 0 {
		return fmt.Errorf("speeds must be > 0")
	}
	if s.HotelThresholdMiles <= 0 {
		return fmt.Errorf("hotelThresholdMiles must be > 0")
	}
	if s.CorridorWidthMiles <= 0 || s.CorridorClusterMiles <= 0 {
		return fmt.Errorf("corridor distances must be > 0")
	}
	if s.PreNightJobCap < 0 || s.MaxDriveMinutes < 0 {
		return fmt.Errorf("preNightJobCap and maxDriveMinutes must be >= 0")
	}
	if a := s.Anneal; a.Cooling <= 0 || a.Cooling >= 1 || a.InitialTemp <= a.Floor || a.Floor <= 0 {
		return fmt.Errorf("anneal schedule must satisfy initialTemp > floor > 0 and cooling in (0,1)")
	}
	for _, c := range []string{s.DayStart, s.NightArrival} {
		if _, err := time.Parse("15:04", c); err != nil {
			return fmt.Errorf("clock %q must be HH:MM", c)
		}
	}
	return nil
}
