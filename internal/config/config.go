package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config stores engine and service settings. Durations are parsed from Go
// duration strings in YAML ("4s", "500ms").
type Config struct {
	Port int `yaml:"port"`

	// Backend endpoints. WSURL is the base for /delivery/ws/{driverId}.
	BackendURL string `yaml:"backend_url"`
	WSURL      string `yaml:"ws_url"`
	Token      string `yaml:"token"`

	// Identity of the signed-in driver. DriverID keys the WebSocket feed,
	// RiderID keys every REST call.
	DriverID int64 `yaml:"driver_id"`
	RiderID  int64 `yaml:"rider_id"`

	// Optional stores. Empty selects the in-memory implementations.
	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	PollInterval     time.Duration `yaml:"poll_interval"`
	PollInitialDelay time.Duration `yaml:"poll_initial_delay"`
	OfferTTL         time.Duration `yaml:"offer_ttl"`

	LocationInterval time.Duration `yaml:"location_interval"`
	LocateTimeout    time.Duration `yaml:"locate_timeout"`
	GoOnlineTimeout  time.Duration `yaml:"go_online_timeout"`
	FallbackLat      float64       `yaml:"fallback_lat"`
	FallbackLng      float64       `yaml:"fallback_lng"`

	PickupRadiusM  float64       `yaml:"pickup_radius_m"`
	PickupArmDelay time.Duration `yaml:"pickup_arm_delay"`
}

// Default returns the built-in settings. Intervals and the fallback
// coordinate match the production dispatch backend.
func Default() *Config {
	return &Config{
		Port:             8090,
		BackendURL:       "http://localhost:8000",
		WSURL:            "ws://localhost:8000",
		PollInterval:     4 * time.Second,
		PollInitialDelay: 500 * time.Millisecond,
		OfferTTL:         60 * time.Second,
		LocationInterval: 30 * time.Second,
		LocateTimeout:    5 * time.Second,
		GoOnlineTimeout:  7 * time.Second,
		FallbackLat:      16.8661,
		FallbackLng:      96.1951,
		PickupRadiusM:    150,
		PickupArmDelay:   3 * time.Second,
	}
}

// Load reads configuration in order: defaults → YAML file → .env (if
// present) → environment → flags.
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("driverhubd", pflag.ContinueOnError)
	path := fs.StringP("config", "c", "", "path to YAML config file")
	port := fs.IntP("port", "p", 0, "port to listen on")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *path != "" {
		data, err := os.ReadFile(*path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.applyYAML(data); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: .env not loaded: %v", err)
	}
	cfg.applyEnv()

	if *port != 0 {
		cfg.Port = *port
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.RiderID <= 0 {
		return nil, fmt.Errorf("rider_id is required")
	}
	if cfg.DriverID <= 0 {
		cfg.DriverID = cfg.RiderID
	}
	return cfg, nil
}

// fileConfig mirrors Config for YAML parsing. Pointer fields distinguish
// absent keys from zero values, and durations arrive as Go duration
// strings ("4s", "500ms").
type fileConfig struct {
	Port *int `yaml:"port"`

	BackendURL *string `yaml:"backend_url"`
	WSURL      *string `yaml:"ws_url"`
	Token      *string `yaml:"token"`

	DriverID *int64 `yaml:"driver_id"`
	RiderID  *int64 `yaml:"rider_id"`

	RedisURL    *string `yaml:"redis_url"`
	DatabaseURL *string `yaml:"database_url"`

	PollInterval     *string `yaml:"poll_interval"`
	PollInitialDelay *string `yaml:"poll_initial_delay"`
	OfferTTL         *string `yaml:"offer_ttl"`

	LocationInterval *string  `yaml:"location_interval"`
	LocateTimeout    *string  `yaml:"locate_timeout"`
	GoOnlineTimeout  *string  `yaml:"go_online_timeout"`
	FallbackLat      *float64 `yaml:"fallback_lat"`
	FallbackLng      *float64 `yaml:"fallback_lng"`

	PickupRadiusM  *float64 `yaml:"pickup_radius_m"`
	PickupArmDelay *string  `yaml:"pickup_arm_delay"`
}

func (c *Config) applyYAML(data []byte) error {
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.Port != nil {
		c.Port = *f.Port
	}
	if f.BackendURL != nil {
		c.BackendURL = *f.BackendURL
	}
	if f.WSURL != nil {
		c.WSURL = *f.WSURL
	}
	if f.Token != nil {
		c.Token = *f.Token
	}
	if f.DriverID != nil {
		c.DriverID = *f.DriverID
	}
	if f.RiderID != nil {
		c.RiderID = *f.RiderID
	}
	if f.RedisURL != nil {
		c.RedisURL = *f.RedisURL
	}
	if f.DatabaseURL != nil {
		c.DatabaseURL = *f.DatabaseURL
	}
	if f.FallbackLat != nil {
		c.FallbackLat = *f.FallbackLat
	}
	if f.FallbackLng != nil {
		c.FallbackLng = *f.FallbackLng
	}
	if f.PickupRadiusM != nil {
		c.PickupRadiusM = *f.PickupRadiusM
	}
	for _, d := range []struct {
		raw *string
		dst *time.Duration
	}{
		{f.PollInterval, &c.PollInterval},
		{f.PollInitialDelay, &c.PollInitialDelay},
		{f.OfferTTL, &c.OfferTTL},
		{f.LocationInterval, &c.LocationInterval},
		{f.LocateTimeout, &c.LocateTimeout},
		{f.GoOnlineTimeout, &c.GoOnlineTimeout},
		{f.PickupArmDelay, &c.PickupArmDelay},
	} {
		if d.raw == nil {
			continue
		}
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("duration %q: %w", *d.raw, err)
		}
		*d.dst = v
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv("BACKEND_WS_URL"); v != "" {
		c.WSURL = v
	}
	if v := os.Getenv("BACKEND_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("DRIVER_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.DriverID = n
		}
	}
	if v := os.Getenv("RIDER_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.RiderID = n
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
}
