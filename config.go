package main

import (
	"fmt"
	"time"

	"sdserve/core"
	"sdserve/sdruntime"
)

// Config holds all configuration values, loaded from the environment.
type Config struct {
	// Model configuration
	ModelID         string
	ModelPath       string
	Device          string
	Dtype           string
	Scheduler       sdruntime.Scheduler
	UseKarrasSigmas bool
	OfflineMode     bool

	// Generation defaults, filled into requests that omit a field
	DefaultSteps    int
	DefaultGuidance float64
	DefaultHeight   int
	DefaultWidth    int

	// Server configuration
	Host string
	Port int

	// Bearer auth; at most one of these is set, both empty disables auth
	APIKey     string
	APIKeyHash string

	// History database. Empty DBPath disables history.
	// RetentionDays 0 keeps rows forever.
	DBPath          string
	RetentionDays   int
	CleanupInterval time.Duration

	// Logging
	LogFile string
	DevMode bool
}

// LoadConfig loads configuration from environment variables with defaults
// that serve SD 1.5 on a single CUDA device out of the box.
//
// Parse failures fall back to defaults (the same behavior the pre-flight
// suite reports against); invalid values are rejected with actionable
// ConfigErrors.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ModelID:         core.GetEnvOrDefault("SD_MODEL_ID", sdruntime.DefaultModelID),
		ModelPath:       core.GetEnvOrDefault("SD_MODEL_PATH", ""),
		Device:          core.GetEnvOrDefault("SD_DEVICE", sdruntime.DefaultDevice),
		Dtype:           core.GetEnvOrDefault("SD_DTYPE", sdruntime.DefaultDtype),
		UseKarrasSigmas: core.ParseBoolEnv("SD_USE_KARRAS_SIGMAS", true),
		OfflineMode:     core.ParseBoolEnv("SD_OFFLINE_MODE", false),

		DefaultSteps:    core.ParseIntEnv("SD_DEFAULT_STEPS", sdruntime.DefaultSteps),
		DefaultGuidance: core.ParseFloat64Env("SD_DEFAULT_GUIDANCE", sdruntime.DefaultGuidance),
		DefaultHeight:   core.ParseIntEnv("SD_DEFAULT_HEIGHT", sdruntime.DefaultHeight),
		DefaultWidth:    core.ParseIntEnv("SD_DEFAULT_WIDTH", sdruntime.DefaultWidth),

		Host: core.GetEnvOrDefault("HOST", "0.0.0.0"),
		Port: core.ParseIntEnv("PORT", 8000),

		APIKey:     core.GetEnvOrDefault("API_KEY", ""),
		APIKeyHash: core.GetEnvOrDefault("API_KEY_HASH", ""),

		DBPath:          core.GetEnvOrDefault("DB_PATH", ""),
		RetentionDays:   core.ParseIntEnv("DB_RETENTION_DAYS", 0),
		CleanupInterval: core.ParseDurationEnv("DB_CLEANUP_INTERVAL", 24*60*60),

		LogFile: core.GetEnvOrDefault("LOG_FILE", "sdserve.log"),
		DevMode: core.ParseBoolEnv("DEV_MODE", false),
	}

	schedulerName := core.GetEnvOrDefault("SD_SCHEDULER", string(sdruntime.SchedulerDPMSolverPP))
	scheduler, ok := sdruntime.NormalizeScheduler(schedulerName)
	if !ok {
		return nil, core.ErrInvalidScheduler(schedulerName)
	}
	cfg.Scheduler = scheduler

	if cfg.Device != "cuda" && cfg.Device != "cpu" {
		return nil, core.ErrInvalidDevice(cfg.Device)
	}
	if cfg.Dtype != "float16" && cfg.Dtype != "float32" {
		return nil, core.ErrInvalidDtype(cfg.Dtype)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, core.ErrInvalidPort(cfg.Port)
	}
	if cfg.APIKey != "" && cfg.APIKeyHash != "" {
		return nil, core.ErrAuthConfigConflict()
	}
	if cfg.RetentionDays < 0 {
		cfg.RetentionDays = 0
	}

	// Bounds for the SD_DEFAULT_* values live with the runtime; Validate
	// reports them through the same error the generator would raise.
	if err := cfg.RuntimeOptions().Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RuntimeOptions maps the configuration onto generator options.
func (c *Config) RuntimeOptions() sdruntime.Options {
	opts := sdruntime.DefaultOptions()
	opts.ModelID = c.ModelID
	opts.ModelPath = c.ModelPath
	opts.Device = c.Device
	opts.Dtype = c.Dtype
	opts.Scheduler = c.Scheduler
	opts.UseKarrasSigmas = c.UseKarrasSigmas
	opts.OfflineMode = c.OfflineMode
	opts.Defaults = sdruntime.Defaults{
		Steps:    c.DefaultSteps,
		Guidance: c.DefaultGuidance,
		Height:   c.DefaultHeight,
		Width:    c.DefaultWidth,
	}
	return opts
}

// Addr returns the host:port the server binds.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HistoryEnabled reports whether a history database is configured.
func (c *Config) HistoryEnabled() bool {
	return c.DBPath != ""
}

// AuthEnabled reports whether bearer auth is configured.
func (c *Config) AuthEnabled() bool {
	return c.APIKey != "" || c.APIKeyHash != ""
}
