package main

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/star/constellation/internal/api"
	"github.com/star/constellation/internal/auth"
	"github.com/star/constellation/internal/cache"
	"github.com/star/constellation/internal/coverage"
	"github.com/star/constellation/internal/params"
	"github.com/star/constellation/internal/propagation"
	"github.com/star/constellation/internal/stream"
)

const envPrefix = "CONSTELLATION"

// newViper layers defaults, an optional config file, CONSTELLATION_*
// environment variables and command-line flags, lowest to highest.
func newViper(args []string) (*viper.Viper, error) {
	fs := pflag.NewFlagSet("constellation", pflag.ContinueOnError)
	fs.String("config", "", "config file (yaml, toml or json); also CONSTELLATION_CONFIG")
	fs.String("http.addr", ":8080", "listen address")
	fs.String("log.level", "info", "log level: debug, info, warn or error")
	fs.Bool("demo", false, "start from the demo constellation even when a cached one exists")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.public_reads", true)
	v.SetDefault("prop.backend", propagation.BackendGoSatellite)
	v.SetDefault("prop.workers", runtime.NumCPU())
	v.SetDefault("prop.step", "5s")
	v.SetDefault("prop.horizon", "10m")
	v.SetDefault("coverage.resolution", coverage.DefaultResolutionDeg)
	v.SetDefault("coverage.min_elevation", coverage.DefaultMinElevationDeg)
	v.SetDefault("coverage.workers", runtime.NumCPU())
	v.SetDefault("cache.step", "5s")
	v.SetDefault("cache.horizon", "10m")
	v.SetDefault("cache.buffer", "1m")
	v.SetDefault("stream.max_concurrent", 10)
	v.SetDefault("stream.max_total", 1000)
	v.SetDefault("stream.keepalive", "30s")
	v.SetDefault("tle.cache_dir", "/tmp/constellation/tle")
	v.SetDefault("tle.max_files", 5)
	v.SetDefault("poll.interval", params.DefaultPollInterval.String())
	v.SetDefault("ratelimit.rps", 1.0)
	v.SetDefault("ratelimit.burst", 5)
}

func loadLogLevel(v *viper.Viper) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log.level"))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// duration reads key as a Go duration of at least min, warning and falling
// back to def otherwise.
func duration(v *viper.Viper, logger *slog.Logger, key string, min, def time.Duration) time.Duration {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d < min {
		logger.Warn("invalid duration, using default", "key", key, "value", raw, "default", def.String())
		return def
	}
	return d
}

func positiveInt(v *viper.Viper, logger *slog.Logger, key string, def int) int {
	n := v.GetInt(key)
	if n < 1 {
		logger.Warn("invalid value, using default", "key", key, "value", v.GetString(key), "default", def)
		return def
	}
	return n
}

func loadAuthConfig(v *viper.Viper, logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{
		Enabled:     v.GetBool("auth.enabled"),
		PublicReads: v.GetBool("auth.public_reads"),
	}
	if cfg.Enabled {
		cfg.Token = v.GetString("auth.token")
		if cfg.Token == "" {
			return cfg, errors.New("auth.token (CONSTELLATION_AUTH_TOKEN) is required when auth is enabled")
		}
		logger.Info("auth enabled", "public_reads", cfg.PublicReads)
	}
	return cfg, nil
}

func loadPropConfig(v *viper.Viper, logger *slog.Logger) propagation.PropConfig {
	cfg := propagation.PropConfig{
		Backend: v.GetString("prop.backend"),
		Workers: positiveInt(v, logger, "prop.workers", runtime.NumCPU()),
		Step:    duration(v, logger, "prop.step", time.Second, 5*time.Second),
		Horizon: duration(v, logger, "prop.horizon", time.Second, 10*time.Minute),
	}

	logger.Info("propagation config",
		"backend", cfg.Backend,
		"workers", cfg.Workers,
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
	)
	return cfg
}

func loadCoverageConfig(v *viper.Viper, logger *slog.Logger) coverage.Config {
	cfg := coverage.Config{
		ResolutionDeg:   v.GetFloat64("coverage.resolution"),
		MinElevationDeg: v.GetFloat64("coverage.min_elevation"),
		Workers:         positiveInt(v, logger, "coverage.workers", runtime.NumCPU()),
	}

	if _, err := coverage.Grid(cfg.ResolutionDeg); err != nil {
		logger.Warn("invalid coverage.resolution, using default", "value", cfg.ResolutionDeg, "default", coverage.DefaultResolutionDeg, "error", err)
		cfg.ResolutionDeg = coverage.DefaultResolutionDeg
	}
	if cfg.MinElevationDeg < 0 || cfg.MinElevationDeg >= 90 {
		logger.Warn("invalid coverage.min_elevation, using default", "value", cfg.MinElevationDeg, "default", coverage.DefaultMinElevationDeg)
		cfg.MinElevationDeg = coverage.DefaultMinElevationDeg
	}

	logger.Info("coverage config",
		"resolution_deg", cfg.ResolutionDeg,
		"min_elevation_deg", cfg.MinElevationDeg,
		"grid_points", coverage.PointCount(cfg.ResolutionDeg),
	)
	return cfg
}

func loadCacheConfig(v *viper.Viper, logger *slog.Logger) cache.Config {
	cfg := cache.Config{
		Step:    duration(v, logger, "cache.step", time.Second, 5*time.Second),
		Horizon: duration(v, logger, "cache.horizon", time.Second, 10*time.Minute),
		Buffer:  duration(v, logger, "cache.buffer", 0, time.Minute),
	}

	logger.Info("cache config",
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
		"buffer_seconds", cfg.Buffer.Seconds(),
	)
	return cfg
}

func loadStreamConfig(v *viper.Viper, logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: positiveInt(v, logger, "stream.max_concurrent", 10),
		MaxConcurrent:      positiveInt(v, logger, "stream.max_total", 1000),
		KeepaliveInterval:  duration(v, logger, "stream.keepalive", time.Second, 30*time.Second),
		TrustProxy:         v.GetBool("http.trust_proxy"),
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_concurrent", cfg.MaxConcurrent,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
	)
	return cfg
}

type tleConfig struct {
	CacheDir string
	MaxFiles int
}

func loadTLEConfig(v *viper.Viper, logger *slog.Logger) tleConfig {
	cfg := tleConfig{
		CacheDir: v.GetString("tle.cache_dir"),
		MaxFiles: positiveInt(v, logger, "tle.max_files", 5),
	}
	logger.Info("TLE cache config", "cache_dir", cfg.CacheDir, "max_files", cfg.MaxFiles)
	return cfg
}

func loadRateLimitConfig(v *viper.Viper, logger *slog.Logger) api.RateLimitConfig {
	cfg := api.RateLimitConfig{
		RPS:   v.GetFloat64("ratelimit.rps"),
		Burst: positiveInt(v, logger, "ratelimit.burst", 5),
	}
	if cfg.RPS <= 0 {
		logger.Warn("invalid ratelimit.rps, using default", "value", v.GetString("ratelimit.rps"), "default", 1)
		cfg.RPS = 1
	}
	return cfg
}

func loadPollInterval(v *viper.Viper, logger *slog.Logger) time.Duration {
	return duration(v, logger, "poll.interval", 100*time.Millisecond, params.DefaultPollInterval)
}
