// Package config implements the kernel's environment-variable runtime
// knobs (spec §6), TOML policy hot-reload via fsnotify, and the tool
// construction config decoded with mapstructure. The .env loading path is
// a direct generalization of the teacher's config.LoadDotEnv: same search
// order, same "don't overwrite an already-set variable" semantics.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/relaykit/kernel/kernelerr"
)

// LoadDotEnv loads environment variables from a .env file, trying explicit
// paths first, then .env in the current directory, then ~/.env. Existing
// environment variables are never overwritten.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if path != "" {
			if err := loadIfExists(path); err != nil {
				return err
			}
		}
	}
	if err := loadIfExists(".env"); err != nil {
		return err
	}
	if home, err := os.UserHomeDir(); err == nil {
		if err := loadIfExists(filepath.Join(home, ".env")); err != nil {
			return err
		}
	}
	return nil
}

func loadIfExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// RuntimeConfig is the small set of runtime knobs spec §6 reads from the
// environment: logging level, request timeout, max body size, backpressure
// thresholds, and the metrics namespace.
type RuntimeConfig struct {
	LogLevel           string
	RequestTimeout     time.Duration
	MaxBodyBytes       int64
	BackpressureWarn   int64
	BackpressureCrit   int64
	BackpressureCap    int64
	MetricsNamespace   string
}

// DefaultRuntimeConfig mirrors security.DefaultPolicy's deny-by-default
// posture with permissive-but-bounded runtime defaults.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		LogLevel:         "info",
		RequestTimeout:   30 * time.Second,
		MaxBodyBytes:     10 << 20,
		BackpressureWarn: 1000,
		BackpressureCrit: 5000,
		BackpressureCap:  10000,
		MetricsNamespace: "relaykit_kernel",
	}
}

// LoadRuntimeConfig reads RuntimeConfig fields from environment variables,
// validating each before use. Invalid values abort startup with a clear
// error (spec §6: "invalid values abort startup with a clear error").
func LoadRuntimeConfig() (RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()

	if v := os.Getenv("KERNEL_LOG_LEVEL"); v != "" {
		if !isValidLogLevel(v) {
			return RuntimeConfig{}, configErr("LoadRuntimeConfig", "KERNEL_LOG_LEVEL must be one of debug|info|warn|error, got "+v)
		}
		cfg.LogLevel = v
	}

	if v := os.Getenv("KERNEL_REQUEST_TIMEOUT_SECONDS"); v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil || secs <= 0 {
			return RuntimeConfig{}, configErr("LoadRuntimeConfig", "KERNEL_REQUEST_TIMEOUT_SECONDS must be a positive integer")
		}
		cfg.RequestTimeout = time.Duration(secs) * time.Second
	}

	if v := os.Getenv("KERNEL_MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return RuntimeConfig{}, configErr("LoadRuntimeConfig", "KERNEL_MAX_BODY_BYTES must be a positive integer")
		}
		cfg.MaxBodyBytes = n
	}

	if v := os.Getenv("KERNEL_BACKPRESSURE_WARN"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return RuntimeConfig{}, configErr("LoadRuntimeConfig", "KERNEL_BACKPRESSURE_WARN must be a positive integer")
		}
		cfg.BackpressureWarn = n
	}

	if v := os.Getenv("KERNEL_BACKPRESSURE_CRITICAL"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return RuntimeConfig{}, configErr("LoadRuntimeConfig", "KERNEL_BACKPRESSURE_CRITICAL must be a positive integer")
		}
		cfg.BackpressureCrit = n
	}

	if v := os.Getenv("KERNEL_BACKPRESSURE_HARD_CAP"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return RuntimeConfig{}, configErr("LoadRuntimeConfig", "KERNEL_BACKPRESSURE_HARD_CAP must be a positive integer")
		}
		cfg.BackpressureCap = n
	}

	if v := os.Getenv("KERNEL_METRICS_NAMESPACE"); v != "" {
		cfg.MetricsNamespace = v
	}

	if cfg.BackpressureWarn >= cfg.BackpressureCrit || cfg.BackpressureCrit >= cfg.BackpressureCap {
		return RuntimeConfig{}, configErr("LoadRuntimeConfig", "backpressure thresholds must satisfy warn < critical < hard_cap")
	}

	return cfg, nil
}

func isValidLogLevel(v string) bool {
	switch v {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func configErr(op, msg string) *kernelerr.Error {
	return kernelerr.New(kernelerr.KindValidation, kernelerr.CodeOutOfRange, "config", op, msg, nil)
}
